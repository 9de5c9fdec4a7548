package dip

// Payload shapes drift across DIP API versions. The extraction helpers try an
// ordered list of known keys and fall back to structural detection, so new
// variants are additive data, not new branches.

var itemsKeys = []string{"documents", "vorgang", "results", "data", "items"}

var cursorKeys = []string{"cursor", "next_cursor", "nextCursor", "next"}

var numFoundKeys = []string{"numFound", "num_found", "total"}

// ExtractItems returns the record list from a response payload.
func ExtractItems(payload map[string]any) []RawRecord {
	for _, key := range itemsKeys {
		if list, ok := payload[key].([]any); ok {
			return toRawRecords(list)
		}
	}
	// Fallback: first list-valued field anywhere at the top level.
	for _, val := range payload {
		if list, ok := val.([]any); ok {
			return toRawRecords(list)
		}
	}
	return nil
}

// ExtractCursor returns the continuation token, or "" when exhausted.
func ExtractCursor(payload map[string]any) string {
	for _, key := range cursorKeys {
		if s, ok := payload[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// ExtractNumFound returns the total result count reported by the API, or 0.
func ExtractNumFound(payload map[string]any) int {
	for _, key := range numFoundKeys {
		switch v := payload[key].(type) {
		case float64:
			return int(v)
		case int:
			return v
		}
	}
	return 0
}

func toRawRecords(list []any) []RawRecord {
	records := make([]RawRecord, 0, len(list))
	for _, entry := range list {
		if m, ok := entry.(map[string]any); ok {
			records = append(records, RawRecord(m))
		}
	}
	return records
}
