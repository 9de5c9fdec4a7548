package cli

import (
	"github.com/spf13/cobra"
)

var solveChallengeCmd = &cobra.Command{
	Use:   "solve-challenge",
	Short: "Solve the bot challenge and cache the session cookie",
	Long: `Drives a browser session through the bot challenge on the API host
and caches the resulting session cookie for subsequent fetch runs. Run with
challenge.headless=false to solve interactive captchas by hand.`,
	RunE: runSolveChallenge,
}

var clearCookiesCmd = &cobra.Command{
	Use:   "clear-cookies",
	Short: "Drop the cached challenge cookie",
	RunE:  runClearCookies,
}

func init() {
	rootCmd.AddCommand(solveChallengeCmd)
	rootCmd.AddCommand(clearCookiesCmd)
}

func runSolveChallenge(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	manager, err := a.challengeManager()
	if err != nil {
		return err
	}
	client, err := a.dipClient(manager)
	if err != nil {
		return err
	}

	cookie, err := manager.Refresh(cmd.Context(), client.ChallengeURL())
	if err != nil {
		return err
	}
	cmd.Printf("challenge solved: %d cookies, valid until %s\n", len(cookie.Values), cookie.ExpiresAt.Format("2006-01-02 15:04:05 MST"))
	return nil
}

func runClearCookies(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	manager, err := a.challengeManager()
	if err != nil {
		return err
	}
	if err := manager.Invalidate(); err != nil {
		return err
	}
	cmd.Println("challenge cookies cleared")
	return nil
}
