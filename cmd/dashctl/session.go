package main

import (
	"context"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage start sessions mounted in the gateway",
}

func sessionPath(wsid string) string {
	return "/v1/workspaces/" + url.PathEscape(wsid)
}

var sessionGetCmd = &cobra.Command{
	Use:   "get <workspace-id>",
	Short: "Show a mounted start session",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)
		var row SessionRow
		if err := client.Get(context.Background(), sessionPath(args[0])+"/session", &row); err != nil {
			fail(err)
		}
		printResult(row)
	},
}

var (
	sessionRestart      bool
	sessionDefaultImage bool
)

var sessionStartCmd = &cobra.Command{
	Use:   "start <workspace-id>",
	Short: "Mount a start session in the gateway, or start it again",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)
		body := map[string]bool{"restart": sessionRestart, "force_default_image": sessionDefaultImage}
		var row SessionRow
		if err := client.Post(context.Background(), sessionPath(args[0])+"/start", body, &row); err != nil {
			fail(err)
		}
		printResult(row)
	},
}

var sessionDeleteCmd = &cobra.Command{
	Use:   "delete <workspace-id>",
	Short: "Unmount a start session",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)
		if err := client.Delete(context.Background(), sessionPath(args[0])+"/session", nil); err != nil {
			fail(err)
		}
		fmt.Printf("Session for %s unmounted\n", args[0])
	},
}

func init() {
	sessionStartCmd.Flags().BoolVar(&sessionRestart, "restart", false, "Start again even if a start already succeeded")
	sessionStartCmd.Flags().BoolVar(&sessionDefaultImage, "force-default-image", false, "Start with the default image")
	sessionCmd.AddCommand(sessionGetCmd)
	sessionCmd.AddCommand(sessionStartCmd)
	sessionCmd.AddCommand(sessionDeleteCmd)
	rootCmd.AddCommand(sessionCmd)
}
