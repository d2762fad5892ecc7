package main

import (
	"context"
	"fmt"
	"net/url"

	"github.com/spf13/cobra"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Manage git provider connections",
}

var providersListCmd = &cobra.Command{
	Use:   "list",
	Short: "List git providers and their connection state",
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)
		var resp struct {
			Providers []ProviderRow `json:"providers"`
		}
		if err := client.Get(context.Background(), "/v1/providers", &resp); err != nil {
			fail(err)
		}
		printResult(resp.Providers)
	},
}

var connectScopes []string

var providersConnectCmd = &cobra.Command{
	Use:   "connect <host>",
	Short: "Connect or reauthorize a git provider",
	Long: `Connect opens the provider's authorization page in a browser on the
gateway's machine and waits for the authorization to finish.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)
		body := map[string]interface{}{"scopes": connectScopes}
		var result map[string]string
		if err := client.Post(context.Background(), "/v1/providers/"+url.PathEscape(args[0])+"/connect", body, &result); err != nil {
			fail(err)
		}
		printResult(result)
	},
}

var providersDisconnectCmd = &cobra.Command{
	Use:   "disconnect <host>",
	Short: "Disconnect a git provider",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		client := NewClient(apiURL)
		if err := client.Delete(context.Background(), "/v1/providers/"+url.PathEscape(args[0]), nil); err != nil {
			fail(err)
		}
		fmt.Printf("Disconnected %s\n", args[0])
	},
}

func init() {
	providersConnectCmd.Flags().StringSliceVar(&connectScopes, "scope", nil, "Scopes to request (default: the provider's defaults)")
	providersCmd.AddCommand(providersListCmd)
	providersCmd.AddCommand(providersConnectCmd)
	providersCmd.AddCommand(providersDisconnectCmd)
	rootCmd.AddCommand(providersCmd)
}
