package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lzjever/mbos-dash/internal/creator"
)

var (
	startRestart      bool
	forceDefaultImage bool
)

var startCmd = &cobra.Command{
	Use:   "start <workspace-id>",
	Short: "Start a workspace and open it in the browser",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		rm, err := dialRemote(ctx)
		if err != nil {
			fail(err)
		}
		defer rm.relay.Close()

		if err := rm.runStart(ctx, args[0], startRestart, forceDefaultImage); err != nil {
			fail(err)
		}
	},
}

var createStart bool

var createCmd = &cobra.Command{
	Use:   "create <context-url>",
	Short: "Create a workspace for a context URL",
	Long: `Create a workspace for a repository, branch, issue or pull request URL.
A leading '#' is accepted so links copied from the dashboard work as is.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		rm, err := dialRemote(ctx)
		if err != nil {
			fail(err)
		}
		defer rm.relay.Close()

		out, err := creator.New(rm.client, log.Named("creator")).Create(ctx, creator.ContextFromFragment(args[0]))
		if err != nil {
			fail(err)
		}

		switch out.Kind {
		case creator.KindRedirect:
			if err := rm.launcher.Navigate(ctx, out.URL); err != nil {
				fail(err)
			}
		case creator.KindStart:
			if !createStart {
				printResult(out)
				return
			}
			if err := rm.runStart(ctx, out.WorkspaceID, false, false); err != nil {
				fail(err)
			}
		case creator.KindSelectExisting:
			fmt.Fprintln(os.Stderr, "Running workspaces already exist for this context:")
			printResult(out)
		default:
			printResult(out)
		}
	},
}

func init() {
	startCmd.Flags().BoolVar(&startRestart, "restart", false, "Start the workspace again if it is found stopped")
	startCmd.Flags().BoolVar(&forceDefaultImage, "force-default-image", false, "Start with the default image instead of building one")
	createCmd.Flags().BoolVar(&createStart, "start", true, "Start the new workspace and open it")
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(createCmd)
}
