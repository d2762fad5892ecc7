package main

import (
	"fmt"
	"os"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lzjever/mbos-dash/internal/observability"
)

// Config holds the environment defaults for the global flags.
type Config struct {
	APIURL   string `envconfig:"DASH_API_URL" default:"http://localhost:8080"`
	HostURL  string `envconfig:"DASH_HOST_URL"`
	Token    string `envconfig:"DASH_TOKEN"`
	LogLevel string `envconfig:"DASH_LOG_LEVEL" default:"warn"`
}

var (
	apiURL   string
	hostURL  string
	token    string
	output   string
	logLevel string

	log = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "dashctl",
	Short: "dashctl - start and connect to workspaces",
	Long: `dashctl starts workspaces and opens them once they run, streams their logs,
and manages git provider connections through a dash-api gateway.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		l, err := observability.NewConsoleLogger(logLevel)
		if err != nil {
			return err
		}
		log = l
		zap.ReplaceGlobals(l)
		return nil
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	rootCmd.PersistentFlags().StringVarP(&apiURL, "api-url", "a", cfg.APIURL, "dash-api gateway URL")
	rootCmd.PersistentFlags().StringVar(&hostURL, "host", cfg.HostURL, "workspace service URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", cfg.Token, "workspace service token")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format (table, json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", cfg.LogLevel, "Log level for diagnostics on stderr")
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
