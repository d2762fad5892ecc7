package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/spf13/cobra"
)

var obsCmd = &cobra.Command{
	Use:   "obs",
	Short: "Observability commands (query VictoriaMetrics)",
}

var vmsingleURL string

type VMResponse struct {
	Status string `json:"status"`
	Data   struct {
		Result []struct {
			Metric map[string]string `json:"metric"`
			Value  []interface{}     `json:"value"`
		} `json:"result"`
	} `json:"data"`
}

type namedQuery struct {
	name  string
	query string
}

var obsQueries = map[string][]namedQuery{
	"summary": {
		{"Start Success Rate", `sum(rate(dash_start_requests_total{result="ok"}[5m])) / sum(rate(dash_start_requests_total[5m])) * 100`},
		{"HTTP Request Rate", `sum(rate(dash_http_requests_total[5m]))`},
		{"Active Start Sessions", `dash_active_start_sessions`},
		{"Active Requests", `dash_active_requests`},
	},
	"latency": {
		{"HTTP P50", `histogram_quantile(0.5, sum(rate(dash_http_request_duration_seconds_bucket[5m])) by (le))`},
		{"HTTP P95", `histogram_quantile(0.95, sum(rate(dash_http_request_duration_seconds_bucket[5m])) by (le))`},
		{"RPC P95", `histogram_quantile(0.95, sum(rate(dash_rpc_call_duration_seconds_bucket[5m])) by (le))`},
	},
	"auth": {
		{"Handshake Rate", `sum(rate(dash_auth_handshake_total[5m])) by (result)`},
		{"Handshake P95", `histogram_quantile(0.95, sum(rate(dash_auth_handshake_duration_seconds_bucket[5m])) by (le))`},
		{"Cookie Bootstrap Failures", `rate(dash_auth_bootstrap_total{result=~"error|failed"}[5m])`},
	},
	"remote": {
		{"Reconnect Rate", `rate(dash_rpc_reconnects_total[5m])`},
		{"Instance Update Rate", `sum(rate(dash_instance_updates_total[5m]))`},
		{"Log Chunk Rate", `sum(rate(dash_log_chunks_total[5m])) by (source)`},
	},
}

func obsRun(group string) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		for _, q := range obsQueries[group] {
			fmt.Printf("%s: %s\n", q.name, queryVM(cmd.Context(), vmsingleURL, q.query))
		}
	}
}

var (
	obsSummaryCmd = &cobra.Command{Use: "summary", Short: "Show system summary metrics", Run: obsRun("summary")}
	obsLatencyCmd = &cobra.Command{Use: "latency", Short: "Show latency metrics", Run: obsRun("latency")}
	obsAuthCmd    = &cobra.Command{Use: "auth", Short: "Show handshake and cookie bootstrap metrics", Run: obsRun("auth")}
	obsRemoteCmd  = &cobra.Command{Use: "remote", Short: "Show remote channel metrics", Run: obsRun("remote")}
)

func queryVM(ctx context.Context, baseURL, query string) string {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/api/v1/query?query="+url.QueryEscape(query), nil)
	if err != nil {
		return "error: " + err.Error()
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "error: " + err.Error()
	}
	defer resp.Body.Close()

	var vmResp VMResponse
	if err := json.NewDecoder(resp.Body).Decode(&vmResp); err != nil {
		return "parse error"
	}

	if len(vmResp.Data.Result) == 0 {
		return "no data"
	}

	result := vmResp.Data.Result[0]
	if len(result.Value) >= 2 {
		return fmt.Sprintf("%v", result.Value[1])
	}
	return "no value"
}

func init() {
	obsCmd.PersistentFlags().StringVar(&vmsingleURL, "vm-url", "http://localhost:8428", "VictoriaMetrics URL")
	obsCmd.AddCommand(obsSummaryCmd, obsLatencyCmd, obsAuthCmd, obsRemoteCmd)
	rootCmd.AddCommand(obsCmd)
}
