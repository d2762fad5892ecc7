package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
)

type ErrorRow struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type SessionRow struct {
	SessionID   string    `json:"session_id"`
	WorkspaceID string    `json:"workspace_id"`
	ContextURL  string    `json:"context_url"`
	Phase       string    `json:"phase"`
	Message     string    `json:"message"`
	InstanceID  string    `json:"instance_id"`
	IDEURL      string    `json:"ide_url"`
	Redirected  string    `json:"redirected_to"`
	Error       *ErrorRow `json:"error"`
}

type ProviderRow struct {
	Host      string   `json:"host"`
	Name      string   `json:"name"`
	Connected bool     `json:"connected"`
	Username  string   `json:"username"`
	Granted   []string `json:"granted_scopes"`
}

func printResult(v interface{}) {
	if output == "json" {
		json.NewEncoder(os.Stdout).Encode(v)
		return
	}
	printTable(v)
}

func printTable(v interface{}) {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	switch data := v.(type) {
	case []ProviderRow:
		if len(data) == 0 {
			fmt.Println("No providers found.")
			return
		}
		fmt.Fprintln(w, "HOST\tNAME\tCONNECTED\tUSER\tSCOPES")
		for _, p := range data {
			fmt.Fprintf(w, "%s\t%s\t%t\t%s\t%s\n", p.Host, p.Name, p.Connected, p.Username, truncate(strings.Join(p.Granted, ","), 40))
		}
	case SessionRow:
		fmt.Fprintf(w, "Session:\t%s\n", data.SessionID)
		fmt.Fprintf(w, "Workspace:\t%s\n", data.WorkspaceID)
		if data.ContextURL != "" {
			fmt.Fprintf(w, "Context:\t%s\n", data.ContextURL)
		}
		fmt.Fprintf(w, "Phase:\t%s\n", data.Phase)
		if data.Message != "" {
			fmt.Fprintf(w, "Message:\t%s\n", data.Message)
		}
		if data.InstanceID != "" {
			fmt.Fprintf(w, "Instance:\t%s\n", data.InstanceID)
		}
		if data.IDEURL != "" {
			fmt.Fprintf(w, "IDE URL:\t%s\n", data.IDEURL)
		}
		if data.Error != nil {
			fmt.Fprintf(w, "Error:\t%s: %s\n", data.Error.Code, data.Error.Message)
		}
	default:
		json.NewEncoder(os.Stdout).Encode(v)
	}
	w.Flush()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
