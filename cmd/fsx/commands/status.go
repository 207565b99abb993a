package commands

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/marmos91/fsx/pkg/config"
)

var (
	statusPort   int
	statusOutput string
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status",
	Long: `Display the current status of the fsx server.

This command calls the watch server's health endpoint and displays
liveness, uptime and subscription counts.

Examples:
  # Check status (uses the configured watch port)
  fsx status

  # Check status on a custom port
  fsx status --port 9000

  # Output as JSON
  fsx status --output json`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusPort, "port", 0, "Watch server port (default: from config)")
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table", "Output format (table|json)")
}

// serverHealth mirrors the watch server's health payload.
type serverHealth struct {
	Status        string `json:"status"`
	Uptime        string `json:"uptime"`
	Connections   int    `json:"connections"`
	Subscriptions int    `json:"subscriptions"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	port := statusPort
	if port == 0 {
		cfg, err := config.Load(GetConfigFile())
		if err != nil {
			return err
		}
		port = cfg.Watch.Server.Port
	}

	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://localhost:%d/health", port))
	if err != nil {
		if statusOutput == "json" {
			fmt.Println(`{"running": false}`)
			return nil
		}
		fmt.Println("Server:  not running")
		return nil
	}
	defer func() { _ = resp.Body.Close() }()

	var health serverHealth
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return fmt.Errorf("failed to decode health response: %w", err)
	}

	if statusOutput == "json" {
		out, err := json.MarshalIndent(struct {
			Running bool `json:"running"`
			serverHealth
		}{true, health}, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	}

	fmt.Println("Server:         running")
	fmt.Printf("Status:         %s\n", health.Status)
	fmt.Printf("Uptime:         %s\n", health.Uptime)
	fmt.Printf("Connections:    %d\n", health.Connections)
	fmt.Printf("Subscriptions:  %d\n", health.Subscriptions)
	return nil
}
