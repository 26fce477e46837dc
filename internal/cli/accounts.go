package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newAddCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <account_id>...",
		Short: "Register accounts for provisioning",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Post("/api/v1/accounts/", map[string]any{
				"account_ids": args,
			})
			if err != nil {
				return fmt.Errorf("register accounts: %w", err)
			}

			var data struct {
				Created  []string `json:"created"`
				Existing []string `json:"existing"`
			}
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			fmt.Printf("Registered %d account(s)\n", len(data.Created))
			if len(data.Existing) > 0 {
				fmt.Printf("Already registered: %s\n", strings.Join(data.Existing, ", "))
			}
			return nil
		},
	}
}

func newListCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List account job records",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/v1/accounts/"
			if status != "" {
				path += "?status=" + status
			}
			resp, err := client.Get(path)
			if err != nil {
				return fmt.Errorf("list accounts: %w", err)
			}

			var data []map[string]any
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			if len(data) == 0 {
				fmt.Println("No accounts found.")
				return nil
			}

			fmt.Printf("%-24s  %-12s  %-20s  %s\n", "ACCOUNT", "STATUS", "FAILED STEP", "ATTEMPTS")
			fmt.Printf("%-24s  %-12s  %-20s  %s\n", "-------", "------", "-----------", "--------")
			for _, job := range data {
				id, _ := job["account_id"].(string)
				st, _ := job["status"].(string)
				failedStep, _ := job["last_failed_step"].(string)
				attempts, _ := job["attempts"].(float64)
				fmt.Printf("%-24s  %-12s  %-20s  %d\n", id, st, failedStep, int(attempts))
			}

			if resp.Pagination != nil && resp.Pagination.HasMore {
				fmt.Printf("\n(%d of %d shown)\n", len(data), resp.Pagination.Total)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Filter by job status (PENDING, ERROR, SUBSCRIBED, ...)")
	return cmd
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <account_id>",
		Short: "Show one account's job record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			resp, err := client.Get("/api/v1/accounts/" + id)
			if err != nil {
				return fmt.Errorf("get account: %w", err)
			}

			var data map[string]any
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			status, _ := data["status"].(string)
			attempts, _ := data["attempts"].(float64)

			fmt.Printf("Account: %s\n", id)
			fmt.Printf("  Status:   %s\n", status)
			fmt.Printf("  Attempts: %d\n", int(attempts))

			if step, ok := data["last_failed_step"].(string); ok && step != "" {
				fmt.Printf("  Failed step: %s\n", step)
			}
			if msg, ok := data["last_error"].(string); ok && msg != "" {
				fmt.Printf("  Last error:  %s\n", msg)
			}
			if ref, ok := data["resource_ref"].(string); ok && ref != "" {
				fmt.Printf("  Resource:    %s\n", ref)
			}
			if createdAt, ok := data["created_at"].(string); ok {
				fmt.Printf("  Created:  %s\n", createdAt)
			}
			if updatedAt, ok := data["updated_at"].(string); ok {
				fmt.Printf("  Updated:  %s\n", updatedAt)
			}
			return nil
		},
	}
}
