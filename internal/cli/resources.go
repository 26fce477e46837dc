package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newResourcesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resources",
		Short: "Manage the shared resource pool",
	}
	cmd.AddCommand(
		newResourcesAddCmd(),
		newResourcesListCmd(),
		newResourcesEnableCmd(true),
		newResourcesEnableCmd(false),
		newResourcesSetLimitCmd(),
		newResourcesResetUsageCmd(),
	)
	return cmd
}

func newResourcesAddCmd() *cobra.Command {
	var kind string
	var limit int

	cmd := &cobra.Command{
		Use:   "add <ref>",
		Short: "Add a resource to the pool",
		Long:  "Add a resource to the pool. The ref is a masked display reference, not the raw secret.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Post("/api/v1/resources/", map[string]any{
				"kind":        kind,
				"ref":         args[0],
				"daily_limit": limit,
			})
			if err != nil {
				return fmt.Errorf("add resource: %w", err)
			}

			var data map[string]any
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}
			id, _ := data["id"].(string)
			fmt.Printf("Resource added: %s\n", id)
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "payment_card", "Resource kind (payment_card, contact_address)")
	cmd.Flags().IntVar(&limit, "limit", 3, "Daily assignment limit")
	return cmd
}

func newResourcesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List pool resources with today's usage",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get("/api/v1/resources/")
			if err != nil {
				return fmt.Errorf("list resources: %w", err)
			}

			var data []map[string]any
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			if len(data) == 0 {
				fmt.Println("Pool is empty.")
				return nil
			}

			fmt.Printf("%-14s  %-16s  %-20s  %-10s  %s\n", "ID", "KIND", "REF", "USAGE", "ENABLED")
			fmt.Printf("%-14s  %-16s  %-20s  %-10s  %s\n", "--", "----", "---", "-----", "-------")
			for _, res := range data {
				id, _ := res["id"].(string)
				kind, _ := res["kind"].(string)
				ref, _ := res["ref"].(string)
				used, _ := res["daily_usage"].(float64)
				limit, _ := res["daily_limit"].(float64)
				enabled, _ := res["enabled"].(bool)
				fmt.Printf("%-14s  %-16s  %-20s  %-10s  %t\n",
					id, kind, ref, fmt.Sprintf("%d/%d", int(used), int(limit)), enabled)
			}
			return nil
		},
	}
}

func newResourcesEnableCmd(enable bool) *cobra.Command {
	use, short := "enable <id>", "Return a resource to rotation"
	if !enable {
		use, short = "disable <id>", "Take a resource out of rotation"
	}
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := client.Patch("/api/v1/resources/"+args[0], map[string]any{
				"enabled": enable,
			})
			if err != nil {
				return fmt.Errorf("update resource: %w", err)
			}
			if enable {
				fmt.Printf("Resource %s enabled\n", args[0])
			} else {
				fmt.Printf("Resource %s disabled\n", args[0])
			}
			return nil
		},
	}
}

func newResourcesSetLimitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set-limit <id> <limit>",
		Short: "Change a resource's daily limit",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid limit %q", args[1])
			}
			_, err = client.Patch("/api/v1/resources/"+args[0], map[string]any{
				"daily_limit": limit,
			})
			if err != nil {
				return fmt.Errorf("update resource: %w", err)
			}
			fmt.Printf("Resource %s daily limit set to %d\n", args[0], limit)
			return nil
		},
	}
}

func newResourcesResetUsageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset-usage",
		Short: "Reset today's usage counters for the whole pool",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Post("/api/v1/resources/reset-usage", nil)
			if err != nil {
				return fmt.Errorf("reset usage: %w", err)
			}

			var data map[string]any
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}
			day, _ := data["day"].(string)
			fmt.Printf("Usage counters reset for %s\n", day)
			return nil
		},
	}
}
