package cli

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// batchView mirrors the server's batch snapshot shape.
type batchView struct {
	ID          string   `json:"id"`
	State       string   `json:"state"`
	AccountIDs  []string `json:"account_ids"`
	CreatedAt   string   `json:"created_at"`
	CompletedAt string   `json:"completed_at"`
	Error       string   `json:"error"`
	Results     map[string]struct {
		Outcome        string `json:"outcome"`
		FinalStatus    string `json:"final_status"`
		FailedStep     string `json:"failed_step"`
		ResourcesTried int    `json:"resources_tried"`
		Message        string `json:"message"`
	} `json:"results"`
}

func newRunCmd() *cobra.Command {
	var detach bool
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "run <account_id>...",
		Short: "Run a provisioning batch",
		Long: `Start a batch over the given accounts and wait for it to finish,
then print one result line per account. With --detach the command returns
immediately and prints the batch id.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Post("/api/v1/batches/", map[string]any{
				"account_ids": args,
			})
			if err != nil {
				return fmt.Errorf("start batch: %w", err)
			}

			var batch batchView
			if err := json.Unmarshal(resp.Data, &batch); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}
			fmt.Printf("Batch started: %s (%d accounts)\n", batch.ID, len(args))

			if detach {
				fmt.Printf("Follow with: enrollctl batches --id %s\n", batch.ID)
				return nil
			}

			for {
				time.Sleep(interval)
				resp, err := client.Get("/api/v1/batches/" + batch.ID)
				if err != nil {
					return fmt.Errorf("poll batch: %w", err)
				}
				if err := json.Unmarshal(resp.Data, &batch); err != nil {
					return fmt.Errorf("parse response: %w", err)
				}
				if batch.State != "RUNNING" {
					break
				}
			}

			printBatch(&batch)
			return nil
		},
	}

	cmd.Flags().BoolVar(&detach, "detach", false, "Start the batch and return without waiting")
	cmd.Flags().DurationVar(&interval, "poll-interval", 500*time.Millisecond, "Polling interval while waiting")
	return cmd
}

func printBatch(batch *batchView) {
	fmt.Printf("Batch %s: %s\n", batch.ID, batch.State)
	if batch.Error != "" {
		fmt.Printf("  Error: %s\n", batch.Error)
	}
	if len(batch.Results) == 0 {
		return
	}

	fmt.Printf("%-24s  %-10s  %-12s  %s\n", "ACCOUNT", "OUTCOME", "STATUS", "DETAIL")
	fmt.Printf("%-24s  %-10s  %-12s  %s\n", "-------", "-------", "------", "------")
	for _, id := range batch.AccountIDs {
		res, ok := batch.Results[id]
		if !ok {
			continue
		}
		detail := res.Message
		if res.FailedStep != "" {
			detail = fmt.Sprintf("%s (step %s)", res.Message, res.FailedStep)
		}
		fmt.Printf("%-24s  %-10s  %-12s  %s\n", id, res.Outcome, res.FinalStatus, detail)
	}
}

func newBatchesCmd() *cobra.Command {
	var id string

	cmd := &cobra.Command{
		Use:   "batches",
		Short: "List batches, or show one batch with --id",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id != "" {
				resp, err := client.Get("/api/v1/batches/" + id)
				if err != nil {
					return fmt.Errorf("get batch: %w", err)
				}
				var batch batchView
				if err := json.Unmarshal(resp.Data, &batch); err != nil {
					return fmt.Errorf("parse response: %w", err)
				}
				printBatch(&batch)
				return nil
			}

			resp, err := client.Get("/api/v1/batches/")
			if err != nil {
				return fmt.Errorf("list batches: %w", err)
			}
			var batches []batchView
			if err := json.Unmarshal(resp.Data, &batches); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			if len(batches) == 0 {
				fmt.Println("No batches found.")
				return nil
			}

			fmt.Printf("%-44s  %-10s  %-10s  %s\n", "ID", "STATE", "ACCOUNTS", "CREATED")
			fmt.Printf("%-44s  %-10s  %-10s  %s\n", "--", "-----", "--------", "-------")
			for _, b := range batches {
				fmt.Printf("%-44s  %-10s  %-10d  %s\n", b.ID, b.State, len(b.AccountIDs), b.CreatedAt)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Show a single batch with per-account results")
	return cmd
}

func newStopCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stop <batch_id>",
		Short: "Request cooperative stop of a running batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := client.Delete("/api/v1/batches/" + args[0])
			if err != nil {
				return fmt.Errorf("stop batch: %w", err)
			}
			fmt.Printf("Stop requested for %s\n", args[0])
			fmt.Println("Steps already executing run to completion; everything else is reported as stopped.")
			return nil
		},
	}
}
