package cmd

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var follow bool

var logsCmd = &cobra.Command{
	Use:   "logs [job_name]",
	Short: "Stream logs for a job",
	Long:  `Print the output of the job's container. Logs are only available until the operator deletes the pod.`,
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		name := args[0]

		client, err := clientFromConfig()
		if err != nil {
			cmd.Printf("Failed to create client: %v\n", err)
			return
		}

		// Trap Ctrl+C to exit gracefully
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		stream, err := client.StreamLogs(ctx, name, follow)
		if err != nil {
			if apiErr, ok := err.(*APIError); ok {
				cmd.Printf("Error fetching logs (%d): %s\n", apiErr.StatusCode, apiErr.Message)
			} else {
				cmd.Printf("Error fetching logs: %v\n", err)
			}
			return
		}
		defer stream.Close()

		if _, err := io.Copy(cmd.OutOrStdout(), stream); err != nil && ctx.Err() == nil {
			cmd.Printf("\nError reading logs: %v\n", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
}
