package main

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwarvesf/secret-bridge/internal/handler/operation"
	"github.com/dwarvesf/secret-bridge/internal/model"
)

var (
	watchStatus   bool
	watchInterval int
)

var statusCmd = &cobra.Command{
	Use:   "status <operation-id>",
	Short: "Show the status of an operation",
	Long: `Show an operation as the daemon sees it, with confirmation progress while
it waits on the Ethereum side.

Examples:
  bridgectl status 3f2a9c1e-...
  bridgectl status 3f2a9c1e-... --watch --interval 10`,
	Args: cobra.ExactArgs(1),
	RunE: runStatus,
}

var abandonCmd = &cobra.Command{
	Use:   "abandon <operation-id>",
	Short: "Abandon an operation that was not submitted yet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().Abandon(args[0]); err != nil {
			return err
		}
		color.Yellow("Operation %s abandoned", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd, abandonCmd)

	statusCmd.Flags().BoolVarP(&watchStatus, "watch", "w", false, "Watch until the operation is confirmed or failed")
	statusCmd.Flags().IntVar(&watchInterval, "interval", 5, "Polling interval in seconds (when watching)")
}

func runStatus(cmd *cobra.Command, args []string) error {
	c := newClient()
	id := args[0]

	if !watchStatus {
		resp, err := c.GetOperation(id)
		if err != nil {
			return err
		}
		return printOperation(resp)
	}

	if jsonOutput {
		return fmt.Errorf("watch mode not supported with JSON output")
	}

	fmt.Printf("\nWatching operation %s\n", color.CyanString(id))
	fmt.Printf("Checking every %d seconds. Press Ctrl+C to stop.\n", watchInterval)

	ticker := time.NewTicker(time.Duration(watchInterval) * time.Second)
	defer ticker.Stop()
	for {
		resp, err := c.GetOperation(id)
		if err != nil {
			color.Red("Error: %v", err)
		} else {
			displayOperation(resp)
			if resp.Operation.Status.IsTerminal() {
				return nil
			}
		}

		select {
		case <-cmd.Context().Done():
			return nil
		case <-ticker.C:
		}
	}
}

func printOperation(resp *operation.OperationResponse) error {
	if jsonOutput {
		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
		return nil
	}
	displayOperation(resp)
	return nil
}

func displayOperation(resp *operation.OperationResponse) {
	op := resp.Operation

	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("                      BRIDGE OPERATION")
	fmt.Println(strings.Repeat("=", 70))

	fmt.Printf("\n  Operation:       %s\n", color.CyanString(op.ID))
	fmt.Printf("  Direction:       %s\n", op.Direction)
	fmt.Printf("  Amount:          %s %s\n", op.AmountBigInt().String(), op.Asset.Symbol)
	fmt.Printf("  Status:          %s\n", coloredStatus(op.Status))
	if op.ApproveTxHash != "" {
		fmt.Printf("  Approve Tx:      %s\n", color.HiBlackString(op.ApproveTxHash))
	}
	if op.SourceTxHash != "" {
		fmt.Printf("  Source Tx:       %s\n", color.HiBlackString(op.SourceTxHash))
	}
	if op.DestTxHash != "" {
		fmt.Printf("  Destination Tx:  %s\n", color.HiBlackString(op.DestTxHash))
	}
	if resp.Confirmations != nil {
		fmt.Printf("  Confirmations:   %d/%d\n", resp.Confirmations.Observed, resp.Confirmations.Required)
	}
	fmt.Printf("  Last Updated:    %s\n", op.LastUpdatedAt.Format("2006-01-02 15:04:05"))
	if issue := resp.Issue; issue != nil {
		line := issue.Kind
		if issue.TxHash != "" {
			line += " (tx " + issue.TxHash + ")"
		}
		if issue.Recoverable {
			fmt.Printf("  Warning:         %s\n", color.YellowString(line))
		} else {
			fmt.Printf("  Error:           %s\n", color.RedString(line))
		}
	}
	if resp.Source == "mirror" {
		fmt.Printf("  %s\n", color.HiBlackString("from local history, not tracked live"))
	}

	fmt.Println("\n" + strings.Repeat("=", 70) + "\n")
}

func coloredStatus(status model.OperationStatus) string {
	s := strings.ToUpper(string(status))

	switch status {
	case model.OperationStatusConfirmed:
		return color.GreenString(s)
	case model.OperationStatusFailed:
		return color.RedString(s)
	case model.OperationStatusAwaitingApproval:
		return color.MagentaString(s)
	default:
		return color.YellowString(s)
	}
}
