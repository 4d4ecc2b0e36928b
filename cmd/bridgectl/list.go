package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/dwarvesf/secret-bridge/internal/model"
)

var listInFlight bool

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List operations from the daemon's local history",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ops, err := newClient().ListOperations(listInFlight)
		if err != nil {
			return err
		}

		if jsonOutput {
			data, err := json.MarshalIndent(ops, "", "  ")
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}

		displayList(ops)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().BoolVar(&listInFlight, "inflight", false, "Only operations still waiting on a chain")
}

func displayList(ops []model.OperationSummary) {
	if len(ops) == 0 {
		color.Yellow("No operations")
		return
	}

	fmt.Printf("\n%-38s %-12s %-24s %s\n", "ID", "MODE", "AMOUNT", "STATUS")
	fmt.Println(strings.Repeat("-", 90))
	for _, s := range ops {
		status := "-"
		if s.Operation != nil {
			status = coloredStatus(s.Operation.Status)
		}
		fmt.Printf("%-38s %-12s %-24s %s\n", s.ID, s.Mode, s.Amount+" "+s.FromToken, status)
	}
	fmt.Println()
}
