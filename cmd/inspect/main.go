// inspect is a developer tool for poking at the data files the server
// consumes: dump a report grid, parse a report, or parse a forward log.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/username/quantfolio/backend/src/parsers"
	"github.com/username/quantfolio/backend/src/parsers/backtest"
	"github.com/username/quantfolio/backend/src/parsers/forward"
)

var maxRows int

func main() {
	rootCmd := &cobra.Command{
		Use:   "inspect",
		Short: "Inspect backtest reports and forward-test logs",
	}

	gridCmd := &cobra.Command{
		Use:   "grid <file.xlsx>",
		Short: "Dump the raw cell grid of a report spreadsheet",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			grid, err := parsers.ReadGrid(args[0])
			if err != nil {
				return err
			}
			for i, row := range grid {
				if maxRows > 0 && i >= maxRows {
					fmt.Printf("... %d more rows\n", len(grid)-maxRows)
					break
				}
				fmt.Printf("%4d | ", i)
				for j, cell := range row {
					if j > 0 {
						fmt.Print(" | ")
					}
					fmt.Print(cell)
				}
				fmt.Println()
			}
			return nil
		},
	}
	gridCmd.Flags().IntVar(&maxRows, "rows", 0, "limit output to the first N rows (0 = all)")

	reportCmd := &cobra.Command{
		Use:   "report <file.xlsx>",
		Short: "Parse a backtest report and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			grid, err := parsers.ReadGrid(args[0])
			if err != nil {
				return err
			}
			report, err := backtest.NewParser().Parse(grid)
			if err != nil {
				return err
			}
			return printJSON(report)
		},
	}

	forwardCmd := &cobra.Command{
		Use:   "forward <file.csv>",
		Short: "Parse a forward-test log and print the result as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer file.Close()
			data, err := forward.NewParser().Parse(file)
			if err != nil {
				return err
			}
			return printJSON(data)
		},
	}

	rootCmd.AddCommand(gridCmd, reportCmd, forwardCmd)
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func printJSON(v interface{}) error {
	encoded, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}
