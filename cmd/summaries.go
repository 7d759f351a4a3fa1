package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chkclabs/chkc"
)

var summariesCmd = &cobra.Command{
	Use:   "summaries",
	Short: "Print the effective summary database as YAML",
	Run: func(cmd *cobra.Command, args []string) {
		table, err := chkc.NewTable(summariesPath)
		if err != nil {
			logger.Error("Failed to load summary database", zap.Error(err))
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}

		out, err := table.Dump()
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Print(string(out))
	},
}
