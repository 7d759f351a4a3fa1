package cmd

import (
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	summariesPath string
	timeout       time.Duration
	verbose       bool

	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:              "chkc [sources...]",
	Short:            "chkc - an annotation-driven null, bounds, and lifetime checker for C",
	TraverseChildren: true, // Prioritize subcommands
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if verbose {
			logger, err = zap.NewDevelopment()
		} else {
			logger = zap.NewNop()
		}
		return err
	},
	Run: func(cmd *cobra.Command, args []string) {
		// no subcommand
		if len(args) == 0 {
			// display help when only 'chkc' is entered
			_ = cmd.Help()
			return
		}
		// Format: chkc [src1 src2 ...] => behaves like the analyze subcommand
		analyzeCmd.Run(analyzeCmd, args)
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&summariesPath, "summaries", "", "Path to a YAML summary database merged over the builtin libc summaries")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute, "Set a timeout for the analysis")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log worst-case assumptions and engine progress")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(summariesCmd)
}
