package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chkclabs/chkc"
	"github.com/chkclabs/chkc/internal/report"
)

var (
	jsonOutput bool
	outPath    string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze [sources...]",
	Short: "Analyze C sources and report open proof obligations",
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) == 0 {
			fmt.Println("error: Please provide C source files or directories")
			os.Exit(1)
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		engine, err := chkc.New(summariesPath, logger)
		if err != nil {
			logger.Error("Failed to initialize analysis engine", zap.Error(err))
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}

		diags, err := chkc.ProcessPaths(ctx, engine, args)
		if err != nil {
			logger.Error("Error processing files", zap.Error(err))
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}

		if err := printDiagnostics(diags, jsonOutput, outPath); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}

		if len(diags) > 0 {
			os.Exit(1)
		}
	},
}

func init() {
	analyzeCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output diagnostics in JSON format")
	analyzeCmd.Flags().StringVarP(&outPath, "output", "o", "", "Write diagnostics to a file instead of stdout")
}

func printDiagnostics(diags []report.Diagnostic, asJSON bool, path string) error {
	var out io.Writer = os.Stdout
	color := true
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("error creating output file: %w", err)
		}
		defer f.Close()
		out = f
		color = false
	}

	if asJSON {
		return report.NewJSONWriter(out).Write(diags)
	}
	var opts []report.TextOption
	if color {
		opts = append(opts, report.WithColor())
	}
	return report.NewTextWriter(out, opts...).Write(diags)
}
