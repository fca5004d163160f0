package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/forgebuild/forge/internal/explainer"
)

var (
	explainTaskFlag     string
	explainCompilerFlag string
	explainArgsFlag     []string
	explainExitCodeFlag int
)

var explainCmd = &cobra.Command{
	Use:   "explain [OUTPUT_FILE]",
	Short: "Ask an LLM provider to diagnose a captured compile/link failure",
	Long: `explain sends a captured task failure (task label, compiler, argv, exit
code, captured output) to an LLM provider and prints its diagnosis. It is
strictly opt-in: forge never calls out to a network during an ordinary
build, only when this subcommand is invoked explicitly.

OUTPUT_FILE holds the captured output text; omit it (or pass "-") to read
from stdin, e.g.: forge 2>&1 | forge explain -t main.cpp`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var r io.Reader = os.Stdin
		if len(args) == 1 && args[0] != "-" {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			r = f
		}
		output, err := io.ReadAll(r)
		if err != nil {
			return fmt.Errorf("reading captured output: %w", err)
		}

		f := explainer.Failure{
			Task:     explainTaskFlag,
			Compiler: explainCompilerFlag,
			Args:     explainArgsFlag,
			ExitCode: explainExitCodeFlag,
			Output:   strings.TrimRight(string(output), "\n"),
		}

		diagnosis, err := explainer.Explain(globalCtx, f, nil)
		if err != nil {
			return err
		}
		fmt.Println(diagnosis)
		return nil
	},
}

func init() {
	explainCmd.Flags().StringVarP(&explainTaskFlag, "task", "t", "", "Label of the failed task (e.g. main.cpp or hello:link)")
	explainCmd.Flags().StringVar(&explainCompilerFlag, "compiler", "c++", "Compiler, linker, or archiver that was invoked")
	explainCmd.Flags().StringSliceVar(&explainArgsFlag, "args", nil, "Argument list that was run")
	explainCmd.Flags().IntVar(&explainExitCodeFlag, "exit-code", 1, "Process exit status")
}
