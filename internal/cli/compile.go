package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"cuelang.org/go/cue/token"
	"github.com/spf13/cobra"

	"github.com/roach88/chartflow/internal/compiler"
	"github.com/roach88/chartflow/internal/ir"
)

// Command-level error code for output file failures.
const ErrCodeWriteFailed = "E008"

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompilationResult holds the compiled charts.
type CompilationResult struct {
	Charts []ir.ChartSpec `json:"charts"`
}

// ChartStats summarizes one compiled chart.
type ChartStats struct {
	Name   string
	Layers int
	Params int
	Stages int
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <charts-dir>",
		Short: "Compile CUE chart declarations to IR",
		Long: `Compile the CUE chart declarations of a package to the chart IR.

Every chart under chart: is compiled. All errors are reported, not just the
first. With --output the IR is written as JSON.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors - we handle our own error output
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "output file path")

	return cmd
}

func runCompile(opts *CompileOptions, chartsDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	loadResult, loadErrors := compiler.LoadDir(chartsDir, compiler.LoadModeCollectAll)

	// Directory not found, no files, CUE build failure.
	if loadResult == nil && len(loadErrors) > 0 {
		code, message := parseCompileError(loadErrors[0])
		return outputCompileError(formatter, code, message, nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, chartsDir)
	for _, chart := range loadResult.Charts {
		formatter.VerboseLog("Compiled chart: %s", chart.Name)
	}

	if len(loadErrors) > 0 {
		return outputCompileErrors(formatter, loadErrors)
	}

	result := &CompilationResult{Charts: loadResult.Charts}

	if opts.Output != "" {
		if err := writeIRToFile(result, opts.Output); err != nil {
			return outputCompileError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
		}
	}

	return outputCompileSuccess(formatter, result, opts.Output)
}

// chartStats counts the layers, parameters and pipeline stages of a chart,
// including those declared on layers.
func chartStats(spec ir.ChartSpec) ChartStats {
	stats := ChartStats{
		Name:   spec.Name,
		Layers: len(spec.Layers),
		Params: len(spec.Params),
		Stages: len(spec.Transform),
	}
	for _, l := range spec.Layers {
		stats.Params += len(l.Params)
		stats.Stages += len(l.Transform)
	}
	return stats
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, outputFile string) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	fmt.Fprintf(w, "\u2713 Compiled %d chart(s)\n\n", len(result.Charts))
	for _, chart := range result.Charts {
		stats := chartStats(chart)
		fmt.Fprintf(w, "  %s: %d layer(s), %d param(s), %d stage(s)\n",
			stats.Name, stats.Layers, stats.Params, stats.Stages)
	}
	fmt.Fprintln(w)

	if outputFile != "" {
		fmt.Fprintf(w, "Wrote chart IR to %s\n", outputFile)
	}
	return nil
}

// outputCompileError outputs a single compilation error.
func outputCompileError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	// Compilation errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputCompileErrors outputs multiple compilation errors.
func outputCompileErrors(formatter *OutputFormatter, errs []error) error {
	if formatter.Format == "json" {
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			code, message := parseCompileError(err)
			cliErrors[i] = CLIError{Code: code, Message: message}
		}

		response := CLIResponse{
			Status: "error",
			Error:  &cliErrors[0],
			Data:   cliErrors, // Include all errors in data
		}

		if err := writeResponse(formatter.Writer, response); err != nil {
			return err
		}
		return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "\u2717 Compilation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		code, message := parseCompileError(err)
		if pos := errorPos(err); pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n", pos.Filename(), pos.Line(), pos.Column())
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", code, message)
	}

	return NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
}

// parseCompileError extracts error code and message from an error.
func parseCompileError(err error) (string, string) {
	var loadErr *compiler.LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return compiler.ErrCodeCompile, compileErr.Message
	}
	return compiler.ErrCodeGeneric, err.Error()
}

// errorPos returns the CUE position carried by a load or compile error.
func errorPos(err error) token.Pos {
	var loadErr *compiler.LoadError
	if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
		return loadErr.Pos
	}
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return compileErr.Pos
	}
	return token.NoPos
}

// writeIRToFile writes the compilation result to a file as indented JSON.
func writeIRToFile(result *CompilationResult, filename string) error {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling IR: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}
	return nil
}
