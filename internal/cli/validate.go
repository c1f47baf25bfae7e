package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/chartflow/internal/compiler"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                       `json:"valid"`
	Charts int                        `json:"charts"`
	Errors []compiler.ValidationError `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <charts-dir>",
		Short: "Validate chart declarations",
		Long: `Compile every chart of a CUE package and check it against the
semantic rules: unique layer names, known parameters, supported stage
kinds and encoding channels.

Exit codes:
  0 - All charts valid
  1 - One or more charts invalid
  2 - Command error (directory not found, CUE does not build)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, chartsDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	count, validationErrors, err := validateCharts(chartsDir, formatter)
	if err != nil {
		code, message := parseCompileError(err)
		return outputValidateError(formatter, code, message, nil)
	}

	if len(validationErrors) > 0 {
		return outputValidationErrors(formatter, count, validationErrors)
	}
	return outputValidateSuccess(formatter, count)
}

// validateCharts loads every chart of the package at dir and validates the
// ones that compile, returning how many compiled. Charts that fail to
// compile are reported as validation errors. The returned error is set only
// when the package itself cannot be loaded.
func validateCharts(dir string, formatter *OutputFormatter) (int, []compiler.ValidationError, error) {
	loadResult, loadErrors := compiler.LoadDir(dir, compiler.LoadModeCollectAll)
	if loadResult == nil && len(loadErrors) > 0 {
		return 0, nil, loadErrors[0]
	}
	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, dir)

	var all []compiler.ValidationError
	for _, err := range loadErrors {
		code, message := parseCompileError(err)
		line := 0
		if pos := errorPos(err); pos.IsValid() {
			line = pos.Line()
		}
		all = append(all, compiler.ValidationError{
			Field:   "load",
			Message: message,
			Code:    code,
			Line:    line,
		})
	}

	for _, chart := range loadResult.Charts {
		formatter.VerboseLog("Validating chart: %s", chart.Name)
		for _, v := range compiler.Validate(chart) {
			v.Field = chart.Name + "." + v.Field
			all = append(all, v)
		}
	}
	return len(loadResult.Charts), all, nil
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, count int) error {
	if formatter.Format == "json" {
		return formatter.Success(ValidationResult{Valid: true, Charts: count})
	}

	fmt.Fprintf(formatter.Writer, "\u2713 %d chart(s) valid\n", count)
	return nil
}

// outputValidateError outputs a single load error.
func outputValidateError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	// Load errors are command-level errors (exit code 2)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors outputs multiple validation errors.
func outputValidationErrors(formatter *OutputFormatter, count int, errs []compiler.ValidationError) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data: ValidationResult{
				Valid:  false,
				Charts: count,
				Errors: errs,
			},
			Error: &CLIError{
				Code:    errs[0].Code,
				Message: errs[0].Message,
			},
		}

		if err := writeResponse(formatter.Writer, response); err != nil {
			return err
		}

		// Validation failures = exit code 1 (test/validation failure)
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	}

	fmt.Fprintln(formatter.Writer, "\u2717 Validation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		if err.Line > 0 {
			fmt.Fprintf(formatter.Writer, "line %d\n", err.Line)
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s: %s\n\n", err.Code, err.Field, err.Message)
	}

	// Validation failures = exit code 1 (test/validation failure)
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
