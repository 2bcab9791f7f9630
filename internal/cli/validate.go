package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/treestore/internal/compiler"
	"github.com/roach88/treestore/internal/ir"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid  bool                       `json:"valid"`
	Stores []StoreSummary             `json:"stores,omitempty"`
	Errors []compiler.ValidationError `json:"errors,omitempty"`
}

// StoreSummary identifies a validated store definition.
type StoreSummary struct {
	Name string `json:"name"`
	Hash string `json:"hash"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <specs-dir>",
		Short: "Validate store definitions without emitting output",
		Long: `Validate CUE store definitions.

Compiles every store under the top-level "store" struct and checks case
operations, paths, sources and async loaders. Faster than compile for
development feedback.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, specsDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}

	loadResult, loadErrors := LoadSpecs(specsDir, LoadModeCollectAll)

	// Handle load errors (directory not found, no files, etc.)
	if loadResult == nil && len(loadErrors) > 0 {
		var loadErr *LoadError
		if errors.As(loadErrors[0], &loadErr) {
			return outputValidateError(formatter, loadErr.Code, loadErr.Message, nil)
		}
		return outputValidateError(formatter, ErrCodeGeneric, loadErrors[0].Error(), nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, specsDir)

	var validationErrors []compiler.ValidationError
	for _, err := range loadErrors {
		code, message := parseCompileError(err)
		validationErrors = append(validationErrors, compiler.ValidationError{
			Field:   "load",
			Message: message,
			Code:    code,
		})
	}

	summaries, storeErrors := validateStores(loadResult.Stores, formatter)
	validationErrors = append(validationErrors, storeErrors...)

	if len(validationErrors) > 0 {
		return outputValidationErrors(formatter, validationErrors)
	}

	return outputValidateSuccess(formatter, summaries)
}

// validateStores runs compiler.Validate on each store. Field names are
// prefixed with the store name.
func validateStores(stores []*ir.StoreSpec, formatter *OutputFormatter) ([]StoreSummary, []compiler.ValidationError) {
	var (
		summaries []StoreSummary
		allErrors []compiler.ValidationError
	)

	for _, spec := range stores {
		formatter.VerboseLog("Validating store: %s", spec.Name)

		errs := compiler.Validate(spec)
		for _, e := range errs {
			e.Field = fmt.Sprintf("store.%s.%s", spec.Name, e.Field)
			allErrors = append(allErrors, e)
		}
		if len(errs) > 0 {
			continue
		}

		hash, err := ir.SpecHash(spec)
		if err != nil {
			allErrors = append(allErrors, compiler.ValidationError{
				Field:   "store." + spec.Name,
				Message: fmt.Sprintf("hashing definition: %v", err),
				Code:    ErrCodeGeneric,
			})
			continue
		}
		formatter.VerboseLog("  %s %s", spec.Name, hash)
		summaries = append(summaries, StoreSummary{Name: spec.Name, Hash: hash})
	}

	return summaries, allErrors
}

func outputValidateSuccess(formatter *OutputFormatter, stores []StoreSummary) error {
	if formatter.JSON() {
		return formatter.Success(ValidationResult{Valid: true, Stores: stores})
	}
	fmt.Fprintf(formatter.Writer, "✓ All specs valid (%d store(s))\n", len(stores))
	return nil
}

// outputValidateError reports a load failure, which is a command error.
func outputValidateError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

func outputValidationErrors(formatter *OutputFormatter, errs []compiler.ValidationError) error {
	failed := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
	if formatter.JSON() {
		first := CLIError{Code: errs[0].Code, Message: errs[0].Message}
		if err := formatter.Failure(first, ValidationResult{Valid: false, Errors: errs}); err != nil {
			return err
		}
		return failed
	}

	fmt.Fprintln(formatter.Writer, "✗ Validation failed")
	fmt.Fprintln(formatter.Writer)
	for _, err := range errs {
		fmt.Fprintf(formatter.Writer, "%s\n  %s: %s\n\n", err.Field, err.Code, err.Message)
	}
	return failed
}

// ValidateSpecsDir validates all store definitions in a directory.
func ValidateSpecsDir(specsDir string) ([]compiler.ValidationError, error) {
	loadResult, loadErrors := LoadSpecs(specsDir, LoadModeFailFast)
	if len(loadErrors) > 0 {
		return nil, loadErrors[0]
	}

	silent := &OutputFormatter{Format: "text"}
	_, errs := validateStores(loadResult.Stores, silent)
	return errs, nil
}
