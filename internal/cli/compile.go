package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/treestore/internal/compiler"
	"github.com/roach88/treestore/internal/ir"
)

// CompileOptions holds flags for the compile command.
type CompileOptions struct {
	*RootOptions
	Output string // output file path
}

// CompiledStore is a store definition together with its content hash.
type CompiledStore struct {
	Hash string `json:"hash"`
	*ir.StoreSpec
}

// CompilationResult holds the compiled store definitions.
type CompilationResult struct {
	IRVersion string          `json:"ir_version"`
	Stores    []CompiledStore `json:"stores"`
}

// CompilationStats holds summary statistics.
type CompilationStats struct {
	StoreCount int
	CaseCount  int
	AsyncCount int
}

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CompileOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "compile <specs-dir>",
		Short: "Compile CUE store definitions to JSON",
		Long: `Compile CUE store definitions to their JSON form.

The compiler parses CUE files, validates every store, and outputs each
definition with its content hash.`,
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

func runCompile(opts *CompileOptions, specsDir string, cmd *cobra.Command) error {
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
			return outputCompileError(formatter, loadErr.Code, loadErr.Message, nil)
		}
		return outputCompileError(formatter, ErrCodeGeneric, loadErrors[0].Error(), nil)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", loadResult.FileCount, specsDir)

	errs := loadErrors
	result := &CompilationResult{IRVersion: ir.IRVersion}
	for _, spec := range loadResult.Stores {
		formatter.VerboseLog("Compiling store: %s", spec.Name)

		if verrs := compiler.Validate(spec); len(verrs) > 0 {
			for _, v := range verrs {
				errs = append(errs, &LoadError{
					Code:    v.Code,
					Message: fmt.Sprintf("store.%s.%s: %s", spec.Name, v.Field, v.Message),
				})
			}
			continue
		}

		hash, err := ir.SpecHash(spec)
		if err != nil {
			errs = append(errs, &LoadError{
				Code:    ErrCodeGeneric,
				Message: fmt.Sprintf("store.%s: hashing definition: %v", spec.Name, err),
			})
			continue
		}
		result.Stores = append(result.Stores, CompiledStore{Hash: hash, StoreSpec: spec})
	}

	if len(errs) > 0 {
		return outputCompileErrors(formatter, errs)
	}

	stats := calculateStats(result)

	if opts.Output != "" {
		if err := writeIRToFile(result, opts.Output); err != nil {
			return outputCompileError(formatter, ErrCodeWriteFailed, fmt.Sprintf("writing output file: %v", err), nil)
		}
	}

	return outputCompileSuccess(formatter, result, stats, opts.Output)
}

// calculateStats computes summary statistics from compilation result.
func calculateStats(result *CompilationResult) CompilationStats {
	stats := CompilationStats{StoreCount: len(result.Stores)}
	for _, s := range result.Stores {
		stats.CaseCount += len(s.Cases)
		stats.AsyncCount += len(s.Async)
	}
	return stats
}

// outputCompileSuccess outputs successful compilation results.
func outputCompileSuccess(formatter *OutputFormatter, result *CompilationResult, stats CompilationStats, outputFile string) error {
	if formatter.JSON() {
		return formatter.Success(result)
	}

	fmt.Fprintf(formatter.Writer, "✓ Compiled %d store(s), %d case(s), %d async action(s)\n\n",
		stats.StoreCount, stats.CaseCount, stats.AsyncCount)

	fmt.Fprintln(formatter.Writer, "Stores:")
	for _, s := range result.Stores {
		fmt.Fprintf(formatter.Writer, "  %s: %d case(s), %d async  %s\n",
			s.Name, len(s.Cases), len(s.Async), shortHash(s.Hash))
		for _, a := range s.Async {
			fmt.Fprintf(formatter.Writer, "    %s → %s\n", a.Type, a.Loader)
		}
	}
	fmt.Fprintln(formatter.Writer)

	if outputFile != "" {
		fmt.Fprintf(formatter.Writer, "Wrote compiled stores to %s\n", outputFile)
	}

	return nil
}

// shortHash trims a hex hash for display.
func shortHash(h string) string {
	const n = 12
	if len(h) > n {
		return h[:n]
	}
	return h
}

// outputCompileError outputs a single compilation error.
func outputCompileError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Error(code, message, details)
	// Compilation errors are command-level errors (exit code 2)
	return WrapExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message), nil)
}

// outputCompileErrors outputs multiple compilation errors.
func outputCompileErrors(formatter *OutputFormatter, errs []error) error {
	failed := NewExitError(ExitCommandError, fmt.Sprintf("compilation failed with %d error(s)", len(errs)))
	if formatter.JSON() {
		cliErrors := make([]CLIError, len(errs))
		for i, err := range errs {
			code, message := parseCompileError(err)
			cliErrors[i] = CLIError{Code: code, Message: message}
		}
		if err := formatter.Failure(cliErrors[0], cliErrors); err != nil {
			return err
		}
		return failed
	}

	// Text format
	fmt.Fprintln(formatter.Writer, "✗ Compilation failed")
	fmt.Fprintln(formatter.Writer)

	for _, err := range errs {
		code, message := parseCompileError(err)
		var loadErr *LoadError
		if errors.As(err, &loadErr) && loadErr.Pos.IsValid() {
			fmt.Fprintf(formatter.Writer, "%s:%d:%d\n",
				loadErr.Pos.Filename(),
				loadErr.Pos.Line(),
				loadErr.Pos.Column())
		}
		fmt.Fprintf(formatter.Writer, "  %s: %s\n\n", code, message)
	}
	return failed
}

// parseCompileError extracts error code and message from an error.
func parseCompileError(err error) (string, string) {
	var loadErr *LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	var compileErr *compiler.CompileError
	if errors.As(err, &compileErr) {
		return MapFieldToErrorCode(compileErr.Field), compileErr.Message
	}
	return ErrCodeGeneric, err.Error()
}

// writeIRToFile writes the compilation result to a file as indented JSON.
func writeIRToFile(result *CompilationResult, filename string) error {
	// Indented for readability; canonical JSON is used only for hashing
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling stores: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	return nil
}
