package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeResponse(t *testing.T, buf *bytes.Buffer) CLIResponse {
	t.Helper()
	var resp CLIResponse
	require.NoError(t, json.Unmarshal(buf.Bytes(), &resp))
	return resp
}

func TestOutputFormatter_JSON(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "json", Writer: buf}
		require.NoError(t, f.Success(StoreSummary{Name: "todos", Hash: "abc"}))

		resp := decodeResponse(t, buf)
		assert.Equal(t, "ok", resp.Status)
		assert.Nil(t, resp.Error)
		assert.Equal(t, map[string]any{"name": "todos", "hash": "abc"}, resp.Data)
	})

	t.Run("error with details", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "json", Writer: buf}
		require.NoError(t, f.Error(ErrCodeNoStore, `store "x" not found`, map[string]string{"have": "todos"}))

		resp := decodeResponse(t, buf)
		assert.Equal(t, "error", resp.Status)
		require.NotNil(t, resp.Error)
		assert.Equal(t, ErrCodeNoStore, resp.Error.Code)
		assert.Equal(t, map[string]any{"have": "todos"}, resp.Error.Details)
		assert.Nil(t, resp.Data)
	})

	t.Run("failure keeps data", func(t *testing.T) {
		buf := &bytes.Buffer{}
		f := &OutputFormatter{Format: "json", Writer: buf}
		result := TestResult{Total: 1, Failed: 1}
		require.NoError(t, f.Failure(CLIError{Code: ErrCodeTestFailed, Message: "1 scenario(s) failed"}, result))

		resp := decodeResponse(t, buf)
		assert.Equal(t, "error", resp.Status)
		assert.Equal(t, ErrCodeTestFailed, resp.Error.Code)
		assert.NotNil(t, resp.Data)
	})
}

func TestOutputFormatter_Text(t *testing.T) {
	tests := []struct {
		name    string
		verbose bool
		write   func(f *OutputFormatter) error
		want    []string
		notWant []string
	}{
		{
			name:  "success",
			write: func(f *OutputFormatter) error { return f.Success("✓ All specs valid") },
			want:  []string{"✓ All specs valid\n"},
		},
		{
			name:    "error hides details",
			write:   func(f *OutputFormatter) error { return f.Error("E002", "syntax error", "line 3") },
			want:    []string{"Error [E002]: syntax error"},
			notWant: []string{"Details:"},
		},
		{
			name:    "verbose error shows details",
			verbose: true,
			write:   func(f *OutputFormatter) error { return f.Error("E002", "syntax error", "line 3") },
			want:    []string{"Error [E002]: syntax error", "Details: line 3"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := &bytes.Buffer{}
			f := &OutputFormatter{Format: "text", Writer: buf, Verbose: tt.verbose}
			require.NoError(t, tt.write(f))
			for _, w := range tt.want {
				assert.Contains(t, buf.String(), w)
			}
			for _, w := range tt.notWant {
				assert.NotContains(t, buf.String(), w)
			}
		})
	}
}

func TestOutputFormatter_VerboseLog(t *testing.T) {
	quiet := &bytes.Buffer{}
	(&OutputFormatter{Format: "text", Writer: quiet}).VerboseLog("Compiling store: %s", "todos")
	assert.Empty(t, quiet.String())

	out := &bytes.Buffer{}
	(&OutputFormatter{Format: "text", Writer: out, Verbose: true}).VerboseLog("Compiling store: %s", "todos")
	assert.Equal(t, "Compiling store: todos\n", out.String())
}

func TestOutputFormatter_VerboseLogUsesErrWriter(t *testing.T) {
	out := &bytes.Buffer{}
	diag := &bytes.Buffer{}
	formatter := &OutputFormatter{Format: "json", Writer: out, ErrWriter: diag, Verbose: true}

	formatter.VerboseLog("Validating store: %s", "todos")
	assert.Empty(t, out.String())
	assert.Equal(t, "Validating store: todos\n", diag.String())
	assert.Equal(t, diag, formatter.GetErrWriter())
}

func TestGetExitCode(t *testing.T) {
	assert.Equal(t, ExitSuccess, GetExitCode(nil))
	assert.Equal(t, ExitFailure, GetExitCode(errors.New("plain")))
	assert.Equal(t, ExitCommandError, GetExitCode(NewExitError(ExitCommandError, "bad path")))

	wrapped := fmt.Errorf("outer: %w", WrapExitError(ExitCommandError, "store not found", errors.New("cause")))
	assert.Equal(t, ExitCommandError, GetExitCode(wrapped))
	assert.Equal(t, "outer: store not found: cause", wrapped.Error())
}

func TestExitError_Unwrap(t *testing.T) {
	cause := errors.New("cause")
	err := WrapExitError(ExitFailure, "failed", cause)
	assert.ErrorIs(t, err, cause)
	assert.Nil(t, NewExitError(ExitFailure, "failed").Unwrap())
}
