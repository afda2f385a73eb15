package cli

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"

	"github.com/grovetools/nicepick/errors"
)

func TestErrorHandlerMessages(t *testing.T) {
	h := NewErrorHandler(false)
	tests := []struct {
		err  error
		want string
	}{
		{errors.ConnectFailure("/tmp/np.sock", fmt.Errorf("refused")), "nicepick daemon start"},
		{errors.BootstrapFailure(6, fmt.Errorf("refused")), "did not come up"},
		{errors.Busy("abc"), "already open"},
		{errors.CatalogCorrupt("checksum mismatch"), "checksum mismatch. Reinstall the catalog."},
		{errors.ConfigInvalid("top_k must be positive"), "top_k must be positive"},
		{fmt.Errorf("plain"), "Error: plain"},
	}
	for _, tt := range tests {
		assert.Contains(t, h.Message(tt.err), tt.want)
	}
}

func TestErrorHandlerVerboseDetails(t *testing.T) {
	var buf bytes.Buffer
	h := &ErrorHandler{Verbose: true, Out: &buf}

	err := errors.Busy("session-1")
	assert.Same(t, err, h.Handle(err))
	assert.Contains(t, buf.String(), "already open")
	assert.Contains(t, buf.String(), "BUSY")
	assert.Nil(t, h.Handle(nil))
}

func TestRenderHelp(t *testing.T) {
	root := NewStandardCommand("nicepick", "Pick an emoji")
	root.Example = "nicepick cat --first"
	root.Flags().Bool("first", false, "Select the top result")
	root.AddCommand(&cobra.Command{Use: "daemon", Short: "Manage the picker daemon", Run: func(*cobra.Command, []string) {}})

	var buf bytes.Buffer
	renderHelp(&buf, root, 58)
	out := buf.String()

	assert.Contains(t, out, "NICEPICK")
	assert.Contains(t, out, "COMMANDS")
	assert.Contains(t, out, "daemon")
	assert.Contains(t, out, "--first")
	assert.Contains(t, out, "EXAMPLES")
}

func TestWrapText(t *testing.T) {
	assert.Equal(t, "one two\nthree", wrapText("one two three", 8))
	assert.Equal(t, "short", wrapText("short", 40))
}

func TestParseDescription(t *testing.T) {
	desc, ex := parseDescription("Opens the picker.\n\nExamples:\n  nicepick cat")
	assert.Equal(t, "Opens the picker.", desc)
	assert.Equal(t, "nicepick cat", ex)
}
