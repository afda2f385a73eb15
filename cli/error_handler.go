package cli

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"

	"github.com/grovetools/nicepick/errors"
)

var errorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#e06c75"))

// ErrorHandler provides user-friendly error messages
type ErrorHandler struct {
	Verbose bool
	Out     io.Writer
}

// NewErrorHandler creates a new error handler writing to stderr
func NewErrorHandler(verbose bool) *ErrorHandler {
	return &ErrorHandler{Verbose: verbose, Out: os.Stderr}
}

// Message returns the one-line diagnostic for err.
func (h *ErrorHandler) Message(err error) string {
	switch errors.GetCode(err) {
	case errors.ErrCodeConnectFailure:
		return "cannot reach the picker daemon. Start it with 'nicepick daemon start'."
	case errors.ErrCodeBootstrapFailure:
		return "the picker daemon did not come up. Check the daemon log for catalog or render errors."
	case errors.ErrCodeTimeout:
		return "the picker daemon did not answer in time."
	case errors.ErrCodeBusy:
		return "the picker is already open in another session."
	case errors.ErrCodeProtocol:
		return "the picker daemon sent an unexpected reply. Restart it with 'nicepick daemon stop'."
	case errors.ErrCodeCatalogCorrupt, errors.ErrCodeCatalogVersionMismatch:
		return describe(err) + ". Reinstall the catalog."
	case errors.ErrCodeContextInit:
		return describe(err) + ". Check the display and font settings."
	case errors.ErrCodeConfigNotFound:
		return describe(err) + ". Run 'nicepick config schema' to see the available settings."
	case errors.ErrCodeConfigInvalid:
		return describe(err)
	default:
		return fmt.Sprintf("Error: %v", err)
	}
}

// Handle prints the diagnostic for err and returns err unchanged.
func (h *ErrorHandler) Handle(err error) error {
	if err == nil {
		return nil
	}
	fmt.Fprintf(h.Out, "%s %s\n", errorStyle.Render("✗"), h.Message(err))

	// If verbose mode, show full error details
	if h.Verbose {
		if pickErr, ok := err.(*errors.PickError); ok {
			fmt.Fprintf(h.Out, "\nError details:\n%s\n", pickErr.ToJSON())
		}
	}
	return err
}

// describe drops the code prefix of a coded error and keeps its cause.
func describe(err error) string {
	var pe *errors.PickError
	if !stderrors.As(err, &pe) {
		return err.Error()
	}
	if pe.Cause != nil {
		return fmt.Sprintf("%s: %v", pe.Message, pe.Cause)
	}
	return pe.Message
}
