package logging

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Console writes human-facing status lines for CLI commands. Picker output
// (the chosen glyph) goes to stdout; Console defaults to stderr.
type Console struct {
	writer io.Writer
	styles ConsoleStyles
}

// ConsoleStyles contains lipgloss styles for different line types.
type ConsoleStyles struct {
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Key     lipgloss.Style
	Value   lipgloss.Style
	Path    lipgloss.Style
}

// DefaultConsoleStyles returns the default styling.
func DefaultConsoleStyles() ConsoleStyles {
	return ConsoleStyles{
		Success: lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true), // Green
		Warning: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),            // Yellow
		Error:   lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),  // Red
		Key:     lipgloss.NewStyle().Foreground(lipgloss.Color("8")),             // Gray
		Value:   lipgloss.NewStyle().Foreground(lipgloss.Color("14")).Bold(true), // Cyan
		Path:    lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Italic(true),
	}
}

// NewConsole creates a console writing to stderr.
func NewConsole() *Console {
	return &Console{writer: os.Stderr, styles: DefaultConsoleStyles()}
}

// WithWriter sets a custom writer.
func (c *Console) WithWriter(w io.Writer) *Console {
	c.writer = w
	return c
}

func (c *Console) Success(message string) {
	fmt.Fprintf(c.writer, "%s %s\n", c.styles.Success.Render("✓"), c.styles.Success.Render(message))
}

func (c *Console) Warn(message string) {
	fmt.Fprintf(c.writer, "%s %s\n", c.styles.Warning.Render("⚠"), c.styles.Warning.Render(message))
}

func (c *Console) Error(message string, err error) {
	fmt.Fprintf(c.writer, "%s %s", c.styles.Error.Render("✗"), c.styles.Error.Render(message))
	if err != nil {
		fmt.Fprintf(c.writer, ": %s", c.styles.Error.Render(err.Error()))
	}
	fmt.Fprintln(c.writer)
}

// Field prints an aligned key/value pair.
func (c *Console) Field(key string, value interface{}) {
	fmt.Fprintf(c.writer, "%s %s\n",
		c.styles.Key.Render(fmt.Sprintf("%-14s", key+":")),
		c.styles.Value.Render(fmt.Sprint(value)))
}

func (c *Console) Path(label, path string) {
	fmt.Fprintf(c.writer, "%s %s\n",
		c.styles.Key.Render(fmt.Sprintf("%-14s", label+":")),
		c.styles.Path.Render(path))
}

func (c *Console) Divider() {
	fmt.Fprintln(c.writer, c.styles.Key.Render(strings.Repeat("─", 40)))
}
