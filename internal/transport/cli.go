package transport

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// CLI writes streamed tokens to a terminal, prefixing each reply with a
// colored speaker label.
type CLI struct {
	out   io.Writer
	label func(a ...interface{}) string
}

// NewCLI creates a terminal transport writing to out.
func NewCLI(out io.Writer) *CLI {
	return &CLI{
		out:   out,
		label: color.New(color.FgCyan, color.Bold).SprintFunc(),
	}
}

func (c *CLI) BeginMessage() error {
	_, err := fmt.Fprintf(c.out, "%s ", c.label("prodscout>"))
	return err
}

func (c *CLI) PushToken(token string) error {
	_, err := io.WriteString(c.out, token)
	return err
}

func (c *CLI) FinalizeMessage() error {
	_, err := io.WriteString(c.out, "\n")
	return err
}
