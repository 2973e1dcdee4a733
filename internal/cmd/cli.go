package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
)

// CLI holds the streams used by commands. Tests replace them with buffers
// through the context given to Run.
type CLI struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Output prints a line to Stdout.
func (c *CLI) Output(format string, args ...interface{}) {
	fmt.Fprintln(c.Stdout, fmt.Sprintf(format, args...))
}

type cliContextKey struct{}

var ctxKey = cliContextKey{}

// newCLI returns the CLI stored in ctx, or one that uses the standard streams.
func newCLI(ctx context.Context) *CLI {
	if cli, ok := ctx.Value(ctxKey).(*CLI); ok {
		return cli
	}
	return &CLI{Stdin: os.Stdin, Stdout: os.Stdout, Stderr: os.Stderr}
}
