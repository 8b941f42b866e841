package app

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Context holds application-wide configuration and state
type Context struct {
	context.Context

	// Output preferences
	OutputFormat string
	Verbose      bool
	Quiet        bool

	// Output streams
	Stdout io.Writer
	Stderr io.Writer

	Logger *logrus.Entry

	// Progress reporting
	ProgressCallback func(message string, percent int)
}

// NewContext creates a new application context writing to the process streams
func NewContext() *Context {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return &Context{
		Context:      context.Background(),
		OutputFormat: "table",
		Stdout:       os.Stdout,
		Stderr:       os.Stderr,
		Logger:       logrus.NewEntry(logger),
	}
}

// WithCancel creates a cancellable context
func (c *Context) WithCancel() (*Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(c.Context)
	newCtx := *c
	newCtx.Context = ctx
	return &newCtx, cancel
}

// SetProgress sets the progress callback function
func (c *Context) SetProgress(callback func(string, int)) {
	c.ProgressCallback = callback
}

// Progress reports progress if callback is set
func (c *Context) Progress(message string, percent int) {
	if c.ProgressCallback != nil {
		c.ProgressCallback(message, percent)
	}
}

// Log writes a message to stderr in verbose mode
func (c *Context) Log(message string) {
	if !c.Quiet && c.Verbose {
		fmt.Fprintln(c.Stderr, message)
	}
}

// Error writes an error message to stderr unless quiet
func (c *Context) Error(message string) {
	if !c.Quiet {
		fmt.Fprintln(c.Stderr, "Error:", message)
	}
}
