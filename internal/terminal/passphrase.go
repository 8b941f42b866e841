// Package terminal reads passphrases from the controlling terminal or a piped stream.
package terminal

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/deploymenttheory/go-cryptodisk/internal/interfaces"
	"golang.org/x/term"
)

// Prompt reads one passphrase per call. On a terminal echo is disabled;
// otherwise each call consumes one line of input.
type Prompt struct {
	out    io.Writer
	fd     int
	tty    bool
	reader *bufio.Reader
}

var _ interfaces.PassphraseReader = (*Prompt)(nil)

// NewPrompt creates a prompt reading from in and writing prompts to out
func NewPrompt(in *os.File, out io.Writer) *Prompt {
	fd := int(in.Fd())
	return &Prompt{
		out:    out,
		fd:     fd,
		tty:    term.IsTerminal(fd),
		reader: bufio.NewReader(in),
	}
}

// NewReaderPrompt creates a prompt that reads lines from r
func NewReaderPrompt(r io.Reader, out io.Writer) *Prompt {
	return &Prompt{out: out, fd: -1, reader: bufio.NewReader(r)}
}

// ReadPassphrase writes prompt and returns the passphrase without its line terminator
func (p *Prompt) ReadPassphrase(prompt string) ([]byte, error) {
	if p.out != nil {
		fmt.Fprint(p.out, prompt)
	}

	if p.tty {
		passphrase, err := term.ReadPassword(p.fd)
		if p.out != nil {
			fmt.Fprintln(p.out)
		}
		if err != nil {
			return nil, fmt.Errorf("passphrase read failed: %w", err)
		}
		return passphrase, nil
	}

	line, err := p.reader.ReadBytes('\n')
	if err != nil && !(errors.Is(err, io.EOF) && len(line) > 0) {
		return nil, fmt.Errorf("passphrase read failed: %w", err)
	}
	line = bytes.TrimSuffix(line, []byte("\n"))
	line = bytes.TrimSuffix(line, []byte("\r"))
	return line, nil
}
