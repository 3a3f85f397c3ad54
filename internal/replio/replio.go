// Package replio supplies line readers for the interactive parser REPL.
// Unlike a command shell, gzlrepl feeds every line it reads straight to the
// parser as more input bytes, blank lines included, so neither reader here
// skips blank input the way a command-oriented reader would.
package replio

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/chzyer/readline"
)

// DirectLineReader reads lines from any io.Reader without readline editing
// or history. It is the right choice when stdin isn't a TTY, for example
// when gzlrepl's input is piped or redirected from a file.
//
// DirectLineReader should not be used directly; instead, create one with
// [NewDirectReader].
type DirectLineReader struct {
	r *bufio.Reader
}

// InteractiveLineReader reads lines from stdin via a Go implementation of
// GNU Readline, giving the operator line editing and history. This should
// only be used when stdin is actually a TTY.
//
// InteractiveLineReader should not be used directly; instead, create one
// with [NewInteractiveReader].
type InteractiveLineReader struct {
	rl     *readline.Instance
	prompt string
}

// NewDirectReader creates a DirectLineReader over r.
func NewDirectReader(r io.Reader) *DirectLineReader {
	return &DirectLineReader{r: bufio.NewReader(r)}
}

// NewInteractiveReader creates an InteractiveLineReader reading from stdin.
// The returned reader must have Close called on it before disposal to
// properly tear down readline resources.
func NewInteractiveReader(prompt string) (*InteractiveLineReader, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt: prompt,
	})
	if err != nil {
		return nil, fmt.Errorf("create readline config: %w", err)
	}

	return &InteractiveLineReader{
		rl:     rl,
		prompt: prompt,
	}, nil
}

// Close cleans up resources associated with the DirectLineReader.
func (dlr *DirectLineReader) Close() error {
	return nil
}

// Close cleans up readline resources associated with the
// InteractiveLineReader.
func (ilr *InteractiveLineReader) Close() error {
	return ilr.rl.Close()
}

// ReadLine reads the next line, stripped of its trailing line ending.
//
// If at end of input, the returned string is empty and error is io.EOF. A
// final line with no trailing newline is still returned, with a nil error;
// the next call reports io.EOF.
func (dlr *DirectLineReader) ReadLine() (string, error) {
	line, err := dlr.r.ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// ReadLine reads the next line via readline.
//
// If at end of input (the user pressed ctrl-D), the returned string is
// empty and error is io.EOF.
func (ilr *InteractiveLineReader) ReadLine() (string, error) {
	line, err := ilr.rl.Readline()
	if err != nil {
		return "", err
	}
	return line, nil
}

// SetPrompt updates the prompt to the given text.
func (ilr *InteractiveLineReader) SetPrompt(p string) {
	ilr.prompt = p
	ilr.rl.SetPrompt(p)
}

// GetPrompt gets the current prompt.
func (ilr *InteractiveLineReader) GetPrompt() string {
	return ilr.prompt
}
