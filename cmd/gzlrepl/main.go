// Command gzlrepl is a small interactive shell over the parse engine: it
// loads one grammar, then for every line of input it types out the parse
// events that line would produce against the current session, without
// ever committing the line. Each line is tried against a duplicate of the
// live parse state (exercising dup_parse_state) and the duplicate is then
// discarded, so the same line can be retried or a different continuation
// explored without losing the session's place.
package main

import (
	"fmt"
	"os"

	"github.com/dekarrin/gazelle/internal/bitcode"
	"github.com/dekarrin/gazelle/internal/engine"
	"github.com/dekarrin/gazelle/internal/grammar"
	"github.com/dekarrin/gazelle/internal/replio"
	"github.com/mattn/go-isatty"
	"github.com/spf13/pflag"
)

const (
	ExitSuccess = iota
	ExitFailure
)

var flagHelp = pflag.BoolP("help", "h", false, "print this usage message and exit")

var returnCode = ExitSuccess

func main() {
	defer func() {
		if panicErr := recover(); panicErr != nil {
			fmt.Fprintf(os.Stderr, "FATAL: %v\n", panicErr)
			os.Exit(ExitFailure)
		}
		os.Exit(returnCode)
	}()

	pflag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: gzlrepl [--help] GRAMMAR.gzc")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *flagHelp {
		pflag.Usage()
		return
	}

	args := pflag.Args()
	if len(args) != 1 {
		fmt.Fprintln(os.Stderr, "ERROR: expected exactly one argument, GRAMMAR.gzc")
		pflag.Usage()
		returnCode = ExitFailure
		return
	}

	r, err := bitcode.Open(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: loading grammar: %v\n", err)
		returnCode = ExitFailure
		return
	}
	g, err := grammar.Load(r)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: loading grammar: %v\n", err)
		returnCode = ExitFailure
		return
	}

	session := engine.NewParseState(&engine.BoundGrammar{Grammar: g}, engine.Limits{})

	lr, err := newLineReader()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		returnCode = ExitFailure
		return
	}
	defer lr.Close()

	for {
		line, err := lr.ReadLine()
		if err != nil {
			return
		}
		tryLine(session, g, line)
	}
}

// lineReader is satisfied by both replio readers.
type lineReader interface {
	ReadLine() (string, error)
	Close() error
}

// newLineReader picks readline-backed interactive input when stdin is a
// TTY, and falls back to plain line scanning otherwise (piped/redirected
// input).
func newLineReader() (lineReader, error) {
	if isatty.IsTerminal(os.Stdin.Fd()) {
		return replio.NewInteractiveReader("gzl> ")
	}
	return replio.NewDirectReader(os.Stdin), nil
}

// printingCallbacks writes one line per parse event to stdout, in the same
// "event:name" shorthand the engine's own tests use. source is the exact
// byte slice handed to the Parse call that is producing these events, so
// Terminal can recover each lexeme's text from its offset and length.
type printingCallbacks struct {
	engine.NoopCallbacks
	g      *grammar.Grammar
	source []byte
}

func (c printingCallbacks) StartRule(ps *engine.ParseState, rtn *grammar.RTN) engine.Signal {
	fmt.Printf("  start_rule:%s\n", c.g.Strings.Get(rtn.Name))
	return engine.Continue
}

func (c printingCallbacks) EndRule(ps *engine.ParseState, rtn *grammar.RTN) engine.Signal {
	fmt.Printf("  end_rule:%s\n", c.g.Strings.Get(rtn.Name))
	return engine.Continue
}

func (c printingCallbacks) Terminal(ps *engine.ParseState, tok engine.Terminal) engine.Signal {
	text := ""
	if end := tok.Offset.Byte + tok.Length; tok.Offset.Byte >= 0 && end <= len(c.source) {
		text = string(c.source[tok.Offset.Byte:end])
	}
	fmt.Printf("  terminal:%s %q\n", c.g.Strings.Get(tok.Name), text)
	return engine.Continue
}

func (c printingCallbacks) ErrorChar(ps *engine.ParseState, ch byte) engine.Signal {
	fmt.Printf("  error_char: %q at %s\n", ch, ps.Offset())
	return engine.Continue
}

func (c printingCallbacks) ErrorTerminal(ps *engine.ParseState, name string) engine.Signal {
	fmt.Printf("  error_terminal: %s at %s\n", name, ps.Offset())
	return engine.Continue
}

// tryLine duplicates session, feeds it line plus a trailing newline, and
// prints the resulting events and outcome. session itself is left
// untouched: the duplicate is discarded once the line has been tried.
func tryLine(session *engine.ParseState, g *grammar.Grammar, line string) {
	data := []byte(line + "\n")
	dup := session.Dup()
	dup.Bound = &engine.BoundGrammar{Grammar: g, Callbacks: printingCallbacks{g: g, source: data}}

	status, err := dup.Parse(data)
	if err != nil {
		fmt.Printf("parse error: %v\n", err)
		return
	}
	switch status {
	case engine.StatusOK:
		ok, err := dup.FinishParse()
		if err != nil {
			fmt.Printf("parse error: %v\n", err)
		} else if ok {
			fmt.Println("-> complete parse")
		} else {
			fmt.Println("-> incomplete parse")
		}
	case engine.StatusHardEOF:
		fmt.Println("-> hard EOF (grammar accepts no more input)")
	case engine.StatusCancelled:
		fmt.Println("-> cancelled")
	case engine.StatusResourceLimitExceeded:
		fmt.Println("-> resource limit exceeded")
	default:
		fmt.Printf("-> %s\n", status)
	}
}
