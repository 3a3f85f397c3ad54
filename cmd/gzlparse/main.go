// Command gzlparse runs a compiled grammar image against an input file and
// reports whether it parses.
//
// Usage:
//
//	gzlparse [--dump-json] [--dump-total] [--list-rules] [--help] GRAMMAR.gzc [INFILE]
//
// INFILE may be "-" to read from standard input. With --list-rules, only
// GRAMMAR.gzc is required and a table of its rules is printed instead of
// parsing anything.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/dekarrin/gazelle/internal/bitcode"
	"github.com/dekarrin/gazelle/internal/engine"
	"github.com/dekarrin/gazelle/internal/grammar"
	"github.com/dekarrin/gazelle/internal/gzlerr"
	"github.com/dekarrin/gazelle/internal/parsetree"
	"github.com/dekarrin/gazelle/internal/util"
	"github.com/dekarrin/rosed"
	"github.com/spf13/pflag"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Exit codes, per spec: 0 on success, 1 on usage error or parse failure.
const (
	ExitSuccess = iota
	ExitFailure
)

var (
	flagHelp      = pflag.BoolP("help", "h", false, "print this usage message and exit")
	flagDumpJSON  = pflag.Bool("dump-json", false, "print the parse tree to stdout as JSON")
	flagDumpTotal = pflag.Bool("dump-total", false, "print the number of bytes parsed to stderr")
	flagListRules = pflag.Bool("list-rules", false, "print a table of the grammar's rules and exit without parsing")
)

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
		fmt.Fprintln(os.Stderr, "Usage: gzlparse [--dump-json] [--dump-total] [--list-rules] [--help] GRAMMAR.gzc [INFILE]")
		pflag.PrintDefaults()
	}
	pflag.Parse()

	if *flagHelp {
		pflag.Usage()
		return
	}

	args := pflag.Args()

	if *flagListRules {
		if len(args) != 1 {
			fmt.Fprintln(os.Stderr, "ERROR: --list-rules takes exactly one argument, GRAMMAR.gzc")
			pflag.Usage()
			returnCode = ExitFailure
			return
		}
		g, err := loadGrammar(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: loading grammar: %v\n", err)
			returnCode = ExitFailure
			return
		}
		fmt.Println(rulesTable(g))
		return
	}

	if len(args) != 2 {
		fmt.Fprintln(os.Stderr, "ERROR: expected exactly two arguments, GRAMMAR.gzc and INFILE")
		pflag.Usage()
		returnCode = ExitFailure
		return
	}

	g, err := loadGrammar(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: loading grammar: %v\n", err)
		returnCode = ExitFailure
		return
	}

	input, err := readInput(args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: reading input: %v\n", err)
		returnCode = ExitFailure
		return
	}

	var builder *parsetree.Builder
	var cb engine.Callbacks = engine.NoopCallbacks{}
	if *flagDumpJSON {
		builder = parsetree.NewBuilder(input)
		cb = builder
	}

	bound := &engine.BoundGrammar{Grammar: g, Callbacks: cb}
	ps := engine.NewParseState(bound, engine.Limits{})

	ok, parseErr := run(ps, input)

	if *flagDumpTotal {
		p := message.NewPrinter(language.English)
		p.Fprintf(os.Stderr, "%d bytes parsed\n", ps.Offset().Byte)
	}

	if parseErr != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", parseErr)
		returnCode = ExitFailure
		return
	}
	if !ok {
		fmt.Fprintln(os.Stderr, "ERROR: input does not form a complete parse")
		returnCode = ExitFailure
		return
	}

	if *flagDumpJSON {
		if err := dumpJSON(os.Stdout, builder.Root); err != nil {
			fmt.Fprintf(os.Stderr, "ERROR: encoding parse tree: %v\n", err)
			returnCode = ExitFailure
			return
		}
	}
}

// run feeds the whole input to ps in one call and, if the engine consumed
// it all without concluding, finishes the parse. It reports whether the
// input formed a complete parse.
func run(ps *engine.ParseState, input []byte) (bool, error) {
	status, err := ps.Parse(input)
	if err != nil {
		return false, err
	}
	switch status {
	case engine.StatusOK:
		return ps.FinishParse()
	case engine.StatusHardEOF:
		return true, nil
	default:
		return false, nil
	}
}

func loadGrammar(path string) (*grammar.Grammar, error) {
	r, err := bitcode.Open(path)
	if err != nil {
		return nil, err
	}
	return grammar.Load(r)
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return nil, gzlerr.Wrap(err, gzlerr.KindIO, "read stdin")
		}
		return data, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, gzlerr.Wrap(err, gzlerr.KindIO, "read "+path)
	}
	return data, nil
}

// rulesTable renders one row per RTN in g: its name, how many states and
// slots it has, and the terminals it silently discards while parsing.
func rulesTable(g *grammar.Grammar) string {
	data := [][]string{{"rule", "states", "slots", "ignores"}}
	for _, rtn := range g.RTNs {
		ignores := make([]string, len(rtn.IgnoreTerminals))
		for i, t := range rtn.IgnoreTerminals {
			ignores[i] = g.Strings.Get(t)
		}
		data = append(data, []string{
			g.Strings.Get(rtn.Name),
			fmt.Sprintf("%d", len(rtn.States)),
			fmt.Sprintf("%d", rtn.NumSlots),
			util.MakeTextList(ignores),
		})
	}

	return rosed.Edit("").
		InsertTableOpts(0, data, 100, rosed.Options{
			TableBorders: true,
		}).
		String()
}

func dumpJSON(w io.Writer, tree parsetree.Node) error {
	enc := json.NewEncoder(w)
	return enc.Encode(map[string]parsetree.Node{"parse_tree": tree})
}
