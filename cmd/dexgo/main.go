// Command dexgo is an interactive shell for a dexgod server. It speaks the
// HTTP API: list, submit and replace indices, watch job progress, and run
// key and query extractions from the prompt.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ergochat/readline"
)

// REPL per se.
type REPL struct {
	api *apiClient
	rl  *readline.Instance
}

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),

	readline.PcItem("ls"),
	readline.PcItem("submit"),
	readline.PcItem("status"),
	readline.PcItem("wait"),
	readline.PcItem("get"),
	readline.PcItem("put"),
	readline.PcItem("rm"),

	readline.PcItem("keys"),
	readline.PcItem("values"),
	readline.PcItem("query"),

	readline.PcItem("exit"),
	readline.PcItem("quit"),
)

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

func (repl *REPL) Open() (err error) {
	repl.rl, err = readline.NewEx(&readline.Config{
		Prompt:          "dexgo> ",
		HistoryFile:     ".dexgo_history",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		return
	}
	repl.rl.CaptureExitSignal()
	return
}

func (repl *REPL) Close() error {
	if repl.rl != nil {
		_ = repl.rl.Close()
		repl.rl = nil
	}
	return nil
}

// Step reads one line and dispatches it. io.EOF means the session is over.
func (repl *REPL) Step() error {
	line, err := repl.rl.Readline()
	if err == readline.ErrInterrupt && len(line) != 0 {
		return nil
	}
	if err != nil {
		return err
	}

	args := strings.Fields(line)
	if len(args) == 0 {
		return nil
	}
	cmd := args[0]
	args = args[1:]

	switch cmd {
	case "ls":
		err = repl.CommandList(args)
	case "submit":
		err = repl.CommandSubmit(args)
	case "status":
		err = repl.CommandStatus(args)
	case "wait":
		err = repl.CommandWait(args)
	case "get":
		err = repl.CommandGet(args)
	case "put":
		err = repl.CommandPut(args)
	case "rm":
		err = repl.CommandRemove(args)
	case "keys":
		err = repl.CommandKeys(args)
	case "values":
		err = repl.CommandValues(args)
	case "query":
		err = repl.CommandQuery(args)
	case "help":
		repl.CommandHelp()
	case "exit", "quit":
		return io.EOF
	default:
		_, _ = fmt.Fprintf(os.Stderr, "command unknown: %s\n", cmd)
	}
	return err
}

func (repl *REPL) CommandHelp() {
	fmt.Print(`ls                          list indices
submit [-n N] <input ...>   build an index over the given inputs
status <name>               report index status
wait <name>                 block until the index leaves the active state
get <name>                  show the index artifact
put <name> <ichunk ...>     install a prebuilt chunk list as an index
rm <name>                   delete an index
keys <name>                 enumerate keys
values <name>               enumerate values
query <name> <expr>         evaluate a query expression (clauses a/b, or a|b, not ~a)
exit                        leave the shell
`)
}

func main() {
	addr := flag.String("addr", envOr("DEXGO_ADDR", "http://localhost:8080"), "dexgod base URL")
	flag.Parse()

	repl := REPL{api: newAPIClient(*addr)}
	err := repl.Open()
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	defer func() { _ = repl.Close() }()

	for err != io.EOF {
		if err != nil {
			_, _ = fmt.Fprintf(os.Stdout, "%s\n", err.Error())
		}
		err = repl.Step()
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
