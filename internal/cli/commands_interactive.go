package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/powermem-ai/powermem/internal/core"
	"github.com/powermem-ai/powermem/pkg/memory"
)

// newInteractiveCmd builds a REPL over the same operations as the
// non-interactive subcommands, for quick manual exploration of a memory
// collection without re-invoking the binary per call.
func newInteractiveCmd(factory Factory, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "interactive",
		Short: "Start a REPL for add/search/get/update/delete/list/stats/exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := factory(opts.configPath)
			if err != nil {
				return opErr(err)
			}
			return runInteractive(cmd.InOrStdin(), cmd.OutOrStdout(), deps, opts)
		},
	}
}

func runInteractive(in io.Reader, out io.Writer, deps *Deps, opts *rootOptions) error {
	fmt.Fprintln(out, "powermem interactive — type 'help' for commands, 'exit' to quit")
	scanner := bufio.NewScanner(in)

	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return nil
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		verb, rest := fields[0], fields[1:]

		switch verb {
		case "exit", "quit":
			return nil
		case "help":
			printInteractiveHelp(out)
		case "add":
			handleInteractiveAdd(out, deps, opts, rest)
		case "search":
			handleInteractiveSearch(out, deps, opts, rest)
		case "get":
			handleInteractiveGet(out, deps, opts, rest)
		case "delete":
			handleInteractiveDelete(out, deps, opts, rest)
		case "list":
			handleInteractiveList(out, deps, opts)
		case "stats":
			handleInteractiveStats(out, deps, opts)
		default:
			fmt.Fprintf(out, "unknown command %q, type 'help'\n", verb)
		}
	}
}

func printInteractiveHelp(out io.Writer) {
	fmt.Fprintln(out, "commands:")
	fmt.Fprintln(out, "  add <text...>       add a memory verbatim")
	fmt.Fprintln(out, "  search <query...>   search memories")
	fmt.Fprintln(out, "  get <id>            fetch one memory")
	fmt.Fprintln(out, "  delete <id>         delete one memory")
	fmt.Fprintln(out, "  list                list every visible memory")
	fmt.Fprintln(out, "  stats               show aggregate statistics")
	fmt.Fprintln(out, "  exit                quit")
}

func handleInteractiveAdd(out io.Writer, deps *Deps, opts *rootOptions, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(out, "usage: add <text...>")
		return
	}
	text := strings.Join(args, " ")
	result, err := deps.Core.Add(interactiveCtx(), core.AddRequest{
		Owner: opts.owner(), Scope: memory.ScopePrivate, Infer: false, Text: text,
	})
	if err != nil {
		fmt.Fprintln(out, "error:", err)
		return
	}
	for _, ev := range result.Events {
		fmt.Fprintf(out, "%s\tid=%d\t%s\n", ev.Event, ev.ID, ev.MemoryText)
	}
}

func handleInteractiveSearch(out io.Writer, deps *Deps, opts *rootOptions, args []string) {
	if len(args) == 0 {
		fmt.Fprintln(out, "usage: search <query...>")
		return
	}
	records, err := deps.Core.Search(interactiveCtx(), core.SearchRequest{
		Query: strings.Join(args, " "), Owner: opts.owner(), Limit: 10,
	})
	if err != nil {
		fmt.Fprintln(out, "error:", err)
		return
	}
	if len(records) == 0 {
		fmt.Fprintln(out, "(no results)")
	}
	for _, r := range records {
		fmt.Fprintf(out, "%d\t%.4f\t%s\n", r.ID, r.Score, r.Content)
	}
}

func handleInteractiveGet(out io.Writer, deps *Deps, opts *rootOptions, args []string) {
	id, ok := parseInteractiveID(out, args)
	if !ok {
		return
	}
	record, err := deps.Core.Get(interactiveCtx(), id, opts.owner())
	if err != nil {
		fmt.Fprintln(out, "error:", err)
		return
	}
	fmt.Fprintf(out, "%d\t%s\n", record.ID, record.Content)
}

func handleInteractiveDelete(out io.Writer, deps *Deps, opts *rootOptions, args []string) {
	id, ok := parseInteractiveID(out, args)
	if !ok {
		return
	}
	if err := deps.Core.Delete(interactiveCtx(), id, opts.owner()); err != nil {
		fmt.Fprintln(out, "error:", err)
		return
	}
	fmt.Fprintf(out, "deleted %d\n", id)
}

func handleInteractiveList(out io.Writer, deps *Deps, opts *rootOptions) {
	records, err := deps.Core.GetAll(interactiveCtx(), core.GetAllRequest{Owner: opts.owner(), Limit: 50})
	if err != nil {
		fmt.Fprintln(out, "error:", err)
		return
	}
	for _, r := range records {
		fmt.Fprintf(out, "%d\t%s\n", r.ID, r.Content)
	}
}

func handleInteractiveStats(out io.Writer, deps *Deps, opts *rootOptions) {
	stats, err := deps.Core.GetStatistics(interactiveCtx(), opts.owner())
	if err != nil {
		fmt.Fprintln(out, "error:", err)
		return
	}
	fmt.Fprintf(out, "count: %d\n", stats.Count)
}

func parseInteractiveID(out io.Writer, args []string) (int64, bool) {
	if len(args) != 1 {
		fmt.Fprintln(out, "usage: <id>")
		return 0, false
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil {
		fmt.Fprintln(out, "id must be a 64-bit integer")
		return 0, false
	}
	return id, true
}

// interactiveCtx gives each REPL command its own context; the REPL has no
// per-line deadline or cancellation source of its own.
func interactiveCtx() context.Context {
	return context.Background()
}
