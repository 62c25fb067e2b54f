// Package cli implements the operator command-line surface over the Memory
// Core (spec.md §6): add, search, get, update, delete, list, delete-all,
// stats, config management, backup/restore/cleanup/migrate, and an
// interactive REPL. Every command is a thin wrapper over [core.Core] or the
// Storage Engine, mirroring the teacher's preference for small, composable
// command handlers over a monolithic dispatch switch.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/powermem-ai/powermem/internal/core"
	"github.com/powermem-ai/powermem/pkg/memory"
)

// Deps are the wired collaborators a command needs: the Memory Core for
// business operations, and the raw Store for administrative operations
// (capabilities, reset) the Core does not expose directly.
type Deps struct {
	Core  *core.Core
	Store memory.Store
}

// Factory lazily builds [Deps] from a config file path. Building once per
// invocation (rather than at process start) keeps `config validate` usable
// even when providers would fail to construct.
type Factory func(configPath string) (*Deps, error)

// rootOptions holds the persistent flags shared by every subcommand.
type rootOptions struct {
	configPath string
	userID     string
	agentID    string
	runID      string
	actorID    string
	jsonOutput bool
}

func (o *rootOptions) owner() memory.Owner {
	return memory.Owner{UserID: o.userID, AgentID: o.agentID, RunID: o.runID, ActorID: o.actorID}
}

// exitCoder lets a command signal a specific process exit code without
// cobra printing redundant usage text for operational (non-usage) failures.
type exitCoder struct {
	code int
	err  error
}

func (e *exitCoder) Error() string { return e.err.Error() }

// opErr wraps an operational failure (exit code 1): the command's usage was
// fine, the operation itself failed (storage/provider/etc).
func opErr(err error) error {
	if err == nil {
		return nil
	}
	return &exitCoder{code: 1, err: err}
}

// usageErr wraps a usage failure (exit code 2): bad flags/arguments, or a
// user declining a destructive confirmation prompt.
func usageErr(format string, a ...any) error {
	return &exitCoder{code: 2, err: fmt.Errorf(format, a...)}
}

// NewRootCmd builds the full command tree. factory is called once per
// command invocation that needs live providers (every command except
// `config validate`/`config show`, which only need the parsed config).
func NewRootCmd(factory Factory) *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "powermem",
		Short:         "Operate the long-term memory service from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "config.yaml", "path to the YAML configuration file")
	root.PersistentFlags().StringVar(&opts.userID, "user-id", "", "identity: user_id")
	root.PersistentFlags().StringVar(&opts.agentID, "agent-id", "", "identity: agent_id")
	root.PersistentFlags().StringVar(&opts.runID, "run-id", "", "identity: run_id")
	root.PersistentFlags().StringVar(&opts.actorID, "actor-id", "", "identity: actor_id")
	root.PersistentFlags().BoolVar(&opts.jsonOutput, "json", false, "emit machine-readable JSON output")

	root.AddCommand(
		newAddCmd(factory, opts),
		newSearchCmd(factory, opts),
		newGetCmd(factory, opts),
		newUpdateCmd(factory, opts),
		newDeleteCmd(factory, opts),
		newListCmd(factory, opts),
		newDeleteAllCmd(factory, opts),
		newStatsCmd(factory, opts),
		newConfigCmd(factory, opts),
		newManageCmd(factory, opts),
		newInteractiveCmd(factory, opts),
	)
	return root
}

// Run executes root against args (typically os.Args[1:]) and returns the
// process exit code, printing any error to stderr (spec.md §6: "Exit 0 on
// success, 1 on error, 2 on user-confirmation-refused").
func Run(root *cobra.Command, args []string) int {
	root.SetArgs(args)
	err := root.Execute()
	if err == nil {
		return 0
	}

	var ec *exitCoder
	if asExitCoder(err, &ec) {
		fmt.Fprintln(root.ErrOrStderr(), "powermem:", ec.err)
		return ec.code
	}
	fmt.Fprintln(root.ErrOrStderr(), "powermem:", err)
	return 2
}

func asExitCoder(err error, target **exitCoder) bool {
	ec, ok := err.(*exitCoder)
	if !ok {
		return false
	}
	*target = ec
	return true
}
