package cli

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/powermem-ai/powermem/internal/core"
	"github.com/powermem-ai/powermem/pkg/memory"
)

// backupRecord is the on-disk shape used by `manage backup`/`manage restore`.
// It deliberately omits embeddings and hash: restore re-derives both via a
// verbatim add, so a backup stays portable across embedding model changes.
type backupRecord struct {
	Content    string         `json:"content"`
	Owner      memory.Owner   `json:"owner"`
	Scope      memory.Scope   `json:"scope"`
	MemoryType string         `json:"memory_type,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func newManageCmd(factory Factory, opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "manage",
		Short: "Administrative operations: backup, restore, cleanup, migrate",
	}
	cmd.AddCommand(
		newManageBackupCmd(factory, opts),
		newManageRestoreCmd(factory, opts),
		newManageCleanupCmd(factory, opts),
		newManageMigrateCmd(factory, opts),
	)
	return cmd
}

func newManageBackupCmd(factory Factory, opts *rootOptions) *cobra.Command {
	var (
		output string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Dump every memory visible to the given identity to a JSON file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				return usageErr("--output is required")
			}
			deps, err := factory(opts.configPath)
			if err != nil {
				return opErr(err)
			}

			records, err := deps.Core.GetAll(cmd.Context(), core.GetAllRequest{
				Owner: opts.owner(), Limit: limit, SortBy: memory.SortByID, Order: memory.OrderAsc,
			})
			if err != nil {
				return opErr(err)
			}

			dump := make([]backupRecord, 0, len(records))
			for _, r := range records {
				dump = append(dump, backupRecord{
					Content: r.Content, Owner: r.Owner, Scope: r.Scope,
					MemoryType: r.MemoryType, Metadata: r.Metadata,
				})
			}

			f, err := os.Create(output)
			if err != nil {
				return opErr(err)
			}
			defer f.Close()
			enc := json.NewEncoder(f)
			enc.SetIndent("", "  ")
			if err := enc.Encode(dump); err != nil {
				return opErr(err)
			}
			printf(cmd.OutOrStdout(), "backed up %d memories to %s\n", len(dump), output)
			return nil
		},
	}
	cmd.Flags().StringVar(&output, "output", "", "path to write the backup JSON file (required)")
	cmd.Flags().IntVar(&limit, "limit", 100000, "maximum records to dump")
	return cmd
}

func newManageRestoreCmd(factory Factory, opts *rootOptions) *cobra.Command {
	var input string

	cmd := &cobra.Command{
		Use:   "restore",
		Short: "Re-insert memories from a JSON file produced by `manage backup`",
		RunE: func(cmd *cobra.Command, args []string) error {
			if input == "" {
				return usageErr("--input is required")
			}
			raw, err := os.ReadFile(input)
			if err != nil {
				return opErr(err)
			}
			var dump []backupRecord
			if err := json.Unmarshal(raw, &dump); err != nil {
				return opErr(err)
			}

			deps, err := factory(opts.configPath)
			if err != nil {
				return opErr(err)
			}

			restored := 0
			for _, rec := range dump {
				owner := rec.Owner
				if owner.Empty() {
					owner = opts.owner()
				}
				_, err := deps.Core.Add(cmd.Context(), core.AddRequest{
					Owner: owner, Scope: rec.Scope, MemoryType: rec.MemoryType,
					Metadata: rec.Metadata, Infer: false, Text: rec.Content,
				})
				if err != nil {
					return opErr(err)
				}
				restored++
			}
			printf(cmd.OutOrStdout(), "restored %d memories from %s\n", restored, input)
			return nil
		},
	}
	cmd.Flags().StringVar(&input, "input", "", "path to a backup JSON file (required)")
	return cmd
}

func newManageCleanupCmd(factory Factory, opts *rootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Permanently remove every memory visible to the given identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return usageErr("refusing to clean up without --yes")
			}
			deps, err := factory(opts.configPath)
			if err != nil {
				return opErr(err)
			}
			count, err := deps.Core.DeleteAll(cmd.Context(), opts.owner())
			if err != nil {
				return opErr(err)
			}
			printf(cmd.OutOrStdout(), "cleaned up %d memories\n", count)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the destructive cleanup")
	return cmd
}

func newManageMigrateCmd(factory Factory, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending storage schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			// The storage backend runs its own migration as part of
			// construction, so simply building deps is enough to apply it.
			if _, err := factory(opts.configPath); err != nil {
				return opErr(err)
			}
			printf(cmd.OutOrStdout(), "schema is up to date\n")
			return nil
		},
	}
}
