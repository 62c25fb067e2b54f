package cli

import (
	"encoding/json"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/powermem-ai/powermem/internal/core"
	"github.com/powermem-ai/powermem/pkg/errs"
	"github.com/powermem-ai/powermem/pkg/memory"
	"github.com/powermem-ai/powermem/pkg/types"
)

func newAddCmd(factory Factory, opts *rootOptions) *cobra.Command {
	var (
		content    string
		messages   []string
		infer      bool
		scope      string
		memoryType string
		metadata   string
	)

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a memory, either verbatim (--content) or via fact extraction (--message, repeatable)",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := factory(opts.configPath)
			if err != nil {
				return opErr(err)
			}

			meta, err := parseMetadata(metadata)
			if err != nil {
				return usageErr("%v", err)
			}

			req := core.AddRequest{
				Owner:      opts.owner(),
				Metadata:   meta,
				Scope:      memory.Scope(scope),
				MemoryType: memoryType,
				Infer:      infer,
				Text:       content,
			}
			for _, m := range messages {
				req.Messages = append(req.Messages, types.Message{Role: "user", Content: m})
			}

			result, err := deps.Core.Add(cmd.Context(), req)
			if err != nil {
				return opErr(err)
			}

			return printResult(cmd.OutOrStdout(), opts.jsonOutput, result, func() {
				for _, ev := range result.Events {
					printf(cmd.OutOrStdout(), "%s\tid=%d\t%s\n", ev.Event, ev.ID, ev.MemoryText)
				}
				if result.Warning != nil {
					printf(cmd.OutOrStdout(), "warning: %v\n", result.Warning)
				}
			})
		},
	}

	cmd.Flags().StringVar(&content, "content", "", "verbatim content to store (requires --infer=false)")
	cmd.Flags().StringArrayVar(&messages, "message", nil, "conversation message to extract facts from (repeatable)")
	cmd.Flags().BoolVar(&infer, "infer", true, "extract facts via the LLM (true) or insert --content verbatim (false)")
	cmd.Flags().StringVar(&scope, "scope", string(memory.ScopePrivate), "PRIVATE, AGENT_GROUP, USER_GROUP, or PUBLIC")
	cmd.Flags().StringVar(&memoryType, "memory-type", "", "free-form memory type tag")
	cmd.Flags().StringVar(&metadata, "metadata", "", "JSON object merged into the record's metadata")
	return cmd
}

func parseMetadata(raw string) (map[string]any, error) {
	if raw == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, errs.ValidationError("--metadata must be a JSON object: " + err.Error())
	}
	return m, nil
}

func newSearchCmd(factory Factory, opts *rootOptions) *cobra.Command {
	var (
		query     string
		limit     int
		threshold float64
		rerank    bool
	)

	cmd := &cobra.Command{
		Use:   "search",
		Short: "Retrieve memories by hybrid semantic/lexical similarity",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := factory(opts.configPath)
			if err != nil {
				return opErr(err)
			}

			records, err := deps.Core.Search(cmd.Context(), core.SearchRequest{
				Query: query, Owner: opts.owner(), Limit: limit, Threshold: threshold, Rerank: rerank,
			})
			if err != nil {
				return opErr(err)
			}

			return printResult(cmd.OutOrStdout(), opts.jsonOutput, records, func() {
				for _, r := range records {
					printf(cmd.OutOrStdout(), "%d\t%.4f\t%s\n", r.ID, r.Score, r.Content)
				}
			})
		},
	}

	cmd.Flags().StringVar(&query, "query", "", "search query text (required)")
	cmd.Flags().IntVar(&limit, "limit", 10, "maximum results")
	cmd.Flags().Float64Var(&threshold, "threshold", 0, "minimum similarity score (0 disables)")
	cmd.Flags().BoolVar(&rerank, "rerank", false, "apply the configured reranker")
	_ = cmd.MarkFlagRequired("query")
	return cmd
}

func newGetCmd(factory Factory, opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <id>",
		Short: "Fetch a single memory by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return usageErr("%v", err)
			}
			deps, err := factory(opts.configPath)
			if err != nil {
				return opErr(err)
			}

			record, err := deps.Core.Get(cmd.Context(), id, opts.owner())
			if err != nil {
				return opErr(err)
			}
			return printResult(cmd.OutOrStdout(), opts.jsonOutput, record, func() {
				printf(cmd.OutOrStdout(), "%d\t%s\n", record.ID, record.Content)
			})
		},
	}
	return cmd
}

func newUpdateCmd(factory Factory, opts *rootOptions) *cobra.Command {
	var (
		content  string
		metadata string
	)

	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a memory's content and/or metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return usageErr("%v", err)
			}
			meta, err := parseMetadata(metadata)
			if err != nil {
				return usageErr("%v", err)
			}
			deps, err := factory(opts.configPath)
			if err != nil {
				return opErr(err)
			}

			record, err := deps.Core.Update(cmd.Context(), id, content, meta, opts.owner())
			if err != nil {
				return opErr(err)
			}
			return printResult(cmd.OutOrStdout(), opts.jsonOutput, record, func() {
				printf(cmd.OutOrStdout(), "%d\t%s\n", record.ID, record.Content)
			})
		},
	}
	cmd.Flags().StringVar(&content, "content", "", "new content (recomputes hash and embedding)")
	cmd.Flags().StringVar(&metadata, "metadata", "", "JSON object replacing the record's metadata")
	return cmd
}

func newDeleteCmd(factory Factory, opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a single memory by id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return usageErr("%v", err)
			}
			deps, err := factory(opts.configPath)
			if err != nil {
				return opErr(err)
			}
			if err := deps.Core.Delete(cmd.Context(), id, opts.owner()); err != nil {
				return opErr(err)
			}
			printf(cmd.OutOrStdout(), "deleted %d\n", id)
			return nil
		},
	}
	return cmd
}

func newListCmd(factory Factory, opts *rootOptions) *cobra.Command {
	var (
		limit  int
		offset int
		sortBy string
		order  string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List memories for an identity, no similarity ranking",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := factory(opts.configPath)
			if err != nil {
				return opErr(err)
			}

			records, err := deps.Core.GetAll(cmd.Context(), core.GetAllRequest{
				Owner: opts.owner(), Limit: limit, Offset: offset,
				SortBy: memory.SortField(sortBy), Order: memory.SortOrder(order),
			})
			if err != nil {
				return opErr(err)
			}
			return printResult(cmd.OutOrStdout(), opts.jsonOutput, records, func() {
				for _, r := range records {
					printf(cmd.OutOrStdout(), "%d\t%s\n", r.ID, r.Content)
				}
			})
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum results")
	cmd.Flags().IntVar(&offset, "offset", 0, "pagination offset")
	cmd.Flags().StringVar(&sortBy, "sort-by", string(memory.SortByCreatedAt), "id, created_at, or updated_at")
	cmd.Flags().StringVar(&order, "order", string(memory.OrderDesc), "asc or desc")
	return cmd
}

func newDeleteAllCmd(factory Factory, opts *rootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "delete-all",
		Short: "Delete every memory visible to the given identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return usageErr("refusing to delete all memories without --yes")
			}
			deps, err := factory(opts.configPath)
			if err != nil {
				return opErr(err)
			}
			count, err := deps.Core.DeleteAll(cmd.Context(), opts.owner())
			if err != nil {
				return opErr(err)
			}
			printf(cmd.OutOrStdout(), "deleted %d memories\n", count)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the destructive bulk delete")
	return cmd
}

func newStatsCmd(factory Factory, opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show aggregate statistics, optionally scoped to an identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			deps, err := factory(opts.configPath)
			if err != nil {
				return opErr(err)
			}
			stats, err := deps.Core.GetStatistics(cmd.Context(), opts.owner())
			if err != nil {
				return opErr(err)
			}
			return printResult(cmd.OutOrStdout(), opts.jsonOutput, stats, func() {
				printf(cmd.OutOrStdout(), "count: %d\n", stats.Count)
				for t, n := range stats.ByMemoryType {
					printf(cmd.OutOrStdout(), "  memory_type=%s: %d\n", t, n)
				}
			})
		},
	}
	return cmd
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, errs.ValidationError("id must be a 64-bit integer: " + err.Error())
	}
	return id, nil
}
