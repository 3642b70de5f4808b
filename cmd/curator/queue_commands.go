package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"curator/internal/api"
	"curator/internal/queue"
	"curator/internal/queueaccess"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the processing queue",
	}

	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueEnqueueCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))

	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue status summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withQueue(cmd, func(access queueaccess.Access) error {
				stats, err := access.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, stats)
				}
				if stats.Total == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(
					[]tableColumn{{Header: "Status"}, {Header: "Count", Right: true}},
					buildQueueStatusRows(stats),
				))
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var status string
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue entries by priority",
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit <= 0 {
				limit = ctx.configValue().Queue.ListLimit
			}
			return ctx.withQueue(cmd, func(access queueaccess.Access) error {
				entries, err := access.List(cmd.Context(), strings.TrimSpace(status), limit)
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, api.QueueListResponse{Entries: entries})
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Queue is empty")
					return nil
				}
				fmt.Fprint(cmd.OutOrStdout(), renderTable(queueListColumns, buildQueueListRows(entries)))
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&status, "status", "s", "", "Only list entries with this status (pending, processing, completed, failed)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum entries to list (defaults to queue.list_limit)")
	return cmd
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show ITEM_ID",
		Short: "Show the queue entry for an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			itemID, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			return ctx.withQueue(cmd, func(access queueaccess.Access) error {
				entry, err := access.Describe(cmd.Context(), itemID)
				if err != nil {
					return err
				}
				if entry == nil {
					return fmt.Errorf("item %d is not queued", itemID)
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, entry)
				}
				printQueueEntry(cmd, *entry)
				return nil
			})
		},
	}
}

func newQueueEnqueueCommand(ctx *commandContext) *cobra.Command {
	var priority int

	cmd := &cobra.Command{
		Use:   "enqueue ITEM_ID",
		Short: "Queue an item for processing",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			itemID, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			return ctx.withQueue(cmd, func(access queueaccess.Access) error {
				resp, err := access.Enqueue(cmd.Context(), api.EnqueueRequest{ItemID: itemID, Priority: priority})
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp)
				}
				out := cmd.OutOrStdout()
				if resp.Queued {
					fmt.Fprintf(out, "Queued item %d (entry %d, priority %d)\n", itemID, resp.EntryID, priority)
				} else {
					fmt.Fprintf(out, "Item %d already has a pending or processing entry\n", itemID)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&priority, "priority", "p", 0, "Claim priority; higher values are processed first")
	return cmd
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	var enqueue bool
	var priority int

	cmd := &cobra.Command{
		Use:   "retry ITEM_ID",
		Short: "Reset a completed or failed entry to pending",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			itemID, err := parseItemID(args[0])
			if err != nil {
				return err
			}
			return ctx.withQueue(cmd, func(access queueaccess.Access) error {
				resp, err := access.Retry(cmd.Context(), itemID, api.RetryRequest{Enqueue: enqueue, Priority: priority})
				if err != nil {
					return err
				}
				if ctx.JSONMode() {
					return writeJSON(cmd, resp)
				}
				if !resp.Pending {
					return fmt.Errorf("item %d has no completed or failed entry to retry", itemID)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Item %d is pending\n", itemID)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&enqueue, "enqueue", false, "Queue the item when it has no entry to reset")
	cmd.Flags().IntVarP(&priority, "priority", "p", 0, "Priority used with --enqueue")
	return cmd
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check queue database health (schema, integrity, columns)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := queueaccess.OpenStore(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			health, err := queueaccess.CheckHealth(cmd.Context(), store)
			if err != nil {
				return err
			}
			if ctx.JSONMode() {
				return writeJSON(cmd, health)
			}
			printDatabaseHealth(cmd, cfg.Queue.Backend, health)
			return nil
		},
	}
}

func parseItemID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid item id %q", raw)
	}
	return id, nil
}

func printDatabaseHealth(cmd *cobra.Command, backend string, health queue.DatabaseHealth) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Backend: %s\n", backend)
	if health.DBPath != "" {
		fmt.Fprintf(out, "Database path: %s\n", health.DBPath)
	}
	fmt.Fprintf(out, "Database exists: %s\n", yesNo(health.DatabaseExists))
	fmt.Fprintf(out, "Readable: %s\n", yesNo(health.DatabaseReadable))
	if health.SchemaVersion > 0 {
		fmt.Fprintf(out, "Schema version: %d\n", health.SchemaVersion)
	}
	fmt.Fprintf(out, "processing_queue table present: %s\n", yesNo(health.TableExists))
	if len(health.MissingColumns) > 0 {
		fmt.Fprintf(out, "Missing columns: %s\n", strings.Join(health.MissingColumns, ", "))
	} else {
		fmt.Fprintln(out, "Missing columns: none")
	}
	fmt.Fprintf(out, "Integrity check: %s\n", yesNo(health.IntegrityCheck))
	fmt.Fprintf(out, "Total entries: %d\n", health.TotalEntries)
	if health.Error != "" {
		fmt.Fprintf(out, "Error: %s\n", health.Error)
	}
}
