package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"curator/internal/api"
	"curator/internal/queue"
)

var queueListColumns = []tableColumn{
	{Header: "Item", Right: true},
	{Header: "Status"},
	{Header: "Priority", Right: true},
	{Header: "Attempts", Right: true},
	{Header: "Created"},
	{Header: "Error"},
}

// errorColumnWidth truncates failure reasons in list output.
const errorColumnWidth = 48

var statusTitle = cases.Title(language.Und)

func formatStatusLabel(status string) string {
	return statusTitle.String(strings.TrimSpace(status))
}

func buildQueueStatusRows(stats api.QueueStats) [][]string {
	rows := make([][]string, 0, len(queue.AllStatuses())+1)
	for _, status := range queue.AllStatuses() {
		count := stats.Count(status)
		if count == 0 {
			continue
		}
		rows = append(rows, []string{formatStatusLabel(string(status)), strconv.Itoa(count)})
	}
	rows = append(rows, []string{"Total", strconv.Itoa(stats.Total)})
	return rows
}

func buildQueueListRows(entries []api.QueueEntry) [][]string {
	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, []string{
			strconv.FormatInt(entry.ItemID, 10),
			formatStatusLabel(entry.Status),
			strconv.Itoa(entry.Priority),
			fmt.Sprintf("%d/%d", entry.Attempts, entry.MaxAttempts),
			formatListTime(entry.CreatedAt),
			truncate(entry.ErrorMessage, errorColumnWidth),
		})
	}
	return rows
}

func printQueueEntry(cmd *cobra.Command, entry api.QueueEntry) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Item: %d\n", entry.ItemID)
	fmt.Fprintf(out, "Entry: %d\n", entry.ID)
	fmt.Fprintf(out, "Status: %s\n", formatStatusLabel(entry.Status))
	fmt.Fprintf(out, "Priority: %d\n", entry.Priority)
	fmt.Fprintf(out, "Attempts: %d/%d\n", entry.Attempts, entry.MaxAttempts)
	fmt.Fprintf(out, "Created: %s\n", formatListTime(entry.CreatedAt))
	fmt.Fprintf(out, "Updated: %s\n", formatListTime(entry.UpdatedAt))
	if entry.LockedBy != "" {
		fmt.Fprintf(out, "Locked by: %s since %s\n", entry.LockedBy, formatListTime(entry.LockedAt))
	}
	if entry.CompletedAt != "" {
		fmt.Fprintf(out, "Completed: %s\n", formatListTime(entry.CompletedAt))
	}
	if entry.ErrorMessage != "" {
		fmt.Fprintf(out, "Error: %s\n", entry.ErrorMessage)
	}
}

func formatListTime(value string) string {
	parsed := api.ParseTime(value)
	if parsed.IsZero() {
		return "-"
	}
	return parsed.Local().Format("2006-01-02 15:04:05")
}

func truncate(value string, width int) string {
	value = strings.TrimSpace(value)
	runes := []rune(value)
	if width <= 3 || len(runes) <= width {
		return value
	}
	return string(runes[:width-3]) + "..."
}
