package ui

import (
	"strconv"
	"strings"
	"time"
)

type TicketRow struct {
	NumberLabel  string
	Key          string
	Summary      string
	StatusLabel  string
	UpdatedLabel string
	Done         bool
}

func BuildTicketRow(index int, key string, summary string, status string, category string, updated time.Time, now time.Time) TicketRow {
	return TicketRow{
		NumberLabel:  strconv.Itoa(index + 1),
		Key:          strings.TrimSpace(key),
		Summary:      strings.TrimSpace(summary),
		StatusLabel:  formatTicketStatus(status),
		UpdatedLabel: formatUpdatedLabel(updated, now),
		Done:         strings.EqualFold(strings.TrimSpace(category), "done"),
	}
}

func RenderTicketTable(rows []TicketRow, styles Styles) string {
	const (
		numberWidth  = 4
		keyWidth     = 12
		summaryWidth = 56
		statusWidth  = 16
		updatedWidth = 10
	)
	var b strings.Builder
	header := formatTicketLine("#", "Key", "Summary", "Status", "Updated", numberWidth, keyWidth, summaryWidth, statusWidth, updatedWidth)
	b.WriteString(styles.Header("  " + header))
	b.WriteString("\n")
	if len(rows) == 0 {
		b.WriteString("  ")
		b.WriteString(styles.Disabled("No tickets."))
		b.WriteString("\n")
		return b.String()
	}
	for _, row := range rows {
		rowStyle := styles.Normal
		if row.Done {
			rowStyle = styles.Disabled
		}
		line := formatTicketLine(
			row.NumberLabel,
			row.Key,
			row.Summary,
			row.StatusLabel,
			row.UpdatedLabel,
			numberWidth,
			keyWidth,
			summaryWidth,
			statusWidth,
			updatedWidth,
		)
		b.WriteString("  " + rowStyle(line))
		b.WriteString("\n")
	}
	return b.String()
}

func formatTicketLine(number string, key string, summary string, status string, updated string, numberWidth int, keyWidth int, summaryWidth int, statusWidth int, updatedWidth int) string {
	return PadOrTrim(number, numberWidth) + " " +
		PadOrTrim(key, keyWidth) + " " +
		PadOrTrim(summary, summaryWidth) + " " +
		PadOrTrim(status, statusWidth) + " " +
		PadOrTrim(updated, updatedWidth)
}

func formatTicketStatus(status string) string {
	s := strings.TrimSpace(status)
	if s == "" {
		return "-"
	}
	return s
}

func formatUpdatedLabel(updated time.Time, now time.Time) string {
	if updated.IsZero() {
		return "-"
	}
	d := now.Sub(updated)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return strconv.Itoa(int(d/time.Minute)) + "m ago"
	case d < 24*time.Hour:
		return strconv.Itoa(int(d/time.Hour)) + "h ago"
	case d < 30*24*time.Hour:
		return strconv.Itoa(int(d/(24*time.Hour))) + "d ago"
	default:
		return updated.Format("2006-01-02")
	}
}
