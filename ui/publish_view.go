package ui

import "strings"

type PublishOutcome int

const (
	PublishPublished PublishOutcome = iota
	PublishUnchanged
	PublishFailed
)

type PublishRow struct {
	Project string
	Outcome PublishOutcome
	Detail  string
}

func RenderPublishSummary(rows []PublishRow, styles Styles) string {
	const (
		projectWidth = 32
		outcomeWidth = 12
		detailWidth  = 60
	)
	var b strings.Builder
	b.WriteString(styles.Header("  " + formatPublishLine("Branch", "Result", "Detail", projectWidth, outcomeWidth, detailWidth)))
	b.WriteString("\n")
	if len(rows) == 0 {
		b.WriteString("  ")
		b.WriteString(styles.Disabled("Nothing published."))
		b.WriteString("\n")
		return b.String()
	}
	for _, row := range rows {
		style := styles.Normal
		switch row.Outcome {
		case PublishPublished:
			style = styles.Success
		case PublishUnchanged:
			style = styles.Secondary
		case PublishFailed:
			style = styles.Failure
		}
		line := formatPublishLine(row.Project, publishOutcomeLabel(row.Outcome), formatPublishDetail(row.Detail), projectWidth, outcomeWidth, detailWidth)
		b.WriteString("  " + style(line))
		b.WriteString("\n")
	}
	return b.String()
}

func formatPublishLine(project string, outcome string, detail string, projectWidth int, outcomeWidth int, detailWidth int) string {
	return PadOrTrim(project, projectWidth) + " " +
		PadOrTrim(outcome, outcomeWidth) + " " +
		PadOrTrim(detail, detailWidth)
}

func publishOutcomeLabel(outcome PublishOutcome) string {
	switch outcome {
	case PublishPublished:
		return "✓ pushed"
	case PublishUnchanged:
		return "- unchanged"
	default:
		return "✗ failed"
	}
}

func formatPublishDetail(detail string) string {
	d := strings.TrimSpace(detail)
	if d == "" {
		return "-"
	}
	if i := strings.IndexByte(d, '\n'); i >= 0 {
		d = d[:i]
	}
	return d
}
