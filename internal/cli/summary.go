package cli

import (
	"fmt"
	"strings"

	"github.com/torro-zz/pvre/internal/model"
)

// RenderRunSummary renders the final run outcome as a styled box: signal
// counts, quality and confidence grades, filter metrics and the top
// communities.
func RenderRunSummary(result *model.RunResult) string {
	if result == nil {
		return ""
	}

	var b strings.Builder

	b.WriteString(BoldStyle.Render(fmt.Sprintf("%d pain signals", result.Summary.TotalSignals)))
	b.WriteString(SubtleStyle.Render(fmt.Sprintf("  (%d core, %d related)",
		result.Summary.CoreSignals, result.Summary.RelatedSignals)))
	b.WriteString("\n\n")

	b.WriteString(fmt.Sprintf("Quality:     %s\n", qualityLabel(result.Summary.Quality)))
	b.WriteString(fmt.Sprintf("Confidence:  %s\n", confidenceLabel(result.Summary.Confidence)))
	b.WriteString(fmt.Sprintf("Avg score:   %.1f\n", result.Summary.AverageScore))
	b.WriteString(fmt.Sprintf("Recency:     %.0f%%\n", result.Summary.RecencyScore))
	if result.Summary.WillingnessToPay > 0 {
		b.WriteString(SuccessStyle.Render(
			fmt.Sprintf("%d signals mention willingness to pay", result.Summary.WillingnessToPay)))
		b.WriteString("\n")
	}

	m := result.Metrics
	b.WriteString("\n")
	b.WriteString(SubtleStyle.Render(fmt.Sprintf(
		"classified %d items, %d filtered out, %d excluded pre-classification",
		m.Before, m.FilteredOut, m.PreFilterSkipped)))
	b.WriteString("\n")
	if m.ParseFailures > 0 {
		b.WriteString(WarningStyle.Render(
			fmt.Sprintf("%s %d oracle batches fell back to conservative inclusion",
				WarningIcon, m.ParseFailures)))
		b.WriteString("\n")
	}

	if len(result.Summary.TopCommunities) > 0 {
		b.WriteString("\n")
		b.WriteString(BoldStyle.Render("Top communities"))
		b.WriteString("\n")
		for _, cc := range result.Summary.TopCommunities {
			b.WriteString(fmt.Sprintf("  %s %s\n",
				TableCellStyle.Render(fmt.Sprintf("%3d", cc.Count)), cc.Community))
		}
	}

	title := FormatTitle("Run " + result.JobID)
	if result.State == model.StateFailed {
		title = ErrorStyle.Render(ErrorIcon + " Run " + result.JobID + " failed during " + string(result.FailedStage))
	}

	return RenderBox(title, strings.TrimRight(b.String(), "\n"))
}

func qualityLabel(q model.QualityLevel) string {
	switch q {
	case model.QualityHigh:
		return SuccessStyle.Render(string(q))
	case model.QualityMedium:
		return WarningStyle.Render(string(q))
	default:
		return ErrorStyle.Render(string(q))
	}
}

func confidenceLabel(c model.DataConfidence) string {
	switch c {
	case model.ConfidenceHigh, model.ConfidenceMedium:
		return SuccessStyle.Render(string(c))
	case model.ConfidenceLow:
		return WarningStyle.Render(string(c))
	default:
		return ErrorStyle.Render(string(c))
	}
}
