package contextmgr

import (
	"fmt"
	"strings"
	"time"
)

const (
	maxToolResultsAfterCompress = 5
	maxFileContextAfterCompress = 3
	maxHistoryAfterCompress     = 10
	summaryPreviewChars         = 100
)

// Compress mutates ctx in place, applying three strategies in order and
// stopping as soon as the estimated token count is at or under target:
//  1. keep only the last 5 tool results,
//  2. keep only the last 3 file-context entries,
//  3. if more than 10 history messages remain, drain all but the last 10
//     and replace them with a synthetic summary.
// is_compressed / compression_ratio are only set if strategy 3 ran.
func (s *Store) Compress(ctx *AgentContext, targetTokens int) CompressionReport {
	original := s.EstimateTokenCount(ctx)
	report := CompressionReport{OriginalTokens: original}

	if original <= targetTokens {
		report.CompressedTokens = original
		report.Ratio = 1.0
		return report
	}

	if len(ctx.ToolResults) > maxToolResultsAfterCompress {
		report.ToolResultsDropped = len(ctx.ToolResults) - maxToolResultsAfterCompress
		ctx.ToolResults = append([]ToolResultEntry{}, ctx.ToolResults[len(ctx.ToolResults)-maxToolResultsAfterCompress:]...)
	}
	if s.EstimateTokenCount(ctx) <= targetTokens {
		return s.finishCompression(ctx, report, false)
	}

	if len(ctx.FileContext) > maxFileContextAfterCompress {
		report.FileContextDropped = len(ctx.FileContext) - maxFileContextAfterCompress
		ctx.FileContext = append([]FileContextEntry{}, ctx.FileContext[len(ctx.FileContext)-maxFileContextAfterCompress:]...)
	}
	if s.EstimateTokenCount(ctx) <= targetTokens {
		return s.finishCompression(ctx, report, false)
	}

	if len(ctx.History) > maxHistoryAfterCompress {
		dropped := ctx.History[:len(ctx.History)-maxHistoryAfterCompress]
		ctx.History = append([]Message{}, ctx.History[len(ctx.History)-maxHistoryAfterCompress:]...)
		summary := summarizeDropped(dropped)
		ctx.Summary = &summary
		report.HistorySummarized = true
	}

	return s.finishCompression(ctx, report, report.HistorySummarized)
}

func (s *Store) finishCompression(ctx *AgentContext, report CompressionReport, strategy3Ran bool) CompressionReport {
	report.CompressedTokens = s.EstimateTokenCount(ctx)
	if report.OriginalTokens > 0 {
		report.Ratio = float64(report.CompressedTokens) / float64(report.OriginalTokens)
	} else {
		report.Ratio = 1.0
	}
	ctx.Metadata.TokenCount = report.CompressedTokens
	ctx.Metadata.UpdatedAt = time.Now().UTC()
	if strategy3Ran {
		ctx.Metadata.IsCompressed = true
		ctx.Metadata.CompressionRatio = report.Ratio
	}
	return report
}

func summarizeDropped(dropped []Message) string {
	var b strings.Builder
	b.WriteString("Previous conversation summary:")
	for _, m := range dropped {
		preview := m.Content
		if len(preview) > summaryPreviewChars {
			preview = preview[:summaryPreviewChars]
		}
		fmt.Fprintf(&b, "\n- %s: %s", m.Role, preview)
	}
	return b.String()
}
