package contextmgr

import "orchestrator-core/pkg/utils"

// TiktokenEstimator is an optional, precise alternative to
// Store.EstimateTokenCount's char/4 heuristic, for callers doing
// token-aware budgeting who want accuracy over that deliberately rough
// default.
type TiktokenEstimator struct {
	counter *utils.TokenCounter
}

// NewTiktokenEstimator builds an estimator for model. Falls back silently
// to the char/4 heuristic internally if the tokenizer codec can't be
// constructed, matching TokenCounter's own fallback behavior.
func NewTiktokenEstimator(model string) *TiktokenEstimator {
	counter, err := utils.NewTokenCounter(model)
	if err != nil {
		counter = nil
	}
	return &TiktokenEstimator{counter: counter}
}

// EstimateTokenCount sums precise per-field token counts instead of the
// char/4 approximation.
func (e *TiktokenEstimator) EstimateTokenCount(ctx *AgentContext) int {
	if e.counter == nil {
		return (&Store{}).EstimateTokenCount(ctx)
	}
	total := 0
	for _, m := range ctx.History {
		total += e.counter.CountTokens(m.Content)
	}
	if ctx.Summary != nil {
		total += e.counter.CountTokens(*ctx.Summary)
	}
	for _, fc := range ctx.FileContext {
		total += e.counter.CountTokens(fc.Content)
	}
	for _, tr := range ctx.ToolResults {
		total += e.counter.CountTokens(tr.Content)
	}
	if ctx.SystemPrompt != nil {
		total += e.counter.CountTokens(*ctx.SystemPrompt)
	}
	return total
}
