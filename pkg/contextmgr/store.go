package contextmgr

import (
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Store owns a set of AgentContext values keyed by id. It is logically
// single-writer; the mutex here only protects the in-process map from
// concurrent callers, it does not make Persist/Load on the same id safe
// to race — that remains the caller's responsibility, per spec.
type Store struct {
	mu       sync.Mutex
	contexts map[string]*AgentContext
	dir      string
}

// New constructs an empty Store. dir is the blob persistence directory
// used by Persist/Load; an empty dir is replaced by DefaultContextsDir on
// the first Persist or Load.
func New(dir string) *Store {
	return &Store{contexts: make(map[string]*AgentContext), dir: dir}
}

// Create builds a new context, optionally deriving it from parent via
// Inherit. Without a parent, fields are empty and metadata is default.
func (s *Store) Create(parent *AgentContext, cfg *InheritanceConfig) *AgentContext {
	if parent == nil {
		ctx := s.newEmptyContext(nil)
		s.store(ctx)
		return ctx
	}
	if cfg == nil {
		basic := InheritanceConfig{Type: InheritNone}
		cfg = &basic
	}
	ctx := s.Inherit(parent, *cfg)
	return ctx
}

func (s *Store) newEmptyContext(parentID *string) *AgentContext {
	now := time.Now().UTC()
	return &AgentContext{
		ID:          uuid.NewString(),
		ParentID:    parentID,
		Environment: make(map[string]string),
		Metadata: Metadata{
			Custom:    make(map[string]string),
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

func (s *Store) store(ctx *AgentContext) {
	s.mu.Lock()
	s.contexts[ctx.ID] = ctx
	s.mu.Unlock()
}

// Inherit derives a new child context from parent according to cfg.
func (s *Store) Inherit(parent *AgentContext, cfg InheritanceConfig) *AgentContext {
	parentID := parent.ID
	child := s.newEmptyContext(&parentID)

	switch cfg.Type {
	case InheritNone:
		// only the parent id link was set above.
	case InheritFull:
		child.History = truncateTail(parent.History, cfg.MaxHistory)
		child.FileContext = truncateTail(parent.FileContext, cfg.MaxFileContext)
		child.ToolResults = truncateTail(parent.ToolResults, cfg.MaxToolResults)
		child.Environment = copyEnv(parent.Environment)
		child.SystemPrompt = parent.SystemPrompt
		child.WorkingDir = parent.WorkingDir
	case InheritShallow, InheritSelective:
		if cfg.InheritHistory {
			child.History = truncateTail(parent.History, cfg.MaxHistory)
		}
		if cfg.InheritFileContext {
			child.FileContext = truncateTail(parent.FileContext, cfg.MaxFileContext)
		}
		if cfg.InheritToolResults {
			child.ToolResults = truncateTail(parent.ToolResults, cfg.MaxToolResults)
		}
		if cfg.InheritEnvironment {
			child.Environment = copyEnv(parent.Environment)
		}
		child.SystemPrompt = parent.SystemPrompt
		child.WorkingDir = parent.WorkingDir
	}

	if cfg.FilterSensitive {
		filtered := s.Filter(child, DefaultFilter())
		child = filtered
	}
	child.Metadata.TokenCount = s.EstimateTokenCount(child)

	if cfg.CompressContext && cfg.TargetTokens != nil {
		_ = s.Compress(child, *cfg.TargetTokens)
	}

	s.store(child)
	return child
}

func truncateTail[T any](items []T, limit *int) []T {
	out := append([]T{}, items...)
	if limit == nil || *limit < 0 || len(out) <= *limit {
		return out
	}
	return append([]T{}, out[len(out)-*limit:]...)
}

func copyEnv(env map[string]string) map[string]string {
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[k] = v
	}
	return out
}

// Filter returns a new context with env/file/tool entries excluded per
// filter, and sensitive patterns redacted from surviving content.
func (s *Store) Filter(ctx *AgentContext, filter Filter) *AgentContext {
	out := cloneContext(ctx)

	excludedEnv := make(map[string]struct{}, len(filter.ExcludedEnvKeys))
	for _, k := range filter.ExcludedEnvKeys {
		excludedEnv[strings.ToUpper(k)] = struct{}{}
	}
	newEnv := make(map[string]string, len(out.Environment))
	for k, v := range out.Environment {
		if _, excluded := excludedEnv[strings.ToUpper(k)]; excluded {
			continue
		}
		newEnv[k] = v
	}
	out.Environment = newEnv

	filePatterns := compileGlobs(filter.ExcludedFilePatterns)
	newFiles := make([]FileContextEntry, 0, len(out.FileContext))
	for _, fc := range out.FileContext {
		if matchesAny(filePatterns, fc.Path) {
			continue
		}
		newFiles = append(newFiles, fc)
	}
	out.FileContext = newFiles

	excludedTools := make(map[string]struct{}, len(filter.ExcludedTools))
	for _, t := range filter.ExcludedTools {
		excludedTools[t] = struct{}{}
	}
	newTools := make([]ToolResultEntry, 0, len(out.ToolResults))
	for _, tr := range out.ToolResults {
		if _, excluded := excludedTools[tr.ToolName]; excluded {
			continue
		}
		newTools = append(newTools, tr)
	}
	out.ToolResults = newTools

	sensitive := compileRegexes(filter.SensitivePatterns)
	for i := range out.FileContext {
		out.FileContext[i].Content = redact(out.FileContext[i].Content, sensitive)
	}
	for i := range out.ToolResults {
		out.ToolResults[i].Content = redact(out.ToolResults[i].Content, sensitive)
	}

	out.Metadata.TokenCount = s.EstimateTokenCount(out)
	out.Metadata.UpdatedAt = time.Now().UTC()
	return out
}

func compileGlobs(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		escaped := strings.ReplaceAll(regexp.QuoteMeta(p), `\*`, ".*")
		re, err := regexp.Compile("^" + escaped + "$")
		if err != nil {
			continue
		}
		out = append(out, re)
	}
	return out
}

func compileRegexes(patterns []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			continue
		}
		out = append(out, re)
	}
	return out
}

func matchesAny(patterns []*regexp.Regexp, s string) bool {
	for _, re := range patterns {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

func redact(content string, patterns []*regexp.Regexp) string {
	for _, re := range patterns {
		content = re.ReplaceAllString(content, "[REDACTED]")
	}
	return content
}

func cloneContext(ctx *AgentContext) *AgentContext {
	out := *ctx
	out.History = append([]Message{}, ctx.History...)
	out.FileContext = append([]FileContextEntry{}, ctx.FileContext...)
	out.ToolResults = append([]ToolResultEntry{}, ctx.ToolResults...)
	out.Environment = copyEnv(ctx.Environment)
	out.Metadata.Custom = make(map[string]string, len(ctx.Metadata.Custom))
	for k, v := range ctx.Metadata.Custom {
		out.Metadata.Custom[k] = v
	}
	out.Metadata.Tags = append([]string{}, ctx.Metadata.Tags...)
	return &out
}

// Merge folds a list of contexts into a single new one: histories and
// tool results append in order, file contexts dedupe by path (first
// occurrence wins), environments merge with later contexts overriding,
// system prompt is the last non-empty one, working directory the last
// non-default (".") one.
func (s *Store) Merge(contexts []*AgentContext) *AgentContext {
	out := s.newEmptyContext(nil)
	if len(contexts) == 0 {
		s.store(out)
		return out
	}

	seenPaths := make(map[string]struct{})
	for _, c := range contexts {
		out.History = append(out.History, c.History...)
		out.ToolResults = append(out.ToolResults, c.ToolResults...)
		for _, fc := range c.FileContext {
			if _, seen := seenPaths[fc.Path]; seen {
				continue
			}
			seenPaths[fc.Path] = struct{}{}
			out.FileContext = append(out.FileContext, fc)
		}
		for k, v := range c.Environment {
			out.Environment[k] = v
		}
		if c.SystemPrompt != nil && *c.SystemPrompt != "" {
			out.SystemPrompt = c.SystemPrompt
		}
		if c.WorkingDir != "" && c.WorkingDir != "." {
			out.WorkingDir = c.WorkingDir
		}
	}

	out.Metadata.TokenCount = s.EstimateTokenCount(out)
	out.Metadata.UpdatedAt = time.Now().UTC()
	s.store(out)
	return out
}

// Update mutates the stored context identified by id, applying additive
// list extensions, environment merging, prompt/working-dir replacement,
// and tag/custom-metadata additions. Returns NotFound if id is absent.
func (s *Store) Update(id string, u Update) (*AgentContext, error) {
	s.mu.Lock()
	ctx, ok := s.contexts[id]
	s.mu.Unlock()
	if !ok {
		return nil, newError(KindNotFound, id, "no such context")
	}

	ctx.History = append(ctx.History, u.AppendHistory...)
	ctx.FileContext = append(ctx.FileContext, u.AppendFileContext...)
	ctx.ToolResults = append(ctx.ToolResults, u.AppendToolResults...)
	if ctx.Environment == nil {
		ctx.Environment = make(map[string]string)
	}
	for k, v := range u.MergeEnvironment {
		ctx.Environment[k] = v
	}
	if u.SystemPrompt != nil {
		ctx.SystemPrompt = u.SystemPrompt
	}
	if u.WorkingDir != nil {
		ctx.WorkingDir = *u.WorkingDir
	}
	ctx.Metadata.Tags = append(ctx.Metadata.Tags, u.AddTags...)
	if ctx.Metadata.Custom == nil {
		ctx.Metadata.Custom = make(map[string]string)
	}
	for k, v := range u.AddCustom {
		ctx.Metadata.Custom[k] = v
	}

	ctx.Metadata.TokenCount = s.EstimateTokenCount(ctx)
	ctx.Metadata.UpdatedAt = time.Now().UTC()
	return ctx, nil
}

// Get returns the stored context for id, if present.
func (s *Store) Get(id string) (*AgentContext, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, ok := s.contexts[id]
	return ctx, ok
}

// Delete removes a context from the in-memory store (not from any
// persisted blob).
func (s *Store) Delete(id string) {
	s.mu.Lock()
	delete(s.contexts, id)
	s.mu.Unlock()
}

// EstimateTokenCount sums the character length of every textual field and
// divides by 4 — deliberately approximate, per spec; callers wanting a
// precise count should use a TiktokenEstimator instead (see tiktoken.go).
func (s *Store) EstimateTokenCount(ctx *AgentContext) int {
	total := 0
	for _, m := range ctx.History {
		total += len(m.Content)
	}
	if ctx.Summary != nil {
		total += len(*ctx.Summary)
	}
	for _, fc := range ctx.FileContext {
		total += len(fc.Content)
	}
	for _, tr := range ctx.ToolResults {
		total += len(tr.Content)
	}
	if ctx.SystemPrompt != nil {
		total += len(*ctx.SystemPrompt)
	}
	return total / 4
}

// GetContextSummary returns a short human-readable digest of a context's
// shape, the kind of thing a debug dashboard wants.
func (s *Store) GetContextSummary(ctx *AgentContext) map[string]any {
	return map[string]any{
		"id":               ctx.ID,
		"history_len":      len(ctx.History),
		"file_context_len": len(ctx.FileContext),
		"tool_results_len": len(ctx.ToolResults),
		"token_count":      ctx.Metadata.TokenCount,
		"is_compressed":    ctx.Metadata.IsCompressed,
	}
}

// GetCompactionInfo reports whether ctx has been compressed and at what ratio.
func (s *Store) GetCompactionInfo(ctx *AgentContext) (compressed bool, ratio float64) {
	return ctx.Metadata.IsCompressed, ctx.Metadata.CompressionRatio
}
