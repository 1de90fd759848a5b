// Package contextmgr owns AgentContext lifecycle: creation, parent-derived
// inheritance, filtering, compression to a token budget, merging, and
// blob-per-context persistence. It is pure data logic — single-writer, no
// internal concurrency beyond what the Store's mutex provides for map
// bookkeeping.
package contextmgr

import "time"

// Message is one turn of conversation history.
type Message struct {
	Timestamp time.Time
	Role      string
	Content   string
}

// FileContextEntry is a file's path plus the textual content an agent
// pulled into its working context.
type FileContextEntry struct {
	Path    string
	Content string
}

// ToolResultEntry is one tool invocation's recorded output.
type ToolResultEntry struct {
	ToolName string
	Content  string
}

// Metadata carries the bookkeeping fields that ride alongside a context's
// substantive content.
type Metadata struct {
	Custom           map[string]string
	Tags             []string
	TokenCount        int
	CompressionRatio  float64
	CreatedAt         time.Time
	UpdatedAt         time.Time
	IsCompressed      bool
}

// AgentContext is the full working-context value the store owns.
type AgentContext struct {
	ParentID       *string
	Summary        *string
	SystemPrompt   *string
	Environment    map[string]string
	ID             string
	WorkingDir     string
	History        []Message
	FileContext    []FileContextEntry
	ToolResults    []ToolResultEntry
	Metadata       Metadata
}

// InheritanceType selects how a child context derives from its parent.
type InheritanceType int8

const (
	// InheritNone copies nothing but the parent id.
	InheritNone InheritanceType = iota
	// InheritFull copies every category, subject to tail-truncation limits.
	InheritFull
	// InheritShallow copies only categories whose Inherit* flag is set.
	InheritShallow
	// InheritSelective behaves identically to InheritShallow; it exists
	// as a distinct named mode because the embedder may want to signal
	// "a curated subset" versus "a quick shallow copy" even though the
	// mechanics are the same copy-if-flagged rule.
	InheritSelective
)

// InheritanceConfig controls Store.Inherit / Store.Create.
type InheritanceConfig struct {
	MaxHistory         *int
	MaxFileContext     *int
	MaxToolResults     *int
	TargetTokens       *int
	Type               InheritanceType
	InheritHistory     bool
	InheritFileContext bool
	InheritToolResults bool
	InheritEnvironment bool
	FilterSensitive    bool
	CompressContext    bool
}

// Filter describes a redaction/exclusion pass applied by Store.Filter.
type Filter struct {
	ExcludedEnvKeys     []string
	ExcludedFilePatterns []string
	ExcludedTools       []string
	SensitivePatterns   []string
}

// DefaultFilter returns a conservative default: common secret-shaped env
// keys and a couple of generic secret-pattern redactions.
func DefaultFilter() Filter {
	return Filter{
		ExcludedEnvKeys: []string{"API_KEY", "SECRET", "TOKEN", "PASSWORD", "PRIVATE_KEY"},
		SensitivePatterns: []string{
			`sk-[A-Za-z0-9]+`,
			`(?i)api[_-]?key\s*=\s*["']?[A-Za-z0-9_\-]+["']?`,
		},
	}
}

// Update describes an additive mutation applied by Store.Update.
type Update struct {
	SystemPrompt     *string
	WorkingDir       *string
	AppendHistory    []Message
	AppendFileContext []FileContextEntry
	AppendToolResults []ToolResultEntry
	MergeEnvironment map[string]string
	AddTags          []string
	AddCustom        map[string]string
}

// CompressionReport summarizes the effect of Store.Compress.
type CompressionReport struct {
	OriginalTokens   int
	CompressedTokens int
	Ratio            float64
	ToolResultsDropped int
	FileContextDropped int
	HistorySummarized  bool
}
