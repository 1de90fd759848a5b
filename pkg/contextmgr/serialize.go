package contextmgr

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// serializedMessage, serializedFile, and serializedTool mirror the public
// types with explicit JSON tags so the wire shape stays independent of
// any future field renames on the internal types.
type serializedMessage struct {
	Timestamp time.Time `json:"timestamp"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
}

type serializedFile struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

type serializedTool struct {
	ToolName string `json:"tool_name"`
	Content  string `json:"content"`
}

type serializedMetadata struct {
	Custom           map[string]string `json:"custom"`
	Tags             []string          `json:"tags"`
	TokenCount       int               `json:"token_count"`
	CompressionRatio float64           `json:"compression_ratio"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	IsCompressed     bool              `json:"is_compressed"`
}

type serializedContext struct {
	ID           string              `json:"id"`
	ParentID     *string             `json:"parent_id,omitempty"`
	Summary      *string             `json:"summary,omitempty"`
	SystemPrompt *string             `json:"system_prompt,omitempty"`
	WorkingDir   string              `json:"working_dir"`
	Environment  map[string]string   `json:"environment"`
	History      []serializedMessage `json:"history"`
	FileContext  []serializedFile    `json:"file_context"`
	ToolResults  []serializedTool    `json:"tool_results"`
	Metadata     serializedMetadata  `json:"metadata"`
}

// Serialize converts ctx into its blob wire representation.
func Serialize(ctx *AgentContext) ([]byte, error) {
	sc := serializedContext{
		ID:           ctx.ID,
		ParentID:     ctx.ParentID,
		Summary:      ctx.Summary,
		SystemPrompt: ctx.SystemPrompt,
		WorkingDir:   ctx.WorkingDir,
		Environment:  ctx.Environment,
		Metadata: serializedMetadata{
			Custom:           ctx.Metadata.Custom,
			Tags:             ctx.Metadata.Tags,
			TokenCount:       ctx.Metadata.TokenCount,
			CompressionRatio: ctx.Metadata.CompressionRatio,
			CreatedAt:        ctx.Metadata.CreatedAt,
			UpdatedAt:        ctx.Metadata.UpdatedAt,
			IsCompressed:     ctx.Metadata.IsCompressed,
		},
	}
	for _, m := range ctx.History {
		sc.History = append(sc.History, serializedMessage{Timestamp: m.Timestamp, Role: m.Role, Content: m.Content})
	}
	for _, fc := range ctx.FileContext {
		sc.FileContext = append(sc.FileContext, serializedFile{Path: fc.Path, Content: fc.Content})
	}
	for _, tr := range ctx.ToolResults {
		sc.ToolResults = append(sc.ToolResults, serializedTool{ToolName: tr.ToolName, Content: tr.Content})
	}

	data, err := json.MarshalIndent(sc, "", "  ")
	if err != nil {
		return nil, wrapError(KindSerializationError, ctx.ID, err)
	}
	return data, nil
}

// Deserialize reconstructs an AgentContext from its blob wire representation.
func Deserialize(data []byte) (*AgentContext, error) {
	var sc serializedContext
	if err := json.Unmarshal(data, &sc); err != nil {
		return nil, wrapError(KindSerializationError, "", err)
	}

	ctx := &AgentContext{
		ID:           sc.ID,
		ParentID:     sc.ParentID,
		Summary:      sc.Summary,
		SystemPrompt: sc.SystemPrompt,
		WorkingDir:   sc.WorkingDir,
		Environment:  sc.Environment,
		Metadata: Metadata{
			Custom:           sc.Metadata.Custom,
			Tags:             sc.Metadata.Tags,
			TokenCount:       sc.Metadata.TokenCount,
			CompressionRatio: sc.Metadata.CompressionRatio,
			CreatedAt:        sc.Metadata.CreatedAt,
			UpdatedAt:        sc.Metadata.UpdatedAt,
			IsCompressed:     sc.Metadata.IsCompressed,
		},
	}
	for _, m := range sc.History {
		ctx.History = append(ctx.History, Message{Timestamp: m.Timestamp, Role: m.Role, Content: m.Content})
	}
	for _, fc := range sc.FileContext {
		ctx.FileContext = append(ctx.FileContext, FileContextEntry{Path: fc.Path, Content: fc.Content})
	}
	for _, tr := range sc.ToolResults {
		ctx.ToolResults = append(ctx.ToolResults, ToolResultEntry{ToolName: tr.ToolName, Content: tr.Content})
	}
	if ctx.Environment == nil {
		ctx.Environment = make(map[string]string)
	}
	if ctx.Metadata.Custom == nil {
		ctx.Metadata.Custom = make(map[string]string)
	}
	return ctx, nil
}

// DefaultContextsDir returns <user-config-dir>/orchestrator/contexts, the
// default blob storage location when the caller does not override it.
func DefaultContextsDir() (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", wrapError(KindIoError, "", err)
	}
	return filepath.Join(base, "orchestrator", "contexts"), nil
}

func (s *Store) blobPath(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// Persist serializes ctx to a single blob file named <id>.json in the
// store's configured directory.
func (s *Store) Persist(ctx *AgentContext) error {
	if s.dir == "" {
		dir, err := DefaultContextsDir()
		if err != nil {
			return err
		}
		s.dir = dir
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return wrapError(KindIoError, ctx.ID, err)
	}
	data, err := Serialize(ctx)
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.blobPath(ctx.ID), data, 0o644); err != nil {
		return wrapError(KindIoError, ctx.ID, err)
	}
	return nil
}

// Load reads and deserializes the blob for id, returning (nil, nil) if it
// is absent.
func (s *Store) Load(id string) (*AgentContext, error) {
	if s.dir == "" {
		dir, err := DefaultContextsDir()
		if err != nil {
			return nil, err
		}
		s.dir = dir
	}
	data, err := os.ReadFile(s.blobPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, wrapError(KindIoError, id, err)
	}
	ctx, err := Deserialize(data)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", id, err)
	}
	s.store(ctx)
	return ctx, nil
}
