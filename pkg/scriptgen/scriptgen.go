// Package scriptgen produces broadcast scripts from retrieved context: prompt
// assembly, the LLM call with retry, citation extraction, and validation of
// the result. Single-speaker reads and multi-speaker dialogue share the same
// completion path with different prompt templates and parsers.
package scriptgen

import (
	"context"
	"time"

	"github.com/aetherfm/station/pkg/config"
	"github.com/aetherfm/station/pkg/models"
)

// Context carries everything the single-speaker prompt needs.
type Context struct {
	DJ              config.Persona
	SlotType        models.SlotType
	Chunks          []models.RAGChunk
	ReferenceTime   time.Time
	FutureYear      int
	ProgramName     string
	PreviousSummary string
}

// Script is a generated single-speaker result.
type Script struct {
	Text        string            `json:"text"`
	Citations   []models.Citation `json:"citations"`
	TokensIn    int64             `json:"tokens_in"`
	TokensOut   int64             `json:"tokens_out"`
	Model       string            `json:"model"`
	Temperature float64           `json:"temperature"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// Turn is one utterance in a dialogue script.
type Turn struct {
	Speaker string `json:"speaker"`
	Text    string `json:"text"`
}

// ConversationRequest configures a multi-speaker generation.
type ConversationRequest struct {
	Format           string // interview, panel, debate, dialogue
	Host             config.Persona
	Participants     []config.Persona
	Topic            string
	RetrievedContext []models.RAGChunk
	Duration         string
	Tone             string
	FutureYear       int
}

// Conversation is a generated multi-speaker result.
type Conversation struct {
	Turns       []Turn            `json:"turns"`
	Citations   []models.Citation `json:"citations"`
	TokensIn    int64             `json:"tokens_in"`
	TokensOut   int64             `json:"tokens_out"`
	Model       string            `json:"model"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// completion is one raw LLM answer.
type completion struct {
	Text      string
	TokensIn  int64
	TokensOut int64
}

// completer is the LLM call surface. Satisfied by *ClaudeClient; tests
// substitute a stub.
type completer interface {
	Complete(ctx context.Context, system, user string) (*completion, error)
}

// Generator turns retrieval context into validated scripts.
type Generator struct {
	llm completer
	cfg *config.GenerationConfig
}

// NewGenerator creates a generator backed by the given LLM client.
func NewGenerator(llm completer, cfg *config.GenerationConfig) *Generator {
	return &Generator{llm: llm, cfg: cfg}
}

// Generate produces a single-speaker script, extracts citations, and
// validates the result.
func (g *Generator) Generate(ctx context.Context, sc Context) (*Script, error) {
	system := buildSystemPrompt(g.cfg, sc)
	user := buildUserPrompt(sc)

	comp, err := g.llm.Complete(ctx, system, user)
	if err != nil {
		return nil, err
	}

	target := g.cfg.WordTarget(string(sc.SlotType))
	if err := ValidateScript(comp.Text, target); err != nil {
		return nil, err
	}

	return &Script{
		Text:        comp.Text,
		Citations:   ExtractCitations(comp.Text, sc.Chunks),
		TokensIn:    comp.TokensIn,
		TokensOut:   comp.TokensOut,
		Model:       g.cfg.Model,
		Temperature: g.cfg.Temperature,
		GeneratedAt: time.Now().UTC(),
	}, nil
}

// GenerateConversation produces a multi-speaker dialogue script and runs the
// dialogue quality checks.
func (g *Generator) GenerateConversation(ctx context.Context, req ConversationRequest) (*Conversation, error) {
	system := buildConversationSystemPrompt(g.cfg, req)
	user := buildConversationUserPrompt(req)

	comp, err := g.llm.Complete(ctx, system, user)
	if err != nil {
		return nil, err
	}

	turns := ParseTurns(comp.Text)
	if err := ValidateConversation(turns); err != nil {
		return nil, err
	}

	return &Conversation{
		Turns:       turns,
		Citations:   ExtractCitations(comp.Text, req.RetrievedContext),
		TokensIn:    comp.TokensIn,
		TokensOut:   comp.TokensOut,
		Model:       g.cfg.Model,
		GeneratedAt: time.Now().UTC(),
	}, nil
}
