// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package tools implements the genetics tools offered to the chat model:
// Punnett square crosses, trait database search, DNA transcription, and
// an optional published-literature search.
// A Registry describes the tools to the model and executes its calls.
package tools

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/pdiddy/research-assistant/internal/llm"
	"github.com/pdiddy/research-assistant/pkg/types"
)

// Tool names as advertised to the model.
const (
	PunnettSquare    = "punnett_square"
	SearchTraits     = "search_traits"
	TranscribeDNA    = "transcribe_dna"
	SearchLiterature = "search_literature"
)

// TraitSearcher finds traits by free text.
type TraitSearcher interface {
	SearchTraits(ctx context.Context, text string, limit int) ([]types.Trait, error)
}

// Executor describes and runs tools for a tool-use loop.
type Executor interface {
	Tools() []llm.Tool
	Execute(ctx context.Context, call llm.ToolCall) llm.ToolResult
}

// Registry is the Executor for the genetics tools.
type Registry struct {
	traits     TraitSearcher
	literature LiteratureSearcher
	log        *zap.Logger
}

// NewRegistry returns a Registry. A nil traits searcher leaves search_traits
// out of the advertised tools.
func NewRegistry(traits TraitSearcher, log *zap.Logger) *Registry {
	if log == nil {
		log = zap.NewNop()
	}
	return &Registry{traits: traits, log: log}
}

// WithLiterature enables search_literature backed by l.
func (r *Registry) WithLiterature(l LiteratureSearcher) *Registry {
	r.literature = l
	return r
}

// Tools returns the tool descriptions sent with tool-enabled requests.
func (r *Registry) Tools() []llm.Tool {
	out := []llm.Tool{
		{
			Name:        PunnettSquare,
			Description: "Compute a Punnett square for a genetic cross of two diploid genotypes, such as Aa x Aa or AaBb x AaBb. Returns offspring genotype and phenotype ratios.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"parent1": map[string]any{"type": "string", "description": "Genotype of the first parent, e.g. Aa"},
					"parent2": map[string]any{"type": "string", "description": "Genotype of the second parent, e.g. aa"},
					"trait":   map[string]any{"type": "string", "description": "Optional trait name used to label phenotypes"},
				},
				"required": []string{"parent1", "parent2"},
			},
		},
		{
			Name:        TranscribeDNA,
			Description: "Transcribe a DNA coding strand to mRNA and translate it to a protein sequence.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"sequence": map[string]any{"type": "string", "description": "DNA sequence using A, T, G, C"},
				},
				"required": []string{"sequence"},
			},
		},
	}
	if r.traits != nil {
		out = append(out, llm.Tool{
			Name:        SearchTraits,
			Description: "Search the trait database by name, gene, or description. Returns inheritance patterns and alleles.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{"type": "string", "description": "Search text"},
					"limit": map[string]any{"type": "integer", "description": "Maximum results (default 5)"},
				},
				"required": []string{"query"},
			},
		})
	}
	if r.literature != nil {
		out = append(out, llm.Tool{
			Name:        SearchLiterature,
			Description: "Search published scientific literature. Returns titles, authors, years, DOIs, and abstracts of matching papers.",
			InputSchema: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{"type": "string", "description": "Search text"},
					"limit": map[string]any{"type": "integer", "description": "Maximum papers (default 5)"},
				},
				"required": []string{"query"},
			},
		})
	}
	return out
}

type punnettInput struct {
	Parent1 string `json:"parent1"`
	Parent2 string `json:"parent2"`
	Trait   string `json:"trait"`
}

type searchInput struct {
	Query string `json:"query"`
	Limit int    `json:"limit"`
}

type transcribeInput struct {
	Sequence string `json:"sequence"`
}

// Execute runs one tool call. Failures are reported to the model as error
// results rather than returned.
func (r *Registry) Execute(ctx context.Context, call llm.ToolCall) llm.ToolResult {
	out, err := r.execute(ctx, call)
	if err != nil {
		r.log.Debug("tool call failed", zap.String("tool", call.Name), zap.Error(err))
		return llm.ToolResult{CallID: call.ID, Content: err.Error(), IsError: true}
	}
	data, err := json.Marshal(out)
	if err != nil {
		return llm.ToolResult{CallID: call.ID, Content: fmt.Sprintf("encoding result: %v", err), IsError: true}
	}
	r.log.Debug("tool call", zap.String("tool", call.Name), zap.Int("bytes", len(data)))
	return llm.ToolResult{CallID: call.ID, Content: string(data)}
}

func (r *Registry) execute(ctx context.Context, call llm.ToolCall) (any, error) {
	switch call.Name {
	case PunnettSquare:
		var in punnettInput
		if err := decodeInput(call.Input, &in); err != nil {
			return nil, err
		}
		c, err := ComputeCross(in.Parent1, in.Parent2)
		if err != nil {
			return nil, err
		}
		if in.Trait != "" {
			r.labelPhenotypes(ctx, &c, in.Trait)
		}
		return c, nil

	case SearchTraits:
		if r.traits == nil {
			return nil, fmt.Errorf("trait database is not available")
		}
		var in searchInput
		if err := decodeInput(call.Input, &in); err != nil {
			return nil, err
		}
		if in.Limit <= 0 || in.Limit > 20 {
			in.Limit = 5
		}
		traits, err := r.traits.SearchTraits(ctx, in.Query, in.Limit)
		if err != nil {
			return nil, fmt.Errorf("searching traits: %w", err)
		}
		if traits == nil {
			traits = []types.Trait{}
		}
		return map[string]any{"query": in.Query, "traits": traits, "count": len(traits)}, nil

	case TranscribeDNA:
		var in transcribeInput
		if err := decodeInput(call.Input, &in); err != nil {
			return nil, err
		}
		return Transcribe(in.Sequence)

	case SearchLiterature:
		if r.literature == nil {
			return nil, fmt.Errorf("literature search is not available")
		}
		var in searchInput
		if err := decodeInput(call.Input, &in); err != nil {
			return nil, err
		}
		works, err := r.literature.SearchWorks(ctx, in.Query, in.Limit)
		if err != nil {
			return nil, fmt.Errorf("searching literature: %w", err)
		}
		return map[string]any{"query": in.Query, "works": works, "count": len(works)}, nil
	}
	return nil, fmt.Errorf("unknown tool %q", call.Name)
}

func decodeInput(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		raw = json.RawMessage(`{}`)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("invalid tool input: %w", err)
	}
	return nil
}

// labelPhenotypes replaces monohybrid phenotype labels with the trait's
// dominant and recessive phenotypes when the trait database knows them.
func (r *Registry) labelPhenotypes(ctx context.Context, c *Cross, trait string) {
	if r.traits == nil || c.CrossType != "monohybrid" {
		return
	}
	found, err := r.traits.SearchTraits(ctx, trait, 1)
	if err != nil || len(found) == 0 {
		return
	}
	var dominant, recessive string
	for _, a := range found[0].Alleles {
		if a.Dominant && dominant == "" {
			dominant = a.Phenotype
		}
		if !a.Dominant && recessive == "" {
			recessive = a.Phenotype
		}
	}
	if dominant == "" || recessive == "" {
		return
	}
	for i, p := range c.Phenotypes {
		if isUpper(p.Label[0]) {
			c.Phenotypes[i].Label = p.Label + " " + dominant
		} else {
			c.Phenotypes[i].Label = p.Label + " " + recessive
		}
	}
}
