// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package classify

import (
	"context"
	"fmt"
	"strings"

	"github.com/pdiddy/research-assistant/internal/llm"
	"github.com/pdiddy/research-assistant/pkg/types"
)

// maxPromptQuery bounds the query text sent to the classification model.
const maxPromptQuery = 500

const classificationPrompt = `Analyze this user query and classify it into ONE category:

Categories:
1. CONVERSATIONAL - Simple greetings, thanks, small talk. No actual information needed.
   Examples: "Hello!", "Thanks!", "How are you?"

2. KNOWLEDGE - Questions needing explanations, definitions, or general information about genetics/biology.
   Examples: "What is genetic engineering?", "Explain CRISPR", "How does DNA replication work?"

3. TOOLS - Specific genetics calculations, trait searches, DNA/RNA operations that require computational tools.
   Examples: "Calculate Punnett square for Aa x Aa", "Search traits for eye color", "Transcribe ATGCGT"

4. HYBRID - Complex queries requiring BOTH knowledge explanation AND computational tools.
   Examples: "Explain Punnett squares and calculate one for Tt x tt", "What is transcription and transcribe ATGCGT?"

Query: %q

Respond with ONLY ONE of these words: CONVERSATIONAL, KNOWLEDGE, TOOLS, or HYBRID`

var labels = map[string]types.Category{
	"CONVERSATIONAL": types.CategoryConversational,
	"KNOWLEDGE":      types.CategoryKnowledge,
	"TOOLS":          types.CategoryTools,
	"GENETICS_TOOLS": types.CategoryTools,
	"HYBRID":         types.CategoryHybrid,
}

// ModelClassifier asks a chat model for one of the four category labels.
type ModelClassifier struct {
	Chat  llm.ChatCompleter
	Model string
}

// ModelAnswer is a model classification with its accounting.
type ModelAnswer struct {
	Category types.Category
	Model    string
	Usage    types.Usage
}

// Classify sends text to the model at zero temperature. Usage is returned
// even when the reply is not a known label.
func (m *ModelClassifier) Classify(ctx context.Context, text string) (ModelAnswer, error) {
	q := text
	if r := []rune(q); len(r) > maxPromptQuery {
		q = string(r[:maxPromptQuery])
	}
	resp, err := m.Chat.Complete(ctx, llm.Request{
		Model:       m.Model,
		Messages:    llm.UserText(fmt.Sprintf(classificationPrompt, q)),
		MaxTokens:   20,
		Temperature: llm.Temperature(0),
	})
	ans := ModelAnswer{Model: resp.Model, Usage: resp.Usage}
	if ans.Model == "" {
		ans.Model = m.Model
	}
	if err != nil {
		return ans, err
	}
	label := strings.ToUpper(strings.TrimSpace(resp.Text))
	label = strings.Trim(label, ".\"'` ")
	cat, ok := labels[label]
	if !ok {
		return ans, fmt.Errorf("unrecognized classification label %q", resp.Text)
	}
	ans.Category = cat
	return ans, nil
}
