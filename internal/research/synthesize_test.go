// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package research

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/research-assistant/internal/llm/llmtest"
	"github.com/pdiddy/research-assistant/pkg/types"
)

func TestCitationKey(t *testing.T) {
	tests := []struct {
		author string
		year   string
		want   string
	}{
		{"Smith, J.", "2023", "(Smith, 2023)"},
		{"John Q. Smith Jr.", "2019", "(Smith, 2019)"},
		{"Jane Doe and Alan Turing", "1950", "(Doe and Turing, 1950)"},
		{"Smith, J.; Doe, A.; Lee, K.", "2023", "(Smith et al., 2023)"},
		{"Smith et al.", "2020", "(Smith et al., 2020)"},
		{"National Human Genome Research Institute", "published 2024-03", "(National Human Genome Research Institute, 2024)"},
		{"Mendel", "", "(Mendel, n.d.)"},
		{"", "2023", "[Source 4]"},
		{"   ", "", "[Source 4]"},
	}
	for _, tc := range tests {
		t.Run(tc.author, func(t *testing.T) {
			got := citationKey(types.ChunkMetadata{Author: tc.author, Year: tc.year}, 4)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestCitationKey_LongAuthorIsCut(t *testing.T) {
	key := citationKey(types.ChunkMetadata{Author: strings.Repeat("Verylongorganisationname ", 5), Year: "2020"}, 1)
	assert.LessOrEqual(t, len(key), maxAuthorKey+len("(, 2020)"))
	assert.Contains(t, key, "...")
}

func TestMarkCited(t *testing.T) {
	sources := []types.Source{
		{CitationKey: "(Smith, 2023)"},
		{CitationKey: "(Jones, 2021)"},
		{CitationKey: "[Source 1]"},
		{CitationKey: "[Source 12]"},
		{CitationKey: "(Lee et al., n.d.)"},
	}
	markCited("Variance is polygenic (Smith, 2023; Jones, 2021) as noted in [Source 12] and by Lee et al., n.d..", sources)
	got := make([]bool, len(sources))
	for i, s := range sources {
		got[i] = s.Cited
	}
	assert.Equal(t, []bool{true, true, false, true, true}, got)
}

func TestBuildContext_Format(t *testing.T) {
	ctx, sources := buildContext(sampleChunks()[:2], 72000, 150)
	want := "[Source 1]\nCITATION_KEY: (Smith et al., 2023)\nTITLE: Off-target effects of CRISPR\nYEAR: 2023\nCONTENT:\n" +
		"CRISPR-Cas9 can cut at unintended genomic sites [12]. Off-target rates depend on guide design." +
		"\n\n" +
		"[Source 2]\nCITATION_KEY: (Doe, 2021)\nTITLE: Base editing\nYEAR: 2021\nCONTENT:\n" +
		"Base editors reduce double-strand breaks compared with nuclease editing."
	assert.Equal(t, want, ctx)
	require.Len(t, sources, 2)
	assert.Equal(t, "CRISPR-Cas9 can cut at unintended genomic sites. Off-target rates depend on guide design.", sources[0].ContentPreview)
	assert.Equal(t, "Genome Research", sources[0].Journal)
	assert.Equal(t, "other", sources[0].SourceType)
	assert.Equal(t, 0.92, sources[0].RelevanceScore)
}

func TestBuildContext_SkipsEmptyChunks(t *testing.T) {
	chunks := []types.Chunk{{ID: "empty", Text: "  "}, {ID: "a", Text: "Alleles segregate."}}
	ctx, sources := buildContext(chunks, 1000, 150)
	require.Len(t, sources, 1)
	assert.Equal(t, "a", sources[0].ID)
	assert.True(t, strings.HasPrefix(ctx, "[Source 1]\nCITATION_KEY: [Source 1]"))
}

func TestBuildContext_TruncatesFirstOverflow(t *testing.T) {
	chunks := []types.Chunk{
		{ID: "a", Text: strings.Repeat("a", 100)},
		{ID: "b", Text: strings.Repeat("b", 100)},
		{ID: "c", Text: strings.Repeat("c", 100)},
	}
	header := len(newContextBlock(1, "[Source 1]", "Untitled", "n.d.", "").header)
	budget := header + 100 + len(blockSeparator) + header + 40

	ctx, sources := buildContext(chunks, budget, 150)
	assert.Len(t, ctx, budget)
	require.Len(t, sources, 2, "the cut block is a source; assembly stops after it")
	assert.Equal(t, "b", sources[1].ID)
	assert.True(t, strings.HasSuffix(ctx, strings.Repeat("b", 40)))
}

func TestBuildContext_HeaderMustFit(t *testing.T) {
	chunks := []types.Chunk{{ID: "a", Text: "short"}, {ID: "b", Text: "another"}}
	first := len(newContextBlock(1, "[Source 1]", "Untitled", "n.d.", "short").header) + len("short")
	ctx, sources := buildContext(chunks, first+len(blockSeparator)+10, 150)
	assert.Len(t, sources, 1)
	assert.Len(t, ctx, first)
}

func TestBuildContext_NeverExceedsBudget(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		n := rng.Intn(40)
		chunks := make([]types.Chunk, n)
		for j := range chunks {
			chunks[j] = types.Chunk{
				ID:   fmt.Sprintf("c%d", j),
				Text: strings.Repeat("gène ", rng.Intn(3000)),
				Metadata: types.ChunkMetadata{
					Author: strings.Repeat("Author ", rng.Intn(4)),
					Title:  strings.Repeat("T", rng.Intn(300)),
					Year:   "2020",
				},
			}
		}
		budget := rng.Intn(20000)
		ctx, _ := buildContext(chunks, budget, 150)
		require.LessOrEqual(t, len(ctx), budget, "iteration %d", i)
		require.True(t, strings.ToValidUTF8(ctx, "") == ctx, "context must stay valid UTF-8")
	}
}

func TestCleanPreview(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty", "", ""},
		{"whitespace", "Genes   are\n\nunits of\theredity.", "Genes are units of heredity."},
		{"bracket citations", "Editing works [1], [2-4] and [5, 6] well.", "Editing works, and well."},
		{"volume and doi", "See Nature vol. 18, no. 10, pp. 1990-1995 doi:10.1000/xyz for details.", "See Nature for details."},
		{"year and initials", "As H. Ledford, reported (2018) the field grew.", "As reported the field grew."},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, cleanPreview(tc.in, 150))
		})
	}
}

func TestCleanPreview_Truncates(t *testing.T) {
	text := strings.Repeat("chromosome ", 40)
	got := cleanPreview(text, 150)
	assert.True(t, strings.HasSuffix(got, "chromosome..."), got)
	assert.LessOrEqual(t, len([]rune(got)), 153)
}

func TestCleanPreview_ReferenceList(t *testing.T) {
	text := "1990, Smith, A, Jones, B, Lee, C, Park, D, Kim, E. Gene drives can spread a trait through a wild population quickly. More text."
	assert.Equal(t, "Gene drives can spread a trait through a wild population quickly.", cleanPreview(text, 150))
}

func TestFormatReferences(t *testing.T) {
	got := FormatReferences([]types.Source{
		{Author: "Smith, J.", Year: "2023", Title: "Off-target effects", Journal: "Genome Research", DOI: "10.1/abc"},
		{Title: "Delivery", Publisher: "Lab Press", Place: "Boston", URL: "https://example.org"},
	})
	assert.Equal(t,
		"1. Smith, J (2023) 'Off-target effects', Genome Research. doi:10.1/abc.\n"+
			"2. (n.d.) 'Delivery'. Boston: Lab Press. Available at: https://example.org.\n", got)
}

func TestBibTeX(t *testing.T) {
	got := BibTeX([]types.Source{
		{Author: "Smith, J.; Doe, A.", Year: "2023", Title: "Off-target effects", Journal: "Genome Research"},
		{Author: "Smith, K.", Year: "2023", Title: "Guides", ISBN: "978-0"},
		{Title: "Anonymous page"},
	})
	assert.Contains(t, got, "@article{Smith2023,\n  title = {Off-target effects},\n  author = {Smith, J. and Doe, A.},\n  year = {2023},\n  journal = {Genome Research},\n}")
	assert.Contains(t, got, "@book{Smith2023b,")
	assert.Contains(t, got, "@misc{source3,")
}

func TestModelClarifier_Analyze(t *testing.T) {
	four := "```json\n" + `{"needs_clarification": true, "questions": [
		{"question": "A?"}, {"id": "x", "question": "B?"}, {"question": " "}, {"question": "C?"}, {"question": "D?"}]}` + "\n```"
	tests := []struct {
		name      string
		reply     string
		needed    bool
		questions int
	}{
		{"capped at three", four, true, 3},
		{"clear query", `{"needs_clarification": false, "questions": []}`, false, 0},
		{"needs but none", `{"needs_clarification": true, "questions": []}`, false, 0},
		{"not json", "I think this is clear.", false, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			fake := llmtest.New(llmtest.Text(tc.reply, 10, 5))
			c, err := (&ModelClarifier{Chat: fake, Model: "m"}).Analyze(context.Background(), "Tell me about genes")
			require.NoError(t, err)
			assert.Equal(t, tc.needed, c.Needed)
			assert.Len(t, c.Questions, tc.questions)
			assert.Equal(t, types.Usage{InputTokens: 10, OutputTokens: 5}, c.Usage)
			for _, q := range c.Questions {
				assert.NotEmpty(t, q.ID)
			}

			req := fake.Requests()[0]
			assert.Equal(t, "Research Query: Tell me about genes", req.Messages[0].Content)
			assert.Equal(t, 1000, req.MaxTokens)
		})
	}
}

func TestModelClarifier_AnalyzeError(t *testing.T) {
	fake := llmtest.New(llmtest.Fail(errors.New("boom")))
	_, err := (&ModelClarifier{Chat: fake}).Analyze(context.Background(), "q")
	assert.Error(t, err)
}

func TestModelClarifier_BuildClarifiedQueryFallback(t *testing.T) {
	fake := llmtest.New(llmtest.Fail(errors.New("boom")))
	q, _, u := (&ModelClarifier{Chat: fake}).BuildClarifiedQuery(context.Background(), "CRISPR",
		nil, []types.ClarificationAnswer{{Answer: "Humans"}, {Answer: "Clinical"}})
	assert.Equal(t, "CRISPR (Context: Humans; Clinical)", q)
	assert.Zero(t, u.Total())
}

func TestQAPairs_MatchByPosition(t *testing.T) {
	got := qaPairs(
		[]types.ClarificationQuestion{{ID: "q1", Question: "Organism?"}},
		[]types.ClarificationAnswer{{Answer: "Mice"}, {QuestionID: "zz", Answer: "Yes"}},
	)
	assert.Equal(t, "Q: Organism?\nA: Mice\n\nQ: Question 2\nA: Yes", got)
}
