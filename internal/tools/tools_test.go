// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package tools

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/research-assistant/internal/llm"
	"github.com/pdiddy/research-assistant/internal/llm/llmtest"
	"github.com/pdiddy/research-assistant/pkg/types"
)

func TestComputeCross_Monohybrid(t *testing.T) {
	c, err := ComputeCross("Aa", "Aa")
	require.NoError(t, err)

	assert.Equal(t, "monohybrid", c.CrossType)
	assert.Equal(t, 4, c.Total)
	assert.Equal(t, "1:2:1", c.GenotypeRatio)
	assert.Equal(t, "3:1", c.PhenotypeRatio)
	assert.Equal(t, [][]string{
		{"", "A", "a"},
		{"A", "AA", "Aa"},
		{"a", "Aa", "aa"},
	}, c.Grid)
	require.Len(t, c.Phenotypes, 2)
	assert.Equal(t, "A_", c.Phenotypes[0].Label)
	assert.InDelta(t, 75.0, c.Phenotypes[0].Percentage, 1e-9)
}

func TestComputeCross_Dihybrid(t *testing.T) {
	c, err := ComputeCross("AaBb", "AaBb")
	require.NoError(t, err)

	assert.Equal(t, "dihybrid", c.CrossType)
	assert.Equal(t, 16, c.Total)
	assert.Equal(t, []string{"AB", "Ab", "aB", "ab"}, c.Gametes1)
	assert.Equal(t, "9:3:3:1", c.PhenotypeRatio)
	assert.Len(t, c.Genotypes, 9)
}

func TestComputeCross_TestCross(t *testing.T) {
	c, err := ComputeCross("Bb", "bb")
	require.NoError(t, err)
	assert.Equal(t, "1:1", c.GenotypeRatio)
	assert.Equal(t, "1:1", c.PhenotypeRatio)
	assert.Contains(t, c.Summary(), "monohybrid cross Bb x bb")
}

func TestComputeCross_Invalid(t *testing.T) {
	tests := []struct {
		name, p1, p2, want string
	}{
		{"empty", "", "Aa", "cannot be empty"},
		{"odd", "Aab", "Aa", "exactly two alleles"},
		{"digits", "A1", "Aa", "letters only"},
		{"mixed letters", "Ab", "Aa", "same letter"},
		{"gene count", "AaBb", "Aa", "different numbers"},
		{"gene mismatch", "Aa", "Bb", "differs between parents"},
		{"too many", "AaBbCcDdEe", "AaBbCcDdEe", "at most"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ComputeCross(tc.p1, tc.p2)
			assert.ErrorContains(t, err, tc.want)
		})
	}
}

func TestParseCross(t *testing.T) {
	tests := []struct {
		msg    string
		p1, p2 string
		ok     bool
	}{
		{"What do I get from Aa x Aa?", "Aa", "Aa", true},
		{"cross BB with bb please", "BB", "bb", true},
		{"AaBb × aabb", "AaBb", "aabb", true},
		{"What if Tt and tt have kids", "Tt", "tt", true},
		{"cats and dogs", "", "", false},
		{"explain mitosis", "", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.msg, func(t *testing.T) {
			p1, p2, ok := ParseCross(tc.msg)
			assert.Equal(t, tc.ok, ok)
			assert.Equal(t, tc.p1, p1)
			assert.Equal(t, tc.p2, p2)
		})
	}
}

func TestTranscribe(t *testing.T) {
	tr, err := Transcribe("atg ttt TAA ggc c")
	require.NoError(t, err)
	assert.Equal(t, "AUGUUUUAAGGCC", tr.MRNA)
	assert.Equal(t, []string{"AUG", "UUU", "UAA", "GGC"}, tr.Codons)
	assert.Equal(t, "MF", tr.Protein)
	assert.Equal(t, 1, tr.Leftover)

	_, err = Transcribe("AUGX")
	assert.ErrorContains(t, err, "invalid DNA character")
	_, err = Transcribe("AT")
	assert.Error(t, err)
}

type fakeTraits struct {
	traits []types.Trait
	err    error
	query  string
}

func (f *fakeTraits) SearchTraits(_ context.Context, text string, limit int) ([]types.Trait, error) {
	f.query = text
	if len(f.traits) > limit {
		return f.traits[:limit], f.err
	}
	return f.traits, f.err
}

var eyeColor = types.Trait{
	ID: "eye-color", Name: "Eye color", Gene: "OCA2",
	Inheritance: types.InheritanceDominant,
	Alleles: []types.Allele{
		{Symbol: "B", Phenotype: "brown", Dominant: true},
		{Symbol: "b", Phenotype: "blue"},
	},
}

func call(name, input string) llm.ToolCall {
	return llm.ToolCall{ID: "call-1", Name: name, Input: json.RawMessage(input)}
}

func TestRegistry_Tools(t *testing.T) {
	names := func(r *Registry) []string {
		var out []string
		for _, tool := range r.Tools() {
			out = append(out, tool.Name)
		}
		return out
	}
	assert.Equal(t, []string{PunnettSquare, TranscribeDNA}, names(NewRegistry(nil, nil)))
	assert.Contains(t, names(NewRegistry(&fakeTraits{}, nil)), SearchTraits)
}

func TestRegistry_ExecutePunnett(t *testing.T) {
	r := NewRegistry(&fakeTraits{traits: []types.Trait{eyeColor}}, nil)
	res := r.Execute(context.Background(), call(PunnettSquare, `{"parent1":"Bb","parent2":"Bb","trait":"eye color"}`))
	require.False(t, res.IsError, res.Content)
	assert.Equal(t, "call-1", res.CallID)

	var c Cross
	require.NoError(t, json.Unmarshal([]byte(res.Content), &c))
	assert.Equal(t, "3:1", c.PhenotypeRatio)
	assert.Equal(t, "B_ brown", c.Phenotypes[0].Label)
	assert.Equal(t, "bb blue", c.Phenotypes[1].Label)
}

func TestRegistry_ExecuteSearch(t *testing.T) {
	ft := &fakeTraits{traits: []types.Trait{eyeColor}}
	r := NewRegistry(ft, nil)
	res := r.Execute(context.Background(), call(SearchTraits, `{"query":"eye"}`))
	require.False(t, res.IsError, res.Content)
	assert.Equal(t, "eye", ft.query)
	assert.Contains(t, res.Content, `"count":1`)
	assert.Contains(t, res.Content, "OCA2")

	ft.err = errors.New("db closed")
	res = r.Execute(context.Background(), call(SearchTraits, `{"query":"eye"}`))
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content, "db closed")
}

func TestRegistry_ExecuteErrors(t *testing.T) {
	r := NewRegistry(nil, nil)
	tests := []struct {
		name string
		call llm.ToolCall
		want string
	}{
		{"unknown tool", call("bogus", `{}`), "unknown tool"},
		{"bad json", call(PunnettSquare, `{`), "invalid tool input"},
		{"bad genotype", call(PunnettSquare, `{"parent1":"A","parent2":"Aa"}`), "exactly two alleles"},
		{"search without store", call(SearchTraits, `{"query":"x"}`), "not available"},
		{"empty input", llm.ToolCall{ID: "x", Name: TranscribeDNA}, "at least 3"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := r.Execute(context.Background(), tc.call)
			assert.True(t, res.IsError)
			assert.Contains(t, res.Content, tc.want)
		})
	}
}

func TestRunLoop_ExecutesToolsThenAnswers(t *testing.T) {
	fake := llmtest.New(
		withUsage(llmtest.ToolUse(call(PunnettSquare, `{"parent1":"Aa","parent2":"Aa"}`)), 10, 5),
		llmtest.Text("The ratio is 3:1.", 20, 8),
	)
	req := llm.Request{System: "sys", Messages: llm.UserText("Aa x Aa?")}

	resp, err := RunLoop(context.Background(), fake, req, NewRegistry(nil, nil), 3)
	require.NoError(t, err)
	assert.Equal(t, "The ratio is 3:1.", resp.Text)
	assert.Equal(t, types.Usage{InputTokens: 30, OutputTokens: 13}, resp.Usage)

	reqs := fake.Requests()
	require.Len(t, reqs, 2)
	assert.NotEmpty(t, reqs[0].Tools)
	require.Len(t, reqs[1].Messages, 3)
	results := reqs[1].Messages[2].ToolResults
	require.Len(t, results, 1)
	assert.Contains(t, results[0].Content, `"genotype_ratio":"1:2:1"`)
}

func TestRunLoop_StopsAfterMaxRounds(t *testing.T) {
	tc := call(TranscribeDNA, `{"sequence":"ATG"}`)
	fake := llmtest.New(
		llmtest.ToolUse(tc),
		llmtest.ToolUse(tc),
		llmtest.Text("done", 1, 1),
	)
	resp, err := RunLoop(context.Background(), fake, llm.Request{Messages: llm.UserText("q")}, NewRegistry(nil, nil), 2)
	require.NoError(t, err)
	assert.Equal(t, "done", resp.Text)

	reqs := fake.Requests()
	require.Len(t, reqs, 3)
	assert.Nil(t, reqs[2].Tools, "final round is sent without tools")
}

func TestRunLoop_ModelError(t *testing.T) {
	boom := errors.New("overloaded")
	fake := llmtest.New(llmtest.Fail(boom))
	_, err := RunLoop(context.Background(), fake, llm.Request{Messages: llm.UserText("q")}, NewRegistry(nil, nil), 3)
	assert.ErrorIs(t, err, boom)
}

func withUsage(r llmtest.Reply, in, out int) llmtest.Reply {
	r.Response.Usage = types.Usage{InputTokens: in, OutputTokens: out}
	return r
}
