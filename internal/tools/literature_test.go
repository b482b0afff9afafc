// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package tools

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const openAlexFixture = `{
  "results": [
    {
      "title": "Genetic determinants of human eye colour",
      "doi": "https://doi.org/10.1000/eye.1",
      "publication_year": 2008,
      "abstract_inverted_index": {"OCA2": [0], "controls": [1], "eye": [2], "colour.": [3]},
      "authorships": [{"author": {"display_name": "R. A. Sturm"}}, {"author": {"display_name": ""}}],
      "open_access": {"oa_url": "https://example.org/eye.pdf"}
    },
    {"title": "Second paper", "publication_year": 2020}
  ]
}`

func withOpenAlex(t *testing.T, h http.HandlerFunc) {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	old := openAlexBase
	openAlexBase = srv.URL
	t.Cleanup(func() { openAlexBase = old })
}

func TestOpenAlex_SearchWorks(t *testing.T) {
	var gotQuery, gotPerPage, gotMail string
	withOpenAlex(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("search")
		gotPerPage = r.URL.Query().Get("per_page")
		gotMail = r.URL.Query().Get("mailto")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(openAlexFixture))
	})

	works, err := NewOpenAlex("lab@example.org", nil).SearchWorks(context.Background(), " eye colour genetics ", 0)
	require.NoError(t, err)

	assert.Equal(t, "eye colour genetics", gotQuery)
	assert.Equal(t, "5", gotPerPage)
	assert.Equal(t, "lab@example.org", gotMail)

	require.Len(t, works, 2)
	assert.Equal(t, Work{
		Title:    "Genetic determinants of human eye colour",
		Authors:  []string{"R. A. Sturm"},
		Year:     2008,
		DOI:      "10.1000/eye.1",
		Abstract: "OCA2 controls eye colour.",
		OpenURL:  "https://example.org/eye.pdf",
	}, works[0])
	assert.Empty(t, works[1].Abstract)
}

func TestOpenAlex_Errors(t *testing.T) {
	withOpenAlex(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	o := NewOpenAlex("", nil)

	_, err := o.SearchWorks(context.Background(), "   ", 3)
	assert.ErrorContains(t, err, "empty literature query")

	_, err = o.SearchWorks(context.Background(), "mendel", 3)
	assert.ErrorContains(t, err, "HTTP 500")
}

func TestTruncateRunes(t *testing.T) {
	assert.Equal(t, "short", truncateRunes("short", 10))
	assert.Equal(t, "ééé...", truncateRunes(strings.Repeat("é", 8), 3))
}

type fakeLiterature struct{ works []Work }

func (f fakeLiterature) SearchWorks(_ context.Context, _ string, _ int) ([]Work, error) {
	return f.works, nil
}

func TestRegistry_ExecuteLiterature(t *testing.T) {
	r := NewRegistry(nil, nil)
	res := r.Execute(context.Background(), call(SearchLiterature, `{"query":"mendel"}`))
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content, "not available")

	r.WithLiterature(fakeLiterature{works: []Work{{Title: "Experiments on Plant Hybridization", Year: 1866}}})
	var names []string
	for _, tool := range r.Tools() {
		names = append(names, tool.Name)
	}
	assert.Contains(t, names, SearchLiterature)

	res = r.Execute(context.Background(), call(SearchLiterature, `{"query":"mendel"}`))
	require.False(t, res.IsError, res.Content)
	assert.Contains(t, res.Content, `"count":1`)
	assert.Contains(t, res.Content, "Plant Hybridization")
}
