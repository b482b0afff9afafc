// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pdiddy/research-assistant/internal/httputil"
)

// openAlexBase is the OpenAlex Works endpoint. Declared as a var so tests
// can substitute an httptest server.
var openAlexBase = "https://api.openalex.org/works"

// Work is one published paper returned by a literature search.
type Work struct {
	Title    string   `json:"title"`
	Authors  []string `json:"authors,omitempty"`
	Year     int      `json:"year,omitempty"`
	DOI      string   `json:"doi,omitempty"`
	Abstract string   `json:"abstract,omitempty"`
	OpenURL  string   `json:"open_access_url,omitempty"`
}

// LiteratureSearcher finds published papers by free text.
type LiteratureSearcher interface {
	SearchWorks(ctx context.Context, text string, limit int) ([]Work, error)
}

// OpenAlex searches the OpenAlex catalogue.
type OpenAlex struct {
	Client *http.Client
	// Email is sent as the mailto parameter for polite pool access.
	Email string
	log   *zap.Logger
}

// NewOpenAlex returns an OpenAlex client with a 20 second timeout.
func NewOpenAlex(email string, log *zap.Logger) *OpenAlex {
	if log == nil {
		log = zap.NewNop()
	}
	return &OpenAlex{Client: &http.Client{Timeout: 20 * time.Second}, Email: email, log: log}
}

// abstractLimit caps abstracts returned to the model.
const abstractLimit = 600

// SearchWorks returns up to limit works for text, most relevant first.
func (o *OpenAlex) SearchWorks(ctx context.Context, text string, limit int) ([]Work, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("empty literature query")
	}
	if limit <= 0 || limit > 25 {
		limit = 5
	}

	params := url.Values{
		"search":   {text},
		"per_page": {strconv.Itoa(limit)},
	}
	if o.Email != "" {
		params.Set("mailto", o.Email)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, openAlexBase+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := httputil.DoWithRetry(ctx, o.Client, req, 0, o.log)
	if err != nil {
		return nil, fmt.Errorf("OpenAlex request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("OpenAlex returned HTTP %d", resp.StatusCode)
	}

	var body openAlexResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("parsing OpenAlex response: %w", err)
	}

	works := make([]Work, 0, len(body.Results))
	for _, r := range body.Results {
		w := Work{
			Title:    r.Title,
			Year:     r.PublicationYear,
			DOI:      strings.TrimPrefix(r.DOI, "https://doi.org/"),
			Abstract: truncateRunes(reconstructAbstract(r.AbstractInvertedIndex), abstractLimit),
			OpenURL:  r.OpenAccess.OAURL,
		}
		for _, a := range r.Authorships {
			if a.Author.DisplayName != "" {
				w.Authors = append(w.Authors, a.Author.DisplayName)
			}
		}
		works = append(works, w)
	}
	o.log.Debug("literature search", zap.String("query", text), zap.Int("works", len(works)))
	return works, nil
}

// reconstructAbstract rebuilds plain text from OpenAlex's inverted index,
// which maps each word to the positions it appears at.
func reconstructAbstract(index map[string][]int) string {
	if len(index) == 0 {
		return ""
	}
	type posWord struct {
		pos  int
		word string
	}
	var pairs []posWord
	for word, positions := range index {
		for _, p := range positions {
			pairs = append(pairs, posWord{p, word})
		}
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].pos < pairs[j].pos })
	words := make([]string, len(pairs))
	for i, p := range pairs {
		words[i] = p.word
	}
	return strings.Join(words, " ")
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return strings.TrimSpace(string(r[:n])) + "..."
}

type openAlexResponse struct {
	Results []openAlexWork `json:"results"`
}

type openAlexWork struct {
	Title                 string           `json:"title"`
	DOI                   string           `json:"doi"`
	PublicationYear       int              `json:"publication_year"`
	AbstractInvertedIndex map[string][]int `json:"abstract_inverted_index"`
	Authorships           []struct {
		Author struct {
			DisplayName string `json:"display_name"`
		} `json:"author"`
	} `json:"authorships"`
	OpenAccess struct {
		OAURL string `json:"oa_url"`
	} `json:"open_access"`
}
