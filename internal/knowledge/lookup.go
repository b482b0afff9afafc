// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	"github.com/pdiddy/research-assistant/pkg/types"
)

// DomainLookup returns structured domain context for a question.
type DomainLookup interface {
	Lookup(ctx context.Context, text string) (string, error)
}

// stopWords are dropped from full-text queries.
var stopWords = map[string]bool{
	"a": true, "an": true, "and": true, "are": true, "as": true, "at": true,
	"be": true, "by": true, "can": true, "do": true, "does": true, "for": true,
	"from": true, "how": true, "i": true, "if": true, "in": true, "is": true,
	"it": true, "me": true, "my": true, "of": true, "on": true, "or": true,
	"show": true, "tell": true, "that": true, "the": true, "this": true,
	"to": true, "what": true, "when": true, "which": true, "who": true,
	"why": true, "will": true, "with": true, "you": true, "find": true,
	"list": true, "get": true, "about": true, "search": true, "lookup": true,
}

// ftsQuery turns free text into an FTS5 query of quoted terms joined by OR.
// Quoting keeps user punctuation from being parsed as FTS5 syntax.
func ftsQuery(text string) string {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool)
	var terms []string
	for _, w := range words {
		if len(w) < 2 || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		terms = append(terms, `"`+w+`"`)
	}
	return strings.Join(terms, " OR ")
}

// SearchTraits returns traits matching text, best match first. A limit of
// zero uses the store default.
func (s *Store) SearchTraits(ctx context.Context, text string, limit int) ([]types.Trait, error) {
	if limit <= 0 {
		limit = s.maxResults
	}
	q := ftsQuery(text)
	if q == "" {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT t.id, t.name, t.gene, t.inheritance, t.alleles, t.description, t.tags
		FROM traits_fts
		JOIN traits t ON t.rowid = traits_fts.rowid
		WHERE traits_fts MATCH ?
		ORDER BY traits_fts.rank
		LIMIT ?`, q, limit)
	if err != nil {
		return nil, fmt.Errorf("querying traits: %w", err)
	}
	defer rows.Close()

	var traits []types.Trait
	for rows.Next() {
		var (
			t           types.Trait
			gene        sql.NullString
			inheritance sql.NullString
			allelesJSON sql.NullString
			tagsJSON    sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.Name, &gene, &inheritance, &allelesJSON, &t.Description, &tagsJSON); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		t.Gene = gene.String
		t.Inheritance = types.InheritancePattern(inheritance.String)
		if allelesJSON.Valid {
			json.Unmarshal([]byte(allelesJSON.String), &t.Alleles)
		}
		if tagsJSON.Valid {
			json.Unmarshal([]byte(tagsJSON.String), &t.Tags)
		}
		traits = append(traits, t)
	}
	return traits, rows.Err()
}

// Lookup implements DomainLookup: it formats matching trait records as a
// context block for the model. No match yields an empty string.
func (s *Store) Lookup(ctx context.Context, text string) (string, error) {
	traits, err := s.SearchTraits(ctx, text, 0)
	if err != nil {
		return "", err
	}
	return FormatTraits(traits), nil
}

// FormatTraits renders traits as a plain-text context block.
func FormatTraits(traits []types.Trait) string {
	if len(traits) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Trait database records:\n")
	for _, t := range traits {
		fmt.Fprintf(&b, "\n- %s", t.Name)
		if t.Gene != "" {
			fmt.Fprintf(&b, " (gene %s)", t.Gene)
		}
		if t.Inheritance != "" {
			fmt.Fprintf(&b, ", inheritance: %s", strings.ReplaceAll(string(t.Inheritance), "_", " "))
		}
		b.WriteString("\n")
		for _, a := range t.Alleles {
			kind := "recessive"
			if a.Dominant {
				kind = "dominant"
			}
			fmt.Fprintf(&b, "  allele %s (%s): %s\n", a.Symbol, kind, a.Phenotype)
		}
		if t.Description != "" {
			fmt.Fprintf(&b, "  %s\n", t.Description)
		}
	}
	return b.String()
}
