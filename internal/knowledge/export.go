// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/research-assistant/pkg/types"
)

// Stats counts the records in the store.
type Stats struct {
	Traits    int `json:"traits" yaml:"traits"`
	Documents int `json:"documents" yaml:"documents"`
	Chunks    int `json:"chunks" yaml:"chunks"`
}

// Stats returns record counts.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	for _, q := range []struct {
		sql string
		dst *int
	}{
		{`SELECT count(*) FROM traits`, &st.Traits},
		{`SELECT count(*) FROM documents`, &st.Documents},
		{`SELECT count(*) FROM chunks`, &st.Chunks},
	} {
		if err := s.db.QueryRowContext(ctx, q.sql).Scan(q.dst); err != nil {
			return st, fmt.Errorf("counting records: %w", err)
		}
	}
	return st, nil
}

// AllTraits returns every stored trait ordered by name.
func (s *Store) AllTraits(ctx context.Context) ([]types.Trait, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, gene, inheritance, alleles, description, tags FROM traits ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("querying traits: %w", err)
	}
	defer rows.Close()

	var traits []types.Trait
	for rows.Next() {
		var (
			t                     types.Trait
			gene, inh, al, tagsJS sql.NullString
		)
		if err := rows.Scan(&t.ID, &t.Name, &gene, &inh, &al, &t.Description, &tagsJS); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		t.Gene = gene.String
		t.Inheritance = types.InheritancePattern(inh.String)
		json.Unmarshal([]byte(al.String), &t.Alleles)
		json.Unmarshal([]byte(tagsJS.String), &t.Tags)
		traits = append(traits, t)
	}
	return traits, rows.Err()
}

// ExportTraits writes all traits to w as "yaml" or "json", in the same
// layout IngestTraits reads.
func (s *Store) ExportTraits(ctx context.Context, w io.Writer, format string) error {
	traits, err := s.AllTraits(ctx)
	if err != nil {
		return err
	}
	file := types.TraitFile{Traits: traits}

	switch format {
	case "yaml", "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(file); err != nil {
			return fmt.Errorf("marshaling YAML: %w", err)
		}
		return enc.Close()
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(file)
	default:
		return fmt.Errorf("unsupported format %q: use yaml or json", format)
	}
}
