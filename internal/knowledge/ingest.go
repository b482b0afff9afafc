// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package knowledge

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.yaml.in/yaml/v3"
	"golang.org/x/sync/errgroup"

	"github.com/pdiddy/research-assistant/internal/embedding"
	"github.com/pdiddy/research-assistant/pkg/types"
)

const (
	// embedBatchSize is the number of chunks sent per embedding call.
	embedBatchSize = 32

	// embedParallelism bounds concurrent embedding calls during ingest.
	embedParallelism = 4
)

// IngestSummary holds counts from an indexing run.
type IngestSummary struct {
	Indexed int
	Updated int
	Skipped int
	Failed  int
}

// Total returns the number of files processed.
func (s IngestSummary) Total() int {
	return s.Indexed + s.Updated + s.Skipped + s.Failed
}

func (s *IngestSummary) add(o IngestSummary) {
	s.Indexed += o.Indexed
	s.Updated += o.Updated
	s.Skipped += o.Skipped
	s.Failed += o.Failed
}

// Ingest indexes trait files from knowledgeDir/traits/ and, when emb is
// non-nil, documents from knowledgeDir/documents/. Unchanged files are
// skipped. Missing directories are treated as empty.
func (s *Store) Ingest(ctx context.Context, emb embedding.Embedder, w io.Writer) (IngestSummary, error) {
	summary, err := s.IngestTraits(ctx, w)
	if err != nil {
		return summary, err
	}
	if emb != nil {
		docs, err := s.IngestDocuments(ctx, emb, w)
		summary.add(docs)
		if err != nil {
			return summary, err
		}
	}

	fmt.Fprintf(w, "\nindexed: %d, updated: %d, skipped: %d, failed: %d\n",
		summary.Indexed, summary.Updated, summary.Skipped, summary.Failed)
	return summary, nil
}

// IngestTraits reads knowledgeDir/traits/*.yaml into the traits table.
func (s *Store) IngestTraits(ctx context.Context, w io.Writer) (IngestSummary, error) {
	return s.ingestDir(ctx, filepath.Join(s.knowledgeDir, traitsDir), ".yaml", w,
		func(ctx context.Context, source string, data []byte, isUpdate bool) (int, error) {
			var file types.TraitFile
			if err := yaml.Unmarshal(data, &file); err != nil {
				return 0, fmt.Errorf("parse error: %w", err)
			}
			return len(file.Traits), s.storeTraits(ctx, source, file.Traits)
		},
		func(ctx context.Context, tx *sql.Tx, source string) error {
			_, err := tx.ExecContext(ctx, `DELETE FROM traits WHERE source = ?`, source)
			return err
		})
}

// IngestDocuments reads knowledgeDir/documents/*.md, chunks each document
// by heading, embeds the chunks and stores them for vector search.
func (s *Store) IngestDocuments(ctx context.Context, emb embedding.Embedder, w io.Writer) (IngestSummary, error) {
	return s.ingestDir(ctx, filepath.Join(s.knowledgeDir, documentsDir), ".md", w,
		func(ctx context.Context, source string, data []byte, isUpdate bool) (int, error) {
			docID := strings.TrimSuffix(filepath.Base(source), ".md")
			doc, err := parseDocument(docID, string(data))
			if err != nil {
				return 0, err
			}
			chunks := chunkDocument(doc)
			vectors, err := embedChunks(ctx, emb, chunks)
			if err != nil {
				return 0, err
			}
			return len(chunks), s.storeDocument(ctx, doc, chunks, vectors)
		},
		func(ctx context.Context, tx *sql.Tx, source string) error {
			docID := strings.TrimSuffix(filepath.Base(source), ".md")
			if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, docID); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id = ?`, docID)
			return err
		})
}

type (
	ingestFunc func(ctx context.Context, source string, data []byte, isUpdate bool) (int, error)
	removeFunc func(ctx context.Context, tx *sql.Tx, source string) error
)

// ingestDir applies fn to every file in dir with suffix ext whose
// modification time differs from the last indexed one, then removes the
// records of previously indexed files that no longer exist.
func (s *Store) ingestDir(ctx context.Context, dir, ext string, w io.Writer, fn ingestFunc, remove removeFunc) (IngestSummary, error) {
	var summary IngestSummary

	entries, err := os.ReadDir(dir)
	if err != nil && !os.IsNotExist(err) {
		return summary, fmt.Errorf("reading directory %s: %w", dir, err)
	}

	seen := make(map[string]bool)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ext) {
			continue
		}

		select {
		case <-ctx.Done():
			return summary, ctx.Err()
		default:
		}

		source := filepath.Join(filepath.Base(dir), entry.Name())
		seen[source] = true
		info, err := entry.Info()
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", source, err)
			summary.Failed++
			continue
		}
		modTime := info.ModTime().UTC().Format(time.RFC3339Nano)

		var storedModTime string
		err = s.db.QueryRowContext(ctx,
			`SELECT file_mod_time FROM indexing_status WHERE source = ?`, source,
		).Scan(&storedModTime)
		if err == nil && storedModTime == modTime {
			fmt.Fprintf(w, "skipped %s\n", source)
			summary.Skipped++
			continue
		}
		isUpdate := err == nil

		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", source, err)
			summary.Failed++
			continue
		}

		n, err := fn(ctx, source, data, isUpdate)
		if err == nil {
			err = s.markIndexed(ctx, source, modTime)
		}
		if err != nil {
			fmt.Fprintf(w, "failed  %s: %v\n", source, err)
			s.log.Warn("ingest failed", zap.String("source", source), zap.Error(err))
			summary.Failed++
			continue
		}

		if isUpdate {
			fmt.Fprintf(w, "updated %s (%d records)\n", source, n)
			summary.Updated++
		} else {
			fmt.Fprintf(w, "indexing %s (%d records)\n", source, n)
			summary.Indexed++
		}
	}

	if err := s.pruneRemoved(ctx, filepath.Base(dir), seen, w, remove); err != nil {
		return summary, err
	}
	return summary, nil
}

// pruneRemoved deletes the records and indexing status of sources under
// prefix that are not in seen.
func (s *Store) pruneRemoved(ctx context.Context, prefix string, seen map[string]bool, w io.Writer, remove removeFunc) error {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source FROM indexing_status WHERE source LIKE ?`, prefix+string(filepath.Separator)+"%")
	if err != nil {
		return fmt.Errorf("listing indexed sources: %w", err)
	}
	var stale []string
	for rows.Next() {
		var source string
		if err := rows.Scan(&source); err != nil {
			rows.Close()
			return fmt.Errorf("scanning source: %w", err)
		}
		if !seen[source] {
			stale = append(stale, source)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, source := range stale {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("beginning transaction: %w", err)
		}
		if err := remove(ctx, tx, source); err != nil {
			tx.Rollback()
			return fmt.Errorf("removing %s: %w", source, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM indexing_status WHERE source = ?`, source); err != nil {
			tx.Rollback()
			return fmt.Errorf("removing indexing status for %s: %w", source, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		fmt.Fprintf(w, "removed %s\n", source)
	}
	return nil
}

func (s *Store) markIndexed(ctx context.Context, source, modTime string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO indexing_status (source, file_mod_time) VALUES (?, ?)
		 ON CONFLICT(source) DO UPDATE SET file_mod_time=excluded.file_mod_time`,
		source, modTime,
	)
	if err != nil {
		return fmt.Errorf("updating indexing status: %w", err)
	}
	return nil
}

func (s *Store) storeTraits(ctx context.Context, source string, traits []types.Trait) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM traits WHERE source = ?`, source); err != nil {
		return fmt.Errorf("deleting old traits: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO traits (id, source, name, gene, inheritance, alleles, description, tags)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range traits {
		if t.ID == "" {
			t.ID = stableID(source, t.Name, t.Gene)
		}
		allelesJSON, _ := json.Marshal(t.Alleles)
		tagsJSON, _ := json.Marshal(t.Tags)
		if _, err := stmt.ExecContext(ctx,
			t.ID, source, t.Name, t.Gene, string(t.Inheritance),
			string(allelesJSON), t.Description, string(tagsJSON),
		); err != nil {
			return fmt.Errorf("inserting trait %s: %w", t.ID, err)
		}
	}
	return tx.Commit()
}

func (s *Store) storeDocument(ctx context.Context, doc types.Document, chunks []docChunk, vectors [][]float32) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	metaJSON, _ := json.Marshal(doc.Metadata)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO documents (id, metadata) VALUES (?, ?)
		 ON CONFLICT(id) DO UPDATE SET metadata=excluded.metadata`,
		doc.ID, string(metaJSON),
	); err != nil {
		return fmt.Errorf("upserting document: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE document_id = ?`, doc.ID); err != nil {
		return fmt.Errorf("deleting old chunks: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO chunks (id, document_id, section, page, text, embedding)
		 VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing insert: %w", err)
	}
	defer stmt.Close()

	for i, c := range chunks {
		if _, err := stmt.ExecContext(ctx,
			c.id, doc.ID, c.section, c.page, c.text, encodeVector(vectors[i]),
		); err != nil {
			return fmt.Errorf("inserting chunk %s: %w", c.id, err)
		}
	}
	return tx.Commit()
}

// embedChunks embeds chunk texts in batches, running up to
// embedParallelism batches at once.
func embedChunks(ctx context.Context, emb embedding.Embedder, chunks []docChunk) ([][]float32, error) {
	vectors := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedParallelism)

	for start := 0; start < len(chunks); start += embedBatchSize {
		end := min(start+embedBatchSize, len(chunks))
		g.Go(func() error {
			texts := make([]string, 0, end-start)
			for _, c := range chunks[start:end] {
				texts = append(texts, c.text)
			}
			vecs, err := embedding.EmbedAll(gctx, emb, texts)
			if err != nil {
				return fmt.Errorf("embedding chunks %d-%d: %w", start, end, err)
			}
			copy(vectors[start:end], vecs)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}
