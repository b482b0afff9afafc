// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package knowledge

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/pdiddy/research-assistant/pkg/types"
)

// VectorSearcher returns the chunks nearest to a query vector.
type VectorSearcher interface {
	Search(ctx context.Context, vector []float32, topK int) ([]types.Chunk, error)
}

// Search implements VectorSearcher. Scores are cosine similarities clamped
// to [0,1], highest first.
func (s *Store) Search(ctx context.Context, vector []float32, topK int) ([]types.Chunk, error) {
	if topK <= 0 {
		return nil, nil
	}
	if len(vector) == 0 {
		return nil, fmt.Errorf("empty query vector")
	}
	if s.vecEnabled {
		return s.searchVec(ctx, vector, topK)
	}
	return s.searchScan(ctx, vector, topK)
}

const chunkColumns = `c.id, c.text, c.section, c.page, d.metadata`

// searchVec orders by sqlite-vec cosine distance in SQL.
func (s *Store) searchVec(ctx context.Context, vector []float32, topK int) ([]types.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chunkColumns+`, vec_distance_cosine(c.embedding, ?) AS distance
		FROM chunks c
		JOIN documents d ON d.id = c.document_id
		ORDER BY distance ASC
		LIMIT ?`, encodeVector(vector), topK)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var chunks []types.Chunk
	for rows.Next() {
		var (
			c        types.Chunk
			section  string
			page     int
			metaJSON string
			distance float64
		)
		if err := rows.Scan(&c.ID, &c.Text, &section, &page, &metaJSON, &distance); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		c.Metadata = chunkMetadata(metaJSON, section, page)
		c.Score = clampScore(1 - distance)
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// searchScan loads every embedding and ranks by cosine similarity in Go.
func (s *Store) searchScan(ctx context.Context, vector []float32, topK int) ([]types.Chunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+chunkColumns+`, c.embedding
		FROM chunks c
		JOIN documents d ON d.id = c.document_id`)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var chunks []types.Chunk
	for rows.Next() {
		var (
			c        types.Chunk
			section  string
			page     int
			metaJSON string
			blob     []byte
		)
		if err := rows.Scan(&c.ID, &c.Text, &section, &page, &metaJSON, &blob); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		emb, err := decodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", c.ID, err)
		}
		c.Metadata = chunkMetadata(metaJSON, section, page)
		c.Score = clampScore(cosineSimilarity(vector, emb))
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].Score > chunks[j].Score })
	if len(chunks) > topK {
		chunks = chunks[:topK]
	}
	return chunks, nil
}

func chunkMetadata(metaJSON, section string, page int) types.ChunkMetadata {
	var meta types.ChunkMetadata
	json.Unmarshal([]byte(metaJSON), &meta)
	if meta.Extra == nil {
		meta.Extra = map[string]string{}
	}
	if section != "" {
		meta.Extra["section"] = section
	}
	if meta.Pages == "" && page > 0 {
		meta.Pages = strconv.Itoa(page)
	}
	return meta
}

// encodeVector serializes v as little-endian float32, the blob layout
// sqlite-vec reads.
func encodeVector(v []float32) []byte {
	buf := new(bytes.Buffer)
	binary.Write(buf, binary.LittleEndian, v)
	return buf.Bytes()
}

func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v, nil
}

// cosineSimilarity returns 0 for mismatched or zero-length vectors.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func clampScore(s float64) float64 {
	switch {
	case math.IsNaN(s), s < 0:
		return 0
	case s > 1:
		return 1
	}
	return s
}
