// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package knowledge

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/research-assistant/pkg/types"
)

// maxChunkChars caps the size of a stored chunk. Longer sections are split
// at paragraph boundaries.
const maxChunkChars = 1500

// section is a heading-delimited region of a Markdown document.
type section struct {
	heading string
	body    string
	page    int
}

// docChunk is a chunk ready for embedding and storage.
type docChunk struct {
	id      string
	section string
	page    int
	text    string
}

// parseDocument splits optional YAML front matter from the Markdown body.
// The title defaults to id.
func parseDocument(id, content string) (types.Document, error) {
	normalized := strings.ReplaceAll(content, "\r\n", "\n")
	doc := types.Document{ID: id, Body: normalized}

	if rest, ok := strings.CutPrefix(normalized, "---\n"); ok {
		if end := strings.Index(rest, "\n---"); end >= 0 {
			if err := yaml.Unmarshal([]byte(rest[:end]), &doc.Metadata); err != nil {
				return doc, fmt.Errorf("parsing front matter: %w", err)
			}
			doc.Body = strings.TrimLeft(rest[end+len("\n---"):], "\n")
		}
	}
	if doc.Metadata.Title == "" {
		doc.Metadata.Title = id
	}
	return doc, nil
}

// chunkDocument divides a document body into stored chunks.
func chunkDocument(doc types.Document) []docChunk {
	var chunks []docChunk
	for _, sec := range chunkByHeadings(doc.Body) {
		for _, piece := range splitParagraphs(strings.TrimSpace(sec.body), maxChunkChars) {
			text := piece
			if sec.heading != "" {
				text = sec.heading + "\n\n" + piece
			}
			chunks = append(chunks, docChunk{
				id:      stableID(doc.ID, sec.heading, piece),
				section: sec.heading,
				page:    sec.page,
				text:    text,
			})
		}
	}
	return chunks
}

// chunkByHeadings splits Markdown content on ## and ### headings, tracking
// page numbers from <!-- page N --> markers.
func chunkByHeadings(content string) []section {
	lines := strings.Split(content, "\n")
	var sections []section
	currentHeading := ""
	currentPage := 1
	sectionPage := 0
	var bodyLines []string

	// A section is attributed to the page of its first non-blank line.
	flush := func() {
		body := strings.Join(bodyLines, "\n")
		if strings.TrimSpace(body) != "" {
			sections = append(sections, section{
				heading: currentHeading,
				body:    body,
				page:    sectionPage,
			})
		}
		bodyLines = nil
		sectionPage = 0
	}

	for _, line := range lines {
		trimmed := strings.TrimSpace(line)

		if page, ok := parsePageMarker(trimmed); ok {
			currentPage = page
			continue
		}

		if isHeading(trimmed) {
			flush()
			currentHeading = strings.TrimSpace(strings.TrimLeft(trimmed, "#"))
			continue
		}

		if sectionPage == 0 && trimmed != "" {
			sectionPage = currentPage
		}
		bodyLines = append(bodyLines, line)
	}

	flush()
	return sections
}

// splitParagraphs packs paragraphs into pieces no longer than limit.
// A single paragraph longer than limit is cut at word boundaries.
func splitParagraphs(body string, limit int) []string {
	if body == "" {
		return nil
	}
	if len(body) <= limit {
		return []string{body}
	}

	var (
		pieces  []string
		current strings.Builder
	)
	flush := func() {
		if current.Len() > 0 {
			pieces = append(pieces, current.String())
			current.Reset()
		}
	}
	for _, para := range strings.Split(body, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+2+len(para) > limit {
			flush()
		}
		for len(para) > limit {
			cut := strings.LastIndex(para[:limit], " ")
			if cut <= 0 {
				cut = limit
			}
			flush()
			pieces = append(pieces, strings.TrimSpace(para[:cut]))
			para = strings.TrimSpace(para[cut:])
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()
	return pieces
}

func isHeading(line string) bool {
	return strings.HasPrefix(line, "## ") || strings.HasPrefix(line, "### ")
}

// parsePageMarker extracts the page number from an HTML comment like <!-- page 3 -->.
func parsePageMarker(line string) (int, bool) {
	if !strings.HasPrefix(line, "<!-- page ") || !strings.HasSuffix(line, " -->") {
		return 0, false
	}
	inner := strings.TrimPrefix(line, "<!-- page ")
	inner = strings.TrimSuffix(inner, " -->")
	var page int
	if _, err := fmt.Sscanf(inner, "%d", &page); err != nil {
		return 0, false
	}
	return page, true
}

// stableID is the first 12 hex characters of SHA-256(docID + section + content).
func stableID(docID, section, content string) string {
	h := sha256.New()
	h.Write([]byte(docID))
	h.Write([]byte(section))
	h.Write([]byte(content))
	return fmt.Sprintf("%x", h.Sum(nil))[:12]
}
