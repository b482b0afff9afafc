// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package research

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/pdiddy/research-assistant/pkg/types"
)

// noResultsResponse answers a run whose retrieval found nothing.
const noResultsResponse = "I couldn't find relevant information to answer your research query. Please try rephrasing your question or providing more context."

const synthesisSystemPrompt = `You are a research synthesis expert for a genetics and genomics education platform.
Synthesize information from multiple sources into a comprehensive, accurate answer to the user's research query.

GUIDELINES:
1. Synthesize information from all provided sources into a detailed research report.
2. Structure the response with clear headings, subheadings, and bullet points.
3. CITE SOURCES FREQUENTLY. Use the CITATION_KEY given in each source header, e.g. (Smith, 2023).
4. If a CITATION_KEY is missing or generic, cite as [Source N].
5. Do NOT list a bibliography at the end; references are attached separately. Cite inline only.
6. Acknowledge limitations or conflicting information.
7. Focus on genetics, genomics, and life sciences.
8. Favor depth over brevity.
9. Use Markdown formatting.

Example: "Variance in height is largely polygenic (Smith et al., 2023), though environmental factors play a role [Source 2]."`

const synthesisUserPrompt = `Research Query: %s

Sources:
%s

Please synthesize the information from these sources to answer the research query comprehensively.`

// blockSeparator joins source blocks in the synthesis context.
const blockSeparator = "\n\n"

// contextBlock is one numbered source in the synthesis context.
type contextBlock struct {
	header string
	text   string
}

func newContextBlock(n int, key, title, year, text string) contextBlock {
	return contextBlock{
		header: fmt.Sprintf("[Source %d]\nCITATION_KEY: %s\nTITLE: %s\nYEAR: %s\nCONTENT:\n", n, key, title, year),
		text:   text,
	}
}

// buildContext assembles citation-labeled source blocks from chunks in rank
// order and returns the context with one Source per included block. The
// context never exceeds budget bytes: the first block that would overflow
// is cut to fill the remaining space when its header fits, and assembly
// stops there.
func buildContext(chunks []types.Chunk, budget, previewLen int) (string, []types.Source) {
	var (
		b       strings.Builder
		sources []types.Source
	)
	for _, c := range chunks {
		text := strings.TrimSpace(c.Text)
		if text == "" {
			continue
		}
		n := len(sources) + 1
		meta := c.Metadata
		key := citationKey(meta, n)
		title := meta.Title
		if title == "" {
			title = "Untitled"
		}
		year := citationYear(meta)
		if year == "" {
			year = "n.d."
		}
		blk := newContextBlock(n, key, title, year, text)

		sep := 0
		if b.Len() > 0 {
			sep = len(blockSeparator)
		}
		remaining := budget - b.Len() - sep
		full := len(blk.header) + len(blk.text)
		truncated := false
		if full > remaining {
			room := remaining - len(blk.header)
			if room <= 0 {
				break
			}
			blk.text = truncateBytes(blk.text, room)
			if blk.text == "" {
				break
			}
			truncated = true
		}
		if sep > 0 {
			b.WriteString(blockSeparator)
		}
		b.WriteString(blk.header)
		b.WriteString(blk.text)
		sources = append(sources, sourceFromChunk(c, n, key, previewLen))
		if truncated {
			break
		}
	}
	return b.String(), sources
}

// truncateBytes cuts s to at most n bytes without splitting a rune.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

func sourceFromChunk(c types.Chunk, n int, key string, previewLen int) types.Source {
	m := c.Metadata
	id := c.ID
	if id == "" {
		id = fmt.Sprintf("source_%d", n)
	}
	title := m.Title
	if title == "" {
		title = "Untitled"
	}
	sourceType := m.SourceType
	if sourceType == "" {
		sourceType = "other"
	}
	return types.Source{
		ID:             id,
		Title:          title,
		ContentPreview: cleanPreview(c.Text, previewLen),
		RelevanceScore: c.Score,
		RerankScore:    c.RerankScore,
		CitationKey:    key,
		Author:         m.Author,
		Year:           citationYear(m),
		Publisher:      m.Publisher,
		Journal:        m.Journal,
		DOI:            m.DOI,
		ISBN:           m.ISBN,
		URL:            m.URL,
		SourceType:     sourceType,
		Pages:          m.Pages,
		Edition:        m.Edition,
		Place:          m.Place,
	}
}

var (
	spaceRe       = regexp.MustCompile(`\s+`)
	bracketCiteRe = regexp.MustCompile(`\[\d+(?:[-–,\s]+\d+)*\]`)
	volumeRe      = regexp.MustCompile(`(?i)vol\.\s*\d+,?\s*(?:no\.\s*\d+,?\s*)?(?:pp?\.\s*[\d–-]+)?`)
	parenYearRe   = regexp.MustCompile(`\(\d{4}\)`)
	initialNameRe = regexp.MustCompile(`[A-Z]\.\s*[A-Z][a-z]+,`)
	doiRe         = regexp.MustCompile(`(?i)doi:\s*\S+`)
	sentenceEndRe = regexp.MustCompile(`[.!?]\s+`)
	refStartRe    = regexp.MustCompile(`^[\[\d]`)
	spacePunctRe  = regexp.MustCompile(`\s+([.,;:])`)
)

// cleanPreview strips reference-list noise from chunk text and cuts it to
// maxLen runes at a word boundary, marking the cut with "...".
func cleanPreview(text string, maxLen int) string {
	if maxLen <= 0 {
		maxLen = 150
	}
	clean := strings.TrimSpace(spaceRe.ReplaceAllString(text, " "))
	if clean == "" {
		return ""
	}
	for _, re := range []*regexp.Regexp{bracketCiteRe, volumeRe, parenYearRe, initialNameRe, doiRe} {
		clean = re.ReplaceAllString(clean, "")
	}
	clean = strings.TrimSpace(spaceRe.ReplaceAllString(clean, " "))
	clean = spacePunctRe.ReplaceAllString(clean, "$1")

	// Short, comma-heavy text is likely a reference list; prefer its first
	// real sentence.
	if strings.Count(clean, ",") > 5 && len(clean) < 300 {
		for _, sent := range splitSentences(clean) {
			if len(sent) > 30 && !refStartRe.MatchString(sent) {
				clean = sent
				break
			}
		}
	}

	runes := []rune(clean)
	if len(runes) <= maxLen {
		return clean
	}
	cut := string(runes[:maxLen])
	if i := strings.LastIndex(cut, " "); i >= 0 && utf8.RuneCountInString(cut[:i]) > maxLen*7/10 {
		cut = cut[:i]
	}
	return strings.TrimSpace(cut) + "..."
}

// splitSentences splits text after sentence-ending punctuation.
func splitSentences(text string) []string {
	var out []string
	start := 0
	for _, loc := range sentenceEndRe.FindAllStringIndex(text, -1) {
		out = append(out, strings.TrimSpace(text[start:loc[0]+1]))
		start = loc[1]
	}
	if start < len(text) {
		out = append(out, strings.TrimSpace(text[start:]))
	}
	return out
}
