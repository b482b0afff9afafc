// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package research

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/pdiddy/research-assistant/pkg/types"
)

// maxAuthorKey caps the author part of a citation key.
const maxAuthorKey = 50

// yearRe matches a 4-digit year.
var yearRe = regexp.MustCompile(`\b((?:1[5-9]|20)\d{2})\b`)

// authorSplitRe separates author lists: "A; B", "A and B", "A & B".
var authorSplitRe = regexp.MustCompile(`\s*(?:;|\band\b|&)\s*`)

// etAlRe matches "et al." in an author field.
var etAlRe = regexp.MustCompile(`(?i),?\s*\bet\.?\s+al\.?`)

// initialsRe matches given-name initials such as "J." or "J.K.".
var initialsRe = regexp.MustCompile(`^(?:[A-Z]\.)+$`)

// nameSuffixes are dropped when locating a surname.
var nameSuffixes = map[string]bool{"jr": true, "jr.": true, "sr": true, "sr.": true, "ii": true, "iii": true, "iv": true, "phd": true}

// splitAuthors breaks an author field into individual names.
func splitAuthors(field string) []string {
	field = strings.TrimSpace(etAlRe.ReplaceAllString(field, ""))
	if field == "" {
		return nil
	}
	var names []string
	for _, p := range authorSplitRe.Split(field, -1) {
		p = strings.Trim(strings.TrimSpace(p), ",")
		if p != "" {
			names = append(names, p)
		}
	}
	return names
}

// surname returns the family name of a personal name. "Smith, J." and
// "John Q. Smith Jr." both yield "Smith". Long names without a comma or
// initials are treated as organizations and kept whole.
func surname(name string) string {
	name = strings.TrimSpace(name)
	if i := strings.Index(name, ","); i > 0 {
		return strings.TrimSpace(name[:i])
	}
	words := strings.Fields(name)
	for len(words) > 1 && nameSuffixes[strings.ToLower(words[len(words)-1])] {
		words = words[:len(words)-1]
	}
	if len(words) == 0 {
		return ""
	}
	hasInitials := false
	for _, w := range words {
		if initialsRe.MatchString(w) {
			hasInitials = true
		}
	}
	if len(words) > 3 && !hasInitials {
		return strings.Join(words, " ")
	}
	return words[len(words)-1]
}

// authorLabel renders the author part of an inline citation: "Smith",
// "Smith and Jones", or "Smith et al.".
func authorLabel(field string) string {
	names := splitAuthors(field)
	if len(names) == 0 {
		return ""
	}
	etAl := etAlRe.MatchString(field)
	var label string
	switch {
	case len(names) == 1 && !etAl:
		label = surname(names[0])
	case len(names) == 2 && !etAl:
		label = surname(names[0]) + " and " + surname(names[1])
	default:
		label = surname(names[0]) + " et al."
	}
	if len(label) > maxAuthorKey {
		label = truncateBytes(label, maxAuthorKey-3) + "..."
	}
	return label
}

// citationYear returns the publication year from metadata, or "".
func citationYear(meta types.ChunkMetadata) string {
	if m := yearRe.FindStringSubmatch(meta.Year); len(m) > 1 {
		return m[1]
	}
	return ""
}

// citationKey derives the inline citation key for the n-th (1-based)
// source: "(Smith et al., 2023)" when an author is known, "[Source n]"
// otherwise.
func citationKey(meta types.ChunkMetadata, n int) string {
	author := authorLabel(meta.Author)
	if author == "" {
		return fmt.Sprintf("[Source %d]", n)
	}
	year := citationYear(meta)
	if year == "" {
		year = "n.d."
	}
	return fmt.Sprintf("(%s, %s)", author, year)
}

// markCited sets Cited on every source whose key appears in text. Keys
// match without their surrounding brackets, so "(Smith, 2023; Jones, 2021)"
// cites both.
func markCited(text string, sources []types.Source) {
	for i := range sources {
		inner := strings.Trim(sources[i].CitationKey, "()[]")
		if inner == "" {
			continue
		}
		pattern := regexp.QuoteMeta(inner)
		if last := inner[len(inner)-1]; last >= '0' && last <= '9' {
			pattern += `\b`
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			continue
		}
		sources[i].Cited = re.MatchString(text)
	}
}

// FormatReferences renders sources as a Harvard-style reference list, one
// entry per line, in source order.
func FormatReferences(sources []types.Source) string {
	var b strings.Builder
	for i, s := range sources {
		fmt.Fprintf(&b, "%d. ", i+1)
		if s.Author != "" {
			b.WriteString(strings.TrimRight(s.Author, ". "))
			b.WriteString(" ")
		}
		year := s.Year
		if year == "" {
			year = "n.d."
		}
		fmt.Fprintf(&b, "(%s) ", year)
		title := s.Title
		if title == "" {
			title = "Untitled"
		}
		fmt.Fprintf(&b, "'%s'", title)
		if s.Journal != "" {
			fmt.Fprintf(&b, ", %s", s.Journal)
		}
		if s.Edition != "" {
			fmt.Fprintf(&b, ", %s edn", s.Edition)
		}
		if s.Place != "" && s.Publisher != "" {
			fmt.Fprintf(&b, ". %s: %s", s.Place, s.Publisher)
		} else if s.Publisher != "" {
			fmt.Fprintf(&b, ". %s", s.Publisher)
		}
		if s.Pages != "" {
			fmt.Fprintf(&b, ", pp. %s", s.Pages)
		}
		switch {
		case s.DOI != "":
			fmt.Fprintf(&b, ". doi:%s", s.DOI)
		case s.URL != "":
			fmt.Fprintf(&b, ". Available at: %s", s.URL)
		}
		b.WriteString(".\n")
	}
	return b.String()
}

// bibKeyRe strips characters that are not valid in a BibTeX key.
var bibKeyRe = regexp.MustCompile(`[^A-Za-z0-9]`)

// BibTeX renders sources as BibTeX entries. Keys are surname plus year,
// disambiguated with a letter suffix.
func BibTeX(sources []types.Source) string {
	var b strings.Builder
	used := make(map[string]int)
	for i, s := range sources {
		key := bibKey(s, i+1)
		if n := used[key]; n > 0 {
			used[key]++
			key = fmt.Sprintf("%s%c", key, 'a'+rune(n))
		} else {
			used[key] = 1
		}
		kind := "misc"
		switch {
		case s.Journal != "":
			kind = "article"
		case s.ISBN != "" || s.Publisher != "":
			kind = "book"
		}
		fmt.Fprintf(&b, "@%s{%s,\n", kind, key)
		fmt.Fprintf(&b, "  title = {%s},\n", s.Title)
		if names := splitAuthors(s.Author); len(names) > 0 {
			fmt.Fprintf(&b, "  author = {%s},\n", strings.Join(names, " and "))
		}
		writeField(&b, "year", s.Year)
		writeField(&b, "journal", s.Journal)
		writeField(&b, "publisher", s.Publisher)
		writeField(&b, "address", s.Place)
		writeField(&b, "edition", s.Edition)
		writeField(&b, "pages", s.Pages)
		writeField(&b, "doi", s.DOI)
		writeField(&b, "isbn", s.ISBN)
		writeField(&b, "url", s.URL)
		b.WriteString("}\n\n")
	}
	return b.String()
}

func bibKey(s types.Source, n int) string {
	names := splitAuthors(s.Author)
	if len(names) == 0 {
		return fmt.Sprintf("source%d", n)
	}
	key := bibKeyRe.ReplaceAllString(surname(names[0]), "")
	if key == "" {
		key = fmt.Sprintf("source%d", n)
	}
	return key + s.Year
}

func writeField(b *strings.Builder, name, value string) {
	if value != "" {
		fmt.Fprintf(b, "  %s = {%s},\n", name, value)
	}
}
