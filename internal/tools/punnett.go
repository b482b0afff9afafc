// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package tools

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"unicode"
)

// maxGenes bounds multihybrid crosses; four genes already produce a
// 16x16 grid.
const maxGenes = 4

// Outcome is one offspring class with its count out of the grid total.
type Outcome struct {
	Label      string  `json:"label"`
	Count      int     `json:"count"`
	Percentage float64 `json:"percentage"`
}

// Cross is the result of crossing two diploid genotypes.
type Cross struct {
	Parent1        string     `json:"parent1"`
	Parent2        string     `json:"parent2"`
	CrossType      string     `json:"cross_type"`
	Gametes1       []string   `json:"parent1_gametes"`
	Gametes2       []string   `json:"parent2_gametes"`
	Grid           [][]string `json:"punnett_square"`
	Genotypes      []Outcome  `json:"offspring_genotypes"`
	Phenotypes     []Outcome  `json:"offspring_phenotypes"`
	GenotypeRatio  string     `json:"genotype_ratio"`
	PhenotypeRatio string     `json:"phenotype_ratio"`
	Total          int        `json:"total_combinations"`
}

// Summary renders the cross as a short plain-text paragraph.
func (c Cross) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s cross %s x %s (%d combinations).\n", c.CrossType, c.Parent1, c.Parent2, c.Total)
	b.WriteString("Genotypes:")
	for _, g := range c.Genotypes {
		fmt.Fprintf(&b, " %s %d/%d (%.1f%%);", g.Label, g.Count, c.Total, g.Percentage)
	}
	fmt.Fprintf(&b, " ratio %s.\nPhenotypes:", c.GenotypeRatio)
	for _, p := range c.Phenotypes {
		fmt.Fprintf(&b, " %s %d/%d (%.1f%%);", p.Label, p.Count, c.Total, p.Percentage)
	}
	fmt.Fprintf(&b, " ratio %s.", c.PhenotypeRatio)
	return b.String()
}

// splitGenes validates a genotype like "AaBb" and returns its gene pairs.
// Each pair must name one gene: the same letter in either case.
func splitGenes(genotype string) ([]string, error) {
	if genotype == "" {
		return nil, fmt.Errorf("genotype cannot be empty")
	}
	for _, r := range genotype {
		if r > unicode.MaxASCII || !unicode.IsLetter(r) {
			return nil, fmt.Errorf("invalid genotype %q: use letters only, e.g. Aa or AaBb", genotype)
		}
	}
	if len(genotype)%2 != 0 {
		return nil, fmt.Errorf("invalid genotype %q: each gene needs exactly two alleles", genotype)
	}
	genes := make([]string, 0, len(genotype)/2)
	for i := 0; i < len(genotype); i += 2 {
		pair := genotype[i : i+2]
		if unicode.ToLower(rune(pair[0])) != unicode.ToLower(rune(pair[1])) {
			return nil, fmt.Errorf("invalid gene %q in %q: both alleles must use the same letter", pair, genotype)
		}
		genes = append(genes, pair)
	}
	if len(genes) > maxGenes {
		return nil, fmt.Errorf("genotype %q has %d genes; at most %d are supported", genotype, len(genes), maxGenes)
	}
	return genes, nil
}

// ComputeCross crosses two genotypes gene by gene, assuming independent
// assortment and complete dominance of uppercase alleles.
func ComputeCross(parent1, parent2 string) (Cross, error) {
	p1 := strings.TrimSpace(parent1)
	p2 := strings.TrimSpace(parent2)
	g1, err := splitGenes(p1)
	if err != nil {
		return Cross{}, err
	}
	g2, err := splitGenes(p2)
	if err != nil {
		return Cross{}, err
	}
	if len(g1) != len(g2) {
		return Cross{}, fmt.Errorf("parents %s and %s carry different numbers of genes", p1, p2)
	}
	for i := range g1 {
		if unicode.ToLower(rune(g1[i][0])) != unicode.ToLower(rune(g2[i][0])) {
			return Cross{}, fmt.Errorf("gene %d differs between parents: %s vs %s", i+1, g1[i], g2[i])
		}
	}

	c := Cross{
		Parent1:   p1,
		Parent2:   p2,
		CrossType: crossType(len(g1)),
		Gametes1:  gametes(g1),
		Gametes2:  gametes(g2),
	}

	genoCounts := make(map[string]int)
	phenoCounts := make(map[string]int)
	header := append([]string{""}, c.Gametes1...)
	c.Grid = append(c.Grid, header)
	for _, b := range c.Gametes2 {
		row := []string{b}
		for _, a := range c.Gametes1 {
			child := combine(a, b)
			row = append(row, child)
			genoCounts[child]++
			phenoCounts[phenotype(child)]++
		}
		c.Grid = append(c.Grid, row)
	}
	c.Total = len(c.Gametes1) * len(c.Gametes2)

	c.Genotypes = outcomes(genoCounts, c.Total, false)
	c.Phenotypes = outcomes(phenoCounts, c.Total, true)
	c.GenotypeRatio = ratio(c.Genotypes)
	c.PhenotypeRatio = ratio(c.Phenotypes)
	return c, nil
}

func crossType(genes int) string {
	switch genes {
	case 1:
		return "monohybrid"
	case 2:
		return "dihybrid"
	case 3:
		return "trihybrid"
	case 4:
		return "tetrahybrid"
	}
	return fmt.Sprintf("%d-hybrid", genes)
}

// gametes lists every allele combination a parent can pass on, one allele
// per gene, in grid order.
func gametes(genes []string) []string {
	out := []string{""}
	for _, g := range genes {
		next := make([]string, 0, len(out)*2)
		for _, prefix := range out {
			next = append(next, prefix+g[:1], prefix+g[1:])
		}
		out = next
	}
	return out
}

// combine joins two gametes into an offspring genotype, each gene written
// dominant allele first.
func combine(a, b string) string {
	var sb strings.Builder
	for i := 0; i < len(a); i++ {
		sb.WriteString(normalizePair(a[i], b[i]))
	}
	return sb.String()
}

func normalizePair(a, b byte) string {
	switch {
	case isUpper(a) && !isUpper(b):
		return string([]byte{a, b})
	case isUpper(b) && !isUpper(a):
		return string([]byte{b, a})
	case a <= b:
		return string([]byte{a, b})
	default:
		return string([]byte{b, a})
	}
}

func isUpper(c byte) bool { return c >= 'A' && c <= 'Z' }

// phenotype writes each gene as "A_" when a dominant allele is present and
// as the recessive pair otherwise.
func phenotype(genotype string) string {
	var sb strings.Builder
	for i := 0; i+1 < len(genotype); i += 2 {
		if isUpper(genotype[i]) {
			sb.WriteByte(genotype[i])
			sb.WriteByte('_')
		} else {
			sb.WriteString(genotype[i : i+2])
		}
	}
	return sb.String()
}

// outcomes sorts genotype classes by label and phenotype classes by count,
// most frequent first.
func outcomes(counts map[string]int, total int, byCount bool) []Outcome {
	out := make([]Outcome, 0, len(counts))
	for label, n := range counts {
		out = append(out, Outcome{Label: label, Count: n, Percentage: 100 * float64(n) / float64(total)})
	}
	sort.Slice(out, func(i, j int) bool {
		if byCount && out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Label < out[j].Label
	})
	return out
}

// ratio reduces outcome counts by their greatest common divisor, e.g. 1:2:1.
func ratio(outs []Outcome) string {
	if len(outs) == 0 {
		return ""
	}
	d := outs[0].Count
	for _, o := range outs[1:] {
		d = gcd(d, o.Count)
	}
	parts := make([]string, len(outs))
	for i, o := range outs {
		parts[i] = fmt.Sprint(o.Count / d)
	}
	return strings.Join(parts, ":")
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}
	return a
}

const genotypeToken = `([A-Za-z]{2,8})`

// crossPatterns find two genotypes in free text, most specific first.
var crossPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bcross(?:ing)?\s+` + genotypeToken + `\s+(?:with|and|x|×)\s+` + genotypeToken + `\b`),
	regexp.MustCompile(`(?i)\b` + genotypeToken + `\s*[x×]\s*` + genotypeToken + `\b`),
	regexp.MustCompile(`(?i)\b` + genotypeToken + `\s+(?:and|with|crossed with)\s+` + genotypeToken + `\b`),
}

// ParseCross finds a cross such as "Aa x Aa" or "cross BB with bb" in
// message. Only pairs that form a valid cross are returned.
func ParseCross(message string) (parent1, parent2 string, ok bool) {
	for _, re := range crossPatterns {
		for _, m := range re.FindAllStringSubmatch(message, -1) {
			if _, err := ComputeCross(m[1], m[2]); err == nil {
				return m[1], m[2], true
			}
		}
	}
	return "", "", false
}
