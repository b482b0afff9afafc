// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package classify

import (
	"regexp"
	"strings"

	"github.com/pdiddy/research-assistant/pkg/types"
)

// Rule confidences. A rule match at or above the classifier threshold is
// trusted without a model call.
const (
	conversationalConfidence = 0.95
	hybridConfidence         = 0.85
	toolsConfidence          = 0.90
	knowledgeConfidence      = 0.85
	defaultConfidence        = 0.5
)

// patternGroup is a set of case-insensitive patterns sharing one category
// and confidence. The group matches when any pattern matches.
type patternGroup struct {
	category   types.Category
	confidence float64
	patterns   []*regexp.Regexp
}

func newGroup(category types.Category, confidence float64, patterns ...string) patternGroup {
	g := patternGroup{category: category, confidence: confidence}
	for _, p := range patterns {
		g.patterns = append(g.patterns, regexp.MustCompile(`(?i)`+p))
	}
	return g
}

func (g patternGroup) matches(text string) bool {
	for _, p := range g.patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// Groups are evaluated in order; the first match wins.
var ruleGroups = []patternGroup{
	newGroup(types.CategoryConversational, conversationalConfidence,
		`^(hi|hello|hey|greetings|howdy|sup|yo)\b`,
		`\b(how are you|what's up|how's it going|how do you do)\b`,
		`^(thanks|thank you|thx|ty|appreciated|cheers)\b`,
		`^(bye|goodbye|see you|later|farewell|cya)\b`,
		`^(good morning|good afternoon|good evening|good night)\b`,
		`^(ok|okay|alright|cool|nice|great|awesome)\s*[.!]*$`,
	),
	// Compound and multi-intent phrasing is checked before the specific
	// categories so "explain X and calculate Y" is not taken as tools.
	newGroup(types.CategoryHybrid, hybridConfidence,
		`\b(explain|what\s+is|what\s+are|describe|define)\b.+\b(and|then)\b.+\b(calculate|compute|show|transcribe|translate|search|list|generate)\b`,
		`\b(calculate|compute|transcribe|translate|search|list|generate)\b.+\b(and|then)\b.+\b(explain|what|why|how|describe)\b`,
		`\?.*\?`,
		`\b(explain|define|what\s+is)\b.+\b(calculate|transcribe|translate|punnett|cross)\b`,
		`.+\b(and\s+then|and\s+also|plus)\b.+`,
	),
	newGroup(types.CategoryTools, toolsConfidence,
		`\b(punnett\s+square|punnet|cross|monohybrid|dihybrid)\b`,
		`\b(genotype|phenotype|allele|heterozygous|homozygous|dominant|recessive)\b`,
		`\b(transcribe|translate|translat)\b.*\b(DNA|RNA|sequence|codon)\b`,
		`\b(DNA|RNA|mRNA|tRNA|protein|codon|amino acid)\b.*\b(sequence|transcrib|translat)`,
		`\b(search|find|list|show|get|lookup)\b.*\b(trait|gene|allele)s?\b`,
		`\b(trait|gene)s?\b.*\b(search|find|list|show|details|information)\b`,
		`\b(calculate|generate|create|make|compute)\b.*\b(sequence|DNA|RNA|protein|cross|square)\b`,
		`\b(inheritance\s+pattern|inheritance\s+type|how\s+is.*inherited)\b`,
		`\b(random\s+DNA|random\s+sequence|generate.*sequence)\b`,
	),
	newGroup(types.CategoryKnowledge, knowledgeConfidence,
		`^(what\s+is|what\s+are|what's|define|explain|tell\s+me\s+about|describe)\b`,
		`\b(genetic\s+engineering|CRISPR|biotechnology|cloning|gene\s+editing)\b`,
		`\b(history\s+of|how\s+does|how\s+do|why|when|where|who)\b`,
		`\b(advantages?|disadvantages?|pros|cons|benefits?|drawbacks?|applications?|uses?)\b`,
		`\b(DNA\s+replication|mitosis|meiosis|cell\s+division|chromosomes?)\b`,
		`\b(evolution|natural\s+selection|genetic\s+drift|mutations?)\b`,
		`^(can\s+you\s+explain|help\s+me\s+understand|I\s+want\s+to\s+know)\b`,
	),
}

// RuleClassify assigns a category from pattern rules alone. Unmatched text
// defaults to knowledge at low confidence.
func RuleClassify(text string) types.ClassificationResult {
	trimmed := strings.TrimSpace(text)
	for _, g := range ruleGroups {
		if g.matches(trimmed) {
			return types.ClassificationResult{Category: g.category, Confidence: g.confidence, Source: types.SourceRule}
		}
	}
	return types.ClassificationResult{Category: types.CategoryKnowledge, Confidence: defaultConfidence, Source: types.SourceRule}
}
