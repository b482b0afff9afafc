// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// InheritancePattern describes how a trait is passed on.
type InheritancePattern string

const (
	InheritanceDominant     InheritancePattern = "autosomal_dominant"
	InheritanceRecessive    InheritancePattern = "autosomal_recessive"
	InheritanceIncomplete   InheritancePattern = "incomplete_dominance"
	InheritanceCodominant   InheritancePattern = "codominant"
	InheritanceXLinked      InheritancePattern = "x_linked"
	InheritancePolygenic    InheritancePattern = "polygenic"
	InheritanceMitochondria InheritancePattern = "mitochondrial"
)

// Allele is one variant of a gene.
type Allele struct {
	// Symbol is the allele notation (e.g. "B", "b").
	Symbol string `json:"symbol" yaml:"symbol"`

	// Phenotype is the observable trait the allele produces.
	Phenotype string `json:"phenotype" yaml:"phenotype"`

	// Dominant marks the allele as dominant over recessive alleles.
	Dominant bool `json:"dominant" yaml:"dominant"`
}

// Trait is a domain record used for tool and lookup context.
type Trait struct {
	// ID is a stable identifier (e.g. "eye-color").
	ID string `json:"id" yaml:"id"`

	// Name is the human-readable trait name.
	Name string `json:"name" yaml:"name"`

	// Gene is the gene symbol or locus.
	Gene string `json:"gene,omitempty" yaml:"gene,omitempty"`

	// Inheritance is the inheritance pattern.
	Inheritance InheritancePattern `json:"inheritance" yaml:"inheritance"`

	// Alleles lists the known alleles.
	Alleles []Allele `json:"alleles,omitempty" yaml:"alleles,omitempty"`

	// Description is free text used for full-text search.
	Description string `json:"description" yaml:"description"`

	// Tags are lowercase topic labels.
	Tags []string `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// TraitFile is the on-disk layout of knowledge/traits/*.yaml.
type TraitFile struct {
	Traits []Trait `json:"traits" yaml:"traits"`
}

// Document is a reference text ingested for vector search. Its body is
// Markdown; Metadata comes from YAML front matter.
type Document struct {
	// ID is derived from the file name.
	ID string `json:"id" yaml:"id"`

	// Metadata carries the citation details.
	Metadata ChunkMetadata `json:"metadata" yaml:"metadata"`

	// Body is the Markdown content without front matter.
	Body string `json:"-" yaml:"-"`
}
