// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package tools

import (
	"fmt"
	"strings"
)

// maxSequence bounds sequences accepted from the model.
const maxSequence = 3000

// Transcription is a DNA coding strand transcribed to mRNA and translated.
type Transcription struct {
	DNA     string   `json:"dna_sequence"`
	MRNA    string   `json:"mrna_sequence"`
	Codons  []string `json:"codons"`
	Protein string   `json:"protein"`
	// Leftover counts trailing nucleotides that do not form a codon.
	Leftover int `json:"incomplete_nucleotides"`
}

// codonTable maps mRNA codons to one-letter amino acids; "*" is a stop codon.
var codonTable = map[string]byte{
	"UUU": 'F', "UUC": 'F', "UUA": 'L', "UUG": 'L',
	"CUU": 'L', "CUC": 'L', "CUA": 'L', "CUG": 'L',
	"AUU": 'I', "AUC": 'I', "AUA": 'I', "AUG": 'M',
	"GUU": 'V', "GUC": 'V', "GUA": 'V', "GUG": 'V',
	"UCU": 'S', "UCC": 'S', "UCA": 'S', "UCG": 'S',
	"CCU": 'P', "CCC": 'P', "CCA": 'P', "CCG": 'P',
	"ACU": 'T', "ACC": 'T', "ACA": 'T', "ACG": 'T',
	"GCU": 'A', "GCC": 'A', "GCA": 'A', "GCG": 'A',
	"UAU": 'Y', "UAC": 'Y', "UAA": '*', "UAG": '*',
	"CAU": 'H', "CAC": 'H', "CAA": 'Q', "CAG": 'Q',
	"AAU": 'N', "AAC": 'N', "AAA": 'K', "AAG": 'K',
	"GAU": 'D', "GAC": 'D', "GAA": 'E', "GAG": 'E',
	"UGU": 'C', "UGC": 'C', "UGA": '*', "UGG": 'W',
	"CGU": 'R', "CGC": 'R', "CGA": 'R', "CGG": 'R',
	"AGU": 'S', "AGC": 'S', "AGA": 'R', "AGG": 'R',
	"GGU": 'G', "GGC": 'G', "GGA": 'G', "GGG": 'G',
}

// Transcribe converts a DNA coding strand to mRNA (T to U) and translates
// it codon by codon until the first stop codon.
func Transcribe(dna string) (Transcription, error) {
	clean := strings.ToUpper(strings.Join(strings.Fields(dna), ""))
	if len(clean) < 3 {
		return Transcription{}, fmt.Errorf("DNA sequence must be at least 3 nucleotides long")
	}
	if len(clean) > maxSequence {
		return Transcription{}, fmt.Errorf("DNA sequence longer than %d nucleotides", maxSequence)
	}
	for _, r := range clean {
		if !strings.ContainsRune("ATGC", r) {
			return Transcription{}, fmt.Errorf("invalid DNA character %q: use only A, T, G, C", r)
		}
	}

	t := Transcription{DNA: clean, MRNA: strings.ReplaceAll(clean, "T", "U")}
	var protein strings.Builder
	stopped := false
	for i := 0; i+3 <= len(t.MRNA); i += 3 {
		codon := t.MRNA[i : i+3]
		t.Codons = append(t.Codons, codon)
		if stopped {
			continue
		}
		aa := codonTable[codon]
		if aa == '*' {
			stopped = true
			continue
		}
		protein.WriteByte(aa)
	}
	t.Protein = protein.String()
	t.Leftover = len(t.MRNA) % 3
	return t, nil
}
