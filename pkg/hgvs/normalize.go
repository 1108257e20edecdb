// Package hgvs normalizes and validates the notation carried by mutation calls
// (chromosome names, alleles, gene symbols and short protein changes) before they
// reach the similarity core.
package hgvs

import (
	"regexp"
	"strings"

	"github.com/patient-similarity-server/internal/domain"
)

var (
	// Three-letter amino acid code inside a protein change: Arg175His
	threeLetterPattern = regexp.MustCompile(`[A-Z][a-z]{2}`)

	// RefSeq protein accession prefix: NP_000537.3:
	proteinAccessionPattern = regexp.MustCompile(`^(NP_|XP_|ENSP)[0-9.]+:`)

	// Three-letter to one-letter amino acid codes
	aminoAcidCodes = map[string]string{
		"Ala": "A", "Arg": "R", "Asn": "N", "Asp": "D", "Cys": "C",
		"Gln": "Q", "Glu": "E", "Gly": "G", "His": "H", "Ile": "I",
		"Leu": "L", "Lys": "K", "Met": "M", "Phe": "F", "Pro": "P",
		"Ser": "S", "Thr": "T", "Trp": "W", "Tyr": "Y", "Val": "V",
		"Ter": "*", "Sec": "U", "Pyl": "O", "Xaa": "X",
	}

	// RefSeq chromosome accessions
	refSeqChromosomes = map[string]string{
		"NC_000001": "1", "NC_000002": "2", "NC_000003": "3", "NC_000004": "4",
		"NC_000005": "5", "NC_000006": "6", "NC_000007": "7", "NC_000008": "8",
		"NC_000009": "9", "NC_000010": "10", "NC_000011": "11", "NC_000012": "12",
		"NC_000013": "13", "NC_000014": "14", "NC_000015": "15", "NC_000016": "16",
		"NC_000017": "17", "NC_000018": "18", "NC_000019": "19", "NC_000020": "20",
		"NC_000021": "21", "NC_000022": "22", "NC_000023": "X", "NC_000024": "Y",
		"NC_012920": "M",
	}
)

// NormalizeChromosome maps chromosome names onto one spelling: "chr17" -> "17",
// "23" -> "X", "24" -> "Y", "MT" -> "M". RefSeq accessions are resolved too.
func NormalizeChromosome(chr string) string {
	chr = strings.TrimSpace(chr)
	if strings.HasPrefix(chr, "NC_") {
		accession, _, _ := strings.Cut(chr, ".")
		if mapped, ok := refSeqChromosomes[accession]; ok {
			return mapped
		}
		return chr
	}

	if len(chr) > 3 && strings.EqualFold(chr[:3], "chr") {
		chr = chr[3:]
	}
	switch strings.ToUpper(chr) {
	case "23", "X":
		return "X"
	case "24", "Y":
		return "Y"
	case "MT", "M":
		return "M"
	}
	return chr
}

// NormalizeAllele trims and upper-cases an allele. "-" marks an empty allele and
// is kept as is.
func NormalizeAllele(allele string) string {
	return strings.ToUpper(strings.TrimSpace(allele))
}

// NormalizeGeneSymbol trims and upper-cases a gene symbol.
func NormalizeGeneSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// NormalizeProteinChange converts a protein change to the short one-letter form
// used by mutation annotation files: "p.Arg175His" -> "R175H",
// "NP_000537.3:p.(Gly12Asp)" -> "G12D", "p.R175H" -> "R175H".
func NormalizeProteinChange(change string) string {
	change = strings.TrimSpace(change)
	if change == "" {
		return ""
	}
	change = proteinAccessionPattern.ReplaceAllString(change, "")
	change = strings.TrimPrefix(change, "p.")
	if strings.HasPrefix(change, "(") && strings.HasSuffix(change, ")") {
		change = change[1 : len(change)-1]
	}
	change = threeLetterPattern.ReplaceAllStringFunc(change, func(code string) string {
		if one, ok := aminoAcidCodes[code]; ok {
			return one
		}
		return code
	})
	return strings.ReplaceAll(change, " ", "")
}

// NormalizeRecord returns a copy of r with every notation field normalized.
func NormalizeRecord(r domain.MutationRecord) domain.MutationRecord {
	r.GeneID = NormalizeGeneSymbol(r.GeneID)
	r.Chromosome = NormalizeChromosome(r.Chromosome)
	r.ReferenceAllele = NormalizeAllele(r.ReferenceAllele)
	r.VariantAllele = NormalizeAllele(r.VariantAllele)
	r.ProteinChange = NormalizeProteinChange(r.ProteinChange)
	r.SampleID = strings.TrimSpace(r.SampleID)
	return r
}

// NormalizeRecords normalizes every record into a new slice.
func NormalizeRecords(records []domain.MutationRecord) []domain.MutationRecord {
	out := make([]domain.MutationRecord, len(records))
	for i, r := range records {
		out[i] = NormalizeRecord(r)
	}
	return out
}
