package domain

import (
	"sort"
	"strings"
)

// Namespace keys used in DBRefs.
const (
	NSHGNC    = "HGNC"
	NSUniProt = "UP"
	NSFamPlex = "FPLX"
	NSChEBI   = "CHEBI"
	NSPubChem = "PUBCHEM"
	NSGO      = "GO"
	NSMeSH    = "MESH"
	NSNCIT    = "NCIT"
	NSEFO     = "EFO"
	NSHP      = "HP"
	NSDOID    = "DOID"
	NSText    = "TEXT"
)

// Agent is a named biological entity (gene, protein, drug) with database
// cross-references keyed by namespace.
type Agent struct {
	Name   string            `json:"name"`
	DBRefs map[string]string `json:"db_refs"`
}

// NewAgent copies refs so the returned agent does not alias the caller's map.
func NewAgent(name string, refs map[string]string) *Agent {
	copied := make(map[string]string, len(refs))
	for k, v := range refs {
		copied[k] = v
	}
	return &Agent{Name: name, DBRefs: copied}
}

// Ref returns the id for namespace ns, or "".
func (a *Agent) Ref(ns string) string {
	if a == nil || a.DBRefs == nil {
		return ""
	}
	return a.DBRefs[ns]
}

// RefString renders the refs as "NS:ID|NS:ID" sorted by namespace.
func (a *Agent) RefString() string {
	return FormatRefs(a.DBRefs)
}

// FormatRefs renders refs as "NS:ID|NS:ID" sorted by namespace.
func FormatRefs(refs map[string]string) string {
	keys := make([]string, 0, len(refs))
	for k := range refs {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+":"+refs[k])
	}
	return strings.Join(parts, "|")
}

// ParseRefs parses "NS:ID|NS:ID". Entries without a colon are ignored. IDs
// may themselves contain colons (e.g. "CHEBI:CHEBI:1234").
func ParseRefs(s string) map[string]string {
	refs := make(map[string]string)
	for _, entry := range strings.Split(s, "|") {
		entry = strings.TrimSpace(entry)
		parts := strings.SplitN(entry, ":", 2)
		if len(parts) != 2 || parts[0] == "" {
			continue
		}
		refs[parts[0]] = parts[1]
	}
	return refs
}

// Disease is a disease mention parsed from an EKB term.
type Disease struct {
	Type   string            `json:"type"`
	Name   string            `json:"name"`
	DBRefs map[string]string `json:"db_refs"`
}

// IsCancer reports whether the ontology type denotes a cancer.
func (d *Disease) IsCancer() bool {
	return d != nil && d.Type == "cancer"
}

// Drug identifies a drug by name and optional PubChem id.
type Drug struct {
	Name      string `json:"name"`
	PubChemID string `json:"pubchem_id,omitempty"`
}

// Mutation is a single amino-acid substitution on a statement agent.
type Mutation struct {
	ResidueFrom string `json:"residue_from"`
	Position    string `json:"position"`
	ResidueTo   string `json:"residue_to"`
}

// StatementAgent is an agent as it appears inside a statement.
type StatementAgent struct {
	Name      string            `json:"name"`
	DBRefs    map[string]string `json:"db_refs"`
	Mutations []Mutation        `json:"mutations,omitempty"`
}

// Evidence is one piece of support for a statement.
type Evidence struct {
	SourceAPI string `json:"source_api"`
	PMID      string `json:"pmid,omitempty"`
	Text      string `json:"text,omitempty"`
}

// Statement is a causal-knowledge statement returned by the statement store.
// Subject/Object are set for Inhibition statements, Agent for ActiveForm.
type Statement struct {
	Type     string          `json:"type"`
	Hash     string          `json:"hash,omitempty"`
	Subject  *StatementAgent `json:"subj,omitempty"`
	Object   *StatementAgent `json:"obj,omitempty"`
	Agent    *StatementAgent `json:"agent,omitempty"`
	IsActive bool            `json:"is_active"`
	Evidence []Evidence      `json:"evidence"`
}

// HasEvidenceFrom reports whether any evidence came from sourceAPI.
func (s *Statement) HasEvidenceFrom(sourceAPI string) bool {
	for _, ev := range s.Evidence {
		if ev.SourceAPI == sourceAPI {
			return true
		}
	}
	return false
}

// Statement types queried by the DTDA.
const (
	StatementInhibition = "Inhibition"
	StatementActiveForm = "ActiveForm"
)

// StatementQuery selects statements from the store. Agent fields use the
// "<id>@<ns>" form.
type StatementQuery struct {
	Subject string
	Object  string
	Agent   string
	Type    string
}

// MutationEffect is the functional consequence of a mutation.
type MutationEffect string

const (
	EffectActivate   MutationEffect = "activate"
	EffectDeactivate MutationEffect = "deactivate"
	EffectNone       MutationEffect = "none"
)

// MutationRecord is a single mutation observation from the genomics service.
type MutationRecord struct {
	StudyID       string `json:"study_id"`
	SampleID      string `json:"sample_id"`
	Gene          string `json:"gene"`
	ProteinChange string `json:"protein_change"`
	MutationType  string `json:"mutation_type"`
}

// GeneMutationStats accumulates per-gene mutation counts. After
// normalisation Prevalence is in [0,1] and the effect fractions sum to 1.
type GeneMutationStats struct {
	Gene       string  `json:"gene"`
	Count      int     `json:"count"`
	Prevalence float64 `json:"prevalence"`
	Activate   float64 `json:"activate"`
	Deactivate float64 `json:"deactivate"`
	Other      float64 `json:"other"`
}

// DominantEffect returns the effect with the largest fraction.
func (s *GeneMutationStats) DominantEffect() MutationEffect {
	switch {
	case s.Activate >= s.Deactivate && s.Activate >= s.Other && s.Activate > 0:
		return EffectActivate
	case s.Deactivate >= s.Other && s.Deactivate > 0:
		return EffectDeactivate
	default:
		return EffectNone
	}
}

// TopMutation is the most prevalent mutated gene for a disease.
type TopMutation struct {
	Gene       string         `json:"gene"`
	Percent    int            `json:"percent"`
	Prevalence float64        `json:"prevalence"`
	Effect     MutationEffect `json:"effect"`
}

// Sense is a single reading of an ambiguous term.
type Sense struct {
	Name    string            `json:"name"`
	OntType string            `json:"ont_type"`
	DBRefs  map[string]string `json:"db_refs"`
	Score   float64           `json:"score"`
}

// Ambiguity pairs the preferred sense of a term with an equally scored
// alternative.
type Ambiguity struct {
	TermID      string `json:"term_id"`
	Preferred   Sense  `json:"preferred"`
	Alternative Sense  `json:"alternative"`
}
