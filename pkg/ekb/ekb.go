// Package ekb extracts agents, ambiguities and diseases from TRIPS extraction
// knowledge base (EKB) XML fragments.
package ekb

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/johnbachman/bioagents/internal/domain"
)

// ErrNoTerm is returned when a fragment contains no TERM element.
var ErrNoTerm = errors.New("ekb: no TERM element")

// DefaultOntType is reported for ambiguity senses.
const DefaultOntType = "ONT::PROTEIN"

// namespacePriority orders grounding namespaces when choosing a preferred
// sense among equally scored drum terms.
var namespacePriority = []string{
	domain.NSHGNC, domain.NSUniProt, domain.NSFamPlex, domain.NSChEBI,
	domain.NSPubChem, domain.NSGO, domain.NSMeSH, domain.NSNCIT,
	domain.NSEFO, domain.NSHP, domain.NSDOID,
}

// Document is a parsed EKB fragment.
type Document struct {
	Terms []Term `xml:"TERM"`
}

// Term is a TERM element.
type Term struct {
	ID        string     `xml:"id,attr"`
	DBID      string     `xml:"dbid,attr"`
	Type      string     `xml:"type"`
	Name      string     `xml:"name"`
	Text      string     `xml:"text"`
	DrumTerms []DrumTerm `xml:"drum-terms>drum-term"`
}

// DrumTerm is one grounding candidate proposed by the DRUM reader.
type DrumTerm struct {
	DBID       string `xml:"dbid,attr"`
	MatchScore string `xml:"match-score,attr"`
	Name       string `xml:"name,attr"`
	XRefs      []struct {
		DBID string `xml:"dbid,attr"`
	} `xml:"xrefs>xref"`
}

// Score returns the match score, or 0 when missing or malformed.
func (d DrumTerm) Score() float64 {
	s, err := strconv.ParseFloat(strings.TrimSpace(d.MatchScore), 64)
	if err != nil {
		return 0
	}
	return s
}

// Refs returns the drum term's own grounding plus its cross-references.
func (d DrumTerm) Refs() map[string]string {
	refs := domain.ParseRefs(d.DBID)
	for _, x := range d.XRefs {
		for ns, id := range domain.ParseRefs(x.DBID) {
			if _, ok := refs[ns]; !ok {
				refs[ns] = id
			}
		}
	}
	return refs
}

func (d DrumTerm) namespace() string {
	if i := strings.Index(d.DBID, ":"); i > 0 {
		return d.DBID[:i]
	}
	return ""
}

// Parse decodes an EKB XML fragment.
func Parse(fragment string) (*Document, error) {
	var doc Document
	if err := xml.Unmarshal([]byte(fragment), &doc); err != nil {
		return nil, fmt.Errorf("failed to parse EKB: %w", err)
	}
	return &doc, nil
}

// TermAgent is an agent extracted from a TERM, keyed by term id.
type TermAgent struct {
	TermID string
	Agent  *domain.Agent
}

// Processor turns EKB terms into agents. When a NameStandardizer is set,
// HGNC-grounded agents are renamed to their official symbol.
type Processor struct {
	standardizer domain.NameStandardizer
	logger       *logrus.Logger
}

// NewProcessor creates a Processor. standardizer may be nil.
func NewProcessor(standardizer domain.NameStandardizer, logger *logrus.Logger) *Processor {
	return &Processor{standardizer: standardizer, logger: logger}
}

// Agents returns one agent per TERM, in document order.
func (p *Processor) Agents(ctx context.Context, doc *Document) []TermAgent {
	agents := make([]TermAgent, 0, len(doc.Terms))
	for _, t := range doc.Terms {
		agents = append(agents, TermAgent{TermID: t.ID, Agent: p.agentForTerm(ctx, t)})
	}
	return agents
}

// FirstAgent parses fragment and returns the agent for its first TERM.
func (p *Processor) FirstAgent(ctx context.Context, fragment string) (*domain.Agent, error) {
	doc, err := Parse(fragment)
	if err != nil {
		return nil, err
	}
	if len(doc.Terms) == 0 {
		return nil, ErrNoTerm
	}
	return p.agentForTerm(ctx, doc.Terms[0]), nil
}

func (p *Processor) agentForTerm(ctx context.Context, t Term) *domain.Agent {
	name := strings.TrimSpace(t.Name)
	text := strings.TrimSpace(t.Text)
	if name == "" {
		name = text
	}
	if text == "" {
		text = name
	}

	refs := domain.ParseRefs(t.DBID)
	if len(refs) == 0 {
		if preferred, ok := preferredDrumTerm(t.DrumTerms); ok {
			refs = preferred.Refs()
		}
	}
	if text != "" {
		refs[domain.NSText] = text
	}

	if fplx := refs[domain.NSFamPlex]; fplx != "" {
		name = fplx
	}
	if hgnc := refs[domain.NSHGNC]; hgnc != "" && p.standardizer != nil {
		symbol, err := p.standardizer.StandardName(ctx, domain.NSHGNC, hgnc)
		if err != nil {
			p.logger.WithError(err).WithField("hgnc_id", hgnc).Warn("Failed to standardize agent name")
		} else if symbol != "" {
			name = symbol
		}
	}
	return domain.NewAgent(name, refs)
}

// Ambiguities returns, per term, every top-scoring drum term that competes
// with the preferred one. Terms without competing senses are omitted.
func Ambiguities(doc *Document) map[string][]domain.Ambiguity {
	result := make(map[string][]domain.Ambiguity)
	for _, t := range doc.Terms {
		top := topDrumTerms(t.DrumTerms)
		if len(top) < 2 {
			continue
		}
		preferred := pickPreferred(top)
		for i, dt := range top {
			if i == preferred {
				continue
			}
			result[t.ID] = append(result[t.ID], domain.Ambiguity{
				TermID:      t.ID,
				Preferred:   sense(top[preferred]),
				Alternative: sense(dt),
			})
		}
	}
	return result
}

func sense(d DrumTerm) domain.Sense {
	return domain.Sense{
		Name:    d.Name,
		OntType: DefaultOntType,
		DBRefs:  d.Refs(),
		Score:   d.Score(),
	}
}

// topDrumTerms returns the drum terms sharing the highest score, sorted.
func topDrumTerms(terms []DrumTerm) []DrumTerm {
	if len(terms) == 0 {
		return nil
	}
	sorted := make([]DrumTerm, len(terms))
	copy(sorted, terms)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score() > sorted[j].Score()
	})
	best := sorted[0].Score()
	n := 1
	for n < len(sorted) && sorted[n].Score() == best {
		n++
	}
	return sorted[:n]
}

func preferredDrumTerm(terms []DrumTerm) (DrumTerm, bool) {
	top := topDrumTerms(terms)
	if len(top) == 0 {
		return DrumTerm{}, false
	}
	return top[pickPreferred(top)], true
}

// pickPreferred returns the index of the entry whose namespace ranks highest.
func pickPreferred(terms []DrumTerm) int {
	best, bestRank := 0, len(namespacePriority)
	for i, t := range terms {
		rank := len(namespacePriority)
		for r, ns := range namespacePriority {
			if t.namespace() == ns {
				rank = r
				break
			}
		}
		if rank < bestRank {
			best, bestRank = i, rank
		}
	}
	return best
}

// ParseDisease reads the first TERM of fragment as a disease. Any structural
// problem yields an error wrapping domain.ErrInvalidDisease.
func ParseDisease(fragment string) (*domain.Disease, error) {
	doc, err := Parse(fragment)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidDisease, err)
	}
	if len(doc.Terms) == 0 {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidDisease, ErrNoTerm)
	}
	t := doc.Terms[0]

	diseaseType := strings.TrimSpace(t.Type)
	if diseaseType == "" {
		return nil, fmt.Errorf("%w: term %s has no type", domain.ErrInvalidDisease, t.ID)
	}
	if strings.HasPrefix(diseaseType, "ONT::") {
		diseaseType = strings.ToLower(diseaseType[len("ONT::"):])
	}
	if len(t.DrumTerms) == 0 {
		return nil, fmt.Errorf("%w: term %s has no drum terms", domain.ErrInvalidDisease, t.ID)
	}
	refs := domain.ParseRefs(t.DBID)
	if len(refs) == 0 {
		return nil, fmt.Errorf("%w: term %s has no dbid", domain.ErrInvalidDisease, t.ID)
	}

	return &domain.Disease{
		Type:   diseaseType,
		Name:   t.DrumTerms[0].Name,
		DBRefs: refs,
	}, nil
}
