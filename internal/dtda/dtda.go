// Package dtda implements the disease-target-drug advisor: cached drug/target
// lookups against the statement store, mutation effect classification and
// per-disease mutation statistics from the cancer genomics portal.
package dtda

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/johnbachman/bioagents/internal/domain"
	"github.com/johnbachman/bioagents/internal/metrics"
)

// DefaultEvidenceSource is the evidence source a drug-target statement must
// cite to count as a nominal relationship.
const DefaultEvidenceSource = "tas"

// Term is a single (id, namespace) identifier used as a cache key.
type Term struct {
	ID        string
	Namespace string
}

// String renders the term in the statement-store query form "<id>@<ns>".
func (t Term) String() string {
	return t.ID + "@" + t.Namespace
}

// Terms expands an agent into every identifier it can be looked up by: its
// database references, its name as text, and the name without hyphens.
func Terms(agent *domain.Agent) []Term {
	set := make(map[Term]struct{})
	for ns, id := range agent.DBRefs {
		if id == "" {
			continue
		}
		set[Term{ID: id, Namespace: ns}] = struct{}{}
	}
	if agent.Name != "" {
		set[Term{ID: agent.Name, Namespace: domain.NSText}] = struct{}{}
		if strings.Contains(agent.Name, "-") {
			set[Term{ID: strings.ReplaceAll(agent.Name, "-", ""), Namespace: domain.NSText}] = struct{}{}
		}
	}

	terms := make([]Term, 0, len(set))
	for t := range set {
		terms = append(terms, t)
	}
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Namespace != terms[j].Namespace {
			return terms[i].Namespace < terms[j].Namespace
		}
		return terms[i].ID < terms[j].ID
	})
	return terms
}

// DTDA holds the lookup caches. The caches are plain maps: a DTDA must only
// be used from one goroutine at a time.
type DTDA struct {
	store          domain.StatementStore
	genomics       domain.CancerGenomics
	diseases       *DiseaseTable
	evidenceSource string
	logger         *logrus.Logger

	// drugTargets and targetDrugs are filled independently and never
	// reconciled: a drug appearing as a value in targetDrugs does not imply
	// all of its targets are known.
	drugTargets map[Term]map[string]struct{}
	targetDrugs map[Term]map[domain.Drug]struct{}
	activeForms map[string][]domain.Statement
}

// New creates a DTDA with empty caches.
func New(store domain.StatementStore, genomics domain.CancerGenomics, diseases *DiseaseTable, evidenceSource string, logger *logrus.Logger) *DTDA {
	if evidenceSource == "" {
		evidenceSource = DefaultEvidenceSource
	}
	return &DTDA{
		store:          store,
		genomics:       genomics,
		diseases:       diseases,
		evidenceSource: evidenceSource,
		logger:         logger,
		drugTargets:    make(map[Term]map[string]struct{}),
		targetDrugs:    make(map[Term]map[domain.Drug]struct{}),
		activeForms:    make(map[string][]domain.Statement),
	}
}

// Diseases exposes the disease table.
func (d *DTDA) Diseases() *DiseaseTable {
	return d.diseases
}

// inhibitions returns the Inhibition statements for the query that carry
// evidence from the configured source.
func (d *DTDA) inhibitions(ctx context.Context, query domain.StatementQuery) ([]domain.Statement, error) {
	query.Type = domain.StatementInhibition
	stmts, err := d.store.GetStatements(ctx, query)
	if err != nil {
		return nil, err
	}
	kept := make([]domain.Statement, 0, len(stmts))
	for _, s := range stmts {
		if s.HasEvidenceFrom(d.evidenceSource) {
			kept = append(kept, s)
		}
	}
	return kept, nil
}

// FindDrugTargets returns the names of every target the drug nominally
// inhibits, sorted. An unknown drug yields an empty slice.
func (d *DTDA) FindDrugTargets(ctx context.Context, drug *domain.Agent) ([]string, error) {
	all := make(map[string]struct{})
	for _, term := range Terms(drug) {
		targets, ok := d.drugTargets[term]
		metrics.CacheLookup("drug_targets", ok)
		if !ok {
			stmts, err := d.inhibitions(ctx, domain.StatementQuery{Subject: term.String()})
			if err != nil {
				return nil, fmt.Errorf("failed to find targets of %s: %w", term, err)
			}
			targets = make(map[string]struct{})
			for _, s := range stmts {
				if s.Object != nil && s.Object.Name != "" {
					targets[s.Object.Name] = struct{}{}
				}
			}
			d.drugTargets[term] = targets
			d.logger.WithFields(logrus.Fields{"term": term.String(), "targets": len(targets)}).Debug("Cached drug targets")
		}
		for t := range targets {
			all[t] = struct{}{}
		}
	}

	names := make([]string, 0, len(all))
	for t := range all {
		names = append(names, t)
	}
	sort.Strings(names)
	return names, nil
}

// FindTargetDrugs returns every drug that nominally inhibits the target,
// sorted by name. A target without drugs yields an empty slice.
func (d *DTDA) FindTargetDrugs(ctx context.Context, target *domain.Agent) ([]domain.Drug, error) {
	all := make(map[domain.Drug]struct{})
	for _, term := range Terms(target) {
		drugs, ok := d.targetDrugs[term]
		metrics.CacheLookup("target_drugs", ok)
		if !ok {
			stmts, err := d.inhibitions(ctx, domain.StatementQuery{Object: term.String()})
			if err != nil {
				return nil, fmt.Errorf("failed to find drugs for %s: %w", term, err)
			}
			drugs = make(map[domain.Drug]struct{})
			for _, s := range stmts {
				if s.Subject == nil || s.Subject.Name == "" {
					continue
				}
				drugs[domain.Drug{Name: s.Subject.Name, PubChemID: s.Subject.DBRefs[domain.NSPubChem]}] = struct{}{}
			}
			d.targetDrugs[term] = drugs
			d.logger.WithFields(logrus.Fields{"term": term.String(), "drugs": len(drugs)}).Debug("Cached target drugs")
		}
		for dr := range drugs {
			all[dr] = struct{}{}
		}
	}

	result := make([]domain.Drug, 0, len(all))
	for dr := range all {
		result = append(result, dr)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Name != result[j].Name {
			return result[i].Name < result[j].Name
		}
		return result[i].PubChemID < result[j].PubChemID
	})
	return result, nil
}

// IsNominalDrugTarget reports whether the drug nominally targets targetName.
// A drug with no known targets fails with domain.ErrDrugNotFound.
func (d *DTDA) IsNominalDrugTarget(ctx context.Context, drug *domain.Agent, targetName string) (bool, error) {
	targets, err := d.FindDrugTargets(ctx, drug)
	if err != nil {
		return false, err
	}
	if len(targets) == 0 {
		return false, domain.NewLookupError(domain.ReasonDrugNotFound, drug.Name)
	}
	for _, t := range targets {
		if t == targetName {
			return true, nil
		}
	}
	return false, nil
}
