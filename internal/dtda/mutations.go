package dtda

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/johnbachman/bioagents/internal/domain"
	"github.com/johnbachman/bioagents/internal/metrics"
)

// MissenseMutation is the mutation type used for top-mutation queries.
const MissenseMutation = "missense"

var substitutionPattern = regexp.MustCompile(`^([A-Z])([0-9]+)([A-Z])`)

// GeneLists is the signalling-pathway gene panel used for mutation
// statistics.
var GeneLists = map[string][]string{
	"rtk_signaling": {
		"EGFR", "ERBB2", "ERBB3", "ERBB4", "PDGFA", "PDGFB",
		"PDGFRA", "PDGFRB", "KIT", "FGF1", "FGFR1", "IGF1",
		"IGF1R", "VEGFA", "VEGFB", "KDR",
	},
	"pi3k_signaling": {
		"PIK3CA", "PIK3R1", "PIK3R2", "PTEN", "PDPK1", "AKT1",
		"AKT2", "FOXO1", "FOXO3", "MTOR", "RICTOR", "TSC1", "TSC2",
		"RHEB", "AKT1S1", "RPTOR", "MLST8",
	},
	"mapk_signaling": {
		"KRAS", "HRAS", "BRAF", "RAF1", "MAP3K1", "MAP3K2", "MAP3K3",
		"MAP3K4", "MAP3K5", "MAP2K1", "MAP2K2", "MAP2K3", "MAP2K4",
		"MAP2K5", "MAPK1", "MAPK3", "MAPK4", "MAPK6", "MAPK7", "MAPK8",
		"MAPK9", "MAPK12", "MAPK14", "DAB2", "RASSF1", "RAB25",
	},
}

// GenePanel returns the genes of all pathway lists, in a stable order.
func GenePanel() []string {
	pathways := make([]string, 0, len(GeneLists))
	for p := range GeneLists {
		pathways = append(pathways, p)
	}
	sort.Strings(pathways)

	var genes []string
	for _, p := range pathways {
		genes = append(genes, GeneLists[p]...)
	}
	return genes
}

// FindMutationEffect classifies a residue substitution such as "V600E" on
// protein using known active-form statements. Notation that does not start
// with <residue><position><residue>, or a substitution with no
// single-mutation statement, yields domain.EffectNone.
func (d *DTDA) FindMutationEffect(ctx context.Context, protein, change string) (domain.MutationEffect, error) {
	m := substitutionPattern.FindStringSubmatch(change)
	if m == nil {
		return domain.EffectNone, nil
	}
	from, pos, to := m[1], m[2], m[3]

	stmts, ok := d.activeForms[protein]
	metrics.CacheLookup("active_forms", ok)
	if !ok {
		var err error
		stmts, err = d.store.GetStatements(ctx, domain.StatementQuery{Agent: protein, Type: domain.StatementActiveForm})
		if err != nil {
			return domain.EffectNone, fmt.Errorf("failed to get active forms of %s: %w", protein, err)
		}
		d.activeForms[protein] = stmts
	}

	for _, s := range stmts {
		if s.Agent == nil || len(s.Agent.Mutations) != 1 {
			continue
		}
		mut := s.Agent.Mutations[0]
		if mut.ResidueFrom == from && mut.Position == pos && mut.ResidueTo == to {
			if s.IsActive {
				return domain.EffectActivate, nil
			}
			return domain.EffectDeactivate, nil
		}
	}
	return domain.EffectNone, nil
}

// studiesForDisease resolves a disease name to the matching study ids.
func (d *DTDA) studiesForDisease(ctx context.Context, diseaseName string) ([]string, error) {
	prefixes := d.diseases.Prefixes(diseaseName)
	if len(prefixes) == 0 {
		return nil, domain.NewLookupError(domain.ReasonDiseaseNotFound, diseaseName)
	}

	seen := make(map[string]struct{})
	var studies []string
	for _, p := range prefixes {
		ids, err := d.genomics.ListStudies(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("failed to list studies for %s: %w", p, err)
		}
		for _, id := range ids {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			studies = append(studies, id)
		}
	}
	if len(studies) == 0 {
		return nil, domain.NewLookupError(domain.ReasonDiseaseNotFound, diseaseName)
	}
	sort.Strings(studies)
	return studies, nil
}

type geneAccumulator struct {
	stats  *domain.GeneMutationStats
	counts map[domain.MutationEffect]int
}

// GetMutationStatistics aggregates mutations of the gene panel across every
// study of the disease. Records are filtered to those whose mutation type
// contains mutationType (case-insensitive; empty keeps all). Prevalence is
// the gene's mutation count divided by the number of sequenced cases, capped
// at 1, and the activate/deactivate/other fractions sum to 1 for every
// returned gene.
func (d *DTDA) GetMutationStatistics(ctx context.Context, diseaseName, mutationType string) (map[string]*domain.GeneMutationStats, error) {
	studies, err := d.studiesForDisease(ctx, diseaseName)
	if err != nil {
		return nil, err
	}

	genes := GenePanel()
	wanted := strings.ToLower(mutationType)
	acc := make(map[string]*geneAccumulator)
	totalCases := 0

	for _, study := range studies {
		n, err := d.genomics.GetSequencedCaseCount(ctx, study)
		if err != nil {
			return nil, fmt.Errorf("failed to count cases in %s: %w", study, err)
		}
		totalCases += n

		records, err := d.genomics.GetMutations(ctx, study, genes)
		if err != nil {
			return nil, fmt.Errorf("failed to get mutations in %s: %w", study, err)
		}
		d.logger.WithFields(logrus.Fields{"study": study, "cases": n, "mutations": len(records)}).Debug("Fetched study mutations")

		for _, r := range records {
			if r.Gene == "" || !strings.Contains(strings.ToLower(r.MutationType), wanted) {
				continue
			}
			effect, err := d.FindMutationEffect(ctx, r.Gene, r.ProteinChange)
			if err != nil {
				return nil, err
			}

			a, ok := acc[r.Gene]
			if !ok {
				a = &geneAccumulator{
					stats:  &domain.GeneMutationStats{Gene: r.Gene},
					counts: make(map[domain.MutationEffect]int),
				}
				acc[r.Gene] = a
			}
			a.stats.Count++
			a.counts[effect]++
		}
	}

	result := make(map[string]*domain.GeneMutationStats, len(acc))
	for gene, a := range acc {
		s := a.stats
		if totalCases > 0 {
			s.Prevalence = float64(s.Count) / float64(totalCases)
			// Several mutations of one sample can push the count past the cases.
			if s.Prevalence > 1 {
				s.Prevalence = 1
			}
		}
		sum := float64(a.counts[domain.EffectActivate] + a.counts[domain.EffectDeactivate] + a.counts[domain.EffectNone])
		s.Activate = float64(a.counts[domain.EffectActivate]) / sum
		s.Deactivate = float64(a.counts[domain.EffectDeactivate]) / sum
		s.Other = float64(a.counts[domain.EffectNone]) / sum
		result[gene] = s
	}
	return result, nil
}

// GetTopMutation returns the most prevalent missense-mutated gene of the
// disease. Ties are broken by gene name.
func (d *DTDA) GetTopMutation(ctx context.Context, diseaseName string) (*domain.TopMutation, error) {
	stats, err := d.GetMutationStatistics(ctx, diseaseName, MissenseMutation)
	if err != nil {
		return nil, err
	}
	if len(stats) == 0 {
		d.logger.WithField("disease", diseaseName).Error("No mutation stats")
		return nil, fmt.Errorf("%s: %w", diseaseName, domain.ErrNoMutationStatistics)
	}

	ranked := make([]*domain.GeneMutationStats, 0, len(stats))
	for _, s := range stats {
		ranked = append(ranked, s)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Prevalence != ranked[j].Prevalence {
			return ranked[i].Prevalence > ranked[j].Prevalence
		}
		return ranked[i].Gene < ranked[j].Gene
	})

	top := ranked[0]
	return &domain.TopMutation{
		Gene:       top.Gene,
		Percent:    int(top.Prevalence * 100.0),
		Prevalence: top.Prevalence,
		Effect:     top.DominantEffect(),
	}, nil
}
