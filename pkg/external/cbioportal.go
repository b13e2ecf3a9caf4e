package external

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/johnbachman/bioagents/internal/domain"
	"github.com/johnbachman/bioagents/internal/metrics"
)

// errNotFound marks a 404 from the portal.
var errNotFound = errors.New("not found")

const studiesCacheKey = "all"

// CBioPortalClient queries the cBioPortal public REST API
type CBioPortalClient struct {
	baseURL    string
	httpClient *http.Client
	rateLimit  *rate.Limiter
	logger     *logrus.Logger

	studies *lru.Cache[string, []string]
	entrez  *lru.Cache[string, int]
}

type cbioStudy struct {
	StudyID string `json:"studyId"`
}

type cbioSampleList struct {
	SampleListID string `json:"sampleListId"`
	SampleCount  int    `json:"sampleCount"`
}

type cbioGene struct {
	EntrezGeneID   int    `json:"entrezGeneId"`
	HugoGeneSymbol string `json:"hugoGeneSymbol"`
}

type cbioMutation struct {
	StudyID       string   `json:"studyId"`
	SampleID      string   `json:"sampleId"`
	EntrezGeneID  int      `json:"entrezGeneId"`
	ProteinChange string   `json:"proteinChange"`
	MutationType  string   `json:"mutationType"`
	Gene          cbioGene `json:"gene"`
}

type cbioMutationFilter struct {
	SampleListID  string `json:"sampleListId"`
	EntrezGeneIDs []int  `json:"entrezGeneIds"`
}

// NewCBioPortalClient creates a new cBioPortal client
func NewCBioPortalClient(config domain.CBioPortalConfig, logger *logrus.Logger) (*CBioPortalClient, error) {
	if config.BaseURL == "" {
		config.BaseURL = "https://www.cbioportal.org/api"
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 5
	}
	if config.CacheSize == 0 {
		config.CacheSize = 1024
	}

	studies, err := lru.New[string, []string](1)
	if err != nil {
		return nil, fmt.Errorf("failed to create study cache: %w", err)
	}
	entrez, err := lru.New[string, int](config.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create gene cache: %w", err)
	}

	return &CBioPortalClient{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimit: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		logger:    logger,
		studies:   studies,
		entrez:    entrez,
	}, nil
}

// ListStudies returns the ids of studies whose id starts with prefix. The
// full study listing is fetched once and cached.
func (c *CBioPortalClient) ListStudies(ctx context.Context, prefix string) ([]string, error) {
	all, ok := c.studies.Get(studiesCacheKey)
	metrics.CacheLookup("cbio_studies", ok)
	if !ok {
		var studies []cbioStudy
		if err := c.doJSON(ctx, http.MethodGet, "/studies?projection=ID", nil, &studies); err != nil {
			return nil, fmt.Errorf("failed to list studies: %w", err)
		}
		all = make([]string, 0, len(studies))
		for _, s := range studies {
			all = append(all, s.StudyID)
		}
		c.studies.Add(studiesCacheKey, all)
	}

	var matched []string
	for _, id := range all {
		if strings.HasPrefix(id, prefix) {
			matched = append(matched, id)
		}
	}
	return matched, nil
}

// GetSequencedCaseCount returns the size of the study's "sequenced" sample
// list. A study without one has zero sequenced cases.
func (c *CBioPortalClient) GetSequencedCaseCount(ctx context.Context, studyID string) (int, error) {
	var list cbioSampleList
	path := "/sample-lists/" + url.PathEscape(studyID+"_sequenced")
	err := c.doJSON(ctx, http.MethodGet, path, nil, &list)
	if errors.Is(err, errNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get sequenced cases for %s: %w", studyID, err)
	}
	return list.SampleCount, nil
}

// GetMutations returns all mutation records for genes in the study.
func (c *CBioPortalClient) GetMutations(ctx context.Context, studyID string, genes []string) ([]domain.MutationRecord, error) {
	ids, err := c.entrezIDs(ctx, genes)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []domain.MutationRecord{}, nil
	}

	filter := cbioMutationFilter{SampleListID: studyID + "_all", EntrezGeneIDs: ids}
	path := "/molecular-profiles/" + url.PathEscape(studyID+"_mutations") + "/mutations/fetch?projection=DETAILED"

	var muts []cbioMutation
	err = c.doJSON(ctx, http.MethodPost, path, filter, &muts)
	if errors.Is(err, errNotFound) {
		c.logger.WithField("study", studyID).Debug("Study has no mutation profile")
		return []domain.MutationRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch mutations for %s: %w", studyID, err)
	}

	records := make([]domain.MutationRecord, 0, len(muts))
	for _, m := range muts {
		studyOf := m.StudyID
		if studyOf == "" {
			studyOf = studyID
		}
		records = append(records, domain.MutationRecord{
			StudyID:       studyOf,
			SampleID:      m.SampleID,
			Gene:          m.Gene.HugoGeneSymbol,
			ProteinChange: m.ProteinChange,
			MutationType:  m.MutationType,
		})
	}
	return records, nil
}

// entrezIDs resolves HUGO symbols, fetching only those not already cached.
// Unknown symbols are dropped.
func (c *CBioPortalClient) entrezIDs(ctx context.Context, genes []string) ([]int, error) {
	ids := make([]int, 0, len(genes))
	var missing []string
	for _, g := range genes {
		if id, ok := c.entrez.Get(g); ok {
			ids = append(ids, id)
			continue
		}
		missing = append(missing, g)
	}
	metrics.CacheLookup("cbio_genes", len(missing) == 0)
	if len(missing) == 0 {
		return ids, nil
	}

	var fetched []cbioGene
	if err := c.doJSON(ctx, http.MethodPost, "/genes/fetch?geneIdType=HUGO_GENE_SYMBOL", missing, &fetched); err != nil {
		return nil, fmt.Errorf("failed to resolve gene ids: %w", err)
	}
	for _, g := range fetched {
		c.entrez.Add(g.HugoGeneSymbol, g.EntrezGeneID)
		ids = append(ids, g.EntrezGeneID)
	}
	return ids, nil
}

func (c *CBioPortalClient) doJSON(ctx context.Context, method, path string, in, out interface{}) (err error) {
	done := metrics.TimeExternal("cbioportal")
	defer func() { done(err == nil || errors.Is(err, errNotFound)) }()

	if err := c.rateLimit.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait failed: %w", err)
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return errNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("cBioPortal API returned status %d: %s", resp.StatusCode, string(data))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse JSON response: %w", err)
	}
	return nil
}
