package external

import (
	"context"
	"encoding/json"
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

// HGNCClient handles interactions with the HUGO Gene Nomenclature Committee (HGNC) API
type HGNCClient struct {
	baseURL    string
	httpClient *http.Client
	rateLimit  *rate.Limiter
	symbols    *lru.Cache[string, string]
	logger     *logrus.Logger
}

// HGNCResponse represents the JSON response structure from HGNC API
type HGNCResponse struct {
	Response struct {
		NumFound int `json:"numFound"`
		Docs     []struct {
			Symbol string `json:"symbol"`
			Name   string `json:"name"`
			Status string `json:"status"`
			HGNCID string `json:"hgnc_id"`
		} `json:"docs"`
	} `json:"response"`
}

// NewHGNCClient creates a new HGNC API client
func NewHGNCClient(config domain.HGNCConfig, logger *logrus.Logger) (*HGNCClient, error) {
	if config.BaseURL == "" {
		config.BaseURL = "https://rest.genenames.org"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 3 // HGNC recommendation: 3 requests per second
	}
	if config.CacheSize == 0 {
		config.CacheSize = 4096
	}

	symbols, err := lru.New[string, string](config.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create symbol cache: %w", err)
	}

	return &HGNCClient{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimit: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		symbols:   symbols,
		logger:    logger,
	}, nil
}

// StandardName returns the approved HGNC symbol for an HGNC id. Other
// namespaces and unknown ids yield "". Lookups, misses included, are cached.
func (h *HGNCClient) StandardName(ctx context.Context, ns, id string) (string, error) {
	if ns != domain.NSHGNC {
		return "", nil
	}
	id = strings.TrimPrefix(strings.TrimSpace(id), "HGNC:")
	if id == "" {
		return "", nil
	}

	if symbol, ok := h.symbols.Get(id); ok {
		metrics.CacheLookup("hgnc_symbols", true)
		return symbol, nil
	}
	metrics.CacheLookup("hgnc_symbols", false)

	data, err := h.fetchByID(ctx, id)
	if err != nil {
		return "", fmt.Errorf("failed to fetch HGNC id %s: %w", id, err)
	}

	var symbol string
	if len(data.Response.Docs) > 0 {
		symbol = data.Response.Docs[0].Symbol
	}
	h.symbols.Add(id, symbol)
	return symbol, nil
}

// fetchByID performs the actual API call for an HGNC id
func (h *HGNCClient) fetchByID(ctx context.Context, id string) (resp *HGNCResponse, err error) {
	done := metrics.TimeExternal("hgnc")
	defer func() { done(err == nil) }()

	if err := h.rateLimit.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	fetchURL := fmt.Sprintf("%s/fetch/hgnc_id/%s", h.baseURL, url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "bioagents/1.0")

	httpResp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("HGNC API returned status %d: %s", httpResp.StatusCode, string(body))
	}

	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var hgncResponse HGNCResponse
	if err := json.Unmarshal(body, &hgncResponse); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	h.logger.WithFields(logrus.Fields{"hgnc_id": id, "found": hgncResponse.Response.NumFound}).Debug("HGNC lookup")
	return &hgncResponse, nil
}
