package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/johnbachman/bioagents/internal/domain"
	"github.com/johnbachman/bioagents/internal/metrics"
)

// INDRAClient queries the INDRA DB REST statement service
type INDRAClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	rateLimit  *rate.Limiter
	logger     *logrus.Logger
}

// indraStatementsResponse is the body of /statements/from_agents, keyed by
// statement hash.
type indraStatementsResponse struct {
	Statements map[string]domain.Statement `json:"statements"`
}

// NewINDRAClient creates a new INDRA DB REST client
func NewINDRAClient(config domain.INDRAConfig, logger *logrus.Logger) *INDRAClient {
	if config.BaseURL == "" {
		config.BaseURL = "https://db.indra.bio"
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.RateLimit == 0 {
		config.RateLimit = 5
	}

	return &INDRAClient{
		baseURL: config.BaseURL,
		apiKey:  config.APIKey,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		rateLimit: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
		logger:    logger,
	}
}

// GetStatements returns the statements matching query, ordered by hash.
// No match is an empty slice.
func (c *INDRAClient) GetStatements(ctx context.Context, query domain.StatementQuery) (stmts []domain.Statement, err error) {
	done := metrics.TimeExternal("indra")
	defer func() { done(err == nil) }()

	if err := c.rateLimit.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait failed: %w", err)
	}

	params := url.Values{"format": {"json"}}
	if query.Subject != "" {
		params.Set("subject", query.Subject)
	}
	if query.Object != "" {
		params.Set("object", query.Object)
	}
	if query.Agent != "" {
		params.Set("agent0", query.Agent)
	}
	if query.Type != "" {
		params.Set("type", query.Type)
	}
	if c.apiKey != "" {
		params.Set("api_key", c.apiKey)
	}

	reqURL := fmt.Sprintf("%s/statements/from_agents?%s", c.baseURL, params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	c.logger.WithFields(logrus.Fields{
		"subject": query.Subject,
		"object":  query.Object,
		"agent":   query.Agent,
		"type":    query.Type,
	}).Debug("Querying INDRA statements")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("INDRA API returned status %d: %s", resp.StatusCode, string(body))
	}

	var parsed indraStatementsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	hashes := make([]string, 0, len(parsed.Statements))
	for h := range parsed.Statements {
		hashes = append(hashes, h)
	}
	sort.Strings(hashes)

	stmts = make([]domain.Statement, 0, len(hashes))
	for _, h := range hashes {
		s := parsed.Statements[h]
		s.Hash = h
		stmts = append(stmts, s)
	}
	return stmts, nil
}
