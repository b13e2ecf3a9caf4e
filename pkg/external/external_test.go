package external

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/johnbachman/bioagents/internal/domain"
)

const inhibitionJSON = `{
  "statements": {
    "-2": {
      "type": "Inhibition",
      "subj": {"name": "VEMURAFENIB", "db_refs": {"CHEBI": "CHEBI:63637", "PUBCHEM": "42611257"}},
      "obj": {"name": "BRAF", "db_refs": {"HGNC": "1097"}},
      "evidence": [{"source_api": "tas"}]
    },
    "-1": {
      "type": "Inhibition",
      "subj": {"name": "VEMURAFENIB", "db_refs": {}},
      "obj": {"name": "RAF1", "db_refs": {"HGNC": "9829"}},
      "evidence": [{"source_api": "reach", "pmid": "123"}]
    }
  }
}`

func TestINDRAClient_GetStatements(t *testing.T) {
	logger, _ := test.NewNullLogger()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/statements/from_agents", r.URL.Path)
		assert.Equal(t, "63637@CHEBI", r.URL.Query().Get("subject"))
		assert.Equal(t, "Inhibition", r.URL.Query().Get("type"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))
		assert.Equal(t, "secret", r.URL.Query().Get("api_key"))
		assert.Empty(t, r.URL.Query().Get("object"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(inhibitionJSON))
	}))
	defer server.Close()

	client := NewINDRAClient(domain.INDRAConfig{
		BaseURL:   server.URL,
		APIKey:    "secret",
		Timeout:   5 * time.Second,
		RateLimit: 100,
	}, logger)

	stmts, err := client.GetStatements(context.Background(), domain.StatementQuery{
		Subject: "63637@CHEBI",
		Type:    domain.StatementInhibition,
	})
	require.NoError(t, err)
	require.Len(t, stmts, 2)

	// Ordered by hash.
	assert.Equal(t, "-1", stmts[0].Hash)
	assert.Equal(t, "RAF1", stmts[0].Object.Name)
	assert.False(t, stmts[0].HasEvidenceFrom("tas"))

	assert.Equal(t, "BRAF", stmts[1].Object.Name)
	assert.Equal(t, "42611257", stmts[1].Subject.DBRefs["PUBCHEM"])
	assert.True(t, stmts[1].HasEvidenceFrom("tas"))
}

func TestINDRAClient_ActiveFormAndErrors(t *testing.T) {
	logger, _ := test.NewNullLogger()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("agent0") == "BOOM" {
			http.Error(w, "internal", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(`{"statements": {"7": {
			"type": "ActiveForm",
			"agent": {"name": "BRAF", "db_refs": {}, "mutations": [{"residue_from": "V", "position": "600", "residue_to": "E"}]},
			"is_active": true,
			"evidence": []}}}`))
	}))
	defer server.Close()

	client := NewINDRAClient(domain.INDRAConfig{BaseURL: server.URL, RateLimit: 100}, logger)

	stmts, err := client.GetStatements(context.Background(), domain.StatementQuery{Agent: "BRAF", Type: domain.StatementActiveForm})
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	require.NotNil(t, stmts[0].Agent)
	assert.True(t, stmts[0].IsActive)
	assert.Equal(t, domain.Mutation{ResidueFrom: "V", Position: "600", ResidueTo: "E"}, stmts[0].Agent.Mutations[0])

	_, err = client.GetStatements(context.Background(), domain.StatementQuery{Agent: "BOOM"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func newCBioServer(t *testing.T, geneFetches *int32) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/studies", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"studyId": "paad_tcga"}, {"studyId": "paad_qcmg_uq_2016"}, {"studyId": "luad_tcga"}]`))
	})
	mux.HandleFunc("/sample-lists/paad_tcga_sequenced", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"sampleListId": "paad_tcga_sequenced", "sampleCount": 150}`))
	})
	mux.HandleFunc("/genes/fetch", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(geneFetches, 1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "HUGO_GENE_SYMBOL", r.URL.Query().Get("geneIdType"))
		var symbols []string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&symbols))
		var genes []cbioGene
		for _, s := range symbols {
			switch s {
			case "KRAS":
				genes = append(genes, cbioGene{EntrezGeneID: 3845, HugoGeneSymbol: "KRAS"})
			case "BRAF":
				genes = append(genes, cbioGene{EntrezGeneID: 673, HugoGeneSymbol: "BRAF"})
			}
		}
		_ = json.NewEncoder(w).Encode(genes)
	})
	mux.HandleFunc("/molecular-profiles/paad_tcga_mutations/mutations/fetch", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "DETAILED", r.URL.Query().Get("projection"))
		var filter cbioMutationFilter
		require.NoError(t, json.NewDecoder(r.Body).Decode(&filter))
		assert.Equal(t, "paad_tcga_all", filter.SampleListID)
		assert.ElementsMatch(t, []int{3845, 673}, filter.EntrezGeneIDs)
		_, _ = w.Write([]byte(`[
			{"studyId": "paad_tcga", "sampleId": "S1", "proteinChange": "G12D", "mutationType": "Missense_Mutation", "gene": {"hugoGeneSymbol": "KRAS", "entrezGeneId": 3845}},
			{"studyId": "paad_tcga", "sampleId": "S2", "proteinChange": "V600E", "mutationType": "Missense_Mutation", "gene": {"hugoGeneSymbol": "BRAF", "entrezGeneId": 673}}
		]`))
	})
	return httptest.NewServer(mux)
}

func TestCBioPortalClient(t *testing.T) {
	logger, _ := test.NewNullLogger()
	var geneFetches int32
	server := newCBioServer(t, &geneFetches)
	defer server.Close()

	client, err := NewCBioPortalClient(domain.CBioPortalConfig{BaseURL: server.URL, RateLimit: 100}, logger)
	require.NoError(t, err)
	ctx := context.Background()

	studies, err := client.ListStudies(ctx, "paad")
	require.NoError(t, err)
	assert.Equal(t, []string{"paad_tcga", "paad_qcmg_uq_2016"}, studies)

	none, err := client.ListStudies(ctx, "zzzz")
	require.NoError(t, err)
	assert.Empty(t, none)

	count, err := client.GetSequencedCaseCount(ctx, "paad_tcga")
	require.NoError(t, err)
	assert.Equal(t, 150, count)

	missing, err := client.GetSequencedCaseCount(ctx, "luad_tcga")
	require.NoError(t, err)
	assert.Equal(t, 0, missing)

	records, err := client.GetMutations(ctx, "paad_tcga", []string{"KRAS", "BRAF", "NOTAGENE"})
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, domain.MutationRecord{
		StudyID: "paad_tcga", SampleID: "S1", Gene: "KRAS", ProteinChange: "G12D", MutationType: "Missense_Mutation",
	}, records[0])

	_, err = client.GetMutations(ctx, "paad_tcga", []string{"KRAS", "BRAF"})
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&geneFetches), "resolved gene ids should be cached")

	empty, err := client.GetMutations(ctx, "luad_tcga", []string{"KRAS"})
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestHGNCClient_StandardName(t *testing.T) {
	logger, _ := test.NewNullLogger()
	var calls int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		switch r.URL.Path {
		case "/fetch/hgnc_id/1097":
			_, _ = w.Write([]byte(`{"response": {"numFound": 1, "docs": [{"symbol": "BRAF", "hgnc_id": "HGNC:1097"}]}}`))
		default:
			_, _ = w.Write([]byte(`{"response": {"numFound": 0, "docs": []}}`))
		}
	}))
	defer server.Close()

	client, err := NewHGNCClient(domain.HGNCConfig{BaseURL: server.URL, RateLimit: 100}, logger)
	require.NoError(t, err)
	ctx := context.Background()

	symbol, err := client.StandardName(ctx, "HGNC", "1097")
	require.NoError(t, err)
	assert.Equal(t, "BRAF", symbol)

	symbol, err = client.StandardName(ctx, "HGNC", "HGNC:1097")
	require.NoError(t, err)
	assert.Equal(t, "BRAF", symbol)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))

	unknown, err := client.StandardName(ctx, "HGNC", "999999")
	require.NoError(t, err)
	assert.Empty(t, unknown)

	other, err := client.StandardName(ctx, "UP", "P15056")
	require.NoError(t, err)
	assert.Empty(t, other)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetStatements(ctx context.Context, query domain.StatementQuery) ([]domain.Statement, error) {
	args := m.Called(ctx, query)
	stmts, _ := args.Get(0).([]domain.Statement)
	return stmts, args.Error(1)
}

func TestResilientStatementStoreTrips(t *testing.T) {
	logger, hook := test.NewNullLogger()
	store := new(mockStore)
	store.On("GetStatements", mock.Anything, mock.Anything).Return(nil, errors.New("connection refused"))

	resilient := NewResilientStatementStore(store, domain.CircuitBreakerConfig{
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 2,
	}, logger)

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		_, err := resilient.GetStatements(ctx, domain.StatementQuery{Agent: "BRAF"})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrServiceUnavailable)
	}

	_, err := resilient.GetStatements(ctx, domain.StatementQuery{Agent: "BRAF"})
	assert.ErrorIs(t, err, ErrServiceUnavailable)
	assert.Equal(t, "open", resilient.State().String())
	store.AssertNumberOfCalls(t, "GetStatements", 2)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "Circuit breaker changed state", hook.LastEntry().Message)
}

func TestResilientStatementStoreIgnoresCancelledCallers(t *testing.T) {
	logger, _ := test.NewNullLogger()
	store := new(mockStore)
	store.On("GetStatements", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("request aborted: %w", context.Canceled)).Times(2)
	store.On("GetStatements", mock.Anything, mock.Anything).
		Return(nil, context.DeadlineExceeded).Times(2)

	resilient := NewResilientStatementStore(store, domain.CircuitBreakerConfig{
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          time.Minute,
		FailureThreshold: 2,
	}, logger)

	for i := 0; i < 4; i++ {
		_, err := resilient.GetStatements(context.Background(), domain.StatementQuery{Agent: "BRAF"})
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrServiceUnavailable)
	}

	assert.Equal(t, "closed", resilient.State().String())
	store.AssertNumberOfCalls(t, "GetStatements", 4)
}

func TestResilientStatementStorePassesThrough(t *testing.T) {
	logger, _ := test.NewNullLogger()
	store := new(mockStore)
	want := []domain.Statement{{Type: domain.StatementInhibition}}
	store.On("GetStatements", mock.Anything, domain.StatementQuery{Object: "1097@HGNC"}).Return(want, nil)

	resilient := NewResilientStatementStore(store, domain.CircuitBreakerConfig{}, logger)
	got, err := resilient.GetStatements(context.Background(), domain.StatementQuery{Object: "1097@HGNC"})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}
