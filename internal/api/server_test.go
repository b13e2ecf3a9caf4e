package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnbachman/bioagents/internal/agent"
	"github.com/johnbachman/bioagents/internal/domain"
	"github.com/johnbachman/bioagents/pkg/ekb"
	"github.com/johnbachman/bioagents/pkg/kqml"
)

type stubAgent struct {
	name    string
	reply   kqml.Object
	err     error
	content *kqml.List
}

func (s *stubAgent) Name() string { return s.name }

func (s *stubAgent) Submit(_ context.Context, content *kqml.List) (kqml.Object, error) {
	s.content = content
	return s.reply, s.err
}

type stubDiseases []string

func (d stubDiseases) Diseases() []string { return d }

func newTestServer(t *testing.T, agents []Submitter, opts ...Option) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger, _ := test.NewNullLogger()
	return NewServer(domain.GatewayConfig{}, logger, agents, opts...)
}

func do(s *Server, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, []Submitter{&stubAgent{name: "DTDA"}, &stubAgent{name: "BIOSENSE"}})

	w := do(s, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, []interface{}{"BIOSENSE", "DTDA"}, body["agents"])
	assert.NotEmpty(t, w.Header().Get("X-Correlation-ID"))
}

func TestRequestReply(t *testing.T) {
	reply, err := kqml.ParseList("(SUCCESS :drugs ((:name VEMURAFENIB)))")
	require.NoError(t, err)
	dtda := &stubAgent{name: "DTDA", reply: reply}
	s := newTestServer(t, []Submitter{dtda})

	w := do(s, http.MethodPost, "/api/v1/dtda/request", `(FIND-TARGET-DRUG :target "<ekb/>")`,
		"X-Correlation-ID", "corr-1")
	require.Equal(t, http.StatusOK, w.Code)

	var resp RequestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "corr-1", resp.RequestID)
	assert.Equal(t, "DTDA", resp.Agent)
	assert.Equal(t, "(SUCCESS :drugs ((:name VEMURAFENIB)))", resp.Reply)

	require.NotNil(t, dtda.content)
	assert.Equal(t, "FIND-TARGET-DRUG", dtda.content.Head())
	assert.Equal(t, "<ekb/>", dtda.content.Gets("target"))
}

func TestRequestErrors(t *testing.T) {
	tests := []struct {
		name     string
		agent    *stubAgent
		path     string
		body     string
		wantCode int
		wantErr  string
	}{
		{
			name:     "unknown agent",
			agent:    &stubAgent{name: "DTDA"},
			path:     "/api/v1/tfta/request",
			body:     "(FIND-TF)",
			wantCode: http.StatusNotFound,
			wantErr:  domain.ErrCodeInvalidRequest,
		},
		{
			name:     "malformed body",
			agent:    &stubAgent{name: "DTDA"},
			path:     "/api/v1/dtda/request",
			body:     "(FIND-TARGET-DRUG :target",
			wantCode: http.StatusBadRequest,
			wantErr:  domain.ErrCodeInvalidRequest,
		},
		{
			name:     "unknown task",
			agent:    &stubAgent{name: "DTDA", err: domain.NewAgentError(domain.ErrCodeUnknownTask, "unknown request task FOO", "", "")},
			path:     "/api/v1/dtda/request",
			body:     "(FOO)",
			wantCode: http.StatusBadRequest,
			wantErr:  domain.ErrCodeUnknownTask,
		},
		{
			name:     "lookup failure",
			agent:    &stubAgent{name: "DTDA", err: errors.New("statement store unavailable")},
			path:     "/api/v1/dtda/request",
			body:     "(FIND-TARGET-DRUG)",
			wantCode: http.StatusBadGateway,
			wantErr:  domain.ErrCodeExternalAPI,
		},
		{
			name:     "stopped agent",
			agent:    &stubAgent{name: "DTDA", err: agent.ErrModuleStopped},
			path:     "/api/v1/dtda/request",
			body:     "(FIND-TARGET-DRUG)",
			wantCode: http.StatusServiceUnavailable,
			wantErr:  domain.ErrCodeInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, []Submitter{tt.agent})
			w := do(s, http.MethodPost, tt.path, tt.body, "X-Correlation-ID", "corr-2")
			assert.Equal(t, tt.wantCode, w.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantErr, resp.Error.Code)
			assert.Equal(t, "corr-2", resp.Error.RequestID)
		})
	}
}

func TestOptionalRoutes(t *testing.T) {
	s := newTestServer(t, nil)
	assert.Equal(t, http.StatusNotFound, do(s, http.MethodGet, "/metrics", "").Code)
	assert.Equal(t, http.StatusNotFound, do(s, http.MethodGet, "/api/v1/dtda/diseases", "").Code)

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("bioagents_requests_total 1\n"))
	})
	s = newTestServer(t, nil, WithMetrics(metrics), WithDiseases(stubDiseases{"lung cancer", "melanoma"}))

	w := do(s, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "bioagents_requests_total")

	w = do(s, http.MethodGet, "/api/v1/dtda/diseases", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"diseases":["lung cancer","melanoma"]}`, w.Body.String())
}

func TestRequestThroughAgentModule(t *testing.T) {
	logger, _ := test.NewNullLogger()
	module := agent.NewModule(agent.NewBioSenseHandler(ekb.NewProcessor(nil, logger), logger), 0, logger)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go module.Run(ctx)

	s := newTestServer(t, []Submitter{module})
	w := do(s, http.MethodPost, "/api/v1/biosense/request",
		`(CHOOSE-SENSE :ekb-term "<ekb><TERM id=\"V9\" dbid=\"HGNC:6407\"><name>KRAS</name></TERM></ekb>")`)
	require.Equal(t, http.StatusOK, w.Code)

	var resp RequestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "BIOSENSE", resp.Agent)
	assert.Equal(t, `(OK :agents ((V9 :name "KRAS" :ids "HGNC:6407|TEXT:KRAS")))`, resp.Reply)
}
