package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/citeguard/internal/observability"
	"github.com/fyrsmithlabs/citeguard/internal/pipeline"
)

// stubService returns canned pipeline results.
type stubService struct {
	envelope *pipeline.Envelope
	ingest   *pipeline.IngestResult
	err      error
	deleted  []string
}

func (s *stubService) Answer(_ context.Context, _ string, _ []string) (*pipeline.Envelope, error) {
	return s.envelope, s.err
}

func (s *stubService) Ingest(_ context.Context, _, _, _ string, _ map[string]any) (*pipeline.IngestResult, error) {
	return s.ingest, s.err
}

func (s *stubService) Usage() observability.SessionStats {
	return observability.SessionStats{Requests: 3, CostUSD: 0.12}
}

func (s *stubService) DeleteCorpus(_ context.Context, corpus string) error {
	s.deleted = append(s.deleted, corpus)
	return s.err
}

func newTestServer(t *testing.T, svc *stubService) *Server {
	t.Helper()
	srv, err := NewServer(svc, Config{}, nil)
	require.NoError(t, err)
	return srv
}

func TestNewServer_RequiresService(t *testing.T) {
	_, err := NewServer(nil, Config{}, nil)
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &stubService{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubService{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestQuery(t *testing.T) {
	svc := &stubService{envelope: &pipeline.Envelope{
		RequestID:      "req-1",
		Query:          "when does term start?",
		Answer:         "Term starts on 2 September.",
		GroundingScore: 0.81,
	}}
	srv := newTestServer(t, svc)

	body := `{"query":"when does term start?","corpora":["policies"]}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader(body))
	req.Header.Set(echoContentType, echoJSON)
	srv.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var env pipeline.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "req-1", env.RequestID)
	assert.Equal(t, "Term starts on 2 September.", env.Answer)
}

func TestQuery_Validation(t *testing.T) {
	srv := newTestServer(t, &stubService{})

	tests := []struct {
		name string
		body string
	}{
		{"missing query", `{"corpora":["policies"]}`},
		{"missing corpora", `{"query":"hello"}`},
		{"malformed json", `{"query":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader(tt.body))
			req.Header.Set(echoContentType, echoJSON)
			srv.echo.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestQuery_ProviderFailure(t *testing.T) {
	srv := newTestServer(t, &stubService{err: errors.New("backend down")})

	body := `{"query":"q","corpora":["policies"]}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader(body))
	req.Header.Set(echoContentType, echoJSON)
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestIngest(t *testing.T) {
	svc := &stubService{ingest: &pipeline.IngestResult{
		DocumentID: "handbook_ab12cd34",
		Corpus:     "policies",
		Chunks:     4,
	}}
	srv := newTestServer(t, svc)

	body := `{"corpus":"policies","filename":"handbook.txt","text":"some document text"}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader(body))
	req.Header.Set(echoContentType, echoJSON)
	srv.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var result pipeline.IngestResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, "handbook_ab12cd34", result.DocumentID)
	assert.Equal(t, 4, result.Chunks)
}

func TestIngest_Validation(t *testing.T) {
	srv := newTestServer(t, &stubService{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader(`{"corpus":"","text":""}`))
	req.Header.Set(echoContentType, echoJSON)
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIngest_EmptyDocument(t *testing.T) {
	svc := &stubService{err: fmt.Errorf("%w: document is empty", pipeline.ErrInvalidInput)}
	srv := newTestServer(t, svc)

	// Whitespace-only text passes the handler's presence check but is
	// rejected by the pipeline; that is a client error, not a backend one.
	body := `{"corpus":"policies","filename":"blank.txt","text":"   "}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", strings.NewReader(body))
	req.Header.Set(echoContentType, echoJSON)
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQuery_InvalidInputFromService(t *testing.T) {
	svc := &stubService{err: fmt.Errorf("%w: query is required", pipeline.ErrInvalidInput)}
	srv := newTestServer(t, svc)

	body := `{"query":"q","corpora":["policies"]}`
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader(body))
	req.Header.Set(echoContentType, echoJSON)
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUsage(t *testing.T) {
	srv := newTestServer(t, &stubService{})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/usage", nil)
	srv.echo.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var stats observability.SessionStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 3, stats.Requests)
	assert.InDelta(t, 0.12, stats.CostUSD, 1e-9)
}

func TestDeleteCorpus(t *testing.T) {
	svc := &stubService{}
	srv := newTestServer(t, svc)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodDelete, "/api/v1/corpora/policies", nil)
	srv.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"policies"}, svc.deleted)
}

const (
	echoContentType = "Content-Type"
	echoJSON        = "application/json"
)
