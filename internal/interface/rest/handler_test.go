package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jinford/news-rag/internal/core/answer"
	"github.com/jinford/news-rag/internal/core/article"
	"github.com/jinford/news-rag/internal/core/ingestion"
	"github.com/jinford/news-rag/internal/core/search"
)

type stubSearcher struct {
	results      []*search.Result
	chunkResults []*search.ChunkResult
	err          error

	lastQuery       string
	lastTop         int
	lastTopChunks   int
	lastTopArticles int
}

func (s *stubSearcher) HybridSearch(_ context.Context, query string, top int) ([]*search.Result, error) {
	s.lastQuery = query
	s.lastTop = top
	return s.results, s.err
}

func (s *stubSearcher) ChunkHybridSearch(_ context.Context, query string, topChunks, topArticles int) ([]*search.ChunkResult, error) {
	s.lastQuery = query
	s.lastTopChunks = topChunks
	s.lastTopArticles = topArticles
	return s.chunkResults, s.err
}

type stubAnswerer struct {
	result *answer.Result
	err    error

	lastQuery string
}

func (s *stubAnswerer) Ask(_ context.Context, query string, _, _ int) (*answer.Result, error) {
	s.lastQuery = query
	return s.result, s.err
}

type stubKeywordGenerator struct {
	count int
	err   error

	lastAfter time.Time
	lastLimit int
}

func (s *stubKeywordGenerator) GenerateSince(_ context.Context, after time.Time, limit int) (int, error) {
	s.lastAfter = after
	s.lastLimit = limit
	return s.count, s.err
}

type stubEnsurer struct {
	err    error
	called bool
}

func (s *stubEnsurer) EnsureAll(_ context.Context) error {
	s.called = true
	return s.err
}

type stubResetter struct {
	err    error
	called bool
}

func (s *stubResetter) Reset(_ context.Context) error {
	s.called = true
	return s.err
}

type stubStatusReporter struct {
	status ingestion.Status
}

func (s *stubStatusReporter) Status() ingestion.Status {
	return s.status
}

type handlerStubs struct {
	searcher *stubSearcher
	answerer *stubAnswerer
	keywords *stubKeywordGenerator
	ensurer  *stubEnsurer
	resetter *stubResetter
	status   *stubStatusReporter
}

func newTestHandler() (*Handler, *handlerStubs) {
	stubs := &handlerStubs{
		searcher: &stubSearcher{},
		answerer: &stubAnswerer{},
		keywords: &stubKeywordGenerator{},
		ensurer:  &stubEnsurer{},
		resetter: &stubResetter{},
		status:   &stubStatusReporter{},
	}
	h := NewHandler(stubs.searcher, stubs.answerer, stubs.keywords, stubs.ensurer, stubs.resetter, stubs.status, nil)
	return h, stubs
}

func doRequest(t *testing.T, method, target, body string, handle echo.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()

	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	require.NoError(t, handle(c))
	return rec
}

func TestHandleHealth_ReturnsOK(t *testing.T) {
	h, _ := newTestHandler()

	rec := doRequest(t, http.MethodGet, "/v1/health", "", h.HandleHealth)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestHandleHybridSearch_ReturnsResults(t *testing.T) {
	h, stubs := newTestHandler()
	published := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	stubs.searcher.results = []*search.Result{
		{
			Article: &article.Article{
				ID:          1,
				Title:       "quantum computing milestone",
				Description: "desc",
				URL:         "https://example.com/a",
				SourceName:  "example",
				PublishedAt: &published,
			},
			Score: 0.9,
		},
	}

	rec := doRequest(t, http.MethodGet, "/v1/search/hybrid?query=quantum&top=3", "", h.HandleHybridSearch)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "quantum", stubs.searcher.lastQuery)
	assert.Equal(t, 3, stubs.searcher.lastTop)

	var resp searchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, int64(1), resp.Results[0].ID)
	assert.Equal(t, "quantum computing milestone", resp.Results[0].Title)
	assert.Equal(t, "2025-06-01T12:00:00Z", resp.Results[0].PublishedAt)
	assert.InDelta(t, 0.9, resp.Results[0].Score, 1e-9)
}

func TestHandleHybridSearch_MissingQueryIs400(t *testing.T) {
	h, _ := newTestHandler()

	rec := doRequest(t, http.MethodGet, "/v1/search/hybrid", "", h.HandleHybridSearch)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleHybridSearch_DefaultsTopWhenUnset(t *testing.T) {
	h, stubs := newTestHandler()

	doRequest(t, http.MethodGet, "/v1/search/hybrid?query=ai", "", h.HandleHybridSearch)

	assert.Equal(t, 10, stubs.searcher.lastTop)
}

func TestHandleHybridSearch_SearchFailureIs500(t *testing.T) {
	h, stubs := newTestHandler()
	stubs.searcher.err = errors.New("index unavailable")

	rec := doRequest(t, http.MethodGet, "/v1/search/hybrid?query=ai", "", h.HandleHybridSearch)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandleChunkHybridSearch_ReturnsSnippets(t *testing.T) {
	h, stubs := newTestHandler()
	stubs.searcher.chunkResults = []*search.ChunkResult{
		{
			Article: &article.Article{ID: 7, Title: "fusion energy", URL: "https://example.com/b"},
			Score:   0.8,
			Snippet: "the reactor sustained...",
		},
	}

	rec := doRequest(t, http.MethodGet, "/v1/search/chunk-hybrid?query=fusion&topChunks=20&topArticles=4", "", h.HandleChunkHybridSearch)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 20, stubs.searcher.lastTopChunks)
	assert.Equal(t, 4, stubs.searcher.lastTopArticles)

	var resp searchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, "the reactor sustained...", resp.Results[0].Snippet)
}

func TestHandleHybridSearch_IncludeAnswerAddsAnswer(t *testing.T) {
	h, stubs := newTestHandler()
	stubs.searcher.results = []*search.Result{
		{Article: &article.Article{ID: 1, Title: "quantum"}, Score: 0.9},
	}
	stubs.answerer.result = &answer.Result{
		Answer:  "量子コンピュータの進展です [S1]",
		Sources: []answer.Source{{ArticleID: 1, Title: "quantum", Score: 0.9}},
	}

	rec := doRequest(t, http.MethodGet, "/v1/search/hybrid?query=quantum&includeAnswer=true", "", h.HandleHybridSearch)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "quantum", stubs.answerer.lastQuery)

	var resp searchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Answer)
	assert.Equal(t, "量子コンピュータの進展です [S1]", resp.Answer.Answer)
}

func TestHandleHybridSearch_AnswerFailureStillReturnsResults(t *testing.T) {
	h, stubs := newTestHandler()
	stubs.searcher.results = []*search.Result{
		{Article: &article.Article{ID: 1, Title: "quantum"}, Score: 0.9},
	}
	stubs.answerer.err = errors.New("llm unavailable")

	rec := doRequest(t, http.MethodGet, "/v1/search/hybrid?query=quantum&includeAnswer=true", "", h.HandleHybridSearch)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp searchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Nil(t, resp.Answer)
}

func TestHandleHybridSearch_NoAnswerWithoutIncludeAnswer(t *testing.T) {
	h, stubs := newTestHandler()

	rec := doRequest(t, http.MethodGet, "/v1/search/hybrid?query=ai", "", h.HandleHybridSearch)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, stubs.answerer.lastQuery)
}

func TestHandleAsk_ReturnsAnswerWithSources(t *testing.T) {
	h, stubs := newTestHandler()
	stubs.answerer.result = &answer.Result{
		Answer: "核融合の実験は成功しました [S1]",
		Sources: []answer.Source{
			{ArticleID: 7, Title: "fusion energy", URL: "https://example.com/b", Snippet: "snippet", Score: 0.8},
		},
		Cached: true,
	}

	rec := doRequest(t, http.MethodPost, "/v1/ask", `{"query":"核融合の進展は?","topChunks":15,"topArticles":5}`, h.HandleAsk)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "核融合の進展は?", stubs.answerer.lastQuery)

	var resp askResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "核融合の実験は成功しました [S1]", resp.Answer)
	assert.True(t, resp.Cached)
	require.Len(t, resp.Sources, 1)
	assert.Equal(t, int64(7), resp.Sources[0].ArticleID)
}

func TestHandleAsk_MissingQueryIs400(t *testing.T) {
	h, _ := newTestHandler()

	rec := doRequest(t, http.MethodPost, "/v1/ask", `{"query":""}`, h.HandleAsk)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleGenerateKeywords_ReturnsCount(t *testing.T) {
	h, stubs := newTestHandler()
	stubs.keywords.count = 12

	rec := doRequest(t, http.MethodPost, "/v1/keywords/generate", `{"since":"2025-06-01T00:00:00Z","limit":100}`, h.HandleGenerateKeywords)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC), stubs.keywords.lastAfter)
	assert.Equal(t, 100, stubs.keywords.lastLimit)
	assert.JSONEq(t, `{"keywords":12}`, rec.Body.String())
}

func TestHandleGenerateKeywords_InvalidSinceIs400(t *testing.T) {
	h, _ := newTestHandler()

	rec := doRequest(t, http.MethodPost, "/v1/keywords/generate", `{"since":"yesterday"}`, h.HandleGenerateKeywords)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleEnsureIndexes_Succeeds(t *testing.T) {
	h, stubs := newTestHandler()

	rec := doRequest(t, http.MethodPost, "/v1/admin/ensure-indexes", "", h.HandleEnsureIndexes)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, stubs.ensurer.called)
}

func TestHandleResetCheckpoint_FailureIs500(t *testing.T) {
	h, stubs := newTestHandler()
	stubs.resetter.err = errors.New("redis down")

	rec := doRequest(t, http.MethodPost, "/v1/admin/reset-checkpoint", "", h.HandleResetCheckpoint)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.True(t, stubs.resetter.called)
}

func TestHandleIngestStatus_ReportsStatus(t *testing.T) {
	h, stubs := newTestHandler()
	stubs.status.status = ingestion.Status{
		Running:   true,
		LastRun:   time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC),
		LastError: "",
	}

	rec := doRequest(t, http.MethodGet, "/v1/ingest/status", "", h.HandleIngestStatus)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Running)
	assert.Equal(t, "2025-06-01T09:00:00Z", resp.LastRun)
	assert.Empty(t, resp.LastError)
}
