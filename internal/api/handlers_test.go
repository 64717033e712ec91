package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docpilot/internal/llm"
	"docpilot/internal/retention"
	"docpilot/internal/session"
	"docpilot/pkg/logger"
)

// stubService is a scriptable RagService for handler tests.
type stubService struct {
	resolution   session.Resolution
	ingestChunks int
	ingestErr    error
	ingestedPath string
	answer       string
	streamMsgs   []string
	askQuestion  string
	askVisible   []string
	sampleNames  []string
	samplesErr   error
	modelName    string
	modelErr     error
	documents    []retention.DocumentInfo
	removeSet    []string
	removeOK     bool
	removeStatus string
}

func (s *stubService) ResolveSession(token string) session.Resolution {
	if s.resolution.Token == "" {
		return session.Resolution{Token: token}
	}
	return s.resolution
}

func (s *stubService) IngestFile(ctx context.Context, path, sessionToken string, isSample bool) (int, error) {
	s.ingestedPath = path
	return s.ingestChunks, s.ingestErr
}

func (s *stubService) LoadSamples(ctx context.Context, vertical string) ([]string, int, error) {
	return s.sampleNames, len(s.sampleNames), s.samplesErr
}

func (s *stubService) Ask(ctx context.Context, question, sessionToken string, visibleDocs []string) string {
	s.askQuestion = question
	s.askVisible = visibleDocs
	return s.answer
}

func (s *stubService) AskStream(ctx context.Context, question, sessionToken string, visibleDocs []string) <-chan string {
	s.askQuestion = question
	s.askVisible = visibleDocs
	out := make(chan string, len(s.streamMsgs))
	for _, m := range s.streamMsgs {
		out <- m
	}
	close(out)
	return out
}

func (s *stubService) SelectModel(ctx context.Context, modelKey string) (string, error) {
	return s.modelName, s.modelErr
}

func (s *stubService) ActiveModel() llm.ModelSpec {
	return llm.ModelSpec{Key: "gpt-oss-120b"}
}

func (s *stubService) ListDocuments(sessionToken string) []retention.DocumentInfo {
	return s.documents
}

func (s *stubService) RemoveDocument(ctx context.Context, sessionToken, filename string, visible []string) ([]string, bool, string) {
	return s.removeSet, s.removeOK, s.removeStatus
}

var _ RagService = (*stubService)(nil)

func newTestRouter(svc RagService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	RegisterRoutes(router, NewAPI(svc, logger.New("test")))
	return router
}

// closeNotifyRecorder adds the CloseNotify method gin's Stream helper
// requires from the response writer.
type closeNotifyRecorder struct {
	*httptest.ResponseRecorder
	closed chan bool
}

func newCloseNotifyRecorder() *closeNotifyRecorder {
	return &closeNotifyRecorder{httptest.NewRecorder(), make(chan bool, 1)}
}

func (c *closeNotifyRecorder) CloseNotify() <-chan bool { return c.closed }

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(&stubService{})

	rec := doJSON(t, router, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "gpt-oss-120b", body["model"])
}

func TestQueryReturnsAnswerAndToken(t *testing.T) {
	svc := &stubService{
		resolution: session.Resolution{Token: "1725184800.tok"},
		answer:     "The term is 24 months.",
	}
	router := newTestRouter(svc)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/query", queryRequest{
		Question:         "how long is the term?",
		SessionToken:     "1725184800.tok",
		VisibleDocuments: []string{"contract.pdf"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "The term is 24 months.", body["answer"])
	assert.Equal(t, "1725184800.tok", body["session_token"])
	assert.Equal(t, "how long is the term?", svc.askQuestion)
	assert.Equal(t, []string{"contract.pdf"}, svc.askVisible)
}

func TestQueryReplacedSessionDropsStaleVisibleSet(t *testing.T) {
	svc := &stubService{
		resolution: session.Resolution{Token: "fresh.tok", Notice: session.NoticeExpired},
		answer:     "Please load documents first",
	}
	router := newTestRouter(svc)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/query", queryRequest{
		Question:         "anything",
		SessionToken:     "0.expired",
		VisibleDocuments: []string{"old.pdf"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, session.NoticeExpired, body["notice"])
	assert.Empty(t, svc.askVisible, "an expired session's visible set must not carry over")
}

func TestQueryRejectsMalformedBody(t *testing.T) {
	router := newTestRouter(&stubService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryStreamEmitsSSE(t *testing.T) {
	svc := &stubService{
		resolution: session.Resolution{Token: "1725184800.tok"},
		streamMsgs: []string{"The", "The answer", "The answer is 42."},
	}
	router := newTestRouter(svc)

	payload, err := json.Marshal(queryRequest{
		Question:     "what is the answer?",
		SessionToken: "1725184800.tok",
	})
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/query/stream", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := newCloseNotifyRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/event-stream")
	assert.Equal(t, "1725184800.tok", rec.Header().Get("X-Session-Token"))

	events := strings.Count(rec.Body.String(), "event:message")
	assert.Equal(t, 3, events)
	assert.Contains(t, rec.Body.String(), "The answer is 42.")
}

func TestUploadDocument(t *testing.T) {
	svc := &stubService{
		resolution:   session.Resolution{Token: "1725184800.tok"},
		ingestChunks: 7,
		documents:    []retention.DocumentInfo{{Filename: "report.txt"}},
	}
	router := newTestRouter(svc)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "report.txt")
	require.NoError(t, err)
	fmt.Fprint(part, "some document text")
	require.NoError(t, mw.WriteField("session_token", "1725184800.tok"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "report.txt", body["filename"])
	assert.Equal(t, float64(7), body["chunks"])
	assert.True(t, strings.HasSuffix(svc.ingestedPath, "report.txt"))
}

func TestUploadWithoutFileFails(t *testing.T) {
	router := newTestRouter(&stubService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUploadUnsupportedTypeReturnsUnprocessable(t *testing.T) {
	svc := &stubService{
		resolution: session.Resolution{Token: "1725184800.tok"},
		ingestErr:  fmt.Errorf("unsupported file type .exe: please upload PDF, DOCX, or TXT files"),
	}
	router := newTestRouter(svc)

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", "malware.exe")
	require.NoError(t, err)
	fmt.Fprint(part, "MZ")
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "please upload PDF, DOCX, or TXT files")
}

func TestLoadSamples(t *testing.T) {
	svc := &stubService{sampleNames: []string{"nda.txt", "service_agreement.txt"}}
	router := newTestRouter(svc)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/documents/samples/Legal", nil)
	require.Equal(t, http.StatusCreated, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Legal", body["vertical"])
	assert.Equal(t, float64(2), body["chunks"])
}

func TestLoadSamplesUnknownVertical(t *testing.T) {
	svc := &stubService{samplesErr: fmt.Errorf("no sample documents found for %q", "Gardening")}
	router := newTestRouter(svc)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/documents/samples/Gardening", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestSelectModel(t *testing.T) {
	svc := &stubService{modelName: "Gemma 3 27B (Google)"}
	router := newTestRouter(svc)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/model", map[string]string{"model": "gemma-3-27b"})
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "gemma-3-27b", body["model"])
	assert.Equal(t, "Gemma 3 27B (Google)", body["display_name"])
}

func TestSelectModelUnknownKey(t *testing.T) {
	svc := &stubService{modelErr: &llm.ConfigurationError{Reason: "unknown model key"}}
	router := newTestRouter(svc)

	rec := doJSON(t, router, http.MethodPost, "/api/v1/model", map[string]string{"model": "gpt-5"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestRemoveDocument(t *testing.T) {
	svc := &stubService{
		resolution:   session.Resolution{Token: "1725184800.tok"},
		removeSet:    []string{"keep.txt"},
		removeOK:     true,
		removeStatus: "Removed drop.txt",
	}
	router := newTestRouter(svc)

	rec := doJSON(t, router, http.MethodDelete, "/api/v1/documents/drop.txt", removeRequest{
		SessionToken:     "1725184800.tok",
		VisibleDocuments: []string{"keep.txt", "drop.txt"},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["removed"])
	assert.Equal(t, "Removed drop.txt", body["status"])
}

func TestListDocuments(t *testing.T) {
	svc := &stubService{
		resolution: session.Resolution{Token: "1725184800.tok"},
		documents:  []retention.DocumentInfo{{Filename: "b.txt"}, {Filename: "a.txt"}},
	}
	router := newTestRouter(svc)

	rec := doJSON(t, router, http.MethodGet, "/api/v1/documents?session_token=1725184800.tok", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Documents []retention.DocumentInfo `json:"documents"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Documents, 2)
	assert.Equal(t, "b.txt", body.Documents[0].Filename)
}
