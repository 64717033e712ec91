package api

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"docpilot/internal/llm"
	"docpilot/internal/retention"
	"docpilot/internal/session"
	"docpilot/pkg/logger"

	"github.com/gin-gonic/gin"
)

// RagService is the slice of the query service the HTTP handlers need.
type RagService interface {
	ResolveSession(token string) session.Resolution
	IngestFile(ctx context.Context, path, sessionToken string, isSample bool) (int, error)
	LoadSamples(ctx context.Context, vertical string) ([]string, int, error)
	Ask(ctx context.Context, question, sessionToken string, visibleDocs []string) string
	AskStream(ctx context.Context, question, sessionToken string, visibleDocs []string) <-chan string
	SelectModel(ctx context.Context, modelKey string) (string, error)
	ActiveModel() llm.ModelSpec
	ListDocuments(sessionToken string) []retention.DocumentInfo
	RemoveDocument(ctx context.Context, sessionToken, filename string, visible []string) ([]string, bool, string)
}

// API provides the HTTP handlers for the document QA service.
type API struct {
	service RagService
	logger  *logger.Logger
}

// NewAPI creates a new API handler.
func NewAPI(service RagService, logger *logger.Logger) *API {
	return &API{service: service, logger: logger}
}

type queryRequest struct {
	Question         string   `json:"question"`
	SessionToken     string   `json:"session_token"`
	VisibleDocuments []string `json:"visible_documents"`
}

type removeRequest struct {
	SessionToken     string   `json:"session_token"`
	VisibleDocuments []string `json:"visible_documents"`
}

// UploadDocumentHandler ingests one uploaded file into the caller's session.
// The file arrives as multipart form data; the session token travels in the
// "session_token" form field and may be empty for a first request.
func (a *API) UploadDocumentHandler(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing file upload"})
		return
	}

	res := a.service.ResolveSession(c.PostForm("session_token"))

	tmpDir, err := os.MkdirTemp("", "docpilot-upload-")
	if err != nil {
		a.logger.Error("Could not create upload staging directory: " + err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store upload"})
		return
	}
	defer os.RemoveAll(tmpDir)

	// The basename of the staged file becomes the document's source name.
	path := filepath.Join(tmpDir, filepath.Base(file.Filename))
	if err := c.SaveUploadedFile(file, path); err != nil {
		a.logger.Error("Could not stage uploaded file: " + err.Error())
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store upload"})
		return
	}

	chunks, err := a.service.IngestFile(c.Request.Context(), path, res.Token, false)
	if err != nil {
		a.logger.Error("Ingestion failed for " + file.Filename + ": " + err.Error())
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "session_token": res.Token})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"session_token": res.Token,
		"notice":        res.Notice,
		"filename":      filepath.Base(file.Filename),
		"chunks":        chunks,
		"documents":     a.service.ListDocuments(res.Token),
	})
}

// LoadSamplesHandler indexes the shared sample documents of one vertical.
// Samples belong to no session; the response lists the file names so the
// client can add them to its visible set.
func (a *API) LoadSamplesHandler(c *gin.Context) {
	vertical := c.Param("vertical")

	names, chunks, err := a.service.LoadSamples(c.Request.Context(), vertical)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"vertical":  vertical,
		"documents": names,
		"chunks":    chunks,
	})
}

// QueryHandler answers a question against the session's visible documents.
// The answer is always 200 with a text body; guidance, rate limiting, and
// pipeline failures all surface as the answer text itself.
func (a *API) QueryHandler(c *gin.Context) {
	var payload queryRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}

	res := a.service.ResolveSession(payload.SessionToken)
	visible := payload.VisibleDocuments
	if res.Notice != "" {
		// A replaced session starts over; the client's stale visible set
		// must not leak another session's scope into the query.
		visible = nil
	}

	answer := a.service.Ask(c.Request.Context(), payload.Question, res.Token, visible)

	c.JSON(http.StatusOK, gin.H{
		"session_token": res.Token,
		"notice":        res.Notice,
		"answer":        answer,
	})
}

// QueryStreamHandler is the SSE variant of QueryHandler. Each event carries
// the accumulated answer so far; the stream closes after the final event.
func (a *API) QueryStreamHandler(c *gin.Context) {
	var payload queryRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}

	res := a.service.ResolveSession(payload.SessionToken)
	visible := payload.VisibleDocuments
	if res.Notice != "" {
		visible = nil
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Session-Token", res.Token)

	stream := a.service.AskStream(c.Request.Context(), payload.Question, res.Token, visible)
	c.Stream(func(w io.Writer) bool {
		msg, ok := <-stream
		if !ok {
			return false
		}
		c.SSEvent("message", msg)
		return true
	})
}

// SelectModelHandler switches the active language model for all queries.
func (a *API) SelectModelHandler(c *gin.Context) {
	var payload struct {
		Model string `json:"model"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}

	displayName, err := a.service.SelectModel(c.Request.Context(), payload.Model)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"model":        payload.Model,
		"display_name": displayName,
	})
}

// ListDocumentsHandler returns the session's own documents, newest first.
// Shared samples are not listed; they are not the session's to manage.
func (a *API) ListDocumentsHandler(c *gin.Context) {
	res := a.service.ResolveSession(c.Query("session_token"))

	c.JSON(http.StatusOK, gin.H{
		"session_token": res.Token,
		"notice":        res.Notice,
		"documents":     a.service.ListDocuments(res.Token),
	})
}

// RemoveDocumentHandler removes one document from the session's view and,
// when the session owns it, from the index.
func (a *API) RemoveDocumentHandler(c *gin.Context) {
	filename := c.Param("filename")

	var payload removeRequest
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request payload"})
		return
	}

	res := a.service.ResolveSession(payload.SessionToken)

	visible, removed, status := a.service.RemoveDocument(c.Request.Context(), res.Token, filename, payload.VisibleDocuments)

	c.JSON(http.StatusOK, gin.H{
		"session_token":     res.Token,
		"notice":            res.Notice,
		"removed":           removed,
		"status":            status,
		"visible_documents": visible,
		"documents":         a.service.ListDocuments(res.Token),
	})
}

// HealthzHandler reports process liveness.
func (a *API) HealthzHandler(c *gin.Context) {
	spec := a.service.ActiveModel()
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"model":  spec.Key,
	})
}
