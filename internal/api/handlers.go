package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"medreport/internal/auth"
	"medreport/internal/chat"
	"medreport/internal/completion"
	"medreport/internal/extract"
	"medreport/internal/logging"
	"medreport/internal/models"
	"medreport/internal/service/report"
	"medreport/internal/storage"
	"medreport/internal/worker"
)

const (
	msgNoText      = "Error: Could not extract text from file. File may be empty or unsupported."
	msgUnavailable = "Error: Failed to connect to AI service. Please try again."
	msgNotMedical  = "Error: The uploaded document does not appear to be a medical report."
	msgNoFile      = "Error: No file uploaded."
	msgTooLarge    = "Error: File is too large."
	msgBusy        = "server is busy, please retry"

	defaultMaxUpload = 32 << 20
	defaultListLimit = 20
)

type Analyzer interface {
	Analyze(ctx context.Context, filename string, data []byte, modelChoice string) (*models.Analysis, error)
}

type Chatter interface {
	Respond(ctx context.Context, req chat.Request) (*chat.Reply, error)
	Reset(ctx context.Context, sessionID string) error
}

type AnalysisStore interface {
	Get(ctx context.Context, id string) (*models.Analysis, error)
	ListRecent(ctx context.Context, limit int) ([]models.Analysis, error)
}

type Admission interface {
	Run(ctx context.Context, fn func(ctx context.Context) error) error
}

type Options struct {
	Analyzer       Analyzer
	Chat           Chatter
	Analyses       AnalysisStore // nil when persistence is disabled
	Admission      Admission
	Auth           *auth.Service
	MaxUploadBytes int64
	LocalModel     bool
	Logger         *slog.Logger
}

// Handler wires HTTP routes to the report and chat services.
type Handler struct {
	analyzer   Analyzer
	chat       Chatter
	analyses   AnalysisStore
	admission  Admission
	auth       *auth.Service
	maxUpload  int64
	localModel bool
	logger     *slog.Logger
}

// NewHandler constructs a Handler instance.
func NewHandler(opts Options) *Handler {
	if opts.Admission == nil {
		opts.Admission = worker.NewPool(1)
	}
	if opts.Auth == nil {
		opts.Auth = auth.NewService(nil)
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = defaultMaxUpload
	}
	return &Handler{
		analyzer:   opts.Analyzer,
		chat:       opts.Chat,
		analyses:   opts.Analyses,
		admission:  opts.Admission,
		auth:       opts.Auth,
		maxUpload:  opts.MaxUploadBytes,
		localModel: opts.LocalModel,
		logger:     logging.OrDiscard(opts.Logger),
	}
}

// RegisterRoutes attaches middleware, templates and all HTTP routes.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.SetHTMLTemplate(pageTemplates)
	router.Use(requestID(), requestLogger(h.logger), gin.Recovery())

	keyRequired := h.auth.Middleware()
	jsonKeyRequired := h.requireKeyForJSON()

	router.GET("/", h.index)
	router.POST("/", jsonKeyRequired, h.analyzeForm)
	router.POST("/analyze", jsonKeyRequired, h.analyzeForm)
	router.POST("/chat", keyRequired, h.chatTurn)
	router.GET("/healthz", h.healthz)

	api := router.Group("/api")
	api.Use(keyRequired)
	api.POST("/analyze", h.analyzeAPI)
	api.POST("/chat", h.chatTurn)
	api.DELETE("/chat/:session_id", h.resetChat)
	api.GET("/analyses", h.listAnalyses)
	api.GET("/analyses/:id", h.getAnalysis)
}

// requireKeyForJSON applies the API key check to JSON callers of the form
// routes. Browser form posts that render HTML stay open.
func (h *Handler) requireKeyForJSON() gin.HandlerFunc {
	guard := h.auth.Middleware()
	return func(c *gin.Context) {
		if wantsJSON(c) {
			guard(c)
			return
		}
		c.Next()
	}
}

func (h *Handler) index(c *gin.Context) {
	c.HTML(http.StatusOK, "index.html", gin.H{"LocalModel": h.localModel})
}

func (h *Handler) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "local_model": h.localModel})
}

// Upload interface

func (h *Handler) analyzeForm(c *gin.Context) {
	h.analyze(c, wantsJSON(c))
}

func (h *Handler) analyzeAPI(c *gin.Context) {
	h.analyze(c, true)
}

func (h *Handler) analyze(c *gin.Context, asJSON bool) {
	log := logging.FromContext(c.Request.Context(), h.logger)
	filename, data, status, msg := h.readUpload(c)
	if status != 0 {
		h.fail(c, asJSON, status, msg, nil)
		return
	}
	choice := c.PostForm("model_choice")

	var analysis *models.Analysis
	err := h.admission.Run(c.Request.Context(), func(ctx context.Context) error {
		var err error
		analysis, err = h.analyzer.Analyze(ctx, filename, data, choice)
		return err
	})
	switch {
	case err == nil:
	case errors.Is(err, worker.ErrBusy):
		h.fail(c, asJSON, http.StatusTooManyRequests, msgBusy, nil)
		return
	case errors.Is(err, extract.ErrNoText):
		h.fail(c, asJSON, http.StatusUnprocessableEntity, msgNoText, nil)
		return
	case errors.Is(err, report.ErrNotMedical):
		h.fail(c, asJSON, http.StatusUnprocessableEntity, msgNotMedical, nil)
		return
	case errors.Is(err, completion.ErrUnavailable):
		var rec *models.Record
		if analysis != nil {
			rec = analysis.Record
		}
		h.fail(c, asJSON, http.StatusBadGateway, msgUnavailable, rec)
		return
	default:
		log.Error("api.analyze_failed", "filename", filename, "error", err)
		h.fail(c, asJSON, http.StatusInternalServerError, "Error: Analysis failed.", nil)
		return
	}

	if asJSON {
		c.JSON(http.StatusOK, analysis)
		return
	}
	c.HTML(http.StatusOK, "result.html", gin.H{
		"Filename":    analysis.Filename,
		"ModelChoice": analysis.ModelChoice,
		"Fields":      recordFields(analysis.Record),
	})
}

// readUpload returns the uploaded report, or a non-zero status and message.
func (h *Handler) readUpload(c *gin.Context) (string, []byte, int, string) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUpload+(1<<20))
	file, err := c.FormFile("report")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return "", nil, http.StatusRequestEntityTooLarge, msgTooLarge
		}
		return "", nil, http.StatusBadRequest, msgNoFile
	}
	if file.Size > h.maxUpload {
		return "", nil, http.StatusRequestEntityTooLarge, msgTooLarge
	}
	f, err := file.Open()
	if err != nil {
		return "", nil, http.StatusBadRequest, msgNoFile
	}
	defer f.Close()
	data, err := io.ReadAll(io.LimitReader(f, h.maxUpload+1))
	if err != nil {
		return "", nil, http.StatusBadRequest, msgNoFile
	}
	return filepath.Base(file.Filename), data, 0, ""
}

func (h *Handler) fail(c *gin.Context, asJSON bool, status int, msg string, rec *models.Record) {
	if asJSON {
		body := gin.H{"error": msg}
		if rec != nil {
			body["record"] = rec
		}
		c.JSON(status, body)
		return
	}
	c.String(status, msg)
}

func wantsJSON(c *gin.Context) bool {
	return strings.Contains(c.GetHeader("Accept"), "application/json")
}

// Chat interface

type chatRequest struct {
	Message     string `json:"message"`
	SessionID   string `json:"session_id"`
	ModelChoice string `json:"model_choice"`
}

func (h *Handler) chatTurn(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	reply, err := h.chat.Respond(c.Request.Context(), chat.Request{
		SessionID:   req.SessionID,
		Message:     req.Message,
		ModelChoice: req.ModelChoice,
	})
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrEmptyMessage):
			c.JSON(http.StatusBadRequest, gin.H{"error": "message is required"})
		case errors.Is(err, completion.ErrUnavailable):
			c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to connect to AI service. Please try again."})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "chat failed"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"reply": reply.Text, "session_id": reply.SessionID})
}

func (h *Handler) resetChat(c *gin.Context) {
	sessionID := strings.TrimSpace(c.Param("session_id"))
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid session_id"})
		return
	}
	if err := h.chat.Reset(c.Request.Context(), sessionID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "reset failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

// Analysis history interface

func (h *Handler) getAnalysis(c *gin.Context) {
	if h.analyses == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "analysis history is disabled"})
		return
	}
	a, err := h.analyses.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "analysis not found"})
		} else {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "load analysis failed"})
		}
		return
	}
	c.JSON(http.StatusOK, a)
}

func (h *Handler) listAnalyses(c *gin.Context) {
	if h.analyses == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "analysis history is disabled"})
		return
	}
	limit := defaultListLimit
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	items, err := h.analyses.ListRecent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list analyses failed"})
		return
	}
	if items == nil {
		items = []models.Analysis{}
	}
	c.JSON(http.StatusOK, gin.H{"analyses": items, "count": len(items)})
}

type field struct {
	Key   string
	Text  string
	Items []string
}

func recordFields(rec *models.Record) []field {
	var out []field
	if rec == nil {
		return out
	}
	rec.Each(func(k string, v models.Value) bool {
		f := field{Key: k}
		if v.IsList() {
			f.Items = v.Strings()
		} else {
			f.Text = v.Text()
		}
		out = append(out, f)
		return true
	})
	return out
}

