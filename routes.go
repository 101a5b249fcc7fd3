package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/mudler/faqrecall/rag"
	"github.com/mudler/faqrecall/rag/evaluation"
	"github.com/mudler/faqrecall/rag/interfaces"
	"github.com/mudler/faqrecall/rag/sources"
	"github.com/mudler/faqrecall/rag/types"
	"github.com/mudler/xlog"
)

const serviceName = "faqrecall"

// api holds the components served over HTTP. evaluator, ingestor and sourceManager may be nil.
type api struct {
	generator       interfaces.AnswerGenerator
	retriever       interfaces.Retriever
	evaluator       *evaluation.Evaluator
	inlineEvaluate  bool
	ingestor        *rag.Ingestor
	sourceManager   *rag.SourceManager
	defaultProvider types.Provider
	defaultLimit    int
	refreshInterval time.Duration
	uploadDir       string
	// background outlives requests; source updates run on it.
	background context.Context
}

type requestValidator struct {
	validator *validator.Validate
}

func (v *requestValidator) Validate(i interface{}) error {
	return v.validator.Struct(i)
}

func newRouter(a *api) *echo.Echo {
	if a.background == nil {
		a.background = context.Background()
	}

	e := echo.New()
	e.HideBanner = true
	e.Validator = &requestValidator{validator: validator.New()}

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"*"},
	}))

	e.GET("/", a.health)
	e.POST("/generate", a.generate)
	e.POST("/retrieve", a.retrieve)
	e.POST("/evaluate", a.evaluate)

	e.POST("/ingest", a.ingest)
	e.POST("/ingest/upload", a.upload)
	e.GET("/sources", a.listSources)
	e.POST("/sources", a.addSource)
	e.DELETE("/sources", a.removeSource)

	return e
}

func errorMessage(message string) map[string]string {
	return map[string]string{"error": message}
}

func (a *api) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "healthy",
		"service": serviceName,
		"endpoints": map[string]string{
			"/":              "Health check endpoint",
			"/generate":      "Generate answers using the RAG pipeline",
			"/retrieve":      "Retrieve the FAQ records most similar to a query",
			"/evaluate":      "Score an answer",
			"/ingest":        "Ingest a source into the document store",
			"/ingest/upload": "Ingest an uploaded document",
			"/sources":       "Manage periodically refreshed sources",
		},
	})
}

type generateRequest struct {
	Question string `json:"question"`
}

type generateResponse struct {
	Answer     string                 `json:"answer"`
	References []string               `json:"references"`
	Success    bool                   `json:"success"`
	Error      string                 `json:"error,omitempty"`
	Evaluation *types.EvaluationScore `json:"evaluation,omitempty"`
}

func (a *api) generate(c echo.Context) error {
	r := new(generateRequest)
	if err := c.Bind(r); err != nil {
		return c.JSON(http.StatusBadRequest, errorMessage("Invalid request"))
	}

	xlog.Info("Received question", "question", r.Question)
	if strings.TrimSpace(r.Question) == "" {
		xlog.Warn("Received empty question")
		return c.JSON(http.StatusOK, generateResponse{
			Answer:     "Please provide a valid question.",
			References: []string{},
			Success:    false,
			Error:      "Question cannot be empty",
		})
	}

	ctx := c.Request().Context()
	answer := a.generator.Generate(ctx, r.Question)

	switch answer.Outcome {
	case types.OutcomeNoContext:
		xlog.Warn("No relevant information found")
		return c.JSON(http.StatusOK, generateResponse{
			Answer:     answer.Text,
			References: answer.References,
			Success:    false,
			Error:      "No relevant information found",
		})
	case types.OutcomeError:
		return c.JSON(http.StatusInternalServerError, errorMessage("Error generating answer: "+answer.Detail))
	}

	resp := generateResponse{
		Answer:     answer.Text,
		References: answer.References,
		Success:    answer.OK(),
	}
	if a.inlineEvaluate && a.evaluator != nil {
		score := a.evaluator.Evaluate(ctx, evaluation.Request{
			Question: r.Question,
			Response: answer.Text,
			Context:  answer.Contexts,
		})
		resp.Evaluation = &score
	}

	xlog.Info("Successfully generated answer", "references", len(answer.References))
	return c.JSON(http.StatusOK, resp)
}

type retrieveRequest struct {
	Query    string `json:"query" validate:"required"`
	Provider string `json:"provider"`
	Limit    int    `json:"limit" validate:"gte=0,lte=100"`
}

func (a *api) retrieve(c echo.Context) error {
	r := new(retrieveRequest)
	if err := c.Bind(r); err != nil {
		return c.JSON(http.StatusBadRequest, errorMessage("Invalid request"))
	}
	if err := c.Validate(r); err != nil {
		return c.JSON(http.StatusBadRequest, errorMessage(err.Error()))
	}

	provider := a.defaultProvider
	if r.Provider != "" {
		p, err := types.ParseProvider(r.Provider)
		if err != nil {
			return c.JSON(http.StatusBadRequest, errorMessage(err.Error()))
		}
		provider = p
	}
	limit := a.defaultLimit
	if r.Limit > 0 {
		limit = r.Limit
	}

	results, err := a.retriever.Retrieve(c.Request().Context(), r.Query, provider, limit)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, types.ErrUnsupportedProvider) || errors.Is(err, types.ErrEmptyQuery) {
			status = http.StatusBadRequest
		} else if types.IsEmbeddingRequestError(err) {
			status = http.StatusBadGateway
		}
		return c.JSON(status, errorMessage(err.Error()))
	}

	return c.JSON(http.StatusOK, results)
}

func (a *api) evaluate(c echo.Context) error {
	if a.evaluator == nil {
		return c.JSON(http.StatusServiceUnavailable, errorMessage("Evaluation is not configured"))
	}

	r := new(evaluation.Request)
	if err := c.Bind(r); err != nil {
		return c.JSON(http.StatusBadRequest, errorMessage("Invalid request"))
	}
	if err := c.Validate(r); err != nil {
		return c.JSON(http.StatusBadRequest, errorMessage(err.Error()))
	}

	return c.JSON(http.StatusOK, a.evaluator.Evaluate(c.Request().Context(), *r))
}

type ingestRequest struct {
	Source string `json:"source" validate:"required"`
}

func (a *api) ingest(c echo.Context) error {
	if a.ingestor == nil {
		return c.JSON(http.StatusServiceUnavailable, errorMessage("Ingestion is not configured"))
	}

	r := new(ingestRequest)
	if err := c.Bind(r); err != nil {
		return c.JSON(http.StatusBadRequest, errorMessage("Invalid request"))
	}
	if err := c.Validate(r); err != nil {
		return c.JSON(http.StatusBadRequest, errorMessage(err.Error()))
	}

	stats, err := a.ingestor.IngestSource(c.Request().Context(), r.Source)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorMessage("Failed to ingest source: "+err.Error()))
	}
	return c.JSON(http.StatusOK, stats)
}

// upload ingests a single uploaded document.
func (a *api) upload(c echo.Context) error {
	if a.ingestor == nil {
		return c.JSON(http.StatusServiceUnavailable, errorMessage("Ingestion is not configured"))
	}

	file, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorMessage("Failed to read file: "+err.Error()))
	}

	f, err := file.Open()
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorMessage("Failed to open file: "+err.Error()))
	}
	defer f.Close()

	if err := os.MkdirAll(a.uploadDir, 0755); err != nil {
		return c.JSON(http.StatusInternalServerError, errorMessage("Failed to create upload directory"))
	}
	filePath := filepath.Join(a.uploadDir, filepath.Base(file.Filename))
	out, err := os.Create(filePath)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorMessage("Failed to create file"))
	}
	defer out.Close()

	if _, err := io.Copy(out, f); err != nil {
		return c.JSON(http.StatusInternalServerError, errorMessage("Failed to copy file"))
	}

	page, err := sources.File(filePath)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorMessage("Failed to read document: "+err.Error()))
	}

	stats, err := a.ingestor.IngestPages(c.Request().Context(), page)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, errorMessage("Failed to store file: "+err.Error()))
	}
	return c.JSON(http.StatusOK, stats)
}

type sourceRequest struct {
	URL            string `json:"url" validate:"required"`
	UpdateInterval int    `json:"update_interval" validate:"gte=0"` // minutes
}

func (a *api) listSources(c echo.Context) error {
	if a.sourceManager == nil {
		return c.JSON(http.StatusOK, []rag.ExternalSource{})
	}
	return c.JSON(http.StatusOK, a.sourceManager.Sources())
}

func (a *api) addSource(c echo.Context) error {
	if a.sourceManager == nil {
		return c.JSON(http.StatusServiceUnavailable, errorMessage("Ingestion is not configured"))
	}

	r := new(sourceRequest)
	if err := c.Bind(r); err != nil {
		return c.JSON(http.StatusBadRequest, errorMessage("Invalid request"))
	}
	if err := c.Validate(r); err != nil {
		return c.JSON(http.StatusBadRequest, errorMessage(err.Error()))
	}

	interval := time.Duration(r.UpdateInterval) * time.Minute
	if interval == 0 {
		interval = a.refreshInterval
	}
	if interval == 0 {
		interval = 24 * time.Hour
	}
	if err := a.sourceManager.AddSource(a.background, r.URL, interval); err != nil {
		return c.JSON(http.StatusInternalServerError, errorMessage("Failed to add source: "+err.Error()))
	}
	return c.JSON(http.StatusCreated, a.sourceManager.Sources())
}

func (a *api) removeSource(c echo.Context) error {
	if a.sourceManager == nil {
		return c.JSON(http.StatusServiceUnavailable, errorMessage("Ingestion is not configured"))
	}

	r := new(sourceRequest)
	if err := c.Bind(r); err != nil {
		return c.JSON(http.StatusBadRequest, errorMessage("Invalid request"))
	}
	if err := c.Validate(r); err != nil {
		return c.JSON(http.StatusBadRequest, errorMessage(err.Error()))
	}

	if err := a.sourceManager.RemoveSource(c.Request().Context(), r.URL); err != nil {
		if errors.Is(err, rag.ErrSourceNotFound) {
			return c.JSON(http.StatusNotFound, errorMessage(err.Error()))
		}
		return c.JSON(http.StatusInternalServerError, errorMessage(err.Error()))
	}
	return c.JSON(http.StatusOK, a.sourceManager.Sources())
}
