// Package api implements the recruiter-facing API Gateway (Lambda proxy)
// handlers.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/ai"
	"github.com/spigell/cv-screener/internal/dispatch"
	"github.com/spigell/cv-screener/internal/recruiting"
)

// Handler is the signature every function is served with.
type Handler func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

type Postings interface {
	Create(ctx context.Context, posting *recruiting.JobPosting) error
	Get(ctx context.Context, jobID, userID string) (*recruiting.JobPosting, error)
	Owns(ctx context.Context, jobID, userID string) (bool, error)
	ListByUser(ctx context.Context, userID string) ([]recruiting.JobPosting, error)
	Update(ctx context.Context, jobID, userID string, patch recruiting.PostingPatch, now time.Time) (*recruiting.JobPosting, error)
}

type Applications interface {
	ListByJob(ctx context.Context, jobID string) ([]recruiting.Application, error)
	Get(ctx context.Context, jobID, cvID string) (*recruiting.Application, error)
	Upsert(ctx context.Context, app *recruiting.Application) error
	SetRating(ctx context.Context, jobID, cvID string, rating int) error
	ClearAnalysis(ctx context.Context, jobID, cvID string) error
	Delete(ctx context.Context, jobID, cvID string) error
}

type Results interface {
	ListByJob(ctx context.Context, jobID, userID string) ([]recruiting.AnalysisResult, error)
	Delete(ctx context.Context, jobID, userID, cvID string) error
	SetQuestions(ctx context.Context, jobID, userID, cvID string, questions []string) error
}

// Bucket is the object storage the handlers touch.
type Bucket interface {
	Get(ctx context.Context, key string) ([]byte, string, error)
	Delete(ctx context.Context, key string) error
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
	PresignPut(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
}

type Dispatcher interface {
	Check(ctx context.Context, req dispatch.Request) (dispatch.Request, int, error)
	Dispatch(ctx context.Context, req dispatch.Request) (*dispatch.Result, error)
}

// Queue hands an event to the dispatch function without waiting for it.
type Queue interface {
	Send(ctx context.Context, event any) error
}

type Config struct {
	AllowedOrigin string
	PresignTTL    time.Duration
	UploadPrefix  string
}

type Deps struct {
	Postings     Postings
	Applications Applications
	Results      Results
	CVs          Bucket
	ResultFiles  Bucket
	Dispatcher   Dispatcher
	Interviewer  ai.Interviewer
	Logger       *zap.Logger

	// DispatchQueue, when set, makes dispatch-cvs answer once the run is
	// queued instead of after the last batch.
	DispatchQueue Queue
}

type API struct {
	cfg      Config
	deps     Deps
	validate *validator.Validate
	logger   *zap.Logger

	now   func() time.Time
	newID func() string
}

func New(cfg Config, deps Deps) (*API, error) {
	if deps.Postings == nil || deps.Applications == nil || deps.Results == nil {
		return nil, errors.New("api requires posting, application and result stores")
	}
	if deps.CVs == nil || deps.ResultFiles == nil {
		return nil, errors.New("api requires cv and result buckets")
	}

	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &API{
		cfg:      cfg,
		deps:     deps,
		validate: newValidator(),
		logger:   log.With(zap.String("component", "api")),
		now:      time.Now,
		newID:    newID,
	}, nil
}

// Route binds a function to the HTTP method and path it is exposed on.
type Route struct {
	Function string
	Method   string
	Pattern  string
}

// Routes lists the functions in the order the local server mounts them.
// Patterns use API Gateway's {param} syntax.
var Routes = []Route{
	{Function: "dispatch-cvs", Method: http.MethodPost, Pattern: "/jobs/{job_id}/analyze"},
	{Function: "create-job-posting", Method: http.MethodPost, Pattern: "/jobs"},
	{Function: "list-job-postings", Method: http.MethodGet, Pattern: "/jobs"},
	{Function: "update-job-posting", Method: http.MethodPut, Pattern: "/jobs"},
	{Function: "get-candidates", Method: http.MethodGet, Pattern: "/jobs/{job_id}/candidates"},
	{Function: "get-analysis-results", Method: http.MethodGet, Pattern: "/results"},
	{Function: "delete-analysis-results", Method: http.MethodDelete, Pattern: "/jobs/{job_id}/results"},
	{Function: "delete-applications", Method: http.MethodDelete, Pattern: "/jobs/{job_id}/applications"},
	{Function: "upload-url", Method: http.MethodPost, Pattern: "/jobs/{job_id}/upload-url"},
	{Function: "download-url", Method: http.MethodGet, Pattern: "/jobs/{job_id}/cvs/{cv_id}/download-url"},
	{Function: "rate-candidate", Method: http.MethodPost, Pattern: "/jobs/{job_id}/candidates/{cv_id}/rating"},
	{Function: "soft-skills-questions", Method: http.MethodPost, Pattern: "/jobs/{job_id}/cvs/{cv_id}/questions"},
}

// Functions returns every handler keyed by function name.
func (a *API) Functions() map[string]Handler {
	return map[string]Handler{
		"dispatch-cvs":            a.wrap("dispatch-cvs", a.dispatchCVs),
		"create-job-posting":      a.wrap("create-job-posting", a.createJobPosting),
		"list-job-postings":       a.wrap("list-job-postings", a.listJobPostings),
		"update-job-posting":      a.wrap("update-job-posting", a.updateJobPosting),
		"get-candidates":          a.wrap("get-candidates", a.getCandidates),
		"get-analysis-results":    a.wrap("get-analysis-results", a.getAnalysisResults),
		"delete-analysis-results": a.wrap("delete-analysis-results", a.deleteAnalysisResults),
		"delete-applications":     a.wrap("delete-applications", a.deleteApplications),
		"upload-url":              a.wrap("upload-url", a.uploadURL),
		"download-url":            a.wrap("download-url", a.downloadURL),
		"rate-candidate":          a.wrap("rate-candidate", a.rateCandidate),
		"soft-skills-questions":   a.wrap("soft-skills-questions", a.softSkillsQuestions),
	}
}
