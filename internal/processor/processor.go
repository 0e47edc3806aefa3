// Package processor scores one uploaded CV against its job posting. It is the
// downstream side of the dispatcher and may run several times for the same
// CV: unchanged content is detected by hash and skipped.
package processor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/ai"
	"github.com/spigell/cv-screener/internal/extract"
	"github.com/spigell/cv-screener/internal/logger"
	"github.com/spigell/cv-screener/internal/metrics"
	"github.com/spigell/cv-screener/internal/recruiting"
)

// Input is the event the processor is invoked with. Text is set when the CV
// was already run through text extraction.
type Input struct {
	WorkItemKey string `json:"work_item_key" mapstructure:"work_item_key"`
	JobID       string `json:"job_id" mapstructure:"job_id"`
	CallerID    string `json:"caller_id" mapstructure:"caller_id"`
	Text        string `json:"text,omitempty" mapstructure:"text"`
}

type Postings interface {
	Get(ctx context.Context, jobID, userID string) (*recruiting.JobPosting, error)
}

type Results interface {
	Get(ctx context.Context, jobID, userID, cvID string) (*recruiting.AnalysisResult, error)
	Put(ctx context.Context, result *recruiting.AnalysisResult) error
}

type Applications interface {
	SetAnalysis(ctx context.Context, jobID, cvID, resultKey string, score float64) error
}

type ObjectReader interface {
	Get(ctx context.Context, key string) ([]byte, string, error)
}

type ObjectWriter interface {
	Put(ctx context.Context, key, contentType string, data []byte) error
}

type Deps struct {
	Postings     Postings
	Results      Results
	Applications Applications
	CVs          ObjectReader
	ResultFiles  ObjectWriter
	Scorer       ai.Scorer
	Logger       *zap.Logger
}

// Outcome describes one processed CV.
type Outcome struct {
	JobID     string  `json:"job_id"`
	CVID      string  `json:"cv_id"`
	Score     float64 `json:"score"`
	Skipped   bool    `json:"skipped"`
	ResultKey string  `json:"result_key,omitempty"`
}

type Processor struct {
	deps   Deps
	logger *zap.Logger
	now    func() time.Time
}

func New(deps Deps) (*Processor, error) {
	if deps.Postings == nil || deps.Results == nil || deps.Applications == nil {
		return nil, errors.New("processor requires posting, result and application stores")
	}
	if deps.CVs == nil || deps.ResultFiles == nil || deps.Scorer == nil {
		return nil, errors.New("processor requires cv and result buckets and a scorer")
	}

	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	return &Processor{
		deps:   deps,
		logger: log.With(zap.String("component", "processor")),
		now:    time.Now,
	}, nil
}

// Handle is the Lambda entry point. It accepts the raw event either as the
// Input object itself or wrapped in an API Gateway proxy body.
func (p *Processor) Handle(ctx context.Context, event json.RawMessage) (*Outcome, error) {
	in, err := DecodeInput(event)
	if err != nil {
		return nil, err
	}
	return p.Process(ctx, in)
}

func DecodeInput(event json.RawMessage) (Input, error) {
	var raw map[string]any
	if err := json.Unmarshal(event, &raw); err != nil {
		return Input{}, fmt.Errorf("%w: decode event: %v", recruiting.ErrInvalidRequest, err)
	}

	if body, ok := raw["body"].(string); ok {
		raw = nil
		if err := json.Unmarshal([]byte(body), &raw); err != nil {
			return Input{}, fmt.Errorf("%w: decode event body: %v", recruiting.ErrInvalidRequest, err)
		}
	}

	var in Input
	if err := mapstructure.Decode(raw, &in); err != nil {
		return Input{}, fmt.Errorf("%w: %v", recruiting.ErrInvalidRequest, err)
	}
	return in, nil
}

func (p *Processor) Process(ctx context.Context, in Input) (outcome *Outcome, err error) {
	defer func() {
		switch {
		case err != nil:
			metrics.AnalysisTotal.WithLabelValues(metrics.StatusError).Inc()
		case outcome.Skipped:
			metrics.AnalysisTotal.WithLabelValues(metrics.StatusSkipped).Inc()
		default:
			metrics.AnalysisTotal.WithLabelValues(metrics.StatusScored).Inc()
		}
	}()

	key, err := p.resolve(in)
	if err != nil {
		return nil, err
	}

	log := logger.WithFields(p.logger, logger.WorkItemFields(key.JobID, key.UserID, in.WorkItemKey)...)
	log = log.With(zap.String(logger.FieldCVID, key.CVID))

	job, err := p.deps.Postings.Get(ctx, key.JobID, key.UserID)
	if err != nil {
		return nil, err
	}

	data, contentType, err := p.deps.CVs.Get(ctx, in.WorkItemKey)
	if err != nil {
		return nil, fmt.Errorf("fetch cv: %w", err)
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	existing, err := p.deps.Results.Get(ctx, key.JobID, key.UserID, key.CVID)
	switch {
	case err == nil && existing.ContentHash == hash:
		log.Info("cv already analysed; skipping", zap.String("content_hash", hash))
		return &Outcome{JobID: key.JobID, CVID: key.CVID, Score: existing.Score, Skipped: true}, nil
	case err != nil && !errors.Is(err, recruiting.ErrNotFound):
		return nil, err
	}

	doc, err := document(in, data, contentType)
	if err != nil {
		return nil, err
	}

	log.Info("scoring cv", zap.String("model", p.deps.Scorer.Model()))
	assessment, err := p.deps.Scorer.Score(ctx, job, doc)
	if err != nil {
		return nil, fmt.Errorf("score cv: %w", err)
	}

	result := &recruiting.AnalysisResult{
		JobID:       key.JobID,
		CVID:        key.CVID,
		RecruiterID: key.UserID,
		Score:       assessment.Score,
		Fit:         assessment.Fit,
		Reasons:     assessment.Reasons,
		Summary:     assessment.Summary,
		ContentHash: hash,
		Model:       p.deps.Scorer.Model(),
		CreatedAt:   p.now().UTC(),
	}

	if err := p.deps.Results.Put(ctx, result); err != nil {
		return nil, err
	}

	resultKey := recruiting.ResultObjectKey(key.JobID, key.UserID, key.CVID)
	body, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	if err := p.deps.ResultFiles.Put(ctx, resultKey, "application/json", body); err != nil {
		return nil, fmt.Errorf("store result object: %w", err)
	}

	err = p.deps.Applications.SetAnalysis(ctx, key.JobID, key.CVID, resultKey, result.Score)
	if errors.Is(err, recruiting.ErrNotFound) {
		log.Warn("application deleted during analysis; result not linked", zap.String("result_key", resultKey))
		return &Outcome{JobID: key.JobID, CVID: key.CVID, Score: result.Score, Skipped: true, ResultKey: resultKey}, nil
	}
	if err != nil {
		return nil, err
	}

	log.Info("cv scored", zap.Float64("score", result.Score), zap.Bool("fit", result.Fit))
	return &Outcome{JobID: key.JobID, CVID: key.CVID, Score: result.Score, ResultKey: resultKey}, nil
}

// resolve parses the work item key and reconciles it with the ids carried in
// the payload.
func (p *Processor) resolve(in Input) (recruiting.CVKey, error) {
	if strings.TrimSpace(in.WorkItemKey) == "" {
		return recruiting.CVKey{}, fmt.Errorf("%w: work_item_key is required", recruiting.ErrInvalidRequest)
	}

	key, err := recruiting.ParseCVKey(in.WorkItemKey)
	if err != nil {
		return recruiting.CVKey{}, err
	}

	if jobID := recruiting.NormalizeJobID(in.JobID); jobID != "" && jobID != key.JobID {
		return recruiting.CVKey{}, fmt.Errorf("%w: job %s does not match key %s", recruiting.ErrInvalidRequest, jobID, in.WorkItemKey)
	}
	if in.CallerID != "" && in.CallerID != key.UserID {
		return recruiting.CVKey{}, fmt.Errorf("%w: cv %s was not uploaded by caller", recruiting.ErrJobNotOwned, key.CVID)
	}

	return key, nil
}

func document(in Input, data []byte, contentType string) (ai.Document, error) {
	doc := ai.Document{Name: path.Base(in.WorkItemKey), Text: in.Text}
	if doc.Text != "" {
		return doc, nil
	}

	mime, err := extract.ContentType(in.WorkItemKey)
	if err != nil {
		if contentType == "" {
			return ai.Document{}, fmt.Errorf("%w: %v", recruiting.ErrInvalidRequest, err)
		}
		mime = contentType
	}

	doc.Data = data
	doc.MIMEType = mime
	return doc, nil
}
