package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	_ "embed"

	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/ai"
	"github.com/spigell/cv-screener/internal/recruiting"
	"github.com/spigell/cv-screener/internal/utils"
)

type contentGenerator interface {
	Generate(ctx context.Context, prompt string, doc *ai.Document) (string, error)
	Model() string
}

//go:embed prompts/scoring.md
var scoringTemplate string

const defaultMaxLogLength = 200

type Scorer struct {
	generator contentGenerator
	minScore  float64
	logger    *zap.Logger
	maxLogLen int
}

func NewScorer(generator contentGenerator, logger *zap.Logger, minScore float64, maxLogLength int) *Scorer {
	if maxLogLength <= 0 {
		maxLogLength = defaultMaxLogLength
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Scorer{
		generator: generator,
		minScore:  minScore,
		logger:    logger,
		maxLogLen: maxLogLength,
	}
}

func (s *Scorer) Model() string {
	return s.generator.Model()
}

func (s *Scorer) Score(ctx context.Context, job *recruiting.JobPosting, cv ai.Document) (*ai.Assessment, error) {
	if job == nil {
		return nil, fmt.Errorf("job posting is required")
	}
	if cv.Empty() {
		return nil, fmt.Errorf("cv %s has no content", cv.Name)
	}

	prompt, err := buildPrompt(scoringTemplate, job)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("gemini generate content request",
		zap.String("job_id", job.JobID),
		zap.String("cv", cv.Name),
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, s.maxLogLen)),
	)

	raw, err := s.generator.Generate(ctx, prompt, &cv)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("gemini generate content response",
		zap.String("job_id", job.JobID),
		zap.String("cv", cv.Name),
		zap.Int("response_length", utf8.RuneCountInString(raw)),
		zap.String("response_preview", utils.TruncateForLog(raw, s.maxLogLen)),
	)

	assessment, err := parseAssessment(raw)
	if err != nil {
		return nil, err
	}

	if s.minScore > 0 && assessment.Score < s.minScore {
		s.logger.Debug("set fit to false by score threshold",
			zap.String("cv", cv.Name),
			zap.Float64("score", assessment.Score),
			zap.Float64("threshold", s.minScore),
		)
		assessment.Fit = false
	}

	assessment.Raw = raw
	return assessment, nil
}

// buildPrompt renders the job posting into a template's {{JOB_JSON}} slot.
func buildPrompt(template string, job *recruiting.JobPosting) (string, error) {
	jobJSON, err := json.MarshalIndent(map[string]any{
		"title":       job.Title,
		"description": job.Description,
		"location":    job.Location,
		"level":       job.Level,
		"skills":      job.Skills,
	}, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal job payload: %w", err)
	}

	if strings.TrimSpace(template) == "" {
		template = "Job:\n{{JOB_JSON}}\n\nJSON Response:"
	}
	return strings.ReplaceAll(template, "{{JOB_JSON}}", string(jobJSON)), nil
}

func parseAssessment(raw string) (*ai.Assessment, error) {
	var data map[string]any
	if err := json.Unmarshal([]byte(extractJSON(raw)), &data); err != nil {
		return nil, fmt.Errorf("parse gemini response: %w", err)
	}

	score := coerceFloat(data["score"])
	if math.IsNaN(score) {
		score = 0
	}

	return &ai.Assessment{
		Fit:     coerceBool(data["fit"]),
		Score:   math.Max(0, math.Min(100, score)),
		Reasons: coerceStrings(data["reasons"]),
		Summary: coerceString(data["summary"]),
	}, nil
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

func coerceBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		lower := strings.ToLower(strings.TrimSpace(val))
		return lower == "true" || lower == "yes"
	case float64:
		return val != 0
	default:
		return false
	}
}

func coerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case int:
		return float64(val)
	case string:
		trimmed := strings.TrimSuffix(strings.TrimSpace(val), "%")
		if trimmed == "" {
			return math.NaN()
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		if v == nil {
			return ""
		}
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(bytes)
	}
}

// coerceStrings accepts a list or a single string and drops blank entries.
func coerceStrings(v any) []string {
	var items []any
	switch val := v.(type) {
	case []any:
		items = val
	case nil:
		return []string{}
	default:
		items = []any{val}
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		if s := coerceString(item); s != "" {
			out = append(out, s)
		}
	}
	return out
}
