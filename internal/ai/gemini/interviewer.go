package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	_ "embed"

	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/ai"
	"github.com/spigell/cv-screener/internal/recruiting"
)

//go:embed prompts/questions.md
var questionsTemplate string

const (
	minQuestions = 3
	maxQuestions = 5
)

var errTooFewQuestions = errors.New("model returned too few questions")

type Interviewer struct {
	generator contentGenerator
	logger    *zap.Logger
}

func NewInterviewer(generator contentGenerator, logger *zap.Logger) *Interviewer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Interviewer{generator: generator, logger: logger}
}

func (i *Interviewer) SoftSkillQuestions(ctx context.Context, job *recruiting.JobPosting, cv ai.Document) ([]string, error) {
	if job == nil {
		return nil, fmt.Errorf("job posting is required")
	}

	prompt, err := buildPrompt(questionsTemplate, job)
	if err != nil {
		return nil, err
	}

	raw, err := i.generator.Generate(ctx, prompt, &cv)
	if err != nil {
		return nil, err
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(extractJSON(raw)), &data); err != nil {
		return nil, fmt.Errorf("parse gemini response: %w", err)
	}

	questions := coerceStrings(data["ss_questions"])
	if len(questions) < minQuestions {
		return nil, fmt.Errorf("%w: got %d", errTooFewQuestions, len(questions))
	}
	if len(questions) > maxQuestions {
		questions = questions[:maxQuestions]
	}

	i.logger.Debug("soft skill questions generated", zap.String("cv", cv.Name), zap.Int("count", len(questions)))
	return questions, nil
}
