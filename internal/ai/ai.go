// Package ai defines what the rest of the system needs from a generative
// model, independent of the provider.
package ai

import (
	"context"

	"github.com/spigell/cv-screener/internal/recruiting"
)

// Document is a CV handed to a model. Data is sent inline with MIMEType;
// Text, when set, is extracted text sent alongside or instead of Data.
type Document struct {
	Name     string
	MIMEType string
	Data     []byte
	Text     string
}

func (d Document) Empty() bool {
	return len(d.Data) == 0 && d.Text == ""
}

type Assessment struct {
	Fit     bool
	Score   float64
	Reasons []string
	Summary string
	Raw     string
}

// Scorer rates a CV against a job posting on a 0..100 scale.
type Scorer interface {
	Score(ctx context.Context, job *recruiting.JobPosting, cv Document) (*Assessment, error)
	Model() string
}

// Interviewer suggests soft-skill interview questions for a candidate.
type Interviewer interface {
	SoftSkillQuestions(ctx context.Context, job *recruiting.JobPosting, cv Document) ([]string, error)
}
