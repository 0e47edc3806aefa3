package recruiting

import "time"

// Application is one CV submitted to a job posting.
type Application struct {
	PK               string    `dynamodbav:"pk" json:"-"`
	SK               string    `dynamodbav:"sk" json:"-"`
	JobID            string    `dynamodbav:"job_id" json:"job_id"`
	CVID             string    `dynamodbav:"cv_id" json:"cv_id"`
	Name             string    `dynamodbav:"name,omitempty" json:"name,omitempty"`
	UploadKey        string    `dynamodbav:"cv_upload_key,omitempty" json:"cv_upload_key,omitempty"`
	OriginalFilename string    `dynamodbav:"original_filename,omitempty" json:"original_filename,omitempty"`
	ResultKey        string    `dynamodbav:"cv_s3_key,omitempty" json:"cv_s3_key,omitempty"`
	Score            *float64  `dynamodbav:"score,omitempty" json:"score,omitempty"`
	Rating           *int      `dynamodbav:"rating,omitempty" json:"rating,omitempty"`
	CreatedAt        time.Time `dynamodbav:"created_at" json:"created_at"`
}

// AnalysisResult is the AI assessment of one CV against one posting.
type AnalysisResult struct {
	PK          string    `dynamodbav:"pk" json:"-"`
	SK          string    `dynamodbav:"sk" json:"-"`
	JobID       string    `dynamodbav:"job_id" json:"job_id"`
	CVID        string    `dynamodbav:"cv_id" json:"cv_id"`
	RecruiterID string    `dynamodbav:"recruiter_id" json:"-"`
	Score       float64   `dynamodbav:"score" json:"score"`
	Fit         bool      `dynamodbav:"fit" json:"fit"`
	Reasons     []string  `dynamodbav:"reasons" json:"reasons"`
	Summary     string    `dynamodbav:"summary,omitempty" json:"summary,omitempty"`
	ContentHash string    `dynamodbav:"content_hash" json:"content_hash"`
	Model       string    `dynamodbav:"model,omitempty" json:"model,omitempty"`
	Questions   []string  `dynamodbav:"ss_questions,omitempty" json:"ss_questions,omitempty"`
	CreatedAt   time.Time `dynamodbav:"created_at" json:"created_at"`
}
