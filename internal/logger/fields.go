package logger

import (
	"strings"

	"go.uber.org/zap"
)

const (
	// FieldProvider is the structured log field key for the AI provider name.
	FieldProvider = "ai_provider"
	// FieldModel is the structured log field key for the AI model identifier.
	FieldModel = "ai_model"

	FieldJobID    = "job_id"
	FieldCallerID = "caller_id"
	FieldCVID     = "cv_id"
	FieldWorkItem = "work_item_key"
	FieldFunction = "function"
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts the provided key/value pairs into zap fields, trimming
// whitespace and omitting entries with empty keys or values.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		if key == "" {
			continue
		}

		value := strings.TrimSpace(field.Value)
		if value == "" {
			continue
		}

		result = append(result, zap.String(key, value))
	}

	return result
}

// WithFields attaches fields to the logger, falling back to a no-op logger
// when nil is passed.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// CommonFields returns the fields describing the AI provider and model.
func CommonFields(provider, model string) []zap.Field {
	return StringFields(
		StringField{Key: FieldProvider, Value: provider},
		StringField{Key: FieldModel, Value: model},
	)
}

// JobFields identifies a job posting and the recruiter acting on it.
func JobFields(jobID, callerID string) []zap.Field {
	return StringFields(
		StringField{Key: FieldJobID, Value: jobID},
		StringField{Key: FieldCallerID, Value: callerID},
	)
}

// WorkItemFields identifies one CV being dispatched or processed.
func WorkItemFields(jobID, callerID, key string) []zap.Field {
	return append(JobFields(jobID, callerID), StringFields(StringField{Key: FieldWorkItem, Value: key})...)
}

// ForJob returns a child logger tagged with the job and caller.
func ForJob(logger *zap.Logger, jobID, callerID string) *zap.Logger {
	return WithFields(logger, JobFields(jobID, callerID)...)
}
