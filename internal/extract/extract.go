// Package extract pulls plain text out of uploaded CVs with Textract.
package extract

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/textract"
	"github.com/aws/aws-sdk-go-v2/service/textract/types"
	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/utils"
)

const DefaultPollInterval = 5 * time.Second

var (
	ErrUnsupportedDocument = errors.New("unsupported document type")
	ErrDetectionFailed     = errors.New("text detection failed")
)

var supported = map[string]string{
	".pdf":  "application/pdf",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
}

// ContentType returns the MIME type of a supported CV file, or
// ErrUnsupportedDocument.
func ContentType(key string) (string, error) {
	ext := strings.ToLower(path.Ext(key))
	mime, ok := supported[ext]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedDocument, ext)
	}
	return mime, nil
}

type API interface {
	DetectDocumentText(ctx context.Context, params *textract.DetectDocumentTextInput, optFns ...func(*textract.Options)) (*textract.DetectDocumentTextOutput, error)
	StartDocumentTextDetection(ctx context.Context, params *textract.StartDocumentTextDetectionInput, optFns ...func(*textract.Options)) (*textract.StartDocumentTextDetectionOutput, error)
	GetDocumentTextDetection(ctx context.Context, params *textract.GetDocumentTextDetectionInput, optFns ...func(*textract.Options)) (*textract.GetDocumentTextDetectionOutput, error)
}

type Textract struct {
	api          API
	pollInterval time.Duration
	logger       *zap.Logger

	wait func(ctx context.Context, d time.Duration) error
}

func New(api API, pollInterval time.Duration, logger *zap.Logger) *Textract {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Textract{
		api:          api,
		pollInterval: pollInterval,
		logger:       logger.With(zap.String("component", "textract")),
		wait:         utils.WaitFor,
	}
}

// FromObject runs asynchronous detection on an S3 object and blocks until the
// job finishes or ctx ends.
func (t *Textract) FromObject(ctx context.Context, bucket, key string) (string, error) {
	if _, err := ContentType(key); err != nil {
		return "", err
	}

	started, err := t.api.StartDocumentTextDetection(ctx, &textract.StartDocumentTextDetectionInput{
		DocumentLocation: &types.DocumentLocation{
			S3Object: &types.S3Object{
				Bucket: aws.String(bucket),
				Name:   aws.String(key),
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("start text detection for %s: %w", key, err)
	}

	jobID := aws.ToString(started.JobId)
	log := t.logger.With(zap.String("textract_job", jobID), zap.String("key", key))
	log.Info("text detection started")

	for {
		if err := t.wait(ctx, t.pollInterval); err != nil {
			return "", fmt.Errorf("waiting for text detection %s: %w", jobID, err)
		}

		first, err := t.api.GetDocumentTextDetection(ctx, &textract.GetDocumentTextDetectionInput{JobId: started.JobId})
		if err != nil {
			return "", fmt.Errorf("poll text detection %s: %w", jobID, err)
		}

		switch first.JobStatus {
		case types.JobStatusInProgress:
			log.Debug("text detection in progress")
			continue
		case types.JobStatusFailed:
			return "", fmt.Errorf("%w: %s", ErrDetectionFailed, aws.ToString(first.StatusMessage))
		}

		lines := lineText(first.Blocks)
		for next := first.NextToken; next != nil; {
			page, err := t.api.GetDocumentTextDetection(ctx, &textract.GetDocumentTextDetectionInput{
				JobId:     started.JobId,
				NextToken: next,
			})
			if err != nil {
				return "", fmt.Errorf("read text detection page: %w", err)
			}
			lines = append(lines, lineText(page.Blocks)...)
			next = page.NextToken
		}

		log.Info("text detection finished", zap.String("status", string(first.JobStatus)), zap.Int("lines", len(lines)))
		return strings.Join(lines, "\n"), nil
	}
}

// FromBytes runs synchronous detection; Textract accepts single-page
// documents and images this way.
func (t *Textract) FromBytes(ctx context.Context, name string, data []byte) (string, error) {
	if _, err := ContentType(name); err != nil {
		return "", err
	}

	out, err := t.api.DetectDocumentText(ctx, &textract.DetectDocumentTextInput{
		Document: &types.Document{Bytes: data},
	})
	if err != nil {
		return "", fmt.Errorf("detect text in %s: %w", name, err)
	}

	return strings.Join(lineText(out.Blocks), "\n"), nil
}

func lineText(blocks []types.Block) []string {
	lines := make([]string, 0, len(blocks))
	for _, block := range blocks {
		if block.BlockType != types.BlockTypeLine || block.Text == nil {
			continue
		}
		lines = append(lines, *block.Text)
	}
	return lines
}
