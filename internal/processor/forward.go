package processor

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/extract"
	"github.com/spigell/cv-screener/internal/logger"
	"github.com/spigell/cv-screener/internal/recruiting"
)

type TextExtractor interface {
	FromObject(ctx context.Context, bucket, key string) (string, error)
	FromBytes(ctx context.Context, name string, data []byte) (string, error)
}

// Sender queues an event for the processor without waiting for it.
type Sender interface {
	Send(ctx context.Context, event any) error
}

// Forwarder reacts to CV uploads: it extracts the text of each new object and
// hands it to the processor. Images are read through objects and detected
// synchronously; PDFs go through an asynchronous detection job.
type Forwarder struct {
	extractor TextExtractor
	objects   ObjectReader
	sender    Sender
	logger    *zap.Logger
}

func NewForwarder(extractor TextExtractor, objects ObjectReader, sender Sender, log *zap.Logger) *Forwarder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Forwarder{
		extractor: extractor,
		objects:   objects,
		sender:    sender,
		logger:    log.With(zap.String("component", "text-forwarder")),
	}
}

// HandleS3Event processes every record. Objects that are not CVs are skipped;
// extraction or enqueue failures are returned together so Lambda retries the
// event.
func (f *Forwarder) HandleS3Event(ctx context.Context, event events.S3Event) error {
	var errs []error

	for _, record := range event.Records {
		bucket := record.S3.Bucket.Name
		key := objectKey(record.S3.Object)

		cv, err := recruiting.ParseCVKey(key)
		if err != nil {
			f.logger.Info("not a cv upload; skipping", zap.String("key", key))
			continue
		}

		log := logger.WithFields(f.logger, logger.WorkItemFields(cv.JobID, cv.UserID, key)...)

		text, err := f.extract(ctx, bucket, key)
		if errors.Is(err, extract.ErrUnsupportedDocument) {
			log.Info("unsupported document type; skipping")
			continue
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("extract %s: %w", key, err))
			continue
		}

		err = f.sender.Send(ctx, Input{
			WorkItemKey: key,
			JobID:       cv.JobID,
			CallerID:    cv.UserID,
			Text:        text,
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("forward %s: %w", key, err))
			continue
		}

		log.Info("extracted text forwarded", zap.Int("length", len(text)))
	}

	return errors.Join(errs...)
}

func (f *Forwarder) extract(ctx context.Context, bucket, key string) (string, error) {
	contentType, err := extract.ContentType(key)
	if err != nil {
		return "", err
	}
	if contentType == "application/pdf" || f.objects == nil {
		return f.extractor.FromObject(ctx, bucket, key)
	}

	data, _, err := f.objects.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return f.extractor.FromBytes(ctx, key, data)
}

func objectKey(obj events.S3Object) string {
	if obj.URLDecodedKey != "" {
		return obj.URLDecodedKey
	}
	if decoded, err := url.QueryUnescape(obj.Key); err == nil {
		return decoded
	}
	return obj.Key
}
