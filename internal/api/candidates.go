package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/ai"
	"github.com/spigell/cv-screener/internal/extract"
	"github.com/spigell/cv-screener/internal/logger"
	"github.com/spigell/cv-screener/internal/recruiting"
)

type uploadRequest struct {
	Filename    string `json:"filename" validate:"required"`
	ContentType string `json:"content_type" validate:"required"`
	Name        string `json:"name"`
}

type ratingRequest struct {
	Rating int `json:"rating" validate:"required,min=1,max=5"`
}

type cvIDsRequest struct {
	CVIDs []string `json:"cv_ids" validate:"required,min=1,dive,required"`
}

// batchOutcome reports a best-effort multi-CV operation.
type batchOutcome struct {
	Deleted []string `json:"deleted"`
	Failed  []string `json:"failed"`
}

func (a *API) getCandidates(ctx context.Context, req events.APIGatewayProxyRequest, callerID string) (int, any, error) {
	jobID, err := a.ownedJob(ctx, req, callerID)
	if err != nil {
		return 0, nil, err
	}

	apps, err := a.deps.Applications.ListByJob(ctx, jobID)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, map[string]any{"job_id": jobID, "candidates": apps}, nil
}

// uploadURL registers a new application and returns a presigned PUT URL the
// browser uploads the CV to.
func (a *API) uploadURL(ctx context.Context, req events.APIGatewayProxyRequest, callerID string) (int, any, error) {
	jobID, err := a.ownedJob(ctx, req, callerID)
	if err != nil {
		return 0, nil, err
	}

	var body uploadRequest
	if err := a.decode(req, &body); err != nil {
		return 0, nil, err
	}

	if _, err := extract.ContentType(body.Filename); err != nil {
		return 0, nil, fmt.Errorf("%w: %v", recruiting.ErrInvalidRequest, err)
	}

	cvID := a.newID()
	key := recruiting.CVUploadKey(a.cfg.UploadPrefix, jobID, callerID, cvID, path.Ext(body.Filename))

	app := &recruiting.Application{
		JobID:            jobID,
		CVID:             cvID,
		Name:             strings.TrimSpace(body.Name),
		UploadKey:        key,
		OriginalFilename: path.Base(body.Filename),
		CreatedAt:        a.now().UTC(),
	}
	if err := a.deps.Applications.Upsert(ctx, app); err != nil {
		return 0, nil, err
	}

	url, err := a.deps.CVs.PresignPut(ctx, key, body.ContentType, a.cfg.PresignTTL)
	if err != nil {
		return 0, nil, err
	}

	return http.StatusOK, map[string]any{
		"cv_id":      cvID,
		"key":        key,
		"upload_url": url,
		"expires_in": int(a.cfg.PresignTTL.Seconds()),
	}, nil
}

func (a *API) downloadURL(ctx context.Context, req events.APIGatewayProxyRequest, callerID string) (int, any, error) {
	jobID, err := a.ownedJob(ctx, req, callerID)
	if err != nil {
		return 0, nil, err
	}
	cvID, err := pathCVID(req)
	if err != nil {
		return 0, nil, err
	}

	app, err := a.deps.Applications.Get(ctx, jobID, cvID)
	if err != nil {
		return 0, nil, err
	}
	if app.UploadKey == "" {
		return 0, nil, fmt.Errorf("%w: no cv uploaded for %s", recruiting.ErrNotFound, cvID)
	}

	url, err := a.deps.CVs.PresignGet(ctx, app.UploadKey, a.cfg.PresignTTL)
	if err != nil {
		return 0, nil, err
	}

	return http.StatusOK, map[string]any{
		"cv_id":        cvID,
		"download_url": url,
		"expires_in":   int(a.cfg.PresignTTL.Seconds()),
	}, nil
}

func (a *API) rateCandidate(ctx context.Context, req events.APIGatewayProxyRequest, callerID string) (int, any, error) {
	jobID, err := a.ownedJob(ctx, req, callerID)
	if err != nil {
		return 0, nil, err
	}
	cvID, err := pathCVID(req)
	if err != nil {
		return 0, nil, err
	}

	var body ratingRequest
	if err := a.decode(req, &body); err != nil {
		return 0, nil, err
	}

	if err := a.deps.Applications.SetRating(ctx, jobID, cvID, body.Rating); err != nil {
		return 0, nil, err
	}
	return http.StatusOK, map[string]any{"cv_id": cvID, "rating": body.Rating}, nil
}

// deleteApplications removes candidates and everything stored for them. Each
// CV is handled independently; failures are reported, not fatal.
func (a *API) deleteApplications(ctx context.Context, req events.APIGatewayProxyRequest, callerID string) (int, any, error) {
	jobID, err := a.ownedJob(ctx, req, callerID)
	if err != nil {
		return 0, nil, err
	}

	var body cvIDsRequest
	if err := a.decode(req, &body); err != nil {
		return 0, nil, err
	}

	out := batchOutcome{Deleted: []string{}, Failed: []string{}}
	for _, cvID := range body.CVIDs {
		if err := a.deleteApplication(ctx, jobID, callerID, cvID); err != nil {
			a.logger.Warn("deleting application failed",
				zap.String(logger.FieldJobID, jobID),
				zap.String(logger.FieldCVID, cvID),
				zap.Error(err),
			)
			out.Failed = append(out.Failed, cvID)
			continue
		}
		out.Deleted = append(out.Deleted, cvID)
	}

	return http.StatusOK, out, nil
}

func (a *API) deleteApplication(ctx context.Context, jobID, callerID, cvID string) error {
	app, err := a.deps.Applications.Get(ctx, jobID, cvID)
	if err != nil {
		return err
	}

	var errs []error
	if err := a.deps.ResultFiles.Delete(ctx, recruiting.ResultObjectKey(jobID, callerID, cvID)); err != nil {
		errs = append(errs, err)
	}
	if err := a.deps.Results.Delete(ctx, jobID, callerID, cvID); err != nil {
		errs = append(errs, err)
	}
	if app.UploadKey != "" {
		if err := a.deps.CVs.Delete(ctx, app.UploadKey); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.deps.Applications.Delete(ctx, jobID, cvID); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// softSkillsQuestions asks the model for interview questions about one
// candidate and stores them next to the analysis.
func (a *API) softSkillsQuestions(ctx context.Context, req events.APIGatewayProxyRequest, callerID string) (int, any, error) {
	if a.deps.Interviewer == nil {
		return 0, nil, errors.New("interviewer is not configured")
	}

	jobID := pathJobID(req)
	if jobID == "" {
		return 0, nil, recruiting.ErrMissingJobID
	}
	cvID, err := pathCVID(req)
	if err != nil {
		return 0, nil, err
	}

	job, err := a.deps.Postings.Get(ctx, jobID, callerID)
	if err != nil {
		return 0, nil, err
	}

	app, err := a.deps.Applications.Get(ctx, jobID, cvID)
	if err != nil {
		return 0, nil, err
	}

	data, contentType, err := a.deps.CVs.Get(ctx, app.UploadKey)
	if err != nil {
		return 0, nil, fmt.Errorf("fetch cv: %w", err)
	}
	if mime, err := extract.ContentType(app.UploadKey); err == nil {
		contentType = mime
	}

	questions, err := a.deps.Interviewer.SoftSkillQuestions(ctx, job, ai.Document{
		Name:     path.Base(app.UploadKey),
		MIMEType: contentType,
		Data:     data,
	})
	if err != nil {
		return 0, nil, err
	}

	if err := a.deps.Results.SetQuestions(ctx, jobID, callerID, cvID, questions); err != nil {
		if !errors.Is(err, recruiting.ErrNotFound) {
			return 0, nil, err
		}
		a.logger.Info("cv not analysed yet; questions not stored", zap.String(logger.FieldCVID, cvID))
	}

	return http.StatusOK, map[string]any{"cv_id": cvID, "ss_questions": questions}, nil
}
