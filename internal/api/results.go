package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/logger"
	"github.com/spigell/cv-screener/internal/recruiting"
)

func (a *API) getAnalysisResults(ctx context.Context, req events.APIGatewayProxyRequest, callerID string) (int, any, error) {
	jobID, err := a.ownedJob(ctx, req, callerID)
	if err != nil {
		return 0, nil, err
	}

	results, err := a.deps.Results.ListByJob(ctx, jobID, callerID)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, map[string]any{"job_id": jobID, "results": results}, nil
}

// deleteAnalysisResults drops the analysis of each CV while keeping the
// candidate, so the CV can be analysed again.
func (a *API) deleteAnalysisResults(ctx context.Context, req events.APIGatewayProxyRequest, callerID string) (int, any, error) {
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
		err := errors.Join(
			a.deps.Results.Delete(ctx, jobID, callerID, cvID),
			a.deps.ResultFiles.Delete(ctx, recruiting.ResultObjectKey(jobID, callerID, cvID)),
			a.clearAnalysis(ctx, jobID, cvID),
		)
		if err != nil {
			a.logger.Warn("deleting analysis failed",
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

// clearAnalysis unlinks the analysis from its application. An application
// that is already gone has nothing to unlink.
func (a *API) clearAnalysis(ctx context.Context, jobID, cvID string) error {
	err := a.deps.Applications.ClearAnalysis(ctx, jobID, cvID)
	if errors.Is(err, recruiting.ErrNotFound) {
		return nil
	}
	return err
}
