package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/dispatch"
	"github.com/spigell/cv-screener/internal/recruiting"
)

type createPostingRequest struct {
	Title       string   `json:"title" validate:"required"`
	Description string   `json:"description" validate:"required"`
	Location    string   `json:"location" validate:"required"`
	Level       string   `json:"level" validate:"required"`
	Skills      []string `json:"skills" validate:"required,min=1,dive,required"`
}

type updatePostingRequest struct {
	JobID       string  `json:"job_id" validate:"required"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
}

// queuedDispatch is the dispatch-cvs answer when the run happens in the
// background. Dispatched is the number of CVs the run will invoke.
type queuedDispatch struct {
	JobID      string `json:"job_id"`
	Dispatched int    `json:"dispatched"`
	Queued     bool   `json:"queued"`
}

// dispatchCVs starts analysis of every CV uploaded for a job. With a dispatch
// queue the preconditions are checked here and the batches run in a separate
// invocation; otherwise the response is sent once all batches are submitted.
func (a *API) dispatchCVs(ctx context.Context, req events.APIGatewayProxyRequest, callerID string) (int, any, error) {
	if a.deps.Dispatcher == nil {
		return 0, nil, errors.New("dispatcher is not configured")
	}

	jobID := req.PathParameters["job_id"]
	if strings.TrimSpace(jobID) == "" && strings.TrimSpace(req.Body) != "" {
		var body struct {
			JobID string `json:"job_id"`
		}
		if err := a.decode(req, &body); err != nil {
			return 0, nil, err
		}
		jobID = body.JobID
	}

	run := dispatch.Request{JobID: jobID, CallerID: callerID}

	if a.deps.DispatchQueue == nil {
		result, err := a.deps.Dispatcher.Dispatch(ctx, run)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusAccepted, result, nil
	}

	run, items, err := a.deps.Dispatcher.Check(ctx, run)
	if err != nil {
		return 0, nil, err
	}
	if err := a.deps.DispatchQueue.Send(ctx, run); err != nil {
		return 0, nil, fmt.Errorf("queue dispatch of job %s: %w", run.JobID, err)
	}

	a.logger.Info("dispatch queued", zap.String("job_id", run.JobID), zap.Int("items", items))
	return http.StatusAccepted, queuedDispatch{JobID: run.JobID, Dispatched: items, Queued: true}, nil
}

// DispatchEntry serves both ways the dispatch function is invoked: API Gateway
// proxy requests go to proxy, anything else is a direct dispatch event.
func DispatchEntry(proxy Handler, direct func(context.Context, json.RawMessage) (*dispatch.Result, error)) func(context.Context, json.RawMessage) (any, error) {
	return func(ctx context.Context, raw json.RawMessage) (any, error) {
		var envelope struct {
			HTTPMethod string `json:"httpMethod"`
		}
		if err := json.Unmarshal(raw, &envelope); err == nil && envelope.HTTPMethod != "" {
			var req events.APIGatewayProxyRequest
			if err := json.Unmarshal(raw, &req); err != nil {
				return nil, fmt.Errorf("decode proxy request: %w", err)
			}
			return proxy(ctx, req)
		}
		return direct(ctx, raw)
	}
}

func (a *API) createJobPosting(ctx context.Context, req events.APIGatewayProxyRequest, callerID string) (int, any, error) {
	var body createPostingRequest
	if err := a.decode(req, &body); err != nil {
		return 0, nil, err
	}

	posting := recruiting.NewJobPosting(a.newID(), callerID, a.now())
	posting.Title = strings.TrimSpace(body.Title)
	posting.Description = strings.TrimSpace(body.Description)
	posting.Location = strings.TrimSpace(body.Location)
	posting.Level = strings.TrimSpace(body.Level)
	posting.Skills = body.Skills
	posting.UpdatedAt = posting.CreatedAt

	if err := a.deps.Postings.Create(ctx, posting); err != nil {
		return 0, nil, err
	}

	a.logger.Info("job posting created", zap.String("job_id", posting.JobID))
	return http.StatusCreated, map[string]string{"job_id": posting.JobID}, nil
}

func (a *API) listJobPostings(ctx context.Context, _ events.APIGatewayProxyRequest, callerID string) (int, any, error) {
	postings, err := a.deps.Postings.ListByUser(ctx, callerID)
	if err != nil {
		return 0, nil, err
	}
	return http.StatusOK, map[string]any{"job_postings": postings}, nil
}

func (a *API) updateJobPosting(ctx context.Context, req events.APIGatewayProxyRequest, callerID string) (int, any, error) {
	var body updatePostingRequest
	if err := a.decode(req, &body); err != nil {
		return 0, nil, err
	}

	patch, err := body.patch()
	if err != nil {
		return 0, nil, err
	}

	jobID := recruiting.NormalizeJobID(body.JobID)
	posting, err := a.deps.Postings.Update(ctx, jobID, callerID, patch, a.now())
	if errors.Is(err, recruiting.ErrJobNotOwned) {
		return 0, nil, fmt.Errorf("%w: job posting %s", recruiting.ErrNotFound, jobID)
	}
	if err != nil {
		return 0, nil, err
	}

	return http.StatusOK, map[string]any{"job_posting": posting}, nil
}

func (r updatePostingRequest) patch() (recruiting.PostingPatch, error) {
	var patch recruiting.PostingPatch

	if r.Description != nil {
		description := strings.TrimSpace(*r.Description)
		if description == "" {
			return patch, fmt.Errorf("%w: description must not be empty", recruiting.ErrInvalidRequest)
		}
		patch.Description = &description
	}

	if r.Status != nil {
		status, err := recruiting.ParseJobStatus(*r.Status)
		if err != nil {
			return patch, err
		}
		patch.Status = &status
	}

	if patch.Empty() {
		return patch, fmt.Errorf("%w: at least one of description or status must be provided", recruiting.ErrInvalidRequest)
	}
	return patch, nil
}
