package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/logger"
	"github.com/spigell/cv-screener/internal/metrics"
	"github.com/spigell/cv-screener/internal/recruiting"
)

type handlerFunc func(ctx context.Context, req events.APIGatewayProxyRequest, callerID string) (int, any, error)

func (a *API) wrap(name string, fn handlerFunc) Handler {
	log := a.logger.With(zap.String(logger.FieldFunction, name))

	return func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		if req.HTTPMethod == http.MethodOptions {
			return a.respond(name, http.StatusNoContent, nil), nil
		}

		callerID := CallerID(req)
		if callerID == "" {
			return a.fail(log, name, recruiting.ErrUnauthenticated), nil
		}

		status, body, err := fn(ctx, req, callerID)
		if err != nil {
			return a.fail(log.With(zap.String(logger.FieldCallerID, callerID)), name, err), nil
		}
		return a.respond(name, status, body), nil
	}
}

// CallerID returns the Cognito "sub" claim forwarded by the authorizer.
func CallerID(req events.APIGatewayProxyRequest) string {
	claims, ok := req.RequestContext.Authorizer["claims"].(map[string]any)
	if !ok {
		return ""
	}
	sub, _ := claims["sub"].(string)
	return strings.TrimSpace(sub)
}

// StatusFor maps an error onto the HTTP status it is reported with.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, recruiting.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, recruiting.ErrMissingJobID), errors.Is(err, recruiting.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, recruiting.ErrJobNotOwned):
		return http.StatusForbidden
	case errors.Is(err, recruiting.ErrNotFound), errors.Is(err, recruiting.ErrNoWorkItems):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) fail(log *zap.Logger, name string, err error) events.APIGatewayProxyResponse {
	status := StatusFor(err)

	message := err.Error()
	if status >= http.StatusInternalServerError {
		log.Error("request failed", zap.Error(err))
		message = "internal server error"
	} else {
		log.Info("request rejected", zap.Int("status", status), zap.Error(err))
	}

	return a.respond(name, status, map[string]string{"error": message})
}

func (a *API) respond(name string, status int, body any) events.APIGatewayProxyResponse {
	metrics.HTTPRequestsTotal.WithLabelValues(name, strconv.Itoa(status)).Inc()

	resp := events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers:    a.headers(),
	}
	if body == nil {
		return resp
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		resp.StatusCode = http.StatusInternalServerError
		resp.Body = `{"error":"internal server error"}`
		return resp
	}
	resp.Body = string(encoded)
	return resp
}

func (a *API) headers() map[string]string {
	return map[string]string{
		"Content-Type":                 "application/json",
		"Access-Control-Allow-Origin":  a.cfg.AllowedOrigin,
		"Access-Control-Allow-Headers": "Content-Type,Authorization",
		"Access-Control-Allow-Methods": "GET,POST,PUT,DELETE,OPTIONS",
	}
}

// decode parses the JSON body into dst and validates it.
func (a *API) decode(req events.APIGatewayProxyRequest, dst any) error {
	body := req.Body
	if req.IsBase64Encoded {
		raw, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return fmt.Errorf("%w: body is not valid base64", recruiting.ErrInvalidRequest)
		}
		body = string(raw)
	}

	if strings.TrimSpace(body) == "" {
		return fmt.Errorf("%w: request body is required", recruiting.ErrInvalidRequest)
	}
	if err := json.Unmarshal([]byte(body), dst); err != nil {
		return fmt.Errorf("%w: invalid JSON in request body", recruiting.ErrInvalidRequest)
	}

	return a.check(dst)
}

func (a *API) check(v any) error {
	if err := a.validate.Struct(v); err != nil {
		var fields validator.ValidationErrors
		if errors.As(err, &fields) && len(fields) > 0 {
			f := fields[0]
			return fmt.Errorf("%w: field %s failed %s validation", recruiting.ErrInvalidRequest, f.Field(), f.Tag())
		}
		return fmt.Errorf("%w: %v", recruiting.ErrInvalidRequest, err)
	}
	return nil
}

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func newID() string {
	return uuid.NewString()
}

func pathJobID(req events.APIGatewayProxyRequest) string {
	return recruiting.NormalizeJobID(req.PathParameters["job_id"])
}

// ownedJob reads the job id from the path and checks the caller owns it.
func (a *API) ownedJob(ctx context.Context, req events.APIGatewayProxyRequest, callerID string) (string, error) {
	jobID := pathJobID(req)
	if jobID == "" {
		jobID = recruiting.NormalizeJobID(req.QueryStringParameters["job_id"])
	}
	if jobID == "" {
		return "", recruiting.ErrMissingJobID
	}

	owned, err := a.deps.Postings.Owns(ctx, jobID, callerID)
	if err != nil {
		return "", err
	}
	if !owned {
		return "", recruiting.ErrJobNotOwned
	}
	return jobID, nil
}

func pathCVID(req events.APIGatewayProxyRequest) (string, error) {
	cvID := strings.TrimSpace(req.PathParameters["cv_id"])
	if cvID == "" {
		return "", fmt.Errorf("%w: cv_id is required", recruiting.ErrInvalidRequest)
	}
	return cvID, nil
}
