// Package invoke enqueues asynchronous Lambda invocations: processor runs for
// dispatched CVs and background dispatch runs.
package invoke

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/lambda"
	"github.com/aws/aws-sdk-go-v2/service/lambda/types"
	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/dispatch"
	"github.com/spigell/cv-screener/internal/logger"
)

// API is the subset of the Lambda client the invoker needs.
type API interface {
	Invoke(ctx context.Context, params *lambda.InvokeInput, optFns ...func(*lambda.Options)) (*lambda.InvokeOutput, error)
}

// Lambda invokes a function with the Event invocation type: the call returns
// once Lambda has queued the event, before the function runs.
type Lambda struct {
	function string
	api      API
	logger   *zap.Logger
}

func NewLambda(function string, api API, log *zap.Logger) (*Lambda, error) {
	if function == "" {
		return nil, errors.New("function name is required")
	}
	if api == nil {
		return nil, errors.New("lambda client is required")
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Lambda{
		function: function,
		api:      api,
		logger:   log.With(zap.String(logger.FieldFunction, function)),
	}, nil
}

// InvokeAsync queues one processor run for a dispatched work item.
func (l *Lambda) InvokeAsync(ctx context.Context, payload dispatch.Payload) error {
	if err := l.Send(ctx, payload); err != nil {
		return err
	}

	l.logger.Debug("event queued", zap.String(logger.FieldWorkItem, payload.WorkItemKey))
	return nil
}

// Send queues an arbitrary JSON event for the function.
func (l *Lambda) Send(ctx context.Context, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	out, err := l.api.Invoke(ctx, &lambda.InvokeInput{
		FunctionName:   aws.String(l.function),
		InvocationType: types.InvocationTypeEvent,
		Payload:        body,
	})
	if err != nil {
		return fmt.Errorf("invoke %s: %w", l.function, err)
	}

	// Event invocations answer 202 when queued.
	if out.StatusCode < 200 || out.StatusCode > 299 {
		return fmt.Errorf("invoke %s: unexpected status %d", l.function, out.StatusCode)
	}
	if out.FunctionError != nil {
		return fmt.Errorf("invoke %s: function error %s", l.function, aws.ToString(out.FunctionError))
	}

	return nil
}
