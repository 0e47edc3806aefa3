// Package dispatch fans CV processing out to the downstream processor in
// fixed-size batches spaced in time, so the generative AI quota ("N requests
// per window") is respected without a token bucket.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/discovery"
	"github.com/spigell/cv-screener/internal/logger"
	"github.com/spigell/cv-screener/internal/metrics"
	"github.com/spigell/cv-screener/internal/recruiting"
	"github.com/spigell/cv-screener/internal/utils"
)

const (
	DefaultBatchSize       = 10
	DefaultInterBatchDelay = 60 * time.Second
	DefaultFinalDelay      = 2 * time.Second
)

// Payload is what the processor receives for one work item.
type Payload struct {
	WorkItemKey string `json:"work_item_key" mapstructure:"work_item_key"`
	JobID       string `json:"job_id" mapstructure:"job_id"`
	CallerID    string `json:"caller_id" mapstructure:"caller_id"`
}

// Lister returns every object key under a prefix in listing order.
type Lister interface {
	ListKeys(ctx context.Context, prefix string) ([]string, error)
}

// JobLookup reports whether jobID exists and belongs to callerID.
type JobLookup interface {
	Owns(ctx context.Context, jobID, callerID string) (bool, error)
}

// Invoker enqueues one processor invocation without waiting for its result.
// A returned error means the invocation was not enqueued.
type Invoker interface {
	InvokeAsync(ctx context.Context, payload Payload) error
}

type Config struct {
	BatchSize       int           `mapstructure:"batch-size"`
	InterBatchDelay time.Duration `mapstructure:"inter-batch-delay"`
	FinalDelay      time.Duration `mapstructure:"final-delay"`
	// UploadPrefix is the bucket prefix job-scoped CV folders live under.
	UploadPrefix string `mapstructure:"-"`
}

// DefaultConfig mirrors the free tier quota of the scoring model.
func DefaultConfig() Config {
	return Config{
		BatchSize:       DefaultBatchSize,
		InterBatchDelay: DefaultInterBatchDelay,
		FinalDelay:      DefaultFinalDelay,
		UploadPrefix:    recruiting.DefaultUploadPrefix,
	}
}

func (c Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.InterBatchDelay < 0 || c.FinalDelay < 0 {
		return errors.New("dispatch delays must not be negative")
	}
	return nil
}

type Deps struct {
	Lister  Lister
	Jobs    JobLookup
	Invoker Invoker
	// Screen filters listed keys before they become work items. Defaults to
	// dropping directory markers.
	Screen *discovery.Pipeline
	Logger *zap.Logger
}

// Request identifies the job to analyse and who is asking. It is also the
// event the dispatch function receives when invoked directly.
type Request struct {
	JobID    string `json:"job_id"`
	CallerID string `json:"caller_id"`
}

// DecodeRequest reads a direct invocation event.
func DecodeRequest(raw json.RawMessage) (Request, error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return Request{}, fmt.Errorf("%w: dispatch event: %v", recruiting.ErrInvalidRequest, err)
	}
	return req, nil
}

// Result reports one dispatch run. Dispatched counts attempts, not
// confirmed processing.
type Result struct {
	JobID      string `json:"job_id"`
	Dispatched int    `json:"dispatched"`
	Failed     int    `json:"failed"`
	Batches    int    `json:"batches"`
}

type Dispatcher struct {
	cfg     Config
	lister  Lister
	jobs    JobLookup
	invoker Invoker
	screen  *discovery.Pipeline
	logger  *zap.Logger

	wait func(ctx context.Context, d time.Duration) error
}

func New(cfg Config, deps Deps) (*Dispatcher, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Lister == nil || deps.Jobs == nil || deps.Invoker == nil {
		return nil, errors.New("dispatcher requires a lister, a job lookup and an invoker")
	}

	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	screen := deps.Screen
	if screen == nil {
		screen = discovery.Default(nil, log)
	}

	return &Dispatcher{
		cfg:     cfg,
		lister:  deps.Lister,
		jobs:    deps.Jobs,
		invoker: deps.Invoker,
		screen:  screen,
		logger:  log.With(zap.String("component", "dispatcher")),
		wait:    utils.WaitFor,
	}, nil
}

// Check runs every dispatch precondition without invoking anything. It
// returns the normalised request and the number of work items found.
func (d *Dispatcher) Check(ctx context.Context, req Request) (Request, int, error) {
	req, items, err := d.prepare(ctx, req)
	if err != nil {
		return Request{}, 0, err
	}
	return req, len(items), nil
}

// HandleEvent serves a direct invocation of the dispatch function.
func (d *Dispatcher) HandleEvent(ctx context.Context, raw json.RawMessage) (*Result, error) {
	req, err := DecodeRequest(raw)
	if err != nil {
		return nil, err
	}
	return d.Dispatch(ctx, req)
}

// Dispatch validates the request, discovers the job's CVs and invokes the
// processor once per CV. Per-item invocation failures are logged and do not
// fail the run.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*Result, error) {
	req, items, err := d.prepare(ctx, req)
	if err != nil {
		return nil, err
	}

	jobID, callerID := req.JobID, req.CallerID
	log := logger.ForJob(d.logger, jobID, callerID)

	batches := Partition(items, d.cfg.BatchSize)
	log.Info("dispatching cvs",
		zap.Int("items", len(items)),
		zap.Int("batches", len(batches)),
		zap.Int("batch_size", d.cfg.BatchSize),
	)

	result := &Result{JobID: jobID, Batches: len(batches)}
	for i, batch := range batches {
		log.Info("processing batch", zap.Int("batch", i+1), zap.Int("size", len(batch)))

		for _, key := range batch {
			result.Dispatched++
			d.invoke(ctx, log, Payload{WorkItemKey: key, JobID: jobID, CallerID: callerID}, result)
		}
		metrics.DispatchBatchesTotal.Inc()

		delay := d.cfg.InterBatchDelay
		if i == len(batches)-1 {
			delay = d.cfg.FinalDelay
		} else {
			log.Info("waiting before next batch", zap.Duration("delay", delay))
		}

		if err := d.wait(ctx, delay); err != nil {
			return result, fmt.Errorf("waiting after batch %d: %w", i+1, err)
		}
	}

	log.Info("all cvs dispatched",
		zap.Int("dispatched", result.Dispatched),
		zap.Int("failed", result.Failed),
	)

	return result, nil
}

// prepare checks the caller, the job id, ownership and the work list, in that order.
func (d *Dispatcher) prepare(ctx context.Context, req Request) (Request, []string, error) {
	callerID := strings.TrimSpace(req.CallerID)
	if callerID == "" {
		return Request{}, nil, recruiting.ErrUnauthenticated
	}

	jobID := recruiting.NormalizeJobID(req.JobID)
	if jobID == "" {
		return Request{}, nil, recruiting.ErrMissingJobID
	}

	owned, err := d.jobs.Owns(ctx, jobID, callerID)
	if err != nil {
		return Request{}, nil, fmt.Errorf("check job ownership: %w", err)
	}
	if !owned {
		return Request{}, nil, recruiting.ErrJobNotOwned
	}

	items, err := d.discover(ctx, jobID)
	if err != nil {
		return Request{}, nil, err
	}

	return Request{JobID: jobID, CallerID: callerID}, items, nil
}

func (d *Dispatcher) discover(ctx context.Context, jobID string) ([]string, error) {
	prefix := recruiting.JobUploadPrefix(d.cfg.UploadPrefix, jobID)

	keys, err := d.lister.ListKeys(ctx, prefix)
	if err != nil {
		return nil, fmt.Errorf("list cvs under %s: %w", prefix, err)
	}

	items := d.screen.Run(keys)
	if len(items) == 0 {
		return nil, fmt.Errorf("%w under %s", recruiting.ErrNoWorkItems, prefix)
	}

	return items, nil
}

func (d *Dispatcher) invoke(ctx context.Context, log *zap.Logger, payload Payload, result *Result) {
	if err := d.invoker.InvokeAsync(ctx, payload); err != nil {
		result.Failed++
		metrics.DispatchItemsTotal.WithLabelValues(metrics.StatusFailed).Inc()
		log.Warn("processor invocation failed; skipping",
			zap.String(logger.FieldWorkItem, payload.WorkItemKey),
			zap.Error(err),
		)
		return
	}

	metrics.DispatchItemsTotal.WithLabelValues(metrics.StatusInvoked).Inc()
	log.Debug("processor invoked", zap.String(logger.FieldWorkItem, payload.WorkItemKey))
}

// Partition splits items into consecutive batches of at most size elements.
// Batches share the backing array with items but cannot append into each other.
func Partition(items []string, size int) [][]string {
	if size <= 0 || len(items) == 0 {
		return nil
	}

	batches := make([][]string, 0, (len(items)+size-1)/size)
	for lo := 0; lo < len(items); lo += size {
		hi := min(lo+size, len(items))
		batches = append(batches, items[lo:hi:hi])
	}
	return batches
}
