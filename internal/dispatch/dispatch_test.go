package dispatch

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/recruiting"
)

type fakeLister struct {
	keys     []string
	err      error
	prefixes []string
}

func (f *fakeLister) ListKeys(_ context.Context, prefix string) ([]string, error) {
	f.prefixes = append(f.prefixes, prefix)
	return f.keys, f.err
}

type fakeJobs struct {
	owner string
	err   error
	calls int
}

func (f *fakeJobs) Owns(_ context.Context, _ string, callerID string) (bool, error) {
	f.calls++
	if f.err != nil {
		return false, f.err
	}
	return f.owner != "" && f.owner == callerID, nil
}

type fakeInvoker struct {
	failOn   map[string]error
	payloads []Payload
}

func (f *fakeInvoker) InvokeAsync(_ context.Context, p Payload) error {
	f.payloads = append(f.payloads, p)
	return f.failOn[p.WorkItemKey]
}

func (f *fakeInvoker) keys() []string {
	keys := make([]string, 0, len(f.payloads))
	for _, p := range f.payloads {
		keys = append(keys, p.WorkItemKey)
	}
	return keys
}

type recordedWaits struct {
	delays []time.Duration
	err    error
}

func (r *recordedWaits) wait(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return r.err
}

func workItems(n int) []string {
	keys := make([]string, 0, n)
	for i := range n {
		keys = append(keys, fmt.Sprintf("uploads/JD#job-1/user-1#cv-%02d.pdf", i))
	}
	return keys
}

type fixture struct {
	lister  *fakeLister
	jobs    *fakeJobs
	invoker *fakeInvoker
	waits   *recordedWaits
	d       *Dispatcher
}

func newFixture(t *testing.T, keys []string) *fixture {
	t.Helper()

	f := &fixture{
		lister:  &fakeLister{keys: keys},
		jobs:    &fakeJobs{owner: "user-1"},
		invoker: &fakeInvoker{failOn: map[string]error{}},
		waits:   &recordedWaits{},
	}

	d, err := New(DefaultConfig(), Deps{
		Lister:  f.lister,
		Jobs:    f.jobs,
		Invoker: f.invoker,
		Logger:  zap.NewNop(),
	})
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	d.wait = f.waits.wait
	f.d = d

	return f
}

func TestPartition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		n     int
		size  int
		sizes []int
	}{
		{name: "empty", n: 0, size: 10, sizes: nil},
		{name: "single", n: 1, size: 10, sizes: []int{1}},
		{name: "exact", n: 20, size: 10, sizes: []int{10, 10}},
		{name: "remainder", n: 25, size: 10, sizes: []int{10, 10, 5}},
		{name: "batch of one", n: 3, size: 1, sizes: []int{1, 1, 1}},
		{name: "size larger than input", n: 4, size: 50, sizes: []int{4}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			items := workItems(tt.n)
			batches := Partition(items, tt.size)

			if want := (tt.n + tt.size - 1) / tt.size; len(batches) != want {
				t.Fatalf("expected %d batches, got %d", want, len(batches))
			}

			var sizes []int
			var joined []string
			for _, b := range batches {
				sizes = append(sizes, len(b))
				joined = append(joined, b...)
			}

			if !slices.Equal(sizes, tt.sizes) {
				t.Fatalf("expected sizes %v, got %v", tt.sizes, sizes)
			}

			if len(items) > 0 && !slices.Equal(joined, items) {
				t.Fatalf("concatenated batches do not reproduce the input")
			}
		})
	}
}

func TestPartitionBatchesDoNotOverlapOnAppend(t *testing.T) {
	t.Parallel()

	items := workItems(4)
	batches := Partition(items, 2)

	_ = append(batches[0], "intruder")

	if batches[1][0] != items[2] {
		t.Fatalf("appending to one batch overwrote the next one")
	}
}

func TestDispatchTwentyFiveItems(t *testing.T) {
	items := workItems(25)
	f := newFixture(t, items)

	result, err := f.d.Dispatch(context.Background(), Request{JobID: "job-1", CallerID: "user-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Dispatched != 25 || result.Batches != 3 || result.Failed != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}

	if !slices.Equal(f.invoker.keys(), items) {
		t.Fatalf("items were not dispatched exactly once in order: %v", f.invoker.keys())
	}

	for _, p := range f.invoker.payloads {
		if p.JobID != "job-1" || p.CallerID != "user-1" {
			t.Fatalf("unexpected payload: %+v", p)
		}
	}

	want := []time.Duration{DefaultInterBatchDelay, DefaultInterBatchDelay, DefaultFinalDelay}
	if !slices.Equal(f.waits.delays, want) {
		t.Fatalf("expected delays %v, got %v", want, f.waits.delays)
	}

	if !slices.Equal(f.lister.prefixes, []string{"uploads/JD#job-1/"}) {
		t.Fatalf("unexpected listing prefixes: %v", f.lister.prefixes)
	}
}

func TestDispatchSkipsDirectoryMarkers(t *testing.T) {
	f := newFixture(t, append([]string{"uploads/JD#job-1/"}, workItems(2)...))

	result, err := f.d.Dispatch(context.Background(), Request{JobID: "JD#job-1", CallerID: "user-1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Dispatched != 2 || len(f.invoker.payloads) != 2 {
		t.Fatalf("expected 2 dispatched items, got %+v", result)
	}

	if f.invoker.payloads[0].JobID != "job-1" {
		t.Fatalf("expected normalized job id, got %q", f.invoker.payloads[0].JobID)
	}
}

func TestDispatchNoWorkItems(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.d.Dispatch(context.Background(), Request{JobID: "job-1", CallerID: "user-1"})
	if !errors.Is(err, recruiting.ErrNoWorkItems) {
		t.Fatalf("expected ErrNoWorkItems, got %v", err)
	}

	if len(f.invoker.payloads) != 0 || len(f.waits.delays) != 0 {
		t.Fatalf("expected no invocations and no delays")
	}
}

func TestDispatchUnauthenticated(t *testing.T) {
	f := newFixture(t, workItems(3))

	_, err := f.d.Dispatch(context.Background(), Request{JobID: "job-1", CallerID: "  "})
	if !errors.Is(err, recruiting.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}

	if f.jobs.calls != 0 || len(f.lister.prefixes) != 0 || len(f.invoker.payloads) != 0 {
		t.Fatalf("expected no lookup, listing or invocation before authentication")
	}
}

func TestDispatchMissingJobID(t *testing.T) {
	f := newFixture(t, workItems(3))

	_, err := f.d.Dispatch(context.Background(), Request{CallerID: "user-1"})
	if !errors.Is(err, recruiting.ErrMissingJobID) {
		t.Fatalf("expected ErrMissingJobID, got %v", err)
	}

	if f.jobs.calls != 0 || len(f.invoker.payloads) != 0 {
		t.Fatalf("expected no lookup or invocation")
	}
}

func TestDispatchJobOwnedByAnotherCaller(t *testing.T) {
	f := newFixture(t, workItems(3))

	_, err := f.d.Dispatch(context.Background(), Request{JobID: "job-1", CallerID: "intruder"})
	if !errors.Is(err, recruiting.ErrJobNotOwned) {
		t.Fatalf("expected ErrJobNotOwned, got %v", err)
	}

	if len(f.lister.prefixes) != 0 || len(f.invoker.payloads) != 0 {
		t.Fatalf("expected no listing or invocation")
	}
}

func TestDispatchLookupError(t *testing.T) {
	f := newFixture(t, workItems(3))
	f.jobs.err = errors.New("throttled")

	_, err := f.d.Dispatch(context.Background(), Request{JobID: "job-1", CallerID: "user-1"})
	if err == nil || errors.Is(err, recruiting.ErrJobNotOwned) {
		t.Fatalf("expected unexpected lookup error, got %v", err)
	}

	if len(f.invoker.payloads) != 0 {
		t.Fatalf("expected no invocation")
	}
}

func TestDispatchListingError(t *testing.T) {
	f := newFixture(t, nil)
	f.lister.err = errors.New("access denied")

	_, err := f.d.Dispatch(context.Background(), Request{JobID: "job-1", CallerID: "user-1"})
	if err == nil || errors.Is(err, recruiting.ErrNoWorkItems) {
		t.Fatalf("expected listing error, got %v", err)
	}
}

func TestDispatchContinuesAfterInvocationFailure(t *testing.T) {
	items := workItems(12)
	f := newFixture(t, items)
	f.invoker.failOn[items[3]] = errors.New("rate exceeded")

	result, err := f.d.Dispatch(context.Background(), Request{JobID: "job-1", CallerID: "user-1"})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if result.Dispatched != len(items) || result.Failed != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	if !slices.Equal(f.invoker.keys(), items) {
		t.Fatalf("every item must get its attempt, got %v", f.invoker.keys())
	}
}

func TestDispatchStopsWhenContextEndsDuringDelay(t *testing.T) {
	f := newFixture(t, workItems(15))
	f.waits.err = context.DeadlineExceeded

	result, err := f.d.Dispatch(context.Background(), Request{JobID: "job-1", CallerID: "user-1"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}

	if result == nil || result.Dispatched != DefaultBatchSize {
		t.Fatalf("expected first batch to be reported, got %+v", result)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	deps := Deps{Lister: &fakeLister{}, Jobs: &fakeJobs{}, Invoker: &fakeInvoker{}}

	if _, err := New(Config{BatchSize: 0}, deps); err == nil {
		t.Fatalf("expected error for zero batch size")
	}

	if _, err := New(Config{BatchSize: 1, InterBatchDelay: -time.Second}, deps); err == nil {
		t.Fatalf("expected error for negative delay")
	}

	if _, err := New(DefaultConfig(), Deps{}); err == nil {
		t.Fatalf("expected error for missing deps")
	}
}

func TestDecodeRequest(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    Request
		wantErr bool
	}{
		{name: "job and caller", raw: `{"job_id":"job-1","caller_id":"user-1"}`, want: Request{JobID: "job-1", CallerID: "user-1"}},
		{name: "prefixed job id kept as sent", raw: `{"job_id":"JD#job-1","caller_id":"user-1"}`, want: Request{JobID: "JD#job-1", CallerID: "user-1"}},
		{name: "missing fields", raw: `{}`, want: Request{}},
		{name: "malformed", raw: `{"job_id":`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := DecodeRequest([]byte(tt.raw))
			if tt.wantErr {
				if !errors.Is(err, recruiting.ErrInvalidRequest) {
					t.Fatalf("expected ErrInvalidRequest, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestHandleEventDispatches(t *testing.T) {
	f := newFixture(t, workItems(11))

	result, err := f.d.HandleEvent(context.Background(), []byte(`{"job_id":"job-1","caller_id":"user-1"}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if result.Dispatched != 11 || result.Batches != 2 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if len(f.invoker.payloads) != 11 {
		t.Fatalf("expected 11 invocations, got %d", len(f.invoker.payloads))
	}
}

func TestHandleEventWithoutCaller(t *testing.T) {
	f := newFixture(t, workItems(3))

	_, err := f.d.HandleEvent(context.Background(), []byte(`{"job_id":"job-1"}`))
	if !errors.Is(err, recruiting.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if len(f.lister.prefixes) != 0 {
		t.Fatalf("expected no listing")
	}
}

func TestCheckRunsPreconditionsOnly(t *testing.T) {
	f := newFixture(t, workItems(25))

	req, n, err := f.d.Check(context.Background(), Request{JobID: "JD#job-1", CallerID: " user-1 "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if req.JobID != "job-1" || req.CallerID != "user-1" || n != 25 {
		t.Fatalf("unexpected check result: %+v, %d", req, n)
	}
	if len(f.invoker.payloads) != 0 || len(f.waits.delays) != 0 {
		t.Fatalf("expected no invocations and no delays")
	}

	f.lister.keys = nil
	if _, _, err := f.d.Check(context.Background(), Request{JobID: "job-1", CallerID: "user-1"}); !errors.Is(err, recruiting.ErrNoWorkItems) {
		t.Fatalf("expected ErrNoWorkItems, got %v", err)
	}
}

func TestCheckRejectsBeforeListing(t *testing.T) {
	f := newFixture(t, workItems(3))

	if _, _, err := f.d.Check(context.Background(), Request{JobID: "job-1"}); !errors.Is(err, recruiting.ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
	if _, _, err := f.d.Check(context.Background(), Request{JobID: "job-1", CallerID: "intruder"}); !errors.Is(err, recruiting.ErrJobNotOwned) {
		t.Fatalf("expected ErrJobNotOwned, got %v", err)
	}

	if f.jobs.calls != 1 || len(f.lister.prefixes) != 0 {
		t.Fatalf("expected one ownership lookup and no listing, got %d lookups and %v", f.jobs.calls, f.lister.prefixes)
	}
}
