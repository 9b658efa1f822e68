package ingest

import (
	"context"
	"log/slog"

	"github.com/roach88/runcache/internal/run"
)

// DefaultBatchSize is the maximum number of runs per SubmitRuns call.
const DefaultBatchSize = 64

// Submitter accepts batches of runs. Implemented by *cache.Coordinator.
type Submitter interface {
	SubmitRuns(ctx context.Context, runs []run.Run) []run.WriteResult
}

// BatchResult is the outcome of one submitted batch.
type BatchResult struct {
	BatchID string
	Results []run.WriteResult
}

// Failed returns the number of runs the store did not persist.
func (b BatchResult) Failed() int {
	n := 0
	for _, r := range b.Results {
		if r.Err != nil {
			n++
		}
	}
	return n
}

// Ingester batches reported runs into a Submitter.
//
// Thread-safety model:
//   - Enqueue(): safe from any goroutine
//   - Run() and Drain(): must not be called concurrently with each other
type Ingester struct {
	sub       Submitter
	clock     *Clock
	queue     *reportQueue
	batchIDs  BatchIDGenerator
	batchSize int
	capacity  int
	onBatch   func(BatchResult)
}

// Option configures an Ingester.
type Option func(*Ingester)

// WithBatchSize caps the number of runs per batch. Values below 1 are ignored.
func WithBatchSize(n int) Option {
	return func(in *Ingester) {
		if n > 0 {
			in.batchSize = n
		}
	}
}

// WithQueueCapacity presizes the report queue. The queue still grows past it.
func WithQueueCapacity(n int) Option {
	return func(in *Ingester) {
		if n > 0 {
			in.capacity = n
		}
	}
}

// WithClock sets the InsertionSeq source, e.g. NewClockAt(store.MaxInsertionSeq).
func WithClock(c *Clock) Option {
	return func(in *Ingester) {
		in.clock = c
	}
}

// WithBatchIDs sets the batch id generator. Default: UUIDv7Generator.
func WithBatchIDs(g BatchIDGenerator) Option {
	return func(in *Ingester) {
		in.batchIDs = g
	}
}

// WithResultHook registers fn to be called after every batch.
// fn runs on the consuming goroutine.
func WithResultHook(fn func(BatchResult)) Option {
	return func(in *Ingester) {
		in.onBatch = fn
	}
}

// New creates an Ingester feeding sub.
func New(sub Submitter, opts ...Option) *Ingester {
	in := &Ingester{
		sub:       sub,
		clock:     NewClock(),
		batchIDs:  UUIDv7Generator{},
		batchSize: DefaultBatchSize,
	}
	for _, opt := range opts {
		opt(in)
	}
	if in.capacity == 0 {
		in.capacity = in.batchSize
	}
	in.queue = newReportQueue(in.clock, in.capacity)
	return in
}

// Enqueue stamps a report with the next InsertionSeq and queues it.
// Returns the stamped run and false if the ingester has been stopped.
func (in *Ingester) Enqueue(r Report) (run.Run, bool) {
	return in.queue.Enqueue(r.Run())
}

// Pending returns the number of queued runs.
func (in *Ingester) Pending() int {
	return in.queue.Len()
}

// Run consumes the queue until ctx is cancelled or Stop is called.
// Runs still queued when Stop is called are submitted before Run returns.
func (in *Ingester) Run(ctx context.Context) error {
	slog.Info("ingester starting", "batch_size", in.batchSize)

	for {
		if batch := in.queue.TakeBatch(in.batchSize); batch != nil {
			in.submit(ctx, batch)
			continue
		}

		select {
		case <-ctx.Done():
			slog.Info("ingester stopping: context cancelled", "pending", in.queue.Len())
			in.queue.Close()
			return ctx.Err()

		case <-in.queue.Wait():
			// The signal channel is closed by Stop; exit once drained.
			if in.queue.IsClosed() && in.queue.Len() == 0 {
				slog.Info("ingester stopping: queue closed")
				return nil
			}
		}
	}
}

// Drain submits everything currently queued and returns the per-run
// results in queue order. It does not wait for new reports.
func (in *Ingester) Drain(ctx context.Context) ([]run.WriteResult, error) {
	var out []run.WriteResult
	for {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		batch := in.queue.TakeBatch(in.batchSize)
		if batch == nil {
			return out, nil
		}
		out = append(out, in.submit(ctx, batch).Results...)
	}
}

// Stop closes the queue. A running Run loop returns after the backlog.
func (in *Ingester) Stop() {
	in.queue.Close()
}

func (in *Ingester) submit(ctx context.Context, batch []run.Run) BatchResult {
	id := in.batchIDs.Generate()

	slog.Debug("submitting batch",
		"batch_id", id,
		"runs", len(batch),
		"first_seq", batch[0].InsertionSeq,
		"last_seq", batch[len(batch)-1].InsertionSeq,
	)

	res := BatchResult{BatchID: id, Results: in.sub.SubmitRuns(ctx, batch)}

	for _, r := range res.Results {
		if r.Err != nil {
			slog.Warn("run not persisted",
				"batch_id", id,
				"run", r.Run.ID.String(),
				"seq", r.Run.InsertionSeq,
				"error", r.Err,
			)
		}
	}

	slog.Info("batch submitted",
		"batch_id", id,
		"runs", len(batch),
		"failed", res.Failed(),
	)

	if in.onBatch != nil {
		in.onBatch(res)
	}
	return res
}
