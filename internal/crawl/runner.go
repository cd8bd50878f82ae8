// Package crawl fetches batches of requests through a host-keyed worker
// pool, records every outcome in the journal and reports failures.
package crawl

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"crawlfetch/internal/journal"
	"crawlfetch/internal/platform/httpclient"
)

// ErrPoolClosed is returned by Submit after Close.
var ErrPoolClosed = errors.New("crawl pool closed")

// Fetcher performs one dispatch. *httpclient.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, req *httpclient.Request) (*httpclient.Response, error)
}

// Notifier receives the failed results of a run.
type Notifier interface {
	NotifyFailures(ctx context.Context, failed []Result) error
}

// Result is the outcome of one request of a run.
type Result struct {
	Request  *httpclient.Request
	Response *httpclient.Response
	Err      error
	Entry    journal.Entry
}

// Failed reports whether the request ended with an error or a non-2xx status.
func (r Result) Failed() bool {
	return r.Err != nil || r.Response == nil || !r.Response.OK
}

// Runner executes crawl runs.
type Runner struct {
	fetcher  Fetcher
	pool     *Pool
	journal  journal.Journal
	notifier Notifier
	log      *slog.Logger
	now      func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithJournal records every result.
func WithJournal(j journal.Journal) Option {
	return func(r *Runner) {
		if j != nil {
			r.journal = j
		}
	}
}

// WithNotifier reports failed results after each run.
func WithNotifier(n Notifier) Option {
	return func(r *Runner) { r.notifier = n }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) {
		if l != nil {
			r.log = l
		}
	}
}

// WithClock overrides the time source used for journal timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRunner creates a runner that submits work to pool.
func NewRunner(f Fetcher, pool *Pool, opts ...Option) *Runner {
	r := &Runner{
		fetcher: f,
		pool:    pool,
		journal: journal.Nop{},
		log:     slog.Default(),
		now:     time.Now,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Run fetches reqs and returns results in input order. Requests to the same
// host are fetched one after another.
func (r *Runner) Run(ctx context.Context, reqs []*httpclient.Request) []Result {
	results := make([]Result, len(reqs))
	var wg sync.WaitGroup
	for i, req := range reqs {
		results[i].Request = req
		if req == nil {
			results[i].Err = errors.New("nil request")
			continue
		}
		wg.Add(1)
		i, req := i, req
		err := r.pool.Submit(ctx, Job{
			Key: HostKey(req.URL),
			Run: func(ctx context.Context) {
				defer wg.Done()
				results[i] = r.fetchOne(ctx, req)
			},
		})
		if err != nil {
			wg.Done()
			results[i].Err = err
		}
	}
	wg.Wait()

	entries := make([]journal.Entry, 0, len(results))
	var failed []Result
	for i := range results {
		if results[i].Entry.ID == "" {
			results[i].Entry = journal.NewEntry(results[i].Request, results[i].Response, results[i].Err, r.now())
		}
		entries = append(entries, results[i].Entry)
		if results[i].Failed() {
			failed = append(failed, results[i])
		}
	}
	if err := r.journal.Record(ctx, entries...); err != nil {
		r.log.Error("journal record failed", "entries", len(entries), "error", err)
	}

	r.log.Info("crawl finished", "requests", len(reqs), "failed", len(failed))
	if len(failed) > 0 && r.notifier != nil {
		if err := r.notifier.NotifyFailures(ctx, failed); err != nil {
			r.log.Warn("failure notification not sent", "error", err)
		}
	}
	return results
}

func (r *Runner) fetchOne(ctx context.Context, req *httpclient.Request) Result {
	res := Result{Request: req}
	if err := ctx.Err(); err != nil {
		res.Err = err
	} else {
		res.Response, res.Err = r.fetcher.Fetch(ctx, req)
	}
	res.Entry = journal.NewEntry(req, res.Response, res.Err, r.now())
	return res
}
