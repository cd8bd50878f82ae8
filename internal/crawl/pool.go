package crawl

import (
	"context"
	"hash/fnv"
	"net/url"
	"strings"
	"sync"
)

// Job is one unit of work for the pool. Key decides the worker.
type Job struct {
	Key string
	Run func(ctx context.Context)
}

type ctxJob struct {
	ctx context.Context
	job Job
}

// Pool routes jobs to a fixed set of workers. Jobs sharing a key run on the
// same worker in submission order.
type Pool struct {
	workers int
	chans   []chan ctxJob
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool
}

// NewPool starts workers goroutines, each with a queue of size queue.
func NewPool(workers, queue int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queue < 0 {
		queue = 0
	}
	p := &Pool{workers: workers, chans: make([]chan ctxJob, workers)}
	for i := 0; i < workers; i++ {
		p.chans[i] = make(chan ctxJob, queue)
		p.wg.Add(1)
		go p.worker(p.chans[i])
	}
	return p
}

// Submit enqueues job. It blocks while the worker queue is full and returns
// ctx.Err() if ctx ends first, or ErrPoolClosed after Close.
func (p *Pool) Submit(ctx context.Context, job Job) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolClosed
	}
	select {
	case p.chans[p.index(job.Key)] <- ctxJob{ctx: ctx, job: job}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops accepting jobs and waits for queued ones to finish.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, ch := range p.chans {
		close(ch)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// Workers returns the number of workers.
func (p *Pool) Workers() int { return p.workers }

func (p *Pool) worker(in <-chan ctxJob) {
	defer p.wg.Done()
	for item := range in {
		item.job.Run(item.ctx)
	}
}

func (p *Pool) index(key string) int {
	if key == "" {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return int(h.Sum32() % uint32(p.workers))
}

// HostKey returns the lowercased host of rawURL, or rawURL itself when it
// does not parse.
func HostKey(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return strings.ToLower(u.Hostname())
}
