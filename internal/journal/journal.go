// Package journal records the outcome of every fetch so the API and the
// crawl runner can report history.
package journal

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"crawlfetch/internal/platform/httpclient"
	"crawlfetch/internal/shared"
)

// DefaultLimit bounds Recent when the caller passes a non-positive limit.
const DefaultLimit = 50

// MaxLimit caps Recent.
const MaxLimit = 1000

// Entry is one recorded fetch.
type Entry struct {
	ID         string    `json:"id"`
	URL        string    `json:"url"`
	FinalURL   string    `json:"finalUrl,omitempty"`
	Method     string    `json:"method"`
	Status     int       `json:"status"`
	OK         bool      `json:"ok"`
	Type       string    `json:"type,omitempty"`
	Calls      int       `json:"calls"`
	DurationMS int64     `json:"durationMs"`
	ErrorKind  string    `json:"errorKind,omitempty"`
	Error      string    `json:"error,omitempty"`
	FetchedAt  time.Time `json:"fetchedAt"`
}

// Journal stores entries. Implementations are safe for concurrent use.
type Journal interface {
	Record(ctx context.Context, entries ...Entry) error
	// Recent returns the newest entries first.
	Recent(ctx context.Context, limit int) ([]Entry, error)
	// Get returns shared.ErrNotFound for an unknown id.
	Get(ctx context.Context, id string) (Entry, error)
	Ping(ctx context.Context) error
	Close() error
}

// NewEntry builds an entry from the outcome of Client.Fetch.
func NewEntry(req *httpclient.Request, resp *httpclient.Response, err error, at time.Time) Entry {
	e := Entry{ID: uuid.NewString(), FetchedAt: at.UTC()}
	if req != nil {
		e.URL = req.URL
		e.Method = req.Method
	}
	if e.Method == "" {
		e.Method = httpclient.DefaultMethod
	}

	var fe *httpclient.FetchError
	if errors.As(err, &fe) {
		if fe.Request != nil {
			e.URL, e.Method = fe.Request.URL, fe.Request.Method
		}
		if resp == nil {
			resp = fe.Response
		}
		e.Calls = fe.Stats.Calls
		e.DurationMS = fe.Stats.Elapsed.Milliseconds()
	}
	if resp != nil {
		e.FinalURL = resp.URL
		e.Status = resp.Status
		e.OK = resp.OK && err == nil
		e.Type = string(resp.Type)
		if err == nil {
			e.Calls = resp.Stats.Calls
			e.DurationMS = resp.Stats.Elapsed.Milliseconds()
		}
	}
	if err != nil {
		e.ErrorKind = shared.KindOf(err).String()
		e.Error = err.Error()
	}
	return e
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return min(limit, MaxLimit)
}

func assignIDs(entries []Entry) {
	for i := range entries {
		if entries[i].ID == "" {
			entries[i].ID = uuid.NewString()
		}
		if entries[i].FetchedAt.IsZero() {
			entries[i].FetchedAt = time.Now().UTC()
		}
	}
}

// Nop discards entries.
type Nop struct{}

func (Nop) Record(context.Context, ...Entry) error       { return nil }
func (Nop) Recent(context.Context, int) ([]Entry, error) { return nil, nil }
func (Nop) Get(context.Context, string) (Entry, error) {
	return Entry{}, shared.ErrNotFound
}
func (Nop) Ping(context.Context) error { return nil }
func (Nop) Close() error               { return nil }
