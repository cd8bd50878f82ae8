// Package notify reports failed crawl results to operators.
package notify

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"crawlfetch/internal/crawl"
	"crawlfetch/internal/shared"
)

// maxLines bounds the number of failures listed in one message.
const maxLines = 20

// Nop drops notifications.
type Nop struct{}

func (Nop) NotifyFailures(context.Context, []crawl.Result) error { return nil }

// Throttle allows at most one notification per interval.
type Throttle struct {
	mu    sync.Mutex
	last  time.Time
	every time.Duration
	now   func() time.Time
}

// NewThrottle creates a throttle with the given interval. Zero disables it.
func NewThrottle(every time.Duration) *Throttle {
	return &Throttle{every: every, now: time.Now}
}

// Allow reports whether a notification may be sent now and records it.
func (t *Throttle) Allow() bool {
	if t == nil || t.every <= 0 {
		return true
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	if !t.last.IsZero() && now.Sub(t.last) < t.every {
		return false
	}
	t.last = now
	return true
}

// Summary renders failed results as plain text.
func Summary(failed []crawl.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "crawl: %d failed\n", len(failed))
	for i, r := range failed {
		if i == maxLines {
			fmt.Fprintf(&b, "... and %d more\n", len(failed)-maxLines)
			break
		}
		b.WriteString(line(r))
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func line(r crawl.Result) string {
	u := r.Entry.URL
	if u == "" && r.Request != nil {
		u = r.Request.URL
	}
	switch {
	case r.Err != nil:
		return fmt.Sprintf("%s %s: %s", shared.KindOf(r.Err), u, r.Err)
	case r.Response != nil:
		return fmt.Sprintf("HTTP %d %s", r.Response.Status, u)
	default:
		return "no response " + u
	}
}
