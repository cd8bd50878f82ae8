// Package retry provides the retry policy and backoff schedule used by the
// fetch dispatcher.
//
// Policy:
//   - a response is retried when it is not ok, its status is one of
//     408, 409, 425, 500, 502, 503, 504 and the retry budget is not spent
//   - refused connections, redirect loops, DNS failures and a disconnected
//     network are never retried
//   - a hung-up connection is retried exactly once, whatever the budget
//   - any other error is retried while the budget lasts
//
// Backoff:
//
//	b, _ := retry.NewBackoff(retry.DefaultConfig())
//	for ... {
//	    if decision.Retrying() {
//	        if err := b.Wait(ctx, b.Next()); err != nil {
//	            return err
//	        }
//	    }
//	}
//
// The delays double from InitialDelay (1s) and stop growing at MaxDelay (5s).
// Config.After replaces the timer in tests.
package retry
