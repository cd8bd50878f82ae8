// Package scheduler runs periodic jobs on cron schedules (seconds field
// enabled, github.com/robfig/cron/v3) or fixed intervals.
//
// Jobs receive the scheduler context, optionally bounded by a per-job
// timeout. Panics are recovered and reported as job errors. Overlapping runs
// follow the job's OverlapPolicy:
//   - AllowOverlap: runs may overlap (default)
//   - SkipIfRunning: a run is dropped while the previous one is active
//   - DelayIfRunning: a run waits for the previous one
//
// The crawl service registers one job per configured schedule:
//
//	s := scheduler.NewWithContext(ctx, scheduler.Config{Logger: log})
//	if _, err := s.AddCrawlJob("0 */5 * * * *", runner, urls, httpclient.Request{}); err != nil {
//		return err
//	}
//	s.Start()
//	defer s.Stop()
package scheduler
