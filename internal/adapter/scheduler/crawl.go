package scheduler

import (
	"context"
	"fmt"

	"crawlfetch/internal/crawl"
	"crawlfetch/internal/platform/httpclient"
)

// CrawlRunner выполняет пакет запросов.
type CrawlRunner interface {
	Run(ctx context.Context, reqs []*httpclient.Request) []crawl.Result
}

// CrawlJob возвращает задачу, которая обходит urls. Каждый запуск строит
// новые запросы, поэтому магические переменные в URL раскрываются заново.
// Задача возвращает ошибку, если хотя бы один запрос завершился неудачей.
func CrawlJob(r CrawlRunner, urls []string, template httpclient.Request) JobFunc {
	return func(ctx context.Context) error {
		reqs := make([]*httpclient.Request, len(urls))
		for i, u := range urls {
			req := template
			req.URL = u
			req.Headers = template.Headers.Clone()
			reqs[i] = &req
		}

		failed := 0
		for _, res := range r.Run(ctx, reqs) {
			if res.Failed() {
				failed++
			}
		}
		if failed > 0 {
			return fmt.Errorf("crawl: %d of %d requests failed", failed, len(reqs))
		}
		return nil
	}
}

// AddCrawlJob регистрирует CrawlJob по cron-расписанию. Перекрывающиеся
// запуски пропускаются.
func (s *Scheduler) AddCrawlJob(schedule string, r CrawlRunner, urls []string, template httpclient.Request) (CronJobID, error) {
	return s.AddCronJobWithOptions(schedule, CrawlJob(r, urls, template), JobOptions{
		Name:          "crawl",
		OverlapPolicy: SkipIfRunning,
	})
}
