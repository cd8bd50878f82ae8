// Package app wires configuration, the fetch client, the journal, the crawl
// runner and the service surfaces together.
package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"crawlfetch/internal/adapter/api"
	"crawlfetch/internal/adapter/notify"
	"crawlfetch/internal/adapter/scheduler"
	"crawlfetch/internal/config"
	"crawlfetch/internal/crawl"
	"crawlfetch/internal/journal"
	"crawlfetch/internal/platform/httpclient"
	"crawlfetch/internal/platform/logger"
)

const (
	poolQueue       = 64
	notifyEvery     = time.Minute
	shutdownTimeout = 5 * time.Second
)

// App wires application components.
type App struct {
	cfg      config.Config
	log      *slog.Logger
	client   *httpclient.Client
	fetcher  crawl.Fetcher
	journal  journal.Journal
	pool     *crawl.Pool
	runner   *crawl.Runner
	notifier crawl.Notifier
}

// Option customizes New.
type Option func(*options)

type options struct {
	log       *slog.Logger
	transport httpclient.Transport
}

// WithLogger replaces the logger built from cfg.Log.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithTransport replaces the network transport of the fetch client.
func WithTransport(t httpclient.Transport) Option {
	return func(o *options) { o.transport = t }
}

// New builds the application from cfg. The journal is opened and migrated.
func New(ctx context.Context, cfg config.Config, opts ...Option) (*App, error) {
	var o options
	for _, fn := range opts {
		fn(&o)
	}
	log := o.log
	if log == nil {
		log = logger.New(logger.Options{
			Env:          cfg.Env,
			ConsoleLevel: cfg.Log.ConsoleLevel,
			FileLevel:    cfg.Log.FileLevel,
			File:         cfg.Log.File,
			App:          "crawlfetch",
		})
	}

	clientOpts := []httpclient.Option{
		httpclient.WithLogger(log),
		httpclient.WithTimeout(cfg.Fetch.Timeout),
		httpclient.WithRetries(cfg.Fetch.Retries),
	}
	headers := map[string]string{}
	if cfg.Fetch.UserAgent != "" {
		headers["user-agent"] = cfg.Fetch.UserAgent
	}
	if cfg.Fetch.AcceptLanguage != "" {
		headers["accept-language"] = cfg.Fetch.AcceptLanguage
	}
	if len(headers) > 0 {
		clientOpts = append(clientOpts, httpclient.WithHeaders(headers))
	}
	if o.transport != nil {
		clientOpts = append(clientOpts, httpclient.WithTransport(o.transport))
	}
	client := httpclient.New(clientOpts...)

	j, err := journal.Open(ctx, journal.Options{
		Driver:     cfg.Journal.Driver,
		SQLitePath: cfg.Journal.SQLitePath,
		PGDSN:      cfg.Journal.PGDSN,
	})
	if err != nil {
		client.Close()
		return nil, err
	}

	var notifier crawl.Notifier = notify.Nop{}
	if cfg.Telegram.Token != "" {
		tg, err := notify.NewTelegram(notify.TelegramOptions{
			Token:  cfg.Telegram.Token,
			ChatID: cfg.Telegram.ChatID,
			Every:  notifyEvery,
			Logger: log,
		})
		if err != nil {
			_ = j.Close()
			client.Close()
			return nil, err
		}
		notifier = tg
	}

	fetcher := withDefaults{next: client, proxy: cfg.Fetch.Proxy, maxRedirects: cfg.Fetch.MaxRedirects}
	pool := crawl.NewPool(cfg.Crawl.Workers, poolQueue)
	a := &App{
		cfg:      cfg,
		log:      log,
		client:   client,
		fetcher:  fetcher,
		journal:  j,
		pool:     pool,
		notifier: notifier,
		runner: crawl.NewRunner(fetcher, pool,
			crawl.WithJournal(j),
			crawl.WithNotifier(notifier),
			crawl.WithLogger(log),
		),
	}
	log.Info("app ready",
		"journal", cfg.Journal.Driver,
		"workers", pool.Workers(),
		"retries", cfg.Fetch.Retries,
		"timeout", cfg.Fetch.Timeout,
	)
	return a, nil
}

// Logger returns the application logger.
func (a *App) Logger() *slog.Logger { return a.log }

// Journal returns the fetch journal.
func (a *App) Journal() journal.Journal { return a.journal }

// Fetch performs one request with configured defaults and records it.
func (a *App) Fetch(ctx context.Context, req *httpclient.Request) (*httpclient.Response, error) {
	resp, err := a.fetcher.Fetch(ctx, req)
	if rerr := a.journal.Record(ctx, journal.NewEntry(req, resp, err, time.Now())); rerr != nil {
		a.log.Error("journal record failed", "error", rerr)
	}
	return resp, err
}

// Crawl runs reqs through the worker pool.
func (a *App) Crawl(ctx context.Context, reqs []*httpclient.Request) []crawl.Result {
	return a.runner.Run(ctx, reqs)
}

// Handler returns the HTTP API.
func (a *App) Handler() http.Handler {
	if a.cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	return api.NewHandler(a.fetcher, a.runner, a.journal, a.log).Router()
}

// Serve runs the HTTP API and the crawl scheduler until ctx is done.
func (a *App) Serve(ctx context.Context) error {
	sched := scheduler.NewWithContext(ctx, scheduler.Config{Logger: a.log})
	if a.cfg.Crawl.Schedule != "" {
		if _, err := sched.AddCrawlJob(a.cfg.Crawl.Schedule, a.runner, a.cfg.Crawl.URLs, httpclient.Request{}); err != nil {
			return err
		}
	}
	sched.Start()

	srv := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		a.log.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := errors.Join(serveErr, srv.Shutdown(shutdownCtx), sched.StopContext(shutdownCtx))
	a.log.Info("stopped")
	return err
}

// Close releases the pool, the journal, idle connections and the log file.
func (a *App) Close() error {
	a.pool.Close()
	a.client.Close()
	err := a.journal.Close()
	return errors.Join(err, logger.Close(a.log))
}

// withDefaults fills request fields left empty by the caller with
// configured values.
type withDefaults struct {
	next         crawl.Fetcher
	proxy        string
	maxRedirects int
}

func (d withDefaults) Fetch(ctx context.Context, req *httpclient.Request) (*httpclient.Response, error) {
	if req != nil && ((req.Proxy == "" && d.proxy != "") || (req.MaxRedirects == 0 && d.maxRedirects != 0)) {
		r := *req
		if r.Proxy == "" {
			r.Proxy = d.proxy
		}
		if r.MaxRedirects == 0 {
			r.MaxRedirects = d.maxRedirects
		}
		req = &r
	}
	return d.next.Fetch(ctx, req)
}
