package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// JobFunc функция периодической задачи.
type JobFunc func(ctx context.Context) error

// CronJobID идентификатор cron-задачи.
type CronJobID = cron.EntryID

// TickerJobID идентификатор задачи с фиксированным интервалом.
type TickerJobID int

// OverlapPolicy определяет поведение при запуске задачи, предыдущий запуск
// которой еще не завершен.
type OverlapPolicy int

const (
	// AllowOverlap разрешает параллельные запуски.
	AllowOverlap OverlapPolicy = iota
	// SkipIfRunning пропускает запуск.
	SkipIfRunning
	// DelayIfRunning ждет завершения предыдущего запуска.
	DelayIfRunning
)

func (p OverlapPolicy) String() string {
	switch p {
	case SkipIfRunning:
		return "skip"
	case DelayIfRunning:
		return "delay"
	default:
		return "allow"
	}
}

// JobOptions настройки задачи.
type JobOptions struct {
	Name          string
	Timeout       time.Duration
	OverlapPolicy OverlapPolicy
}

// JobHooks необязательные хуки наблюдаемости.
type JobHooks struct {
	OnJobStart  func(name string)
	OnJobFinish func(name string, d time.Duration, err error)
	OnJobError  func(name string, err error)
}

// Config конфигурация планировщика.
type Config struct {
	Logger   *slog.Logger
	JobHooks JobHooks
}

type job struct {
	fn      JobFunc
	opts    JobOptions
	running sync.Mutex
}

func (j *job) name() string {
	if j.opts.Name == "" {
		return "unnamed"
	}
	return j.opts.Name
}

type ticker struct {
	job    *job
	cancel context.CancelFunc
}

// Scheduler запускает задачи по cron-расписанию (с полем секунд) и с
// фиксированным интервалом. Все задачи получают контекст планировщика.
type Scheduler struct {
	cron   *cron.Cron
	log    *slog.Logger
	hooks  JobHooks
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	tickers map[TickerJobID]*ticker
	nextID  TickerJobID

	startOnce sync.Once
	stopOnce  sync.Once
}

// New создает планировщик с background контекстом.
func New(cfg Config) *Scheduler {
	return NewWithContext(context.Background(), cfg)
}

// NewWithContext создает планировщик, который останавливается вместе с parent.
func NewWithContext(parent context.Context, cfg Config) *Scheduler {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	ctx, cancel := context.WithCancel(parent)
	return &Scheduler{
		cron:    cron.New(cron.WithSeconds(), cron.WithLogger(cronLogger{log.With("component", "cron")})),
		log:     log,
		hooks:   cfg.JobHooks,
		ctx:     ctx,
		cancel:  cancel,
		tickers: make(map[TickerJobID]*ticker),
		nextID:  1,
	}
}

// AddCronJob добавляет задачу с опциями по умолчанию.
//   - "0 */5 * * * *" каждые 5 минут
//   - "@every 30s"
//   - "@hourly"
func (s *Scheduler) AddCronJob(schedule string, fn JobFunc) (CronJobID, error) {
	return s.AddCronJobWithOptions(schedule, fn, JobOptions{})
}

// AddCronJobWithOptions добавляет задачу по cron-расписанию.
func (s *Scheduler) AddCronJobWithOptions(schedule string, fn JobFunc, opts JobOptions) (CronJobID, error) {
	j := &job{fn: fn, opts: opts}
	id, err := s.cron.AddFunc(schedule, func() { s.run(j) })
	if err != nil {
		return 0, fmt.Errorf("add cron job %q (%s): %w", j.name(), schedule, err)
	}
	s.log.Info("cron job added", "name", j.name(), "schedule", schedule, "overlap", opts.OverlapPolicy.String(), "id", id)
	return id, nil
}

// AddTickerJob добавляет задачу с интервалом и опциями по умолчанию.
func (s *Scheduler) AddTickerJob(interval time.Duration, fn JobFunc) TickerJobID {
	return s.AddTickerJobWithOptions(interval, fn, JobOptions{})
}

// AddTickerJobWithOptions добавляет задачу, запускаемую каждые interval.
func (s *Scheduler) AddTickerJobWithOptions(interval time.Duration, fn JobFunc, opts JobOptions) TickerJobID {
	j := &job{fn: fn, opts: opts}
	ctx, cancel := context.WithCancel(s.ctx)

	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.tickers[id] = &ticker{job: j, cancel: cancel}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				s.run(j)
			case <-ctx.Done():
				return
			}
		}
	}()

	s.log.Info("ticker job added", "name", j.name(), "interval", interval, "overlap", opts.OverlapPolicy.String(), "id", id)
	return id
}

// RemoveCronJob удаляет cron-задачу.
func (s *Scheduler) RemoveCronJob(id CronJobID) {
	s.cron.Remove(id)
	s.log.Info("cron job removed", "id", id)
}

// RemoveTickerJob удаляет задачу с интервалом. Возвращает false, если ее нет.
func (s *Scheduler) RemoveTickerJob(id TickerJobID) bool {
	s.mu.Lock()
	t, ok := s.tickers[id]
	delete(s.tickers, id)
	s.mu.Unlock()
	if !ok {
		return false
	}
	t.cancel()
	s.log.Info("ticker job removed", "name", t.job.name(), "id", id)
	return true
}

// Start запускает cron. Повторные вызовы ничего не делают.
func (s *Scheduler) Start() {
	s.startOnce.Do(func() {
		s.log.Info("scheduler started")
		s.cron.Start()
		go func() {
			<-s.ctx.Done()
			s.stopOnce.Do(s.stop)
		}()
	})
}

// Stop останавливает планировщик и ждет завершения задач.
func (s *Scheduler) Stop() {
	s.cancel()
	s.stopOnce.Do(s.stop)
}

// StopContext как Stop, но возвращает ctx.Err(), если ctx истек раньше.
// Остановка при этом все равно доводится до конца.
func (s *Scheduler) StopContext(ctx context.Context) error {
	s.cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.stopOnce.Do(s.stop)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.log.Warn("scheduler stop deadline exceeded")
		<-done
		return ctx.Err()
	}
}

// IsRunning возвращает false после остановки или отмены родительского контекста.
func (s *Scheduler) IsRunning() bool {
	return s.ctx.Err() == nil
}

func (s *Scheduler) stop() {
	<-s.cron.Stop().Done()
	s.mu.Lock()
	for _, t := range s.tickers {
		t.cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) run(j *job) {
	name := j.name()
	switch j.opts.OverlapPolicy {
	case SkipIfRunning:
		if !j.running.TryLock() {
			s.log.Debug("job skipped, previous run active", "name", name)
			return
		}
		defer j.running.Unlock()
	case DelayIfRunning:
		j.running.Lock()
		defer j.running.Unlock()
	}

	if s.hooks.OnJobStart != nil {
		s.hooks.OnJobStart(name)
	}

	ctx := s.ctx
	if j.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.opts.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := s.call(ctx, j)
	d := time.Since(start)

	if s.hooks.OnJobFinish != nil {
		s.hooks.OnJobFinish(name, d, err)
	}
	if err != nil {
		s.log.Error("job failed", "name", name, "duration", d, "error", err)
		if s.hooks.OnJobError != nil {
			s.hooks.OnJobError(name, err)
		}
		return
	}
	s.log.Debug("job done", "name", name, "duration", d)
}

// call превращает панику задачи в ошибку.
func (s *Scheduler) call(ctx context.Context, j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return j.fn(ctx)
}

// cronLogger передает сообщения cron в slog.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, kv ...any) {
	l.log.Debug(msg, kv...)
}

func (l cronLogger) Error(err error, msg string, kv ...any) {
	l.log.Error(msg, append([]any{"error", err}, kv...)...)
}
