package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Journal drivers.
const (
	JournalNone     = "none"
	JournalSQLite   = "sqlite"
	JournalPostgres = "postgres"
)

// Config holds application configuration values.
type Config struct {
	Env  string `validate:"required,oneof=dev prod"`
	HTTP struct {
		Addr string `validate:"required"`
	}
	Log struct {
		ConsoleLevel string `validate:"required,oneof=debug info warn error"`
		FileLevel    string `validate:"required,oneof=debug info warn error"`
		File         string
	}
	Fetch struct {
		Timeout        time.Duration `validate:"gt=0"`
		Retries        int           `validate:"gte=0,lte=20"`
		MaxRedirects   int
		UserAgent      string
		AcceptLanguage string
		Proxy          string `validate:"omitempty,url"`
	}
	Journal struct {
		Driver     string `validate:"required,oneof=none sqlite postgres"`
		SQLitePath string `validate:"required_if=Driver sqlite"`
		PGDSN      string `validate:"required_if=Driver postgres"`
	}
	Crawl struct {
		Schedule string
		URLs     []string `validate:"dive,url"`
		Workers  int      `validate:"gte=1,lte=256"`
	}
	Telegram struct {
		Token  string
		ChatID int64
	}
}

var validate = validator.New()

// Load reads configuration from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	var c Config
	var errs []error
	c.Env = getenv("ENV", "prod")
	c.HTTP.Addr = getenv("HTTP_ADDR", ":8080")
	c.Log.ConsoleLevel = strings.ToLower(getenv("LOG_CONSOLE_LEVEL", "info"))
	c.Log.FileLevel = strings.ToLower(getenv("LOG_FILE_LEVEL", "debug"))
	c.Log.File = getenv("LOG_FILE", "data/logs/crawlfetch.log")

	c.Fetch.Timeout = durationEnv("FETCH_TIMEOUT", 30*time.Second, &errs)
	c.Fetch.Retries = intEnv("FETCH_RETRIES", 0, &errs)
	c.Fetch.MaxRedirects = intEnv("FETCH_MAX_REDIRECTS", 0, &errs)
	c.Fetch.UserAgent = os.Getenv("FETCH_USER_AGENT")
	c.Fetch.AcceptLanguage = os.Getenv("FETCH_ACCEPT_LANGUAGE")
	c.Fetch.Proxy = os.Getenv("FETCH_PROXY")

	c.Journal.Driver = strings.ToLower(getenv("JOURNAL_DRIVER", JournalNone))
	c.Journal.SQLitePath = getenv("JOURNAL_SQLITE_PATH", "data/journal.db")
	c.Journal.PGDSN = os.Getenv("JOURNAL_PG_DSN")

	c.Crawl.Schedule = os.Getenv("CRAWL_SCHEDULE")
	c.Crawl.URLs = listEnv("CRAWL_URLS")
	c.Crawl.Workers = intEnv("CRAWL_WORKERS", 4, &errs)

	c.Telegram.Token = os.Getenv("TELEGRAM_BOT_TOKEN")
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("TELEGRAM_CHAT_ID: %w", err))
		}
		c.Telegram.ChatID = id
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	if err := validate.Struct(c); err != nil {
		return Config{}, err
	}
	if c.Crawl.Schedule != "" && len(c.Crawl.URLs) == 0 {
		return Config{}, errors.New("CRAWL_URLS required when CRAWL_SCHEDULE is set")
	}
	if (c.Telegram.Token == "") != (c.Telegram.ChatID == 0) {
		return Config{}, errors.New("TELEGRAM_BOT_TOKEN and TELEGRAM_CHAT_ID must be set together")
	}
	return c, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func intEnv(k string, def int, errs *[]error) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return n
}

func durationEnv(k string, def time.Duration, errs *[]error) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return d
}

func listEnv(k string) []string {
	var out []string
	for _, s := range strings.FieldsFunc(os.Getenv(k), func(r rune) bool { return r == ',' || r == ' ' || r == '\n' }) {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
