package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	json "github.com/goccy/go-json"

	"crawlfetch/internal/app"
	"crawlfetch/internal/config"
	"crawlfetch/internal/platform/httpclient"
)

type runEnv struct {
	ctx context.Context
	cfg config.Config
	out io.Writer
}

// FetchCmd fetches URLs and prints the resolved responses.
type FetchCmd struct {
	URLs         []string      `arg:"" name:"url" help:"URLs to fetch. {ts}, {ms}, {rand} and {date:FORMAT} are expanded."`
	Method       string        `short:"X" default:"GET" help:"HTTP method."`
	Header       []string      `short:"H" sep:"none" help:"Extra request header as 'Name: value'."`
	Cookie       []string      `short:"b" sep:"none" help:"Cookie as 'name=value'."`
	Data         string        `short:"d" help:"Request body. Sent as the query string for GET and HEAD."`
	Type         string        `enum:"auto,buffer,text,json" default:"auto" help:"Response type (${enum})."`
	Charset      string        `help:"Force the response charset."`
	Retries      int           `help:"Retries after the first attempt. 0 uses FETCH_RETRIES."`
	Timeout      time.Duration `help:"Per-attempt timeout. 0 uses FETCH_TIMEOUT."`
	Proxy        string        `help:"Proxy URL (http, https, socks5)."`
	MaxRedirects int           `help:"Redirect limit. Negative disables following."`
}

func (c *FetchCmd) requests() ([]*httpclient.Request, error) {
	headers := httpclient.Headers{}
	for _, h := range c.Header {
		name, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return nil, fmt.Errorf("invalid header %q", h)
		}
		key := strings.ToLower(strings.TrimSpace(name))
		headers[key] = append(headers[key], strings.TrimSpace(value))
	}
	typ := httpclient.ResponseType("")
	if c.Type != "auto" {
		typ = httpclient.ResponseType(c.Type)
	}

	reqs := make([]*httpclient.Request, len(c.URLs))
	for i, u := range c.URLs {
		r := &httpclient.Request{
			URL:             u,
			Method:          c.Method,
			Headers:         headers.Clone(),
			Cookies:         c.Cookie,
			Timeout:         c.Timeout,
			Retries:         c.Retries,
			MaxRedirects:    c.MaxRedirects,
			ResponseType:    typ,
			ResponseCharset: c.Charset,
			Proxy:           c.Proxy,
		}
		if c.Data != "" {
			r.Body = c.Data
		}
		reqs[i] = r
	}
	return reqs, nil
}

type fetchOutput struct {
	URL      string                `json:"url"`
	Response *httpclient.Response `json:"response,omitempty"`
	Error    string                `json:"error,omitempty"`
}

func (c *FetchCmd) Run(env *runEnv) error {
	reqs, err := c.requests()
	if err != nil {
		return err
	}
	cfg := env.cfg
	cfg.Crawl.Schedule = ""
	a, err := app.New(env.ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	enc := json.NewEncoder(env.out)
	enc.SetIndent("", "  ")
	failed := 0
	for _, req := range reqs {
		resp, err := a.Fetch(env.ctx, req)
		out := fetchOutput{URL: req.URL, Response: resp}
		if err != nil {
			failed++
			out.Error = err.Error()
		} else if !resp.OK {
			failed++
		}
		if err := enc.Encode(out); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d fetches failed", failed, len(reqs))
	}
	return nil
}

// ServeCmd runs the HTTP API and the crawl scheduler.
type ServeCmd struct {
	Addr string `help:"Listen address. Overrides HTTP_ADDR."`
}

func (c *ServeCmd) Run(env *runEnv) error {
	cfg := env.cfg
	if c.Addr != "" {
		cfg.HTTP.Addr = c.Addr
	}
	a, err := app.New(env.ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return a.Serve(env.ctx)
}

type cli struct {
	Fetch FetchCmd `cmd:"" help:"Fetch URLs and print the responses as JSON."`
	Serve ServeCmd `cmd:"" help:"Run the HTTP API and the crawl scheduler."`
}

func main() {
	var c cli
	kctx := kong.Parse(&c,
		kong.Name("crawlfetch"),
		kong.Description("Browser-like HTTP fetching with retries and content decoding."),
		kong.UsageOnError(),
	)

	cfg, err := config.Load()
	kctx.FatalIfErrorf(err)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = kctx.Run(&runEnv{ctx: ctx, cfg: cfg, out: os.Stdout})
	stop()
	kctx.FatalIfErrorf(err)
}
