package fetcher

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/ohler55/ojg/jp"
	"github.com/valyala/fasthttp"

	"github.com/vk/fanoutgo/internal/ctxlog"
	"github.com/vk/fanoutgo/internal/taskerr"
	"github.com/vk/fanoutgo/internal/workexec"
)

const (
	// DefaultChildrenPath selects the children of a Hacker News style item.
	DefaultChildrenPath = "$.kids"
	defaultTimeout      = 10 * time.Second
)

// Config describes where and how items are fetched.
type Config struct {
	// ItemURL is a format string with a single %s verb for the identifier.
	ItemURL      string
	ChildrenPath string
	// MetricPath selects a numeric metric. Empty means the number of children.
	MetricPath string

	// IndexID is the identifier served from IndexURL instead of ItemURL.
	IndexID  string
	IndexURL string
	// IndexLimit keeps only the first N index entries; 0 keeps all.
	IndexLimit int

	// Timeout bounds a request when the context carries no deadline.
	Timeout time.Duration
	Headers map[string]string
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithClient replaces the default fasthttp client.
func WithClient(c *fasthttp.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// Fetcher is a workexec.Executor backed by HTTP.
type Fetcher struct {
	cfg      Config
	client   *fasthttp.Client
	children jp.Expr
	metric   jp.Expr
}

var _ workexec.Executor = (*Fetcher)(nil)

// New validates cfg and builds a Fetcher.
func New(cfg Config, opts ...Option) (*Fetcher, error) {
	if cfg.ItemURL == "" {
		return nil, errors.New("item_url is required")
	}
	if cfg.ChildrenPath == "" {
		cfg.ChildrenPath = DefaultChildrenPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	f := &Fetcher{cfg: cfg}
	var err error
	if f.children, err = jp.ParseString(cfg.ChildrenPath); err != nil {
		return nil, fmt.Errorf("invalid children_path '%s': %w", cfg.ChildrenPath, err)
	}
	if cfg.MetricPath != "" {
		if f.metric, err = jp.ParseString(cfg.MetricPath); err != nil {
			return nil, fmt.Errorf("invalid metric_path '%s': %w", cfg.MetricPath, err)
		}
	}

	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = &fasthttp.Client{
			MaxConnsPerHost:     1000,
			MaxIdleConnDuration: 90 * time.Second,
		}
	}
	return f, nil
}

// Fetch implements workexec.Executor.
func (f *Fetcher) Fetch(ctx context.Context, id string) (workexec.Item, error) {
	if f.cfg.IndexURL != "" && id == f.cfg.IndexID {
		return f.fetchIndex(ctx, id)
	}

	doc, err := f.get(ctx, id, fmt.Sprintf(f.cfg.ItemURL, id))
	if err != nil {
		return workexec.Item{}, err
	}
	if doc == nil {
		return workexec.Item{}, taskerr.NewTransient(id, "item not found", nil)
	}

	children, err := toIDs(f.children.Get(doc))
	if err != nil {
		return workexec.Item{}, taskerr.NewTransient(id, "malformed children", err)
	}

	item := workexec.Item{Metric: int64(len(children)), Children: children}
	if f.metric != nil {
		results := f.metric.Get(doc)
		if len(results) == 0 {
			return workexec.Item{}, taskerr.NewTransient(id, fmt.Sprintf("metric_path '%s' returned no results", f.cfg.MetricPath), nil)
		}
		m, err := toInt64(results[0])
		if err != nil {
			return workexec.Item{}, taskerr.NewTransient(id, "malformed metric", err)
		}
		item.Metric = m
	}

	ctxlog.FromContext(ctx).Debug("Fetched item.", "nodeID", id, "metric", item.Metric, "children", len(children))
	return item, nil
}

func (f *Fetcher) fetchIndex(ctx context.Context, id string) (workexec.Item, error) {
	doc, err := f.get(ctx, id, f.cfg.IndexURL)
	if err != nil {
		return workexec.Item{}, err
	}
	list, ok := doc.([]any)
	if !ok {
		return workexec.Item{}, taskerr.NewTransient(id, "index document is not an array", nil)
	}
	if f.cfg.IndexLimit > 0 && len(list) > f.cfg.IndexLimit {
		list = list[:f.cfg.IndexLimit]
	}
	children, err := toIDs(list)
	if err != nil {
		return workexec.Item{}, taskerr.NewTransient(id, "malformed index", err)
	}
	return workexec.Item{Children: children}, nil
}

type response struct {
	status int
	body   []byte
	err    error
}

// get performs the request and decodes the JSON body. fasthttp takes no
// context, so the request runs on its own goroutine and a cancelled caller
// still waits for it: the gate slot held by the caller must not be reused
// while the connection is busy. DoDeadline bounds that wait.
func (f *Fetcher) get(ctx context.Context, id, url string) (any, error) {
	deadline := time.Now().Add(f.cfg.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	done := make(chan response, 1)
	go func() {
		req := fasthttp.AcquireRequest()
		resp := fasthttp.AcquireResponse()
		defer fasthttp.ReleaseRequest(req)
		defer fasthttp.ReleaseResponse(resp)

		req.SetRequestURI(url)
		req.Header.SetMethod(fasthttp.MethodGet)
		req.Header.Set(fasthttp.HeaderAccept, "application/json")
		for k, v := range f.cfg.Headers {
			req.Header.Set(k, v)
		}

		err := f.client.DoDeadline(req, resp, deadline)
		if err != nil {
			done <- response{err: err}
			return
		}
		body := make([]byte, len(resp.Body()))
		copy(body, resp.Body())
		done <- response{status: resp.StatusCode(), body: body}
	}()

	var r response
	select {
	case <-ctx.Done():
		<-done
		return nil, ctx.Err()
	case r = <-done:
	}

	if r.err != nil {
		if errors.Is(r.err, fasthttp.ErrTimeout) {
			return nil, taskerr.NewTransient(id, "request timed out", r.err)
		}
		return nil, taskerr.NewTransient(id, "request failed", r.err)
	}
	switch {
	case r.status == fasthttp.StatusTooManyRequests:
		return nil, taskerr.NewFatal(id, "rate limited by upstream", nil)
	case r.status < 200 || r.status > 299:
		return nil, taskerr.NewTransient(id, fmt.Sprintf("unexpected status %d %s", r.status, fasthttp.StatusMessage(r.status)), nil)
	}

	var doc any
	if err := sonic.Unmarshal(r.body, &doc); err != nil {
		return nil, taskerr.NewTransient(id, "invalid JSON body", err)
	}
	return doc, nil
}

// toIDs flattens JSONPath results into identifiers.
func toIDs(results []any) ([]string, error) {
	var ids []string
	for _, r := range results {
		switch v := r.(type) {
		case nil:
		case []any:
			sub, err := toIDs(v)
			if err != nil {
				return nil, err
			}
			ids = append(ids, sub...)
		default:
			id, err := toID(v)
			if err != nil {
				return nil, err
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func toID(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), nil
	case int64:
		return strconv.FormatInt(x, 10), nil
	case int:
		return strconv.Itoa(x), nil
	default:
		return "", fmt.Errorf("unsupported identifier type %T", v)
	}
}

func toInt64(v any) (int64, error) {
	switch x := v.(type) {
	case float64:
		return int64(x), nil
	case int64:
		return x, nil
	case int:
		return int64(x), nil
	case string:
		return strconv.ParseInt(x, 10, 64)
	case []any:
		return int64(len(x)), nil
	default:
		return 0, fmt.Errorf("unsupported metric type %T", v)
	}
}
