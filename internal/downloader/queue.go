package downloader

import (
	"context"
	"os"
	"time"

	"instabridge/pkg/content"
	"instabridge/pkg/logger"
	"instabridge/pkg/ratelimit"
)

// Result is the outcome of materializing one item
type Result struct {
	ItemID   string
	Paths    []string
	Bytes    int64
	Duration time.Duration
	Err      error
}

// OK reports whether the download produced files
func (r Result) OK() bool {
	return r.Err == nil && len(r.Paths) > 0
}

// Queue downloads a batch of items one after the other, each at most once.
// Items sharing an id are downloaded for the first occurrence only.
type Queue struct {
	dir     string
	limiter ratelimit.Limiter
	logger  logger.Logger
	start   func(*content.Item)
	notify  func(Result)
}

// Option customizes a Queue
type Option func(*Queue)

// WithLimiter paces consecutive downloads
func WithLimiter(l ratelimit.Limiter) Option {
	return func(q *Queue) {
		q.limiter = l
	}
}

// WithStart registers a callback invoked before every download
func WithStart(fn func(*content.Item)) Option {
	return func(q *Queue) {
		q.start = fn
	}
}

// WithNotify registers a callback invoked after every item
func WithNotify(fn func(Result)) Option {
	return func(q *Queue) {
		q.notify = fn
	}
}

// NewQueue creates a download queue writing into dir
func NewQueue(dir string, log logger.Logger, opts ...Option) *Queue {
	if log == nil {
		log = logger.GetLogger()
	}
	q := &Queue{
		dir:     dir,
		limiter: ratelimit.Unlimited{},
		logger:  log,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Run downloads the items in order. A failed item is recorded in its Result
// and the queue moves on; only a cancelled context stops the batch early.
func (q *Queue) Run(ctx context.Context, items []*content.Item) ([]Result, error) {
	seen := make(map[string]bool, len(items))
	results := make([]Result, 0, len(items))

	for _, it := range items {
		if seen[it.ID] {
			continue
		}
		seen[it.ID] = true

		if err := ctx.Err(); err != nil {
			return results, err
		}
		if err := q.limiter.Wait(ctx); err != nil {
			return results, err
		}

		if q.start != nil {
			q.start(it)
		}
		result := q.process(ctx, it)
		results = append(results, result)
		if q.notify != nil {
			q.notify(result)
		}
	}
	return results, nil
}

func (q *Queue) process(ctx context.Context, it *content.Item) Result {
	start := time.Now()
	result := Result{ItemID: it.ID}

	paths, err := it.Download(ctx, q.dir)
	result.Duration = time.Since(start)
	if err != nil {
		result.Err = err
		logger.LogDownload(q.logger, it.ID, 0, 0, err)
		return result
	}

	result.Paths = paths
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil {
			result.Bytes += info.Size()
		}
	}
	logger.LogDownload(q.logger, it.ID, len(paths), result.Bytes, nil)
	return result
}

// Paths indexes successful results by item id
func Paths(results []Result) map[string][]string {
	out := make(map[string][]string, len(results))
	for _, r := range results {
		if r.OK() {
			out[r.ItemID] = r.Paths
		}
	}
	return out
}

// AllPaths returns every downloaded path, in download order
func AllPaths(results []Result) []string {
	var out []string
	for _, r := range results {
		if r.Err == nil {
			out = append(out, r.Paths...)
		}
	}
	return out
}
