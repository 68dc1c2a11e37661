// Package fetch implements concurrent, parallel HTTP(S) download with
// hash verification, transparent decompression, retry with backoff,
// and ordered mirror fallback.
package fetch

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/cenkalti/backoff/v4"
	"github.com/klauspost/compress/gzip"
	"github.com/ulikunitz/xz"

	"github.com/AOSC-Dev/omakase/internal/ctxutil"
	"github.com/AOSC-Dev/omakase/internal/errs"
)

// Task is one download request. Mirrors is tried in declared order; a
// failing mirror does not poison the others.
type Task struct {
	Mirrors      []string
	ExpectedHash string // hex sha256, empty means unchecked
	ExpectedSize int64  // <=0 means unchecked
	Destination  string
	Decompress   bool // transparently decompress .gz/.xz suffixes
}

// Result is the outcome of one Task.
type Result struct {
	Task  Task
	Bytes int64
	Err   error
}

// Config tunes the Fetcher's concurrency and retry behavior; see
// internal/config for where these are sourced from config.toml.
type Config struct {
	ParallelismPerHost int
	RetryCeiling       int
	RetryMaxInterval   time.Duration
	HTTPClient         *http.Client
}

// Fetcher runs download tasks with bounded per-host parallelism.
type Fetcher struct {
	cfg Config

	mu    sync.Mutex
	pools map[string]pond.Pool
}

// New builds a Fetcher from cfg, applying sane defaults for any zero field.
func New(cfg Config) *Fetcher {
	if cfg.ParallelismPerHost <= 0 {
		cfg.ParallelismPerHost = 4
	}
	if cfg.RetryCeiling <= 0 {
		cfg.RetryCeiling = 5
	}
	if cfg.RetryMaxInterval <= 0 {
		cfg.RetryMaxInterval = 30 * time.Second
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 2 * time.Minute}
	}
	return &Fetcher{cfg: cfg, pools: map[string]pond.Pool{}}
}

func (f *Fetcher) poolFor(host string) pond.Pool {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.pools[host]
	if !ok {
		p = pond.NewPool(f.cfg.ParallelismPerHost)
		f.pools[host] = p
	}
	return p
}

// Fetch runs every task concurrently, respecting the per-host
// parallelism limit, and returns one Result per task in input order.
// Cancellation (ctx.Done) is observed at each task's suspension points;
// a cancelled task releases its partial file descriptor and temp file.
func (f *Fetcher) Fetch(ctx context.Context, tasks []Task) []Result {
	results := make([]Result, len(tasks))
	var wg sync.WaitGroup

	for i, task := range tasks {
		i, task := i, task
		host := hostOf(task.Mirrors)
		pool := f.poolFor(host)
		wg.Add(1)
		pool.Submit(func() {
			defer wg.Done()
			n, err := f.fetchOne(ctx, task)
			results[i] = Result{Task: task, Bytes: n, Err: err}
		})
	}
	wg.Wait()
	return results
}

func hostOf(mirrors []string) string {
	if len(mirrors) == 0 {
		return ""
	}
	u, err := url.Parse(mirrors[0])
	if err != nil {
		return mirrors[0]
	}
	return u.Host
}

func (f *Fetcher) fetchOne(ctx context.Context, task Task) (int64, error) {
	if ctxutil.Cancelled(ctx) {
		return 0, errs.New(errs.KindCancelled, "fetch cancelled before start", nil)
	}
	if len(task.Mirrors) == 0 {
		return 0, errs.New(errs.KindNetwork, "no mirrors configured for task", nil)
	}

	var lastErr error
	for _, mirror := range task.Mirrors {
		n, err := f.fetchFromMirror(ctx, mirror, task)
		if err == nil {
			return n, nil
		}
		if errs.As(err, errs.KindIntegrity) {
			// Hash mismatch is a hard error: do not fall through to the
			// next mirror, and do not retry.
			return 0, err
		}
		lastErr = err
	}
	return 0, errs.New(errs.KindNetwork, fmt.Sprintf("all mirrors failed for %s", task.Destination), lastErr)
}

func (f *Fetcher) fetchFromMirror(ctx context.Context, mirror string, task Task) (int64, error) {
	var size int64
	op := func() error {
		n, err := f.attempt(ctx, mirror, task)
		size = n
		if err != nil && errs.As(err, errs.KindIntegrity) {
			return backoff.Permanent(err)
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.MaxInterval = f.cfg.RetryMaxInterval
	bo := backoff.WithContext(backoff.WithMaxRetries(b, uint64(f.cfg.RetryCeiling)), ctx)

	if err := backoff.Retry(op, bo); err != nil {
		return 0, err
	}
	return size, nil
}

func (f *Fetcher) attempt(ctx context.Context, mirror string, task Task) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, mirror, nil)
	if err != nil {
		return 0, errs.New(errs.KindNetwork, "building request", err)
	}
	resp, err := f.cfg.HTTPClient.Do(req)
	if err != nil {
		return 0, errs.New(errs.KindNetwork, "performing request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return 0, errs.New(errs.KindNetwork, fmt.Sprintf("server error %d from %s", resp.StatusCode, mirror), nil)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, backoff.Permanent(errs.New(errs.KindNetwork, fmt.Sprintf("unexpected status %d from %s", resp.StatusCode, mirror), nil))
	}

	tmp, err := os.CreateTemp(dirOf(task.Destination), ".oma-fetch-*")
	if err != nil {
		return 0, errs.New(errs.KindIntegrity, "creating temp file", err)
	}
	tmpName := tmp.Name()
	cleanup := true
	defer func() {
		tmp.Close()
		if cleanup {
			os.Remove(tmpName)
		}
	}()

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(tmp, hasher), resp.Body)
	if err != nil {
		return 0, errs.New(errs.KindNetwork, "reading response body", err)
	}
	if task.ExpectedSize > 0 && written != task.ExpectedSize {
		return 0, errs.New(errs.KindIntegrity, fmt.Sprintf("size mismatch for %s: got %d want %d", mirror, written, task.ExpectedSize), nil)
	}
	if task.ExpectedHash != "" {
		got := hex.EncodeToString(hasher.Sum(nil))
		if !strings.EqualFold(got, task.ExpectedHash) {
			return 0, errs.New(errs.KindIntegrity, fmt.Sprintf("hash mismatch for %s: got %s want %s", mirror, got, task.ExpectedHash), nil)
		}
	}
	if err := tmp.Close(); err != nil {
		return 0, errs.New(errs.KindNetwork, "closing temp file", err)
	}

	if task.Decompress {
		if err := decompressInto(tmpName, task.Destination, mirror); err != nil {
			return 0, err
		}
	} else {
		if err := os.Rename(tmpName, task.Destination); err != nil {
			return 0, errs.New(errs.KindNetwork, "moving fetched file into place", err)
		}
	}
	cleanup = false
	return written, nil
}

func dirOf(path string) string {
	for i := len(path) - 1; i >= 0; i-- {
		if path[i] == '/' {
			return path[:i]
		}
	}
	return "."
}

func decompressInto(src, dst, sourceURL string) error {
	in, err := os.Open(src)
	if err != nil {
		return errs.New(errs.KindNetwork, "opening fetched file for decompression", err)
	}
	defer in.Close()
	defer os.Remove(src)

	var r io.Reader
	switch {
	case strings.HasSuffix(sourceURL, ".gz"):
		gz, err := gzip.NewReader(in)
		if err != nil {
			return errs.New(errs.KindIntegrity, "opening gzip stream", err)
		}
		defer gz.Close()
		r = gz
	case strings.HasSuffix(sourceURL, ".xz"):
		xr, err := xz.NewReader(in)
		if err != nil {
			return errs.New(errs.KindIntegrity, "opening xz stream", err)
		}
		r = xr
	default:
		r = in
	}

	out, err := os.CreateTemp(dirOf(dst), ".oma-decompress-*")
	if err != nil {
		return errs.New(errs.KindNetwork, "creating decompression temp file", err)
	}
	defer out.Close()
	if _, err := io.Copy(out, r); err != nil {
		os.Remove(out.Name())
		return errs.New(errs.KindIntegrity, "decompressing fetched file", err)
	}
	if err := os.Rename(out.Name(), dst); err != nil {
		return errs.New(errs.KindNetwork, "moving decompressed file into place", err)
	}
	return nil
}
