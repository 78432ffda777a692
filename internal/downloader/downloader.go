package downloader

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/eivind-moen/comicdl/internal/ui"
)

const maxBackoff = 30 * time.Second

type Downloader struct {
	client  *http.Client
	log     *ui.Logger
	retries int
	timeout time.Duration

	backoffUnit time.Duration
	sleep       func(ctx context.Context, d time.Duration) error
}

func New(c *http.Client, log *ui.Logger, retries int, timeout time.Duration) *Downloader {
	if retries < 1 {
		retries = 1
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Downloader{
		client:      c,
		log:         log,
		retries:     retries,
		timeout:     timeout,
		backoffUnit: time.Second,
		sleep:       sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// BatchResult describes one finished chapter batch. Outcomes is
// indexed by page position; Files holds the successful paths in
// position order.
type BatchResult struct {
	Outcomes []bool
	Files    []string
	Bytes    int64
}

type batchState struct {
	mu        sync.Mutex
	donePages int
	total     int
	doneBytes int64
}

// DownloadBatch fetches every URL into folder, at most maxParallel at
// a time. Page i lands at page_%03d with the extension inferred from
// its URL, no matter which fetch finishes first. A failed page never
// stops its siblings; the caller reads Outcomes to see what is
// missing. The folder is created before any fetch starts, even when
// urls is empty. Re-running overwrites existing pages.
func (d *Downloader) DownloadBatch(
	ctx context.Context,
	urls []string,
	folder string,
	referer string,
	maxParallel int,
	ph Progress,
) (BatchResult, error) {

	if err := os.MkdirAll(folder, 0755); err != nil {
		return BatchResult{}, err
	}

	total := len(urls)
	if maxParallel < 1 {
		maxParallel = 1
	}

	ph.Update(0, total, 0)

	if total == 0 {
		ph.MarkDone()
		return BatchResult{Outcomes: []bool{}}, nil
	}

	cs := &batchState{total: total}
	outcomes := make([]bool, total)
	dests := make([]string, total)

	g := newGate(maxParallel)
	var wg sync.WaitGroup

	for i := range urls {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer d.advance(cs, ph)

			u := urls[i]
			dest := filepath.Join(folder, PageName(i, u))
			dests[i] = dest

			if err := g.Acquire(ctx); err != nil {
				return
			}
			defer g.Release()

			var last int64
			progress := func(done int64) {
				delta := done - last
				if delta <= 0 {
					return
				}

				last = done
				cs.mu.Lock()
				cs.doneBytes += delta
				ph.Update(cs.donePages, cs.total, cs.doneBytes)
				cs.mu.Unlock()
			}

			outcomes[i] = d.fetchWithRetry(ctx, u, dest, referer, progress)
		}(i)
	}

	wg.Wait()
	ph.MarkDone()

	files := make([]string, 0, total)
	for i, ok := range outcomes {
		if ok {
			files = append(files, dests[i])
		}
	}

	return BatchResult{Outcomes: outcomes, Files: files, Bytes: cs.doneBytes}, nil
}

func (d *Downloader) advance(cs *batchState, ph Progress) {
	cs.mu.Lock()
	cs.donePages++
	ph.Update(cs.donePages, cs.total, cs.doneBytes)
	cs.mu.Unlock()
}

// PageName derives the destination file name for page position i.
// The extension comes from the URL path with any query stripped;
// unknown extensions fall back to .jpg.
func PageName(i int, rawURL string) string {
	ext := ".jpg"
	if u, err := url.Parse(rawURL); err == nil {
		if e := path.Ext(u.Path); e != "" {
			ext = strings.ToLower(e)
		}
	}

	return fmt.Sprintf("page_%03d%s", i+1, ext)
}

// fetchWithRetry attempts the transfer up to the retry budget,
// sleeping 2^attempt backoff units between attempts (capped at
// maxBackoff). Failures are absorbed into the boolean outcome; the
// only traces are the logged warnings and the final notice.
func (d *Downloader) fetchWithRetry(
	ctx context.Context,
	url string,
	dest string,
	referer string,
	progress func(done int64),
) bool {

	for attempt := 0; attempt < d.retries; attempt++ {
		err := d.fetchOnce(ctx, url, dest, referer, progress)
		if err == nil {
			return true
		}

		d.log.Warnf("Attempt %d/%d failed for %s: %v\n", attempt+1, d.retries, url, err)

		if attempt == d.retries-1 {
			break
		}

		if serr := d.sleep(ctx, d.backoff(attempt)); serr != nil {
			d.log.Warnf("Cancelled while waiting to retry %s: %v\n", url, serr)
			return false
		}
	}

	d.log.Errorf("Failed to download %s after %d attempts.\n", url, d.retries)

	return false
}

func (d *Downloader) backoff(attempt int) time.Duration {
	delay := d.backoffUnit
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= maxBackoff {
			return maxBackoff
		}
	}

	return delay
}

// fetchOnce performs a single attempt. The payload is written next to
// dest and renamed into place only once fully transferred, so a
// partial file is never visible under the final name. On failure the
// temp file is removed.
func (d *Downloader) fetchOnce(
	ctx context.Context,
	u, dest, referer string,
	progress func(done int64),
) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return err
	}

	req.Header.Set("Referer", referer)
	req.Header.Set("Accept", "image/avif,image/webp,image/apng,image/*,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Connection", "keep-alive")

	resp, err := d.client.Do(req)
	if err != nil {
		return err
	}

	var bodyCloseErr error
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil && bodyCloseErr == nil {
			bodyCloseErr = cerr
		}
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" {
		if mt, _, _ := mime.ParseMediaType(ct); !strings.HasPrefix(mt, "image/") {
			return fmt.Errorf("unexpected MIME: %s", mt)
		}
	}

	part := dest + ".part"
	f, err := os.Create(part)
	if err != nil {
		return err
	}

	written, err := copyWithProgress(f, resp.Body, progress)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(part)
		return err
	}

	if cerr := f.Close(); cerr != nil {
		_ = os.Remove(part)
		return cerr
	}

	if written == 0 {
		_ = os.Remove(part)
		return fmt.Errorf("empty payload")
	}

	if progress != nil && resp.ContentLength > 0 && written < resp.ContentLength {
		progress(resp.ContentLength)
	}

	if err := os.Rename(part, dest); err != nil {
		_ = os.Remove(part)
		return err
	}

	return bodyCloseErr
}
