package downloader

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/eivind-moen/comicdl/internal/ui"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDownloader(retries int) *Downloader {
	d := New(http.DefaultClient, ui.NewLogger(false), retries, 5*time.Second)
	d.backoffUnit = time.Millisecond
	return d
}

// recordingProgress counts ticks so tests can assert the final
// progress state without a terminal.
type recordingProgress struct {
	mu       sync.Mutex
	done     int
	total    int
	markDone int
}

func (r *recordingProgress) SetTotal(total int) {
	r.mu.Lock()
	r.total = total
	r.mu.Unlock()
}

func (r *recordingProgress) Update(done, total int, _ int64) {
	r.mu.Lock()
	r.done = done
	r.total = total
	r.mu.Unlock()
}

func (r *recordingProgress) MarkDone() {
	r.mu.Lock()
	r.markDone++
	r.mu.Unlock()
}

func TestPageName(t *testing.T) {
	assert.Equal(t, "page_001.png", PageName(0, "https://cdn.example.com/a/b/01.png"))
	assert.Equal(t, "page_002.jpg", PageName(1, "https://cdn.example.com/a/b/02.jpg?sig=abc"))
	assert.Equal(t, "page_003.jpg", PageName(2, "https://cdn.example.com/a/b/noext"))
	assert.Equal(t, "page_010.webp", PageName(9, "https://cdn.example.com/x.WEBP"))
}

func TestPageNameCollisionFree(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		name := PageName(i, "https://cdn.example.com/img.jpg")
		assert.False(t, seen[name], "duplicate name %s", name)
		seen[name] = true
	}
}

func TestDownloadBatchPartialFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/2.jpg") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		fmt.Fprintf(w, "payload for %s", r.URL.Path)
	}))
	defer srv.Close()

	dir := t.TempDir()
	urls := []string{
		srv.URL + "/1.jpg",
		srv.URL + "/2.jpg",
		srv.URL + "/3.jpg",
	}

	d := newTestDownloader(2)
	rec := &recordingProgress{}

	res, err := d.DownloadBatch(context.Background(), urls, dir, srv.URL, 2, rec)
	require.NoError(t, err)

	assert.Equal(t, []bool{true, false, true}, res.Outcomes)
	assert.Len(t, res.Files, 2)

	assert.FileExists(t, filepath.Join(dir, "page_001.jpg"))
	assert.NoFileExists(t, filepath.Join(dir, "page_002.jpg"))
	assert.FileExists(t, filepath.Join(dir, "page_003.jpg"))

	assert.Equal(t, 3, rec.done)
	assert.Equal(t, 3, rec.total)
	assert.Equal(t, 1, rec.markDone)
}

func TestDownloadBatchEmpty(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "chapter")

	d := newTestDownloader(1)
	rec := &recordingProgress{}

	res, err := d.DownloadBatch(context.Background(), nil, dir, "", 2, rec)
	require.NoError(t, err)

	assert.Empty(t, res.Outcomes)
	assert.Empty(t, res.Files)
	assert.DirExists(t, dir)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Equal(t, 1, rec.markDone)
}

func TestDownloadBatchPeakConcurrency(t *testing.T) {
	var current, peak int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur := atomic.AddInt64(&current, 1)
		for {
			old := atomic.LoadInt64(&peak)
			if cur <= old || atomic.CompareAndSwapInt64(&peak, old, cur) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt64(&current, -1)

		w.Header().Set("Content-Type", "image/jpeg")
		fmt.Fprint(w, "x")
	}))
	defer srv.Close()

	urls := make([]string, 20)
	for i := range urls {
		urls[i] = fmt.Sprintf("%s/%d.jpg", srv.URL, i)
	}

	d := newTestDownloader(1)
	res, err := d.DownloadBatch(context.Background(), urls, t.TempDir(), srv.URL, 3, NopProgress{})
	require.NoError(t, err)

	assert.Len(t, res.Outcomes, 20)
	for i, ok := range res.Outcomes {
		assert.True(t, ok, "page %d", i)
	}
	assert.LessOrEqual(t, atomic.LoadInt64(&peak), int64(3))
}

func TestFetchRetrySucceedsOnFinalAttempt(t *testing.T) {
	var calls int64

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt64(&calls, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "image/png")
		fmt.Fprint(w, "final payload")
	}))
	defer srv.Close()

	d := newTestDownloader(3)

	var slept []time.Duration
	d.sleep = func(_ context.Context, dur time.Duration) error {
		slept = append(slept, dur)
		return nil
	}

	dest := filepath.Join(t.TempDir(), "page_001.png")
	ok := d.fetchWithRetry(context.Background(), srv.URL+"/p.png", dest, srv.URL, nil)

	assert.True(t, ok)
	assert.Equal(t, []time.Duration{d.backoffUnit, 2 * d.backoffUnit}, slept)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "final payload", string(data))
}

func TestFetchRetryExhaustedLeavesNoFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "page_001.jpg")

	d := newTestDownloader(3)
	d.sleep = func(context.Context, time.Duration) error { return nil }

	ok := d.fetchWithRetry(context.Background(), srv.URL+"/p.jpg", dest, srv.URL, nil)

	assert.False(t, ok)
	assert.NoFileExists(t, dest)
	assert.NoFileExists(t, dest+".part")
}

func TestFetchEmptyPayloadFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		// 200 with no body
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "page_001.jpg")

	d := newTestDownloader(1)
	err := d.fetchOnce(context.Background(), srv.URL+"/p.jpg", dest, srv.URL, nil)

	assert.ErrorContains(t, err, "empty payload")
	assert.NoFileExists(t, dest)
	assert.NoFileExists(t, dest+".part")
}

func TestFetchRejectsNonImageMIME(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, "<html>cf challenge</html>")
	}))
	defer srv.Close()

	d := newTestDownloader(1)
	dest := filepath.Join(t.TempDir(), "page_001.jpg")

	err := d.fetchOnce(context.Background(), srv.URL+"/p.jpg", dest, srv.URL, nil)
	assert.ErrorContains(t, err, "unexpected MIME")
	assert.NoFileExists(t, dest)
}

func TestDownloadBatchOverwritesExisting(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		fmt.Fprint(w, "fresh")
	}))
	defer srv.Close()

	dir := t.TempDir()
	dest := filepath.Join(dir, "page_001.jpg")
	require.NoError(t, os.WriteFile(dest, []byte("stale"), 0644))

	d := newTestDownloader(1)
	res, err := d.DownloadBatch(context.Background(), []string{srv.URL + "/p.jpg"}, dir, srv.URL, 1, NopProgress{})
	require.NoError(t, err)
	require.Equal(t, []bool{true}, res.Outcomes)

	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(data))
}

func TestBackoffSchedule(t *testing.T) {
	d := New(http.DefaultClient, ui.NewLogger(false), 10, time.Second)

	assert.Equal(t, 1*time.Second, d.backoff(0))
	assert.Equal(t, 2*time.Second, d.backoff(1))
	assert.Equal(t, 4*time.Second, d.backoff(2))
	assert.Equal(t, 8*time.Second, d.backoff(3))
	assert.Equal(t, maxBackoff, d.backoff(20))
}
