package scrape

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/eivind-moen/comicdl/internal/ui"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seriesHTML = `<!DOCTYPE html>
<html><body>
<div class="name box"><h1> Codename Anastasia </h1></div>
<div class="detail-box">
  <div class="summary">An agent and a mafia boss
  cross paths.</div>
  <p><strong>Author(s):</strong> Janggun </p>
  <p><strong>Genre(s):</strong> Action , Romance</p>
  <p><strong>Status:</strong> Ongoing</p>
</div>
<script>var bookId = 42;</script>
</body></html>`

const chaptersHTML = `<ul>
<li><a href="/test-comic/chapter-2"><strong class="chapter-title">Chapter 2</strong></a></li>
<li><a href="/test-comic/chapter-1"><strong class="chapter-title">Chapter 1</strong></a></li>
<li><a href="/test-comic/chapter-1-5"><strong class="chapter-title">Chapter 1.5</strong></a></li>
<li><a href="/test-comic/extra"><strong class="chapter-title">Special Episode</strong></a></li>
<li><span>no link here</span></li>
</ul>`

func newTestScraper(t *testing.T, handler http.Handler) *Scraper {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	scr := NewScraper(srv.Client(), ui.NewLogger(false))
	scr.Base = srv.URL
	return scr
}

func testSiteHandler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/test-comic", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, seriesHTML)
	})
	mux.HandleFunc("/api/manga/42/chapters", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Requested-With") != "XMLHttpRequest" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		fmt.Fprint(w, chaptersHTML)
	})
	mux.HandleFunc("/test-comic/chapter-1", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<script>var chapImages = 'https://cdn.example.com/1.jpg, https://cdn.example.com/2.png?sig=abc ,https://cdn.example.com/3.webp';</script>`)
	})
	mux.HandleFunc("/test-comic/chapter-2", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>nothing here</body></html>`)
	})
	return mux
}

func TestGetSeries(t *testing.T) {
	scr := newTestScraper(t, testSiteHandler())

	series, chapters, err := scr.GetSeries(context.Background(), scr.Base+"/test-comic/chapter-7")
	require.NoError(t, err)

	assert.Equal(t, "Codename Anastasia", series.Title)
	assert.Equal(t, "An agent and a mafia boss cross paths.", series.Summary)
	assert.Equal(t, "Janggun", series.Writer)
	assert.Equal(t, "Action , Romance", series.Genre)
	assert.Equal(t, scr.Base+"/test-comic", series.Web)

	require.Len(t, chapters, 4)
	assert.Equal(t, "Chapter 1", chapters[0].Name)
	assert.Equal(t, "Chapter 1.5", chapters[1].Name)
	assert.Equal(t, "Chapter 2", chapters[2].Name)
	// unnumbered chapters sort last, keeping document order
	assert.Equal(t, "Special Episode", chapters[3].Name)

	assert.Equal(t, scr.Base+"/test-comic/chapter-1", chapters[0].URL)
}

func TestGetSeriesNoSlug(t *testing.T) {
	scr := newTestScraper(t, testSiteHandler())

	_, _, err := scr.GetSeries(context.Background(), scr.Base+"/")
	assert.Error(t, err)
}

func TestGetSeriesMissingBookID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/bare", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<div class="name box"><h1>Bare</h1></div>`)
	})
	scr := newTestScraper(t, mux)

	series, chapters, err := scr.GetSeries(context.Background(), scr.Base+"/bare")
	require.NoError(t, err)
	assert.Equal(t, "Bare", series.Title)
	assert.Empty(t, chapters)
}

func TestGetImages(t *testing.T) {
	scr := newTestScraper(t, testSiteHandler())

	urls, err := scr.GetImages(context.Background(), scr.Base+"/test-comic/chapter-1")
	require.NoError(t, err)

	assert.Equal(t, []string{
		"https://cdn.example.com/1.jpg",
		"https://cdn.example.com/2.png",
		"https://cdn.example.com/3.webp",
	}, urls)
}

func TestGetImagesEmptyListing(t *testing.T) {
	scr := newTestScraper(t, testSiteHandler())

	urls, err := scr.GetImages(context.Background(), scr.Base+"/test-comic/chapter-2")
	require.NoError(t, err)
	assert.Empty(t, urls)
}

func TestGetImagesBlockedPage(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/test-comic/chapter-3", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprint(w, `<html><body>Access denied</body></html>`)
	})
	scr := newTestScraper(t, mux)

	// a blocked chapter page is a listing failure, not an empty chapter
	urls, err := scr.GetImages(context.Background(), scr.Base+"/test-comic/chapter-3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Nil(t, urls)
}

func TestExtractSlug(t *testing.T) {
	assert.Equal(t, "eleceed", extractSlug("https://mangabuddy.com/eleceed"))
	assert.Equal(t, "eleceed", extractSlug("https://mangabuddy.com/eleceed/chapter-12"))
	assert.Equal(t, "eleceed", extractSlug("  https://mangabuddy.com/eleceed/  "))
	assert.Equal(t, "", extractSlug("https://mangabuddy.com/"))
}

func TestChapterNumber(t *testing.T) {
	assert.Equal(t, 12.0, chapterNumber("Chapter 12"))
	assert.Equal(t, 28.5, chapterNumber("Chapter 28.5: The Reveal"))
	assert.True(t, chapterNumber("Prologue") > 1e9)
}
