package scrape

import (
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/eivind-moen/comicdl/internal/ui"
	"github.com/eivind-moen/comicdl/internal/util"
)

const BaseURL = "https://mangabuddy.com"

var (
	reBookID     = regexp.MustCompile(`var\s+bookId\s*=\s*(\d+);`)
	reChapImages = regexp.MustCompile(`var\s+chapImages\s*=\s*['"]([^'"]+)['"]`)
	reChapterNum = regexp.MustCompile(`(?i)Chapter\s+([\d.]+)`)
	reQuery      = regexp.MustCompile(`\?.*$`)
)

// Series holds the metadata scraped from a series page, keyed the way
// the ComicInfo writer expects it.
type Series struct {
	Title   string
	Summary string
	Writer  string
	Genre   string
	Web     string
}

type Chapter struct {
	Name   string
	URL    string
	Number float64 // parsed from the title; +Inf when no number is present
}

type Scraper struct {
	client *http.Client
	log    *ui.Logger

	// Base is the site origin. Overridable so tests can point the
	// scraper at a local server.
	Base string
}

func NewScraper(c *http.Client, log *ui.Logger) *Scraper {
	return &Scraper{
		client: c,
		log:    log,
		Base:   BaseURL,
	}
}

// GetSeries scrapes title, metadata and the ordered chapter listing
// for a series URL. Only the first path segment (the slug) of the
// given URL matters.
func (s *Scraper) GetSeries(ctx context.Context, rawURL string) (Series, []Chapter, error) {
	slug := extractSlug(rawURL)
	if slug == "" {
		return Series{}, nil, fmt.Errorf("no series slug in %q", rawURL)
	}

	seriesURL := s.Base + "/" + slug

	html, err := s.fetchPage(ctx, seriesURL, "", nil)
	if err != nil {
		return Series{}, nil, fmt.Errorf("series page: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Series{}, nil, err
	}

	series := extractSeries(doc, seriesURL)

	m := reBookID.FindStringSubmatch(html)
	if m == nil {
		s.log.Errorf("Could not find bookId on series page %s\n", seriesURL)
		return series, nil, nil
	}

	chapters, err := s.fetchChapters(ctx, m[1])
	if err != nil {
		return series, nil, fmt.Errorf("chapter listing: %w", err)
	}

	return series, chapters, nil
}

// GetImages returns the ordered page image URLs for a chapter,
// query strings stripped. An empty slice with a nil error means the
// chapter page carried no image list; an error means the listing
// itself could not be fetched.
func (s *Scraper) GetImages(ctx context.Context, chapterURL string) ([]string, error) {
	html, err := s.fetchPage(ctx, chapterURL, s.Base, nil)
	if err != nil {
		return nil, err
	}

	m := reChapImages.FindStringSubmatch(html)
	if m == nil {
		return []string{}, nil
	}

	urls := []string{}
	for _, img := range strings.Split(m[1], ",") {
		img = strings.TrimSpace(img)
		if img == "" {
			continue
		}
		urls = append(urls, reQuery.ReplaceAllString(img, ""))
	}

	return urls, nil
}

func (s *Scraper) fetchPage(ctx context.Context, target, referer string, extra map[string]string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", target, nil)
	if err != nil {
		return "", err
	}

	for k, vs := range buildHeaders(referer, extra) {
		for _, v := range vs {
			req.Header.Set(k, v)
		}
	}

	resp, err := util.DoWithRetry(s.client, req, 3, 500*time.Millisecond)
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	// 4xx (a Cloudflare block, typically) still carries an HTML body;
	// it must not be mistaken for page content.
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("GET %s: HTTP %d", target, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	return string(data), err
}

func (s *Scraper) fetchChapters(ctx context.Context, bookID string) ([]Chapter, error) {
	apiURL := fmt.Sprintf("%s/api/manga/%s/chapters?source=detail", s.Base, bookID)

	html, err := s.fetchPage(ctx, apiURL, s.Base, map[string]string{
		"X-Requested-With": "XMLHttpRequest",
	})
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, err
	}

	type row struct {
		ch  Chapter
		idx int
	}
	rows := []row{}

	doc.Find("li").Each(func(idx int, li *goquery.Selection) {
		a := li.Find("a").First()
		title := li.Find("strong.chapter-title").First()
		if a.Length() == 0 || title.Length() == 0 {
			return
		}

		href := strings.TrimSpace(a.AttrOr("href", ""))
		if href == "" {
			return
		}

		name := strings.TrimSpace(title.Text())
		rows = append(rows, row{
			ch: Chapter{
				Name:   name,
				URL:    s.absolute(href),
				Number: chapterNumber(name),
			},
			idx: idx,
		})
	})

	sort.SliceStable(rows, func(i, j int) bool {
		if rows[i].ch.Number != rows[j].ch.Number {
			return rows[i].ch.Number < rows[j].ch.Number
		}
		return rows[i].idx < rows[j].idx
	})

	chapters := make([]Chapter, len(rows))
	for i, r := range rows {
		chapters[i] = r.ch
	}

	return chapters, nil
}

func (s *Scraper) absolute(href string) string {
	if strings.HasPrefix(href, "http") {
		return href
	}
	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}

	return s.Base + href
}

func extractSlug(rawURL string) string {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return ""
	}

	path := strings.Trim(u.Path, "/")
	if path == "" {
		return ""
	}

	return strings.Split(path, "/")[0]
}

func extractSeries(doc *goquery.Document, pageURL string) Series {
	series := Series{
		Title: "Unknown Title",
		Web:   pageURL,
	}

	if h1 := doc.Find("div.name.box h1").First(); h1.Length() > 0 {
		series.Title = strings.TrimSpace(h1.Text())
	}

	detail := doc.Find("div.detail-box").First()
	if detail.Length() == 0 {
		return series
	}

	if summary := detail.Find("div.summary").First(); summary.Length() > 0 {
		series.Summary = collapseSpace(summary.Text())
	}

	detail.Find("p").Each(func(_ int, p *goquery.Selection) {
		strong := p.Find("strong").First()
		if strong.Length() == 0 {
			return
		}

		key := strings.TrimSuffix(strings.TrimSpace(strong.Text()), ":")
		value := collapseSpace(p.Text())
		value = strings.TrimSpace(strings.TrimPrefix(value, collapseSpace(strong.Text())))
		value = strings.Trim(value, " :")

		switch key {
		case "Author(s)":
			series.Writer = value
		case "Genre(s)":
			series.Genre = value
		}
	})

	return series
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func chapterNumber(name string) float64 {
	m := reChapterNum.FindStringSubmatch(name)
	if m == nil {
		return math.Inf(1)
	}

	n, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return math.Inf(1)
	}

	return n
}
