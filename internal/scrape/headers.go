package scrape

import "net/http"

// baseHeaders returns a fresh copy of the headers every site request
// starts from. Callers add their own Referer or overrides to the
// copy; the base set itself is never mutated.
func baseHeaders() http.Header {
	h := make(http.Header)
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	return h
}

func buildHeaders(referer string, extra map[string]string) http.Header {
	h := baseHeaders()

	if referer == "" {
		referer = BaseURL
	}
	h.Set("Referer", referer)

	for k, v := range extra {
		h.Set(k, v)
	}

	return h
}
