package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

const newsPage = `<html><body>
<h3><a href="/news/apple-earnings-beat.html">Apple earnings beat expectations</a></h3>
<h3><a href="https://example.com/supply-chain">Supply chain pressures ease</a></h3>
<h3><a href="/news/blank.html">   </a></h3>
</body></html>`

func TestHeadlinesParsing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/quote/AAPL/news" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(newsPage))
	}))
	defer srv.Close()

	b := NewBuilder()
	b.newsBaseURL = srv.URL

	items, err := b.Headlines(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("Headlines: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d headlines, want 2 (blank titles dropped)", len(items))
	}
	if items[0].Title != "Apple earnings beat expectations" {
		t.Fatalf("title = %q", items[0].Title)
	}
	if items[0].URL != srv.URL+"/news/apple-earnings-beat.html" {
		t.Fatalf("relative url not resolved: %q", items[0].URL)
	}
	if items[1].URL != "https://example.com/supply-chain" {
		t.Fatalf("absolute url rewritten: %q", items[1].URL)
	}
}

func TestHeadlinesCapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html><body>"))
		for i := 0; i < 30; i++ {
			w.Write([]byte(`<h3><a href="/n">Headline</a></h3>`))
		}
		w.Write([]byte("</body></html>"))
	}))
	defer srv.Close()

	b := NewBuilder()
	b.newsBaseURL = srv.URL
	b.maxHeadlines = 5

	items, err := b.Headlines(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("Headlines: %v", err)
	}
	if len(items) != 5 {
		t.Fatalf("got %d headlines, want cap of 5", len(items))
	}
}

func TestHeadlinesHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	b := NewBuilder()
	b.newsBaseURL = srv.URL

	if _, err := b.Headlines(context.Background(), "AAPL"); err == nil {
		t.Fatal("non-200 must surface as an error")
	}
}

func TestBuildRequiresSymbols(t *testing.T) {
	if _, err := NewBuilder().Build(context.Background(), nil); err == nil {
		t.Fatal("empty symbol list must error")
	}
}
