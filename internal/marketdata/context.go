// Package marketdata assembles the MarketContext a crew deliberates
// over: live quotes per symbol plus recent headlines.
package marketdata

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/piquette/finance-go/quote"

	"github.com/dyike/CrewGo/models"
)

// Builder fetches quotes and headlines. The zero value is not usable;
// construct with NewBuilder.
type Builder struct {
	client       *resty.Client
	newsBaseURL  string
	maxHeadlines int

	mu       sync.RWMutex
	quotes   map[string]cachedQuote
	quoteTTL time.Duration
}

type cachedQuote struct {
	quote   models.Quote
	fetched time.Time
}

func NewBuilder() *Builder {
	client := resty.New()
	client.SetTimeout(30 * time.Second)
	client.SetHeader("User-Agent", "Mozilla/5.0 (compatible; CrewGo/1.0)")

	return &Builder{
		client:       client,
		newsBaseURL:  "https://finance.yahoo.com",
		maxHeadlines: 10,
		quotes:       make(map[string]cachedQuote),
		quoteTTL:     time.Minute,
	}
}

// Build assembles the context for the given symbols. Quotes are
// required: a symbol with no quote is dropped with a log line, and an
// empty quote set is an error. Headlines are best effort.
func (b *Builder) Build(ctx context.Context, symbols []string) (*models.MarketContext, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("at least one symbol is required")
	}

	prices := make(map[string]models.Quote, len(symbols))
	for _, symbol := range symbols {
		symbol = strings.ToUpper(strings.TrimSpace(symbol))
		if symbol == "" {
			continue
		}
		q, err := b.Quote(symbol)
		if err != nil {
			log.Printf("quote dropped symbol=%s: %v", symbol, err)
			continue
		}
		prices[symbol] = q
	}
	if len(prices) == 0 {
		return nil, fmt.Errorf("no quotes available for %s", strings.Join(symbols, ", "))
	}

	mctx := &models.MarketContext{Prices: prices}
	for symbol := range prices {
		news, err := b.Headlines(ctx, symbol)
		if err != nil {
			log.Printf("headlines skipped symbol=%s: %v", symbol, err)
			continue
		}
		mctx.News = append(mctx.News, news...)
		if len(mctx.News) >= b.maxHeadlines {
			mctx.News = mctx.News[:b.maxHeadlines]
			break
		}
	}
	return mctx, nil
}

// Quote fetches the current quote for one symbol, serving repeats from
// a short-lived in-memory cache.
func (b *Builder) Quote(symbol string) (models.Quote, error) {
	b.mu.RLock()
	cached, ok := b.quotes[symbol]
	b.mu.RUnlock()
	if ok && time.Since(cached.fetched) <= b.quoteTTL {
		log.Printf("Using cached quote for %s", symbol)
		return cached.quote, nil
	}

	q, err := quote.Get(symbol)
	if err != nil {
		return models.Quote{}, fmt.Errorf("failed to get quote for %s: %w", symbol, err)
	}
	if q == nil {
		return models.Quote{}, fmt.Errorf("no quote data for %s", symbol)
	}

	result := models.Quote{
		Symbol:        symbol,
		Price:         q.RegularMarketPrice,
		ChangePercent: q.RegularMarketChangePercent,
		Volume:        int64(q.RegularMarketVolume),
	}
	b.mu.Lock()
	b.quotes[symbol] = cachedQuote{quote: result, fetched: time.Now()}
	b.mu.Unlock()
	return result, nil
}

// Headlines scrapes recent Yahoo Finance headlines for a symbol.
func (b *Builder) Headlines(ctx context.Context, symbol string) ([]models.NewsItem, error) {
	resp, err := b.client.R().
		SetContext(ctx).
		Get(fmt.Sprintf("%s/quote/%s/news", b.newsBaseURL, symbol))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch news for %s: %w", symbol, err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("HTTP error %d when fetching news for %s", resp.StatusCode(), symbol)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(resp.String()))
	if err != nil {
		return nil, fmt.Errorf("failed to parse news HTML: %w", err)
	}

	var items []models.NewsItem
	doc.Find("h3 a").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		title := strings.TrimSpace(sel.Text())
		if title == "" {
			return true
		}
		item := models.NewsItem{Title: title, Source: "Yahoo Finance"}
		if href, ok := sel.Attr("href"); ok {
			if strings.HasPrefix(href, "/") {
				href = b.newsBaseURL + href
			}
			item.URL = href
		}
		items = append(items, item)
		return len(items) < b.maxHeadlines
	})
	return items, nil
}
