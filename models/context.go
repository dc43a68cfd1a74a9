package models

import (
	"encoding/json"
	"sort"
	"time"
)

// MarketContext is the session's input payload. The engine treats it as
// opaque beyond listing price keys and rendering it into prompts.
type MarketContext struct {
	Prices map[string]Quote `json:"prices"`
	News   []NewsItem       `json:"news,omitempty"`
	Extra  map[string]any   `json:"extra,omitempty"`
}

type Quote struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	ChangePercent float64 `json:"change_percent"`
	Volume        int64   `json:"volume,omitempty"`
}

type NewsItem struct {
	Title       string    `json:"title"`
	Source      string    `json:"source,omitempty"`
	URL         string    `json:"url,omitempty"`
	PublishedAt time.Time `json:"published_at,omitempty"`
}

// Symbols lists the price keys in stable order.
func (mc *MarketContext) Symbols() []string {
	if mc == nil {
		return nil
	}
	syms := make([]string, 0, len(mc.Prices))
	for s := range mc.Prices {
		syms = append(syms, s)
	}
	sort.Strings(syms)
	return syms
}

// PriceOf returns the quoted price for a symbol, 0 if unknown.
func (mc *MarketContext) PriceOf(symbol string) float64 {
	if mc == nil {
		return 0
	}
	return mc.Prices[symbol].Price
}

// FormatForPrompt renders the context as indented JSON for inclusion in
// participant prompts.
func (mc *MarketContext) FormatForPrompt() string {
	if mc == nil {
		return "{}"
	}
	data, err := json.MarshalIndent(mc, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}
