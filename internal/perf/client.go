package perf

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/dyike/CrewGo/models"
)

// Client fetches participant track records from the portfolio backend.
// It implements consensus.PerformanceSource.
type Client struct {
	client *resty.Client
}

// NewClient builds a backend client. baseURL is the portfolio service
// root, for example http://localhost:8000.
func NewClient(baseURL string) *Client {
	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetTimeout(15 * time.Second)
	client.SetHeader("User-Agent", "CrewGo/1.0")

	return &Client{client: client}
}

// performanceResponse mirrors the backend payload.
type performanceResponse struct {
	AgentName     string  `json:"agent_name"`
	TotalTrades   int     `json:"total_trades"`
	WinningTrades int     `json:"winning_trades"`
	SharpeRatio   float64 `json:"sharpe_ratio"`
	TotalPnLPct   float64 `json:"total_pnl_percent"`
}

// Performance returns the live track record for one participant.
// Callers treat an error as "no history" and fall back to a neutral
// vote weight, so this never needs retries.
func (c *Client) Performance(ctx context.Context, participant string) (models.PerformanceRecord, error) {
	var record models.PerformanceRecord

	resp, err := c.client.R().
		SetContext(ctx).
		Get(fmt.Sprintf("/api/portfolio/%s/performance", participant))
	if err != nil {
		return record, fmt.Errorf("failed to fetch performance for %s: %w", participant, err)
	}
	if resp.StatusCode() != 200 {
		return record, fmt.Errorf("performance API error %d: %s", resp.StatusCode(), resp.String())
	}

	var payload performanceResponse
	if err := json.Unmarshal(resp.Body(), &payload); err != nil {
		return record, fmt.Errorf("failed to parse performance response: %w", err)
	}

	record = models.PerformanceRecord{
		Participant:     participant,
		TotalTrades:     payload.TotalTrades,
		WinningTrades:   payload.WinningTrades,
		SharpeRatio:     payload.SharpeRatio,
		TotalPnLPercent: payload.TotalPnLPct,
	}
	return record, nil
}
