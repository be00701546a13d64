package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// FinnhubClient fetches stock quotes from Finnhub.
type FinnhubClient struct {
	apiKey string
	client *http.Client
}

func NewFinnhubClient(apiKey string) *FinnhubClient {
	return &FinnhubClient{apiKey: apiKey, client: newHTTPClient()}
}

type Quote struct {
	Current       float64
	PreviousClose float64
	Change        float64
	PercentChange float64
}

func (c *FinnhubClient) Quote(ctx context.Context, symbol string) (Quote, error) {
	q := url.Values{}
	q.Set("symbol", symbol)
	q.Set("token", c.apiKey)

	var payload struct {
		Current       float64 `json:"c"`
		Change        float64 `json:"d"`
		PercentChange float64 `json:"dp"`
		PreviousClose float64 `json:"pc"`
	}
	err := getJSON(ctx, c.client, "https://finnhub.io/api/v1/quote?"+q.Encode(), &payload)
	if err != nil {
		return Quote{}, fmt.Errorf("finnhub: %w", err)
	}
	if payload.Current == 0 && payload.PreviousClose == 0 {
		return Quote{}, fmt.Errorf("finnhub: no quote for %q", symbol)
	}

	return Quote{
		Current:       payload.Current,
		PreviousClose: payload.PreviousClose,
		Change:        payload.Change,
		PercentChange: payload.PercentChange,
	}, nil
}
