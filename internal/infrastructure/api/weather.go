// Package api holds the plain JSON-over-HTTP clients for the third party
// services reachable from template helpers. Each client exposes simple
// request/response functions; callers treat any error as renderable text.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

func getJSON(ctx context.Context, client *http.Client, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// OwmClient queries the OpenWeatherMap current weather endpoint.
type OwmClient struct {
	apiKey string
	client *http.Client
}

func NewOwmClient(apiKey string) *OwmClient {
	return &OwmClient{apiKey: apiKey, client: newHTTPClient()}
}

type Weather struct {
	Place       string
	Country     string
	Description string
	TempC       float64
	Humidity    int
	WindSpeed   float64
}

func (c *OwmClient) CurrentWeather(ctx context.Context, place string) (Weather, error) {
	q := url.Values{}
	q.Set("q", place)
	q.Set("appid", c.apiKey)
	q.Set("units", "metric")

	var payload struct {
		Name string `json:"name"`
		Sys  struct {
			Country string `json:"country"`
		} `json:"sys"`
		Weather []struct {
			Description string `json:"description"`
		} `json:"weather"`
		Main struct {
			Temp     float64 `json:"temp"`
			Humidity int     `json:"humidity"`
		} `json:"main"`
		Wind struct {
			Speed float64 `json:"speed"`
		} `json:"wind"`
	}

	err := getJSON(ctx, c.client, "https://api.openweathermap.org/data/2.5/weather?"+q.Encode(), &payload)
	if err != nil {
		return Weather{}, fmt.Errorf("owm: %w", err)
	}

	w := Weather{
		Place:     payload.Name,
		Country:   payload.Sys.Country,
		TempC:     payload.Main.Temp,
		Humidity:  payload.Main.Humidity,
		WindSpeed: payload.Wind.Speed,
	}
	if len(payload.Weather) > 0 {
		w.Description = payload.Weather[0].Description
	}
	return w, nil
}
