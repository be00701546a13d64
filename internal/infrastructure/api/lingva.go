package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// LingvaClient talks to a Lingva translation instance.
type LingvaClient struct {
	baseURL string
	client  *http.Client
}

func NewLingvaClient(instanceURL string) *LingvaClient {
	return &LingvaClient{
		baseURL: strings.TrimRight(instanceURL, "/"),
		client:  newHTTPClient(),
	}
}

// Translate translates text between the given language codes. "auto" is a
// valid source.
func (c *LingvaClient) Translate(ctx context.Context, source, target, text string) (string, error) {
	endpoint := fmt.Sprintf("%s/api/v1/%s/%s/%s",
		c.baseURL, url.PathEscape(source), url.PathEscape(target), url.PathEscape(text))

	var payload struct {
		Translation string `json:"translation"`
	}
	if err := getJSON(ctx, c.client, endpoint, &payload); err != nil {
		return "", fmt.Errorf("lingva: %w", err)
	}
	return payload.Translation, nil
}
