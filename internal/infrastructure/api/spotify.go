package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// SpotifyClient reads the currently playing track for a user who linked their
// Spotify account. Tokens are supplied per call; refresh happens against the
// accounts service with the app credentials.
type SpotifyClient struct {
	clientID     string
	clientSecret string
	client       *http.Client
}

func NewSpotifyClient(clientID, clientSecret string) *SpotifyClient {
	return &SpotifyClient{
		clientID:     clientID,
		clientSecret: clientSecret,
		client:       newHTTPClient(),
	}
}

type SpotifyTrack struct {
	Artist   string
	Name     string
	Position string
	Length   string
}

func (t SpotifyTrack) String() string {
	return fmt.Sprintf("%s - %s [%s/%s]", t.Artist, t.Name, t.Position, t.Length)
}

// RefreshToken exchanges a refresh token for a fresh access token.
func (c *SpotifyClient) RefreshToken(ctx context.Context, refreshToken string) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		"https://accounts.spotify.com/api/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("spotify: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.clientID, c.clientSecret)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("spotify: token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("spotify: token: unexpected status %s", resp.Status)
	}

	var payload struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("spotify: token: %w", err)
	}
	return payload.AccessToken, nil
}

// CurrentlyPlaying returns the track playing right now, or ok=false when
// nothing is playing.
func (c *SpotifyClient) CurrentlyPlaying(ctx context.Context, accessToken string) (SpotifyTrack, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		"https://api.spotify.com/v1/me/player/currently-playing", nil)
	if err != nil {
		return SpotifyTrack{}, false, fmt.Errorf("spotify: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return SpotifyTrack{}, false, fmt.Errorf("spotify: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return SpotifyTrack{}, false, nil
	}
	if resp.StatusCode != http.StatusOK {
		return SpotifyTrack{}, false, fmt.Errorf("spotify: unexpected status %s", resp.Status)
	}

	var payload struct {
		ProgressMs int  `json:"progress_ms"`
		IsPlaying  bool `json:"is_playing"`
		Item       struct {
			Name       string `json:"name"`
			DurationMs int    `json:"duration_ms"`
			Artists    []struct {
				Name string `json:"name"`
			} `json:"artists"`
		} `json:"item"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return SpotifyTrack{}, false, fmt.Errorf("spotify: %w", err)
	}
	if !payload.IsPlaying || payload.Item.Name == "" {
		return SpotifyTrack{}, false, nil
	}

	artists := make([]string, 0, len(payload.Item.Artists))
	for _, a := range payload.Item.Artists {
		artists = append(artists, a.Name)
	}

	return SpotifyTrack{
		Artist:   strings.Join(artists, ", "),
		Name:     payload.Item.Name,
		Position: formatMillis(payload.ProgressMs),
		Length:   formatMillis(payload.Item.DurationMs),
	}, true, nil
}

func formatMillis(ms int) string {
	total := ms / 1000
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
