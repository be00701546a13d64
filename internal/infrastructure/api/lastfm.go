package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// LastFMClient queries the Last.fm REST API.
type LastFMClient struct {
	apiKey string
	client *http.Client
}

func NewLastFMClient(apiKey string) *LastFMClient {
	return &LastFMClient{apiKey: apiKey, client: newHTTPClient()}
}

type Track struct {
	Artist     string
	Name       string
	NowPlaying bool
}

// RecentTrack returns the user's most recent (possibly currently playing)
// scrobble.
func (c *LastFMClient) RecentTrack(ctx context.Context, user string) (Track, error) {
	q := url.Values{}
	q.Set("method", "user.getrecenttracks")
	q.Set("user", user)
	q.Set("api_key", c.apiKey)
	q.Set("format", "json")
	q.Set("limit", "1")

	var payload struct {
		RecentTracks struct {
			Track []struct {
				Name   string `json:"name"`
				Artist struct {
					Text string `json:"#text"`
				} `json:"artist"`
				Attr struct {
					NowPlaying string `json:"nowplaying"`
				} `json:"@attr"`
			} `json:"track"`
		} `json:"recenttracks"`
	}

	err := getJSON(ctx, c.client, "https://ws.audioscrobbler.com/2.0/?"+q.Encode(), &payload)
	if err != nil {
		return Track{}, fmt.Errorf("lastfm: %w", err)
	}
	if len(payload.RecentTracks.Track) == 0 {
		return Track{}, fmt.Errorf("lastfm: no recent tracks for %s", user)
	}

	t := payload.RecentTracks.Track[0]
	return Track{
		Artist:     t.Artist.Text,
		Name:       t.Name,
		NowPlaying: t.Attr.NowPlaying == "true",
	}, nil
}
