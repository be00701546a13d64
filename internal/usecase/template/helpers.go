package template

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/aymerick/raymond"

	"polybot/internal/domain"
	"polybot/internal/infrastructure/api"
	"polybot/internal/usecase/commands/cmderr"
)

const (
	maxSleep      = 10 * time.Second
	maxFetchBytes = 64 * 1024
)

func (e *Engine) registerHelpers(ctx context.Context, tpl *raymond.Template, inquiry InquiryContext, state *renderState) {
	out := func(s string) raymond.SafeString { return raymond.SafeString(s) }
	fail := func(err error) raymond.SafeString {
		state.fail(err)
		return ""
	}

	tpl.RegisterHelper("args", func() raymond.SafeString {
		return out(strings.Join(inquiry.Arguments, " "))
	})

	tpl.RegisterHelper("username", func() raymond.SafeString {
		return out(inquiry.DisplayName)
	})

	tpl.RegisterHelper("concat", func(options *raymond.Options) raymond.SafeString {
		parts := make([]string, 0, len(options.Params()))
		for _, p := range options.Params() {
			parts = append(parts, raymond.Str(p))
		}
		return out(strings.Join(parts, ""))
	})

	tpl.RegisterHelper("trim_matches", func(value, cutset string) raymond.SafeString {
		return out(strings.Trim(value, cutset))
	})

	tpl.RegisterHelper("choose", func(options *raymond.Options) raymond.SafeString {
		params := options.Params()
		if len(params) == 0 {
			return ""
		}
		return out(raymond.Str(params[rand.Intn(len(params))]))
	})

	tpl.RegisterHelper("sleep", func(options *raymond.Options) raymond.SafeString {
		if len(options.Params()) == 0 {
			return fail(cmderr.MissingArgument("seconds"))
		}
		seconds := options.ParamStr(0)
		secs, err := strconv.ParseFloat(seconds, 64)
		if err != nil {
			return fail(cmderr.InvalidArgument(seconds))
		}
		d := time.Duration(secs * float64(time.Second))
		if d > maxSleep {
			d = maxSleep
		}
		select {
		case <-ctx.Done():
		case <-time.After(d):
		}
		return ""
	})

	tpl.RegisterHelper("set", func(name, value string) raymond.SafeString {
		state.mu.Lock()
		state.vars[name] = value
		state.mu.Unlock()
		return ""
	})

	tpl.RegisterHelper("data_get", func(key string) raymond.SafeString {
		value, err := e.store.GetUserData(ctx, inquiry.User.ID, key)
		if err != nil {
			return fail(cmderr.Database(err))
		}
		return out(value)
	})

	tpl.RegisterHelper("data_set", func(key, value string) raymond.SafeString {
		if err := e.store.SetUserData(ctx, inquiry.User.ID, key, value); err != nil {
			return fail(cmderr.Database(err))
		}
		return ""
	})

	tpl.RegisterHelper("channel_get", func(key string) raymond.SafeString {
		if inquiry.ChannelID == 0 {
			return fail(cmderr.Generic(domain.ErrAnonymousChannel))
		}
		value, err := e.store.GetChannelData(ctx, inquiry.ChannelID, key)
		if err != nil {
			return fail(cmderr.Database(err))
		}
		return out(value)
	})

	tpl.RegisterHelper("channel_set", func(key, value string) raymond.SafeString {
		if inquiry.ChannelID == 0 {
			return fail(cmderr.Generic(domain.ErrAnonymousChannel))
		}
		if err := e.store.SetChannelData(ctx, inquiry.ChannelID, key, value); err != nil {
			return fail(cmderr.Database(err))
		}
		return ""
	})

	tpl.RegisterHelper("say", func(channel, text string) raymond.SafeString {
		target, err := domain.ParseChannelIdentifier(channel)
		if err != nil {
			return fail(cmderr.InvalidArgument(channel))
		}
		if err := e.sender.SendToChannel(ctx, target, text); err != nil {
			return fail(cmderr.Generic(err))
		}
		return ""
	})

	tpl.RegisterHelper("timeout", func(options *raymond.Options) raymond.SafeString {
		if e.mod == nil || inquiry.Channel.Kind != domain.ChannelTwitch {
			return fail(cmderr.Configuration("timeouts need a Twitch channel"))
		}
		if len(options.Params()) == 0 {
			return fail(cmderr.MissingArgument("seconds"))
		}
		seconds := options.ParamStr(0)
		secs, err := strconv.Atoi(seconds)
		if err != nil || secs <= 0 {
			return fail(cmderr.InvalidArgument(seconds))
		}
		reason := ""
		if len(options.Params()) > 1 {
			reason = options.ParamStr(1)
		}
		err = e.mod.TimeoutUser(ctx, inquiry.Channel.ID, inquiry.UserIdentifier.ID, secs, reason)
		if err != nil {
			return fail(cmderr.Generic(err))
		}
		return ""
	})

	tpl.RegisterHelper("script", func(source string) raymond.SafeString {
		if e.script == nil {
			return fail(cmderr.Configuration("scripting is not configured"))
		}
		result, err := e.script.Eval(ctx, source, inquiry.ChannelID)
		if err != nil {
			return fail(cmderr.Generic(err))
		}
		return out(result)
	})

	tpl.RegisterHelper("get", func(rawURL string) raymond.SafeString {
		body, err := fetchBody(ctx, rawURL)
		if err != nil {
			return fail(cmderr.Generic(err))
		}
		return out(body)
	})

	tpl.RegisterHelper("json", func(options *raymond.Options) raymond.SafeString {
		params := options.Params()
		if len(params) == 0 {
			return fail(cmderr.MissingArgument("json value"))
		}
		var value interface{}
		if err := json.Unmarshal([]byte(raymond.Str(params[0])), &value); err != nil {
			return fail(cmderr.InvalidArgument("json"))
		}
		for _, p := range params[1:] {
			value = digJSON(value, raymond.Str(p))
			if value == nil {
				return ""
			}
		}
		return out(raymond.Str(value))
	})

	e.registerAPIHelpers(ctx, tpl, inquiry, out, fail)
}

func (e *Engine) registerAPIHelpers(ctx context.Context, tpl *raymond.Template, inquiry InquiryContext,
	out func(string) raymond.SafeString, fail func(error) raymond.SafeString) {

	tpl.RegisterHelper("song", func() raymond.SafeString {
		if e.spotify == nil {
			return fail(cmderr.Configuration("spotify is not configured"))
		}
		refresh, err := e.store.GetUserData(ctx, inquiry.User.ID, "spotify_refresh_token")
		if err != nil {
			return fail(cmderr.Database(err))
		}
		if refresh == "" {
			return fail(cmderr.Configuration("no linked spotify account"))
		}
		access, err := e.spotify.RefreshToken(ctx, refresh)
		if err != nil {
			return fail(cmderr.Generic(err))
		}
		track, playing, err := e.spotify.CurrentlyPlaying(ctx, access)
		if err != nil {
			return fail(cmderr.Generic(err))
		}
		if !playing {
			return out("No song is currently playing")
		}
		return out(track.String())
	})

	tpl.RegisterHelper("lastfm", func(options *raymond.Options) raymond.SafeString {
		if e.lastfm == nil {
			return fail(cmderr.Configuration("lastfm is not configured"))
		}
		name := ""
		if len(options.Params()) > 0 {
			name = options.ParamStr(0)
		} else {
			stored, err := e.store.GetUserData(ctx, inquiry.User.ID, "lastfm_name")
			if err != nil {
				return fail(cmderr.Database(err))
			}
			name = stored
		}
		if name == "" {
			return fail(cmderr.MissingArgument("lastfm username"))
		}
		track, err := e.lastfm.RecentTrack(ctx, name)
		if err != nil {
			return fail(cmderr.Generic(err))
		}
		if track.NowPlaying {
			return out(fmt.Sprintf("%s - %s", track.Artist, track.Name))
		}
		return out(fmt.Sprintf("%s - %s (not currently playing)", track.Artist, track.Name))
	})

	tpl.RegisterHelper("translate", func(target string, options *raymond.Options) raymond.SafeString {
		if e.lingva == nil {
			return fail(cmderr.Configuration("translation is not configured"))
		}
		parts := make([]string, 0, len(options.Params()))
		for _, p := range options.Params() {
			parts = append(parts, raymond.Str(p))
		}
		text := strings.Join(parts, " ")
		if text == "" {
			return fail(cmderr.MissingArgument("text to translate"))
		}
		translated, err := e.lingva.Translate(ctx, "auto", target, text)
		if err != nil {
			return fail(cmderr.Generic(err))
		}
		return out(translated)
	})

	tpl.RegisterHelper("weather", func(options *raymond.Options) raymond.SafeString {
		if e.weather == nil {
			return fail(cmderr.Configuration("weather is not configured"))
		}
		place := ""
		if len(options.Params()) > 0 {
			parts := make([]string, 0, len(options.Params()))
			for _, p := range options.Params() {
				parts = append(parts, raymond.Str(p))
			}
			place = strings.Join(parts, " ")
		} else {
			stored, err := e.store.GetUserData(ctx, inquiry.User.ID, "location")
			if err != nil {
				return fail(cmderr.Database(err))
			}
			place = stored
		}
		if place == "" {
			return fail(cmderr.MissingArgument("location"))
		}
		w, err := e.weather.CurrentWeather(ctx, place)
		if err != nil {
			return fail(cmderr.Generic(err))
		}
		return out(formatWeather(w))
	})

	tpl.RegisterHelper("stock", func(symbol string) raymond.SafeString {
		if e.finnhub == nil {
			return fail(cmderr.Configuration("stock quotes are not configured"))
		}
		quote, err := e.finnhub.Quote(ctx, strings.ToUpper(symbol))
		if err != nil {
			return fail(cmderr.Generic(err))
		}
		return out(fmt.Sprintf("%s: %.2f (%+.2f%%)", strings.ToUpper(symbol), quote.Current, quote.PercentChange))
	})
}

func formatWeather(w api.Weather) string {
	return fmt.Sprintf("%s, %s: %s, %.1f°C, humidity %d%%, wind %.1f m/s",
		w.Place, w.Country, w.Description, w.TempC, w.Humidity, w.WindSpeed)
}

func fetchBody(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", err
	}
	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

func digJSON(value interface{}, key string) interface{} {
	switch v := value.(type) {
	case map[string]interface{}:
		return v[key]
	case []interface{}:
		idx, err := strconv.Atoi(key)
		if err != nil || idx < 0 || idx >= len(v) {
			return nil
		}
		return v[idx]
	default:
		return nil
	}
}
