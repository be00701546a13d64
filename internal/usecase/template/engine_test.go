package template

import (
	"context"
	"strings"
	"testing"

	"go.uber.org/zap"

	"polybot/internal/domain"
)

type fakeStore struct {
	domain.Store
	userData    map[string]string
	channelData map[string]string
}

func (f *fakeStore) GetUserData(_ context.Context, _ int64, key string) (string, error) {
	return f.userData[key], nil
}

func (f *fakeStore) SetUserData(_ context.Context, _ int64, key, value string) error {
	f.userData[key] = value
	return nil
}

func (f *fakeStore) GetChannelData(_ context.Context, _ int64, key string) (string, error) {
	return f.channelData[key], nil
}

func (f *fakeStore) SetChannelData(_ context.Context, _ int64, key, value string) error {
	f.channelData[key] = value
	return nil
}

type fakeSender struct {
	sent []string
}

func (f *fakeSender) SendToChannel(_ context.Context, channel domain.ChannelIdentifier, text string) error {
	f.sent = append(f.sent, channel.Canonical()+" "+text)
	return nil
}

func newTestEngine(store *fakeStore, sender *fakeSender) *Engine {
	return NewEngine(EngineDeps{
		Store:  store,
		Sender: sender,
		Log:    zap.NewNop(),
	})
}

func testInquiry(args ...string) InquiryContext {
	return InquiryContext{
		User:           domain.User{ID: 1, TwitchID: "123"},
		UserIdentifier: domain.UserIdentifier{Platform: domain.PlatformTwitch, ID: "123"},
		DisplayName:    "tester",
		Channel:        domain.ChannelIdentifier{Kind: domain.ChannelTwitch, ID: "456"},
		ChannelID:      7,
		Arguments:      args,
	}
}

func TestRenderArguments(t *testing.T) {
	e := newTestEngine(&fakeStore{userData: map[string]string{}}, &fakeSender{})

	got, err := e.Render(context.Background(), "Hi {{arguments.[0]}}!", testInquiry("World"))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "Hi World!" {
		t.Fatalf("got %q, want %q", got, "Hi World!")
	}
}

func TestRenderArgsJoin(t *testing.T) {
	e := newTestEngine(&fakeStore{userData: map[string]string{}}, &fakeSender{})

	got, err := e.Render(context.Background(), "{{args}}", testInquiry("a", "b", "c"))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "a b c" {
		t.Fatalf("got %q", got)
	}
}

func TestRenderChooseStaysInSet(t *testing.T) {
	e := newTestEngine(&fakeStore{userData: map[string]string{}}, &fakeSender{})

	for i := 0; i < 20; i++ {
		got, err := e.Render(context.Background(), `{{choose "red" "green" "blue"}}`, testInquiry())
		if err != nil {
			t.Fatalf("Render: %v", err)
		}
		if got != "red" && got != "green" && got != "blue" {
			t.Fatalf("choose produced %q", got)
		}
	}
}

func TestRenderSetAndVars(t *testing.T) {
	e := newTestEngine(&fakeStore{userData: map[string]string{}}, &fakeSender{})

	got, err := e.Render(context.Background(), `{{set "name" "gopher"}}hello {{vars.name}}`, testInquiry())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "hello gopher" {
		t.Fatalf("got %q", got)
	}
}

func TestRenderUserScratch(t *testing.T) {
	store := &fakeStore{userData: map[string]string{}}
	e := newTestEngine(store, &fakeSender{})

	if _, err := e.Render(context.Background(), `{{data_set "points" "42"}}`, testInquiry()); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if store.userData["points"] != "42" {
		t.Fatalf("data_set did not persist, store: %v", store.userData)
	}

	got, err := e.Render(context.Background(), `{{data_get "points"}}`, testInquiry())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "42" {
		t.Fatalf("got %q", got)
	}
}

func TestRenderSayDeliversToChannel(t *testing.T) {
	sender := &fakeSender{}
	e := newTestEngine(&fakeStore{userData: map[string]string{}}, sender)

	got, err := e.Render(context.Background(), `{{say "twitch:99" "hello there"}}`, testInquiry())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "" {
		t.Fatalf("say should render nothing, got %q", got)
	}
	if len(sender.sent) != 1 || sender.sent[0] != "twitch:99 hello there" {
		t.Fatalf("sent = %v", sender.sent)
	}
}

func TestRenderEmptyOutput(t *testing.T) {
	e := newTestEngine(&fakeStore{userData: map[string]string{}}, &fakeSender{})

	got, err := e.Render(context.Background(), `{{set "a" "b"}}`, testInquiry())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}

func TestRenderMisconfiguredHelperFails(t *testing.T) {
	e := newTestEngine(&fakeStore{userData: map[string]string{}}, &fakeSender{})

	_, err := e.Render(context.Background(), `{{song}}`, testInquiry())
	if err == nil {
		t.Fatal("expected an error when spotify is not configured")
	}
	if !strings.Contains(err.Error(), "spotify") {
		t.Fatalf("err = %v", err)
	}
}

func TestRenderUnknownHelperFails(t *testing.T) {
	e := newTestEngine(&fakeStore{userData: map[string]string{}}, &fakeSender{})

	for _, source := range []string{
		"before {{frobnicate}} after",
		`{{frobnicate "x"}}`,
		`{{chose "heads" "tails"}}`,
	} {
		if _, err := e.Render(context.Background(), source, testInquiry()); err == nil {
			t.Fatalf("Render(%q) should fail", source)
		}
	}

	// Registered helpers and context paths still render.
	got, err := e.Render(context.Background(), "{{username}}{{vars.unset}}", testInquiry())
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "tester" {
		t.Fatalf("got %q", got)
	}
}

func TestRenderParseError(t *testing.T) {
	e := newTestEngine(&fakeStore{userData: map[string]string{}}, &fakeSender{})

	if _, err := e.Render(context.Background(), `{{#if}}`, testInquiry()); err == nil {
		t.Fatal("expected parse error")
	}
}
