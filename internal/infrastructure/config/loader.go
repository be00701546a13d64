package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	CommandPrefix string `env:"COMMAND_PREFIX" envDefault:"!"`
	AdminUser     string `env:"ADMIN_USER"`
	AllowShell    bool   `env:"ALLOW_SHELL"`
	BaseURL       string `env:"BASE_URL" envDefault:"http://localhost:8000"`

	DatabasePath string `env:"DATABASE_PATH" envDefault:"data/polybot.db"`
	HTTPAddr     string `env:"HTTP_ADDR" envDefault:":8000"`
	LocalAddr    string `env:"LOCAL_PLATFORM_ADDRESS"`

	TwitchUsername     string   `env:"TWITCH_BOT_USERNAME"`
	TwitchBotUserID    string   `env:"TWITCH_BOT_USER_ID"`
	TwitchToken        string   `env:"TWITCH_BOT_ACCESS_TOKEN"`
	TwitchChannels     []string `env:"TWITCH_BOT_CHANNELS" envSeparator:","`
	TwitchClientID     string   `env:"TWITCH_CLIENT_ID"`
	TwitchClientSecret string   `env:"TWITCH_CLIENT_SECRET"`
	TwitchAPIToken     string   `env:"TWITCH_API_ACCESS_TOKEN"`
	EventSubSecret     string   `env:"EVENTSUB_SECRET"`

	DiscordToken string `env:"DISCORD_TOKEN"`

	TelegramToken string `env:"TELEGRAM_TOKEN"`

	IrcServer   string   `env:"IRC_SERVER"`
	IrcPort     int      `env:"IRC_PORT" envDefault:"6697"`
	IrcTLS      bool     `env:"IRC_TLS" envDefault:"true"`
	IrcNick     string   `env:"IRC_NICK"`
	IrcPassword string   `env:"IRC_PASSWORD"`
	IrcChannels []string `env:"IRC_CHANNELS" envSeparator:","`

	SpotifyClientID     string `env:"SPOTIFY_CLIENT_ID"`
	SpotifyClientSecret string `env:"SPOTIFY_CLIENT_SECRET"`
	OwmAPIKey           string `env:"OWM_API_KEY"`
	LastFMAPIKey        string `env:"LASTFM_API_KEY"`
	FinnhubAPIKey       string `env:"FINNHUB_API_KEY"`
	LingvaURL           string `env:"LINGVA_INSTANCE_URL" envDefault:"https://lingva.ml"`

	ScriptModulesGitURL string `env:"SCRIPT_MODULES_GIT_URL"`
	ScriptModulesDir    string `env:"SCRIPT_MODULES_DIR" envDefault:"data/modules"`
}

// Load reads .env (if present) and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	return &cfg, nil
}

// TwitchConfigured reports whether enough is set to talk to the Helix API.
func (c *Config) TwitchConfigured() bool {
	return c.TwitchClientID != "" && c.TwitchAPIToken != ""
}
