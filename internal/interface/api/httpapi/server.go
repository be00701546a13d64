// Package httpapi exposes the bot's HTTP surface: health, prometheus
// metrics, channel command listings, server-originated command execution and
// the EventSub webhook.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/nicklaw5/helix/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"polybot/internal/domain"
	"polybot/internal/usecase/commands"
)

// Dispatcher is the command pipeline slice the API drives.
type Dispatcher interface {
	HandleMessage(ctx context.Context, text string, ec commands.ExecutionContext) string
	RunAction(ctx context.Context, action string, args []string, ec commands.ExecutionContext) (string, error)
}

type Server struct {
	echo       *echo.Echo
	addr       string
	store      domain.Store
	dispatcher Dispatcher
	sender     domain.ChannelSender
	secret     string
	log        *zap.Logger
}

type ServerDeps struct {
	Addr       string
	Store      domain.Store
	Dispatcher Dispatcher
	Sender     domain.ChannelSender
	Registry   *prometheus.Registry
	// EventSubSecret signs webhook notifications; the hook rejects
	// everything when it is empty.
	EventSubSecret string
	Log            *zap.Logger
}

func NewServer(deps ServerDeps) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())

	s := &Server{
		echo:       e,
		addr:       deps.Addr,
		store:      deps.Store,
		dispatcher: deps.Dispatcher,
		sender:     deps.Sender,
		secret:     deps.EventSubSecret,
		log:        deps.Log,
	}

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	if deps.Registry != nil {
		e.GET("/metrics", echo.WrapHandler(
			promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))
	}
	e.GET("/channels/:id/commands", s.listCommands)
	e.POST("/execute", s.execute)
	e.POST("/hooks/eventsub", s.eventSubHook)

	return s
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start(s.addr)
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("httpapi: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("httpapi: shutdown: %w", err)
		}
		return ctx.Err()
	}
}

type commandView struct {
	Name       string   `json:"name"`
	Action     string   `json:"action"`
	Permission string   `json:"permission,omitempty"`
	Cooldown   *int     `json:"cooldown,omitempty"`
	Triggers   []string `json:"triggers,omitempty"`
	Aliases    []string `json:"aliases,omitempty"`
}

func (s *Server) listCommands(c echo.Context) error {
	channelID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid channel id")
	}

	cmds, err := s.store.GetCommands(c.Request().Context(), channelID)
	if err != nil {
		s.log.Error("list commands failed", zap.Int64("channel", channelID), zap.Error(err))
		return echo.NewHTTPError(http.StatusInternalServerError, "storage error")
	}

	views := make([]commandView, 0, len(cmds))
	for _, cmd := range cmds {
		view := commandView{
			Name:     cmd.Name,
			Action:   cmd.Action,
			Cooldown: cmd.Cooldown,
			Triggers: cmd.Triggers,
			Aliases:  cmd.Aliases,
		}
		if cmd.Permission != nil {
			view.Permission = cmd.Permission.String()
		}
		views = append(views, view)
	}
	return c.JSON(http.StatusOK, views)
}

type executeRequest struct {
	Channel string `json:"channel"`
	User    string `json:"user"`
	Command string `json:"command"`
}

func (s *Server) execute(c echo.Context) error {
	var req executeRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	channel, err := domain.ParseChannelIdentifier(req.Channel)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid channel: "+err.Error())
	}
	user, err := domain.ParseUserIdentifier(req.User)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid user: "+err.Error())
	}
	if strings.TrimSpace(req.Command) == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "command is required")
	}

	ec := commands.ServerExecutionContext{TargetChannel: channel, User: user}
	response := s.dispatcher.HandleMessage(c.Request().Context(), req.Command, ec)
	return c.JSON(http.StatusOK, map[string]string{"response": response})
}

type eventSubNotification struct {
	Subscription helix.EventSubSubscription `json:"subscription"`
	Challenge    string                     `json:"challenge"`
	Event        struct {
		UserID            string `json:"user_id"`
		UserName          string `json:"user_name"`
		BroadcasterUserID string `json:"broadcaster_user_id"`
		UserInput         string `json:"user_input"`
	} `json:"event"`
}

func (s *Server) eventSubHook(c echo.Context) error {
	if s.secret == "" {
		return echo.NewHTTPError(http.StatusForbidden, "eventsub is not configured")
	}

	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "unreadable body")
	}
	if !helix.VerifyEventSubNotification(s.secret, c.Request().Header, string(body)) {
		return echo.NewHTTPError(http.StatusForbidden, "bad signature")
	}

	var notification eventSubNotification
	if err := json.Unmarshal(body, &notification); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}

	switch c.Request().Header.Get("Twitch-Eventsub-Message-Type") {
	case "webhook_callback_verification":
		return c.String(http.StatusOK, notification.Challenge)
	case "revocation":
		s.log.Warn("eventsub subscription revoked",
			zap.String("id", notification.Subscription.ID),
			zap.String("type", notification.Subscription.Type))
		return c.NoContent(http.StatusOK)
	}

	ctx := c.Request().Context()
	action, err := s.store.GetEventSubRedeemAction(ctx, notification.Subscription.ID)
	if err != nil {
		s.log.Error("eventsub action lookup failed",
			zap.String("id", notification.Subscription.ID), zap.Error(err))
		return c.NoContent(http.StatusOK)
	}
	if action == "" {
		return c.NoContent(http.StatusOK)
	}

	ec := commands.ServerExecutionContext{
		TargetChannel: domain.ChannelIdentifier{Kind: domain.ChannelTwitch, ID: notification.Event.BroadcasterUserID},
		User:          domain.UserIdentifier{Platform: domain.PlatformTwitch, ID: notification.Event.UserID},
		Name:          notification.Event.UserName,
	}
	args := strings.Fields(notification.Event.UserInput)

	response, err := s.dispatcher.RunAction(ctx, action, args, ec)
	if err != nil {
		s.log.Warn("eventsub action failed",
			zap.String("id", notification.Subscription.ID), zap.Error(err))
		return c.NoContent(http.StatusOK)
	}
	if response != "" && s.sender != nil {
		if err := s.sender.SendToChannel(ctx, ec.TargetChannel, response); err != nil {
			s.log.Warn("eventsub response delivery failed", zap.Error(err))
		}
	}
	return c.NoContent(http.StatusOK)
}
