// Package localadapter serves a plain TCP listener for same-host tooling:
// each line received is dispatched as a command, the response is written
// back on the same connection.
package localadapter

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"strings"

	"go.uber.org/zap"

	"polybot/internal/domain"
	"polybot/internal/usecase/commands"
)

type MessageHandler interface {
	HandleMessage(ctx context.Context, text string, ec commands.ExecutionContext) string
}

type Adapter struct {
	addr    string
	handler MessageHandler
	log     *zap.Logger
}

func NewAdapter(addr string, handler MessageHandler, log *zap.Logger) *Adapter {
	return &Adapter{addr: addr, handler: handler, log: log}
}

func (a *Adapter) Start(ctx context.Context) error {
	var lc net.ListenConfig
	listener, err := lc.Listen(ctx, "tcp", a.addr)
	if err != nil {
		return fmt.Errorf("local: listen %s: %w", a.addr, err)
	}
	a.log.Info("local listener started", zap.String("addr", a.addr))

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			a.log.Warn("local accept failed", zap.Error(err))
			continue
		}
		go a.serve(ctx, conn)
	}
}

func (a *Adapter) serve(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		host = conn.RemoteAddr().String()
	}

	ec := executionContext{
		user:    domain.UserIdentifier{Platform: domain.PlatformLocal, ID: host},
		channel: domain.ChannelIdentifier{Kind: domain.ChannelLocal, ID: host},
	}

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		response := a.handler.HandleMessage(ctx, line, ec)
		if response == "" {
			response = "(no response)"
		}
		if _, err := fmt.Fprintln(conn, response); err != nil {
			return
		}
	}
}

type executionContext struct {
	user    domain.UserIdentifier
	channel domain.ChannelIdentifier
}

func (e executionContext) UserIdentifier() domain.UserIdentifier { return e.user }
func (e executionContext) Channel() domain.ChannelIdentifier     { return e.channel }
func (e executionContext) DisplayName() string                   { return e.user.ID }

// Every line on the local socket is a command; no prefix required.
func (e executionContext) Prefixes() []string { return []string{""} }
