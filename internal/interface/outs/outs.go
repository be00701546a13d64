// Package outs routes outgoing messages to the platform adapter that owns
// the target channel. The dispatcher, the say helper and channel mirroring
// all send through here.
package outs

import (
	"context"
	"fmt"
	"sync"

	"polybot/internal/domain"
)

// MultiSender routes by channel kind to the registered platform sender.
type MultiSender struct {
	mu      sync.RWMutex
	senders map[domain.ChannelKind]domain.ChannelSender
}

func NewMultiSender() *MultiSender {
	return &MultiSender{senders: make(map[domain.ChannelKind]domain.ChannelSender)}
}

// Register associates a channel kind with its adapter. Adapters register
// themselves once connected.
func (m *MultiSender) Register(kind domain.ChannelKind, sender domain.ChannelSender) {
	if sender == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.senders[kind] = sender
}

func (m *MultiSender) Unregister(kind domain.ChannelKind) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.senders, kind)
}

func (m *MultiSender) SendToChannel(ctx context.Context, channel domain.ChannelIdentifier, text string) error {
	m.mu.RLock()
	sender, ok := m.senders[channel.Kind]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("outs: no sender registered for %s", channel.Kind)
	}
	return sender.SendToChannel(ctx, channel, text)
}
