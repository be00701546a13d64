package twitchinfra

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/nicklaw5/helix/v2"
	"go.uber.org/zap"
)

// Cache invalidation runs on fixed timers rather than LRU: the datasets are
// small and the staleness windows are bounded.
const (
	modCacheInvalidation  = 10 * time.Minute
	userCacheInvalidation = time.Hour
)

// Service wraps the Helix API with the lookups the command engine needs:
// moderator lists, user resolution, timeouts and EventSub subscriptions.
type Service struct {
	client *helix.Client
	log    *zap.Logger

	mu        sync.RWMutex
	modLists  map[string][]string   // broadcaster id -> moderator display names
	usersByID map[string]helix.User // user id -> user
}

func NewService(clientID, userAccessToken string, log *zap.Logger) (*Service, error) {
	client, err := helix.NewClient(&helix.Options{
		ClientID:        clientID,
		UserAccessToken: userAccessToken,
	})
	if err != nil {
		return nil, fmt.Errorf("helix: NewClient: %w", err)
	}

	s := &Service{
		client:    client,
		log:       log,
		modLists:  make(map[string][]string),
		usersByID: make(map[string]helix.User),
	}
	return s, nil
}

// StartCacheInvalidation clears the caches on their fixed timers until ctx
// is cancelled.
func (s *Service) StartCacheInvalidation(ctx context.Context) {
	go s.invalidateLoop(ctx, modCacheInvalidation, func() {
		s.mu.Lock()
		s.modLists = make(map[string][]string)
		s.mu.Unlock()
	})
	go s.invalidateLoop(ctx, userCacheInvalidation, func() {
		s.mu.Lock()
		s.usersByID = make(map[string]helix.User)
		s.mu.Unlock()
	})
}

func (s *Service) invalidateLoop(ctx context.Context, every time.Duration, clear func()) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			clear()
		}
	}
}

// GetUserByID resolves a Twitch user by their numeric id, cached.
func (s *Service) GetUserByID(ctx context.Context, id string) (helix.User, error) {
	s.mu.RLock()
	user, ok := s.usersByID[id]
	s.mu.RUnlock()
	if ok {
		return user, nil
	}

	resp, err := s.client.GetUsers(&helix.UsersParams{IDs: []string{id}})
	if err != nil {
		return helix.User{}, fmt.Errorf("helix: GetUsers: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return helix.User{}, fmt.Errorf("helix: GetUsers failed (%d: %s) %s",
			resp.StatusCode, resp.Error, resp.ErrorMessage)
	}
	if len(resp.Data.Users) == 0 {
		return helix.User{}, fmt.Errorf("helix: user %s not found", id)
	}

	user = resp.Data.Users[0]
	s.mu.Lock()
	s.usersByID[id] = user
	s.mu.Unlock()

	return user, nil
}

// GetChannelMods returns the display names of a channel's moderators plus
// the broadcaster, cached per broadcaster id.
func (s *Service) GetChannelMods(ctx context.Context, broadcasterID string) ([]string, error) {
	s.mu.RLock()
	mods, ok := s.modLists[broadcasterID]
	s.mu.RUnlock()
	if ok {
		return mods, nil
	}

	broadcaster, err := s.GetUserByID(ctx, broadcasterID)
	if err != nil {
		return nil, err
	}

	resp, err := s.client.GetModerators(&helix.GetModeratorsParams{
		BroadcasterID: broadcasterID,
		First:         100,
	})
	if err != nil {
		return nil, fmt.Errorf("helix: GetModerators: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("helix: GetModerators failed (%d: %s) %s",
			resp.StatusCode, resp.Error, resp.ErrorMessage)
	}

	mods = []string{broadcaster.DisplayName}
	for _, mod := range resp.Data.Moderators {
		mods = append(mods, mod.UserName)
	}

	s.mu.Lock()
	s.modLists[broadcasterID] = mods
	s.mu.Unlock()

	s.log.Debug("cached moderator list",
		zap.String("broadcaster", broadcaster.Login),
		zap.Int("mods", len(mods)))

	return mods, nil
}

// TimeoutUser times out a user in the broadcaster's channel.
func (s *Service) TimeoutUser(ctx context.Context, broadcasterID, moderatorID, userID string, duration time.Duration, reason string) error {
	resp, err := s.client.BanUser(&helix.BanUserParams{
		BroadcasterID: broadcasterID,
		ModeratorId:   moderatorID,
		Body: helix.BanUserRequestBody{
			UserId:   userID,
			Duration: int(duration.Seconds()),
			Reason:   reason,
		},
	})
	if err != nil {
		return fmt.Errorf("helix: BanUser: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("helix: BanUser failed (%d: %s) %s",
			resp.StatusCode, resp.Error, resp.ErrorMessage)
	}
	return nil
}

// GetEventSubSubscriptions lists the currently registered subscriptions.
func (s *Service) GetEventSubSubscriptions(ctx context.Context) ([]helix.EventSubSubscription, error) {
	resp, err := s.client.GetEventSubSubscriptions(&helix.EventSubSubscriptionsParams{})
	if err != nil {
		return nil, fmt.Errorf("helix: GetEventSubSubscriptions: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("helix: GetEventSubSubscriptions failed (%d: %s) %s",
			resp.StatusCode, resp.Error, resp.ErrorMessage)
	}
	return resp.Data.EventSubSubscriptions, nil
}

// CreateEventSubSubscription registers a webhook subscription and returns
// its id.
func (s *Service) CreateEventSubSubscription(ctx context.Context, eventType, broadcasterID, callback, secret string) (string, error) {
	resp, err := s.client.CreateEventSubSubscription(&helix.EventSubSubscription{
		Type:    eventType,
		Version: "1",
		Condition: helix.EventSubCondition{
			BroadcasterUserID: broadcasterID,
		},
		Transport: helix.EventSubTransport{
			Method:   "webhook",
			Callback: callback,
			Secret:   secret,
		},
	})
	if err != nil {
		return "", fmt.Errorf("helix: CreateEventSubSubscription: %w", err)
	}
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("helix: CreateEventSubSubscription failed (%d: %s) %s",
			resp.StatusCode, resp.Error, resp.ErrorMessage)
	}
	if len(resp.Data.EventSubSubscriptions) == 0 {
		return "", fmt.Errorf("helix: subscription missing from response")
	}
	return resp.Data.EventSubSubscriptions[0].ID, nil
}

// RemoveEventSubSubscription deletes a subscription by id.
func (s *Service) RemoveEventSubSubscription(ctx context.Context, id string) error {
	resp, err := s.client.RemoveEventSubSubscription(id)
	if err != nil {
		return fmt.Errorf("helix: RemoveEventSubSubscription: %w", err)
	}
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return fmt.Errorf("helix: RemoveEventSubSubscription failed (%d: %s) %s",
			resp.StatusCode, resp.Error, resp.ErrorMessage)
	}
	return nil
}
