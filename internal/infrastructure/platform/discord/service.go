package discordinfra

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
)

const permissionCacheInvalidation = 10 * time.Minute

type memberKey struct {
	guildID string
	userID  string
}

// Service answers guild permission questions over the Discord REST API.
// Computed permission bitsets are cached and fully invalidated on a fixed
// timer; the datasets are small and the staleness window is bounded.
type Service struct {
	session *discordgo.Session
	log     *zap.Logger

	mu          sync.RWMutex
	permissions map[memberKey]int64
}

func NewService(session *discordgo.Session, log *zap.Logger) *Service {
	return &Service{
		session:     session,
		log:         log,
		permissions: make(map[memberKey]int64),
	}
}

// StartCacheInvalidation clears the permission cache on a fixed timer until
// ctx is cancelled.
func (s *Service) StartCacheInvalidation(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(permissionCacheInvalidation)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.mu.Lock()
				s.permissions = make(map[memberKey]int64)
				s.mu.Unlock()
			}
		}
	}()
}

// GuildPermissions computes the member's guild-level permission bitset by
// ORing their role permissions. The guild owner gets all bits.
func (s *Service) GuildPermissions(ctx context.Context, guildID, userID string) (int64, error) {
	key := memberKey{guildID: guildID, userID: userID}

	s.mu.RLock()
	perms, ok := s.permissions[key]
	s.mu.RUnlock()
	if ok {
		return perms, nil
	}

	guild, err := s.session.Guild(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return 0, fmt.Errorf("discord: Guild: %w", err)
	}
	if guild.OwnerID == userID {
		perms = discordgo.PermissionAll
	} else {
		member, err := s.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
		if err != nil {
			return 0, fmt.Errorf("discord: GuildMember: %w", err)
		}

		rolePerms := make(map[string]int64, len(guild.Roles))
		for _, role := range guild.Roles {
			rolePerms[role.ID] = role.Permissions
		}
		for _, roleID := range member.Roles {
			perms |= rolePerms[roleID]
		}
	}

	s.mu.Lock()
	s.permissions[key] = perms
	s.mu.Unlock()

	s.log.Debug("cached guild permissions",
		zap.String("guild", guildID),
		zap.String("user", userID))

	return perms, nil
}

// IsGuildAdmin reports whether the member carries an administrator-equivalent
// permission bit in the guild.
func (s *Service) IsGuildAdmin(ctx context.Context, guildID, userID string) (bool, error) {
	perms, err := s.GuildPermissions(ctx, guildID, userID)
	if err != nil {
		return false, err
	}
	return perms&discordgo.PermissionAdministrator != 0, nil
}
