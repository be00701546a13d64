package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"polybot/internal/domain"
)

// Store persists users, channels, commands and scratch data. User lookups
// are cached in memory; the caches are invalidated on merges.
type Store struct {
	db  *sql.DB
	log *zap.Logger

	mu            sync.RWMutex
	usersByID     map[int64]domain.User
	userIDsByName map[domain.UserIdentifier]int64
}

func NewStore(dbPath string, log *zap.Logger) (*Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("sqlite: empty db path")
	}

	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: creating dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}

	db.SetMaxOpenConns(1)

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		db:            db,
		log:           log,
		usersByID:     make(map[int64]domain.User),
		userIDsByName: make(map[domain.UserIdentifier]int64),
	}, nil
}

func migrate(db *sql.DB) error {
	const schema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	twitch_id TEXT,
	discord_id TEXT,
	irc_name TEXT,
	local_addr TEXT,
	telegram_id TEXT
);
CREATE TABLE IF NOT EXISTS channels (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	platform TEXT NOT NULL,
	channel TEXT NOT NULL,
	UNIQUE (platform, channel)
);
CREATE TABLE IF NOT EXISTS commands (
	channel_id INTEGER NOT NULL REFERENCES channels(id),
	name TEXT NOT NULL,
	action TEXT NOT NULL,
	permission TEXT,
	cooldown INTEGER,
	triggers TEXT,
	aliases TEXT,
	PRIMARY KEY (channel_id, name)
);
CREATE TABLE IF NOT EXISTS user_data (
	user_id INTEGER NOT NULL REFERENCES users(id),
	name TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (user_id, name)
);
CREATE TABLE IF NOT EXISTS channel_data (
	channel_id INTEGER NOT NULL REFERENCES channels(id),
	name TEXT NOT NULL,
	value TEXT NOT NULL,
	PRIMARY KEY (channel_id, name)
);
CREATE TABLE IF NOT EXISTS eventsub_triggers (
	id TEXT PRIMARY KEY,
	broadcaster_id TEXT NOT NULL,
	event_type TEXT NOT NULL,
	action TEXT NOT NULL,
	creation_payload TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS mirror_connections (
	from_channel_id INTEGER NOT NULL REFERENCES channels(id),
	to_channel_id INTEGER NOT NULL REFERENCES channels(id),
	PRIMARY KEY (from_channel_id, to_channel_id)
);`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("sqlite: migrate: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func userColumn(p domain.Platform) (string, error) {
	switch p {
	case domain.PlatformTwitch:
		return "twitch_id", nil
	case domain.PlatformDiscord:
		return "discord_id", nil
	case domain.PlatformIRC:
		return "irc_name", nil
	case domain.PlatformLocal:
		return "local_addr", nil
	case domain.PlatformTelegram:
		return "telegram_id", nil
	default:
		return "", fmt.Errorf("sqlite: unknown platform %q", p)
	}
}

func scanUser(row *sql.Row) (*domain.User, error) {
	var u domain.User
	var twitch, discord, irc, local, telegram sql.NullString
	if err := row.Scan(&u.ID, &twitch, &discord, &irc, &local, &telegram); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	u.TwitchID = twitch.String
	u.DiscordID = discord.String
	u.IrcName = irc.String
	u.LocalAddr = local.String
	u.TelegramID = telegram.String
	return &u, nil
}

func (s *Store) GetUser(ctx context.Context, id domain.UserIdentifier) (*domain.User, error) {
	s.mu.RLock()
	userID, ok := s.userIDsByName[id]
	s.mu.RUnlock()
	if ok {
		return s.GetUserByID(ctx, userID)
	}

	col, err := userColumn(id.Platform)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, twitch_id, discord_id, irc_name, local_addr, telegram_id FROM users WHERE `+col+` = ?`, id.ID)
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get user: %w", err)
	}
	if user != nil {
		s.mu.Lock()
		s.userIDsByName[id] = user.ID
		s.usersByID[user.ID] = *user
		s.mu.Unlock()
	}
	return user, nil
}

func (s *Store) GetUserByID(ctx context.Context, userID int64) (*domain.User, error) {
	s.mu.RLock()
	cached, ok := s.usersByID[userID]
	s.mu.RUnlock()
	if ok {
		u := cached
		return &u, nil
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT id, twitch_id, discord_id, irc_name, local_addr, telegram_id FROM users WHERE id = ?`, userID)
	user, err := scanUser(row)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get user by id: %w", err)
	}
	if user != nil {
		s.mu.Lock()
		s.usersByID[user.ID] = *user
		s.mu.Unlock()
	}
	return user, nil
}

func (s *Store) GetOrCreateUser(ctx context.Context, id domain.UserIdentifier) (domain.User, error) {
	if existing, err := s.GetUser(ctx, id); err != nil {
		return domain.User{}, err
	} else if existing != nil {
		return *existing, nil
	}

	col, err := userColumn(id.Platform)
	if err != nil {
		return domain.User{}, err
	}

	res, err := s.db.ExecContext(ctx, `INSERT INTO users (`+col+`) VALUES (?)`, id.ID)
	if err != nil {
		return domain.User{}, fmt.Errorf("sqlite: create user: %w", err)
	}
	userID, err := res.LastInsertId()
	if err != nil {
		return domain.User{}, fmt.Errorf("sqlite: create user: %w", err)
	}

	user, err := s.GetUserByID(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	if user == nil {
		return domain.User{}, fmt.Errorf("sqlite: user %d vanished after insert", userID)
	}

	s.mu.Lock()
	s.userIDsByName[id] = user.ID
	s.mu.Unlock()

	return *user, nil
}

// MergeUsers copies the secondary user's scratch rows onto the primary,
// deletes the secondary row and writes the unioned identities back. The
// whole operation runs in one transaction; both users drop out of the
// caches and the identifier cache is reset.
func (s *Store) MergeUsers(ctx context.Context, primary, secondary domain.User) (domain.User, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, fmt.Errorf("sqlite: merge users: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO user_data (user_id, name, value)
		 SELECT ?, name, value FROM user_data WHERE user_id = ?`,
		primary.ID, secondary.ID); err != nil {
		return domain.User{}, fmt.Errorf("sqlite: merge user data: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM user_data WHERE user_id = ?`, secondary.ID); err != nil {
		return domain.User{}, fmt.Errorf("sqlite: merge user data: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, secondary.ID); err != nil {
		return domain.User{}, fmt.Errorf("sqlite: delete merged user: %w", err)
	}

	primary.Merge(secondary)

	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET twitch_id = ?, discord_id = ?, irc_name = ?, local_addr = ?, telegram_id = ? WHERE id = ?`,
		nullable(primary.TwitchID), nullable(primary.DiscordID), nullable(primary.IrcName),
		nullable(primary.LocalAddr), nullable(primary.TelegramID), primary.ID); err != nil {
		return domain.User{}, fmt.Errorf("sqlite: update merged user: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.User{}, fmt.Errorf("sqlite: merge users: %w", err)
	}

	s.mu.Lock()
	delete(s.usersByID, primary.ID)
	delete(s.usersByID, secondary.ID)
	s.userIDsByName = make(map[domain.UserIdentifier]int64)
	s.mu.Unlock()

	s.log.Info("merged users",
		zap.Int64("primary", primary.ID),
		zap.Int64("secondary", secondary.ID))

	return primary, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (s *Store) GetOrCreateChannel(ctx context.Context, id domain.ChannelIdentifier) (*domain.Channel, error) {
	if id.IsAnonymous() {
		return nil, nil
	}

	ch := &domain.Channel{Platform: string(id.Kind), Channel: id.ID}

	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM channels WHERE platform = ? AND channel = ?`, ch.Platform, ch.Channel).Scan(&ch.ID)
	if err == nil {
		return ch, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("sqlite: get channel: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO channels (platform, channel) VALUES (?, ?)`, ch.Platform, ch.Channel)
	if err != nil {
		return nil, fmt.Errorf("sqlite: create channel: %w", err)
	}
	if ch.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("sqlite: create channel: %w", err)
	}
	return ch, nil
}

func (s *Store) GetChannelByID(ctx context.Context, channelID int64) (*domain.Channel, error) {
	ch := &domain.Channel{ID: channelID}
	err := s.db.QueryRowContext(ctx,
		`SELECT platform, channel FROM channels WHERE id = ?`, channelID).Scan(&ch.Platform, &ch.Channel)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get channel by id: %w", err)
	}
	return ch, nil
}

func splitList(s sql.NullString) []string {
	if !s.Valid || s.String == "" {
		return nil
	}
	return strings.Split(s.String, ";")
}

func scanCommand(channelID int64, name string, action string, permission sql.NullString, cooldown sql.NullInt64, triggers, aliases sql.NullString) (domain.Command, error) {
	cmd := domain.Command{
		ChannelID: channelID,
		Name:      name,
		Action:    action,
		Triggers:  splitList(triggers),
		Aliases:   splitList(aliases),
	}
	if permission.Valid {
		p, err := domain.ParsePermission(permission.String)
		if err != nil {
			return domain.Command{}, err
		}
		cmd.Permission = &p
	}
	if cooldown.Valid {
		c := int(cooldown.Int64)
		cmd.Cooldown = &c
	}
	return cmd, nil
}

func (s *Store) GetCommand(ctx context.Context, channel domain.ChannelIdentifier, name string) (*domain.Command, error) {
	ch, err := s.GetOrCreateChannel(ctx, channel)
	if err != nil {
		return nil, err
	}
	if ch == nil {
		return nil, nil
	}

	commands, err := s.GetCommands(ctx, ch.ID)
	if err != nil {
		return nil, err
	}

	for i := range commands {
		if commands[i].Name == name {
			return &commands[i], nil
		}
		for _, alias := range commands[i].Aliases {
			if alias == name {
				return &commands[i], nil
			}
		}
	}
	return nil, nil
}

func (s *Store) GetCommands(ctx context.Context, channelID int64) ([]domain.Command, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, action, permission, cooldown, triggers, aliases FROM commands WHERE channel_id = ?`, channelID)
	if err != nil {
		return nil, fmt.Errorf("sqlite: get commands: %w", err)
	}
	defer rows.Close()

	var out []domain.Command
	for rows.Next() {
		var (
			name, action      string
			permission        sql.NullString
			cooldown          sql.NullInt64
			triggers, aliases sql.NullString
		)
		if err := rows.Scan(&name, &action, &permission, &cooldown, &triggers, &aliases); err != nil {
			return nil, fmt.Errorf("sqlite: scan command: %w", err)
		}
		cmd, err := scanCommand(channelID, name, action, permission, cooldown, triggers, aliases)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan command: %w", err)
		}
		out = append(out, cmd)
	}
	return out, rows.Err()
}

func (s *Store) AddCommand(ctx context.Context, channel domain.ChannelIdentifier, name, action string) error {
	ch, err := s.GetOrCreateChannel(ctx, channel)
	if err != nil {
		return err
	}
	if ch == nil {
		return domain.ErrAnonymousChannel
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO commands (channel_id, name, action) VALUES (?, ?, ?)`, ch.ID, name, action)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			return domain.ErrCommandExists
		}
		return fmt.Errorf("sqlite: add command: %w", err)
	}
	return nil
}

func (s *Store) UpdateCommand(ctx context.Context, channel domain.ChannelIdentifier, name, action string) error {
	ch, err := s.GetOrCreateChannel(ctx, channel)
	if err != nil {
		return err
	}
	if ch == nil {
		return domain.ErrAnonymousChannel
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO commands (channel_id, name, action) VALUES (?, ?, ?)
		 ON CONFLICT (channel_id, name) DO UPDATE SET action = excluded.action`, ch.ID, name, action)
	if err != nil {
		return fmt.Errorf("sqlite: update command: %w", err)
	}
	return nil
}

func (s *Store) DeleteCommand(ctx context.Context, channel domain.ChannelIdentifier, name string) error {
	ch, err := s.GetOrCreateChannel(ctx, channel)
	if err != nil {
		return err
	}
	if ch == nil {
		return domain.ErrAnonymousChannel
	}

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM commands WHERE channel_id = ? AND name = ?`, ch.ID, name)
	if err != nil {
		return fmt.Errorf("sqlite: delete command: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrCommandNotFound
	}
	return nil
}

func (s *Store) SetCommandTriggers(ctx context.Context, channelID int64, name, triggers string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE commands SET triggers = ? WHERE channel_id = ? AND name = ?`, triggers, channelID, name)
	if err != nil {
		return fmt.Errorf("sqlite: set command triggers: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrCommandNotFound
	}
	return nil
}

func (s *Store) SetCommandCooldown(ctx context.Context, channelID int64, name string, seconds int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE commands SET cooldown = ? WHERE channel_id = ? AND name = ?`, seconds, channelID, name)
	if err != nil {
		return fmt.Errorf("sqlite: set command cooldown: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrCommandNotFound
	}
	return nil
}

func (s *Store) SetCommandPermission(ctx context.Context, channelID int64, name string, permission domain.Permission) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE commands SET permission = ? WHERE channel_id = ? AND name = ?`, permission.String(), channelID, name)
	if err != nil {
		return fmt.Errorf("sqlite: set command permission: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.ErrCommandNotFound
	}
	return nil
}

func (s *Store) getData(ctx context.Context, table, idCol string, id int64, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM `+table+` WHERE `+idCol+` = ? AND name = ?`, id, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("sqlite: get %s: %w", table, err)
	}
	return value, nil
}

func (s *Store) setData(ctx context.Context, table, idCol string, id int64, key, value string) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO `+table+` (`+idCol+`, name, value) VALUES (?, ?, ?)`, id, key, value); err != nil {
		return fmt.Errorf("sqlite: set %s: %w", table, err)
	}
	return nil
}

func (s *Store) removeData(ctx context.Context, table, idCol string, id int64, key string) error {
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM `+table+` WHERE `+idCol+` = ? AND name = ?`, id, key); err != nil {
		return fmt.Errorf("sqlite: remove %s: %w", table, err)
	}
	return nil
}

func (s *Store) GetUserData(ctx context.Context, userID int64, key string) (string, error) {
	return s.getData(ctx, "user_data", "user_id", userID, key)
}

func (s *Store) SetUserData(ctx context.Context, userID int64, key, value string) error {
	return s.setData(ctx, "user_data", "user_id", userID, key, value)
}

func (s *Store) RemoveUserData(ctx context.Context, userID int64, key string) error {
	return s.removeData(ctx, "user_data", "user_id", userID, key)
}

func (s *Store) GetChannelData(ctx context.Context, channelID int64, key string) (string, error) {
	return s.getData(ctx, "channel_data", "channel_id", channelID, key)
}

func (s *Store) SetChannelData(ctx context.Context, channelID int64, key, value string) error {
	return s.setData(ctx, "channel_data", "channel_id", channelID, key, value)
}

func (s *Store) RemoveChannelData(ctx context.Context, channelID int64, key string) error {
	return s.removeData(ctx, "channel_data", "channel_id", channelID, key)
}

func (s *Store) GetEventSubTriggers(ctx context.Context) ([]domain.EventSubTrigger, error) {
	return s.queryEventSubTriggers(ctx,
		`SELECT id, broadcaster_id, event_type, action, creation_payload FROM eventsub_triggers`)
}

func (s *Store) GetEventSubTriggersForBroadcaster(ctx context.Context, broadcasterID string) ([]domain.EventSubTrigger, error) {
	return s.queryEventSubTriggers(ctx,
		`SELECT id, broadcaster_id, event_type, action, creation_payload FROM eventsub_triggers WHERE broadcaster_id = ?`,
		broadcasterID)
}

func (s *Store) queryEventSubTriggers(ctx context.Context, query string, args ...any) ([]domain.EventSubTrigger, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: eventsub triggers: %w", err)
	}
	defer rows.Close()

	var out []domain.EventSubTrigger
	for rows.Next() {
		var t domain.EventSubTrigger
		if err := rows.Scan(&t.ID, &t.BroadcasterID, &t.EventType, &t.Action, &t.CreationPayload); err != nil {
			return nil, fmt.Errorf("sqlite: scan eventsub trigger: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) GetEventSubRedeemAction(ctx context.Context, id string) (string, error) {
	var action string
	err := s.db.QueryRowContext(ctx,
		`SELECT action FROM eventsub_triggers WHERE id = ?`, id).Scan(&action)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("sqlite: eventsub action: %w", err)
	}
	return action, nil
}

func (s *Store) AddEventSubTrigger(ctx context.Context, trigger domain.EventSubTrigger) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO eventsub_triggers (id, broadcaster_id, event_type, action, creation_payload) VALUES (?, ?, ?, ?, ?)`,
		trigger.ID, trigger.BroadcasterID, trigger.EventType, trigger.Action, trigger.CreationPayload); err != nil {
		return fmt.Errorf("sqlite: add eventsub trigger: %w", err)
	}
	return nil
}

func (s *Store) DeleteEventSubTrigger(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM eventsub_triggers WHERE id = ?`, id); err != nil {
		return fmt.Errorf("sqlite: delete eventsub trigger: %w", err)
	}
	return nil
}

func (s *Store) UpdateEventSubTriggerID(ctx context.Context, oldID, newID string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE eventsub_triggers SET id = ? WHERE id = ?`, newID, oldID); err != nil {
		return fmt.Errorf("sqlite: update eventsub trigger id: %w", err)
	}
	return nil
}

func (s *Store) GetMirrorConnections(ctx context.Context) ([]domain.MirrorConnection, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT from_channel_id, to_channel_id FROM mirror_connections`)
	if err != nil {
		return nil, fmt.Errorf("sqlite: mirror connections: %w", err)
	}
	defer rows.Close()

	var out []domain.MirrorConnection
	for rows.Next() {
		var m domain.MirrorConnection
		if err := rows.Scan(&m.FromChannelID, &m.ToChannelID); err != nil {
			return nil, fmt.Errorf("sqlite: scan mirror connection: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
