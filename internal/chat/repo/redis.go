package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/askaudacity/chatcore/internal/chat/model"
	errx "github.com/askaudacity/chatcore/internal/core/error"
	logx "github.com/askaudacity/chatcore/pkg/logger"
)

const (
	sessionNextIDKey = "session:next_id"
	sessionIndexKey  = "sessions:ids"
)

// RedisSessionRepository stores session records as JSON values in Redis.
// Ids come from an INCR counter, so they stay monotonic and are never reused
// even when individual records expire.
type RedisSessionRepository struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisSessionRepository(rdb redis.Cmdable, ttl time.Duration) *RedisSessionRepository {
	return &RedisSessionRepository{rdb: rdb, ttl: ttl}
}

func (r *RedisSessionRepository) sessionKey(id int64) string {
	return fmt.Sprintf("session:%d", id)
}

func (r *RedisSessionRepository) Create(ctx context.Context, title string) (*model.Session, error) {
	id, err := r.rdb.Incr(ctx, sessionNextIDKey).Result()
	if err != nil {
		logx.Error().Err(err).Msg("failed to allocate session id")
		return nil, errx.WrapRedis(err)
	}

	s := &model.Session{
		ID:        id,
		Title:     title,
		CreatedAt: time.Now(),
	}
	if err := r.write(ctx, s); err != nil {
		return nil, err
	}
	if err := r.rdb.RPush(ctx, sessionIndexKey, id).Err(); err != nil {
		logx.Error().Err(err).Int64("sessionID", id).Msg("failed to index session")
		return nil, errx.WrapRedis(err)
	}
	return s, nil
}

func (r *RedisSessionRepository) Save(ctx context.Context, session *model.Session) error {
	key := r.sessionKey(session.ID)
	exists, err := r.rdb.Exists(ctx, key).Result()
	if err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to check session existence")
		return errx.WrapRedis(err)
	}
	if exists == 0 {
		return model.ErrSessionNotFound
	}
	return r.write(ctx, session)
}

func (r *RedisSessionRepository) Get(ctx context.Context, id int64) (*model.Session, error) {
	key := r.sessionKey(id)
	raw, err := r.rdb.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, model.ErrSessionNotFound
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load session from redis")
		return nil, errx.WrapRedis(err)
	}

	var s model.Session
	if err := json.Unmarshal([]byte(raw), &s); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to unmarshal session")
		return nil, fmt.Errorf("unmarshal session %d: %w", id, err)
	}
	return &s, nil
}

func (r *RedisSessionRepository) List(ctx context.Context) ([]*model.Session, error) {
	ids, err := r.rdb.LRange(ctx, sessionIndexKey, 0, -1).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		logx.Error().Err(err).Msg("failed to list session ids")
		return nil, errx.WrapRedis(err)
	}

	out := make([]*model.Session, 0, len(ids))
	for _, rawID := range ids {
		id, err := strconv.ParseInt(rawID, 10, 64)
		if err != nil {
			logx.Warn().Str("id", rawID).Msg("skipping malformed session index entry")
			continue
		}
		s, err := r.Get(ctx, id)
		if err != nil {
			// expired records stay in the index; skip them
			if err == model.ErrSessionNotFound {
				continue
			}
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func (r *RedisSessionRepository) Count(ctx context.Context) (int, error) {
	n, err := r.rdb.LLen(ctx, sessionIndexKey).Result()
	if err != nil {
		if err == redis.Nil {
			return 0, nil
		}
		logx.Error().Err(err).Msg("failed to count sessions")
		return 0, errx.WrapRedis(err)
	}
	return int(n), nil
}

func (r *RedisSessionRepository) write(ctx context.Context, s *model.Session) error {
	b, err := json.Marshal(s)
	if err != nil {
		logx.Error().Err(err).Int64("sessionID", s.ID).Msg("failed to marshal session")
		return fmt.Errorf("marshal session: %w", err)
	}

	key := r.sessionKey(s.ID)
	if err := r.rdb.Set(ctx, key, b, 0).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to write session to redis")
		return errx.WrapRedis(err)
	}
	// extend TTL on touch
	if r.ttl > 0 {
		if ok, err := r.rdb.Expire(ctx, key, r.ttl).Result(); err != nil {
			logx.Error().Err(err).Str("key", key).Msg("failed to set expire")
			return errx.WrapRedis(err)
		} else if !ok {
			logx.Warn().Str("key", key).Dur("ttl", r.ttl).Msg("failed to set TTL on session key")
		}
	}
	return nil
}

var _ model.SessionRepository = (*RedisSessionRepository)(nil)
