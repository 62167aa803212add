package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"careerchat/internal/models"
	"careerchat/internal/redis"
)

// Session list pages are cached under a per-user generation. Any write that can
// reorder or change the list bumps the generation, orphaning old pages until they expire.
const sessionPageTTL = 10 * time.Minute

func generationKey(userID int64) string {
	return fmt.Sprintf("sessions:gen:%d", userID)
}

func sessionPageKey(userID int64, gen string, page, pageSize int) string {
	return fmt.Sprintf("sessions:%d:%s:%d:%d", userID, gen, page, pageSize)
}

func (s *Service) generation(ctx context.Context, userID int64) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	gen, err := s.cache.Get(ctx, generationKey(userID))
	if errors.Is(err, redis.ErrCacheMiss) {
		return "0", true
	}
	if err != nil {
		s.logger.WithError(err).Warn("read session cache generation")
		return "", false
	}
	return gen, true
}

// cachedSessions also returns the generation it looked under, which the caller
// stores a fresh page with so a concurrent invalidation is not overwritten.
func (s *Service) cachedSessions(ctx context.Context, userID int64, page, pageSize int) (string, models.Page[models.ClientSession], bool) {
	gen, ok := s.generation(ctx, userID)
	if !ok {
		return "", models.Page[models.ClientSession]{}, false
	}
	raw, err := s.cache.Get(ctx, sessionPageKey(userID, gen, page, pageSize))
	if err != nil {
		if !errors.Is(err, redis.ErrCacheMiss) {
			s.logger.WithError(err).Warn("read session page cache")
		}
		return gen, models.Page[models.ClientSession]{}, false
	}
	var result models.Page[models.ClientSession]
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return gen, models.Page[models.ClientSession]{}, false
	}
	return gen, result, true
}

func (s *Service) storeSessions(ctx context.Context, userID int64, gen string, result models.Page[models.ClientSession]) {
	if s.cache == nil || gen == "" {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return
	}
	key := sessionPageKey(userID, gen, result.Page, result.PageSize)
	if err := s.cache.Set(ctx, key, payload, sessionPageTTL); err != nil {
		s.logger.WithError(err).Warn("write session page cache")
	}
}

func (s *Service) invalidate(ctx context.Context, userID int64) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.Incr(ctx, generationKey(userID)); err != nil {
		s.logger.WithError(err).WithField("user_id", userID).Warn("invalidate session cache")
	}
}
