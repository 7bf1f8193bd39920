package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"provider-messaging/backend/pkg/logger"
	"provider-messaging/backend/user/models"
	"provider-messaging/backend/user/repository"

	"gorm.io/gorm"
)

var ErrUserNotFound = errors.New("user not found")

// ProfileCache stores serialized profiles. Both the Redis client and the
// in-memory store satisfy it; any error from Get is treated as a miss.
type ProfileCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
}

type UserService struct {
	repo  repository.UserRepository
	cache ProfileCache
	ttl   time.Duration
	log   *logger.Logger
}

func NewUserService(repo repository.UserRepository, cache ProfileCache, ttl time.Duration, log *logger.Logger) *UserService {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &UserService{repo: repo, cache: cache, ttl: ttl, log: log}
}

func profileKey(id uint) string {
	return fmt.Sprintf("user:profile:%d", id)
}

func (s *UserService) cached(ctx context.Context, id uint) (*models.PublicProfile, bool) {
	raw, err := s.cache.Get(ctx, profileKey(id))
	if err != nil || raw == "" {
		return nil, false
	}
	var p models.PublicProfile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, false
	}
	return &p, true
}

func (s *UserService) remember(ctx context.Context, p models.PublicProfile) {
	data, err := json.Marshal(p)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, profileKey(p.ID), data, s.ttl); err != nil {
		s.log.Debug("profile cache write failed", "user_id", p.ID, "error", err.Error())
	}
}

// GetProfile returns the public profile of an account.
func (s *UserService) GetProfile(ctx context.Context, id uint) (*models.PublicProfile, error) {
	if p, ok := s.cached(ctx, id); ok {
		return p, nil
	}
	user, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	p := user.Profile()
	s.remember(ctx, p)
	return &p, nil
}

// Exists reports whether an account with the id is known.
func (s *UserService) Exists(ctx context.Context, id uint) (bool, error) {
	if _, ok := s.cached(ctx, id); ok {
		return true, nil
	}
	return s.repo.Exists(ctx, id)
}

// DisplayNames resolves names for ids, hitting storage once for all cache
// misses. Unknown ids are absent from the result.
func (s *UserService) DisplayNames(ctx context.Context, ids []uint) (map[uint]string, error) {
	names := make(map[uint]string, len(ids))
	var missing []uint
	seen := make(map[uint]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if p, ok := s.cached(ctx, id); ok {
			names[id] = p.Name
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return names, nil
	}

	users, err := s.repo.GetByIDs(ctx, missing)
	if err != nil {
		return nil, err
	}
	for i := range users {
		p := users[i].Profile()
		names[p.ID] = p.Name
		s.remember(ctx, p)
	}
	return names, nil
}
