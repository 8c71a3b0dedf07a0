// Package auth implements the social-login exchange: it turns a verified
// identity assertion into a local user and a signed session token.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/triplog-app/triplog/internal/domain"
	"github.com/triplog-app/triplog/pkg/token"
)

const profileCacheKeyPrefix = "user_profile:"
const profileCacheTTL = time.Hour

var (
	ErrBadAssertion = errors.New("bad identity assertion")
	ErrUserNotFound = errors.New("user not found")
)

type UserRepository interface {
	FindOrCreate(ctx context.Context, a domain.IdentityAssertion) (*domain.User, bool, error)
	GetByID(ctx context.Context, userID int64) (*domain.User, error)
}

type CacheRepository interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) error
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// Service handles the session-establishing exchange and profile lookups.
type Service struct {
	users  UserRepository
	signer *token.Signer
	cache  CacheRepository // optional, can be nil
}

func NewService(users UserRepository, signer *token.Signer, cache CacheRepository) *Service {
	return &Service{
		users:  users,
		signer: signer,
		cache:  cache,
	}
}

// Exchange consumes an identity assertion, finds or creates the matching
// user, and mints a fresh session token. Idempotent with respect to user
// identity: repeated exchanges for the same (provider, social_id) always
// resolve to the same user, even when their claimed email differs.
func (s *Service) Exchange(ctx context.Context, a domain.IdentityAssertion) (string, *domain.User, error) {
	if !a.Provider.Valid() || a.SocialID == "" {
		return "", nil, ErrBadAssertion
	}

	user, created, err := s.users.FindOrCreate(ctx, a)
	if err != nil {
		return "", nil, fmt.Errorf("failed to resolve user: %v", err)
	}
	if created {
		log.Printf("[AUTH] New user %d registered via %s", user.ID, a.Provider)
	}

	tok, err := s.signer.Mint(user.ID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to mint session token: %v", err)
	}

	return tok, user, nil
}

// Profile returns the user behind an authenticated userID, cache-aside
// through Redis when available. A missing row is a data-integrity fault: the
// token verified but its subject has no record.
func (s *Service) Profile(ctx context.Context, userID int64) (*domain.User, error) {
	cacheKey := fmt.Sprintf("%s%d", profileCacheKeyPrefix, userID)

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, cacheKey)
		if err == nil && cached != "" {
			var user domain.User
			if err := json.Unmarshal([]byte(cached), &user); err == nil {
				return &user, nil
			}
		}
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %v", err)
	}
	if user == nil {
		log.Printf("[AUTH] Profile lookup for user %d hit no record", userID)
		return nil, ErrUserNotFound
	}

	if s.cache != nil {
		if data, err := json.Marshal(user); err == nil {
			if cacheErr := s.cache.Set(ctx, cacheKey, data, profileCacheTTL); cacheErr != nil {
				log.Printf("[AUTH] Warning: failed to cache profile for user %d: %v", userID, cacheErr)
			}
		}
	}

	return user, nil
}

// Invalidate is the best-effort server side of logout. Session tokens are
// stateless, so there is nothing to revoke; the cached profile is purged and
// the event is logged.
func (s *Service) Invalidate(ctx context.Context, userID int64) error {
	if s.cache != nil {
		cacheKey := fmt.Sprintf("%s%d", profileCacheKeyPrefix, userID)
		if err := s.cache.Del(ctx, cacheKey); err != nil {
			log.Printf("[AUTH] Warning: failed to purge cached profile for user %d: %v", userID, err)
		}
	}
	log.Printf("[AUTH] User %d logged out", userID)
	return nil
}
