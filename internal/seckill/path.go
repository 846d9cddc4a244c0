package seckill

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

// PathStore keeps one-time purchase path tokens.
type PathStore interface {
	SetPath(ctx context.Context, userID, activityID uint64, token string, ttl time.Duration) error
	TakePath(ctx context.Context, userID, activityID uint64) (string, bool, error)
}

// PathService mints and consumes the obfuscated purchase path.  A token
// is issued only after a correct captcha answer and authorizes exactly one
// execute call within its TTL.
type PathService struct {
	store   PathStore
	captcha *CaptchaService
	secret  []byte
	ttl     time.Duration
}

// NewPathService returns a PathService.  secret keys the token hash;
// secrets longer than a blake2b key are hashed down first.
func NewPathService(store PathStore, captcha *CaptchaService, secret string, ttl time.Duration) *PathService {
	key := []byte(secret)
	if len(key) > blake2b.Size {
		sum := blake2b.Sum512(key)
		key = sum[:]
	}
	return &PathService{store: store, captcha: captcha, secret: key, ttl: ttl}
}

// Issue verifies the captcha answer and stores a fresh token for (user,
// activity), replacing any unused one.
func (s *PathService) Issue(ctx context.Context, userID, activityID uint64, captchaAnswer int) (string, error) {
	if err := s.captcha.Verify(ctx, userID, activityID, captchaAnswer); err != nil {
		return "", err
	}
	token, err := s.mint(userID, activityID)
	if err != nil {
		return "", err
	}
	if err := s.store.SetPath(ctx, userID, activityID, token, s.ttl); err != nil {
		return "", Busy(err)
	}
	return token, nil
}

// mint hashes user id, activity id and a random nonce under the secret.
func (s *PathService) mint(userID, activityID uint64) (string, error) {
	h, err := blake2b.New256(s.secret)
	if err != nil {
		return "", fmt.Errorf("path hash: %w", err)
	}
	fmt.Fprintf(h, "%d_%d_%s", userID, activityID, uuid.NewString())
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Consume atomically removes the stored token and compares it with token.
// The stored token is gone afterwards whether or not it matched.
func (s *PathService) Consume(ctx context.Context, userID, activityID uint64, token string) error {
	stored, ok, err := s.store.TakePath(ctx, userID, activityID)
	if err != nil {
		return Busy(err)
	}
	if !ok || token == "" || subtle.ConstantTimeCompare([]byte(stored), []byte(token)) != 1 {
		return ErrPathInvalid
	}
	return nil
}
