// Package challenge implements the anti-abuse puzzle protocol behind gated
// comment writes: a per-author posting-rate gate and single-use arithmetic
// challenges with redis-backed, bcrypt-hashed answers.
package challenge

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"folio/comments/internal/util"
)

type Challenge struct {
	Question string
	Token    string
}

type Service struct {
	client *redis.Client
	after  int
	window time.Duration
	ttl    time.Duration
}

// NewService connects to redis and returns a challenge service. An author is
// gated once they post more than `after` times inside `window`; issued
// challenges expire after `ttl`.
func NewService(redisURL string, after int, window, ttl time.Duration) (*Service, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewServiceWithClient(client, after, window, ttl), nil
}

// NewServiceWithClient builds a service from an existing redis client.
func NewServiceWithClient(client *redis.Client, after int, window, ttl time.Duration) *Service {
	return &Service{client: client, after: after, window: window, ttl: ttl}
}

func (s *Service) gateKey(authorID string) string {
	return "gate:" + authorID
}

func (s *Service) tokenKey(token string) string {
	return "challenge:" + token
}

// RecordPost counts a successful post against the author's gate window.
func (s *Service) RecordPost(ctx context.Context, authorID string) error {
	key := s.gateKey(authorID)
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("increment gate: %w", err)
	}
	if count == 1 {
		if err := s.client.Expire(ctx, key, s.window).Err(); err != nil {
			return fmt.Errorf("expire gate: %w", err)
		}
	}
	return nil
}

// Gated reports whether the author's next post requires a solved challenge.
func (s *Service) Gated(ctx context.Context, authorID string) (bool, error) {
	raw, err := s.client.Get(ctx, s.gateKey(authorID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read gate: %w", err)
	}
	count, err := strconv.Atoi(raw)
	if err != nil {
		return false, fmt.Errorf("parse gate count: %w", err)
	}
	return count >= s.after, nil
}

// ClearGate resets the author's window. Called after a solved challenge so
// the author is not immediately re-gated.
func (s *Service) ClearGate(ctx context.Context, authorID string) error {
	if err := s.client.Del(ctx, s.gateKey(authorID)).Err(); err != nil {
		return fmt.Errorf("clear gate: %w", err)
	}
	return nil
}

// Issue creates a fresh single-use challenge. Only the bcrypt hash of the
// expected answer is stored; the plaintext never leaves this function.
func (s *Service) Issue(ctx context.Context) (Challenge, error) {
	a, err := randomDigit()
	if err != nil {
		return Challenge{}, err
	}
	b, err := randomDigit()
	if err != nil {
		return Challenge{}, err
	}

	answer := strconv.Itoa(a + b)
	hash, err := bcrypt.GenerateFromPassword([]byte(answer), bcrypt.DefaultCost)
	if err != nil {
		return Challenge{}, fmt.Errorf("hash answer: %w", err)
	}

	token := util.NewID("ch")
	if err := s.client.Set(ctx, s.tokenKey(token), hash, s.ttl).Err(); err != nil {
		return Challenge{}, fmt.Errorf("store challenge: %w", err)
	}

	return Challenge{
		Question: fmt.Sprintf("%d + %d = ?", a, b),
		Token:    token,
	}, nil
}

// Verify consumes the token and checks the answer. The token is deleted on
// first use regardless of outcome, so a replayed or expired token always
// verifies false and the caller must issue a new challenge.
func (s *Service) Verify(ctx context.Context, token, answer string) (bool, error) {
	hash, err := s.client.GetDel(ctx, s.tokenKey(token)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("consume challenge: %w", err)
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(answer)) == nil, nil
}

func (s *Service) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *Service) Close() error {
	return s.client.Close()
}

func randomDigit() (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(9))
	if err != nil {
		return 0, fmt.Errorf("random digit: %w", err)
	}
	return int(n.Int64()) + 1, nil
}
