// Package auth implements the challenge/response authentication scheme
// (spec.md §4.1, §4.2): a bounded-lifetime nonce store (C1) and an
// Ed25519-signature-verified token service (C2).
package auth

import (
	"context"
	"crypto/rand"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

const challengeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

const challengeLength = 32

// ChallengeStore issues one-time nonces with a bounded lifetime and
// consumes them exactly once. All operations are serialized behind a single
// mutex; sweep holds the lock only for the compaction pass (spec.md §4.1).
type ChallengeStore struct {
	ttl   time.Duration
	clock clock.Clock
	mu    sync.Mutex
	byVal map[string]time.Time
}

func NewChallengeStore(ttl time.Duration) *ChallengeStore {
	return NewChallengeStoreWithClock(ttl, clock.New())
}

func NewChallengeStoreWithClock(ttl time.Duration, c clock.Clock) *ChallengeStore {
	return &ChallengeStore{
		ttl:   ttl,
		clock: c,
		byVal: make(map[string]time.Time),
	}
}

// Generate returns a new 32-character challenge drawn uniformly from
// [A-Za-z0-9] and records its creation time.
func (s *ChallengeStore) Generate() (string, error) {
	challenge, err := randomString(challengeLength)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.byVal[challenge] = s.clock.Now()
	s.mu.Unlock()

	return challenge, nil
}

// Consume removes challenge and returns true if it existed and had not yet
// expired. A failed attempt leaves the entry untouched, so a guess against
// an unused, still-live challenge does not burn it for the legitimate
// holder (spec.md §4.1).
func (s *ChallengeStore) Consume(challenge string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt, ok := s.byVal[challenge]
	if !ok || s.clock.Now().Sub(createdAt) >= s.ttl {
		return false
	}

	delete(s.byVal, challenge)
	return true
}

// Sweep drops every entry older than the configured TTL. Idempotent.
func (s *ChallengeStore) Sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	for challenge, createdAt := range s.byVal {
		if now.Sub(createdAt) >= s.ttl {
			delete(s.byVal, challenge)
		}
	}
}

// Len reports the number of live challenge entries. Used by tests and
// operational logging.
func (s *ChallengeStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byVal)
}

// Run sweeps on a fixed cadence until ctx is canceled. Intended to be
// started once, in a background goroutine, at process startup.
func (s *ChallengeStore) Run(ctx context.Context, interval time.Duration) {
	ticker := s.clock.Ticker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Sweep()
		case <-ctx.Done():
			return
		}
	}
}

func randomString(n int) (string, error) {
	// Bytes at or above the largest multiple of the alphabet size are
	// rejected, so every character is equally likely.
	limit := 256 - 256%len(challengeAlphabet)
	b := make([]byte, 0, n)
	var buf [1]byte
	for len(b) < n {
		if _, err := rand.Read(buf[:]); err != nil {
			return "", err
		}
		if int(buf[0]) < limit {
			b = append(b, challengeAlphabet[int(buf[0])%len(challengeAlphabet)])
		}
	}
	return string(b), nil
}
