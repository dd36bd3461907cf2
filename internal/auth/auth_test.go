package auth_test

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"sevenquiz-backend/internal/auth"

	"github.com/benbjohnson/clock"
	"github.com/golang-jwt/jwt"
)

func TestChallengeStore_GenerateConsume(t *testing.T) {
	t.Parallel()

	store := auth.NewChallengeStore(60 * time.Second)

	challenge, err := store.Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if len(challenge) != 32 {
		t.Fatalf("Generate() len = %d, want 32", len(challenge))
	}

	if !store.Consume(challenge) {
		t.Fatal("Consume() on fresh challenge = false, want true")
	}

	// A challenge may be consumed at most once (spec.md invariant 5).
	if store.Consume(challenge) {
		t.Fatal("Consume() on already-consumed challenge = true, want false")
	}
}

func TestChallengeStore_ExpiresAfterTTL(t *testing.T) {
	t.Parallel()

	mock := clock.NewMock()
	store := auth.NewChallengeStoreWithClock(60*time.Second, mock)

	challenge, err := store.Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	mock.Add(60 * time.Second)

	if store.Consume(challenge) {
		t.Fatal("Consume() on expired challenge = true, want false")
	}
}

func TestChallengeStore_FailedConsumeDoesNotBurnChallenge(t *testing.T) {
	t.Parallel()

	store := auth.NewChallengeStore(60 * time.Second)

	// Consuming an unknown challenge must not affect a real one: verify by
	// generating a real challenge, probing a bogus one, then consuming the
	// real one successfully.
	challenge, err := store.Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	if store.Consume("not-a-real-challenge-000000000000") {
		t.Fatal("Consume() on bogus challenge = true, want false")
	}

	if !store.Consume(challenge) {
		t.Fatal("Consume() on real challenge after bogus probe = false, want true")
	}
}

func TestChallengeStore_Sweep(t *testing.T) {
	t.Parallel()

	mock := clock.NewMock()
	store := auth.NewChallengeStoreWithClock(60*time.Second, mock)

	if _, err := store.Generate(); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	mock.Add(59 * time.Second)
	store.Sweep()
	if store.Len() != 1 {
		t.Fatalf("Len() after early sweep = %d, want 1", store.Len())
	}

	mock.Add(2 * time.Second)
	store.Sweep()
	if store.Len() != 0 {
		t.Fatalf("Len() after expiring sweep = %d, want 0", store.Len())
	}
}

func TestChallengeStore_ConcurrentConsumeIsExclusive(t *testing.T) {
	t.Parallel()

	store := auth.NewChallengeStore(60 * time.Second)
	challenge, err := store.Generate()
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	var successes atomic.Int32
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if store.Consume(challenge) {
				successes.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := successes.Load(); got != 1 {
		t.Fatalf("concurrent Consume() successes = %d, want 1", got)
	}
}

func TestChallengeStore_Run(t *testing.T) {
	t.Parallel()

	mock := clock.NewMock()
	store := auth.NewChallengeStoreWithClock(60*time.Second, mock)

	if _, err := store.Generate(); err != nil {
		t.Fatalf("Generate() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		store.Run(ctx, 60*time.Second)
		close(done)
	}()

	mock.Add(60 * time.Second)

	cancel()
	<-done
}

func generateKeyPair(t *testing.T) (ed25519.PublicKey, ed25519.PrivateKey) {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	return pub, priv
}

func TestTokenService_VerifySignature(t *testing.T) {
	t.Parallel()

	pub, priv := generateKeyPair(t)
	pubB64 := base64.StdEncoding.EncodeToString(pub)

	message := "some-challenge-string"
	sig := ed25519.Sign(priv, []byte(message))
	sigB64 := base64.StdEncoding.EncodeToString(sig)

	svc := auth.NewTokenService([]byte("secret"), 24*time.Hour)

	if !svc.VerifySignature(pubB64, message, sigB64) {
		t.Fatal("VerifySignature() = false, want true for a valid signature")
	}

	if svc.VerifySignature(pubB64, "a different message", sigB64) {
		t.Fatal("VerifySignature() = true, want false for a tampered message")
	}

	if svc.VerifySignature("not-base64!!!", message, sigB64) {
		t.Fatal("VerifySignature() = true, want false for malformed public key")
	}

	if svc.VerifySignature(pubB64, message, "not-base64!!!") {
		t.Fatal("VerifySignature() = true, want false for malformed signature")
	}

	shortKey := base64.StdEncoding.EncodeToString([]byte("too-short"))
	if svc.VerifySignature(shortKey, message, sigB64) {
		t.Fatal("VerifySignature() = true, want false for wrong-length public key")
	}
}

func TestTokenService_IssueAndValidate(t *testing.T) {
	t.Parallel()

	svc := auth.NewTokenService([]byte("secret"), 24*time.Hour)

	token, err := svc.IssueToken("pubkey123", "alice")
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	subject, username, err := svc.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}
	if subject != "pubkey123" || username != "alice" {
		t.Fatalf("ValidateToken() = (%q, %q), want (%q, %q)", subject, username, "pubkey123", "alice")
	}
}

func TestTokenService_ValidateToken_WrongSecret(t *testing.T) {
	t.Parallel()

	issuer := auth.NewTokenService([]byte("secret-a"), 24*time.Hour)
	validator := auth.NewTokenService([]byte("secret-b"), 24*time.Hour)

	token, err := issuer.IssueToken("pubkey123", "alice")
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	if _, _, err := validator.ValidateToken(token); err == nil {
		t.Fatal("ValidateToken() error = nil, want error for wrong-signed token")
	}
}

func TestTokenService_ValidateToken_ExpiresAfterTTL(t *testing.T) {
	svc := auth.NewTokenService([]byte("secret"), time.Hour)

	start := time.Now()
	jwt.TimeFunc = func() time.Time { return start }
	defer func() { jwt.TimeFunc = time.Now }()

	token, err := svc.IssueToken("pubkey123", "alice")
	if err != nil {
		t.Fatalf("IssueToken() error = %v", err)
	}

	if _, _, err := svc.ValidateToken(token); err != nil {
		t.Fatalf("ValidateToken() within TTL error = %v, want nil", err)
	}

	jwt.TimeFunc = func() time.Time { return start.Add(2 * time.Hour) }

	if _, _, err := svc.ValidateToken(token); err == nil {
		t.Fatal("ValidateToken() after TTL error = nil, want error")
	}
}

func TestTokenService_ValidateToken_Malformed(t *testing.T) {
	t.Parallel()

	svc := auth.NewTokenService([]byte("secret"), 24*time.Hour)

	if _, _, err := svc.ValidateToken("not.a.jwt"); err == nil {
		t.Fatal("ValidateToken() error = nil, want error for malformed token")
	}
}
