package auth

import (
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt"
)

// TokenService verifies Ed25519 signatures and mints/validates bearer
// tokens carrying {subject = public_key_b64, username, expires_at}
// (spec.md §4.2). The public key is never parsed into anything richer than
// raw bytes: it is the stable Identity, carried as a Base64 string
// end-to-end.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenService(secret []byte, ttl time.Duration) *TokenService {
	return &TokenService{secret: secret, ttl: ttl}
}

// VerifySignature decodes both Base64 fields, parses a 32-byte Ed25519
// public key and a 64-byte signature, and runs strict verification. Any
// length mismatch, decoding failure, or verification failure returns false,
// never an error: callers treat "can't verify" as "invalid" (spec.md §4.2).
func (s *TokenService) VerifySignature(publicKeyB64, message, signatureB64 string) bool {
	publicKey, err := base64.StdEncoding.DecodeString(publicKeyB64)
	if err != nil || len(publicKey) != ed25519.PublicKeySize {
		return false
	}

	signature, err := base64.StdEncoding.DecodeString(signatureB64)
	if err != nil || len(signature) != ed25519.SignatureSize {
		return false
	}

	return ed25519.Verify(publicKey, []byte(message), signature)
}

// IssueToken mints a token valid for the configured TTL from issuance,
// signed with the configured HMAC secret.
func (s *TokenService) IssueToken(publicKeyB64, username string) (string, error) {
	claims := jwt.MapClaims{
		"sub":      publicKeyB64,
		"username": username,
		"exp":      time.Now().Add(s.ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ErrInvalidToken is returned by ValidateToken for any malformed, expired,
// or wrong-signed token. The caller never learns more than that.
var ErrInvalidToken = errors.New("invalid token")

// ValidateToken decodes and verifies signature and expiry, returning the
// enclosed subject (Identity) and username.
func (s *TokenService) ValidateToken(tokenString string) (subject, username string, err error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return "", "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", ErrInvalidToken
	}

	subject, ok = claims["sub"].(string)
	if !ok || subject == "" {
		return "", "", ErrInvalidToken
	}

	username, _ = claims["username"].(string)

	return subject, username, nil
}
