package auth

import (
	"testing"
	"time"

	"github.com/dkezh/casket/internal/config"
	"github.com/google/uuid"
)

const testSecret = "unit-test-secret"

func TestVerifyTokenRoundTrip(t *testing.T) {
	verifier := NewVerifier(config.AuthConfig{TokenSecret: testSecret})

	prefix := "ck_a1b2c3"
	want := Identity{ID: uuid.New(), IsAdmin: true, KeyPrefix: &prefix}
	token, err := IssueToken(testSecret, want, time.Minute)
	if err != nil {
		t.Fatalf("IssueToken returned error: %v", err)
	}

	got, err := verifier.VerifyToken(token)
	if err != nil {
		t.Fatalf("VerifyToken returned error: %v", err)
	}
	if got.ID != want.ID || !got.IsAdmin {
		t.Fatalf("unexpected identity: %+v", got)
	}
	if got.KeyPrefix == nil || *got.KeyPrefix != prefix {
		t.Fatalf("expected key prefix %q, got %v", prefix, got.KeyPrefix)
	}
}

func TestVerifyTokenRejectsWrongSecret(t *testing.T) {
	verifier := NewVerifier(config.AuthConfig{TokenSecret: testSecret})

	token, err := IssueToken("other-secret", Identity{ID: uuid.New()}, time.Minute)
	if err != nil {
		t.Fatalf("IssueToken returned error: %v", err)
	}

	if _, err := verifier.VerifyToken(token); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestVerifyTokenRejectsExpired(t *testing.T) {
	verifier := NewVerifier(config.AuthConfig{TokenSecret: testSecret})

	token, err := IssueToken(testSecret, Identity{ID: uuid.New()}, -time.Minute)
	if err != nil {
		t.Fatalf("IssueToken returned error: %v", err)
	}

	if _, err := verifier.VerifyToken(token); err != ErrInvalidToken {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}

func TestCanManage(t *testing.T) {
	owner := uuid.New()

	if !(Identity{ID: owner}).CanManage(owner) {
		t.Fatalf("owner should manage own bucket")
	}
	if (Identity{ID: uuid.New()}).CanManage(owner) {
		t.Fatalf("stranger should not manage bucket")
	}
	if !(Identity{ID: uuid.New(), IsAdmin: true}).CanManage(owner) {
		t.Fatalf("admin should manage any bucket")
	}
}

func TestVerifyAdminKey(t *testing.T) {
	hash, err := HashAdminKey("swordfish")
	if err != nil {
		t.Fatalf("HashAdminKey returned error: %v", err)
	}
	verifier := NewVerifier(config.AuthConfig{AdminKeyHash: hash})

	if !verifier.VerifyAdminKey("swordfish") {
		t.Fatalf("expected matching admin key to verify")
	}
	if verifier.VerifyAdminKey("guppy") {
		t.Fatalf("expected mismatched admin key to fail")
	}

	empty := NewVerifier(config.AuthConfig{})
	if empty.VerifyAdminKey("swordfish") {
		t.Fatalf("expected admin key to fail when no hash configured")
	}
}
