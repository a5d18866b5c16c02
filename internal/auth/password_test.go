package auth

import (
	"errors"
	"strings"
	"testing"
)

func TestHashPasswordBounds(t *testing.T) {
	if _, err := HashPassword("short"); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("short password: %v", err)
	}
	if _, err := HashPassword(strings.Repeat("x", 73)); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("long password: %v", err)
	}
	hash, err := HashPassword("long enough")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !checkPassword(hash, "long enough") {
		t.Fatalf("hash does not verify")
	}
	if checkPassword(hash, "long enougH") {
		t.Fatalf("wrong password accepted")
	}
	if checkPassword("", "long enough") {
		t.Fatalf("empty hash must never match")
	}
}

func TestIdentityContext(t *testing.T) {
	ctx := ContextWithIdentity(t.Context(), Identity{UserID: "u1", Email: "a@b.c", SessionID: "s1"})
	id, ok := IdentityFromContext(ctx)
	if !ok || id.SessionID != "s1" {
		t.Fatalf("identity = %+v, %v", id, ok)
	}
	if _, ok := IdentityFromContext(ContextWithIdentity(t.Context(), Identity{})); ok {
		t.Fatalf("zero identity must count as absent")
	}
}
