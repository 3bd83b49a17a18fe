package auth

import (
	"testing"
	"time"
)

func TestGenerateAndValidateAccessToken(t *testing.T) {
	t.Setenv("COVENA_AUTH_SECRET", "test-secret")
	ResetSecretForTests()

	token, err := GenerateAccessToken("ident-42", "Owner@Example.com", 30*time.Minute)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	claims, err := ParseAndValidate(token)
	if err != nil {
		t.Fatalf("ParseAndValidate: %v", err)
	}
	if claims.Subject != "ident-42" {
		t.Fatalf("unexpected subject: %s", claims.Subject)
	}
	if claims.Email != "owner@example.com" {
		t.Fatalf("email not normalized: %s", claims.Email)
	}
	if claims.Issuer != "covena" {
		t.Fatalf("unexpected issuer: %s", claims.Issuer)
	}
}

func TestGenerateAccessTokenRejectsBadInput(t *testing.T) {
	t.Setenv("COVENA_AUTH_SECRET", "test-secret")
	ResetSecretForTests()

	if _, err := GenerateAccessToken("", "a@b.c", time.Minute); err == nil {
		t.Fatal("expected error for empty identity id")
	}
	if _, err := GenerateAccessToken("ident-1", "a@b.c", 0); err == nil {
		t.Fatal("expected error for zero ttl")
	}
}

func TestParseAndValidateRejectsExpired(t *testing.T) {
	t.Setenv("COVENA_AUTH_SECRET", "test-secret")
	ResetSecretForTests()

	token, err := GenerateAccessToken("ident-1", "a@b.c", time.Millisecond)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if _, err := ParseAndValidate(token); err == nil {
		t.Fatal("expected expired token to fail validation")
	}
}

func TestParseAndValidateRejectsGarbage(t *testing.T) {
	t.Setenv("COVENA_AUTH_SECRET", "test-secret")
	ResetSecretForTests()

	for _, tok := range []string{"", "   ", "not-a-jwt", "a.b.c"} {
		if _, err := ParseAndValidate(tok); err == nil {
			t.Fatalf("expected %q to fail validation", tok)
		}
	}
}

func TestMissingSecretSurfaces(t *testing.T) {
	t.Setenv("COVENA_AUTH_SECRET", "")
	ResetSecretForTests()
	defer ResetSecretForTests()

	if _, err := GenerateAccessToken("ident-1", "a@b.c", time.Minute); err == nil {
		t.Fatal("expected missing secret error")
	}
}
