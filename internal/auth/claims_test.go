package auth

import (
	"errors"
	"testing"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestGenerateAndParseToken(t *testing.T) {
	user := &User{
		ID:    "usr-1",
		Email: "alice@example.com",
		LabID: "lab-1",
		Role:  RoleMember,
	}

	token, err := GenerateAccessToken(user, testSecret, 15)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	claims, err := ParseToken(token, testSecret)
	if err != nil {
		t.Fatalf("ParseToken: %v", err)
	}

	if claims.Subject != "usr-1" {
		t.Errorf("subject = %s, want usr-1", claims.Subject)
	}
	if claims.Email != "alice@example.com" {
		t.Errorf("email = %s", claims.Email)
	}
	if claims.LabID != "lab-1" {
		t.Errorf("lab_id = %s", claims.LabID)
	}
	if claims.Role != RoleMember {
		t.Errorf("role = %s", claims.Role)
	}
}

func TestParseTokenWrongSecret(t *testing.T) {
	user := &User{ID: "usr-1", Email: "alice@example.com", Role: RoleMember}
	token, err := GenerateAccessToken(user, testSecret, 15)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	if _, err := ParseToken(token, "a-completely-different-signing-key!!"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestGenerateTokenDefaultTTL(t *testing.T) {
	user := &User{ID: "usr-1", Email: "alice@example.com", Role: RoleMember}

	// ttlMinutes <= 0 falls back to the default, so the token is valid.
	token, err := GenerateAccessToken(user, testSecret, -5)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	if _, err := ParseToken(token, testSecret); err != nil {
		t.Fatalf("default-TTL token rejected: %v", err)
	}
}

func TestParseTokenGarbage(t *testing.T) {
	if _, err := ParseToken("not.a.jwt", testSecret); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestIsValidEmail(t *testing.T) {
	valid := []string{"alice@example.com", "a.b-c_d@labs.example.org"}
	invalid := []string{"", "no-at-sign", "two@@example.com", "missing@tld", "spaces in@example.com"}

	for _, email := range valid {
		if !IsValidEmail(email) {
			t.Errorf("IsValidEmail(%q) = false, want true", email)
		}
	}
	for _, email := range invalid {
		if IsValidEmail(email) {
			t.Errorf("IsValidEmail(%q) = true, want false", email)
		}
	}
}

func TestIsValidRole(t *testing.T) {
	if !IsValidRole(RoleMember) || !IsValidRole(RoleAdmin) {
		t.Fatal("expected member and admin to be valid roles")
	}
	if IsValidRole(Role("owner")) {
		t.Fatal("unexpected role accepted")
	}
}
