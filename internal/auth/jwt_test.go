package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/erazemk/darilo/internal/model"
)

func TestGenerateAndValidateToken(t *testing.T) {
	secret := "test-secret-key"

	token, err := GenerateToken(secret, 4, "zavetisce", model.RoleShelter, time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	claims, err := ValidateToken(secret, token)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}

	if claims.UserID != 4 {
		t.Errorf("expected user_id 4, got %d", claims.UserID)
	}
	if claims.Username != "zavetisce" {
		t.Errorf("expected username 'zavetisce', got %q", claims.Username)
	}
	if claims.ID == "" {
		t.Error("expected a JTI")
	}
	if got := claims.Actor(); got.ID != 4 || got.Role != model.RoleShelter {
		t.Errorf("unexpected actor %+v", got)
	}
}

func TestTokensHaveDistinctIDs(t *testing.T) {
	a, _ := GenerateToken("s", 1, "a", model.RoleDonor, 0)
	b, _ := GenerateToken("s", 1, "a", model.RoleDonor, 0)

	ca, err := ValidateToken("s", a)
	if err != nil {
		t.Fatal(err)
	}
	cb, err := ValidateToken("s", b)
	if err != nil {
		t.Fatal(err)
	}
	if ca.ID == cb.ID {
		t.Error("expected distinct JTIs")
	}
	if ttl := ca.ExpiresAt.Sub(ca.IssuedAt.Time); ttl != DefaultTokenTTL {
		t.Errorf("expected default ttl, got %v", ttl)
	}
}

func TestValidateTokenWrongSecret(t *testing.T) {
	token, _ := GenerateToken("secret1", 1, "admin", model.RoleAdmin, time.Hour)

	if _, err := ValidateToken("secret2", token); err == nil {
		t.Error("expected error for wrong secret")
	}
}

func TestValidateTokenInvalid(t *testing.T) {
	if _, err := ValidateToken("secret", "not-a-token"); err == nil {
		t.Error("expected error for invalid token")
	}
}

func TestValidateTokenExpired(t *testing.T) {
	claims := Claims{
		UserID: 1,
		Role:   model.RoleVolunteer,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    Issuer,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("s"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ValidateToken("s", token); err == nil {
		t.Error("expected error for expired token")
	}
}

func TestValidateTokenUnknownRole(t *testing.T) {
	token, _ := GenerateToken("s", 1, "old", "manager", time.Hour)
	if _, err := ValidateToken("s", token); err == nil {
		t.Error("expected error for unknown role")
	}
}
