package auth

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestGenerateAndParse(t *testing.T) {
	userID := uuid.New()

	token, err := GenerateJWT("secret", userID, 12345, time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}

	claims, err := ParseJWT("secret", token)
	if err != nil {
		t.Fatalf("ParseJWT: %v", err)
	}
	if claims.UserID != userID {
		t.Errorf("UserID = %s, want %s", claims.UserID, userID)
	}
	if claims.TelegramUserID != 12345 {
		t.Errorf("TelegramUserID = %d, want 12345", claims.TelegramUserID)
	}
}

func TestParseWrongSecret(t *testing.T) {
	token, err := GenerateJWT("secret", uuid.New(), 1, time.Hour)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}
	if _, err := ParseJWT("other-secret", token); err == nil {
		t.Fatal("ParseJWT with the wrong secret succeeded")
	}
}

func TestParseExpired(t *testing.T) {
	token, err := GenerateJWT("secret", uuid.New(), 1, time.Millisecond)
	if err != nil {
		t.Fatalf("GenerateJWT: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := ParseJWT("secret", token); err == nil {
		t.Fatal("ParseJWT accepted an expired token")
	}
}
