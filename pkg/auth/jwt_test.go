package auth

import (
	"testing"
	"time"
)

const testSecret = "test-secret"

func TestNewAccessToken_RoundTrip(t *testing.T) {
	token, err := NewAccessToken("member-1", "ada@example.com", RoleMember, testSecret, time.Minute)
	if err != nil {
		t.Fatalf("NewAccessToken: %v", err)
	}

	claims, err := Parse(token, testSecret)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.UserID() != "member-1" || claims.Email != "ada@example.com" {
		t.Fatalf("Unexpected claims: %+v", claims)
	}
	if claims.IsLibrarian() {
		t.Fatal("Expected member not to be a librarian")
	}
}

func TestParse_Rejects(t *testing.T) {
	expired, _ := NewAccessToken("member-1", "ada@example.com", RoleMember, testSecret, -time.Minute)
	other, _ := NewAccessToken("member-1", "ada@example.com", RoleMember, "other-secret", time.Minute)
	noSubject, _ := NewAccessToken("", "ada@example.com", RoleMember, testSecret, time.Minute)

	tests := []struct {
		name  string
		token string
	}{
		{"expired", expired},
		{"wrong secret", other},
		{"missing subject", noSubject},
		{"garbage", "not.a.jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.token, testSecret); err == nil {
				t.Fatal("Expected parse to fail")
			}
		})
	}
}
