package utils

import (
	"testing"
	"time"
)

func TestAdmissionTokenRoundTrip(t *testing.T) {
	exp := time.Now().Add(10 * time.Minute)
	tok, err := NewAdmissionToken("secret", "tok-123", 42, 7, exp)
	if err != nil {
		t.Fatalf("NewAdmissionToken: %v", err)
	}
	if tok.Token == "" {
		t.Fatal("empty serialized token")
	}
	if !tok.Exp.Equal(exp.UTC()) {
		t.Fatalf("Exp = %v, want %v", tok.Exp, exp.UTC())
	}

	claims, err := ParseAdmissionToken("secret", tok.Token)
	if err != nil {
		t.Fatalf("ParseAdmissionToken: %v", err)
	}
	if claims.TokenID != "tok-123" || claims.UserID != 42 || claims.ConcertID != 7 {
		t.Fatalf("claims = %+v", claims)
	}
}

func TestAdmissionTokenWrongSecret(t *testing.T) {
	tok, err := NewAdmissionToken("secret", "tok-123", 42, 7, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ParseAdmissionToken("other-secret", tok.Token); err == nil {
		t.Fatal("token verified with the wrong secret")
	}
}

func TestAdmissionTokenExpired(t *testing.T) {
	tok, err := NewAdmissionToken("secret", "tok-123", 42, 7, time.Now().Add(-time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ParseAdmissionToken("secret", tok.Token); err == nil {
		t.Fatal("expired token verified")
	}
}

func TestAdmissionTokenGarbage(t *testing.T) {
	if _, err := ParseAdmissionToken("secret", "not-a-jwt"); err == nil {
		t.Fatal("garbage input verified")
	}
}
