package utils // package utils provides helpers for admission token creation

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5" // JWT library for creating signed tokens
)

// AdmissionToken is the signed proof that a queue token is ACTIVE.
// The Token field contains the serialized JWT the client presents to
// booking endpoints; Exp mirrors the queue token's lease deadline, so
// the proof and the underlying token lapse together.
type AdmissionToken struct {
	Token string    // the serialized JWT string
	Exp   time.Time // the UTC expiration time
}

// AdmissionClaims are the claims recovered from a verified admission
// token.
type AdmissionClaims struct {
	TokenID   string // queue token id (jti)
	UserID    uint64 // owning user (sub)
	ConcertID uint64 // concert the token was issued for
}

// NewAdmissionToken builds and signs an HS256 JWT for an activated
// queue token.  Claims: jti carries the queue token id, sub the user
// id, concert_id the concert, exp the lease deadline and iat the
// issue time.  Verifying the signature spares booking endpoints a
// store round trip for obviously forged or stale tokens; the
// authoritative check remains the admission service's validation.
func NewAdmissionToken(secret, tokenID string, userID, concertID uint64, exp time.Time) (AdmissionToken, error) {
	claims := jwt.MapClaims{
		"jti":        tokenID,
		"sub":        fmt.Sprintf("%d", userID),
		"concert_id": concertID,
		"exp":        exp.UTC().Unix(),
		"iat":        time.Now().UTC().Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := tok.SignedString([]byte(secret))
	if err != nil {
		return AdmissionToken{}, err
	}
	return AdmissionToken{Token: signed, Exp: exp.UTC()}, nil
}

// ParseAdmissionToken verifies the signature and expiry of a raw
// admission token and returns its claims.
func ParseAdmissionToken(secret, raw string) (AdmissionClaims, error) {
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return AdmissionClaims{}, err
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok || !tok.Valid {
		return AdmissionClaims{}, errors.New("invalid admission token")
	}
	out := AdmissionClaims{}
	if jti, ok := claims["jti"].(string); ok {
		out.TokenID = jti
	}
	if sub, ok := claims["sub"].(string); ok {
		var uid uint64
		if _, err := fmt.Sscanf(sub, "%d", &uid); err == nil {
			out.UserID = uid
		}
	}
	if cid, ok := claims["concert_id"].(float64); ok {
		out.ConcertID = uint64(cid)
	}
	if out.TokenID == "" {
		return AdmissionClaims{}, errors.New("admission token missing token id")
	}
	return out, nil
}
