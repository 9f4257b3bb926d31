package token

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Mint builds an HS256-signed token for subject expiring at exp. Used by
// fakes and tests; the core never signs anything itself.
func Mint(subject string, exp time.Time) string {
	claims := jwt.MapClaims{
		"sub":  subject,
		"exp":  exp.Unix(),
		"iat":  time.Now().Unix(),
		"role": "authenticated",
		"jti":  uuid.NewString(),
	}
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		panic(err)
	}
	return s
}
