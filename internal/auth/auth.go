package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/victornm/quizduel/internal/errors"
)

// Claims is the identity carried by every access token. Tokens are issued by
// the account service; this service only verifies them (and signs them in
// tests).
type Claims struct {
	UserID    string
	FirstName string
}

type Verifier struct {
	secret []byte
}

func NewVerifier(secret []byte) *Verifier {
	return &Verifier{secret: secret}
}

// Verify parses an HS256 token and extracts the identity claims. Any parse or
// signature failure comes back as an unauthenticated error.
func (v *Verifier) Verify(token string) (Claims, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return Claims{}, errors.New(errors.CodeUnauthenticated, errors.WithCause(err))
	}

	mc, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return Claims{}, errors.New(errors.CodeUnauthenticated,
			errors.WithMessagef("token carries no claims"))
	}

	userID, _ := mc["userId"].(string)
	if userID == "" {
		return Claims{}, errors.New(errors.CodeUnauthenticated,
			errors.WithMessagef("token carries no user ID"))
	}

	firstName, _ := mc["firstName"].(string)

	return Claims{
		UserID:    userID,
		FirstName: firstName,
	}, nil
}

// Sign creates an access token for the claims. The serving path never issues
// tokens; this exists for tests and local tooling.
func (v *Verifier) Sign(c Claims, ttl time.Duration) (string, error) {
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"userId":    c.UserID,
		"firstName": c.FirstName,
		"iat":       now.Unix(),
		"exp":       now.Add(ttl).Unix(),
	})

	return token.SignedString(v.secret)
}
