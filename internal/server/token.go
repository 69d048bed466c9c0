package server

import (
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/parleychat/parley/internal/chat"
)

// AuthToken is the credential handed to clients after a successful login.
// Clients replay it through set-token to resume their account on a fresh
// connection. The signature is an HMAC-signed JWT whose subject must match
// the advertised user id.
type AuthToken struct {
	UserID    int64  `json:"userId"`
	Timestamp int64  `json:"timestamp"`
	Signature string `json:"signature"`
}

// TokenIssuer mints and verifies auth tokens.
type TokenIssuer struct {
	secret   []byte
	validity time.Duration
}

func NewTokenIssuer(secret string, validity time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), validity: validity}
}

// Issue signs a token for the given user.
func (t *TokenIssuer) Issue(userID int64) (*AuthToken, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(t.validity)),
	}
	signature, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return nil, chat.Transportf("failed to sign auth token: %v", err)
	}
	return &AuthToken{
		UserID:    userID,
		Timestamp: now.UnixMilli(),
		Signature: signature,
	}, nil
}

// Verify checks the signature and returns the user id it vouches for. The
// advertised userId must match the signed subject; a mismatch is treated
// the same as a forged signature.
func (t *TokenIssuer) Verify(token *AuthToken) (int64, error) {
	parsed, err := jwt.ParseWithClaims(token.Signature, &jwt.RegisteredClaims{}, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return t.secret, nil
	})
	if err != nil || !parsed.Valid {
		return 0, chat.Permissionf("invalid auth token")
	}
	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return 0, chat.Permissionf("invalid auth token")
	}
	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID != token.UserID {
		return 0, chat.Permissionf("invalid auth token")
	}
	return userID, nil
}
