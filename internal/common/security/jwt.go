package security

import (
	"encoding/json"
	"math"
	"strconv"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	claimUserID   = "user_id"
	claimUsername = "username"

	DefaultTokenTTL = 30 * time.Minute
)

// TokenClaims is the identity carried by a verified bearer token.
type TokenClaims struct {
	UserID    int64
	Username  string
	ExpiresAt time.Time
}

// TokenService issues and verifies stateless HMAC-signed bearer tokens.
// Rotating the secret invalidates every token issued before.
type TokenService struct {
	auth *jwtauth.JWTAuth
	ttl  time.Duration
}

func NewTokenService(alg string, secret []byte, ttl time.Duration) *TokenService {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{
		auth: jwtauth.New(alg, secret, nil),
		ttl:  ttl,
	}
}

func (s *TokenService) TTL() time.Duration { return s.ttl }

func (s *TokenService) Issue(userID int64, username string) (string, error) {
	return s.IssueWithTTL(userID, username, s.ttl)
}

func (s *TokenService) IssueWithTTL(userID int64, username string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		claimUserID:   userID,
		claimUsername: username,
		"exp":         now.Add(ttl).Unix(),
		"iat":         now.Unix(),
		"jti":         uuid.NewString(),
	}
	_, tokenString, err := s.auth.Encode(claims)
	return tokenString, err
}

// Verify returns the identity in tokenString, or false when the signature,
// structure, claims or expiry are not acceptable. It accepts any string.
func (s *TokenService) Verify(tokenString string) (claims *TokenClaims, ok bool) {
	defer func() {
		if recover() != nil {
			claims, ok = nil, false
		}
	}()

	if tokenString == "" {
		return nil, false
	}
	token, err := jwtauth.VerifyToken(s.auth, tokenString)
	if err != nil || token == nil {
		return nil, false
	}

	rawID, found := token.Get(claimUserID)
	if !found {
		return nil, false
	}
	userID, valid := int64Claim(rawID)
	if !valid {
		return nil, false
	}
	rawName, found := token.Get(claimUsername)
	if !found {
		return nil, false
	}
	username, valid := rawName.(string)
	if !valid || username == "" {
		return nil, false
	}

	return &TokenClaims{
		UserID:    userID,
		Username:  username,
		ExpiresAt: token.Expiration(),
	}, true
}

func int64Claim(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) || n < math.MinInt64 || n >= math.MaxInt64 {
			return 0, false
		}
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case json.Number:
		id, err := n.Int64()
		return id, err == nil
	case string:
		id, err := strconv.ParseInt(n, 10, 64)
		return id, err == nil
	default:
		return 0, false
	}
}
