// Package auth verifies bearer credentials issued by the auth service.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"

	"github.com/dkeye/groupchat/internal/domain"
)

var (
	ErrInvalidToken  = errors.New("invalid token")
	ErrMissingUserID = errors.New("token has no user id claim")
)

// Options controls signing and TTL.
type Options struct {
	Secret []byte
	Alg    string        // HS256/HS384/HS512 (default HS256)
	TTL    time.Duration // default 7 days
	Leeway time.Duration
}

func DefaultOptions(secret []byte) Options {
	return Options{Secret: secret, Alg: "HS256", TTL: 7 * 24 * time.Hour, Leeway: 30 * time.Second}
}

// JWTVerifier implements core.Verifier over HMAC-signed JWTs.
type JWTVerifier struct {
	opts   Options
	method jwtlib.SigningMethod
}

func NewJWTVerifier(opts Options) (*JWTVerifier, error) {
	if len(opts.Secret) == 0 {
		return nil, errors.New("jwt secret is empty")
	}
	method, err := signingMethod(opts.Alg)
	if err != nil {
		return nil, err
	}
	if opts.TTL <= 0 {
		opts.TTL = 7 * 24 * time.Hour
	}
	return &JWTVerifier{opts: opts, method: method}, nil
}

// Verify accepts the user id in the "userId" claim and falls back to "sub".
// A leading "Bearer " prefix is tolerated.
func (v *JWTVerifier) Verify(_ context.Context, token string) (domain.UserID, error) {
	token = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(token), "Bearer "))
	if token == "" {
		return "", ErrInvalidToken
	}
	parsed, err := jwtlib.Parse(token, func(t *jwtlib.Token) (interface{}, error) {
		// HMAC family only
		if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected alg: %v", t.Header["alg"])
		}
		return v.opts.Secret, nil
	}, jwtlib.WithLeeway(v.opts.Leeway), jwtlib.WithValidMethods([]string{v.method.Alg()}))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid {
		return "", ErrInvalidToken
	}
	claims, ok := parsed.Claims.(jwtlib.MapClaims)
	if !ok {
		return "", errors.New("claims type mismatch")
	}
	raw := claimString(claims["userId"])
	if raw == "" {
		raw = claimString(claims["sub"])
	}
	if raw == "" {
		return "", ErrMissingUserID
	}
	return domain.ParseUserID(raw)
}

// Issue signs a token for uid. Used by tests and local tooling; production
// tokens come from the auth service with the same secret.
func (v *JWTVerifier) Issue(uid domain.UserID) (string, time.Time, error) {
	now := time.Now()
	exp := now.Add(v.opts.TTL)
	claims := jwtlib.MapClaims{
		"userId": string(uid),
		"sub":    string(uid),
		"iat":    now.Unix(),
		"nbf":    now.Unix(),
		"exp":    exp.Unix(),
	}
	signed, err := jwtlib.NewWithClaims(v.method, claims).SignedString(v.opts.Secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, exp, nil
}

// claimString reads ids that were signed either as strings or as numbers.
func claimString(c any) string {
	switch t := c.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	}
	return ""
}

func signingMethod(alg string) (jwtlib.SigningMethod, error) {
	switch strings.ToUpper(strings.TrimSpace(alg)) {
	case "", "HS256":
		return jwtlib.SigningMethodHS256, nil
	case "HS384":
		return jwtlib.SigningMethodHS384, nil
	case "HS512":
		return jwtlib.SigningMethodHS512, nil
	default:
		return nil, fmt.Errorf("unsupported alg: %s (use HS256/HS384/HS512)", alg)
	}
}
