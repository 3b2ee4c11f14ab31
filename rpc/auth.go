package rpc

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
)

const (
	scopeSendTx   = "tx:send"
	jwtClockSkew  = time.Minute
	minJWTKeySize = 32
)

// authenticator accepts either the static RPC token or an HS256 JWT whose
// scope claim grants the requested permission. With neither configured every
// request passes.
type authenticator struct {
	token  []byte
	secret []byte
	issuer string
}

func newAuthenticator(token, secret, issuer string) (*authenticator, error) {
	secret = strings.TrimSpace(secret)
	if secret != "" && len(secret) < minJWTKeySize {
		return nil, fmt.Errorf("rpc: jwt secret must be at least %d bytes", minJWTKeySize)
	}
	return &authenticator{
		token:  []byte(strings.TrimSpace(token)),
		secret: []byte(secret),
		issuer: strings.TrimSpace(issuer),
	}, nil
}

func (a *authenticator) enabled() bool {
	return a != nil && (len(a.token) > 0 || len(a.secret) > 0)
}

func (a *authenticator) authorize(r *http.Request, scope string) *RPCError {
	if !a.enabled() {
		return nil
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing Authorization header"}
	}
	if !strings.HasPrefix(header, "Bearer ") {
		return &RPCError{Code: codeUnauthorized, Message: "Authorization header must use Bearer scheme"}
	}
	bearer := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if bearer == "" {
		return &RPCError{Code: codeUnauthorized, Message: "missing bearer token"}
	}
	if len(a.token) > 0 && subtle.ConstantTimeCompare([]byte(bearer), a.token) == 1 {
		return nil
	}
	if len(a.secret) == 0 {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	claims, err := a.parseToken(bearer)
	if err != nil {
		return &RPCError{Code: codeUnauthorized, Message: "invalid RPC credentials"}
	}
	if !hasScope(claims, scope) {
		return &RPCError{Code: codeUnauthorized, Message: "insufficient scope", Data: scope}
	}
	return nil
}

func (a *authenticator) parseToken(raw string) (jwt.MapClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(jwtClockSkew),
		jwt.WithExpirationRequired(),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		return a.secret, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("token invalid")
	}
	return claims, nil
}

func hasScope(claims jwt.MapClaims, required string) bool {
	var scopes []string
	switch v := claims["scope"].(type) {
	case string:
		scopes = strings.Fields(v)
	case []interface{}:
		for _, entry := range v {
			if s, ok := entry.(string); ok {
				scopes = append(scopes, s)
			}
		}
	}
	for _, s := range scopes {
		if s == required {
			return true
		}
	}
	return false
}
