package server

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/nickyhof/dbaccess/core"
	"github.com/nickyhof/dbaccess/protocol"
)

var (
	errAuthRequired = errors.New("authentication required: send AUTH JWT <token>")
	errTokenExpired = errors.New("authentication required: token expired")
)

// AuthConfig configures JWT authentication of connections. Tokens must be
// signed with HS256, HS384 or HS512 using JWTSecret.
type AuthConfig struct {
	Enabled   bool
	JWTSecret string
	// Issuer and Audience are checked when set.
	Issuer   string
	Audience string
	// NameClaim and EmailClaim name the claims that hold the journal
	// identity. They default to "name" and "email".
	NameClaim  string
	EmailClaim string
}

func (c *AuthConfig) claimNames() (string, string) {
	name, email := c.NameClaim, c.EmailClaim
	if name == "" {
		name = "name"
	}
	if email == "" {
		email = "email"
	}
	return name, email
}

// verify checks token and returns the identity it carries and its expiry,
// zero when the token does not expire.
func (c *AuthConfig) verify(token string) (core.Identity, time.Time, error) {
	if c == nil || c.JWTSecret == "" {
		return core.Identity{}, time.Time{}, errors.New("authentication not configured")
	}

	options := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if c.Issuer != "" {
		options = append(options, jwt.WithIssuer(c.Issuer))
	}
	if c.Audience != "" {
		options = append(options, jwt.WithAudience(c.Audience))
	}

	claims := jwt.MapClaims{}
	_, err := jwt.NewParser(options...).ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return []byte(c.JWTSecret), nil
	})
	if err != nil {
		return core.Identity{}, time.Time{}, fmt.Errorf("invalid token: %w", err)
	}

	nameClaim, emailClaim := c.claimNames()
	name, _ := claims[nameClaim].(string)
	email, _ := claims[emailClaim].(string)
	if name == "" && email == "" {
		return core.Identity{}, time.Time{}, fmt.Errorf("token missing identity claims (%s or %s)", nameClaim, emailClaim)
	}

	var expiresAt time.Time
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		expiresAt = exp.Time
	}
	return core.Identity{Name: name, Email: email}, expiresAt, nil
}

// session is the state of one client connection.
type session struct {
	id        string
	identity  *core.Identity
	expiresAt time.Time
}

func (s *session) authenticated() bool {
	return s.identity != nil
}

func (s *session) expired() bool {
	return !s.expiresAt.IsZero() && time.Now().After(s.expiresAt)
}

// checkAuth reports why the session may not run statements, if it may not.
// An expired session is logged out.
func (s *session) checkAuth() error {
	if !s.authenticated() {
		return errAuthRequired
	}
	if s.expired() {
		s.identity = nil
		return errTokenExpired
	}
	return nil
}

// parseAuthCommand extracts the token of "AUTH JWT <token>".
func parseAuthCommand(line string) (string, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 || !strings.EqualFold(fields[0], "AUTH") {
		return "", errors.New("not an AUTH command")
	}
	if len(fields) != 3 {
		return "", errors.New("invalid AUTH command: expected AUTH <type> <credentials>")
	}
	if !strings.EqualFold(fields[1], "JWT") {
		return "", fmt.Errorf("unsupported auth type: %s", strings.ToUpper(fields[1]))
	}
	return fields[2], nil
}

// authenticate handles an AUTH command on sess.
func (s *Server) authenticate(line string, sess *session) protocol.Response {
	token, err := parseAuthCommand(line)
	if err != nil {
		return protocol.Failure(protocol.TypeAuth, err)
	}

	identity, expiresAt, err := s.authConfig.verify(token)
	if err != nil {
		return protocol.Failure(protocol.TypeAuth, err)
	}
	sess.identity = &identity
	sess.expiresAt = expiresAt

	response := protocol.AuthResponse{Authenticated: true, Identity: identity.String()}
	if !expiresAt.IsZero() {
		response.ExpiresIn = int(time.Until(expiresAt).Seconds())
	}
	return protocol.Success(protocol.TypeAuth, response)
}
