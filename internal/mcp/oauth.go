package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// CallbackProvider is injected by the host application to drive an MCP
// server's OAuth authorization code flow. The client calls
// RedirectToAuthorization when the transport's Connect returns an
// *OAuthChallengeError, then blocks on WaitForCallback for the resulting
// code. Neither built-in transport returns that error: HTTPTransport
// reports a 401 as a plain "HTTP 401" error from Call, which fails the
// handshake and moves the client to the error state. Grounded on
// docker-cagent's Toolset OAuth handler pattern, which detaches the wait
// from the triggering request's context so the redirect can complete after
// the original Connect call's deadline.
type CallbackProvider interface {
	// RedirectToAuthorization sends the user to authURL to approve access.
	RedirectToAuthorization(ctx context.Context, authURL string) error

	// WaitForCallback blocks until the authorization code arrives (or ctx
	// is cancelled) and returns it.
	WaitForCallback(ctx context.Context) (code string, err error)
}

// oauthFlow runs one authorization-code exchange against provider and
// returns the resulting bearer token. It detaches from the connect call's
// context via context.WithoutCancel so that a user approving the OAuth
// prompt minutes later still completes the flow.
func oauthFlow(ctx context.Context, authURL string, provider CallbackProvider) (code string, err error) {
	if provider == nil {
		return "", fmt.Errorf("oauth required but no CallbackProvider configured")
	}

	detached := context.WithoutCancel(ctx)
	if err := provider.RedirectToAuthorization(detached, authURL); err != nil {
		return "", fmt.Errorf("redirect to authorization: %w", err)
	}

	code, err = provider.WaitForCallback(detached)
	if err != nil {
		return "", fmt.Errorf("await oauth callback: %w", err)
	}
	return code, nil
}

// tokenExpired reports whether a JWT bearer token's exp claim has passed.
// Tokens that aren't JWTs, or carry no exp claim, are treated as
// non-expiring from this helper's point of view — the server's own 401 is
// the authoritative signal.
func tokenExpired(token string) bool {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return exp.Before(time.Now())
}
