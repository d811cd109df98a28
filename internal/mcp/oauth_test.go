package mcp

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type fakeCallbackProvider struct {
	redirectErr error
	code        string
	waitErr     error
	redirected  bool
}

func (f *fakeCallbackProvider) RedirectToAuthorization(ctx context.Context, authURL string) error {
	f.redirected = true
	return f.redirectErr
}

func (f *fakeCallbackProvider) WaitForCallback(ctx context.Context) (string, error) {
	return f.code, f.waitErr
}

func TestOauthFlowNilProvider(t *testing.T) {
	_, err := oauthFlow(context.Background(), "https://example.com/auth", nil)
	if err == nil {
		t.Fatal("expected error when no CallbackProvider is configured")
	}
}

func TestOauthFlowSuccess(t *testing.T) {
	provider := &fakeCallbackProvider{code: "auth-code-123"}
	code, err := oauthFlow(context.Background(), "https://example.com/auth", provider)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if code != "auth-code-123" {
		t.Errorf("expected code auth-code-123, got %s", code)
	}
	if !provider.redirected {
		t.Error("expected RedirectToAuthorization to be called")
	}
}

func TestOauthFlowRedirectFailure(t *testing.T) {
	provider := &fakeCallbackProvider{redirectErr: errors.New("redirect failed")}
	_, err := oauthFlow(context.Background(), "https://example.com/auth", provider)
	if err == nil {
		t.Fatal("expected redirect failure to propagate")
	}
}

func TestOauthFlowWaitFailure(t *testing.T) {
	provider := &fakeCallbackProvider{waitErr: errors.New("timed out waiting for callback")}
	_, err := oauthFlow(context.Background(), "https://example.com/auth", provider)
	if err == nil {
		t.Fatal("expected wait failure to propagate")
	}
}

func TestOauthFlowDetachesFromCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	provider := &fakeCallbackProvider{code: "late-code"}
	cancel()
	code, err := oauthFlow(ctx, "https://example.com/auth", provider)
	if err != nil {
		t.Fatalf("expected the flow to detach from the caller's context, got %v", err)
	}
	if code != "late-code" {
		t.Errorf("expected late-code, got %s", code)
	}
}

func TestTokenExpiredNonJWT(t *testing.T) {
	if tokenExpired("not-a-jwt") {
		t.Error("expected a non-JWT token to be treated as non-expiring")
	}
}

func TestTokenExpiredNoExpClaim(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "user"})
	signed, err := token.SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tokenExpired(signed) {
		t.Error("expected a token with no exp claim to be treated as non-expiring")
	}
}

func TestTokenExpiredPastExp(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tokenExpired(signed) {
		t.Error("expected a past exp claim to be reported as expired")
	}
}

func TestTokenExpiredFutureExp(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tokenExpired(signed) {
		t.Error("expected a future exp claim to not be expired")
	}
}
