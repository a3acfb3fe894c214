package auth

import (
	"context"
	"errors"
	"testing"
)

func TestServiceAuthenticateRequest(t *testing.T) {
	svc, err := NewService(Config{
		Mode: ModeToken,
		Tokens: []TokenSeed{
			{Token: "alpha", Name: "ci", Permissions: []string{"deployments:write"}},
			{Token: "bravo", Name: "revoked", Disabled: true},
		},
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	ctx := context.Background()

	subject, err := svc.AuthenticateRequest(ctx, "Bearer alpha")
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if subject.Name != "ci" {
		t.Fatalf("subject name = %s", subject.Name)
	}
	if err := subject.Authorize("deployments:write"); err != nil {
		t.Fatalf("authorize: %v", err)
	}
	if err := subject.Authorize("deployments:admin"); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("expected permission denied, got %v", err)
	}

	// 裸令牌（不带 Bearer 前缀）也接受。
	if _, err := svc.AuthenticateRequest(ctx, "alpha"); err != nil {
		t.Fatalf("raw token: %v", err)
	}

	if _, err := svc.AuthenticateRequest(ctx, ""); !errors.Is(err, ErrMissingToken) {
		t.Fatalf("expected missing token, got %v", err)
	}
	if _, err := svc.AuthenticateRequest(ctx, "Bearer nope"); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected invalid token, got %v", err)
	}
	if _, err := svc.AuthenticateRequest(ctx, "Bearer bravo"); !errors.Is(err, ErrSubjectRevoked) {
		t.Fatalf("expected revoked subject, got %v", err)
	}
}

func TestServiceModeValidation(t *testing.T) {
	if _, err := NewService(Config{Mode: ModeToken}); err == nil {
		t.Fatal("token mode without tokens must fail")
	}
	if _, err := NewService(Config{Mode: "ldap"}); err == nil {
		t.Fatal("unknown mode must fail")
	}

	svc, err := NewService(Config{})
	if err != nil {
		t.Fatalf("default mode: %v", err)
	}
	if svc.Mode() != ModeDisabled {
		t.Fatalf("default mode = %s, want disabled", svc.Mode())
	}
	if _, err := svc.AuthenticateRequest(context.Background(), "Bearer x"); !errors.Is(err, ErrDisabled) {
		t.Fatalf("expected disabled error, got %v", err)
	}
}
