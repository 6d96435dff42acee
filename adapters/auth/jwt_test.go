package auth_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/artpar/procgate/adapters/auth"
	"github.com/artpar/procgate/adapters/clock"
	"github.com/artpar/procgate/ports"
	"golang.org/x/crypto/bcrypt"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestTokenService_IssueAndVerify(t *testing.T) {
	svc := auth.NewTokenService("test-secret", time.Hour, clock.NewFake(epoch))

	token, expiresAt, err := svc.Issue(ports.Principal{Subject: "ada", Role: "admin"})
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	if parts := strings.Split(token, "."); len(parts) != 3 {
		t.Errorf("expected JWT with 3 parts, got %d", len(parts))
	}
	if !expiresAt.Equal(epoch.Add(time.Hour)) {
		t.Errorf("expiresAt = %v", expiresAt)
	}

	p, err := svc.Verify(token)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if p.Subject != "ada" || p.Role != "admin" {
		t.Errorf("principal = %+v", p)
	}
}

func TestTokenService_DefaultExpiration(t *testing.T) {
	svc := auth.NewTokenService("secret", 0, clock.NewFake(epoch))

	_, expiresAt, err := svc.Issue(ports.Principal{Subject: "ada"})
	if err != nil {
		t.Fatal(err)
	}
	if !expiresAt.Equal(epoch.Add(24 * time.Hour)) {
		t.Errorf("expiresAt = %v, want 24h", expiresAt)
	}
}

func TestTokenService_EmptySecret(t *testing.T) {
	a := auth.NewTokenService("", time.Hour, clock.NewFake(epoch))
	b := auth.NewTokenService("", time.Hour, clock.NewFake(epoch))

	token, _, err := a.Issue(ports.Principal{Subject: "ada"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Verify(token); err != nil {
		t.Errorf("same service rejected its token: %v", err)
	}
	if _, err := b.Verify(token); err == nil {
		t.Error("random secrets should differ between services")
	}
}

func TestTokenService_VerifyRejects(t *testing.T) {
	c := clock.NewFake(epoch)
	svc := auth.NewTokenService("secret1", time.Hour, c)
	other := auth.NewTokenService("secret2", time.Hour, c)

	good, _, _ := svc.Issue(ports.Principal{Subject: "ada"})
	foreign, _, _ := other.Issue(ports.Principal{Subject: "ada"})

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "invalid-token"},
		{"empty", ""},
		{"wrong secret", foreign},
		{"tampered", good[:len(good)-2] + "xx"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Verify(tt.token)
			if !errors.Is(err, auth.ErrInvalidToken) {
				t.Errorf("err = %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestTokenService_Expired(t *testing.T) {
	c := clock.NewFake(epoch)
	svc := auth.NewTokenService("secret", time.Minute, c)

	token, _, _ := svc.Issue(ports.Principal{Subject: "ada"})
	c.Advance(2 * time.Minute)

	if _, err := svc.Verify(token); !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("err = %v, want ErrInvalidToken", err)
	}
}

func TestTokenService_IssueRequiresSubject(t *testing.T) {
	svc := auth.NewTokenService("secret", time.Hour, clock.NewFake(epoch))
	if _, _, err := svc.Issue(ports.Principal{Role: "admin"}); err == nil {
		t.Error("expected error for empty subject")
	}
}

func TestGenerateSecret(t *testing.T) {
	a, b := auth.GenerateSecret(), auth.GenerateSecret()
	if len(a) != 64 {
		t.Errorf("expected 64 hex chars, got %d", len(a))
	}
	if a == b {
		t.Error("secrets should differ")
	}
}

func TestBcrypt(t *testing.T) {
	h := auth.NewBcrypt(bcrypt.MinCost)

	hash, err := h.Hash("hunter2")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if hash[0] != '$' {
		t.Error("expected bcrypt format")
	}
	if !h.Compare(hash, "hunter2") {
		t.Error("matching password rejected")
	}
	if h.Compare(hash, "hunter3") {
		t.Error("wrong password accepted")
	}
	if h.Compare(nil, "hunter2") {
		t.Error("nil hash accepted")
	}
}

func TestBcrypt_InvalidCost(t *testing.T) {
	for _, cost := range []int{1, 100} {
		h := auth.NewBcrypt(cost)
		hash, err := h.Hash("pw")
		if err != nil {
			t.Fatal(err)
		}
		if got, _ := bcrypt.Cost(hash); got != bcrypt.DefaultCost {
			t.Errorf("cost %d: got %d, want default", cost, got)
		}
	}
}
