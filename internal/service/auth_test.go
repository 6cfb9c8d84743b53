package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	pkgcrypto "github.com/and161185/goph-talk/internal/crypto"
	"github.com/and161185/goph-talk/internal/errs"
	"github.com/and161185/goph-talk/internal/limiter"
	"github.com/and161185/goph-talk/internal/model"
)

func validInput() RegisterInput {
	return RegisterInput{Username: "alice", Password: "secret1", Phone: "+33 612345678"}
}

func TestAuth_Register_Basics(t *testing.T) {
	t.Parallel()
	users := &fakeUsers{}
	s := NewAuthService(users, fakeIssuer{}, &fakeLimiter{})
	ctx := context.Background()

	u, tok, err := s.Register(ctx, validInput())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.ID == 0 || u.DisplayName != "alice" {
		t.Fatalf("bad user: %+v", u)
	}
	if tok.AccessToken != "tok-alice" {
		t.Fatalf("bad token: %+v", tok)
	}
	stored, _ := users.GetByUsername(ctx, "alice")
	if ok, err := pkgcrypto.VerifyPassword("secret1", stored.PwdHash); err != nil || !ok {
		t.Fatalf("stored hash must verify: %v", err)
	}
	if strings.Contains(stored.PwdHash, "secret1") {
		t.Fatalf("plaintext password stored")
	}

	if _, _, err := s.Register(ctx, validInput()); !errors.Is(err, errs.ErrAlreadyExists) {
		t.Fatalf("want ErrAlreadyExists on duplicate, got %v", err)
	}

	users.createErr = errors.New("boom")
	in := validInput()
	in.Username = "bob"
	if _, _, err := s.Register(ctx, in); !errors.Is(err, errs.ErrStorage) {
		t.Fatalf("want ErrStorage, got %v", err)
	}
}

func TestAuth_Register_Validation(t *testing.T) {
	t.Parallel()
	s := NewAuthService(&fakeUsers{}, fakeIssuer{}, &fakeLimiter{})

	cases := map[string]func(*RegisterInput){
		"empty username":    func(in *RegisterInput) { in.Username = "" },
		"short username":    func(in *RegisterInput) { in.Username = "ab" },
		"non alphanum":      func(in *RegisterInput) { in.Username = "al ice!" },
		"short password":    func(in *RegisterInput) { in.Password = "123" },
		"long display name": func(in *RegisterInput) { in.DisplayName = strings.Repeat("x", 51) },
		"bad phone":         func(in *RegisterInput) { in.Phone = "call me" },
		"missing phone":     func(in *RegisterInput) { in.Phone = "" },
	}
	for name, mutate := range cases {
		in := validInput()
		mutate(&in)
		if _, _, err := s.Register(context.Background(), in); !errors.Is(err, errs.ErrInvalidArgument) {
			t.Fatalf("%s: want ErrInvalidArgument, got %v", name, err)
		}
	}
}

func TestAuth_Register_KeepsDisplayName(t *testing.T) {
	t.Parallel()
	s := NewAuthService(&fakeUsers{}, fakeIssuer{}, &fakeLimiter{})

	in := validInput()
	in.DisplayName = "  Alice L.  "
	u, _, err := s.Register(context.Background(), in)
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if u.DisplayName != "Alice L." {
		t.Fatalf("display name: %q", u.DisplayName)
	}
}

func TestAuth_LoginWithIP_RateLimiterAndCreds(t *testing.T) {
	t.Parallel()

	hash, err := pkgcrypto.HashPassword("correct")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	u := &model.User{ID: 1, Username: "alice", PwdHash: hash}
	users := &fakeUsers{byName: map[string]*model.User{"alice": u}}
	lim := &fakeLimiter{allowOK: true}
	s := NewAuthService(users, fakeIssuer{}, lim)
	ctx := context.Background()

	lim.allowErr = errors.New("lim-err")
	if _, _, err := s.LoginWithIP(ctx, "alice", "correct", "1.2.3.4"); err == nil {
		t.Fatalf("want limiter error propagate")
	}
	lim.allowErr = nil

	lim.allowOK = false
	if _, _, err := s.LoginWithIP(ctx, "alice", "correct", "1.2.3.4"); !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("want ErrRateLimited, got %v", err)
	}
	lim.allowOK = true

	if _, _, err := s.LoginWithIP(ctx, "nope", "x", ""); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on missing user, got %v", err)
	}

	lim.failBlocked = true
	if _, _, err := s.LoginWithIP(ctx, "alice", "wrong", ""); !errors.Is(err, errs.ErrRateLimited) {
		t.Fatalf("want ErrRateLimited on blocked after failure, got %v", err)
	}

	lim.failBlocked = false
	if _, _, err := s.LoginWithIP(ctx, "alice", "wrong", ""); !errors.Is(err, errs.ErrUnauthorized) {
		t.Fatalf("want ErrUnauthorized on wrong password, got %v", err)
	}

	tok, gotUser, err := s.LoginWithIP(ctx, "alice", "correct", "127.0.0.1:123")
	if err != nil {
		t.Fatalf("LoginWithIP success: %v", err)
	}
	if tok.AccessToken != "tok-alice" || gotUser.ID != 1 {
		t.Fatalf("bad result: %+v %+v", tok, gotUser)
	}
	if lim.successCalls == 0 || lim.lastScope != limiter.ScopeLogin {
		t.Fatalf("expected Success() in login scope, got %d %q", lim.successCalls, lim.lastScope)
	}
}

func TestAuth_Login_IssuerError(t *testing.T) {
	t.Parallel()

	hash, _ := pkgcrypto.HashPassword("pw1234")
	users := &fakeUsers{byName: map[string]*model.User{"bob": {ID: 2, Username: "bob", PwdHash: hash}}}
	s := NewAuthService(users, fakeIssuer{err: errors.New("sign")}, &fakeLimiter{allowOK: true})

	if _, _, err := s.LoginWithIP(context.Background(), "bob", "pw1234", ""); err == nil {
		t.Fatalf("want issuer error")
	}
}
