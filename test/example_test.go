package test

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	dreamerauth "github.com/cuzo151/dreamer-auth"
	"github.com/cuzo151/dreamer-auth/mfa"
)

// ExampleNew demonstrates engine construction with production-style
// dependencies.
func ExampleNew() {
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:6379"})
	provider := &exampleUserProvider{}

	engine, _ := dreamerauth.New().
		WithRedis(rdb, "auth").
		WithPermissions([]string{"user.read", "user.write"}).
		WithRole("admin", "user.read", "user.write").
		WithUserProvider(provider).
		Build()
	_ = engine
}

// ExampleEngine_Login shows a typical login entrypoint and its sentinel
// errors.
func ExampleEngine_Login() {
	var engine *dreamerauth.Engine

	result, err := engine.Login(context.Background(), "alice@example.com", "password")
	switch {
	case errors.Is(err, dreamerauth.ErrMFARequired):
		_ = result.ChallengeID // hand to CompleteMFALogin
	case errors.Is(err, dreamerauth.ErrAccountLocked),
		errors.Is(err, dreamerauth.ErrRateLimited),
		errors.Is(err, dreamerauth.ErrInvalidCredentials):
		_ = err
	case err == nil:
		_ = result.Tokens.Access
	}
}

type exampleUserProvider struct{}

func (exampleUserProvider) GetUserByIdentifier(context.Context, string) (dreamerauth.UserRecord, error) {
	return dreamerauth.UserRecord{}, errors.New("not implemented")
}

func (exampleUserProvider) GetUserByID(context.Context, string) (dreamerauth.UserRecord, error) {
	return dreamerauth.UserRecord{}, errors.New("not implemented")
}

func (exampleUserProvider) UpdatePasswordHash(context.Context, string, string) error {
	return errors.New("not implemented")
}

func (exampleUserProvider) SetTOTPSecret(context.Context, string, string, bool) error {
	return errors.New("not implemented")
}

func (exampleUserProvider) ReplaceBackupCodes(context.Context, string, []mfa.BackupCode) error {
	return errors.New("not implemented")
}
