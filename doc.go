// Package dreamerauth is an embeddable authentication engine: JWT access
// and refresh tokens under rotating signing secrets, multi-device sessions
// with concurrency caps, Argon2id credential hashing with a strength
// policy, TOTP second factors with backup codes, login lockout, and
// per-resource rate limiting.
//
// All shared state lives behind the kv.Store interface. A single instance
// can run on kv.NewMemory; a fleet shares a Redis via Builder.WithRedis
// and the same behavior falls out, because every mutation that has to be
// atomic goes through SetNX, INCR, or compare-and-swap.
//
// Construction goes through the builder:
//
//	store := kv.NewMemory()
//	defer store.Close()
//
//	engine, err := dreamerauth.New().
//		WithStore(store).
//		WithUserProvider(users).
//		WithPermissions([]string{"users.read", "users.write"}).
//		WithRole("admin", permission.Wildcard).
//		WithRole("viewer", "users.read").
//		Build()
//	if err != nil {
//		// handle
//	}
//	defer engine.Close()
//
//	result, err := engine.Login(ctx, "ada@example.com", secret)
//	switch {
//	case errors.Is(err, dreamerauth.ErrMFARequired):
//		result, err = engine.CompleteMFALogin(ctx, result.ChallengeID, code)
//	case err != nil:
//		// handle
//	}
//
// The engine never stores users; the host supplies a UserProvider backed
// by its own database.
package dreamerauth
