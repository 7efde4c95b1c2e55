package dreamerauth

import "context"

type clientIPContextKey struct{}
type deviceContextKey struct{}
type principalContextKey struct{}

// WithClientIP attaches the caller's IP address to ctx. The engine uses it
// for rate limiting subjects and audit records.
func WithClientIP(ctx context.Context, ip string) context.Context {
	return context.WithValue(ctx, clientIPContextKey{}, ip)
}

// WithDevice attaches the device fingerprint behind a login attempt.
func WithDevice(ctx context.Context, device DeviceInfo) context.Context {
	return context.WithValue(ctx, deviceContextKey{}, device)
}

// WithPrincipal attaches an authenticated principal to ctx. Used by the
// middleware guard after Authenticate succeeds.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext returns the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalContextKey{}).(Principal)
	return p, ok
}

func clientIPFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	ip, _ := ctx.Value(clientIPContextKey{}).(string)
	return ip
}

func deviceFromContext(ctx context.Context) DeviceInfo {
	if ctx == nil {
		return DeviceInfo{}
	}
	d, _ := ctx.Value(deviceContextKey{}).(DeviceInfo)
	return d
}
