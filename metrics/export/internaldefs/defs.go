package internaldefs

import (
	dreamerauth "github.com/cuzo151/dreamer-auth"
)

// CounterDef binds a metric id to its exposed name and help text.
type CounterDef struct {
	ID   dreamerauth.MetricID
	Name string
	Help string
}

// HistogramDef binds a histogram id to its exposed name and help text.
type HistogramDef struct {
	ID   dreamerauth.MetricID
	Name string
	Help string
}

// CounterDefs lists every engine counter in export order.
var CounterDefs = []CounterDef{
	{ID: dreamerauth.MetricLoginSuccess, Name: "dreamerauth_login_success_total", Help: "Successful login attempts."},
	{ID: dreamerauth.MetricLoginFailure, Name: "dreamerauth_login_failure_total", Help: "Failed login attempts."},
	{ID: dreamerauth.MetricLoginLocked, Name: "dreamerauth_login_locked_total", Help: "Login attempts rejected by lockout."},
	{ID: dreamerauth.MetricLoginRateLimited, Name: "dreamerauth_login_rate_limited_total", Help: "Rate-limited login attempts."},
	{ID: dreamerauth.MetricMFAChallenge, Name: "dreamerauth_mfa_challenge_total", Help: "Login flows requiring a second factor."},
	{ID: dreamerauth.MetricMFASuccess, Name: "dreamerauth_mfa_success_total", Help: "Successful second-factor confirmations."},
	{ID: dreamerauth.MetricMFAFailure, Name: "dreamerauth_mfa_failure_total", Help: "Failed second-factor confirmations."},
	{ID: dreamerauth.MetricMFAEnrolled, Name: "dreamerauth_mfa_enrolled_total", Help: "TOTP activations."},
	{ID: dreamerauth.MetricRefreshSuccess, Name: "dreamerauth_refresh_success_total", Help: "Successful token refresh operations."},
	{ID: dreamerauth.MetricRefreshReuse, Name: "dreamerauth_refresh_reuse_total", Help: "Detected refresh token reuses."},
	{ID: dreamerauth.MetricLogout, Name: "dreamerauth_logout_total", Help: "Single-session logout operations."},
	{ID: dreamerauth.MetricLogoutAll, Name: "dreamerauth_logout_all_total", Help: "Logout-all operations."},
	{ID: dreamerauth.MetricPasswordChanged, Name: "dreamerauth_password_changed_total", Help: "Successful password changes."},
	{ID: dreamerauth.MetricRateLimitHit, Name: "dreamerauth_rate_limit_hit_total", Help: "Rate-limit checks that denied requests."},
}

// HistogramDefs lists every engine histogram in export order.
var HistogramDefs = []HistogramDef{
	{ID: dreamerauth.MetricAuthenticateLatency, Name: "dreamerauth_authenticate_latency_seconds", Help: "Authenticate latency histogram."},
}

// HistogramBounds are the seconds-based le labels, matching the engine's
// millisecond bucket boundaries.
var HistogramBounds = []string{
	"0.005",
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"+Inf",
}

// HistogramBoundSuffix mirrors HistogramBounds with characters legal in
// metric names.
var HistogramBoundSuffix = []string{
	"0_005",
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"inf",
}

// NormalizeBuckets pads or truncates raw snapshot buckets to the fixed
// bucket count.
func NormalizeBuckets(raw []uint64) [8]uint64 {
	var out [8]uint64
	for i := 0; i < len(out) && i < len(raw); i++ {
		out[i] = raw[i]
	}
	return out
}

// CumulativeBuckets converts per-bucket counts into the cumulative form
// Prometheus histograms expect.
func CumulativeBuckets(raw [8]uint64) [8]uint64 {
	var out [8]uint64
	var running uint64
	for i := 0; i < len(raw); i++ {
		running += raw[i]
		out[i] = running
	}
	return out
}
