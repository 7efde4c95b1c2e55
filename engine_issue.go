package dreamerauth

import "context"

// IssueTokens mints an access/refresh pair for a known principal outside
// the login flow, for trusted callers such as service-to-service token
// exchange or post-signup auto-login. A session is created so the
// refresh token rotates like any other; the pair is bound to it.
//
// An empty role falls back to the principal's stored role.
func (e *Engine) IssueTokens(ctx context.Context, principalID, role, deviceID string) (TokenPair, error) {
	if e == nil || e.tokens == nil || e.users == nil {
		return TokenPair{}, ErrEngineNotReady
	}

	user, err := e.users.GetUserByID(ctx, principalID)
	if err != nil {
		return TokenPair{}, ErrUserNotFound
	}
	if role == "" {
		role = user.Role
	}

	sess, err := e.sessions.Create(ctx, user.ID, deviceID, clientIPFromContext(ctx))
	if err != nil {
		return TokenPair{}, err
	}

	pair, err := e.tokens.Issue(user.ID, role, deviceID, sess.ID)
	if err != nil {
		_ = e.sessions.Delete(ctx, user.ID, sess.ID)
		return TokenPair{}, err
	}
	if err := e.tokens.SaveRefreshRecord(ctx, user.ID, pair.RefreshJTI, sess.ID, pair.RefreshExpiresAt); err != nil {
		_ = e.sessions.Delete(ctx, user.ID, sess.ID)
		return TokenPair{}, err
	}

	e.emitAudit(ctx, auditLoginSuccess, true, user.ID, sess.ID, nil, map[string]string{"flow": "issue"})

	return pair, nil
}
