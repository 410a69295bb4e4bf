// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package auth resolves the caller of a request from a signed session.

# Tokens

Sessions are HS256 JWTs whose subject is the user identifier:

	s := auth.NewSessions(secret, "")
	token, err := s.Issue("alice@example.org", 24*time.Hour)
	user, err := s.Parse(token)

Tokens must carry an expiry and the propjockey issuer.

# Requests

UserFromRequest accepts the token as "Authorization: Bearer <token>" or in
the session cookie. The header wins when both are present. Caller returns
"" instead of an error, so read paths treat bad sessions as anonymous.
*/
package auth
