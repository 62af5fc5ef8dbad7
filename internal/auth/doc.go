// Package auth provides session-token authorization for weather-gateway.
//
// # Session Tokens
//
// A successful login stores one session token on the user record. The token
// is produced by a TokenIssuer:
//
//   - RandomIssuer: 32 random bytes, URL-safe base64. The token carries no
//     information and is only meaningful through the store lookup.
//
//   - JWTIssuer: HS256 JWT with sub (user ID), jti, iat and exp claims,
//     signed with the configured auth.jwt_secret. Tokens expire after
//     auth.session_ttl even if the user never logs out.
//
// # Gate
//
// Gate.Authorize runs before every protected operation:
//
//	id, err := gate.Authorize(ctx, token, store.Roles{store.RoleAdmin})
//
// With a JWTIssuer configured as verifier the token's signature and expiry
// are checked first. The user is then looked up by exact token on every call,
// so logging out (clearing the token) revokes access immediately and a new
// login supersedes the previous session.
//
// Errors:
//
//   - ErrMissingToken, ErrInvalidToken: both match ErrUnauthenticated (401)
//   - ErrForbidden: valid session, role not allowed (403)
//   - anything else: wrapped store failure
//
// # HTTP Middleware
//
// Middleware extracts the token with ExtractToken (JSON body field
// authenticationKey, then the authKey query parameter, then an
// Authorization: Bearer header) and stores the resolved Identity in the
// request context for FromContext.
package auth
