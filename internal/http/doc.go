// Package http provides HTTP handlers and middleware for the meeting API.
//
// The router exposes the following endpoints. Every meeting route requires a
// bearer access token in the Authorization header.
//   - POST /meetings: creates a meeting hosted by the caller. Body:
//     {"title","description","max_capacity"}. Response 201 {"meeting"}.
//   - POST /meetings/{id}/start, POST /meetings/{id}/end: host-only lifecycle
//     transitions. Response {"meeting"}.
//   - POST /meetings/{id}/join: admits the caller. Response
//     {"message","session_token","expires_at"}.
//   - POST /meetings/{id}/leave: closes the caller's membership. Response
//     {"message"}.
//   - GET /meetings/active: active meetings newest first. Response
//     {"meetings"} where each entry carries its host and participant_count.
//   - GET /meetings/{id}: meeting detail with its current participants.
//   - POST /auth/register, POST /auth/login: create an account or sign in.
//     Response {"user","access_token","refresh_token","expires_in",
//     "refresh_expires_in"} with lifetimes in seconds. Unauthenticated.
//   - POST /auth/refresh: exchanges {"refresh_token"} for a new token pair.
//   - GET /users/me: the caller's account as {"user"}. Requires a token.
//   - GET /health: storage reachability, unauthenticated.
//
// Failures are reported as {"error_code","message","errors"} using the codes
// VALIDATION_FAILED, MEETING_NOT_FOUND, NOT_MEETING_HOST,
// INVALID_MEETING_STATE, MEETING_FULL, MEMBERSHIP_CONFLICT, USER_NOT_FOUND,
// INVALID_CREDENTIALS, EMAIL_IN_USE, UNAUTHENTICATED and INTERNAL_ERROR.
package http
