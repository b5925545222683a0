// Package flow implements the OAuth 2.0 authorization code flow as an
// explicit state machine.
//
// A Controller owns one client registration and drives a user through the
// external authorization step, exchanges the resulting code for tokens,
// refreshes and revokes them, and answers "is authorized" queries from the
// persisted session.
//
// # Collaborators
//
// Everything outside the state machine is injected:
//
//   - UserAgent loads the authorization page and reports navigation
//     attempts, load failures and user cancellation to a NavigationDelegate.
//     Every authorization attempt gets its own delegate; events delivered to
//     the delegate of a finished attempt are ignored.
//   - Transport performs the HTTP calls to the token, refresh, revocation and
//     user-info endpoints.
//   - LifecycleSource tells the controller when the application became
//     active again. A pending attempt is abandoned at that point.
//   - session.Store persists the tokens keyed by the registration's account id.
//
// # States
//
//	Idle             --RequestAuthorizationCode-->  PendingExternalApproval
//	Pending...       --code received------------->  Approved
//	Pending...       --cancel, resume, error----->  Unknown
//	Approved/Unknown --RequestAuthorizationCode-->  PendingExternalApproval
//
// At most one attempt is pending. A new request supersedes the pending one,
// which resolves with oauth.ErrSuperseded.
//
// # Completion
//
// Every asynchronous operation invokes its completion function exactly once,
// from a goroutine, with no controller lock held. The only exception is
// RevokeAccess, which never calls back when there is no access token.
//
// Load failures of the authorization page are retried three times; the
// fourth failure resolves the attempt with oauth.ErrConnection. Failures for
// the redirect URL itself are ignored when it points at a loopback address,
// since nothing needs to answer there.
package flow
