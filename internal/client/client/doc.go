// Package client contains the client-side building blocks that talk to the
// outside world: the remote scan service and the local SQLite database.
//
// # Overview
//
//  1. A transport-agnostic contract for the remote service (see Client):
//     Login, Register, SocialLogin, LinkSocial, UpdateLocation, SubmitScan,
//     ListScans and Ping.
//  2. An HTTP/JSON implementation (see HTTPClient). HTTPS endpoints are
//     reached over HTTP/2. Authenticated calls ask a TokenSource for the
//     bearer token; when it has no usable token the Authorization header is
//     left off instead of sending a stale one.
//  3. Local persistence bootstrap (InitDatabase, RunMigrations) wiring an
//     SQLite database and applying embedded goose migrations.
//
// # Error Handling
//
// 4xx responses come back as *RemoteError, which matches
// common.ErrRemoteRejected under errors.Is. 5xx responses, transport
// failures, timeouts and malformed bodies match common.ErrNetworkUnavailable.
package client
