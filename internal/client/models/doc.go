// Package models defines the client-side data carried between the session,
// queue, sync and remote layers of kappi.
//
// Struct tags serve both the JSON wire format of the remote service and the
// CBOR encoding used by the integrity store.
package models
