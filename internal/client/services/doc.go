// Package services contains the application services of the kappi client:
// the session state machine with its brute-force lockout, field validation,
// per-install device identity, and the scan workflow that ties the record
// queue to the sync engine.
package services
