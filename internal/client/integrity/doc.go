// Package integrity implements the tamper-evident key/value store the rest of
// the client persists through.
//
// Every Put stamps the value with the write time and a keyed digest:
//
//	digest = BLAKE3-keyed(k, len(value) || serialize(value) || writtenAtMillis || salt)
//
// where k is derived from the configured salt with HKDF-SHA256, and the
// length and timestamp are 8-byte big-endian. Get recomputes the digest; a
// record that does not verify, or whose value cannot be decoded, is deleted
// and reported as absent. Callers cannot distinguish a
// tampered record from one that was never written. Backend failures are a
// different matter and surface as common.ErrStorageUnavailable.
//
// Values are serialized with the deterministic CBOR codec, so only the store
// ever sees the envelope; callers work with plain Go values.
package integrity
