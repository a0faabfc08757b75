package integrity

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/kappi/internal/client/repositories/kv"
	"github.com/dmitrijs2005/kappi/internal/clock"
	"github.com/dmitrijs2005/kappi/internal/codec"
	"github.com/dmitrijs2005/kappi/internal/common"
	"github.com/dmitrijs2005/kappi/internal/logging"
	"github.com/zeebo/blake3"
	"golang.org/x/crypto/hkdf"
)

const keyInfo = "kappi integrity store v1"

// ErrEmptySalt is returned by New when no salt is configured.
var ErrEmptySalt = errors.New("integrity salt must not be empty")

// Record is the envelope persisted for every key.
type Record struct {
	Value           []byte `cbor:"value"`
	WrittenAtMillis int64  `cbor:"writtenAtMillis"`
	Digest          string `cbor:"digest"`
}

// Store is a tamper-evident wrapper around a kv.Repository. It is safe for
// concurrent use as long as the repository is.
type Store struct {
	repo   kv.Repository
	salt   []byte
	key    []byte
	clock  clock.Clock
	logger logging.Logger
}

// New returns a Store over repo. salt is the install-wide secret mixed into
// every digest; changing it invalidates everything previously written.
func New(repo kv.Repository, salt []byte, clk clock.Clock, logger logging.Logger) (*Store, error) {
	if len(salt) == 0 {
		return nil, ErrEmptySalt
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, salt, nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive digest key: %w", err)
	}

	return &Store{
		repo:   repo,
		salt:   append([]byte(nil), salt...),
		key:    key,
		clock:  clk,
		logger: logger.With("component", "integrity"),
	}, nil
}

// Put serializes value and writes it under key with a fresh timestamp and
// digest.
func (s *Store) Put(ctx context.Context, key string, value any) error {
	raw, err := s.seal(value)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	if err := s.repo.Set(ctx, key, raw); err != nil {
		return fmt.Errorf("put %s: %w: %w", key, common.ErrStorageUnavailable, err)
	}
	return nil
}

// PutMany writes several keys in one backend transaction. All records share
// one timestamp.
func (s *Store) PutMany(ctx context.Context, values map[string]any) error {
	batch := make(map[string][]byte, len(values))
	for key, value := range values {
		raw, err := s.seal(value)
		if err != nil {
			return fmt.Errorf("put %s: %w", key, err)
		}
		batch[key] = raw
	}
	if err := s.repo.SetMany(ctx, batch); err != nil {
		return fmt.Errorf("put batch: %w: %w", common.ErrStorageUnavailable, err)
	}
	return nil
}

// Get loads key into dst. It returns false with a nil error when the key was
// never written or its record failed verification (the record is purged).
func (s *Store) Get(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := s.repo.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("get %s: %w: %w", key, common.ErrStorageUnavailable, err)
	}
	if raw == nil {
		return false, nil
	}

	var rec Record
	if err := codec.Unmarshal(raw, &rec); err != nil || !s.verify(rec) {
		return false, s.purge(ctx, key)
	}

	if err := codec.Unmarshal(rec.Value, dst); err != nil {
		return false, s.purge(ctx, key)
	}
	return true, nil
}

// Remove deletes keys unconditionally. Missing keys are not an error.
func (s *Store) Remove(ctx context.Context, keys ...string) error {
	if err := s.repo.Delete(ctx, keys...); err != nil {
		return fmt.Errorf("remove: %w: %w", common.ErrStorageUnavailable, err)
	}
	return nil
}

func (s *Store) seal(value any) ([]byte, error) {
	data, err := codec.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("encode value: %w", err)
	}

	ts := clock.NowMillis(s.clock)
	rec := Record{Value: data, WrittenAtMillis: ts, Digest: s.digest(data, ts)}

	raw, err := codec.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return raw, nil
}

func (s *Store) verify(rec Record) bool {
	want := s.digest(rec.Value, rec.WrittenAtMillis)
	return subtle.ConstantTimeCompare([]byte(want), []byte(rec.Digest)) == 1
}

func (s *Store) digest(value []byte, writtenAtMillis int64) string {
	h, err := blake3.NewKeyed(s.key)
	if err != nil {
		// key length is fixed at 32 bytes in New
		panic(err)
	}
	// value is length-prefixed and the timestamp fixed-width so no bytes can
	// move between the two fields without changing the digest.
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(len(value)))
	_, _ = h.Write(buf[:])
	_, _ = h.Write(value)
	binary.BigEndian.PutUint64(buf[:], uint64(writtenAtMillis))
	_, _ = h.Write(buf[:])
	_, _ = h.Write(s.salt)
	return hex.EncodeToString(h.Sum(nil))
}

func (s *Store) purge(ctx context.Context, key string) error {
	s.logger.Warn(ctx, "discarding record", "key", key, "reason", common.ErrTamperDetected)
	if err := s.repo.Delete(ctx, key); err != nil {
		return fmt.Errorf("purge %s: %w: %w", key, common.ErrStorageUnavailable, err)
	}
	return nil
}
