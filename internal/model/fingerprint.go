package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"slices"
)

// Domain prefixes for content-derived identity.
// Version suffix enables future algorithm migration.
const (
	DomainLockConfig   = "tillsync/lock-config/v1"
	DomainBookingBatch = "tillsync/booking-batch/v1"
)

// hashWithDomain computes SHA256(domain + 0x00 + data).
// The null byte separator prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// LockFingerprint returns a stable identity for a lock configuration.
// Two configurations are structurally equal iff their fingerprints match.
// A nil configuration ("no lock") has the empty fingerprint.
func LockFingerprint(cfg *LockConfig) (string, error) {
	if cfg == nil {
		return "", nil
	}
	canonical, err := MarshalCanonical(cfg.canonicalMap())
	if err != nil {
		return "", fmt.Errorf("lock fingerprint: %w", err)
	}
	return hashWithDomain(DomainLockConfig, canonical), nil
}

// BatchKey returns an idempotency key for a batch of bookings. The key
// depends only on the set of booking ids, so resending the same batch after
// a lost acknowledgment yields the same key.
func BatchKey(bookings []Booking) (string, error) {
	ids := make([]string, len(bookings))
	for i, b := range bookings {
		ids[i] = b.ID
	}
	slices.Sort(ids)
	canonical, err := MarshalCanonical(ids)
	if err != nil {
		return "", fmt.Errorf("batch key: %w", err)
	}
	return hashWithDomain(DomainBookingBatch, canonical), nil
}
