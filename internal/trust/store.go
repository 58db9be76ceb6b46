// Package trust implements the trust store (C4): a mapping from key_id to
// verifying key with pinned roots plus a revocable, refreshable cache.
// Grounded on spec.md §4.4, and on other_examples' sigstore trust-root
// reconciliation pattern for the pinned-vs-cached key shape.
package trust

import (
	"crypto/ed25519"
	"crypto/x509"
	"fmt"
	"sync"
	"time"

	"github.com/assay-run/assay/internal/dsse"
)

// KeyEntry is per-key metadata stored alongside a verifying key.
type KeyEntry struct {
	KeyID       string
	PublicKey   ed25519.PublicKey
	Description string
	AddedAt     time.Time
	ExpiresAt   *time.Time
	Revoked     bool
	IsPinned    bool
}

// Store is a reader-writer-locked in-memory trust store. It is the single
// shared collaborator (per spec.md §9's ownership note): callers construct
// one explicitly and pass it down rather than reach for a package-level
// singleton.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*KeyEntry
}

// New returns an empty trust store.
func New() *Store {
	return &Store{entries: make(map[string]*KeyEntry)}
}

// GetKey implements dsse.KeyResolver: it returns the verifying key for
// key_id if it is present, not revoked (unless pinned), and not expired.
func (s *Store) GetKey(keyID string) (ed25519.PublicKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[keyID]
	if !ok {
		return nil, false
	}
	if e.Revoked && !e.IsPinned {
		return nil, false
	}
	if e.ExpiresAt != nil && time.Now().After(*e.ExpiresAt) {
		return nil, false
	}
	return e.PublicKey, true
}

var _ dsse.KeyResolver = (*Store)(nil)

// AddPinnedKey registers a key that can never be overwritten or revoked by
// a later manifest refresh.
func (s *Store) AddPinnedKey(pub ed25519.PublicKey, description string) (string, error) {
	keyID, err := dsse.KeyID(pub)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[keyID] = &KeyEntry{
		KeyID:       keyID,
		PublicKey:   pub,
		Description: description,
		AddedAt:     time.Now(),
		IsPinned:    true,
	}
	return keyID, nil
}

// ManifestKey is one entry of a `GET /v1/keys` response (spec.md §6).
type ManifestKey struct {
	KeyID       string     `json:"key_id"`
	PublicKey   []byte     `json:"public_key"` // SPKI DER
	Description string     `json:"description"`
	AddedAt     time.Time  `json:"added_at"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Revoked     bool       `json:"revoked"`
}

// AddFromManifest ingests a remote keys manifest. Any manifest entry whose
// advertised key_id does not match the SHA-256 of its own SPKI DER bytes is
// rejected outright (spec.md §4.4). Pinned entries are never overwritten.
func (s *Store) AddFromManifest(keys []ManifestKey) error {
	for _, mk := range keys {
		pub, err := parseSPKIEd25519(mk.PublicKey)
		if err != nil {
			return fmt.Errorf("trust: manifest key %q: %w", mk.KeyID, err)
		}
		computed, err := dsse.KeyID(pub)
		if err != nil {
			return fmt.Errorf("trust: manifest key %q: %w", mk.KeyID, err)
		}
		if computed != mk.KeyID {
			return fmt.Errorf("trust: manifest key_id %q does not match sha256(SPKI) %q", mk.KeyID, computed)
		}

		s.mu.Lock()
		if existing, ok := s.entries[mk.KeyID]; ok && existing.IsPinned {
			s.mu.Unlock()
			continue
		}
		s.entries[mk.KeyID] = &KeyEntry{
			KeyID:       mk.KeyID,
			PublicKey:   pub,
			Description: mk.Description,
			AddedAt:     mk.AddedAt,
			ExpiresAt:   mk.ExpiresAt,
			Revoked:     mk.Revoked,
			IsPinned:    false,
		}
		s.mu.Unlock()
	}
	return nil
}

// NeedsRefresh reports whether the store has no non-pinned keys at all,
// a simple staleness signal callers may use to trigger a manifest fetch.
// Finer-grained TTL tracking belongs to the registry client's cache layer.
func (s *Store) NeedsRefresh() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if !e.IsPinned {
			return false
		}
	}
	return true
}

// ClearCachedKeys removes every non-pinned entry, leaving pinned roots
// intact.
func (s *Store) ClearCachedKeys() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k, e := range s.entries {
		if !e.IsPinned {
			delete(s.entries, k)
			removed++
		}
	}
	return removed
}

// Entry returns the stored metadata for key_id, if any, regardless of
// revocation/expiry state (used by diagnostics/CLI inspection).
func (s *Store) Entry(keyID string) (*KeyEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[keyID]
	return e, ok
}

func parseSPKIEd25519(der []byte) (ed25519.PublicKey, error) {
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("trust: invalid SPKI DER: %w", err)
	}
	edPub, ok := pub.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("trust: SPKI key is not an Ed25519 public key")
	}
	return edPub, nil
}
