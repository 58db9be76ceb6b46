// Package diffverify runs differential parity checks between the
// production bundle verifier (internal/bundle.Verify, driven through a
// subprocess CLI so a verifier panic can't take the test process down with
// it) and an independent, non-streaming reference verifier
// (internal/bundle.VerifyReference). Grounded on
// original_source/crates/assay-sim/src/attacks/differential.rs.
package diffverify

import (
	"bytes"
	"fmt"
	"math/rand"
)

// Mutator corrupts a valid bundle's raw bytes in one specific way, for
// feeding to both verifiers and comparing their verdicts.
type Mutator interface {
	Name() string
	Mutate(bundle []byte) ([]byte, error)
}

// BitFlip flips Count pseudo-random bits of the input, seeded so a run is
// reproducible.
type BitFlip struct {
	Count int
	Seed  uint64
}

func (m BitFlip) Name() string { return "differential.parity.bitflip" }

func (m BitFlip) Mutate(bundle []byte) ([]byte, error) {
	if len(bundle) == 0 {
		return nil, fmt.Errorf("diffverify: cannot bit-flip an empty bundle")
	}
	out := make([]byte, len(bundle))
	copy(out, bundle)

	rng := rand.New(rand.NewSource(int64(m.Seed)))
	for i := 0; i < m.Count; i++ {
		byteIdx := rng.Intn(len(out))
		bitIdx := rng.Intn(8)
		out[byteIdx] ^= 1 << uint(bitIdx)
	}
	return out, nil
}

// Truncate cuts the bundle off at byte offset At.
type Truncate struct {
	At int
}

func (m Truncate) Name() string { return "differential.parity.truncate" }

func (m Truncate) Mutate(bundle []byte) ([]byte, error) {
	at := m.At
	if at > len(bundle) {
		at = len(bundle)
	}
	out := make([]byte, at)
	copy(out, bundle[:at])
	return out, nil
}

// InjectFile decompresses the bundle's gzip+tar, appends one extra tar
// entry, and recompresses. A conformant verifier rejects the result as an
// unexpected file (spec.md's manifest.json+events.ndjson-only contract).
type InjectFile struct {
	Name    string
	Content []byte
}

func (m InjectFile) Name() string { return "differential.parity.inject" }

func (m InjectFile) Mutate(bundle []byte) ([]byte, error) {
	entries, err := untarGzip(bundle)
	if err != nil {
		return nil, fmt.Errorf("diffverify: inject: read bundle: %w", err)
	}
	entries = append(entries, tarEntry{name: m.Name, content: m.Content})

	var buf bytes.Buffer
	if err := tarGzip(&buf, entries); err != nil {
		return nil, fmt.Errorf("diffverify: inject: rebuild bundle: %w", err)
	}
	return buf.Bytes(), nil
}
