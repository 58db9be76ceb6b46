package diffverify

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/assay-run/assay/internal/bundle"
)

// CheckDifferentialParity builds a valid evidence bundle, then runs it --
// unmodified and through each Mutator -- past both the production verifier
// (out-of-process, via verifier) and the reference verifier (in-process),
// comparing their verdicts under the asymmetric policy in compareResults.
//
// seed controls the bit-flip mutation's pseudo-randomness, so a reported
// failure is reproducible from the seed alone.
func CheckDifferentialParity(ctx context.Context, verifier SubprocessVerifier, seed uint64) ([]AttackResult, error) {
	validBundle, err := createTestBundle()
	if err != nil {
		return nil, fmt.Errorf("diffverify: build test bundle: %w", err)
	}

	const timeout = 30 * time.Second
	bitflipCount := int((seed % 10) + 1)

	mutators := []Mutator{
		BitFlip{Count: bitflipCount, Seed: seed},
		Truncate{At: len(validBundle) / 2},
		InjectFile{Name: "extra.txt", Content: []byte("injected")},
	}

	var results []AttackResult

	results = append(results, runOne(ctx, verifier, "differential.parity.identity", validBundle, timeout))

	for _, m := range mutators {
		start := time.Now()
		mutated, err := m.Mutate(validBundle)
		if err != nil {
			results = append(results, AttackResult{
				Name:       m.Name(),
				Status:     Errored,
				Message:    fmt.Sprintf("mutation failed: %v", err),
				DurationMS: time.Since(start).Milliseconds(),
			})
			continue
		}
		results = append(results, runOneWithStart(ctx, verifier, m.Name(), mutated, timeout, start))
	}

	return results, nil
}

func runOne(ctx context.Context, verifier SubprocessVerifier, name string, data []byte, timeout time.Duration) AttackResult {
	return runOneWithStart(ctx, verifier, name, data, timeout, time.Now())
}

func runOneWithStart(ctx context.Context, verifier SubprocessVerifier, name string, data []byte, timeout time.Duration, start time.Time) AttackResult {
	production, err := verifier.Verify(ctx, data, timeout)
	reference := ReferenceVerify(data)
	duration := time.Since(start).Milliseconds()

	if err != nil {
		return AttackResult{
			Name:       name,
			Status:     Errored,
			Message:    fmt.Sprintf("subprocess failed: %v", err),
			DurationMS: duration,
		}
	}
	return compareResults(name, production, reference, duration)
}

// compareResults applies the asymmetric parity policy:
//
//   - production accepts, reference rejects -> Failed (SOTA_BYPASS: the
//     production verifier is more permissive than the spec, a real
//     security hole)
//   - both accept -> Passed
//   - production rejects, reference accepts -> Passed (stricter is fine,
//     logged as a divergence for visibility, not a failure)
//   - both reject -> Passed (logged for diagnostic comparison)
func compareResults(name string, production *SubprocessResult, reference ReferenceResult, durationMS int64) AttackResult {
	switch {
	case production.Valid && !reference.Valid:
		return AttackResult{
			Name:       name,
			Status:     Failed,
			ErrorClass: "parity_violation",
			ErrorCode:  "SOTA_BYPASS",
			Message: fmt.Sprintf(
				"parity violation: production accepted, reference rejected (%s)",
				orUnknown(reference.Error),
			),
			DurationMS: durationMS,
		}

	case production.Valid && reference.Valid:
		return AttackResult{
			Name:   name,
			Status: Passed,
			Message: fmt.Sprintf(
				"both accepted (ref: events=%d, run_root=%s)",
				reference.EventCount,
				truncateString(reference.RunRoot, 16),
			),
			DurationMS: durationMS,
		}

	case !production.Valid && reference.Valid:
		return AttackResult{
			Name:       name,
			Status:     Passed,
			Message:    "strictness divergence: production rejected, reference accepted",
			DurationMS: durationMS,
		}

	default:
		return AttackResult{
			Name:   name,
			Status: Passed,
			Message: fmt.Sprintf(
				"both rejected (ref: %s, prod: %s)",
				truncateString(orUnknown(reference.Error), 80),
				truncateString(firstLine(production.Stderr), 80),
			),
			DurationMS: durationMS,
		}
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	if s == "" {
		return "unknown"
	}
	return s
}

func truncateString(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "…"
}

func createTestBundle() ([]byte, error) {
	events := make([]bundle.Event, 3)
	for seq := range events {
		events[seq] = bundle.Event{
			ID:     fmt.Sprintf("evt-%d", seq),
			Time:   time.Unix(1700000000+int64(seq), 0).UTC().Format(time.RFC3339Nano),
			Type:   "assay.test",
			Source: "urn:test",
			Seq:    uint64(seq),
			Data:   map[string]interface{}{"seq": seq},
		}
	}

	var buf bytes.Buffer
	if err := bundle.Write(&buf, "diffrun", events); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
