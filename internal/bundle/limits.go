package bundle

// VerifyLimits bounds the resources a streaming verification pass may
// consume, per spec.md §9's "Recognized verifier limits" config struct.
type VerifyLimits struct {
	MaxBundleBytes int64
	MaxDecodeBytes int64
	MaxEvents      int
	MaxEventsBytes int64
	MaxManifestBytes int64
	MaxLineBytes   int
	MaxPathLen     int
}

// DefaultVerifyLimits matches the teacher-adjacent defaults used across
// the pack: generous enough for real bundles, tight enough to bound a
// zip-bomb or slow-loris NDJSON stream.
func DefaultVerifyLimits() VerifyLimits {
	return VerifyLimits{
		MaxBundleBytes:   256 << 20,
		MaxDecodeBytes:   1 << 30,
		MaxEvents:        1_000_000,
		MaxEventsBytes:   512 << 20,
		MaxManifestBytes: 1 << 20,
		MaxLineBytes:     1 << 20,
		MaxPathLen:       4096,
	}
}
