package diffverify

import (
	"bytes"

	"github.com/assay-run/assay/internal/bundle"
)

// ReferenceResult is the in-process reference verifier's outcome.
type ReferenceResult struct {
	Valid      bool
	EventCount int
	RunRoot    string
	Error      string
}

// ReferenceVerify runs bundle.VerifyReference -- independent of the
// streaming production path, entirely in-process -- over bundleData.
func ReferenceVerify(bundleData []byte) ReferenceResult {
	result, err := bundle.VerifyReference(bytes.NewReader(bundleData), bundle.DefaultVerifyLimits())
	if err != nil {
		return ReferenceResult{Valid: false, Error: err.Error()}
	}
	return ReferenceResult{
		Valid:      true,
		EventCount: result.EventCount,
		RunRoot:    result.ComputedRunRoot,
	}
}
