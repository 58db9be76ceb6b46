package diffverify

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompareResultsProductionAcceptsReferenceRejectsIsFailed(t *testing.T) {
	r := compareResults("t", &SubprocessResult{Valid: true}, ReferenceResult{Valid: false, Error: "bad hash"}, 1)
	assert.Equal(t, Failed, r.Status)
	assert.Equal(t, "SOTA_BYPASS", r.ErrorCode)
	assert.Equal(t, "parity_violation", r.ErrorClass)
}

func TestCompareResultsBothAcceptIsPassed(t *testing.T) {
	r := compareResults("t", &SubprocessResult{Valid: true}, ReferenceResult{Valid: true, EventCount: 3, RunRoot: "deadbeef"}, 1)
	assert.Equal(t, Passed, r.Status)
	assert.Empty(t, r.ErrorCode)
}

func TestCompareResultsProductionRejectsReferenceAcceptsIsPassed(t *testing.T) {
	r := compareResults("t", &SubprocessResult{Valid: false}, ReferenceResult{Valid: true}, 1)
	assert.Equal(t, Passed, r.Status)
	assert.Contains(t, r.Message, "strictness divergence")
}

func TestCompareResultsBothRejectIsPassed(t *testing.T) {
	r := compareResults("t", &SubprocessResult{Valid: false, Stderr: "bad magic\nmore"}, ReferenceResult{Valid: false, Error: "bad magic"}, 1)
	assert.Equal(t, Passed, r.Status)
	assert.Contains(t, r.Message, "both rejected")
}

func TestCreateTestBundleIsValidUnderReferenceVerifier(t *testing.T) {
	b, err := createTestBundle()
	require.NoError(t, err)

	result := ReferenceVerify(b)
	assert.True(t, result.Valid, "reference verifier error: %s", result.Error)
	assert.Equal(t, 3, result.EventCount)
	assert.NotEmpty(t, result.RunRoot)
}

func TestTruncStringShorterThanMax(t *testing.T) {
	assert.Equal(t, "abc", truncateString("abc", 10))
}

func TestTruncateStringLongerThanMaxAddsEllipsis(t *testing.T) {
	assert.Equal(t, "ab…", truncateString("abcdef", 2))
}

func TestFirstLineSplitsOnNewline(t *testing.T) {
	assert.Equal(t, "one", firstLine("one\ntwo"))
	assert.Equal(t, "unknown", firstLine(""))
	assert.Equal(t, "solo", firstLine("solo"))
}

// buildAssayBinary builds the cmd/assay CLI once for subprocess-backed
// integration tests, skipping them when the toolchain isn't available to
// the test run (e.g. no network for module resolution in this environment).
func buildAssayBinary(t *testing.T) string {
	t.Helper()
	bin := filepath.Join(t.TempDir(), "assay")
	cmd := exec.Command("go", "build", "-o", bin, "github.com/assay-run/assay/cmd/assay")
	cmd.Dir = ".."
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Skipf("skipping subprocess-backed diffverify tests, could not build cmd/assay: %v\n%s", err, out)
	}
	return bin
}

func TestCheckDifferentialParityAgainstRealSubprocess(t *testing.T) {
	if os.Getenv("ASSAY_RUN_SUBPROCESS_TESTS") == "" {
		t.Skip("set ASSAY_RUN_SUBPROCESS_TESTS=1 to build and exec the real CLI binary")
	}
	bin := buildAssayBinary(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	results, err := CheckDifferentialParity(ctx, SubprocessVerifier{BinaryPath: bin}, 7)
	require.NoError(t, err)
	require.Len(t, results, 4)

	for _, r := range results {
		assert.NotEqual(t, Failed, r.Status, "%s: %s", r.Name, r.Message)
	}
}
