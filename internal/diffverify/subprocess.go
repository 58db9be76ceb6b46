package diffverify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"time"
)

// SubprocessResult is the production verifier's outcome, as observed from
// outside the process: whether it considered the bundle valid, plus enough
// of its output to log on disagreement. It deliberately does not carry a
// parsed Manifest -- comparison only needs agree/disagree, not full
// metadata equality, since the two verifiers' internal types differ.
type SubprocessResult struct {
	Valid  bool
	Stdout string
	Stderr string
}

// SubprocessVerifier runs the production bundle verifier out-of-process,
// through assay's own CLI, so a verifier panic or resource exhaustion
// (the very thing the mutated bundles are designed to trigger) can't take
// the comparison harness down with it.
type SubprocessVerifier struct {
	// BinaryPath is the built `assay` CLI to exec, e.g. from
	// "go build -o <tmp> ./cmd/assay" in a test's TestMain.
	BinaryPath string
}

// Verify feeds bundle to the CLI's `evidence verify` subcommand over
// stdin and reports whether it exited zero (valid) or non-zero (invalid).
func (v SubprocessVerifier) Verify(ctx context.Context, bundleData []byte, timeout time.Duration) (*SubprocessResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, v.BinaryPath, "evidence", "verify", "-f", "-")
	cmd.Stdin = bytes.NewReader(bundleData)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return nil, fmt.Errorf("diffverify: subprocess verify timed out after %s", timeout)
	}

	result := &SubprocessResult{Stdout: stdout.String(), Stderr: stderr.String()}
	var payload struct {
		Valid bool `json:"valid"`
	}
	if jsonErr := json.Unmarshal(stdout.Bytes(), &payload); jsonErr == nil {
		result.Valid = payload.Valid
	} else {
		// Exit code alone still tells us accept/reject even if stdout
		// wasn't parseable JSON (e.g. the process panicked before
		// encoding output).
		result.Valid = err == nil
	}

	return result, nil
}
