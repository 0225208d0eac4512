// Package replay records match artifacts during live play and re-executes
// them offline to prove the recorded final digest.
package replay

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/project-flowstate/flowstate/internal/protocol"
)

// GitCommitEnv is consulted for the fingerprint's commit field.
const GitCommitEnv = "FLOWSTATE_GIT_COMMIT"

// buildProfile tags the build flavor baked into fingerprints. Go has no
// debug/release split, so one profile covers all binaries.
const buildProfile = "release"

// CurrentBuildFingerprint hashes the running executable and captures the
// target triple, profile, and commit. Every call reads and hashes the whole
// executable; the result is not cached. The server calls it from
// Match.Finalize, once per match, rather than at process start.
func CurrentBuildFingerprint() (*protocol.BuildFingerprint, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("replay: locate executable: %w", err)
	}
	f, err := os.Open(exe)
	if err != nil {
		return nil, fmt.Errorf("replay: open executable: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, fmt.Errorf("replay: hash executable: %w", err)
	}

	commit := os.Getenv(GitCommitEnv)
	if commit == "" {
		commit = "unknown"
	}

	return &protocol.BuildFingerprint{
		BinarySHA256: hex.EncodeToString(h.Sum(nil)),
		TargetTriple: runtime.GOOS + "-" + runtime.GOARCH,
		Profile:      buildProfile,
		VCSCommit:    commit,
	}, nil
}

// FingerprintsMatch compares the fields that gate replay verification. The
// commit is metadata and never gates.
func FingerprintsMatch(a, b *protocol.BuildFingerprint) bool {
	return a.BinarySHA256 == b.BinarySHA256 &&
		a.TargetTriple == b.TargetTriple &&
		a.Profile == b.Profile
}
