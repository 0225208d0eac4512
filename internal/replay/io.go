package replay

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/xid"

	"github.com/project-flowstate/flowstate/internal/protocol"
)

// ArtifactExt is the on-disk extension for replay artifacts.
const ArtifactExt = ".fsr"

// ArtifactName returns the artifact file name for a match. An empty match
// id gets a fresh unique one.
func ArtifactName(matchID string) string {
	if matchID == "" {
		matchID = xid.New().String()
	}
	return "match-" + matchID + ArtifactExt
}

// WriteArtifact encodes the artifact to path, creating parent directories.
// An existing destination is never overwritten; the caller gets the
// os.ErrExist-wrapped error back.
func WriteArtifact(path string, art *protocol.ReplayArtifact) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("replay: create artifact dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("replay: create artifact: %w", err)
	}
	if _, err := f.Write(art.Marshal()); err != nil {
		f.Close()
		return fmt.Errorf("replay: write artifact: %w", err)
	}
	return f.Close()
}

// ReadArtifact decodes an artifact from path. Undecodable bytes surface as
// protocol.ErrInvalidData.
func ReadArtifact(path string) (*protocol.ReplayArtifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("replay: read artifact: %w", err)
	}
	var art protocol.ReplayArtifact
	if err := art.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("replay: decode artifact: %w", err)
	}
	return &art, nil
}
