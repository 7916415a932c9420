package storage

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// processedDir is the directory under the storage root holding one
// subdirectory per ingestion run.
const processedDir = "processed"

// ErrNoPath marks an empty stored path. It is a terminal "not found" state,
// distinct from a malformed path (which degrades to the flat-layout guess).
var ErrNoPath = errors.New("no stored path")

// PathKind tags the recognized shapes of a stored path descriptor.
type PathKind int

const (
	// KindAbsolute is a legacy absolute path, used as-is.
	KindAbsolute PathKind = iota
	// KindProcessedRun is the current processed/<run>/<file> layout.
	KindProcessedRun
	// KindFlatLegacy is a bare filename from the old flat layout.
	KindFlatLegacy
)

// StoredPath is the parsed form of a path descriptor persisted by the record
// store. Run and File are only meaningful for KindProcessedRun.
type StoredPath struct {
	Kind PathKind
	Run  string
	File string
	Raw  string
}

// ParseStoredPath classifies a stored path descriptor. It returns false only
// for an empty descriptor; any other input maps onto one of the three
// recognized shapes.
func ParseStoredPath(stored string) (StoredPath, bool) {
	stored = strings.TrimSpace(stored)
	if stored == "" {
		return StoredPath{}, false
	}
	if filepath.IsAbs(stored) {
		return StoredPath{Kind: KindAbsolute, Raw: stored}, true
	}
	// Normalize separators from rows written on Windows deployments.
	normalized := strings.ReplaceAll(stored, "\\", "/")
	segments := strings.Split(normalized, "/")
	for i, seg := range segments {
		// The processed segment may appear with or without a leading
		// uploads/ prefix; everything before it is ignored.
		if seg == processedDir && i+1 < len(segments)-1 {
			return StoredPath{
				Kind: KindProcessedRun,
				Run:  segments[i+1],
				File: segments[len(segments)-1],
				Raw:  stored,
			}, true
		}
	}
	return StoredPath{Kind: KindFlatLegacy, File: segments[len(segments)-1], Raw: stored}, true
}

// Paths resolves stored path descriptors against a storage root.
type Paths struct {
	Root string
}

// NewPaths makes the root absolute and ensures it and the processed
// subdirectory exist.
func NewPaths(root string) (Paths, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return Paths{}, errors.Wrap(err, "could not resolve storage root")
	}
	if err := os.MkdirAll(filepath.Join(abs, processedDir), 0o755); err != nil {
		return Paths{}, errors.Wrap(err, "could not create storage root")
	}
	return Paths{Root: abs}, nil
}

// Absolute maps a stored path descriptor to a retrievable absolute location.
// It never fails for a malformed-but-non-empty input; only an empty
// descriptor yields ErrNoPath.
func (p Paths) Absolute(stored string) (string, error) {
	sp, ok := ParseStoredPath(stored)
	if !ok {
		return "", ErrNoPath
	}
	switch sp.Kind {
	case KindAbsolute:
		return sp.Raw, nil
	case KindProcessedRun:
		return filepath.Join(p.Root, processedDir, sp.Run, sp.File), nil
	default:
		return filepath.Join(p.Root, sp.File), nil
	}
}

// Storable converts an absolute path into the relative form persisted by the
// record store. Paths outside the storage root pass through unchanged.
func (p Paths) Storable(absPath string) string {
	rel, err := filepath.Rel(p.Root, absPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return absPath
	}
	return filepath.ToSlash(rel)
}

// RunDir returns the absolute directory holding one run's artifacts.
func (p Paths) RunDir(run string) string {
	return filepath.Join(p.Root, processedDir, run)
}

// ArtifactDir returns the absolute run directory a stored path belongs to.
// Flat-legacy and absolute descriptors have no owned directory; deleting
// their parent would take unrelated files with it.
func (p Paths) ArtifactDir(stored string) (string, bool) {
	sp, ok := ParseStoredPath(stored)
	if !ok || sp.Kind != KindProcessedRun {
		return "", false
	}
	return p.RunDir(sp.Run), true
}
