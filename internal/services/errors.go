package services

import "github.com/pkg/errors"

// Terminal error conditions of the ingestion pipeline and the gated
// accessors. Handlers match these with errors.Is.
var (
	// ErrUnsupportedFormat marks an upload with the wrong file extension.
	ErrUnsupportedFormat = errors.New("unsupported file format")
	// ErrRenderDelegationFailed marks a renderer that was unreachable or
	// rejected the input. The input is discarded; resubmitting is safe.
	ErrRenderDelegationFailed = errors.New("render delegation failed")
	// ErrArtifactFetchFailed marks a run where at least one generated
	// artifact could not be retrieved. No record is persisted.
	ErrArtifactFetchFailed = errors.New("artifact fetch failed")
	// ErrMaterialsUnreadable marks a materials file that could not be read
	// or parsed. Non-fatal: the record is persisted with an empty tally.
	ErrMaterialsUnreadable = errors.New("materials unreadable")
	// ErrNotFound covers both a missing id and a visibility denial, so the
	// existence of private records does not leak.
	ErrNotFound = errors.New("schematic not found")
	// ErrForbidden marks a write by a caller who can read the record but is
	// neither its owner nor an admin.
	ErrForbidden = errors.New("operation not permitted")
)
