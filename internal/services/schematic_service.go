package services

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"schematic-service/internal/logger"
	"schematic-service/internal/metrics"
	"schematic-service/internal/models"
	"schematic-service/internal/policy"
	"schematic-service/internal/renderer"
	"schematic-service/internal/repository"
	"schematic-service/internal/storage"
)

// SchematicExt is the only accepted upload extension.
const SchematicExt = ".litematic"

// RendererClient delegates heavy processing of a raw structure file to the
// external rendering service.
type RendererClient interface {
	Process(ctx context.Context, file io.Reader, uploadName string) (*renderer.ProcessResult, error)
}

// ArtifactFetcher downloads one named artifact of a completed run into local
// storage.
type ArtifactFetcher interface {
	Fetch(ctx context.Context, runHandle, remoteName, destDir, localName string) (string, error)
}

// ViewKind selects one of the three orthographic view images.
type ViewKind string

const (
	ViewFront ViewKind = "front"
	ViewSide  ViewKind = "side"
	ViewTop   ViewKind = "top"
)

// SchematicService drives the ingestion pipeline and mediates every read of
// schematic metadata and artifacts through the visibility policy.
type SchematicService struct {
	repo      repository.SchematicRepository
	renderer  RendererClient
	fetcher   ArtifactFetcher
	paths     storage.Paths
	collector *metrics.Collector
	log       *logger.Logger
}

// NewSchematicService creates a SchematicService with the given collaborators.
func NewSchematicService(
	repo repository.SchematicRepository,
	rendererClient RendererClient,
	fetcher ArtifactFetcher,
	paths storage.Paths,
	collector *metrics.Collector,
	log *logger.Logger,
) *SchematicService {
	return &SchematicService{
		repo:      repo,
		renderer:  rendererClient,
		fetcher:   fetcher,
		paths:     paths,
		collector: collector,
		log:       log,
	}
}

// legacyNamePrefix matches the millisecond-timestamp prefix of the old upload
// naming convention, e.g. "1712345678901_castle".
var legacyNamePrefix = regexp.MustCompile(`^\d{10,}_`)

// DeriveName turns an uploaded filename into the record's display name: the
// base name without extension, with any legacy timestamp prefix stripped.
func DeriveName(filename string) string {
	base := filepath.Base(filename)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	return legacyNamePrefix.ReplaceAllString(stem, "")
}

// Ingest runs the full upload pipeline: validate, delegate to the renderer,
// fetch the five generated artifacts (the three views concurrently), and
// persist the record. The staged input at tempPath is removed on every exit
// path. No partially populated record is ever created.
func (s *SchematicService) Ingest(ctx context.Context, tempPath, originalName string, caller *policy.Caller) (*models.Schematic, error) {
	defer s.cleanupTemp(tempPath)

	if caller == nil {
		return nil, ErrForbidden
	}
	if !strings.EqualFold(filepath.Ext(originalName), SchematicExt) {
		s.collector.IngestRun("unsupported_format")
		return nil, errors.Wrapf(ErrUnsupportedFormat, "got %q", filepath.Ext(originalName))
	}

	// Runs started in parallel must not collide, so the run key carries a
	// random suffix on top of the timestamp.
	runKey := fmt.Sprintf("%d_%s", time.Now().UnixMilli(), uuid.NewString()[:8])

	src, err := os.Open(tempPath)
	if err != nil {
		s.collector.IngestRun("staging_failed")
		return nil, errors.Wrap(err, "could not open staged upload")
	}
	result, err := s.renderer.Process(ctx, src, runKey+SchematicExt)
	src.Close()
	if err != nil {
		s.collector.IngestRun("render_delegation_failed")
		return nil, errors.Wrapf(ErrRenderDelegationFailed, "%v", err)
	}

	runHandle := runKey + "_" + result.ProcessID
	destDir := s.paths.RunDir(runKey)

	// The views slice is ordered front, side, top; each fetch writes its
	// result into a fixed slot, so completion order cannot reshuffle them.
	var frontRel, sideRel, topRel, rawRel, materialsRel string
	views := []struct {
		remote string
		local  string
		out    *string
	}{
		{result.Views[0], "front.png", &frontRel},
		{result.Views[1], "side.png", &sideRel},
		{result.Views[2], "top.png", &topRel},
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, v := range views {
		v := v
		g.Go(func() error {
			rel, err := s.fetcher.Fetch(gctx, runHandle, v.remote, destDir, v.local)
			if err != nil {
				return err
			}
			*v.out = rel
			return nil
		})
	}
	g.Go(func() error {
		rel, err := s.fetcher.Fetch(gctx, runHandle, result.Original, destDir, "original"+SchematicExt)
		if err != nil {
			return err
		}
		rawRel = rel
		return nil
	})
	g.Go(func() error {
		rel, err := s.fetcher.Fetch(gctx, runHandle, result.Materials, destDir, "materials.json")
		if err != nil {
			return err
		}
		materialsRel = rel
		return nil
	})
	if err := g.Wait(); err != nil {
		// Artifacts already written for this run are left for out-of-band
		// cleanup; the run itself is over.
		s.collector.IngestRun("artifact_fetch_failed")
		return nil, errors.Wrapf(ErrArtifactFetchFailed, "%v", err)
	}

	schematic := &models.Schematic{
		Name:          DeriveName(originalName),
		OwnerID:       caller.ID,
		IsPublic:      true,
		FilePath:      rawRel,
		FrontViewPath: frontRel,
		SideViewPath:  sideRel,
		TopViewPath:   topRel,
		Materials:     s.readMaterials(materialsRel),
		CreatedAt:     time.Now(),
	}
	if err := s.repo.Create(schematic); err != nil {
		s.collector.IngestRun("persist_failed")
		return nil, errors.Wrap(err, "failed to save schematic metadata")
	}
	s.collector.IngestRun("persisted")
	s.log.Info("schematic ingested",
		"id", schematic.ID, "name", schematic.Name, "run", runKey)
	return schematic, nil
}

// readMaterials loads and validates the fetched materials file. Unreadable or
// non-JSON content degrades to an empty tally; the run still persists.
func (s *SchematicService) readMaterials(storedPath string) string {
	abs, err := s.paths.Absolute(storedPath)
	if err != nil {
		s.log.Warn("materials missing, storing empty tally", "error", err)
		return "{}"
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		s.log.Warn("materials unreadable, storing empty tally",
			"error", errors.Wrapf(ErrMaterialsUnreadable, "%v", err))
		return "{}"
	}
	var tally models.MaterialTally
	if err := json.Unmarshal(data, &tally); err != nil {
		s.log.Warn("materials unreadable, storing empty tally",
			"error", errors.Wrapf(ErrMaterialsUnreadable, "%v", err))
		return "{}"
	}
	return string(data)
}

func (s *SchematicService) cleanupTemp(tempPath string) {
	if tempPath == "" {
		return
	}
	if err := os.Remove(tempPath); err != nil && !os.IsNotExist(err) {
		// Best effort only: a leftover temp file is never worth failing a
		// request over.
		s.log.Warn("could not remove staged upload", "path", tempPath, "error", err)
	}
}

// getReadable resolves a record through the merged not-found/forbidden gate.
// Every accessor goes through here; none may bypass the check.
func (s *SchematicService) getReadable(caller *policy.Caller, id uint) (*models.Schematic, error) {
	schematic, err := s.repo.GetByID(id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, errors.Wrap(err, "failed to load schematic")
	}
	if !policy.CanRead(caller, schematic) {
		return nil, ErrNotFound
	}
	return schematic, nil
}

// Get returns one schematic's metadata, visibility-gated.
func (s *SchematicService) Get(caller *policy.Caller, id uint) (*models.Schematic, error) {
	return s.getReadable(caller, id)
}

// Search returns all schematics visible to the caller whose name contains
// the keyword. An empty keyword matches everything.
func (s *SchematicService) Search(keyword string, caller *policy.Caller) ([]models.Schematic, error) {
	return s.repo.Search(keyword, caller)
}

// ViewImagePath returns the absolute on-disk location of one view image,
// visibility-gated. A missing file is indistinguishable from a missing
// record.
func (s *SchematicService) ViewImagePath(caller *policy.Caller, id uint, kind ViewKind) (string, error) {
	schematic, err := s.getReadable(caller, id)
	if err != nil {
		return "", err
	}
	var stored string
	switch kind {
	case ViewFront:
		stored = schematic.FrontViewPath
	case ViewSide:
		stored = schematic.SideViewPath
	case ViewTop:
		stored = schematic.TopViewPath
	default:
		return "", errors.Errorf("unknown view kind: %s", kind)
	}
	return s.artifactOnDisk(stored)
}

// RawFile returns the absolute location of the stored structure file plus the
// download name, visibility-gated.
func (s *SchematicService) RawFile(caller *policy.Caller, id uint) (string, string, error) {
	schematic, err := s.getReadable(caller, id)
	if err != nil {
		return "", "", err
	}
	abs, err := s.artifactOnDisk(schematic.FilePath)
	if err != nil {
		return "", "", err
	}
	return abs, schematic.Name + SchematicExt, nil
}

func (s *SchematicService) artifactOnDisk(stored string) (string, error) {
	abs, err := s.paths.Absolute(stored)
	if err != nil {
		return "", ErrNotFound
	}
	if _, err := os.Stat(abs); err != nil {
		return "", ErrNotFound
	}
	return abs, nil
}

// MaterialsFor returns the material tally, visibility-gated. Inline rows are
// parsed directly; legacy file-reference rows are resolved lazily. Unreadable
// content degrades to an empty tally.
func (s *SchematicService) MaterialsFor(caller *policy.Caller, id uint) (models.MaterialTally, error) {
	schematic, err := s.getReadable(caller, id)
	if err != nil {
		return nil, err
	}
	source := schematic.MaterialsSource()
	if source.IsInline() {
		return source.Inline, nil
	}
	abs, err := s.paths.Absolute(source.FileRef)
	if err != nil {
		return models.MaterialTally{}, nil
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		s.log.Warn("legacy materials file unreadable", "id", id, "error", err)
		return models.MaterialTally{}, nil
	}
	var tally models.MaterialTally
	if err := json.Unmarshal(data, &tally); err != nil {
		s.log.Warn("legacy materials file unreadable", "id", id, "error", err)
		return models.MaterialTally{}, nil
	}
	return tally, nil
}

// UpdateInput carries the only two mutable fields. Anything else a client
// sends is dropped during decoding, never persisted.
type UpdateInput struct {
	Name     *string `json:"name"`
	IsPublic *bool   `json:"is_public"`
}

// Update renames a schematic or toggles its visibility. Owner or admin only.
func (s *SchematicService) Update(caller *policy.Caller, id uint, input UpdateInput) (*models.Schematic, error) {
	schematic, err := s.getReadable(caller, id)
	if err != nil {
		return nil, err
	}
	if !policy.CanWrite(caller, schematic) {
		return nil, ErrForbidden
	}
	if input.Name != nil && *input.Name != "" {
		schematic.Name = *input.Name
	}
	if input.IsPublic != nil {
		schematic.IsPublic = *input.IsPublic
	}
	if err := s.repo.Update(schematic); err != nil {
		return nil, errors.Wrap(err, "failed to update schematic")
	}
	return schematic, nil
}

// Delete removes the record and its artifact directory tree. Owner or admin
// only. An already-removed directory is not an error.
func (s *SchematicService) Delete(caller *policy.Caller, id uint) error {
	schematic, err := s.getReadable(caller, id)
	if err != nil {
		return err
	}
	if !policy.CanWrite(caller, schematic) {
		return ErrForbidden
	}
	s.removeArtifacts(schematic)
	if err := s.repo.Delete(id); err != nil {
		return errors.Wrap(err, "failed to delete schematic")
	}
	s.log.Info("schematic deleted", "id", id)
	return nil
}

// removeArtifacts deletes a record's on-disk artifacts. Records in the
// processed layout own a whole run directory; flat-legacy records own only
// their individual files, so their parent directory is never touched.
func (s *SchematicService) removeArtifacts(schematic *models.Schematic) {
	if dir, ok := s.paths.ArtifactDir(schematic.FilePath); ok {
		if err := os.RemoveAll(dir); err != nil {
			s.log.Warn("could not remove artifact directory", "dir", dir, "error", err)
		}
		return
	}
	stored := []string{
		schematic.FilePath,
		schematic.FrontViewPath,
		schematic.SideViewPath,
		schematic.TopViewPath,
	}
	if source := schematic.MaterialsSource(); !source.IsInline() {
		stored = append(stored, source.FileRef)
	}
	for _, sp := range stored {
		abs, err := s.paths.Absolute(sp)
		if err != nil {
			continue
		}
		if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
			s.log.Warn("could not remove artifact file", "path", abs, "error", err)
		}
	}
}
