package handlers

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"

	"schematic-service/internal/logger"
	"schematic-service/internal/middleware"
	"schematic-service/internal/models"
	"schematic-service/internal/services"
)

const schematicNotFoundError = "schematic not found"

// APIURLs points a client at the per-artifact endpoints of one schematic.
type APIURLs struct {
	FrontView string `json:"frontView"`
	SideView  string `json:"sideView"`
	TopView   string `json:"topView"`
	Materials string `json:"materials"`
	Download  string `json:"download"`
}

// SchematicSummary is the list/search representation of a schematic.
type SchematicSummary struct {
	ID        uint      `json:"id"`
	Name      string    `json:"name"`
	IsPublic  bool      `json:"is_public"`
	CreatedAt time.Time `json:"created_at"`
	APIURLs   APIURLs   `json:"apiUrls"`
}

// SchematicDetail is the full representation, including the material tally.
type SchematicDetail struct {
	SchematicSummary
	OwnerID   uint                 `json:"owner_id"`
	Materials models.MaterialTally `json:"materials"`
}

func urlsFor(id uint) APIURLs {
	base := fmt.Sprintf("/api/schematics/%d", id)
	return APIURLs{
		FrontView: base + "/front-view",
		SideView:  base + "/side-view",
		TopView:   base + "/top-view",
		Materials: base + "/materials",
		Download:  base + "/download",
	}
}

func summaryOf(s *models.Schematic) SchematicSummary {
	return SchematicSummary{
		ID:        s.ID,
		Name:      s.Name,
		IsPublic:  s.IsPublic,
		CreatedAt: s.CreatedAt,
		APIURLs:   urlsFor(s.ID),
	}
}

func detailOf(s *models.Schematic, materials models.MaterialTally) SchematicDetail {
	return SchematicDetail{
		SchematicSummary: summaryOf(s),
		OwnerID:          s.OwnerID,
		Materials:        materials,
	}
}

// SchematicHandler defines the HTTP handlers for schematic resources.
type SchematicHandler struct {
	Service *services.SchematicService
	log     *logger.Logger
}

// NewSchematicHandler creates a new SchematicHandler with the given service.
func NewSchematicHandler(service *services.SchematicService, log *logger.Logger) *SchematicHandler {
	return &SchematicHandler{Service: service, log: log}
}

// Upload handles POST /api/schematics/upload.
// @Summary Upload a schematic
// @Description Upload a .litematic file; it is processed by the external renderer and stored with its generated artifacts
// @Tags schematics
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Structure file (.litematic)"
// @Success 201 {object} SchematicDetail "Persisted schematic"
// @Failure 400 {object} map[string]interface{} "No file or unsupported format"
// @Failure 401 {object} map[string]interface{} "Missing or invalid token"
// @Failure 502 {object} map[string]interface{} "Renderer delegation or artifact fetch failed"
// @Router /schematics/upload [post]
func (h *SchematicHandler) Upload(c *fiber.Ctx) error {
	caller := middleware.CallerFromCtx(c)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": true, "message": "failed to read file: " + err.Error(),
		})
	}

	src, err := fileHeader.Open()
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": true, "message": "could not open uploaded file",
		})
	}
	defer src.Close()

	// Stage the upload to a temp file; the service owns its cleanup.
	tempFile, err := os.CreateTemp(os.TempDir(), "upload-*"+filepath.Ext(fileHeader.Filename))
	if err != nil {
		return h.internalError(c, errors.Wrap(err, "could not create temporary file"))
	}
	tempPath := tempFile.Name()
	_, err = io.Copy(tempFile, src)
	tempFile.Close()
	if err != nil {
		os.Remove(tempPath)
		return h.internalError(c, errors.Wrap(err, "failed to write uploaded file"))
	}

	schematic, err := h.Service.Ingest(c.Context(), tempPath, fileHeader.Filename, caller)
	if err != nil {
		h.log.Warn("upload failed", "filename", fileHeader.Filename, "error", err)
		switch {
		case errors.Is(err, services.ErrUnsupportedFormat):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": true, "message": "only .litematic files are supported",
			})
		case errors.Is(err, services.ErrRenderDelegationFailed),
			errors.Is(err, services.ErrArtifactFetchFailed):
			return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
				"error": true, "message": err.Error(),
			})
		default:
			return h.internalError(c, err)
		}
	}

	source := schematic.MaterialsSource()
	return c.Status(fiber.StatusCreated).JSON(detailOf(schematic, source.Inline))
}

// Search handles GET /api/schematics/search.
// @Summary Search schematics
// @Description Case-insensitive substring search over names; an empty query matches all schematics visible to the caller
// @Tags schematics
// @Produce json
// @Param q query string false "Search keyword"
// @Success 200 {array} SchematicSummary "Matching schematics"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /schematics/search [get]
func (h *SchematicHandler) Search(c *fiber.Ctx) error {
	caller := middleware.CallerFromCtx(c)
	keyword := c.Query("q")

	schematics, err := h.Service.Search(keyword, caller)
	if err != nil {
		return h.internalError(c, err)
	}
	results := make([]SchematicSummary, 0, len(schematics))
	for i := range schematics {
		results = append(results, summaryOf(&schematics[i]))
	}
	return c.JSON(results)
}

// Get handles GET /api/schematics/:id.
// @Summary Get a schematic by ID
// @Description Metadata of one schematic, including its material tally and artifact URLs
// @Tags schematics
// @Produce json
// @Param id path int true "Schematic ID"
// @Success 200 {object} SchematicDetail "Schematic found"
// @Failure 404 {object} map[string]interface{} "Not found"
// @Router /schematics/{id} [get]
func (h *SchematicHandler) Get(c *fiber.Ctx) error {
	caller := middleware.CallerFromCtx(c)
	id, ok := parseID(c)
	if !ok {
		return h.notFound(c)
	}
	schematic, err := h.Service.Get(caller, id)
	if err != nil {
		return h.mapReadError(c, err)
	}
	materials, err := h.Service.MaterialsFor(caller, id)
	if err != nil {
		return h.mapReadError(c, err)
	}
	return c.JSON(detailOf(schematic, materials))
}

// FrontView handles GET /api/schematics/:id/front-view.
// @Summary Get the front view image
// @Tags schematics
// @Produce png
// @Param id path int true "Schematic ID"
// @Success 200 {file} binary "PNG image"
// @Failure 404 {object} map[string]interface{} "Not found"
// @Router /schematics/{id}/front-view [get]
func (h *SchematicHandler) FrontView(c *fiber.Ctx) error {
	return h.serveView(c, services.ViewFront)
}

// SideView handles GET /api/schematics/:id/side-view.
// @Summary Get the side view image
// @Tags schematics
// @Produce png
// @Param id path int true "Schematic ID"
// @Success 200 {file} binary "PNG image"
// @Failure 404 {object} map[string]interface{} "Not found"
// @Router /schematics/{id}/side-view [get]
func (h *SchematicHandler) SideView(c *fiber.Ctx) error {
	return h.serveView(c, services.ViewSide)
}

// TopView handles GET /api/schematics/:id/top-view.
// @Summary Get the top view image
// @Tags schematics
// @Produce png
// @Param id path int true "Schematic ID"
// @Success 200 {file} binary "PNG image"
// @Failure 404 {object} map[string]interface{} "Not found"
// @Router /schematics/{id}/top-view [get]
func (h *SchematicHandler) TopView(c *fiber.Ctx) error {
	return h.serveView(c, services.ViewTop)
}

func (h *SchematicHandler) serveView(c *fiber.Ctx, kind services.ViewKind) error {
	caller := middleware.CallerFromCtx(c)
	id, ok := parseID(c)
	if !ok {
		return h.notFound(c)
	}
	absPath, err := h.Service.ViewImagePath(caller, id, kind)
	if err != nil {
		return h.mapReadError(c, err)
	}
	c.Set(fiber.HeaderContentType, "image/png")
	return c.SendFile(absPath)
}

// Materials handles GET /api/schematics/:id/materials.
// @Summary Get the material tally
// @Description Mapping from block type to required count
// @Tags schematics
// @Produce json
// @Param id path int true "Schematic ID"
// @Success 200 {object} models.MaterialTally "Material tally"
// @Failure 404 {object} map[string]interface{} "Not found"
// @Router /schematics/{id}/materials [get]
func (h *SchematicHandler) Materials(c *fiber.Ctx) error {
	caller := middleware.CallerFromCtx(c)
	id, ok := parseID(c)
	if !ok {
		return h.notFound(c)
	}
	materials, err := h.Service.MaterialsFor(caller, id)
	if err != nil {
		return h.mapReadError(c, err)
	}
	return c.JSON(materials)
}

// Download handles GET /api/schematics/:id/download.
// @Summary Download the structure file
// @Tags schematics
// @Produce application/octet-stream
// @Param id path int true "Schematic ID"
// @Success 200 {file} binary "Structure file"
// @Failure 404 {object} map[string]interface{} "Not found"
// @Router /schematics/{id}/download [get]
func (h *SchematicHandler) Download(c *fiber.Ctx) error {
	caller := middleware.CallerFromCtx(c)
	id, ok := parseID(c)
	if !ok {
		return h.notFound(c)
	}
	absPath, downloadName, err := h.Service.RawFile(caller, id)
	if err != nil {
		return h.mapReadError(c, err)
	}
	return c.Download(absPath, downloadName)
}

// Update handles PUT /api/schematics/:id.
// @Summary Update a schematic
// @Description Rename a schematic or toggle its visibility; all other fields are immutable
// @Tags schematics
// @Accept json
// @Produce json
// @Param id path int true "Schematic ID"
// @Param body body services.UpdateInput true "Mutable fields"
// @Success 200 {object} SchematicSummary "Updated schematic"
// @Failure 401 {object} map[string]interface{} "Missing or invalid token"
// @Failure 403 {object} map[string]interface{} "Caller is neither owner nor admin"
// @Failure 404 {object} map[string]interface{} "Not found"
// @Router /schematics/{id} [put]
func (h *SchematicHandler) Update(c *fiber.Ctx) error {
	caller := middleware.CallerFromCtx(c)
	id, ok := parseID(c)
	if !ok {
		return h.notFound(c)
	}
	var input services.UpdateInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": true, "message": "invalid request body",
		})
	}
	schematic, err := h.Service.Update(caller, id, input)
	if err != nil {
		return h.mapWriteError(c, err)
	}
	return c.JSON(summaryOf(schematic))
}

// Delete handles DELETE /api/schematics/:id.
// @Summary Delete a schematic
// @Description Removes the record and its artifact directory; deleting an already-removed directory is not an error
// @Tags schematics
// @Param id path int true "Schematic ID"
// @Success 204 "No Content"
// @Failure 401 {object} map[string]interface{} "Missing or invalid token"
// @Failure 403 {object} map[string]interface{} "Caller is neither owner nor admin"
// @Failure 404 {object} map[string]interface{} "Not found"
// @Router /schematics/{id} [delete]
func (h *SchematicHandler) Delete(c *fiber.Ctx) error {
	caller := middleware.CallerFromCtx(c)
	id, ok := parseID(c)
	if !ok {
		return h.notFound(c)
	}
	if err := h.Service.Delete(caller, id); err != nil {
		return h.mapWriteError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func parseID(c *fiber.Ctx) (uint, bool) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return 0, false
	}
	return uint(id), true
}

// notFound is the single 404 shape for missing ids, denied visibility and
// missing artifact files alike.
func (h *SchematicHandler) notFound(c *fiber.Ctx) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"error": true, "message": schematicNotFoundError,
	})
}

func (h *SchematicHandler) mapReadError(c *fiber.Ctx, err error) error {
	if errors.Is(err, services.ErrNotFound) {
		return h.notFound(c)
	}
	return h.internalError(c, err)
}

func (h *SchematicHandler) mapWriteError(c *fiber.Ctx, err error) error {
	if errors.Is(err, services.ErrForbidden) {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": true, "message": "owner or admin required",
		})
	}
	return h.mapReadError(c, err)
}

func (h *SchematicHandler) internalError(c *fiber.Ctx, err error) error {
	h.log.Error("request failed", "path", c.Path(), "error", err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": true, "message": err.Error(),
	})
}
