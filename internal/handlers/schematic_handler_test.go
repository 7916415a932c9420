package handlers

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"schematic-service/internal/logger"
	"schematic-service/internal/models"
	"schematic-service/internal/policy"
	"schematic-service/internal/services"
	"schematic-service/internal/storage"
)

// fakeRepo serves a fixed set of records keyed by id.
type fakeRepo struct {
	records map[uint]*models.Schematic
	deleted []uint
}

func (r *fakeRepo) Create(s *models.Schematic) error {
	s.ID = uint(len(r.records) + 1)
	r.records[s.ID] = s
	return nil
}

func (r *fakeRepo) GetByID(id uint) (*models.Schematic, error) {
	rec, ok := r.records[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	copied := *rec
	return &copied, nil
}

func (r *fakeRepo) Search(keyword string, caller *policy.Caller) ([]models.Schematic, error) {
	var out []models.Schematic
	for _, rec := range r.records {
		if policy.CanRead(caller, rec) && strings.Contains(rec.Name, keyword) {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (r *fakeRepo) Update(s *models.Schematic) error {
	r.records[s.ID] = s
	return nil
}

func (r *fakeRepo) Delete(id uint) error {
	delete(r.records, id)
	r.deleted = append(r.deleted, id)
	return nil
}

// injectCaller stands in for the auth middleware so tests choose the identity
// per request via a header.
func injectCaller(caller *policy.Caller) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if caller != nil {
			c.Locals("caller", caller)
		}
		return c.Next()
	}
}

func newTestApp(t *testing.T, repo *fakeRepo, caller *policy.Caller) *fiber.App {
	t.Helper()
	paths, err := storage.NewPaths(t.TempDir())
	if err != nil {
		t.Fatalf("NewPaths: %v", err)
	}
	service := services.NewSchematicService(repo, nil, nil, paths, nil, logger.NewNop())
	handler := NewSchematicHandler(service, logger.NewNop())

	app := fiber.New()
	api := app.Group("/api/schematics", injectCaller(caller))
	api.Get("/search", handler.Search)
	api.Get("/:id", handler.Get)
	api.Get("/:id/materials", handler.Materials)
	api.Put("/:id", handler.Update)
	api.Delete("/:id", handler.Delete)
	return app
}

func seededRepo() *fakeRepo {
	return &fakeRepo{records: map[uint]*models.Schematic{
		1: {ID: 1, Name: "castle", OwnerID: 7, IsPublic: true,
			Materials: `{"minecraft:stone": 64}`},
		2: {ID: 2, Name: "secret bunker", OwnerID: 7, IsPublic: false},
	}}
}

func doJSON(t *testing.T, app *fiber.App, method, target, body string) (int, map[string]interface{}) {
	t.Helper()
	var reqBody io.Reader
	if body != "" {
		reqBody = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reqBody)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	decoded := map[string]interface{}{}
	if len(raw) > 0 && raw[0] == '{' {
		json.Unmarshal(raw, &decoded)
	}
	return resp.StatusCode, decoded
}

func TestGet_PublicRecord(t *testing.T) {
	app := newTestApp(t, seededRepo(), nil)

	status, body := doJSON(t, app, "GET", "/api/schematics/1", "")
	if status != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if body["name"] != "castle" {
		t.Errorf("name = %v", body["name"])
	}
	urls, ok := body["apiUrls"].(map[string]interface{})
	if !ok {
		t.Fatal("apiUrls missing")
	}
	if urls["frontView"] != "/api/schematics/1/front-view" {
		t.Errorf("frontView url = %v", urls["frontView"])
	}
	if urls["download"] != "/api/schematics/1/download" {
		t.Errorf("download url = %v", urls["download"])
	}
	materials, ok := body["materials"].(map[string]interface{})
	if !ok || materials["minecraft:stone"] != float64(64) {
		t.Errorf("materials = %v", body["materials"])
	}
}

func TestGet_MissingAndPrivateShareOne404Shape(t *testing.T) {
	app := newTestApp(t, seededRepo(), nil)

	missingStatus, missingBody := doJSON(t, app, "GET", "/api/schematics/999", "")
	privateStatus, privateBody := doJSON(t, app, "GET", "/api/schematics/2", "")

	if missingStatus != fiber.StatusNotFound || privateStatus != fiber.StatusNotFound {
		t.Fatalf("statuses = %d, %d, want both 404", missingStatus, privateStatus)
	}
	if missingBody["message"] != privateBody["message"] {
		t.Errorf("404 bodies differ: %v vs %v", missingBody, privateBody)
	}
}

func TestGet_NonNumericIDIs404(t *testing.T) {
	app := newTestApp(t, seededRepo(), nil)

	status, _ := doJSON(t, app, "GET", "/api/schematics/castle", "")
	if status != fiber.StatusNotFound {
		t.Errorf("status = %d, want 404", status)
	}
}

func TestGet_OwnerSeesPrivateRecord(t *testing.T) {
	app := newTestApp(t, seededRepo(), &policy.Caller{ID: 7, Role: "user"})

	status, body := doJSON(t, app, "GET", "/api/schematics/2", "")
	if status != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if body["name"] != "secret bunker" {
		t.Errorf("name = %v", body["name"])
	}
}

func TestSearch_AnonymousSeesOnlyPublic(t *testing.T) {
	app := newTestApp(t, seededRepo(), nil)

	req := httptest.NewRequest("GET", "/api/schematics/search", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	var results []SchematicSummary
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		t.Fatalf("decoding results: %v", err)
	}
	if len(results) != 1 || results[0].Name != "castle" {
		t.Errorf("results = %+v, want only the public record", results)
	}
}

func TestUpdate_StrangerIs403(t *testing.T) {
	app := newTestApp(t, seededRepo(), &policy.Caller{ID: 8, Role: "user"})

	status, _ := doJSON(t, app, "PUT", "/api/schematics/1", `{"name": "stolen"}`)
	if status != fiber.StatusForbidden {
		t.Errorf("status = %d, want 403", status)
	}
}

func TestUpdate_AnonymousOnPrivateIs404(t *testing.T) {
	app := newTestApp(t, seededRepo(), nil)

	status, _ := doJSON(t, app, "PUT", "/api/schematics/2", `{"name": "probe"}`)
	if status != fiber.StatusNotFound {
		t.Errorf("status = %d, want merged 404", status)
	}
}

func TestUpdate_InvalidBodyIs400(t *testing.T) {
	app := newTestApp(t, seededRepo(), &policy.Caller{ID: 7, Role: "user"})

	status, _ := doJSON(t, app, "PUT", "/api/schematics/1", `{"name": `)
	if status != fiber.StatusBadRequest {
		t.Errorf("status = %d, want 400", status)
	}
}

func TestUpdate_Owner(t *testing.T) {
	repo := seededRepo()
	app := newTestApp(t, repo, &policy.Caller{ID: 7, Role: "user"})

	status, body := doJSON(t, app, "PUT", "/api/schematics/1", `{"name": "fortress", "is_public": false}`)
	if status != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", status)
	}
	if body["name"] != "fortress" || body["is_public"] != false {
		t.Errorf("body = %v", body)
	}
	if repo.records[1].Name != "fortress" || repo.records[1].IsPublic {
		t.Errorf("stored record = %+v", repo.records[1])
	}
}

func TestDelete_OwnerIs204(t *testing.T) {
	repo := seededRepo()
	app := newTestApp(t, repo, &policy.Caller{ID: 7, Role: "user"})

	status, _ := doJSON(t, app, "DELETE", "/api/schematics/1", "")
	if status != fiber.StatusNoContent {
		t.Fatalf("status = %d, want 204", status)
	}
	if len(repo.deleted) != 1 || repo.deleted[0] != 1 {
		t.Errorf("deleted ids = %v", repo.deleted)
	}
}

func TestMaterials_PublicRecord(t *testing.T) {
	app := newTestApp(t, seededRepo(), nil)

	req := httptest.NewRequest("GET", "/api/schematics/1/materials", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	defer resp.Body.Close()
	var tally models.MaterialTally
	if err := json.NewDecoder(resp.Body).Decode(&tally); err != nil {
		t.Fatalf("decoding tally: %v", err)
	}
	if tally["minecraft:stone"] != 64 {
		t.Errorf("tally = %v", tally)
	}
}
