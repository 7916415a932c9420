package repository

import (
	"strings"

	"gorm.io/gorm"

	"schematic-service/internal/models"
	"schematic-service/internal/policy"
)

// SchematicRepository defines the record-store operations for schematics.
type SchematicRepository interface {
	Create(schematic *models.Schematic) error
	GetByID(id uint) (*models.Schematic, error)
	Search(keyword string, caller *policy.Caller) ([]models.Schematic, error)
	Update(schematic *models.Schematic) error
	Delete(id uint) error
}

// SchematicRepositoryImpl provides methods to interact with the Schematic
// model in the database.
type SchematicRepositoryImpl struct {
	db *gorm.DB
}

// NewSchematicRepository creates a new SchematicRepositoryImpl instance with
// the provided GORM database connection.
func NewSchematicRepository(db *gorm.DB) *SchematicRepositoryImpl {
	return &SchematicRepositoryImpl{db: db}
}

// Create inserts a new Schematic, letting the store assign its ID.
func (r *SchematicRepositoryImpl) Create(schematic *models.Schematic) error {
	return r.db.Create(schematic).Error
}

// GetByID retrieves a Schematic by its ID from the database.
func (r *SchematicRepositoryImpl) GetByID(id uint) (*models.Schematic, error) {
	var schematic models.Schematic
	err := r.db.First(&schematic, "id = ?", id).Error
	return &schematic, err
}

// Search returns schematics whose name contains the keyword
// (case-insensitive), newest first. The caller's visibility is applied as a
// WHERE clause so private rows never leave the database.
func (r *SchematicRepositoryImpl) Search(keyword string, caller *policy.Caller) ([]models.Schematic, error) {
	query := r.db.Scopes(policy.VisibilityScope(caller)).Order("created_at DESC")
	if keyword != "" {
		query = query.Where("name ILIKE ?", searchPattern(keyword))
	}
	var schematics []models.Schematic
	err := query.Find(&schematics).Error
	return schematics, err
}

// Update saves all mutable fields of an existing Schematic.
func (r *SchematicRepositoryImpl) Update(schematic *models.Schematic) error {
	return r.db.Save(schematic).Error
}

// Delete removes a Schematic row by its ID.
func (r *SchematicRepositoryImpl) Delete(id uint) error {
	return r.db.Delete(&models.Schematic{}, "id = ?", id).Error
}

// likeEscaper neutralizes LIKE wildcards so a keyword is always matched as a
// literal substring.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func searchPattern(keyword string) string {
	return "%" + likeEscaper.Replace(keyword) + "%"
}
