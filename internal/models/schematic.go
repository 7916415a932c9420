package models

import (
	"encoding/json"
	"strings"
	"time"
)

// Schematic represents the metadata of a processed structure file stored in
// the database. All artifact paths are stored relative to the storage root so
// the table stays portable across deployment roots.
type Schematic struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Name          string    `json:"name"`
	OwnerID       uint      `json:"owner_id"`
	IsPublic      bool      `json:"is_public"`
	FilePath      string    `json:"file_path"`
	FrontViewPath string    `json:"front_view_path"`
	SideViewPath  string    `json:"side_view_path"`
	TopViewPath   string    `json:"top_view_path"`
	Materials     string    `gorm:"type:text" json:"-"`
	CreatedAt     time.Time `json:"created_at"`
}

// MaterialTally maps a block-type identifier to the number of blocks required.
type MaterialTally map[string]int

// MaterialsSource is the tagged form of the materials column. Newer rows carry
// the tally inline as JSON text; legacy rows hold a storage-relative path to a
// materials file. Exactly one of the two is meaningful.
type MaterialsSource struct {
	Inline  MaterialTally
	FileRef string
}

// IsInline reports whether the source carries the tally itself.
func (m MaterialsSource) IsInline() bool {
	return m.FileRef == ""
}

// MaterialsSource classifies the stored materials column without touching the
// filesystem. Unparseable inline content degrades to an empty tally rather
// than an error.
func (s *Schematic) MaterialsSource() MaterialsSource {
	raw := strings.TrimSpace(s.Materials)
	if raw == "" {
		return MaterialsSource{Inline: MaterialTally{}}
	}
	if strings.HasPrefix(raw, "{") {
		var tally MaterialTally
		if err := json.Unmarshal([]byte(raw), &tally); err != nil {
			return MaterialsSource{Inline: MaterialTally{}}
		}
		if tally == nil {
			tally = MaterialTally{}
		}
		return MaterialsSource{Inline: tally}
	}
	return MaterialsSource{FileRef: raw}
}
