package models

import "testing"

func TestMaterialsSource_Inline(t *testing.T) {
	s := &Schematic{Materials: `{"minecraft:stone": 64, "minecraft:glass": 12}`}
	source := s.MaterialsSource()
	if !source.IsInline() {
		t.Fatal("inline JSON classified as file reference")
	}
	if source.Inline["minecraft:stone"] != 64 || source.Inline["minecraft:glass"] != 12 {
		t.Errorf("tally = %v", source.Inline)
	}
}

func TestMaterialsSource_EmptyColumn(t *testing.T) {
	s := &Schematic{}
	source := s.MaterialsSource()
	if !source.IsInline() {
		t.Fatal("empty column classified as file reference")
	}
	if len(source.Inline) != 0 {
		t.Errorf("tally = %v, want empty", source.Inline)
	}
}

func TestMaterialsSource_GarbageJSONDegradesToEmpty(t *testing.T) {
	s := &Schematic{Materials: `{"minecraft:stone": not-a-number}`}
	source := s.MaterialsSource()
	if !source.IsInline() {
		t.Fatal("brace-prefixed garbage classified as file reference")
	}
	if len(source.Inline) != 0 {
		t.Errorf("tally = %v, want empty", source.Inline)
	}
}

func TestMaterialsSource_LegacyFileReference(t *testing.T) {
	s := &Schematic{Materials: "processed/1712/materials.json"}
	source := s.MaterialsSource()
	if source.IsInline() {
		t.Fatal("file reference classified as inline")
	}
	if source.FileRef != "processed/1712/materials.json" {
		t.Errorf("FileRef = %q", source.FileRef)
	}
}

func TestMaterialsSource_NullLiteralYieldsEmptyTally(t *testing.T) {
	s := &Schematic{Materials: "{}"}
	source := s.MaterialsSource()
	if !source.IsInline() || source.Inline == nil {
		t.Fatalf("source = %+v, want non-nil empty inline tally", source)
	}
}
