package policy

import (
	"testing"

	"schematic-service/internal/models"
)

func TestCanRead_PublicRecord(t *testing.T) {
	record := &models.Schematic{ID: 1, OwnerID: 7, IsPublic: true}

	callers := []*Caller{
		nil,
		{ID: 7, Role: "user"},
		{ID: 8, Role: "user"},
		{ID: 9, Role: RoleAdmin},
	}
	for _, caller := range callers {
		if !CanRead(caller, record) {
			t.Errorf("CanRead(%+v, public) = false, want true", caller)
		}
	}
}

func TestCanRead_PrivateRecord(t *testing.T) {
	record := &models.Schematic{ID: 1, OwnerID: 7, IsPublic: false}

	cases := []struct {
		name   string
		caller *Caller
		want   bool
	}{
		{"anonymous", nil, false},
		{"owner", &Caller{ID: 7, Role: "user"}, true},
		{"stranger", &Caller{ID: 8, Role: "user"}, false},
		{"admin", &Caller{ID: 9, Role: RoleAdmin}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanRead(tc.caller, record); got != tc.want {
				t.Errorf("CanRead = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestCanWrite(t *testing.T) {
	record := &models.Schematic{ID: 1, OwnerID: 7, IsPublic: true}

	cases := []struct {
		name   string
		caller *Caller
		want   bool
	}{
		{"anonymous", nil, false},
		{"owner", &Caller{ID: 7, Role: "user"}, true},
		{"stranger on public record", &Caller{ID: 8, Role: "user"}, false},
		{"admin", &Caller{ID: 9, Role: RoleAdmin}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := CanWrite(tc.caller, record); got != tc.want {
				t.Errorf("CanWrite = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestIsAdmin_NilCaller(t *testing.T) {
	var caller *Caller
	if caller.IsAdmin() {
		t.Error("nil caller reported as admin")
	}
}
