package repository

import "testing"

func TestSearchPattern_EscapesWildcards(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"castle", "%castle%"},
		{"100%", `%100\%%`},
		{"a_b", `%a\_b%`},
		{`back\slash`, `%back\\slash%`},
		{"", "%%"},
	}
	for _, tc := range cases {
		if got := searchPattern(tc.in); got != tc.want {
			t.Errorf("searchPattern(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
