package normalize

import (
	"testing"
)

// =============================================================================
// CANONICALIZATION TESTS
// =============================================================================

func TestCanonical(t *testing.T) {
	cases := []struct {
		raw  string
		want string
	}{
		{"01-A-015-C", "01-A-015-C"},
		{"1-A-15-C", "01-A-015-C"},
		{"1-a-15c", "01-A-015-C"},
		{"  recv-01  ", "RECV-01"},
		{"recv_01", "RECV-01"},
		{"AISLE  02", "AISLE-02"},
		{"WH_RECV-01", "RECV-01"},
		{"DEFAULT_STAGE-1", "STAGE-1"},
		{"USER_AB12_01-A-001-A", "01-A-001-A"},
		{"A--01---001", "A-01-001"},
		{"", ""},
		{"ZZZ", "ZZZ"},
		{"03-A-001-A", "03-A-001-A"},
		{"2-B-7-D", "02-B-007-D"},
	}
	for _, tc := range cases {
		if got := Canonical(tc.raw); got != tc.want {
			t.Errorf("Canonical(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestCanonicalIdempotent(t *testing.T) {
	samples := []string{
		"01-A-015-C", "1-a-15c", "WH_RECV-01", "USER_X9_dock_2", "  junk  ",
		"DEFAULT_WH_01", "A__B  C", "99-Z-999-Z", "recv-01", "WH_WH_01",
	}
	for _, s := range samples {
		once := Canonical(s)
		twice := Canonical(once)
		if once != twice {
			t.Errorf("Canonical not idempotent for %q: %q != %q", s, once, twice)
		}
	}
}

func TestCanonicalStripsPrefixOnce(t *testing.T) {
	// WH_WH_01 strips one WH_ and keeps the rest; the dash form that comes
	// out must survive a second pass untouched.
	got := Canonical("WH_WH_01")
	if got != "WH-01" {
		t.Fatalf("Canonical(WH_WH_01) = %q, want WH-01", got)
	}
	if again := Canonical(got); again != got {
		t.Errorf("second pass changed %q to %q", got, again)
	}
}

// =============================================================================
// GLOB TESTS
// =============================================================================

func TestGlob(t *testing.T) {
	cases := []struct {
		pattern string
		code    string
		want    bool
	}{
		{"RECV-*", "RECV-01", true},
		{"RECV-*", "RECV-", true},
		{"RECV-*", "DOCK-01", false},
		{"*", "ANYTHING", true},
		{"*", "", true},
		{"?1-A-*", "01-A-015-C", true},
		{"0?-A-*", "01-B-015-C", false},
		{"[0-9][0-9]-A-*", "01-A-015-C", true},
		{"[0-9][0-9]-A-*", "0X-A-015-C", false},
		{"[^0-9]*", "RECV", true},
		{"[!0-9]*", "9RECV", false},
		{"*FROZEN*", "XX FROZEN CHICKEN", true},
		{"*FROZEN*", "FRESH CHICKEN", false},
		{"A-01", "A-01", true},
		{"A-01", "A-012", false},
		{"A-0[12]", "A-02", true},
		// unterminated class matches nothing
		{"A-[0", "A-0", false},
	}
	for _, tc := range cases {
		if got := Glob(tc.pattern, tc.code); got != tc.want {
			t.Errorf("Glob(%q, %q) = %v, want %v", tc.pattern, tc.code, got, tc.want)
		}
	}
}

func TestSpecificity(t *testing.T) {
	cases := []struct {
		pattern string
		want    int
	}{
		{"RECV-*", 5},
		{"*", 0},
		{"RECV-0?", 6},
		{"[0-9]-A", 3},
		{"RECV-01", 7},
	}
	for _, tc := range cases {
		if got := Specificity(tc.pattern); got != tc.want {
			t.Errorf("Specificity(%q) = %d, want %d", tc.pattern, got, tc.want)
		}
	}
}

func TestParseStorage(t *testing.T) {
	aisle, rack, pos, level, ok := ParseStorage("03-A-001-A")
	if !ok {
		t.Fatal("expected storage shape")
	}
	if aisle != 3 || rack != "A" || pos != 1 || level != "A" {
		t.Errorf("got %d %s %d %s", aisle, rack, pos, level)
	}
	if _, _, _, _, ok := ParseStorage("RECV-01"); ok {
		t.Error("RECV-01 should not parse as storage")
	}
}
