package blockfs

import "testing"

func TestToShortName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"customers", "CUSTOMER"},
		{"orders", "ORDERS"},
		{"a.b/c d", "ABCD"},
		{"", ""},
	}

	for _, tc := range cases {
		got := ToShortName(tc.in)
		if got != tc.want {
			t.Errorf("ToShortName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestLoadPath(t *testing.T) {
	path, err := LoadPath("orders", "/data", "tbl")
	if err != nil {
		t.Fatalf("LoadPath returned error: %v", err)
	}
	want := "/data/ORDERS.tbl"
	if path != want {
		t.Errorf("LoadPath = %q, want %q", path, want)
	}
}

func TestLoadPathNeutralizesTraversal(t *testing.T) {
	path, err := LoadPath("../../etc/passwd", "/data", "tbl")
	// ToShortName strips dots and slashes before joining, so traversal
	// characters never reach SecureJoin in the first place.
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := "/data/ETCPASSW.tbl"; path != want {
		t.Errorf("LoadPath = %q, want %q", path, want)
	}
}
