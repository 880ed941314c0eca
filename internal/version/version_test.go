package version

import "testing"

func TestString(t *testing.T) {
	cases := []struct {
		name    string
		version string
		commit  string
		want    string
	}{
		{"untagged", "", "", "dev"},
		{"tagged", "v1.2.0", "", "v1.2.0"},
		{"short commit", "v1.2.0", "abc123", "v1.2.0 (abc123)"},
		{"long commit truncated", "v1.2.0", "0123456789abcdef", "v1.2.0 (0123456789ab)"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			Version, Commit = tc.version, tc.commit
			t.Cleanup(func() { Version, Commit = "", "" })
			if got := String(); got != tc.want {
				t.Fatalf("String() = %q, want %q", got, tc.want)
			}
		})
	}
}
