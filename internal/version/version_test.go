package version

import "testing"

func TestString(t *testing.T) {
	saved := [3]string{Version, GitCommit, BuildDate}
	t.Cleanup(func() { Version, GitCommit, BuildDate = saved[0], saved[1], saved[2] })

	tests := []struct {
		version, commit, date string
		want                  string
	}{
		{"dev", "unknown", "unknown", "dev"},
		{"1.2.0", "3f9a1c2e7b", "2026-10-01", "1.2.0 (3f9a1c2, built 2026-10-01)"},
		{"1.2.1", "abc", "2026-10-02", "1.2.1 (abc, built 2026-10-02)"},
	}
	for _, tt := range tests {
		Version, GitCommit, BuildDate = tt.version, tt.commit, tt.date
		if got := String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestGet(t *testing.T) {
	info := Get()
	if info.GoVersion == "" || info.Platform == "" {
		t.Errorf("Get() = %+v", info)
	}
}
