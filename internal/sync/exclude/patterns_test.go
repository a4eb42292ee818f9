package exclude

import "testing"

func TestMatcher_IsExcluded(t *testing.T) {
	m := New([]string{
		"node_modules/",
		"build/out/",
		"*.tmp",
		"docs/*.md",
		".DS_Store",
		"# comment",
		"  ",
	})

	tests := []struct {
		path  string
		isDir bool
		want  bool
	}{
		{"node_modules", true, true},
		{"web/node_modules", true, true},
		{"node_modules", false, false},
		{"build/out", true, true},
		{"other/build/out", true, false},
		{"a.tmp", false, true},
		{"deep/nested/b.tmp", false, true},
		{"docs/readme.md", false, true},
		{"readme.md", false, false},
		{".DS_Store", false, true},
		{"photos/.DS_Store", false, true},
		{"photos/cat.jpg", false, false},
		{"# comment", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			if got := m.IsExcluded(tt.path, tt.isDir); got != tt.want {
				t.Errorf("IsExcluded(%q, %v) = %v, want %v", tt.path, tt.isDir, got, tt.want)
			}
		})
	}
}

func TestMatcher_NilAndEmpty(t *testing.T) {
	var m *Matcher
	if m.IsExcluded("anything", false) {
		t.Error("nil matcher must exclude nothing")
	}
	if New(nil).IsExcluded(".git", true) {
		t.Error("empty matcher must exclude nothing")
	}
}

func TestMatcher_With(t *testing.T) {
	m := New([]string{"*.tmp"}).With(".memora/index.db", "")

	if !m.IsExcluded(".memora/index.db", false) {
		t.Error("literal path should be excluded")
	}
	if m.IsExcluded("other/.memora/index.db", false) {
		t.Error("literal path must be anchored to the root")
	}
	if !m.IsExcluded("x.tmp", false) {
		t.Error("original patterns must be kept")
	}
	if got := len(m.Patterns()); got != 2 {
		t.Errorf("Patterns() has %d entries, want 2", got)
	}

	var nilMatcher *Matcher
	if !nilMatcher.With("a").IsExcluded("a", false) {
		t.Error("With on nil matcher should still exclude the path")
	}
}
