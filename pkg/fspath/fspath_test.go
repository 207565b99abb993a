package fspath

import "testing"

func TestClean(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/", "/"},
		{"", "/"},
		{"/a/b", "/a/b"},
		{"/a//b", "/a/b"},
		{"/a/b/", "/a/b"},
		{"/a/./b", "/a/b"},
		{"/a/../b", "/b"},
		{"/a/b/../..", "/"},
		{"/../a", "/a"},
		{"///", "/"},
		{"/a/b/c/..", "/a/b"},
	}

	for _, tt := range tests {
		if got := Clean(tt.in); got != tt.want {
			t.Errorf("Clean(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNormalizeRejectsRelative(t *testing.T) {
	for _, p := range []string{"", "a/b", "./a", "../a"} {
		if _, err := Normalize(p); err == nil {
			t.Errorf("Normalize(%q) should fail", p)
		}
	}

	got, err := Normalize("/a//b/")
	if err != nil {
		t.Fatalf("Normalize failed: %v", err)
	}
	if got != "/a/b" {
		t.Errorf("Normalize = %q, want /a/b", got)
	}
}

func TestBaseParentJoin(t *testing.T) {
	if Base("/a/b.txt") != "b.txt" {
		t.Errorf("Base = %q", Base("/a/b.txt"))
	}
	if Base("/") != "/" {
		t.Errorf("Base(/) = %q", Base("/"))
	}
	if Parent("/a/b/c") != "/a/b" {
		t.Errorf("Parent = %q", Parent("/a/b/c"))
	}
	if Parent("/a") != "/" {
		t.Errorf("Parent(/a) = %q", Parent("/a"))
	}
	if Join("/", "a") != "/a" {
		t.Errorf("Join(/, a) = %q", Join("/", "a"))
	}
	if Join("/a", "b") != "/a/b" {
		t.Errorf("Join(/a, b) = %q", Join("/a", "b"))
	}
}

func TestGlobMatch(t *testing.T) {
	tests := []struct {
		pattern string
		path    string
		want    bool
	}{
		// single star: immediate children only
		{"/a/*", "/a/b", true},
		{"/a/*", "/a/b/c", false},
		{"/a/*", "/a", false},
		{"/a/*.txt", "/a/file.txt", true},
		{"/a/*.txt", "/a/file.log", false},

		// trailing /**: self or any descendant
		{"/a/**", "/a", true},
		{"/a/**", "/a/b", true},
		{"/a/**", "/a/b/c", true},
		{"/a/**", "/ab", false},
		{"/a/**", "/b", false},

		// **/ mid-pattern: zero or more segments
		{"/a/**/z", "/a/z", true},
		{"/a/**/z", "/a/b/z", true},
		{"/a/**/z", "/a/b/c/z", true},
		{"/a/**/z", "/a/zz", false},

		// bare ** spans separators
		{"/**", "/", true},
		{"/**", "/anything/at/all", true},

		// no wildcards: exact match
		{"/exact", "/exact", true},
		{"/exact", "/exact/child", false},
	}

	cache := NewCache()
	for _, tt := range tests {
		if got := cache.Match(tt.pattern, tt.path); got != tt.want {
			t.Errorf("Match(%q, %q) = %v, want %v", tt.pattern, tt.path, got, tt.want)
		}
	}
}

func TestCacheReuse(t *testing.T) {
	cache := NewCache()
	for i := 0; i < 5; i++ {
		cache.Match("/a/**", "/a/b")
	}
	if cache.Len() != 1 {
		t.Errorf("cache.Len() = %d, want 1", cache.Len())
	}

	m1, _ := cache.Get("/a/**")
	m2, _ := cache.Get("/a/**")
	if m1 != m2 {
		t.Error("Get should return the cached matcher instance")
	}
}

func TestIsPattern(t *testing.T) {
	if IsPattern("/a/b") {
		t.Error("plain path flagged as pattern")
	}
	if !IsPattern("/a/*") || !IsPattern("/a/**") {
		t.Error("wildcard path not flagged as pattern")
	}
}
