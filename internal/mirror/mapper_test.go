package mirror

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nao1215/pagemirror/internal/model"
)

func TestMapperMap(t *testing.T) {
	t.Parallel()

	root := filepath.Join("out", "page")
	m := NewMapper(root)

	tests := []struct {
		name string
		url  model.NormalizedURL
		want string
	}{
		{name: "root", url: "https://site.test/", want: "site.test/@index@"},
		{name: "no path", url: "https://site.test", want: "site.test/@index@"},
		{name: "plain file", url: "https://site.test/css/site.css", want: "site.test/css/site.css"},
		{name: "query hashed into name", url: "https://site.test/css/site.css?v=2", want: "site.test/css/site@" + queryHash("v=2") + ".css"},
		{name: "extensionless", url: "https://site.test/api/data", want: "site.test/api/data@"},
		{name: "extensionless with query", url: "https://site.test/api/data?x=1", want: "site.test/api/data@" + queryHash("x=1") + "@"},
		{name: "directory", url: "https://site.test/dir/", want: "site.test/dir/@index@"},
		{name: "directory with query", url: "https://site.test/dir/?q=a", want: "site.test/dir/@index@" + queryHash("q=a") + "@"},
		{name: "literal index file", url: "https://site.test/dir/index.html", want: "site.test/dir/index%2Ehtml"},
		{name: "literal index file with query", url: "https://site.test/dir/index.html?v=1", want: "site.test/dir/index%2Ehtml@" + queryHash("v=1") + ".html"},
		{name: "non default port", url: "http://site.test:8080/a.js", want: "site.test+8080/a.js"},
		{name: "reserved character escaped", url: "https://site.test/a%3Fb.css", want: "site.test/a%3Fb.css"},
		{name: "encoded slash stays in one segment", url: "https://site.test/a%2Fb/c.js", want: "site.test/a%2Fb/c.js"},
		{name: "marker character escaped", url: "https://site.test/user@x.png", want: "site.test/user%40x.png"},
		{name: "unicode kept", url: "https://site.test/caf%C3%A9.png", want: "site.test/café.png"},
		{name: "dotfile is extensionless", url: "https://site.test/.well-known/x", want: "site.test/.well-known/x@"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := m.Map(tt.url)
			if err != nil {
				t.Fatalf("Map(%q) error: %v", tt.url, err)
			}
			want := filepath.Join(root, filepath.FromSlash(tt.want))
			if got != want {
				t.Errorf("Map(%q) = %q, expected %q", tt.url, got, want)
			}
		})
	}
}

func TestMapperMapPage(t *testing.T) {
	t.Parallel()

	m := NewMapper("page")

	tests := []struct {
		url  model.NormalizedURL
		want string
	}{
		{url: "https://site.test/en_us/ids", want: "site.test/en_us/ids/index.html"},
		{url: "https://site.test/en_us/ids/", want: "site.test/en_us/ids/index.html"},
		{url: "https://site.test/", want: "site.test/index.html"},
		{url: "https://site.test/about.html", want: "site.test/about.html"},
		{url: "https://site.test/dir/index.html", want: "site.test/dir/index.html"},
		{url: "https://site.test/en_us/ids?tab=2", want: "site.test/en_us/ids/index@" + queryHash("tab=2") + ".html"},
	}

	for _, tt := range tests {
		got, err := m.MapPage(tt.url)
		if err != nil {
			t.Fatalf("MapPage(%q) error: %v", tt.url, err)
		}
		want := filepath.Join("page", filepath.FromSlash(tt.want))
		if got != want {
			t.Errorf("MapPage(%q) = %q, expected %q", tt.url, got, want)
		}
	}
}

func TestMapperErrors(t *testing.T) {
	t.Parallel()

	m := NewMapper("page")

	t.Run("dot dot segment", func(t *testing.T) {
		t.Parallel()

		for _, u := range []model.NormalizedURL{
			"https://site.test/../x.css",
			"https://site.test/a/%2E%2E/b.css",
			"https://site.test/a/..",
			"https://site.test/./x.css",
		} {
			if _, err := m.Map(u); !errors.Is(err, ErrPathTraversal) {
				t.Errorf("Map(%q) error = %v, expected ErrPathTraversal", u, err)
			}
		}
	})

	t.Run("no host", func(t *testing.T) {
		t.Parallel()

		if _, err := m.Map("not a url"); !errors.Is(err, ErrUnmappable) {
			t.Errorf("expected ErrUnmappable, got %v", err)
		}
	})

	t.Run("unparseable", func(t *testing.T) {
		t.Parallel()

		if _, err := m.Map("http://[::1"); !errors.Is(err, ErrUnmappable) {
			t.Errorf("expected ErrUnmappable, got %v", err)
		}
	})
}

func TestMapperUniqueAndPure(t *testing.T) {
	t.Parallel()

	m := NewMapper("page")
	urls := []model.NormalizedURL{
		"https://site.test/a",
		"https://site.test/a/",
		"https://site.test/a/index.html",
		"https://site.test/a?x",
		"https://site.test/a?y",
		"https://site.test/a%40",
		"https://site.test/a.css",
		"https://site.test/a.css?v=1",
		"https://site.test/a%40" + model.NormalizedURL(queryHash("v=1")) + ".css",
		"https://site.test/a/b",
		"https://site.test/a%2Fb",
		"https://site.test/index%252Ehtml",
		"https://site.test/index.html",
		"https://site.test/",
		"https://site.test/dir/?v=1",
		"https://site.test/dir/index.html?v=1",
		"https://site.test/dir/index?v=1",
		"https://site.test/index%2540",
		"http://site.test:8080/a",
		"https://other.test/a",
	}

	seen := make(map[string]model.NormalizedURL, len(urls))
	for _, u := range urls {
		first, err := m.Map(u)
		if err != nil {
			t.Fatalf("Map(%q) error: %v", u, err)
		}
		second, err := m.Map(u)
		if err != nil {
			t.Fatalf("Map(%q) error: %v", u, err)
		}
		if first != second {
			t.Errorf("Map(%q) is not pure: %q then %q", u, first, second)
		}
		if prev, ok := seen[first]; ok {
			t.Errorf("Map(%q) and Map(%q) both produce %q", prev, u, first)
		}
		seen[first] = u

		if !strings.HasPrefix(first, "page"+string(filepath.Separator)) {
			t.Errorf("Map(%q) = %q is outside the root", u, first)
		}
	}
}

func TestMapperPagesAndAssetsDoNotOverlap(t *testing.T) {
	t.Parallel()

	m := NewMapper("page")
	pages := []model.NormalizedURL{
		"https://site.test/foo",
		"https://site.test/foo?tab=2",
		"https://site.test/",
		"https://site.test/about.html",
	}
	assets := []model.NormalizedURL{
		"https://site.test/foo/",
		"https://site.test/foo/?tab=2",
		"https://site.test/foo/index.html",
		"https://site.test/foo/index.html?tab=2",
		"https://site.test/index.html",
		"https://site.test/",
		"https://site.test/about.html",
	}

	pagePaths := make(map[string]model.NormalizedURL, len(pages))
	for _, u := range pages {
		p, err := m.MapPage(u)
		if err != nil {
			t.Fatalf("MapPage(%q) error: %v", u, err)
		}
		pagePaths[p] = u
	}
	for _, u := range assets {
		p, err := m.Map(u)
		if err != nil {
			t.Fatalf("Map(%q) error: %v", u, err)
		}
		if page, ok := pagePaths[p]; ok && page != u {
			t.Errorf("page %q and asset %q both map to %q", page, u, p)
		}
	}
}

func TestPendingExtension(t *testing.T) {
	t.Parallel()

	t.Run("with ext completes pending paths only", func(t *testing.T) {
		t.Parallel()

		if got := WithExt("data@", ".json"); got != "data@.json" {
			t.Errorf("WithExt() = %q", got)
		}
		if got := WithExt("data@", ""); got != "data@" {
			t.Errorf("WithExt() = %q", got)
		}
		if got := WithExt("site.css", ".css"); got != "site.css" {
			t.Errorf("WithExt() = %q", got)
		}
	})

	t.Run("existing finds completed names", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		completed := filepath.Join(dir, "data@.json")
		if err := os.WriteFile(completed, []byte("{}"), 0o600); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(filepath.Join(dir, ".other@.part-1"), nil, 0o600); err != nil {
			t.Fatal(err)
		}

		got, ok := Existing(filepath.Join(dir, "data@"))
		if !ok || got != completed {
			t.Errorf("Existing() = %q, %v; expected %q", got, ok, completed)
		}
		if _, ok := Existing(filepath.Join(dir, "other@")); ok {
			t.Error("temporary files must not count as existing")
		}
		if _, ok := Existing(filepath.Join(dir, "missing.css")); ok {
			t.Error("expected missing file to be absent")
		}
		if got, ok := Existing(completed); !ok || got != completed {
			t.Errorf("Existing(%q) = %q, %v", completed, got, ok)
		}
	})
}

func TestExtensionForType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		contentType string
		want        string
	}{
		{contentType: "text/css; charset=utf-8", want: ".css"},
		{contentType: "application/json", want: ".json"},
		{contentType: "image/jpeg", want: ".jpg"},
		{contentType: "TEXT/JAVASCRIPT", want: ".js"},
		{contentType: "application/octet-stream", want: ""},
		{contentType: "", want: ""},
		{contentType: "x-unknown/thing", want: ""},
	}

	for _, tt := range tests {
		if got := ExtensionForType(tt.contentType); got != tt.want {
			t.Errorf("ExtensionForType(%q) = %q, expected %q", tt.contentType, got, tt.want)
		}
	}
}

func TestRelativeRef(t *testing.T) {
	t.Parallel()

	page := filepath.Join("page", "site.test", "en_us", "ids", "index.html")

	tests := []struct {
		to   string
		want string
	}{
		{to: filepath.Join("page", "cdn.example", "site.css"), want: "../../../cdn.example/site.css"},
		{to: filepath.Join("page", "site.test", "en_us", "ids", "a.png"), want: "a.png"},
		{to: filepath.Join("page", "site.test", "a%3Fb.css"), want: "../../a%253Fb.css"},
		{to: filepath.Join("page", "site.test", "api", "data@.json"), want: "../../api/data@.json"},
	}

	for _, tt := range tests {
		got, err := RelativeRef(page, tt.to)
		if err != nil {
			t.Fatalf("RelativeRef(%q) error: %v", tt.to, err)
		}
		if got != tt.want {
			t.Errorf("RelativeRef(%q) = %q, expected %q", tt.to, got, tt.want)
		}
	}
}
