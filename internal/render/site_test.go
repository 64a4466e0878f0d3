package render

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func TestSiteRendersTree(t *testing.T) {
	source := t.TempDir()
	outDir := t.TempDir()
	writeFile(t, filepath.Join(source, "index.md"), "# Hello\n\nSome *markdown*.\n")
	writeFile(t, filepath.Join(source, "guide", "setup.markdown"), "## Setup\n")
	writeFile(t, filepath.Join(source, "logo.svg"), "<svg/>")

	site := NewSite(source, outDir, false)
	if err := site.Render(context.Background()); err != nil {
		t.Fatalf("render: %v", err)
	}

	index, err := os.ReadFile(filepath.Join(outDir, "index.html"))
	if err != nil {
		t.Fatalf("read index.html: %v", err)
	}
	html := string(index)
	if !strings.Contains(html, "<h1 id=\"hello\">Hello</h1>") {
		t.Fatalf("expected rendered heading, got: %s", html)
	}
	if !strings.Contains(html, "<em>markdown</em>") {
		t.Fatalf("expected rendered emphasis, got: %s", html)
	}
	if strings.Contains(html, "WebSocket") {
		t.Fatal("live reload script must be absent when disabled")
	}

	if _, err := os.Stat(filepath.Join(outDir, "guide", "setup.html")); err != nil {
		t.Fatalf("expected nested page: %v", err)
	}
	logo, err := os.ReadFile(filepath.Join(outDir, "logo.svg"))
	if err != nil {
		t.Fatalf("expected asset copy: %v", err)
	}
	if string(logo) != "<svg/>" {
		t.Fatalf("asset content mangled: %q", logo)
	}
}

func TestSiteRendersSingleFile(t *testing.T) {
	source := filepath.Join(t.TempDir(), "doc.md")
	writeFile(t, source, "# Single\n")
	outDir := t.TempDir()

	site := NewSite(source, outDir, false)
	if err := site.Render(context.Background()); err != nil {
		t.Fatalf("render: %v", err)
	}

	html, err := os.ReadFile(filepath.Join(outDir, "doc.html"))
	if err != nil {
		t.Fatalf("read doc.html: %v", err)
	}
	if !strings.Contains(string(html), "Single") {
		t.Fatalf("expected rendered content, got: %s", html)
	}
	if !strings.Contains(string(html), "<title>doc</title>") {
		t.Fatalf("expected title from file name, got: %s", html)
	}
}

func TestSiteInjectsReloadScript(t *testing.T) {
	source := t.TempDir()
	writeFile(t, filepath.Join(source, "doc.md"), "hi\n")

	outDir := t.TempDir()
	site := NewSite(source, outDir, true)
	if err := site.Render(context.Background()); err != nil {
		t.Fatalf("render: %v", err)
	}

	html, err := os.ReadFile(filepath.Join(outDir, "doc.html"))
	if err != nil {
		t.Fatalf("read doc.html: %v", err)
	}
	if !strings.Contains(string(html), "new WebSocket") {
		t.Fatal("expected live reload script in page")
	}
}

func TestSiteSkipsUnchangedFiles(t *testing.T) {
	source := t.TempDir()
	path := filepath.Join(source, "doc.md")
	writeFile(t, path, "# v1\n")

	outDir := t.TempDir()
	site := NewSite(source, outDir, false)
	if err := site.Render(context.Background()); err != nil {
		t.Fatalf("render: %v", err)
	}

	outPath := filepath.Join(outDir, "doc.html")
	first, err := os.Stat(outPath)
	if err != nil {
		t.Fatalf("stat output: %v", err)
	}

	// Second render with identical content must not rewrite the page.
	if err := site.Render(context.Background()); err != nil {
		t.Fatalf("re-render: %v", err)
	}
	second, err := os.Stat(outPath)
	if err != nil {
		t.Fatalf("stat output: %v", err)
	}
	if !second.ModTime().Equal(first.ModTime()) {
		t.Fatal("unchanged file was rewritten")
	}

	// Changed content must be picked up.
	writeFile(t, path, "# v2\n")
	if err := site.Render(context.Background()); err != nil {
		t.Fatalf("re-render: %v", err)
	}
	html, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !strings.Contains(string(html), "v2") {
		t.Fatalf("expected updated content, got: %s", html)
	}
}

func TestSiteRewritesWhenOutputMissing(t *testing.T) {
	source := t.TempDir()
	writeFile(t, filepath.Join(source, "doc.md"), "# v1\n")

	outDir := t.TempDir()
	site := NewSite(source, outDir, false)
	if err := site.Render(context.Background()); err != nil {
		t.Fatalf("render: %v", err)
	}

	outPath := filepath.Join(outDir, "doc.html")
	if err := os.Remove(outPath); err != nil {
		t.Fatalf("remove output: %v", err)
	}

	// Hash still matches, but the page is gone; it must come back.
	if err := site.Render(context.Background()); err != nil {
		t.Fatalf("re-render: %v", err)
	}
	if _, err := os.Stat(outPath); err != nil {
		t.Fatalf("expected output regenerated: %v", err)
	}
}

func TestSiteSkipsOutputDirInsideSource(t *testing.T) {
	source := t.TempDir()
	writeFile(t, filepath.Join(source, "doc.md"), "# hi\n")
	outDir := filepath.Join(source, "public")

	site := NewSite(source, outDir, false)
	if err := site.Render(context.Background()); err != nil {
		t.Fatalf("render: %v", err)
	}
	// A second render must not treat the first render's HTML as input.
	if err := site.Render(context.Background()); err != nil {
		t.Fatalf("re-render: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outDir, "public")); !os.IsNotExist(err) {
		t.Fatal("output dir was re-rendered into itself")
	}
}

func TestSiteSkipsHiddenEntries(t *testing.T) {
	source := t.TempDir()
	writeFile(t, filepath.Join(source, ".git", "config.md"), "internal\n")
	writeFile(t, filepath.Join(source, ".hidden.md"), "hidden\n")
	writeFile(t, filepath.Join(source, "doc.md"), "visible\n")

	outDir := t.TempDir()
	site := NewSite(source, outDir, false)
	if err := site.Render(context.Background()); err != nil {
		t.Fatalf("render: %v", err)
	}

	if _, err := os.Stat(filepath.Join(outDir, ".git")); !os.IsNotExist(err) {
		t.Fatal("hidden directory must not be rendered")
	}
	if _, err := os.Stat(filepath.Join(outDir, ".hidden.html")); !os.IsNotExist(err) {
		t.Fatal("hidden file must not be rendered")
	}
	if _, err := os.Stat(filepath.Join(outDir, "doc.html")); err != nil {
		t.Fatalf("visible file must be rendered: %v", err)
	}
}

func TestSiteMissingSource(t *testing.T) {
	site := NewSite(filepath.Join(t.TempDir(), "gone"), t.TempDir(), false)
	if err := site.Render(context.Background()); err == nil {
		t.Fatal("expected error for missing source")
	}
}

func TestIsMarkdown(t *testing.T) {
	tests := []struct {
		path string
		want bool
	}{
		{path: "doc.md", want: true},
		{path: "doc.MD", want: true},
		{path: "doc.markdown", want: true},
		{path: "doc.txt", want: false},
		{path: "md", want: false},
	}
	for _, tt := range tests {
		if got := isMarkdown(tt.path); got != tt.want {
			t.Errorf("isMarkdown(%q): got %v, want %v", tt.path, got, tt.want)
		}
	}
}
