// site.go renders a markdown tree to static HTML.
//
// Every .md/.markdown file under the source maps to an .html file at the
// same relative path under the output directory; anything else is copied
// through untouched so images and stylesheets keep working. Conversions
// are cached by an xxhash of the source bytes, so a watch-triggered
// re-render only rewrites the files that actually changed.
package render

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/parser"

	"github.com/treykane/mdwatch/internal/logging"
)

// reloadScript is injected into every page when live reload is enabled.
// It listens on the preview server's /ws endpoint and reloads the page
// whenever a render completes.
const reloadScript = `<script>
(function () {
  var proto = location.protocol === "https:" ? "wss://" : "ws://";
  var sock = new WebSocket(proto + location.host + "/ws");
  sock.onmessage = function (ev) {
    var msg = JSON.parse(ev.data);
    if (msg.type === "reload") location.reload();
  };
})();
</script>`

var pageTemplate = template.Must(template.New("page").Parse(`<!doctype html>
<html>
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>{{.Title}}</title>
<style>
body { max-width: 52rem; margin: 2rem auto; padding: 0 1rem; font-family: system-ui, sans-serif; line-height: 1.6; }
pre { background: #f6f8fa; padding: 1rem; overflow-x: auto; }
code { font-family: ui-monospace, monospace; }
img { max-width: 100%; }
</style>
</head>
<body>
{{.Body}}{{.Reload}}
</body>
</html>
`))

// Site converts a markdown file or tree into HTML under OutDir.
type Site struct {
	source     string
	outDir     string
	liveReload bool
	md         goldmark.Markdown
	log        *slog.Logger

	mu     sync.Mutex
	hashes map[string]uint64 // relative source path -> xxhash of last converted bytes
}

// NewSite returns a site renderer for source writing into outDir. When
// liveReload is true every generated page includes the reload script
// served by the preview server.
func NewSite(source, outDir string, liveReload bool) *Site {
	return &Site{
		source:     source,
		outDir:     outDir,
		liveReload: liveReload,
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithParserOptions(parser.WithAutoHeadingID()),
		),
		log:    logging.New("render"),
		hashes: make(map[string]uint64),
	}
}

// Render walks the source and regenerates the output directory. It stops
// at the first failure; the watch loop logs the error and keeps ticking.
func (s *Site) Render(ctx context.Context) error {
	info, err := os.Stat(s.source)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	if !info.IsDir() {
		return s.renderFile(s.source, filepath.Base(s.source))
	}

	return filepath.WalkDir(s.source, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == s.source {
			return nil
		}
		// Never descend into the output tree or hidden entries; rendering
		// into a subdirectory of the source must not feed back into the
		// next render.
		if path == s.outDir || strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(s.source, path)
		if err != nil {
			return err
		}
		if isMarkdown(path) {
			return s.renderFile(path, rel)
		}
		return s.copyFile(path, rel)
	})
}

// OutputPath returns where the rendered page for the given source-relative
// markdown path lives.
func (s *Site) OutputPath(rel string) string {
	return filepath.Join(s.outDir, strings.TrimSuffix(rel, filepath.Ext(rel))+".html")
}

func (s *Site) renderFile(path, rel string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", rel, err)
	}

	outPath := s.OutputPath(rel)
	sum := xxhash.Sum64(data)
	s.mu.Lock()
	cached := s.hashes[rel]
	s.mu.Unlock()
	if cached == sum {
		if _, err := os.Stat(outPath); err == nil {
			s.log.Debug("unchanged, skipping", "path", rel)
			return nil
		}
	}

	var body bytes.Buffer
	if err := s.md.Convert(data, &body); err != nil {
		return fmt.Errorf("convert %s: %w", rel, err)
	}

	var reload template.HTML
	if s.liveReload {
		reload = template.HTML(reloadScript)
	}
	var page bytes.Buffer
	err = pageTemplate.Execute(&page, struct {
		Title  string
		Body   template.HTML
		Reload template.HTML
	}{
		Title:  pageTitle(rel),
		Body:   template.HTML(body.String()),
		Reload: reload,
	})
	if err != nil {
		return fmt.Errorf("page %s: %w", rel, err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create output dir for %s: %w", rel, err)
	}
	if err := os.WriteFile(outPath, page.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", outPath, err)
	}

	s.mu.Lock()
	s.hashes[rel] = sum
	s.mu.Unlock()
	s.log.Debug("rendered", "path", rel, "out", outPath)
	return nil
}

func (s *Site) copyFile(path, rel string) error {
	outPath := filepath.Join(s.outDir, rel)
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create output dir for %s: %w", rel, err)
	}

	src, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", rel, err)
	}
	defer src.Close()

	dst, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", outPath, err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("copy %s: %w", rel, err)
	}
	return nil
}

// isMarkdown reports whether a path looks like a markdown document.
func isMarkdown(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return true
	default:
		return false
	}
}

// pageTitle derives a human-readable title from a source-relative path.
func pageTitle(rel string) string {
	base := filepath.Base(rel)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
