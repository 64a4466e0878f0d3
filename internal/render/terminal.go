// terminal.go renders markdown as ANSI for terminal mode (no output dir).
//
// Glamour TermRenderer instances are moderately expensive to build, so one
// is created lazily and reused across renders, mirroring the way rendered
// previews are produced elsewhere in the charm ecosystem. The style comes
// from the configured theme, or the MDWATCH_GLAMOUR_STYLE / GLAMOUR_STYLE
// environment variables, defaulting to "dark".
package render

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
)

// DefaultWrapWidth is the word-wrap width used for terminal output.
const DefaultWrapWidth = 80

var separatorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))

// Terminal renders a markdown file, or every markdown file under a
// directory, as ANSI text to Out.
type Terminal struct {
	source string
	theme  string
	out    io.Writer

	mu       sync.Mutex
	renderer *glamour.TermRenderer
}

// NewTerminal returns a terminal renderer for source writing to out.
func NewTerminal(source, theme string, out io.Writer) *Terminal {
	return &Terminal{source: source, theme: theme, out: out}
}

// Render writes the rendered source to the output writer. Directories are
// rendered file by file in path order, each preceded by a separator naming
// the file.
func (t *Terminal) Render(ctx context.Context) error {
	info, err := os.Stat(t.source)
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	if !info.IsDir() {
		return t.renderOne(t.source, "")
	}

	var files []string
	err = filepath.WalkDir(t.source, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			if path != t.source && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if isMarkdown(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk source: %w", err)
	}
	sort.Strings(files)

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(t.source, path)
		if err != nil {
			rel = path
		}
		if err := t.renderOne(path, rel); err != nil {
			return err
		}
	}
	return nil
}

func (t *Terminal) renderOne(path, label string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}

	if label != "" {
		fmt.Fprintln(t.out, separatorStyle.Render("── "+label+" ──"))
	}

	rendered, err := t.render(string(data))
	if err != nil {
		// Glamour hiccups fall back to the raw markdown so the user still
		// sees their document.
		fmt.Fprintln(t.out, string(data))
		return nil
	}
	fmt.Fprint(t.out, rendered)
	return nil
}

func (t *Terminal) render(content string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.renderer == nil {
		renderer, err := glamour.NewTermRenderer(
			glamour.WithStylePath(resolveStyle(t.theme)),
			glamour.WithWordWrap(DefaultWrapWidth),
		)
		if err != nil {
			return "", err
		}
		t.renderer = renderer
	}
	return t.renderer.Render(content)
}

// resolveStyle picks the glamour style: explicit theme first, then the
// environment, then "dark".
func resolveStyle(theme string) string {
	if theme != "" {
		return theme
	}
	if style := os.Getenv("MDWATCH_GLAMOUR_STYLE"); style != "" {
		return style
	}
	if style := os.Getenv("GLAMOUR_STYLE"); style != "" {
		return style
	}
	return "dark"
}
