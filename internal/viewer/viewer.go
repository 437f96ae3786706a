// Package viewer drives an external PDF viewer over the scores directory.
// It is deliberately dumb: page and document navigation with wrap-around,
// rendered by relaunching the viewer at the wanted page. A viewer that fails
// to initialize goes inert rather than taking the looper down with it.
package viewer

import (
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// preferred viewers, in order. Each knows how to open a file at a page.
var viewerCommands = []string{"zathura", "mupdf", "evince", "xdg-open"}

type document struct {
	path  string
	pages int
}

// Viewer tracks the current document and page. Initialization is lazy: the
// first navigation command scans the directory and locates the binaries, and
// any failure there leaves the viewer permanently inert.
type Viewer struct {
	dir string

	initialized bool
	inert       bool

	docs []document
	doc  int // index into docs
	page int // 1-based

	current *exec.Cmd

	// Seams for tests; nil means the real implementation.
	probePages func(path string) (int, error)
	display    func(path string, page int) error
}

// New creates a viewer over the given scores directory. Nothing is touched
// until the first command.
func New(dir string) *Viewer {
	return &Viewer{dir: dir}
}

// NextPage advances one page, wrapping to the first page of the current
// document past the end.
func (v *Viewer) NextPage() {
	if !v.ensureInit() {
		return
	}
	v.page++
	if v.page > v.docs[v.doc].pages {
		v.page = 1
	}
	v.show()
}

// PrevPage goes back one page, wrapping to the last page at the start.
func (v *Viewer) PrevPage() {
	if !v.ensureInit() {
		return
	}
	v.page--
	if v.page < 1 {
		v.page = v.docs[v.doc].pages
	}
	v.show()
}

// NextDocument loads the next document, wrapping to the first past the last,
// and resets to its first page.
func (v *Viewer) NextDocument() {
	if !v.ensureInit() {
		return
	}
	v.doc = (v.doc + 1) % len(v.docs)
	v.page = 1
	v.show()
}

// Document returns the current document path and page, or "" when the viewer
// is uninitialized or inert.
func (v *Viewer) Document() (path string, page int) {
	if !v.initialized || v.inert {
		return "", 0
	}
	return v.docs[v.doc].path, v.page
}

// ensureInit performs lazy initialization and reports whether the viewer is
// usable. Once inert, always inert.
func (v *Viewer) ensureInit() bool {
	if v.initialized {
		return !v.inert
	}
	v.initialized = true

	if err := v.init(); err != nil {
		slog.Warn("Score viewer unavailable", "dir", v.dir, "error", err)
		v.inert = true
		return false
	}
	return true
}

func (v *Viewer) init() error {
	if v.probePages == nil {
		v.probePages = probePages
	}
	if v.display == nil {
		if _, err := findViewer(); err != nil {
			return err
		}
		v.display = v.displayExternal
	}

	entries, err := os.ReadDir(v.dir)
	if err != nil {
		return fmt.Errorf("reading scores directory: %w", err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.EqualFold(filepath.Ext(entry.Name()), ".pdf") {
			continue
		}
		path := filepath.Join(v.dir, entry.Name())
		pages, err := v.probePages(path)
		if err != nil {
			slog.Warn("Skipping unreadable score", "file", entry.Name(), "error", err)
			continue
		}
		v.docs = append(v.docs, document{path: path, pages: pages})
	}
	if len(v.docs) == 0 {
		return fmt.Errorf("no PDF scores in %s", v.dir)
	}

	sort.Slice(v.docs, func(i, j int) bool { return v.docs[i].path < v.docs[j].path })
	v.doc = 0
	v.page = 1
	v.show()
	return nil
}

// show renders the current document/page. Render failures are logged and do
// not change navigation state.
func (v *Viewer) show() {
	doc := v.docs[v.doc]
	if err := v.display(doc.path, v.page); err != nil {
		slog.Warn("Score display failed", "file", doc.path, "page", v.page, "error", err)
	}
}

func findViewer() (string, error) {
	for _, name := range viewerCommands {
		if _, err := exec.LookPath(name); err == nil {
			return name, nil
		}
	}
	return "", fmt.Errorf("no PDF viewer found (tried: %s)", strings.Join(viewerCommands, ", "))
}

// displayExternal replaces the running viewer process with one opened at the
// wanted page.
func (v *Viewer) displayExternal(path string, page int) error {
	name, err := findViewer()
	if err != nil {
		return err
	}

	var cmd *exec.Cmd
	switch name {
	case "zathura":
		cmd = exec.Command("zathura", "--page", strconv.Itoa(page), path)
	case "mupdf":
		cmd = exec.Command("mupdf", path, strconv.Itoa(page))
	case "evince":
		cmd = exec.Command("evince", "--page-index", strconv.Itoa(page), path)
	default:
		// No page support; at least open the document.
		cmd = exec.Command(name, path)
	}

	if v.current != nil && v.current.Process != nil {
		_ = v.current.Process.Kill()
		_ = v.current.Wait()
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", name, err)
	}
	v.current = cmd
	return nil
}

// probePages asks pdfinfo, then mutool, for the document's page count.
func probePages(path string) (int, error) {
	if out, err := exec.Command("pdfinfo", path).Output(); err == nil {
		for _, line := range strings.Split(string(out), "\n") {
			if rest, ok := strings.CutPrefix(line, "Pages:"); ok {
				if n, err := strconv.Atoi(strings.TrimSpace(rest)); err == nil && n > 0 {
					return n, nil
				}
			}
		}
	}
	if out, err := exec.Command("mutool", "info", path).Output(); err == nil {
		for _, line := range strings.Split(string(out), "\n") {
			if rest, ok := strings.CutPrefix(strings.TrimSpace(line), "Pages:"); ok {
				if n, err := strconv.Atoi(strings.TrimSpace(rest)); err == nil && n > 0 {
					return n, nil
				}
			}
		}
	}
	return 0, fmt.Errorf("could not determine page count of %s", path)
}
