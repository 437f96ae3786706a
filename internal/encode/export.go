package encode

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/audiolibrelab/miditake/internal/event"
)

// Colons and dots in the timestamp are replaced so the name is safe on
// every filesystem.
var exportReplacer = strings.NewReplacer(":", "-", ".", "-")

// ExportPath builds the output file name for a take exported at the given
// instant: <prefix>-<timestamp>.mid under dir.
func ExportPath(dir, prefix string, now time.Time) string {
	ts := exportReplacer.Replace(now.Format("2006-01-02T15:04:05"))
	return filepath.Join(dir, fmt.Sprintf("%s-%s.mid", prefix, ts))
}

// Export encodes the take and writes it under dir, returning the written
// path. The directory is created if missing.
func Export(take *event.Take, dir, prefix string) (string, error) {
	out, err := Encode(take)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating export directory: %w", err)
	}

	path := ExportPath(dir, prefix, time.Now())
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating export file: %w", err)
	}
	defer f.Close()

	if _, err := out.WriteTo(f); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}
