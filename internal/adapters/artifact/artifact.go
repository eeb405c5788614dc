// Package artifact writes and removes the JSON files of an analysis.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/okian/physiopulse/internal/domain/model"
)

// Writer places artifacts in one output directory. Every file name is
// derived from the analysis id, so concurrent analyses never collide.
type Writer struct {
	dir string
}

// NewWriter creates the output directory if needed.
func NewWriter(dir string) (*Writer, error) {
	dir = strings.TrimSpace(dir)
	if dir == "" {
		return nil, errors.New("artifact: output dir is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("artifact: ensure output dir: %w", err)
	}
	return &Writer{dir: dir}, nil
}

// Dir returns the output directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Path returns the file of kind k for analysis id.
func (w *Writer) Path(id string, k model.ArtifactKind) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s_%s.json", id, k))
}

// Paths returns all three files of analysis id.
func (w *Writer) Paths(id string) model.Files {
	return model.Files{
		Landmarks: w.Path(id, model.ArtifactLandmarks),
		Scores:    w.Path(id, model.ArtifactScores),
		Summary:   w.Path(id, model.ArtifactSummary),
	}
}

// Write encodes v as indented JSON into the kind k file of id. The file
// appears atomically, so readers never see a partial document.
func (w *Writer) Write(id string, k model.ArtifactKind, v any) (string, error) {
	payload, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("artifact: encode %s: %w", k, err)
	}
	target := w.Path(id, k)

	tmp, err := os.CreateTemp(w.dir, fmt.Sprintf(".%s_%s-*.tmp", id, k))
	if err != nil {
		return "", fmt.Errorf("artifact: create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("artifact: write %s: %w", k, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("artifact: close %s: %w", k, err)
	}
	if err := os.Rename(tmpName, target); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("artifact: commit %s: %w", k, err)
	}
	return target, nil
}

// Remove deletes every artifact of id and reports how many files existed.
func (w *Writer) Remove(id string) (int, error) {
	var (
		removed int
		errs    []error
	)
	for _, k := range model.ArtifactKinds {
		err := os.Remove(w.Path(id, k))
		switch {
		case err == nil:
			removed++
		case errors.Is(err, fs.ErrNotExist):
		default:
			errs = append(errs, err)
		}
	}
	return removed, errors.Join(errs...)
}

// Exists reports whether any artifact of id is present.
func (w *Writer) Exists(id string) bool {
	for _, k := range model.ArtifactKinds {
		if _, err := os.Lstat(w.Path(id, k)); err == nil {
			return true
		}
	}
	return false
}

// Read decodes the kind k file of id into v.
func (w *Writer) Read(id string, k model.ArtifactKind, v any) error {
	raw, err := os.ReadFile(w.Path(id, k))
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, v)
}
