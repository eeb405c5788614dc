package media

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

const (
	bytesPerMB       = 1024 * 1024
	minDurationSec   = 1.0
	maxDurationSec   = 300.0
	minWidth         = 320
	minHeight        = 240
	defaultMaxSizeMB = 100
)

// DefaultFormats are the extensions accepted when none are configured.
var DefaultFormats = []string{".mp4", ".avi", ".mov", ".wmv", ".flv", ".webm", ".mkv"}

// Report describes a video that passed validation.
type Report struct {
	Path      string   `json:"path"`
	Extension string   `json:"extension"`
	SizeMB    float64  `json:"size_mb"`
	Info      *Info    `json:"info,omitempty"`
	Warnings  []string `json:"warnings,omitempty"`
}

// Option applies a configuration option to the Validator.
type Option func(*Validator)

// WithFormats sets accepted extensions. Matching is case-insensitive.
func WithFormats(formats []string) Option {
	return func(v *Validator) {
		if len(formats) == 0 {
			return
		}
		v.formats = make([]string, 0, len(formats))
		for _, f := range formats {
			v.formats = append(v.formats, strings.ToLower(f))
		}
	}
}

// WithMaxSizeMB sets the size limit.
func WithMaxSizeMB(mb int) Option {
	return func(v *Validator) {
		if mb > 0 {
			v.maxBytes = int64(mb) * bytesPerMB
		}
	}
}

// WithProber enables metadata inspection after the file checks.
func WithProber(p Prober) Option {
	return func(v *Validator) {
		v.prober = p
	}
}

// Validator checks that a video can be handed to a pose engine.
type Validator struct {
	formats  []string
	maxBytes int64
	prober   Prober
}

// NewValidator creates a Validator with the default formats and size limit.
func NewValidator(opts ...Option) *Validator {
	v := &Validator{
		formats:  slices.Clone(DefaultFormats),
		maxBytes: defaultMaxSizeMB * bytesPerMB,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Exists reports ErrNotFound when path is missing or not a regular file.
func (v *Validator) Exists(path string) (os.FileInfo, error) {
	st, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if !st.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a regular file", ErrNotFound, path)
	}
	return st, nil
}

// Validate checks existence, extension and size, then probes the stream
// when a Prober is configured. Soft limits become warnings.
func (v *Validator) Validate(ctx context.Context, path string) (Report, error) {
	st, err := v.Exists(path)
	if err != nil {
		return Report{}, err
	}

	ext := strings.ToLower(filepath.Ext(path))
	if !slices.Contains(v.formats, ext) {
		return Report{}, fmt.Errorf("%w: %q (supported: %s)", ErrUnsupportedFormat, ext, strings.Join(v.formats, ", "))
	}
	if st.Size() == 0 {
		return Report{}, ErrEmpty
	}
	if st.Size() > v.maxBytes {
		return Report{}, fmt.Errorf("%w: %.1fMB exceeds %dMB", ErrTooLarge, float64(st.Size())/bytesPerMB, v.maxBytes/bytesPerMB)
	}

	rep := Report{
		Path:      path,
		Extension: ext,
		SizeMB:    float64(st.Size()) / bytesPerMB,
	}
	if v.prober == nil {
		return rep, nil
	}

	info, err := v.prober.Probe(ctx, path)
	if err != nil {
		return Report{}, err
	}
	rep.Info = &info
	rep.Warnings = warnings(info)
	return rep, nil
}

func warnings(info Info) []string {
	var out []string
	if info.DurationSec > 0 && info.DurationSec < minDurationSec {
		out = append(out, "Video is very short (less than 1 second)")
	}
	if info.DurationSec > maxDurationSec {
		out = append(out, "Video is very long (more than 5 minutes)")
	}
	if info.Width > 0 && info.Height > 0 && (info.Width < minWidth || info.Height < minHeight) {
		out = append(out, "Low resolution video may affect accuracy")
	}
	return out
}
