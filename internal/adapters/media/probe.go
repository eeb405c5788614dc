// Package media validates input videos and inspects them with ffprobe.
package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"
)

// Info is the subset of stream metadata the pipeline cares about.
type Info struct {
	FPS         float64 `json:"fps"`
	FrameCount  int     `json:"frame_count"`
	DurationSec float64 `json:"duration"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Codec       string  `json:"codec"`
}

// Prober reads video metadata.
type Prober interface {
	Probe(ctx context.Context, path string) (Info, error)
}

// FFprobe shells out to an ffprobe binary.
type FFprobe struct {
	// Binary defaults to "ffprobe" on PATH.
	Binary string
}

type probeResult struct {
	Streams []probeStream `json:"streams"`
	Format  struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

type probeStream struct {
	CodecName    string `json:"codec_name"`
	CodecType    string `json:"codec_type"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	AvgFrameRate string `json:"avg_frame_rate"`
	RFrameRate   string `json:"r_frame_rate"`
	NBFrames     string `json:"nb_frames"`
	Duration     string `json:"duration"`
}

// Probe runs ffprobe against path and reports its first video stream.
func (p FFprobe) Probe(ctx context.Context, path string) (Info, error) {
	binary := strings.TrimSpace(p.Binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Info{}, errors.New("ffprobe: empty path")
	}

	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Info{}, fmt.Errorf("%w: %w: %s", ErrProbe, err, strings.TrimSpace(string(exitErr.Stderr)))
		}
		return Info{}, fmt.Errorf("%w: %w", ErrProbe, err)
	}
	return parseProbe(output)
}

func parseProbe(output []byte) (Info, error) {
	var res probeResult
	if err := json.Unmarshal(output, &res); err != nil {
		return Info{}, fmt.Errorf("%w: parse: %w", ErrProbe, err)
	}

	for _, s := range res.Streams {
		if !strings.EqualFold(s.CodecType, "video") {
			continue
		}
		info := Info{
			Codec:  s.CodecName,
			Width:  s.Width,
			Height: s.Height,
			FPS:    parseRate(s.AvgFrameRate),
		}
		if info.FPS == 0 {
			info.FPS = parseRate(s.RFrameRate)
		}
		info.DurationSec = parseFloat(s.Duration)
		if info.DurationSec == 0 {
			info.DurationSec = parseFloat(res.Format.Duration)
		}
		if n, err := strconv.Atoi(strings.TrimSpace(s.NBFrames)); err == nil && n > 0 {
			info.FrameCount = n
		} else if info.FPS > 0 {
			info.FrameCount = int(math.Round(info.DurationSec * info.FPS))
		}
		return info, nil
	}
	return Info{}, ErrNoVideoStream
}

// parseRate reads ffprobe rationals such as "30000/1001".
func parseRate(v string) float64 {
	num, den, ok := strings.Cut(strings.TrimSpace(v), "/")
	if !ok {
		return parseFloat(num)
	}
	n := parseFloat(num)
	d := parseFloat(den)
	if d == 0 {
		return 0
	}
	return n / d
}

func parseFloat(value string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0
	}
	return f
}
