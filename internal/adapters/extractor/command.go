package extractor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"slices"
	"strconv"
	"strings"

	"github.com/okian/physiopulse/internal/domain/landmark"
)

// Command runs an external pose engine process. The process is invoked as
//
//	<Binary> <Args...> --frame-skip <N> <video>
//
// and must print a JSON array of landmark frames on stdout.
type Command struct {
	Binary string
	Args   []string
}

// Extract runs the engine and decodes its output.
func (c Command) Extract(ctx context.Context, videoPath string, frameSkip int) ([]landmark.Frame, error) {
	if frameSkip < 1 {
		return nil, ErrInvalidSkip
	}
	binary := strings.TrimSpace(c.Binary)
	if binary == "" {
		return nil, fmt.Errorf("%w: no engine binary configured", ErrEngine)
	}

	args := append(slices.Clone(c.Args), "--frame-skip", strconv.Itoa(frameSkip), "--", videoPath)
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec // binary comes from operator config

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %w: %s", ErrEngine, err, strings.TrimSpace(stderr.String()))
	}

	var frames []landmark.Frame
	if err := json.Unmarshal(stdout.Bytes(), &frames); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEngineOutput, err)
	}
	return frames, nil
}
