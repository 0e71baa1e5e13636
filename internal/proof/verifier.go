package proof

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"go.uber.org/zap"
)

// ErrToolUnavailable means verification could not run; the proofs are unverified, not failed
var ErrToolUnavailable = errors.New("proof tool unavailable")

// Verifier rebuilds the proof library to confirm the cited theorems still check
type Verifier struct {
	lakeBinary string
	timeout    time.Duration
	logger     *zap.Logger
}

// NewVerifier creates a verifier running lakeBinary ("lake" when empty).
// A zero timeout leaves the build unbounded.
func NewVerifier(lakeBinary string, timeout time.Duration, logger *zap.Logger) *Verifier {
	if lakeBinary == "" {
		lakeBinary = "lake"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Verifier{lakeBinary: lakeBinary, timeout: timeout, logger: logger}
}

// Verify runs "lake build" in corePath. It returns whether the build
// succeeded; an error wrapping ErrToolUnavailable means it could not be run.
func (v *Verifier) Verify(ctx context.Context, corePath string) (bool, error) {
	info, err := os.Stat(corePath)
	if err != nil || !info.IsDir() {
		return false, fmt.Errorf("%w: core path does not exist: %s", ErrToolUnavailable, corePath)
	}
	if _, err := os.Stat(filepath.Join(corePath, "lakefile.lean")); err != nil {
		return false, fmt.Errorf("%w: lakefile.lean not found in %s", ErrToolUnavailable, corePath)
	}

	if v.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, v.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, v.lakeBinary, "build")
	cmd.Dir = corePath

	start := time.Now()
	output, err := cmd.CombinedOutput()
	if ctx.Err() != nil {
		return false, fmt.Errorf("%w: %v", ErrToolUnavailable, ctx.Err())
	}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		v.logger.Info("proof build succeeded", zap.String("path", corePath), zap.Duration("elapsed", time.Since(start)))
		return true, nil
	case errors.As(err, &exitErr):
		v.logger.Warn("proof build failed",
			zap.String("path", corePath),
			zap.Int("exit_code", exitErr.ExitCode()),
			zap.ByteString("output", output))
		return false, nil
	default:
		return false, fmt.Errorf("%w: failed to run %s: %v", ErrToolUnavailable, v.lakeBinary, err)
	}
}
