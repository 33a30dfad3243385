package command

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/odysseyos/narrator/narrate"
)

// synthesize pipes text to the synthesis binary and returns the raw PCM
// it writes to stdout. Stdin is attached before the process starts to
// avoid the write-after-exit race. Cancellation sends an interrupt first
// and escalates to a kill after the configured grace period.
func synthesize(ctx context.Context, cfg narrate.CommandConfig, text string, args []string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	cmd := exec.Command(cfg.Binary, args...)
	cmd.Stdin = strings.NewReader(text)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", cfg.Binary, err)
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		if err != nil {
			msg := strings.TrimSpace(stderr.String())
			if msg != "" {
				return nil, fmt.Errorf("%s failed: %w: %s", cfg.Binary, err, msg)
			}
			return nil, fmt.Errorf("%s failed: %w", cfg.Binary, err)
		}
		return stdout.Bytes(), nil
	case <-ctx.Done():
		terminate(cmd, done, cfg.GracePeriod)
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%s timed out after %v", cfg.Binary, cfg.Timeout)
		}
		return nil, ctx.Err()
	}
}

// terminate asks the process to exit and kills it if it ignores the
// request for longer than grace.
func terminate(cmd *exec.Cmd, done <-chan error, grace time.Duration) {
	if cmd.Process == nil {
		return
	}
	_ = cmd.Process.Signal(os.Interrupt)
	select {
	case <-done:
	case <-time.After(grace):
		_ = cmd.Process.Kill()
		<-done
	}
}

// checkBinary reports whether the synthesis binary is on PATH.
func checkBinary(name string) error {
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("binary %q not found in PATH: %w", name, err)
	}
	return nil
}
