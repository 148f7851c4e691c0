// Package scripts runs the connect and disconnect scripts of a profile.
package scripts

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/ovpngui/ovpngui/internal/model"
)

const (
	// stderrLimit bounds the script output we log on failure.
	stderrLimit = 4 << 10

	// waitDelay bounds waiting for the output of a killed script.
	waitDelay = time.Second
)

// Runner runs scripts in the background. The zero value is invalid; use
// [NewRunner].
type Runner struct {
	logger  model.Logger
	timeout time.Duration
	wg      sync.WaitGroup
}

// NewRunner creates a [Runner] bounding each script by timeout.
func NewRunner(logger model.Logger, timeout time.Duration) *Runner {
	return &Runner{
		logger:  logger,
		timeout: timeout,
	}
}

// RunConnect runs the connect script of profile, if any.
func (r *Runner) RunConnect(ctx context.Context, profile *model.Profile, env map[string]string) {
	r.start(ctx, profile, profile.ConnectScript, env)
}

// RunDisconnect runs the disconnect script of profile, if any.
func (r *Runner) RunDisconnect(ctx context.Context, profile *model.Profile, env map[string]string) {
	r.start(ctx, profile, profile.DisconnectScript, env)
}

// Wait waits for the scripts started so far.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) start(ctx context.Context, profile *model.Profile, script string, env map[string]string) {
	if script == "" {
		return
	}
	if !filepath.IsAbs(script) && profile.Config != "" {
		script = filepath.Join(filepath.Dir(profile.Config), script)
	}
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.run(ctx, script, env); err != nil {
			r.logger.Warnf("scripts: %s: %s", profile.Name, err.Error())
			return
		}
		r.logger.Infof("scripts: %s: %s completed", profile.Name, script)
	}()
}

// run runs script and waits for it.
func (r *Runner) run(ctx context.Context, script string, env map[string]string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, script)
	cmd.Dir = filepath.Dir(script)
	cmd.Env = append(os.Environ(), Environ(env)...)
	cmd.WaitDelay = waitDelay

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	r.logger.Debugf("scripts: executing %s", script)
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		s := stderr.String()
		if len(s) > stderrLimit {
			s = s[:stderrLimit]
		}
		return fmt.Errorf("%s: %w (stderr: %s)", script, err, strings.TrimSpace(s))
	}
	return nil
}

// Environ returns env as sorted "key=value" pairs.
func Environ(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}
