// Package gitsync commits snapshot files and pushes them to the remote of a
// local git checkout.
package gitsync

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Runner executes one git command in dir and returns its combined output.
type Runner func(ctx context.Context, dir string, args ...string) ([]byte, error)

// ExecRunner runs the git binary found in PATH.
func ExecRunner(ctx context.Context, dir string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	err := cmd.Run()
	return out.Bytes(), err
}

// Repo is a git working tree that receives snapshot commits.
type Repo struct {
	dir     string
	push    bool
	timeout time.Duration
	run     Runner
}

type Option func(*Repo)

// WithPush toggles git push after each commit.
func WithPush(push bool) Option {
	return func(r *Repo) { r.push = push }
}

// WithTimeout bounds one whole Sync.
func WithTimeout(d time.Duration) Option {
	return func(r *Repo) { r.timeout = d }
}

// WithRunner replaces the git executor.
func WithRunner(run Runner) Option {
	return func(r *Repo) { r.run = run }
}

func New(dir string, opts ...Option) *Repo {
	r := &Repo{dir: dir, push: true, timeout: 30 * time.Second, run: ExecRunner}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Sync stages paths, commits them with message and pushes. A commit with no
// changes is not an error and skips the push.
func (r *Repo) Sync(ctx context.Context, message string, paths ...string) error {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	if err := r.git(ctx, append([]string{"add", "--"}, paths...)...); err != nil {
		return err
	}

	out, err := r.run(ctx, r.dir, "commit", "-m", message)
	if err != nil {
		if nothingToCommit(out) {
			return nil
		}
		return &Error{Args: []string{"commit"}, Output: string(out), Err: err}
	}

	if r.push {
		return r.git(ctx, "push")
	}
	return nil
}

func (r *Repo) git(ctx context.Context, args ...string) error {
	if out, err := r.run(ctx, r.dir, args...); err != nil {
		return &Error{Args: args, Output: string(out), Err: err}
	}
	return nil
}

func nothingToCommit(out []byte) bool {
	s := string(out)
	return strings.Contains(s, "nothing to commit") || strings.Contains(s, "nothing added to commit")
}

// Error carries the output of a failed git command.
type Error struct {
	Args   []string
	Output string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("git %s: %v: %s", strings.Join(e.Args, " "), e.Err, strings.TrimSpace(e.Output))
}

func (e *Error) Unwrap() error { return e.Err }
