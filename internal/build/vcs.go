// Package build implements the release tooling: VCS detection, the
// generated version file, the ChangeLog, and the installed script list.
package build

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/asakaida/placement/internal/version"
)

// VCS is a version control system the release tooling can query
type VCS interface {
	// Name returns the tool name, e.g. "git"
	Name() string

	// Present reports whether root is a working copy of this VCS
	Present(root string) bool

	// Info returns the branch and revision of the working copy
	Info(ctx context.Context, root string) (version.VCSInfo, error)

	// Log returns the change history as text
	Log(ctx context.Context, root string) ([]byte, error)
}

// Git queries a git working copy through the git command
type Git struct {
	// Binary defaults to "git" resolved on PATH
	Binary string
}

var _ VCS = (*Git)(nil)

// NewGit creates a Git using the git binary on PATH
func NewGit() *Git {
	return &Git{Binary: "git"}
}

func (g *Git) Name() string {
	return "git"
}

// Present reports whether root contains a .git directory
func (g *Git) Present(root string) bool {
	fi, err := os.Stat(filepath.Join(root, ".git"))
	return err == nil && fi.IsDir()
}

// Info returns the current branch and commit hash
func (g *Git) Info(ctx context.Context, root string) (version.VCSInfo, error) {
	branch, err := g.run(ctx, root, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return version.VCSInfo{}, err
	}
	revision, err := g.run(ctx, root, "rev-parse", "HEAD")
	if err != nil {
		return version.VCSInfo{}, err
	}
	return version.VCSInfo{
		BranchNick: strings.TrimSpace(string(branch)),
		RevisionID: strings.TrimSpace(string(revision)),
	}, nil
}

// Log returns the non-merge history with author and subject per entry
func (g *Git) Log(ctx context.Context, root string) ([]byte, error) {
	return g.run(ctx, root, "log", "--no-merges", "--date=short",
		"--format=%ad  %an <%ae>%n%n        * %s%n")
}

func (g *Git) run(ctx context.Context, root string, args ...string) ([]byte, error) {
	binary := g.Binary
	if binary == "" {
		binary = "git"
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = root
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s %s: %w: %s", binary, strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}
