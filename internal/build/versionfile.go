package build

import (
	"bytes"
	"context"
	"fmt"
	"go/format"
	"os"
	"path/filepath"
	"text/template"

	"go.uber.org/zap"

	"github.com/asakaida/placement/internal/version"
)

// VersionFilePath is the generated file, relative to the project root
const VersionFilePath = "internal/version/vcs_info.go"

var versionFileTemplate = template.Must(template.New("vcs_info").Parse(`// Code generated by novabuild version-file. DO NOT EDIT.

package version

var vcsInfo = VCSInfo{
	BranchNick: {{ printf "%q" .BranchNick }},
	RevisionID: {{ printf "%q" .RevisionID }},
}
`))

// PlaceholderInfo is embedded when no VCS data is available
func PlaceholderInfo() version.VCSInfo {
	return version.VCSInfo{
		BranchNick: version.LocalBranch,
		RevisionID: version.LocalRevision,
	}
}

// RenderVersionFile returns the formatted source of the generated file
func RenderVersionFile(info version.VCSInfo) ([]byte, error) {
	var buf bytes.Buffer
	if err := versionFileTemplate.Execute(&buf, info); err != nil {
		return nil, fmt.Errorf("failed to render version file: %w", err)
	}
	src, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to format version file: %w", err)
	}
	return src, nil
}

// WriteVersionFile regenerates the VCS version file under root. A missing
// working copy or a failing VCS command yields the placeholder values.
func WriteVersionFile(ctx context.Context, root string, vcs VCS, logger *zap.Logger) (version.VCSInfo, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	info := PlaceholderInfo()
	if vcs != nil && vcs.Present(root) {
		got, err := vcs.Info(ctx, root)
		if err != nil {
			logger.Warn("failed to read VCS info, using placeholders",
				zap.String("vcs", vcs.Name()), zap.Error(err))
		} else {
			info = got
		}
	} else {
		logger.Info("no version control directory, using placeholders", zap.String("root", root))
	}

	src, err := RenderVersionFile(info)
	if err != nil {
		return version.VCSInfo{}, err
	}

	path := filepath.Join(root, VersionFilePath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return version.VCSInfo{}, fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, src, 0o644); err != nil {
		return version.VCSInfo{}, fmt.Errorf("failed to write %s: %w", path, err)
	}

	logger.Info("wrote version file",
		zap.String("path", path),
		zap.String("branch", info.BranchNick),
		zap.String("revision", info.RevisionID))
	return info, nil
}
