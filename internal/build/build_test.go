package build

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asakaida/placement/internal/version"
)

type fakeVCS struct {
	present bool
	info    version.VCSInfo
	infoErr error
	log     string
	logErr  error
}

func (f *fakeVCS) Name() string             { return "fake" }
func (f *fakeVCS) Present(root string) bool { return f.present }

func (f *fakeVCS) Info(ctx context.Context, root string) (version.VCSInfo, error) {
	return f.info, f.infoErr
}

func (f *fakeVCS) Log(ctx context.Context, root string) ([]byte, error) {
	return []byte(f.log), f.logErr
}

func readVersionFile(t *testing.T, root string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, VersionFilePath))
	require.NoError(t, err)
	return string(data)
}

func TestWriteVersionFile(t *testing.T) {
	tests := []struct {
		name       string
		vcs        VCS
		wantBranch string
		wantRev    string
	}{
		{
			name:       "no vcs",
			vcs:        nil,
			wantBranch: "LOCALBRANCH",
			wantRev:    "LOCALREVISION",
		},
		{
			name:       "vcs directory absent",
			vcs:        &fakeVCS{present: false, info: version.VCSInfo{BranchNick: "main", RevisionID: "abc"}},
			wantBranch: "LOCALBRANCH",
			wantRev:    "LOCALREVISION",
		},
		{
			name:       "vcs command fails",
			vcs:        &fakeVCS{present: true, infoErr: errors.New("git: not found")},
			wantBranch: "LOCALBRANCH",
			wantRev:    "LOCALREVISION",
		},
		{
			name:       "working copy",
			vcs:        &fakeVCS{present: true, info: version.VCSInfo{BranchNick: "main", RevisionID: "3f2a9c1"}},
			wantBranch: "main",
			wantRev:    "3f2a9c1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()

			info, err := WriteVersionFile(context.Background(), root, tt.vcs, nil)
			require.NoError(t, err)
			assert.Equal(t, tt.wantBranch, info.BranchNick)
			assert.Equal(t, tt.wantRev, info.RevisionID)

			src := readVersionFile(t, root)
			assert.Contains(t, src, `BranchNick: "`+tt.wantBranch+`"`)
			assert.Contains(t, src, `RevisionID: "`+tt.wantRev+`"`)
			assert.True(t, strings.HasPrefix(src, "// Code generated"))
		})
	}
}

func TestWriteVersionFile_NoGitDirectory(t *testing.T) {
	root := t.TempDir()

	info, err := WriteVersionFile(context.Background(), root, NewGit(), nil)
	require.NoError(t, err)
	assert.Equal(t, PlaceholderInfo(), info)
	assert.Contains(t, readVersionFile(t, root), "LOCALREVISION")
}

func TestRenderVersionFile_MatchesCheckedIn(t *testing.T) {
	// The checked-in file carries the placeholders.
	want, err := os.ReadFile(filepath.Join("..", "version", "vcs_info.go"))
	require.NoError(t, err)

	got, err := RenderVersionFile(PlaceholderInfo())
	require.NoError(t, err)
	assert.Equal(t, string(want), string(got))
}

func TestRenderVersionFile_Escapes(t *testing.T) {
	src, err := RenderVersionFile(version.VCSInfo{BranchNick: `feature/"quoted"`, RevisionID: "r1"})
	require.NoError(t, err)
	assert.Contains(t, string(src), `"feature/\"quoted\""`)
}

func TestGit_Present(t *testing.T) {
	root := t.TempDir()
	g := NewGit()
	assert.False(t, g.Present(root))

	require.NoError(t, os.WriteFile(filepath.Join(root, ".git"), []byte("gitdir: elsewhere"), 0o644))
	assert.False(t, g.Present(root), "a .git file is not a working copy directory")

	require.NoError(t, os.Remove(filepath.Join(root, ".git")))
	require.NoError(t, os.Mkdir(filepath.Join(root, ".git"), 0o755))
	assert.True(t, g.Present(root))
}

func TestGit_MissingBinary(t *testing.T) {
	g := &Git{Binary: "definitely-not-a-vcs-binary"}
	_, err := g.Info(context.Background(), t.TempDir())
	assert.Error(t, err)
}

func TestReadMailmap(t *testing.T) {
	input := `# canonical alias
<vish@example.org> <vishvananda@gmail.com>

  <jesse@example.org>   <jesse@gmail.com>
not-a-pair
<a@example.org> <b@example.org> <c@example.org>
`
	got, err := ReadMailmap(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"<vishvananda@gmail.com>": "<vish@example.org>",
		"<jesse@gmail.com>":       "<jesse@example.org>",
	}, got)
}

func TestParseMailmap_Missing(t *testing.T) {
	got, err := ParseMailmap(filepath.Join(t.TempDir(), ".mailmap"))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReplaceAll(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		mapping map[string]string
		want    string
	}{
		{
			name:    "single alias",
			input:   "2011-01-10  Vish <vishvananda@gmail.com>",
			mapping: map[string]string{"<vishvananda@gmail.com>": "<vish@example.org>"},
			want:    "2011-01-10  Vish <vish@example.org>",
		},
		{
			name:    "every occurrence",
			input:   "a a a",
			mapping: map[string]string{"a": "b"},
			want:    "b b b",
		},
		{
			name:  "longer alias first",
			input: "<x@host.example> <x@host>",
			mapping: map[string]string{
				"x@host":         "y@host",
				"x@host.example": "z@host",
			},
			want: "<z@host> <y@host>",
		},
		{
			name:    "empty mapping",
			input:   "unchanged",
			mapping: nil,
			want:    "unchanged",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReplaceAll(tt.input, tt.mapping))
		})
	}
}

func TestWriteChangeLog(t *testing.T) {
	ctx := context.Background()

	t.Run("no working copy", func(t *testing.T) {
		root := t.TempDir()
		wrote, err := WriteChangeLog(ctx, root, &fakeVCS{present: false}, nil)
		require.NoError(t, err)
		assert.False(t, wrote)
		assert.NoFileExists(t, filepath.Join(root, ChangeLogFile))
	})

	t.Run("with mailmap", func(t *testing.T) {
		root := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(root, MailmapFile),
			[]byte("<soren@example.org> <soren@laptop>\n"), 0o644))

		vcs := &fakeVCS{present: true, log: "2011-01-12  Soren <soren@laptop>\n\n        * Fix the build\n"}
		wrote, err := WriteChangeLog(ctx, root, vcs, nil)
		require.NoError(t, err)
		assert.True(t, wrote)

		data, err := os.ReadFile(filepath.Join(root, ChangeLogFile))
		require.NoError(t, err)
		assert.Equal(t, "2011-01-12  Soren <soren@example.org>\n\n        * Fix the build\n", string(data))
	})

	t.Run("log fails", func(t *testing.T) {
		root := t.TempDir()
		_, err := WriteChangeLog(ctx, root, &fakeVCS{present: true, logErr: errors.New("boom")}, nil)
		assert.Error(t, err)
	})
}

func TestScripts(t *testing.T) {
	got := Scripts()
	require.Len(t, got, 13)
	assert.Equal(t, Script{Name: "nova-api", Path: "bin/nova-api"}, got[0])
	assert.Equal(t, Script{Name: "nova-debug", Path: "tools/nova-debug"}, got[12])

	seen := make(map[string]bool)
	for _, s := range got {
		assert.False(t, seen[s.Name], "duplicate script %s", s.Name)
		seen[s.Name] = true
	}

	// Callers get a copy.
	got[0].Name = "changed"
	assert.Equal(t, "nova-api", Scripts()[0].Name)
}

func TestDistMetadata(t *testing.T) {
	m := DistMetadata()
	assert.Equal(t, "nova", m.Name)
	assert.Equal(t, "2011.1", m.Version)
}
