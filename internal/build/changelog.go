package build

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
)

const (
	// ChangeLogFile is written at the project root
	ChangeLogFile = "ChangeLog"
	// MailmapFile maps author aliases to canonical addresses
	MailmapFile = ".mailmap"
)

// ParseMailmap reads a mailmap file. Each line holds a canonical address
// followed by one alias; comments and malformed lines are skipped. A
// missing file yields an empty mapping.
func ParseMailmap(path string) (map[string]string, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open mailmap: %w", err)
	}
	defer f.Close()

	return ReadMailmap(f)
}

// ReadMailmap parses mailmap lines from r, mapping alias to canonical
func ReadMailmap(r io.Reader) (map[string]string, error) {
	mapping := make(map[string]string)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		mapping[fields[1]] = fields[0]
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read mailmap: %w", err)
	}
	return mapping, nil
}

// ReplaceAll substitutes every key of mapping in s with its value. Longer
// keys are replaced first so an alias never clobbers a longer one.
func ReplaceAll(s string, mapping map[string]string) string {
	keys := make([]string, 0, len(mapping))
	for k := range mapping {
		if k != "" {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	for _, k := range keys {
		s = strings.ReplaceAll(s, k, mapping[k])
	}
	return s
}

// WriteChangeLog writes the VCS history, with mailmap aliases replaced, to
// the ChangeLog under root. It reports false without error when root is not
// a working copy.
func WriteChangeLog(ctx context.Context, root string, vcs VCS, logger *zap.Logger) (bool, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if vcs == nil || !vcs.Present(root) {
		logger.Info("no version control directory, skipping ChangeLog", zap.String("root", root))
		return false, nil
	}

	history, err := vcs.Log(ctx, root)
	if err != nil {
		return false, fmt.Errorf("failed to read %s log: %w", vcs.Name(), err)
	}

	mailmap, err := ParseMailmap(filepath.Join(root, MailmapFile))
	if err != nil {
		return false, err
	}

	path := filepath.Join(root, ChangeLogFile)
	if err := os.WriteFile(path, []byte(ReplaceAll(string(history), mailmap)), 0o644); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", path, err)
	}

	logger.Info("wrote ChangeLog", zap.String("path", path), zap.Int("aliases", len(mailmap)))
	return true, nil
}
