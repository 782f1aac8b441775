package assets

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"sort"

	"github.com/gobwas/glob"
	"github.com/localvoice/assetpipe/internal/buildconfig"
	"github.com/rs/zerolog"
)

// cleanOutput removes the previous contents of dir, sparing files that match
// one of the keep patterns. It returns the removed paths relative to dir.
func cleanOutput(ctx context.Context, dir string, c buildconfig.Cleanup) ([]string, error) {
	logger := zerolog.Ctx(ctx)

	if _, err := os.Stat(dir); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	keep := make([]glob.Glob, 0, len(c.Keep))
	for _, pattern := range c.Keep {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, fmt.Errorf("invalid keep pattern %q: %w", pattern, err)
		}
		keep = append(keep, g)
	}
	kept := func(rel string) bool {
		return slices.ContainsFunc(keep, func(g glob.Glob) bool { return g.Match(rel) })
	}

	var files, dirs []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == dir {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			dirs = append(dirs, rel)
			return nil
		}
		if !kept(rel) {
			files = append(files, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if c.DryRun {
		for _, rel := range files {
			logger.Info().Str("file", rel).Msg("Would remove")
		}
		return nil, nil
	}

	for _, rel := range files {
		if err := os.Remove(filepath.Join(dir, filepath.FromSlash(rel))); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	// Deepest directories first; directories still holding kept files stay.
	sort.Sort(sort.Reverse(sort.StringSlice(dirs)))
	for _, rel := range dirs {
		if err := os.Remove(filepath.Join(dir, filepath.FromSlash(rel))); err == nil {
			logger.Debug().Str("dir", rel).Msg("Removed directory")
		}
	}

	logger.Debug().Int("files", len(files)).Str("dir", dir).Msg("Cleaned output directory")
	return files, nil
}
