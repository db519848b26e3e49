package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/CTAG07/markovbot/pkg/markov"
	"github.com/natefinch/atomic"
)

// AllowedExtensions lists the file extensions accepted by SaveFile and LoadFile.
var AllowedExtensions = []string{".chain", ".json"}

// CheckFile verifies that path names an existing regular file and, when
// allowed is non-empty, that its extension is one of allowed. Failures wrap
// markov.ErrConfiguration.
func CheckFile(path string, allowed []string) error {
	if err := checkExtension(path, allowed); err != nil {
		return err
	}
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("file does not exist: '%s': %w: %w", path, markov.ErrConfiguration, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("not a regular file: '%s': %w", path, markov.ErrConfiguration)
	}
	return nil
}

func checkExtension(path string, allowed []string) error {
	if len(allowed) == 0 {
		return nil
	}
	ext := strings.ToLower(filepath.Ext(path))
	if !slices.Contains(allowed, ext) {
		return fmt.Errorf("extension %q of '%s' is not one of %v: %w", ext, path, allowed, markov.ErrConfiguration)
	}
	return nil
}

// SaveFile exports the store to path. The file is replaced atomically, so a
// failed save never leaves a partial snapshot behind.
func SaveFile(ctx context.Context, store *markov.Store, path string) error {
	if err := checkExtension(path, AllowedExtensions); err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := store.Export(ctx, &buf); err != nil {
		return fmt.Errorf("failed to export store: %w", err)
	}
	if err := atomic.WriteFile(path, &buf); err != nil {
		return fmt.Errorf("failed to write snapshot '%s': %w", path, err)
	}
	return nil
}

// LoadFile imports a snapshot written by SaveFile. See markov.Store.Load for
// the meaning of overwrite.
func LoadFile(ctx context.Context, store *markov.Store, path string, overwrite bool) error {
	if err := CheckFile(path, AllowedExtensions); err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("could not open snapshot '%s': %w: %w", path, markov.ErrConfiguration, err)
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	if err = store.Import(ctx, f, overwrite); err != nil {
		return fmt.Errorf("could not import snapshot '%s': %w", path, err)
	}
	return nil
}

// TrainFile trains the named database on the contents of a text file. Any
// extension is accepted.
func TrainFile(ctx context.Context, store *markov.Store, path, database string, overwrite bool) error {
	if err := CheckFile(path, nil); err != nil {
		return err
	}
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("could not open corpus '%s': %w: %w", path, markov.ErrConfiguration, err)
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	if err = store.Train(ctx, database, f, overwrite); err != nil {
		return fmt.Errorf("could not train on '%s': %w", path, err)
	}
	return nil
}
