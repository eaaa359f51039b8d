// SPDX-License-Identifier: MPL-2.0

package stage

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/moby/patternmatcher"
	"github.com/moby/patternmatcher/ignorefile"

	"launchpad-cli/internal/recipe"
)

// DockerIgnoreFile is read from the source root and merged with Recipe.Ignore.
const DockerIgnoreFile = ".dockerignore"

// ErrSourceNotDirectory is returned when the source path exists but is not a directory.
var ErrSourceNotDirectory = errors.New("application source is not a directory")

type (
	// Source is the application file set: the source tree minus ignored
	// paths, in lexical order, with a digest over names, modes and contents.
	Source struct {
		Dir     string
		Entries []Entry
		digest  string
	}

	// Entry is one path in the file set.
	Entry struct {
		// Rel is relative to Source.Dir, in OS form.
		Rel  string
		Mode fs.FileMode
		Size int64
		// Link is the target of a symbolic link.
		Link string
	}
)

// Snapshot reads the recipe's source tree.
func Snapshot(r *recipe.Recipe) (*Source, error) {
	return SnapshotDir(r.SourceDir(), r.Ignore)
}

// SnapshotDir walks dir, skipping paths matched by dir/.dockerignore or
// ignore, and hashes what remains. A missing dir yields an error wrapping
// fs.ErrNotExist.
func SnapshotDir(dir string, ignore []string) (*Source, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("read application source: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrSourceNotDirectory, dir)
	}

	patterns, err := readIgnoreFile(filepath.Join(dir, DockerIgnoreFile))
	if err != nil {
		return nil, err
	}
	patterns = append(patterns, ignore...)
	pm, err := patternmatcher.New(patterns)
	if err != nil {
		return nil, fmt.Errorf("invalid ignore pattern: %w", err)
	}

	src := &Source{Dir: dir}
	h := sha256.New()
	walkErr := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, relErr := filepath.Rel(dir, p)
		if relErr != nil || rel == "." {
			return relErr
		}

		skip, matchErr := pm.MatchesOrParentMatches(rel)
		if matchErr != nil {
			return matchErr
		}
		if skip {
			if d.IsDir() && !pm.Exclusions() {
				return filepath.SkipDir
			}
			return nil
		}

		fi, infoErr := d.Info()
		if infoErr != nil {
			return infoErr
		}
		e := Entry{Rel: rel, Mode: fi.Mode()}
		switch {
		case fi.Mode().IsRegular():
			e.Size = fi.Size()
		case fi.Mode()&fs.ModeSymlink != 0:
			if e.Link, err = os.Readlink(p); err != nil {
				return err
			}
		case fi.IsDir():
		default:
			// Sockets, devices and pipes are not part of an application tree.
			return nil
		}

		if err := hashEntry(h, p, e); err != nil {
			return err
		}
		src.Entries = append(src.Entries, e)
		return nil
	})
	if walkErr != nil {
		return nil, fmt.Errorf("read application source: %w", walkErr)
	}

	src.digest = hex.EncodeToString(h.Sum(nil))
	return src, nil
}

// Digest is a SHA-256 over the file set. Modification times do not
// participate, so touching a file does not invalidate the stage.
func (s *Source) Digest() string { return s.digest }

// Materialize copies the file set into dst, which must exist.
func (s *Source) Materialize(dst string) error {
	for _, e := range s.Entries {
		target := filepath.Join(dst, e.Rel)
		switch {
		case e.Mode.IsDir():
			if err := os.MkdirAll(target, e.Mode.Perm()|0o700); err != nil {
				return fmt.Errorf("failed to create directory: %w", err)
			}
		case e.Mode&fs.ModeSymlink != 0:
			if err := os.Symlink(e.Link, target); err != nil {
				return fmt.Errorf("failed to create symlink: %w", err)
			}
		default:
			if err := copyFile(filepath.Join(s.Dir, e.Rel), target, e.Mode.Perm()); err != nil {
				return err
			}
		}
	}
	return nil
}

func hashEntry(h hash.Hash, p string, e Entry) error {
	fmt.Fprintf(h, "%s\x00%o\x00%d\x00%s\x00", filepath.ToSlash(e.Rel), e.Mode&(fs.ModeType|fs.ModePerm), e.Size, e.Link)
	if !e.Mode.IsRegular() {
		return nil
	}
	f, err := os.Open(p)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }() // Read-only file; close error non-critical
	_, err = io.Copy(h, f)
	return err
}

func readIgnoreFile(p string) ([]string, error) {
	f, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", DockerIgnoreFile, err)
	}
	defer func() { _ = f.Close() }() // Read-only file; close error non-critical

	patterns, err := ignorefile.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", DockerIgnoreFile, err)
	}
	return patterns, nil
}

// copyFile copies src to dst with the given permissions.
func copyFile(src, dst string, perm fs.FileMode) (err error) {
	srcFile, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer func() { _ = srcFile.Close() }() // Read-only file; close error non-critical

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	dstFile, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}
	defer func() {
		if closeErr := dstFile.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("failed to close destination file: %w", closeErr)
		}
	}()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return fmt.Errorf("failed to copy file contents: %w", err)
	}
	return nil
}
