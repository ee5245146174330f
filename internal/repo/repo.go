// Package repo provides gait's view of the project working tree: artifact
// reads and atomic writes, pattern-based file discovery, and commit-time
// lookups against the project's git history.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// Commit is the subset of a git commit gait needs for staleness checks.
type Commit struct {
	Hash    string
	Author  string
	Message string
	When    time.Time
}

// Repository abstracts the project working tree and its history. All paths
// are relative to the project root unless already absolute.
type Repository interface {
	// ReadFile returns the file contents. A missing file returns
	// (nil, os.ErrNotExist-wrapped error); callers distinguish missing
	// from unreadable via os.IsNotExist.
	ReadFile(path string) ([]byte, error)

	// WriteFile atomically replaces the file contents (temp then rename)
	// so a concurrent reader never observes a partial write.
	WriteFile(path string, content []byte) error

	// FindFiles returns files under dir whose base name matches the glob
	// pattern. A missing dir returns an empty slice, not an error.
	FindFiles(dir, pattern string) ([]string, error)

	// CommitsSince returns the commits touching path committed strictly
	// after the given time. Errors indicate history was unavailable, not
	// that there were no commits.
	CommitsSince(path string, since time.Time) ([]Commit, error)

	// Root returns the project root directory.
	Root() string
}

// FS is the production Repository backed by the local filesystem and the
// project's git repository.
type FS struct {
	root string
}

// NewFS creates a Repository rooted at the given project directory.
func NewFS(root string) (*FS, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve project root: %w", err)
	}
	return &FS{root: abs}, nil
}

// Root returns the project root directory.
func (r *FS) Root() string {
	return r.root
}

func (r *FS) abs(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(r.root, path)
}

// ReadFile returns the file contents.
func (r *FS) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(r.abs(path))
}

// WriteFile atomically replaces the file via write-temp-then-rename.
func (r *FS) WriteFile(path string, content []byte) error {
	target := r.abs(path)
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, ".gait-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", target, err)
	}
	return nil
}

// FindFiles returns files under dir matching the glob pattern by base name.
func (r *FS) FindFiles(dir, pattern string) ([]string, error) {
	absDir := r.abs(dir)
	entries, err := os.ReadDir(absDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", absDir, err)
	}

	var matches []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ok, err := filepath.Match(pattern, entry.Name())
		if err != nil {
			return nil, fmt.Errorf("bad pattern %q: %w", pattern, err)
		}
		if ok {
			matches = append(matches, filepath.Join(dir, entry.Name()))
		}
	}
	return matches, nil
}

// CommitsSince returns commits touching path after the given time, newest
// first. The path is made relative to the repository root for matching.
func (r *FS) CommitsSince(path string, since time.Time) ([]Commit, error) {
	gitRepo, err := git.PlainOpen(r.root)
	if err != nil {
		return nil, fmt.Errorf("failed to open git repository at %s: %w", r.root, err)
	}

	rel := path
	if filepath.IsAbs(path) {
		rel, err = filepath.Rel(r.root, path)
		if err != nil {
			return nil, fmt.Errorf("path %s is outside the repository: %w", path, err)
		}
	}
	rel = filepath.ToSlash(rel)

	iter, err := gitRepo.Log(&git.LogOptions{
		FileName: &rel,
		Since:    &since,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read commit log: %w", err)
	}
	defer iter.Close()

	var commits []Commit
	err = iter.ForEach(func(c *object.Commit) error {
		// LogOptions.Since filters by commit time already, but be exact
		// about the strictly-after contract at boundaries.
		if !c.Committer.When.After(since) {
			return nil
		}
		commits = append(commits, Commit{
			Hash:    c.Hash.String(),
			Author:  c.Author.Name,
			Message: c.Message,
			When:    c.Committer.When,
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk commit log: %w", err)
	}

	return commits, nil
}
