package docstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// GitStore implements Store over a local git repository: one file per
// logical document, every commit a git commit. This is the VCS-backed
// storage variant; the repository history doubles as the version log, so
// no separate retention policy is needed.
type GitStore struct {
	repoDir  string
	fileName string
	seed     string
	fallback string
}

// NewGitStore opens or initializes the repository at repoDir and binds the
// store to <namespace>.csv inside it.
func NewGitStore(repoDir, namespace, fallback string, opts ...Option) (*GitStore, error) {
	if err := os.MkdirAll(repoDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create repo directory: %w", err)
	}
	_, err := git.PlainOpen(repoDir)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		_, err = git.PlainInit(repoDir, false)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open git repository %s: %w", repoDir, err)
	}

	// Reuse DocStore options for the seed; retention does not apply here.
	d := &DocStore{}
	for _, opt := range opts {
		opt(d)
	}
	return &GitStore{
		repoDir:  repoDir,
		fileName: namespace + ".csv",
		seed:     d.seed,
		fallback: fallback,
	}, nil
}

func (g *GitStore) path() string {
	return filepath.Join(g.repoDir, g.fileName)
}

func (g *GitStore) seedOrFallback() string {
	if g.seed != "" {
		return g.seed
	}
	return g.fallback
}

// EnsureInitialized writes and commits the seed document if the file does
// not exist yet.
func (g *GitStore) EnsureInitialized(ctx context.Context) error {
	if _, err := os.Stat(g.path()); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat %s: %w", g.fileName, err)
	}
	if err := g.Commit(ctx, g.seedOrFallback()); err != nil {
		return fmt.Errorf("failed to bootstrap %s: %w", g.fileName, err)
	}
	return nil
}

// Load reads the working-tree copy of the document.
func (g *GitStore) Load(_ context.Context) (string, error) {
	data, err := os.ReadFile(g.path())
	if err != nil {
		return g.seedOrFallback(), nil
	}
	return string(data), nil
}

// Commit writes the document and records a git commit. A commit with no
// change to the file is skipped.
func (g *GitStore) Commit(_ context.Context, document string) error {
	if err := os.WriteFile(g.path(), []byte(document), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", g.fileName, err)
	}

	repo, err := git.PlainOpen(g.repoDir)
	if err != nil {
		return fmt.Errorf("failed to open git repository: %w", err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return fmt.Errorf("failed to open worktree: %w", err)
	}
	if _, err := wt.Add(g.fileName); err != nil {
		return fmt.Errorf("failed to stage %s: %w", g.fileName, err)
	}
	status, err := wt.Status()
	if err != nil {
		return fmt.Errorf("failed to read status: %w", err)
	}
	if status.IsClean() {
		return nil
	}
	_, err = wt.Commit("Update "+g.fileName, &git.CommitOptions{
		Author: &object.Signature{
			Name:  "rosterd",
			Email: "rosterd@localhost",
			When:  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to commit %s: %w", g.fileName, err)
	}
	return nil
}
