package script

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/go-git/go-git/v5"
	"go.uber.org/zap"
)

// ModuleStorage keeps a local clone of the script modules repository and an
// atomically swapped snapshot of its .js files. Evaluations read whichever
// snapshot was current when they called Module; Reload swaps in a new one
// without blocking readers.
type ModuleStorage struct {
	repoURL string
	dir     string
	log     *zap.Logger

	repo     *git.Repository
	snapshot atomic.Value // map[string]string
}

// OpenModuleStorage clones repoURL into dir, or opens and pulls an existing
// clone, then loads the first snapshot.
func OpenModuleStorage(ctx context.Context, repoURL, dir string, log *zap.Logger) (*ModuleStorage, error) {
	s := &ModuleStorage{repoURL: repoURL, dir: dir, log: log}

	repo, err := git.PlainOpen(dir)
	switch {
	case err == nil:
		s.repo = repo
		if _, err := s.pull(ctx); err != nil {
			return nil, err
		}
	case err == git.ErrRepositoryNotExists:
		repo, err = git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{URL: repoURL})
		if err != nil {
			return nil, fmt.Errorf("script: clone %s: %w", repoURL, err)
		}
		s.repo = repo
	default:
		return nil, fmt.Errorf("script: open %s: %w", dir, err)
	}

	if err := s.loadSnapshot(); err != nil {
		return nil, err
	}
	return s, nil
}

// Module returns the source of a stored module by name (filename without the
// .js extension).
func (s *ModuleStorage) Module(name string) (string, bool) {
	modules, _ := s.snapshot.Load().(map[string]string)
	src, ok := modules[name]
	return src, ok
}

// Reload pulls the modules repository and swaps in a fresh snapshot. It
// reports whether HEAD moved.
func (s *ModuleStorage) Reload(ctx context.Context) (bool, error) {
	changed, err := s.pull(ctx)
	if err != nil {
		return false, err
	}
	if err := s.loadSnapshot(); err != nil {
		return false, err
	}
	return changed, nil
}

func (s *ModuleStorage) pull(ctx context.Context) (bool, error) {
	before, err := s.repo.Head()
	if err != nil {
		return false, fmt.Errorf("script: head: %w", err)
	}

	worktree, err := s.repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("script: worktree: %w", err)
	}
	err = worktree.PullContext(ctx, &git.PullOptions{})
	if err != nil && err != git.NoErrAlreadyUpToDate {
		return false, fmt.Errorf("script: pull: %w", err)
	}

	after, err := s.repo.Head()
	if err != nil {
		return false, fmt.Errorf("script: head: %w", err)
	}
	return before.Hash() != after.Hash(), nil
}

func (s *ModuleStorage) loadSnapshot() error {
	modules := make(map[string]string)
	err := filepath.WalkDir(s.dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if !strings.HasSuffix(d.Name(), ".js") {
			return nil
		}
		src, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		modules[strings.TrimSuffix(d.Name(), ".js")] = string(src)
		return nil
	})
	if err != nil {
		return fmt.Errorf("script: load modules: %w", err)
	}

	s.snapshot.Store(modules)
	s.log.Info("loaded script modules", zap.Int("count", len(modules)))
	return nil
}
