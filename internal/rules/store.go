package rules

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"scrapeflow/internal/domain"

	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// Store loads and saves per-domain rule sets.
type Store interface {
	// Load returns the active rule set for a domain, or
	// domain.ErrRuleSetNotFound when none exists.
	Load(dom string) (*domain.RuleSet, error)
	// Save atomically replaces the rule set for a domain.
	Save(rs *domain.RuleSet) error
}

// FileStore keeps one <domain>.json per domain under dir. Saves write to a
// temp file and rename, so a concurrent Load never observes a half-written
// set. Writes to the same domain serialize on a per-domain mutex.
type FileStore struct {
	fs     afero.Fs
	dir    string
	logger *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewFileStore(fs afero.Fs, dir string, logger *zap.Logger) (*FileStore, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create rules dir: %v", domain.ErrPersistence, err)
	}
	return &FileStore{
		fs:     fs,
		dir:    dir,
		logger: logger,
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

func (s *FileStore) path(dom string) string {
	return filepath.Join(s.dir, dom+".json")
}

func (s *FileStore) domainLock(dom string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[dom]
	if !ok {
		l = &sync.Mutex{}
		s.locks[dom] = l
	}
	return l
}

func (s *FileStore) Load(dom string) (*domain.RuleSet, error) {
	raw, err := afero.ReadFile(s.fs, s.path(dom))
	if errors.Is(err, os.ErrNotExist) {
		return nil, domain.ErrRuleSetNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read rules for %s: %v", domain.ErrPersistence, dom, err)
	}

	var rs domain.RuleSet
	if err := json.Unmarshal(raw, &rs); err != nil {
		return nil, fmt.Errorf("%w: parse rules for %s: %v", domain.ErrPersistence, dom, err)
	}
	for k := range rs.Options.Extra {
		// Unrecognized option keys are kept for forward compatibility.
		s.logger.Info("ignoring unrecognized rule option",
			zap.String("domain", dom), zap.String("key", k))
	}
	return &rs, nil
}

func (s *FileStore) Save(rs *domain.RuleSet) error {
	if rs.Domain == "" {
		return fmt.Errorf("%w: rule set without domain", domain.ErrPersistence)
	}
	lock := s.domainLock(rs.Domain)
	lock.Lock()
	defer lock.Unlock()

	raw, err := json.MarshalIndent(rs, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal rules for %s: %v", domain.ErrPersistence, rs.Domain, err)
	}

	tmp := s.path(rs.Domain) + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, raw, 0o644); err != nil {
		return fmt.Errorf("%w: write rules for %s: %v", domain.ErrPersistence, rs.Domain, err)
	}
	if err := s.fs.Rename(tmp, s.path(rs.Domain)); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("%w: replace rules for %s: %v", domain.ErrPersistence, rs.Domain, err)
	}
	return nil
}
