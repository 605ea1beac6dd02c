package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"go.uber.org/zap"
)

var (
	// ErrAlreadyArchived is returned when archiving an archived project.
	ErrAlreadyArchived = errors.New("project is already archived")
	// ErrNotArchived is returned when unarchiving a live project.
	ErrNotArchived = errors.New("project is not archived")
)

const maxNameSuffix = 1000

// Mutator edits a freshly read project in place. Returning an error
// aborts the update and nothing is written.
type Mutator func(p *Project) error

// Store is the project state store. It is the only writer of project
// records and serializes writes per project.
type Store struct {
	backend Backend
	logger  *zap.Logger
}

// NewStore creates a store over a backend.
func NewStore(backend Backend, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{backend: backend, logger: logger}
}

// Backend returns the underlying backend.
func (s *Store) Backend() Backend { return s.backend }

// Create persists a new project. The name defaults to a slug of the
// description; if that slug is taken a numeric suffix is appended
// (-2, -3, ...). An explicit name that is taken fails with ErrNameTaken.
// p.Name holds the final name on return.
func (s *Store) Create(ctx context.Context, p *Project) error {
	base := p.Name
	explicit := base != ""
	if !explicit {
		base = Slugify(p.Description)
	}
	if !ValidName(base) {
		return fmt.Errorf("invalid project name %q: use lowercase letters, digits and hyphens", base)
	}

	now := nowRFC3339()
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Status == "" {
		p.Status = StatusInProgress
	}
	p.EnsurePhaseRecords()

	b := resolve(ctx, s.backend)
	name := base
	for suffix := 2; suffix <= maxNameSuffix; suffix++ {
		p.Name = name
		if err := p.Validate(); err != nil {
			return err
		}
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("marshaling project %q: %w", name, err)
		}
		res, err := b.CompareAndSwap(ctx, name, 0, data)
		if err != nil {
			return err
		}
		switch res.Outcome {
		case SwapOK:
			s.logger.Info("project created",
				zap.String("project", name), zap.String("backend", b.Name()))
			return nil
		case SwapTimeout:
			return &LockTimeoutError{Name: name}
		}
		if explicit {
			return fmt.Errorf("%w: %q", ErrNameTaken, name)
		}
		name = fmt.Sprintf("%s-%d", base, suffix)
	}
	return fmt.Errorf("no free name for project %q", base)
}

// Read returns the project without taking the lock. The result may be one
// transition behind a concurrent writer.
func (s *Store) Read(ctx context.Context, name string) (*Project, error) {
	rec, err := resolve(ctx, s.backend).Read(ctx, name)
	if err != nil {
		return nil, err
	}
	return decode(name, rec.Data)
}

func decode(name string, data []byte) (*Project, error) {
	var p Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing project %q: %w", name, err)
	}
	return &p, nil
}

// Update takes the project lock, re-reads the record, applies fn and
// commits with a compare-and-swap against the version it read. The lock
// is released on every exit path.
func (s *Store) Update(ctx context.Context, name string, fn Mutator) (*Project, error) {
	b := resolve(ctx, s.backend)
	unlock, err := b.Lock(ctx, name)
	if err != nil {
		return nil, err
	}
	defer func() {
		if uerr := unlock(); uerr != nil {
			s.logger.Warn("releasing project lock", zap.String("project", name), zap.Error(uerr))
		}
	}()

	rec, err := b.Read(ctx, name)
	if err != nil {
		return nil, err
	}
	p, err := decode(name, rec.Data)
	if err != nil {
		return nil, err
	}
	if err := fn(p); err != nil {
		return nil, err
	}
	p.Name = name
	p.UpdatedAt = nowRFC3339()
	if err := p.Validate(); err != nil {
		return nil, fmt.Errorf("refusing to write invalid project: %w", err)
	}

	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshaling project %q: %w", name, err)
	}
	res, err := b.CompareAndSwap(ctx, name, rec.Version, data)
	if err != nil {
		return nil, err
	}
	switch res.Outcome {
	case SwapConflict:
		return nil, fmt.Errorf("%w: %q expected version %d, found %d; retry the operation",
			ErrVersionConflict, name, rec.Version, res.Version)
	case SwapTimeout:
		return nil, &LockTimeoutError{Name: name}
	}
	return p, nil
}

// Archive soft-deletes a project. The previous status is kept so that
// Unarchive can restore it.
func (s *Store) Archive(ctx context.Context, name string) (*Project, error) {
	return s.Update(ctx, name, func(p *Project) error {
		if p.Status == StatusArchived {
			return fmt.Errorf("%w: %q", ErrAlreadyArchived, name)
		}
		p.ArchivedFrom = p.Status
		p.Status = StatusArchived
		return nil
	})
}

// Unarchive restores an archived project to its previous status.
func (s *Store) Unarchive(ctx context.Context, name string) (*Project, error) {
	return s.Update(ctx, name, func(p *Project) error {
		if p.Status != StatusArchived {
			return fmt.Errorf("%w: %q", ErrNotArchived, name)
		}
		p.Status = p.ArchivedFrom
		if p.Status == "" {
			p.Status = StatusInProgress
		}
		p.ArchivedFrom = ""
		return nil
	})
}

// List returns every readable project, sorted by name. Unreadable records
// are logged and skipped.
func (s *Store) List(ctx context.Context) ([]*Project, error) {
	b := resolve(ctx, s.backend)
	names, err := b.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*Project, 0, len(names))
	for _, n := range names {
		rec, err := b.Read(ctx, n)
		if err != nil {
			s.logger.Warn("skipping unreadable project", zap.String("project", n), zap.Error(err))
			continue
		}
		p, err := decode(n, rec.Data)
		if err != nil {
			s.logger.Warn("skipping unreadable project", zap.String("project", n), zap.Error(err))
			continue
		}
		out = append(out, p)
	}
	return out, nil
}

// FindActive returns the most recently updated in-progress project, or
// nil (not an error) when there is none.
func (s *Store) FindActive(ctx context.Context) (*Project, error) {
	all, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	var live []*Project
	for _, p := range all {
		if p.Status == StatusInProgress {
			live = append(live, p)
		}
	}
	if len(live) == 0 {
		return nil, nil
	}
	sort.SliceStable(live, func(i, j int) bool {
		if live[i].UpdatedAt != live[j].UpdatedAt {
			return live[i].UpdatedAt > live[j].UpdatedAt
		}
		return live[i].Name < live[j].Name
	})
	return live[0], nil
}
