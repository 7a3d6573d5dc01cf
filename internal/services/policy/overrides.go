package policy

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/asakaida/placement/internal/entities"
	"github.com/asakaida/placement/internal/repositories"
)

// OverrideManager keeps the enforcer's overrides in sync with the policy
// file and the override store. Stored overrides win over the file.
type OverrideManager struct {
	mu       sync.Mutex
	enforcer *Enforcer
	repo     repositories.RuleOverrideRepository // nil keeps overrides in memory
	filePath string
	memory   map[string]string
	logger   *zap.Logger
}

// NewOverrideManager creates an OverrideManager. repo and filePath are optional.
func NewOverrideManager(enforcer *Enforcer, repo repositories.RuleOverrideRepository, filePath string, logger *zap.Logger) *OverrideManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OverrideManager{
		enforcer: enforcer,
		repo:     repo,
		filePath: filePath,
		memory:   make(map[string]string),
		logger:   logger,
	}
}

// Reload rebuilds the enforcer's overrides from the file and the store
func (m *OverrideManager) Reload(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reload(ctx)
}

func (m *OverrideManager) reload(ctx context.Context) error {
	merged := make(map[string]string)

	if m.filePath != "" {
		fromFile, err := LoadPolicyFile(m.filePath)
		if err != nil {
			return err
		}
		for name, checkStr := range fromFile {
			merged[name] = checkStr
		}
	}

	stored, err := m.stored(ctx)
	if err != nil {
		return err
	}
	for name, checkStr := range stored {
		merged[name] = checkStr
	}

	if err := m.enforcer.SetRules(merged, true); err != nil {
		return err
	}
	m.logger.Debug("reloaded policy overrides", zap.Int("rules", len(merged)))
	return nil
}

func (m *OverrideManager) stored(ctx context.Context) (map[string]string, error) {
	if m.repo == nil {
		out := make(map[string]string, len(m.memory))
		for k, v := range m.memory {
			out[k] = v
		}
		return out, nil
	}

	overrides, err := m.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load stored overrides: %w", err)
	}
	return repositories.ToMap(overrides), nil
}

// Set stores an override and applies it. An override that would leave the
// rule table invalid is rolled back.
func (m *OverrideManager) Set(ctx context.Context, name, checkStr, updatedBy string) (*entities.RuleOverride, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty rule name", ErrInvalidRule)
	}
	if err := m.enforcer.ValidateCheck(checkStr); err != nil {
		return nil, fmt.Errorf("rule %s: %w", name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	previous, hadPrevious, err := m.get(ctx, name)
	if err != nil {
		return nil, err
	}

	override := &entities.RuleOverride{Name: name, CheckStr: checkStr, UpdatedBy: updatedBy}
	if err := m.put(ctx, override); err != nil {
		return nil, err
	}

	if err := m.reload(ctx); err != nil {
		m.restore(ctx, name, previous, hadPrevious)
		return nil, err
	}

	m.logger.Info("policy override set",
		zap.String("rule", name),
		zap.String("check_str", checkStr),
		zap.String("updated_by", updatedBy))
	return override, nil
}

// Delete removes a stored override, reverting the rule to its file or
// default check string
func (m *OverrideManager) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	previous, hadPrevious, err := m.get(ctx, name)
	if err != nil {
		return err
	}
	if !hadPrevious {
		return fmt.Errorf("%w: %s", repositories.ErrOverrideNotFound, name)
	}

	if err := m.remove(ctx, name); err != nil {
		return err
	}

	// Removing an override can expose a cycle through the file's rules.
	if err := m.reload(ctx); err != nil {
		m.restore(ctx, name, previous, true)
		return err
	}

	m.logger.Info("policy override deleted", zap.String("rule", name))
	return nil
}

func (m *OverrideManager) get(ctx context.Context, name string) (string, bool, error) {
	if m.repo == nil {
		checkStr, ok := m.memory[name]
		return checkStr, ok, nil
	}

	o, err := m.repo.Get(ctx, name)
	if errors.Is(err, repositories.ErrOverrideNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return o.CheckStr, true, nil
}

func (m *OverrideManager) put(ctx context.Context, o *entities.RuleOverride) error {
	if m.repo == nil {
		m.memory[o.Name] = o.CheckStr
		return nil
	}
	return m.repo.Upsert(ctx, o)
}

func (m *OverrideManager) remove(ctx context.Context, name string) error {
	if m.repo == nil {
		delete(m.memory, name)
		return nil
	}
	return m.repo.Delete(ctx, name)
}

// restore puts back the stored state of name after a failed write
func (m *OverrideManager) restore(ctx context.Context, name, previous string, hadPrevious bool) {
	var err error
	if hadPrevious {
		err = m.put(ctx, &entities.RuleOverride{Name: name, CheckStr: previous})
	} else {
		err = m.remove(ctx, name)
	}
	if err != nil {
		m.logger.Error("failed to roll back policy override", zap.String("rule", name), zap.Error(err))
	}
}
