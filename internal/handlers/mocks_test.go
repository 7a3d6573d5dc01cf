package handlers

import (
	"context"

	"github.com/asakaida/placement/internal/entities"
)

// Mock Enforcer
type mockEnforcer struct {
	enforceFunc      func(ctx context.Context, rule string, target entities.Target, creds *entities.Credentials) (bool, error)
	enforceCheckFunc func(ctx context.Context, checkStr string, target entities.Target, creds *entities.Credentials) (bool, error)
	rules            []entities.RuleDefault
	overrides        map[string]string
}

func (m *mockEnforcer) Enforce(ctx context.Context, rule string, target entities.Target, creds *entities.Credentials) (bool, error) {
	if m.enforceFunc != nil {
		return m.enforceFunc(ctx, rule, target, creds)
	}
	return false, nil
}

func (m *mockEnforcer) EnforceCheck(ctx context.Context, checkStr string, target entities.Target, creds *entities.Credentials) (bool, error) {
	if m.enforceCheckFunc != nil {
		return m.enforceCheckFunc(ctx, checkStr, target, creds)
	}
	return false, nil
}

func (m *mockEnforcer) Rules() []entities.RuleDefault {
	return m.rules
}

func (m *mockEnforcer) Defaults() []entities.RuleDefault {
	return m.rules
}

func (m *mockEnforcer) Overrides() map[string]string {
	return m.overrides
}

// Mock OverrideManager
type mockOverrideManager struct {
	setFunc    func(ctx context.Context, name, checkStr, updatedBy string) (*entities.RuleOverride, error)
	deleteFunc func(ctx context.Context, name string) error
}

func (m *mockOverrideManager) Set(ctx context.Context, name, checkStr, updatedBy string) (*entities.RuleOverride, error) {
	if m.setFunc != nil {
		return m.setFunc(ctx, name, checkStr, updatedBy)
	}
	return &entities.RuleOverride{Name: name, CheckStr: checkStr, UpdatedBy: updatedBy}, nil
}

func (m *mockOverrideManager) Delete(ctx context.Context, name string) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, name)
	}
	return nil
}
