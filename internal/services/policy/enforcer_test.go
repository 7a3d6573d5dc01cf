package policy

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asakaida/placement/internal/entities"
	"github.com/asakaida/placement/internal/policies"
	"github.com/asakaida/placement/pkg/cache/memorycache"
)

type recordedDecision struct {
	rule    string
	allowed bool
}

type fakeRecorder struct {
	mu        sync.Mutex
	decisions []recordedDecision
}

func (r *fakeRecorder) RecordDecision(rule string, allowed bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions = append(r.decisions, recordedDecision{rule, allowed})
}

func newPlacementEnforcer(t *testing.T, opts Options) *Enforcer {
	t.Helper()
	e, err := NewEnforcer(opts)
	require.NoError(t, err)
	require.NoError(t, e.RegisterDefaults(policies.ListRules()))
	return e
}

var (
	systemAdmin = &entities.Credentials{UserID: "admin", Roles: []string{"admin"}, SystemScope: "all"}
	systemUser  = &entities.Credentials{UserID: "bob", Roles: []string{"reader"}, SystemScope: "all"}
	projectUser = &entities.Credentials{UserID: "alice", ProjectID: "p1", Roles: []string{"admin"}}
)

func TestEnforcer_AdminAPIDefault(t *testing.T) {
	e := newPlacementEnforcer(t, Options{})

	defaults := e.Defaults()
	require.Len(t, defaults, 1)
	assert.Equal(t, "admin_api", defaults[0].Name)
	assert.Equal(t, "role:admin", defaults[0].CheckStr)
	assert.Equal(t, "Default rule for most placement APIs.", defaults[0].Description)
	assert.Equal(t, []string{entities.ScopeSystem}, defaults[0].ScopeTypes)

	ctx := context.Background()

	allowed, err := e.Enforce(ctx, "admin_api", nil, systemAdmin)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = e.Enforce(ctx, "admin_api", nil, systemUser)
	require.NoError(t, err)
	assert.False(t, allowed)
}

func TestEnforcer_Authorize(t *testing.T) {
	recorder := &fakeRecorder{}
	e := newPlacementEnforcer(t, Options{Recorder: recorder})
	ctx := context.Background()

	assert.NoError(t, e.Authorize(ctx, "admin_api", nil, systemAdmin))

	err := e.Authorize(ctx, "admin_api", nil, systemUser)
	assert.ErrorIs(t, err, ErrPolicyNotAuthorized)
	assert.True(t, IsNotAuthorized(err))

	err = e.Authorize(ctx, "placement:unknown", nil, systemAdmin)
	assert.ErrorIs(t, err, ErrPolicyNotRegistered)
	assert.False(t, IsNotAuthorized(err))

	assert.Equal(t, []recordedDecision{
		{"admin_api", true},
		{"admin_api", false},
	}, recorder.decisions)
}

func TestEnforcer_ScopeEnforcement(t *testing.T) {
	ctx := context.Background()

	t.Run("enforced", func(t *testing.T) {
		recorder := &fakeRecorder{}
		e := newPlacementEnforcer(t, Options{EnforceScope: true, Recorder: recorder})

		allowed, err := e.Enforce(ctx, "admin_api", nil, projectUser)
		assert.ErrorIs(t, err, ErrInvalidScope)
		assert.False(t, allowed)
		assert.True(t, IsNotAuthorized(err))
		assert.Equal(t, []recordedDecision{{"admin_api", false}}, recorder.decisions)

		allowed, err = e.Enforce(ctx, "admin_api", nil, systemAdmin)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("not enforced", func(t *testing.T) {
		e := newPlacementEnforcer(t, Options{})

		// A project-scoped admin still passes role:admin when scope
		// enforcement is off.
		allowed, err := e.Enforce(ctx, "admin_api", nil, projectUser)
		require.NoError(t, err)
		assert.True(t, allowed)
	})

	t.Run("nil credentials", func(t *testing.T) {
		e := newPlacementEnforcer(t, Options{EnforceScope: true})

		_, err := e.Enforce(ctx, "admin_api", nil, nil)
		assert.ErrorIs(t, err, ErrInvalidScope)
	})
}

func TestEnforcer_RegisterDefaults(t *testing.T) {
	tests := []struct {
		name    string
		rules   []entities.RuleDefault
		wantErr error
	}{
		{
			name: "valid",
			rules: []entities.RuleDefault{
				{Name: "placement:resource_providers:list", CheckStr: "rule:admin_api", Description: "List resource providers."},
			},
		},
		{
			name: "duplicate of registered",
			rules: []entities.RuleDefault{
				{Name: "admin_api", CheckStr: "role:admin", Description: "again"},
			},
			wantErr: ErrDuplicateRule,
		},
		{
			name: "duplicate within batch",
			rules: []entities.RuleDefault{
				{Name: "a", CheckStr: "@", Description: "a"},
				{Name: "a", CheckStr: "!", Description: "a"},
			},
			wantErr: ErrDuplicateRule,
		},
		{
			name:    "missing description",
			rules:   []entities.RuleDefault{{Name: "a", CheckStr: "@"}},
			wantErr: ErrInvalidRule,
		},
		{
			name:    "bad scope",
			rules:   []entities.RuleDefault{{Name: "a", CheckStr: "@", Description: "a", ScopeTypes: []string{"galaxy"}}},
			wantErr: ErrInvalidRule,
		},
		{
			name:    "unparsable check",
			rules:   []entities.RuleDefault{{Name: "a", CheckStr: "role:admin and", Description: "a"}},
			wantErr: ErrInvalidCheck,
		},
		{
			name:    "invalid cel",
			rules:   []entities.RuleDefault{{Name: "a", CheckStr: `cel:"1 + 1"`, Description: "a"}},
			wantErr: ErrInvalidCheck,
		},
		{
			name: "cycle",
			rules: []entities.RuleDefault{
				{Name: "a", CheckStr: "rule:b", Description: "a"},
				{Name: "b", CheckStr: "rule:a", Description: "b"},
			},
			wantErr: ErrInvalidRule,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newPlacementEnforcer(t, Options{})
			err := e.RegisterDefaults(tt.rules)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				// Failed batches leave the table untouched.
				assert.Len(t, e.Defaults(), 1)
				assert.Len(t, e.Rules(), 1)
				return
			}
			require.NoError(t, err)
			assert.Len(t, e.Defaults(), 1+len(tt.rules))
		})
	}
}

func TestEnforcer_RegisterDefaultOrder(t *testing.T) {
	e := newPlacementEnforcer(t, Options{})
	require.NoError(t, e.RegisterDefault(entities.RuleDefault{Name: "zeta", CheckStr: "@", Description: "z"}))
	require.NoError(t, e.RegisterDefault(entities.RuleDefault{Name: "alpha", CheckStr: "@", Description: "a"}))

	var names []string
	for _, d := range e.Defaults() {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"admin_api", "zeta", "alpha"}, names)

	names = nil
	for _, r := range e.Rules() {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"admin_api", "alpha", "zeta"}, names)
}

func TestEnforcer_SetRules(t *testing.T) {
	ctx := context.Background()
	e := newPlacementEnforcer(t, Options{})

	require.NoError(t, e.SetRules(map[string]string{
		"admin_api":   "role:admin or role:operator",
		"custom_rule": "rule:admin_api",
	}, false))

	operator := &entities.Credentials{Roles: []string{"operator"}, SystemScope: "all"}
	allowed, err := e.Enforce(ctx, "admin_api", nil, operator)
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = e.Enforce(ctx, "custom_rule", nil, operator)
	require.NoError(t, err)
	assert.True(t, allowed)

	// Defaults are untouched by overrides.
	assert.Equal(t, "role:admin", e.Defaults()[0].CheckStr)

	rules := e.Rules()
	require.Len(t, rules, 2)
	assert.Equal(t, "admin_api", rules[0].Name)
	assert.Equal(t, "role:admin or role:operator", rules[0].CheckStr)
	assert.Equal(t, "Default rule for most placement APIs.", rules[0].Description)
	assert.Equal(t, "custom_rule", rules[1].Name)
	assert.Empty(t, rules[1].Description)

	t.Run("merge keeps earlier overrides", func(t *testing.T) {
		require.NoError(t, e.SetRules(map[string]string{"other": "@"}, false))
		assert.Len(t, e.Overrides(), 3)
	})

	t.Run("overwrite drops earlier overrides", func(t *testing.T) {
		require.NoError(t, e.SetRules(map[string]string{"other": "@"}, true))
		assert.Equal(t, map[string]string{"other": "@"}, e.Overrides())

		allowed, err := e.Enforce(ctx, "admin_api", nil, operator)
		require.NoError(t, err)
		assert.False(t, allowed)

		_, err = e.Enforce(ctx, "custom_rule", nil, operator)
		assert.ErrorIs(t, err, ErrPolicyNotRegistered)
	})

	t.Run("invalid override is rejected atomically", func(t *testing.T) {
		err := e.SetRules(map[string]string{"admin_api": "role:"}, true)
		assert.ErrorIs(t, err, ErrInvalidCheck)
		assert.Equal(t, map[string]string{"other": "@"}, e.Overrides())
	})

	t.Run("cycle is rejected", func(t *testing.T) {
		err := e.SetRules(map[string]string{"admin_api": "rule:loop", "loop": "rule:admin_api"}, false)
		assert.ErrorIs(t, err, ErrInvalidRule)
	})

	t.Run("empty name", func(t *testing.T) {
		err := e.SetRules(map[string]string{"": "@"}, false)
		assert.ErrorIs(t, err, ErrInvalidRule)
	})
}

func TestEnforcer_OverrideBeforeDefault(t *testing.T) {
	e, err := NewEnforcer(Options{})
	require.NoError(t, err)

	require.NoError(t, e.SetRules(map[string]string{"admin_api": "role:operator"}, false))
	require.NoError(t, e.RegisterDefaults(policies.ListRules()))

	rules := e.Rules()
	require.Len(t, rules, 1)
	assert.Equal(t, "role:operator", rules[0].CheckStr)
	assert.Equal(t, []string{entities.ScopeSystem}, rules[0].ScopeTypes)
}

func TestEnforcer_UndefinedReference(t *testing.T) {
	e := newPlacementEnforcer(t, Options{})
	require.NoError(t, e.SetRules(map[string]string{"dangling": "rule:missing or role:admin"}, false))

	allowed, err := e.Enforce(context.Background(), "dangling", nil, systemUser)
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = e.Enforce(context.Background(), "dangling", nil, systemAdmin)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestEnforcer_LoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
admin_api: "role:admin or role:operator"
placement:reshaper:reshape: "rule:admin_api"
`), 0o600))

	e := newPlacementEnforcer(t, Options{})
	require.NoError(t, e.LoadFile(path))
	assert.Len(t, e.Overrides(), 2)

	operator := &entities.Credentials{Roles: []string{"operator"}, SystemScope: "all"}
	assert.NoError(t, e.Authorize(context.Background(), "placement:reshaper:reshape", nil, operator))

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte(`admin_api: "role:admin and ("`), 0o600))
	assert.ErrorIs(t, e.LoadFile(bad), ErrInvalidCheck)
	assert.Len(t, e.Overrides(), 2)

	assert.Error(t, e.LoadFile(filepath.Join(dir, "missing.yaml")))
}

func TestEnforcer_EnforceCheck(t *testing.T) {
	c, err := memorycache.New(&memorycache.Config{
		MaxSizeBytes:  1024 * 1024,
		DefaultTTL:    time.Minute,
		EnableMetrics: true,
	})
	require.NoError(t, err)

	e := newPlacementEnforcer(t, Options{CheckCache: c, CacheTTL: time.Minute})
	ctx := context.Background()
	target := entities.Target{"project_id": "p1"}

	checkStr := "rule:admin_api or project_id:%(project_id)s"
	for i := 0; i < 3; i++ {
		allowed, err := e.EnforceCheck(ctx, checkStr, target, projectUser)
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	m := c.Metrics()
	assert.Equal(t, uint64(1), m.Misses)
	assert.Equal(t, uint64(2), m.Hits)
	assert.Equal(t, 1, c.Len())

	allowed, err := e.EnforceCheck(ctx, checkStr, entities.Target{"project_id": "p2"}, systemUser)
	require.NoError(t, err)
	assert.False(t, allowed)

	_, err = e.EnforceCheck(ctx, "role:admin or", target, systemAdmin)
	assert.ErrorIs(t, err, ErrInvalidCheck)
	assert.Equal(t, 1, c.Len())
}

func TestEnforcer_ConcurrentAccess(t *testing.T) {
	e := newPlacementEnforcer(t, Options{})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				_, err := e.Enforce(ctx, "admin_api", nil, systemAdmin)
				assert.NoError(t, err)
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				assert.NoError(t, e.SetRules(map[string]string{"admin_api": "role:admin"}, true))
			}
		}()
	}
	wg.Wait()
}
