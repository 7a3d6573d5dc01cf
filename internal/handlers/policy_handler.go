package handlers

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/asakaida/placement/internal/entities"
	"github.com/asakaida/placement/internal/services/policy"
	"github.com/asakaida/placement/internal/version"
)

// RequestIDHeader carries the caller's request ID, if any
const RequestIDHeader = "x-request-id"

// EnforcerInterface defines the policy operations the handler serves
type EnforcerInterface interface {
	Enforce(ctx context.Context, rule string, target entities.Target, creds *entities.Credentials) (bool, error)
	EnforceCheck(ctx context.Context, checkStr string, target entities.Target, creds *entities.Credentials) (bool, error)
	Rules() []entities.RuleDefault
	Defaults() []entities.RuleDefault
	Overrides() map[string]string
}

// OverrideManagerInterface defines override writes
type OverrideManagerInterface interface {
	Set(ctx context.Context, name, checkStr, updatedBy string) (*entities.RuleOverride, error)
	Delete(ctx context.Context, name string) error
}

// PolicyHandler handles PolicyService gRPC requests
type PolicyHandler struct {
	enforcer  EnforcerInterface
	overrides OverrideManagerInterface
	logger    *zap.Logger
}

var _ PolicyServiceServer = (*PolicyHandler)(nil)

// NewPolicyHandler creates a new PolicyHandler
func NewPolicyHandler(enforcer EnforcerInterface, overrides OverrideManagerInterface, logger *zap.Logger) *PolicyHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PolicyHandler{
		enforcer:  enforcer,
		overrides: overrides,
		logger:    logger,
	}
}

// Authorize evaluates a registered rule, or an ad-hoc check string, for
// the given target and credentials. With do_raise a denial is returned as
// PermissionDenied instead of allowed=false.
func (h *PolicyHandler) Authorize(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	rule, hasRule, err := optionalString(fields, "rule")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	checkStr, hasCheck, err := optionalString(fields, "check")
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	if !hasRule && !hasCheck {
		return nil, status.Error(codes.InvalidArgument, "rule or check is required")
	}
	if hasRule && hasCheck {
		return nil, status.Error(codes.InvalidArgument, "rule and check are mutually exclusive")
	}

	target, err := targetFromStruct(fields["target"])
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	creds, err := credentialsFromStruct(fields["credentials"])
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	requestID := requestIDFromContext(ctx)
	logger := h.logger.With(zap.String("request_id", requestID))

	var allowed bool
	if hasCheck {
		allowed, err = h.enforcer.EnforceCheck(ctx, checkStr, target, creds)
	} else {
		allowed, err = h.enforcer.Enforce(ctx, rule, target, creds)
	}
	if err != nil {
		logger.Info("authorization failed", zap.String("rule", rule), zap.Error(err))
		return nil, toStatus(err)
	}

	logger.Debug("authorization decision",
		zap.String("rule", rule),
		zap.String("user_id", creds.UserID),
		zap.Bool("allowed", allowed))

	if !allowed && fields["do_raise"].GetBoolValue() {
		return nil, toStatus(fmt.Errorf("%w: %s", policy.ErrPolicyNotAuthorized, rule))
	}

	return structpb.NewStruct(map[string]interface{}{
		"allowed":    allowed,
		"rule":       rule,
		"request_id": requestID,
	})
}

// ListRules returns the effective rule table
func (h *PolicyHandler) ListRules(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	overrides := h.enforcer.Overrides()
	rules := h.enforcer.Rules()

	out := make([]interface{}, 0, len(rules))
	for _, r := range rules {
		m := ruleToMap(r)
		_, overridden := overrides[r.Name]
		m["overridden"] = overridden
		out = append(out, m)
	}
	return structpb.NewStruct(map[string]interface{}{"rules": out})
}

// ListDefaults returns the registered rule defaults in registration order
func (h *PolicyHandler) ListDefaults(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	defaults := h.enforcer.Defaults()
	out := make([]interface{}, 0, len(defaults))
	for _, r := range defaults {
		out = append(out, ruleToMap(r))
	}
	return structpb.NewStruct(map[string]interface{}{"rules": out})
}

// SetOverride stores and applies a check string override
func (h *PolicyHandler) SetOverride(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	fields := req.GetFields()
	name := fields["name"].GetStringValue()
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "name is required")
	}
	checkStr, ok := fields["check_str"].GetKind().(*structpb.Value_StringValue)
	if !ok {
		return nil, status.Error(codes.InvalidArgument, "check_str must be a string")
	}

	override, err := h.overrides.Set(ctx, name, checkStr.StringValue, fields["updated_by"].GetStringValue())
	if err != nil {
		return nil, toStatus(err)
	}

	return structpb.NewStruct(map[string]interface{}{
		"name":       override.Name,
		"check_str":  override.CheckStr,
		"updated_by": override.UpdatedBy,
	})
}

// DeleteOverride removes a stored override
func (h *PolicyHandler) DeleteOverride(ctx context.Context, req *structpb.Struct) (*emptypb.Empty, error) {
	name := req.GetFields()["name"].GetStringValue()
	if name == "" {
		return nil, status.Error(codes.InvalidArgument, "name is required")
	}

	if err := h.overrides.Delete(ctx, name); err != nil {
		return nil, toStatus(err)
	}
	return &emptypb.Empty{}, nil
}

// Version returns the release and VCS version
func (h *PolicyHandler) Version(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {
	info := version.Info()
	return structpb.NewStruct(map[string]interface{}{
		"version":          version.String(),
		"vcs_version":      version.VCSVersionString(),
		"version_with_vcs": version.StringWithVCS(),
		"branch_nick":      info.BranchNick,
		"revision_id":      info.RevisionID,
	})
}
