package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/asakaida/placement/internal/entities"
	"github.com/asakaida/placement/internal/repositories"
	"github.com/asakaida/placement/internal/services/policy"
)

// toStatus maps policy errors to gRPC status codes
func toStatus(err error) error {
	switch {
	case errors.Is(err, policy.ErrInvalidScope):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, policy.ErrPolicyNotAuthorized):
		return status.Error(codes.PermissionDenied, err.Error())
	case errors.Is(err, policy.ErrPolicyNotRegistered),
		errors.Is(err, repositories.ErrOverrideNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, policy.ErrInvalidCheck),
		errors.Is(err, policy.ErrInvalidRule),
		errors.Is(err, policy.ErrDuplicateRule):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

func requestIDFromContext(ctx context.Context) string {
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if ids := md.Get(RequestIDHeader); len(ids) > 0 && ids[0] != "" {
			return ids[0]
		}
	}
	return "req-" + uuid.NewString()
}

// optionalString returns fields[key] when it is present. A present value
// must be a non-blank string; an empty check string would allow everything.
func optionalString(fields map[string]*structpb.Value, key string) (string, bool, error) {
	v, ok := fields[key]
	if !ok {
		return "", false, nil
	}
	sv, ok := v.GetKind().(*structpb.Value_StringValue)
	if !ok || strings.TrimSpace(sv.StringValue) == "" {
		return "", false, fmt.Errorf("%s must be a non-empty string", key)
	}
	return sv.StringValue, true, nil
}

func ruleToMap(r entities.RuleDefault) map[string]interface{} {
	scopes := make([]interface{}, len(r.ScopeTypes))
	for i, s := range r.ScopeTypes {
		scopes[i] = s
	}
	return map[string]interface{}{
		"name":        r.Name,
		"check_str":   r.CheckStr,
		"description": r.Description,
		"scope_types": scopes,
	}
}

func targetFromStruct(v *structpb.Value) (entities.Target, error) {
	if v == nil {
		return entities.Target{}, nil
	}
	s := v.GetStructValue()
	if s == nil {
		return nil, fmt.Errorf("target must be an object")
	}
	return entities.Target(s.AsMap()), nil
}

// credentialsFromStruct reads the known credential keys; every other key
// is kept in Extra for generic checks
func credentialsFromStruct(v *structpb.Value) (*entities.Credentials, error) {
	creds := &entities.Credentials{}
	if v == nil {
		return creds, nil
	}
	s := v.GetStructValue()
	if s == nil {
		return nil, fmt.Errorf("credentials must be an object")
	}

	for key, field := range s.GetFields() {
		switch key {
		case "user_id":
			creds.UserID = field.GetStringValue()
		case "project_id":
			creds.ProjectID = field.GetStringValue()
		case "domain_id":
			creds.DomainID = field.GetStringValue()
		case "system_scope":
			creds.SystemScope = field.GetStringValue()
		case "is_admin_project":
			creds.IsAdminProject = field.GetBoolValue()
		case "roles":
			roles, err := stringList(field)
			if err != nil {
				return nil, fmt.Errorf("credentials.roles %w", err)
			}
			creds.Roles = roles
		default:
			if creds.Extra == nil {
				creds.Extra = make(map[string]interface{})
			}
			creds.Extra[key] = field.AsInterface()
		}
	}
	return creds, nil
}

func stringList(v *structpb.Value) ([]string, error) {
	list := v.GetListValue()
	if list == nil {
		return nil, fmt.Errorf("must be a list of strings")
	}
	out := make([]string, 0, len(list.GetValues()))
	for _, item := range list.GetValues() {
		s := strings.TrimSpace(item.GetStringValue())
		if s == "" {
			return nil, fmt.Errorf("must be a list of strings")
		}
		out = append(out, s)
	}
	return out, nil
}
