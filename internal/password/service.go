package password

import (
	"context"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
	"github.com/ipeimoveis/crm-backend/internal"
	"github.com/ipeimoveis/crm-backend/internal/audit"
	"github.com/ipeimoveis/crm-backend/internal/rbac"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

// commonPasswords is the denylist checked case-insensitively. A
// password equal to any entry fails validation regardless of the other
// rules.
var commonPasswords = []string{
	"password", "password1", "123456", "12345678", "123456789",
	"qwerty", "abc123", "letmein", "welcome", "admin", "iloveyou",
	"monkey", "dragon", "sunshine", "princess",
}

// CredentialStore applies and verifies password hashes.
type CredentialStore interface {
	PasswordHash(ctx context.Context, userID string) (string, error)
	UpdatePassword(ctx context.Context, userID, newPassword string) error
}

// Authorizer answers the policy questions the change flow asks.
type Authorizer interface {
	Profile(ctx context.Context, userID string) (*rbac.Profile, error)
	HasPermission(ctx context.Context, actorID, resource, action string, permCtx map[string]any) bool
	CanManageUser(ctx context.Context, actorID, targetID string) bool
	IsSuperAdmin(profile *rbac.Profile) bool
}

// Repository stores pending change approvals.
type Repository interface {
	CreateChangeRequest(ctx context.Context, req *ChangeRequest) error
	GetChangeRequest(ctx context.Context, id string) (*ChangeRequest, error)
	UpdateChangeRequest(ctx context.Context, req *ChangeRequest) error
}

// Service enforces password policy and authorization for password
// changes.
type Service struct {
	credentials CredentialStore
	authz       Authorizer
	repo        Repository
	auditor     *audit.Service
	logger      *slog.Logger
}

func NewService(credentials CredentialStore, authz Authorizer, repo Repository, auditor *audit.Service, logger *slog.Logger) *Service {
	return &Service{
		credentials: credentials,
		authz:       authz,
		repo:        repo,
		auditor:     auditor,
		logger:      logger,
	}
}

// CanChangePassword evaluates the ordered authorization rules. The
// first matching rule wins; when none match the answer is a denial,
// never an implicit grant.
func (s *Service) CanChangePassword(ctx context.Context, actorID, targetID string) Authorization {
	if actorID == targetID {
		return Authorization{Authorized: true, RequiredAction: ActionRequireCurrentPassword}
	}

	actor, err := s.authz.Profile(ctx, actorID)
	if err != nil {
		s.logger.Warn("password authorization denied: actor profile unavailable",
			"actor_id", actorID, "error", err)
		return Authorization{Authorized: false, Reason: "actor profile not found"}
	}

	if s.authz.IsSuperAdmin(actor) {
		return Authorization{Authorized: true}
	}

	if s.authz.HasPermission(ctx, actorID, "users", "update_password", nil) &&
		s.authz.CanManageUser(ctx, actorID, targetID) {
		return Authorization{Authorized: true, RequiredAction: ActionRequireAdminApproval}
	}

	return Authorization{
		Authorized: false,
		Reason:     "insufficient privileges to change this user's password",
	}
}

// ValidatePasswordSecurity checks every policy rule and returns all
// violations, not just the first.
func (s *Service) ValidatePasswordSecurity(password string) []internal.ValidationError {
	var errs []internal.ValidationError

	if len(password) < minPasswordLength {
		errs = append(errs, internal.ValidationError{
			Field: "password", Code: string(internal.ErrCodeWeakPassword),
			Message: "password must be at least 8 characters long",
		})
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}
	if !hasUpper {
		errs = append(errs, internal.ValidationError{
			Field: "password", Code: string(internal.ErrCodeWeakPassword),
			Message: "password must contain an uppercase letter",
		})
	}
	if !hasLower {
		errs = append(errs, internal.ValidationError{
			Field: "password", Code: string(internal.ErrCodeWeakPassword),
			Message: "password must contain a lowercase letter",
		})
	}
	if !hasDigit {
		errs = append(errs, internal.ValidationError{
			Field: "password", Code: string(internal.ErrCodeWeakPassword),
			Message: "password must contain a digit",
		})
	}
	if !hasSpecial {
		errs = append(errs, internal.ValidationError{
			Field: "password", Code: string(internal.ErrCodeWeakPassword),
			Message: "password must contain a special character",
		})
	}

	lowered := strings.ToLower(password)
	for _, common := range commonPasswords {
		if lowered == common {
			errs = append(errs, internal.ValidationError{
				Field: "password", Code: string(internal.ErrCodeWeakPassword),
				Message: "password is too common",
			})
			break
		}
	}

	return errs
}

// ProcessPasswordChange runs the full change workflow: confirmation
// match, authorization, policy validation, current-password
// verification when required, and either the immediate change or a
// pending approval record.
func (s *Service) ProcessPasswordChange(ctx context.Context, actorID, targetID string, dto ChangePasswordDTO) (*ChangeResult, error) {
	if dto.NewPassword != dto.ConfirmPassword {
		return nil, internal.NewValidationError("new password and confirmation do not match", internal.ErrCodeValidationFailed)
	}

	authz := s.CanChangePassword(ctx, actorID, targetID)
	if !authz.Authorized {
		s.logger.Warn("password change denied",
			"actor_id", actorID,
			"target_id", targetID,
			"reason", authz.Reason)
		return nil, internal.NewForbiddenError(authz.Reason, internal.ErrCodePermissionDenied)
	}

	if violations := s.ValidatePasswordSecurity(dto.NewPassword); len(violations) > 0 {
		return nil, internal.NewValidationError("new password does not meet the security policy", internal.ErrCodeWeakPassword).
			WithDetails(internal.ValidationErrors{Errors: violations})
	}

	if authz.RequiredAction == ActionRequireCurrentPassword {
		storedHash, err := s.credentials.PasswordHash(ctx, targetID)
		if err != nil {
			return nil, err
		}
		if err := bcrypt.CompareHashAndPassword([]byte(storedHash), []byte(dto.CurrentPassword)); err != nil {
			s.logger.Warn("password change rejected: wrong current password", "target_id", targetID)
			return nil, internal.NewUnauthorizedError("current password is incorrect", internal.ErrCodeWrongPassword)
		}
	}

	if authz.RequiredAction == ActionRequireAdminApproval {
		request := &ChangeRequest{
			ID:          uuid.NewString(),
			TargetID:    targetID,
			RequestedBy: actorID,
			Status:      ChangeStatusPending,
			CreatedAt:   time.Now().UTC(),
		}
		if err := s.repo.CreateChangeRequest(ctx, request); err != nil {
			s.logger.Error("failed to create password change request", "target_id", targetID, "error", err)
			return nil, err
		}

		s.auditor.Log(ctx, actorID, "password_change_requested", "users", &targetID, map[string]any{
			"request_id": request.ID,
		})

		s.logger.Info("password change pending approval",
			"request_id", request.ID,
			"actor_id", actorID,
			"target_id", targetID)

		return &ChangeResult{Status: ResultPendingApproval, RequestID: request.ID}, nil
	}

	if err := s.credentials.UpdatePassword(ctx, targetID, dto.NewPassword); err != nil {
		s.logger.Error("failed to update password", "target_id", targetID, "error", err)
		return nil, err
	}

	s.auditor.Log(ctx, actorID, "password_changed", "users", &targetID, map[string]any{
		"self_change": actorID == targetID,
	})

	s.logger.Info("password changed", "actor_id", actorID, "target_id", targetID, "self_change", actorID == targetID)

	return &ChangeResult{Status: ResultChanged}, nil
}

// ApproveChangeRequest lets a super admin resolve a pending request.
// The new password arrives with the approval so no plaintext is ever
// stored while waiting.
func (s *Service) ApproveChangeRequest(ctx context.Context, approverID, requestID, newPassword string) (*ChangeResult, error) {
	approver, err := s.authz.Profile(ctx, approverID)
	if err != nil {
		return nil, internal.ErrPermissionDenied
	}
	if !s.authz.IsSuperAdmin(approver) {
		return nil, internal.ErrPermissionDenied
	}

	request, err := s.repo.GetChangeRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if request.Status != ChangeStatusPending {
		return nil, internal.NewConflictError("password change request already resolved", internal.ErrCodeInvalidStatus)
	}

	if violations := s.ValidatePasswordSecurity(newPassword); len(violations) > 0 {
		return nil, internal.NewValidationError("new password does not meet the security policy", internal.ErrCodeWeakPassword).
			WithDetails(internal.ValidationErrors{Errors: violations})
	}

	if err := s.credentials.UpdatePassword(ctx, request.TargetID, newPassword); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	request.Status = ChangeStatusApproved
	request.ApprovedBy = &approverID
	request.ApprovedAt = &now
	if err := s.repo.UpdateChangeRequest(ctx, request); err != nil {
		return nil, err
	}

	s.auditor.Log(ctx, approverID, "password_change_approved", "users", &request.TargetID, map[string]any{
		"request_id": requestID,
	})

	return &ChangeResult{Status: ResultChanged, RequestID: requestID}, nil
}
