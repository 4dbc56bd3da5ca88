package accessrequest

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ipeimoveis/crm-backend/internal"
	"github.com/ipeimoveis/crm-backend/internal/audit"
	"github.com/ipeimoveis/crm-backend/internal/core/events"
	"github.com/ipeimoveis/crm-backend/internal/core/jsonb"
	"github.com/ipeimoveis/crm-backend/internal/identity"
	"github.com/ipeimoveis/crm-backend/internal/rbac"
	"github.com/ipeimoveis/crm-backend/internal/storage"
)

// tempPasswordLength and tempPasswordCharset define the credentials
// issued to newly approved users. They must change the password on
// first login.
const (
	tempPasswordLength  = 12
	tempPasswordCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789!@#$%^&"
)

// Repository defines the data access methods for access requests and
// login attempts.
type Repository interface {
	Create(ctx context.Context, request *AccessRequest) error
	AttachDocument(ctx context.Context, doc *RequestDocument) error
	GetByID(ctx context.Context, id string) (*AccessRequest, error)
	ListOpen(ctx context.Context) ([]*AccessRequest, error)
	UpdateReview(ctx context.Context, request *AccessRequest) error
	RecordAttempt(ctx context.Context, attempt *LoginAttempt) error
	CountRecentFailures(ctx context.Context, email string, since time.Time) (int64, error)
}

// ProfileCreator is the slice of the RBAC store the approval flow
// needs.
type ProfileCreator interface {
	CreateProfile(ctx context.Context, profile *rbac.Profile) error
}

// PermissionChecker gates reviewer operations.
type PermissionChecker interface {
	HasPermission(ctx context.Context, actorID, resource, action string, permCtx map[string]any) bool
}

// Service handles access request intake, review, and login lockout
// accounting.
type Service struct {
	repo        Repository
	store       storage.Backend
	idp         identity.Provider
	profiles    ProfileCreator
	permissions PermissionChecker
	auditor     *audit.Service
	bus         *events.EventBus
	maxAttempts int
	lockoutWin  time.Duration
	logger      *slog.Logger
}

func NewService(
	repo Repository,
	store storage.Backend,
	idp identity.Provider,
	profiles ProfileCreator,
	permissions PermissionChecker,
	auditor *audit.Service,
	bus *events.EventBus,
	maxAttempts int,
	lockoutWindow time.Duration,
	logger *slog.Logger,
) *Service {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if lockoutWindow <= 0 {
		lockoutWindow = 15 * time.Minute
	}
	return &Service{
		repo:        repo,
		store:       store,
		idp:         idp,
		profiles:    profiles,
		permissions: permissions,
		auditor:     auditor,
		bus:         bus,
		maxAttempts: maxAttempts,
		lockoutWin:  lockoutWindow,
		logger:      logger,
	}
}

// SubmitAccessRequest stores a new request and uploads its documents.
// A second open request for the same email is rejected by the database
// unique guard, not by a racy pre-check. Document upload failures are
// collected and reported; they do not fail the submission.
func (s *Service) SubmitAccessRequest(ctx context.Context, dto SubmitRequestDTO) (*SubmitRequestResult, error) {
	if err := dto.Validate(); err != nil {
		s.logger.Error("access request validation failed", "error", err, "email", dto.Email)
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeValidationFailed)
	}

	now := time.Now().UTC()
	request := &AccessRequest{
		ID:            uuid.NewString(),
		Email:         strings.ToLower(strings.TrimSpace(dto.Email)),
		FullName:      strings.TrimSpace(dto.FullName),
		Phone:         dto.Phone,
		Department:    dto.Department,
		DesiredRoleID: dto.DesiredRoleID,
		Message:       dto.Message,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	if err := s.repo.Create(ctx, request); err != nil {
		if _, ok := internal.IsAppError(err); ok {
			s.logger.Warn("duplicate open access request", "email", request.Email)
			return nil, err
		}
		s.logger.Error("failed to create access request", "error", err, "email", request.Email)
		return nil, err
	}

	var failed []string
	for _, doc := range dto.Documents {
		key := fmt.Sprintf("access-requests/%s/%s", request.ID, doc.FileName)
		info, err := s.store.Upload(ctx, key, doc.ContentType, bytes.NewReader(doc.Content))
		if err != nil {
			s.logger.Error("access request document upload failed",
				"request_id", request.ID,
				"file_name", doc.FileName,
				"error", err)
			failed = append(failed, doc.FileName)
			continue
		}

		record := &RequestDocument{
			ID:           uuid.NewString(),
			RequestID:    request.ID,
			DocumentType: doc.DocumentType,
			FileName:     doc.FileName,
			StorageKey:   key,
			SizeBytes:    info.Size,
			UploadedAt:   time.Now().UTC(),
		}
		if err := s.repo.AttachDocument(ctx, record); err != nil {
			s.logger.Error("failed to attach request document",
				"request_id", request.ID,
				"file_name", doc.FileName,
				"error", err)
			failed = append(failed, doc.FileName)
			continue
		}
		request.Documents = append(request.Documents, *record)
	}

	s.logger.Info("access request submitted",
		"request_id", request.ID,
		"email", request.Email,
		"documents", len(request.Documents),
		"failed_documents", len(failed))

	s.bus.Publish(ctx, events.NewAccessRequestSubmittedEvent(request.ID, request.Email, request.FullName))

	return &SubmitRequestResult{Request: request, FailedDocuments: failed}, nil
}

// GetPendingRequests lists open requests for reviewers.
func (s *Service) GetPendingRequests(ctx context.Context, actorID string) ([]*AccessRequest, error) {
	if !s.permissions.HasPermission(ctx, actorID, "access_requests", "review", nil) {
		s.logger.Warn("pending requests denied: insufficient permissions", "actor_id", actorID)
		return nil, internal.ErrPermissionDenied
	}
	return s.repo.ListOpen(ctx)
}

// GetRequest loads one request for a reviewer.
func (s *Service) GetRequest(ctx context.Context, actorID, requestID string) (*AccessRequest, error) {
	if !s.permissions.HasPermission(ctx, actorID, "access_requests", "review", nil) {
		return nil, internal.ErrPermissionDenied
	}
	return s.repo.GetByID(ctx, requestID)
}

// ReviewAccessRequest acts on an open request. Approval provisions an
// identity account with a temporary password and inserts the RBAC
// profile; if the profile insert fails the freshly created account is
// deleted so no half-provisioned user remains. A request_more_info
// action moves the request to under_review, keeping it open for a
// later decision. Exactly one audit entry is written per action, after
// the state change commits.
func (s *Service) ReviewAccessRequest(ctx context.Context, reviewerID, requestID string, dto ReviewRequestDTO) (*ReviewResult, error) {
	if !s.permissions.HasPermission(ctx, reviewerID, "access_requests", "review", nil) {
		s.logger.Warn("review denied: insufficient permissions",
			"reviewer_id", reviewerID,
			"request_id", requestID)
		return nil, internal.ErrPermissionDenied
	}

	if err := dto.Validate(); err != nil {
		return nil, internal.NewValidationError(err.Error(), internal.ErrCodeInvalidAction)
	}

	request, err := s.repo.GetByID(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if !IsOpen(request.Status) {
		s.logger.Warn("cannot review request in current status",
			"request_id", requestID,
			"status", request.Status)
		return nil, internal.NewConflictError("access request already decided", internal.ErrCodeDuplicateRequest)
	}

	result := &ReviewResult{Request: request}

	switch dto.Action {
	case ReviewActionApprove:
		tempPassword := dto.TempPassword
		if tempPassword == "" {
			var err error
			tempPassword, err = generateTempPassword()
			if err != nil {
				return nil, internal.NewInternalError("failed to generate temporary password", err)
			}
		}

		userID, err := s.idp.CreateUser(ctx, request.Email, tempPassword, map[string]string{
			"full_name":  request.FullName,
			"phone":      request.Phone,
			"department": request.Department,
		})
		if err != nil {
			s.logger.Error("identity provisioning failed",
				"request_id", requestID,
				"email", request.Email,
				"error", err)
			return nil, err
		}

		profile := &rbac.Profile{
			ID:        userID,
			Email:     request.Email,
			FullName:  request.FullName,
			RoleID:    dto.RoleID,
			Status:    rbac.StatusActive,
			CreatedAt: time.Now().UTC(),
			UpdatedAt: time.Now().UTC(),
		}
		if request.Phone != "" {
			profile.Phone = &request.Phone
		}
		if request.Department != "" {
			profile.Department = &request.Department
		}
		if err := s.profiles.CreateProfile(ctx, profile); err != nil {
			s.logger.Error("profile insert failed, compensating identity account",
				"request_id", requestID,
				"user_id", userID,
				"error", err)
			if delErr := s.idp.DeleteUser(ctx, userID); delErr != nil {
				s.logger.Error("compensation failed: orphaned identity account",
					"user_id", userID,
					"error", delErr)
			}
			return nil, internal.NewInternalError("failed to provision user profile", err)
		}

		result.UserCreated = true
		result.UserID = userID
		result.TempPassword = tempPassword
		request.Status = StatusApproved
	case ReviewActionRequestMoreInfo:
		request.Status = StatusUnderReview
	default:
		request.Status = StatusRejected
	}

	now := time.Now().UTC()
	request.ReviewedBy = &reviewerID
	request.ReviewedAt = &now
	request.ReviewNotes = dto.Notes
	request.UpdatedAt = now

	if err := s.repo.UpdateReview(ctx, request); err != nil {
		s.logger.Error("failed to persist review decision",
			"request_id", requestID,
			"error", err)
		return nil, err
	}

	s.auditor.Log(ctx, reviewerID, "access_request_reviewed", "access_requests", &request.ID, jsonb.Map{
		"action":       dto.Action,
		"notes":        dto.Notes,
		"user_created": result.UserCreated,
	})

	s.logger.Info("access request reviewed",
		"request_id", requestID,
		"action", dto.Action,
		"reviewer_id", reviewerID,
		"user_created", result.UserCreated)

	if !IsOpen(request.Status) {
		s.bus.Publish(ctx, events.NewAccessRequestReviewedEvent(
			request.ID, request.Email, dto.Action == ReviewActionApprove, reviewerID))
	}

	return result, nil
}

// RecordLoginAttempt stores a login outcome for lockout accounting.
// The failure reason is kept alongside the outcome so lockout reviews
// can tell a wrong password from an inactive account.
func (s *Service) RecordLoginAttempt(ctx context.Context, email string, success bool, failureReason, ipAddress, userAgent string) error {
	attempt := &LoginAttempt{
		ID:            uuid.NewString(),
		Email:         strings.ToLower(strings.TrimSpace(email)),
		Success:       success,
		FailureReason: failureReason,
		IPAddress:     ipAddress,
		UserAgent:     userAgent,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.repo.RecordAttempt(ctx, attempt); err != nil {
		s.logger.Error("failed to record login attempt", "email", attempt.Email, "error", err)
		return err
	}
	return nil
}

// IsAccountLocked reports whether the email accumulated too many
// failures inside the lockout window. The count is computed fresh on
// every call so a lock expires on its own as attempts age out.
func (s *Service) IsAccountLocked(ctx context.Context, email string) (bool, error) {
	since := time.Now().UTC().Add(-s.lockoutWin)
	failures, err := s.repo.CountRecentFailures(ctx, strings.ToLower(strings.TrimSpace(email)), since)
	if err != nil {
		s.logger.Error("failed to count login failures", "email", email, "error", err)
		return false, err
	}
	return failures >= int64(s.maxAttempts), nil
}

func generateTempPassword() (string, error) {
	password := make([]byte, tempPasswordLength)
	max := big.NewInt(int64(len(tempPasswordCharset)))
	for i := range password {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		password[i] = tempPasswordCharset[n.Int64()]
	}
	return string(password), nil
}
