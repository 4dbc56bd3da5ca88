package password_test

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ipeimoveis/crm-backend/internal"
	"github.com/ipeimoveis/crm-backend/internal/audit"
	"github.com/ipeimoveis/crm-backend/internal/password"
	"github.com/ipeimoveis/crm-backend/internal/rbac"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"golang.org/x/crypto/bcrypt"
)

type fakeCredentials struct {
	hashes  map[string]string
	updated map[string]string
}

func (f *fakeCredentials) PasswordHash(_ context.Context, userID string) (string, error) {
	h, ok := f.hashes[userID]
	if !ok {
		return "", internal.ErrProfileNotFound
	}
	return h, nil
}

func (f *fakeCredentials) UpdatePassword(_ context.Context, userID, newPassword string) error {
	f.updated[userID] = newPassword
	return nil
}

type fakeAuthz struct {
	profiles    map[string]*rbac.Profile
	superAdmins map[string]bool
	permissions map[string]bool
	manages     map[string]bool
}

func (f *fakeAuthz) Profile(_ context.Context, userID string) (*rbac.Profile, error) {
	p, ok := f.profiles[userID]
	if !ok {
		return nil, errors.New("profile not found")
	}
	return p, nil
}

func (f *fakeAuthz) HasPermission(_ context.Context, actorID, resource, action string, _ map[string]any) bool {
	return f.permissions[actorID+":"+resource+":"+action]
}

func (f *fakeAuthz) CanManageUser(_ context.Context, actorID, targetID string) bool {
	return f.manages[actorID+">"+targetID]
}

func (f *fakeAuthz) IsSuperAdmin(p *rbac.Profile) bool {
	return p != nil && f.superAdmins[p.ID]
}

type fakeChangeRepo struct {
	created  []*password.ChangeRequest
	requests map[string]*password.ChangeRequest
}

func (f *fakeChangeRepo) CreateChangeRequest(_ context.Context, req *password.ChangeRequest) error {
	f.created = append(f.created, req)
	f.requests[req.ID] = req
	return nil
}

func (f *fakeChangeRepo) GetChangeRequest(_ context.Context, id string) (*password.ChangeRequest, error) {
	req, ok := f.requests[id]
	if !ok {
		return nil, internal.ErrRequestNotFound
	}
	return req, nil
}

func (f *fakeChangeRepo) UpdateChangeRequest(_ context.Context, req *password.ChangeRequest) error {
	f.requests[req.ID] = req
	return nil
}

type nopAuditRepo struct{}

func (nopAuditRepo) Append(_ context.Context, _ *audit.Entry) error { return nil }
func (nopAuditRepo) ListByResource(_ context.Context, _, _ string) ([]*audit.Entry, error) {
	return nil, nil
}

var _ = Describe("Password service", func() {
	var (
		creds   *fakeCredentials
		authz   *fakeAuthz
		repo    *fakeChangeRepo
		service *password.Service
		ctx     context.Context
	)

	BeforeEach(func() {
		creds = &fakeCredentials{hashes: map[string]string{}, updated: map[string]string{}}
		authz = &fakeAuthz{
			profiles:    map[string]*rbac.Profile{},
			superAdmins: map[string]bool{},
			permissions: map[string]bool{},
			manages:     map[string]bool{},
		}
		repo = &fakeChangeRepo{requests: map[string]*password.ChangeRequest{}}
		service = password.NewService(creds, authz, repo, audit.NewService(nopAuditRepo{}, slog.Default()), slog.Default())
		ctx = context.Background()
	})

	Describe("ValidatePasswordSecurity", func() {
		It("collects every violation for a hopeless password", func() {
			errs := service.ValidatePasswordSecurity("abc")
			Expect(len(errs)).To(BeNumerically(">=", 4))
		})

		It("accepts a strong password", func() {
			Expect(service.ValidatePasswordSecurity("Str0ng!Pass")).To(BeEmpty())
		})

		It("rejects common passwords regardless of other rules", func() {
			errs := service.ValidatePasswordSecurity("password")
			messages := make([]string, len(errs))
			for i, e := range errs {
				messages[i] = e.Message
			}
			Expect(messages).To(ContainElement("password is too common"))
		})

		It("rejects denylist entries case-insensitively", func() {
			errs := service.ValidatePasswordSecurity("QWERTY")
			messages := make([]string, len(errs))
			for i, e := range errs {
				messages[i] = e.Message
			}
			Expect(messages).To(ContainElement("password is too common"))
		})
	})

	Describe("CanChangePassword", func() {
		It("lets anyone change their own password with the current one", func() {
			result := service.CanChangePassword(ctx, "user-1", "user-1")
			Expect(result.Authorized).To(BeTrue())
			Expect(result.RequiredAction).To(Equal(password.ActionRequireCurrentPassword))
		})

		It("lets super admins change anyone's password outright", func() {
			authz.profiles["root-1"] = &rbac.Profile{ID: "root-1"}
			authz.superAdmins["root-1"] = true

			result := service.CanChangePassword(ctx, "root-1", "user-1")
			Expect(result.Authorized).To(BeTrue())
			Expect(result.RequiredAction).To(BeEmpty())
		})

		It("requires approval for managers with the grant and hierarchy", func() {
			authz.profiles["mgr-1"] = &rbac.Profile{ID: "mgr-1"}
			authz.permissions["mgr-1:users:update_password"] = true
			authz.manages["mgr-1>agent-1"] = true

			result := service.CanChangePassword(ctx, "mgr-1", "agent-1")
			Expect(result.Authorized).To(BeTrue())
			Expect(result.RequiredAction).To(Equal(password.ActionRequireAdminApproval))
		})

		It("denies the grant without hierarchy", func() {
			authz.profiles["mgr-1"] = &rbac.Profile{ID: "mgr-1"}
			authz.permissions["mgr-1:users:update_password"] = true

			result := service.CanChangePassword(ctx, "mgr-1", "director-1")
			Expect(result.Authorized).To(BeFalse())
		})

		It("denies when the actor profile is missing", func() {
			result := service.CanChangePassword(ctx, "ghost", "user-1")
			Expect(result.Authorized).To(BeFalse())
			Expect(result.Reason).To(Equal("actor profile not found"))
		})
	})

	Describe("ProcessPasswordChange", func() {
		It("changes a self password when the current one verifies", func() {
			hash, err := bcrypt.GenerateFromPassword([]byte("OldPass!1"), bcrypt.MinCost)
			Expect(err).NotTo(HaveOccurred())
			creds.hashes["user-1"] = string(hash)

			result, err := service.ProcessPasswordChange(ctx, "user-1", "user-1", password.ChangePasswordDTO{
				CurrentPassword: "OldPass!1",
				NewPassword:     "Str0ng!Pass",
				ConfirmPassword: "Str0ng!Pass",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Status).To(Equal(password.ResultChanged))
			Expect(creds.updated).To(HaveKey("user-1"))
		})

		It("rejects a mismatched confirmation before anything else runs", func() {
			_, err := service.ProcessPasswordChange(ctx, "user-1", "user-1", password.ChangePasswordDTO{
				CurrentPassword: "OldPass!1",
				NewPassword:     "Str0ng!Pass",
				ConfirmPassword: "Str0ng!Pas",
			})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(creds.updated).To(BeEmpty())
			Expect(repo.created).To(BeEmpty())
		})

		It("rejects a wrong current password with 401", func() {
			hash, _ := bcrypt.GenerateFromPassword([]byte("OldPass!1"), bcrypt.MinCost)
			creds.hashes["user-1"] = string(hash)

			_, err := service.ProcessPasswordChange(ctx, "user-1", "user-1", password.ChangePasswordDTO{
				CurrentPassword: "not-it",
				NewPassword:     "Str0ng!Pass",
				ConfirmPassword: "Str0ng!Pass",
			})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(creds.updated).To(BeEmpty())
		})

		It("returns all policy violations before touching credentials", func() {
			_, err := service.ProcessPasswordChange(ctx, "user-1", "user-1", password.ChangePasswordDTO{
				CurrentPassword: "whatever",
				NewPassword:     "abc",
				ConfirmPassword: "abc",
			})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(http.StatusBadRequest))

			details, ok := appErr.Details.(internal.ValidationErrors)
			Expect(ok).To(BeTrue())
			Expect(len(details.Errors)).To(BeNumerically(">=", 4))
		})

		It("opens an approval request instead of changing directly", func() {
			authz.profiles["mgr-1"] = &rbac.Profile{ID: "mgr-1"}
			authz.permissions["mgr-1:users:update_password"] = true
			authz.manages["mgr-1>agent-1"] = true

			result, err := service.ProcessPasswordChange(ctx, "mgr-1", "agent-1", password.ChangePasswordDTO{
				NewPassword:     "Str0ng!Pass",
				ConfirmPassword: "Str0ng!Pass",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Status).To(Equal(password.ResultPendingApproval))
			Expect(result.RequestID).NotTo(BeEmpty())
			Expect(creds.updated).To(BeEmpty())
			Expect(repo.created).To(HaveLen(1))
		})

		It("denies unauthorized actors outright", func() {
			authz.profiles["peer-1"] = &rbac.Profile{ID: "peer-1"}

			_, err := service.ProcessPasswordChange(ctx, "peer-1", "peer-2", password.ChangePasswordDTO{
				NewPassword:     "Str0ng!Pass",
				ConfirmPassword: "Str0ng!Pass",
			})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(http.StatusForbidden))
		})
	})

	Describe("ApproveChangeRequest", func() {
		BeforeEach(func() {
			authz.profiles["root-1"] = &rbac.Profile{ID: "root-1"}
			authz.superAdmins["root-1"] = true
			authz.profiles["mgr-1"] = &rbac.Profile{ID: "mgr-1"}

			repo.requests["req-1"] = &password.ChangeRequest{
				ID:          "req-1",
				TargetID:    "agent-1",
				RequestedBy: "mgr-1",
				Status:      password.ChangeStatusPending,
			}
		})

		It("applies the change and stamps the approval", func() {
			result, err := service.ApproveChangeRequest(ctx, "root-1", "req-1", "Str0ng!Pass")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Status).To(Equal(password.ResultChanged))
			Expect(creds.updated["agent-1"]).To(Equal("Str0ng!Pass"))

			stored := repo.requests["req-1"]
			Expect(stored.Status).To(Equal(password.ChangeStatusApproved))
			Expect(stored.ApprovedBy).NotTo(BeNil())
			Expect(*stored.ApprovedBy).To(Equal("root-1"))
			Expect(stored.ApprovedAt).NotTo(BeNil())
		})

		It("refuses non super admins", func() {
			_, err := service.ApproveChangeRequest(ctx, "mgr-1", "req-1", "Str0ng!Pass")
			Expect(err).To(Equal(internal.ErrPermissionDenied))
		})

		It("refuses already resolved requests", func() {
			repo.requests["req-1"].Status = password.ChangeStatusApproved

			_, err := service.ApproveChangeRequest(ctx, "root-1", "req-1", "Str0ng!Pass")
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(http.StatusConflict))
		})
	})
})
