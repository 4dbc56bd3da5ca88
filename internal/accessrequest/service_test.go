package accessrequest_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ipeimoveis/crm-backend/internal"
	"github.com/ipeimoveis/crm-backend/internal/accessrequest"
	"github.com/ipeimoveis/crm-backend/internal/audit"
	"github.com/ipeimoveis/crm-backend/internal/core/events"
	"github.com/ipeimoveis/crm-backend/internal/identity"
	"github.com/ipeimoveis/crm-backend/internal/rbac"
	"github.com/ipeimoveis/crm-backend/internal/storage"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type fakeRequestRepo struct {
	requests map[string]*accessrequest.AccessRequest
	attached []*accessrequest.RequestDocument
	attempts []*accessrequest.LoginAttempt
}

func newFakeRequestRepo() *fakeRequestRepo {
	return &fakeRequestRepo{requests: map[string]*accessrequest.AccessRequest{}}
}

func (f *fakeRequestRepo) Create(_ context.Context, request *accessrequest.AccessRequest) error {
	for _, existing := range f.requests {
		if existing.Email == request.Email && accessrequest.IsOpen(existing.Status) {
			return internal.ErrDuplicateRequest
		}
	}
	f.requests[request.ID] = request
	return nil
}

func (f *fakeRequestRepo) AttachDocument(_ context.Context, doc *accessrequest.RequestDocument) error {
	f.attached = append(f.attached, doc)
	return nil
}

func (f *fakeRequestRepo) GetByID(_ context.Context, id string) (*accessrequest.AccessRequest, error) {
	req, ok := f.requests[id]
	if !ok {
		return nil, internal.ErrRequestNotFound
	}
	return req, nil
}

func (f *fakeRequestRepo) ListOpen(_ context.Context) ([]*accessrequest.AccessRequest, error) {
	var out []*accessrequest.AccessRequest
	for _, req := range f.requests {
		if accessrequest.IsOpen(req.Status) {
			out = append(out, req)
		}
	}
	return out, nil
}

func (f *fakeRequestRepo) UpdateReview(_ context.Context, request *accessrequest.AccessRequest) error {
	f.requests[request.ID] = request
	return nil
}

func (f *fakeRequestRepo) RecordAttempt(_ context.Context, attempt *accessrequest.LoginAttempt) error {
	f.attempts = append(f.attempts, attempt)
	return nil
}

func (f *fakeRequestRepo) CountRecentFailures(_ context.Context, email string, since time.Time) (int64, error) {
	var count int64
	for _, a := range f.attempts {
		if a.Email == email && !a.Success && a.CreatedAt.After(since) {
			count++
		}
	}
	return count, nil
}

type fakeBackend struct {
	objects  map[string][]byte
	failKeys map[string]bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{objects: map[string][]byte{}, failKeys: map[string]bool{}}
}

func (f *fakeBackend) Upload(_ context.Context, key, _ string, body io.Reader) (*storage.ObjectInfo, error) {
	if f.failKeys[key] {
		return nil, errors.New("disk full")
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	f.objects[key] = data
	return &storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (f *fakeBackend) Download(_ context.Context, key string) (io.ReadCloser, *storage.ObjectInfo, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, nil, errors.New("not found")
	}
	return io.NopCloser(strings.NewReader(string(data))), &storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (f *fakeBackend) List(_ context.Context, _ string) ([]storage.ObjectInfo, error) {
	return nil, nil
}

func (f *fakeBackend) Delete(_ context.Context, key string) error {
	delete(f.objects, key)
	return nil
}

func (f *fakeBackend) SignedURL(key string, _ time.Duration) (string, error) {
	return "https://example.test/" + key, nil
}

type fakeIdentity struct {
	created     map[string]string
	deleted     []string
	createError error
}

func (f *fakeIdentity) CreateUser(_ context.Context, email, password string, _ map[string]string) (string, error) {
	if f.createError != nil {
		return "", f.createError
	}
	id := "idp-" + email
	f.created[id] = password
	return id, nil
}

func (f *fakeIdentity) DeleteUser(_ context.Context, userID string) error {
	f.deleted = append(f.deleted, userID)
	delete(f.created, userID)
	return nil
}

func (f *fakeIdentity) GetByEmail(_ context.Context, _ string) (*identity.Account, error) {
	return nil, errors.New("not implemented")
}

type fakeProfiles struct {
	profiles    map[string]*rbac.Profile
	createError error
}

func (f *fakeProfiles) CreateProfile(_ context.Context, profile *rbac.Profile) error {
	if f.createError != nil {
		return f.createError
	}
	f.profiles[profile.ID] = profile
	return nil
}

type reviewerPerms struct {
	reviewers map[string]bool
}

func (p *reviewerPerms) HasPermission(_ context.Context, actorID, resource, action string, _ map[string]any) bool {
	return resource == "access_requests" && action == "review" && p.reviewers[actorID]
}

type nopAuditRepo struct{}

func (nopAuditRepo) Append(_ context.Context, _ *audit.Entry) error { return nil }
func (nopAuditRepo) ListByResource(_ context.Context, _, _ string) ([]*audit.Entry, error) {
	return nil, nil
}

var _ = Describe("Access request service", func() {
	var (
		repo     *fakeRequestRepo
		store    *fakeBackend
		idp      *fakeIdentity
		profiles *fakeProfiles
		perms    *reviewerPerms
		service  *accessrequest.Service
		ctx      context.Context
	)

	BeforeEach(func() {
		repo = newFakeRequestRepo()
		store = newFakeBackend()
		idp = &fakeIdentity{created: map[string]string{}}
		profiles = &fakeProfiles{profiles: map[string]*rbac.Profile{}}
		perms = &reviewerPerms{reviewers: map[string]bool{"reviewer-1": true}}
		service = accessrequest.NewService(
			repo, store, idp, profiles, perms,
			audit.NewService(nopAuditRepo{}, slog.Default()),
			events.NewEventBus(slog.Default()),
			3, 15*time.Minute, slog.Default())
		ctx = context.Background()
	})

	submission := func() accessrequest.SubmitRequestDTO {
		return accessrequest.SubmitRequestDTO{
			Email:    "joao@example.com",
			FullName: "João Pereira",
			Documents: []accessrequest.DocumentUpload{
				{DocumentType: "client-id", FileName: "id.pdf", ContentType: "application/pdf", Content: []byte("pdf bytes")},
			},
		}
	}

	Describe("SubmitAccessRequest", func() {
		It("stores the request and uploads its documents", func() {
			result, err := service.SubmitAccessRequest(ctx, submission())
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Request.Status).To(Equal(accessrequest.StatusPending))
			Expect(result.Request.Documents).To(HaveLen(1))
			Expect(result.FailedDocuments).To(BeEmpty())

			key := "access-requests/" + result.Request.ID + "/id.pdf"
			Expect(store.objects).To(HaveKey(key))
			Expect(repo.attached).To(HaveLen(1))
			Expect(repo.attached[0].StorageKey).To(Equal(key))
		})

		It("normalizes the email", func() {
			dto := submission()
			dto.Email = "  Joao@Example.COM "

			result, err := service.SubmitAccessRequest(ctx, dto)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Request.Email).To(Equal("joao@example.com"))
		})

		It("rejects a second open request for the same email", func() {
			_, err := service.SubmitAccessRequest(ctx, submission())
			Expect(err).NotTo(HaveOccurred())

			_, err = service.SubmitAccessRequest(ctx, submission())
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(http.StatusConflict))
		})

		It("rejects malformed emails", func() {
			dto := submission()
			dto.Email = "not-an-address"

			_, err := service.SubmitAccessRequest(ctx, dto)
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("collects upload failures without failing the submission", func() {
			dto := submission()
			dto.Documents = append(dto.Documents, accessrequest.DocumentUpload{
				DocumentType: "client-proof-of-address",
				FileName:     "address.pdf",
				ContentType:  "application/pdf",
				Content:      []byte("more bytes"),
			})

			// The key embeds the request ID, so fail by filename suffix
			// through a broad matcher instead.
			brokenStore := newFakeBackend()
			brokenService := accessrequest.NewService(
				repo, uploadFailingBackend{brokenStore, "address.pdf"}, idp, profiles, perms,
				audit.NewService(nopAuditRepo{}, slog.Default()),
				events.NewEventBus(slog.Default()),
				3, 15*time.Minute, slog.Default())

			result, err := brokenService.SubmitAccessRequest(ctx, dto)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.FailedDocuments).To(Equal([]string{"address.pdf"}))
			Expect(result.Request.Documents).To(HaveLen(1))
		})
	})

	Describe("GetPendingRequests", func() {
		It("requires the review grant", func() {
			_, err := service.GetPendingRequests(ctx, "agent-1")
			Expect(err).To(Equal(internal.ErrPermissionDenied))
		})

		It("lists only open requests", func() {
			first, err := service.SubmitAccessRequest(ctx, submission())
			Expect(err).NotTo(HaveOccurred())

			second := submission()
			second.Email = "ana@example.com"
			_, err = service.SubmitAccessRequest(ctx, second)
			Expect(err).NotTo(HaveOccurred())

			repo.requests[first.Request.ID].Status = accessrequest.StatusRejected

			open, err := service.GetPendingRequests(ctx, "reviewer-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(open).To(HaveLen(1))
		})
	})

	Describe("ReviewAccessRequest", func() {
		var requestID string

		BeforeEach(func() {
			result, err := service.SubmitAccessRequest(ctx, submission())
			Expect(err).NotTo(HaveOccurred())
			requestID = result.Request.ID
		})

		It("requires the review grant", func() {
			_, err := service.ReviewAccessRequest(ctx, "agent-1", requestID, accessrequest.ReviewRequestDTO{
				Action: accessrequest.ReviewActionReject,
			})
			Expect(err).To(Equal(internal.ErrPermissionDenied))
		})

		It("requires a role when approving", func() {
			_, err := service.ReviewAccessRequest(ctx, "reviewer-1", requestID, accessrequest.ReviewRequestDTO{
				Action: accessrequest.ReviewActionApprove,
			})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("provisions an account and profile on approval", func() {
			result, err := service.ReviewAccessRequest(ctx, "reviewer-1", requestID, accessrequest.ReviewRequestDTO{
				Action: accessrequest.ReviewActionApprove,
				RoleID: "agent",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.UserCreated).To(BeTrue())
			Expect(result.UserID).NotTo(BeEmpty())

			profile := profiles.profiles[result.UserID]
			Expect(profile).NotTo(BeNil())
			Expect(profile.RoleID).To(Equal("agent"))
			Expect(profile.Status).To(Equal(rbac.StatusActive))

			stored := repo.requests[requestID]
			Expect(stored.Status).To(Equal(accessrequest.StatusApproved))
			Expect(stored.ReviewedBy).To(HaveValue(Equal("reviewer-1")))
			Expect(stored.ReviewedAt).NotTo(BeNil())
		})

		It("uses the reviewer's temporary password when one is supplied", func() {
			result, err := service.ReviewAccessRequest(ctx, "reviewer-1", requestID, accessrequest.ReviewRequestDTO{
				Action:       accessrequest.ReviewActionApprove,
				RoleID:       "agent",
				TempPassword: "Chosen!Pass9",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.TempPassword).To(Equal("Chosen!Pass9"))
			Expect(idp.created[result.UserID]).To(Equal("Chosen!Pass9"))
		})

		It("moves the request to under review when more information is needed", func() {
			result, err := service.ReviewAccessRequest(ctx, "reviewer-1", requestID, accessrequest.ReviewRequestDTO{
				Action: accessrequest.ReviewActionRequestMoreInfo,
				Notes:  "proof of address is older than 90 days",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.UserCreated).To(BeFalse())
			Expect(idp.created).To(BeEmpty())

			stored := repo.requests[requestID]
			Expect(stored.Status).To(Equal(accessrequest.StatusUnderReview))
			Expect(stored.ReviewNotes).To(Equal("proof of address is older than 90 days"))
			Expect(stored.ReviewedBy).To(HaveValue(Equal("reviewer-1")))
		})

		It("still allows a decision after more information was requested", func() {
			_, err := service.ReviewAccessRequest(ctx, "reviewer-1", requestID, accessrequest.ReviewRequestDTO{
				Action: accessrequest.ReviewActionRequestMoreInfo,
			})
			Expect(err).NotTo(HaveOccurred())

			result, err := service.ReviewAccessRequest(ctx, "reviewer-1", requestID, accessrequest.ReviewRequestDTO{
				Action: accessrequest.ReviewActionApprove,
				RoleID: "agent",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.UserCreated).To(BeTrue())
			Expect(repo.requests[requestID].Status).To(Equal(accessrequest.StatusApproved))
		})

		It("rejects unknown actions", func() {
			_, err := service.ReviewAccessRequest(ctx, "reviewer-1", requestID, accessrequest.ReviewRequestDTO{
				Action: "escalate",
			})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("issues a 12 character temporary password", func() {
			result, err := service.ReviewAccessRequest(ctx, "reviewer-1", requestID, accessrequest.ReviewRequestDTO{
				Action: accessrequest.ReviewActionApprove,
				RoleID: "agent",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.TempPassword).To(HaveLen(12))
			Expect(idp.created[result.UserID]).To(Equal(result.TempPassword))
		})

		It("deletes the identity account when the profile insert fails", func() {
			profiles.createError = errors.New("role does not exist")

			_, err := service.ReviewAccessRequest(ctx, "reviewer-1", requestID, accessrequest.ReviewRequestDTO{
				Action: accessrequest.ReviewActionApprove,
				RoleID: "ghost-role",
			})
			Expect(err).To(HaveOccurred())
			Expect(idp.deleted).To(HaveLen(1))
			Expect(idp.created).To(BeEmpty())

			stored := repo.requests[requestID]
			Expect(stored.Status).To(Equal(accessrequest.StatusPending))
		})

		It("rejects without provisioning anything", func() {
			result, err := service.ReviewAccessRequest(ctx, "reviewer-1", requestID, accessrequest.ReviewRequestDTO{
				Action: accessrequest.ReviewActionReject,
				Notes:  "documents unreadable",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.UserCreated).To(BeFalse())
			Expect(idp.created).To(BeEmpty())

			stored := repo.requests[requestID]
			Expect(stored.Status).To(Equal(accessrequest.StatusRejected))
			Expect(stored.ReviewNotes).To(Equal("documents unreadable"))
		})

		It("refuses to review a decided request twice", func() {
			_, err := service.ReviewAccessRequest(ctx, "reviewer-1", requestID, accessrequest.ReviewRequestDTO{
				Action: accessrequest.ReviewActionReject,
			})
			Expect(err).NotTo(HaveOccurred())

			_, err = service.ReviewAccessRequest(ctx, "reviewer-1", requestID, accessrequest.ReviewRequestDTO{
				Action: accessrequest.ReviewActionReject,
			})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(http.StatusConflict))
		})
	})

	Describe("login lockout", func() {
		recordFailures := func(n int) {
			for i := 0; i < n; i++ {
				Expect(service.RecordLoginAttempt(ctx, "joao@example.com", false, "wrong password", "10.0.0.1", "test")).To(Succeed())
			}
		}

		It("keeps the failure reason with the attempt", func() {
			Expect(service.RecordLoginAttempt(ctx, "joao@example.com", false, "account inactive", "10.0.0.1", "test")).To(Succeed())
			Expect(service.RecordLoginAttempt(ctx, "joao@example.com", true, "", "10.0.0.1", "test")).To(Succeed())

			Expect(repo.attempts).To(HaveLen(2))
			Expect(repo.attempts[0].FailureReason).To(Equal("account inactive"))
			Expect(repo.attempts[1].FailureReason).To(BeEmpty())
		})

		It("stays unlocked below the threshold", func() {
			recordFailures(2)

			locked, err := service.IsAccountLocked(ctx, "joao@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(locked).To(BeFalse())
		})

		It("locks at the threshold", func() {
			recordFailures(3)

			locked, err := service.IsAccountLocked(ctx, "joao@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(locked).To(BeTrue())
		})

		It("ignores successes and other accounts", func() {
			recordFailures(2)
			Expect(service.RecordLoginAttempt(ctx, "joao@example.com", true, "", "10.0.0.1", "test")).To(Succeed())
			Expect(service.RecordLoginAttempt(ctx, "ana@example.com", false, "wrong password", "10.0.0.1", "test")).To(Succeed())

			locked, err := service.IsAccountLocked(ctx, "joao@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(locked).To(BeFalse())
		})

		It("unlocks once old failures age out", func() {
			recordFailures(3)
			for _, a := range repo.attempts {
				a.CreatedAt = time.Now().UTC().Add(-time.Hour)
			}

			locked, err := service.IsAccountLocked(ctx, "joao@example.com")
			Expect(err).NotTo(HaveOccurred())
			Expect(locked).To(BeFalse())
		})

		It("normalizes the email before counting", func() {
			recordFailures(3)

			locked, err := service.IsAccountLocked(ctx, "  JOAO@example.com ")
			Expect(err).NotTo(HaveOccurred())
			Expect(locked).To(BeTrue())
		})
	})
})

// uploadFailingBackend fails uploads whose key ends with a given
// filename and delegates everything else.
type uploadFailingBackend struct {
	inner    *fakeBackend
	failName string
}

func (b uploadFailingBackend) Upload(ctx context.Context, key, contentType string, body io.Reader) (*storage.ObjectInfo, error) {
	if strings.HasSuffix(key, "/"+b.failName) {
		return nil, errors.New("disk full")
	}
	return b.inner.Upload(ctx, key, contentType, body)
}

func (b uploadFailingBackend) Download(ctx context.Context, key string) (io.ReadCloser, *storage.ObjectInfo, error) {
	return b.inner.Download(ctx, key)
}

func (b uploadFailingBackend) List(ctx context.Context, prefix string) ([]storage.ObjectInfo, error) {
	return b.inner.List(ctx, prefix)
}

func (b uploadFailingBackend) Delete(ctx context.Context, key string) error {
	return b.inner.Delete(ctx, key)
}

func (b uploadFailingBackend) SignedURL(key string, ttl time.Duration) (string, error) {
	return b.inner.SignedURL(key, ttl)
}
