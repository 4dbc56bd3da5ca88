package document_test

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ipeimoveis/crm-backend/internal"
	"github.com/ipeimoveis/crm-backend/internal/core/events"
	"github.com/ipeimoveis/crm-backend/internal/core/jsonb"
	"github.com/ipeimoveis/crm-backend/internal/document"
	"github.com/ipeimoveis/crm-backend/internal/storage"
	"github.com/ipeimoveis/crm-backend/internal/task"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type fakeDocRepo struct {
	types      map[string]*document.DocumentType
	docs       map[string]*document.Document
	comments   []*document.DocumentComment
	tasks      []*document.DocumentTask
	activities []*document.DocumentActivity
	expiring   []*document.Document
	existing   map[string]bool
	window     [2]time.Time
	statuses   []string
}

func newFakeDocRepo() *fakeDocRepo {
	return &fakeDocRepo{
		types:    map[string]*document.DocumentType{},
		docs:     map[string]*document.Document{},
		existing: map[string]bool{},
	}
}

func (f *fakeDocRepo) GetType(_ context.Context, id string) (*document.DocumentType, error) {
	t, ok := f.types[id]
	if !ok {
		return nil, internal.NewNotFoundError("Document type not found", internal.ErrCodeDocumentNotFound)
	}
	return t, nil
}

func (f *fakeDocRepo) ListTypes(_ context.Context, category string) ([]*document.DocumentType, error) {
	var out []*document.DocumentType
	for _, t := range f.types {
		if category == "" || t.Category == category {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeDocRepo) ListRequiredTypes(_ context.Context, category string) ([]*document.DocumentType, error) {
	var out []*document.DocumentType
	for _, t := range f.types {
		if t.IsRequired && t.Category == category {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeDocRepo) Create(_ context.Context, doc *document.Document) error {
	f.docs[doc.ID] = doc
	return nil
}

func (f *fakeDocRepo) GetByID(_ context.Context, id string) (*document.Document, error) {
	doc, ok := f.docs[id]
	if !ok || doc.DeletedAt != nil {
		return nil, internal.ErrDocumentNotFound
	}
	return doc, nil
}

func (f *fakeDocRepo) List(_ context.Context, _ document.ListFilters) ([]*document.Document, int64, error) {
	return nil, 0, nil
}

func (f *fakeDocRepo) UpdateStatus(_ context.Context, doc *document.Document) error {
	f.docs[doc.ID] = doc
	return nil
}

func (f *fakeDocRepo) CreateVersion(_ context.Context, originalID string, next *document.Document) (*document.Document, error) {
	original, ok := f.docs[originalID]
	if !ok {
		return nil, internal.ErrDocumentNotFound
	}
	if !original.IsLatestVersion {
		return nil, internal.ErrVersionConflict
	}
	original.IsLatestVersion = false
	next.Version = original.Version + 1
	next.ParentDocumentID = &originalID
	next.IsLatestVersion = true
	f.docs[next.ID] = next
	return next, nil
}

func (f *fakeDocRepo) SoftDelete(_ context.Context, id string, at time.Time) error {
	doc, ok := f.docs[id]
	if !ok {
		return internal.ErrDocumentNotFound
	}
	doc.DeletedAt = &at
	return nil
}

func (f *fakeDocRepo) ListExpiring(_ context.Context, from, to time.Time) ([]*document.Document, error) {
	f.window = [2]time.Time{from, to}
	return f.expiring, nil
}

func (f *fakeDocRepo) ExistingTypeIDs(_ context.Context, _ string, statuses []string) (map[string]bool, error) {
	f.statuses = statuses
	return f.existing, nil
}

func (f *fakeDocRepo) AddComment(_ context.Context, c *document.DocumentComment) error {
	f.comments = append(f.comments, c)
	return nil
}

func (f *fakeDocRepo) ListComments(_ context.Context, documentID string) ([]*document.DocumentComment, error) {
	var out []*document.DocumentComment
	for _, c := range f.comments {
		if c.DocumentID == documentID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeDocRepo) CreateTask(_ context.Context, t *document.DocumentTask) error {
	f.tasks = append(f.tasks, t)
	return nil
}

func (f *fakeDocRepo) ListUserPendingTasks(_ context.Context, userID string) ([]*document.DocumentTask, error) {
	var out []*document.DocumentTask
	for _, t := range f.tasks {
		if t.AssignedTo != nil && *t.AssignedTo == userID && task.IsOpen(t.Status) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeDocRepo) AddActivity(_ context.Context, a *document.DocumentActivity) error {
	f.activities = append(f.activities, a)
	return nil
}

func (f *fakeDocRepo) ListActivities(_ context.Context, documentID string) ([]*document.DocumentActivity, error) {
	var out []*document.DocumentActivity
	for _, a := range f.activities {
		if a.DocumentID == documentID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (f *fakeDocRepo) Stats(_ context.Context) (*document.DocumentStats, error) {
	return &document.DocumentStats{}, nil
}

type memoryBackend struct {
	objects map[string][]byte
}

func (m *memoryBackend) Upload(_ context.Context, key, _ string, body io.Reader) (*storage.ObjectInfo, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	m.objects[key] = data
	return &storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (m *memoryBackend) Download(_ context.Context, key string) (io.ReadCloser, *storage.ObjectInfo, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, nil, errors.New("not found")
	}
	return io.NopCloser(strings.NewReader(string(data))), &storage.ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (m *memoryBackend) List(_ context.Context, _ string) ([]storage.ObjectInfo, error) { return nil, nil }
func (m *memoryBackend) Delete(_ context.Context, key string) error {
	delete(m.objects, key)
	return nil
}

func (m *memoryBackend) SignedURL(key string, _ time.Duration) (string, error) {
	return "https://example.test/files/" + key + "?sig=abc", nil
}

type docPerms struct {
	grants map[string]bool
}

func (p *docPerms) HasPermission(_ context.Context, actorID, resource, action string, _ map[string]any) bool {
	return p.grants[actorID+":"+resource+":"+action]
}

var _ = Describe("Document service", func() {
	var (
		repo    *fakeDocRepo
		store   *memoryBackend
		perms   *docPerms
		service *document.Service
		ctx     context.Context
	)

	BeforeEach(func() {
		repo = newFakeDocRepo()
		store = &memoryBackend{objects: map[string][]byte{}}
		perms = &docPerms{grants: map[string]bool{
			"agent-1:documents:create":   true,
			"agent-1:documents:read":     true,
			"agent-1:documents:update":   true,
			"manager-1:documents:review": true,
			"manager-1:documents:delete": true,
		}}
		service = document.NewService(repo, store, perms, events.NewEventBus(slog.Default()), slog.Default())
		ctx = context.Background()

		repo.types["client-id"] = &document.DocumentType{
			ID:             "client-id",
			Name:           "Identity Document",
			Category:       document.CategoryClient,
			IsRequired:     true,
			WorkflowStages: jsonb.StringList{"verification", "approval"},
		}
		repo.types["contract-purchase"] = &document.DocumentType{
			ID:       "contract-purchase",
			Name:     "Purchase Contract",
			Category: document.CategoryContract,
		}
	})

	clientID := "client-42"

	intake := func() document.CreateDocumentDTO {
		return document.CreateDocumentDTO{
			DocumentTypeID: "client-id",
			Title:          "RG Maria Souza",
			ClientID:       &clientID,
			File: &document.FileUpload{
				FileName:    "rg.pdf",
				ContentType: "application/pdf",
				Content:     []byte("pdf content"),
			},
		}
	}

	Describe("CreateDocument", func() {
		It("denies actors without the create grant", func() {
			_, err := service.CreateDocument(ctx, "visitor", intake())
			Expect(err).To(Equal(internal.ErrPermissionDenied))
		})

		It("stores a draft with the uploaded file and its hash", func() {
			doc, err := service.CreateDocument(ctx, "agent-1", intake())
			Expect(err).NotTo(HaveOccurred())
			Expect(doc.Status).To(Equal(document.StatusDraft))
			Expect(doc.Version).To(Equal(1))
			Expect(doc.IsLatestVersion).To(BeTrue())

			key := "documents/clients/client-42/" + doc.ID + "/rg.pdf"
			Expect(doc.FilePath).To(HaveValue(Equal(key)))
			Expect(store.objects).To(HaveKey(key))

			sum := sha256.Sum256([]byte("pdf content"))
			Expect(doc.FileHash).To(HaveValue(Equal(hex.EncodeToString(sum[:]))))
		})

		It("files documents without a client under general", func() {
			dto := intake()
			dto.ClientID = nil

			doc, err := service.CreateDocument(ctx, "agent-1", dto)
			Expect(err).NotTo(HaveOccurred())
			Expect(*doc.FilePath).To(HavePrefix("documents/general/"))
		})

		It("seeds a review task for the first workflow stage", func() {
			doc, err := service.CreateDocument(ctx, "agent-1", intake())
			Expect(err).NotTo(HaveOccurred())

			Expect(repo.tasks).To(HaveLen(1))
			t := repo.tasks[0]
			Expect(t.DocumentID).To(Equal(doc.ID))
			Expect(t.Title).To(Equal("verification - RG Maria Souza"))
			Expect(t.TaskType).To(Equal(document.TaskReview))
			Expect(t.Status).To(Equal(task.StatusPending))
		})

		It("skips the task for types without workflow stages", func() {
			dto := intake()
			dto.DocumentTypeID = "contract-purchase"

			_, err := service.CreateDocument(ctx, "agent-1", dto)
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.tasks).To(BeEmpty())
		})

		It("rejects unknown document types", func() {
			dto := intake()
			dto.DocumentTypeID = "ghost-type"

			_, err := service.CreateDocument(ctx, "agent-1", dto)
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("UpdateDocumentStatus", func() {
		var docID string

		BeforeEach(func() {
			doc, err := service.CreateDocument(ctx, "agent-1", intake())
			Expect(err).NotTo(HaveOccurred())
			docID = doc.ID
		})

		It("requires the review grant", func() {
			_, err := service.UpdateDocumentStatus(ctx, "agent-1", docID, document.UpdateStatusDTO{
				Status: document.StatusApproved,
			})
			Expect(err).To(Equal(internal.ErrPermissionDenied))
		})

		It("stamps approvals", func() {
			doc, err := service.UpdateDocumentStatus(ctx, "manager-1", docID, document.UpdateStatusDTO{
				Status: document.StatusApproved,
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(doc.Status).To(Equal(document.StatusApproved))
			Expect(doc.ApprovedBy).To(HaveValue(Equal("manager-1")))
			Expect(doc.ApprovedAt).NotTo(BeNil())
		})

		It("stores the review comment as internal", func() {
			_, err := service.UpdateDocumentStatus(ctx, "manager-1", docID, document.UpdateStatusDTO{
				Status:  document.StatusRejected,
				Comment: "photo is illegible",
			})
			Expect(err).NotTo(HaveOccurred())

			Expect(repo.comments).To(HaveLen(1))
			Expect(repo.comments[0].Comment).To(Equal("photo is illegible"))
			Expect(repo.comments[0].IsInternal).To(BeTrue())
		})

		It("rejects unknown statuses", func() {
			_, err := service.UpdateDocumentStatus(ctx, "manager-1", docID, document.UpdateStatusDTO{
				Status: "signed-off",
			})
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("CreateDocumentVersion", func() {
		var original *document.Document

		BeforeEach(func() {
			var err error
			original, err = service.CreateDocument(ctx, "agent-1", intake())
			Expect(err).NotTo(HaveOccurred())
		})

		It("chains a new draft version onto the original", func() {
			next, err := service.CreateDocumentVersion(ctx, "agent-1", original.ID, &document.FileUpload{
				FileName:    "rg-v2.pdf",
				ContentType: "application/pdf",
				Content:     []byte("better scan"),
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(next.Version).To(Equal(2))
			Expect(next.Status).To(Equal(document.StatusDraft))
			Expect(next.ParentDocumentID).To(HaveValue(Equal(original.ID)))
			Expect(next.IsLatestVersion).To(BeTrue())
			Expect(original.IsLatestVersion).To(BeFalse())
		})

		It("requires a file", func() {
			_, err := service.CreateDocumentVersion(ctx, "agent-1", original.ID, nil)
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("surfaces version conflicts from the store", func() {
			original.IsLatestVersion = false

			_, err := service.CreateDocumentVersion(ctx, "agent-1", original.ID, &document.FileUpload{
				FileName:    "rg-v2.pdf",
				ContentType: "application/pdf",
				Content:     []byte("better scan"),
			})
			Expect(err).To(Equal(internal.ErrVersionConflict))
		})
	})

	Describe("GetMissingDocuments", func() {
		BeforeEach(func() {
			repo.types["client-proof-of-address"] = &document.DocumentType{
				ID:         "client-proof-of-address",
				Name:       "Proof of Address",
				Category:   document.CategoryClient,
				IsRequired: true,
			}
			repo.types["client-income-proof"] = &document.DocumentType{
				ID:         "client-income-proof",
				Name:       "Income Proof",
				Category:   document.CategoryClient,
				IsRequired: true,
			}
		})

		It("returns the required types the client has not covered", func() {
			repo.existing = map[string]bool{"client-id": true}

			missing, err := service.GetMissingDocuments(ctx, clientID)
			Expect(err).NotTo(HaveOccurred())

			ids := make([]string, len(missing))
			for i, t := range missing {
				ids[i] = t.ID
			}
			Expect(ids).To(ConsistOf("client-proof-of-address", "client-income-proof"))
		})

		It("counts approved and in-review documents as covering", func() {
			_, err := service.GetMissingDocuments(ctx, clientID)
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.statuses).To(ConsistOf(document.StatusApproved, document.StatusPendingReview))
		})

		It("returns nothing when the client is complete", func() {
			repo.existing = map[string]bool{
				"client-id":               true,
				"client-proof-of-address": true,
				"client-income-proof":     true,
			}

			missing, err := service.GetMissingDocuments(ctx, clientID)
			Expect(err).NotTo(HaveOccurred())
			Expect(missing).To(BeEmpty())
		})
	})

	Describe("GetExpiringDocuments", func() {
		It("defaults the window to thirty days", func() {
			_, err := service.GetExpiringDocuments(ctx, 0)
			Expect(err).NotTo(HaveOccurred())
			Expect(repo.window[1].Sub(repo.window[0])).To(BeNumerically("~", 30*24*time.Hour, 24*time.Hour))
		})
	})

	Describe("DownloadFile", func() {
		It("returns a signed link and records the download", func() {
			doc, err := service.CreateDocument(ctx, "agent-1", intake())
			Expect(err).NotTo(HaveOccurred())

			url, err := service.DownloadFile(ctx, "agent-1", doc.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(url).To(ContainSubstring(*doc.FilePath))

			activities, err := repo.ListActivities(ctx, doc.ID)
			Expect(err).NotTo(HaveOccurred())
			types := make([]string, len(activities))
			for i, a := range activities {
				types[i] = a.ActivityType
			}
			Expect(types).To(ContainElement("downloaded"))
		})

		It("refuses documents without a file", func() {
			dto := intake()
			dto.File = nil
			doc, err := service.CreateDocument(ctx, "agent-1", dto)
			Expect(err).NotTo(HaveOccurred())

			_, err = service.DownloadFile(ctx, "agent-1", doc.ID)
			appErr, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
			Expect(appErr.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("DeleteDocument", func() {
		It("soft deletes and hides the document", func() {
			doc, err := service.CreateDocument(ctx, "agent-1", intake())
			Expect(err).NotTo(HaveOccurred())

			Expect(service.DeleteDocument(ctx, "manager-1", doc.ID)).To(Succeed())

			_, err = service.GetDocument(ctx, "agent-1", doc.ID)
			Expect(err).To(Equal(internal.ErrDocumentNotFound))
		})

		It("requires the delete grant", func() {
			doc, err := service.CreateDocument(ctx, "agent-1", intake())
			Expect(err).NotTo(HaveOccurred())

			Expect(service.DeleteDocument(ctx, "agent-1", doc.ID)).To(Equal(internal.ErrPermissionDenied))
		})
	})
})
