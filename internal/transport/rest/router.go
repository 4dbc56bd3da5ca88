package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
	"github.com/ipeimoveis/crm-backend/internal/accessrequest"
	"github.com/ipeimoveis/crm-backend/internal/auth"
	"github.com/ipeimoveis/crm-backend/internal/document"
	"github.com/ipeimoveis/crm-backend/internal/lead"
	"github.com/ipeimoveis/crm-backend/internal/password"
	"github.com/ipeimoveis/crm-backend/internal/transport/middleware"
	"github.com/ipeimoveis/crm-backend/internal/transport/swagger"
	"github.com/ipeimoveis/crm-backend/internal/user"
)

// Handlers bundles everything the router mounts.
type Handlers struct {
	Auth          *auth.Handler
	AuthMW        func(http.Handler) http.Handler
	AccessRequest *accessrequest.Handler
	User          *user.Handler
	Password      *password.Handler
	Lead          *lead.Handler
	Document      *document.Handler
	Files         *FilesHandler
}

func RegisterAllRoutes(router *chi.Mux, db *sql.DB, h Handlers, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db)

	router.Use(middleware.CORS)
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))
	router.Use(middleware.LoggingMiddleware(logger))

	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	router.Handle("/swagger/*", swagger.Handler())

	// Signed download links live outside the API prefix; the HMAC in
	// the URL is the credential.
	if h.Files != nil {
		router.Get("/v1/files/{key}", h.Files.Serve)
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		if h.Auth != nil {
			r.Route("/auth", func(sr chi.Router) {
				sr.Post("/login", h.Auth.Login)
				sr.Post("/refresh", h.Auth.Refresh)
			})
		}

		// Public intake: prospective users have no account yet.
		if h.AccessRequest != nil {
			r.Post("/access-requests", h.AccessRequest.Submit)
		}

		if h.AuthMW == nil {
			return
		}

		r.Group(func(pr chi.Router) {
			pr.Use(h.AuthMW)

			if h.Auth != nil {
				pr.Get("/auth/me", h.Auth.Me)
			}

			if h.AccessRequest != nil {
				pr.Group(func(ar chi.Router) {
					ar.Use(middleware.RequirePermissions("access_requests:review"))
					ar.Get("/access-requests", h.AccessRequest.ListPending)
					ar.Get("/access-requests/{id}", h.AccessRequest.GetRequest)
					ar.Post("/access-requests/{id}/review", h.AccessRequest.Review)
				})
			}

			if h.User != nil {
				pr.Route("/users", func(ur chi.Router) {
					ur.Get("/", h.User.ListUsers)
					ur.Get("/roles", h.User.ListRoles)
					ur.Get("/{id}", h.User.GetUser)
					ur.Group(func(mr chi.Router) {
						mr.Use(middleware.RequirePermissions("users:update"))
						mr.Patch("/{id}/role", h.User.ChangeRole)
						mr.Patch("/{id}/status", h.User.ChangeStatus)
					})
				})
			}

			if h.Password != nil {
				pr.Get("/users/{userID}/password-authorization", h.Password.CheckAuthorization)
				pr.Post("/users/{userID}/password", h.Password.ChangePassword)
				pr.Post("/password-requests/{requestID}/approve", h.Password.ApproveChange)
			}

			if h.Lead != nil {
				pr.Route("/leads", func(lr chi.Router) {
					lr.Post("/", h.Lead.CreateLead)
					lr.Get("/", h.Lead.ListLeads)
					lr.Get("/follow-ups", h.Lead.FollowUpQueue)
					lr.Get("/stats", h.Lead.PipelineStats)
					lr.Get("/{id}", h.Lead.GetLead)
					lr.Patch("/{id}/status", h.Lead.UpdateStatus)
					lr.Post("/{id}/notes", h.Lead.AddNote)
					lr.Get("/{id}/notes", h.Lead.ListNotes)
					lr.Get("/{id}/activities", h.Lead.ListActivities)
					lr.Post("/{id}/tasks", h.Lead.ScheduleFollowUp)
				})
				pr.Get("/tasks/my", h.Lead.MyTasks)
				pr.Patch("/tasks/{taskID}", h.Lead.UpdateTask)
			}

			if h.Document != nil {
				pr.Route("/documents", func(dr chi.Router) {
					dr.Get("/types", h.Document.ListTypes)
					dr.Post("/", h.Document.CreateDocument)
					dr.Get("/", h.Document.ListDocuments)
					dr.Get("/stats", h.Document.Stats)
					dr.Get("/expiring", h.Document.Expiring)
					dr.Get("/missing/{clientID}", h.Document.Missing)
					dr.Get("/tasks/my", h.Document.MyTasks)
					dr.Get("/{id}", h.Document.GetDocument)
					dr.Patch("/{id}/status", h.Document.UpdateStatus)
					dr.Post("/{id}/versions", h.Document.CreateVersion)
					dr.Post("/{id}/comments", h.Document.AddComment)
					dr.Get("/{id}/comments", h.Document.ListComments)
					dr.Get("/{id}/activities", h.Document.ListActivities)
					dr.Get("/{id}/download", h.Document.Download)
					dr.Delete("/{id}", h.Document.Delete)
				})
			}
		})
	})
}
