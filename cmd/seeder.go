package cmd

import (
	"fmt"
	"log"

	"github.com/google/uuid"
	"github.com/ipeimoveis/crm-backend/internal/core/jsonb"
	"github.com/ipeimoveis/crm-backend/internal/document"
	"github.com/ipeimoveis/crm-backend/internal/rbac"
	"github.com/spf13/cobra"
	"golang.org/x/crypto/bcrypt"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with roles, document types and a super admin",
	Long:  `Seed the database with the role catalog, the required document type catalog, and an initial super admin account.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(".")
		if err != nil {
			log.Fatalf("failed to load config: %v", err)
		}

		sqlDB, err := initDB(cfg.Database)
		if err != nil {
			log.Fatalf("failed to init db: %v", err)
		}
		db, err := gorm.Open(gormpostgres.New(gormpostgres.Config{Conn: sqlDB.DB}), &gorm.Config{})
		if err != nil {
			log.Fatalf("failed to init gorm: %v", err)
		}

		if clearData {
			for _, table := range []string{"user_profiles", "users", "user_roles", "document_types"} {
				if err := db.Exec("DELETE FROM " + table).Error; err != nil {
					log.Fatalf("failed to clear %s: %v", table, err)
				}
			}
			fmt.Println("Cleared existing seed data")
		}

		seedRoles(db)
		seedDocumentTypes(db)
		seedSuperAdmin(db, cfg.Security.SuperAdminRoleID)
	},
}

func seedRoles(db *gorm.DB) {
	roles := []rbac.Role{
		{
			ID:             "super_admin",
			Name:           "Super Admin",
			HierarchyLevel: 100,
			Permissions:    rbac.Permissions{{Resource: "*", Action: "*"}},
		},
		{
			ID:             "director",
			Name:           "Director",
			HierarchyLevel: 80,
			Permissions: rbac.Permissions{
				{Resource: "leads", Action: "*"},
				{Resource: "documents", Action: "*"},
				{Resource: "tasks", Action: "*"},
				{Resource: "users", Action: "read,update"},
				{Resource: "users", Action: "update_password"},
				{Resource: "access_requests", Action: "review"},
			},
		},
		{
			ID:             "manager",
			Name:           "Manager",
			HierarchyLevel: 60,
			Permissions: rbac.Permissions{
				{Resource: "leads", Action: "*"},
				{Resource: "documents", Action: "create,read,update,review"},
				{Resource: "tasks", Action: "*"},
				{Resource: "users", Action: "read"},
				{Resource: "access_requests", Action: "review"},
			},
		},
		{
			ID:             "agent",
			Name:           "Agent",
			HierarchyLevel: 40,
			Permissions: rbac.Permissions{
				{Resource: "leads", Action: "create"},
				{
					Resource:   "leads",
					Action:     "read,update",
					Conditions: jsonb.Map{"assigned_to": "self"},
				},
				{Resource: "documents", Action: "create"},
				{
					Resource:   "documents",
					Action:     "read",
					Conditions: jsonb.Map{"owner": "self"},
				},
			},
		},
		{
			ID:             "assistant",
			Name:           "Assistant",
			HierarchyLevel: 20,
			Permissions: rbac.Permissions{
				{
					Resource:   "leads",
					Action:     "read",
					Conditions: jsonb.Map{"assigned_to": "self"},
				},
			},
		},
	}

	for _, role := range roles {
		var exists int64
		db.Model(&rbac.Role{}).Where("id = ?", role.ID).Count(&exists)
		if exists > 0 {
			continue
		}
		if err := db.Create(&role).Error; err != nil {
			log.Fatalf("failed to seed role %s: %v", role.ID, err)
		}
		fmt.Println("Seeded role:", role.ID)
	}
}

func seedDocumentTypes(db *gorm.DB) {
	types := []document.DocumentType{
		{
			ID:             "client-id",
			Name:           "Identity Document",
			Category:       document.CategoryClient,
			RequiredFields: jsonb.StringList{"document_number", "issue_date"},
			WorkflowStages: jsonb.StringList{"review", "approval"},
			RetentionDays:  3650,
			IsRequired:     true,
		},
		{
			ID:             "client-proof-of-address",
			Name:           "Proof of Address",
			Category:       document.CategoryClient,
			WorkflowStages: jsonb.StringList{"review"},
			RetentionDays:  1825,
			IsRequired:     true,
		},
		{
			ID:             "client-income-proof",
			Name:           "Proof of Income",
			Category:       document.CategoryClient,
			WorkflowStages: jsonb.StringList{"review", "approval"},
			RetentionDays:  1825,
			IsRequired:     true,
		},
		{
			ID:             "property-deed",
			Name:           "Property Deed",
			Category:       document.CategoryProperty,
			WorkflowStages: jsonb.StringList{"review", "legal_check", "approval"},
			RetentionDays:  7300,
			IsRequired:     true,
		},
		{
			ID:             "contract-purchase",
			Name:           "Purchase Agreement",
			Category:       document.CategoryContract,
			WorkflowStages: jsonb.StringList{"draft_review", "legal_check", "signature"},
			RetentionDays:  7300,
			IsRequired:     true,
		},
		{
			ID:             "financial-statement",
			Name:           "Financial Statement",
			Category:       document.CategoryFinancial,
			WorkflowStages: jsonb.StringList{"review"},
			RetentionDays:  1825,
		},
	}

	for _, t := range types {
		var exists int64
		db.Model(&document.DocumentType{}).Where("id = ?", t.ID).Count(&exists)
		if exists > 0 {
			continue
		}
		if err := db.Create(&t).Error; err != nil {
			log.Fatalf("failed to seed document type %s: %v", t.ID, err)
		}
		fmt.Println("Seeded document type:", t.ID)
	}
}

func seedSuperAdmin(db *gorm.DB, superAdminRoleID string) {
	adminEmail := "admin@ipeimoveis.com"

	var exists int64
	db.Table("users").Where("email = ?", adminEmail).Count(&exists)
	if exists > 0 {
		fmt.Println("super admin already exists:", adminEmail)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte("ChangeMe!2024"), 12)
	if err != nil {
		log.Fatalf("failed to hash super admin password: %v", err)
	}

	adminID := uuid.NewString()
	if err := db.Exec(
		"INSERT INTO users (id, email, password_hash, full_name, is_active, created_at, updated_at) VALUES (?, ?, ?, ?, true, now(), now())",
		adminID, adminEmail, string(hash), "Platform Admin").Error; err != nil {
		log.Fatalf("failed to insert super admin user: %v", err)
	}

	profile := rbac.Profile{
		ID:       adminID,
		Email:    adminEmail,
		FullName: "Platform Admin",
		RoleID:   superAdminRoleID,
		Status:   rbac.StatusActive,
	}
	if err := db.Create(&profile).Error; err != nil {
		log.Fatalf("failed to insert super admin profile: %v", err)
	}

	fmt.Println("Seeded super admin:", adminEmail)
	fmt.Println("Initial password: ChangeMe!2024 (change it on first login)")
}
