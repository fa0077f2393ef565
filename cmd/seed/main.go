package main

import (
	"fmt"
	"log"
	"time"

	"marketplace/internal/config"
	"marketplace/internal/database"
	"marketplace/internal/domain"
	jwtsvc "marketplace/internal/pkg/jwt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Demo accounts use fixed ids so the seed can be re-run.
var demoUsers = []domain.User{
	{ID: 1, Name: "Admin", Email: "admin@marketplace.local", Role: domain.RoleAdmin},
	{ID: 2, Name: "Asel", Email: "asel@marketplace.local", Role: domain.RoleCustomer, WalletBalance: 2_000_000},
	{ID: 3, Name: "Bekzat", Email: "bekzat@marketplace.local", Role: domain.RoleCustomer, WalletBalance: 300_000},
	{ID: 4, Name: "Dina Cleaning", Email: "dina@marketplace.local", Role: domain.RoleProvider},
	{ID: 5, Name: "Yerlan Repairs", Email: "yerlan@marketplace.local", Role: domain.RoleProvider},
}

var demoServices = []domain.ServiceListing{
	{ID: 1, ProviderID: 4, Title: "Apartment deep clean", Price: 500_000},
	{ID: 2, ProviderID: 4, Title: "Window washing", Price: 120_000},
	{ID: 3, ProviderID: 5, Title: "Plumbing visit", Price: 80_000},
	{ID: 4, ProviderID: 5, Title: "Furniture assembly", Price: 3_000},
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	db, err := database.Connect(cfg.DatabaseURL, nil)
	if err != nil {
		log.Fatal("DB connection failed:", err)
	}

	log.Println("Running AutoMigrate...")
	if err := database.Migrate(db); err != nil {
		log.Fatal("AutoMigrate failed:", err)
	}

	if err := db.Transaction(seed); err != nil {
		log.Fatal("seed failed:", err)
	}

	// Tokens let the demo be driven with curl right away.
	tokens := jwtsvc.New(cfg.JWTSecret, 30*24*time.Hour)
	ids := make([]int64, 0, len(demoUsers))
	for _, u := range demoUsers {
		ids = append(ids, u.ID)
	}
	var users []domain.User
	if err := db.Order("id").Find(&users, ids).Error; err != nil {
		log.Fatal(err)
	}
	for _, u := range users {
		token, err := tokens.GenerateToken(u.ID, string(u.Role))
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("%-8s id=%d balance=%d\n  token: %s\n", u.Role, u.ID, u.WalletBalance, token)
	}
}

func seed(tx *gorm.DB) error {
	log.Println("Creating users...")
	for i := range demoUsers {
		u := demoUsers[i]
		// Existing users keep their balance and history; only new ones get the
		// demo deposit, so the ledger keeps adding up to the balance.
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoNothing: true,
		}).Create(&u)
		if res.Error != nil {
			return fmt.Errorf("user %d: %w", u.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			err := tx.Model(&domain.User{}).Where("id = ?", u.ID).
				Updates(map[string]any{"name": u.Name, "email": u.Email, "role": u.Role}).Error
			if err != nil {
				return fmt.Errorf("user %d: %w", u.ID, err)
			}
			continue
		}
		if u.WalletBalance > 0 {
			entry := &domain.LedgerEntry{
				UserID:       &u.ID,
				Amount:       u.WalletBalance,
				Type:         domain.LedgerDeposit,
				Status:       domain.LedgerStatusCompleted,
				Description:  "demo top-up",
				BalanceAfter: &u.WalletBalance,
			}
			if err := tx.Create(entry).Error; err != nil {
				return fmt.Errorf("deposit for user %d: %w", u.ID, err)
			}
		}
	}

	log.Println("Creating services...")
	for i := range demoServices {
		s := demoServices[i]
		err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"provider_id", "title", "price", "updated_at"}),
		}).Create(&s).Error
		if err != nil {
			return fmt.Errorf("service %d: %w", s.ID, err)
		}
	}
	return nil
}
