package wallet

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"marketplace/internal/database"
	"marketplace/internal/domain"
	"marketplace/internal/repository"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type testEnv struct {
	db    *gorm.DB
	store *repository.Store
}

func setupTestRouter(t *testing.T) (*gin.Engine, *testEnv) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:wallet_handler_test_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := database.Connect(dsn, nil)
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})

	store := repository.NewStore(db)
	h := NewHandler(NewService(store))
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if userID := c.GetHeader("X-Test-User-ID"); userID != "" {
			var id int64
			_, _ = fmt.Sscan(userID, &id)
			c.Set("user_id", id)
			c.Set("role", string(domain.RoleCustomer))
		}
		c.Next()
	})

	v1 := r.Group("/api/v1")
	h.RegisterRoutes(v1)
	return r, &testEnv{db: db, store: store}
}

func doRequest(r http.Handler, path string, userID int64) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if userID != 0 {
		req.Header.Set("X-Test-User-ID", fmt.Sprint(userID))
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func seedUser(t *testing.T, env *testEnv, balance int64) int64 {
	t.Helper()
	ctx := context.Background()
	u := &domain.User{Name: "wallet", Role: domain.RoleCustomer}
	require.NoError(t, env.db.Create(u).Error)

	err := env.store.Atomic(ctx, func(tx *repository.Store) error {
		after, err := tx.CreditWallet(ctx, u.ID, balance)
		if err != nil {
			return err
		}
		return tx.AppendLedger(ctx, &domain.LedgerEntry{
			UserID: &u.ID, Amount: balance, Type: domain.LedgerDeposit,
			Status: domain.LedgerStatusCompleted, BalanceAfter: &after,
		})
	})
	require.NoError(t, err)
	return u.ID
}

func TestWalletEndpoints_Unauthorized(t *testing.T) {
	r, _ := setupTestRouter(t)

	for _, path := range []string{"/api/v1/wallets/me", "/api/v1/wallets/me/transactions"} {
		rr := doRequest(r, path, 0)
		assert.Equal(t, http.StatusUnauthorized, rr.Code, path)
	}
}

func TestGetMyWallet(t *testing.T) {
	r, env := setupTestRouter(t)
	userID := seedUser(t, env, 1500)

	rr := doRequest(r, "/api/v1/wallets/me", userID)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var body struct {
		Data Summary `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, Summary{UserID: userID, Balance: 1500}, body.Data)
}

func TestGetMyWallet_UnknownUser(t *testing.T) {
	r, _ := setupTestRouter(t)

	rr := doRequest(r, "/api/v1/wallets/me", 404)

	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "NOT_FOUND")
}

func TestListMyTransactions(t *testing.T) {
	r, env := setupTestRouter(t)
	userID := seedUser(t, env, 700)
	seedUser(t, env, 900)

	rr := doRequest(r, "/api/v1/wallets/me/transactions", userID)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var body struct {
		Data       []domain.LedgerEntry `json:"data"`
		Pagination struct {
			Total int64 `json:"total"`
		} `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Data, 1)
	assert.Equal(t, int64(700), body.Data[0].Amount)
	assert.Equal(t, domain.LedgerDeposit, body.Data[0].Type)
	assert.Equal(t, int64(1), body.Pagination.Total)

	rr = doRequest(r, "/api/v1/wallets/me/transactions?limit=abc", userID)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
