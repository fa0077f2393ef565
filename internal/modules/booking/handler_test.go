package booking

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"marketplace/internal/domain"
	"marketplace/internal/middleware"
	"marketplace/internal/pkg/jwt"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiEnvelope struct {
	Success    bool            `json:"success"`
	Data       json.RawMessage `json:"data"`
	Pagination *Pagination     `json:"pagination"`
	Error      *struct {
		Code    string          `json:"code"`
		Message string          `json:"message"`
		Details json.RawMessage `json:"details"`
	} `json:"error"`
}

type apiFixture struct {
	*fixture
	router *gin.Engine
	tokens *jwt.Service
}

func setupAPI(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := setupService(t)
	tokens := jwt.New("handler-test-secret", time.Hour)

	router := gin.New()
	api := router.Group("/api/v1", middleware.JWTAuth(tokens))
	NewHandler(f.svc).RegisterRoutes(api, nil)

	return &apiFixture{fixture: f, router: router, tokens: tokens}
}

func (a *apiFixture) do(t *testing.T, as *domain.User, method, path string, body any) (*httptest.ResponseRecorder, apiEnvelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if as != nil {
		token, err := a.tokens.GenerateToken(as.ID, string(as.Role))
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var env apiEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

func TestHandlerCreateBooking(t *testing.T) {
	a := setupAPI(t)

	w, env := a.do(t, a.customer, "POST", "/api/v1/bookings", gin.H{
		"service_id": a.listing.ID,
		"date":       "2030-01-10T10:00:00Z",
		"note":       "ring twice",
	})

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.True(t, env.Success)

	var res CreateBookingResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Equal(t, a.customer.ID, res.Booking.CustomerID)
	assert.Equal(t, domain.BookingPending, res.Booking.Status)
	assert.Equal(t, int64(500000), res.NewBalance)
	assert.Equal(t, int64(50000), res.Fees.PlatformFee)
	assert.NotContains(t, string(env.Data), "deletion_reason")
}

func TestHandlerCreateBookingErrors(t *testing.T) {
	a := setupAPI(t)
	poor := a.user(t, domain.RoleCustomer, 10)

	tests := []struct {
		name   string
		as     *domain.User
		body   any
		status int
		code   string
	}{
		{
			name:   "provider cannot book",
			as:     a.provider,
			body:   gin.H{"service_id": a.listing.ID, "date": "2030-01-10T10:00:00Z"},
			status: http.StatusForbidden,
			code:   "UNAUTHORIZED",
		},
		{
			name:   "missing date",
			as:     a.customer,
			body:   gin.H{"service_id": a.listing.ID},
			status: http.StatusBadRequest,
			code:   "VALIDATION_ERROR",
		},
		{
			name:   "unknown service",
			as:     a.customer,
			body:   gin.H{"service_id": 4242, "date": "2030-01-10T10:00:00Z"},
			status: http.StatusNotFound,
			code:   "NOT_FOUND",
		},
		{
			name:   "outside business hours",
			as:     a.customer,
			body:   gin.H{"service_id": a.listing.ID, "date": "2030-01-10T23:00:00Z"},
			status: http.StatusUnprocessableEntity,
			code:   "INVALID_SCHEDULE",
		},
		{
			name:   "insufficient funds",
			as:     poor,
			body:   gin.H{"service_id": a.listing.ID, "date": "2030-01-10T10:00:00Z"},
			status: http.StatusPaymentRequired,
			code:   "INSUFFICIENT_FUNDS",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := a.do(t, tt.as, "POST", "/api/v1/bookings", tt.body)

			assert.Equal(t, tt.status, w.Code, w.Body.String())
			assert.False(t, env.Success)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
		})
	}
}

func TestHandlerValidationDetails(t *testing.T) {
	a := setupAPI(t)
	a.book(t, a.customer, 10)
	other := a.user(t, domain.RoleCustomer, 1_000_000)

	w, env := a.do(t, other, "POST", "/api/v1/bookings", gin.H{
		"service_id": a.listing.ID,
		"date":       "2030-01-10T12:00:00Z",
	})

	assert.Equal(t, http.StatusConflict, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "SLOT_CONFLICT", env.Error.Code)

	var violations []Violation
	require.NoError(t, json.Unmarshal(env.Error.Details, &violations))
	require.Len(t, violations, 1)
	assert.Equal(t, "SLOT_CONFLICT", violations[0].Code)
}

func TestHandlerStatusLifecycle(t *testing.T) {
	a := setupAPI(t)
	b := a.book(t, a.customer, 10)
	path := fmt.Sprintf("/api/v1/bookings/%d/status", b.ID)

	w, env := a.do(t, a.provider, "PATCH", path, gin.H{"status": "confirmed"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var got domain.Booking
	require.NoError(t, json.Unmarshal(env.Data, &got))
	assert.Equal(t, domain.BookingConfirmed, got.Status)

	w, env = a.do(t, a.provider, "PATCH", path, gin.H{"status": "pending"})
	assert.Equal(t, http.StatusConflict, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_TRANSITION", env.Error.Code)
	var details map[string]string
	require.NoError(t, json.Unmarshal(env.Error.Details, &details))
	assert.Equal(t, "confirmed", details["current_status"])
	assert.Equal(t, "pending", details["requested_status"])

	w, env = a.do(t, a.customer, "PATCH", path, gin.H{"status": "completed"})
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	w, env = a.do(t, a.provider, "PATCH", path, gin.H{"status": "teleported"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	w, env = a.do(t, a.provider, "PATCH", "/api/v1/bookings/abc/status", gin.H{"status": "completed"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_ID", env.Error.Code)

	w, _ = a.do(t, a.provider, "PATCH", path, gin.H{"status": "completed"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(450000), a.balance(t, a.provider.ID))
}

func TestHandlerDeletionFlow(t *testing.T) {
	a := setupAPI(t)
	b := a.book(t, a.customer, 10)
	base := fmt.Sprintf("/api/v1/bookings/%d", b.ID)

	w, env := a.do(t, a.customer, "DELETE", base, gin.H{"reason": "duplicate"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, string(env.Data), `"deletion_reason":"duplicate"`)

	w, env = a.do(t, a.customer, "DELETE", base, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "ALREADY_DELETED", env.Error.Code)

	w, env = a.do(t, a.customer, "POST", base+"/restore", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", env.Error.Code)

	w, env = a.do(t, a.admin, "GET", "/api/v1/bookings?include_deleted=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, int64(1), env.Pagination.Total)
	assert.Contains(t, string(env.Data), `"is_deleted":true`)

	w, _ = a.do(t, a.admin, "POST", base+"/restore", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = a.do(t, a.admin, "DELETE", base+"/hard", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "NOT_SOFT_DELETED", env.Error.Code)

	w, _ = a.do(t, a.admin, "DELETE", base, nil)
	require.Equal(t, http.StatusOK, w.Code)
	w, _ = a.do(t, a.admin, "DELETE", base+"/hard", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w, env = a.do(t, a.admin, "POST", base+"/restore", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestHandlerListBookings(t *testing.T) {
	a := setupAPI(t)
	for day := 10; day < 15; day++ {
		a.book(t, a.customer, day)
	}

	w, env := a.do(t, a.customer, "GET", "/api/v1/bookings?limit=2&page=3", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NotNil(t, env.Pagination)
	assert.Equal(t, Pagination{Page: 3, Limit: 2, Total: 5, TotalPages: 3}, *env.Pagination)
	var views []map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &views))
	assert.Len(t, views, 1)

	w, env = a.do(t, a.customer, "GET", "/api/v1/bookings?from=2030-01-11&to=2030-01-13", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(2), env.Pagination.Total)

	w, env = a.do(t, a.customer, "GET", "/api/v1/bookings?include_deleted=true", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)

	w, env = a.do(t, a.customer, "GET", "/api/v1/bookings?from=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)

	w, env = a.do(t, a.customer, "GET", "/api/v1/bookings?from=2030-01-13&to=2030-01-11", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", env.Error.Code)
}

func TestHandlerLedger(t *testing.T) {
	a := setupAPI(t)
	b := a.book(t, a.customer, 10)
	stranger := a.user(t, domain.RoleProvider, 0)
	path := fmt.Sprintf("/api/v1/bookings/%d/ledger", b.ID)

	w, env := a.do(t, a.customer, "GET", path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var entries []domain.LedgerEntry
	require.NoError(t, json.Unmarshal(env.Data, &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, domain.LedgerPayment, entries[0].Type)

	w, env = a.do(t, stranger, "GET", path, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)
}

func TestHandlerRequiresAuth(t *testing.T) {
	a := setupAPI(t)

	w, env := a.do(t, nil, "GET", "/api/v1/bookings", nil)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "AUTH_HEADER_MISSING", env.Error.Code)
}
