package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRate(t *testing.T) {
	rate, err := ParseRate("30-1m")
	require.NoError(t, err)
	assert.Equal(t, int64(30), rate.Limit)
	assert.Equal(t, time.Minute, rate.Period)

	for _, bad := range []string{"", "30", "x-1m", "0-1m", "5-forever", "5--1s"} {
		_, err := ParseRate(bad)
		assert.Error(t, err, "rate %q", bad)
	}
}

func TestRateLimit_PerUser(t *testing.T) {
	store, err := NewLimiterStore(nil, "test")
	require.NoError(t, err)
	rate, err := ParseRate("2-1m")
	require.NoError(t, err)

	router := gin.New()
	router.Use(func(c *gin.Context) {
		if id := c.GetHeader("X-User"); id == "1" {
			c.Set(ctxUserID, int64(1))
		} else if id == "2" {
			c.Set(ctxUserID, int64(2))
		}
		c.Next()
	})
	router.Use(RateLimit(store, rate))
	router.POST("/bookings", func(c *gin.Context) {
		c.Status(http.StatusCreated)
	})

	send := func(user string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest("POST", "/bookings", nil)
		req.Header.Set("X-User", user)
		router.ServeHTTP(w, req)
		return w
	}

	assert.Equal(t, http.StatusCreated, send("1").Code)
	assert.Equal(t, http.StatusCreated, send("1").Code)

	limited := send("1")
	assert.Equal(t, http.StatusTooManyRequests, limited.Code)
	assert.Contains(t, limited.Body.String(), "RATE_LIMITED")

	assert.Equal(t, http.StatusCreated, send("2").Code, "limits are per user")
}

func TestCORS_Preflight(t *testing.T) {
	router := gin.New()
	router.Use(CORS([]string{"https://app.example.com"}))
	router.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "https://app.example.com")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
