package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scopegraph/backend/internal/graph"
)

func TestHealthEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/health", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var response map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &response)
	assert.Equal(t, "ok", response["status"])
}

func runSearchParams(t *testing.T, query string) (graph.Scope, string, int, *time.Time, bool, int) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request, _ = http.NewRequest("GET", "/api/search?"+query, nil)

	scope, ownerID, limit, at, ok := searchParams(c)
	return scope, ownerID, limit, at, ok, w.Code
}

func TestSearchParams_Defaults(t *testing.T) {
	scope, ownerID, limit, at, ok, _ := runSearchParams(t, "q=test")
	require.True(t, ok)
	assert.Equal(t, graph.Scope(""), scope)
	assert.Equal(t, "", ownerID)
	assert.Equal(t, 20, limit)
	assert.Nil(t, at)
}

func TestSearchParams_Explicit(t *testing.T) {
	scope, ownerID, limit, at, ok, _ := runSearchParams(t,
		"q=test&scope=user&owner_id=u1&limit=5&at=2025-06-01T12:00:00Z")
	require.True(t, ok)
	assert.Equal(t, graph.ScopeUser, scope)
	assert.Equal(t, "u1", ownerID)
	assert.Equal(t, 5, limit)
	require.NotNil(t, at)
	assert.Equal(t, 2025, at.Year())
}

func TestSearchParams_Invalid(t *testing.T) {
	cases := []struct {
		name  string
		query string
	}{
		{"bad scope", "q=test&scope=everyone"},
		{"bad limit", "q=test&limit=zero"},
		{"negative limit", "q=test&limit=-1"},
		{"bad timestamp", "q=test&at=yesterday"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, _, _, ok, code := runSearchParams(t, tc.query)
			assert.False(t, ok)
			assert.Equal(t, http.StatusBadRequest, code)
		})
	}
}

func TestResolveIngestScope(t *testing.T) {
	cases := []struct {
		name      string
		scope     string
		userID    string
		wantScope graph.Scope
		wantOwner string
		wantErr   bool
	}{
		{"default is user", "", "u1", graph.ScopeUser, "u1", false},
		{"explicit user", "user", "u1", graph.ScopeUser, "u1", false},
		{"twin keeps owner", "twin", "t1", graph.ScopeTwin, "t1", false},
		{"global drops owner", "global", "u1", graph.ScopeGlobal, "", false},
		{"global without owner", "global", "", graph.ScopeGlobal, "", false},
		{"user without owner", "user", "", "", "", true},
		{"unknown scope", "everyone", "u1", "", "", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			scope, owner, err := resolveIngestScope(tc.scope, tc.userID)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantScope, scope)
			assert.Equal(t, tc.wantOwner, owner)
		})
	}
}

func TestIngestMessageEndpoint_InvalidRequest(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	// Mirrors the binding rules of the real handler
	router.POST("/api/ingest/message", func(c *gin.Context) {
		var req struct {
			Text   string `json:"text" binding:"required"`
			UserID string `json:"user_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "accepted"})
	})

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/api/ingest/message", nil)
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
