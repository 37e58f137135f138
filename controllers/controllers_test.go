package controllers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"civicservice-be/controllers"
	"civicservice-be/middlewares"
	"civicservice-be/models"
	"civicservice-be/routes"
	"civicservice-be/services"
	"civicservice-be/store"
	authUtils "civicservice-be/utils"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubCaptcha accepts exactly one token value
type stubCaptcha struct{ valid string }

func (s stubCaptcha) Verify(_ context.Context, token, _ string) bool {
	return token != "" && token == s.valid
}

func (s stubCaptcha) IsConfigured() bool { return true }

type harness struct {
	t      *testing.T
	router *gin.Engine
	mem    *store.MemoryStore
	svc    *services.RequestService
	tokens authUtils.TokenConfig
}

func newHarness(t *testing.T, mutate func(d *routes.Deps)) *harness {
	t.Helper()
	mem := store.NewMemoryStore()
	tokens := authUtils.TokenConfig{Secret: "test-secret", Issuer: "civicservice", Audience: "civicservice", TTL: time.Hour}
	svc := services.NewRequestService(mem, mem, nil)
	verifier := stubCaptcha{valid: "human"}

	d := routes.Deps{
		Requests: controllers.NewRequestController(svc, verifier),
		Auth: &controllers.AuthController{
			Users:   mem,
			Tokens:  tokens,
			Captcha: verifier,
			Lockout: controllers.NewMemoryLockout(),
		},
		Health:      &controllers.HealthController{Checks: []controllers.HealthCheck{{Name: "store", Check: mem.Ping}}},
		Tokens:      tokens,
		CORSOrigins: []string{"http://localhost:3000"},
	}
	if mutate != nil {
		mutate(&d)
	}
	return &harness{t: t, router: routes.NewRouter(d), mem: mem, svc: svc, tokens: tokens}
}

// user stores an account and returns a bearer token for it
func (h *harness) user(id string, roles ...models.Role) string {
	h.t.Helper()
	u := &models.User{ID: id, Email: id + "@city.gov", FirstName: "Pat", LastName: id, Password: "secret1", Roles: roles, CreatedAt: time.Now()}
	require.NoError(h.t, u.HashPassword())
	require.NoError(h.t, h.mem.InsertUser(context.Background(), u))
	token, _, err := h.tokens.GenerateToken(u, time.Now())
	require.NoError(h.t, err)
	return token
}

func (h *harness) do(method, path, token string, body any) *httptest.ResponseRecorder {
	h.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(h.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func submission(category, address string) gin.H {
	return gin.H{
		"category":    category,
		"description": "Large pothole in the left lane",
		"address":     address,
	}
}

func (h *harness) createAs(token string, category, address string) models.ServiceRequestView {
	h.t.Helper()
	body := submission(category, address)
	if token == "" {
		body["captchaToken"] = "human"
	}
	w := h.do(http.MethodPost, "/api/requests", token, body)
	require.Equal(h.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[models.ServiceRequestView](h.t, w)
}

func TestCreateRequestHandler(t *testing.T) {
	h := newHarness(t, nil)
	citizen := h.user("citizen", models.RoleCitizen)

	tests := []struct {
		name   string
		token  string
		body   gin.H
		status int
	}{
		{"guest without captcha", "", submission("Pothole", "1 Main St, Downtown"), http.StatusBadRequest},
		{"guest with bad captcha", "", func() gin.H { b := submission("Pothole", "1 Main St"); b["captchaToken"] = "bot"; return b }(), http.StatusBadRequest},
		{"guest with captcha", "", func() gin.H { b := submission("Pothole", "1 Main St"); b["captchaToken"] = "human"; return b }(), http.StatusCreated},
		{"citizen skips captcha", citizen, submission("StreetLight", "2 Oak Ave, Riverside"), http.StatusCreated},
		{"unknown category", citizen, submission("Volcano", "2 Oak Ave"), http.StatusBadRequest},
		{"missing category", citizen, gin.H{"description": "Large pothole in the left lane", "address": "2 Oak Ave"}, http.StatusBadRequest},
		{"short description", citizen, gin.H{"category": "Pothole", "description": "hole", "address": "2 Oak Ave"}, http.StatusBadRequest},
		{"latitude out of range", citizen, gin.H{"category": "Pothole", "description": "Large pothole in the left lane", "address": "2 Oak Ave", "latitude": 91.0}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := h.do(http.MethodPost, "/api/requests", tt.token, tt.body)
			assert.Equal(t, tt.status, w.Code, w.Body.String())
		})
	}

	w := h.do(http.MethodPost, "/api/requests", citizen, submission("Pothole", "9 Elm St, Downtown, Springfield"))
	require.Equal(t, http.StatusCreated, w.Code)
	view := decode[models.ServiceRequestView](t, w)
	assert.Equal(t, models.CategoryPothole, view.Category)
	assert.Equal(t, models.StatusOpen, view.Status)
	require.NotNil(t, view.Neighborhood)
	assert.Equal(t, "Downtown", *view.Neighborhood)
	require.NotNil(t, view.SubmittedByID)
	assert.Equal(t, "citizen", *view.SubmittedByID)
	assert.Equal(t, "/api/requests/"+view.ID.String(), w.Header().Get("Location"))
}

func TestListRequestsHandler(t *testing.T) {
	h := newHarness(t, nil)
	citizen := h.user("citizen", models.RoleCitizen)
	h.createAs(citizen, "Pothole", "1 Main St, Downtown")
	h.createAs(citizen, "Graffiti", "2 Oak Ave, Riverside")
	h.createAs("", "Pothole", "3 Pine Rd, Downtown")

	w := h.do(http.MethodGet, "/api/requests?category=Pothole&page=1&pageSize=1", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[models.PagedResult[models.ServiceRequestView]](t, w)
	assert.Len(t, page.Items, 1)
	assert.EqualValues(t, 2, page.TotalCount)
	assert.Equal(t, 2, page.TotalPages)

	w = h.do(http.MethodGet, "/api/requests?status=all&category=all", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 3, decode[models.PagedResult[models.ServiceRequestView]](t, w).TotalCount)

	w = h.do(http.MethodGet, "/api/requests?pageSize=0", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	page = decode[models.PagedResult[models.ServiceRequestView]](t, w)
	assert.Equal(t, 1, page.PageSize)
	assert.Len(t, page.Items, 1)
	assert.Equal(t, 3, page.TotalPages)

	w = h.do(http.MethodGet, "/api/requests?pageSize=lots", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 25, decode[models.PagedResult[models.ServiceRequestView]](t, w).PageSize)

	for _, q := range []string{"status=Bogus", "category=Bogus"} {
		w = h.do(http.MethodGet, "/api/requests?"+q, "", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, q)
	}

	w = h.do(http.MethodGet, "/api/requests/mine", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = h.do(http.MethodGet, "/api/requests/mine", citizen, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 2, decode[models.PagedResult[models.ServiceRequestView]](t, w).TotalCount)
}

func TestGetRequestHandler(t *testing.T) {
	h := newHarness(t, nil)
	created := h.createAs("", "Graffiti", "5 Bay St, Harbor")

	w := h.do(http.MethodGet, "/api/requests/not-a-uuid", "", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodGet, "/api/requests/00000000-0000-0000-0000-000000000001", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.do(http.MethodGet, "/api/requests/"+created.ID.String(), "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, created.ID, decode[models.ServiceRequestView](t, w).ID)
}

func TestUpdateStatusHandler(t *testing.T) {
	h := newHarness(t, nil)
	citizen := h.user("citizen", models.RoleCitizen)
	staff := h.user("staff", models.RoleStaff)
	created := h.createAs(citizen, "Pothole", "1 Main St, Downtown")
	path := "/api/requests/" + created.ID.String() + "/status"

	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodPut, path, "", gin.H{"status": "Closed"}).Code)
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodPut, path, citizen, gin.H{"status": "Closed"}).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPut, path, staff, gin.H{"status": "Finished"}).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPut, path, staff, gin.H{}).Code)
	assert.Equal(t, http.StatusNotFound,
		h.do(http.MethodPut, "/api/requests/00000000-0000-0000-0000-000000000001/status", staff, gin.H{"status": "Closed"}).Code)

	w := h.do(http.MethodPut, path, staff, gin.H{"status": "InProgress"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	view := decode[models.ServiceRequestView](t, w)
	assert.Equal(t, models.StatusInProgress, view.Status)
	assert.False(t, view.UpdatedAt.Before(view.CreatedAt))
	h.svc.Wait()
}

func TestUpvoteHandlers(t *testing.T) {
	h := newHarness(t, nil)
	citizen := h.user("citizen", models.RoleCitizen)
	created := h.createAs("", "Pothole", "1 Main St, Downtown")
	path := "/api/requests/" + created.ID.String() + "/upvote"

	w := h.do(http.MethodPost, path, "", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"upvoteCount":1,"hasUpvoted":true}`, w.Body.String())

	assert.Equal(t, http.StatusConflict, h.do(http.MethodPost, path, "", nil).Code)

	// same IP, now signed in, counts separately
	w = h.do(http.MethodPost, path, citizen, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"upvoteCount":2,"hasUpvoted":true}`, w.Body.String())

	assert.Equal(t, http.StatusNotFound,
		h.do(http.MethodPost, "/api/requests/00000000-0000-0000-0000-000000000001/upvote", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/requests/xyz/upvote", "", nil).Code)

	w = h.do(http.MethodDelete, path, citizen, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"upvoteCount":1,"hasUpvoted":false}`, w.Body.String())
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodDelete, path, citizen, nil).Code)
}

func TestStatisticsHandler(t *testing.T) {
	h := newHarness(t, nil)
	h.createAs("", "Pothole", "1 Main St, Downtown")
	h.createAs("", "Graffiti", "2 Oak Ave, Downtown")

	w := h.do(http.MethodGet, "/api/requests/stats", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode[models.DashboardStats](t, w)
	assert.Equal(t, 2, stats.TotalRequests)
	assert.Equal(t, 2, stats.OpenRequests)
	require.NotEmpty(t, stats.TopNeighborhoods)
	assert.Equal(t, models.NeighborhoodCount{Neighborhood: "Downtown", Count: 2}, stats.TopNeighborhoods[0])
}

func TestMapFeedHandler(t *testing.T) {
	h := newHarness(t, nil)
	citizen := h.user("citizen", models.RoleCitizen)
	body := submission("Pothole", "1 Main St, Downtown")
	body["latitude"] = 40.5
	body["longitude"] = -73.25
	require.Equal(t, http.StatusCreated, h.do(http.MethodPost, "/api/requests", citizen, body).Code)
	h.createAs(citizen, "Graffiti", "2 Oak Ave")

	w := h.do(http.MethodGet, "/api/requests/map", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/geo+json", w.Header().Get("Content-Type"))

	var fc struct {
		Type     string `json:"type"`
		Features []struct {
			Geometry struct {
				Type        string    `json:"type"`
				Coordinates []float64 `json:"coordinates"`
			} `json:"geometry"`
			Properties map[string]any `json:"properties"`
		} `json:"features"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &fc))
	assert.Equal(t, "FeatureCollection", fc.Type)
	require.Len(t, fc.Features, 1)
	assert.Equal(t, []float64{-73.25, 40.5}, fc.Features[0].Geometry.Coordinates)
	assert.Equal(t, "Pothole", fc.Features[0].Properties["category"])
}

func TestSubmitRateLimit(t *testing.T) {
	h := newHarness(t, func(d *routes.Deps) {
		d.SubmitLimiter = middlewares.NewLocalLimiter(1, time.Minute)
	})
	h.createAs("", "Pothole", "1 Main St")

	body := submission("Pothole", "1 Main St")
	body["captchaToken"] = "human"
	w := h.do(http.MethodPost, "/api/requests", "", body)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestRegisterAndLogin(t *testing.T) {
	h := newHarness(t, nil)
	reg := gin.H{
		"email":        "Resident@Example.com",
		"password":     "hunter22",
		"firstName":    "Ada",
		"lastName":     "Lovelace",
		"captchaToken": "human",
	}

	w := h.do(http.MethodPost, "/api/auth/register", "", gin.H{"email": "a@b.com", "password": "hunter22", "firstName": "A", "lastName": "B"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "captcha required")

	w = h.do(http.MethodPost, "/api/auth/register", "", reg)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decode[controllers.AuthResponse](t, w)
	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.Token)
	require.NotNil(t, resp.User)
	assert.Equal(t, "resident@example.com", resp.User.Email)
	assert.Equal(t, []string{"Citizen"}, resp.User.Roles)

	w = h.do(http.MethodPost, "/api/auth/register", "", reg)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": "resident@example.com", "password": "wrong-pass"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = h.do(http.MethodPost, "/api/auth/login", "", gin.H{"email": "RESIDENT@example.com", "password": "hunter22"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	login := decode[controllers.AuthResponse](t, w)
	assert.True(t, login.Success)

	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == middlewares.AuthCookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, login.Token, cookie.Value)

	w = h.do(http.MethodGet, "/api/auth/me", login.Token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"email":"resident@example.com"`)

	w = h.do(http.MethodPost, "/api/auth/logout", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, strings.Contains(w.Header().Get("Set-Cookie"), middlewares.AuthCookieName+"=;"))
}

func TestLoginLockout(t *testing.T) {
	h := newHarness(t, nil)
	h.user("clerk", models.RoleStaff)
	creds := gin.H{"email": "clerk@city.gov", "password": "wrong-pass"}

	for i := 0; i < controllers.MaxFailedLogins; i++ {
		assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodPost, "/api/auth/login", "", creds).Code)
	}

	creds["password"] = "secret1"
	assert.Equal(t, http.StatusTooManyRequests, h.do(http.MethodPost, "/api/auth/login", "", creds).Code)
}

func TestAdminUserManagement(t *testing.T) {
	h := newHarness(t, nil)
	admin := h.user("admin", models.RoleAdmin)
	citizen := h.user("citizen", models.RoleCitizen)
	staff := gin.H{"email": "new.staff@city.gov", "password": "secret1", "firstName": "New", "lastName": "Staff", "role": "Staff"}

	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodPost, "/api/auth/staff", "", staff).Code)
	assert.Equal(t, http.StatusForbidden, h.do(http.MethodPost, "/api/auth/staff", citizen, staff).Code)

	bad := gin.H{"email": "x@city.gov", "password": "secret1", "firstName": "X", "lastName": "Y", "role": "Citizen"}
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/auth/staff", admin, bad).Code)

	w := h.do(http.MethodPost, "/api/auth/staff", admin, staff)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Contains(t, w.Body.String(), `"roles":["Staff"]`)

	w = h.do(http.MethodGet, "/api/auth/users", admin, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var users []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &users))
	assert.Len(t, users, 3)
	assert.NotContains(t, w.Body.String(), "password")
}

func TestSeedAdmin(t *testing.T) {
	mem := store.NewMemoryStore()
	ac := &controllers.AuthController{Users: mem}
	ctx := context.Background()

	require.NoError(t, ac.SeedAdmin(ctx, "root@city.gov", "changeme"))
	require.NoError(t, ac.SeedAdmin(ctx, "root@city.gov", "changeme"))

	users, err := mem.ListUsers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.True(t, users[0].HasRole(models.RoleAdmin))
	assert.True(t, users[0].ComparePassword("changeme"))
}

func TestHealthHandlers(t *testing.T) {
	h := newHarness(t, nil)
	w := h.do(http.MethodGet, "/health", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"Healthy"`)
	assert.Contains(t, w.Body.String(), `"name":"store"`)

	failing := newHarness(t, func(d *routes.Deps) {
		d.Health = &controllers.HealthController{Checks: []controllers.HealthCheck{
			{Name: "redis", Check: func(context.Context) error { return errors.New("connection refused") }},
		}}
	})
	w = failing.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "connection refused")

	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/health/live", "", nil).Code)
}
