package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/schoolhub/apiserver/internal/auth"
	"github.com/schoolhub/apiserver/internal/metrics"
	"github.com/schoolhub/apiserver/internal/services"
	"github.com/schoolhub/apiserver/internal/storage"
	"github.com/schoolhub/apiserver/internal/store"
	"github.com/schoolhub/apiserver/types"
)

const (
	testSecret   = "router-test-secret"
	testPassword = "open sesame 42"
	schoolA      = "school-a"
	schoolB      = "school-b"
	branchA1     = "branch-a1"
	branchA2     = "branch-a2"
	branchB1     = "branch-b1"
)

var (
	hashOnce sync.Once
	hashed   string
)

type userStore struct {
	mu    sync.RWMutex
	users map[string]types.User
}

func (s *userStore) GetByID(ctx context.Context, id string) (types.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return u, nil
}

func (s *userStore) GetByEmail(ctx context.Context, email string) (types.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (s *userStore) FindActiveByID(ctx context.Context, id string) (types.User, error) {
	u, err := s.GetByID(ctx, id)
	if err != nil || !u.IsActive {
		return types.User{}, store.ErrNotFound
	}
	return u, nil
}

func (s *userStore) ListByBranch(ctx context.Context, branchID string, offset, limit int) ([]types.User, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []types.User{}
	for _, u := range s.users {
		if u.BranchID != nil && *u.BranchID == branchID {
			out = append(out, u)
		}
	}
	return out, len(out), nil
}

func (s *userStore) Create(ctx context.Context, user types.User) (types.User, error) {
	return types.User{}, store.ErrConflict
}

func (s *userStore) UpdateLastLogin(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.LastLoginAt = &at
	s.users[id] = u
	return nil
}

func (s *userStore) SetActive(ctx context.Context, id string, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.IsActive = active
	s.users[id] = u
	return nil
}

type branchStore map[string]types.Branch

func (s branchStore) Get(ctx context.Context, id string) (types.Branch, error) {
	b, ok := s[id]
	if !ok {
		return types.Branch{}, store.ErrNotFound
	}
	return b, nil
}

func (s branchStore) ListBySchool(ctx context.Context, schoolID string) ([]types.Branch, error) {
	out := []types.Branch{}
	for _, b := range s {
		if b.SchoolID == schoolID {
			out = append(out, b)
		}
	}
	return out, nil
}

type objectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (o *objectStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.objects[key] = data
	return nil
}

func (o *objectStore) Stat(ctx context.Context, key string) (storage.ObjectInfo, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	data, ok := o.objects[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{Key: key, Size: int64(len(data)), ContentType: "text/plain"}, nil
}

func (o *objectStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	data, ok := o.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (o *objectStore) Delete(ctx context.Context, key string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.objects, key)
	return nil
}

type fixture struct {
	router *httptestServer
	users  *userStore
	codec  *auth.TokenCodec
}

type httptestServer struct {
	handler http.Handler
}

func (s *httptestServer) do(t *testing.T, method, path, token string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.handler.ServeHTTP(rr, req)
	return rr
}

func strPtr(v string) *string { return &v }

func account(id string, role types.Role, school string, branch *string, active bool) types.User {
	return types.User{
		ID:           id,
		Email:        id + "@example.edu",
		PasswordHash: hashed,
		FirstName:    strings.ToUpper(id[:1]) + id[1:],
		LastName:     "Tester",
		Role:         role,
		SchoolID:     school,
		BranchID:     branch,
		IsActive:     active,
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	hashOnce.Do(func() {
		h, err := auth.HashPassword(testPassword)
		if err != nil {
			t.Fatalf("hash: %v", err)
		}
		hashed = h
	})

	users := &userStore{users: map[string]types.User{}}
	for _, u := range []types.User{
		account("head", types.RoleSuperAdmin, schoolA, nil, true),
		account("admin1", types.RoleBranchAdmin, schoolA, strPtr(branchA1), true),
		account("registrar1", types.RoleRegistrar, schoolA, strPtr(branchA1), true),
		account("teacher1", types.RoleTeacher, schoolA, strPtr(branchA1), true),
		account("teacher2", types.RoleTeacher, schoolA, strPtr(branchA2), true),
		account("student1", types.RoleStudent, schoolA, strPtr(branchA1), true),
		account("retired", types.RoleTeacher, schoolA, strPtr(branchA1), false),
	} {
		users.users[u.ID] = u
	}

	branches := branchStore{
		branchA1: {ID: branchA1, SchoolID: schoolA, Name: "North", Code: "N"},
		branchA2: {ID: branchA2, SchoolID: schoolA, Name: "South", Code: "S"},
		branchB1: {ID: branchB1, SchoolID: schoolB, Name: "Elsewhere", Code: "E"},
	}

	codec, err := auth.NewTokenCodec(testSecret)
	if err != nil {
		t.Fatalf("codec: %v", err)
	}

	quiet := log.New(io.Discard, "", 0)
	m := metrics.New()
	router := NewRouter(Deps{
		Users:      services.NewUserService(users, services.WithUserLogger(quiet)),
		Branches:   services.NewBranchService(branches),
		Documents:  services.NewDocumentService(&objectStore{objects: map[string][]byte{}}),
		Codec:      codec,
		Transport:  auth.NewTransport("session", false),
		Authorizer: auth.NewAuthorizer(quiet, m.ObserveBranchDecision),
		Metrics:    m,
	})

	return &fixture{
		router: &httptestServer{handler: router},
		users:  users,
		codec:  codec,
	}
}

func (f *fixture) token(t *testing.T, id string) string {
	t.Helper()
	u, err := f.users.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("user %s: %v", id, err)
	}
	token, err := f.codec.Issue(u.AuthUser())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	return token
}

func loginBody(email, password string) []byte {
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	return body
}

func TestLoginSetsSessionCookie(t *testing.T) {
	f := newFixture(t)

	rr := f.router.do(t, http.MethodPost, "/auth/login", "", loginBody("registrar1@example.edu", testPassword))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if strings.Contains(rr.Body.String(), "password") || strings.Contains(rr.Body.String(), hashed) {
		t.Fatalf("response leaks password material: %s", rr.Body.String())
	}

	var resp struct {
		Token string         `json:"token"`
		User  types.AuthUser `json:"user"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.User.ID != "registrar1" || resp.User.Role != types.RoleRegistrar {
		t.Fatalf("unexpected user %+v", resp.User)
	}

	var session *http.Cookie
	for _, c := range rr.Result().Cookies() {
		if c.Name == "session" {
			session = c
		}
	}
	if session == nil {
		t.Fatalf("expected session cookie")
	}
	if session.Value != resp.Token || !session.HttpOnly || session.SameSite != http.SameSiteLaxMode || session.MaxAge != 86400 {
		t.Fatalf("unexpected cookie %+v", session)
	}

	stored, _ := f.users.GetByID(context.Background(), "registrar1")
	if stored.LastLoginAt == nil {
		t.Fatalf("expected last login to be recorded")
	}

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(session)
	me := httptest.NewRecorder()
	f.router.handler.ServeHTTP(me, req)
	if me.Code != http.StatusOK || !strings.Contains(me.Body.String(), `"id":"registrar1"`) {
		t.Fatalf("expected /auth/me with cookie to succeed, got %d: %s", me.Code, me.Body.String())
	}
}

func TestLoginFailuresAreUniform(t *testing.T) {
	f := newFixture(t)

	var bodies []string
	for _, creds := range [][2]string{
		{"teacher1@example.edu", "wrong password"},
		{"retired@example.edu", testPassword},
		{"ghost@example.edu", testPassword},
	} {
		rr := f.router.do(t, http.MethodPost, "/auth/login", "", loginBody(creds[0], creds[1]))
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", creds[0], rr.Code)
		}
		if len(rr.Result().Cookies()) != 0 {
			t.Fatalf("%s: failed login must not set a cookie", creds[0])
		}
		bodies = append(bodies, rr.Body.String())
	}
	for _, b := range bodies[1:] {
		if b != bodies[0] {
			t.Fatalf("login failures differ: %q vs %q", bodies[0], b)
		}
	}
}

func TestLoginMissingCredentials(t *testing.T) {
	f := newFixture(t)

	for _, body := range [][]byte{
		loginBody("", testPassword),
		loginBody("teacher1@example.edu", ""),
		[]byte(`not json`),
	} {
		rr := f.router.do(t, http.MethodPost, "/auth/login", "", body)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected 400 for %s, got %d", body, rr.Code)
		}
	}
}

func TestExpiredTokenMatchesNoToken(t *testing.T) {
	f := newFixture(t)

	past, err := auth.NewTokenCodec(testSecret, auth.WithClock(func() time.Time {
		return time.Now().Add(-25 * time.Hour)
	}))
	if err != nil {
		t.Fatalf("codec: %v", err)
	}
	u, _ := f.users.GetByID(context.Background(), "teacher1")
	expired, err := past.Issue(u.AuthUser())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	none := f.router.do(t, http.MethodGet, "/auth/me", "", nil)
	stale := f.router.do(t, http.MethodGet, "/auth/me", expired, nil)
	if none.Code != http.StatusUnauthorized || stale.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401s, got %d and %d", none.Code, stale.Code)
	}
	if none.Body.String() != stale.Body.String() {
		t.Fatalf("expired token response differs from missing token: %q vs %q", stale.Body.String(), none.Body.String())
	}
}

func TestInactiveUserTokenRejected(t *testing.T) {
	f := newFixture(t)

	rr := f.router.do(t, http.MethodGet, "/auth/me", f.token(t, "retired"), nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestMeReflectsLiveRecord(t *testing.T) {
	f := newFixture(t)
	token := f.token(t, "teacher1")

	f.users.mu.Lock()
	u := f.users.users["teacher1"]
	u.BranchID = strPtr(branchA2)
	f.users.users["teacher1"] = u
	f.users.mu.Unlock()

	rr := f.router.do(t, http.MethodGet, "/auth/me", token, nil)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), `"branch_id":"`+branchA2+`"`) {
		t.Fatalf("expected live branch in response, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestBranchScopedAccess(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name   string
		user   string
		path   string
		status int
	}{
		{name: "branch admin own branch", user: "admin1", path: "/branches/" + branchA1, status: http.StatusOK},
		{name: "branch admin other branch", user: "admin1", path: "/branches/" + branchA2, status: http.StatusForbidden},
		{name: "teacher own branch", user: "teacher1", path: "/branches/" + branchA1, status: http.StatusOK},
		{name: "teacher other branch", user: "teacher1", path: "/branches/" + branchA2, status: http.StatusForbidden},
		{name: "super admin any branch", user: "head", path: "/branches/" + branchA2, status: http.StatusOK},
		{name: "super admin other school", user: "head", path: "/branches/" + branchB1, status: http.StatusForbidden},
		{name: "super admin missing branch", user: "head", path: "/branches/nope", status: http.StatusNotFound},
		{name: "scoped user cannot probe", user: "admin1", path: "/branches/nope", status: http.StatusForbidden},
		{name: "registrar lists own users", user: "registrar1", path: "/branches/" + branchA1 + "/users", status: http.StatusOK},
		{name: "teacher cannot list users", user: "teacher1", path: "/branches/" + branchA1 + "/users", status: http.StatusForbidden},
		{name: "super admin lists school", user: "head", path: "/schools/" + schoolA + "/branches", status: http.StatusOK},
		{name: "super admin other school list", user: "head", path: "/schools/" + schoolB + "/branches", status: http.StatusForbidden},
		{name: "branch admin school list", user: "admin1", path: "/schools/" + schoolA + "/branches", status: http.StatusForbidden},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := f.router.do(t, http.MethodGet, tc.path, f.token(t, tc.user), nil)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestProtectedRoutesRequireAuthentication(t *testing.T) {
	f := newFixture(t)

	for _, path := range []string{"/branches/" + branchA1, "/schools/" + schoolA + "/branches", "/auth/me"} {
		rr := f.router.do(t, http.MethodGet, path, "", nil)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s: expected 401, got %d", path, rr.Code)
		}
	}
}

func TestDeactivationEndsSessions(t *testing.T) {
	f := newFixture(t)
	teacherToken := f.token(t, "teacher1")
	adminToken := f.token(t, "admin1")

	if rr := f.router.do(t, http.MethodGet, "/auth/me", teacherToken, nil); rr.Code != http.StatusOK {
		t.Fatalf("expected 200 before deactivation, got %d", rr.Code)
	}

	rr := f.router.do(t, http.MethodPatch, "/users/teacher1/active", adminToken, []byte(`{"active":false}`))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d: %s", rr.Code, rr.Body.String())
	}

	if rr := f.router.do(t, http.MethodGet, "/auth/me", teacherToken, nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 after deactivation, got %d", rr.Code)
	}
}

func TestSetUserActiveScope(t *testing.T) {
	f := newFixture(t)

	cases := []struct {
		name   string
		actor  string
		target string
		body   string
		status int
	}{
		{name: "other branch", actor: "admin1", target: "teacher2", body: `{"active":false}`, status: http.StatusForbidden},
		{name: "super admin target", actor: "admin1", target: "head", body: `{"active":false}`, status: http.StatusForbidden},
		{name: "teacher role", actor: "teacher1", target: "student1", body: `{"active":false}`, status: http.StatusForbidden},
		{name: "self", actor: "admin1", target: "admin1", body: `{"active":false}`, status: http.StatusBadRequest},
		{name: "missing field", actor: "admin1", target: "student1", body: `{}`, status: http.StatusBadRequest},
		{name: "unknown user", actor: "head", target: "nobody", body: `{"active":true}`, status: http.StatusNotFound},
		{name: "super admin reactivates", actor: "head", target: "retired", body: `{"active":true}`, status: http.StatusNoContent},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := f.router.do(t, http.MethodPatch, "/users/"+tc.target+"/active", f.token(t, tc.actor), []byte(tc.body))
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rr.Code, rr.Body.String())
			}
		})
	}
}

func TestBranchDocuments(t *testing.T) {
	f := newFixture(t)
	path := "/branches/" + branchA1 + "/documents/timetable.txt"

	if rr := f.router.do(t, http.MethodPut, path, f.token(t, "student1"), []byte("x")); rr.Code != http.StatusForbidden {
		t.Fatalf("student upload: expected 403, got %d", rr.Code)
	}
	if rr := f.router.do(t, http.MethodPut, path, f.token(t, "registrar1"), []byte("mon: maths")); rr.Code != http.StatusCreated {
		t.Fatalf("registrar upload: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}

	rr := f.router.do(t, http.MethodGet, path, f.token(t, "student1"), nil)
	if rr.Code != http.StatusOK || rr.Body.String() != "mon: maths" {
		t.Fatalf("student read: got %d %q", rr.Code, rr.Body.String())
	}
	if rr := f.router.do(t, http.MethodGet, path, f.token(t, "teacher2"), nil); rr.Code != http.StatusForbidden {
		t.Fatalf("other branch read: expected 403, got %d", rr.Code)
	}
	if rr := f.router.do(t, http.MethodGet, "/branches/"+branchA1+"/documents/missing.txt", f.token(t, "student1"), nil); rr.Code != http.StatusNotFound {
		t.Fatalf("missing document: expected 404, got %d", rr.Code)
	}
	if rr := f.router.do(t, http.MethodPut, "/branches/"+branchA1+"/documents/.env", f.token(t, "admin1"), []byte("x")); rr.Code != http.StatusBadRequest {
		t.Fatalf("invalid name: expected 400, got %d", rr.Code)
	}
	if rr := f.router.do(t, http.MethodDelete, path, f.token(t, "admin1"), nil); rr.Code != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", rr.Code)
	}
}

func TestLogoutClearsCookie(t *testing.T) {
	f := newFixture(t)

	rr := f.router.do(t, http.MethodPost, "/auth/logout", "", nil)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	cookies := rr.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Name != "session" || cookies[0].MaxAge >= 0 {
		t.Fatalf("expected expired session cookie, got %+v", cookies)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	f := newFixture(t)
	f.router.do(t, http.MethodPost, "/auth/login", "", loginBody("ghost@example.edu", testPassword))

	if rr := f.router.do(t, http.MethodGet, "/healthz", "", nil); rr.Code != http.StatusOK {
		t.Fatalf("healthz: expected 200, got %d", rr.Code)
	}
	rr := f.router.do(t, http.MethodGet, "/metrics", "", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("metrics: expected 200, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `schoolhub_auth_logins_total{outcome="invalid_credentials"} 1`) {
		t.Fatalf("expected login counter, got:\n%s", rr.Body.String())
	}
}
