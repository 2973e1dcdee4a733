package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
	"gotest.tools/v3/assert"

	"github.com/gristips/gristips/api"
	"github.com/gristips/gristips/internal/logging"
	"github.com/gristips/gristips/internal/ratelimit"
	"github.com/gristips/gristips/internal/server/data"
	"github.com/gristips/gristips/internal/server/models"
	"github.com/gristips/gristips/internal/server/providers"
)

const testMasterKey = "a-master-key-only-used-by-the-server-tests"

func testOptions() Options {
	return Options{
		MasterKey:                testMasterKey,
		BaseURL:                  "https://gristips.example.gouv.fr",
		SessionDuration:          time.Hour,
		SessionInactivityTimeout: 30 * time.Minute,
		ProConnect: providers.ProConnectOptions{
			Issuer:       "https://proconnect.example.gouv.fr",
			ClientID:     "gristips",
			ClientSecret: "client-secret",
		},
		DB: DBOptions{SQLiteFile: "file::memory:"},
		RateLimits: RateLimitOptions{
			Login:    ratelimit.Options{MaxRequests: 10, Window: time.Minute},
			GristKey: ratelimit.Options{MaxRequests: 5, Window: time.Minute},
			GristAPI: ratelimit.Options{MaxRequests: 100, Window: time.Minute},
		},
		Grist: GristOptions{
			MaxAttempts: 2,
			BaseDelay:   time.Millisecond,
			MaxDelay:    5 * time.Millisecond,
		},
	}
}

func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	driver, err := data.NewSQLiteDriver("file::memory:")
	assert.NilError(t, err)

	db, err := data.NewDB(driver)
	assert.NilError(t, err)

	t.Cleanup(func() {
		sqlDB, err := db.DB()
		assert.Check(t, err)
		assert.Check(t, sqlDB.Close())
	})
	return db
}

// setupServer creates a server that is not listening, with a fake identity
// provider. ops are applied to the options before the server is created.
func setupServer(t *testing.T, ops ...func(*testing.T, *Options)) (*Server, *fakeProvider) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logging.PatchLogger(t, io.Discard)

	options := testOptions()
	for _, op := range ops {
		op(t, &options)
	}

	s, err := newServer(options, setupDB(t))
	assert.NilError(t, err)

	provider := &fakeProvider{}
	s.provider = provider
	return s, provider
}

// fakeProvider stands in for ProConnect. Exchange returns identity when the
// code is "valid-code".
type fakeProvider struct {
	identity      *providers.Identity
	endSessionURL string

	exchangedNonce string
	idTokenHint    string
}

func (f *fakeProvider) AuthCodeURL(_ context.Context, state, nonce string) (string, error) {
	q := url.Values{"state": {state}, "nonce": {nonce}, "acr_values": {"eidas1"}}
	return "https://proconnect.example.gouv.fr/api/v2/authorize?" + q.Encode(), nil
}

func (f *fakeProvider) Exchange(_ context.Context, code, nonce string) (*providers.Identity, error) {
	f.exchangedNonce = nonce
	if code != "valid-code" || f.identity == nil {
		return nil, errors.New("invalid_grant")
	}
	return f.identity, nil
}

func (f *fakeProvider) EndSessionURL(_ context.Context, idTokenHint, state string) (string, error) {
	f.idTokenHint = idTokenHint
	if f.endSessionURL == "" {
		return "", nil
	}
	return f.endSessionURL + "?state=" + state, nil
}

func createUser(t *testing.T, db *gorm.DB, subject string, publicAgent bool) *models.User {
	t.Helper()
	user, err := data.UpsertUserFromClaims(db, data.UserClaims{
		Subject:       subject,
		Email:         subject + "@example.gouv.fr",
		GivenName:     "Camille",
		UsualName:     "Martin",
		IsPublicAgent: publicAgent,
	})
	assert.NilError(t, err)
	return user
}

// createSession returns a session token for user.
func createSession(t *testing.T, db *gorm.DB, user *models.User) string {
	t.Helper()
	token, err := data.CreateSession(db, &models.Session{
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(time.Hour),
	})
	assert.NilError(t, err)
	return token
}

// request sends a request to routes, authenticated with token when it is
// not empty. body is encoded as JSON when it is not nil.
func request(t *testing.T, routes http.Handler, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reqBody io.Reader
	if body != nil {
		buf := &bytes.Buffer{}
		assert.NilError(t, json.NewEncoder(buf).Encode(body))
		reqBody = buf
	}

	req := httptest.NewRequest(method, path, reqBody)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp := httptest.NewRecorder()
	routes.ServeHTTP(resp, req)
	return resp
}

func decodeBody[T any](t *testing.T, resp *httptest.ResponseRecorder) T {
	t.Helper()
	var result T
	assert.NilError(t, json.NewDecoder(resp.Body).Decode(&result), resp.Body.String())
	return result
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) api.Error {
	t.Helper()
	return decodeBody[api.Error](t, resp)
}

const testGristAPIKey = "grist-api-key-0123456789"

// newTestGristServer serves the part of the Grist API used by the proxy.
// Requests must use testGristAPIKey.
func newTestGristServer(t *testing.T) *httptest.Server {
	t.Helper()

	write := func(w http.ResponseWriter, status int, body string) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = io.WriteString(w, body)
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer "+testGristAPIKey {
			write(w, http.StatusUnauthorized, `{"error":"invalid API key"}`)
			return
		}

		switch {
		case r.URL.Path == "/api/profile/user":
			write(w, http.StatusOK, `{"id":5,"email":"camille@example.gouv.fr","name":"Camille"}`)
		case r.URL.Path == "/api/orgs":
			write(w, http.StatusOK, `[{"id":1,"name":"Personal","domain":"docs-5"},{"id":2,"name":"DINUM","domain":"dinum"}]`)
		case r.URL.Path == "/api/orgs/dinum/workspaces":
			write(w, http.StatusOK, `[{"id":7,"name":"Home","docs":[{"id":"doc1","name":"Effectifs"}]}]`)
		case r.URL.Path == "/api/docs/doc1/tables":
			write(w, http.StatusOK, `{"tables":[{"id":"Agents"},{"id":"Services"}]}`)
		case r.URL.Path == "/api/docs/doc1/tables/Agents/columns":
			write(w, http.StatusOK, `{"columns":[{"id":"Nom","fields":{"label":"Nom","type":"Text"}}]}`)
		case strings.HasPrefix(r.URL.Path, "/api/docs/broken"):
			write(w, http.StatusInternalServerError, `{"error":"internal error"}`)
		default:
			write(w, http.StatusNotFound, `{"error":"not found"}`)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

// storeGristKey saves the test key for user, as if it was set with the API.
func storeGristKey(t *testing.T, s *Server, user *models.User, serverURL string) {
	t.Helper()
	encrypted, err := s.encryptor.Encrypt(testGristAPIKey)
	assert.NilError(t, err)
	assert.NilError(t, data.SetUserGristKey(s.db, user, serverURL, encrypted, "hash"))
}
