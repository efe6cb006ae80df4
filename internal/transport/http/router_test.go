package httptransport

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"webmail/backend/internal/attachment"
	"webmail/backend/internal/auth"
	"webmail/backend/internal/config"
	"webmail/backend/internal/mailbox"
	"webmail/backend/internal/storage/filesystem"
	"webmail/backend/internal/storage/memory"
)

type testEnv struct {
	router *gin.Engine
	store  *memory.Store
}

func setupRouter(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := memory.NewStore()
	blobs, err := filesystem.NewStore(t.TempDir())
	require.NoError(t, err)

	log := zap.NewNop()
	cfg := &config.Config{
		Server:  config.ServerConfig{PageSize: 5},
		Auth:    config.AuthConfig{TokenTTL: 24 * time.Hour},
		Uploads: config.UploadsConfig{MaxSize: 10 * 1024 * 1024},
		CORS:    config.CORSConfig{AllowedOrigins: []string{"*"}},
	}

	authService := auth.NewService(store, cfg.Auth.TokenTTL, log)
	mailboxService := mailbox.NewService(store, blobs, log)

	router := NewRouter(RouterDependencies{
		Config:         cfg,
		AuthService:    authService,
		MailboxService: mailboxService,
		AttachmentGate: attachment.NewGate(store, log),
		Blobs:          blobs,
		Store:          store,
		Logger:         log,
	})
	return &testEnv{router: router, store: store}
}

func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, contentType string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) signup(t *testing.T, fullName, email, password string) {
	t.Helper()
	payload, _ := json.Marshal(map[string]string{
		"fullName":             fullName,
		"email":                email,
		"password":             password,
		"passwordConfirmation": password,
	})
	w := e.do(t, http.MethodPost, "/v1/auth/signup", bytes.NewReader(payload), "application/json", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
}

func (e *testEnv) signin(t *testing.T, email, password string) []*http.Cookie {
	t.Helper()
	payload, _ := json.Marshal(map[string]string{"email": email, "password": password})
	w := e.do(t, http.MethodPost, "/v1/auth/signin", bytes.NewReader(payload), "application/json", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies, "signin must set session cookies")
	return cookies
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp struct {
		Data map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Data
}

func TestSignupValidationFailure(t *testing.T) {
	env := setupRouter(t)

	payload, _ := json.Marshal(map[string]string{"email": "x@example.com"})
	w := env.do(t, http.MethodPost, "/v1/auth/signup", bytes.NewReader(payload), "application/json", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "full name is required")
	assert.Contains(t, w.Body.String(), "password is required")
}

func TestProtectedRoutesRequireSession(t *testing.T) {
	env := setupRouter(t)

	for _, path := range []string{"/v1/inbox", "/v1/outbox", "/v1/users", "/v1/auth/me"} {
		w := env.do(t, http.MethodGet, path, nil, "", nil)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestFullMessageLifecycle(t *testing.T) {
	env := setupRouter(t)
	env.signup(t, "Alice", "alice@example.com", "secret123")
	env.signup(t, "Bob", "bob@example.com", "secret456")
	aliceCookies := env.signin(t, "alice@example.com", "secret123")
	bobCookies := env.signin(t, "bob@example.com", "secret456")

	// Alice 从用户列表中找到 Bob
	w := env.do(t, http.MethodGet, "/v1/users", nil, "", aliceCookies)
	require.Equal(t, http.StatusOK, w.Code)
	var usersResp struct {
		Data []struct {
			ID    string `json:"id"`
			Email string `json:"email"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &usersResp))
	var bobID string
	for _, u := range usersResp.Data {
		if u.Email == "bob@example.com" {
			bobID = u.ID
		}
	}
	require.NotEmpty(t, bobID)

	// Alice 发送带附件的邮件
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("recipientId", bobID))
	require.NoError(t, mw.WriteField("subject", "Quarterly report"))
	require.NoError(t, mw.WriteField("body", "See attached."))
	part, err := mw.CreateFormFile("attachment", "report.pdf")
	require.NoError(t, err)
	_, err = part.Write([]byte("fake pdf bytes"))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	w = env.do(t, http.MethodPost, "/v1/messages", &buf, mw.FormDataContentType(), aliceCookies)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	messageID, _ := decodeData(t, w)["id"].(string)
	require.NotEmpty(t, messageID)

	// Bob 在收件箱中看到这封邮件
	w = env.do(t, http.MethodGet, "/v1/inbox", nil, "", bobCookies)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Quarterly report")
	assert.Contains(t, w.Body.String(), `"total":1`)

	// Bob 下载附件
	w = env.do(t, http.MethodGet, "/v1/attachments/"+messageID, nil, "", bobCookies)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "fake pdf bytes", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Disposition"), "report.pdf")

	// 无凭证的下载被拒绝
	w = env.do(t, http.MethodGet, "/v1/attachments/"+messageID, nil, "", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// 双方都删除后记录与附件清除
	deletePayload, _ := json.Marshal(map[string]any{"box": "inbox", "ids": []string{messageID}})
	w = env.do(t, http.MethodDelete, "/v1/messages", bytes.NewReader(deletePayload), "application/json", bobCookies)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	deletePayload, _ = json.Marshal(map[string]any{"box": "outbox", "ids": []string{messageID}})
	w = env.do(t, http.MethodDelete, "/v1/messages", bytes.NewReader(deletePayload), "application/json", aliceCookies)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = env.do(t, http.MethodGet, "/v1/attachments/"+messageID, nil, "", bobCookies)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestInboxPagination(t *testing.T) {
	env := setupRouter(t)
	env.signup(t, "Alice", "alice@example.com", "secret123")
	env.signup(t, "Bob", "bob@example.com", "secret456")
	aliceCookies := env.signin(t, "alice@example.com", "secret123")
	bobCookies := env.signin(t, "bob@example.com", "secret456")

	w := env.do(t, http.MethodGet, "/v1/users", nil, "", aliceCookies)
	require.Equal(t, http.StatusOK, w.Code)
	var usersResp struct {
		Data []struct {
			ID    string `json:"id"`
			Email string `json:"email"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &usersResp))
	var bobID string
	for _, u := range usersResp.Data {
		if u.Email == "bob@example.com" {
			bobID = u.ID
		}
	}

	for i := 0; i < 7; i++ {
		var buf bytes.Buffer
		mw := multipart.NewWriter(&buf)
		require.NoError(t, mw.WriteField("recipientId", bobID))
		require.NoError(t, mw.WriteField("subject", "msg"))
		require.NoError(t, mw.Close())
		w := env.do(t, http.MethodPost, "/v1/messages", &buf, mw.FormDataContentType(), aliceCookies)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w = env.do(t, http.MethodGet, "/v1/inbox", nil, "", bobCookies)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"total":7`)
	assert.Contains(t, w.Body.String(), `"totalPages":2`)
	assert.Equal(t, 5, strings.Count(w.Body.String(), `"subject"`))

	w = env.do(t, http.MethodGet, "/v1/inbox?page=2", nil, "", bobCookies)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, strings.Count(w.Body.String(), `"subject"`))
}

func TestSignoutClearsCookies(t *testing.T) {
	env := setupRouter(t)
	env.signup(t, "Alice", "alice@example.com", "secret123")
	cookies := env.signin(t, "alice@example.com", "secret123")

	w := env.do(t, http.MethodPost, "/v1/auth/signout", nil, "", cookies)
	require.Equal(t, http.StatusOK, w.Code)

	for _, c := range w.Result().Cookies() {
		assert.Empty(t, c.Value)
	}
}
