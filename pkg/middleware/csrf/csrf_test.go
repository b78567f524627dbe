package csrf

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(t *testing.T, method string, prepare func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.Use(Middleware(Config{AuthCookies: []string{"accessToken"}, SkipPaths: []string{"/auth/login"}}))
	ok := func(c echo.Context) error { return c.NoContent(http.StatusOK) }
	e.GET("/calculations", ok)
	e.POST("/calculations", ok)
	e.POST("/auth/login", ok)

	path := "/calculations"
	req := httptest.NewRequest(method, path, nil)
	if prepare != nil {
		prepare(req)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func TestSafeMethodIssuesToken(t *testing.T) {
	t.Parallel()

	rec := serve(t, http.MethodGet, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	token := rec.Header().Get("X-CSRF-Token")
	require.NotEmpty(t, token)
	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == "XSRF-TOKEN" {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.Equal(t, token, cookie.Value)
	assert.False(t, cookie.HttpOnly)
}

func TestUnsafeMethods(t *testing.T) {
	t.Parallel()

	withCookies := func(csrf string) func(*http.Request) {
		return func(r *http.Request) {
			r.AddCookie(&http.Cookie{Name: "accessToken", Value: "tok"})
			r.AddCookie(&http.Cookie{Name: "XSRF-TOKEN", Value: "abc"})
			if csrf != "" {
				r.Header.Set("X-CSRF-Token", csrf)
			}
		}
	}

	tests := []struct {
		name    string
		prepare func(*http.Request)
		want    int
	}{
		{"cookie auth with matching header", withCookies("abc"), http.StatusOK},
		{"cookie auth without header", withCookies(""), http.StatusForbidden},
		{"cookie auth with wrong header", withCookies("abd"), http.StatusForbidden},
		{"bearer auth is exempt", func(r *http.Request) {
			withCookies("")(r)
			r.Header.Set(echo.HeaderAuthorization, "Bearer tok")
		}, http.StatusOK},
		{"no auth cookie", nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(t, http.MethodPost, tt.prepare)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestSkipPaths(t *testing.T) {
	t.Parallel()

	e := echo.New()
	e.Use(Middleware(Config{AuthCookies: []string{"accessToken"}, SkipPaths: []string{"/auth/login"}}))
	e.POST("/auth/login", func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
	req.AddCookie(&http.Cookie{Name: "accessToken", Value: "stale"})
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
