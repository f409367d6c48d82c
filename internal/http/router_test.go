package httpapi

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
)

type pingModule struct{}

func (pingModule) Register(r chi.Router) {
	r.Get("/ping", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
}

func serve(h http.Handler, method, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w
}

func TestNewRouter(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("premiumblocker_up 1\n"))
	})

	t.Run("healthy", func(t *testing.T) {
		r := NewRouter(nil, metrics, func(context.Context) error { return nil }, pingModule{})
		w := serve(r, http.MethodGet, "/healthz")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	})

	t.Run("degraded dependency", func(t *testing.T) {
		r := NewRouter(nil, metrics, func(context.Context) error { return errors.New("redis down") })
		w := serve(r, http.MethodGet, "/healthz")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("metrics and modules are mounted", func(t *testing.T) {
		r := NewRouter(nil, metrics, nil, pingModule{})
		assert.Equal(t, "premiumblocker_up 1\n", serve(r, http.MethodGet, "/metrics").Body.String())
		assert.Equal(t, http.StatusNoContent, serve(r, http.MethodGet, "/ping").Code)
		assert.Equal(t, http.StatusMethodNotAllowed, serve(r, http.MethodPost, "/healthz").Code)
	})
}
