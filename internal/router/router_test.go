package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRouter_Get(t *testing.T) {
	r := New()

	called := false
	r.Get("/test", func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	if !called {
		t.Error("handler was not called")
	}
	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
}

func TestRouter_MethodMismatch(t *testing.T) {
	r := New()
	r.Post("/orders", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})

	req := httptest.NewRequest(http.MethodGet, "/orders", nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected status 405, got %d", w.Code)
	}
}

func TestRouter_PathValue(t *testing.T) {
	r := New()

	var got string
	r.Get("/orders/{id}", func(w http.ResponseWriter, r *http.Request) {
		got = r.PathValue("id")
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/orders/abc-123", nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	if got != "abc-123" {
		t.Errorf("expected path value abc-123, got %q", got)
	}
}

func TestRouter_MiddlewareOrder(t *testing.T) {
	var order []string

	middleware1 := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "before1")
			next.ServeHTTP(w, r)
			order = append(order, "after1")
		})
	}

	middleware2 := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "before2")
			next.ServeHTTP(w, r)
			order = append(order, "after2")
		})
	}

	r := New(middleware1)
	r.Get("/test", func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
		w.WriteHeader(http.StatusOK)
	}, middleware2)

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()

	r.ServeHTTP(w, req)

	want := []string{"before1", "before2", "handler", "after2", "after1"}
	if len(order) != len(want) {
		t.Fatalf("expected %d entries, got %d: %v", len(want), len(order), order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order[%d]: expected %q, got %q", i, want[i], order[i])
		}
	}
}

func TestRouter_GroupInheritsMiddleware(t *testing.T) {
	var order []string

	global := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "global")
			next.ServeHTTP(w, r)
		})
	}
	scoped := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			order = append(order, "scoped")
			next.ServeHTTP(w, r)
		})
	}

	r := New(global)
	g := r.Group(scoped)
	g.Get("/grouped", func(w http.ResponseWriter, r *http.Request) {
		order = append(order, "handler")
	})

	req := httptest.NewRequest(http.MethodGet, "/grouped", nil)
	r.ServeHTTP(httptest.NewRecorder(), req)

	want := []string{"global", "scoped", "handler"}
	for i := range want {
		if i >= len(order) || order[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, order)
		}
	}
}
