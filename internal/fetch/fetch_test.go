package fetch_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"tt-creator/internal/fetch"
	"tt-creator/internal/model"
)

func TestCheckSession_ValidSendsCookiesAndUA(t *testing.T) {
	var gotUA, gotSession string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		if c, err := r.Cookie("sessionid"); err == nil {
			gotSession = c.Value
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"message":"success"}`))
	}))
	defer srv.Close()

	cl, err := fetch.New(fetch.Options{Timeout: 2 * time.Second, UserAgent: "test-agent/1.0"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	res, err := cl.CheckSession(context.Background(), srv.URL, []model.Cookie{{Name: "sessionid", Value: "abc"}}, "login")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res.State != fetch.SessionValid || res.HTTPStatus != http.StatusOK {
		t.Fatalf("result = %+v, want valid/200", res)
	}
	if gotUA != "test-agent/1.0" {
		t.Fatalf("user-agent = %q, want %q", gotUA, "test-agent/1.0")
	}
	if gotSession != "abc" {
		t.Fatalf("sessionid cookie = %q, want abc", gotSession)
	}
}

func TestCheckSession_RedirectToLoginIsExpired(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/auth/page/login?redirect=api", http.StatusFound)
	})
	mux.HandleFunc("/auth/page/login", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>login</html>"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	cl, _ := fetch.New(fetch.Options{Timeout: 2 * time.Second})
	res, err := cl.CheckSession(context.Background(), srv.URL+"/api", nil, "login")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res.State != fetch.SessionExpired {
		t.Fatalf("state = %s, want expired (final=%s)", res.State, res.FinalURL)
	}
}

func TestCheckSession_UnauthorizedIsExpiredWithoutRetry(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	cl, _ := fetch.New(fetch.Options{Retry: 2, Timeout: 2 * time.Second})
	res, err := cl.CheckSession(context.Background(), srv.URL, nil, "login")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res.State != fetch.SessionExpired {
		t.Fatalf("state = %s, want expired", res.State)
	}
	if n := atomic.LoadInt32(&calls); n != 1 {
		t.Fatalf("calls = %d, want 1", n)
	}
}

func TestCheckSession_RetryOnServerError(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		if n == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cl, _ := fetch.New(fetch.Options{Retry: 1, Timeout: 2 * time.Second})
	res, err := cl.CheckSession(context.Background(), srv.URL, nil, "login")
	if err != nil {
		t.Fatalf("check: %v", err)
	}
	if res.State != fetch.SessionValid {
		t.Fatalf("state = %s, want valid", res.State)
	}
	if n := atomic.LoadInt32(&calls); n != 2 {
		t.Fatalf("calls = %d, want 2", n)
	}
}

func TestCheckSession_UnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	cl, _ := fetch.New(fetch.Options{Timeout: 2 * time.Second})
	_, err := cl.CheckSession(context.Background(), srv.URL, nil, "login")
	if !fetch.IsStatus(err, http.StatusTeapot) {
		t.Fatalf("err = %v, want status 418", err)
	}
}

func TestCheckSession_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cl, _ := fetch.New(fetch.Options{Timeout: 100 * time.Millisecond})
	if _, err := cl.CheckSession(context.Background(), srv.URL, nil, "login"); err == nil {
		t.Fatal("expected timeout error, got nil")
	}
}

func TestNew_BadProxy(t *testing.T) {
	if _, err := fetch.New(fetch.Options{ProxyHTTP: "://bad"}); err == nil {
		t.Fatal("expected proxy parse error")
	}
}
