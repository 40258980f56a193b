package tasks

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestDueTodaySendsAuthAndQuery(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer sekrit" {
			t.Errorf("auth header = %q", got)
		}
		if got := r.URL.Query().Get("due"); got != "2026-08-31" {
			t.Errorf("due query = %q", got)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"tasks": []Task{{ID: "t1", Title: "water plants", Due: "2026-08-31"}},
		})
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, APIKey: "sekrit"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	day := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	got, err := c.DueToday(context.Background(), day)
	if err != nil {
		t.Fatalf("due today: %v", err)
	}
	if len(got) != 1 || got[0].ID != "t1" {
		t.Fatalf("tasks = %+v", got)
	}
}

func TestCreateRoundTrip(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/tasks" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var in struct {
			Title string `json:"title"`
			Due   string `json:"due"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Errorf("decode body: %v", err)
		}
		_ = json.NewEncoder(w).Encode(Task{ID: "t9", Title: in.Title, Due: in.Due})
	}))
	defer srv.Close()

	c, _ := New(Config{BaseURL: srv.URL})
	got, err := c.Create(context.Background(), "buy milk", "2026-09-01")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got.ID != "t9" || got.Title != "buy milk" {
		t.Fatalf("task = %+v", got)
	}
}

func TestErrorBodySurfaces(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "bad token"})
	}))
	defer srv.Close()

	c, _ := New(Config{BaseURL: srv.URL})
	err := c.Complete(context.Background(), "t1")
	if err == nil {
		t.Fatal("want error on 403")
	}
	if want := "tasks service: bad token (http 403)"; err.Error() != want {
		t.Fatalf("err = %q, want %q", err.Error(), want)
	}
}
