package cli

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hyperjump/veritas/internal/models"
)

func TestClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/search":
			var q models.SearchQuery
			if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			_ = json.NewEncoder(w).Encode(models.SearchResponse{Query: q.Query, Mode: models.ModeLexical, Total: q.K})
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/stats":
			_ = json.NewEncoder(w).Encode(models.Status{Stats: models.Stats{DocumentCount: 4}})
		default:
			http.Error(w, "nope", http.StatusTeapot)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL + "/")
	resp, err := c.Search(context.Background(), models.SearchQuery{Query: "hello", K: 7})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Query != "hello" || resp.Total != 7 || resp.Mode != models.ModeLexical {
		t.Errorf("Search = %+v", resp)
	}
	st, err := c.Status(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.DocumentCount != 4 {
		t.Errorf("Status = %+v", st)
	}
}

func TestClient_errorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "query cannot be empty", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewClient(srv.URL).Search(context.Background(), models.SearchQuery{})
	if err == nil || !strings.Contains(err.Error(), "400") || !strings.Contains(err.Error(), "query cannot be empty") {
		t.Errorf("err = %v", err)
	}
}
