package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"storefront-core/internal/model"
)

func TestProfile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/profile" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(model.UserRecord{ID: "u1", Name: "Ada"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client())
	profile, err := c.Profile(context.Background(), "tok")
	if err != nil {
		t.Fatalf("Profile: %v", err)
	}
	if profile.ID != "u1" || profile.Name != "Ada" {
		t.Fatalf("unexpected profile: %+v", profile)
	}
}

func TestProfile_UnauthorizedMapsToErrTokenRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client())
	if _, err := c.Profile(context.Background(), "bad"); !errors.Is(err, ErrTokenRejected) {
		t.Fatalf("expected ErrTokenRejected, got %v", err)
	}
}

func TestProfile_ServerErrorIsNotTokenRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client())
	_, err := c.Profile(context.Background(), "tok")
	if err == nil || errors.Is(err, ErrTokenRejected) {
		t.Fatalf("expected plain error, got %v", err)
	}
}

func TestProfile_ConnectionRefusedIsNotTokenRejection(t *testing.T) {
	c := NewClient("http://127.0.0.1:1", nil)
	_, err := c.Profile(context.Background(), "tok")
	if err == nil || errors.Is(err, ErrTokenRejected) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestRegisterPushToken(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/push-tokens" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, srv.Client())
	if err := c.RegisterPushToken(context.Background(), "tok", "fcm-1", "dev-1"); err != nil {
		t.Fatalf("RegisterPushToken: %v", err)
	}
	if got["token"] != "fcm-1" || got["deviceId"] != "dev-1" {
		t.Fatalf("unexpected body: %v", got)
	}
}
