package service

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestProfileService_GetProfile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/profiles/42" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"name":"A Lee","email":"a@example.com","phone":"+1 555 0100 00"}`)
	}))
	defer server.Close()

	svc := NewProfileService(server.URL)
	profile, err := svc.GetProfile(context.Background(), 42)
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if profile == nil {
		t.Fatal("profile 不应该是 nil")
	}
	if profile.Name != "A Lee" {
		t.Errorf("Name = %s, want A Lee", profile.Name)
	}
	if profile.Email != "a@example.com" {
		t.Errorf("Email = %s, want a@example.com", profile.Email)
	}
	if profile.Phone != "+1 555 0100 00" {
		t.Errorf("Phone = %s, want +1 555 0100 00", profile.Phone)
	}
}

func TestProfileService_NotFoundIsNotError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	svc := NewProfileService(server.URL)
	profile, err := svc.GetProfile(context.Background(), 1)
	if err != nil {
		t.Errorf("404 不应该是错误: %v", err)
	}
	if profile != nil {
		t.Errorf("profile = %v, want nil", profile)
	}
}

func TestProfileService_ServerErrorPropagates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	svc := NewProfileService(server.URL)
	if _, err := svc.GetProfile(context.Background(), 1); err == nil {
		t.Error("5xx 应该返回错误")
	}
}

func TestProfileService_EmptyBaseURL(t *testing.T) {
	svc := NewProfileService("")
	profile, err := svc.GetProfile(context.Background(), 1)
	if err != nil {
		t.Errorf("未配置资料服务不应该报错: %v", err)
	}
	if profile != nil {
		t.Errorf("profile = %v, want nil", profile)
	}
}
