package racenet

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestFetchPage(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = map[string]string{}
		for k := range r.URL.Query() {
			gotQuery[k] = r.URL.Query().Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"EventName": "Rally Finland",
			"TotalStages": 4,
			"Page": 2,
			"Pages": 3,
			"LeaderboardTotal": 25,
			"Entries": [
				{"Position": 11, "PlayerId": 7, "Name": "driver-a", "VehicleName": "Car A", "Time": "03:12.450", "DiffFirst": "+00:10.000", "TierID": 1}
			]
		}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}

	env, err := c.FetchPage(context.Background(), 146716, 1, 2, AssistsAny)
	if err != nil {
		t.Fatalf("fetch page: %v", err)
	}

	if gotQuery["eventId"] != "146716" || gotQuery["stageId"] != "1" || gotQuery["page"] != "2" {
		t.Errorf("unexpected query params: %v", gotQuery)
	}
	if gotQuery["assists"] != "any" {
		t.Errorf("assists param = %q, want any", gotQuery["assists"])
	}
	if gotQuery["noCache"] == "" {
		t.Errorf("missing noCache nonce")
	}

	if env.EventID != 146716 || env.Stage != 1 || env.Page != 2 {
		t.Errorf("envelope identity mismatch: %+v", env)
	}
	if env.Response.EventName != "Rally Finland" {
		t.Errorf("event name = %q", env.Response.EventName)
	}
	if env.Response.Pages != 3 || env.Response.LeaderboardTotal != 25 {
		t.Errorf("pagination mismatch: %+v", env.Response)
	}
	if len(env.Response.Entries) != 1 || env.Response.Entries[0].Name != "driver-a" {
		t.Errorf("entries mismatch: %+v", env.Response.Entries)
	}
}

func TestFetchPageEmptyEventName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"EventName": "", "Entries": []}`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := c.FetchPage(context.Background(), 1, 0, 1, AssistsAny); !errors.Is(err, ErrEmptyResponse) {
		t.Fatalf("expected ErrEmptyResponse, got %v", err)
	}
}

func TestFetchPageMalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>maintenance</html>`))
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := c.FetchPage(context.Background(), 1, 0, 1, AssistsAny); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestFetchPageBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	c, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	if _, err := c.FetchPage(context.Background(), 1, 0, 1, AssistsAny); err == nil {
		t.Fatal("expected status error")
	}
}
