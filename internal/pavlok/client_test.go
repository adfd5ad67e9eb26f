package pavlok

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/onicoach/oni/internal/escalate"
)

func TestDeliverSendsPayload(t *testing.T) {
	var gotPath, gotAuth string
	var gotPayload stimulusPayload

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("decoding payload: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewWithBaseURL("test-key", srv.URL)
	if err := c.Deliver(context.Background(), escalate.KindZap, 45); err != nil {
		t.Fatalf("Deliver: %v", err)
	}

	if gotPath != "/stimulus/send" {
		t.Errorf("path = %q, want /stimulus/send", gotPath)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("auth = %q, want bearer key", gotAuth)
	}
	if gotPayload.Stimulus.StimulusType != "zap" || gotPayload.Stimulus.StimulusValue != 45 {
		t.Errorf("payload = %+v, want zap/45", gotPayload.Stimulus)
	}
}

func TestDeliverRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewWithBaseURL("test-key", srv.URL)
	err := c.Deliver(context.Background(), escalate.KindZap, 45)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
}

func TestDeliverServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewWithBaseURL("test-key", srv.URL)
	err := c.Deliver(context.Background(), escalate.KindVibe, 100)
	if err == nil {
		t.Fatal("expected an error on HTTP 500")
	}
	if errors.Is(err, ErrRateLimited) {
		t.Fatal("a 500 must not look like rate limiting")
	}
}

func TestDeliverValidatesLocally(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
	}))
	defer srv.Close()

	c := NewWithBaseURL("test-key", srv.URL)
	if err := c.Deliver(context.Background(), escalate.Kind("shock"), 50); err == nil {
		t.Error("invalid kind accepted")
	}
	if err := c.Deliver(context.Background(), escalate.KindZap, 101); err == nil {
		t.Error("out-of-range value accepted")
	}
	if err := c.Deliver(context.Background(), escalate.KindZap, -1); err == nil {
		t.Error("negative value accepted")
	}
	if calls != 0 {
		t.Errorf("%d requests reached the server, want 0", calls)
	}
}

func TestStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/me" {
			t.Errorf("path = %q, want /me", r.URL.Path)
		}
		json.NewEncoder(w).Encode(DeviceStatus{Battery: 73, IsCharging: true})
	}))
	defer srv.Close()

	c := NewWithBaseURL("test-key", srv.URL)
	st, err := c.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if st.Battery != 73 || !st.IsCharging {
		t.Errorf("status = %+v, want 73/charging", st)
	}
}
