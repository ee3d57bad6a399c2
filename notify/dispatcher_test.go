package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"portal-api/domain"
)

type fakeDirectory struct {
	entries map[string]*domain.DirectoryEntry
	err     error
}

func (f *fakeDirectory) Lookup(ctx context.Context, userID string) (*domain.DirectoryEntry, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.entries[userID], nil
}

type fakeSettings struct {
	settings map[string]string
	err      error
}

func (f *fakeSettings) LoadSettings(ctx context.Context) (map[string]string, error) {
	return f.settings, f.err
}

func completeSettings() map[string]string {
	return map[string]string{
		domain.SettingSMSAPIID:    "id-1",
		domain.SettingSMSAPIKey:   "key-1",
		domain.SettingSMSUsername: "portal",
		domain.SettingSMSPassword: "secret",
		domain.SettingSMSSender:   "Portal",
	}
}

func superAdmin(id, mobile string) *domain.DirectoryEntry {
	return &domain.DirectoryEntry{ID: id, Role: domain.CapabilitySuperAdmin, Mobile: mobile}
}

type gatewayRecorder struct {
	calls int
	form  map[string]string
}

func newGateway(t *testing.T, rec *gatewayRecorder, status string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec.calls++
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		rec.form = map[string]string{}
		for k := range r.PostForm {
			rec.form[k] = r.PostForm.Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"` + status + `","id":"msg-1"}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDispatchSendsFormEncoded(t *testing.T) {
	rec := &gatewayRecorder{}
	srv := newGateway(t, rec, "success")

	d := NewDispatcher(
		&fakeDirectory{entries: map[string]*domain.DirectoryEntry{"u1": superAdmin("u1", "+27 (82) 555-0100")}},
		&fakeSettings{settings: completeSettings()},
		srv.Client(), srv.URL,
	)

	res := d.Dispatch(context.Background(), domain.AssignmentNotification{
		Kind:       domain.KindTask,
		AssigneeID: "u1",
		Title:      "Fix outage",
		Priority:   "urgent",
	})
	if !res.Success {
		t.Fatalf("expected success: %+v", res)
	}
	if rec.calls != 1 {
		t.Fatalf("expected exactly one gateway call, got %d", rec.calls)
	}
	if rec.form["to"] != "27825550100" {
		t.Fatalf("expected normalized number, got %q", rec.form["to"])
	}
	if rec.form["message"] != "Task assigned to you (URGENT): Fix outage" {
		t.Fatalf("unexpected message: %q", rec.form["message"])
	}
	if rec.form["api_id"] != "id-1" || rec.form["sender"] != "Portal" {
		t.Fatalf("unexpected credentials in form: %#v", rec.form)
	}
	if res.Response["id"] != "msg-1" {
		t.Fatalf("expected gateway response surfaced: %#v", res.Response)
	}
}

func TestDispatchNoAssignee(t *testing.T) {
	rec := &gatewayRecorder{}
	srv := newGateway(t, rec, "success")
	d := NewDispatcher(&fakeDirectory{}, &fakeSettings{settings: completeSettings()}, srv.Client(), srv.URL)

	res := d.Dispatch(context.Background(), domain.AssignmentNotification{Kind: domain.KindTask, Title: "x"})
	if res.Success || res.Reason != ReasonNoAssignee {
		t.Fatalf("expected no-assignee failure, got %+v", res)
	}
	if rec.calls != 0 {
		t.Fatalf("no outbound call expected, got %d", rec.calls)
	}
}

func TestDispatchNotSuperAdminIsSoftNoop(t *testing.T) {
	rec := &gatewayRecorder{}
	srv := newGateway(t, rec, "success")
	d := NewDispatcher(
		&fakeDirectory{entries: map[string]*domain.DirectoryEntry{"u1": {ID: "u1", Role: "member", Mobile: "0825550100"}}},
		&fakeSettings{settings: completeSettings()},
		srv.Client(), srv.URL,
	)

	res := d.Dispatch(context.Background(), domain.AssignmentNotification{Kind: domain.KindTask, AssigneeID: "u1", Title: "x"})
	if !res.Success || res.Reason != ReasonNotEligible {
		t.Fatalf("expected soft no-op, got %+v", res)
	}
	if rec.calls != 0 {
		t.Fatalf("no outbound call expected, got %d", rec.calls)
	}
}

func TestDispatchUnknownUserIsSoftNoop(t *testing.T) {
	rec := &gatewayRecorder{}
	srv := newGateway(t, rec, "success")
	d := NewDispatcher(&fakeDirectory{}, &fakeSettings{settings: completeSettings()}, srv.Client(), srv.URL)

	res := d.Dispatch(context.Background(), domain.AssignmentNotification{Kind: domain.KindTask, AssigneeID: "ghost", Title: "x"})
	if !res.Success || res.Reason != ReasonNotEligible {
		t.Fatalf("expected soft no-op for unknown user, got %+v", res)
	}
	if rec.calls != 0 {
		t.Fatalf("no outbound call expected, got %d", rec.calls)
	}
}

func TestDispatchNoMobileIsSoftNoop(t *testing.T) {
	rec := &gatewayRecorder{}
	srv := newGateway(t, rec, "success")
	d := NewDispatcher(
		&fakeDirectory{entries: map[string]*domain.DirectoryEntry{"u1": superAdmin("u1", "")}},
		&fakeSettings{settings: completeSettings()},
		srv.Client(), srv.URL,
	)

	res := d.Dispatch(context.Background(), domain.AssignmentNotification{Kind: domain.KindTask, AssigneeID: "u1", Title: "x"})
	if !res.Success || res.Reason != ReasonNoChannel {
		t.Fatalf("expected no-channel no-op, got %+v", res)
	}
	if rec.calls != 0 {
		t.Fatalf("no outbound call expected, got %d", rec.calls)
	}
}

func TestDispatchMisconfigured(t *testing.T) {
	rec := &gatewayRecorder{}
	srv := newGateway(t, rec, "success")
	partial := completeSettings()
	delete(partial, domain.SettingSMSPassword)

	d := NewDispatcher(
		&fakeDirectory{entries: map[string]*domain.DirectoryEntry{"u1": superAdmin("u1", "0825550100")}},
		&fakeSettings{settings: partial},
		srv.Client(), srv.URL,
	)

	res := d.Dispatch(context.Background(), domain.AssignmentNotification{Kind: domain.KindTask, AssigneeID: "u1", Title: "x"})
	if res.Success || res.Reason != ReasonMisconfigured {
		t.Fatalf("expected misconfigured failure, got %+v", res)
	}
	if rec.calls != 0 {
		t.Fatalf("no outbound call expected, got %d", rec.calls)
	}
}

func TestDispatchGatewayRejection(t *testing.T) {
	rec := &gatewayRecorder{}
	srv := newGateway(t, rec, "error")
	d := NewDispatcher(
		&fakeDirectory{entries: map[string]*domain.DirectoryEntry{"u1": superAdmin("u1", "0825550100")}},
		&fakeSettings{settings: completeSettings()},
		srv.Client(), srv.URL,
	)

	res := d.Dispatch(context.Background(), domain.AssignmentNotification{Kind: domain.KindTicket, AssigneeID: "u1", Title: "x", Identifier: "T-1"})
	if res.Success {
		t.Fatalf("expected gateway rejection, got %+v", res)
	}
	if !strings.Contains(res.Reason, "error") {
		t.Fatalf("expected gateway status in reason, got %q", res.Reason)
	}
	if res.Response == nil {
		t.Fatal("expected gateway response body surfaced")
	}
}

func TestDispatchTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	d := NewDispatcher(
		&fakeDirectory{entries: map[string]*domain.DirectoryEntry{"u1": superAdmin("u1", "0825550100")}},
		&fakeSettings{settings: completeSettings()},
		nil, url,
	)

	res := d.Dispatch(context.Background(), domain.AssignmentNotification{Kind: domain.KindTask, AssigneeID: "u1", Title: "x"})
	if res.Success || res.Err == nil {
		t.Fatalf("expected transport failure, got %+v", res)
	}
}

func TestDispatchDirectoryError(t *testing.T) {
	d := NewDispatcher(&fakeDirectory{err: errors.New("table down")}, &fakeSettings{}, nil, "http://gateway.invalid")
	res := d.Dispatch(context.Background(), domain.AssignmentNotification{Kind: domain.KindTask, AssigneeID: "u1", Title: "x"})
	if res.Success || res.Err == nil {
		t.Fatalf("expected lookup failure, got %+v", res)
	}
}

func TestDigitsOnly(t *testing.T) {
	cases := map[string]string{
		"+27 (82) 555-0100": "27825550100",
		"082 555 0100":      "0825550100",
		"":                  "",
		"abc":               "",
	}
	for in, want := range cases {
		if got := digitsOnly(in); got != want {
			t.Fatalf("%q: expected %q, got %q", in, want, got)
		}
	}
}
