package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"portal-api/domain"
)

// Reasons reported for dispatch outcomes that send nothing. The first three
// are soft no-ops; misconfiguration is an operator-visible failure.
const (
	ReasonNoAssignee    = "no assignee"
	ReasonNotEligible   = "assignee is not a super admin"
	ReasonNoChannel     = "assignee has no mobile number"
	ReasonMisconfigured = "sms gateway is not configured"
)

// Result reports a dispatch outcome. Success with a Reason is a deliberate
// no-op, not a failure.
type Result struct {
	Success  bool           `json:"success"`
	Reason   string         `json:"message,omitempty"`
	Response map[string]any `json:"response,omitempty"`
	Err      error          `json:"-"`
}

// SettingsLoader reads the administrative settings rows.
type SettingsLoader interface {
	LoadSettings(ctx context.Context) (map[string]string, error)
}

// Dispatcher forwards assignment notifications to the SMS gateway. It keeps
// no state between calls; dispatching the same request twice sends a
// duplicate message.
type Dispatcher struct {
	directory  domain.Directory
	settings   SettingsLoader
	client     *http.Client
	gatewayURL string
}

// NewDispatcher creates a dispatcher. A nil client falls back to
// http.DefaultClient.
func NewDispatcher(directory domain.Directory, settings SettingsLoader, client *http.Client, gatewayURL string) *Dispatcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &Dispatcher{directory: directory, settings: settings, client: client, gatewayURL: gatewayURL}
}

// Dispatch resolves the assignee's role and contact channel, composes the
// message and submits it. Preconditions that are not met short-circuit
// before any outbound call is made.
func (d *Dispatcher) Dispatch(ctx context.Context, n domain.AssignmentNotification) Result {
	if strings.TrimSpace(n.AssigneeID) == "" {
		return Result{Success: false, Reason: ReasonNoAssignee}
	}

	entry, err := d.directory.Lookup(ctx, n.AssigneeID)
	if err != nil {
		return Result{Success: false, Err: fmt.Errorf("directory lookup: %w", err)}
	}
	if !domain.HasCapability(entry, domain.CapabilitySuperAdmin) {
		return Result{Success: true, Reason: ReasonNotEligible}
	}
	if entry.Mobile == "" {
		return Result{Success: true, Reason: ReasonNoChannel}
	}

	settings, err := d.settings.LoadSettings(ctx)
	if err != nil {
		return Result{Success: false, Err: fmt.Errorf("load settings: %w", err)}
	}
	creds := domain.SMSCredentialsFromSettings(settings)
	if !creds.Complete() || d.gatewayURL == "" {
		return Result{Success: false, Reason: ReasonMisconfigured}
	}

	return d.send(ctx, creds, digitsOnly(entry.Mobile), domain.ComposeMessage(n))
}

func (d *Dispatcher) send(ctx context.Context, creds domain.SMSCredentials, to, message string) Result {
	form := url.Values{}
	form.Set("api_id", creds.APIID)
	form.Set("api_key", creds.APIKey)
	form.Set("username", creds.Username)
	form.Set("password", creds.Password)
	form.Set("sender", creds.Sender)
	form.Set("to", to)
	form.Set("message", message)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.gatewayURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Result{Success: false, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := d.client.Do(req)
	if err != nil {
		return Result{Success: false, Err: fmt.Errorf("sms gateway: %w", err)}
	}
	defer resp.Body.Close()

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Result{Success: false, Err: fmt.Errorf("decode gateway response: %w", err)}
	}

	status, _ := body["status"].(string)
	if !strings.EqualFold(status, "success") {
		return Result{Success: false, Reason: fmt.Sprintf("gateway returned status %q", status), Response: body}
	}
	return Result{Success: true, Response: body}
}

// digitsOnly strips everything that is not a digit from a phone number.
func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
