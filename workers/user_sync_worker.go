package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"coin-rewards-ledger/services"
	"coin-rewards-ledger/store"

	"github.com/sirupsen/logrus"
)

// cursorPath holds the updated_at of the newest profile already applied.
const cursorPath = "syncState/identity"

// RemoteProfile is one entry of the identity provider's profile feed.
type RemoteProfile struct {
	ID            string    `json:"id"`
	ExternalID    string    `json:"external_id"`
	Email         string    `json:"email"`
	AccountStatus string    `json:"account_status"`
	ReferredByID  *string   `json:"referred_by_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

type profileChangesResponse struct {
	Users []RemoteProfile `json:"users"`
}

type syncCursor struct {
	Since time.Time `json:"since"`
}

// SyncReport summarises one pass of the worker.
type SyncReport struct {
	Received int
	Created  int
	Skipped  int
	Failed   int
}

// IdentitySyncWorker creates ledger accounts for users that signed up with the
// identity provider but never called the signup route.
type IdentitySyncWorker struct {
	Store        store.Store
	Accounts     *services.AccountService
	Log          *logrus.Entry
	Interval     time.Duration
	BaseURL      string // e.g. "http://localhost:8500"
	EndpointPath string // e.g. "/api/v1/public/profiles"
	ServiceToken string
	HTTPClient   *http.Client
}

func NewIdentitySyncWorker(st store.Store, accounts *services.AccountService, baseURL, endpointPath, serviceToken string, log *logrus.Entry) *IdentitySyncWorker {
	return &IdentitySyncWorker{
		Store:        st,
		Accounts:     accounts,
		Log:          log.WithField("component", "identity_sync"),
		Interval:     time.Minute,
		BaseURL:      baseURL,
		EndpointPath: endpointPath,
		ServiceToken: serviceToken,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Start runs a pass immediately and then every Interval until ctx is done.
func (w *IdentitySyncWorker) Start(ctx context.Context) {
	w.Log.WithField("interval", w.Interval.String()).Info("identity sync worker started")

	if _, err := w.SyncOnce(ctx); err != nil {
		w.Log.WithError(err).Warn("initial identity sync failed")
	}

	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := w.SyncOnce(ctx); err != nil {
				w.Log.WithError(err).Error("identity sync failed")
			}
		case <-ctx.Done():
			w.Log.Info("identity sync worker stopped")
			return
		}
	}
}

// SyncOnce fetches profiles changed since the stored cursor and creates the
// missing accounts. The cursor only moves when every profile was applied, so a
// failed profile is retried on the next pass.
func (w *IdentitySyncWorker) SyncOnce(ctx context.Context) (SyncReport, error) {
	var report SyncReport

	var cursor syncCursor
	if _, err := w.Store.Get(ctx, cursorPath, &cursor); err != nil {
		return report, fmt.Errorf("load sync cursor: %w", err)
	}

	profiles, err := w.fetch(ctx, cursor.Since)
	if err != nil {
		return report, err
	}
	report.Received = len(profiles)
	if len(profiles) == 0 {
		return report, nil
	}

	latest := cursor.Since
	for _, p := range profiles {
		uid := strings.TrimSpace(p.ExternalID)
		if uid == "" {
			uid = p.ID
		}
		referralCode := ""
		if p.ReferredByID != nil {
			referralCode = strings.TrimSpace(*p.ReferredByID)
		}

		_, created, err := w.Accounts.CreateAccount(ctx, services.Identity{UID: uid, Email: p.Email}, referralCode)
		if services.IsValidation(err) {
			// a malformed profile never becomes valid by retrying
			report.Skipped++
			w.Log.WithError(err).WithField("uid", uid).Warn("profile skipped")
			if p.UpdatedAt.After(latest) {
				latest = p.UpdatedAt
			}
			continue
		}
		if err != nil {
			report.Failed++
			w.Log.WithError(err).WithField("uid", uid).Warn("failed to create account from profile")
			continue
		}
		if created {
			report.Created++
		}
		if p.UpdatedAt.After(latest) {
			latest = p.UpdatedAt
		}
	}

	if report.Failed == 0 && latest.After(cursor.Since) {
		if err := w.Store.Set(ctx, cursorPath, syncCursor{Since: latest.UTC()}); err != nil {
			return report, fmt.Errorf("save sync cursor: %w", err)
		}
	}

	w.Log.WithFields(logrus.Fields{
		"received": report.Received,
		"created":  report.Created,
		"skipped":  report.Skipped,
		"failed":   report.Failed,
		"since":    latest.UTC().Format(time.RFC3339),
	}).Info("identity sync pass finished")
	return report, nil
}

func (w *IdentitySyncWorker) fetch(ctx context.Context, since time.Time) ([]RemoteProfile, error) {
	base, err := url.Parse(w.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid identity sync URL '%s': %w", w.BaseURL, err)
	}
	endpoint := base.JoinPath(w.EndpointPath)
	q := endpoint.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	endpoint.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request to %s: %w", endpoint, err)
	}
	req.Header.Set("X-Service-Token", w.ServiceToken)

	resp, err := w.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("identity sync request failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("identity sync returned %d: %s", resp.StatusCode, string(body))
	}

	var out profileChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("failed to decode identity sync response: %w", err)
	}
	return out.Users, nil
}
