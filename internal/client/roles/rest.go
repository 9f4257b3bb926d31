package roles

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/dmitrijs2005/sessionkeeper/internal/client/backend"
	"github.com/dmitrijs2005/sessionkeeper/internal/common"
)

// RESTSource reads the profiles table through the REST API. Its client
// should carry transport.RoundTripper so calls are authorized as the user.
type RESTSource struct {
	baseURL string
	client  *http.Client
}

func NewRESTSource(baseURL string, client *http.Client) *RESTSource {
	return &RESTSource{baseURL: strings.TrimRight(baseURL, "/") + "/rest/v1", client: client}
}

type profileRow struct {
	ID       string `json:"id"`
	Email    string `json:"email,omitempty"`
	FullName string `json:"full_name,omitempty"`
	Role     string `json:"role,omitempty"`
}

func (s *RESTSource) LookupRole(ctx context.Context, userID string) (string, error) {
	q := url.Values{"id": {"eq." + userID}, "select": {"id,role"}}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/profiles?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	var rows []profileRow
	if err := s.do(req, &rows); err != nil {
		return "", err
	}
	if len(rows) == 0 {
		return "", ErrNoProfile
	}
	if rows[0].Role == "" {
		return User, nil
	}
	return rows[0].Role, nil
}

func (s *RESTSource) EnsureProfile(ctx context.Context, u *backend.User, role string) (bool, error) {
	if _, err := s.LookupRole(ctx, u.ID); err == nil {
		return false, nil
	} else if !errors.Is(err, ErrNoProfile) {
		return false, err
	}

	body, err := json.Marshal(profileRow{ID: u.ID, Email: u.Email, FullName: u.MetadataString("full_name"), Role: role})
	if err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/profiles", bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Prefer", "resolution=ignore-duplicates,return=minimal")

	if err := s.do(req, nil); err != nil {
		return false, err
	}
	return true, nil
}

func (s *RESTSource) do(req *http.Request, out any) error {
	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: %w", common.ErrUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: profiles %d", common.ErrUnauthorized, resp.StatusCode)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: profiles %d", common.ErrUnavailable, resp.StatusCode)
	case resp.StatusCode >= 300:
		return fmt.Errorf("profiles request failed: %d %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(payload, out); err != nil {
		return fmt.Errorf("%w: %w", common.ErrMalformedResponse, err)
	}
	return nil
}
