package bluesky

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/blackmichael/bluesky-analyzer/internal/domain"
)

const defaultPDS = "https://bsky.social"

// MaxPageSize is the largest limit accepted by com.atproto.repo.listRecords.
const MaxPageSize = 100

// Client is a minimal BlueSky/AT Protocol API client for reading an account's
// records.
type Client struct {
	pds        string
	httpClient *http.Client
}

// NewClient creates a new BlueSky API client. If pds is empty, it defaults to
// https://bsky.social.
func NewClient(pds string) *Client {
	if pds == "" {
		pds = defaultPDS
	}
	return &Client{
		pds: pds,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError is a non-2xx response from the PDS.
type APIError struct {
	StatusCode int
	Name       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Name != "" {
		return fmt.Sprintf("API error (status %d): %s: %s", e.StatusCode, e.Name, e.Message)
	}
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Body)
}

// CreateSession authenticates with the PDS. Use an App Password, not your
// account password. Any failure wraps ErrAuthentication.
func (c *Client) CreateSession(ctx context.Context, identifier, password string) (Session, error) {
	body := map[string]string{
		"identifier": identifier,
		"password":   password,
	}

	var resp createSessionResponse
	if err := c.post(ctx, "/xrpc/com.atproto.server.createSession", Session{}, body, &resp); err != nil {
		return Session{}, fmt.Errorf("%w: create session: %w", ErrAuthentication, err)
	}

	s := Session{
		AccessJwt:  resp.AccessJwt,
		RefreshJwt: resp.RefreshJwt,
		DID:        resp.DID,
		Handle:     resp.Handle,
	}
	if !s.Valid() {
		return Session{}, fmt.Errorf("%w: create session: response missing token or did", ErrAuthentication)
	}
	return s, nil
}

// ListRecordsParams are the query parameters of com.atproto.repo.listRecords.
type ListRecordsParams struct {
	Repo       string
	Collection string
	Limit      int
	Cursor     string
}

// ListRecordsResponse is one page of records.
type ListRecordsResponse struct {
	Records []domain.RawPost `json:"records"`
	Cursor  string           `json:"cursor,omitempty"`
}

// ListRecords fetches a single page of records from a repo collection.
func (c *Client) ListRecords(ctx context.Context, s Session, params ListRecordsParams) (*ListRecordsResponse, error) {
	if !s.Valid() {
		return nil, ErrUnauthenticated
	}

	q := url.Values{}
	q.Set("repo", params.Repo)
	q.Set("collection", params.Collection)
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Cursor != "" {
		q.Set("cursor", params.Cursor)
	}

	var resp ListRecordsResponse
	if err := c.get(ctx, "/xrpc/com.atproto.repo.listRecords", s, q, &resp); err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	return &resp, nil
}

// RepoDescription is the subset of com.atproto.repo.describeRepo used to
// verify API access.
type RepoDescription struct {
	Handle          string   `json:"handle"`
	DID             string   `json:"did"`
	Collections     []string `json:"collections"`
	HandleIsCorrect bool     `json:"handleIsCorrect"`
}

// DescribeRepo returns metadata about the session's own repo.
func (c *Client) DescribeRepo(ctx context.Context, s Session) (*RepoDescription, error) {
	if !s.Valid() {
		return nil, ErrUnauthenticated
	}

	q := url.Values{}
	q.Set("repo", s.DID)

	var resp RepoDescription
	if err := c.get(ctx, "/xrpc/com.atproto.repo.describeRepo", s, q, &resp); err != nil {
		return nil, fmt.Errorf("describe repo: %w", err)
	}
	return &resp, nil
}

func (c *Client) post(ctx context.Context, path string, s Session, body any, result any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.pds+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.AccessJwt != "" {
		req.Header.Set("Authorization", s.AuthorizationHeader())
	}

	return c.do(req, result)
}

func (c *Client) get(ctx context.Context, path string, s Session, query url.Values, result any) error {
	u := c.pds + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.AccessJwt != "" {
		req.Header.Set("Authorization", s.AuthorizationHeader())
	}

	return c.do(req, result)
}

func (c *Client) do(req *http.Request, result any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
		var xrpcErr struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		}
		if json.Unmarshal(respBody, &xrpcErr) == nil {
			apiErr.Name = xrpcErr.Error
			apiErr.Message = xrpcErr.Message
		}
		return apiErr
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
	}

	return nil
}

// IsUnauthorized reports whether err is a 401 from the PDS.
func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

type createSessionResponse struct {
	AccessJwt  string `json:"accessJwt"`
	RefreshJwt string `json:"refreshJwt"`
	DID        string `json:"did"`
	Handle     string `json:"handle"`
}
