// Package platform is a client for the chatbot platform's REST API.
package platform

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"

	"golang.org/x/oauth2"
)

const DefaultBaseURL = "https://api.chatdeck.dev"

// APIError is returned for any non-2xx response
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode), e.Body)
}

func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

func IsUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusUnauthorized
}

type Client struct {
	http    *http.Client
	baseURL *url.URL
	tokens  oauth2.TokenSource
}

type Option func(*Client)

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}
func WithBaseURL(raw string) Option {
	return func(c *Client) {
		if u, err := url.Parse(raw); err == nil {
			c.baseURL = u
		}
	}
}

// New creates a client that authenticates every request with a bearer
// token taken from tokens
func New(tokens oauth2.TokenSource, opts ...Option) (*Client, error) {
	if tokens == nil {
		return nil, errors.New("token source required")
	}
	u, _ := url.Parse(DefaultBaseURL)
	c := &Client{
		http:    &http.Client{Timeout: 20 * time.Second},
		baseURL: u,
		tokens:  tokens,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// NewWithToken is New with a fixed access token
func NewWithToken(accessToken string, opts ...Option) (*Client, error) {
	if accessToken == "" {
		return nil, errors.New("access token required")
	}
	return New(oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}), opts...)
}

func (c *Client) newReq(ctx context.Context, method, p string, q map[string]string) (*http.Request, error) {
	u := *c.baseURL
	u.Path = path.Join(u.Path, p)
	qq := u.Query()
	for k, v := range q {
		if v != "" {
			qq.Set(k, v)
		}
	}
	u.RawQuery = qq.Encode()

	req, err := http.NewRequestWithContext(ctx, method, u.String(), nil)
	if err != nil {
		return nil, err
	}

	tok, err := c.tokens.Token()
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}
	tok.SetAuthHeader(req)
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) doJSON(ctx context.Context, method, p string, q map[string]string, out any) error {
	req, err := c.newReq(ctx, method, p, q)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &APIError{Method: method, Path: p, StatusCode: resp.StatusCode, Body: string(b)}
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, p, err)
	}
	return nil
}

// Page selects a page of a collection; zero values use the server defaults
type Page struct {
	Page int
	Size int
}

func (pg Page) params() map[string]string {
	q := map[string]string{}
	if pg.Page > 0 {
		q["page"] = fmt.Sprint(pg.Page)
	}
	if pg.Size > 0 {
		q["size"] = fmt.Sprint(pg.Size)
	}
	return q
}

func list[T any](ctx context.Context, c *Client, p string, pg Page) (List[T], error) {
	var l List[T]
	err := c.doJSON(ctx, http.MethodGet, p, pg.params(), &l)
	return l, err
}

func (c *Client) ListFiles(ctx context.Context, pg Page) (List[File], error) {
	return list[File](ctx, c, "/v1/files", pg)
}

func (c *Client) ListDatasets(ctx context.Context, pg Page) (List[Dataset], error) {
	return list[Dataset](ctx, c, "/v1/datasets", pg)
}

func (c *Client) ListEmbeddings(ctx context.Context, pg Page) (List[Embedding], error) {
	return list[Embedding](ctx, c, "/v1/embeddings", pg)
}

func (c *Client) ListModels(ctx context.Context, pg Page) (List[Model], error) {
	return list[Model](ctx, c, "/v1/models", pg)
}

func (c *Client) ListChats(ctx context.Context, pg Page) (List[Chat], error) {
	return list[Chat](ctx, c, "/v1/chats", pg)
}

func (c *Client) ListKnowledgeStores(ctx context.Context, pg Page) (List[KnowledgeStore], error) {
	return list[KnowledgeStore](ctx, c, "/v1/knowledge-stores", pg)
}

func (c *Client) ListIntegrations(ctx context.Context, pg Page) (List[Integration], error) {
	return list[Integration](ctx, c, "/v1/integrations", pg)
}

func (c *Client) ListAPIKeys(ctx context.Context, pg Page) (List[APIKey], error) {
	return list[APIKey](ctx, c, "/v1/api-keys", pg)
}

func (c *Client) GetMCPConfig(ctx context.Context) (MCPConfig, error) {
	var cfg MCPConfig
	err := c.doJSON(ctx, http.MethodGet, "/v1/mcp/config", nil, &cfg)
	return cfg, err
}

func (c *Client) GetUsage(ctx context.Context) (Usage, error) {
	var u Usage
	err := c.doJSON(ctx, http.MethodGet, "/v1/usage", nil, &u)
	return u, err
}

func (c *Client) DeleteFile(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, path.Join("/v1/files", id), nil, nil)
}

func (c *Client) DeleteDataset(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, path.Join("/v1/datasets", id), nil, nil)
}

func (c *Client) RevokeAPIKey(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, path.Join("/v1/api-keys", id), nil, nil)
}
