// Package api is the client for the REST backend that owns posts, users and
// everything else Folio displays.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/debemdeboas/folio/internal/config"
	"github.com/rs/zerolog"
)

var apiLogger zerolog.Logger

func SetLogger(l zerolog.Logger) {
	apiLogger = l
}

// TokenSource supplies the bearer token for authenticated calls. Refresh is
// called once when the backend answers 401 and must return the new access token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Refresh(ctx context.Context) (string, error)
}

type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				Proxy:               http.ProxyFromEnvironment,
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// NewFromConfig builds a client for the configured backend.
func NewFromConfig() *Client {
	return New(config.AppConfig.Backend.BaseURL, config.AppConfig.Backend.Timeout)
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// WithTokens returns a copy of c that authenticates with ts.
func (c *Client) WithTokens(ts TokenSource) *Client {
	cp := *c
	cp.tokens = ts
	return &cp
}

// URL resolves an endpoint against the base URL. Endpoints without a query
// get the trailing slash the backend routes expect.
func (c *Client) URL(endpoint string) string {
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	if !strings.Contains(endpoint, "?") && !strings.HasSuffix(endpoint, "/") {
		endpoint += "/"
	}
	return c.baseURL + endpoint
}

type request struct {
	method string
	path   string
	query  url.Values
	// Buffered so the request can be replayed after a token refresh.
	body        []byte
	contentType string
	auth        bool
}

func (r *request) endpoint() string {
	if len(r.query) == 0 {
		return r.path
	}
	p := r.path
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p + "?" + r.query.Encode()
}

func (c *Client) send(ctx context.Context, r *request, token string) (*http.Response, error) {
	var body io.Reader
	if r.body != nil {
		body = bytes.NewReader(r.body)
	}
	req, err := http.NewRequestWithContext(ctx, r.method, c.URL(r.endpoint()), body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if r.contentType != "" {
		req.Header.Set(config.HCType, r.contentType)
	}
	req.Header.Set("Accept", config.CTypeJSON)
	if token != "" {
		req.Header.Set(config.HAuthorization, "Bearer "+token)
	}
	if id := requestID(ctx); id != "" {
		req.Header.Set(config.HRequestID, id)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", r.method, r.path, err)
	}
	return resp, nil
}

// do sends r and returns the response when its status is 2xx. Any other
// status is returned as an *Error. A 401 or 403 on an authenticated call
// triggers one token refresh and one replay.
func (c *Client) do(ctx context.Context, r *request) (*http.Response, error) {
	var token string
	if r.auth && c.tokens != nil {
		t, err := c.tokens.Token(ctx)
		if err != nil {
			return nil, err
		}
		token = t
	}

	resp, err := c.send(ctx, r, token)
	if err != nil {
		return nil, err
	}

	if authExpired(resp.StatusCode) && token != "" {
		drain(resp)
		apiLogger.Debug().Str("path", r.path).Msg("Access token rejected, refreshing")

		fresh, err := c.tokens.Refresh(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSessionExpired, err)
		}
		if resp, err = c.send(ctx, r, fresh); err != nil {
			return nil, err
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp, nil
}

// authExpired reports whether status rejects the access token.
func authExpired(status int) bool {
	return status == http.StatusUnauthorized || status == http.StatusForbidden
}

func (c *Client) doJSON(ctx context.Context, r *request, out any) error {
	resp, err := c.do(ctx, r)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if out == nil {
		drain(resp)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("failed to decode %s response: %w", r.path, err)
	}
	return nil
}

func (c *Client) get(ctx context.Context, path string, query url.Values, auth bool, out any) error {
	return c.doJSON(ctx, &request{method: http.MethodGet, path: path, query: query, auth: auth}, out)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, in any, auth bool, out any) error {
	r := &request{method: method, path: path, auth: auth}
	if in != nil {
		b, err := jsonBody(in)
		if err != nil {
			return err
		}
		r.body = b
		r.contentType = config.CTypeJSON
	}
	return c.doJSON(ctx, r, out)
}

func (c *Client) sendForm(ctx context.Context, method, path string, f *Form, out any) error {
	body, contentType, err := f.encode()
	if err != nil {
		return fmt.Errorf("failed to encode %s form: %w", path, err)
	}
	return c.doJSON(ctx, &request{method: method, path: path, body: body, contentType: contentType, auth: true}, out)
}

// File is an upload held in memory.
type File struct {
	Name        string
	ContentType string
	Data        []byte
}

// Form is a multipart body. Fields keep their insertion order.
type Form struct {
	fields [][2]string
	files  []formFile
}

type formFile struct {
	field string
	file  File
}

func (f *Form) Set(key, value string) *Form {
	f.fields = append(f.fields, [2]string{key, value})
	return f
}

func (f *Form) Attach(field string, file File) *Form {
	f.files = append(f.files, formFile{field: field, file: file})
	return f
}

func (f *Form) encode() ([]byte, string, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, kv := range f.fields {
		if err := mw.WriteField(kv[0], kv[1]); err != nil {
			return nil, "", err
		}
	}
	for _, ff := range f.files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, ff.field, ff.file.Name))
		ct := ff.file.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set(config.HCType, ct)
		part, err := mw.CreatePart(h)
		if err != nil {
			return nil, "", err
		}
		if _, err := part.Write(ff.file.Data); err != nil {
			return nil, "", err
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), mw.FormDataContentType(), nil
}

func jsonBody(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}
	return b, nil
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}

type requestIDKey struct{}

// WithRequestID tags outgoing backend calls made with ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
