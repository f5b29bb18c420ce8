package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

const defaultRetryAfter = 60 * time.Second

// Authorizer attaches credentials to an outgoing request.
type Authorizer func(req *http.Request, accessToken string)

// BearerAuthorizer sets "Authorization: Bearer <token>".
func BearerAuthorizer(req *http.Request, accessToken string) {
	if accessToken == "" {
		return
	}
	token := &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}
	token.SetAuthHeader(req)
}

// ErrorDecoder extracts a human readable message from an error body.
type ErrorDecoder func(body []byte) string

type Config struct {
	Platform     string
	BaseURL      string
	HTTPClient   *http.Client
	Limiter      *Limiter
	MaxWait      time.Duration
	Authorizer   Authorizer
	ErrorDecoder ErrorDecoder
}

// Client executes requests against one platform API. Every attempted send
// passes through the platform's Limiter first.
type Client struct {
	platform   string
	baseURL    string
	httpClient *http.Client
	limiter    *Limiter
	maxWait    time.Duration
	authorize  Authorizer
	decodeErr  ErrorDecoder

	sleep func(ctx context.Context, d time.Duration) error
}

func New(cfg Config) *Client {
	c := &Client{
		platform:   cfg.Platform,
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: cfg.HTTPClient,
		limiter:    cfg.Limiter,
		maxWait:    cfg.MaxWait,
		authorize:  cfg.Authorizer,
		decodeErr:  cfg.ErrorDecoder,
		sleep:      sleepContext,
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if c.authorize == nil {
		c.authorize = BearerAuthorizer
	}
	if c.decodeErr == nil {
		c.decodeErr = DefaultErrorMessage
	}
	return c
}

func (c *Client) Platform() string { return c.platform }

func (c *Client) BaseURL() string { return c.baseURL }

type Request struct {
	Method      string
	Endpoint    string
	Params      url.Values
	Body        any
	RawBody     []byte
	ContentType string
	Headers     map[string]string
	AccessToken string
}

type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the JSON body into out. An empty body leaves out as is.
func (r *Response) Decode(out any) error {
	if out == nil || len(bytes.TrimSpace(r.Body)) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, out)
}

// Do sends the request. A 429 answer is waited out and re-sent, up to the
// client's wait budget; other 4xx/5xx become *HTTPError and transport
// failures become *APIError.
func (c *Client) Do(ctx context.Context, r Request) (*Response, error) {
	target, err := c.resolve(r.Endpoint, r.Params)
	if err != nil {
		return nil, &APIError{Platform: c.platform, Endpoint: r.Endpoint, Err: err}
	}

	payload, contentType, err := encodeBody(r)
	if err != nil {
		return nil, &APIError{Platform: c.platform, Endpoint: r.Endpoint, Err: fmt.Errorf("encoding request body: %w", err)}
	}

	var waited time.Duration
	for {
		if _, err := c.limiter.Wait(ctx); err != nil {
			return nil, &APIError{Platform: c.platform, Endpoint: r.Endpoint, Err: err}
		}

		resp, err := c.send(ctx, r, target, payload, contentType)
		if err != nil {
			return nil, err
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			delay := parseRetryAfter(resp.Header.Get("Retry-After"))
			if c.maxWait > 0 && waited+delay > c.maxWait {
				return nil, &RateLimitError{Platform: c.platform, Endpoint: r.Endpoint, RetryAfter: delay, Waited: waited}
			}
			slog.Warn("platform rate limited request, waiting",
				"platform", c.platform, "endpoint", r.Endpoint, "retry_after", delay.String())
			if err := c.sleep(ctx, delay); err != nil {
				return nil, &APIError{Platform: c.platform, Endpoint: r.Endpoint, Err: err}
			}
			waited += delay
			continue
		}

		if resp.StatusCode >= 400 {
			return nil, &HTTPError{
				StatusCode: resp.StatusCode,
				Message:    c.errorMessage(resp),
				Platform:   c.platform,
				Endpoint:   r.Endpoint,
				Body:       resp.Body,
			}
		}
		return resp, nil
	}
}

// DoJSON is Do followed by decoding the body into out.
func (c *Client) DoJSON(ctx context.Context, r Request, out any) error {
	resp, err := c.Do(ctx, r)
	if err != nil {
		return err
	}
	if err := resp.Decode(out); err != nil {
		return &APIError{Platform: c.platform, Endpoint: r.Endpoint, Err: fmt.Errorf("decoding response: %w", err)}
	}
	return nil
}

func (c *Client) Get(ctx context.Context, endpoint string, params url.Values, accessToken string, out any) error {
	return c.DoJSON(ctx, Request{Method: http.MethodGet, Endpoint: endpoint, Params: params, AccessToken: accessToken}, out)
}

func (c *Client) Post(ctx context.Context, endpoint string, body any, accessToken string, out any) error {
	return c.DoJSON(ctx, Request{Method: http.MethodPost, Endpoint: endpoint, Body: body, AccessToken: accessToken}, out)
}

func (c *Client) Put(ctx context.Context, endpoint string, body any, accessToken string, out any) error {
	return c.DoJSON(ctx, Request{Method: http.MethodPut, Endpoint: endpoint, Body: body, AccessToken: accessToken}, out)
}

func (c *Client) Delete(ctx context.Context, endpoint string, params url.Values, accessToken string, out any) error {
	return c.DoJSON(ctx, Request{Method: http.MethodDelete, Endpoint: endpoint, Params: params, AccessToken: accessToken}, out)
}

// Fetch downloads a public media URL. It does not count against the
// platform's quota since it never talks to the platform.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, "", &APIError{Platform: c.platform, Endpoint: rawURL, Err: err}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", &APIError{Platform: c.platform, Endpoint: rawURL, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", &APIError{Platform: c.platform, Endpoint: rawURL, Err: err}
	}
	if resp.StatusCode >= 400 {
		return nil, "", &HTTPError{StatusCode: resp.StatusCode, Message: "media download failed", Platform: c.platform, Endpoint: rawURL}
	}
	return body, resp.Header.Get("Content-Type"), nil
}

func (c *Client) send(ctx context.Context, r Request, target string, payload []byte, contentType string) (*Response, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, target, body)
	if err != nil {
		return nil, &APIError{Platform: c.platform, Endpoint: r.Endpoint, Err: err}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	c.authorize(req, r.AccessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &APIError{Platform: c.platform, Endpoint: r.Endpoint, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &APIError{Platform: c.platform, Endpoint: r.Endpoint, Err: fmt.Errorf("reading response body: %w", err)}
	}
	return &Response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func (c *Client) resolve(endpoint string, params url.Values) (string, error) {
	target := endpoint
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		target = c.baseURL + "/" + strings.TrimLeft(endpoint, "/")
	}
	u, err := url.Parse(target)
	if err != nil {
		return "", err
	}
	if len(params) > 0 {
		q := u.Query()
		for k, vs := range params {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

func (c *Client) errorMessage(resp *Response) string {
	if msg := c.decodeErr(resp.Body); msg != "" {
		return msg
	}
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return "unexpected status"
}

func encodeBody(r Request) ([]byte, string, error) {
	if r.RawBody != nil {
		ct := r.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		return r.RawBody, ct, nil
	}
	if r.Body == nil {
		return nil, "", nil
	}
	if form, ok := r.Body.(url.Values); ok {
		return []byte(form.Encode()), "application/x-www-form-urlencoded", nil
	}
	data, err := json.Marshal(r.Body)
	if err != nil {
		return nil, "", err
	}
	return data, "application/json", nil
}

// parseRetryAfter accepts delta-seconds or an HTTP date.
func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return defaultRetryAfter
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
		return 0
	}
	return defaultRetryAfter
}
