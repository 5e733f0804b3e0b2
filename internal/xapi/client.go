// Package xapi posts to the X (formerly Twitter) API v2.
package xapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dghubble/oauth1"
)

const defaultBaseURL = "https://api.twitter.com"

// AuthMode selects how requests are signed.
type AuthMode string

const (
	AuthBearer AuthMode = "bearer"
	AuthOAuth1 AuthMode = "oauth1"
)

// ErrMissingCredentials is returned when the selected auth mode lacks keys.
var ErrMissingCredentials = errors.New("missing X API credentials")

// Config holds X API credentials.
type Config struct {
	AuthMode          AuthMode
	BearerToken       string
	APIKey            string
	APISecret         string
	AccessToken       string
	AccessTokenSecret string
	BaseURL           string
	Timeout           time.Duration
}

// ResolveAuthMode picks oauth1 when the four user-context keys are present,
// bearer when only a bearer token is, and keeps an explicit mode otherwise.
func (c Config) ResolveAuthMode() AuthMode {
	if c.AuthMode != "" {
		return c.AuthMode
	}
	if c.APIKey != "" && c.APISecret != "" && c.AccessToken != "" && c.AccessTokenSecret != "" {
		return AuthOAuth1
	}
	return AuthBearer
}

// Validate reports missing credentials for the resolved auth mode.
func (c Config) Validate() error {
	switch mode := c.ResolveAuthMode(); mode {
	case AuthBearer:
		if strings.TrimSpace(c.BearerToken) == "" {
			return fmt.Errorf("%w: bearer token", ErrMissingCredentials)
		}
	case AuthOAuth1:
		var missing []string
		for _, f := range []struct{ name, value string }{
			{"apiKey", c.APIKey},
			{"apiSecret", c.APISecret},
			{"accessToken", c.AccessToken},
			{"accessTokenSecret", c.AccessTokenSecret},
		} {
			if strings.TrimSpace(f.value) == "" {
				missing = append(missing, f.name)
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("%w: %s", ErrMissingCredentials, strings.Join(missing, ", "))
		}
	default:
		return fmt.Errorf("unsupported auth mode %q", mode)
	}
	return nil
}

// RateLimitError is returned on HTTP 429.
type RateLimitError struct {
	Reset time.Time
	Body  string
}

func (e *RateLimitError) Error() string {
	if e.Reset.IsZero() {
		return "x api rate limited (429)"
	}
	return fmt.Sprintf("x api rate limited (429), resets at %s", e.Reset.UTC().Format(time.RFC3339))
}

// APIError is any other non-2xx answer.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("x api http %d: %s", e.StatusCode, e.Body)
}

// Client creates posts.
type Client struct {
	http    *http.Client
	baseURL string
	bearer  string
}

// New builds a client for cfg. In oauth1 mode requests are signed by an
// oauth1 http.Client; in bearer mode an Authorization header is added.
func New(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}

	c := &Client{baseURL: base}
	switch cfg.ResolveAuthMode() {
	case AuthOAuth1:
		oc := oauth1.NewConfig(cfg.APIKey, cfg.APISecret)
		token := oauth1.NewToken(cfg.AccessToken, cfg.AccessTokenSecret)
		c.http = oc.Client(oauth1.NoContext, token)
		c.http.Timeout = timeout
	default:
		c.http = &http.Client{Timeout: timeout}
		c.bearer = cfg.BearerToken
	}
	return c, nil
}

type createPostRequest struct {
	Text  string     `json:"text"`
	Reply *postReply `json:"reply,omitempty"`
}

type postReply struct {
	InReplyToTweetID string `json:"in_reply_to_tweet_id"`
}

type createPostResponse struct {
	Data struct {
		ID   string `json:"id"`
		Text string `json:"text"`
	} `json:"data"`
}

// CreatePost publishes text, as a reply to replyTo when it is not empty, and
// returns the new post id.
func (c *Client) CreatePost(ctx context.Context, text, replyTo string) (string, error) {
	payload := createPostRequest{Text: text}
	if replyTo != "" {
		payload.Reply = &postReply{InReplyToTweetID: replyTo}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/2/tweets", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("x api request: %w", err)
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	_ = resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", &RateLimitError{Reset: parseReset(resp.Header.Get("x-rate-limit-reset")), Body: strings.TrimSpace(string(raw))}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}

	var out createPostResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode x api response: %w", err)
	}
	if out.Data.ID == "" {
		return "", fmt.Errorf("x api response missing post id")
	}
	return out.Data.ID, nil
}

func parseReset(v string) time.Time {
	secs, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || secs <= 0 {
		return time.Time{}
	}
	return time.Unix(secs, 0)
}
