package vk

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	apiBaseURL    = "https://api.vk.com/method"
	oauthTokenURL = "https://oauth.vk.com/access_token"
	apiVersion    = "5.199"
	pageSize      = 200
)

// APIError is a failure reported by the VK side: a non-2xx status, an
// unexpected payload, or an error object embedded in a 200 response.
type APIError struct {
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("vk: api error %d: %s", e.Code, e.Message)
	}
	return "vk: " + e.Message
}

// AuthError is a rejected OAuth code exchange.
type AuthError struct {
	Detail string
}

func (e *AuthError) Error() string {
	if e.Detail == "" {
		return "vk: authorization failed"
	}
	return "vk: authorization failed: " + e.Detail
}

// Client talks to the VK API. Safe for concurrent use; the rate limiter
// keeps all sessions under the per-token request budget.
type Client struct {
	log     zerolog.Logger
	http    *http.Client
	limiter *rate.Limiter

	baseURL  string
	tokenURL string
}

func NewClient(log zerolog.Logger) *Client {
	return &Client{
		log:  log,
		http: &http.Client{Timeout: 30 * time.Second},
		// VK allows roughly 3 requests per second per token.
		limiter:  rate.NewLimiter(rate.Limit(3), 3),
		baseURL:  apiBaseURL,
		tokenURL: oauthTokenURL,
	}
}

// ExchangeCode performs the one-shot OAuth authorization-code exchange.
func (c *Client) ExchangeCode(ctx context.Context, clientID, clientSecret, redirectURI, code string) (string, error) {
	params := url.Values{
		"client_id":     {clientID},
		"client_secret": {clientSecret},
		"redirect_uri":  {redirectURI},
		"code":          {code},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL+"?"+params.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", &AuthError{Detail: strings.TrimSpace(string(body))}
	}
	var token struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &token); err != nil || token.AccessToken == "" {
		return "", &AuthError{Detail: strings.TrimSpace(string(body))}
	}
	return token.AccessToken, nil
}

// Session binds a client to one access token. Fetched photos are cached in
// a session-scoped temp directory, removed by Close.
type Session struct {
	c      *Client
	token  string
	tmpDir string
}

func (c *Client) Session(token string) (*Session, error) {
	tmpDir, err := os.MkdirTemp("", "vk2cml-photos-")
	if err != nil {
		return nil, fmt.Errorf("photo cache dir: %w", err)
	}
	c.log.Debug().Str("dir", tmpDir).Msg("photo cache dir created")
	return &Session{c: c, token: token, tmpDir: tmpDir}, nil
}

func (s *Session) Close() error {
	return os.RemoveAll(s.tmpDir)
}

func (s *Session) call(ctx context.Context, httpMethod, apiMethod string, params url.Values, out any) error {
	if err := s.c.limiter.Wait(ctx); err != nil {
		return err
	}
	params.Set("access_token", s.token)
	params.Set("v", apiVersion)

	endpoint := s.c.baseURL + "/" + apiMethod
	var req *http.Request
	var err error
	if httpMethod == http.MethodPost {
		req, err = http.NewRequestWithContext(ctx, httpMethod, endpoint, strings.NewReader(params.Encode()))
		if err == nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		}
	} else {
		req, err = http.NewRequestWithContext(ctx, httpMethod, endpoint+"?"+params.Encode(), nil)
	}
	if err != nil {
		return err
	}

	resp, err := s.c.http.Do(req)
	if err != nil {
		return fmt.Errorf("vk %s: %w", apiMethod, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &APIError{Message: fmt.Sprintf("%s: unexpected status %s", apiMethod, resp.Status)}
	}
	if ct := resp.Header.Get("Content-Type"); !strings.Contains(ct, "json") {
		return &APIError{Message: fmt.Sprintf("%s: unexpected content type %q", apiMethod, ct)}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("vk %s: %w", apiMethod, err)
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return fmt.Errorf("vk %s: decode: %w", apiMethod, err)
	}
	if env.Error != nil {
		return &APIError{Code: env.Error.Code, Message: env.Error.Message}
	}
	if out != nil {
		if err := json.Unmarshal(env.Response, out); err != nil {
			return fmt.Errorf("vk %s: decode response: %w", apiMethod, err)
		}
	}
	return nil
}

// Market pages through market.get and returns all items in server order.
// ownerID is negative for communities.
func (s *Session) Market(ctx context.Context, ownerID int64, withDisabled bool) ([]MarketItem, error) {
	params := url.Values{
		"owner_id":      {strconv.FormatInt(ownerID, 10)},
		"count":         {strconv.Itoa(pageSize)},
		"extended":      {"1"},
		"need_variants": {"0"},
		"with_disabled": {boolFlag(withDisabled)},
	}
	var result []MarketItem
	for page := 0; ; page++ {
		params.Set("offset", strconv.Itoa(page*pageSize))
		var resp marketGetResponse
		if err := s.call(ctx, http.MethodGet, "market.get", params, &resp); err != nil {
			return nil, err
		}
		if len(resp.Items) == 0 {
			break
		}
		result = append(result, resp.Items...)
		if len(resp.Items) < pageSize {
			break
		}
	}
	return result, nil
}

// MarketItemByID fetches a single catalog item, nil when it does not exist.
func (s *Session) MarketItemByID(ctx context.Context, ownerID, itemID int64) (*MarketItem, error) {
	params := url.Values{
		"item_ids": {fmt.Sprintf("%d_%d", ownerID, itemID)},
		"extended": {"1"},
	}
	var resp marketGetResponse
	if err := s.call(ctx, http.MethodGet, "market.getById", params, &resp); err != nil {
		return nil, err
	}
	if len(resp.Items) == 0 {
		return nil, nil
	}
	return &resp.Items[0], nil
}

// EditMarketItem replaces the description of one catalog item.
func (s *Session) EditMarketItem(ctx context.Context, ownerID, itemID int64, description string) error {
	params := url.Values{
		"owner_id":    {strconv.FormatInt(ownerID, 10)},
		"item_id":     {strconv.FormatInt(itemID, 10)},
		"description": {description},
	}
	var resp int
	if err := s.call(ctx, http.MethodPost, "market.edit", params, &resp); err != nil {
		return err
	}
	if resp != 1 {
		return &APIError{Message: fmt.Sprintf("market.edit: unexpected response %d", resp)}
	}
	return nil
}

// Groups lists communities the token owner administers.
func (s *Session) Groups(ctx context.Context) ([]GroupItem, error) {
	params := url.Values{
		"extended": {"1"},
		"filter":   {"advertiser"},
	}
	var resp groupsGetResponse
	if err := s.call(ctx, http.MethodGet, "groups.get", params, &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// DownloadPhotos fetches every photo concurrently, picking the widest
// variant that fits maxWidth (the widest overall when maxWidth <= 0).
// Blobs are cached on disk for the session, keyed by filename, so repeated
// calls within one run hit the cache. Any single failure fails the batch.
func (s *Session) DownloadPhotos(ctx context.Context, photos []Photo, maxWidth int) (map[string][]byte, error) {
	g, ctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	result := make(map[string][]byte, len(photos))

	for _, photo := range photos {
		name := fmt.Sprintf("src_%d.jpg", photo.ID)
		photoURL, err := pickSize(photo.Sizes, maxWidth)
		if err != nil {
			return nil, fmt.Errorf("photo %d: %w", photo.ID, err)
		}
		g.Go(func() error {
			data, err := s.fetchPhoto(ctx, name, photoURL)
			if err != nil {
				return err
			}
			mu.Lock()
			result[name] = data
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Session) fetchPhoto(ctx context.Context, name, photoURL string) ([]byte, error) {
	cachePath := filepath.Join(s.tmpDir, name)
	if data, err := os.ReadFile(cachePath); err == nil {
		return data, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, photoURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("photo %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &APIError{Message: fmt.Sprintf("photo %s: unexpected status %s", name, resp.Status)}
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("photo %s: %w", name, err)
	}
	s.c.log.Info().Str("photo", name).Msg("photo downloaded")
	if err := os.WriteFile(cachePath, data, 0o644); err != nil {
		s.c.log.Warn().Err(err).Str("photo", name).Msg("photo cache write failed")
	}
	return data, nil
}

func pickSize(sizes []PhotoSize, maxWidth int) (string, error) {
	sorted := make([]PhotoSize, len(sizes))
	copy(sorted, sizes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Width > sorted[j].Width })
	for _, size := range sorted {
		if maxWidth <= 0 || size.Width <= maxWidth {
			return size.URL, nil
		}
	}
	return "", fmt.Errorf("no size within %dpx", maxWidth)
}

func boolFlag(b bool) string {
	if b {
		return "1"
	}
	return "0"
}
