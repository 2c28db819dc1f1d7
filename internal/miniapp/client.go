// Package miniapp wraps the WeChat mini-program HTTP API surface the
// selection flow needs: unlimited QR code generation.
package miniapp

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"
)

const weixinAPIBase = "https://api.weixin.qq.com"

// Client talks to the WeChat API with a cached access token.
type Client struct {
	appID      string
	appSecret  string
	baseURL    string
	httpClient *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewClient(appID, appSecret string) *Client {
	return &Client{
		appID:      appID,
		appSecret:  appSecret,
		baseURL:    weixinAPIBase,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.accessToken != "" && time.Now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	q := url.Values{}
	q.Set("grant_type", "client_credential")
	q.Set("appid", c.appID)
	q.Set("secret", c.appSecret)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/cgi-bin/token?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("wechat token request failed: %w", err)
	}
	defer resp.Body.Close()

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
		ErrCode     int    `json:"errcode"`
		ErrMsg      string `json:"errmsg"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("wechat token error %d: %s", out.ErrCode, out.ErrMsg)
	}
	c.accessToken = out.AccessToken
	// Refresh a minute early.
	c.tokenExpiry = time.Now().Add(time.Duration(out.ExpiresIn-60) * time.Second)
	return c.accessToken, nil
}

// SelectionCode renders the mini-app code for a selection token. The scene
// parameter is capped at 32 characters by WeChat, which the 16-character
// short token fits comfortably.
func (c *Client) SelectionCode(ctx context.Context, shortToken string) (string, error) {
	scene := "st=" + shortToken
	if len(scene) > 32 {
		return "", fmt.Errorf("scene %q exceeds the 32-character limit", scene)
	}

	token, err := c.token(ctx)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(map[string]any{
		"scene": scene,
		"page":  "pages/selection/index",
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/wxa/getwxacodeunlimit?access_token="+url.QueryEscape(token),
		bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("wechat code request failed: %w", err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	// Errors come back as JSON instead of image bytes.
	if bytes.HasPrefix(bytes.TrimSpace(raw), []byte("{")) {
		var apiErr struct {
			ErrCode int    `json:"errcode"`
			ErrMsg  string `json:"errmsg"`
		}
		if err := json.Unmarshal(raw, &apiErr); err == nil && apiErr.ErrCode != 0 {
			return "", fmt.Errorf("wechat code error %d: %s", apiErr.ErrCode, apiErr.ErrMsg)
		}
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(raw), nil
}
