package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"photoprint-backend/internal/models"
)

// Meitu response codes. 90002 is an authentication failure and must never
// be retried.
const (
	meituCodeOK       = 0
	meituCodeAuthFail = 90002
)

const (
	meituDefaultDrawEndpoint  = "/openapi/realphotolocal_async"
	meituDefaultQueryEndpoint = "/openapi/query"
)

// meituProvider is the asynchronous beautification API: submission yields a
// msg_id which is later exchanged for the result URL, either by the
// provider calling back repost_url or by an explicit query.
type meituProvider struct {
	host          string
	apiKey        string
	apiSecret     string
	mediaCode     string
	drawEndpoint  string
	queryEndpoint string
	submitClient  *http.Client
	queryClient   *http.Client
}

func newMeituProvider(cfg *models.APIProviderConfig) *meituProvider {
	p := &meituProvider{
		host:          strings.TrimRight(cfg.Host, "/"),
		apiKey:        cfg.APIKey,
		apiSecret:     cfg.APISecret.String,
		mediaCode:     cfg.MediaCode.String,
		drawEndpoint:  meituDefaultDrawEndpoint,
		queryEndpoint: meituDefaultQueryEndpoint,
		submitClient:  newHTTPClient(submitTimeout),
		queryClient:   newHTTPClient(queryTimeout),
	}
	if cfg.DrawEndpoint.Valid && cfg.DrawEndpoint.String != "" {
		p.drawEndpoint = cfg.DrawEndpoint.String
	}
	if cfg.QueryEndpoint.Valid && cfg.QueryEndpoint.String != "" {
		p.queryEndpoint = cfg.QueryEndpoint.String
	}
	return p
}

func (p *meituProvider) Kind() models.ProviderKind { return models.KindMeituAsync }

type meituEnvelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (p *meituProvider) post(ctx context.Context, client *http.Client, path string, payload map[string]any) (*meituEnvelope, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, permanentErr(p.Kind(), "failed to encode request: %v", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+path, bytes.NewReader(body))
	if err != nil {
		return nil, nil, transientErr(p.Kind(), err, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, nil, transientErr(p.Kind(), err, "request to %s failed", path)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 500 {
		return nil, raw, transientErr(p.Kind(), nil, "server error %d on %s", resp.StatusCode, path)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, raw, permanentErr(p.Kind(), "%s rejected with %d: %s", path, resp.StatusCode, raw)
	}

	var env meituEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, raw, transientErr(p.Kind(), err, "unreadable response from %s", path)
	}
	if env.Code == meituCodeAuthFail {
		return nil, raw, permanentErr(p.Kind(), "authentication failed (code %d)", env.Code)
	}
	return &env, raw, nil
}

func (p *meituProvider) Submit(ctx context.Context, sub Submission) (*SubmitResult, error) {
	if len(sub.ImageURLs) == 0 {
		return nil, permanentErr(p.Kind(), "no input images")
	}
	if p.mediaCode == "" {
		return nil, permanentErr(p.Kind(), "provider config has no media_code preset")
	}

	payload := map[string]any{
		"api_key":    p.apiKey,
		"api_secret": p.apiSecret,
		"media_code": p.mediaCode,
		"media_data": sub.ImageURLs[0],
	}
	if sub.CallbackURL != "" {
		payload["repost_url"] = sub.CallbackURL
	}

	env, raw, err := p.post(ctx, p.submitClient, p.drawEndpoint, payload)
	if err != nil {
		return nil, err
	}
	if env.Code != meituCodeOK {
		return nil, transientErr(p.Kind(), nil, "submission failed with code %d: %s", env.Code, env.Message)
	}

	var data struct {
		MsgID string `json:"msg_id"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || data.MsgID == "" {
		return nil, permanentErr(p.Kind(), "no msg_id in response: %s", raw)
	}
	return &SubmitResult{Handle: data.MsgID, Raw: raw}, nil
}

// Poll exchanges the msg_id for the result. An empty media_data with code 0
// means the job is still rendering.
func (p *meituProvider) Poll(ctx context.Context, handle string) (*PollResult, error) {
	env, raw, err := p.post(ctx, p.queryClient, p.queryEndpoint, map[string]any{
		"api_key":    p.apiKey,
		"api_secret": p.apiSecret,
		"msg_id":     handle,
	})
	if err != nil {
		return nil, err
	}
	if env.Code != meituCodeOK {
		return &PollResult{State: PollFailed, Message: env.Message, Raw: raw}, nil
	}

	var data struct {
		MediaData string `json:"media_data"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, transientErr(p.Kind(), err, "unreadable query payload")
	}
	if data.MediaData == "" {
		return &PollResult{State: PollRunning, Raw: raw}, nil
	}
	return &PollResult{State: PollCompleted, ImageURLs: []string{data.MediaData}, Raw: raw}, nil
}

// Cancel is unsupported upstream; the task is abandoned locally.
func (p *meituProvider) Cancel(_ context.Context, _ string) error {
	return nil
}
