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

// apiEditProvider is the single-shot image-edit API: one POST, the result
// URL comes back in the response body, no polling.
type apiEditProvider struct {
	host     string
	apiKey   string
	endpoint string
	client   *http.Client
}

func newAPIEditProvider(cfg *models.APIProviderConfig) *apiEditProvider {
	endpoint := "/v1/images/edits"
	if cfg.DrawEndpoint.Valid && cfg.DrawEndpoint.String != "" {
		endpoint = cfg.DrawEndpoint.String
	}
	return &apiEditProvider{
		host:     strings.TrimRight(cfg.Host, "/"),
		apiKey:   cfg.APIKey,
		endpoint: endpoint,
		client:   newHTTPClient(submitTimeout),
	}
}

func (p *apiEditProvider) Kind() models.ProviderKind { return models.KindAPIEdit }

func (p *apiEditProvider) Submit(ctx context.Context, sub Submission) (*SubmitResult, error) {
	if len(sub.ImageURLs) == 0 {
		return nil, permanentErr(p.Kind(), "no input images")
	}

	body, err := renderTemplate(sub.Template, sub.ImageURLs[0], sub.Prompt)
	if err != nil {
		return nil, err
	}
	if body == nil {
		payload := map[string]any{
			"image":  sub.ImageURLs[0],
			"prompt": sub.Prompt,
		}
		if sub.ModelName != "" {
			payload["model"] = sub.ModelName
		}
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, permanentErr(p.Kind(), "failed to encode request: %v", err)
		}
		body = raw
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, transientErr(p.Kind(), err, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, transientErr(p.Kind(), err, "edit request failed")
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)

	switch {
	case resp.StatusCode >= 500:
		return nil, transientErr(p.Kind(), nil, "server error %d", resp.StatusCode)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, permanentErr(p.Kind(), "authentication rejected with %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, permanentErr(p.Kind(), "edit rejected with %d: %s", resp.StatusCode, raw)
	}

	urls := extractImageURLs(raw)
	if len(urls) == 0 {
		return nil, permanentErr(p.Kind(), "no image URL in response: %s", raw)
	}
	return &SubmitResult{ImageURLs: urls, Raw: raw}, nil
}

// extractImageURLs pulls result URLs out of the two response shapes seen in
// the wild: {"data":[{"url":...}]} and {"url":...}.
func extractImageURLs(raw []byte) []string {
	var withData struct {
		Data []struct {
			URL string `json:"url"`
		} `json:"data"`
	}
	if err := json.Unmarshal(raw, &withData); err == nil && len(withData.Data) > 0 {
		var urls []string
		for _, d := range withData.Data {
			if d.URL != "" {
				urls = append(urls, d.URL)
			}
		}
		if len(urls) > 0 {
			return urls
		}
	}
	var flat struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &flat); err == nil && flat.URL != "" {
		return []string{flat.URL}
	}
	return nil
}

// Poll is never needed: Submit returns the result inline.
func (p *apiEditProvider) Poll(_ context.Context, _ string) (*PollResult, error) {
	return nil, permanentErr(p.Kind(), "api-edit tasks have no provider handle to poll")
}

func (p *apiEditProvider) Cancel(_ context.Context, _ string) error {
	return nil
}
