package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"photoprint-backend/internal/models"
)

// RunningHub response codes. Anything else is treated as a permanent
// business rejection.
const (
	rhCodeOK      = 0
	rhCodeRunning = 804
	rhCodeQueued  = 813
)

// runningHubProvider drives hosted ComfyUI workflows through the
// RunningHub open API: create a task from a workflow id plus node
// overrides, then poll the outputs endpoint until files appear.
type runningHubProvider struct {
	host         string
	hostHeader   string
	apiKey       string
	submitClient *http.Client
	queryClient  *http.Client
}

func newRunningHubProvider(cfg *models.APIProviderConfig) *runningHubProvider {
	host := strings.TrimRight(cfg.Host, "/")
	hostHeader := ""
	if u, err := url.Parse(host); err == nil {
		hostHeader = u.Host
	}
	return &runningHubProvider{
		host:         host,
		hostHeader:   hostHeader,
		apiKey:       cfg.APIKey,
		submitClient: newHTTPClient(submitTimeout),
		queryClient:  newHTTPClient(queryTimeout),
	}
}

func (p *runningHubProvider) Kind() models.ProviderKind { return models.KindComfyUIWorkflow }

type rhEnvelope struct {
	Code int             `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func (p *runningHubProvider) post(ctx context.Context, client *http.Client, path string, payload any) (*rhEnvelope, []byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, nil, permanentErr(p.Kind(), "failed to encode request: %v", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+path, bytes.NewReader(body))
	if err != nil {
		return nil, nil, transientErr(p.Kind(), err, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")
	// RunningHub routes on the Host header even when fronted by an IP.
	if p.hostHeader != "" {
		req.Host = p.hostHeader
	}

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

	var env rhEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, raw, transientErr(p.Kind(), err, "unreadable response from %s", path)
	}
	return &env, raw, nil
}

func (p *runningHubProvider) Submit(ctx context.Context, sub Submission) (*SubmitResult, error) {
	if sub.WorkflowID == "" {
		return nil, permanentErr(p.Kind(), "style has no workflow id")
	}
	if len(sub.ImageURLs) == 0 {
		return nil, permanentErr(p.Kind(), "no input images")
	}

	// The stored template is the nodeInfoList with placeholders.
	nodeInfo, err := renderTemplate(sub.Template, sub.ImageURLs[0], sub.Prompt)
	if err != nil {
		return nil, err
	}
	if nodeInfo == nil {
		nodeInfo = json.RawMessage(`[]`)
	}

	env, raw, err := p.post(ctx, p.submitClient, "/task/openapi/create", map[string]any{
		"apiKey":       p.apiKey,
		"workflowId":   sub.WorkflowID,
		"nodeInfoList": nodeInfo,
	})
	if err != nil {
		return nil, err
	}
	if env.Code != rhCodeOK {
		return nil, permanentErr(p.Kind(), "create failed with code %d: %s", env.Code, env.Msg)
	}

	var data struct {
		TaskID     json.Number `json:"taskId"`
		TaskStatus string      `json:"taskStatus"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || data.TaskID.String() == "" {
		return nil, permanentErr(p.Kind(), "no taskId in create response: %s", raw)
	}
	return &SubmitResult{Handle: data.TaskID.String(), Raw: raw}, nil
}

func (p *runningHubProvider) Poll(ctx context.Context, handle string) (*PollResult, error) {
	env, raw, err := p.post(ctx, p.queryClient, "/task/openapi/outputs", map[string]any{
		"apiKey": p.apiKey,
		"taskId": handle,
	})
	if err != nil {
		return nil, err
	}

	switch env.Code {
	case rhCodeRunning:
		return &PollResult{State: PollRunning, Message: env.Msg, Raw: raw}, nil
	case rhCodeQueued:
		return &PollResult{State: PollQueued, Message: env.Msg, Raw: raw}, nil
	case rhCodeOK:
	default:
		return &PollResult{State: PollFailed, Message: env.Msg, Raw: raw}, nil
	}

	var outputs []struct {
		FileURL  string `json:"fileUrl"`
		FileType string `json:"fileType"`
	}
	if err := json.Unmarshal(env.Data, &outputs); err != nil {
		return nil, transientErr(p.Kind(), err, "unreadable outputs payload")
	}
	var urls []string
	for _, o := range outputs {
		if o.FileURL != "" {
			urls = append(urls, o.FileURL)
		}
	}
	if len(urls) == 0 {
		return &PollResult{State: PollRunning, Raw: raw}, nil
	}
	return &PollResult{State: PollCompleted, ImageURLs: urls, Raw: raw}, nil
}

func (p *runningHubProvider) Cancel(ctx context.Context, handle string) error {
	env, _, err := p.post(ctx, p.queryClient, "/task/openapi/cancel", map[string]any{
		"apiKey": p.apiKey,
		"taskId": handle,
	})
	if err != nil {
		return err
	}
	if env.Code != rhCodeOK {
		return permanentErr(p.Kind(), "cancel refused with code %d: %s", env.Code, env.Msg)
	}
	return nil
}
