package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"photoprint-backend/internal/models"
)

// workflowProvider speaks to a ComfyUI instance directly: POST the prepared
// workflow graph to /api/prompt, then poll /history/<prompt_id> until the
// output node has produced images.
type workflowProvider struct {
	host         string
	submitClient *http.Client
	queryClient  *http.Client
}

func newWorkflowProvider(cfg *models.APIProviderConfig) *workflowProvider {
	return &workflowProvider{
		host:         strings.TrimRight(cfg.Host, "/"),
		submitClient: newHTTPClient(submitTimeout),
		queryClient:  newHTTPClient(queryTimeout),
	}
}

func (p *workflowProvider) Kind() models.ProviderKind { return models.KindWorkflow }

func (p *workflowProvider) Submit(ctx context.Context, sub Submission) (*SubmitResult, error) {
	if len(sub.ImageURLs) == 0 {
		return nil, permanentErr(p.Kind(), "no input images")
	}
	workflow, err := renderTemplate(sub.Template, sub.ImageURLs[0], sub.Prompt)
	if err != nil {
		return nil, err
	}
	if workflow == nil {
		return nil, permanentErr(p.Kind(), "style has no workflow template")
	}

	payload, err := json.Marshal(map[string]json.RawMessage{"prompt": workflow})
	if err != nil {
		return nil, permanentErr(p.Kind(), "failed to encode workflow: %v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+"/api/prompt", bytes.NewReader(payload))
	if err != nil {
		return nil, transientErr(p.Kind(), err, "failed to build request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.submitClient.Do(req)
	if err != nil {
		return nil, transientErr(p.Kind(), err, "submission request failed")
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 500 {
		return nil, transientErr(p.Kind(), nil, "server error %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, permanentErr(p.Kind(), "submission rejected with %d: %s", resp.StatusCode, body)
	}

	var out struct {
		PromptID string `json:"prompt_id"`
	}
	if err := json.Unmarshal(body, &out); err != nil || out.PromptID == "" {
		return nil, permanentErr(p.Kind(), "no prompt_id in response: %s", body)
	}
	return &SubmitResult{Handle: out.PromptID, Raw: body}, nil
}

func (p *workflowProvider) Poll(ctx context.Context, handle string) (*PollResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.host+"/history/"+url.PathEscape(handle), nil)
	if err != nil {
		return nil, transientErr(p.Kind(), err, "failed to build history request")
	}
	resp, err := p.queryClient.Do(req)
	if err != nil {
		return nil, transientErr(p.Kind(), err, "history request failed")
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 500 {
		return nil, transientErr(p.Kind(), nil, "server error %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, permanentErr(p.Kind(), "history query rejected with %d", resp.StatusCode)
	}

	// /history returns {<prompt_id>: {outputs: {<node>: {images: [...]}}}};
	// an empty object means the prompt is still executing.
	var history map[string]struct {
		Outputs map[string]struct {
			Images []struct {
				Filename  string `json:"filename"`
				Subfolder string `json:"subfolder"`
				Type      string `json:"type"`
			} `json:"images"`
		} `json:"outputs"`
		Status struct {
			Completed bool   `json:"completed"`
			StatusStr string `json:"status_str"`
		} `json:"status"`
	}
	if err := json.Unmarshal(body, &history); err != nil {
		return nil, transientErr(p.Kind(), err, "unreadable history payload")
	}

	entry, ok := history[handle]
	if !ok {
		return &PollResult{State: PollRunning, Raw: body}, nil
	}
	if entry.Status.StatusStr == "error" {
		return &PollResult{State: PollFailed, Message: "workflow execution failed", Raw: body}, nil
	}

	var urls []string
	for _, node := range entry.Outputs {
		for _, img := range node.Images {
			if img.Type != "output" {
				continue
			}
			q := url.Values{}
			q.Set("filename", img.Filename)
			q.Set("subfolder", img.Subfolder)
			q.Set("type", img.Type)
			urls = append(urls, fmt.Sprintf("%s/view?%s", p.host, q.Encode()))
		}
	}
	if len(urls) == 0 {
		return &PollResult{State: PollRunning, Raw: body}, nil
	}
	return &PollResult{State: PollCompleted, ImageURLs: urls, Raw: body}, nil
}

func (p *workflowProvider) Cancel(ctx context.Context, handle string) error {
	payload, _ := json.Marshal(map[string]string{"delete": handle})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.host+"/api/interrupt", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := p.queryClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}
