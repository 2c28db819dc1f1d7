package providers_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"photoprint-backend/internal/models"
	"photoprint-backend/internal/providers"
)

func newProvider(t *testing.T, cfg *models.APIProviderConfig) providers.Provider {
	t.Helper()
	p, err := providers.New(cfg)
	require.NoError(t, err)
	return p
}

func TestNew_UnknownKind(t *testing.T) {
	_, err := providers.New(&models.APIProviderConfig{APIType: "something-else"})
	assert.Error(t, err)
}

func TestWorkflowProvider_SubmitReturnsPromptID(t *testing.T) {
	var gotBody map[string]json.RawMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/prompt", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		fmt.Fprint(w, `{"prompt_id":"pr-42"}`)
	}))
	defer server.Close()

	p := newProvider(t, &models.APIProviderConfig{APIType: models.KindWorkflow, Host: server.URL})
	result, err := p.Submit(context.Background(), providers.Submission{
		ImageURLs: []string{"http://host/in.jpg"},
		Prompt:    "soft light",
		Template:  json.RawMessage(`{"3":{"inputs":{"image":"{{image_url}}","text":"{{prompt}}"}}}`),
	})
	require.NoError(t, err)
	assert.Equal(t, "pr-42", result.Handle)

	// Placeholders must be substituted before submission.
	assert.Contains(t, string(gotBody["prompt"]), "http://host/in.jpg")
	assert.Contains(t, string(gotBody["prompt"]), "soft light")
}

func TestWorkflowProvider_PollHistory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"pr-42":{"outputs":{"9":{"images":[{"filename":"out.png","subfolder":"","type":"output"}]}},"status":{"status_str":"success"}}}`)
	}))
	defer server.Close()

	p := newProvider(t, &models.APIProviderConfig{APIType: models.KindWorkflow, Host: server.URL})
	result, err := p.Poll(context.Background(), "pr-42")
	require.NoError(t, err)
	assert.Equal(t, providers.PollCompleted, result.State)
	require.Len(t, result.ImageURLs, 1)
	assert.Contains(t, result.ImageURLs[0], "filename=out.png")
}

func TestWorkflowProvider_PollStillRunning(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{}`)
	}))
	defer server.Close()

	p := newProvider(t, &models.APIProviderConfig{APIType: models.KindWorkflow, Host: server.URL})
	result, err := p.Poll(context.Background(), "pr-42")
	require.NoError(t, err)
	assert.Equal(t, providers.PollRunning, result.State)
}

func TestAPIEditProvider_DataArrayShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/images/edits", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"data":[{"url":"http://cdn/out-1.png"},{"url":"http://cdn/out-2.png"}]}`)
	}))
	defer server.Close()

	p := newProvider(t, &models.APIProviderConfig{APIType: models.KindAPIEdit, Host: server.URL, APIKey: "test-key"})
	result, err := p.Submit(context.Background(), providers.Submission{
		ImageURLs: []string{"http://host/in.jpg"},
		Prompt:    "brighter",
	})
	require.NoError(t, err)
	assert.Empty(t, result.Handle)
	assert.Equal(t, []string{"http://cdn/out-1.png", "http://cdn/out-2.png"}, result.ImageURLs)
}

func TestAPIEditProvider_FlatURLShape(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"url":"http://cdn/out.png"}`)
	}))
	defer server.Close()

	p := newProvider(t, &models.APIProviderConfig{APIType: models.KindAPIEdit, Host: server.URL})
	result, err := p.Submit(context.Background(), providers.Submission{ImageURLs: []string{"http://host/in.jpg"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"http://cdn/out.png"}, result.ImageURLs)
}

func TestAPIEditProvider_UnauthorizedIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	p := newProvider(t, &models.APIProviderConfig{APIType: models.KindAPIEdit, Host: server.URL})
	_, err := p.Submit(context.Background(), providers.Submission{ImageURLs: []string{"http://host/in.jpg"}})
	require.Error(t, err)
	assert.True(t, providers.IsPermanent(err))
}

func TestRunningHubProvider_Submit(t *testing.T) {
	var gotBody map[string]json.RawMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/task/openapi/create", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		fmt.Fprint(w, `{"code":0,"msg":"success","data":{"taskId":1955555,"taskStatus":"QUEUED"}}`)
	}))
	defer server.Close()

	p := newProvider(t, &models.APIProviderConfig{APIType: models.KindComfyUIWorkflow, Host: server.URL, APIKey: "rh-key"})
	result, err := p.Submit(context.Background(), providers.Submission{
		ImageURLs:  []string{"http://host/in.jpg"},
		WorkflowID: "wf-100",
		Template:   json.RawMessage(`[{"nodeId":"20","fieldName":"image","fieldValue":"{{image_url}}"}]`),
	})
	require.NoError(t, err)
	assert.Equal(t, "1955555", result.Handle)
	assert.JSONEq(t, `"rh-key"`, string(gotBody["apiKey"]))
	assert.JSONEq(t, `"wf-100"`, string(gotBody["workflowId"]))
	assert.Contains(t, string(gotBody["nodeInfoList"]), "http://host/in.jpg")
}

func TestRunningHubProvider_SubmitWithoutWorkflowID(t *testing.T) {
	p := newProvider(t, &models.APIProviderConfig{APIType: models.KindComfyUIWorkflow, Host: "http://unused"})
	_, err := p.Submit(context.Background(), providers.Submission{ImageURLs: []string{"x"}})
	require.Error(t, err)
	assert.True(t, providers.IsPermanent(err))
}

func TestRunningHubProvider_PollStates(t *testing.T) {
	tests := []struct {
		name     string
		response string
		want     providers.PollState
	}{
		{"running", `{"code":804,"msg":"APIKEY_TASK_IS_RUNNING"}`, providers.PollRunning},
		{"queued", `{"code":813,"msg":"APIKEY_TASK_IS_QUEUED"}`, providers.PollQueued},
		{"failed", `{"code":301,"msg":"TASK_FAILED"}`, providers.PollFailed},
		{"completed", `{"code":0,"msg":"success","data":[{"fileUrl":"http://cdn/out.png","fileType":"png"}]}`, providers.PollCompleted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/task/openapi/outputs", r.URL.Path)
				fmt.Fprint(w, tt.response)
			}))
			defer server.Close()

			p := newProvider(t, &models.APIProviderConfig{APIType: models.KindComfyUIWorkflow, Host: server.URL})
			result, err := p.Poll(context.Background(), "1955555")
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.State)
			if tt.want == providers.PollCompleted {
				assert.Equal(t, []string{"http://cdn/out.png"}, result.ImageURLs)
			}
		})
	}
}

func TestMeituProvider_SubmitAndQuery(t *testing.T) {
	var submitPayload map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/openapi/realphotolocal_async":
			require.NoError(t, json.NewDecoder(r.Body).Decode(&submitPayload))
			fmt.Fprint(w, `{"code":0,"message":"ok","data":{"msg_id":"msg-7"}}`)
		case "/openapi/query":
			fmt.Fprint(w, `{"code":0,"message":"ok","data":{"media_data":"http://cdn/retouched.jpg"}}`)
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	cfg := &models.APIProviderConfig{
		APIType: models.KindMeituAsync,
		Host:    server.URL,
		APIKey:  "mt-key",
	}
	cfg.APISecret.String, cfg.APISecret.Valid = "mt-secret", true
	cfg.MediaCode.String, cfg.MediaCode.Valid = "realphoto_v2", true

	p := newProvider(t, cfg)
	result, err := p.Submit(context.Background(), providers.Submission{
		ImageURLs:   []string{"http://host/in.jpg"},
		CallbackURL: "http://backend/api/v1/meitu/callback",
	})
	require.NoError(t, err)
	assert.Equal(t, "msg-7", result.Handle)
	assert.Equal(t, "mt-key", submitPayload["api_key"])
	assert.Equal(t, "realphoto_v2", submitPayload["media_code"])
	assert.Equal(t, "http://host/in.jpg", submitPayload["media_data"])
	assert.Equal(t, "http://backend/api/v1/meitu/callback", submitPayload["repost_url"])

	poll, err := p.Poll(context.Background(), "msg-7")
	require.NoError(t, err)
	assert.Equal(t, providers.PollCompleted, poll.State)
	assert.Equal(t, []string{"http://cdn/retouched.jpg"}, poll.ImageURLs)
}

func TestMeituProvider_QueryStillRendering(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":0,"message":"ok","data":{"media_data":""}}`)
	}))
	defer server.Close()

	cfg := &models.APIProviderConfig{APIType: models.KindMeituAsync, Host: server.URL}
	cfg.MediaCode.String, cfg.MediaCode.Valid = "realphoto_v2", true

	p := newProvider(t, cfg)
	result, err := p.Poll(context.Background(), "msg-7")
	require.NoError(t, err)
	assert.Equal(t, providers.PollRunning, result.State)
}

func TestMeituProvider_AuthFailureIsPermanent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"code":90002,"message":"auth failed"}`)
	}))
	defer server.Close()

	cfg := &models.APIProviderConfig{APIType: models.KindMeituAsync, Host: server.URL}
	cfg.MediaCode.String, cfg.MediaCode.Valid = "realphoto_v2", true

	p := newProvider(t, cfg)
	_, err := p.Submit(context.Background(), providers.Submission{ImageURLs: []string{"http://host/in.jpg"}})
	require.Error(t, err)
	assert.True(t, providers.IsPermanent(err))
}

func TestRetryWithBackoff_StopsOnPermanent(t *testing.T) {
	calls := 0
	err := providers.RetryWithBackoff(func() error {
		calls++
		return &providers.Error{Kind: models.KindAPIEdit, Msg: "rejected", Permanent: true}
	}, 3)
	require.Error(t, err)
	assert.Equal(t, 1, calls)
	assert.True(t, providers.IsPermanent(err))
}

func TestRetryWithBackoff_SucceedsFirstTry(t *testing.T) {
	calls := 0
	err := providers.RetryWithBackoff(func() error {
		calls++
		return nil
	}, 3)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
}
