package stride

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
)

// testServer serves the token endpoint plus the given API handler, and
// counts API requests.
func newTestClient(t *testing.T, apiRequests *atomic.Int64, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"access_token": "test-token",
			"expires_in":   3600,
		})
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if apiRequests != nil {
			apiRequests.Add(1)
		}
		handler(w, r)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	client, err := New(Config{
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		APIBaseURL:   server.URL,
		AuthBaseURL:  server.URL,
	}, testLogger())
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return client, server
}

func TestClient_SendMessage(t *testing.T) {
	var requests atomic.Int64
	client, _ := newTestClient(t, &requests, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("Expected POST method, got %s", r.Method)
		}
		if r.URL.Path != "/site/cloud-1/conversation/conv-1/message" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer test-token" {
			t.Errorf("Expected bearer auth header, got %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("cache-control") != "no-cache" {
			t.Errorf("Expected cache-control no-cache, got %q", r.Header.Get("cache-control"))
		}

		var body struct {
			Body Document `json:"body"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("Failed to decode body: %v", err)
		}
		if body.Body.Type != NodeDoc || body.Body.Version != 1 {
			t.Errorf("Unexpected document envelope: %+v", body.Body)
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"msg-1"}`))
	})

	result, err := client.SendMessage(context.Background(), "cloud-1", "conv-1", NewTextDocument("hello"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if string(result) != `{"id":"msg-1"}` {
		t.Errorf("Unexpected response body: %s", result)
	}
	if requests.Load() != 1 {
		t.Errorf("Expected 1 API request, got %d", requests.Load())
	}
}

func TestClient_ValidationErrorsMakeNoRequests(t *testing.T) {
	var requests atomic.Int64
	client, _ := newTestClient(t, &requests, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})
	ctx := context.Background()
	doc := NewTextDocument("hi")

	calls := []struct {
		name string
		call func() error
	}{
		{"sendMessage missing conversationId", func() error {
			_, err := client.SendMessage(ctx, "cloud-1", "", doc)
			return err
		}},
		{"sendMessage missing cloudId", func() error {
			_, err := client.SendMessage(ctx, "", "conv-1", doc)
			return err
		}},
		{"sendMessage missing document", func() error {
			_, err := client.SendMessage(ctx, "cloud-1", "conv-1", nil)
			return err
		}},
		{"sendPrivateMessage missing userId", func() error {
			_, err := client.SendPrivateMessage(ctx, "cloud-1", "", doc)
			return err
		}},
		{"getConversation missing conversationId", func() error {
			_, err := client.GetConversation(ctx, "cloud-1", "")
			return err
		}},
		{"createConversation missing name", func() error {
			_, err := client.CreateConversation(ctx, "cloud-1", "", "", "")
			return err
		}},
		{"archiveConversation missing cloudId", func() error {
			return client.ArchiveConversation(ctx, "", "conv-1")
		}},
		{"getConversationHistory missing conversationId", func() error {
			_, err := client.GetConversationHistory(ctx, "cloud-1", "")
			return err
		}},
		{"getConversationRoster missing cloudId", func() error {
			_, err := client.GetConversationRoster(ctx, "", "conv-1")
			return err
		}},
		{"getUser missing userId", func() error {
			_, err := client.GetUser(ctx, "cloud-1", "")
			return err
		}},
		{"sendMedia missing name", func() error {
			_, err := client.SendMedia(ctx, "cloud-1", "conv-1", "", strings.NewReader("x"))
			return err
		}},
		{"updateGlanceState missing glanceKey", func() error {
			return client.UpdateGlanceState(ctx, "cloud-1", "conv-1", "", "label")
		}},
		{"updateConfigurationState missing configKey", func() error {
			return client.UpdateConfigurationState(ctx, "cloud-1", "conv-1", "", true)
		}},
		{"sendTextMessage missing text", func() error {
			_, err := client.SendTextMessage(ctx, "cloud-1", "conv-1", "")
			return err
		}},
	}

	for _, tc := range calls {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.call()
			var validationErr *ValidationError
			if !errors.As(err, &validationErr) {
				t.Fatalf("Expected ValidationError, got %T: %v", err, err)
			}
		})
	}

	if requests.Load() != 0 {
		t.Errorf("Expected zero API requests for validation failures, got %d", requests.Load())
	}
}

func TestClient_SendTextMessageShape(t *testing.T) {
	var captured []byte
	client, _ := newTestClient(t, nil, func(w http.ResponseWriter, r *http.Request) {
		captured, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{}`))
	})

	if _, err := client.SendTextMessage(context.Background(), "cloud-1", "conv-1", "hello"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	want := `{"body":{"version":1,"type":"doc","content":[{"type":"paragraph","content":[{"type":"text","text":"hello"}]}]}}`
	if string(captured) != want {
		t.Errorf("Unexpected wire body:\n got %s\nwant %s", captured, want)
	}
}

func TestClient_CreateDocMentioningUser(t *testing.T) {
	client, _ := newTestClient(t, nil, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/scim/site/cloud-1/Users/u1" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"u1","displayName":"Alice"}`))
	})

	doc, err := client.CreateDocMentioningUser(context.Background(), "cloud-1", "u1", "Hi {{MENTION}}, bye")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	if len(doc.Content) != 1 || doc.Content[0].Type != NodeParagraph {
		t.Fatalf("Expected a single paragraph, got %+v", doc.Content)
	}
	content := doc.Content[0].Content
	if len(content) != 3 {
		t.Fatalf("Expected 3 content nodes, got %d: %+v", len(content), content)
	}
	if content[0].Type != NodeText || content[0].Text != "Hi " {
		t.Errorf("Unexpected first node: %+v", content[0])
	}
	if content[1].Type != NodeMention || content[1].Attrs == nil ||
		content[1].Attrs.ID != "u1" || content[1].Attrs.Text != "Alice" {
		t.Errorf("Unexpected mention node: %+v", content[1])
	}
	if content[2].Type != NodeText || content[2].Text != ", bye" {
		t.Errorf("Unexpected last node: %+v", content[2])
	}
}

func TestClient_CreateDocMentioningUser_NoPlaceholder(t *testing.T) {
	client, _ := newTestClient(t, nil, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"u1","displayName":"Alice"}`))
	})

	doc, err := client.CreateDocMentioningUser(context.Background(), "cloud-1", "u1", "plain text")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	content := doc.Content[0].Content
	if len(content) != 1 {
		t.Fatalf("Expected a single node, got %d: %+v", len(content), content)
	}
	if content[0].Type != NodeText || content[0].Text != "plain text" {
		t.Errorf("Unexpected node: %+v", content[0])
	}
}

func TestClient_CreateConversationDefaults(t *testing.T) {
	client, _ := newTestClient(t, nil, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/site/cloud-1/conversation" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		var body struct {
			Name    string `json:"name"`
			Privacy string `json:"privacy"`
			Topic   string `json:"topic"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.Privacy != "public" {
			t.Errorf("Expected default privacy public, got %q", body.Privacy)
		}
		if body.Topic != "" {
			t.Errorf("Expected default empty topic, got %q", body.Topic)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"conv-new","name":"room"}`))
	})

	conversation, err := client.CreateConversation(context.Background(), "cloud-1", "room", "", "")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if conversation.ID != "conv-new" {
		t.Errorf("Unexpected conversation: %+v", conversation)
	}
}

func TestClient_ArchiveConversation(t *testing.T) {
	client, _ := newTestClient(t, nil, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "PUT" {
			t.Errorf("Expected PUT method, got %s", r.Method)
		}
		if r.URL.Path != "/site/cloud-1/conversation/conv-1/archive" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	})

	if err := client.ArchiveConversation(context.Background(), "cloud-1", "conv-1"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
}

func TestClient_GetConversationHistoryLimit(t *testing.T) {
	client, _ := newTestClient(t, nil, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/site/cloud-1/conversation/conv-1/message" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("limit") != "5" {
			t.Errorf("Expected limit=5, got %q", r.URL.Query().Get("limit"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"messages":[{"id":"m1"},{"id":"m2"}]}`))
	})

	page, err := client.GetConversationHistory(context.Background(), "cloud-1", "conv-1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(page.Messages) != 2 {
		t.Errorf("Expected 2 messages, got %d", len(page.Messages))
	}
}

func TestClient_GetConversationRoster(t *testing.T) {
	client, _ := newTestClient(t, nil, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/site/cloud-1/conversation/conv-1/roster" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"values":["u1","u2","u3"]}`))
	})

	roster, err := client.GetConversationRoster(context.Background(), "cloud-1", "conv-1")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if len(roster.Values) != 3 || roster.Values[0] != "u1" {
		t.Errorf("Unexpected roster: %+v", roster)
	}
}

func TestClient_SendMedia(t *testing.T) {
	client, _ := newTestClient(t, nil, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/site/cloud-1/conversation/conv-1/media" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("name") != "chart.png" {
			t.Errorf("Expected name=chart.png, got %q", r.URL.Query().Get("name"))
		}
		if r.Header.Get("Content-Type") != "application/octet-stream" {
			t.Errorf("Expected octet-stream content type, got %q", r.Header.Get("Content-Type"))
		}
		body, _ := io.ReadAll(r.Body)
		if string(body) != "binary-bytes" {
			t.Errorf("Unexpected upload body: %q", body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data":{"id":"media-1"}}`))
	})

	upload, err := client.SendMedia(context.Background(), "cloud-1", "conv-1", "chart.png", strings.NewReader("binary-bytes"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if upload.Data.ID != "media-1" {
		t.Errorf("Unexpected upload result: %+v", upload)
	}
}

func TestClient_UpdateGlanceState(t *testing.T) {
	client, _ := newTestClient(t, nil, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/app/module/chat/conversation/chat:glance/my-glance/state" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		var body struct {
			Context struct {
				CloudID        string `json:"cloudId"`
				ConversationID string `json:"conversationId"`
			} `json:"context"`
			Label    string                 `json:"label"`
			Metadata map[string]interface{} `json:"metadata"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("Failed to decode body: %v", err)
		}
		if body.Context.CloudID != "cloud-1" || body.Context.ConversationID != "conv-1" {
			t.Errorf("Unexpected state context: %+v", body.Context)
		}
		if body.Label != "3 updates" {
			t.Errorf("Unexpected label: %q", body.Label)
		}
		if body.Metadata == nil {
			t.Error("Expected empty metadata object, got null")
		}
		w.WriteHeader(http.StatusNoContent)
	})

	err := client.UpdateGlanceState(context.Background(), "cloud-1", "conv-1", "my-glance", "3 updates")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
}

func TestClient_UpdateConfigurationStateFalse(t *testing.T) {
	client, _ := newTestClient(t, nil, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/app/module/chat/conversation/chat:configuration/my-config/state" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		var body struct {
			Configured bool `json:"configured"`
		}
		json.NewDecoder(r.Body).Decode(&body)
		if body.Configured {
			t.Error("Expected configured=false")
		}
		w.WriteHeader(http.StatusNoContent)
	})

	err := client.UpdateConfigurationState(context.Background(), "cloud-1", "conv-1", "my-config", false)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
}

func TestClient_UpstreamError(t *testing.T) {
	client, _ := newTestClient(t, nil, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(`{"error":"down"}`))
	})

	_, err := client.GetConversation(context.Background(), "cloud-1", "conv-1")
	var upstreamErr *UpstreamError
	if !errors.As(err, &upstreamErr) {
		t.Fatalf("Expected UpstreamError, got %T: %v", err, err)
	}
	if upstreamErr.Status != http.StatusServiceUnavailable {
		t.Errorf("Expected status 503, got %d", upstreamErr.Status)
	}
	if upstreamErr.Body != `{"error":"down"}` {
		t.Errorf("Expected error body to be carried, got %q", upstreamErr.Body)
	}
}

func TestClient_AuthErrorWhenTokenEndpointFails(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth/token", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"access_denied"}`))
	})
	var apiRequests atomic.Int64
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		apiRequests.Add(1)
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	client, err := New(Config{
		ClientID:     "test-client",
		ClientSecret: "bad-secret",
		APIBaseURL:   server.URL,
		AuthBaseURL:  server.URL,
	}, testLogger())
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	_, err = client.GetConversation(context.Background(), "cloud-1", "conv-1")
	var authErr *AuthError
	if !errors.As(err, &authErr) {
		t.Fatalf("Expected AuthError, got %T: %v", err, err)
	}
	if apiRequests.Load() != 0 {
		t.Errorf("Expected no API request after token failure, got %d", apiRequests.Load())
	}
}

func TestClient_ReplyWithText(t *testing.T) {
	client, _ := newTestClient(t, nil, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/site/cloud-1/conversation/conv-1/message" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{}`))
	})

	payload := &WebhookPayload{
		CloudID:      "cloud-1",
		Conversation: WebhookConversation{ID: "conv-1"},
		Sender:       WebhookSender{ID: "u1", DisplayName: "Alice"},
	}
	if _, err := client.ReplyWithText(context.Background(), payload, "on it"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
}

func TestClient_ConvertDocToText(t *testing.T) {
	client, _ := newTestClient(t, nil, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/pf-editor-service/render" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Accept") != "text/plain" {
			t.Errorf("Expected Accept text/plain, got %q", r.Header.Get("Accept"))
		}
		w.Write([]byte("hello"))
	})

	text, err := client.ConvertDocToText(context.Background(), NewTextDocument("hello"))
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if text != "hello" {
		t.Errorf("Expected rendered text hello, got %q", text)
	}
}

func TestClient_SendPrivateMessage(t *testing.T) {
	client, _ := newTestClient(t, nil, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/site/cloud-1/conversation/user/u1/message" {
			t.Errorf("Unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{}`))
	})

	if _, err := client.SendPrivateMessage(context.Background(), "cloud-1", "u1", NewTextDocument("psst")); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
}
