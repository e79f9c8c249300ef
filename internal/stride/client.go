package stride

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// Environment selects the production or staging Stride API hosts.
type Environment string

const (
	EnvProduction Environment = "production"
	EnvStaging    Environment = "staging"
)

const (
	prodAPIBaseURL  = "https://api.atlassian.com"
	prodAuthBaseURL = "https://auth.atlassian.com"
	prodAudience    = "api.atlassian.com"

	stagingAPIBaseURL  = "https://api.stg.atlassian.com"
	stagingAuthBaseURL = "https://atlassian-account-stg.pus2.auth0.com"
	stagingAudience    = "api.stg.atlassian.com"
)

// historyPageSize is the fixed page size for conversation history.
const historyPageSize = 5

// Config contains the credentials and environment for a Client. APIBaseURL
// and AuthBaseURL override the environment defaults when set; tests point
// them at local servers.
type Config struct {
	ClientID     string
	ClientSecret string
	Environment  Environment
	APIBaseURL   string
	AuthBaseURL  string
}

// Client is a typed wrapper over the Stride REST API. All methods obtain a
// bearer token from the internal token cache before issuing the request.
type Client struct {
	baseURL    string
	httpClient *http.Client
	tokens     *tokenCache
	logger     *slog.Logger
}

// New creates a Stride API client.
func New(config Config, logger *slog.Logger) (*Client, error) {
	if config.ClientID == "" {
		return nil, &ValidationError{Op: "new", Param: "clientId"}
	}
	if config.ClientSecret == "" {
		return nil, &ValidationError{Op: "new", Param: "clientSecret"}
	}

	baseURL := config.APIBaseURL
	authBaseURL := config.AuthBaseURL
	audience := prodAudience
	if config.Environment == EnvStaging {
		audience = stagingAudience
	}
	if baseURL == "" {
		baseURL = prodAPIBaseURL
		if config.Environment == EnvStaging {
			baseURL = stagingAPIBaseURL
		}
	}
	if authBaseURL == "" {
		authBaseURL = prodAuthBaseURL
		if config.Environment == EnvStaging {
			authBaseURL = stagingAuthBaseURL
		}
	}

	httpClient := &http.Client{
		Timeout: 30 * time.Second,
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		tokens:     newTokenCache(config.ClientID, config.ClientSecret, authBaseURL, audience, httpClient, logger),
		logger:     logger,
	}, nil
}

// AccessToken returns a valid bearer token, refreshing the cached one if
// it is near expiry.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	return c.tokens.token(ctx)
}

// Conversation is the metadata of a room.
type Conversation struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Topic      string `json:"topic"`
	Privacy    string `json:"privacy"`
	IsArchived bool   `json:"isArchived"`
}

// HistoryPage is one page of conversation messages, newest last.
type HistoryPage struct {
	Messages []json.RawMessage `json:"messages"`
}

// Roster lists the user IDs of a conversation's members.
type Roster struct {
	Values []string `json:"values"`
}

// User is a profile from the SCIM users endpoint.
type User struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	UserName    string `json:"userName"`
	Active      bool   `json:"active"`
}

// MediaUpload is the result of a media upload.
type MediaUpload struct {
	Data struct {
		ID string `json:"id"`
	} `json:"data"`
}

// SendMessage posts a document to a conversation.
func (c *Client) SendMessage(ctx context.Context, cloudID, conversationID string, document *Document) (json.RawMessage, error) {
	const op = "sendMessage"
	if cloudID == "" {
		return nil, &ValidationError{Op: op, Param: "cloudId"}
	}
	if conversationID == "" {
		return nil, &ValidationError{Op: op, Param: "conversationId"}
	}
	if document == nil {
		return nil, &ValidationError{Op: op, Param: "document"}
	}
	if err := document.Validate(); err != nil {
		return nil, &ValidationError{Op: op, Param: "document"}
	}

	path := "/site/" + cloudID + "/conversation/" + conversationID + "/message"
	var result json.RawMessage
	if err := c.doJSON(ctx, op, http.MethodPost, path, messageBody{Body: document}, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// SendPrivateMessage posts a document directly to a user.
func (c *Client) SendPrivateMessage(ctx context.Context, cloudID, userID string, document *Document) (json.RawMessage, error) {
	const op = "sendPrivateMessage"
	if cloudID == "" {
		return nil, &ValidationError{Op: op, Param: "cloudId"}
	}
	if userID == "" {
		return nil, &ValidationError{Op: op, Param: "userId"}
	}
	if document == nil {
		return nil, &ValidationError{Op: op, Param: "document"}
	}
	if err := document.Validate(); err != nil {
		return nil, &ValidationError{Op: op, Param: "document"}
	}

	path := "/site/" + cloudID + "/conversation/user/" + userID + "/message"
	var result json.RawMessage
	if err := c.doJSON(ctx, op, http.MethodPost, path, messageBody{Body: document}, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GetConversation retrieves a conversation's metadata.
func (c *Client) GetConversation(ctx context.Context, cloudID, conversationID string) (*Conversation, error) {
	const op = "getConversation"
	if cloudID == "" {
		return nil, &ValidationError{Op: op, Param: "cloudId"}
	}
	if conversationID == "" {
		return nil, &ValidationError{Op: op, Param: "conversationId"}
	}

	path := "/site/" + cloudID + "/conversation/" + conversationID
	var conversation Conversation
	if err := c.doJSON(ctx, op, http.MethodGet, path, nil, &conversation); err != nil {
		return nil, err
	}
	return &conversation, nil
}

// CreateConversation creates a room. Privacy defaults to "public" and
// topic to empty.
func (c *Client) CreateConversation(ctx context.Context, cloudID, name, privacy, topic string) (*Conversation, error) {
	const op = "createConversation"
	if cloudID == "" {
		return nil, &ValidationError{Op: op, Param: "cloudId"}
	}
	if name == "" {
		return nil, &ValidationError{Op: op, Param: "name"}
	}
	if privacy == "" {
		privacy = "public"
	}

	body := struct {
		Name    string `json:"name"`
		Privacy string `json:"privacy"`
		Topic   string `json:"topic"`
	}{Name: name, Privacy: privacy, Topic: topic}

	path := "/site/" + cloudID + "/conversation"
	var conversation Conversation
	if err := c.doJSON(ctx, op, http.MethodPost, path, body, &conversation); err != nil {
		return nil, err
	}
	return &conversation, nil
}

// ArchiveConversation archives a room.
func (c *Client) ArchiveConversation(ctx context.Context, cloudID, conversationID string) error {
	const op = "archiveConversation"
	if cloudID == "" {
		return &ValidationError{Op: op, Param: "cloudId"}
	}
	if conversationID == "" {
		return &ValidationError{Op: op, Param: "conversationId"}
	}

	path := "/site/" + cloudID + "/conversation/" + conversationID + "/archive"
	return c.doJSON(ctx, op, http.MethodPut, path, nil, nil)
}

// GetConversationHistory retrieves the last few messages of a
// conversation.
func (c *Client) GetConversationHistory(ctx context.Context, cloudID, conversationID string) (*HistoryPage, error) {
	const op = "getConversationHistory"
	if cloudID == "" {
		return nil, &ValidationError{Op: op, Param: "cloudId"}
	}
	if conversationID == "" {
		return nil, &ValidationError{Op: op, Param: "conversationId"}
	}

	path := fmt.Sprintf("/site/%s/conversation/%s/message?limit=%d", cloudID, conversationID, historyPageSize)
	var page HistoryPage
	if err := c.doJSON(ctx, op, http.MethodGet, path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// GetConversationRoster retrieves the member user IDs of a conversation.
func (c *Client) GetConversationRoster(ctx context.Context, cloudID, conversationID string) (*Roster, error) {
	const op = "getConversationRoster"
	if cloudID == "" {
		return nil, &ValidationError{Op: op, Param: "cloudId"}
	}
	if conversationID == "" {
		return nil, &ValidationError{Op: op, Param: "conversationId"}
	}

	path := "/site/" + cloudID + "/conversation/" + conversationID + "/roster"
	var roster Roster
	if err := c.doJSON(ctx, op, http.MethodGet, path, nil, &roster); err != nil {
		return nil, err
	}
	return &roster, nil
}

// GetUser retrieves a user profile.
func (c *Client) GetUser(ctx context.Context, cloudID, userID string) (*User, error) {
	const op = "getUser"
	if cloudID == "" {
		return nil, &ValidationError{Op: op, Param: "cloudId"}
	}
	if userID == "" {
		return nil, &ValidationError{Op: op, Param: "userId"}
	}

	path := "/scim/site/" + cloudID + "/Users/" + userID
	var user User
	if err := c.doJSON(ctx, op, http.MethodGet, path, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// SendMedia uploads a file to a conversation as an octet stream. The
// returned media ID can be referenced from a mediaGroup node.
func (c *Client) SendMedia(ctx context.Context, cloudID, conversationID, fileName string, content io.Reader) (*MediaUpload, error) {
	const op = "sendMedia"
	if cloudID == "" {
		return nil, &ValidationError{Op: op, Param: "cloudId"}
	}
	if conversationID == "" {
		return nil, &ValidationError{Op: op, Param: "conversationId"}
	}
	if fileName == "" {
		return nil, &ValidationError{Op: op, Param: "name"}
	}
	if content == nil {
		return nil, &ValidationError{Op: op, Param: "stream"}
	}

	path := "/site/" + cloudID + "/conversation/" + conversationID + "/media?name=" + url.QueryEscape(fileName)
	req, err := c.newRequest(ctx, op, http.MethodPost, path, content)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	respBody, err := c.do(op, req)
	if err != nil {
		return nil, err
	}

	var upload MediaUpload
	if err := json.Unmarshal(respBody, &upload); err != nil {
		return nil, &UpstreamError{Op: op, Err: fmt.Errorf("failed to unmarshal response: %w", err)}
	}
	return &upload, nil
}

// UpdateGlanceState updates the glance badge shown in a conversation's
// sidebar.
func (c *Client) UpdateGlanceState(ctx context.Context, cloudID, conversationID, glanceKey, labelText string) error {
	const op = "updateGlanceState"
	if cloudID == "" {
		return &ValidationError{Op: op, Param: "cloudId"}
	}
	if conversationID == "" {
		return &ValidationError{Op: op, Param: "conversationId"}
	}
	if glanceKey == "" {
		return &ValidationError{Op: op, Param: "glanceKey"}
	}
	if labelText == "" {
		return &ValidationError{Op: op, Param: "stateTxt"}
	}

	body := struct {
		Context  stateContext   `json:"context"`
		Label    string         `json:"label"`
		Metadata map[string]any `json:"metadata"`
	}{
		Context:  stateContext{CloudID: cloudID, ConversationID: conversationID},
		Label:    labelText,
		Metadata: map[string]any{},
	}

	path := "/app/module/chat/conversation/chat:glance/" + glanceKey + "/state"
	return c.doJSON(ctx, op, http.MethodPost, path, body, nil)
}

// UpdateConfigurationState marks the app as configured or not for a
// conversation.
func (c *Client) UpdateConfigurationState(ctx context.Context, cloudID, conversationID, configKey string, configured bool) error {
	const op = "updateConfigurationState"
	if cloudID == "" {
		return &ValidationError{Op: op, Param: "cloudId"}
	}
	if conversationID == "" {
		return &ValidationError{Op: op, Param: "conversationId"}
	}
	if configKey == "" {
		return &ValidationError{Op: op, Param: "configKey"}
	}

	body := struct {
		Context    stateContext `json:"context"`
		Configured bool         `json:"configured"`
	}{
		Context:    stateContext{CloudID: cloudID, ConversationID: conversationID},
		Configured: configured,
	}

	path := "/app/module/chat/conversation/chat:configuration/" + configKey + "/state"
	return c.doJSON(ctx, op, http.MethodPost, path, body, nil)
}

type messageBody struct {
	Body *Document `json:"body"`
}

type stateContext struct {
	CloudID        string `json:"cloudId"`
	ConversationID string `json:"conversationId"`
}

// newRequest builds an authenticated request against the API base URL.
func (c *Client) newRequest(ctx context.Context, op, method, path string, body io.Reader) (*http.Request, error) {
	token, err := c.tokens.token(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, &UpstreamError{Op: op, Err: fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("cache-control", "no-cache")
	return req, nil
}

// doJSON performs a JSON request and unmarshals the response into result
// when it is non-nil.
func (c *Client) doJSON(ctx context.Context, op, method, path string, body interface{}, result interface{}) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return &UpstreamError{Op: op, Err: fmt.Errorf("failed to marshal request: %w", err)}
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, op, method, path, reqBody)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	respBody, err := c.do(op, req)
	if err != nil {
		return err
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return &UpstreamError{Op: op, Err: fmt.Errorf("failed to unmarshal response: %w", err)}
		}
	}
	return nil
}

// do issues the request and maps transport failures and non-2xx responses
// to UpstreamError.
func (c *Client) do(op string, req *http.Request) ([]byte, error) {
	c.logger.Debug("API request",
		"component", "stride",
		"method", req.Method,
		"url", req.URL.String(),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UpstreamError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UpstreamError{Op: op, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UpstreamError{Op: op, Status: resp.StatusCode, Body: string(respBody)}
	}

	return respBody, nil
}
