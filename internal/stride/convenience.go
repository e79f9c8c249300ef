package stride

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
)

// CallContext is the trusted tenant/conversation/user context extracted
// from a verified inbound webhook token. It lives for one request.
type CallContext struct {
	CloudID        string
	ConversationID string
	UserID         string
}

// WebhookPayload is the body Stride posts to webhook routes.
type WebhookPayload struct {
	CloudID      string              `json:"cloudId"`
	Conversation WebhookConversation `json:"conversation"`
	Sender       WebhookSender       `json:"sender"`
	Message      WebhookMessage      `json:"message"`
}

// WebhookConversation identifies the conversation a webhook fired in.
type WebhookConversation struct {
	ID string `json:"id"`
}

// WebhookSender identifies the user who triggered a webhook.
type WebhookSender struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// WebhookMessage carries the message that triggered a webhook.
type WebhookMessage struct {
	Text string    `json:"text"`
	Body *Document `json:"body,omitempty"`
}

// SendTextMessage wraps plain text in the minimal document form and posts
// it to a conversation.
func (c *Client) SendTextMessage(ctx context.Context, cloudID, conversationID, text string) (json.RawMessage, error) {
	const op = "sendTextMessage"
	if cloudID == "" {
		return nil, &ValidationError{Op: op, Param: "cloudId"}
	}
	if conversationID == "" {
		return nil, &ValidationError{Op: op, Param: "conversationId"}
	}
	if text == "" {
		return nil, &ValidationError{Op: op, Param: "text"}
	}

	return c.SendMessage(ctx, cloudID, conversationID, NewTextDocument(text))
}

// CreateDocMentioningUser resolves the user then builds a one-paragraph
// document from the text, replacing every {{MENTION}} placeholder with a
// mention of that user. Text without a placeholder yields a single text
// node.
func (c *Client) CreateDocMentioningUser(ctx context.Context, cloudID, userID, text string) (*Document, error) {
	const op = "createDocMentioningUser"
	if cloudID == "" {
		return nil, &ValidationError{Op: op, Param: "cloudId"}
	}
	if userID == "" {
		return nil, &ValidationError{Op: op, Param: "userId"}
	}
	if text == "" {
		return nil, &ValidationError{Op: op, Param: "text"}
	}

	user, err := c.GetUser(ctx, cloudID, userID)
	if err != nil {
		return nil, err
	}

	return documentMentioning(text, MentionNode(user.ID, user.DisplayName)), nil
}

// Reply posts a document back to the conversation a webhook fired in.
func (c *Client) Reply(ctx context.Context, message *WebhookPayload, document *Document) (json.RawMessage, error) {
	const op = "reply"
	if message == nil {
		return nil, &ValidationError{Op: op, Param: "message"}
	}
	if document == nil {
		return nil, &ValidationError{Op: op, Param: "document"}
	}

	return c.SendMessage(ctx, message.CloudID, message.Conversation.ID, document)
}

// ReplyWithText posts plain text back to the conversation a webhook fired
// in.
func (c *Client) ReplyWithText(ctx context.Context, message *WebhookPayload, text string) (json.RawMessage, error) {
	const op = "replyWithText"
	if message == nil {
		return nil, &ValidationError{Op: op, Param: "message"}
	}
	if text == "" {
		return nil, &ValidationError{Op: op, Param: "text"}
	}

	return c.SendTextMessage(ctx, message.CloudID, message.Conversation.ID, text)
}

// ConvertDocToText renders a document to plain text via the editor
// service.
func (c *Client) ConvertDocToText(ctx context.Context, document *Document) (string, error) {
	const op = "convertDocToText"
	if document == nil {
		return "", &ValidationError{Op: op, Param: "document"}
	}

	data, err := json.Marshal(document)
	if err != nil {
		return "", &UpstreamError{Op: op, Err: err}
	}

	req, err := c.newRequest(ctx, op, http.MethodPost, "/pf-editor-service/render", bytes.NewReader(data))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/plain")

	respBody, err := c.do(op, req)
	if err != nil {
		return "", err
	}
	return string(respBody), nil
}
