package stride

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Node types of the Atlassian document format subset used by Stride
// messages.
const (
	NodeDoc             = "doc"
	NodeParagraph       = "paragraph"
	NodeText            = "text"
	NodeBulletList      = "bulletList"
	NodeListItem        = "listItem"
	NodeCodeBlock       = "codeBlock"
	NodePanel           = "panel"
	NodeApplicationCard = "applicationCard"
	NodeMediaGroup      = "mediaGroup"
	NodeMedia           = "media"
	NodeMention         = "mention"
)

// Mark types that can decorate a text node.
const (
	MarkStrong  = "strong"
	MarkEm      = "em"
	MarkStrike  = "strike"
	MarkCode    = "code"
	MarkLink    = "link"
	MarkMention = "mention"
	MarkEmoji   = "emoji"
)

const documentVersion = 1

var validNodeTypes = map[string]bool{
	NodeParagraph:       true,
	NodeText:            true,
	NodeBulletList:      true,
	NodeListItem:        true,
	NodeCodeBlock:       true,
	NodePanel:           true,
	NodeApplicationCard: true,
	NodeMediaGroup:      true,
	NodeMedia:           true,
	NodeMention:         true,
}

var validMarkTypes = map[string]bool{
	MarkStrong:  true,
	MarkEm:      true,
	MarkStrike:  true,
	MarkCode:    true,
	MarkLink:    true,
	MarkMention: true,
	MarkEmoji:   true,
}

// Document is the body of a rich message. The wire shape is always
// {"version":1,"type":"doc","content":[...]}.
type Document struct {
	Version int    `json:"version"`
	Type    string `json:"type"`
	Content []Node `json:"content"`
}

// Node is a single element of a document tree.
type Node struct {
	Type    string `json:"type"`
	Text    string `json:"text,omitempty"`
	Marks   []Mark `json:"marks,omitempty"`
	Attrs   *Attrs `json:"attrs,omitempty"`
	Content []Node `json:"content,omitempty"`
}

// Mark decorates a text node (bold, italics, link, ...).
type Mark struct {
	Type  string     `json:"type"`
	Attrs *MarkAttrs `json:"attrs,omitempty"`
}

// MarkAttrs carries link attributes.
type MarkAttrs struct {
	Href  string `json:"href,omitempty"`
	Title string `json:"title,omitempty"`
}

// Attrs carries per-node attributes. Which fields apply depends on the
// node type: mention uses ID/Text, codeBlock uses Language, panel uses
// PanelType, media uses ID/MediaType/Collection, applicationCard uses the
// card fields.
type Attrs struct {
	ID   string `json:"id,omitempty"`
	Text string `json:"text,omitempty"`

	Language  string `json:"language,omitempty"`
	PanelType string `json:"panelType,omitempty"`

	MediaType  string `json:"type,omitempty"`
	Collection string `json:"collection,omitempty"`

	Link        *CardLink    `json:"link,omitempty"`
	Title       *CardText    `json:"title,omitempty"`
	Description *CardText    `json:"description,omitempty"`
	Details     []CardDetail `json:"details,omitempty"`
}

// CardLink is the target URL of an application card.
type CardLink struct {
	URL string `json:"url"`
}

// CardText is a text fragment of an application card.
type CardText struct {
	Text string `json:"text"`
}

// CardIcon is an icon shown on an application card detail.
type CardIcon struct {
	URL   string `json:"url"`
	Label string `json:"label,omitempty"`
}

// CardLozenge is a colored status badge on an application card detail.
type CardLozenge struct {
	Text       string `json:"text"`
	Appearance string `json:"appearance,omitempty"`
	Bold       bool   `json:"bold"`
}

// CardUser is a user avatar shown on an application card detail.
type CardUser struct {
	Icon CardIcon `json:"icon"`
}

// CardDetail is one attribute row of an application card.
type CardDetail struct {
	Icon    *CardIcon    `json:"icon,omitempty"`
	Title   string       `json:"title,omitempty"`
	Text    string       `json:"text"`
	Lozenge *CardLozenge `json:"lozenge,omitempty"`
	Users   []CardUser   `json:"users,omitempty"`
}

// NewDocument wraps the given top-level nodes in a document envelope.
func NewDocument(content ...Node) *Document {
	return &Document{
		Version: documentVersion,
		Type:    NodeDoc,
		Content: content,
	}
}

// NewTextDocument builds the minimal one-paragraph, one-text-node document
// for a plain-text message.
func NewTextDocument(text string) *Document {
	return NewDocument(Paragraph(TextNode(text)))
}

// Paragraph builds a paragraph node from child nodes.
func Paragraph(content ...Node) Node {
	return Node{Type: NodeParagraph, Content: content}
}

// TextNode builds a text node with optional marks.
func TextNode(text string, marks ...Mark) Node {
	return Node{Type: NodeText, Text: text, Marks: marks}
}

// MentionNode builds a mention of a user. The text is the user's display
// name as rendered in the client.
func MentionNode(userID, displayName string) Node {
	return Node{Type: NodeMention, Attrs: &Attrs{ID: userID, Text: displayName}}
}

// Validate checks the envelope and that every node and mark type is drawn
// from the known vocabulary.
func (d *Document) Validate() error {
	if d.Version != documentVersion {
		return fmt.Errorf("document version must be %d, got %d", documentVersion, d.Version)
	}
	if d.Type != NodeDoc {
		return fmt.Errorf("document type must be %q, got %q", NodeDoc, d.Type)
	}
	if d.Content == nil {
		return fmt.Errorf("document content is required")
	}
	for i := range d.Content {
		if err := validateNode(&d.Content[i]); err != nil {
			return err
		}
	}
	return nil
}

func validateNode(n *Node) error {
	if !validNodeTypes[n.Type] {
		return fmt.Errorf("unknown node type %q", n.Type)
	}
	for _, m := range n.Marks {
		if !validMarkTypes[m.Type] {
			return fmt.Errorf("unknown mark type %q", m.Type)
		}
	}
	for i := range n.Content {
		if err := validateNode(&n.Content[i]); err != nil {
			return err
		}
	}
	return nil
}

// ParseDocument decodes and validates a document from its wire JSON.
func ParseDocument(data []byte) (*Document, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse document: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// mentionPlaceholder marks where a mention node is spliced into a message
// template, e.g. "Hi {{MENTION}}, welcome".
const mentionPlaceholder = "{{MENTION}}"

// documentMentioning splits text on the mention placeholder and splices a
// mention node between the surrounding text fragments. Text without a
// placeholder yields a single text node.
func documentMentioning(text string, mention Node) *Document {
	parts := strings.Split(text, mentionPlaceholder)

	var content []Node
	for i, part := range parts {
		if part != "" {
			content = append(content, TextNode(part))
		}
		if i < len(parts)-1 {
			content = append(content, mention)
		}
	}

	return NewDocument(Node{Type: NodeParagraph, Content: content})
}
