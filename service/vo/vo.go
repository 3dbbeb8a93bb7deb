package vo

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
)

// NodeType discriminates TOC entries on the wire.
type NodeType string

const (
	NodeTypeGroup NodeType = "TITLE" // folder-like heading
	NodeTypeDoc   NodeType = "DOC"   // leaf referencing a document
)

// TocNode is one entry of a knowledge base's directory tree, as returned by
// the toc endpoint. The remote service assigns the uuid; it is stable within
// a book.
type TocNode struct {
	UUID    string   `json:"uuid"`
	Type    NodeType `json:"type"`
	Title   string   `json:"title"`
	URL     string   `json:"url,omitempty"`
	Slug    string   `json:"slug,omitempty"`
	DocID   int64    `json:"doc_id,omitempty"`
	Level   int      `json:"level,omitempty"`
	Visible int      `json:"visible"`
}

// IsGroup reports whether the node is a heading rather than a document leaf.
func (n TocNode) IsGroup() bool {
	return n.Type == NodeTypeGroup
}

// DocSummary is the per-document shape of the docs listing endpoint.
type DocSummary struct {
	ID          int64  `json:"id"`
	Slug        string `json:"slug"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Document is a full content entity owned by one knowledge base.
// Body holds markdown; BodyHTML is set for documents whose source format
// has no markdown rendition.
type Document struct {
	ID          int64  `json:"id"`
	Slug        string `json:"slug"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Format      string `json:"format,omitempty"`
	Public      int    `json:"public"`
	Body        string `json:"body,omitempty"`
	BodyHTML    string `json:"body_html,omitempty"`
	WordCount   int    `json:"word_count,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
	UpdatedAt   string `json:"updated_at,omitempty"`
}

// NodesFromTocWrite normalizes the payload of a toc write action. The remote
// service answers with either a single node object or a node list; both
// shapes are folded into a slice here so workflow code never branches on
// shape.
func NodesFromTocWrite(data json.RawMessage) ([]TocNode, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var nodes []TocNode
		if err := json.Unmarshal(data, &nodes); err != nil {
			return nil, fmt.Errorf("failed to decode toc node list: %w", err)
		}
		return nodes, nil
	}
	var node TocNode
	if err := json.Unmarshal(data, &node); err != nil {
		return nil, fmt.Errorf("failed to decode toc node: %w", err)
	}
	return []TocNode{node}, nil
}

// DocRef identifies a document for the detail lookup. FromURL tells the two
// variants apart: a reference parsed out of a full document URL carries its
// own space/group/book triple, while the literal fallback keeps the caller's
// input untouched in ID.
type DocRef struct {
	ID         string
	Space      string
	GroupLogin string
	BookSlug   string
	FromURL    bool
}

// ParseDocRef interprets raw as a full document URL when possible: the host's
// leading label becomes the space subdomain and the path's last three segments
// become group login, book slug, and document id. Anything that does not parse
// that way is returned as a literal document id. The fallback is intentional,
// not an error.
func ParseDocRef(raw string) DocRef {
	literal := DocRef{ID: raw}

	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return literal
	}

	label, _, _ := strings.Cut(u.Hostname(), ".")
	if label == "" {
		return literal
	}

	segments := make([]string, 0, 4)
	for _, s := range strings.Split(u.Path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	if len(segments) < 3 {
		return literal
	}

	return DocRef{
		ID:         segments[len(segments)-1],
		Space:      label,
		GroupLogin: segments[len(segments)-3],
		BookSlug:   segments[len(segments)-2],
		FromURL:    true,
	}
}
