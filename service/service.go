package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/foomo/yuque-mcp/service/vo"
	"github.com/foomo/yuque-mcp/yuque"
)

// ErrNoGroupUUID means the toc write went through but the response carried no
// uuid for the appended group, so the group cannot be used as an attachment
// target.
var ErrNoGroupUUID = errors.New("group created but response carried no uuid")

// ErrNoDocID means the document creation went through but the response
// carried no document id, so the document cannot be attached to the toc.
var ErrNoDocID = errors.New("document created but response carried no id")

// AttachError reports a document that was created but could not be attached
// to its group. The document exists in the knowledge base either way; callers
// must not treat this as a clean failure.
type AttachError struct {
	Doc       *vo.Document
	GroupName string
	Err       error
}

func (e *AttachError) Error() string {
	return fmt.Sprintf("document %q created but not attached to group %q: %v", e.Doc.Title, e.GroupName, e.Err)
}

func (e *AttachError) Unwrap() error {
	return e.Err
}

type Service interface {
	ListDocs(ctx context.Context, scope yuque.Scope, offset, limit int) ([]vo.DocSummary, error)
	EnsureGroup(ctx context.Context, scope yuque.Scope, name string) (*vo.TocNode, bool, error)
	CreateDocInGroup(ctx context.Context, scope yuque.Scope, groupName, title, body string) (*vo.Document, error)
	GetDoc(ctx context.Context, scope yuque.Scope, id string, page, pageSize int) (*vo.Document, error)
	GetTOC(ctx context.Context, scope yuque.Scope) (json.RawMessage, error)
}

type service struct {
	client *yuque.Client
	logger *zap.Logger
}

func NewService(
	httpClient *http.Client,
	baseURL string,
	logger *zap.Logger,
) Service {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &service{
		client: yuque.NewClient(httpClient, baseURL, logger),
		logger: logger,
	}
}

// toc write actions share one endpoint; the action payload decides what
// happens. appendNode with type TITLE adds a group heading, with type DOC it
// attaches existing documents under target_uuid.
type tocAppendGroup struct {
	Action     string      `json:"action"`
	ActionMode string      `json:"action_mode"`
	Type       vo.NodeType `json:"type"`
	Title      string      `json:"title"`
	Visible    int         `json:"visible"`
}

type tocAttachDoc struct {
	Action     string      `json:"action"`
	ActionMode string      `json:"action_mode"`
	Type       vo.NodeType `json:"type"`
	TargetUUID string      `json:"target_uuid"`
	DocIDs     []int64     `json:"doc_ids"`
	Visible    int         `json:"visible"`
}

type docCreate struct {
	Title  string `json:"title"`
	Body   string `json:"body"`
	Format string `json:"format"`
	Public int    `json:"public"`
}

func (s *service) ListDocs(ctx context.Context, scope yuque.Scope, offset, limit int) ([]vo.DocSummary, error) {
	query := url.Values{}
	query.Set("offset", strconv.Itoa(offset))
	query.Set("limit", strconv.Itoa(limit))

	data, err := s.client.Get(ctx, scope, "docs", query)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	var docs []vo.DocSummary
	if len(data) > 0 {
		if err := json.Unmarshal(data, &docs); err != nil {
			return nil, fmt.Errorf("failed to decode document list: %w", err)
		}
	}
	return docs, nil
}

// EnsureGroup returns the first toc heading whose title matches name exactly,
// creating it at top level when no heading matches. The second return value
// reports whether a create happened. Matching is case-sensitive and takes the
// toc in its served order; with duplicate titles the first one is canonical.
func (s *service) EnsureGroup(ctx context.Context, scope yuque.Scope, name string) (*vo.TocNode, bool, error) {
	data, err := s.client.Get(ctx, scope, "toc", nil)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load toc: %w", err)
	}
	var nodes []vo.TocNode
	if len(data) > 0 {
		if err := json.Unmarshal(data, &nodes); err != nil {
			return nil, false, fmt.Errorf("failed to decode toc: %w", err)
		}
	}
	for i := range nodes {
		if nodes[i].IsGroup() && nodes[i].Title == name {
			return &nodes[i], false, nil
		}
	}

	created, err := s.client.Put(ctx, scope, "toc", tocAppendGroup{
		Action:     "appendNode",
		ActionMode: "child",
		Type:       vo.NodeTypeGroup,
		Title:      name,
		Visible:    1,
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to create group %q: %w", name, err)
	}
	createdNodes, err := vo.NodesFromTocWrite(created)
	if err != nil {
		return nil, false, fmt.Errorf("failed to decode group creation response: %w", err)
	}
	if len(createdNodes) == 0 {
		return nil, false, ErrNoGroupUUID
	}
	// a full-list response has the appended node at the end
	node := createdNodes[len(createdNodes)-1]
	if node.UUID == "" {
		return nil, false, ErrNoGroupUUID
	}
	s.logger.Info("created toc group",
		zap.String("title", name),
		zap.String("uuid", node.UUID),
		zap.String("namespace", scope.Namespace()),
	)
	return &node, true, nil
}

// CreateDocInGroup creates a markdown document and files it under the named
// group, creating the group first when it does not exist yet. A failed group
// step aborts before any document is created. A failed attach step comes back
// as *AttachError because the document does exist by then.
func (s *service) CreateDocInGroup(ctx context.Context, scope yuque.Scope, groupName, title, body string) (*vo.Document, error) {
	group, _, err := s.EnsureGroup(ctx, scope, groupName)
	if err != nil {
		return nil, err
	}

	data, err := s.client.Post(ctx, scope, "docs", docCreate{
		Title:  title,
		Body:   body,
		Format: "markdown",
		Public: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create document %q: %w", title, err)
	}
	var doc vo.Document
	if len(data) > 0 {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to decode created document: %w", err)
		}
	}
	if doc.ID == 0 {
		return nil, ErrNoDocID
	}

	if _, err := s.client.Put(ctx, scope, "toc", tocAttachDoc{
		Action:     "appendNode",
		ActionMode: "child",
		Type:       vo.NodeTypeDoc,
		TargetUUID: group.UUID,
		DocIDs:     []int64{doc.ID},
		Visible:    1,
	}); err != nil {
		return nil, &AttachError{Doc: &doc, GroupName: groupName, Err: err}
	}

	s.logger.Info("created document",
		zap.Int64("id", doc.ID),
		zap.String("title", title),
		zap.String("group", groupName),
	)
	return &doc, nil
}

func (s *service) GetDoc(ctx context.Context, scope yuque.Scope, id string, page, pageSize int) (*vo.Document, error) {
	query := url.Values{}
	if page > 0 {
		query.Set("page", strconv.Itoa(page))
	}
	if pageSize > 0 {
		query.Set("page_size", strconv.Itoa(pageSize))
	}

	data, err := s.client.Get(ctx, scope, "docs/"+url.PathEscape(id), query)
	if err != nil {
		return nil, fmt.Errorf("failed to load document %q: %w", id, err)
	}
	var doc vo.Document
	if len(data) > 0 {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to decode document: %w", err)
		}
	}

	if doc.Body == "" && doc.BodyHTML != "" {
		markdown, err := markdownFromHTML(doc.BodyHTML)
		if err != nil {
			s.logger.Warn("failed to convert document html body",
				zap.Int64("id", doc.ID),
				zap.Error(err),
			)
		} else {
			doc.Body = markdown
		}
	}
	return &doc, nil
}

func (s *service) GetTOC(ctx context.Context, scope yuque.Scope) (json.RawMessage, error) {
	data, err := s.client.Get(ctx, scope, "toc", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to load toc: %w", err)
	}
	return data, nil
}

func markdownFromHTML(source string) (string, error) {
	doc, err := html.Parse(strings.NewReader(source))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}
	markdownBytes, err := htmltomarkdown.ConvertNode(doc)
	if err != nil {
		return "", fmt.Errorf("failed to convert HTML to markdown: %w", err)
	}
	return strings.TrimSpace(string(markdownBytes)), nil
}
