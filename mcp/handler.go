package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/foomo/yuque-mcp/service"
	"github.com/foomo/yuque-mcp/service/vo"
	"github.com/foomo/yuque-mcp/yuque"
)

const Version = "0.0.1"

const (
	defaultListLimit = 100
	defaultPageSize  = 100
)

type DocListRequest struct {
	GroupLogin string `json:"group_login"` // Group login overriding the configured default
	BookSlug   string `json:"book_slug"`   // Book slug overriding the configured default
	Offset     int    `json:"offset"`      // Listing offset, defaults to 0
	Limit      int    `json:"limit"`       // Listing page size, defaults to 100
}

type CreateDocRequest struct {
	GroupName  string `json:"group_name"` // Title of the toc group to file the document under
	DocTitle   string `json:"doc_title"`  // Title of the new document
	DocBody    string `json:"doc_body"`   // Markdown body of the new document
	GroupLogin string `json:"group_login"`
	BookSlug   string `json:"book_slug"`
}

type CreateGroupRequest struct {
	Name       string `json:"name"` // Title of the toc group
	GroupLogin string `json:"group_login"`
	BookSlug   string `json:"book_slug"`
}

type DocDetailRequest struct {
	DocID      string `json:"doc_id"` // Document id, slug, or full document URL
	GroupLogin string `json:"group_login"`
	BookSlug   string `json:"book_slug"`
	Page       int    `json:"page"`      // Body page, defaults to 1
	PageSize   int    `json:"page_size"` // Body page size, defaults to 100
}

type TocRequest struct {
	GroupLogin string `json:"group_login"`
	BookSlug   string `json:"book_slug"`
}

// NewServer creates the MCP server with the five Yuque tools registered.
// Settings hold the process-wide defaults; every tool resolves its own scope
// per call and reports missing configuration instead of failing the protocol.
func NewServer(logger *zap.Logger, settings service.Settings, serviceInstance service.Service) *server.MCPServer {
	if logger == nil {
		logger = zap.NewNop()
	}

	s := server.NewMCPServer(
		"Yuque MCP",
		Version,
		server.WithToolCapabilities(false),
	)

	docListTool := mcp.NewTool("get_yuque_doc_list",
		mcp.WithDescription("List the documents of a Yuque knowledge base"),
		mcp.WithString("group_login",
			mcp.Description("Group login owning the knowledge base (defaults to the configured group)"),
		),
		mcp.WithString("book_slug",
			mcp.Description("Knowledge base slug (defaults to the configured book)"),
		),
		mcp.WithNumber("offset",
			mcp.Description("Number of documents to skip (defaults to 0)"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of documents to return (defaults to 100)"),
		),
	)
	s.AddTool(docListTool, mcp.NewTypedToolHandler(getDocListHandler(logger, settings, serviceInstance)))

	createDocTool := mcp.NewTool("create_yuque_doc_in_group",
		mcp.WithDescription("Create a markdown document inside a toc group of a Yuque knowledge base, creating the group first when it does not exist"),
		mcp.WithString("group_name",
			mcp.Required(),
			mcp.Description("Title of the toc group to file the document under"),
		),
		mcp.WithString("doc_title",
			mcp.Required(),
			mcp.Description("Title of the new document"),
		),
		mcp.WithString("doc_body",
			mcp.Required(),
			mcp.Description("Markdown body of the new document"),
		),
		mcp.WithString("group_login",
			mcp.Description("Group login owning the knowledge base (defaults to the configured group)"),
		),
		mcp.WithString("book_slug",
			mcp.Description("Knowledge base slug (defaults to the configured book)"),
		),
	)
	s.AddTool(createDocTool, mcp.NewTypedToolHandler(getCreateDocHandler(logger, settings, serviceInstance)))

	createGroupTool := mcp.NewTool("create_yuque_group",
		mcp.WithDescription("Create a toc group in a Yuque knowledge base unless a group with that title already exists"),
		mcp.WithString("name",
			mcp.Required(),
			mcp.Description("Title of the toc group"),
		),
		mcp.WithString("group_login",
			mcp.Description("Group login owning the knowledge base (defaults to the configured group)"),
		),
		mcp.WithString("book_slug",
			mcp.Description("Knowledge base slug (defaults to the configured book)"),
		),
	)
	s.AddTool(createGroupTool, mcp.NewTypedToolHandler(getCreateGroupHandler(logger, settings, serviceInstance)))

	docDetailTool := mcp.NewTool("get_yuque_doc_detail",
		mcp.WithDescription("Fetch one Yuque document with its markdown body"),
		mcp.WithString("doc_id",
			mcp.Required(),
			mcp.Description("Document id, slug, or full document URL (a URL brings its own space, group, and book)"),
		),
		mcp.WithString("group_login",
			mcp.Description("Group login owning the knowledge base (defaults to the configured group)"),
		),
		mcp.WithString("book_slug",
			mcp.Description("Knowledge base slug (defaults to the configured book)"),
		),
		mcp.WithNumber("page",
			mcp.Description("Body page to fetch (defaults to 1)"),
		),
		mcp.WithNumber("page_size",
			mcp.Description("Body page size (defaults to 100)"),
		),
	)
	s.AddTool(docDetailTool, mcp.NewTypedToolHandler(getDocDetailHandler(logger, settings, serviceInstance)))

	tocTool := mcp.NewTool("get_yuque_repo_toc",
		mcp.WithDescription("Dump the raw table of contents of a Yuque knowledge base as JSON"),
		mcp.WithString("group_login",
			mcp.Description("Group login owning the knowledge base (defaults to the configured group)"),
		),
		mcp.WithString("book_slug",
			mcp.Description("Knowledge base slug (defaults to the configured book)"),
		),
	)
	s.AddTool(tocTool, mcp.NewTypedToolHandler(getTocHandler(logger, settings, serviceInstance)))

	return s
}

// toolLogger tags the logger with the calling client's address when the tool
// call arrived over the HTTP transport. Stdio calls keep the logger as is.
func toolLogger(ctx context.Context, logger *zap.Logger) *zap.Logger {
	if req, ok := HTTPRequestFromContext(ctx); ok {
		return logger.With(zap.String("remote", req.RemoteAddr))
	}
	return logger
}

var missingConfigEnv = map[string]string{
	"space":       service.EnvSpace,
	"token":       service.EnvToken,
	"group_login": service.EnvGroupLogin,
	"book_slug":   service.EnvBookSlug,
}

// missingConfigResult renders the missing scope fields with their environment
// variables. It is the gate every handler passes before any remote call.
func missingConfigResult(missing []string) *mcp.CallToolResult {
	parts := make([]string, len(missing))
	for i, field := range missing {
		parts[i] = fmt.Sprintf("%s (set %s)", field, missingConfigEnv[field])
	}
	return mcp.NewToolResultError(
		"missing configuration: " + strings.Join(parts, ", ") +
			"; group_login and book_slug may also be passed as tool arguments",
	)
}

func getDocListHandler(logger *zap.Logger, settings service.Settings, serviceInstance service.Service) func(ctx context.Context, request mcp.CallToolRequest, args DocListRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest, args DocListRequest) (*mcp.CallToolResult, error) {
		scope := settings.Resolve(args.GroupLogin, args.BookSlug)
		if missing := scope.Missing(); len(missing) > 0 {
			return missingConfigResult(missing), nil
		}

		offset := args.Offset
		if offset < 0 {
			offset = 0
		}
		limit := args.Limit
		if limit <= 0 {
			limit = defaultListLimit
		}

		docs, err := serviceInstance.ListDocs(ctx, scope, offset, limit)
		if err != nil {
			toolLogger(ctx, logger).Warn("doc list failed", zap.String("namespace", scope.Namespace()), zap.Error(err))
			return mcp.NewToolResultError(fmt.Sprintf("failed to list documents: %v", err)), nil
		}
		return mcp.NewToolResultText(formatDocList(scope, docs)), nil
	}
}

func getCreateDocHandler(logger *zap.Logger, settings service.Settings, serviceInstance service.Service) func(ctx context.Context, request mcp.CallToolRequest, args CreateDocRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest, args CreateDocRequest) (*mcp.CallToolResult, error) {
		if args.GroupName == "" {
			return mcp.NewToolResultError("group_name is required"), nil
		}
		if args.DocTitle == "" {
			return mcp.NewToolResultError("doc_title is required"), nil
		}
		if args.DocBody == "" {
			return mcp.NewToolResultError("doc_body is required"), nil
		}
		scope := settings.Resolve(args.GroupLogin, args.BookSlug)
		if missing := scope.Missing(); len(missing) > 0 {
			return missingConfigResult(missing), nil
		}

		doc, err := serviceInstance.CreateDocInGroup(ctx, scope, args.GroupName, args.DocTitle, args.DocBody)
		if err != nil {
			log := toolLogger(ctx, logger)
			var attachErr *service.AttachError
			if errors.As(err, &attachErr) {
				log.Warn("document created but not attached",
					zap.Int64("id", attachErr.Doc.ID),
					zap.String("group", attachErr.GroupName),
					zap.Error(attachErr.Err),
				)
				return mcp.NewToolResultError(fmt.Sprintf(
					"document %q (id: %d) was created but could not be attached to group %q: %v",
					attachErr.Doc.Title, attachErr.Doc.ID, attachErr.GroupName, attachErr.Err,
				)), nil
			}
			log.Warn("doc creation failed", zap.String("title", args.DocTitle), zap.Error(err))
			return mcp.NewToolResultError(fmt.Sprintf("failed to create document: %v", err)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf(
			"Created document %q (id: %d) in group %q of %s.",
			doc.Title, doc.ID, args.GroupName, scope.Namespace(),
		)), nil
	}
}

func getCreateGroupHandler(logger *zap.Logger, settings service.Settings, serviceInstance service.Service) func(ctx context.Context, request mcp.CallToolRequest, args CreateGroupRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest, args CreateGroupRequest) (*mcp.CallToolResult, error) {
		if args.Name == "" {
			return mcp.NewToolResultError("name is required"), nil
		}
		scope := settings.Resolve(args.GroupLogin, args.BookSlug)
		if missing := scope.Missing(); len(missing) > 0 {
			return missingConfigResult(missing), nil
		}

		node, created, err := serviceInstance.EnsureGroup(ctx, scope, args.Name)
		if err != nil {
			toolLogger(ctx, logger).Warn("group creation failed", zap.String("name", args.Name), zap.Error(err))
			return mcp.NewToolResultError(fmt.Sprintf("failed to create group: %v", err)), nil
		}
		if !created {
			return mcp.NewToolResultText(fmt.Sprintf(
				"Group %q already exists in %s (uuid: %s).",
				args.Name, scope.Namespace(), node.UUID,
			)), nil
		}
		return mcp.NewToolResultText(fmt.Sprintf(
			"Created group %q in %s (uuid: %s).",
			args.Name, scope.Namespace(), node.UUID,
		)), nil
	}
}

func getDocDetailHandler(logger *zap.Logger, settings service.Settings, serviceInstance service.Service) func(ctx context.Context, request mcp.CallToolRequest, args DocDetailRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest, args DocDetailRequest) (*mcp.CallToolResult, error) {
		if args.DocID == "" {
			return mcp.NewToolResultError("doc_id is required"), nil
		}

		ref := vo.ParseDocRef(args.DocID)
		scope := settings.Resolve(args.GroupLogin, args.BookSlug)
		if ref.FromURL {
			scope.Space = ref.Space
			scope.GroupLogin = ref.GroupLogin
			scope.BookSlug = ref.BookSlug
		}
		if missing := scope.Missing(); len(missing) > 0 {
			return missingConfigResult(missing), nil
		}

		page := args.Page
		if page <= 0 {
			page = 1
		}
		pageSize := args.PageSize
		if pageSize <= 0 {
			pageSize = defaultPageSize
		}

		doc, err := serviceInstance.GetDoc(ctx, scope, ref.ID, page, pageSize)
		if err != nil {
			toolLogger(ctx, logger).Warn("doc detail failed", zap.String("doc", ref.ID), zap.Error(err))
			return mcp.NewToolResultError(fmt.Sprintf("failed to get document: %v", err)), nil
		}
		return mcp.NewToolResultText(formatDoc(doc)), nil
	}
}

func getTocHandler(logger *zap.Logger, settings service.Settings, serviceInstance service.Service) func(ctx context.Context, request mcp.CallToolRequest, args TocRequest) (*mcp.CallToolResult, error) {
	return func(ctx context.Context, request mcp.CallToolRequest, args TocRequest) (*mcp.CallToolResult, error) {
		scope := settings.Resolve(args.GroupLogin, args.BookSlug)
		if missing := scope.Missing(); len(missing) > 0 {
			return missingConfigResult(missing), nil
		}

		raw, err := serviceInstance.GetTOC(ctx, scope)
		if err != nil {
			toolLogger(ctx, logger).Warn("toc dump failed", zap.String("namespace", scope.Namespace()), zap.Error(err))
			return mcp.NewToolResultError(fmt.Sprintf("failed to get toc: %v", err)), nil
		}
		if len(raw) == 0 {
			return mcp.NewToolResultText("[]"), nil
		}
		return mcp.NewToolResultText(string(raw)), nil
	}
}

func formatDocList(scope yuque.Scope, docs []vo.DocSummary) string {
	if len(docs) == 0 {
		return fmt.Sprintf("No documents found in %s.", scope.Namespace())
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Documents in %s:\n\n", scope.Namespace())
	for _, doc := range docs {
		fmt.Fprintf(&b, "- %s (id: %d)\n", doc.Title, doc.ID)
	}
	return b.String()
}

func formatDoc(doc *vo.Document) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", doc.Title)
	fmt.Fprintf(&b, "id: %d\n", doc.ID)
	if doc.Slug != "" {
		fmt.Fprintf(&b, "slug: %s\n", doc.Slug)
	}
	if doc.WordCount > 0 {
		fmt.Fprintf(&b, "words: %d\n", doc.WordCount)
	}
	body := doc.Body
	if body == "" {
		body = doc.Description
	}
	if body != "" {
		b.WriteString("\n")
		b.WriteString(body)
		if !strings.HasSuffix(body, "\n") {
			b.WriteString("\n")
		}
	}
	return b.String()
}
