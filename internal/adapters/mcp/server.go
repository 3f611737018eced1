package mcpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kirillkom/grounded-rag/internal/core/domain"
	"github.com/kirillkom/grounded-rag/internal/core/ports"
)

const (
	serverName = "grounded-rag"

	toolAnswerQuestion = "answer_question"
	toolDocumentStatus = "document_status"
)

// Server exposes the answer pipeline and document status as MCP tools.
type Server struct {
	queryUC ports.QueryService
	docs    ports.DocumentReader
	mcp     *server.MCPServer
}

func NewServer(queryUC ports.QueryService, docs ports.DocumentReader, version string) *Server {
	s := &Server{
		queryUC: queryUC,
		docs:    docs,
		mcp:     server.NewMCPServer(serverName, version, server.WithToolCapabilities(false)),
	}

	s.mcp.AddTool(mcp.NewTool(toolAnswerQuestion,
		mcp.WithDescription("Answer a question from the ingested documents, citing evidence and checking the applicant's age against extracted constraints."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Question in natural language.")),
		mcp.WithNumber("age", mcp.Description("Applicant age. When set, an eligibility decision is returned.")),
		mcp.WithNumber("top_k_final", mcp.Description("Number of ranked fragments used for the answer.")),
	), s.handleAnswer)

	if docs != nil {
		s.mcp.AddTool(mcp.NewTool(toolDocumentStatus,
			mcp.WithDescription("Report the ingestion status of an uploaded document."),
			mcp.WithString("document_id", mcp.Required(), mcp.Description("Document id returned by the upload endpoint.")),
		), s.handleDocumentStatus)
	}
	return s
}

func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

func (s *Server) handleAnswer(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := request.RequireString("query")
	if err != nil || strings.TrimSpace(query) == "" {
		return mcp.NewToolResultError("query is required"), nil
	}

	req := domain.QueryRequest{Query: query}
	args := request.GetArguments()
	if _, ok := args["age"]; ok {
		age := request.GetFloat("age", -1)
		if age < 0 {
			return mcp.NewToolResultError("age must be a non-negative number"), nil
		}
		req.Facts = domain.ApplicantFacts{domain.FactAge: age}
	}
	if topK := request.GetInt("top_k_final", 0); topK > 0 {
		req.TopKFinal = topK
	}

	result, err := s.queryUC.Answer(ctx, req)
	if err != nil {
		slog.Warn("mcp_tool_failed", "tool", toolAnswerQuestion, "error", err)
		return mcp.NewToolResultError(toolErrorMessage(err)), nil
	}
	return jsonResult(result)
}

func (s *Server) handleDocumentStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("document_id")
	if err != nil || strings.TrimSpace(id) == "" {
		return mcp.NewToolResultError("document_id is required"), nil
	}
	doc, err := s.docs.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		return mcp.NewToolResultError(toolErrorMessage(err)), nil
	}
	return jsonResult(doc)
}

func toolErrorMessage(err error) string {
	switch {
	case domain.IsKind(err, domain.ErrInvalidInput):
		return "invalid input: " + err.Error()
	case domain.IsKind(err, domain.ErrDocumentNotFound):
		return "document not found"
	case domain.IsKind(err, domain.ErrRetrievalUnavailable), domain.IsKind(err, domain.ErrTemporary):
		return "document search is temporarily unavailable, retry later"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "request cancelled"
	default:
		return "internal error"
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal tool result: %w", err)
	}
	return mcp.NewToolResultText(string(raw)), nil
}
