// Package mcp exposes bead capture and state tools to an assistant over MCP.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/rcliao/nexa/internal/beads"
	"github.com/rcliao/nexa/internal/state"
)

// Deps are the stores the tools operate on.
type Deps struct {
	Repo  *beads.Repository
	State *state.Store
}

// NewServer builds an MCP server with every tool registered.
func NewServer(version string, d Deps) *server.MCPServer {
	s := server.NewMCPServer(
		"nexa",
		version,
		server.WithToolCapabilities(true),
	)
	RegisterTools(s, d)
	return s
}

// RegisterTools adds the bead and state tools to s.
func RegisterTools(s *server.MCPServer, d Deps) {
	s.AddTool(addInsightTool(), addInsightHandler(d.Repo))
	s.AddTool(addDecisionTool(), addDecisionHandler(d.Repo))
	s.AddTool(rateOutputTool(), rateOutputHandler(d.Repo))
	s.AddTool(checkBeadsTool(), checkBeadsHandler(d.Repo))
	s.AddTool(repairBeadsTool(), repairBeadsHandler(d.Repo))
	s.AddTool(qualityTrendTool(), qualityTrendHandler(d.Repo))
	s.AddTool(sessionContextTool(), sessionContextHandler(d.Repo))
	s.AddTool(stateStatusTool(), stateStatusHandler(d.State))
	s.AddTool(setNextActionTool(), setNextActionHandler(d.State))
}

// --- add_insight ---

func addInsightTool() mcp.Tool {
	return mcp.NewTool("add_insight",
		mcp.WithDescription("Record an insight bead in the project ledger."),
		mcp.WithString("content",
			mcp.Description("The insight itself"),
			mcp.Required(),
		),
		mcp.WithString("source",
			mcp.Description("Skill, session or document that produced it"),
			mcp.Required(),
		),
		mcp.WithString("tags",
			mcp.Description("Comma-separated tags"),
		),
		mcp.WithString("confidence",
			mcp.Description("high, medium or low (default medium)"),
			mcp.Enum("high", "medium", "low"),
		),
		mcp.WithString("connections",
			mcp.Description("Comma-separated ids of related beads"),
		),
	)
}

func addInsightHandler(repo *beads.Repository) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		b, err := repo.CreateInsight(ctx, beads.InsightParams{
			Content:     req.GetString("content", ""),
			Source:      req.GetString("source", ""),
			Tags:        splitList(req.GetString("tags", "")),
			Confidence:  req.GetString("confidence", ""),
			Connections: splitList(req.GetString("connections", "")),
		})
		if err != nil {
			return toolError(err)
		}
		return jsonResult(b)
	}
}

// --- add_decision ---

func addDecisionTool() mcp.Tool {
	return mcp.NewTool("add_decision",
		mcp.WithDescription("Record a decision bead, optionally pointing at the decision document."),
		mcp.WithString("content",
			mcp.Description("What was decided"),
			mcp.Required(),
		),
		mcp.WithString("source",
			mcp.Description("Skill or session that made the decision"),
			mcp.Required(),
		),
		mcp.WithString("path",
			mcp.Description("Path of the decision document"),
		),
		mcp.WithString("tags",
			mcp.Description("Comma-separated tags"),
		),
	)
}

func addDecisionHandler(repo *beads.Repository) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		b, err := repo.CreateDecision(ctx, beads.DecisionParams{
			Content:      req.GetString("content", ""),
			Source:       req.GetString("source", ""),
			DecisionPath: req.GetString("path", ""),
			Tags:         splitList(req.GetString("tags", "")),
		})
		if err != nil {
			return toolError(err)
		}
		return jsonResult(b)
	}
}

// --- rate_output ---

func rateOutputTool() mcp.Tool {
	return mcp.NewTool("rate_output",
		mcp.WithDescription("Rate a generated output from 1 (poor) to 5 (excellent)."),
		mcp.WithString("skill",
			mcp.Description("Skill that produced the output"),
			mcp.Required(),
		),
		mcp.WithNumber("rating",
			mcp.Description("Rating from 1 to 5"),
			mcp.Required(),
		),
		mcp.WithString("output_file",
			mcp.Description("Path of the rated output"),
		),
		mcp.WithString("feedback",
			mcp.Description("Optional free-text feedback"),
		),
	)
}

func rateOutputHandler(repo *beads.Repository) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		b, err := repo.CreateRating(ctx, beads.RatingParams{
			OutputFile: req.GetString("output_file", ""),
			Skill:      req.GetString("skill", ""),
			Rating:     req.GetInt("rating", 0),
			Feedback:   req.GetString("feedback", ""),
		})
		if err != nil {
			return toolError(err)
		}
		return jsonResult(b)
	}
}

// --- check_beads ---

func checkBeadsTool() mcp.Tool {
	return mcp.NewTool("check_beads",
		mcp.WithDescription("Scan the ledger and report corrupted lines without changing it."),
	)
}

func checkBeadsHandler(repo *beads.Repository) server.ToolHandlerFunc {
	return func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res, err := repo.Ledger().ReadSafe()
		if err != nil {
			return toolError(err)
		}
		return jsonResult(map[string]any{
			"valid":               len(res.Beads),
			"corrupted_lines":     res.CorruptedLines,
			"total_lines":         res.TotalLines,
			"corruption_detected": res.CorruptionDetected,
		})
	}
}

// --- repair_beads ---

func repairBeadsTool() mcp.Tool {
	return mcp.NewTool("repair_beads",
		mcp.WithDescription("Remove corrupted lines from the ledger, keeping a .bak copy of the original."),
	)
}

func repairBeadsHandler(repo *beads.Repository) server.ToolHandlerFunc {
	return func(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res, err := repo.Ledger().Repair(ctx)
		if err != nil {
			return toolError(err)
		}
		return jsonResult(res)
	}
}

// --- quality_trend ---

func qualityTrendTool() mcp.Tool {
	return mcp.NewTool("quality_trend",
		mcp.WithDescription("Average output rating and whether it is trending up or down."),
	)
}

func qualityTrendHandler(repo *beads.Repository) server.ToolHandlerFunc {
	return func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		trend, err := repo.QualityTrend()
		if err != nil {
			return toolError(err)
		}
		return mcp.NewToolResultText(beads.FormatQualityTrend(trend)), nil
	}
}

// --- session_context ---

func sessionContextTool() mcp.Tool {
	return mcp.NewTool("session_context",
		mcp.WithDescription("Assemble the most relevant beads within a token budget."),
		mcp.WithString("query",
			mcp.Description("Optional search terms"),
		),
		mcp.WithNumber("budget",
			mcp.Description("Token budget (default 2000)"),
		),
	)
}

func sessionContextHandler(repo *beads.Repository) server.ToolHandlerFunc {
	return func(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res, err := repo.Context(beads.ContextParams{
			Query:  req.GetString("query", ""),
			Budget: req.GetInt("budget", 0),
		})
		if err != nil {
			return toolError(err)
		}
		return jsonResult(res)
	}
}

// --- state_status ---

func stateStatusTool() mcp.Tool {
	return mcp.NewTool("state_status",
		mcp.WithDescription("Summarize the current phase, next action, last job and error count."),
	)
}

func stateStatusHandler(st *state.Store) server.ToolHandlerFunc {
	return func(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		doc, err := st.Load()
		if err != nil {
			return toolError(err)
		}
		return jsonResult(state.Summarize(doc))
	}
}

// --- set_next_action ---

func setNextActionTool() mcp.Tool {
	return mcp.NewTool("set_next_action",
		mcp.WithDescription("Set the suggested next step shown at session start."),
		mcp.WithString("action",
			mcp.Description("The next action"),
			mcp.Required(),
		),
	)
}

func setNextActionHandler(st *state.Store) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		action := req.GetString("action", "")
		if err := st.SetNextAction(ctx, action); err != nil {
			return toolError(err)
		}
		return mcp.NewToolResultText(fmt.Sprintf("Next action: %s", action)), nil
	}
}

func toolError(err error) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultError(err.Error()), nil
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError(err)
	}
	return mcp.NewToolResultText(string(data)), nil
}

func splitList(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
