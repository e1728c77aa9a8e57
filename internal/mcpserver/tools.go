package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ctxkeep/ctxkeep/internal/journal"
	"github.com/ctxkeep/ctxkeep/internal/session"
	"github.com/ctxkeep/ctxkeep/internal/window"
	"github.com/mark3labs/mcp-go/mcp"
)

func sessionArg() mcp.ToolOption {
	return mcp.WithString("session",
		mcp.Required(),
		mcp.Description("Session id. Unknown ids start a fresh window."),
	)
}

func (s *Server) registerTools() {
	s.mcp.AddTool(mcp.NewTool("context_status",
		mcp.WithDescription("Show token usage for a context window: total, per-bucket counts, and percent of capacity."),
		sessionArg(),
	), s.handleStatus)

	s.mcp.AddTool(mcp.NewTool("context_items",
		mcp.WithDescription("List the items in a context window in insertion order, with ids, kinds, token costs, and content previews."),
		sessionArg(),
	), s.handleItems)

	s.mcp.AddTool(mcp.NewTool("context_breakdown",
		mcp.WithDescription("Show a sectioned token report for a context window: system prompt, conversation, and tool output, each with subtotals."),
		sessionArg(),
	), s.handleBreakdown)

	s.mcp.AddTool(mcp.NewTool("context_add",
		mcp.WithDescription("Add one item to a context window and report the new usage."),
		sessionArg(),
		mcp.WithString("kind",
			mcp.Required(),
			mcp.Description("Item kind."),
			mcp.Enum("system", "user", "assistant", "tool_call", "tool_result"),
		),
		mcp.WithString("content",
			mcp.Required(),
			mcp.Description("Item text."),
		),
		mcp.WithString("tool_name",
			mcp.Description("Tool that produced the item, for tool_call and tool_result kinds."),
		),
		mcp.WithBoolean("pinned",
			mcp.Description("Protect the item from pruning. Only system items can be pinned."),
		),
	), s.handleAdd)

	s.mcp.AddTool(mcp.NewTool("context_prune",
		mcp.WithDescription("Evict items from a context window under a policy. Pinned items survive every policy."),
		sessionArg(),
		mcp.WithString("policy",
			mcp.Required(),
			mcp.Description("old_messages drops unprotected items older than max_age_minutes, keeping keep_recent. importance drops items below min_importance. tool_outputs keeps only the keep_recent newest tool items. target evicts lowest-importance-first until usage is at or below target_percent."),
			mcp.Enum("old_messages", "importance", "tool_outputs", "target"),
		),
		mcp.WithNumber("keep_recent",
			mcp.Description("Items to protect regardless of age, for old_messages and tool_outputs."),
		),
		mcp.WithNumber("max_age_minutes",
			mcp.Description("Age threshold in minutes, for old_messages. Zero makes every unprotected item old enough."),
		),
		mcp.WithNumber("min_importance",
			mcp.Description("Importance threshold in [0,1], for importance."),
		),
		mcp.WithNumber("target_percent",
			mcp.Description("Usage target as a fraction of capacity, for target."),
		),
	), s.handlePrune)

	s.mcp.AddTool(mcp.NewTool("context_compact",
		mcp.WithDescription("Shrink oversized items in a context window by eliding their middles. Item count and order are unchanged."),
		sessionArg(),
	), s.handleCompact)
}

// resolve looks up the request's session, creating it on first use.
func (s *Server) resolve(req mcp.CallToolRequest) (*session.Session, error) {
	id, err := req.RequireString("session")
	if err != nil {
		return nil, err
	}
	sess, _ := s.sessions.GetOrCreate(id, "")
	if sess == nil {
		return nil, errors.New("session limit reached")
	}
	return sess, nil
}

func (s *Server) handleStatus(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.resolve(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var display string
	sess.With(func(e session.Engines) { display = e.Inspector.StatusDisplay() })
	return mcp.NewToolResultText(display), nil
}

func (s *Server) handleItems(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.resolve(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var display string
	sess.With(func(e session.Engines) { display = e.Inspector.ItemsList() })
	return mcp.NewToolResultText(display), nil
}

func (s *Server) handleBreakdown(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.resolve(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var display string
	sess.With(func(e session.Engines) { display = e.Inspector.DetailedBreakdown() })
	return mcp.NewToolResultText(display), nil
}

func (s *Server) handleAdd(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.resolve(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	kindStr, err := req.RequireString("kind")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	toolName := req.GetString("tool_name", "")
	pinned := req.GetBool("pinned", false)

	kind := window.Kind(kindStr)
	if !kind.Valid() {
		return mcp.NewToolResultError("unknown kind: " + kindStr), nil
	}
	if pinned && kind != window.KindSystem {
		return mcp.NewToolResultError("only system items can be pinned"), nil
	}

	var id int
	var st window.Status
	sess.With(func(e session.Engines) {
		switch kind {
		case window.KindSystem:
			id = e.Tracker.AddSystemPrompt(content, pinned)
		case window.KindUser:
			id = e.Tracker.AddUserMessage(content)
		case window.KindAssistant:
			id = e.Tracker.AddAssistantMessage(content)
		case window.KindToolCall:
			id = e.Tracker.AddToolCall(content, toolName)
		case window.KindToolResult:
			id = e.Tracker.AddToolResult(content, toolName)
		}
		st = e.Tracker.Status()
	})
	s.sessions.Touch(sess.ID)

	return mcp.NewToolResultText(fmt.Sprintf(
		"added %s as item %d; window now %d/%d tokens (%.1f%% used)",
		kindStr, id, st.TotalTokens, st.MaxTokens, st.UsagePercent*100)), nil
}

func (s *Server) handlePrune(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.resolve(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	policy, err := req.RequireString("policy")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	keepRecent := req.GetInt("keep_recent", 0)
	maxAgeMinutes := req.GetFloat("max_age_minutes", 0)
	minImportance := req.GetFloat("min_importance", 0)
	targetPercent := req.GetFloat("target_percent", 0)

	var res window.PruneResult
	var detail string
	ran := true
	sess.With(func(e session.Engines) {
		switch policy {
		case "old_messages":
			maxAge := time.Duration(maxAgeMinutes * float64(time.Minute))
			res = e.Pruner.PruneOldMessages(keepRecent, maxAge)
			detail = fmt.Sprintf("keep_recent=%d max_age_minutes=%g", keepRecent, maxAgeMinutes)
		case "importance":
			res = e.Pruner.PruneByImportance(minImportance)
			detail = fmt.Sprintf("min_importance=%g", minImportance)
		case "tool_outputs":
			res = e.Pruner.PruneToolOutputs(keepRecent)
			detail = fmt.Sprintf("keep_recent=%d", keepRecent)
		case "target":
			res = e.Pruner.PruneToTarget(targetPercent)
			detail = fmt.Sprintf("target_percent=%g", targetPercent)
		default:
			ran = false
		}
	})
	if !ran {
		return mcp.NewToolResultError("unknown policy: " + policy), nil
	}

	s.sessions.Touch(sess.ID)
	if res.ItemsRemoved > 0 {
		s.record(ctx, journal.Entry{
			SessionID:     sess.ID,
			Op:            journal.OpPrune,
			Policy:        policy,
			ItemsAffected: res.ItemsRemoved,
			TokensDelta:   res.TokensFreed,
			Detail:        detail,
		})
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"removed %d items, freed %d tokens", res.ItemsRemoved, res.TokensFreed)), nil
}

func (s *Server) handleCompact(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.resolve(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	var res window.CompactResult
	var display string
	sess.With(func(e session.Engines) {
		res = e.Compactor.Compact()
		display = e.Inspector.FormatCompactResult(res.TokensBefore, res.TokensAfter, res.TokensSaved)
	})

	s.sessions.Touch(sess.ID)
	if res.ItemsCompacted > 0 {
		s.record(ctx, journal.Entry{
			SessionID:     sess.ID,
			Op:            journal.OpCompact,
			Policy:        "compact",
			ItemsAffected: res.ItemsCompacted,
			TokensDelta:   res.TokensSaved,
			Detail:        res.Summary,
		})
	}

	return mcp.NewToolResultText(display), nil
}
