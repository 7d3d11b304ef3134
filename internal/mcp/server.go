// Package mcp provides a Model Context Protocol server for Rolo.
//
// It exposes Rolo's relationship memory as MCP tools (story extraction,
// manual relation entry, conflict checking, roster and relation queries,
// rate-limit status) and as resources (the roster, recent relations).
// Runs over stdio transport for desktop MCP clients.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/szymonk92/rolo/internal/commit"
	"github.com/szymonk92/rolo/internal/conflict"
	"github.com/szymonk92/rolo/internal/entity"
	"github.com/szymonk92/rolo/internal/extract"
	"github.com/szymonk92/rolo/internal/llm"
	"github.com/szymonk92/rolo/internal/ratelimit"
	"github.com/szymonk92/rolo/internal/relation"
	"github.com/szymonk92/rolo/internal/store"
	"github.com/szymonk92/rolo/internal/triage"
)

// ServerConfig holds configuration for the MCP server.
type ServerConfig struct {
	Store    store.Store
	Limiter  *ratelimit.Limiter
	Provider llm.Provider // optional, rolo_extract errors without it
	Version  string
}

// dbMu serializes all MCP tool calls that touch the database.
// The mcp-go library dispatches handlers concurrently via goroutines.
// SQLite (even with WAL) supports only one writer at a time, and the
// screen-then-commit flow must see its own writes, so a global mutex
// keeps tool calls ordered.
var dbMu sync.Mutex

// NewServer creates a configured MCP server with all Rolo tools and resources.
func NewServer(cfg ServerConfig) *server.MCPServer {
	ver := cfg.Version
	if ver == "" {
		ver = "dev"
	}

	s := server.NewMCPServer(
		"Rolo",
		ver,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(true, false),
	)

	limiter := cfg.Limiter
	if limiter == nil {
		limiter = ratelimit.New(ratelimit.DefaultCaps())
	}
	writer := commit.NewWriter(cfg.Store)

	registerExtractTool(s, cfg.Store, writer, cfg.Provider, limiter)
	registerAddTool(s, writer)
	registerCheckTool(s, cfg.Store)
	registerPeopleTool(s, cfg.Store)
	registerRelationsTool(s, cfg.Store)
	registerMarkPastTool(s, cfg.Store)
	registerLimitsTool(s, limiter)
	registerStatsTool(s, cfg.Store)

	registerRosterResource(s, cfg.Store)
	registerRecentResource(s, cfg.Store)

	return s
}

// --- Tools ---

func registerExtractTool(s *server.MCPServer, st store.Store, writer *commit.Writer, provider llm.Provider, limiter *ratelimit.Limiter) {
	tool := mcp.NewTool("rolo_extract",
		mcp.WithDescription("Extract people and relations from a story, screen them against known facts, and commit what is safe. Conflicting or ambiguous items are returned for review instead of being stored. Requires an LLM API key."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("story",
			mcp.Required(),
			mcp.Description("The story text to extract relations from"),
		),
		mcp.WithString("present",
			mcp.Description("Comma-separated IDs of people the user confirmed are in the story"),
		),
		mcp.WithString("new_people",
			mcp.Description("Comma-separated names the user confirmed are new people"),
		),
		mcp.WithBoolean("dry_run",
			mcp.Description("Screen only, do not write anything (default: false)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		if provider == nil {
			return mcp.NewToolResultError("no LLM provider configured; set OPENROUTER_API_KEY or GEMINI_API_KEY"), nil
		}

		story, err := req.RequireString("story")
		if err != nil || strings.TrimSpace(story) == "" {
			return mcp.NewToolResultError("story is required"), nil
		}

		roster, err := st.ListPeople(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("loading roster: %v", err)), nil
		}
		existing, err := st.ListRelations(ctx, 0)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("loading relations: %v", err)), nil
		}

		var mentions []entity.Mention
		if present, err := req.RequireString("present"); err == nil && present != "" {
			for _, id := range splitCSV(present) {
				p, err := st.GetPerson(ctx, id)
				if err != nil || p == nil {
					return mcp.NewToolResultError(fmt.Sprintf("unknown person id %q", id)), nil
				}
				mentions = append(mentions, entity.Mention{Name: p.Name, ConfirmedPresentID: p.ID})
			}
		}
		if newNames, err := req.RequireString("new_people"); err == nil && newNames != "" {
			for _, name := range splitCSV(newNames) {
				mentions = append(mentions, entity.Mention{Name: name, ConfirmedNew: true})
			}
		}

		ex := extract.NewExtractor(provider, limiter)
		out, err := ex.Extract(ctx, extract.Request{
			Story:    story,
			Roster:   roster,
			Existing: existing,
			Mentions: mentions,
		})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("extraction error: %v", err)), nil
		}

		result := map[string]interface{}{"outcome": out}
		if !req.GetBool("dry_run", false) && !out.RateLimited {
			rep, err := writer.ApplyOutcome(ctx, out)
			if err != nil {
				return mcp.NewToolResultError(fmt.Sprintf("commit error: %v", err)), nil
			}
			result["report"] = rep
		}

		data, _ := json.MarshalIndent(result, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerAddTool(s *server.MCPServer, writer *commit.Writer) {
	tool := mcp.NewTool("rolo_add",
		mcp.WithDescription("Add a single relation about a known person. The relation is checked against existing facts first; a critical or high conflict blocks the write and the decision explains why."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("subject_id",
			mcp.Required(),
			mcp.Description("ID of the person this relation is about"),
		),
		mcp.WithString("relation_type",
			mcp.Required(),
			mcp.Description("Relation type, e.g. likes, dislikes, is, used_to_be, regularly_does"),
		),
		mcp.WithString("object",
			mcp.Required(),
			mcp.Description("What the relation points at, e.g. 'coffee', 'vegan', 'running'"),
		),
		mcp.WithString("intensity",
			mcp.Description("Optional intensity: low, medium, high"),
		),
		mcp.WithString("category",
			mcp.Description("Optional category tag, e.g. food, health, work"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		subjectID, err := req.RequireString("subject_id")
		if err != nil {
			return mcp.NewToolResultError("subject_id is required"), nil
		}
		typeStr, err := req.RequireString("relation_type")
		if err != nil {
			return mcp.NewToolResultError("relation_type is required"), nil
		}
		object, err := req.RequireString("object")
		if err != nil || strings.TrimSpace(object) == "" {
			return mcp.NewToolResultError("object is required"), nil
		}

		relType, err := relation.ParseType(typeStr)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		r := relation.Relation{
			SubjectID:   subjectID,
			Type:        relType,
			ObjectLabel: strings.TrimSpace(object),
		}
		if in, err := req.RequireString("intensity"); err == nil && in != "" {
			r.Intensity = relation.Intensity(in)
		}
		if cat, err := req.RequireString("category"); err == nil && cat != "" {
			r.Category = cat
		}

		decision, rep, err := writer.AddManual(ctx, r)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("add error: %v", err)), nil
		}

		result := map[string]interface{}{
			"added":                decision.CanAdd,
			"requires_user_review": decision.RequiresUserReview,
			"report":               rep,
		}
		if len(decision.Conflicts) > 0 {
			result["conflicts"] = decision.Conflicts
			result["summary"] = triage.Summary(decision.Conflicts)
		}

		data, _ := json.MarshalIndent(result, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerCheckTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("rolo_check",
		mcp.WithDescription("Check a hypothetical relation against a person's known facts without writing anything. Returns detected conflicts with severity and suggested resolutions."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("subject_id",
			mcp.Required(),
			mcp.Description("ID of the person to check against"),
		),
		mcp.WithString("relation_type",
			mcp.Required(),
			mcp.Description("Relation type of the candidate fact"),
		),
		mcp.WithString("object",
			mcp.Required(),
			mcp.Description("Object of the candidate fact"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		subjectID, err := req.RequireString("subject_id")
		if err != nil {
			return mcp.NewToolResultError("subject_id is required"), nil
		}
		typeStr, err := req.RequireString("relation_type")
		if err != nil {
			return mcp.NewToolResultError("relation_type is required"), nil
		}
		object, err := req.RequireString("object")
		if err != nil {
			return mcp.NewToolResultError("object is required"), nil
		}

		relType, err := relation.ParseType(typeStr)
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}

		existing, err := st.ListRelationsBySubject(ctx, subjectID)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("loading relations: %v", err)), nil
		}

		candidate := relation.Relation{
			SubjectID:   subjectID,
			Type:        relType,
			ObjectLabel: strings.TrimSpace(object),
			Confidence:  1.0,
			Status:      relation.StatusCurrent,
		}
		validation := conflict.ValidateRelation(candidate, existing)

		result := map[string]interface{}{
			"valid":                validation.Valid,
			"requires_user_review": validation.RequiresUserReview,
			"conflicts":            validation.Conflicts,
			"warnings":             validation.Warnings,
		}
		if len(validation.Conflicts) > 0 {
			result["summary"] = triage.Summary(validation.Conflicts)
		}

		data, _ := json.MarshalIndent(result, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerPeopleTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("rolo_people",
		mcp.WithDescription("List all known people with their IDs, nicknames, and types."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		people, err := st.ListPeople(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list people error: %v", err)), nil
		}
		if len(people) == 0 {
			return mcp.NewToolResultText("No people recorded yet."), nil
		}

		data, _ := json.MarshalIndent(people, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerRelationsTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("rolo_relations",
		mcp.WithDescription("List relations, optionally scoped to one person. Past facts are included and flagged with status."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("subject_id",
			mcp.Description("Filter to relations about this person. Empty = all people."),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of relations to return (default: 50, max: 200)"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		var (
			rels []relation.Relation
			err  error
		)
		if subjectID, reqErr := req.RequireString("subject_id"); reqErr == nil && subjectID != "" {
			rels, err = st.ListRelationsBySubject(ctx, subjectID)
		} else {
			limit := 50
			if l, lerr := req.RequireFloat("limit"); lerr == nil && l > 0 {
				limit = int(l)
				if limit > 200 {
					limit = 200
				}
			}
			rels, err = st.ListRelations(ctx, limit)
		}
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("list relations error: %v", err)), nil
		}
		if len(rels) == 0 {
			return mcp.NewToolResultText("No relations recorded."), nil
		}

		data, _ := json.MarshalIndent(rels, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerMarkPastTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("rolo_mark_past",
		mcp.WithDescription("Mark a relation as past (no longer current). Past facts stay queryable but no longer participate in conflict detection."),
		mcp.WithReadOnlyHintAnnotation(false),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithNumber("relation_id",
			mcp.Required(),
			mcp.Description("ID of the relation to demote"),
		),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		idVal, err := req.RequireFloat("relation_id")
		if err != nil {
			return mcp.NewToolResultError("relation_id is required"), nil
		}
		id := int64(idVal)

		if err := st.MarkRelationPast(ctx, id); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("mark past error: %v", err)), nil
		}
		if err := st.LogEvent(ctx, &store.Event{
			EventType:  store.EventRelationMarkedPast,
			RelationID: id,
		}); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("logging event: %v", err)), nil
		}

		return mcp.NewToolResultText(fmt.Sprintf("Relation %d marked as past.", id)), nil
	})
}

func registerLimitsTool(s *server.MCPServer, limiter *ratelimit.Limiter) {
	tool := mcp.NewTool("rolo_limits",
		mcp.WithDescription("Show current extraction rate-limit status: remaining calls per minute, hour, and day, and when each window clears."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		status := limiter.CheckLimit()
		data, _ := json.MarshalIndent(status, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

func registerStatsTool(s *server.MCPServer, st store.Store) {
	tool := mcp.NewTool("rolo_stats",
		mcp.WithDescription("Get Rolo database statistics: people, current and past relation counts, logged events, and storage size."),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
	)

	s.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		stats, err := st.Stats(ctx)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("stats error: %v", err)), nil
		}

		data, _ := json.MarshalIndent(stats, "", "  ")
		return mcp.NewToolResultText(string(data)), nil
	})
}

// --- Resources ---

func registerRosterResource(s *server.MCPServer, st store.Store) {
	resource := mcp.NewResource(
		"rolo://roster",
		"People Roster",
		mcp.WithResourceDescription("All known people with IDs, used to tag stories and resolve name mentions."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		people, err := st.ListPeople(ctx)
		if err != nil {
			return nil, fmt.Errorf("listing people: %w", err)
		}

		data, _ := json.MarshalIndent(people, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}

func registerRecentResource(s *server.MCPServer, st store.Store) {
	resource := mcp.NewResource(
		"rolo://recent",
		"Recent Relations",
		mcp.WithResourceDescription("The 20 most recently recorded relations."),
		mcp.WithMIMEType("application/json"),
	)

	s.AddResource(resource, func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		dbMu.Lock()
		defer dbMu.Unlock()

		rels, err := st.ListRelations(ctx, 20)
		if err != nil {
			return nil, fmt.Errorf("listing recent relations: %w", err)
		}

		type recentRelation struct {
			ID      int64  `json:"id"`
			Subject string `json:"subject"`
			Type    string `json:"type"`
			Object  string `json:"object"`
			Status  string `json:"status"`
		}
		recent := make([]recentRelation, 0, len(rels))
		for _, r := range rels {
			recent = append(recent, recentRelation{
				ID:      r.ID,
				Subject: r.SubjectName,
				Type:    string(r.Type),
				Object:  r.ObjectLabel,
				Status:  string(r.Status),
			})
		}

		data, _ := json.MarshalIndent(recent, "", "  ")
		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(data),
			},
		}, nil
	})
}

// --- Helpers ---

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
