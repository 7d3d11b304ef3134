package mcp

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/szymonk92/rolo/internal/llm"
	"github.com/szymonk92/rolo/internal/relation"
	"github.com/szymonk92/rolo/internal/store"
)

// stubProvider returns a canned extraction response.
type stubProvider struct {
	response string
}

func (p *stubProvider) Complete(ctx context.Context, prompt string, opts llm.CompletionOpts) (string, error) {
	return p.response, nil
}

func (p *stubProvider) Name() string { return "stub" }

func newTestStore(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewStore(store.Config{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("creating test store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func addTestPerson(t *testing.T, s store.Store, name string) *relation.Person {
	t.Helper()
	p := &relation.Person{Name: name, Type: relation.PersonPrimary}
	if err := s.AddPerson(context.Background(), p); err != nil {
		t.Fatalf("adding person %s: %v", name, err)
	}
	return p
}

func addTestRelation(t *testing.T, s store.Store, subjectID string, rt relation.RelationType, object string) int64 {
	t.Helper()
	id, err := s.AddRelation(context.Background(), &relation.Relation{
		SubjectID:   subjectID,
		Type:        rt,
		ObjectLabel: object,
		Confidence:  1.0,
		Status:      relation.StatusCurrent,
	})
	if err != nil {
		t.Fatalf("adding relation: %v", err)
	}
	return id
}

// callTool invokes an MCP tool through the server's JSON-RPC surface.
func callTool(t *testing.T, srv *server.MCPServer, name string, args map[string]interface{}) *mcplib.CallToolResult {
	t.Helper()

	raw := srv.HandleMessage(context.Background(), mustMarshal(t, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "tools/call",
		"params": map[string]interface{}{
			"name":      name,
			"arguments": args,
		},
	}))

	respBytes, err := json.Marshal(raw)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}

	var resp struct {
		Result struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
			IsError bool `json:"isError"`
		} `json:"result"`
		Error *struct {
			Code    int    `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		t.Fatalf("unmarshal response: %v\nraw: %s", err, string(respBytes))
	}
	if resp.Error != nil {
		t.Fatalf("JSON-RPC error: %d %s", resp.Error.Code, resp.Error.Message)
	}

	result := &mcplib.CallToolResult{IsError: resp.Result.IsError}
	for _, c := range resp.Result.Content {
		if c.Type == "text" {
			result.Content = append(result.Content, mcplib.NewTextContent(c.Text))
		}
	}
	return result
}

func mustMarshal(t *testing.T, v interface{}) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

func getTextContent(t *testing.T, result *mcplib.CallToolResult) string {
	t.Helper()
	for _, c := range result.Content {
		if tc, ok := c.(mcplib.TextContent); ok {
			return tc.Text
		}
	}
	t.Fatal("no text content in result")
	return ""
}

func TestNewServer(t *testing.T) {
	s := newTestStore(t)
	srv := NewServer(ServerConfig{Store: s, Version: "test"})
	if srv == nil {
		t.Fatal("NewServer returned nil")
	}
}

func TestAddTool(t *testing.T) {
	s := newTestStore(t)
	p := addTestPerson(t, s, "Anna")
	srv := NewServer(ServerConfig{Store: s})

	result := callTool(t, srv, "rolo_add", map[string]interface{}{
		"subject_id":    p.ID,
		"relation_type": "likes",
		"object":        "coffee",
	})
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", getTextContent(t, result))
	}

	var parsed struct {
		Added bool `json:"added"`
	}
	if err := json.Unmarshal([]byte(getTextContent(t, result)), &parsed); err != nil {
		t.Fatalf("parsing result: %v", err)
	}
	if !parsed.Added {
		t.Error("clean relation should be added")
	}

	rels, err := s.ListRelationsBySubject(context.Background(), p.ID)
	if err != nil {
		t.Fatalf("listing: %v", err)
	}
	if len(rels) != 1 || rels[0].ObjectLabel != "coffee" {
		t.Errorf("stored = %+v", rels)
	}
}

func TestAddToolRejectsContradiction(t *testing.T) {
	s := newTestStore(t)
	p := addTestPerson(t, s, "Anna")
	addTestRelation(t, s, p.ID, relation.Dislikes, "pizza")
	srv := NewServer(ServerConfig{Store: s})

	result := callTool(t, srv, "rolo_add", map[string]interface{}{
		"subject_id":    p.ID,
		"relation_type": "likes",
		"object":        "pizza",
	})
	if result.IsError {
		t.Fatalf("rejection must be a normal result, not a tool error: %s", getTextContent(t, result))
	}

	var parsed struct {
		Added   bool   `json:"added"`
		Summary string `json:"summary"`
	}
	if err := json.Unmarshal([]byte(getTextContent(t, result)), &parsed); err != nil {
		t.Fatalf("parsing result: %v", err)
	}
	if parsed.Added {
		t.Error("contradicting relation should be rejected")
	}
	if parsed.Summary == "" {
		t.Error("rejection must carry a conflict summary")
	}

	rels, _ := s.ListRelationsBySubject(context.Background(), p.ID)
	if len(rels) != 1 {
		t.Errorf("stored relations = %d, want only the original", len(rels))
	}
}

func TestAddToolUnknownType(t *testing.T) {
	s := newTestStore(t)
	p := addTestPerson(t, s, "Anna")
	srv := NewServer(ServerConfig{Store: s})

	result := callTool(t, srv, "rolo_add", map[string]interface{}{
		"subject_id":    p.ID,
		"relation_type": "worships",
		"object":        "coffee",
	})
	if !result.IsError {
		t.Error("unknown relation type should be a tool error")
	}
}

func TestCheckToolDoesNotWrite(t *testing.T) {
	s := newTestStore(t)
	p := addTestPerson(t, s, "Anna")
	addTestRelation(t, s, p.ID, relation.Is, "vegan")
	srv := NewServer(ServerConfig{Store: s})

	result := callTool(t, srv, "rolo_check", map[string]interface{}{
		"subject_id":    p.ID,
		"relation_type": "likes",
		"object":        "cheese",
	})
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", getTextContent(t, result))
	}

	var parsed struct {
		Valid              bool `json:"valid"`
		RequiresUserReview bool `json:"requires_user_review"`
		Conflicts          []struct {
			Severity string `json:"severity"`
		} `json:"conflicts"`
	}
	if err := json.Unmarshal([]byte(getTextContent(t, result)), &parsed); err != nil {
		t.Fatalf("parsing result: %v", err)
	}
	if !parsed.Valid {
		t.Error("dietary conflict is high, not critical; candidate stays valid")
	}
	if !parsed.RequiresUserReview {
		t.Error("high conflict must require review")
	}
	if len(parsed.Conflicts) != 1 {
		t.Errorf("conflicts = %d, want 1", len(parsed.Conflicts))
	}

	rels, _ := s.ListRelationsBySubject(context.Background(), p.ID)
	if len(rels) != 1 {
		t.Errorf("check wrote to the store: %d relations", len(rels))
	}
}

func TestPeopleTool(t *testing.T) {
	s := newTestStore(t)
	addTestPerson(t, s, "Anna")
	addTestPerson(t, s, "Marek")
	srv := NewServer(ServerConfig{Store: s})

	result := callTool(t, srv, "rolo_people", map[string]interface{}{})
	text := getTextContent(t, result)

	var people []relation.Person
	if err := json.Unmarshal([]byte(text), &people); err != nil {
		t.Fatalf("parsing people: %v\nraw: %s", err, text)
	}
	if len(people) != 2 {
		t.Errorf("people = %d, want 2", len(people))
	}
}

func TestMarkPastTool(t *testing.T) {
	s := newTestStore(t)
	p := addTestPerson(t, s, "Anna")
	id := addTestRelation(t, s, p.ID, relation.Is, "smoker")
	srv := NewServer(ServerConfig{Store: s})

	result := callTool(t, srv, "rolo_mark_past", map[string]interface{}{
		"relation_id": float64(id),
	})
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", getTextContent(t, result))
	}

	rels, _ := s.ListRelationsBySubject(context.Background(), p.ID)
	if len(rels) != 1 || rels[0].Status != relation.StatusPast {
		t.Errorf("relation not demoted: %+v", rels)
	}
}

func TestLimitsTool(t *testing.T) {
	s := newTestStore(t)
	srv := NewServer(ServerConfig{Store: s})

	result := callTool(t, srv, "rolo_limits", map[string]interface{}{})
	var status struct {
		Allowed bool `json:"allowed"`
	}
	if err := json.Unmarshal([]byte(getTextContent(t, result)), &status); err != nil {
		t.Fatalf("parsing status: %v", err)
	}
	if !status.Allowed {
		t.Error("fresh limiter should allow requests")
	}
}

func TestExtractToolWithoutProvider(t *testing.T) {
	s := newTestStore(t)
	srv := NewServer(ServerConfig{Store: s})

	result := callTool(t, srv, "rolo_extract", map[string]interface{}{
		"story": "Had dinner with Anna, she loved the ramen.",
	})
	if !result.IsError {
		t.Fatal("extract without a provider should be a tool error")
	}
	if text := getTextContent(t, result); !strings.Contains(text, "provider") {
		t.Errorf("error should mention the missing provider, got %q", text)
	}
}

func TestExtractToolDryRunDoesNotWrite(t *testing.T) {
	s := newTestStore(t)
	provider := &stubProvider{response: `{
		"people": [{"id": "", "name": "Zofia", "isNew": true, "confidence": 0.9}],
		"relations": [{"subjectId": "", "subjectName": "Zofia", "relationType": "likes", "objectLabel": "tea", "confidence": 0.9}]
	}`}
	srv := NewServer(ServerConfig{Store: s, Provider: provider})

	// dry_run arrives as a JSON boolean, not a string.
	result := callTool(t, srv, "rolo_extract", map[string]interface{}{
		"story":   "Met Zofia today, she loves tea.",
		"dry_run": true,
	})
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", getTextContent(t, result))
	}

	people, err := s.ListPeople(context.Background())
	if err != nil {
		t.Fatalf("listing people: %v", err)
	}
	if len(people) != 0 {
		t.Errorf("dry run wrote %d people", len(people))
	}
	rels, _ := s.ListRelations(context.Background(), 0)
	if len(rels) != 0 {
		t.Errorf("dry run wrote %d relations", len(rels))
	}

	// The same call without dry_run commits.
	result = callTool(t, srv, "rolo_extract", map[string]interface{}{
		"story": "Met Zofia today, she loves tea.",
	})
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", getTextContent(t, result))
	}
	people, _ = s.ListPeople(context.Background())
	if len(people) != 1 {
		t.Errorf("people = %d, want the extracted person committed", len(people))
	}
	rels, _ = s.ListRelations(context.Background(), 0)
	if len(rels) != 1 {
		t.Errorf("relations = %d, want the extracted relation committed", len(rels))
	}
}

func TestRosterResource(t *testing.T) {
	s := newTestStore(t)
	addTestPerson(t, s, "Anna")
	srv := NewServer(ServerConfig{Store: s})

	raw := srv.HandleMessage(context.Background(), mustMarshal(t, map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"method":  "resources/read",
		"params":  map[string]interface{}{"uri": "rolo://roster"},
	}))

	respBytes, err := json.Marshal(raw)
	if err != nil {
		t.Fatalf("marshal response: %v", err)
	}
	var resp struct {
		Result struct {
			Contents []struct {
				MIMEType string `json:"mimeType"`
				Text     string `json:"text"`
			} `json:"contents"`
		} `json:"result"`
		Error *struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if resp.Error != nil {
		t.Fatalf("JSON-RPC error: %s", resp.Error.Message)
	}
	if len(resp.Result.Contents) != 1 {
		t.Fatalf("contents = %d, want 1", len(resp.Result.Contents))
	}
	if !strings.Contains(resp.Result.Contents[0].Text, "Anna") {
		t.Errorf("roster resource missing person: %s", resp.Result.Contents[0].Text)
	}
}
