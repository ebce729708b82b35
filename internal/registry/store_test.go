package registry

import (
	"context"
	"errors"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/orchestria/orchestria/internal/bundle"
	"github.com/orchestria/orchestria/internal/schema"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "registry.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, path
}

func agent(name string, tools ...string) schema.AgentDefinition {
	return schema.AgentDefinition{
		Name:           name,
		Description:    name + " agent",
		Model:          "llama3.1",
		Provider:       "ollama",
		SupportedTools: tools,
	}
}

func tool(name string) schema.ToolDefinition {
	return schema.ToolDefinition{
		Name:         name,
		Description:  name + " tool",
		Language:     schema.LanguageProcess,
		Entrypoint:   "./" + name + ".sh",
		InputsSchema: map[string]any{"type": "object"},
	}
}

func bondBundle() *bundle.Bundle {
	return &bundle.Bundle{
		Agents: []schema.AgentDefinition{agent("Bond", "Remove")},
		Tools:  []schema.ToolDefinition{tool("Remove"), tool("List")},
	}
}

func TestCreateAgent_Collision(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateAgent(ctx, agent("Bond")); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	err := s.CreateAgent(ctx, agent("Bond"))
	var collision *schema.NameCollisionError
	if !errors.As(err, &collision) {
		t.Fatalf("expected NameCollisionError, got %v", err)
	}
	if !collision.Existing.IsLocal() {
		t.Errorf("expected existing provenance local, got %s", collision.Existing)
	}
}

func TestCreateTool_CollidesWithFetched(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Merge(ctx, schema.NewProvenance("repo-a", "v1"), "/repos/a", bondBundle()); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	err := s.CreateTool(ctx, tool("Remove"))
	var collision *schema.NameCollisionError
	if !errors.As(err, &collision) {
		t.Fatalf("expected NameCollisionError, got %v", err)
	}
	if collision.Existing.Source != "repo-a" {
		t.Errorf("expected existing source repo-a, got %s", collision.Existing)
	}
}

func TestMerge_InsertsWithProvenance(t *testing.T) {
	s, _ := newTestStore(t)
	p := schema.NewProvenance("repo-a", "v1")

	report, err := s.Merge(context.Background(), p, "/repos/a", bondBundle())
	if err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if len(report.Added) != 3 || len(report.Updated) != 0 {
		t.Errorf("expected 3 added, 0 updated, got %+v", report)
	}

	got, err := s.Tool("Remove")
	if err != nil {
		t.Fatalf("Tool: %v", err)
	}
	if !got.Provenance.Equal(p) {
		t.Errorf("expected provenance %s, got %s", p, got.Provenance)
	}
	if got.Dir != "/repos/a" {
		t.Errorf("expected dir /repos/a, got %q", got.Dir)
	}
}

func TestMerge_Idempotent(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	p := schema.NewProvenance("repo-a", "v1")

	if _, err := s.Merge(ctx, p, "/repos/a", bondBundle()); err != nil {
		t.Fatalf("first Merge: %v", err)
	}
	agents, tools := s.Agents(), s.Tools()

	report, err := s.Merge(ctx, p, "/repos/a", bondBundle())
	if err != nil {
		t.Fatalf("second Merge: %v", err)
	}
	if len(report.Added) != 0 || len(report.Updated) != 3 {
		t.Errorf("expected 0 added, 3 updated, got %+v", report)
	}
	if !reflect.DeepEqual(agents, s.Agents()) {
		t.Errorf("agents changed on re-fetch:\n%+v\n%+v", agents, s.Agents())
	}
	if !reflect.DeepEqual(tools, s.Tools()) {
		t.Errorf("tools changed on re-fetch:\n%+v\n%+v", tools, s.Tools())
	}
}

func TestMerge_SameSourceNewRefUpdates(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Merge(ctx, schema.NewProvenance("repo-a", "v1"), "/repos/a/v1", bondBundle()); err != nil {
		t.Fatalf("Merge v1: %v", err)
	}

	b := bondBundle()
	b.Agents[0].Model = "llama3.2"
	b.Tools = b.Tools[:1]
	if _, err := s.Merge(ctx, schema.NewProvenance("repo-a", "v2"), "/repos/a/v2", b); err != nil {
		t.Fatalf("Merge v2: %v", err)
	}

	got, _ := s.Agent("Bond")
	if got.Model != "llama3.2" || got.Provenance.Ref != "v2" {
		t.Errorf("expected Bond updated to llama3.2@v2, got %s@%s", got.Model, got.Provenance.Ref)
	}
	// Entries missing from the newer bundle stay at the old ref.
	list, err := s.Tool("List")
	if err != nil {
		t.Fatalf("Tool(List): %v", err)
	}
	if list.Provenance.Ref != "v1" {
		t.Errorf("expected List to stay at v1, got %s", list.Provenance.Ref)
	}
}

func TestMerge_CollisionCommitsNothing(t *testing.T) {
	s, path := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateTool(ctx, tool("Remove")); err != nil {
		t.Fatalf("CreateTool: %v", err)
	}

	_, err := s.Merge(ctx, schema.NewProvenance("repo-a", "v1"), "/repos/a", bondBundle())
	var conflict *schema.BundleConflictError
	if !errors.As(err, &conflict) {
		t.Fatalf("expected BundleConflictError, got %v", err)
	}
	var collision *schema.NameCollisionError
	if !errors.As(err, &collision) || collision.Name != "Remove" {
		t.Fatalf("expected NameCollisionError for Remove, got %v", err)
	}

	if names := s.AgentNames(); len(names) != 0 {
		t.Errorf("expected no agents committed, got %v", names)
	}
	if names := s.ToolNames(); !reflect.DeepEqual(names, []string{"Remove"}) {
		t.Errorf("expected only the local Remove tool, got %v", names)
	}

	s.Close()
	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if names := reopened.ToolNames(); !reflect.DeepEqual(names, []string{"Remove"}) {
		t.Errorf("expected nothing persisted from the bundle, got %v", names)
	}
}

func TestMerge_DifferentSourceCollides(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Merge(ctx, schema.NewProvenance("repo-a", "v1"), "/repos/a", bondBundle()); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	other := &bundle.Bundle{
		Agents: []schema.AgentDefinition{agent("Q")},
		Tools:  []schema.ToolDefinition{tool("List")},
	}
	_, err := s.Merge(ctx, schema.NewProvenance("repo-b", "v1"), "/repos/b", other)
	var collision *schema.NameCollisionError
	if !errors.As(err, &collision) {
		t.Fatalf("expected NameCollisionError, got %v", err)
	}
	if _, err := s.Agent("Q"); err == nil {
		t.Error("expected agent Q not to be committed")
	}
}

func TestDeleteAgent_CascadesBundle(t *testing.T) {
	s, path := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Merge(ctx, schema.NewProvenance("repo-a", "v1"), "/repos/a", bondBundle()); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if err := s.CreateAgent(ctx, agent("Local", "*")); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	if err := s.CreateTool(ctx, tool("Echo")); err != nil {
		t.Fatalf("CreateTool: %v", err)
	}

	removed, err := s.DeleteAgent(ctx, "Bond")
	if err != nil {
		t.Fatalf("DeleteAgent: %v", err)
	}
	want := []EntryRef{
		{Kind: schema.KindAgent, Name: "Bond"},
		{Kind: schema.KindTool, Name: "List"},
		{Kind: schema.KindTool, Name: "Remove"},
	}
	if !reflect.DeepEqual(removed, want) {
		t.Errorf("removed = %v, want %v", removed, want)
	}
	if names := s.AgentNames(); !reflect.DeepEqual(names, []string{"Local"}) {
		t.Errorf("agents = %v, want [Local]", names)
	}
	if names := s.ToolNames(); !reflect.DeepEqual(names, []string{"Echo"}) {
		t.Errorf("tools = %v, want [Echo]", names)
	}

	s.Close()
	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if names := reopened.ToolNames(); !reflect.DeepEqual(names, []string{"Echo"}) {
		t.Errorf("persisted tools = %v, want [Echo]", names)
	}
}

func TestDeleteTool_CascadeIsExactRef(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Merge(ctx, schema.NewProvenance("repo-a", "v1"), "/repos/a", bondBundle()); err != nil {
		t.Fatalf("Merge v1: %v", err)
	}
	newer := &bundle.Bundle{Tools: []schema.ToolDefinition{tool("Remove")}}
	if _, err := s.Merge(ctx, schema.NewProvenance("repo-a", "v2"), "/repos/a", newer); err != nil {
		t.Fatalf("Merge v2: %v", err)
	}

	removed, err := s.DeleteTool(ctx, "Remove")
	if err != nil {
		t.Fatalf("DeleteTool: %v", err)
	}
	if len(removed) != 1 || removed[0].Name != "Remove" {
		t.Errorf("expected only Remove@v2 removed, got %v", removed)
	}
	if _, err := s.Agent("Bond"); err != nil {
		t.Errorf("expected Bond@v1 to survive: %v", err)
	}
}

func TestDelete_LocalDoesNotCascade(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	for _, name := range []string{"a", "b"} {
		if err := s.CreateTool(ctx, tool(name)); err != nil {
			t.Fatalf("CreateTool(%s): %v", name, err)
		}
	}
	removed, err := s.DeleteTool(ctx, "a")
	if err != nil {
		t.Fatalf("DeleteTool: %v", err)
	}
	if len(removed) != 1 {
		t.Errorf("expected 1 removed, got %v", removed)
	}
	if names := s.ToolNames(); !reflect.DeepEqual(names, []string{"b"}) {
		t.Errorf("tools = %v, want [b]", names)
	}
}

func TestDelete_NotFound(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.DeleteAgent(context.Background(), "ghost")
	var nf *schema.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestNames_Sorted(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()
	for _, name := range []string{"zeta", "alpha", "Mid"} {
		if err := s.CreateAgent(ctx, agent(name)); err != nil {
			t.Fatalf("CreateAgent(%s): %v", name, err)
		}
	}
	want := []string{"Mid", "alpha", "zeta"}
	if got := s.AgentNames(); !reflect.DeepEqual(got, want) {
		t.Errorf("AgentNames() = %v, want %v", got, want)
	}
}

func TestResolveTools(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Merge(ctx, schema.NewProvenance("repo-a", "v1"), "/repos/a", bondBundle()); err != nil {
		t.Fatalf("Merge: %v", err)
	}
	if err := s.CreateTool(ctx, tool("Echo")); err != nil {
		t.Fatalf("CreateTool: %v", err)
	}

	wildcard := agent("Any", schema.WildcardTools)
	tools, _ := s.ResolveTools(wildcard)
	if got := toolNames(tools); !reflect.DeepEqual(got, []string{"Echo", "List", "Remove"}) {
		t.Errorf("wildcard resolved to %v", got)
	}

	explicit := agent("Ops", "Echo", "Remove")
	if _, err := s.DeleteTool(ctx, "Remove"); err != nil {
		t.Fatalf("DeleteTool: %v", err)
	}

	tools, dangling := s.ResolveTools(explicit)
	if got := toolNames(tools); !reflect.DeepEqual(got, []string{"Echo"}) {
		t.Errorf("explicit resolved to %v", got)
	}
	if !reflect.DeepEqual(dangling, []string{"Remove"}) {
		t.Errorf("dangling = %v, want [Remove]", dangling)
	}

	tools, _ = s.ResolveTools(wildcard)
	if got := toolNames(tools); !reflect.DeepEqual(got, []string{"Echo"}) {
		t.Errorf("wildcard after delete resolved to %v", got)
	}
}

func TestOpen_ReloadsDefinitions(t *testing.T) {
	s, path := newTestStore(t)
	ctx := context.Background()

	def := agent("Bond", "Remove")
	def.GenerationArguments = map[string]any{"temperature": 0.5}
	if err := s.CreateAgent(ctx, def); err != nil {
		t.Fatalf("CreateAgent: %v", err)
	}
	local := tool("Echo")
	local.Dir = "/work"
	if err := s.CreateTool(ctx, local); err != nil {
		t.Fatalf("CreateTool: %v", err)
	}
	before, beforeTools := s.Agents(), s.Tools()
	s.Close()

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	if !reflect.DeepEqual(before, reopened.Agents()) {
		t.Errorf("agents after reload:\n%+v\nwant\n%+v", reopened.Agents(), before)
	}
	if !reflect.DeepEqual(beforeTools, reopened.Tools()) {
		t.Errorf("tools after reload:\n%+v\nwant\n%+v", reopened.Tools(), beforeTools)
	}
}

func toolNames(tools []schema.ToolDefinition) []string {
	out := make([]string, 0, len(tools))
	for _, t := range tools {
		out = append(out, t.Name)
	}
	return out
}
