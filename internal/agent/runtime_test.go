package agent

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/orchestria/orchestria/internal/schema"
)

// memStore is an in-memory ToolResolver.
type memStore struct {
	mu     sync.Mutex
	agents map[string]schema.AgentDefinition
	tools  map[string]schema.ToolDefinition
}

func newMemStore(agents []schema.AgentDefinition, tools ...schema.ToolDefinition) *memStore {
	s := &memStore{agents: map[string]schema.AgentDefinition{}, tools: map[string]schema.ToolDefinition{}}
	for _, a := range agents {
		s.agents[a.Name] = a
	}
	for _, t := range tools {
		s.tools[t.Name] = t
	}
	return s
}

func (s *memStore) Agent(name string) (schema.AgentDefinition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[name]
	if !ok {
		return a, &schema.NotFoundError{Kind: schema.KindAgent, Name: name}
	}
	return a, nil
}

func (s *memStore) ResolveTools(agent schema.AgentDefinition) ([]schema.ToolDefinition, []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []schema.ToolDefinition
	var dangling []string
	if agent.SupportsAllTools() {
		for _, t := range s.tools {
			out = append(out, t)
		}
		return out, nil
	}
	for _, name := range agent.SupportedTools {
		if t, ok := s.tools[name]; ok {
			out = append(out, t)
		} else {
			dangling = append(dangling, name)
		}
	}
	return out, dangling
}

func (s *memStore) addTool(t schema.ToolDefinition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tools[t.Name] = t
}

// turnCall is what the provider saw on one SendTurn.
type turnCall struct {
	history      []schema.Message
	systemPrompt string
	tools        []string
}

// scriptedProvider replays responses in order; once exhausted it repeats the
// last one.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []schema.ProviderResponse
	err       error
	calls     []turnCall
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) SendTurn(ctx context.Context, history schema.Messages, systemPrompt string, _ map[string]any, tools []schema.ToolSchema) (schema.ProviderResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name)
	}
	p.calls = append(p.calls, turnCall{
		history:      history.Clone().Messages,
		systemPrompt: systemPrompt,
		tools:        names,
	})
	if p.err != nil {
		return schema.ProviderResponse{}, p.err
	}
	i := len(p.calls) - 1
	if i >= len(p.responses) {
		i = len(p.responses) - 1
	}
	return p.responses[i], nil
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

type providerFunc func(schema.AgentDefinition) (schema.Provider, error)

func (f providerFunc) ForAgent(a schema.AgentDefinition) (schema.Provider, error) { return f(a) }

func fixedProvider(p schema.Provider) ProviderFactory {
	return providerFunc(func(schema.AgentDefinition) (schema.Provider, error) { return p, nil })
}

// fakeInvoker answers every call with fn.
type fakeInvoker struct {
	mu    sync.Mutex
	calls []string
	fn    func(ctx context.Context, def schema.ToolDefinition, args map[string]any) schema.ToolCallResult
}

func (f *fakeInvoker) Invoke(ctx context.Context, def schema.ToolDefinition, args map[string]any) schema.ToolCallResult {
	f.mu.Lock()
	f.calls = append(f.calls, def.Name)
	f.mu.Unlock()
	return f.fn(ctx, def, args)
}

func (f *fakeInvoker) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func okInvoker(payload map[string]any) *fakeInvoker {
	return &fakeInvoker{fn: func(context.Context, schema.ToolDefinition, map[string]any) schema.ToolCallResult {
		return schema.ToolCallResult{Success: true, Payload: payload}
	}}
}

func removeTool() schema.ToolDefinition {
	return schema.ToolDefinition{
		Name:        "Remove",
		Description: "Removes files",
		Language:    schema.LanguageProcess,
		Entrypoint:  "./remove.sh",
		InputsSchema: map[string]any{
			"type":       "object",
			"properties": map[string]any{"files": map[string]any{"type": "array"}},
		},
	}
}

func bond() schema.AgentDefinition {
	return schema.AgentDefinition{
		Name:           "Bond",
		Description:    "Files things away",
		Model:          "llama3.1",
		Provider:       "ollama",
		SupportedTools: []string{"Remove"},
	}
}

func removeCall(id string) schema.ToolCallRequest {
	return schema.ToolCallRequest{ID: id, Name: "Remove", Arguments: map[string]any{"files": []any{"notes.txt"}}}
}

func newSession(t *testing.T, store ToolResolver, inv ToolRunner, p schema.Provider, settings Settings) *Session {
	t.Helper()
	rt := NewRuntime(store, inv, fixedProvider(p), settings)
	s, err := rt.NewSession(context.Background(), "Bond")
	if err != nil {
		t.Fatalf("NewSession: %v", err)
	}
	return s
}

func roles(msgs []schema.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Role)
	}
	return out
}

func TestSend_ToolRoundThenFinalText(t *testing.T) {
	store := newMemStore([]schema.AgentDefinition{bond()}, removeTool())
	inv := okInvoker(map[string]any{"deleted": []any{"notes.txt"}})
	prov := &scriptedProvider{responses: []schema.ProviderResponse{
		schema.ToolCalls(removeCall("call_1")),
		schema.FinalText("Done, I removed notes.txt."),
	}}
	s := newSession(t, store, inv, prov, Settings{})

	var transitions []State
	s.OnTransition = func(_, to State) { transitions = append(transitions, to) }

	text, err := s.Send(context.Background(), "please delete notes.txt", nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if text != "Done, I removed notes.txt." {
		t.Errorf("text = %q", text)
	}
	if s.State() != StateIdle {
		t.Errorf("state = %s, want idle", s.State())
	}

	h := s.History().Messages
	if got := roles(h); !reflect.DeepEqual(got, []string{"user", "tool", "assistant"}) {
		t.Fatalf("history roles = %v", got)
	}
	if h[1].ToolCallID() != "call_1" || h[1].ToolName() != "Remove" || !h[1].Result.Success {
		t.Errorf("unexpected tool-result message: %+v", h[1])
	}
	if h[1].Content != `{"deleted":["notes.txt"]}` {
		t.Errorf("tool-result content = %q", h[1].Content)
	}

	if prov.callCount() != 2 {
		t.Fatalf("provider calls = %d, want 2", prov.callCount())
	}
	if got := roles(prov.calls[1].history); !reflect.DeepEqual(got, []string{"user", "tool"}) {
		t.Errorf("second provider call saw %v", got)
	}
	if !reflect.DeepEqual(prov.calls[0].tools, []string{"Remove"}) {
		t.Errorf("provider saw tools %v", prov.calls[0].tools)
	}

	want := []State{
		StateAwaitingModel, StateToolCallsPending, StateInvoking,
		StateAwaitingModel, StateResponding, StateIdle,
	}
	if !reflect.DeepEqual(transitions, want) {
		t.Errorf("transitions = %v, want %v", transitions, want)
	}
}

func TestSend_SequentialRoundsStaySeparate(t *testing.T) {
	store := newMemStore([]schema.AgentDefinition{bond()}, removeTool())
	inv := okInvoker(map[string]any{"ok": true})
	prov := &scriptedProvider{responses: []schema.ProviderResponse{
		schema.ToolCalls(removeCall("r1")),
		schema.ToolCalls(removeCall("r2")),
		schema.FinalText("both done"),
	}}
	s := newSession(t, store, inv, prov, Settings{})

	if _, err := s.Send(context.Background(), "go", nil); err != nil {
		t.Fatalf("Send: %v", err)
	}

	h := s.History()
	var runs []int
	h.Walk(func(_ *schema.Message, run schema.ToolRun) {
		if run != nil {
			runs = append(runs, len(run))
		}
	})
	if !reflect.DeepEqual(runs, []int{1, 1}) {
		t.Errorf("tool runs = %v, want two runs of one call", runs)
	}
}

func TestSend_ParallelCallsKeepOrder(t *testing.T) {
	store := newMemStore([]schema.AgentDefinition{bond()}, removeTool())
	inv := &fakeInvoker{fn: func(_ context.Context, _ schema.ToolDefinition, args map[string]any) schema.ToolCallResult {
		if args["slow"] == true {
			time.Sleep(50 * time.Millisecond)
		}
		return schema.ToolCallResult{Success: true, Payload: args}
	}}
	prov := &scriptedProvider{responses: []schema.ProviderResponse{
		schema.ToolCalls(
			schema.ToolCallRequest{ID: "a", Name: "Remove", Arguments: map[string]any{"slow": true}},
			schema.ToolCallRequest{ID: "b", Name: "Remove", Arguments: map[string]any{"slow": false}},
		),
		schema.FinalText("ok"),
	}}
	s := newSession(t, store, inv, prov, Settings{MaxParallelTools: 2})

	if _, err := s.Send(context.Background(), "go", nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	h := s.History().Messages
	if len(h) != 4 || h[1].ToolCallID() != "a" || h[2].ToolCallID() != "b" {
		t.Errorf("unexpected history: %+v", h)
	}
	if inv.callCount() != 2 {
		t.Errorf("invoker calls = %d, want 2", inv.callCount())
	}
}

func TestSend_LoopLimit(t *testing.T) {
	store := newMemStore([]schema.AgentDefinition{bond()}, removeTool())
	inv := okInvoker(map[string]any{})
	prov := &scriptedProvider{responses: []schema.ProviderResponse{
		schema.ToolCalls(removeCall("call_1")),
	}}
	s := newSession(t, store, inv, prov, Settings{MaxIterations: 3})

	_, err := s.Send(context.Background(), "loop forever", nil)
	var limitErr *schema.LoopLimitExceededError
	if !errors.As(err, &limitErr) {
		t.Fatalf("expected LoopLimitExceededError, got %v", err)
	}
	if limitErr.Limit != 3 {
		t.Errorf("limit = %d, want 3", limitErr.Limit)
	}
	if prov.callCount() != 3 {
		t.Errorf("provider calls = %d, want 3", prov.callCount())
	}
	if inv.callCount() != 2 {
		t.Errorf("invoker calls = %d, want 2", inv.callCount())
	}
	if s.State() != StateIdle {
		t.Errorf("state = %s, want idle", s.State())
	}
	h := s.History()
	if n := h.Len(); n != 0 {
		t.Errorf("aborted turn left %d messages", n)
	}
}

func TestSend_UnauthorizedTool(t *testing.T) {
	format := schema.ToolDefinition{Name: "Format", Language: schema.LanguageProcess, Entrypoint: "./format.sh"}
	store := newMemStore([]schema.AgentDefinition{bond()}, removeTool(), format)
	inv := okInvoker(map[string]any{})
	prov := &scriptedProvider{responses: []schema.ProviderResponse{
		schema.ToolCalls(schema.ToolCallRequest{ID: "x", Name: "Format", Arguments: map[string]any{}}),
		schema.FinalText("I cannot do that."),
	}}
	s := newSession(t, store, inv, prov, Settings{})

	if _, err := s.Send(context.Background(), "format the disk", nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if inv.callCount() != 0 {
		t.Errorf("unauthorized tool was invoked")
	}
	h := s.History().Messages
	if len(h) != 3 || h[1].Result.Success {
		t.Fatalf("expected a failed tool result, got %+v", h)
	}
	var valErr *schema.ToolCallValidationError
	if !errors.As(h[1].Result.Err, &valErr) {
		t.Errorf("expected ToolCallValidationError, got %v", h[1].Result.Err)
	}
	if !strings.HasPrefix(h[1].Content, "error: ") {
		t.Errorf("model-facing content = %q", h[1].Content)
	}
}

func TestSend_FailedToolContinuesTurn(t *testing.T) {
	store := newMemStore([]schema.AgentDefinition{bond()}, removeTool())
	inv := &fakeInvoker{fn: func(_ context.Context, def schema.ToolDefinition, _ map[string]any) schema.ToolCallResult {
		return schema.FailedResult("", &schema.ToolInvocationError{Tool: def.Name, ExitCode: 1, Reason: "exit status 1"})
	}}
	prov := &scriptedProvider{responses: []schema.ProviderResponse{
		schema.ToolCalls(removeCall("call_1")),
		schema.FinalText("The tool failed."),
	}}
	s := newSession(t, store, inv, prov, Settings{})

	text, err := s.Send(context.Background(), "delete", nil)
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if text != "The tool failed." {
		t.Errorf("text = %q", text)
	}
	if h := s.History().Messages; h[1].Result.Success || h[1].ToolCallID() != "call_1" {
		t.Errorf("unexpected tool result: %+v", h[1])
	}
}

func TestSend_ProviderError(t *testing.T) {
	store := newMemStore([]schema.AgentDefinition{bond()}, removeTool())
	prov := &scriptedProvider{err: errors.New("connection refused")}
	s := newSession(t, store, okInvoker(nil), prov, Settings{})

	var exits []State
	s.OnTransition = func(_, to State) { exits = append(exits, to) }

	_, err := s.Send(context.Background(), "hello", nil)
	var provErr *schema.ProviderError
	if !errors.As(err, &provErr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
	h := s.History()
	if h.Len() != 0 {
		t.Error("expected the failed turn to be discarded")
	}
	if s.State() != StateIdle {
		t.Errorf("state = %s, want idle", s.State())
	}
	if !reflect.DeepEqual(exits, []State{StateAwaitingModel, StateError, StateIdle}) {
		t.Errorf("transitions = %v", exits)
	}
}

func TestSend_Cancelled(t *testing.T) {
	store := newMemStore([]schema.AgentDefinition{bond()}, removeTool())
	started := make(chan struct{})
	inv := &fakeInvoker{fn: func(ctx context.Context, _ schema.ToolDefinition, _ map[string]any) schema.ToolCallResult {
		close(started)
		<-ctx.Done()
		return schema.FailedResult("", schema.ErrCancelled)
	}}
	prov := &scriptedProvider{responses: []schema.ProviderResponse{
		schema.ToolCalls(removeCall("call_1")),
		schema.FinalText("never"),
	}}
	s := newSession(t, store, inv, prov, Settings{})

	// A completed turn that must survive the cancelled one.
	prior := &scriptedProvider{responses: []schema.ProviderResponse{schema.FinalText("hi")}}
	s.provider = prior
	if _, err := s.Send(context.Background(), "hello", nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	s.provider = prov

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := s.Send(ctx, "delete notes.txt", nil)
	if !errors.Is(err, schema.ErrCancelled) {
		t.Fatalf("expected ErrCancelled, got %v", err)
	}
	if prov.callCount() != 1 {
		t.Errorf("provider calls = %d, want 1", prov.callCount())
	}
	if got := roles(s.History().Messages); !reflect.DeepEqual(got, []string{"user", "assistant"}) {
		t.Errorf("history after cancel = %v, want the prior turn only", got)
	}
	if s.State() != StateIdle {
		t.Errorf("state = %s, want idle", s.State())
	}
}

func TestSend_WildcardResolvedPerCall(t *testing.T) {
	wild := bond()
	wild.SupportedTools = []string{schema.WildcardTools}
	store := newMemStore([]schema.AgentDefinition{wild}, removeTool())

	inv := &fakeInvoker{}
	inv.fn = func(context.Context, schema.ToolDefinition, map[string]any) schema.ToolCallResult {
		store.addTool(schema.ToolDefinition{Name: "List", Language: schema.LanguageProcess, Entrypoint: "./list.sh"})
		return schema.ToolCallResult{Success: true, Payload: map[string]any{}}
	}
	prov := &scriptedProvider{responses: []schema.ProviderResponse{
		schema.ToolCalls(removeCall("call_1")),
		schema.FinalText("done"),
	}}
	s := newSession(t, store, inv, prov, Settings{})

	if _, err := s.Send(context.Background(), "go", nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := prov.calls[0].tools; !reflect.DeepEqual(got, []string{"Remove"}) {
		t.Errorf("first call tools = %v", got)
	}
	if got := prov.calls[1].tools; !reflect.DeepEqual(got, []string{"List", "Remove"}) {
		t.Errorf("second call tools = %v, want the tool registered mid-turn", got)
	}
}

func TestSend_SystemPromptTemplate(t *testing.T) {
	a := bond()
	a.SystemPrompt = `You are {{.Agent.Name}}. Tools: {{range .Tools}}{{.Name}} {{end}}`
	store := newMemStore([]schema.AgentDefinition{a}, removeTool())
	prov := &scriptedProvider{responses: []schema.ProviderResponse{schema.FinalText("hi")}}
	s := newSession(t, store, okInvoker(nil), prov, Settings{})

	if _, err := s.Send(context.Background(), "hello", nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got := prov.calls[0].systemPrompt; got != "You are Bond. Tools: Remove" {
		t.Errorf("system prompt = %q", got)
	}
}

func TestSend_ProgressReportsToolHint(t *testing.T) {
	store := newMemStore([]schema.AgentDefinition{bond()}, removeTool())
	prov := &scriptedProvider{responses: []schema.ProviderResponse{
		{ToolCalls: []schema.ToolCallRequest{removeCall("c")}, Text: "On it."},
		schema.FinalText("done"),
	}}
	s := newSession(t, store, okInvoker(map[string]any{}), prov, Settings{})

	var progress []string
	if _, err := s.Send(context.Background(), "go", func(p string) { progress = append(progress, p) }); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if !reflect.DeepEqual(progress, []string{"On it.", "Remove"}) {
		t.Errorf("progress = %v", progress)
	}
}

func TestSend_MultipleTurnsAccumulate(t *testing.T) {
	store := newMemStore([]schema.AgentDefinition{bond()}, removeTool())
	prov := &scriptedProvider{responses: []schema.ProviderResponse{schema.FinalText("hi")}}
	s := newSession(t, store, okInvoker(nil), prov, Settings{})

	for _, in := range []string{"one", "two"} {
		if _, err := s.Send(context.Background(), in, nil); err != nil {
			t.Fatalf("Send(%s): %v", in, err)
		}
	}
	if got := roles(s.History().Messages); !reflect.DeepEqual(got, []string{"user", "assistant", "user", "assistant"}) {
		t.Errorf("history = %v", got)
	}
	if got := roles(prov.calls[1].history); len(got) != 3 {
		t.Errorf("second turn sent %v", got)
	}
}

func TestNewSession_Errors(t *testing.T) {
	secretive := bond()
	secretive.Name = "Q"
	secretive.Secrets = []string{"ORCHESTRIA_TEST_UNSET_SECRET"}
	broken := bond()
	broken.Name = "Broken"
	broken.SystemPrompt = "{{.Agent.Name"
	store := newMemStore([]schema.AgentDefinition{secretive, broken})
	rt := NewRuntime(store, okInvoker(nil), fixedProvider(&scriptedProvider{}), Settings{})

	if _, err := rt.NewSession(context.Background(), "ghost"); err == nil {
		t.Error("expected an error for an unknown agent")
	} else {
		var nf *schema.NotFoundError
		if !errors.As(err, &nf) {
			t.Errorf("expected NotFoundError, got %v", err)
		}
	}
	if _, err := rt.NewSession(context.Background(), "Q"); err == nil || !strings.Contains(err.Error(), "ORCHESTRIA_TEST_UNSET_SECRET") {
		t.Errorf("expected a missing secret error, got %v", err)
	}
	var cfgErr *schema.ConfigError
	if _, err := rt.NewSession(context.Background(), "Broken"); !errors.As(err, &cfgErr) {
		t.Errorf("expected ConfigError for a broken prompt, got %v", err)
	}
}
