package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"text/template"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/orchestria/orchestria/internal/schema"
	"github.com/orchestria/orchestria/internal/shared/llmutils"
	"github.com/orchestria/orchestria/internal/tools"
)

// Session is one conversation with one agent. Turns are sequential: Send
// holds the session until the turn ends.
type Session struct {
	rt       *Runtime
	agent    schema.AgentDefinition
	provider schema.Provider
	prompt   *template.Template

	mu      sync.Mutex // held for a whole turn
	history schema.Messages
	state   atomic.Int32

	// OnTransition, when set, observes every state change.
	OnTransition func(from, to State)
}

func (s *Session) Agent() schema.AgentDefinition { return s.agent }

// State returns the current loop state.
func (s *Session) State() State { return State(s.state.Load()) }

// History returns a copy of the conversation so far.
func (s *Session) History() schema.Messages {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.history.Clone()
}

// Tools resolves the agent's tool set against the registry as it is now.
func (s *Session) Tools() *tools.ToolList {
	defs, dangling := s.rt.store.ResolveTools(s.agent)
	if len(dangling) > 0 {
		slog.Warn("Agent names tools that are not registered", "agent", s.agent.Name, "tools", dangling)
	}
	return tools.NewToolList(defs...)
}

// Send runs one turn: the user input, any number of tool rounds, and the
// model's final text, which is returned.
//
// A turn that fails with *schema.ProviderError or
// *schema.LoopLimitExceededError, or is cancelled through ctx
// (schema.ErrCancelled), leaves the history as it was before the call.
// Failed tool calls do not end the turn; the model sees their errors.
func (s *Session) Send(ctx context.Context, input string, onProgress func(string)) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	mark := s.history.Len()
	s.history.AddUser(input)

	limit := s.rt.settings.MaxIterations
	for i := 0; i < limit; i++ {
		if ctx.Err() != nil {
			return "", s.abort(mark, StateCancelled, schema.ErrCancelled)
		}
		s.transition(StateAwaitingModel)

		// Resolved per call: a wildcard agent sees tools registered mid-turn.
		toolset := s.Tools()
		systemPrompt, err := renderPrompt(s.prompt, s.agent, toolset.Definitions())
		if err != nil {
			return "", s.abort(mark, StateError, err)
		}

		slog.Debug("Provider call", "agent", s.agent.Name, "model", s.agent.Model, "iteration", i+1, "tools", toolset.Len())
		resp, err := s.provider.SendTurn(ctx, s.history, systemPrompt, s.agent.GenerationArguments, toolset.Schemas())
		if err != nil {
			if ctx.Err() != nil {
				return "", s.abort(mark, StateCancelled, schema.ErrCancelled)
			}
			var provErr *schema.ProviderError
			if !errors.As(err, &provErr) {
				err = &schema.ProviderError{Provider: s.provider.Name(), Model: s.agent.Model, Err: err}
			}
			return "", s.abort(mark, StateError, err)
		}

		if resp.Final || len(resp.ToolCalls) == 0 {
			s.transition(StateResponding)
			text := llmutils.StripThink(resp.Text)
			s.history.AddAssistant(text)
			s.transition(StateIdle)
			return text, nil
		}

		if i == limit-1 {
			return "", s.abort(mark, StateError, &schema.LoopLimitExceededError{Limit: limit})
		}

		s.transition(StateToolCallsPending)
		if onProgress != nil {
			if clean := llmutils.StripThink(resp.Text); clean != "" {
				onProgress(clean)
			}
			onProgress(llmutils.ToolHint(resp.ToolCalls))
		}

		calls := normalizeCalls(resp.ToolCalls, i)
		results := s.invokeAll(ctx, toolset, calls)
		if ctx.Err() != nil {
			return "", s.abort(mark, StateCancelled, schema.ErrCancelled)
		}
		s.history.AddToolRound(calls, results)
	}
	// Unreachable for limit > 0: the last iteration either answers or aborts.
	return "", s.abort(mark, StateError, &schema.LoopLimitExceededError{Limit: limit})
}

// invokeAll runs the authorized calls concurrently and returns one result per
// call, in call order. Calls outside the tool set fail without running.
func (s *Session) invokeAll(ctx context.Context, toolset *tools.ToolList, calls []schema.ToolCallRequest) []schema.ToolCallResult {
	results := make([]schema.ToolCallResult, len(calls))

	type job struct {
		index int
		def   schema.ToolDefinition
	}
	var jobs []job
	for i, call := range calls {
		def, ok := toolset.Get(call.Name)
		if !ok {
			slog.Warn("Model requested a tool outside its tool set", "agent", s.agent.Name, "tool", call.Name)
			results[i] = schema.FailedResult(call.ID, &schema.ToolCallValidationError{
				Tool:       call.Name,
				Violations: []string{fmt.Sprintf("tool %q is not available to agent %q", call.Name, s.agent.Name)},
			})
			continue
		}
		jobs = append(jobs, job{index: i, def: def})
	}
	if len(jobs) == 0 {
		return results
	}

	s.transition(StateInvoking)
	var g errgroup.Group
	g.SetLimit(s.rt.settings.MaxParallelTools)
	for _, j := range jobs {
		call := calls[j.index]
		g.Go(func() error {
			slog.Info("Tool call", "name", call.Name, "id", call.ID,
				"args", llmutils.Truncate(fmt.Sprint(call.Arguments), 200))
			start := time.Now()
			res := s.rt.invoker.Invoke(ctx, j.def, call.Arguments)
			res.CallID = call.ID
			if res.Success {
				slog.Info("Tool call done", "name", call.Name, "id", call.ID, "duration", time.Since(start))
			} else {
				slog.Warn("Tool call failed", "name", call.Name, "id", call.ID, "duration", time.Since(start), "err", res.Error)
			}
			results[j.index] = res
			return nil
		})
	}
	g.Wait()
	return results
}

// abort ends a turn without an answer: the turn's messages are dropped and
// the session passes through exit on its way back to idle.
func (s *Session) abort(mark int, exit State, err error) error {
	s.history.Truncate(mark)
	s.transition(exit)
	s.transition(StateIdle)
	if exit == StateCancelled {
		slog.Info("Turn cancelled", "agent", s.agent.Name)
	} else {
		slog.Error("Turn failed", "agent", s.agent.Name, "err", err)
	}
	return err
}

func (s *Session) transition(to State) {
	from := State(s.state.Swap(int32(to)))
	if s.OnTransition != nil && from != to {
		s.OnTransition(from, to)
	}
}

// normalizeCalls gives every call an id unique within the response.
func normalizeCalls(calls []schema.ToolCallRequest, iteration int) []schema.ToolCallRequest {
	out := make([]schema.ToolCallRequest, len(calls))
	seen := make(map[string]bool, len(calls))
	for i, c := range calls {
		if c.ID == "" || seen[c.ID] {
			c.ID = fmt.Sprintf("call_%d_%d", iteration, i)
		}
		seen[c.ID] = true
		out[i] = c
	}
	return out
}
