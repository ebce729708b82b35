// Package registry holds the agent and tool definitions known to this
// machine. Entries live in memory behind a read/write lock and are written
// through to SQLite; memory only changes after the database commit, so every
// mutation is all-or-nothing.
package registry

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/orchestria/orchestria/internal/bundle"
	"github.com/orchestria/orchestria/internal/schema"
)

// EntryRef names one registry entry.
type EntryRef struct {
	Kind schema.EntryKind
	Name string
}

func (r EntryRef) String() string { return string(r.Kind) + " " + r.Name }

// MergeReport lists what a merged bundle changed.
type MergeReport struct {
	Added   []EntryRef
	Updated []EntryRef
}

// Store is the process-wide registry. It is safe for concurrent use.
type Store struct {
	db *sql.DB

	mu     sync.RWMutex
	agents map[string]schema.AgentDefinition
	tools  map[string]schema.ToolDefinition
}

// Open opens (or creates) the registry database at path and loads it.
func Open(path string) (*Store, error) {
	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	agents, err := loadAgents(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load agents: %w", err)
	}
	tools, err := loadTools(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("load tools: %w", err)
	}
	slog.Debug("Registry loaded", "path", path, "agents", len(agents), "tools", len(tools))
	return &Store{db: db, agents: agents, tools: tools}, nil
}

// Close flushes and closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateAgent registers a local agent. The name must be free under every
// provenance.
func (s *Store) CreateAgent(ctx context.Context, def schema.AgentDefinition) error {
	def.Provenance = schema.LocalProvenance
	data, stored, err := encodeAgent(def)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.agents[def.Name]; ok {
		return &schema.NameCollisionError{
			Kind: schema.KindAgent, Name: def.Name,
			Existing: existing.Provenance, Incoming: def.Provenance,
		}
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		return upsertAgent(ctx, tx, def, data)
	})
	if err != nil {
		return err
	}
	s.agents[def.Name] = stored
	return nil
}

// CreateTool registers a local tool whose process runs in def.Dir.
func (s *Store) CreateTool(ctx context.Context, def schema.ToolDefinition) error {
	def.Provenance = schema.LocalProvenance
	data, stored, err := encodeTool(def)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.tools[def.Name]; ok {
		return &schema.NameCollisionError{
			Kind: schema.KindTool, Name: def.Name,
			Existing: existing.Provenance, Incoming: def.Provenance,
		}
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		return upsertTool(ctx, tx, def, data)
	})
	if err != nil {
		return err
	}
	s.tools[def.Name] = stored
	return nil
}

// Merge commits a fetched bundle under provenance p. Tools run in dir, the
// checkout the bundle was read from.
//
// An unseen name is inserted. A name already registered from the same source,
// at any ref, is replaced. Any other existing name is a collision, and a
// single collision fails the whole bundle with *schema.BundleConflictError.
func (s *Store) Merge(ctx context.Context, p schema.Provenance, dir string, b *bundle.Bundle) (MergeReport, error) {
	var report MergeReport
	if p.IsLocal() {
		return report, fmt.Errorf("merge: bundle provenance has no source")
	}

	agents := make([]schema.AgentDefinition, len(b.Agents))
	agentData := make([][]byte, len(b.Agents))
	for i, def := range b.Agents {
		def.Provenance = p
		data, stored, err := encodeAgent(def)
		if err != nil {
			return report, err
		}
		agents[i], agentData[i] = stored, data
	}
	tools := make([]schema.ToolDefinition, len(b.Tools))
	toolData := make([][]byte, len(b.Tools))
	for i, def := range b.Tools {
		def.Provenance = p
		def.Dir = dir
		data, stored, err := encodeTool(def)
		if err != nil {
			return report, err
		}
		tools[i], toolData[i] = stored, data
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var collisions []*schema.NameCollisionError
	for _, def := range agents {
		ref := EntryRef{Kind: schema.KindAgent, Name: def.Name}
		existing, ok := s.agents[def.Name]
		switch {
		case !ok:
			report.Added = append(report.Added, ref)
		case existing.Provenance.SameSource(p):
			report.Updated = append(report.Updated, ref)
		default:
			collisions = append(collisions, &schema.NameCollisionError{
				Kind: schema.KindAgent, Name: def.Name, Existing: existing.Provenance, Incoming: p,
			})
		}
	}
	for _, def := range tools {
		ref := EntryRef{Kind: schema.KindTool, Name: def.Name}
		existing, ok := s.tools[def.Name]
		switch {
		case !ok:
			report.Added = append(report.Added, ref)
		case existing.Provenance.SameSource(p):
			report.Updated = append(report.Updated, ref)
		default:
			collisions = append(collisions, &schema.NameCollisionError{
				Kind: schema.KindTool, Name: def.Name, Existing: existing.Provenance, Incoming: p,
			})
		}
	}
	if len(collisions) > 0 {
		return MergeReport{}, &schema.BundleConflictError{Provenance: p, Collisions: collisions}
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for i, def := range agents {
			if err := upsertAgent(ctx, tx, def, agentData[i]); err != nil {
				return err
			}
		}
		for i, def := range tools {
			if err := upsertTool(ctx, tx, def, toolData[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return MergeReport{}, err
	}

	for _, def := range agents {
		s.agents[def.Name] = def
	}
	for _, def := range tools {
		s.tools[def.Name] = def
	}
	return report, nil
}

// DeleteAgent removes the named agent. If it was fetched, every agent and
// tool from the same (source, ref) bundle goes with it. The removed entries
// are returned sorted.
func (s *Store) DeleteAgent(ctx context.Context, name string) ([]EntryRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	def, ok := s.agents[name]
	if !ok {
		return nil, &schema.NotFoundError{Kind: schema.KindAgent, Name: name}
	}
	return s.deleteLocked(ctx, schema.KindAgent, name, def.Provenance)
}

// DeleteTool removes the named tool, cascading like DeleteAgent.
//
// Agents naming the tool in supported_tools keep the dangling name; it is
// reported by ResolveTools and skipped.
func (s *Store) DeleteTool(ctx context.Context, name string) ([]EntryRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	def, ok := s.tools[name]
	if !ok {
		return nil, &schema.NotFoundError{Kind: schema.KindTool, Name: name}
	}
	return s.deleteLocked(ctx, schema.KindTool, name, def.Provenance)
}

func (s *Store) deleteLocked(ctx context.Context, kind schema.EntryKind, name string, p schema.Provenance) ([]EntryRef, error) {
	if p.IsLocal() {
		err := s.withTx(ctx, func(tx *sql.Tx) error {
			return deleteByName(ctx, tx, kind, name)
		})
		if err != nil {
			return nil, err
		}
		if kind == schema.KindAgent {
			delete(s.agents, name)
		} else {
			delete(s.tools, name)
		}
		return []EntryRef{{Kind: kind, Name: name}}, nil
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		return deleteByProvenance(ctx, tx, p)
	})
	if err != nil {
		return nil, err
	}

	var removed []EntryRef
	for n, def := range s.agents {
		if def.Provenance.Equal(p) {
			delete(s.agents, n)
			removed = append(removed, EntryRef{Kind: schema.KindAgent, Name: n})
		}
	}
	for n, def := range s.tools {
		if def.Provenance.Equal(p) {
			delete(s.tools, n)
			removed = append(removed, EntryRef{Kind: schema.KindTool, Name: n})
		}
	}
	sort.Slice(removed, func(i, j int) bool {
		if removed[i].Kind != removed[j].Kind {
			return removed[i].Kind < removed[j].Kind
		}
		return removed[i].Name < removed[j].Name
	})
	slog.Info("Bundle removed", "provenance", p.String(), "entries", len(removed))
	return removed, nil
}

// Agent returns the named agent definition.
func (s *Store) Agent(name string) (schema.AgentDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.agents[name]
	if !ok {
		return schema.AgentDefinition{}, &schema.NotFoundError{Kind: schema.KindAgent, Name: name}
	}
	return def, nil
}

// Tool returns the named tool definition.
func (s *Store) Tool(name string) (schema.ToolDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	def, ok := s.tools[name]
	if !ok {
		return schema.ToolDefinition{}, &schema.NotFoundError{Kind: schema.KindTool, Name: name}
	}
	return def, nil
}

func (s *Store) AgentNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.agents)
}

func (s *Store) ToolNames() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.tools)
}

// Agents returns every agent definition sorted by name.
func (s *Store) Agents() []schema.AgentDefinition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]schema.AgentDefinition, 0, len(s.agents))
	for _, name := range sortedKeys(s.agents) {
		out = append(out, s.agents[name])
	}
	return out
}

// Tools returns every tool definition sorted by name.
func (s *Store) Tools() []schema.ToolDefinition {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.allToolsLocked()
}

// ResolveTools returns the tool set an agent may call right now: every
// registered tool for the wildcard, otherwise the named tools that still
// exist. Names that no longer resolve are returned as dangling.
func (s *Store) ResolveTools(agent schema.AgentDefinition) ([]schema.ToolDefinition, []string) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if agent.SupportsAllTools() {
		return s.allToolsLocked(), nil
	}

	var (
		out      []schema.ToolDefinition
		dangling []string
		seen     = make(map[string]bool, len(agent.SupportedTools))
	)
	for _, name := range agent.SupportedTools {
		if seen[name] {
			continue
		}
		seen[name] = true
		if def, ok := s.tools[name]; ok {
			out = append(out, def)
		} else {
			dangling = append(dangling, name)
		}
	}
	return out, dangling
}

func (s *Store) allToolsLocked() []schema.ToolDefinition {
	out := make([]schema.ToolDefinition, 0, len(s.tools))
	for _, name := range sortedKeys(s.tools) {
		out = append(out, s.tools[name])
	}
	return out
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
