package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/orchestria/orchestria/internal/schema"
)

func openDB(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create registry dir: %w", err)
	}
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return db, nil
}

func migrate(db *sql.DB) error {
	ddl := `
	CREATE TABLE IF NOT EXISTS agents (
		name TEXT PRIMARY KEY,
		source TEXT NOT NULL DEFAULT '',
		ref TEXT NOT NULL DEFAULT '',
		definition TEXT NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_agents_provenance ON agents(source, ref);

	CREATE TABLE IF NOT EXISTS tools (
		name TEXT PRIMARY KEY,
		source TEXT NOT NULL DEFAULT '',
		ref TEXT NOT NULL DEFAULT '',
		dir TEXT NOT NULL DEFAULT '',
		definition TEXT NOT NULL,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_tools_provenance ON tools(source, ref);
	`
	_, err := db.Exec(ddl)
	return err
}

// encodeAgent returns the stored form of def and the definition as it will
// read back from the database.
func encodeAgent(def schema.AgentDefinition) ([]byte, schema.AgentDefinition, error) {
	data, err := json.Marshal(def)
	if err != nil {
		return nil, def, fmt.Errorf("encode agent %q: %w", def.Name, err)
	}
	var out schema.AgentDefinition
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, def, fmt.Errorf("encode agent %q: %w", def.Name, err)
	}
	out.Provenance = def.Provenance
	return data, out, nil
}

func encodeTool(def schema.ToolDefinition) ([]byte, schema.ToolDefinition, error) {
	data, err := json.Marshal(def)
	if err != nil {
		return nil, def, fmt.Errorf("encode tool %q: %w", def.Name, err)
	}
	var out schema.ToolDefinition
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, def, fmt.Errorf("encode tool %q: %w", def.Name, err)
	}
	out.Provenance = def.Provenance
	out.Dir = def.Dir
	return data, out, nil
}

func upsertAgent(ctx context.Context, tx *sql.Tx, def schema.AgentDefinition, data []byte) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO agents (name, source, ref, definition, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
			source = excluded.source, ref = excluded.ref,
			definition = excluded.definition, updated_at = excluded.updated_at`,
		def.Name, def.Provenance.Source, def.Provenance.Ref, string(data), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("store agent %q: %w", def.Name, err)
	}
	return nil
}

func upsertTool(ctx context.Context, tx *sql.Tx, def schema.ToolDefinition, data []byte) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO tools (name, source, ref, dir, definition, updated_at) VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
			source = excluded.source, ref = excluded.ref, dir = excluded.dir,
			definition = excluded.definition, updated_at = excluded.updated_at`,
		def.Name, def.Provenance.Source, def.Provenance.Ref, def.Dir, string(data), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("store tool %q: %w", def.Name, err)
	}
	return nil
}

func deleteByName(ctx context.Context, tx *sql.Tx, kind schema.EntryKind, name string) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM `+table(kind)+` WHERE name = ?`, name)
	return err
}

func deleteByProvenance(ctx context.Context, tx *sql.Tx, p schema.Provenance) error {
	for _, kind := range []schema.EntryKind{schema.KindAgent, schema.KindTool} {
		_, err := tx.ExecContext(ctx,
			`DELETE FROM `+table(kind)+` WHERE source = ? AND ref = ?`, p.Source, p.Ref)
		if err != nil {
			return err
		}
	}
	return nil
}

func table(kind schema.EntryKind) string {
	if kind == schema.KindAgent {
		return "agents"
	}
	return "tools"
}

func loadAgents(db *sql.DB) (map[string]schema.AgentDefinition, error) {
	rows, err := db.Query(`SELECT name, source, ref, definition FROM agents`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]schema.AgentDefinition)
	for rows.Next() {
		var name, source, ref, data string
		if err := rows.Scan(&name, &source, &ref, &data); err != nil {
			return nil, err
		}
		var def schema.AgentDefinition
		if err := json.Unmarshal([]byte(data), &def); err != nil {
			return nil, fmt.Errorf("decode agent %q: %w", name, err)
		}
		def.Name = name
		def.Provenance = schema.NewProvenance(source, ref)
		out[name] = def
	}
	return out, rows.Err()
}

func loadTools(db *sql.DB) (map[string]schema.ToolDefinition, error) {
	rows, err := db.Query(`SELECT name, source, ref, dir, definition FROM tools`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]schema.ToolDefinition)
	for rows.Next() {
		var name, source, ref, dir, data string
		if err := rows.Scan(&name, &source, &ref, &dir, &data); err != nil {
			return nil, err
		}
		var def schema.ToolDefinition
		if err := json.Unmarshal([]byte(data), &def); err != nil {
			return nil, fmt.Errorf("decode tool %q: %w", name, err)
		}
		def.Name = name
		def.Dir = dir
		def.Provenance = schema.NewProvenance(source, ref)
		out[name] = def
	}
	return out, rows.Err()
}
