package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"

	"mira/internal/logging"
)

// migration is one numbered, checksummed step in the schema sequence.
// Grounded on the teacher's internal/store/migrations.go list-of-steps
// idiom, generalized from ad hoc ALTER TABLE checks into a versioned,
// checksum-verified sequence per spec.md §4.1.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// schemaMigrations is the ordered, numbered migration sequence. Table names
// are part of the contract named in spec.md §6.
var schemaMigrations = []migration{
	{1, "projects", `
		CREATE TABLE IF NOT EXISTS projects (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			path TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`},
	{2, "sessions", `
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			project_id INTEGER REFERENCES projects(id),
			started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			last_activity_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			end_reason TEXT
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_project ON sessions(project_id);
	`},
	{3, "memory_facts", `
		CREATE TABLE IF NOT EXISTS memory_facts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id INTEGER REFERENCES projects(id),
			key TEXT,
			content TEXT NOT NULL,
			fact_type TEXT NOT NULL,
			category TEXT,
			confidence REAL NOT NULL DEFAULT 0.5,
			scope TEXT NOT NULL DEFAULT 'project',
			user_id TEXT,
			team_id INTEGER,
			branch TEXT,
			status TEXT NOT NULL DEFAULT 'candidate',
			suspicious INTEGER NOT NULL DEFAULT 0,
			session_count INTEGER NOT NULL DEFAULT 0,
			first_session_id TEXT,
			last_session_id TEXT,
			last_recalled DATETIME,
			recall_count INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_facts_keyed ON memory_facts(
			project_id, key, scope, COALESCE(user_id,''), COALESCE(team_id,0)
		) WHERE key IS NOT NULL;
		CREATE INDEX IF NOT EXISTS idx_facts_project ON memory_facts(project_id);
		CREATE INDEX IF NOT EXISTS idx_facts_status ON memory_facts(status);
		CREATE INDEX IF NOT EXISTS idx_facts_category ON memory_facts(category);
	`},
	{4, "fact_embeddings", `
		CREATE TABLE IF NOT EXISTS fact_embeddings (
			fact_id INTEGER PRIMARY KEY REFERENCES memory_facts(id) ON DELETE CASCADE,
			embedding BLOB NOT NULL,
			embedded_text TEXT NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`},
	{5, "code_symbols", `
		CREATE TABLE IF NOT EXISTS code_symbols (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id INTEGER NOT NULL REFERENCES projects(id),
			file_path TEXT NOT NULL,
			name TEXT NOT NULL,
			qualified_name TEXT NOT NULL,
			symbol_type TEXT NOT NULL,
			language TEXT NOT NULL,
			start_line INTEGER NOT NULL,
			end_line INTEGER NOT NULL,
			signature TEXT,
			visibility TEXT,
			documentation TEXT,
			return_type TEXT,
			decorators TEXT,
			is_test INTEGER NOT NULL DEFAULT 0,
			is_async INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_symbols_project_file ON code_symbols(project_id, file_path);
		CREATE INDEX IF NOT EXISTS idx_symbols_name ON code_symbols(name);
		CREATE INDEX IF NOT EXISTS idx_symbols_type ON code_symbols(symbol_type);
	`},
	{6, "code_imports", `
		CREATE TABLE IF NOT EXISTS code_imports (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id INTEGER NOT NULL REFERENCES projects(id),
			file_path TEXT NOT NULL,
			import_path TEXT NOT NULL,
			imported_names TEXT,
			is_external INTEGER NOT NULL DEFAULT 0
		);
		CREATE INDEX IF NOT EXISTS idx_imports_project_file ON code_imports(project_id, file_path);
	`},
	{7, "call_graph", `
		CREATE TABLE IF NOT EXISTS call_graph (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id INTEGER NOT NULL REFERENCES projects(id),
			caller_id INTEGER NOT NULL REFERENCES code_symbols(id) ON DELETE CASCADE,
			callee_name TEXT NOT NULL,
			line INTEGER NOT NULL,
			call_type TEXT NOT NULL DEFAULT 'direct',
			count INTEGER NOT NULL DEFAULT 1,
			UNIQUE(caller_id, callee_name)
		);
		CREATE INDEX IF NOT EXISTS idx_calls_callee ON call_graph(callee_name);
		CREATE INDEX IF NOT EXISTS idx_calls_project ON call_graph(project_id);
	`},
	{8, "code_chunks", `
		CREATE TABLE IF NOT EXISTS code_chunks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id INTEGER NOT NULL REFERENCES projects(id),
			file_path TEXT NOT NULL,
			start_line INTEGER NOT NULL,
			end_line INTEGER NOT NULL,
			text TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS code_chunk_embeddings (
			chunk_id INTEGER PRIMARY KEY REFERENCES code_chunks(id) ON DELETE CASCADE,
			embedding BLOB NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_chunks_project_file ON code_chunks(project_id, file_path);
	`},
	{9, "goals_milestones_tasks", `
		CREATE TABLE IF NOT EXISTS goals (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id INTEGER NOT NULL REFERENCES projects(id),
			title TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'open',
			priority INTEGER NOT NULL DEFAULT 0,
			progress_percent INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS milestones (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			goal_id INTEGER NOT NULL REFERENCES goals(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			weight INTEGER NOT NULL DEFAULT 1,
			completed INTEGER NOT NULL DEFAULT 0,
			completion_session_id TEXT
		);
		CREATE TABLE IF NOT EXISTS tasks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id INTEGER NOT NULL REFERENCES projects(id),
			title TEXT NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			priority INTEGER NOT NULL DEFAULT 0,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_milestones_goal ON milestones(goal_id);
		CREATE INDEX IF NOT EXISTS idx_tasks_project ON tasks(project_id);
	`},
	{10, "build_runs_and_errors", `
		CREATE TABLE IF NOT EXISTS build_runs (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id INTEGER NOT NULL REFERENCES projects(id),
			operation_id TEXT NOT NULL,
			build_type TEXT NOT NULL,
			command TEXT,
			exit_code INTEGER NOT NULL,
			duration_millis INTEGER NOT NULL,
			started_at DATETIME NOT NULL,
			finished_at DATETIME NOT NULL,
			error_count INTEGER NOT NULL DEFAULT 0,
			warning_count INTEGER NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS build_errors (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id INTEGER NOT NULL REFERENCES projects(id),
			build_run_id INTEGER NOT NULL REFERENCES build_runs(id),
			error_hash TEXT NOT NULL,
			severity TEXT NOT NULL,
			error_code TEXT,
			message TEXT NOT NULL,
			file_path TEXT,
			line INTEGER,
			column INTEGER,
			suggestion TEXT,
			category TEXT NOT NULL DEFAULT 'other',
			first_seen DATETIME DEFAULT CURRENT_TIMESTAMP,
			last_seen DATETIME DEFAULT CURRENT_TIMESTAMP,
			occurrence_count INTEGER NOT NULL DEFAULT 1,
			resolved_at DATETIME,
			UNIQUE(project_id, error_hash)
		);
		CREATE INDEX IF NOT EXISTS idx_build_errors_project ON build_errors(project_id);
		CREATE INDEX IF NOT EXISTS idx_build_errors_code ON build_errors(error_code);
		CREATE INDEX IF NOT EXISTS idx_build_errors_category ON build_errors(category);
		CREATE INDEX IF NOT EXISTS idx_build_errors_resolved ON build_errors(resolved_at);
	`},
	{11, "error_resolutions", `
		CREATE TABLE IF NOT EXISTS error_resolutions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			error_hash TEXT NOT NULL,
			type TEXT NOT NULL,
			files_changed TEXT NOT NULL,
			commit_hash TEXT,
			duration_millis INTEGER,
			notes TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_resolutions_hash ON error_resolutions(error_hash);
	`},
	{12, "behavior_patterns", `
		CREATE TABLE IF NOT EXISTS behavior_patterns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id INTEGER NOT NULL REFERENCES projects(id),
			pattern_type TEXT NOT NULL,
			pattern_key TEXT NOT NULL,
			payload TEXT NOT NULL,
			confidence REAL NOT NULL DEFAULT 0.5,
			occurrence_count INTEGER NOT NULL DEFAULT 1,
			first_seen DATETIME DEFAULT CURRENT_TIMESTAMP,
			last_triggered DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(project_id, pattern_type, pattern_key)
		);
	`},
	{13, "proactive_interventions", `
		CREATE TABLE IF NOT EXISTS proactive_interventions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id INTEGER NOT NULL REFERENCES projects(id),
			type TEXT NOT NULL,
			content TEXT NOT NULL,
			confidence REAL NOT NULL,
			trigger_pattern_id INTEGER REFERENCES behavior_patterns(id),
			response TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			responded_at DATETIME
		);
		CREATE INDEX IF NOT EXISTS idx_interventions_project ON proactive_interventions(project_id);
	`},
	{14, "teams", `
		CREATE TABLE IF NOT EXISTS teams (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS team_sessions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			team_id INTEGER NOT NULL REFERENCES teams(id),
			session_id TEXT NOT NULL REFERENCES sessions(id),
			started_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			ended_at DATETIME
		);
		CREATE TABLE IF NOT EXISTS team_file_ownership (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			team_id INTEGER NOT NULL REFERENCES teams(id),
			project_id INTEGER NOT NULL REFERENCES projects(id),
			file_path TEXT NOT NULL,
			UNIQUE(team_id, project_id, file_path)
		);
	`},
	{15, "server_state", `
		CREATE TABLE IF NOT EXISTS server_state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`},
	{16, "cochange", `
		CREATE TABLE IF NOT EXISTS file_cochange (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id INTEGER NOT NULL REFERENCES projects(id),
			file_a TEXT NOT NULL,
			file_b TEXT NOT NULL,
			commit_count INTEGER NOT NULL DEFAULT 1,
			last_seen DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(project_id, file_a, file_b)
		);
		CREATE INDEX IF NOT EXISTS idx_cochange_project_a ON file_cochange(project_id, file_a);
	`},
	{17, "tool_invocations", `
		CREATE TABLE IF NOT EXISTS tool_invocations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			project_id INTEGER NOT NULL REFERENCES projects(id),
			session_id TEXT,
			tool_name TEXT NOT NULL,
			success INTEGER NOT NULL DEFAULT 1,
			duration_millis INTEGER,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_tool_invocations_project_time ON tool_invocations(project_id, created_at);
	`},
}

// RunMigrations applies every pending migration in order inside its own
// transaction, recording version + sha256 checksum in schema_migrations so
// a corrupted or hand-edited history is detected at open time rather than
// silently diverging.
func RunMigrations(db *sql.DB) error {
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			checksum TEXT NOT NULL,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	applied := make(map[int]string)
	rows, err := db.Query(`SELECT version, checksum FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("read schema_migrations: %w", err)
	}
	for rows.Next() {
		var v int
		var c string
		if err := rows.Scan(&v, &c); err != nil {
			rows.Close()
			return fmt.Errorf("scan schema_migrations: %w", err)
		}
		applied[v] = c
	}
	rows.Close()

	for _, m := range schemaMigrations {
		sum := checksum(m.SQL)
		if prior, ok := applied[m.Version]; ok {
			if prior != sum {
				return fmt.Errorf("migration %d (%s) checksum mismatch: schema file was modified after being applied", m.Version, m.Name)
			}
			continue
		}

		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin migration %d: %w", m.Version, err)
		}
		if _, err := tx.Exec(m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Name, err)
		}
		if _, err := tx.Exec(
			`INSERT INTO schema_migrations(version, name, checksum) VALUES (?, ?, ?)`,
			m.Version, m.Name, sum,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
		logging.StoreDebug("applied migration %d: %s", m.Version, m.Name)
	}

	return nil
}

func checksum(sql string) string {
	sum := sha256.Sum256([]byte(sql))
	return hex.EncodeToString(sum[:])
}
