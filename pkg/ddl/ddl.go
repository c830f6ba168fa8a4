// Package ddl builds the SQL statements the job registry and change
// capture use to materialize and tear down a job's generated storage,
// indexes, and triggers. Every identifier passed to a builder is checked
// by CheckIdentifier first, so callers cannot interpolate attacker- or
// typo-controlled strings into generated DDL.
package ddl

import (
	"fmt"
	"strings"

	"github.com/paperlane/vectorize/pkg/job"
)

// CheckIdentifier rejects anything that isn't a valid unquoted SQL
// identifier: ASCII letters, digits, and underscores, not starting with a
// digit. This is the only gate standing between a job name or column
// name and a string built into DDL, so it is deliberately strict rather
// than attempting to allow-list quoting rules.
func CheckIdentifier(s string) error {
	if s == "" {
		return fmt.Errorf("identifier must not be empty")
	}
	for i, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c == '_':
		case c >= '0' && c <= '9':
			if i == 0 {
				return fmt.Errorf("invalid identifier %q: cannot start with a digit", s)
			}
		default:
			return fmt.Errorf("invalid identifier %q: contains %q", s, c)
		}
	}
	return nil
}

// CheckIdentifiers checks every identifier in one call, returning the
// first error encountered.
func CheckIdentifiers(ss ...string) error {
	for _, s := range ss {
		if err := CheckIdentifier(s); err != nil {
			return err
		}
	}
	return nil
}

const vectorizeSchema = "vectorize"

// CreateSchema returns the statements that bootstrap the vectorize
// schema and the pgvector extension. Idempotent.
func CreateSchema() []string {
	return []string{
		"CREATE SCHEMA IF NOT EXISTS " + vectorizeSchema + ";",
		"CREATE EXTENSION IF NOT EXISTS vector;",
		"CREATE EXTENSION IF NOT EXISTS pgmq;",
	}
}

// CreateJobTable returns the statement creating the job metadata table.
func CreateJobTable() string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s.job (
	job_id BIGSERIAL PRIMARY KEY,
	name TEXT UNIQUE NOT NULL,
	job_type TEXT NOT NULL DEFAULT 'columns',
	transformer TEXT NOT NULL,
	search_alg TEXT NOT NULL,
	table_method TEXT NOT NULL,
	schedule TEXT NOT NULL,
	params JSONB NOT NULL,
	last_completion TIMESTAMPTZ
);`, vectorizeSchema)
}

// CreateEmbeddingTable returns the statement creating the side table for
// the "join" table method.
func CreateEmbeddingTable(name string, src job.Source, dimension int) (string, error) {
	if err := CheckIdentifiers(name, src.Schema, src.Relation, src.PrimaryKey); err != nil {
		return "", err
	}
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s.%[2]s (
	%[3]s %[4]s PRIMARY KEY,
	embedding vector(%[5]d),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	FOREIGN KEY (%[3]s) REFERENCES %[6]s.%[7]s (%[3]s) ON DELETE CASCADE
);`,
		vectorizeSchema, job.EmbeddingsTable(name),
		src.PrimaryKey, src.PrimaryKeyType, dimension,
		src.Schema, src.Relation,
	), nil
}

// AddAppendColumns returns the statements adding the embedding and
// updated_at columns for the "append" table method.
func AddAppendColumns(name string, src job.Source, dimension int) ([]string, error) {
	if err := CheckIdentifiers(name, src.Schema, src.Relation); err != nil {
		return nil, err
	}
	embCol := job.AppendEmbeddingColumn(name)
	updCol := job.AppendUpdatedAtColumn(name)
	return []string{
		fmt.Sprintf("ALTER TABLE %s.%s ADD COLUMN IF NOT EXISTS %s vector(%d);",
			src.Schema, src.Relation, embCol, dimension),
		fmt.Sprintf("ALTER TABLE %s.%s ADD COLUMN IF NOT EXISTS %s TIMESTAMPTZ;",
			src.Schema, src.Relation, updCol),
	}, nil
}

// CreateHNSWIndex returns the statement building the HNSW index matching
// alg's operator class, over either the side table's embedding column
// (join) or the source table's append column.
func CreateHNSWIndex(name string, method job.TableMethod, src job.Source, alg job.SearchAlg) (string, error) {
	var schema, table, col string
	switch method {
	case job.TableMethodJoin:
		schema, table, col = vectorizeSchema, job.EmbeddingsTable(name), "embedding"
	default:
		schema, table, col = src.Schema, src.Relation, job.AppendEmbeddingColumn(name)
	}
	if err := CheckIdentifiers(name, schema, table, col); err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS %s_hnsw_idx ON %s.%s USING hnsw (%s %s);",
		name, schema, table, col, alg.OpClass(),
	), nil
}

// DropHNSWIndex returns the statement dropping the HNSW index a job's
// create step installed, using the same schema CreateHNSWIndex chose.
func DropHNSWIndex(name string, method job.TableMethod, src job.Source) (string, error) {
	schema := vectorizeSchema
	if method == job.TableMethodAppend {
		schema = src.Schema
	}
	if err := CheckIdentifiers(name, schema); err != nil {
		return "", err
	}
	return fmt.Sprintf("DROP INDEX IF EXISTS %s.%s_hnsw_idx;", schema, name), nil
}

// CreateFTSIndex returns the statement building a GIN index over the
// tsvector of a job's configured text columns, for the lexical scan.
func CreateFTSIndex(name string, src job.Source) (string, error) {
	if err := CheckIdentifiers(append([]string{name, src.Schema, src.Relation}, src.TextColumns...)...); err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"CREATE INDEX IF NOT EXISTS %s_fts_idx ON %s.%s USING GIN (to_tsvector('english', %s));",
		name, src.Schema, src.Relation, concatColumnsExpr(src.TextColumns),
	), nil
}

// concatColumnsExpr builds "coalesce(col1,'') || ' ' || coalesce(col2,'')"
// for the given already-validated column list.
func concatColumnsExpr(cols []string) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = fmt.Sprintf("coalesce(%s, '')", c)
	}
	return strings.Join(parts, " || ' ' || ")
}

// TextConcatExpr is exported for use by the worker (fetching row text)
// and the search engine (building the lexical tsquery target).
func TextConcatExpr(cols []string) (string, error) {
	if err := CheckIdentifiers(cols...); err != nil {
		return "", err
	}
	return concatColumnsExpr(cols), nil
}

// CreateTriggerFunction returns the statement creating the PL/pgSQL
// function a realtime job's AFTER INSERT/UPDATE triggers call. The
// function cannot itself talk to pgmq (triggers run inside the same
// transaction as the write and must not block on network I/O), so it
// appends a capture row to a plain landing table instead; the worker
// pool drains that table into the durable queue (see pkg/capture).
func CreateTriggerFunction(name string, src job.Source) (string, error) {
	if err := CheckIdentifiers(name, src.PrimaryKey); err != nil {
		return "", err
	}
	fn := job.TriggerFunctionName(name)
	return fmt.Sprintf(`
CREATE OR REPLACE FUNCTION %[1]s.%[2]s() RETURNS trigger AS $$
BEGIN
	INSERT INTO %[1]s._capture_queue (job_name, pk)
	VALUES (%[3]s, NEW.%[4]s::text);
	RETURN NEW;
END;
$$ LANGUAGE plpgsql;`, vectorizeSchema, fn, sqlStringLiteral(name), src.PrimaryKey), nil
}

// sqlStringLiteral quotes s as a SQL string literal, doubling any
// embedded single quote. name is already identifier-validated by
// CheckIdentifier wherever this is called, so there's never actually a
// quote to escape, but the literal is built correctly regardless.
func sqlStringLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// CreateCaptureQueueTable returns the statement creating the shared
// landing table realtime trigger functions insert into.
func CreateCaptureQueueTable() string {
	return fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s._capture_queue (
	id BIGSERIAL PRIMARY KEY,
	job_name TEXT NOT NULL,
	pk TEXT NOT NULL,
	captured_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`, vectorizeSchema)
}

// CreateRowTrigger returns the statement installing an AFTER event
// trigger on the source table calling the job's trigger function.
func CreateRowTrigger(name string, src job.Source, event string) (string, error) {
	if err := CheckIdentifiers(name, src.Schema, src.Relation); err != nil {
		return "", err
	}
	switch event {
	case "INSERT", "UPDATE":
	default:
		return "", fmt.Errorf("unsupported trigger event %q", event)
	}
	trigName := fmt.Sprintf("%s_%s_trg", name, strings.ToLower(event))
	return fmt.Sprintf(
		"CREATE TRIGGER %s AFTER %s ON %s.%s FOR EACH ROW EXECUTE FUNCTION %s.%s();",
		trigName, event, src.Schema, src.Relation, vectorizeSchema, job.TriggerFunctionName(name),
	), nil
}

// DropTriggers returns the statements removing a job's realtime triggers
// and trigger function. Safe to call even if realtime was never used.
func DropTriggers(name string, src job.Source) ([]string, error) {
	if err := CheckIdentifiers(name, src.Schema, src.Relation); err != nil {
		return nil, err
	}
	return []string{
		fmt.Sprintf("DROP TRIGGER IF EXISTS %s_insert_trg ON %s.%s;", name, src.Schema, src.Relation),
		fmt.Sprintf("DROP TRIGGER IF EXISTS %s_update_trg ON %s.%s;", name, src.Schema, src.Relation),
		fmt.Sprintf("DROP FUNCTION IF EXISTS %s.%s();", vectorizeSchema, job.TriggerFunctionName(name)),
	}, nil
}

// DropStorage returns the statements removing a job's generated storage
// (side table, or append columns) and indexes.
func DropStorage(name string, method job.TableMethod, src job.Source) ([]string, error) {
	if err := CheckIdentifiers(name, src.Schema, src.Relation); err != nil {
		return nil, err
	}
	switch method {
	case job.TableMethodJoin:
		return []string{
			fmt.Sprintf("DROP TABLE IF EXISTS %s.%s;", vectorizeSchema, job.EmbeddingsTable(name)),
		}, nil
	default:
		return []string{
			fmt.Sprintf("ALTER TABLE %s.%s DROP COLUMN IF EXISTS %s;", src.Schema, src.Relation, job.AppendEmbeddingColumn(name)),
			fmt.Sprintf("ALTER TABLE %s.%s DROP COLUMN IF EXISTS %s;", src.Schema, src.Relation, job.AppendUpdatedAtColumn(name)),
		}, nil
	}
}

// NewRowsQuery returns the statement the scheduled scan (and the initial
// backfill) runs to find primary keys that need (re)embedding. If the
// source has no update column, join method returns every key (a full
// pass) and append method returns the keys whose embedding is NULL.
func NewRowsQuery(name string, method job.TableMethod, src job.Source) (string, error) {
	if err := CheckIdentifiers(name, src.Schema, src.Relation, src.PrimaryKey); err != nil {
		return "", err
	}

	switch method {
	case job.TableMethodJoin:
		embTable := job.EmbeddingsTable(name)
		if err := CheckIdentifier(embTable); err != nil {
			return "", err
		}
		if !src.HasUpdateColumn() {
			return fmt.Sprintf(
				"SELECT %[1]s::text AS pk FROM %[2]s.%[3]s;",
				src.PrimaryKey, src.Schema, src.Relation,
			), nil
		}
		if err := CheckIdentifier(src.UpdateColumn); err != nil {
			return "", err
		}
		return fmt.Sprintf(`
SELECT t0.%[1]s::text AS pk
FROM %[2]s.%[3]s t0
LEFT JOIN %[4]s.%[5]s t1 ON t0.%[1]s = t1.%[1]s
WHERE t1.%[1]s IS NULL OR t0.%[6]s > t1.updated_at;`,
			src.PrimaryKey, src.Schema, src.Relation, vectorizeSchema, embTable, src.UpdateColumn,
		), nil
	default:
		embCol := job.AppendEmbeddingColumn(name)
		updCol := job.AppendUpdatedAtColumn(name)
		if err := CheckIdentifiers(embCol, updCol); err != nil {
			return "", err
		}
		if !src.HasUpdateColumn() {
			return fmt.Sprintf(
				"SELECT %[1]s::text AS pk FROM %[2]s.%[3]s WHERE %[4]s IS NULL;",
				src.PrimaryKey, src.Schema, src.Relation, embCol,
			), nil
		}
		if err := CheckIdentifier(src.UpdateColumn); err != nil {
			return "", err
		}
		return fmt.Sprintf(`
SELECT %[1]s::text AS pk FROM %[2]s.%[3]s
WHERE %[4]s IS NULL OR %[5]s > %[6]s;`,
			src.PrimaryKey, src.Schema, src.Relation, embCol, src.UpdateColumn, updCol,
		), nil
	}
}

// FetchTextQuery returns the statement the worker runs to load the
// current text of a batch of primary keys, concatenating a job's text
// columns in declaration order. Rows that no longer exist (deleted since
// the key was queued) are simply absent from the result set.
func FetchTextQuery(src job.Source) (string, error) {
	if err := CheckIdentifiers(src.Schema, src.Relation, src.PrimaryKey); err != nil {
		return "", err
	}
	if err := CheckIdentifiers(src.TextColumns...); err != nil {
		return "", err
	}
	return fmt.Sprintf(
		"SELECT %[1]s::text AS pk, %[2]s AS body FROM %[3]s.%[4]s WHERE %[1]s::text = ANY($1);",
		src.PrimaryKey, concatColumnsExpr(src.TextColumns), src.Schema, src.Relation,
	), nil
}

// UpsertEmbeddingQuery returns the statement the worker runs to write one
// row's embedding back, keyed by its primary key passed as text. For join
// method this casts the key to the source's actual key type and upserts
// the side table; for append method it matches the source key cast to
// text and updates the source table's shadow columns in place.
func UpsertEmbeddingQuery(name string, method job.TableMethod, src job.Source) (string, error) {
	if err := CheckIdentifiers(name, src.Schema, src.Relation, src.PrimaryKey); err != nil {
		return "", err
	}
	switch method {
	case job.TableMethodJoin:
		embTable := job.EmbeddingsTable(name)
		if err := CheckIdentifier(embTable); err != nil {
			return "", err
		}
		return fmt.Sprintf(`
INSERT INTO %[1]s.%[2]s (%[3]s, embedding, updated_at)
VALUES ($1::%[4]s, $2, now())
ON CONFLICT (%[3]s) DO UPDATE SET embedding = EXCLUDED.embedding, updated_at = now();`,
			vectorizeSchema, embTable, src.PrimaryKey, src.PrimaryKeyType,
		), nil
	default:
		embCol := job.AppendEmbeddingColumn(name)
		updCol := job.AppendUpdatedAtColumn(name)
		if err := CheckIdentifiers(embCol, updCol); err != nil {
			return "", err
		}
		return fmt.Sprintf(
			"UPDATE %[1]s.%[2]s SET %[3]s = $2, %[4]s = now() WHERE %[5]s::text = $1;",
			src.Schema, src.Relation, embCol, updCol, src.PrimaryKey,
		), nil
	}
}

// StaleEmbeddingsQuery returns the statement that deletes embedding rows
// (join method) with no matching live source row, per the join-method
// invariant in §3.
func StaleEmbeddingsQuery(name string, src job.Source) (string, error) {
	embTable := job.EmbeddingsTable(name)
	if err := CheckIdentifiers(name, embTable, src.Schema, src.Relation, src.PrimaryKey); err != nil {
		return "", err
	}
	return fmt.Sprintf(`
DELETE FROM %[1]s.%[2]s t1
WHERE NOT EXISTS (
	SELECT 1 FROM %[3]s.%[4]s t0 WHERE t0.%[5]s = t1.%[5]s
);`, vectorizeSchema, embTable, src.Schema, src.Relation, src.PrimaryKey), nil
}
