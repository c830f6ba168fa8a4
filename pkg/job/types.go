// Package job defines the vectorize job model: the persisted binding of a
// source table, its text columns, an embedding transformer, and a
// maintenance schedule.
package job

import (
	"encoding/json"
	"fmt"
	"time"
)

// TableMethod selects where embeddings are stored relative to the source
// table.
type TableMethod string

const (
	// TableMethodJoin stores embeddings in a side table keyed by the
	// source primary key.
	TableMethodJoin TableMethod = "join"

	// TableMethodAppend stores embeddings as extra columns on the source
	// table itself.
	TableMethodAppend TableMethod = "append"
)

// ParseTableMethod parses a TableMethod from its wire representation.
func ParseTableMethod(s string) (TableMethod, error) {
	switch TableMethod(s) {
	case TableMethodJoin:
		return TableMethodJoin, nil
	case TableMethodAppend:
		return TableMethodAppend, nil
	default:
		return "", fmt.Errorf("unknown table method %q (want %q or %q)", s, TableMethodJoin, TableMethodAppend)
	}
}

func (m TableMethod) String() string { return string(m) }

// SearchAlg is the distance metric used for the HNSW index and semantic
// scan.
type SearchAlg string

const (
	SearchAlgCosine      SearchAlg = "cosine"
	SearchAlgL2          SearchAlg = "l2"
	SearchAlgInnerProduct SearchAlg = "inner_product"
)

// ParseSearchAlg parses a SearchAlg from its wire representation.
func ParseSearchAlg(s string) (SearchAlg, error) {
	switch SearchAlg(s) {
	case SearchAlgCosine:
		return SearchAlgCosine, nil
	case SearchAlgL2:
		return SearchAlgL2, nil
	case SearchAlgInnerProduct:
		return SearchAlgInnerProduct, nil
	default:
		return "", fmt.Errorf("unknown search_alg %q (want cosine, l2 or inner_product)", s)
	}
}

func (a SearchAlg) String() string { return string(a) }

// OpClass returns the pgvector operator class matching this metric, for
// use in `CREATE INDEX ... USING hnsw (col <opclass>)`.
func (a SearchAlg) OpClass() string {
	switch a {
	case SearchAlgL2:
		return "vector_l2_ops"
	case SearchAlgInnerProduct:
		return "vector_ip_ops"
	default:
		return "vector_cosine_ops"
	}
}

// Operator returns the pgvector distance operator matching this metric,
// for use in `ORDER BY col <op> $1`.
func (a SearchAlg) Operator() string {
	switch a {
	case SearchAlgL2:
		return "<->"
	case SearchAlgInnerProduct:
		return "<#>"
	default:
		return "<=>"
	}
}

// Schedule is either "realtime" (trigger-driven) or a cron expression
// (scan-driven).
type Schedule string

// Realtime is the sentinel schedule value selecting trigger-based change
// capture. Any other value is parsed as a cron expression.
const Realtime Schedule = "realtime"

func (s Schedule) IsRealtime() bool { return s == Realtime }

// Source describes the table a job watches and embeds.
type Source struct {
	Schema         string   `json:"schema"`
	Relation       string   `json:"relation"`
	PrimaryKey     string   `json:"primary_key"`
	PrimaryKeyType string   `json:"primary_key_type"`
	TextColumns    []string `json:"text_columns"`
	UpdateColumn   string   `json:"update_column,omitempty"`
}

// QualifiedRelation returns "schema.relation" for interpolation into SQL
// built from already-validated identifiers.
func (s Source) QualifiedRelation() string {
	return s.Schema + "." + s.Relation
}

// HasUpdateColumn reports whether incremental scheduled scans are
// possible for this source.
func (s Source) HasUpdateColumn() bool { return s.UpdateColumn != "" }

// Spec is the user-supplied request to create a job. See §4.1 validation.
type Spec struct {
	Name        string      `json:"name"`
	Source      Source      `json:"source"`
	Transformer string      `json:"transformer"`
	SearchAlg   SearchAlg   `json:"search_alg"`
	TableMethod TableMethod `json:"table_method"`
	Schedule    Schedule    `json:"schedule"`
}

// Job is the persisted, frozen form of a Spec once its transformer
// dimension has been resolved.
type Job struct {
	ID             int64           `json:"job_id"`
	Name           string          `json:"name"`
	Source         Source          `json:"source"`
	Transformer    string          `json:"transformer"`
	Dimension      int             `json:"dimension"`
	SearchAlg      SearchAlg       `json:"search_alg"`
	TableMethod    TableMethod     `json:"table_method"`
	Schedule       Schedule        `json:"schedule"`
	Params         json.RawMessage `json:"params"`
	LastCompletion *time.Time      `json:"last_completion,omitempty"`
}

// EmbeddingsTable returns the deterministic side-table name for the
// "join" table method.
func EmbeddingsTable(name string) string {
	return "_embeddings_" + name
}

// AppendEmbeddingColumn returns the deterministic embedding column name
// for the "append" table method.
func AppendEmbeddingColumn(name string) string {
	return name + "_embeddings"
}

// AppendUpdatedAtColumn returns the deterministic updated_at column name
// for the "append" table method.
func AppendUpdatedAtColumn(name string) string {
	return name + "_updated_at"
}

// QueueName returns the deterministic pgmq queue name for this job.
func QueueName(name string) string {
	return "vectorize_j_" + name
}

// TriggerFunctionName returns the deterministic PL/pgSQL trigger
// function name for a job's realtime change capture.
func TriggerFunctionName(name string) string {
	return "_vectorize_trigger_" + name
}

// Params snapshots a Spec plus its resolved dimension into the frozen
// JSON blob stored alongside the job row. It is the source of truth for
// any later operation on the job.
func Params(spec Spec, dimension int) (json.RawMessage, error) {
	snapshot := struct {
		Source      Source      `json:"source"`
		Transformer string      `json:"transformer"`
		Dimension   int         `json:"dimension"`
		SearchAlg   SearchAlg   `json:"search_alg"`
		TableMethod TableMethod `json:"table_method"`
		Schedule    Schedule    `json:"schedule"`
	}{
		Source:      spec.Source,
		Transformer: spec.Transformer,
		Dimension:   dimension,
		SearchAlg:   spec.SearchAlg,
		TableMethod: spec.TableMethod,
		Schedule:    spec.Schedule,
	}
	return json.Marshal(snapshot)
}
