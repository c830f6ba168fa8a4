// Package search implements the hybrid search engine: a semantic
// nearest-neighbor scan and a lexical full-text scan fused with
// reciprocal rank fusion, over whichever source table a job embeds.
package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/paperlane/vectorize/pkg/ddl"
	"github.com/paperlane/vectorize/pkg/embedprovider"
	"github.com/paperlane/vectorize/pkg/job"
	"github.com/paperlane/vectorize/pkg/metastore"
	"github.com/paperlane/vectorize/pkg/verror"
)

// Request is one hybrid search call, mirroring the job model's own
// config defaults where a field is left zero.
type Request struct {
	JobName       string
	QueryText     string
	Limit         int
	WindowSize    int // defaults to 5*Limit
	RRFK          float64
	SemanticWt    float64
	FTSWt         float64
	Filters       []Filter
	ReturnColumns []string // empty means every source column
}

// Row is one fused result row: the caller's requested columns plus the
// scoring fields every response carries.
type Row struct {
	PK              string          `json:"pk"`
	Columns         json.RawMessage `json:"columns"`
	SimilarityScore float64         `json:"similarity_score"`
	SemanticRank    *int            `json:"semantic_rank"`
	FTSRank         *int            `json:"fts_rank"`
	RRFScore        float64         `json:"rrf_score"`
}

// Engine runs hybrid search over every registered job.
type Engine struct {
	meta      *metastore.Store
	providers embedprovider.Config
	logger    *zap.Logger
}

// New builds an Engine.
func New(meta *metastore.Store, providers embedprovider.Config, logger *zap.Logger) *Engine {
	return &Engine{meta: meta, providers: providers, logger: logger}
}

// Search runs the pipeline described in the hybrid search engine
// component: validate and compile filters, embed the query, scan
// semantically and lexically, fuse with RRF, and return the top Limit
// rows.
func (e *Engine) Search(ctx context.Context, req Request) ([]Row, error) {
	if req.Limit == 0 {
		return nil, nil
	}
	if req.Limit < 0 {
		return nil, fmt.Errorf("%w: limit must not be negative", verror.ErrInvalidRequest)
	}
	if req.QueryText == "" {
		return nil, fmt.Errorf("%w: query_text must not be empty", verror.ErrInvalidRequest)
	}

	window := req.WindowSize
	switch {
	case window == 0:
		window = 5 * req.Limit
	case window < req.Limit:
		window = req.Limit
	}

	j, err := e.meta.Get(ctx, req.JobName)
	if err != nil {
		return nil, err
	}

	columns, err := e.sourceColumns(ctx, j.Source)
	if err != nil {
		return nil, err
	}

	predicate, filterArgs, err := Compile(req.Filters, columns, 2)
	if err != nil {
		return nil, err
	}

	variant, model, err := embedprovider.ParseTransformer(j.Transformer)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", verror.ErrInternal, err)
	}
	provider, err := embedprovider.New(variant, e.providers)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", verror.ErrInternal, err)
	}
	vectors, err := provider.Embed(ctx, model, []string{req.QueryText})
	if err != nil {
		return nil, fmt.Errorf("embedding query text: %w", err)
	}
	qvec := vectors[0]

	returnCols := req.ReturnColumns
	if len(returnCols) == 0 {
		returnCols = columnNames(columns)
	}

	semantic, simByPK, err := e.semanticScan(ctx, j, qvec, window, predicate, filterArgs)
	if err != nil {
		return nil, err
	}
	lexical, err := e.lexicalScan(ctx, j, req.QueryText, window, predicate, filterArgs)
	if err != nil {
		return nil, err
	}

	ranked := fuse(semantic, lexical, req.RRFK, nonZero(req.SemanticWt, 1), nonZero(req.FTSWt, 1))
	if len(ranked) > req.Limit {
		ranked = ranked[:req.Limit]
	}

	return e.hydrate(ctx, j, ranked, simByPK, returnCols)
}

func nonZero(v, fallback float64) float64 {
	if v == 0 {
		return fallback
	}
	return v
}

// semanticScan returns the nearest window rows by the job's configured
// metric, in rank order, plus each pk's raw similarity score.
func (e *Engine) semanticScan(ctx context.Context, j job.Job, qvec []float32, window int, predicate string, filterArgs []any) ([]rankedRow, map[string]float64, error) {
	var table, pkExpr string
	switch j.TableMethod {
	case job.TableMethodJoin:
		table = "vectorize." + job.EmbeddingsTable(j.Name)
		pkExpr = j.Source.PrimaryKey
	default:
		table = j.Source.QualifiedRelation()
		pkExpr = j.Source.PrimaryKey
	}

	embCol := "embedding"
	if j.TableMethod == job.TableMethodAppend {
		embCol = job.AppendEmbeddingColumn(j.Name)
	}
	op := j.SearchAlg.Operator()

	query := fmt.Sprintf(`
SELECT %[1]s::text AS pk, 1 - (%[2]s %[3]s $1::vector) AS similarity
FROM %[4]s
WHERE %[2]s IS NOT NULL%[5]s
ORDER BY %[2]s %[3]s $1::vector
LIMIT $%[6]d;`,
		pkExpr, embCol, op, table, filterClause(predicate), len(filterArgs)+2,
	)

	args := append([]any{pgvectorLiteral(qvec)}, filterArgs...)
	args = append(args, window)

	rows, err := e.meta.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("running semantic scan for %q: %w", j.Name, err)
	}
	defer rows.Close()

	var ranked []rankedRow
	sim := make(map[string]float64)
	rank := 0
	for rows.Next() {
		rank++
		var pk string
		var score float64
		if err := rows.Scan(&pk, &score); err != nil {
			return nil, nil, fmt.Errorf("scanning semantic scan row: %w", err)
		}
		ranked = append(ranked, rankedRow{PK: pk, SemanticRank: rank, SimilarityScore: score})
		sim[pk] = score
	}
	return ranked, sim, rows.Err()
}

// lexicalScan returns the top window rows by ts_rank over the job's text
// columns, in rank order.
func (e *Engine) lexicalScan(ctx context.Context, j job.Job, queryText string, window int, predicate string, filterArgs []any) ([]rankedRow, error) {
	expr, err := ddl.TextConcatExpr(j.Source.TextColumns)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf(`
SELECT %[1]s::text AS pk
FROM %[2]s
WHERE to_tsvector('english', %[3]s) @@ plainto_tsquery('english', $1)%[4]s
ORDER BY ts_rank(to_tsvector('english', %[3]s), plainto_tsquery('english', $1)) DESC
LIMIT $%[5]d;`,
		j.Source.PrimaryKey, j.Source.QualifiedRelation(), expr, filterClause(predicate), len(filterArgs)+2,
	)

	args := append([]any{queryText}, filterArgs...)
	args = append(args, window)

	rows, err := e.meta.Pool().Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("running lexical scan for %q: %w", j.Name, err)
	}
	defer rows.Close()

	var ranked []rankedRow
	rank := 0
	for rows.Next() {
		rank++
		var pk string
		if err := rows.Scan(&pk); err != nil {
			return nil, fmt.Errorf("scanning lexical scan row: %w", err)
		}
		ranked = append(ranked, rankedRow{PK: pk, FTSRank: rank})
	}
	return ranked, rows.Err()
}

// hydrate loads return columns for the fused, limit-truncated result set
// in one query, preserving fusion order.
func (e *Engine) hydrate(ctx context.Context, j job.Job, ranked []fused, simByPK map[string]float64, returnCols []string) ([]Row, error) {
	if len(ranked) == 0 {
		return nil, nil
	}
	if err := ddl.CheckIdentifiers(returnCols...); err != nil {
		return nil, fmt.Errorf("%w: %v", verror.ErrInvalidRequest, err)
	}

	pks := make([]string, len(ranked))
	byPK := make(map[string]*fused, len(ranked))
	for i, r := range ranked {
		pks[i] = r.PK
		byPK[r.PK] = &ranked[i]
	}

	query := fmt.Sprintf(
		"SELECT %[1]s::text AS pk, %[2]s FROM %[3]s WHERE %[1]s::text = ANY($1);",
		j.Source.PrimaryKey, selectList(returnCols), j.Source.QualifiedRelation(),
	)

	rows, err := e.meta.Pool().Query(ctx, query, pks)
	if err != nil {
		return nil, fmt.Errorf("hydrating search results for %q: %w", j.Name, err)
	}
	defer rows.Close()

	fieldDescs := rows.FieldDescriptions()
	rowByPK := make(map[string]json.RawMessage, len(pks))
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("reading hydrated row: %w", err)
		}
		pk, _ := values[0].(string)
		obj := make(map[string]any, len(fieldDescs)-1)
		for i := 1; i < len(fieldDescs); i++ {
			obj[fieldDescs[i].Name] = values[i]
		}
		raw, err := json.Marshal(obj)
		if err != nil {
			return nil, fmt.Errorf("encoding hydrated row: %w", err)
		}
		rowByPK[pk] = raw
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]Row, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, Row{
			PK:              r.PK,
			Columns:         rowByPK[r.PK],
			SimilarityScore: simByPK[r.PK],
			SemanticRank:    optionalRank(r.SemanticRank),
			FTSRank:         optionalRank(r.FTSRank),
			RRFScore:        r.RRFScore,
		})
	}
	return out, nil
}

func optionalRank(rank int) *int {
	if rank == 0 {
		return nil
	}
	r := rank
	return &r
}

func (e *Engine) sourceColumns(ctx context.Context, src job.Source) ([]columnType, error) {
	rows, err := e.meta.Pool().Query(ctx, `
SELECT column_name, data_type FROM information_schema.columns
WHERE table_schema = $1 AND table_name = $2;`, src.Schema, src.Relation)
	if err != nil {
		return nil, fmt.Errorf("listing columns for %s.%s: %w", src.Schema, src.Relation, err)
	}
	defer rows.Close()

	var cols []columnType
	for rows.Next() {
		var c columnType
		if err := rows.Scan(&c.Name, &c.DataType); err != nil {
			return nil, fmt.Errorf("scanning column metadata: %w", err)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

func columnNames(cols []columnType) []string {
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	return names
}

func selectList(cols []string) string {
	return strings.Join(cols, ", ")
}

func filterClause(predicate string) string {
	if predicate == "" {
		return ""
	}
	return " AND " + predicate
}

// pgvectorLiteral renders a float32 vector as pgvector's text literal
// ("[0.1,0.2,...]"), bound as a plain string parameter and cast to
// vector by Postgres on the other side of the $1 placeholder; this
// avoids requiring a registered pgvector codec in read-path queries
// whose pool may not have AfterConnect wired (e.g. a caller reusing a
// plain pgxpool for search only).
func pgvectorLiteral(v []float32) string {
	parts := make([]string, len(v))
	for i, f := range v {
		parts[i] = fmt.Sprintf("%g", f)
	}
	return "[" + strings.Join(parts, ",") + "]"
}
