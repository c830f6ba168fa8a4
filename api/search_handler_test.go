package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"

	"github.com/gofiber/fiber/v2"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/paperlane/vectorize/pkg/embedprovider"
	"github.com/paperlane/vectorize/pkg/job"
	"github.com/paperlane/vectorize/pkg/metastore"
	"github.com/paperlane/vectorize/pkg/queue"
	"github.com/paperlane/vectorize/pkg/registry"
	"github.com/paperlane/vectorize/pkg/search"
	"github.com/paperlane/vectorize/pkg/worker"
)

// fakeEmbed produces a deterministic throwaway vector so rows with
// different text don't collide; it exists to exercise the pipeline, not
// to model real semantics.
func fakeEmbed(s string) []float32 {
	sum := 0
	for _, c := range s {
		sum += int(c)
	}
	return []float32{float32(sum%97) / 97, 0.2, 0.3, 0.4}
}

var _ = Describe("handleSearchEndpoint", func() {
	var (
		ctx        context.Context
		store      *metastore.Store
		fakeOllama *httptest.Server
		server     *Server
	)

	BeforeEach(func() {
		ctx = context.Background()

		fakeOllama = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var req struct {
				Input []string `json:"input"`
			}
			_ = json.NewDecoder(r.Body).Decode(&req)
			embeddings := make([][]float32, len(req.Input))
			for i, in := range req.Input {
				embeddings[i] = fakeEmbed(in)
			}
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": embeddings})
		}))
		providers := embedprovider.Config{OllamaBaseURL: fakeOllama.URL}

		var err error
		store, err = metastore.New(ctx, connStr(), zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		_, err = store.Pool().Exec(ctx, `DELETE FROM vectorize.job;`)
		Expect(err).NotTo(HaveOccurred())
		_, err = store.Pool().Exec(ctx, `DROP TABLE IF EXISTS public.api_search_products;`)
		Expect(err).NotTo(HaveOccurred())
		_, err = store.Pool().Exec(ctx, `
CREATE TABLE public.api_search_products (
	product_id bigint PRIMARY KEY,
	name text,
	description text,
	updated_at timestamptz NOT NULL DEFAULT now()
);`)
		Expect(err).NotTo(HaveOccurred())
		_, err = store.Pool().Exec(ctx, `
INSERT INTO public.api_search_products (product_id, name, description) VALUES
	(1, 'red widget', 'a bright red widget'),
	(2, 'blue widget', 'a calm blue widget');`)
		Expect(err).NotTo(HaveOccurred())

		q := queue.New(store.Pool())
		reg := registry.New(store, q, providers, zap.NewNop(), nil)
		_, err = reg.Create(ctx, job.Spec{
			Name: "api_search_products",
			Source: job.Source{
				Schema:       "public",
				Relation:     "api_search_products",
				PrimaryKey:   "product_id",
				TextColumns:  []string{"name", "description"},
				UpdateColumn: "updated_at",
			},
			Transformer: "ollama/nomic-embed-text",
			SearchAlg:   job.SearchAlgCosine,
			TableMethod: job.TableMethodJoin,
			Schedule:    "0 * * * *",
		})
		Expect(err).NotTo(HaveOccurred())

		pool := worker.NewPool(store, q, providers, zap.NewNop(), worker.Config{}, nil)
		Expect(pool.ProcessJob(ctx, "api_search_products")).To(Succeed())

		engine := search.New(store, providers, zap.NewNop())
		server = NewServer(Config{ListenAddr: ":0"}, reg, engine, store, nil, nil, zap.NewNop())
	})

	AfterEach(func() {
		if fakeOllama != nil {
			fakeOllama.Close()
		}
		if store != nil {
			store.Pool().Exec(ctx, `DROP TABLE IF EXISTS public.api_search_products;`)
			store.Close()
		}
	})

	It("returns 400 when query is missing", func() {
		req, err := http.NewRequest(http.MethodGet, "/api/v1/search?job=api_search_products", nil)
		Expect(err).NotTo(HaveOccurred())

		resp, err := server.app.Test(req)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(fiber.StatusBadRequest))
	})

	It("returns 404 for an unknown job", func() {
		req, err := http.NewRequest(http.MethodGet, "/api/v1/search?job=nonexistent&query=widget", nil)
		Expect(err).NotTo(HaveOccurred())

		resp, err := server.app.Test(req)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(fiber.StatusNotFound))
	})

	It("returns fused results for a GET search", func() {
		req, err := http.NewRequest(http.MethodGet, "/api/v1/search?job=api_search_products&query=red+widget&limit=2", nil)
		Expect(err).NotTo(HaveOccurred())

		resp, err := server.app.Test(req)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

		var out struct {
			Query   string        `json:"query"`
			Job     string        `json:"job"`
			Results []search.Row `json:"results"`
			Count   int           `json:"count"`
		}
		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(json.Unmarshal(body, &out)).To(Succeed())
		Expect(out.Query).To(Equal("red widget"))
		Expect(out.Count).To(BeNumerically("<=", 2))
	})

	It("returns an empty, successful result for an explicit limit of zero", func() {
		req, err := http.NewRequest(http.MethodGet, "/api/v1/search?job=api_search_products&query=widget&limit=0", nil)
		Expect(err).NotTo(HaveOccurred())

		resp, err := server.app.Test(req)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

		var out struct {
			Results []search.Row `json:"results"`
			Count   int          `json:"count"`
		}
		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(json.Unmarshal(body, &out)).To(Succeed())
		Expect(out.Count).To(Equal(0))
	})

	It("applies filters from a POST search body", func() {
		body := `{"job":"api_search_products","query":"widget","limit":10,"filters":[{"column":"product_id","op":"=","value":1}]}`
		req, err := http.NewRequest(http.MethodPost, "/api/v1/search", strings.NewReader(body))
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("Content-Type", "application/json")

		resp, err := server.app.Test(req)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

		var out struct {
			Results []search.Row `json:"results"`
		}
		respBody, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(json.Unmarshal(respBody, &out)).To(Succeed())
		Expect(out.Results).To(HaveLen(1))
		Expect(out.Results[0].PK).To(Equal("1"))
	})
})
