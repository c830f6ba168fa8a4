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

type fakeCompleter struct {
	answer string
	err    error
}

func (f *fakeCompleter) Complete(_ context.Context, _ string, _ []search.Row) (string, error) {
	return f.answer, f.err
}

var _ = Describe("handleRAG", func() {
	var (
		ctx        context.Context
		store      *metastore.Store
		fakeOllama *httptest.Server
		reg        *registry.Registry
		engine     *search.Engine
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
		_, err = store.Pool().Exec(ctx, `DROP TABLE IF EXISTS public.api_rag_products;`)
		Expect(err).NotTo(HaveOccurred())
		_, err = store.Pool().Exec(ctx, `
CREATE TABLE public.api_rag_products (
	product_id bigint PRIMARY KEY,
	name text,
	updated_at timestamptz NOT NULL DEFAULT now()
);`)
		Expect(err).NotTo(HaveOccurred())
		_, err = store.Pool().Exec(ctx, `
INSERT INTO public.api_rag_products (product_id, name) VALUES (1, 'red widget');`)
		Expect(err).NotTo(HaveOccurred())

		q := queue.New(store.Pool())
		reg = registry.New(store, q, providers, zap.NewNop(), nil)
		_, err = reg.Create(ctx, job.Spec{
			Name: "api_rag_products",
			Source: job.Source{
				Schema:       "public",
				Relation:     "api_rag_products",
				PrimaryKey:   "product_id",
				TextColumns:  []string{"name"},
				UpdateColumn: "updated_at",
			},
			Transformer: "ollama/nomic-embed-text",
			SearchAlg:   job.SearchAlgCosine,
			TableMethod: job.TableMethodJoin,
			Schedule:    "0 * * * *",
		})
		Expect(err).NotTo(HaveOccurred())

		pool := worker.NewPool(store, q, providers, zap.NewNop(), worker.Config{}, nil)
		Expect(pool.ProcessJob(ctx, "api_rag_products")).To(Succeed())

		engine = search.New(store, providers, zap.NewNop())
	})

	AfterEach(func() {
		if fakeOllama != nil {
			fakeOllama.Close()
		}
		if store != nil {
			store.Pool().Exec(ctx, `DROP TABLE IF EXISTS public.api_rag_products;`)
			store.Close()
		}
	})

	It("returns 501 when no completer is configured", func() {
		server := NewServer(Config{ListenAddr: ":0"}, reg, engine, store, nil, nil, zap.NewNop())

		req, err := http.NewRequest(http.MethodPost, "/api/v1/rag", strings.NewReader(`{"job":"api_rag_products","query":"widget"}`))
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("Content-Type", "application/json")

		resp, err := server.app.Test(req)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(fiber.StatusNotImplemented))
	})

	It("returns the completer's answer alongside the search results", func() {
		server := NewServer(Config{ListenAddr: ":0"}, reg, engine, store, &fakeCompleter{answer: "it's a red widget"}, nil, zap.NewNop())

		req, err := http.NewRequest(http.MethodPost, "/api/v1/rag", strings.NewReader(`{"job":"api_rag_products","query":"widget","limit":5}`))
		Expect(err).NotTo(HaveOccurred())
		req.Header.Set("Content-Type", "application/json")

		resp, err := server.app.Test(req)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(fiber.StatusOK))

		var out ragResponse
		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		Expect(json.Unmarshal(body, &out)).To(Succeed())
		Expect(out.Answer).To(Equal("it's a red widget"))
		Expect(out.Results).NotTo(BeEmpty())
	})
})
