package proxy

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"time"

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
	"github.com/paperlane/vectorize/proxy/pgwire"
)

func connStr() string {
	dsn := os.Getenv("VECTORIZE_TEST_POSTGRES_DSN")
	if dsn == "" {
		Skip("VECTORIZE_TEST_POSTGRES_DSN not set, skipping PostgreSQL tests")
	}
	return dsn
}

func fakeEmbed(s string) []float32 {
	sum := 0
	for _, c := range s {
		sum += int(c)
	}
	return []float32{float32(sum%97) / 97, 0.2, 0.3, 0.4}
}

// fakeUpstream is a bare-bones stand-in for the real Postgres server the
// proxy would otherwise dial: enough to complete a startup handshake and
// answer one canned simple query, so a passthrough test can prove a
// non-intercepted message reaches this far unaltered.
func fakeUpstream() net.Listener {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).NotTo(HaveOccurred())
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				if _, err := pgwire.ReadStartupMessage(conn); err != nil {
					return
				}
				_ = pgwire.WriteMessage(conn, pgwire.TypeReadyForQuery, pgwire.ReadyForQuery('I'))

				r := bufio.NewReader(conn)
				for {
					msg, err := pgwire.ReadMessage(r)
					if err != nil {
						return
					}
					if msg.Type == pgwire.TypeQuery {
						_ = pgwire.WriteMessage(conn, pgwire.TypeCommandComplete, pgwire.CommandComplete("SELECT 0"))
						_ = pgwire.WriteMessage(conn, pgwire.TypeReadyForQuery, pgwire.ReadyForQuery('I'))
					}
				}
			}()
		}
	}()
	return ln
}

func startupPacket() []byte {
	params := []byte("user\x00tester\x00database\x00tester\x00\x00")
	length := 4 + 4 + len(params)
	buf := make([]byte, 4)
	binary.BigEndian.PutUint32(buf, uint32(length))
	buf = append(buf, 0, 3, 0, 0) // protocol version 3.0
	buf = append(buf, params...)
	return buf
}

func simpleQuery(sql string) []byte {
	var buf []byte
	buf = append(buf, pgwire.TypeQuery)
	body := append([]byte(sql), 0)
	lenBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lenBuf, uint32(len(body)+4))
	buf = append(buf, lenBuf...)
	buf = append(buf, body...)
	return buf
}

var _ = Describe("Proxy", func() {
	var (
		ctx        context.Context
		store      *metastore.Store
		fakeOllama *httptest.Server
		providers  embedprovider.Config
		upstream   net.Listener
		prox       *Proxy
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
		providers = embedprovider.Config{OllamaBaseURL: fakeOllama.URL}

		var err error
		store, err = metastore.New(ctx, connStr(), zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		_, err = store.Pool().Exec(ctx, `DELETE FROM vectorize.job;`)
		Expect(err).NotTo(HaveOccurred())
		_, err = store.Pool().Exec(ctx, `DROP TABLE IF EXISTS public.proxy_products;`)
		Expect(err).NotTo(HaveOccurred())
		_, err = store.Pool().Exec(ctx, `
CREATE TABLE public.proxy_products (
	product_id bigint PRIMARY KEY,
	name text,
	description text,
	updated_at timestamptz NOT NULL DEFAULT now()
);`)
		Expect(err).NotTo(HaveOccurred())
		_, err = store.Pool().Exec(ctx, `
INSERT INTO public.proxy_products (product_id, name, description) VALUES
	(1, 'red widget', 'a bright red widget'),
	(2, 'blue widget', 'a calm blue widget');`)
		Expect(err).NotTo(HaveOccurred())

		q := queue.New(store.Pool())
		reg := registry.New(store, q, providers, zap.NewNop(), nil)
		_, err = reg.Create(ctx, job.Spec{
			Name: "proxy_products",
			Source: job.Source{
				Schema:       "public",
				Relation:     "proxy_products",
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
		Expect(pool.ProcessJob(ctx, "proxy_products")).To(Succeed())

		upstream = fakeUpstream()
		engine := search.New(store, providers, zap.NewNop())
		prox = New(Config{ListenAddr: "127.0.0.1:0", UpstreamAddr: upstream.Addr().String()}, engine, nil, zap.NewNop())

		ln, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		prox.listener = ln
		go func() {
			for {
				conn, err := ln.Accept()
				if err != nil {
					return
				}
				go prox.handleConn(conn)
			}
		}()
	})

	AfterEach(func() {
		if prox != nil {
			prox.Close()
		}
		if upstream != nil {
			upstream.Close()
		}
		if fakeOllama != nil {
			fakeOllama.Close()
		}
		if store != nil {
			store.Pool().Exec(ctx, `DROP TABLE IF EXISTS public.proxy_products;`)
			store.Close()
		}
	})

	dial := func() net.Conn {
		conn, err := net.DialTimeout("tcp", prox.listener.Addr().String(), 2*time.Second)
		Expect(err).NotTo(HaveOccurred())
		_, err = conn.Write(startupPacket())
		Expect(err).NotTo(HaveOccurred())
		r := bufio.NewReader(conn)
		_, err = pgwire.ReadMessage(r)
		Expect(err).NotTo(HaveOccurred())
		return conn
	}

	It("answers an intercepted vectorize.search call itself without reaching upstream", func() {
		conn := dial()
		defer conn.Close()

		_, err := conn.Write(simpleQuery(`vectorize.search('proxy_products', 'red widget', 5)`))
		Expect(err).NotTo(HaveOccurred())

		r := bufio.NewReader(conn)
		desc, err := pgwire.ReadMessage(r)
		Expect(err).NotTo(HaveOccurred())
		Expect(desc.Type).To(Equal(pgwire.TypeRowDescription))

		var rowCount int
		for {
			msg, err := pgwire.ReadMessage(r)
			Expect(err).NotTo(HaveOccurred())
			if msg.Type == pgwire.TypeDataRow {
				rowCount++
				continue
			}
			Expect(msg.Type).To(Equal(pgwire.TypeCommandComplete))
			break
		}
		Expect(rowCount).To(BeNumerically(">", 0))

		ready, err := pgwire.ReadMessage(r)
		Expect(err).NotTo(HaveOccurred())
		Expect(ready.Type).To(Equal(pgwire.TypeReadyForQuery))
	})

	It("forwards a non-matching query to the upstream untouched", func() {
		conn := dial()
		defer conn.Close()

		_, err := conn.Write(simpleQuery(`SELECT * FROM proxy_products`))
		Expect(err).NotTo(HaveOccurred())

		r := bufio.NewReader(conn)
		complete, err := pgwire.ReadMessage(r)
		Expect(err).NotTo(HaveOccurred())
		Expect(complete.Type).To(Equal(pgwire.TypeCommandComplete))
		Expect(string(complete.Body)).To(ContainSubstring("SELECT 0"))

		ready, err := pgwire.ReadMessage(r)
		Expect(err).NotTo(HaveOccurred())
		Expect(ready.Type).To(Equal(pgwire.TypeReadyForQuery))
	})

	It("returns a Postgres error response for an unknown job", func() {
		conn := dial()
		defer conn.Close()

		_, err := conn.Write(simpleQuery(`vectorize.search('no_such_job', 'widget', 5)`))
		Expect(err).NotTo(HaveOccurred())

		r := bufio.NewReader(conn)
		msg, err := pgwire.ReadMessage(r)
		Expect(err).NotTo(HaveOccurred())
		Expect(msg.Type).To(Equal(pgwire.TypeErrorResponse))
		Expect(string(msg.Body)).To(ContainSubstring("42P01"))
	})
})
