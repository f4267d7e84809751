package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fleet-coord/internal/app"
	"fleet-coord/middleware/coord"
	"fleet-coord/middleware/coord/application"
	"fleet-coord/middleware/coord/domain"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "example-server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt, err := app.Bootstrap(ctx, os.Getenv("CONFIG_FILE"))
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	// Exemplo: primitivas injetadas direto no webserver (sem proxy)
	limiter, local := rt.RateLimiter()
	if local != nil {
		local.StartJanitor(ctx)
	}

	s := &server{
		sf:   rt.Singleflight(),
		pool: rt.ContentPool(),
		ttl:  30 * time.Second,
		log:  rt.Log,
		work: expensiveDigest,
	}

	router := s.routes(rt.MetricsHandler())
	h := http.Handler(router)
	h = coord.ConcurrencyMiddleware(coord.ConcurrencyOptions{Max: 50})(h)
	h = coord.Middleware(coord.Options{
		Limiter:             limiter,
		KeyHeader:           "X-Api-Key", // ou vazio para usar IP
		TrustXForwardedFor:  true,
		AddRateLimitHeaders: true,
		RouteFn:             routeTemplate(router),
		Logger:              rt.Log,
	})(h)

	addr := ":8081"
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		addr = v
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       90 * time.Second,
	}

	rt.Log.Info("example server listening", zap.String("addr", addr), zap.Bool("sharedStore", rt.Store != nil))
	return app.Serve(ctx, srv, 5*time.Second)
}

type server struct {
	sf   *application.Singleflight
	pool *application.ContentPool
	ttl  time.Duration
	log  *zap.Logger

	work func(ctx context.Context, key string, body []byte) (generated, error)
}

type generated struct {
	Key       string    `json:"key"`
	Digest    string    `json:"digest"`
	CreatedAt time.Time `json:"created_at"`
}

type putRequest struct {
	Items []struct {
		Text       string            `json:"text"`
		Attributes map[string]string `json:"attributes,omitempty"`
		Payload    json.RawMessage   `json:"payload,omitempty"`
	} `json:"items"`
}

func (s *server) routes(metrics http.Handler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/generate/{key}", s.handleGenerate).Methods(http.MethodPost)
	r.HandleFunc("/pool/{group}", s.handlePut).Methods(http.MethodPost)
	r.HandleFunc("/pool/{group}", s.handleServe).Methods(http.MethodGet)
	r.HandleFunc("/pool/{group}/size", s.handleSize).Methods(http.MethodGet)
	r.Handle("/metrics", metrics).Methods(http.MethodGet)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	return r
}

// routeTemplate usa o template do mux como rota do rate limit, para não criar um
// contador por valor de path.
func routeTemplate(router *mux.Router) coord.RouteFunc {
	return func(r *http.Request) string {
		var match mux.RouteMatch
		if router.Match(r, &match) && match.Route != nil {
			if tpl, err := match.Route.GetPathTemplate(); err == nil {
				return tpl
			}
		}
		return r.URL.Path
	}
}

func (s *server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	key := mux.Vars(r)["key"]
	body, err := readBody(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	out, err := application.RunExclusive(r.Context(), s.sf, "generate:"+key, s.ttl, func(ctx context.Context) (generated, error) {
		return s.work(ctx, key, body)
	})
	switch {
	case errors.Is(err, domain.ErrSingleflightTimeout):
		writeError(w, http.StatusGatewayTimeout, err)
		return
	case err != nil:
		s.log.Warn("generate failed", zap.String("key", key), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *server) handlePut(w http.ResponseWriter, r *http.Request) {
	group := mux.Vars(r)["group"]
	var req putRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	items := make([]domain.Item, 0, len(req.Items))
	for _, it := range req.Items {
		items = append(items, domain.Item{Group: group, Text: it.Text, Attributes: it.Attributes, Payload: it.Payload})
	}
	sum := s.pool.Queue.PutMany(r.Context(), items)

	status := http.StatusOK
	if sum.Unavailable > 0 && sum.Inserted == 0 && sum.Duplicates == 0 {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, sum)
}

func (s *server) handleServe(w http.ResponseWriter, r *http.Request) {
	group := mux.Vars(r)["group"]
	consumer := r.URL.Query().Get("consumer")
	if consumer == "" {
		consumer = r.Header.Get("X-Consumer")
	}

	item, ok := s.pool.Serve(r.Context(), group, consumer)
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (s *server) handleSize(w http.ResponseWriter, r *http.Request) {
	group := mux.Vars(r)["group"]
	writeJSON(w, http.StatusOK, map[string]int64{"size": s.pool.Queue.Size(r.Context(), group)})
}

// expensiveDigest simula um trabalho caro: só uma instância da frota deve executá-lo por chave.
func expensiveDigest(ctx context.Context, key string, body []byte) (generated, error) {
	select {
	case <-time.After(2 * time.Second):
	case <-ctx.Done():
		return generated{}, ctx.Err()
	}
	sum := sha256.Sum256(append([]byte(key+":"), body...))
	return generated{Key: key, Digest: hex.EncodeToString(sum[:]), CreatedAt: time.Now().UTC()}, nil
}
