package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Accepts the llama-server flags the supervisor passes. Behaviour is chosen
// with FAKE_LLAMA_MODE: "crash" exits 1 after writing to stderr, "hang" never
// serves, anything else serves /health and echoes /v1/*.
func main() {
	var model, host, port, cacheK, cacheV string
	var ctxSize, ngl, parallel int
	var jinja, contBatching, flashAttn bool
	flag.StringVar(&model, "hf-repo", "", "model repo")
	flag.StringVar(&host, "host", "127.0.0.1", "host")
	flag.StringVar(&port, "port", "0", "port")
	flag.IntVar(&ctxSize, "ctx-size", 0, "context size")
	flag.IntVar(&ngl, "n-gpu-layers", 0, "gpu layers")
	flag.IntVar(&parallel, "parallel", 1, "parallel slots")
	flag.StringVar(&cacheK, "cache-type-k", "f16", "k cache type")
	flag.StringVar(&cacheV, "cache-type-v", "f16", "v cache type")
	flag.BoolVar(&jinja, "jinja", false, "jinja")
	flag.BoolVar(&contBatching, "cont-batching", false, "continuous batching")
	flag.BoolVar(&flashAttn, "flash-attn", false, "flash attention")
	flag.Parse()

	switch os.Getenv("FAKE_LLAMA_MODE") {
	case "crash":
		fmt.Println("loading model", model)
		fmt.Fprintln(os.Stderr, "error: failed to load model")
		os.Exit(1)
	case "hang":
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
		<-sigCh
		return
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	mux.HandleFunc("/v1/", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"method": r.Method,
			"path":   r.URL.Path,
			"query":  r.URL.RawQuery,
			"host":   r.Host,
			"body":   string(body),
			"model":  model,
		})
	})

	srv := &http.Server{Addr: fmt.Sprintf("%s:%s", host, port), Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	<-sigCh
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
