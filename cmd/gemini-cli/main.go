package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/genai"

	"github.com/OzasaHiro/gemini-cli/internal/config"
	"github.com/OzasaHiro/gemini-cli/internal/llm"
	"github.com/OzasaHiro/gemini-cli/internal/observability"
	"github.com/OzasaHiro/gemini-cli/internal/ollama"
	"github.com/OzasaHiro/gemini-cli/internal/tools"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	logger := observability.NewLogger(cfg.LogLevel, os.Stderr)

	prompt := strings.TrimSpace(strings.Join(os.Args[1:], " "))
	if prompt == "" {
		fmt.Fprintln(os.Stderr, "usage: gemini-cli <prompt>")
		return 2
	}

	if !cfg.OllamaEnabled {
		logger.Error("The Ollama backend is disabled; set OLLAMA_ENABLED=true to use it")
		return 1
	}

	registry := tools.NewRegistry()
	tools.RegisterBuiltins(registry)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := []ollama.Option{
		ollama.WithLogger(logger),
		ollama.WithMaxToolRounds(cfg.MaxToolRounds),
		ollama.WithHTTPClient(&http.Client{Timeout: time.Duration(cfg.RequestTimeout) * time.Second}),
	}

	if cfg.MetricsEnabled {
		recorder := observability.NewMetricsRecorder(prometheus.DefaultRegisterer)
		opts = append(opts, ollama.WithMetricsCallback(recorder.Callback()))

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       10 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       60 * time.Second,
		}
		go func() {
			logger.Info("Serving Prometheus metrics", "addr", server.Addr)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server stopped", "error", err)
			}
		}()
		go func() {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				logger.Error("Metrics server shutdown failed", "error", err)
			}
		}()
	}

	var backend llm.Generator = ollama.New(ollama.Endpoint{
		Host:  cfg.OllamaHost,
		Port:  cfg.OllamaPort,
		Model: cfg.OllamaModel,
	}, registry, opts...)

	logger.Info("Running turn against Ollama backend",
		"host", cfg.OllamaHost,
		"port", cfg.OllamaPort,
		"model", cfg.OllamaModel)

	history := []*genai.Content{
		{Role: "user", Parts: []*genai.Part{{Text: prompt}}},
	}

	reply, err := backend.GenerateContent(ctx, history)
	if err != nil {
		logger.Error("Turn failed", "error", err)
		return 1
	}

	return printReply(reply)
}

// printReply writes the terminal reply to stdout: text first, then one line
// per tool invocation the turn made. A non-STOP finish reason signals a
// turn-level fault and maps to a non-zero exit code.
func printReply(reply *genai.GenerateContentResponse) int {
	if reply == nil || len(reply.Candidates) == 0 || reply.Candidates[0].Content == nil {
		fmt.Fprintln(os.Stderr, "empty reply from backend")
		return 1
	}

	candidate := reply.Candidates[0]
	for _, part := range candidate.Content.Parts {
		if part == nil {
			continue
		}
		if part.Text != "" {
			fmt.Println(part.Text)
		}
		if part.FunctionCall != nil {
			fmt.Printf("[tool call] %s %v\n", part.FunctionCall.Name, part.FunctionCall.Args)
		}
	}

	if candidate.FinishReason != genai.FinishReasonStop {
		return 1
	}
	return 0
}
