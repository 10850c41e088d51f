// Command ragflow runs a search against a JSON corpus from the shell.
//
// Usage:
//
//	ragflow -corpus docs.json -query "how do I reset my password"
//	ragflow -corpus docs.json -config ragflow.yaml -query "..." -json
//	ragflow -corpus docs.json -query "..." -metrics :9090
//
// The corpus file holds a JSON array of chunks:
//
//	[{"id": "doc-1", "content": "...", "metadata": {"source": "help/a.md"}}]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/ragflow"
	"github.com/BaSui01/ragflow/types"
)

func main() {
	var (
		corpusPath  = flag.String("corpus", "", "path to the JSON corpus file (required)")
		configPath  = flag.String("config", "", "path to a YAML config file")
		query       = flag.String("query", "", "query to search for (required)")
		jsonOut     = flag.Bool("json", false, "print the full result as JSON")
		metricsAddr = flag.String("metrics", "", "serve prometheus metrics on this address")
		verbose     = flag.Bool("v", false, "enable debug logging")
	)
	flag.Parse()

	if *corpusPath == "" || *query == "" {
		flag.Usage()
		os.Exit(2)
	}

	logger := newLogger(*verbose)
	defer logger.Sync()

	if err := run(*corpusPath, *configPath, *query, *jsonOut, *metricsAddr, logger); err != nil {
		logger.Error("search failed",
			zap.String("code", string(types.GetErrorCode(err))),
			zap.Error(err))
		os.Exit(1)
	}
}

func run(corpusPath, configPath, query string, jsonOut bool, metricsAddr string, logger *zap.Logger) error {
	chunks, err := loadCorpus(corpusPath)
	if err != nil {
		return err
	}
	logger.Info("corpus loaded", zap.Int("chunks", len(chunks)))

	opts := []ragflow.Option{
		ragflow.WithCorpus(chunks, nil),
		ragflow.WithKeywordEnhancer(),
		ragflow.WithLogger(logger),
	}
	if configPath != "" {
		opts = append(opts, ragflow.WithConfigFile(configPath))
	}
	e, err := ragflow.New(opts...)
	if err != nil {
		return err
	}

	if metricsAddr != "" {
		go serveMetrics(metricsAddr, logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	result, err := e.Search(ctx, query)
	if err != nil {
		return err
	}
	return printResult(result, jsonOut)
}

func loadCorpus(path string) ([]types.Chunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewError(types.ErrConfigError, "read corpus "+path).WithCause(err)
	}
	var chunks []types.Chunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		return nil, types.NewError(types.ErrConfigError, "parse corpus "+path).WithCause(err)
	}
	if len(chunks) == 0 {
		return nil, types.NewError(types.ErrEmptyInput, "corpus is empty")
	}
	return chunks, nil
}

func printResult(result *types.RAGResult, jsonOut bool) error {
	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	fmt.Println(result.Context.Content)
	fmt.Println()
	for _, s := range result.Context.Sources {
		fmt.Printf("  [%d] %s (score %.4f)\n", s.Index, s.ChunkID, s.Score)
	}
	if result.Context.DroppedCount > 0 {
		fmt.Printf("  %d chunk(s) dropped over the token budget\n", result.Context.DroppedCount)
	}
	return nil
}

func serveMetrics(addr string, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	logger.Info("serving metrics", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("metrics server stopped", zap.Error(err))
	}
}

func newLogger(verbose bool) *zap.Logger {
	config := zap.NewProductionConfig()
	if verbose {
		config.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	}
	logger, err := config.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}
