// Package main is the kotae CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/answer"
	"github.com/hyperjump/kotae/internal/archive"
	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/extract"
	"github.com/hyperjump/kotae/internal/fileid"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/store"
	"github.com/hyperjump/kotae/internal/watcher"
	"github.com/hyperjump/kotae/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/kotae/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

func main() {
	// OPENAI_API_KEY may live in a .env next to the binary during development.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	switch command := os.Args[1]; command {
	case "server":
		runServer()
	case "upload":
		runUpload()
	case "ask":
		runAsk()
	case "search":
		runSearch()
	case "delete":
		runDelete()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("kotae version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`kotae - ask questions about your documents

Usage:
  kotae server  [-config path] [-debug]      run the API server
  kotae upload  [-server url] <file>...      upload and index documents
  kotae ask     [-server url] [-top-k n] [-doc id]... [-output fmt] <question>
  kotae search  [-server url] [-top-k n] [-doc id]... [-output fmt] <query>
  kotae delete  [-server url] <doc-id>...    delete documents
  kotae status  [-server url]                show server status
  kotae version                              print version
`)
}

// loadConfig loads config from path. When path is the default, a config.yaml
// in the current directory wins (for development).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	cfg.Debug = debugMode
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logger.Info("config loaded", zap.String("config_path", resolvedPath), zap.Bool("debug", debugMode))

	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		logger.Fatal("OPENAI_API_KEY is not set")
	}
	openaiEmbedder, err := embedding.NewOpenAIEmbedder(apiKey, cfg.Embedding.Model, cfg.Embedding.Dimensions)
	if err != nil {
		logger.Fatal("Failed to create embedder", zap.Error(err))
	}
	embedder := embedding.NewCachedEmbedder(openaiEmbedder, cfg.Embedding.CacheSize)

	st, err := store.New(store.Options{
		Dir:            cfg.Storage.DataDir,
		MinChunkLength: cfg.Search.MinChunkLength,
		MaxChunkLength: cfg.Search.MaxChunkLength,
	}, embedder, logger)
	if err != nil {
		logger.Fatal("Failed to open store", zap.Error(err))
	}

	arch, err := archive.Open(cfg.Storage.ArchivePath)
	if err != nil {
		logger.Fatal("Failed to open archive", zap.Error(err))
	}

	answerer, err := answer.NewOpenAIAnswerer(apiKey, cfg.Answer.AnswerModel, cfg.Answer.SynthesisModel)
	if err != nil {
		logger.Fatal("Failed to create answerer", zap.Error(err))
	}

	extractor := extract.NewExtractor()

	var watch *watcher.Watcher
	if len(cfg.Watch.Directories) > 0 {
		watch = watcher.New(
			cfg.Watch.Directories,
			cfg.Watch.Extensions,
			cfg.Watch.RecursiveOrDefault(),
			func(path string) {
				ingestWatchedFile(st, arch, extractor, logger, path)
			},
			func(path string) {
				docID := fileid.FileDocID(path)
				if _, err := st.DeleteDocument(docID); err != nil {
					logger.Warn("watch delete failed", zap.String("path", path), zap.Error(err))
				}
				if err := arch.Delete(context.Background(), docID); err != nil {
					logger.Warn("watch archive delete failed", zap.String("path", path), zap.Error(err))
				}
			},
			logger,
		)
		if err := watch.Start(); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
	}

	srv := server.NewServer(st, arch, answerer, extractor, cfg, logger)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down")
	if watch != nil {
		watch.Stop()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
	if err := st.Close(); err != nil {
		logger.Warn("final snapshot failed", zap.Error(err))
	}
	if err := arch.Close(); err != nil {
		logger.Warn("archive close failed", zap.Error(err))
	}
}

// ingestWatchedFile extracts and ingests one watched file under its stable
// path-derived document id.
func ingestWatchedFile(st *store.Store, arch *archive.Archive, extractor *extract.Extractor, logger *zap.Logger, path string) {
	text, pages, err := extractor.Extract(path)
	if err != nil {
		logger.Warn("watch extract failed", zap.String("path", path), zap.Error(err))
		return
	}
	if strings.TrimSpace(text) == "" {
		return
	}
	docID := fileid.FileDocID(path)
	name := filepath.Base(path)
	if err := arch.Put(context.Background(), &archive.Document{ID: docID, Name: name, Text: text, PageCount: pages}); err != nil {
		logger.Warn("watch archive failed", zap.String("path", path), zap.Error(err))
	}
	// Replace any previous version of the file before ingesting the new one.
	if _, err := st.DeleteDocument(docID); err != nil {
		logger.Warn("watch replace failed", zap.String("path", path), zap.Error(err))
	}
	if _, err := st.IngestDocument(context.Background(), docID, name, text, pages); err != nil {
		logger.Warn("watch ingest failed", zap.String("path", path), zap.Error(err))
	}
}

func runUpload() {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	_ = fs.Parse(os.Args[2:])
	if fs.NArg() < 1 {
		fmt.Println("Usage: kotae upload [-server url] <file>...")
		os.Exit(1)
	}
	for _, path := range fs.Args() {
		resp, err := uploadViaHTTP(*serverURL, path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Upload %s failed: %v\n", path, err)
			os.Exit(1)
		}
		fmt.Printf("Indexed %s: id=%s chunks=%d pages=%d\n", path, resp.ID, resp.Chunks, resp.Pages)
	}
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	topK := fs.Int("top-k", 0, "number of passages to retrieve (0 = server default)")
	output := fs.String("output", "text", "output format: text or json")
	var docIDs stringList
	fs.Var(&docIDs, "doc", "restrict to document id (repeatable)")
	_ = fs.Parse(os.Args[2:])
	if fs.NArg() < 1 {
		fmt.Println("Usage: kotae ask [-server url] [-top-k n] [-doc id]... <question>")
		os.Exit(1)
	}
	question := strings.TrimSpace(strings.Join(fs.Args(), " "))

	var resp models.AskResponse
	err := postJSON(*serverURL+"/api/v1/ask", map[string]interface{}{
		"question": question,
		"top_k":    *topK,
		"doc_ids":  []string(docIDs),
	}, &resp)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ask failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteAskResponse(os.Stdout, &resp, outputFormat(*output)); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	topK := fs.Int("top-k", 0, "number of results (0 = server default)")
	output := fs.String("output", "text", "output format: text or json")
	var docIDs stringList
	fs.Var(&docIDs, "doc", "restrict to document id (repeatable)")
	_ = fs.Parse(os.Args[2:])
	if fs.NArg() < 1 {
		fmt.Println("Usage: kotae search [-server url] [-top-k n] [-doc id]... <query>")
		os.Exit(1)
	}
	query := strings.TrimSpace(strings.Join(fs.Args(), " "))

	var resp struct {
		Results []models.SearchResult `json:"results"`
	}
	err := postJSON(*serverURL+"/api/v1/search", map[string]interface{}{
		"query":   query,
		"top_k":   *topK,
		"doc_ids": []string(docIDs),
	}, &resp)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSearchResults(os.Stdout, resp.Results, outputFormat(*output)); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	_ = fs.Parse(os.Args[2:])
	if fs.NArg() < 1 {
		fmt.Println("Usage: kotae delete [-server url] <doc-id>...")
		os.Exit(1)
	}
	for _, id := range fs.Args() {
		req, err := http.NewRequest(http.MethodDelete, *serverURL+"/api/v1/documents/"+id, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Delete %s failed: %v\n", id, err)
			os.Exit(1)
		}
		var resp struct {
			Deleted bool `json:"deleted"`
		}
		if err := doJSON(req, &resp); err != nil {
			fmt.Fprintf(os.Stderr, "Delete %s failed: %v\n", id, err)
			os.Exit(1)
		}
		if resp.Deleted {
			fmt.Printf("Deleted %s\n", id)
		} else {
			fmt.Printf("Not found: %s\n", id)
		}
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	_ = fs.Parse(os.Args[2:])
	req, err := http.NewRequest(http.MethodGet, *serverURL+"/status", nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	var status map[string]interface{}
	if err := doJSON(req, &status); err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(status)
}

func outputFormat(name string) cli.OutputFormat {
	if name == "json" {
		return cli.OutputJSON
	}
	return cli.OutputText
}

// stringList collects repeated string flags.
type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }

func (l *stringList) Set(v string) error {
	*l = append(*l, v)
	return nil
}

func uploadViaHTTP(serverURL, path string) (*struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Chunks int    `json:"chunks"`
	Pages  int    `json:"pages"`
}, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequest(http.MethodPost, serverURL+"/api/v1/documents", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp := &struct {
		ID     string `json:"id"`
		Name   string `json:"name"`
		Chunks int    `json:"chunks"`
		Pages  int    `json:"pages"`
	}{}
	if err := doJSON(req, resp); err != nil {
		return nil, err
	}
	return resp, nil
}

func postJSON(url string, payload interface{}, out interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return doJSON(req, out)
}

// doJSON executes req and decodes the JSON response into out. Non-2xx
// responses surface the server's error message.
func doJSON(req *http.Request, out interface{}) error {
	client := &http.Client{Timeout: 5 * time.Minute}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server returned %d", resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.Unmarshal(body, out)
}
