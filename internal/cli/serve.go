package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"docrag/internal/adapter/chunker"
	"docrag/internal/server"
)

var (
	serveEphemeral bool
	servePort      int
	serveHost      string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Serve ingestion, search and question answering over HTTP.

Endpoints:
  GET    /healthz
  GET    /metrics
  GET    /api/v1/stats
  GET    /api/v1/documents
  POST   /api/v1/documents            (multipart field "file")
  GET    /api/v1/documents/{id}
  DELETE /api/v1/documents/{id}
  GET    /api/v1/documents/{id}/chunks
  POST   /api/v1/search               {"query": "...", "top_k": 5}
  POST   /api/v1/ask                  {"query": "..."}
  POST   /api/v1/chunk                {"text": "...", "max_size": 800, "overlap": 120}

With --ephemeral, documents are kept in memory and lost on exit.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().BoolVar(&serveEphemeral, "ephemeral", false, "keep the index in memory only")
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "listen port (default from config)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "listen host (default from config)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := GetConfig()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(ctx, cfg, GetRootDir(), appOptions{ephemeral: serveEphemeral})
	if err != nil {
		return err
	}
	defer a.Close()

	srvCfg := server.Config{
		Host:           cfg.Server.Host,
		Port:           cfg.Server.Port,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		TopK:           cfg.Retrieve.TopK,
		Chunking:       chunker.Options{MaxSize: cfg.Ingest.ChunkSize, Overlap: cfg.Ingest.ChunkOverlap},
	}
	if servePort != 0 {
		srvCfg.Port = servePort
	}
	if serveHost != "" {
		srvCfg.Host = serveHost
	}

	srv := server.NewHTTPServer(server.Deps{
		Docs:     a.docs,
		Ingest:   a.ingest,
		Retrieve: a.retrieve,
		Prompt:   a.prompt,
	}, srvCfg)

	return srv.ListenAndServe(ctx)
}
