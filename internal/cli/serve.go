package cli

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/2023lic14/momentmcp/internal/blueprint"
	"github.com/2023lic14/momentmcp/internal/config"
	"github.com/2023lic14/momentmcp/internal/elevenlabs"
	"github.com/2023lic14/momentmcp/internal/mcp"
	"github.com/2023lic14/momentmcp/internal/moments"
	"github.com/2023lic14/momentmcp/internal/store"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the MCP tool server",
	RunE:  runServe,
}

var (
	serveTransport  string
	serveListenHost string
	serveListenPort int
	serveMCPPath    string
	serveStateless  bool
	serveEnableSSE  bool
	serveOutputDir  string
)

func init() {
	serveCmd.Flags().StringVar(&serveTransport, "transport", "", "transport: stdio|http")
	serveCmd.Flags().StringVar(&serveListenHost, "listen-host", "", "host to bind for HTTP transport")
	serveCmd.Flags().IntVar(&serveListenPort, "listen-port", 0, "port to bind for HTTP transport")
	serveCmd.Flags().StringVar(&serveMCPPath, "mcp-path", "", "HTTP path for the MCP endpoint")
	serveCmd.Flags().BoolVar(&serveStateless, "stateless", false, "serve HTTP without session state")
	serveCmd.Flags().BoolVar(&serveEnableSSE, "enable-sse", false, "also serve the legacy SSE transport")
	serveCmd.Flags().StringVar(&serveOutputDir, "output-dir", "", "directory for generated audio files")
}

func runServe(cmd *cobra.Command, _ []string) error {
	overrides := &config.Overrides{}
	flags := cmd.Flags()
	if flags.Changed("transport") {
		overrides.Transport = &serveTransport
	}
	if flags.Changed("listen-host") {
		overrides.ListenHost = &serveListenHost
	}
	if flags.Changed("listen-port") {
		overrides.ListenPort = &serveListenPort
	}
	if flags.Changed("mcp-path") {
		overrides.MCPPath = &serveMCPPath
	}
	if flags.Changed("stateless") {
		overrides.Stateless = &serveStateless
	}
	if flags.Changed("enable-sse") {
		overrides.EnableSSE = &serveEnableSSE
	}
	if flags.Changed("output-dir") {
		overrides.OutputDir = &serveOutputDir
	}

	cfg, err := config.Load(config.Options{ConfigPath: configPath, Overrides: overrides})
	if err != nil {
		return err
	}

	validator, err := blueprint.CompileDefault(cfg.SchemaPath)
	if err != nil {
		return fmt.Errorf("blueprint schema: %w", err)
	}

	synth := elevenlabs.NewClient(cfg.ElevenLabsAPIKey, cfg.DefaultVoiceID, cfg.OutputDir)
	synth.BaseURL = cfg.ElevenLabsBaseURL

	var ledger *store.ArtifactLedger
	if cfg.StateDir != "" {
		if err := os.MkdirAll(cfg.StateDir, 0o755); err != nil {
			return fmt.Errorf("state dir: %w", err)
		}
		ledger = store.NewArtifactLedger(filepath.Join(cfg.StateDir, "artifacts.sqlite"))
		defer func() { _ = ledger.Close() }()
		synth.Sink = ledger
	}

	pipeline := moments.NewClient(cfg.MomentAPIBaseURL)

	server := mcp.NewServer(cfg, validator, synth, pipeline)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Transport == config.TransportStdio {
		return server.ServeStdio(ctx, os.Stdin, os.Stdout)
	}

	listener, err := net.Listen("tcp", cfg.ListenAddr())
	if err != nil {
		return fmt.Errorf("bind %s: %w", cfg.ListenAddr(), err)
	}

	fmt.Fprintln(os.Stderr, "MCP endpoint:")
	fmt.Fprintf(os.Stderr, "  URL:  http://%s%s\n", listener.Addr(), cfg.MCPPath)
	if cfg.AuthToken != "" {
		fmt.Fprintln(os.Stderr, "  Auth: Authorization: Bearer <token>")
	}
	if cfg.EnableLegacySSE {
		fmt.Fprintf(os.Stderr, "  SSE:  http://%s%s/sse\n", listener.Addr(), cfg.MCPPath)
	}

	return server.Serve(ctx, listener)
}
