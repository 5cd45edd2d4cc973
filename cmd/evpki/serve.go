package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/remiblancher/evpki/internal/api/server"
	"github.com/remiblancher/evpki/internal/audit"
)

var (
	serveConfig   string
	serveHost     string
	servePort     int
	serveDataDir  string
	serveAnchors  string
	serveProfiles string
	serveTLSCert  string
	serveTLSKey   string
	serveLogLevel string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the certificate REST API",
	Long: `Start the REST API serving the certificate store.

Endpoints:
  /api/v1/certificates   Create, import, list, sign and verify certificates
  /api/v1/anchors        Trust anchors by ISO 15118 version
  /api/v1/profiles       Certificate profiles
  /health, /ready        Liveness and readiness probes
  /metrics               Prometheus metrics

Settings come from --config, then environment variables, then flags.

Environment variables:
  EVPKI_HOST       Host to bind to
  EVPKI_PORT       Port
  EVPKI_DATA_DIR   Certificate store directory
  EVPKI_ANCHORS    Trust anchor store
  EVPKI_PROFILES   Custom profiles directory
  EVPKI_AUDIT_LOG  Audit log file

Examples:
  evpki serve --data-dir ./evpki-data --anchors anchors.yaml
  evpki serve --config evpki.yaml --port 9443 --tls-cert server.crt --tls-key server.key`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfig, "config", "c", "", "Server configuration file (YAML)")
	serveCmd.Flags().StringVar(&serveHost, "host", "", "Host to bind to (default: all interfaces)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Port (default: 8443)")
	serveCmd.Flags().StringVar(&serveDataDir, "data-dir", "", "Certificate store directory")
	serveCmd.Flags().StringVar(&serveAnchors, "anchors", "", "Trust anchor store (YAML)")
	serveCmd.Flags().StringVar(&serveProfiles, "profiles", "", "Custom profiles directory")
	serveCmd.Flags().StringVar(&serveTLSCert, "tls-cert", "", "TLS certificate file")
	serveCmd.Flags().StringVar(&serveTLSKey, "tls-key", "", "TLS private key file")
	serveCmd.Flags().StringVar(&serveLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := serveConfigFromFlags(cmd)
	if err != nil {
		return err
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(serveLogLevel)); err != nil {
		return err
	}
	logger := slog.New(slog.NewJSONHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv := server.New(cfg, version, logger)
	if err := srv.Setup(); err != nil {
		return err
	}
	return srv.Run(ctx)
}

// serveConfigFromFlags loads the configuration file and applies the flags
// the user set explicitly.
func serveConfigFromFlags(cmd *cobra.Command) (*server.Config, error) {
	cfg, err := server.LoadConfig(serveConfig)
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Host = serveHost
	}
	if flags.Changed("port") {
		cfg.Port = servePort
	}
	if flags.Changed("data-dir") {
		cfg.DataDir = serveDataDir
	}
	if flags.Changed("anchors") {
		cfg.AnchorsFile = serveAnchors
	}
	if flags.Changed("profiles") {
		cfg.ProfilesDir = serveProfiles
	}
	if flags.Changed("tls-cert") {
		cfg.TLSCert = serveTLSCert
	}
	if flags.Changed("tls-key") {
		cfg.TLSKey = serveTLSKey
	}
	if audit.Enabled() {
		// --audit-log or EVPKI_AUDIT_LOG is already open for this process.
		cfg.AuditLog = ""
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
