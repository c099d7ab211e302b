// ABOUTME: Entry point for the openclaw-gateway session auth server
// ABOUTME: Subcommands: serve (default), bootstrap-user, version

package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/base64"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"golang.org/x/term"

	"github.com/CohesiumAI/openclaw-sub000/internal/auth"
	"github.com/CohesiumAI/openclaw-sub000/internal/config"
	"github.com/CohesiumAI/openclaw-sub000/internal/credential"
	"github.com/CohesiumAI/openclaw-sub000/internal/gateway"
	"github.com/CohesiumAI/openclaw-sub000/internal/store"
	"github.com/CohesiumAI/openclaw-sub000/internal/webauth"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
                               _
  ___  _ __   ___ _ __     ___| | __ ___      __
 / _ \| '_ \ / _ \ '_ \   / __| |/ _' \ \ /\ / /
| (_) | |_) |  __/ | | | | (__| | (_| |\ V  V /
 \___/| .__/ \___|_| |_|  \___|_|\__,_| \_/\_/
      |_|
`

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Bare flags go to serve, so "openclaw-gateway --listen :9000" works.
	command := "serve"
	args := os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		command = args[0]
		args = args[1:]
	}

	var err error
	switch command {
	case "serve":
		err = runServe(ctx, args)
	case "bootstrap-user":
		err = runBootstrapUser(ctx, args)
	case "version":
		fmt.Printf("openclaw-gateway %s\n", version)
	case "help":
		printUsage(os.Stdout)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage(os.Stderr)
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: openclaw-gateway [command] [flags]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve             Start the gateway server (default)")
	fmt.Fprintln(w, "  bootstrap-user    Create the first admin user interactively")
	fmt.Fprintln(w, "  version           Print the version")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'openclaw-gateway <command> -h' for command flags.")
}

func runServe(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to gateway.yaml (default: "+config.DefaultConfigPath()+")")
	dataDir := fs.String("data-dir", "", "override storage.data_dir (database moves with it)")
	listen := fs.String("listen", "", "override server.listen_addr")
	logLevel := fs.String("log-level", "", "override logging.level (debug/info/warn/error)")
	logFormat := fs.String("log-format", "", "override logging.format (text/json)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, cfgSource, err := loadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	// Flags win over the config file.
	if *dataDir != "" {
		cfg.Storage.DataDir = *dataDir
		cfg.Storage.DatabasePath = filepath.Join(*dataDir, "gateway.db")
	}
	if *listen != "" {
		cfg.Server.ListenAddr = *listen
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging)

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)

	cyan.Print(banner)
	gray.Printf("    version: %s\n\n", version)

	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", cfgSource)
	green.Print("    ▶ ")
	fmt.Printf("Listen:   %s\n", cfg.Server.ListenAddr)
	green.Print("    ▶ ")
	fmt.Printf("Data:     %s\n", cfg.Storage.DataDir)
	fmt.Println()

	logger.Info("starting openclaw-gateway",
		"version", version,
		"config", cfgSource,
		"listen_addr", cfg.Server.ListenAddr,
		"data_dir", cfg.Storage.DataDir,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

// loadConfig resolves the effective configuration. An explicitly given
// path must exist; the default path falls back to built-in defaults when
// absent so a fresh checkout can serve without any setup.
func loadConfig(explicit string) (*config.Config, string, error) {
	if explicit != "" {
		cfg, err := config.Load(explicit)
		if err != nil {
			return nil, "", err
		}
		return cfg, explicit, nil
	}

	path := config.DefaultConfigPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default(), "(built-in defaults)", nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// runBootstrapUser performs first-time setup:
//  1. Creates the config file with a random token secret (if missing)
//  2. Creates the database and the first admin user
//  3. Prints the admin's recovery code, once
//
// Refuses to run when any user already exists.
func runBootstrapUser(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("bootstrap-user", flag.ExitOnError)
	configPath := fs.String("config", "", "path to gateway.yaml (default: "+config.DefaultConfigPath()+")")
	dataDir := fs.String("data-dir", "", "override storage.data_dir (database moves with it)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)
	yellow := color.New(color.FgYellow)

	cfg, err := ensureConfig(*configPath)
	if err != nil {
		return err
	}
	if *dataDir != "" {
		cfg.Storage.DataDir = *dataDir
		cfg.Storage.DatabasePath = filepath.Join(*dataDir, "gateway.db")
	}

	if err := os.MkdirAll(cfg.Storage.DataDir, 0755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	directory, err := store.NewSQLiteDirectory(cfg.Storage.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening user directory: %w", err)
	}
	defer directory.Close()

	green.Printf("  ✓ Database: %s\n", cfg.Storage.DatabasePath)

	count, err := directory.CountUsers(ctx)
	if err != nil {
		return fmt.Errorf("checking users: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("bootstrap already complete: %d user(s) exist", count)
	}

	reader := bufio.NewReader(os.Stdin)
	username := prompt(reader, "Admin username", "admin")
	if msg := webauth.ValidateUsername(username); msg != "" {
		return fmt.Errorf("invalid username: %s", msg)
	}
	displayName := prompt(reader, "Display name", username)

	password, err := promptPassword("Password: ")
	if err != nil {
		return err
	}
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}
	confirm, err := promptPassword("Confirm password: ")
	if err != nil {
		return err
	}
	if password != confirm {
		return fmt.Errorf("passwords do not match")
	}

	hash, err := credential.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hashing password: %w", err)
	}
	recoveryCode, err := credential.GenerateRecoveryCode()
	if err != nil {
		return fmt.Errorf("generating recovery code: %w", err)
	}

	now := time.Now().UTC()
	user := &store.GatewayUser{
		ID:               uuid.New().String(),
		Username:         username,
		DisplayName:      displayName,
		PasswordHash:     hash,
		Role:             auth.RoleAdmin,
		RecoveryCodeHash: credential.HashRecoveryCode(recoveryCode),
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := directory.CreateUser(ctx, user); err != nil {
		return fmt.Errorf("creating user: %w", err)
	}

	green.Printf("  ✓ Created admin user: %s\n", username)

	fmt.Println()
	green.Println("  Bootstrap complete!")
	fmt.Println()
	cyan.Println("  Recovery code (shown once, store it somewhere safe):")
	fmt.Print("    ")
	yellow.Println(recoveryCode)
	fmt.Println()
	fmt.Println("  Ready to go:")
	fmt.Println("    openclaw-gateway serve    # start the gateway")
	fmt.Println()

	return nil
}

// ensureConfig loads the config file, creating it with a fresh random
// token secret when it does not exist yet.
func ensureConfig(explicit string) (*config.Config, error) {
	path := explicit
	if path == "" {
		path = config.DefaultConfigPath()
	}

	if _, err := os.Stat(path); err == nil {
		cfg, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		color.New(color.FgCyan).Printf("  Using existing config: %s\n", path)
		return cfg, nil
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("checking config file: %w", err)
	}

	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return nil, fmt.Errorf("generating token secret: %w", err)
	}
	secret := base64.StdEncoding.EncodeToString(secretBytes)

	dataDir := config.DefaultDataDir()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	content := fmt.Sprintf(`# openclaw-gateway configuration
# Generated by openclaw-gateway bootstrap-user

server:
  listen_addr: "127.0.0.1:8080"

storage:
  data_dir: "%s"

session:
  ttl: "168h"

auth:
  token_secret: "%s"

logging:
  level: "info"
  format: "text"
`, dataDir, secret)

	// The file holds the token signing secret. Owner-only.
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		return nil, fmt.Errorf("writing config file: %w", err)
	}

	color.New(color.FgGreen).Printf("  ✓ Created config: %s\n", path)

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, take the default.
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}

// promptPassword reads a password from the terminal without echoing it.
func promptPassword(label string) (string, error) {
	fmt.Print(label)
	raw, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(raw), nil
}

func setupLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	}
	return slog.New(&colorHandler{out: os.Stdout, level: level})
}

// colorHandler is a human-oriented slog handler with colorized levels
// and thread-safe writes. JSON output is for machines; this is for the
// terminal a developer actually watches.
type colorHandler struct {
	mu     sync.Mutex
	out    io.Writer
	level  slog.Level
	attrs  []slog.Attr
	groups []string
}

func (h *colorHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *colorHandler) Handle(_ context.Context, r slog.Record) error {
	var buf strings.Builder

	buf.WriteString(color.HiBlackString(r.Time.Format("15:04:05") + " "))

	switch r.Level {
	case slog.LevelDebug:
		buf.WriteString(color.MagentaString("DBG "))
	case slog.LevelInfo:
		buf.WriteString(color.CyanString("INF "))
	case slog.LevelWarn:
		buf.WriteString(color.YellowString("WRN "))
	case slog.LevelError:
		buf.WriteString(color.New(color.FgRed, color.Bold).Sprint("ERR "))
	default:
		buf.WriteString("??? ")
	}

	buf.WriteString(r.Message)

	// Handler-level attrs (from WithAttrs) first, then record attrs.
	for _, a := range h.attrs {
		h.writeAttr(&buf, a)
	}
	r.Attrs(func(a slog.Attr) bool {
		h.writeAttr(&buf, a)
		return true
	})

	buf.WriteString("\n")

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.out, buf.String())
	return err
}

func (h *colorHandler) writeAttr(buf *strings.Builder, a slog.Attr) {
	key := a.Key
	if len(h.groups) > 0 {
		key = strings.Join(h.groups, ".") + "." + key
	}
	buf.WriteString(color.HiBlackString(" " + key + "="))
	buf.WriteString(a.Value.String())
}

func (h *colorHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, len(h.attrs), len(h.attrs)+len(attrs))
	copy(newAttrs, h.attrs)
	newAttrs = append(newAttrs, attrs...)
	return &colorHandler{
		out:    h.out,
		level:  h.level,
		attrs:  newAttrs,
		groups: h.groups,
	}
}

func (h *colorHandler) WithGroup(name string) slog.Handler {
	newGroups := make([]string, len(h.groups), len(h.groups)+1)
	copy(newGroups, h.groups)
	newGroups = append(newGroups, name)
	return &colorHandler{
		out:    h.out,
		level:  h.level,
		attrs:  h.attrs,
		groups: newGroups,
	}
}
