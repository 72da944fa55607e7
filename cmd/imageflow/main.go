// =============================================================================
// imageflow 主入口
// =============================================================================
// 异步文生图服务入口点，包含 HTTP 服务、健康检查、Prometheus 指标
//
// 使用方法:
//
//	imageflow serve                       # 启动服务
//	imageflow serve -config config.yaml   # 指定配置文件
//	imageflow migrate                     # 创建或更新生成记录表
//	imageflow version                     # 显示版本信息
//	imageflow health -ready               # 就绪检查
// =============================================================================

// @title imageflow API
// @version 1.0.0
// @description Asynchronous text-to-image generation service.
// @description
// @description ## Features
// @description - Batch prompt submission with per-prompt polling URLs
// @description - Generated image reuse for repeated prompts
// @description - Job status polling and websocket streaming

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /
// @schemes http https

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
// @description API key for authentication

package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/imageflow/config"
	"github.com/BaSui01/imageflow/internal/telemetry"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

type command struct {
	name    string
	summary string
	run     func(args []string)
}

func commands() []command {
	return []command{
		{"serve", "Start the HTTP API, job workers and metrics server", runServe},
		{"migrate", "Create or update the generation record table", runMigrate},
		{"version", "Show version information", func([]string) { printVersion() }},
		{"health", "Check a running server (/health, or /ready with -ready)", runHealthCheck},
		{"help", "Show this help message", func([]string) { printUsage() }},
	}
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	name := os.Args[1]
	if name == "-h" || name == "--help" {
		name = "help"
	}
	for _, c := range commands() {
		if c.name == name {
			c.run(os.Args[2:])
			return
		}
	}

	fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
	printUsage()
	os.Exit(1)
}

// loadConfig 加载并验证配置，失败时退出进程
func loadConfig(path string) *config.Config {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}

	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	cfg := loadConfig(*configPath)

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	logger.Info("Starting imageflow",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	ctx := context.Background()

	otelProviders, err := telemetry.Init(ctx, cfg.Telemetry, Version, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	srv := NewServer(cfg, logger)
	if err := srv.Start(ctx); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}

	if err := srv.Wait(ctx); err != nil {
		logger.Error("server stopped unexpectedly", zap.Error(err))
	}

	timeout := cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	srv.Shutdown(shutdownCtx)

	if err := otelProviders.Shutdown(shutdownCtx); err != nil {
		logger.Warn("telemetry shutdown error", zap.Error(err))
	}

	logger.Info("imageflow stopped")
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	ready := fs.Bool("ready", false, "Check /ready (database, job backend, queue) instead of /health")
	timeout := fs.Duration("timeout", 5*time.Second, "Request timeout")
	fs.Parse(args)

	if err := checkEndpoint(*addr, *ready, *timeout); err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("OK")
}

// checkEndpoint 请求存活或就绪端点，非 200 视为失败
func checkEndpoint(addr string, ready bool, timeout time.Duration) error {
	path := "/health"
	if ready {
		path = "/ready"
	}

	client := &http.Client{Timeout: timeout}
	resp, err := client.Get(strings.TrimRight(addr, "/") + path)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s returned status %d", path, resp.StatusCode)
	}
	return nil
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("imageflow %s (commit %s, built %s)\n", Version, GitCommit, BuildTime)
}

func printUsage() {
	var b strings.Builder
	b.WriteString("imageflow - asynchronous text-to-image service\n\nUsage:\n  imageflow <command> [options]\n\nCommands:\n")
	tw := tabwriter.NewWriter(&b, 0, 4, 2, ' ', 0)
	for _, c := range commands() {
		fmt.Fprintf(tw, "  %s\t%s\n", c.name, c.summary)
	}
	tw.Flush()
	b.WriteString(`
Examples:
  imageflow serve -config /etc/imageflow/config.yaml
  imageflow migrate -config /etc/imageflow/config.yaml
  imageflow health -addr http://localhost:8080 -ready
`)
	fmt.Print(b.String())
}
