// cmd/server/main.go
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/Corphon/StoryForgeMCP/internal/api"
	"github.com/Corphon/StoryForgeMCP/internal/app"
	"github.com/Corphon/StoryForgeMCP/internal/config"
	"github.com/Corphon/StoryForgeMCP/internal/di"
	"github.com/Corphon/StoryForgeMCP/internal/services"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		logrus.Fatalf("加载配置失败: %v", err)
	}

	// 2. 初始化日志
	setupLogging(cfg)
	logrus.Info("🚀 启动 StoryForgeMCP 服务器...")
	logrus.Infof("✅ 配置加载完成，端口: %s", cfg.Port)

	// 3. 创建必要的目录
	createDirectories(cfg)

	// 4. 初始化所有服务（按依赖顺序）
	if err := app.InitServices(cfg); err != nil {
		logrus.Fatalf("初始化服务失败: %v", err)
	}
	logrus.Infof("✅ 所有服务初始化完成，服务数量: %d", len(di.GetContainer().GetNames()))

	// 5. 服务健康检查
	if err := performHealthCheck(); err != nil {
		logrus.Fatalf("❌ 服务健康检查失败: %v", err)
	}

	// 6. 设置路由
	router, err := api.SetupRouter(cfg)
	if err != nil {
		logrus.Fatalf("❌ 设置路由失败: %v", err)
	}
	logrus.Info("✅ 路由设置完成")

	if cfg.AuthToken == "" {
		logrus.Warn("⚠️ 未配置AUTH_TOKEN，鉴权已关闭（仅建议本地使用）")
	}

	logrus.Infof("🌐 服务器启动在端口 %s", cfg.Port)
	logrus.Infof("🔗 访问地址: http://localhost:%s", cfg.Port)

	runWithGracefulShutdown(router, cfg.Port)
}

// setupLogging 配置logrus：同时输出到终端和日志文件
func setupLogging(cfg *config.Config) {
	logrus.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	if cfg.DebugMode {
		logrus.SetLevel(logrus.DebugLevel)
	}

	logFile, err := os.OpenFile(
		filepath.Join(cfg.LogDir, "server.log"),
		os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644,
	)
	if err != nil {
		logrus.Warnf("打开日志文件失败，仅输出到终端: %v", err)
		return
	}
	logrus.SetOutput(io.MultiWriter(os.Stdout, logFile))
}

// createDirectories 创建运行所需的目录结构
func createDirectories(cfg *config.Config) {
	dirs := []string{
		cfg.DataDir,
		filepath.Join(cfg.DataDir, "projects"),
		filepath.Join(cfg.DataDir, "sessions"),
		cfg.LogDir,
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			logrus.Fatalf("创建目录失败 %s: %v", dir, err)
		}
	}
}

// performHealthCheck 检查关键服务是否已注册
func performHealthCheck() error {
	container := di.GetContainer()

	criticalServices := []string{"storage", "llm", "project", "workflow"}
	for _, name := range criticalServices {
		if container.Get(name) == nil {
			return fmt.Errorf("关键服务未注册: %s", name)
		}
	}

	if llmService, ok := container.Get("llm").(*services.LLMService); ok && !llmService.IsReady() {
		logrus.Warn("⚠️ LLM提供者未就绪，请通过设置接口配置密钥")
	}
	return nil
}

// runWithGracefulShutdown 启动服务器并在收到中断信号时优雅关闭
func runWithGracefulShutdown(router *gin.Engine, port string) {
	srv := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("❌ 启动服务器失败: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("🛑 正在关闭服务器...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logrus.Fatalf("❌ 服务器强制关闭: %v", err)
	}
	logrus.Info("✅ 服务器已退出")
}
