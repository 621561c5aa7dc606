package app

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	fiberrecover "github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/vk/fanoutgo/internal/ctxlog"
	"github.com/vk/fanoutgo/internal/engine"
)

const healthShutdownTimeout = 5 * time.Second

// Status is the payload served by /status.
type Status struct {
	Run        string        `json:"run"`
	Iteration  int64         `json:"iteration"`
	FinishedAt time.Time     `json:"finishedAt"`
	Result     engine.Result `json:"result"`
}

// newHealthServer builds the fiber app serving /health and /status.
func (a *App) newHealthServer() *fiber.App {
	srv := fiber.New(fiber.Config{
		AppName:               "fanoutgo",
		DisableStartupMessage: true,
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.Unmarshal,
	})
	srv.Use(fiberrecover.New())
	srv.Get("/health", a.healthHandler)
	srv.Get("/status", a.statusHandler)
	return srv
}

func (a *App) healthHandler(c *fiber.Ctx) error {
	a.logger.Debug("Health check endpoint hit.", "remote_addr", c.IP(), "path", c.Path())
	return c.SendString("OK")
}

func (a *App) statusHandler(c *fiber.Ctx) error {
	st := a.status.Load()
	if st == nil {
		return fiber.NewError(fiber.StatusNotFound, "no iteration has finished yet")
	}
	return c.JSON(st)
}

// startHealthcheckServer initializes and runs the health check HTTP server.
func (a *App) startHealthcheckServer(ctx context.Context, port int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Configuring health check server.")
	a.health = a.newHealthServer()
	srv := a.health

	addr := fmt.Sprintf(":%d", port)
	go func() {
		logger.Info("🩺 Health check server starting", "address", fmt.Sprintf("http://localhost%s/health", addr))
		if err := srv.Listen(addr); err != nil {
			logger.Error("Health check server failed", "error", err)
		}
	}()
}

func (a *App) closeHealthcheckServer(ctx context.Context) error {
	logger := ctxlog.FromContext(ctx)
	if a.health == nil {
		logger.Debug("Health check server was not running.")
		return nil
	}

	logger.Info("🩺 Shutting down health check server...")
	err := a.health.ShutdownWithTimeout(healthShutdownTimeout)
	a.health = nil
	if err != nil {
		logger.Error("Health check server shutdown failed", "error", err)
		return err
	}
	return nil
}
