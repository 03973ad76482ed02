package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/etag"
	"github.com/spf13/cobra"

	database "github.com/boazomare1/school-managementKE-sub001/internals/databases"
	helper "github.com/boazomare1/school-managementKE-sub001/internals/helpers"
	"github.com/boazomare1/school-managementKE-sub001/internals/helpers/logger"
	"github.com/boazomare1/school-managementKE-sub001/internals/middlewares"
	routes "github.com/boazomare1/school-managementKE-sub001/internals/route"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, webhook retry worker and sweepers",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().Bool("migrate", false, "Run auto-migration before serving")
	serveCmd.Flags().Bool("no-sweeper", false, "Do not schedule timeout/overdue sweeps (another instance runs them)")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")
	migrate, _ := cmd.Flags().GetBool("migrate")
	noSweeper, _ := cmd.Flags().GetBool("no-sweeper")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApplication(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if migrate {
		if err := autoMigrate(a); err != nil {
			return err
		}
	}

	app := fiber.New(fiber.Config{
		// 🚀 JSON super cepat
		JSONEncoder:           sonic.Marshal,
		JSONDecoder:           sonic.Unmarshal,
		DisableStartupMessage: true,
		ProxyHeader:           fiber.HeaderXForwardedFor,
		ReadTimeout:           15 * time.Second,
		WriteTimeout:          30 * time.Second,
		IdleTimeout:           90 * time.Second,
		ErrorHandler:          helper.FromError,
	})
	app.Use(compress.New(compress.Config{Level: compress.LevelDefault})) // gzip
	app.Use(etag.New())                                                  // 304 caching

	middlewares.SetupMiddlewares(app, logger.WithComponent("http"), cfg.CorsOrigins, cfg.RequestTimeout)
	routes.SetupRoutes(app, routes.Deps{
		DB:        a.db,
		JWTSecret: cfg.JWTSecret,
		Invoices:  a.invoices,
		Payments:  a.payments,
		Ingress:   a.ingress,
		Gatherer:  a.prom,
		Log:       logger.WithComponent("routes"),
	})

	database.WarmUp(ctx, a.db)
	go a.retry.Run(ctx)

	if !noSweeper {
		c, err := a.sweeper.Start(ctx)
		if err != nil {
			return err
		}
		defer func() { <-c.Stop().Done() }()
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Msg("listening")
		errCh <- app.Listen("0.0.0.0:" + cfg.Port)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
