package main

import (
	"context"
	"fmt"
	"log"

	common_api "civic-os/internal/common/api"
	"civic-os/internal/config"
	"civic-os/internal/connectors"
	"civic-os/internal/database"
	"civic-os/internal/features/export"
	"civic-os/internal/features/importer"
	"civic-os/internal/features/lookup"
	"civic-os/internal/features/maintenance"
	"civic-os/internal/features/schema"
	"civic-os/internal/features/system"
	"civic-os/internal/logger"
	"civic-os/internal/middleware"
	"civic-os/internal/postgrest"
	"civic-os/pkg/utils"

	_ "civic-os/docs" // Import swagger docs

	"github.com/gofiber/fiber/v2"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

// NewFiberServer creates a new Fiber app instance
func NewFiberServer() *fiber.App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		BodyLimit:             32 * 1024 * 1024,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error": err.Error(),
			})
		},
	})

	app.Use(middleware.CORSMiddleware())

	return app
}

// AsRoute is a helper function to reduce boilerplate.
// It tags the constructor so Fx knows to add it to the "routes" group.
func AsRoute(f any) any {
	return fx.Annotate(
		f,
		fx.As(new(common_api.Route)),
		fx.ResultTags(`group:"routes"`),
	)
}

// RegisterAllRoutes takes the group "routes" (slice of interfaces)
// and calls Setup() on each one.
func RegisterAllRoutes(app *fiber.App, routes []common_api.Route) {
	for _, route := range routes {
		route.Setup(app)
	}
}

var RegisterAllRoutesWithAnnotation = fx.Annotate(
	RegisterAllRoutes,
	fx.ParamTags(``, `group:"routes"`),
)

// StartServer creates a lifecycle hook to start Fiber in a goroutine
// and shut it down when the app exits.
func StartServer(lc fx.Lifecycle, app *fiber.App, cfg *config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				port := fmt.Sprintf(":%s", cfg.Port)
				if err := app.Listen(port); err != nil {
					log.Fatalf("Server failed to start: %v", err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return app.Shutdown()
		},
	})
}

// NewExportServiceProvider reads reference data straight from Postgres when a
// direct DSN is configured; otherwise template reference sheets go through
// the same HTTP data plane as everything else.
func NewExportServiceProvider(
	lc fx.Lifecycle,
	cfg *config.Config,
	schemaService schema.SchemaService,
	client *postgrest.Client,
	lookups lookup.LookupService,
	zlog *zap.Logger,
) export.ExportService {
	refs := lookups
	if cfg.PostgresDSN != "" {
		conn, err := connectors.NewPostgresConnector(cfg.PostgresDSN)
		if err != nil {
			zlog.Warn("direct database connection unavailable, falling back to HTTP reads", zap.Error(err))
		} else {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error { return conn.Ping(ctx) },
				OnStop:  func(ctx context.Context) error { return conn.Close() },
			})
			refs = lookup.NewLookupService(conn)
		}
	}
	return export.NewExportService(schemaService, client, refs, cfg.ExportRowLimit, zlog)
}

// @title           Civic OS Import API
// @version         1.0
// @description     Bulk import, export and template service for Civic OS entities.

// @host            localhost:8000
// @BasePath        /
func main() {
	app := fx.New(
		fx.Provide(
			config.LoadConfig,
			logger.NewLogger,
			NewFiberServer,
			database.NewDatabase,
			postgrest.NewClient,

			// Interface adapters over the PostgREST client
			func(c *postgrest.Client) lookup.RowFetcher { return c },
			func(c *postgrest.Client) importer.DataService { return c },
			func(c *postgrest.Client) export.DataFetcher { return c },
			func(s importer.ImportService) maintenance.SessionPurger { return s },

			schema.NewSchemaService,
			lookup.NewLookupService,
			importer.NewImportRepository,
			importer.NewImportService,
			NewExportServiceProvider,
			maintenance.NewMaintenanceService,

			importer.NewImportController,
			export.NewExportController,

			AsRoute(importer.NewImportApi),
			AsRoute(export.NewExportApi),
			AsRoute(system.NewHealthApi),
			AsRoute(system.NewSwaggerApi),
		),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log}
		}),
		fx.Invoke(
			func(cfg *config.Config) { utils.SetSecret(cfg.JWTSecret) },
			RegisterAllRoutesWithAnnotation,
			StartServer,
			func(lc fx.Lifecycle, maint maintenance.MaintenanceService) {
				lc.Append(fx.Hook{
					OnStart: func(ctx context.Context) error { return maint.Start(ctx) },
					OnStop: func(ctx context.Context) error {
						return maint.Stop()
					},
				})
			},
			func(lc fx.Lifecycle, importService importer.ImportService) {
				lc.Append(fx.Hook{
					OnStop: func(ctx context.Context) error {
						importService.Shutdown()
						return nil
					},
				})
			},
		),
	)

	app.Run()
}
