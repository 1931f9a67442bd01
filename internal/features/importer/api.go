package importer

import (
	"civic-os/internal/config"
	"civic-os/internal/middleware"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

type ImportApi struct {
	ImportController *ImportController
	Config           *config.Config
}

func NewImportApi(importController *ImportController, config *config.Config) *ImportApi {
	return &ImportApi{
		ImportController: importController,
		Config:           config,
	}
}

func (api *ImportApi) Setup(app *fiber.App) {
	auth := middleware.AuthMiddleware(api.Config.SkipAuth)
	group := app.Group("/api/import", auth)

	group.Post("/jobs", api.ImportController.CreateJob)
	group.Get("/jobs", api.ImportController.ListJobs)
	group.Get("/jobs/:id", api.ImportController.GetJob)
	group.Post("/jobs/:id/cancel", api.ImportController.CancelJob)
	group.Post("/jobs/:id/confirm", api.ImportController.ConfirmJob)
	group.Post("/jobs/:id/reset", api.ImportController.ResetJob)
	group.Get("/jobs/:id/errors", api.ImportController.DownloadErrors)

	app.Get("/ws/import/:id", auth, websocket.New(api.ImportController.StreamProgress))
}
