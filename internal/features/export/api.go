package export

import (
	"civic-os/internal/config"
	"civic-os/internal/middleware"

	"github.com/gofiber/fiber/v2"
)

type ExportApi struct {
	ExportController *ExportController
	Config           *config.Config
}

func NewExportApi(exportController *ExportController, config *config.Config) *ExportApi {
	return &ExportApi{
		ExportController: exportController,
		Config:           config,
	}
}

func (api *ExportApi) Setup(app *fiber.App) {
	auth := middleware.AuthMiddleware(api.Config.SkipAuth)

	app.Get("/api/export/:entity", auth, api.ExportController.Export)
	app.Get("/api/import/template/:entity", auth, api.ExportController.Template)
}
