package export

import (
	"github.com/gofiber/fiber/v2"
)

type ExportController struct {
	ExportService ExportService
}

func NewExportController(exportService ExportService) *ExportController {
	return &ExportController{ExportService: exportService}
}

// Export godoc
// @Summary Export an entity as a spreadsheet
// @Description Download every row of an entity as an xlsx workbook
// @Tags export
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param entity path string true "Entity Key"
// @Success 200 {file} binary
// @Failure 400 {object} map[string]interface{}
// @Router /api/export/{entity} [get]
func (c *ExportController) Export(ctx *fiber.Ctx) error {
	file, err := c.ExportService.Export(ctx.UserContext(), ctx.Params("entity"), bearerToken(ctx))
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return sendWorkbook(ctx, file)
}

// Template godoc
// @Summary Download an import template for an entity
// @Description Empty workbook with display-name headers, a hint row, and reference sheets
// @Tags export
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param entity path string true "Entity Key"
// @Success 200 {file} binary
// @Failure 400 {object} map[string]interface{}
// @Router /api/import/template/{entity} [get]
func (c *ExportController) Template(ctx *fiber.Ctx) error {
	file, err := c.ExportService.Template(ctx.UserContext(), ctx.Params("entity"), bearerToken(ctx))
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return sendWorkbook(ctx, file)
}

func sendWorkbook(ctx *fiber.Ctx, file *File) error {
	ctx.Set("Content-Disposition", `attachment; filename="`+file.Name+`"`)
	ctx.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	return ctx.Send(file.Data)
}

func bearerToken(ctx *fiber.Ctx) string {
	token, _ := ctx.Locals("bearer_token").(string)
	return token
}
