package importer

import (
	"errors"

	"civic-os/pkg/utils"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

type ImportController struct {
	ImportService ImportService
}

func NewImportController(importService ImportService) *ImportController {
	return &ImportController{ImportService: importService}
}

// CreateJob godoc
// @Summary Upload and validate an import file
// @Description Upload a CSV/Excel file for an entity; validation starts in the background
// @Tags import
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Import File"
// @Param entity formData string true "Entity Key"
// @Success 201 {object} ImportJob
// @Failure 400 {object} map[string]interface{}
// @Router /api/import/jobs [post]
func (c *ImportController) CreateJob(ctx *fiber.Ctx) error {
	entityKey := ctx.FormValue("entity")
	if entityKey == "" {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "entity is required"})
	}

	fileHeader, err := ctx.FormFile("file")
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "file is required"})
	}

	file, err := fileHeader.Open()
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to open file"})
	}
	defer file.Close()

	job, err := c.ImportService.CreateJob(ctx.UserContext(), CreateJobRequest{
		EntityKey: entityKey,
		FileName:  fileHeader.Filename,
		FileSize:  fileHeader.Size,
		File:      file,
		Token:     bearerToken(ctx),
		UserID:    userID(ctx),
	})
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	return ctx.Status(fiber.StatusCreated).JSON(job)
}

// GetJob godoc
// @Summary Get import job status
// @Tags import
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} JobStatus
// @Failure 404 {object} map[string]interface{}
// @Router /api/import/jobs/{id} [get]
func (c *ImportController) GetJob(ctx *fiber.Ctx) error {
	status, err := c.ImportService.GetStatus(ctx.UserContext(), ctx.Params("id"))
	if err != nil {
		return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(status)
}

// ListJobs godoc
// @Summary List the caller's import jobs
// @Tags import
// @Produce json
// @Success 200 {array} ImportJob
// @Router /api/import/jobs [get]
func (c *ImportController) ListJobs(ctx *fiber.Ctx) error {
	jobs, err := c.ImportService.GetUserJobs(ctx.UserContext(), userID(ctx))
	if err != nil {
		return ctx.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(jobs)
}

// CancelJob godoc
// @Summary Cancel a running validation
// @Tags import
// @Produce json
// @Param id path string true "Job ID"
// @Success 202 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Router /api/import/jobs/{id}/cancel [post]
func (c *ImportController) CancelJob(ctx *fiber.Ctx) error {
	if err := c.ImportService.Cancel(ctx.Params("id")); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.Status(fiber.StatusAccepted).JSON(fiber.Map{"status": "cancelling"})
}

// ConfirmJob godoc
// @Summary Perform the bulk insert for a validated job
// @Tags import
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} ImportJob
// @Failure 400 {object} map[string]interface{}
// @Failure 502 {object} map[string]interface{}
// @Router /api/import/jobs/{id}/confirm [post]
func (c *ImportController) ConfirmJob(ctx *fiber.Ctx) error {
	job, err := c.ImportService.Confirm(ctx.UserContext(), ctx.Params("id"), bearerToken(ctx))
	if err != nil {
		if errors.Is(err, ErrBulkInsert) {
			return ctx.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": err.Error()})
		}
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(job)
}

// ResetJob godoc
// @Summary Start the wizard over, discarding validation results
// @Tags import
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Router /api/import/jobs/{id}/reset [post]
func (c *ImportController) ResetJob(ctx *fiber.Ctx) error {
	if err := c.ImportService.Reset(ctx.UserContext(), ctx.Params("id")); err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	return ctx.JSON(fiber.Map{"status": "reset"})
}

// DownloadErrors godoc
// @Summary Download the error report for the latest validation pass
// @Tags import
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path string true "Job ID"
// @Success 200 {file} binary
// @Failure 400 {object} map[string]interface{}
// @Router /api/import/jobs/{id}/errors [get]
func (c *ImportController) DownloadErrors(ctx *fiber.Ctx) error {
	name, data, err := c.ImportService.ErrorReport(ctx.Params("id"))
	if err != nil {
		return ctx.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	ctx.Set("Content-Disposition", `attachment; filename="`+name+`"`)
	ctx.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	return ctx.Send(data)
}

// StreamProgress pushes validation and upload events over a websocket until
// the connection or the run ends.
func (c *ImportController) StreamProgress(conn *websocket.Conn) {
	id := conn.Params("id")

	events, cancel, err := c.ImportService.Subscribe(id)
	if err != nil {
		conn.WriteJSON(Event{Type: EventError, Error: err.Error()})
		conn.Close()
		return
	}
	defer cancel()
	defer conn.Close()

	for ev := range events {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
}

func bearerToken(ctx *fiber.Ctx) string {
	token, _ := ctx.Locals("bearer_token").(string)
	return token
}

func userID(ctx *fiber.Ctx) string {
	if claims, ok := ctx.Locals(utils.UserClaimsKey).(*utils.UserClaims); ok {
		return claims.UserID
	}
	return ""
}
