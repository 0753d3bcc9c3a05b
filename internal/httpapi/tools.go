package httpapi

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"

	"github.com/ahmetk3436/sshmcp/internal/mcp"
)

// toolsHandler exposes the tool surface as one POST route per tool name,
// each taking the tool's JSON params as the request body and returning
// its result verbatim, per §6.
type toolsHandler struct {
	tools map[string]mcp.ToolFunc
}

func newToolsHandler(svc *mcp.Service) *toolsHandler {
	return &toolsHandler{tools: svc.Dispatch()}
}

func (h *toolsHandler) listTools(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"tools": mcp.ToolNames})
}

func (h *toolsHandler) invoke(c *fiber.Ctx) error {
	name := c.Params("name")
	tool, ok := h.tools[name]
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": true, "message": "unknown tool: " + name})
	}

	body := c.Body()
	params := json.RawMessage(body)
	if len(body) == 0 {
		params = json.RawMessage("{}")
	}

	result, err := tool(c.Context(), params)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": true, "message": err.Error()})
	}
	return c.JSON(result)
}
