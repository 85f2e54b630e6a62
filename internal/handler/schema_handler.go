package handler

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"schema-relay/internal/domain"
)

type SchemaService interface {
	RegisterSchema(ctx context.Context, name string, definition domain.Definition) (*domain.SchemaDescriptor, error)
	GetSchema(ctx context.Context, name string, version int) (*domain.SchemaDescriptor, error)
	RefreshSchema(ctx context.Context, name string) (*domain.SchemaDescriptor, error)
}

type SchemaHandler struct {
	service SchemaService
}

func NewSchemaHandler(service SchemaService) (*SchemaHandler, error) {
	if service == nil {
		return nil, fmt.Errorf("schema service is required")
	}
	return &SchemaHandler{service: service}, nil
}

func RegisterSchemaRoutes(router fiber.Router, service SchemaService) error {
	h, err := NewSchemaHandler(service)
	if err != nil {
		return err
	}

	v1 := router.Group("/v1")
	v1.Post("/schemas", h.RegisterSchema)
	v1.Get("/schemas/:name", h.GetSchema)
	v1.Post("/schemas/:name/refresh", h.RefreshSchema)

	return nil
}

type registerSchemaRequest struct {
	Name       string            `json:"name"`
	Definition domain.Definition `json:"definition"`
}

type schemaResponse struct {
	Name       string            `json:"name"`
	Version    int               `json:"version"`
	Definition domain.Definition `json:"definition"`
}

func (h *SchemaHandler) RegisterSchema(c *fiber.Ctx) error {
	var req registerSchemaRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	descriptor, err := h.service.RegisterSchema(c.Context(), req.Name, req.Definition)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusCreated).JSON(toSchemaResponse(descriptor))
}

func (h *SchemaHandler) GetSchema(c *fiber.Ctx) error {
	name := strings.TrimSpace(c.Params("name"))

	version := c.QueryInt("version", 0)
	if version < 0 {
		return fiber.NewError(fiber.StatusBadRequest, "version must be non-negative")
	}

	descriptor, err := h.service.GetSchema(c.Context(), name, version)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toSchemaResponse(descriptor))
}

func (h *SchemaHandler) RefreshSchema(c *fiber.Ctx) error {
	name := strings.TrimSpace(c.Params("name"))

	descriptor, err := h.service.RefreshSchema(c.Context(), name)
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(fiber.StatusOK).JSON(toSchemaResponse(descriptor))
}

func toSchemaResponse(descriptor *domain.SchemaDescriptor) *schemaResponse {
	if descriptor == nil {
		return nil
	}

	return &schemaResponse{
		Name:       descriptor.Name,
		Version:    descriptor.Version,
		Definition: descriptor.Definition,
	}
}
