package transport

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// ErrorHandler renders every unhandled error as the relay's error envelope
// and logs it with the request's correlation id when one is present.
func ErrorHandler(logger *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}

		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", code),
			zap.Error(err),
		}
		correlationID := requestCorrelationID(c)
		if correlationID != "" {
			fields = append(fields, zap.String("correlationId", correlationID))
		}
		logger.Error("request error", fields...)

		body := fiber.Map{"error": err.Error()}
		if correlationID != "" {
			body["correlationId"] = correlationID
		}
		return c.Status(code).JSON(body)
	}
}

func requestCorrelationID(c *fiber.Ctx) string {
	if id, ok := c.Locals("requestid").(string); ok && id != "" {
		return id
	}
	return c.Get(fiber.HeaderXRequestID)
}
