package middleware

import (
	"context"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/yonagi/curio/internal/domain"
)

var tracer = otel.Tracer("auth")

// PrincipalHeader names the caller. Identity verification is the fronting
// environment's concern; this service only binds the claimed principal to
// the request context.
const PrincipalHeader = "X-Curio-Principal"

type PrincipalMiddleware struct{}

func NewPrincipalMiddleware() *PrincipalMiddleware {
	return &PrincipalMiddleware{}
}

func (m *PrincipalMiddleware) IdentifyPrincipal(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, span := tracer.Start(c.Request().Context(), "Auth.IdentifyPrincipal")
		defer span.End()

		principal := c.Request().Header.Get(PrincipalHeader)
		if principal != "" {
			ctx = context.WithValue(ctx, domain.PrincipalCtxKey, principal)
			span.SetAttributes(attribute.String("Principal", principal))
		}

		c.SetRequest(c.Request().WithContext(ctx))
		return next(c)
	}
}
