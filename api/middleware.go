package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// CORSMiddleware stamps permissive CORS headers on every response and
// answers preflight requests with an empty 200, which is what the admin UI
// and the hosted functions runtime expect.
func CORSMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set(echo.HeaderAccessControlAllowOrigin, "*")
			h.Set(echo.HeaderAccessControlAllowHeaders, "authorization, x-client-info, apikey, content-type")
			h.Set(echo.HeaderAccessControlAllowMethods, "GET, POST, PATCH, DELETE, OPTIONS")

			if c.Request().Method == http.MethodOptions {
				return c.NoContent(http.StatusOK)
			}
			return next(c)
		}
	}
}
