package server

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// CORS allows the configured browser origins, or any origin when none are configured.
// The tenant header is allowed so that browser clients can select a tenant explicitly.
func CORS(origins []string, tenantHeader string) echo.MiddlewareFunc {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	allowHeaders := []string{
		echo.HeaderOrigin,
		echo.HeaderContentType,
		echo.HeaderAccept,
		echo.HeaderAuthorization,
		echo.HeaderXRequestID,
	}
	if tenantHeader != "" {
		allowHeaders = append(allowHeaders, tenantHeader)
	}

	return middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: origins,
		AllowMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
			http.MethodOptions,
		},
		AllowHeaders:     allowHeaders,
		ExposeHeaders:    []string{echo.HeaderXRequestID, HeaderTraceParent},
		AllowCredentials: origins[0] != "*",
		MaxAge:           86400,
	})
}
