package api

import (
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	apperrors "github.com/wfunc/card-battle/internal/errors"
)

const openAPIFile = "docs/api/openapi.yaml"

// registerOpenAPIRoutes 提供 /openapi 与文档页面
func registerOpenAPIRoutes(engine *gin.Engine) {
	engine.GET("/openapi", serveOpenAPI)
	engine.GET("/openapi.yaml", serveOpenAPI)
	engine.GET("/docs/redoc", serveRedoc)
	engine.GET("/docs/ui", serveSwaggerUI)
}

func serveOpenAPI(c *gin.Context) {
	if _, err := os.Stat(openAPIFile); err != nil {
		respondError(c, apperrors.New(apperrors.ErrNotFound, "OpenAPI document not found"))
		return
	}
	c.Header("Content-Type", "application/yaml; charset=utf-8")
	c.File(openAPIFile)
}

func serveRedoc(c *gin.Context) {
	// 本地资源优先，离线时可用
	script := "https://cdn.redoc.ly/redoc/latest/bundles/redoc.standalone.js"
	if _, err := os.Stat("static/vendors/redoc/redoc.standalone.js"); err == nil {
		script = "/static/vendors/redoc/redoc.standalone.js"
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(fmt.Sprintf(redocPage, script)))
}

func serveSwaggerUI(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(swaggerUIPage))
}

const redocPage = `<!DOCTYPE html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>Card Battle API - Redoc</title>
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <style>body{margin:0;padding:0}</style>
  </head>
  <body>
    <redoc spec-url="/openapi" hide-download-button="false"></redoc>
    <script src="%s"></script>
  </body>
</html>`

const swaggerUIPage = `<!DOCTYPE html>
<html>
  <head>
    <meta charset="utf-8" />
    <title>Card Battle API - Swagger UI</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
    <script>
      window.ui = SwaggerUIBundle({
        url: '/openapi',
        dom_id: '#swagger-ui',
        persistAuthorization: true
      });
    </script>
  </body>
</html>`
