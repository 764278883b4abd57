package transporthttp

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"govstats/docs"
)

var swaggerPage = []byte(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8" />
  <title>govstats API · Swagger UI</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  <style>
    html, body { margin: 0; padding: 0; height: 100%; }
    #swagger-ui { height: 100%; }
  </style>
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    window.addEventListener('load', function() {
      SwaggerUIBundle({
        url: '/swagger/openapi.yaml',
        dom_id: '#swagger-ui'
      });
    });
  </script>
</body>
</html>`)

func serveSwaggerUI(c *gin.Context) {
	if len(docs.OpenAPISpec) == 0 {
		c.Status(http.StatusNotFound)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", swaggerPage)
}

func serveSwaggerYAML(c *gin.Context) {
	if len(docs.OpenAPISpec) == 0 {
		c.Status(http.StatusNotFound)
		return
	}
	c.Data(http.StatusOK, "application/yaml", docs.OpenAPISpec)
}
