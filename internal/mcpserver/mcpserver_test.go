package mcpserver

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/cpgkit/jvmcpg/internal/driver/memory"
)

func TestSetupHTTPRoutesMountsEndpoint(t *testing.T) {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	New(memory.New(nil), nil).SetupHTTPRoutes(router)

	// A bare GET without an MCP session is rejected by the protocol
	// handler, but the route must exist: anything but 404 proves the
	// endpoint is mounted.
	req := httptest.NewRequest(http.MethodGet, "/mcp", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code == http.StatusNotFound {
		t.Fatalf("/mcp not mounted")
	}
}
