package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/your-org/playerid/internal/auth"
)

func guardedRouter(key string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(auth.RequireAPIKey(key))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })
	return r
}

func ping(r *gin.Engine, key string) int {
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRequireAPIKey(t *testing.T) {
	Convey("Given a router guarded by an API key", t, func() {
		r := guardedRouter("secret")

		Convey("Then the right key passes", func() {
			So(ping(r, "secret"), ShouldEqual, http.StatusOK)
		})

		Convey("Then a missing key is unauthorized", func() {
			So(ping(r, ""), ShouldEqual, http.StatusUnauthorized)
		})

		Convey("Then a wrong key is forbidden", func() {
			So(ping(r, "guess"), ShouldEqual, http.StatusForbidden)
		})
	})

	Convey("Given no configured key", t, func() {
		r := guardedRouter("")

		Convey("Then the check is disabled", func() {
			So(ping(r, ""), ShouldEqual, http.StatusOK)
		})
	})
}
