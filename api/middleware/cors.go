package middleware

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	cfg "github.com/lecturanote/lecture-processor/config"
)

// CORS allows the origins listed in CORS_ORIGINS. A single "*" entry keeps
// the permissive default for local development.
func CORS() gin.HandlerFunc {
	origins := cfg.GetServerConfig().CORSOrigins

	conf := cors.DefaultConfig()
	if len(origins) == 1 && origins[0] == "*" {
		conf.AllowAllOrigins = true
	} else {
		conf.AllowOrigins = origins
	}
	conf.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	conf.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	conf.ExposeHeaders = []string{"X-Request-ID"}

	return cors.New(conf)
}
