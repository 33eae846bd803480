package middleware

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

var defaultOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
	"http://127.0.0.1:3000",
	"http://127.0.0.1:5173",
}

// CORS allows the given origins, or the local dev origins when none are configured.
func CORS(origins []string) gin.HandlerFunc {
	if len(origins) == 0 {
		origins = defaultOrigins
	}
	return cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With", "X-Trace-Id", "X-Request-Id"},
		ExposeHeaders:    exposedHeaders,
		AllowCredentials: true,
	})
}

var exposedHeaders = []string{
	"X-Trace-Id", "X-Request-Id", "X-Cache-Hit", "X-Rec-Source", "X-Provider-Chain",
	"X-Fallback-Reason", "X-Chain-Id", "X-Chain-Version", "X-Policy-Id", "X-Prompt-Version",
	"X-Recommendation-Type", "X-Strategy-Used", "X-User-Profile",
}
