// Package server assembles the HTTP surface: routing, middleware, and
// health endpoints.
package server

import (
	"github.com/dkezh/casket/internal/auth"
	"github.com/dkezh/casket/internal/bucket"
	"github.com/dkezh/casket/internal/config"
	"github.com/dkezh/casket/internal/file"
	"github.com/dkezh/casket/internal/metrics"
	"github.com/dkezh/casket/internal/shorturl"
	"github.com/dkezh/casket/internal/token"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

// Dependencies carries everything the router needs.
type Dependencies struct {
	Config    config.Config
	Verifier  *auth.Verifier
	Buckets   *bucket.Service
	Files     *file.Service
	Tokens    *token.Service
	ShortURLs *shorturl.Service
	Pool      *pgxpool.Pool
	Redis     *redis.Client
}

// NewRouter builds the gin engine. Management routes require credentials;
// downloads and short URL resolution are open, and uploads sit in between,
// accepting either an owner credential or an upload token.
func NewRouter(deps Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(metrics.Middleware())

	registerHealthRoutes(router, deps.Pool, deps.Redis)
	metrics.Register(router, deps.Config.Metrics.PrometheusPath)

	public := router.Group("/")
	public.Use(auth.OptionalMiddleware(deps.Verifier))

	protected := router.Group("/")
	protected.Use(auth.Middleware(deps.Verifier))

	bucket.RegisterRoutes(protected, deps.Buckets)
	token.RegisterRoutes(protected, deps.Tokens, deps.Buckets)
	file.RegisterRoutes(protected, public, deps.Files, deps.Buckets, deps.Tokens)
	shorturl.RegisterRoutes(protected, public, deps.ShortURLs, deps.Files, deps.Buckets)

	return router
}
