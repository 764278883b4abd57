package transporthttp

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"govstats/internal/aggregate"
	"govstats/internal/model"
	"govstats/internal/ranking"
)

const requestTimeout = 90 * time.Second

// Rankings serves ranking pages and country lookups.
type Rankings interface {
	GetPage(ctx context.Context, q ranking.Query) (ranking.Page, error)
	Countries(ctx context.Context) (*model.Snapshot, error)
	Country(ctx context.Context, code string) (model.MergedCountry, error)
}

// CacheControl exposes cache state and the invalidate operation.
type CacheControl interface {
	Invalidate()
	Fresh() bool
	Peek() *model.Snapshot
	Stats() aggregate.CacheStats
}

type Server struct {
	rankings Rankings
	cache    CacheControl
	logger   *log.Logger
}

func NewServer(rankings Rankings, cache CacheControl, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		rankings: rankings,
		cache:    cache,
		logger:   logger,
	}
}

func (s *Server) Routes() http.Handler {
	router := gin.New()
	router.Use(gin.Recovery(), withLogging(s.logger), withCORS())

	router.GET("/healthz", s.health)
	router.GET("/rankings", s.handleRankings)
	router.GET("/countries", s.handleCountries)
	router.GET("/countries/:code", s.handleCountry)
	router.GET("/topics", s.handleTopics)
	router.POST("/cache/invalidate", s.handleInvalidate)
	router.GET("/swagger/openapi.yaml", serveSwaggerYAML)
	router.GET("/swagger", serveSwaggerUI)
	router.GET("/swagger/", serveSwaggerUI)
	return router
}

func (s *Server) health(c *gin.Context) {
	response := gin.H{
		"status": "ok",
		"stats":  s.cache.Stats(),
	}
	if snap := s.cache.Peek(); snap != nil {
		response["countries"] = len(snap.Countries)
		response["snapshotId"] = snap.ID
		response["expiresAt"] = snap.ExpiresAt
		response["degraded"] = snap.Degraded
		if !s.cache.Fresh() {
			response["status"] = "stale"
		}
	} else {
		response["status"] = "cold"
	}
	c.JSON(http.StatusOK, response)
}

func (s *Server) handleRankings(c *gin.Context) {
	query, err := parseRankingQuery(c)
	if err != nil {
		s.writeRankingError(c, err)
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	page, err := s.rankings.GetPage(ctx, query)
	if err != nil {
		s.writeRankingError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (s *Server) handleCountries(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	snap, err := s.rankings.Countries(ctx)
	if err != nil {
		s.writeRankingError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"countries":   snap.Countries,
		"snapshotId":  snap.ID,
		"lastUpdated": snap.BuiltAt,
	})
}

func (s *Server) handleCountry(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), requestTimeout)
	defer cancel()

	country, err := s.rankings.Country(ctx, c.Param("code"))
	if err != nil {
		s.writeRankingError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"country": country})
}

func (s *Server) handleTopics(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"topics": ranking.Topics()})
}

func (s *Server) handleInvalidate(c *gin.Context) {
	s.cache.Invalidate()
	c.JSON(http.StatusAccepted, gin.H{"status": "invalidated"})
}

func parseRankingQuery(c *gin.Context) (ranking.Query, error) {
	query := ranking.Query{
		Topic:     c.Query("topic"),
		Page:      1,
		SortOrder: c.Query("sortOrder"),
	}

	if v := strings.TrimSpace(c.Query("page")); v != "" {
		page, err := strconv.Atoi(v)
		if err != nil {
			return ranking.Query{}, ranking.ErrInvalidPage
		}
		query.Page = page
	}

	if v := strings.TrimSpace(c.Query("pageSize")); v != "" {
		size, err := strconv.Atoi(v)
		if err != nil || size < 1 {
			return ranking.Query{}, ranking.ErrInvalidPageSize
		}
		query.PageSize = size
	}

	return query, nil
}

func (s *Server) writeRankingError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ranking.ErrInvalidTopic):
		s.writeError(c, http.StatusBadRequest, "Invalid topic parameter")
	case errors.Is(err, ranking.ErrInvalidPage):
		s.writeError(c, http.StatusBadRequest, "Invalid page parameter")
	case errors.Is(err, ranking.ErrInvalidPageSize):
		s.writeError(c, http.StatusBadRequest, "Invalid pageSize parameter: must be between 1 and "+strconv.Itoa(ranking.MaxPageSize))
	case errors.Is(err, ranking.ErrInvalidSortOrder):
		s.writeError(c, http.StatusBadRequest, "Invalid sortOrder parameter: must be asc or desc")
	case errors.Is(err, ranking.ErrCountryNotFound):
		s.writeError(c, http.StatusNotFound, "Country not found")
	default:
		s.logger.Printf("request %s %s failed: %v", c.Request.Method, c.Request.URL.Path, err)
		s.writeError(c, http.StatusInternalServerError, "Failed to load country data")
	}
}

func (s *Server) writeError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}
