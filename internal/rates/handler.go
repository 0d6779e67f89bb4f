package rates

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ratefeed/internal/config"
	"ratefeed/internal/constants"
	"ratefeed/internal/logger"
	"ratefeed/pkg/errors"
)

type BaseHandler struct {
	Repo   Repository
	Logger logger.Logger
}

func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	h.Logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)

	status := errors.ToHTTPStatus(err)
	response := errors.ToErrorResponse(err)

	c.JSON(status, response)
}

// breakerStateReporter is satisfied by repositories wrapped in a circuit
// breaker.
type breakerStateReporter interface {
	State() string
}

type Handler struct {
	BaseHandler
	store config.MongoDBConfig
}

func NewHandler(repo Repository, store config.MongoDBConfig, log logger.Logger) *Handler {
	return &Handler{
		BaseHandler: BaseHandler{
			Repo:   repo,
			Logger: log,
		},
		store: store,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		rates := v1.Group("/rates")
		{
			rates.GET("", h.ListRates)
			rates.GET("/count", h.CountRates)
			rates.GET("/:id", h.GetRate)
		}

		store := v1.Group("/store")
		{
			store.GET("/status", h.StoreStatus)
			store.GET("/indexes", h.StoreIndexes)
		}
	}
}

// ListRates godoc
// @Summary      List stored rate snapshots
// @Description  Get stored rate snapshot documents, newest first
// @Tags         rates
// @Accept       json
// @Produce      json
// @Param        limit   query     int  false  "Maximum number of documents to return (1-1000)"  default(100)
// @Param        offset  query     int  false  "Number of documents to skip"                     default(0)
// @Success      200     {array}   RateDocument
// @Failure      500     {object}  errors.ErrorResponse
// @Router       /rates [get]
func (h *Handler) ListRates(c *gin.Context) {
	limit := parseLimit(c.Query("limit"))
	offset := parseOffset(c.Query("offset"))

	docs, err := h.Repo.List(c.Request.Context(), limit, offset)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, docs)
}

// CountRates godoc
// @Summary      Count stored rate snapshots
// @Description  Get the number of rate snapshot documents in the store
// @Tags         rates
// @Accept       json
// @Produce      json
// @Success      200  {object}  map[string]int64
// @Failure      500  {object}  errors.ErrorResponse
// @Router       /rates/count [get]
func (h *Handler) CountRates(c *gin.Context) {
	count, err := h.Repo.Count(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

// GetRate godoc
// @Summary      Get a rate snapshot by identity key
// @Description  Get one stored rate snapshot document by its identity key
// @Tags         rates
// @Accept       json
// @Produce      json
// @Param        id   path      string  true  "Snapshot identity key (base|date|epoch)"
// @Success      200  {object}  RateDocument
// @Failure      404  {object}  errors.ErrorResponse
// @Failure      500  {object}  errors.ErrorResponse
// @Router       /rates/{id} [get]
func (h *Handler) GetRate(c *gin.Context) {
	id := c.Param("id")
	doc, err := h.Repo.Get(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, doc)
}

// StoreStatus godoc
// @Summary      Get document store status
// @Description  Report store reachability, collection and document count
// @Tags         store
// @Accept       json
// @Produce      json
// @Success      200  {object}  StoreStatus
// @Failure      503  {object}  StoreStatus
// @Router       /store/status [get]
func (h *Handler) StoreStatus(c *gin.Context) {
	ctx := c.Request.Context()

	status := StoreStatus{
		Database:   h.store.Database,
		Collection: h.store.Collection,
	}
	if reporter, ok := h.Repo.(breakerStateReporter); ok {
		status.Breaker = reporter.State()
	}

	if err := h.Repo.Ping(ctx); err != nil {
		h.Logger.ErrorwCtx(ctx, "Store unreachable", "error", err)
		c.JSON(http.StatusServiceUnavailable, status)
		return
	}
	status.Reachable = true

	count, err := h.Repo.Count(ctx)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	status.Documents = count

	c.JSON(http.StatusOK, status)
}

// StoreIndexes godoc
// @Summary      List rates collection indexes
// @Description  Get index metadata for the rates collection
// @Tags         store
// @Accept       json
// @Produce      json
// @Success      200  {array}   IndexInfo
// @Failure      500  {object}  errors.ErrorResponse
// @Router       /store/indexes [get]
func (h *Handler) StoreIndexes(c *gin.Context) {
	indexes, err := h.Repo.Indexes(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	c.JSON(http.StatusOK, indexes)
}

func parseLimit(limitStr string) int {
	if limitStr == "" {
		return constants.DefaultPageLimit
	}
	parsed, err := strconv.Atoi(limitStr)
	if err != nil || parsed <= 0 || parsed > constants.MaxPageLimit {
		return constants.DefaultPageLimit
	}
	return parsed
}

func parseOffset(offsetStr string) int {
	if offsetStr == "" {
		return 0
	}
	parsed, err := strconv.Atoi(offsetStr)
	if err != nil || parsed < 0 {
		return 0
	}
	return parsed
}
