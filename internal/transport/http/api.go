package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"quizstreak-service/internal/app"
	"quizstreak-service/internal/domain"
	"quizstreak-service/internal/logger"
)

// API serves the client-facing REST endpoints.
type API struct {
	quizzes *app.QuizService
	log     *logger.Logger
}

func NewAPI(quizzes *app.QuizService, log *logger.Logger) *API {
	if log == nil {
		log = logger.Nop()
	}
	return &API{quizzes: quizzes, log: log}
}

// RouterConfig gathers what NewRouter wires together.
type RouterConfig struct {
	API         *API
	Auth        *Authenticator
	Stream      *LeaderboardStream
	CORSOrigins []string
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.CORSOrigins) == 0 {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = cfg.CORSOrigins
	}
	router.Use(cors.New(corsCfg))

	router.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	if cfg.Stream != nil {
		router.GET("/ws/leaderboard", cfg.Stream.Serve)
	}

	// Period boards are public; everything else acts on the caller.
	router.GET("/api/leaderboard/:period", cfg.API.leaderboard)

	api := router.Group("/api", cfg.Auth.Middleware())
	api.POST("/quiz/submit", cfg.API.submitQuiz)
	api.GET("/quiz/:id", cfg.API.quiz)
	api.GET("/user/me", cfg.API.me)
	api.PUT("/user/me", cfg.API.updateMe)
	api.GET("/user/stats", cfg.API.userStats)
	api.GET("/user/progress", cfg.API.progress)
	api.GET("/leaderboard/rank", cfg.API.rank)
	api.GET("/streak/status", cfg.API.streakStatus)
	api.POST("/streak/freeze", cfg.API.freezeStreak)
	return router
}

type submitRequest struct {
	QuizID  string   `json:"quizId" binding:"required"`
	Answers []string `json:"answers"`
}

func (a *API) submitQuiz(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	res, err := a.quizzes.SubmitQuiz(c.Request.Context(), callerID(c), req.QuizID, req.Answers)
	if err != nil {
		writeError(c, a.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (a *API) quiz(c *gin.Context) {
	view, err := a.quizzes.Quiz(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, a.log, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

func (a *API) me(c *gin.Context) {
	u, err := a.quizzes.Profile(c.Request.Context(), callerID(c))
	if err != nil {
		writeError(c, a.log, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (a *API) updateMe(c *gin.Context) {
	var req app.ProfileUpdate
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	u, err := a.quizzes.UpdateProfile(c.Request.Context(), callerID(c), req)
	if err != nil {
		writeError(c, a.log, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

func (a *API) progress(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		var err error
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			writeError(c, a.log, &domain.ValidationError{Field: "limit", Reason: "must be a positive integer"})
			return
		}
	}
	items, err := a.quizzes.Progress(c.Request.Context(), callerID(c), limit)
	if err != nil {
		writeError(c, a.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

func (a *API) userStats(c *gin.Context) {
	stats, err := a.quizzes.UserStats(c.Request.Context(), callerID(c))
	if err != nil {
		writeError(c, a.log, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (a *API) leaderboard(c *gin.Context) {
	period, err := domain.ParsePeriod(c.Param("period"))
	if err != nil {
		writeError(c, a.log, err)
		return
	}
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil || limit < 1 {
			writeError(c, a.log, &domain.ValidationError{Field: "limit", Reason: "must be a positive integer"})
			return
		}
	}
	rows, err := a.quizzes.Leaderboard(c.Request.Context(), period, limit)
	if err != nil {
		writeError(c, a.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"period": period, "entries": rows})
}

func (a *API) rank(c *gin.Context) {
	info, err := a.quizzes.Rank(c.Request.Context(), callerID(c))
	if err != nil {
		writeError(c, a.log, err)
		return
	}
	c.JSON(http.StatusOK, info)
}

func (a *API) streakStatus(c *gin.Context) {
	status, err := a.quizzes.StreakStatus(c.Request.Context(), callerID(c))
	if err != nil {
		writeError(c, a.log, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (a *API) freezeStreak(c *gin.Context) {
	res, err := a.quizzes.FreezeStreak(c.Request.Context(), callerID(c))
	if err != nil {
		writeError(c, a.log, err)
		return
	}
	c.JSON(http.StatusOK, res)
}
