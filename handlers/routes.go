package handlers

import (
	"github.com/gin-gonic/gin"
	"github.com/hohbackend/budget_backend/integrations"
	"github.com/hohbackend/budget_backend/middlewares"
	"github.com/hohbackend/budget_backend/workflow"
)

// Handler carries the outbound clients the HTTP routes need.
// Nil clients make the matching routes answer 503.
type Handler struct {
	Chatbot       workflow.Chatbot
	News          workflow.NewsFetcher
	Decider       workflow.DecisionMaker
	NewsQuery     integrations.NewsQuery
	DecisionLimit int
}

func Register(r gin.IRouter, h *Handler) {
	api := r.Group("/api")

	auth := api.Group("/auth")
	auth.POST("/register", h.register)
	auth.POST("/verify-otp", h.verifyOTP)
	auth.POST("/resend-otp", h.resendOTP)
	auth.POST("/login", h.login)
	auth.POST("/logout", middlewares.RequireAuth(), h.logout)
	auth.GET("/me", middlewares.RequireAuth(), h.me)

	protected := api.Group("", middlewares.RequireAuth())

	projects := protected.Group("/projects")
	projects.GET("", h.listProjects)
	projects.POST("", h.createProject)
	projects.GET("/:id", h.getProject)
	projects.PUT("/:id", h.updateProject)
	projects.DELETE("/:id", h.deleteProject)
	projects.GET("/:id/history", h.projectHistory)
	projects.GET("/:id/latest", h.projectLatest)
	projects.GET("/:id/costing", h.projectCosting)
	projects.POST("/:id/recalculate", h.recalculateProject)
	projects.GET("/:id/export", h.exportProject)

	costs := protected.Group("/costs")
	costs.GET("", h.listCosts)
	costs.POST("", h.createCost)
	costs.GET("/:id", h.getCost)
	costs.PUT("/:id", h.updateCost)
	costs.DELETE("/:id", h.deleteCost)
	costs.GET("/:id/history", h.costHistory)

	overheads := protected.Group("/overheads")
	overheads.GET("", h.listOverheads)
	overheads.POST("", h.createOverhead)
	overheads.GET("/:id", h.getOverhead)
	overheads.PUT("/:id", h.updateOverhead)
	overheads.DELETE("/:id", h.deleteOverhead)
	overheads.GET("/:id/history", h.overheadHistory)

	protected.POST("/imports", h.importDocument)
	protected.GET("/activities", h.listActivities)
	protected.GET("/events", h.listEvents)
	protected.POST("/events/replay", h.replayEvents)

	chat := protected.Group("/chat")
	chat.POST("/sessions", h.startChatSession)
	chat.GET("/sessions", h.listChatSessions)
	chat.POST("/sessions/:id/conversations", h.newConversation)
	chat.GET("/conversations/:id/messages", h.listMessages)
	chat.POST("/conversations/:id/messages", h.sendMessage)
	chat.GET("/proposals", h.listProposals)
	chat.GET("/proposals/:id", h.getProposal)
	chat.POST("/proposals/:id/accept", h.acceptProposal)
	chat.POST("/proposals/:id/reject", h.rejectProposal)

	news := protected.Group("/news")
	news.GET("/articles", h.listArticles)
	news.GET("/fetch-logs", h.listFetchLogs)
	news.POST("/fetch", h.fetchNews)
	news.POST("/process", h.processNews)
	news.GET("/alerts", h.listAlerts)
	news.GET("/alerts/:id", h.getAlert)
	news.POST("/alerts/:id/accept", h.acceptAlert)
	news.POST("/alerts/:id/reject", h.rejectAlert)
}
