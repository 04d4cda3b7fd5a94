package handlers

import "github.com/gin-gonic/gin"

// RegisterWebhookRoutes 注册 webhook 路由
func RegisterWebhookRoutes(r *gin.RouterGroup, h *WebhookHandler) {
	hooks := r.Group("/webhooks")
	{
		hooks.POST("/freshchat", h.Freshchat)
		hooks.POST("/freshdesk", h.Freshdesk)
	}
}

// RegisterIncidenceRoutes 注册 Incidence 路由
func RegisterIncidenceRoutes(r *gin.RouterGroup, h *IncidenceHandler) {
	incidences := r.Group("/incidences")
	{
		incidences.POST("", h.CreateIncidence)
		incidences.GET("", h.ListIncidences)
		incidences.GET("/conversation/:conversation_id", h.GetByConversation)
		incidences.GET("/user/:user_id", h.ListByUser)
		incidences.GET("/:id", h.GetIncidence)
		incidences.PATCH("/:id", h.UpdateIncidence)
		incidences.DELETE("/:id", h.DeleteIncidence)
		incidences.POST("/:id/close", h.CloseIncidence)
		incidences.POST("/:id/reopen", h.ReopenIncidence)
		incidences.POST("/:id/assign", h.AssignIncidence)
		incidences.GET("/:id/timeline", h.GetTimeline)
		incidences.POST("/:id/timeline", h.AppendTimeline)
	}
}

// RegisterChannelRoutes 注册渠道路由
func RegisterChannelRoutes(r *gin.RouterGroup, h *ChannelHandler) {
	channel := r.Group("/channel")
	{
		channel.POST("/route", h.Route)
		channel.GET("/rules", h.Rules)
	}
}

// RegisterFrictionRoutes 注册摩擦评分路由
func RegisterFrictionRoutes(r *gin.RouterGroup, h *FrictionHandler) {
	friction := r.Group("/friction")
	{
		friction.POST("/detect", h.Detect)
		friction.GET("/thresholds", h.Thresholds)
		friction.GET("/interpret/:score", h.Interpret)
	}
}

// RegisterContextRoutes 注册用户上下文路由
func RegisterContextRoutes(r *gin.RouterGroup, h *ContextHandler) {
	ctx := r.Group("/context")
	{
		ctx.POST("/update", h.UpdateContext)
		ctx.POST("/friction-signal", h.LogFrictionSignal)
		ctx.GET("/:user_id", h.GetContext)
	}
}

// RegisterCallRoutes 注册回拨路由
func RegisterCallRoutes(r *gin.RouterGroup, h *CallHandler) {
	call := r.Group("/call")
	{
		call.POST("/request", h.RequestCall)
		call.GET("/pending", h.PendingCalls)
	}
}

// RegisterMessageRoutes 注册坐席消息路由
func RegisterMessageRoutes(r *gin.RouterGroup, h *MessageHandler) {
	r.POST("/messages/send", h.SendMessage)
}

// RegisterAnalyticsRoutes 注册统计路由
func RegisterAnalyticsRoutes(r *gin.RouterGroup, h *AnalyticsHandler) {
	analytics := r.Group("/analytics")
	{
		analytics.GET("/kpis", h.KPIs)
		analytics.GET("/weekly-report", h.WeeklyReport)
	}
}

// RegisterFreshdeskRoutes 注册工单同步路由
func RegisterFreshdeskRoutes(r *gin.RouterGroup, h *FreshdeskHandler) {
	r.POST("/freshdesk/sync", h.SyncTicket)
	r.POST("/freshdesk/sync-all", h.SyncAll)
}
