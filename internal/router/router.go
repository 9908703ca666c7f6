package router

import (
	"Photo_Archive/internal/handler"
	"Photo_Archive/internal/middleware"
	"Photo_Archive/internal/model"
	"Photo_Archive/internal/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Handlers struct {
	User         *handler.UserHandler
	Content      *handler.ContentHandler
	Engagement   *handler.EngagementHandler
	Moderation   *handler.ModerationHandler
	Notification *handler.NotificationHandler
}

func InitRouter(h Handlers, users *service.UserService, logger *zap.Logger, frontendURL string) *gin.Engine {
	r := gin.New()
	r.Use(middleware.ZapLogger(logger), middleware.Recovery(logger))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{frontendURL}
	corsConfig.AllowCredentials = true
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization"}
	r.Use(cors.New(corsConfig))

	auth := middleware.AuthMiddleware(users)

	// 用户相关接口
	userGroup := r.Group("/api/user")
	{
		userGroup.POST("/register", h.User.Register)
		userGroup.POST("/login", h.User.Login)
		userGroup.POST("/logout", auth, h.User.Logout)
	}

	// token相关接口
	tokenGroup := r.Group("/api/token")
	{
		tokenGroup.POST("/refresh", h.User.TokenRefresh)
	}

	// 登录态接口
	authGroup := r.Group("/api/auth")
	authGroup.Use(auth)
	{
		authGroup.POST("/change-password", h.User.ChangePassword)
	}

	// 浏览接口对匿名访客开放，pending 内容按身份过滤
	browse := r.Group("/api/content")
	browse.Use(middleware.OptionalAuth(users))
	{
		browse.GET("/:id", h.Content.Get)
		browse.GET("/location/:location", h.Content.ByLocation)
		browse.GET("/recent/:kind", h.Content.Recent)
		browse.GET("/:id/children/:kind", h.Content.Children)
		browse.GET("/search", h.Content.Search)
	}

	contentGroup := r.Group("/api/content")
	contentGroup.Use(auth)
	{
		for _, kind := range []model.ContentKind{model.KindPhoto, model.KindTag, model.KindComment, model.KindStory} {
			contentGroup.POST("/"+string(kind), h.Content.Submit(kind))
		}
		contentGroup.DELETE("/:id", h.Content.Withdraw)
		contentGroup.POST("/:id/like", h.Engagement.ToggleLike)
		contentGroup.GET("/:id/like", h.Engagement.LikeStatus)
		contentGroup.POST("/:id/view", h.Engagement.View)
	}

	r.GET("/api/quota", auth, h.Content.Quota)
	r.GET("/api/notifications", auth, h.Notification.Inbox)
	// 公开只读，不触发重算
	r.GET("/api/users/:id/stats", h.Notification.Stats)

	modGroup := r.Group("/api/moderation")
	modGroup.Use(auth, middleware.RequireModerator())
	{
		modGroup.GET("/queue", h.Moderation.Queue)
		modGroup.POST("/:id/approve", h.Moderation.Approve)
		modGroup.POST("/:id/reject", h.Moderation.Reject)
		modGroup.PUT("/:id", h.Moderation.Edit)
		modGroup.DELETE("/:id", h.Moderation.Delete)
		modGroup.POST("/users/:id/suspend", h.Moderation.Suspend)
	}

	return r
}
