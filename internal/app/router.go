package app

import (
	"assessment_backend/docs"
	"assessment_backend/internal/config"
	"assessment_backend/internal/middleware"
	"assessment_backend/internal/model"
	"assessment_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())

	// 1. 公共路由(无需登录)
	registerPublicRoutes(router, c)

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg.JWT.Secret))
	{
		authGroup.GET("/profile", c.auth.GetProfile)

		registerTeacherRoutes(authGroup, c)
		registerStudentRoutes(authGroup, c)
	}

	// 3. 管理员相关接口
	registerAdminRoutes(router, c, cfg)
}

func registerPublicRoutes(router *gin.Engine, c *controllers) {
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.POST("/register", c.auth.Register)
		public.POST("/login", c.auth.Login)
	}
}

func registerTeacherRoutes(group *gin.RouterGroup, c *controllers) {
	teacher := group.Group("")
	teacher.Use(middleware.RoleMiddleware(model.Teacher))
	{
		teacher.POST("/assessments/upload", c.assessment.UploadAssessment)
		teacher.GET("/assessments/my", c.assessment.ListMine)
		teacher.DELETE("/assessments/:id", c.assessment.DeleteAssessment)
		teacher.GET("/assessments/:id/submissions", c.assessment.ListSubmissions)
		teacher.GET("/assessments/:id/source", c.assessment.GetSourceURL)
		teacher.GET("/assessments/:id/generation-logs", c.assessment.ListGenerationLogs)
		teacher.GET("/feedback", c.feedback.ListAll)
	}
}

func registerStudentRoutes(group *gin.RouterGroup, c *controllers) {
	student := group.Group("")
	student.Use(middleware.RoleMiddleware(model.Student))
	{
		student.GET("/assessments/all", c.assessment.ListAll)
		student.GET("/assessments/:id/attempt", c.assessment.GetForAttempt)
		student.POST("/assessments/:id/submit", c.assessment.Submit)
		student.GET("/submissions/my", c.assessment.ListMySubmissions)
		student.POST("/feedback/send", c.feedback.SendFeedback)
		student.GET("/feedback/my", c.feedback.ListMine)
	}
}

func registerAdminRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	admin := router.Group("/api/admin")
	admin.Use(middleware.AuthMiddleware(cfg.JWT.Secret), middleware.RoleMiddleware(model.Admin))
	{
		admin.GET("/approvals", c.admin.ListApprovals)
		admin.GET("/approvals/counts", c.admin.Counts)
		admin.PATCH("/approvals/:id/approve", c.admin.Approve)
		admin.PATCH("/approvals/:id/reject", c.admin.Reject)
	}
}
