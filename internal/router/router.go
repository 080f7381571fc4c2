package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"estate_wizard_v1_202609/internal/controller"
	"estate_wizard_v1_202609/internal/middleware"
)

// Controllers 控制器集合
type Controllers struct {
	Wizard *controller.WizardController
}

// SetupRouter 注册所有路由
func SetupRouter(ctls *Controllers) *gin.Engine {
	r := gin.Default()

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		// wizard 发布向导
		wizard := api.Group("/wizard")
		{
			sessions := wizard.Group("/sessions")
			{
				// POST /api/wizard/sessions
				sessions.POST("", ctls.Wizard.StartSession)
				sessions.GET("/:user_id", ctls.Wizard.GetSession)
				sessions.DELETE("/:user_id", ctls.Wizard.CloseSession)

				// 字段与步骤
				sessions.PUT("/:user_id/fields", ctls.Wizard.UpdateField)
				sessions.GET("/:user_id/fields/validate", ctls.Wizard.ValidateField)
				sessions.POST("/:user_id/next", ctls.Wizard.NextStep)
				sessions.POST("/:user_id/prev", ctls.Wizard.PrevStep)
				sessions.POST("/:user_id/goto", ctls.Wizard.GoToStep)

				// 图片
				sessions.POST("/:user_id/images", ctls.Wizard.AddImages)
				sessions.DELETE("/:user_id/images/:index", ctls.Wizard.RemoveImage)
				sessions.POST("/:user_id/images/move", ctls.Wizard.MoveImage)
				sessions.POST("/:user_id/images/main", ctls.Wizard.SetMainImage)
				sessions.GET("/:user_id/previews/:handle", ctls.Wizard.GetPreview)

				// 提交与进度
				sessions.POST("/:user_id/submit",
					middleware.SubmitCooldown(0),
					ctls.Wizard.Submit,
				)
				sessions.GET("/:user_id/progress", ctls.Wizard.StreamProgress)
			}
		}
	}

	return r
}
