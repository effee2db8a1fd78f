package controller

import (
	"assessment_backend/internal/service"
	"assessment_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type FeedbackController struct {
	FeedbackService *service.FeedbackService
}

func NewFeedbackController(feedbackService *service.FeedbackService) *FeedbackController {
	return &FeedbackController{FeedbackService: feedbackService}
}

// SendFeedback godoc
// @Summary 生成 AI 评语
// @Description 根据提交记录与历史成绩生成结构化评语。studentId 为空时取当前用户
// @Tags 评语
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   body body service.GenerateFeedbackInput true "提交记录"
// @Success 201 {object} util.Response{data=model.FeedbackView} "成功"
// @Failure 400 {object} util.Response "学生与提交记录不匹配"
// @Failure 404 {object} util.Response "提交记录不存在"
// @Failure 502 {object} util.Response "模型服务不可用或回复无法解析"
// @Router /api/feedback/send [post]
func (c *FeedbackController) SendFeedback(ctx *gin.Context) {
	var req service.GenerateFeedbackInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}

	view, err := c.FeedbackService.Generate(ctx.Request.Context(), claims, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, view)
}

// ListAll godoc
// @Summary 全部评语
// @Description feedbackText 解析为对象，无法解析时为 null
// @Tags 评语
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]model.FeedbackView} "成功"
// @Router /api/feedback [get]
func (c *FeedbackController) ListAll(ctx *gin.Context) {
	list, err := c.FeedbackService.ListAll()
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, list)
}

// ListMine godoc
// @Summary 我的评语
// @Tags 评语
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]model.FeedbackView} "成功"
// @Router /api/feedback/my [get]
func (c *FeedbackController) ListMine(ctx *gin.Context) {
	list, err := c.FeedbackService.ListForStudent(currentUserID(ctx))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, list)
}
