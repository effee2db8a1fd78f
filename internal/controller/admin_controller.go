package controller

import (
	"assessment_backend/internal/service"
	"assessment_backend/internal/util"

	"github.com/gin-gonic/gin"
)

type AdminController struct {
	AdminService *service.AdminService
}

func NewAdminController(adminService *service.AdminService) *AdminController {
	return &AdminController{AdminService: adminService}
}

// ListApprovals godoc
// @Summary 教师审批列表
// @Tags 管理员
// @Produce  json
// @Security ApiKeyAuth
// @Param   status query string false "pending | approved | rejected，为空时返回全部"
// @Success 200 {object} util.Response{data=[]model.User} "成功"
// @Failure 400 {object} util.Response "状态参数无效"
// @Router /api/admin/approvals [get]
func (c *AdminController) ListApprovals(ctx *gin.Context) {
	users, err := c.AdminService.ListApprovals(ctx.Query("status"))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, users)
}

// Counts godoc
// @Summary 教师审批统计
// @Tags 管理员
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=service.ApprovalCounts} "成功"
// @Router /api/admin/approvals/counts [get]
func (c *AdminController) Counts(ctx *gin.Context) {
	counts, err := c.AdminService.Counts()
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, counts)
}

// Approve godoc
// @Summary 通过教师注册
// @Tags 管理员
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "教师ID"
// @Success 200 {object} util.Response{data=model.User} "成功"
// @Failure 404 {object} util.Response "用户不存在"
// @Router /api/admin/approvals/{id}/approve [patch]
func (c *AdminController) Approve(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}
	user, err := c.AdminService.Approve(currentUserID(ctx), id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, user)
}

type RejectRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// Reject godoc
// @Summary 拒绝教师注册
// @Tags 管理员
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "教师ID"
// @Param   body body RejectRequest true "拒绝原因"
// @Success 200 {object} util.Response{data=model.User} "成功"
// @Failure 400 {object} util.Response "缺少拒绝原因"
// @Failure 404 {object} util.Response "用户不存在"
// @Router /api/admin/approvals/{id}/reject [patch]
func (c *AdminController) Reject(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}
	var req RejectRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}
	user, err := c.AdminService.Reject(currentUserID(ctx), id, req.Reason)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, user)
}
