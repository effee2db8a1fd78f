package controller

import (
	"assessment_backend/internal/config"
	"assessment_backend/internal/service"
	"assessment_backend/internal/util"
	"bytes"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strconv"

	"github.com/gin-gonic/gin"
)

type AssessmentController struct {
	AssessmentService *service.AssessmentService
	Upload            config.UploadConfig
}

func NewAssessmentController(assessmentService *service.AssessmentService, upload config.UploadConfig) *AssessmentController {
	return &AssessmentController{
		AssessmentService: assessmentService,
		Upload:            upload,
	}
}

// UploadAssessmentRequest multipart 表单字段，文件字段名为 file
type UploadAssessmentRequest struct {
	AssessmentName string `form:"assessmentName" binding:"required"`
	Subject        string `form:"subject" binding:"required"`
	GradeLevel     string `form:"gradeLevel" binding:"required"`
	TimeLimit      string `form:"timeLimit"`
}

// UploadAssessment godoc
// @Summary 上传测验文档
// @Description 解析 PDF/TXT 文档中的选择题，抽样后混入模型生成的题目，保存为新测验
// @Tags 测验
// @Accept  multipart/form-data
// @Produce  json
// @Security ApiKeyAuth
// @Param   assessmentName formData string true "测验名称"
// @Param   subject formData string true "科目"
// @Param   gradeLevel formData string true "年级"
// @Param   timeLimit formData int false "时长（分钟），默认 30"
// @Param   file formData file true "PDF 或 TXT 文档"
// @Success 201 {object} util.Response{data=service.UploadResult} "创建成功"
// @Failure 400 {object} util.Response "参数错误或文档无法解析"
// @Failure 502 {object} util.Response "模型服务不可用"
// @Router /api/assessments/upload [post]
func (c *AssessmentController) UploadAssessment(ctx *gin.Context) {
	limit := c.Upload.MaxBytes()
	if limit > 0 {
		// 预留表单字段的空间
		ctx.Request.Body = http.MaxBytesReader(ctx.Writer, ctx.Request.Body, limit+1<<20)
	}

	var req UploadAssessmentRequest
	if err := ctx.ShouldBind(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	timeLimit := 0
	if req.TimeLimit != "" {
		n, err := strconv.Atoi(req.TimeLimit)
		if err != nil || n < 0 {
			util.BadRequest(ctx, "timeLimit must be a non-negative integer")
			return
		}
		timeLimit = n
	}

	file, err := ctx.FormFile("file")
	if err != nil {
		util.BadRequest(ctx, "File is required")
		return
	}
	if limit > 0 && file.Size > limit {
		util.BadRequest(ctx, fmt.Sprintf("file exceeds the %d MB limit", c.Upload.MaxSizeMB))
		return
	}
	if !util.HasAllowedExtension(file.Filename, c.Upload.AllowedExtensions) {
		util.BadRequest(ctx, "unsupported file type "+filepath.Ext(file.Filename))
		return
	}

	src, err := file.Open()
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		util.LogInternalError(ctx, err)
		return
	}
	mimeType, err := util.ValidateMimeType(bytes.NewReader(data), util.AllowedDocumentMimeTypes)
	if err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	res, err := c.AssessmentService.Upload(ctx.Request.Context(), service.UploadInput{
		TeacherID:      currentUserID(ctx),
		AssessmentName: req.AssessmentName,
		Subject:        req.Subject,
		GradeLevel:     req.GradeLevel,
		TimeLimit:      timeLimit,
		Filename:       file.Filename,
		ContentType:    mimeType,
		Data:           data,
	})
	if err != nil {
		util.HandleError(ctx, err)
		return
	}

	util.Created(ctx, res)
}

// ListMine godoc
// @Summary 我上传的测验
// @Tags 测验
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]model.Assessment} "成功"
// @Router /api/assessments/my [get]
func (c *AssessmentController) ListMine(ctx *gin.Context) {
	list, err := c.AssessmentService.ListMine(currentUserID(ctx))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, list)
}

// ListAll godoc
// @Summary 全部测验
// @Description 学生端列表，标记当前学生是否已提交
// @Tags 测验
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]service.AssessmentSummary} "成功"
// @Router /api/assessments/all [get]
func (c *AssessmentController) ListAll(ctx *gin.Context) {
	list, err := c.AssessmentService.ListAll(currentUserID(ctx))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, list)
}

// DeleteAssessment godoc
// @Summary 删除测验
// @Description 仅上传者可删除，同时删除提交记录、评语与原始文档
// @Tags 测验
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "测验ID"
// @Success 200 {object} util.Response "成功"
// @Failure 403 {object} util.Response "无权限"
// @Failure 404 {object} util.Response "测验不存在"
// @Router /api/assessments/{id} [delete]
func (c *AssessmentController) DeleteAssessment(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}
	if err := c.AssessmentService.Delete(ctx.Request.Context(), currentUserID(ctx), id); err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"id": id})
}

// GetForAttempt godoc
// @Summary 获取作答视图
// @Description 返回题目与选项，不包含正确答案
// @Tags 测验
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "测验ID"
// @Success 200 {object} util.Response{data=model.AttemptView} "成功"
// @Failure 404 {object} util.Response "测验不存在"
// @Router /api/assessments/{id}/attempt [get]
func (c *AssessmentController) GetForAttempt(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}
	view, err := c.AssessmentService.GetForAttempt(ctx.Request.Context(), id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, view)
}

// Submit godoc
// @Summary 提交作答
// @Description 每个学生对同一测验只能提交一次
// @Tags 测验
// @Accept  json
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "测验ID"
// @Param   body body service.SubmitInput true "作答内容"
// @Success 201 {object} util.Response{data=model.SubmissionResult} "成功"
// @Failure 400 {object} util.Response "参数错误或已提交"
// @Failure 403 {object} util.Response "非学生用户"
// @Failure 404 {object} util.Response "测验不存在"
// @Router /api/assessments/{id}/submit [post]
func (c *AssessmentController) Submit(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}
	var req service.SubmitInput
	if err := ctx.ShouldBindJSON(&req); err != nil {
		util.BadRequest(ctx, err.Error())
		return
	}

	claims := util.GetUserFromContext(ctx)
	if claims == nil {
		util.Unauthorized(ctx)
		return
	}
	res, err := c.AssessmentService.Submit(ctx.Request.Context(), id, claims.UserID, claims.Role, req)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Created(ctx, res)
}

// ListSubmissions godoc
// @Summary 测验的提交记录
// @Tags 测验
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "测验ID"
// @Success 200 {object} util.Response{data=[]model.Submission} "成功"
// @Failure 403 {object} util.Response "无权限"
// @Router /api/assessments/{id}/submissions [get]
func (c *AssessmentController) ListSubmissions(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}
	list, err := c.AssessmentService.ListSubmissions(currentUserID(ctx), id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, list)
}

// ListGenerationLogs godoc
// @Summary 测验的模型调用记录
// @Description 最近 20 条，包含原始回复、跳过的题目与警告
// @Tags 测验
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "测验ID"
// @Success 200 {object} util.Response{data=[]model.GenerationLog} "成功"
// @Failure 403 {object} util.Response "无权限"
// @Router /api/assessments/{id}/generation-logs [get]
func (c *AssessmentController) ListGenerationLogs(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}
	logs, err := c.AssessmentService.ListGenerationLogs(ctx.Request.Context(), currentUserID(ctx), id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, logs)
}

// ListMySubmissions godoc
// @Summary 我的提交记录
// @Tags 测验
// @Produce  json
// @Security ApiKeyAuth
// @Success 200 {object} util.Response{data=[]model.Submission} "成功"
// @Router /api/submissions/my [get]
func (c *AssessmentController) ListMySubmissions(ctx *gin.Context) {
	list, err := c.AssessmentService.ListMySubmissions(currentUserID(ctx))
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, list)
}

// GetSourceURL godoc
// @Summary 原始文档下载链接
// @Tags 测验
// @Produce  json
// @Security ApiKeyAuth
// @Param   id path int true "测验ID"
// @Success 200 {object} util.Response{data=object} "成功"
// @Failure 403 {object} util.Response "无权限"
// @Router /api/assessments/{id}/source [get]
func (c *AssessmentController) GetSourceURL(ctx *gin.Context) {
	id, ok := pathID(ctx)
	if !ok {
		return
	}
	url, err := c.AssessmentService.GetSourceURL(ctx.Request.Context(), currentUserID(ctx), id)
	if err != nil {
		util.HandleError(ctx, err)
		return
	}
	util.Success(ctx, gin.H{"url": url, "expiresIn": int(c.AssessmentService.Storage.Expiry.Seconds())})
}
