package handler

import (
	"errors"
	"net/http"
	"strconv"

	"vaultcredits/internal/config"
	"vaultcredits/internal/repository"
	"vaultcredits/internal/service"
	"vaultcredits/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"gorm.io/gorm"
)

// Handler 统一处理器，包含所有服务依赖
type Handler struct {
	awardService    *service.AwardService
	accountService  *service.AccountService
	identityService *service.IdentityService
	healthService   *service.HealthService
}

// NewHandler 创建处理器实例
func NewHandler(db *gorm.DB, rdb *redis.Client, cfg *config.Config) *Handler {
	return &Handler{
		awardService:    service.NewAwardService(db, rdb, cfg),
		accountService:  service.NewAccountService(db, cfg),
		identityService: service.NewIdentityService(db),
		healthService:   service.NewHealthService(db, rdb),
	}
}

// ============================================================
// 赠送领取
// ============================================================

// ClaimAwardRequest 领取请求
type ClaimAwardRequest struct {
	Wallet      string `json:"wallet" binding:"required"`
	CampaignKey string `json:"campaign_key" binding:"required"`
}

// ClaimAward 领取一次性赠送
// POST /api/v1/awards/claim
//
// 【关键点】重复点击、网络重试、多标签页并发都会落到这个接口，
// 服务层保证同一 (钱包, 活动) 只有一次返回 awarded=true，其余全部是
// 已领取（业务冲突码），不会多发一分积分
func (h *Handler) ClaimAward(c *gin.Context) {
	var req ClaimAwardRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	outcome := h.awardService.AwardOnce(c.Request.Context(), req.Wallet, req.CampaignKey)

	switch outcome.Kind {
	case service.OutcomeAwarded:
		response.Success(c, gin.H{
			"awarded":         true,
			"credits_awarded": outcome.Credits,
			"credits":         outcome.NewBalance,
			"message":         "领取成功",
		})
	case service.OutcomeAlreadyAwarded:
		response.SuccessWith(c, response.CodeAlreadyAwarded, "已领取过，不能重复领取", gin.H{
			"awarded":         false,
			"credits_awarded": 0,
		})
	case service.OutcomeNotEligible:
		switch outcome.Reason {
		case service.ReasonCampaignNotFound:
			response.BusinessError(c, response.CodeCampaignNotFound, "活动不存在")
		case service.ReasonInvalidAddress:
			response.BusinessError(c, response.CodeInvalidAddress, "钱包地址格式不合法")
		default:
			response.BusinessError(c, response.CodeNotEligible, "不满足领取条件: "+outcome.Reason)
		}
	default:
		// Failed：瞬时故障，已整体回滚，客户端可安全重试
		response.ServerError(c, "领取失败，请稍后重试")
	}
}

// ============================================================
// 余额与流水
// ============================================================

// GetBalance 查询钱包余额
// GET /api/v1/credits/balance?wallet=0x...
func (h *Handler) GetBalance(c *gin.Context) {
	wallet := c.Query("wallet")
	if wallet == "" {
		response.ParamError(c, "wallet 参数不能为空")
		return
	}

	balance, err := h.accountService.GetBalance(c.Request.Context(), wallet)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidAddress) {
			response.BusinessError(c, response.CodeInvalidAddress, "钱包地址格式不合法")
			return
		}
		response.ServerError(c, err.Error())
		return
	}

	response.Success(c, gin.H{"credits": balance})
}

// AdjustBalanceRequest 调整请求
type AdjustBalanceRequest struct {
	Wallet    string `json:"wallet" binding:"required"`
	Amount    int64  `json:"amount" binding:"required,gt=0"`
	Direction string `json:"direction" binding:"required"` // add | subtract
	Note      string `json:"note"`
}

// AdjustBalance 人工调整余额
// POST /api/v1/credits/adjust
func (h *Handler) AdjustBalance(c *gin.Context) {
	var req AdjustBalanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	balance, err := h.accountService.Adjust(c.Request.Context(), req.Wallet, req.Amount, req.Direction, req.Note)
	if err != nil {
		h.writeAccountError(c, err)
		return
	}

	response.Success(c, gin.H{"credits": balance})
}

// SpendRequest 消费请求
type SpendRequest struct {
	Wallet    string `json:"wallet" binding:"required"`
	Amount    int64  `json:"amount" binding:"required,gt=0"`
	Reference string `json:"reference" binding:"required"` // 消费目标，如 entry:vault:7
}

// SpendCredits 消费积分
// POST /api/v1/credits/spend
func (h *Handler) SpendCredits(c *gin.Context) {
	var req SpendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	balance, err := h.accountService.Spend(c.Request.Context(), req.Wallet, req.Amount, req.Reference)
	if err != nil {
		h.writeAccountError(c, err)
		return
	}

	response.Success(c, gin.H{"credits": balance})
}

// TransferRequest 转账请求
type TransferRequest struct {
	FromWallet string `json:"from_wallet" binding:"required"`
	ToWallet   string `json:"to_wallet" binding:"required"`
	Amount     int64  `json:"amount" binding:"required,gt=0"`
}

// TransferCredits 用户间转账
// POST /api/v1/credits/transfer
func (h *Handler) TransferCredits(c *gin.Context) {
	var req TransferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	balance, err := h.accountService.Transfer(c.Request.Context(), req.FromWallet, req.ToWallet, req.Amount)
	if err != nil {
		if errors.Is(err, service.ErrSameWallet) {
			response.ParamError(c, err.Error())
			return
		}
		h.writeAccountError(c, err)
		return
	}

	response.Success(c, gin.H{"credits": balance})
}

// ListTransactions 查询流水
// GET /api/v1/credits/transactions?wallet=0x...&page=1&page_size=10
func (h *Handler) ListTransactions(c *gin.Context) {
	wallet := c.Query("wallet")
	if wallet == "" {
		response.ParamError(c, "wallet 参数不能为空")
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "10"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 10
	}

	transactions, total, err := h.accountService.ListTransactions(c.Request.Context(), wallet, page, pageSize)
	if err != nil {
		h.writeAccountError(c, err)
		return
	}

	response.Success(c, gin.H{
		"list":      transactions,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

// ============================================================
// 社交绑定
// ============================================================

// LinkSocialRequest 绑定请求
type LinkSocialRequest struct {
	Wallet       string `json:"wallet" binding:"required"`
	Handle       string `json:"handle" binding:"required"`
	Verification string `json:"verification"` // 外部验证服务返回的 JSON，原样存储
}

// LinkSocial 绑定社交账号
// POST /api/v1/social/link
func (h *Handler) LinkSocial(c *gin.Context) {
	var req LinkSocialRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ParamError(c, "参数错误: "+err.Error())
		return
	}

	user, err := h.identityService.LinkSocialHandle(c.Request.Context(), req.Wallet, req.Handle, req.Verification)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrHandleAlreadyLinked):
			response.BusinessError(c, response.CodeHandleAlreadyLinked, "该社交账号已绑定其他钱包")
		case errors.Is(err, repository.ErrInvalidAddress):
			response.BusinessError(c, response.CodeInvalidAddress, "钱包地址格式不合法")
		case errors.Is(err, service.ErrInvalidHandle):
			response.ParamError(c, err.Error())
		default:
			response.ServerError(c, err.Error())
		}
		return
	}

	response.Success(c, gin.H{
		"wallet":        user.Wallet,
		"social_handle": user.SocialHandle,
	})
}

// ============================================================
// 健康检查
// ============================================================

// HealthCheck 账本一致性检查
// GET /health
// 不健康时返回 503，便于负载均衡/告警直接消费状态码
func (h *Handler) HealthCheck(c *gin.Context) {
	report := h.healthService.Check(c.Request.Context())

	status := http.StatusOK
	if !report.Healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, report)
}

// writeAccountError 账户类错误到响应码的统一翻译
func (h *Handler) writeAccountError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, repository.ErrInsufficientBalance):
		response.BusinessError(c, response.CodeInsufficientBalance, "积分余额不足")
	case errors.Is(err, repository.ErrInvalidAddress):
		response.BusinessError(c, response.CodeInvalidAddress, "钱包地址格式不合法")
	case errors.Is(err, repository.ErrUserNotFound):
		response.BusinessError(c, response.CodeUserNotFound, "用户不存在")
	case errors.Is(err, service.ErrInvalidAmount), errors.Is(err, service.ErrInvalidDirection):
		response.ParamError(c, err.Error())
	default:
		response.ServerError(c, err.Error())
	}
}
