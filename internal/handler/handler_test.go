package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"vaultcredits/internal/config"
	"vaultcredits/internal/infrastructure/database"
	"vaultcredits/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupRouter(t *testing.T) *gin.Engine {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, database.AutoMigrate(db))

	cfg := &config.Config{
		Kafka: config.KafkaConfig{
			Topic: config.KafkaTopicConfig{CreditEvent: "credit-events-test"},
		},
		Business: config.BusinessConfig{
			MaxRetryCount: 3,
			Campaigns: []config.CampaignConfig{
				{Key: "vault:7", BonusCredits: 100, Active: true},
			},
		},
	}

	// Redis 传 nil：锁只是快速去重，正确性由唯一约束保证
	return SetupRouter(db, nil, cfg)
}

func httpDo(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var req *http.Request
	if body != nil {
		b, _ := json.Marshal(body)
		req = httptest.NewRequest(method, path, bytes.NewReader(b))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	t.Helper()
	var resp response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestClaimAwardFlow(t *testing.T) {
	r := setupRouter(t)

	// 首次领取成功
	w := httpDo(r, "POST", "/api/v1/awards/claim", gin.H{
		"wallet":       "0xABC",
		"campaign_key": "vault:7",
	})
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)

	data := resp.Data.(map[string]interface{})
	require.Equal(t, true, data["awarded"])
	require.Equal(t, float64(100), data["credits_awarded"])
	require.Equal(t, float64(100), data["credits"])

	// 紧接着的第二次领取：冲突码，credits_awarded=0
	w = httpDo(r, "POST", "/api/v1/awards/claim", gin.H{
		"wallet":       "0xabc",
		"campaign_key": "vault:7",
	})
	require.Equal(t, http.StatusOK, w.Code)
	resp = decode(t, w)
	require.Equal(t, response.CodeAlreadyAwarded, resp.Code)

	data = resp.Data.(map[string]interface{})
	require.Equal(t, false, data["awarded"])
	require.Equal(t, float64(0), data["credits_awarded"])

	// 余额仍是 100
	w = httpDo(r, "GET", "/api/v1/credits/balance?wallet=0xabc", nil)
	resp = decode(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	require.Equal(t, float64(100), resp.Data.(map[string]interface{})["credits"])
}

func TestClaimAwardBadInput(t *testing.T) {
	r := setupRouter(t)

	w := httpDo(r, "POST", "/api/v1/awards/claim", gin.H{"wallet": "0xabc"})
	require.Equal(t, response.CodeParamError, decode(t, w).Code)

	w = httpDo(r, "POST", "/api/v1/awards/claim", gin.H{
		"wallet":       "0xabc",
		"campaign_key": "vault:missing",
	})
	require.Equal(t, response.CodeCampaignNotFound, decode(t, w).Code)

	w = httpDo(r, "POST", "/api/v1/awards/claim", gin.H{
		"wallet":       "garbage",
		"campaign_key": "vault:7",
	})
	require.Equal(t, response.CodeInvalidAddress, decode(t, w).Code)
}

func TestAdjustBalanceEndpoint(t *testing.T) {
	r := setupRouter(t)

	w := httpDo(r, "POST", "/api/v1/credits/adjust", gin.H{
		"wallet":    "0xabc",
		"amount":    30,
		"direction": "add",
	})
	resp := decode(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	require.Equal(t, float64(30), resp.Data.(map[string]interface{})["credits"])

	// 余额 30 扣 50：余额不足，余额不变
	w = httpDo(r, "POST", "/api/v1/credits/adjust", gin.H{
		"wallet":    "0xabc",
		"amount":    50,
		"direction": "subtract",
	})
	require.Equal(t, response.CodeInsufficientBalance, decode(t, w).Code)

	w = httpDo(r, "GET", "/api/v1/credits/balance?wallet=0xabc", nil)
	resp = decode(t, w)
	require.Equal(t, float64(30), resp.Data.(map[string]interface{})["credits"])
}

func TestLinkSocialEndpoint(t *testing.T) {
	r := setupRouter(t)

	w := httpDo(r, "POST", "/api/v1/social/link", gin.H{
		"wallet": "0xaaa",
		"handle": "@alice",
	})
	resp := decode(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	require.Equal(t, "alice", resp.Data.(map[string]interface{})["social_handle"])

	// 重复绑定同一钱包：幂等成功
	w = httpDo(r, "POST", "/api/v1/social/link", gin.H{
		"wallet": "0xaaa",
		"handle": "alice",
	})
	require.Equal(t, response.CodeSuccess, decode(t, w).Code)

	// 同一 handle 绑定其他钱包：冲突
	w = httpDo(r, "POST", "/api/v1/social/link", gin.H{
		"wallet": "0xbbb",
		"handle": "alice",
	})
	require.Equal(t, response.CodeHandleAlreadyLinked, decode(t, w).Code)
}

func TestTransferEndpoint(t *testing.T) {
	r := setupRouter(t)

	w := httpDo(r, "POST", "/api/v1/credits/adjust", gin.H{
		"wallet":    "0xaaa",
		"amount":    100,
		"direction": "add",
	})
	require.Equal(t, response.CodeSuccess, decode(t, w).Code)

	w = httpDo(r, "POST", "/api/v1/credits/transfer", gin.H{
		"from_wallet": "0xaaa",
		"to_wallet":   "0xbbb",
		"amount":      40,
	})
	resp := decode(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	require.Equal(t, float64(60), resp.Data.(map[string]interface{})["credits"])

	w = httpDo(r, "GET", "/api/v1/credits/balance?wallet=0xbbb", nil)
	require.Equal(t, float64(40), decode(t, w).Data.(map[string]interface{})["credits"])
}

func TestTransactionsEndpoint(t *testing.T) {
	r := setupRouter(t)

	httpDo(r, "POST", "/api/v1/awards/claim", gin.H{
		"wallet":       "0xabc",
		"campaign_key": "vault:7",
	})
	httpDo(r, "POST", "/api/v1/credits/spend", gin.H{
		"wallet":    "0xabc",
		"amount":    10,
		"reference": "entry:vault:7",
	})

	w := httpDo(r, "GET", "/api/v1/credits/transactions?wallet=0xabc&page=1&page_size=10", nil)
	resp := decode(t, w)
	require.Equal(t, response.CodeSuccess, resp.Code)
	require.Equal(t, float64(2), resp.Data.(map[string]interface{})["total"])
}

func TestHealthEndpoint(t *testing.T) {
	r := setupRouter(t)

	httpDo(r, "POST", "/api/v1/awards/claim", gin.H{
		"wallet":       "0xabc",
		"campaign_key": "vault:7",
	})

	w := httpDo(r, "GET", "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var report struct {
		Healthy bool     `json:"healthy"`
		Checks  []string `json:"checks"`
		Errors  []string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	require.True(t, report.Healthy)
	require.Empty(t, report.Errors)
}
