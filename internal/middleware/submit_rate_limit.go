package middleware

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// ==================== CooldownLimiter 冷却限流器 ====================

// CooldownLimiter 按键冷却限流器
// 防止用户短时间内重复触发提交等重操作
type CooldownLimiter struct {
	locks sync.Map // key -> *lockEntry
}

// lockEntry 锁条目
type lockEntry struct {
	lastTime time.Time
	mu       sync.Mutex
}

// 全局限流器实例
var globalLimiter = &CooldownLimiter{}

// GetLimiter 获取全局限流器
func GetLimiter() *CooldownLimiter {
	return globalLimiter
}

// CheckResult 检查结果
type CheckResult struct {
	Allowed    bool          // 是否允许
	RetryAfter time.Duration // 剩余冷却时间
}

// Check 检查是否允许执行，允许时更新最后执行时间
func (r *CooldownLimiter) Check(key string, interval time.Duration) CheckResult {
	actual, _ := r.locks.LoadOrStore(key, &lockEntry{})
	entry := actual.(*lockEntry)

	entry.mu.Lock()
	defer entry.mu.Unlock()

	now := time.Now()
	elapsed := now.Sub(entry.lastTime)

	if elapsed < interval {
		return CheckResult{
			Allowed:    false,
			RetryAfter: interval - elapsed,
		}
	}

	entry.lastTime = now
	return CheckResult{Allowed: true}
}

// Reset 重置指定 key 的冷却
func (r *CooldownLimiter) Reset(key string) {
	r.locks.Delete(key)
}

// SubmitKey 生成用户级提交冷却 Key
func SubmitKey(userID string) string {
	return fmt.Sprintf("submit:%s", userID)
}

// ==================== Gin 中间件 ====================

// DefaultSubmitCooldown 默认提交冷却间隔
const DefaultSubmitCooldown = 5 * time.Second

// SubmitCooldown 提交冷却中间件
// 按用户维度限制提交频率，冷却期内返回 429
//
// 使用示例:
//
//	sessions.POST("/:user_id/submit",
//	    middleware.SubmitCooldown(0),
//	    ctls.Wizard.Submit,
//	)
func SubmitCooldown(interval time.Duration) gin.HandlerFunc {
	if interval == 0 {
		interval = DefaultSubmitCooldown
	}

	return func(c *gin.Context) {
		userID := c.Param("user_id")
		if userID == "" {
			c.Next()
			return
		}

		result := GetLimiter().Check(SubmitKey(userID), interval)
		if !result.Allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{
				"code":    429,
				"message": fmt.Sprintf("操作过于频繁，请 %.0f 秒后重试", result.RetryAfter.Seconds()),
			})
			c.Abort()
			return
		}

		c.Next()
	}
}
