package services

import "errors"

// ValidationError 请求参数校验失败，返回400且不重试
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// 开通流程错误，处理器据此决定返回码与是否可重试
var (
	// ErrNoCapacity 没有符合条件的共享VPS（运营方可换主机或套餐后重试）
	ErrNoCapacity = errors.New("没有可用容量的共享VPS")
	// ErrSlugTaken 子域名已被占用
	ErrSlugTaken = errors.New("子域名已被占用")
	// ErrEmailTaken 管理员邮箱已被注册
	ErrEmailTaken = errors.New("管理员邮箱已被注册")
)
