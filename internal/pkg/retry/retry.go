/*
Package retry 有界重试策略

将"最多 N 次、固定间隔、可重试类别判定、终态回退"表达为显式策略，
替代散落在调用方的 for-sleep 循环。等待期间响应 context 取消，
视图销毁后不会再有迟到的重试结果生效。
*/
package retry

import (
	"context"
	"time"
)

/*
Policy 有界重试策略
功能：MaxAttempts 为总尝试次数（含首次），Interval 为两次尝试
之间的固定间隔
*/
type Policy struct {
	MaxAttempts int
	Interval    time.Duration
}

/*
Do 按策略执行操作
功能：op 返回 nil 即成功；返回错误时由 retryable 判定是否属于
可重试类别，不可重试的错误立即终止并原样返回。重试间隔通过
timer + ctx.Done 等待，context 取消时返回 ctx.Err()。
耗尽尝试次数后返回最后一次的错误。
*/
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error, retryable func(error) bool) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if retryable == nil || !retryable(lastErr) {
			return lastErr
		}

		/* 最后一次尝试失败后不再等待 */
		if i == attempts-1 {
			break
		}

		timer := time.NewTimer(p.Interval)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}

	return lastErr
}
