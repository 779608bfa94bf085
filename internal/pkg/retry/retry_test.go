package retry

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errTransient = errors.New("transient")
var errPermanent = errors.New("permanent")

/*
TestDo_RetriesUntilSuccess 测试可重试错误在预算内重试直到成功
*/
func TestDo_RetriesUntilSuccess(t *testing.T) {
	p := Policy{MaxAttempts: 5, Interval: time.Millisecond}

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 4 {
			return errTransient
		}
		return nil
	}, func(err error) bool { return errors.Is(err, errTransient) })

	if err != nil {
		t.Fatalf("期望成功, 实际 %v", err)
	}
	if calls != 4 {
		t.Errorf("期望调用 4 次, 实际 %d 次", calls)
	}
}

/*
TestDo_NonRetryableStopsImmediately 测试不可重试错误立即终止
*/
func TestDo_NonRetryableStopsImmediately(t *testing.T) {
	p := Policy{MaxAttempts: 10, Interval: time.Millisecond}

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errPermanent
	}, func(err error) bool { return errors.Is(err, errTransient) })

	if !errors.Is(err, errPermanent) {
		t.Fatalf("期望 errPermanent, 实际 %v", err)
	}
	if calls != 1 {
		t.Errorf("不可重试错误应只调用 1 次, 实际 %d 次", calls)
	}
}

/*
TestDo_ExhaustsBudget 测试耗尽预算后返回最后一次错误
*/
func TestDo_ExhaustsBudget(t *testing.T) {
	p := Policy{MaxAttempts: 3, Interval: time.Millisecond}

	calls := 0
	err := p.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return errTransient
	}, func(err error) bool { return true })

	if !errors.Is(err, errTransient) {
		t.Fatalf("期望 errTransient, 实际 %v", err)
	}
	if calls != 3 {
		t.Errorf("期望调用 3 次, 实际 %d 次", calls)
	}
}

/*
TestDo_ContextCancelled 测试等待期间 context 取消立即返回
*/
func TestDo_ContextCancelled(t *testing.T) {
	p := Policy{MaxAttempts: 100, Interval: time.Hour}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- p.Do(ctx, func(ctx context.Context) error {
			return errTransient
		}, func(err error) bool { return true })
	}()

	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("期望 context.Canceled, 实际 %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("context 取消后未及时返回")
	}
}
