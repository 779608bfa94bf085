package health

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/atomic"
)

/* fakeProbe 可脚本化的存活探测桩 */
type fakeProbe struct {
	mu   sync.Mutex
	fail bool
}

func (f *fakeProbe) Live(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return errors.New("probe failed")
	}
	return nil
}

func (f *fakeProbe) setFail(fail bool) {
	f.mu.Lock()
	f.fail = fail
	f.mu.Unlock()
}

func newTestProber(t *testing.T, probe LivenessProbe, onReady func()) *Prober {
	t.Helper()
	p := NewProber(probe, Options{
		PollInterval: 10 * time.Millisecond,
		ProbeTimeout: 50 * time.Millisecond,
		ProgressTick: 2 * time.Millisecond,
		ProgressStep: 25,
		OnReady:      onReady,
	})
	t.Cleanup(p.Stop)
	return p
}

/* waitFor 轮询断言，超时即失败 */
func waitFor(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal(msg)
}

/*
TestProber_InitialStateUnknown 测试首次探测前状态为 unknown
*/
func TestProber_InitialStateUnknown(t *testing.T) {
	p := NewProber(&fakeProbe{}, Options{})
	defer p.Stop()

	if snap := p.Snapshot(); snap.State != StateUnknown {
		t.Errorf("首次探测前状态应为 unknown, 实际 %s", snap.State)
	}
}

/*
TestProber_UpDownTransitions 测试状态机随探测成败转换，
失败后状态只在下一次成功探测前保持 DOWN
*/
func TestProber_UpDownTransitions(t *testing.T) {
	probe := &fakeProbe{}
	p := newTestProber(t, probe, nil)
	p.Start()

	waitFor(t, time.Second, func() bool { return p.Snapshot().State == StateUp },
		"探测成功后状态未进入 UP")

	probe.setFail(true)
	waitFor(t, time.Second, func() bool { return p.Snapshot().State == StateDown },
		"探测失败后状态未进入 DOWN")

	probe.setFail(false)
	waitFor(t, time.Second, func() bool { return p.Snapshot().State == StateUp },
		"探测恢复后状态未回到 UP")
}

/*
TestProber_OnReadyFiresOnce 测试进度满格只触发一次回调
*/
func TestProber_OnReadyFiresOnce(t *testing.T) {
	var fired atomic.Int32
	probe := &fakeProbe{}
	p := newTestProber(t, probe, func() { fired.Inc() })
	p.Start()

	waitFor(t, time.Second, func() bool { return p.Snapshot().Progress == 100 },
		"恢复进度未达到满格")
	waitFor(t, time.Second, func() bool { return fired.Load() == 1 },
		"进度满格后回调未触发")

	/* 继续运行若干轮询周期，回调不得重复触发 */
	time.Sleep(50 * time.Millisecond)
	if n := fired.Load(); n != 1 {
		t.Errorf("一次性回调触发了 %d 次", n)
	}
}

/*
TestProber_FailureResetsProgress 测试失败清零进度并重新武装一次性标志
*/
func TestProber_FailureResetsProgress(t *testing.T) {
	var fired atomic.Int32
	probe := &fakeProbe{}
	p := newTestProber(t, probe, func() { fired.Inc() })
	p.Start()

	waitFor(t, time.Second, func() bool { return fired.Load() == 1 },
		"第一次恢复未触发回调")

	/* 失败：进度清零 */
	probe.setFail(true)
	waitFor(t, time.Second, func() bool { return p.Snapshot().Progress == 0 },
		"失败后进度未清零")

	/* 再次恢复：标志已重新武装，应第二次触发 */
	probe.setFail(false)
	waitFor(t, time.Second, func() bool { return fired.Load() == 2 },
		"再次恢复后回调未重新触发")
}

/*
TestProber_StopCancelsLoops 测试 Stop 后两个定时循环不再动作
*/
func TestProber_StopCancelsLoops(t *testing.T) {
	probe := &fakeProbe{}
	p := newTestProber(t, probe, nil)
	p.Start()

	waitFor(t, time.Second, func() bool { return p.Snapshot().State == StateUp },
		"探测未进入 UP")

	p.Stop()
	time.Sleep(30 * time.Millisecond)

	/* 停止后探测失败不应再被观察到 */
	probe.setFail(true)
	last := p.Snapshot().LastCheckedAt
	time.Sleep(50 * time.Millisecond)
	if p.Snapshot().LastCheckedAt != last {
		t.Error("Stop 后轮询循环仍在动作")
	}
}
