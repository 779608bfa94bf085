/*
Package health 上游健康探测

固定周期探测预约平台后端的存活端点，维护 UP/DOWN 两态状态机，
驱动重连视图。进入 UP 后以固定步进推进一个 0→100 的线性恢复
进度（只用于节流下一步动作，不承载正确性），进度满格时触发
一次性的会话重校验回调；一次性标志保证后续轮询不会重复触发，
探测失败则清零进度并重新武装标志。

轮询定时器与进度定时器是两个独立的循环，通过同一个 context
一起取消，避免视图销毁后残留定时器继续动作。
*/
package health

import (
	"context"
	"sync"
	"time"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// State 上游可达状态
type State string

const (
	StateUnknown State = "unknown" /* 尚未完成首次探测 */
	StateUp      State = "up"      /* 上游可达 */
	StateDown    State = "down"    /* 上游不可达 */
)

/*
Snapshot 健康状态快照
功能：每个轮询周期重算，不持久化
*/
type Snapshot struct {
	State         State     `json:"state"`
	Progress      int       `json:"progress"`
	LastCheckedAt time.Time `json:"last_checked_at"`
}

/* LivenessProbe 存活探测依赖，backend.Client 满足此接口 */
type LivenessProbe interface {
	Live(ctx context.Context) error
}

/*
Options 探测器参数
*/
type Options struct {
	PollInterval time.Duration /* 轮询周期，默认 7s */
	ProbeTimeout time.Duration /* 单次探测超时，默认 5s */
	ProgressTick time.Duration /* 进度步进周期，默认 150ms */
	ProgressStep int           /* 每步进度增量，默认 4 */

	/* OnReady 进度满格时的一次性回调（会话重校验），可为 nil */
	OnReady func()
}

/*
Prober 上游健康探测器
*/
type Prober struct {
	probe LivenessProbe
	opts  Options

	ctx    context.Context
	cancel context.CancelFunc

	up          atomic.Bool  /* 状态机：true=UP, false=DOWN（初始） */
	checked     atomic.Bool  /* 是否已完成首次探测 */
	lastChecked atomic.Int64 /* 最近探测时间（UnixNano） */
	progress    atomic.Int32 /* 恢复进度 0-100 */
	readyFired  atomic.Bool  /* 一次性回调标志，失败时重新武装 */

	mu   sync.Mutex
	subs []func(Snapshot)

	logger *zap.Logger
}

/*
NewProber 创建健康探测器
功能：参数为零值时填充默认值
*/
func NewProber(probe LivenessProbe, opts Options) *Prober {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 7 * time.Second
	}
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = 5 * time.Second
	}
	if opts.ProgressTick <= 0 {
		opts.ProgressTick = 150 * time.Millisecond
	}
	if opts.ProgressStep <= 0 {
		opts.ProgressStep = 4
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Prober{
		probe:  probe,
		opts:   opts,
		ctx:    ctx,
		cancel: cancel,
		logger: zap.L().Named("health-prober"),
	}
}

/*
Start 启动轮询循环与进度循环
*/
func (p *Prober) Start() {
	go p.pollLoop()
	go p.progressLoop()
	p.logger.Info("✓ 健康探测器已启动",
		zap.Duration("poll_interval", p.opts.PollInterval),
		zap.Duration("probe_timeout", p.opts.ProbeTimeout))
}

/* Stop 同时取消两个定时循环 */
func (p *Prober) Stop() {
	p.cancel()
}

/*
Snapshot 读取当前健康快照
*/
func (p *Prober) Snapshot() Snapshot {
	state := StateUnknown
	if p.checked.Load() {
		if p.up.Load() {
			state = StateUp
		} else {
			state = StateDown
		}
	}

	var last time.Time
	if ns := p.lastChecked.Load(); ns > 0 {
		last = time.Unix(0, ns)
	}

	return Snapshot{
		State:         state,
		Progress:      int(p.progress.Load()),
		LastCheckedAt: last,
	}
}

/*
Subscribe 注册状态变化订阅者
功能：状态机转换和进度推进时回调，重连视图的推送通道据此广播
*/
func (p *Prober) Subscribe(fn func(Snapshot)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs = append(p.subs, fn)
}

func (p *Prober) notify() {
	snap := p.Snapshot()
	p.mu.Lock()
	subs := make([]func(Snapshot), len(p.subs))
	copy(subs, p.subs)
	p.mu.Unlock()

	for _, fn := range subs {
		fn(snap)
	}
}

/*
pollLoop 轮询循环
功能：启动时立即探测一次，之后按固定周期探测
*/
func (p *Prober) pollLoop() {
	p.pollOnce()

	ticker := time.NewTicker(p.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.pollOnce()
		case <-p.ctx.Done():
			return
		}
	}
}

/* pollOnce 执行单次探测并驱动状态机 */
func (p *Prober) pollOnce() {
	ctx, cancel := context.WithTimeout(p.ctx, p.opts.ProbeTimeout)
	start := time.Now()
	err := p.probe.Live(ctx)
	cancel()

	observeProbe(time.Since(start))
	p.lastChecked.Store(time.Now().UnixNano())
	p.checked.Store(true)

	if err != nil {
		/* 任何失败（超时/网络/非 2xx）→ DOWN，清零进度并重新武装一次性标志 */
		wasUp := p.up.Swap(false)
		p.progress.Store(0)
		p.readyFired.Store(false)
		if wasUp {
			p.logger.Warn("上游失联", zap.Error(err))
			recordTransition(StateDown)
		}
		setUpGauge(false)
		p.notify()
		return
	}

	if wasUp := p.up.Swap(true); !wasUp {
		p.logger.Info("✓ 上游恢复，开始恢复进度")
		recordTransition(StateUp)
	}
	setUpGauge(true)
	p.notify()
}

/*
progressLoop 进度循环
功能：UP 状态下按固定步进推进恢复进度，满格时触发一次
会话重校验回调；与轮询循环独立，但共用同一个取消信号
*/
func (p *Prober) progressLoop() {
	ticker := time.NewTicker(p.opts.ProgressTick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.advanceProgress()
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *Prober) advanceProgress() {
	if !p.up.Load() {
		return
	}

	cur := p.progress.Load()
	if cur >= 100 {
		return
	}

	next := cur + int32(p.opts.ProgressStep)
	if next > 100 {
		next = 100
	}
	p.progress.Store(next)

	/* 满格时仅触发一次，后续轮询不会重复触发 */
	if next == 100 && p.readyFired.CompareAndSwap(false, true) {
		p.logger.Info("恢复进度满格，触发会话重校验")
		if p.opts.OnReady != nil {
			p.opts.OnReady()
		}
	}
	p.notify()
}
