package sync

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"aliasflare/backend/internal/cloudflare"
	"aliasflare/backend/internal/monitoring"
	"aliasflare/backend/internal/pool"
)

// 同步触发来源。所有触发点（定时器、前台返回、复制推送、手动刷新）
// 都收敛到 RequestSync 这一个入口。
const (
	ReasonStartup     = "startup"
	ReasonManual      = "manual"
	ReasonPeriodic    = "periodic"
	ReasonReplication = "replication_push"
)

// EventSink 接收同步生命周期事件（WebSocket Hub 实现该接口向客户端推送）。
type EventSink interface {
	PublishSyncEvent(event string, payload interface{})
}

type noopSink struct{}

func (noopSink) PublishSyncEvent(string, interface{}) {}

// Status 当前同步状态快照。
type Status struct {
	Running           bool                        `json:"running"`
	LastRun           *time.Time                  `json:"lastRun,omitempty"`
	LastError         string                      `json:"lastError,omitempty"`
	LastResults       map[string]*ReconcileResult `json:"lastResults,omitempty"` // zoneID -> 结果
	DuplicatesRemoved int                         `json:"duplicatesRemoved"`
}

// Config 协调器参数。
type Config struct {
	Zones          []string
	Interval       time.Duration // 周期触发间隔
	Cooldown       time.Duration // 两次同步的最小间隔（手动触发除外）
	Debounce       time.Duration // 复制推送后的静默期，等多条记录推完再去重
	StartupRetries int           // 启动时的有限重试次数
}

// Coordinator 同步协调器：串行化三个引擎的执行。
// 本地记录集是唯一的共享可变资源，所有同步写入都经由这里的
// 单工作协程，绝不会有两轮对账并发执行。
type Coordinator struct {
	cfg        Config
	reconciler *Reconciler
	dedup      *Deduplicator
	backfill   *Backfiller
	tasks      *pool.WorkerPool
	events     EventSink
	metrics    *monitoring.Metrics
	log        *zap.Logger

	ctx        context.Context
	pushSignal chan struct{}

	mu      sync.Mutex
	running bool
	status  Status
}

// NewCoordinator 创建同步协调器。metrics 和 events 允许为 nil。
func NewCoordinator(
	cfg Config,
	reconciler *Reconciler,
	dedup *Deduplicator,
	backfill *Backfiller,
	events EventSink,
	metrics *monitoring.Metrics,
	log *zap.Logger,
) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	if events == nil {
		events = noopSink{}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 10 * time.Second
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 2 * time.Second
	}
	if cfg.StartupRetries <= 0 {
		cfg.StartupRetries = 3
	}

	return &Coordinator{
		cfg:        cfg,
		reconciler: reconciler,
		dedup:      dedup,
		backfill:   backfill,
		// 单工作协程、零长度队列：工作协程空闲时才接单，忙时整个周期被跳过
		tasks:      pool.NewWorkerPool(1, 0, log),
		events:     events,
		metrics:    metrics,
		log:        log,
		pushSignal: make(chan struct{}, 1),
	}
}

// Start 启动工作协程、周期触发器和复制推送去抖器。
func (c *Coordinator) Start(ctx context.Context) {
	c.ctx = ctx
	c.tasks.Start(ctx)

	go c.periodicLoop(ctx)
	go c.debounceLoop(ctx)
}

// RequestSync 请求一次完整同步（对账 + 去重 + 回填）。
// 返回 false 表示本次请求被跳过：上一轮尚未结束，或处于冷却期。
// 手动触发不受冷却期限制。
func (c *Coordinator) RequestSync(reason string) bool {
	if reason != ReasonManual && !c.cooldownExpired() {
		c.log.Debug("sync request within cooldown, skipping", zap.String("reason", reason))
		return false
	}

	submitted := c.tasks.TrySubmit(func() {
		c.runCycle(reason)
	})
	if !submitted {
		c.log.Debug("previous sync cycle still running, skipping", zap.String("reason", reason))
	}
	return submitted
}

// NotifyReplicationPush 通知协调器收到了其他设备的复制推送。
// 不立即反应，等静默期过后跑一轮去重和回填，避免逐条响应多记录推送。
func (c *Coordinator) NotifyReplicationPush() {
	select {
	case c.pushSignal <- struct{}{}:
	default:
	}
}

// StartupSync 启动时的同步：失败后做有限次指数退避重试，不会无限重试。
func (c *Coordinator) StartupSync(ctx context.Context) {
	backoff := time.Second
	for attempt := 1; attempt <= c.cfg.StartupRetries; attempt++ {
		c.runCycle(ReasonStartup)

		c.mu.Lock()
		lastErr := c.status.LastError
		c.mu.Unlock()
		if lastErr == "" {
			return
		}

		c.log.Warn("startup sync failed",
			zap.Int("attempt", attempt),
			zap.String("error", lastErr),
		)
		if attempt == c.cfg.StartupRetries {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
			backoff *= 2
		}
	}
}

// Status 返回当前同步状态。
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()

	status := c.status
	status.Running = c.running
	if c.status.LastResults != nil {
		results := make(map[string]*ReconcileResult, len(c.status.LastResults))
		for zone, result := range c.status.LastResults {
			copied := *result
			results[zone] = &copied
		}
		status.LastResults = results
	}
	return status
}

// KnownForwardAddresses 透出对账引擎收集的转发目标。
func (c *Coordinator) KnownForwardAddresses() []string {
	return c.reconciler.KnownForwardAddresses()
}

func (c *Coordinator) cooldownExpired() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.status.LastRun == nil || time.Since(*c.status.LastRun) >= c.cfg.Cooldown
}

// runCycle 执行一轮完整同步。只会在单工作协程或启动流程中运行。
func (c *Coordinator) runCycle(reason string) {
	ctx := c.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		c.log.Debug("sync cycle already running, skipping", zap.String("reason", reason))
		return
	}
	c.running = true
	c.mu.Unlock()

	started := time.Now().UTC()
	c.events.PublishSyncEvent("sync_started", map[string]string{"reason": reason})

	results := make(map[string]*ReconcileResult, len(c.cfg.Zones))
	var firstErr error
	changed := false

	// 对账按区域顺序执行，写入全部落地后才轮到去重
	for _, zoneID := range c.cfg.Zones {
		result, err := c.reconciler.Reconcile(ctx, zoneID)
		if result != nil {
			results[zoneID] = result
			if result.Created+result.Updated+result.Deleted > 0 {
				changed = true
			}
			if c.metrics != nil {
				c.metrics.RulesFetched.WithLabelValues(zoneID).Set(float64(result.Usable))
			}
		}
		if err != nil {
			c.log.Error("reconciliation failed",
				zap.String("zone_id", zoneID),
				zap.String("reason", reason),
				zap.Error(err),
			)
			if c.metrics != nil {
				c.metrics.CloudflareErrors.WithLabelValues(cloudflare.ErrorKind(err)).Inc()
			}
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	// 去重与回填是自愈的后台步骤，失败只记日志，等下一轮补救
	removed, err := c.dedup.Run()
	if err != nil {
		c.log.Warn("deduplication failed", zap.Error(err))
	} else if removed > 0 {
		changed = true
		c.events.PublishSyncEvent("duplicates_removed", map[string]int{"count": removed})
		if c.metrics != nil {
			c.metrics.DuplicatesRemoved.Add(float64(removed))
		}
	}

	enriched, err := c.backfill.Run(ctx)
	if err != nil {
		c.log.Warn("metadata backfill failed", zap.Error(err))
	} else if enriched > 0 {
		changed = true
		if c.metrics != nil {
			c.metrics.BackfillEnriched.Add(float64(enriched))
		}
	}

	finished := time.Now().UTC()

	c.mu.Lock()
	c.running = false
	c.status.LastRun = &finished
	c.status.LastResults = results
	c.status.DuplicatesRemoved = removed
	if firstErr != nil {
		c.status.LastError = firstErr.Error()
	} else {
		c.status.LastError = ""
	}
	c.mu.Unlock()

	outcome := "success"
	if firstErr != nil {
		outcome = "error"
	}
	if c.metrics != nil {
		c.metrics.SyncRunsTotal.WithLabelValues(reason, outcome).Inc()
		c.metrics.SyncDuration.Observe(finished.Sub(started).Seconds())
	}

	c.events.PublishSyncEvent("sync_completed", map[string]interface{}{
		"reason":  reason,
		"outcome": outcome,
		"changed": changed,
	})
	if changed {
		c.events.PublishSyncEvent("aliases_changed", nil)
	}
}

// periodicLoop 周期触发。上一轮未结束时整个周期被跳过，不排队。
func (c *Coordinator) periodicLoop(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.RequestSync(ReasonPeriodic)
		}
	}
}

// debounceLoop 复制推送去抖：静默期内的连续推送合并为一次处理。
func (c *Coordinator) debounceLoop(ctx context.Context) {
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return
		case <-c.pushSignal:
			if timer == nil {
				timer = time.NewTimer(c.cfg.Debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(c.cfg.Debounce)
			}
		case <-timerC:
			timer = nil
			timerC = nil
			c.tasks.TrySubmit(func() {
				if removed, err := c.dedup.Run(); err == nil && removed > 0 {
					c.events.PublishSyncEvent("duplicates_removed", map[string]int{"count": removed})
				}
				if enriched, err := c.backfill.Run(c.ctx); err == nil && enriched > 0 {
					c.events.PublishSyncEvent("aliases_changed", nil)
				}
			})
		}
	}
}
