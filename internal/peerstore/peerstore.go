// Package peerstore 实现内存中的节点信誉存储
//
// 信誉值随时间向零指数衰减（每秒 1/50，至少 1），低于封禁阈值的节点
// 通过 OnBanned 回调断开。存储容量由 LRU 限定，不跨重启持久化。
package peerstore

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dep2p/go-chainnet/internal/metrics"
	"github.com/dep2p/go-chainnet/internal/util/logger"
	"github.com/dep2p/go-chainnet/pkg/types"
)

var log = logger.Logger("peerstore")

const (
	// DefaultCapacity 默认容量
	DefaultCapacity = 4096

	// DefaultBanThreshold 封禁阈值：math.MinInt32 的 71%
	DefaultBanThreshold int32 = math.MinInt32 / 100 * 71

	// decayDivisor 每秒衰减比例的倒数
	decayDivisor = 50

	// latencyWeight 延迟 EWMA 的权重倒数，新样本占 1/5
	latencyWeight = 5
)

// ErrInvalidConfig 配置无效
var ErrInvalidConfig = errors.New("peerstore: invalid config")

// Config 存储配置
type Config struct {
	Capacity     int
	BanThreshold int32
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{Capacity: DefaultCapacity, BanThreshold: DefaultBanThreshold}
}

// Validate 验证配置
func (c Config) Validate() error {
	if c.Capacity <= 0 || c.BanThreshold >= 0 {
		return ErrInvalidConfig
	}
	return nil
}

// Option 存储选项
type Option func(*Store)

// WithClock 设置时钟
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// WithMetrics 设置指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Store) { s.metrics = m }
}

// WithOnBanned 设置封禁回调，在锁外调用
func WithOnBanned(fn func(types.PeerID)) Option {
	return func(s *Store) { s.onBanned = fn }
}

type entry struct {
	reputation int32
	updated    time.Time
	role       types.ObservedRole
	hasRole    bool
	latency    time.Duration
	banned     bool
}

// Store 节点信誉存储
type Store struct {
	cfg      Config
	clock    clock.Clock
	metrics  *metrics.Metrics
	onBanned func(types.PeerID)

	mu    sync.Mutex
	peers *lru.Cache[types.PeerID, *entry]
}

// New 创建存储
func New(cfg Config, opts ...Option) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cache, err := lru.New[types.PeerID, *entry](cfg.Capacity)
	if err != nil {
		return nil, err
	}
	s := &Store{cfg: cfg, clock: clock.New(), peers: cache}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SetOnBanned 设置封禁回调（组装阶段使用）
func (s *Store) SetOnBanned(fn func(types.PeerID)) {
	s.mu.Lock()
	s.onBanned = fn
	s.mu.Unlock()
}

// PeerCount 已知节点数
func (s *Store) PeerCount() int {
	return s.peers.Len()
}

// AddKnownPeer 登记节点
func (s *Store) AddKnownPeer(p types.PeerID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ensureLocked(p)
}

// PeerRole 节点角色
func (s *Store) PeerRole(p types.PeerID) (types.ObservedRole, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.peers.Peek(p)
	if !ok || !e.hasRole {
		return types.RoleUnknown, false
	}
	return e.role, true
}

// SetPeerRole 记录握手得到的角色
func (s *Store) SetPeerRole(p types.PeerID, role types.ObservedRole) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.ensureLocked(p)
	e.role = role
	e.hasRole = true
}

// ReportPeer 应用信誉调整
func (s *Store) ReportPeer(p types.PeerID, change types.ReputationChange) {
	s.mu.Lock()
	e := s.ensureLocked(p)
	s.decayLocked(e)

	if change.IsFatal() {
		e.reputation = math.MinInt32
	} else {
		e.reputation = saturatingAdd(e.reputation, change.Value)
	}

	banned := false
	if e.reputation < s.cfg.BanThreshold && !e.banned {
		e.banned = true
		banned = true
	}
	rep := e.reputation
	onBanned := s.onBanned
	s.mu.Unlock()

	if !banned {
		return
	}

	log.Info("节点信誉过低，断开连接",
		"peer", logger.ShortPeer(p),
		"reputation", rep,
		"reason", change.Reason)
	s.metrics.PeerBanned()
	if onBanned != nil {
		onBanned(p)
	}
}

// PeerReputation 当前（已衰减的）信誉值
func (s *Store) PeerReputation(p types.PeerID) int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.peers.Peek(p)
	if !ok {
		return 0
	}
	s.decayLocked(e)
	return e.reputation
}

// IsBanned 节点当前是否低于封禁阈值
func (s *Store) IsBanned(p types.PeerID) bool {
	return s.PeerReputation(p) < s.cfg.BanThreshold
}

// RecordLatency 记录 ping 延迟
func (s *Store) RecordLatency(p types.PeerID, rtt time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.ensureLocked(p)
	if e.latency == 0 {
		e.latency = rtt
		return
	}
	e.latency = (rtt + (latencyWeight-1)*e.latency) / latencyWeight
}

// Latency 平滑后的延迟
func (s *Store) Latency(p types.PeerID) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.peers.Peek(p)
	if !ok || e.latency == 0 {
		return 0, false
	}
	return e.latency, true
}

// Peers 已知节点
func (s *Store) Peers() []types.PeerID {
	return s.peers.Keys()
}

func (s *Store) ensureLocked(p types.PeerID) *entry {
	if e, ok := s.peers.Get(p); ok {
		return e
	}
	e := &entry{updated: s.clock.Now()}
	s.peers.Add(p, e)
	return e
}

// decayLocked 按经过的整秒数向零衰减
func (s *Store) decayLocked(e *entry) {
	now := s.clock.Now()
	secs := int64(now.Sub(e.updated) / time.Second)
	if secs <= 0 {
		return
	}
	e.updated = e.updated.Add(time.Duration(secs) * time.Second)
	e.reputation = decay(e.reputation, secs)
	if e.banned && e.reputation >= s.cfg.BanThreshold {
		e.banned = false
	}
}

func decay(rep int32, secs int64) int32 {
	for i := int64(0); i < secs && rep != 0; i++ {
		step := rep / decayDivisor
		if step == 0 {
			if rep > 0 {
				step = 1
			} else {
				step = -1
			}
		}
		rep -= step
	}
	return rep
}

func saturatingAdd(a, b int32) int32 {
	sum := int64(a) + int64(b)
	switch {
	case sum > math.MaxInt32:
		return math.MaxInt32
	case sum < math.MinInt32:
		return math.MinInt32
	default:
		return int32(sum)
	}
}
