package chainnet

import (
	"errors"
	"fmt"

	"github.com/dep2p/go-chainnet/config"
)

// Option 用户配置选项函数
type Option func(*options) error

// options 内部选项结构
//
// base 之上的字段只在显式设置时覆盖。
type options struct {
	base *config.Config

	listenAddrs  []string
	genesis      string
	forkID       *string
	protocolID   string
	roles        string
	keyFile      string
	bootNodes    []config.KnownPeer
	reserved     []string
	reservedOnly *bool
	protocols    []config.ProtocolConfig
	mdns         *bool
	metricsAddr  string
}

// WithConfig 使用完整配置作为基础，其余选项在其上覆盖
func WithConfig(cfg *config.Config) Option {
	return func(o *options) error {
		if cfg == nil {
			return errors.New("config is nil")
		}
		o.base = cfg
		return nil
	}
}

// WithConfigFile 从文件加载基础配置（.json / .yaml / .toml）
func WithConfigFile(path string) Option {
	return func(o *options) error {
		cfg, err := config.Load(path)
		if err != nil {
			return err
		}
		o.base = cfg
		return nil
	}
}

// WithListenAddrs 设置监听地址
func WithListenAddrs(addrs ...string) Option {
	return func(o *options) error {
		o.listenAddrs = append([]string(nil), addrs...)
		return nil
	}
}

// WithGenesis 设置创世块哈希（十六进制）
func WithGenesis(hash string) Option {
	return func(o *options) error {
		o.genesis = hash
		return nil
	}
}

// WithForkID 设置分叉标识
func WithForkID(forkID string) Option {
	return func(o *options) error {
		o.forkID = &forkID
		return nil
	}
}

// WithProtocolID 设置旧式协议标识
func WithProtocolID(id string) Option {
	return func(o *options) error {
		o.protocolID = id
		return nil
	}
}

// WithRoles 设置本节点角色（full / light / authority）
func WithRoles(roles string) Option {
	return func(o *options) error {
		o.roles = roles
		return nil
	}
}

// WithIdentityKeyFile 设置密钥文件，不存在时生成并保存
func WithIdentityKeyFile(path string) Option {
	return func(o *options) error {
		o.keyFile = path
		return nil
	}
}

// WithBootNodes 追加启动节点
func WithBootNodes(peers ...config.KnownPeer) Option {
	return func(o *options) error {
		o.bootNodes = append(o.bootNodes, peers...)
		return nil
	}
}

// WithReservedPeers 追加默认协议的保留节点（须带 /p2p）
func WithReservedPeers(addrs ...string) Option {
	return func(o *options) error {
		o.reserved = append(o.reserved, addrs...)
		return nil
	}
}

// WithReservedOnly 设置默认协议是否只接受保留节点
func WithReservedOnly(enable bool) Option {
	return func(o *options) error {
		o.reservedOnly = &enable
		return nil
	}
}

// WithRequestResponseProtocol 注册请求-响应协议
func WithRequestResponseProtocol(p config.ProtocolConfig) Option {
	return func(o *options) error {
		if p.Name == "" {
			return errors.New("protocol name is empty")
		}
		o.protocols = append(o.protocols, p)
		return nil
	}
}

// WithMDNS 启用或关闭局域网发现
func WithMDNS(enable bool) Option {
	return func(o *options) error {
		o.mdns = &enable
		return nil
	}
}

// WithMetrics 在 addr 上启动 /metrics 服务
func WithMetrics(addr string) Option {
	return func(o *options) error {
		if addr == "" {
			return errors.New("metrics addr is empty")
		}
		o.metricsAddr = addr
		return nil
	}
}

// buildConfig 合并选项并校验
func buildConfig(opts ...Option) (*config.Config, error) {
	o := &options{}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("apply option: %w", err)
		}
	}

	cfg := o.base
	if cfg == nil {
		cfg = config.NewConfig()
	}

	if len(o.listenAddrs) > 0 {
		cfg.Network.ListenAddrs = o.listenAddrs
	}
	if o.genesis != "" {
		cfg.Network.GenesisHash = o.genesis
	}
	if o.forkID != nil {
		cfg.Network.ForkID = *o.forkID
	}
	if o.protocolID != "" {
		cfg.Network.ProtocolID = o.protocolID
	}
	if o.roles != "" {
		cfg.Network.Roles = o.roles
	}
	if o.keyFile != "" {
		cfg.Identity.KeyFile = o.keyFile
	}
	cfg.Network.BootNodes = append(cfg.Network.BootNodes, o.bootNodes...)
	cfg.Network.ReservedPeers = append(cfg.Network.ReservedPeers, o.reserved...)
	if o.reservedOnly != nil {
		cfg.Network.ReservedOnly = *o.reservedOnly
	}
	cfg.RequestResponse.Protocols = append(cfg.RequestResponse.Protocols, o.protocols...)
	if o.mdns != nil {
		cfg.Discovery.EnableMDNS = *o.mdns
	}
	if o.metricsAddr != "" {
		cfg.Metrics.Enable = true
		cfg.Metrics.ListenAddr = o.metricsAddr
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
