// Package config 提供统一的配置管理
//
// 本包采用混合配置模式：
//   - 主 Config 结构体嵌入所有子配置
//   - 每个子配置在独立文件中定义，带 DefaultXxx 与 Validate
//   - 支持从 JSON、YAML、TOML 文件加载
//
// 使用示例：
//
//	cfg, err := config.Load("chainnet.yaml")
//	if err != nil {
//	    return err
//	}
//	cfg.Discovery.EnableMDNS = true
package config

// Config 是 chainnet 的完整配置结构
//
// 配置按照功能模块组织：
//   - Identity: 节点密钥
//   - Network: 监听地址、链标识、启动节点、保留节点
//   - Discovery: Kademlia、mDNS、ping
//   - RequestResponse: 请求-响应协议
//   - ConnMgr: 连接管理
//   - PeerStore: 节点信誉
//   - Metrics: 指标服务
//   - Events: 事件流
type Config struct {
	Identity        IdentityConfig        `json:"identity" yaml:"identity" toml:"identity"`
	Network         NetworkConfig         `json:"network" yaml:"network" toml:"network"`
	Discovery       DiscoveryConfig       `json:"discovery" yaml:"discovery" toml:"discovery"`
	RequestResponse RequestResponseConfig `json:"request_response" yaml:"request_response" toml:"request_response"`
	ConnMgr         ConnManagerConfig     `json:"conn_mgr" yaml:"conn_mgr" toml:"conn_mgr"`
	PeerStore       PeerStoreConfig       `json:"peer_store" yaml:"peer_store" toml:"peer_store"`
	Metrics         MetricsConfig         `json:"metrics" yaml:"metrics" toml:"metrics"`
	Events          EventsConfig          `json:"events" yaml:"events" toml:"events"`
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	return &Config{
		Identity:        DefaultIdentityConfig(),
		Network:         DefaultNetworkConfig(),
		Discovery:       DefaultDiscoveryConfig(),
		RequestResponse: DefaultRequestResponseConfig(),
		ConnMgr:         DefaultConnManagerConfig(),
		PeerStore:       DefaultPeerStoreConfig(),
		Metrics:         DefaultMetricsConfig(),
		Events:          DefaultEventsConfig(),
	}
}

// Validate 验证配置的有效性
func (c *Config) Validate() error {
	if err := c.Identity.Validate(); err != nil {
		return err
	}
	if err := c.Network.Validate(); err != nil {
		return err
	}
	if err := c.Discovery.Validate(); err != nil {
		return err
	}
	if err := c.RequestResponse.Validate(); err != nil {
		return err
	}
	if err := c.ConnMgr.Validate(); err != nil {
		return err
	}
	if err := c.PeerStore.Validate(); err != nil {
		return err
	}
	if err := c.Metrics.Validate(); err != nil {
		return err
	}
	return c.Events.Validate()
}
