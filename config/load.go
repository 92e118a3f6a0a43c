package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// ============================================================================
//                              环境变量
// ============================================================================

// EnvPrefix 环境变量前缀
const EnvPrefix = "CHAINNET_"

const (
	EnvKeyFile      = "KEY_FILE"
	EnvListenAddrs  = "LISTEN_ADDRS"
	EnvGenesisHash  = "GENESIS_HASH"
	EnvForkID       = "FORK_ID"
	EnvProtocolID   = "PROTOCOL_ID"
	EnvBootNodes    = "BOOT_NODES"
	EnvEnableMDNS   = "ENABLE_MDNS"
	EnvMetricsAddr  = "METRICS_ADDR"
	EnvReservedOnly = "RESERVED_ONLY"
)

// ============================================================================
//                              加载
// ============================================================================

// Load 从文件加载配置，按扩展名选择格式
//
// 支持 .json、.yaml/.yml、.toml。文件中未出现的字段保持默认值。
// 加载后应用 CHAINNET_ 环境变量覆盖并校验。
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // G304: 用户指定的配置文件路径是预期行为
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg *Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		cfg, err = FromJSON(data)
	case ".yaml", ".yml":
		cfg, err = FromYAML(data)
	case ".toml":
		cfg, err = FromTOML(data)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, path)
	}
	if err != nil {
		return nil, err
	}

	ApplyEnv(cfg, os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromJSON 从 JSON 数据创建配置
func FromJSON(data []byte) (*Config, error) {
	cfg := NewConfig()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// FromYAML 从 YAML 数据创建配置
func FromYAML(data []byte) (*Config, error) {
	cfg := NewConfig()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return cfg, nil
}

// FromTOML 从 TOML 数据创建配置
func FromTOML(data []byte) (*Config, error) {
	cfg := NewConfig()
	md, err := toml.Decode(string(data), cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%w: unknown key %s", ErrInvalidConfig, undecoded[0])
	}
	return cfg, nil
}

// ApplyEnv 应用环境变量覆盖
//
// 环境变量优先级高于配置文件，但低于命令行参数。
// lookup 通常为 os.LookupEnv，测试中可替换。
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		if !ok || strings.TrimSpace(v) == "" {
			return "", false
		}
		return strings.TrimSpace(v), true
	}

	if v, ok := get(EnvKeyFile); ok {
		cfg.Identity.KeyFile = v
	}
	if v, ok := get(EnvListenAddrs); ok {
		cfg.Network.ListenAddrs = splitAndTrim(v, ",")
	}
	if v, ok := get(EnvGenesisHash); ok {
		cfg.Network.GenesisHash = v
	}
	if v, ok := get(EnvForkID); ok {
		cfg.Network.ForkID = v
	}
	if v, ok := get(EnvProtocolID); ok {
		cfg.Network.ProtocolID = v
	}

	// CHAINNET_BOOT_NODES: 逗号分隔的 /p2p 完整地址
	if v, ok := get(EnvBootNodes); ok {
		cfg.Network.BootNodes = parseBootNodes(splitAndTrim(v, ","))
	}
	if v, ok := get(EnvEnableMDNS); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Discovery.EnableMDNS = b
		}
	}
	if v, ok := get(EnvMetricsAddr); ok {
		cfg.Metrics.Enable = true
		cfg.Metrics.ListenAddr = v
	}
	if v, ok := get(EnvReservedOnly); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Network.ReservedOnly = b
		}
	}
}

// ============================================================================
//                              辅助函数
// ============================================================================

func splitAndTrim(s, sep string) []string {
	parts := strings.Split(s, sep)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parseBootNodes 将 ".../p2p/<id>" 形式的地址按节点分组
func parseBootNodes(addrs []string) []KnownPeer {
	var out []KnownPeer
	index := make(map[string]int)
	for _, a := range addrs {
		i := strings.LastIndex(a, "/p2p/")
		if i < 0 {
			continue
		}
		id, base := a[i+len("/p2p/"):], a[:i]
		j, ok := index[id]
		if !ok {
			j = len(out)
			index[id] = j
			out = append(out, KnownPeer{PeerID: id})
		}
		if base != "" {
			out[j].Addrs = append(out[j].Addrs, base)
		}
	}
	return out
}
