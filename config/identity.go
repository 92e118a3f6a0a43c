package config

// IdentityConfig 身份配置
type IdentityConfig struct {
	// KeyFile 密钥文件路径
	// 为空时在内存中生成临时密钥，生产环境应持久化
	KeyFile string `json:"key_file" yaml:"key_file" toml:"key_file"`
}

// DefaultIdentityConfig 返回默认身份配置
func DefaultIdentityConfig() IdentityConfig {
	return IdentityConfig{}
}

// Validate 验证身份配置
func (c IdentityConfig) Validate() error {
	return nil
}
