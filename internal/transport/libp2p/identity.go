package libp2p

import (
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/libp2p/go-libp2p/core/crypto"
)

const pemTypePrivateKey = "LIBP2P PRIVATE KEY"

// ErrInvalidPEM 无效的 PEM 数据
var ErrInvalidPEM = errors.New("transport: invalid PEM data")

// ============================================================================
//                              身份密钥
// ============================================================================

// LoadOrCreateIdentity 加载节点私钥，文件不存在时生成 Ed25519 密钥并保存
//
// path 为空时只生成临时密钥。
func LoadOrCreateIdentity(path string) (crypto.PrivKey, error) {
	if path == "" {
		key, _, err := crypto.GenerateEd25519Key(rand.Reader)
		return key, err
	}

	key, err := loadPrivateKey(path)
	if err == nil {
		log.Info("已加载节点身份", "path", path)
		return key, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}

	key, _, err = crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return nil, err
	}
	if err := savePrivateKey(key, path); err != nil {
		return nil, err
	}
	log.Info("已生成节点身份", "path", path)
	return key, nil
}

func loadPrivateKey(path string) (crypto.PrivKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	block, _ := pem.Decode(data)
	if block == nil || block.Type != pemTypePrivateKey {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPEM, path)
	}
	return crypto.UnmarshalPrivateKey(block.Bytes)
}

func savePrivateKey(key crypto.PrivKey, path string) error {
	raw, err := crypto.MarshalPrivateKey(key)
	if err != nil {
		return err
	}
	data := pem.EncodeToMemory(&pem.Block{Type: pemTypePrivateKey, Bytes: raw})

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("创建密钥目录失败: %w", err)
	}
	return atomicWriteFile(path, data, 0o600)
}

// atomicWriteFile 临时文件写入后 rename，避免留下半个文件
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("写入临时文件失败: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("同步临时文件失败: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("设置文件权限失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("关闭临时文件失败: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("重命名文件失败: %w", err)
	}

	success = true
	return nil
}
