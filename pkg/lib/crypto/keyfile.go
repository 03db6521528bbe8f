package crypto

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/mr-tron/base58"
)

// 密钥文件为单行 base58 文本，内容是 MarshalPrivateKey 的输出。

// keyFileMode 私钥文件权限
const keyFileMode = 0o600

// WriteKeyFile 将私钥写入文件
//
// 文件以 0600 权限创建，父目录不存在时自动创建。
func WriteKeyFile(path string, key PrivateKey) error {
	data, err := MarshalPrivateKey(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create key dir: %w", err)
	}
	return os.WriteFile(path, []byte(base58.Encode(data)+"\n"), keyFileMode)
}

// ReadKeyFile 从文件读取私钥
func ReadKeyFile(path string) (PrivateKey, error) {
	text, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	data, err := base58.Decode(strings.TrimSpace(string(text)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyFile, err)
	}
	key, err := UnmarshalPrivateKeyBytes(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidKeyFile, err)
	}
	return key, nil
}

// LoadOrGenerateKeyFile 读取密钥文件，文件不存在时生成新密钥并写入
//
// 返回的 bool 表示是否新生成。
func LoadOrGenerateKeyFile(path string, keyType KeyType) (PrivateKey, bool, error) {
	key, err := ReadKeyFile(path)
	if err == nil {
		return key, false, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, false, err
	}

	key, _, err = GenerateKeyPair(keyType)
	if err != nil {
		return nil, false, err
	}
	if err := WriteKeyFile(path, key); err != nil {
		return nil, false, err
	}
	return key, true, nil
}
