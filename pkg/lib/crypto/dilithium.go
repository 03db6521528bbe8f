package crypto

import (
	"crypto/subtle"
	"fmt"
	"io"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
)

// Dilithium3 密钥常量
const (
	// Dilithium3PublicKeySize 公钥大小
	Dilithium3PublicKeySize = mode3.PublicKeySize
	// Dilithium3PrivateKeySize 私钥大小
	Dilithium3PrivateKeySize = mode3.PrivateKeySize
	// Dilithium3SignatureSize 签名大小
	Dilithium3SignatureSize = mode3.SignatureSize
)

// ====== Dilithium3PublicKey ======

// Dilithium3PublicKey 后量子签名公钥
type Dilithium3PublicKey struct {
	k *mode3.PublicKey
}

func (k *Dilithium3PublicKey) Raw() ([]byte, error) { return k.k.Bytes(), nil }

func (k *Dilithium3PublicKey) Type() KeyType { return KeyTypeDilithium3 }

func (k *Dilithium3PublicKey) Equals(other Key) bool {
	dk, ok := other.(*Dilithium3PublicKey)
	if !ok {
		return KeyEqual(k, other)
	}
	return k.k.Equal(dk.k)
}

// Verify 验证签名，长度不符直接判定无效
func (k *Dilithium3PublicKey) Verify(data, sig []byte) (bool, error) {
	if len(sig) == 0 {
		return false, ErrNilSignature
	}
	if len(sig) != Dilithium3SignatureSize {
		return false, nil
	}
	return mode3.Verify(k.k, data, sig), nil
}

// ====== Dilithium3PrivateKey ======

// Dilithium3PrivateKey 后量子签名私钥
type Dilithium3PrivateKey struct {
	k *mode3.PrivateKey
}

func (k *Dilithium3PrivateKey) Raw() ([]byte, error) { return k.k.Bytes(), nil }

func (k *Dilithium3PrivateKey) Type() KeyType { return KeyTypeDilithium3 }

func (k *Dilithium3PrivateKey) Equals(other Key) bool {
	dk, ok := other.(*Dilithium3PrivateKey)
	if !ok {
		return KeyEqual(k, other)
	}
	return subtle.ConstantTimeCompare(k.k.Bytes(), dk.k.Bytes()) == 1
}

func (k *Dilithium3PrivateKey) GetPublic() PublicKey {
	return &Dilithium3PublicKey{k: k.k.Public().(*mode3.PublicKey)} //nolint:errcheck // 固定返回 *mode3.PublicKey
}

// Sign 签名数据（确定性签名）
func (k *Dilithium3PrivateKey) Sign(data []byte) ([]byte, error) {
	sig := make([]byte, Dilithium3SignatureSize)
	mode3.SignTo(k.k, data, sig)
	return sig, nil
}

// GenerateDilithium3Key 生成 Dilithium3 密钥对
func GenerateDilithium3Key(src io.Reader) (PrivateKey, PublicKey, error) {
	pub, priv, err := mode3.GenerateKey(src)
	if err != nil {
		return nil, nil, err
	}
	return &Dilithium3PrivateKey{k: priv}, &Dilithium3PublicKey{k: pub}, nil
}

// UnmarshalDilithium3PublicKey 恢复公钥
func UnmarshalDilithium3PublicKey(data []byte) (PublicKey, error) {
	if len(data) != Dilithium3PublicKeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKeySize, Dilithium3PublicKeySize, len(data))
	}
	var pk mode3.PublicKey
	if err := pk.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	return &Dilithium3PublicKey{k: &pk}, nil
}

// UnmarshalDilithium3PrivateKey 恢复私钥
func UnmarshalDilithium3PrivateKey(data []byte) (PrivateKey, error) {
	if len(data) != Dilithium3PrivateKeySize {
		return nil, fmt.Errorf("%w: expected %d bytes, got %d", ErrInvalidKeySize, Dilithium3PrivateKeySize, len(data))
	}
	var sk mode3.PrivateKey
	if err := sk.UnmarshalBinary(data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPrivateKey, err)
	}
	return &Dilithium3PrivateKey{k: &sk}, nil
}
