package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"io"
	"strings"
)

// ============================================================================
//                              密钥类型定义
// ============================================================================

// KeyType 密钥类型
//
// 数值写入序列化头，一经发布不可更改。
type KeyType uint8

const (
	// KeyTypeUnspecified 未指定密钥类型
	KeyTypeUnspecified KeyType = 0
	// KeyTypeEd25519 Ed25519 密钥（默认）
	KeyTypeEd25519 KeyType = 2
	// KeyTypeSecp256k1 Secp256k1 密钥
	KeyTypeSecp256k1 KeyType = 3
	// KeyTypeDilithium3 Dilithium 第三安全级别密钥
	KeyTypeDilithium3 KeyType = 5
)

// String 返回密钥类型名称
func (kt KeyType) String() string {
	switch kt {
	case KeyTypeUnspecified:
		return "Unspecified"
	case KeyTypeEd25519:
		return "Ed25519"
	case KeyTypeSecp256k1:
		return "Secp256k1"
	case KeyTypeDilithium3:
		return "Dilithium3"
	default:
		return fmt.Sprintf("KeyType(%d)", uint8(kt))
	}
}

// ParseKeyType 按名称解析密钥类型（不区分大小写）
func ParseKeyType(name string) (KeyType, error) {
	for _, kt := range KeyTypes {
		if strings.EqualFold(kt.String(), name) {
			return kt, nil
		}
	}
	return KeyTypeUnspecified, fmt.Errorf("%w: %q", ErrBadKeyType, name)
}

// KeyTypes 支持的密钥类型列表
var KeyTypes = []KeyType{
	KeyTypeEd25519,
	KeyTypeSecp256k1,
	KeyTypeDilithium3,
}

// ============================================================================
//                              密钥接口定义
// ============================================================================

// Key 基础密钥接口
type Key interface {
	// Raw 返回原始密钥字节
	Raw() ([]byte, error)

	// Type 返回密钥类型
	Type() KeyType

	// Equals 比较两个密钥是否相等
	Equals(Key) bool
}

// PublicKey 公钥接口
type PublicKey interface {
	Key

	// Verify 验证 sig 是否为 data 的有效签名
	//
	// 签名格式错误时返回 (false, nil)；签名为空时返回 ErrNilSignature。
	Verify(data, sig []byte) (bool, error)
}

// PrivateKey 私钥接口
type PrivateKey interface {
	Key

	// Sign 对 data 签名
	Sign(data []byte) ([]byte, error)

	// GetPublic 返回对应的公钥
	GetPublic() PublicKey
}

// ============================================================================
//                              密钥工厂函数
// ============================================================================

// GenerateKeyPair 使用系统随机源生成密钥对
func GenerateKeyPair(keyType KeyType) (PrivateKey, PublicKey, error) {
	return GenerateKeyPairWithReader(keyType, rand.Reader)
}

// GenerateKeyPairWithReader 使用指定的随机源生成密钥对
//
// 测试中可传入确定性的 reader 以得到固定密钥。
func GenerateKeyPairWithReader(keyType KeyType, reader io.Reader) (PrivateKey, PublicKey, error) {
	switch keyType {
	case KeyTypeEd25519:
		return GenerateEd25519Key(reader)
	case KeyTypeSecp256k1:
		return GenerateSecp256k1Key(reader)
	case KeyTypeDilithium3:
		return GenerateDilithium3Key(reader)
	default:
		return nil, nil, fmt.Errorf("%w: %s", ErrBadKeyType, keyType)
	}
}

// PubKeyUnmarshaller 公钥反序列化函数
type PubKeyUnmarshaller func(data []byte) (PublicKey, error)

// PrivKeyUnmarshaller 私钥反序列化函数
type PrivKeyUnmarshaller func(data []byte) (PrivateKey, error)

// PubKeyUnmarshallers 按密钥类型注册的公钥反序列化函数
var PubKeyUnmarshallers = map[KeyType]PubKeyUnmarshaller{
	KeyTypeEd25519:    UnmarshalEd25519PublicKey,
	KeyTypeSecp256k1:  UnmarshalSecp256k1PublicKey,
	KeyTypeDilithium3: UnmarshalDilithium3PublicKey,
}

// PrivKeyUnmarshallers 按密钥类型注册的私钥反序列化函数
var PrivKeyUnmarshallers = map[KeyType]PrivKeyUnmarshaller{
	KeyTypeEd25519:    UnmarshalEd25519PrivateKey,
	KeyTypeSecp256k1:  UnmarshalSecp256k1PrivateKey,
	KeyTypeDilithium3: UnmarshalDilithium3PrivateKey,
}

// UnmarshalPublicKey 从原始字节恢复指定类型的公钥
func UnmarshalPublicKey(keyType KeyType, data []byte) (PublicKey, error) {
	um, ok := PubKeyUnmarshallers[keyType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBadKeyType, keyType)
	}
	return um(data)
}

// UnmarshalPrivateKey 从原始字节恢复指定类型的私钥
func UnmarshalPrivateKey(keyType KeyType, data []byte) (PrivateKey, error) {
	um, ok := PrivKeyUnmarshallers[keyType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrBadKeyType, keyType)
	}
	return um(data)
}

// ============================================================================
//                              辅助函数
// ============================================================================

// KeyEqual 常量时间比较两个密钥
func KeyEqual(k1, k2 Key) bool {
	if k1 == k2 {
		return true
	}
	if k1 == nil || k2 == nil || k1.Type() != k2.Type() {
		return false
	}
	b1, err1 := k1.Raw()
	b2, err2 := k2.Raw()
	if err1 != nil || err2 != nil {
		return false
	}
	return subtle.ConstantTimeCompare(b1, b2) == 1
}

// RandomBytes 生成 n 字节加密安全随机数
func RandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, err
	}
	return b, nil
}
