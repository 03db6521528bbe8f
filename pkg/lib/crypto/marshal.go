package crypto

import (
	"encoding/binary"
	"fmt"
)

// 序列化格式：
//
//	┌──────────────────────────────────────────┐
//	│  Type:   uint8 (KeyType)                 │
//	│  Length: uint32 (大端序)                  │
//	│  Data:   原始密钥字节                      │
//	└──────────────────────────────────────────┘
//
// 公钥的序列化结果即身份的公钥字节，身份 ID 由它派生。

// marshalHeaderSize 1 字节类型 + 4 字节长度
const marshalHeaderSize = 5

// MarshalPublicKey 序列化公钥
func MarshalPublicKey(key PublicKey) ([]byte, error) {
	if key == nil {
		return nil, ErrNilPublicKey
	}
	return marshalKey(key)
}

// MarshalPrivateKey 序列化私钥
func MarshalPrivateKey(key PrivateKey) ([]byte, error) {
	if key == nil {
		return nil, ErrNilPrivateKey
	}
	return marshalKey(key)
}

// UnmarshalPublicKeyBytes 反序列化公钥
//
// 数据必须恰好是一个完整的序列化公钥，尾随字节视为错误。
func UnmarshalPublicKeyBytes(data []byte) (PublicKey, error) {
	kt, raw, err := splitMarshaled(data)
	if err != nil {
		return nil, err
	}
	return UnmarshalPublicKey(kt, raw)
}

// UnmarshalPrivateKeyBytes 反序列化私钥
func UnmarshalPrivateKeyBytes(data []byte) (PrivateKey, error) {
	kt, raw, err := splitMarshaled(data)
	if err != nil {
		return nil, err
	}
	return UnmarshalPrivateKey(kt, raw)
}

func marshalKey(key Key) ([]byte, error) {
	raw, err := key.Raw()
	if err != nil {
		return nil, fmt.Errorf("marshal %s key: %w", key.Type(), err)
	}
	buf := make([]byte, marshalHeaderSize+len(raw))
	buf[0] = byte(key.Type())
	binary.BigEndian.PutUint32(buf[1:marshalHeaderSize], uint32(len(raw)))
	copy(buf[marshalHeaderSize:], raw)
	return buf, nil
}

func splitMarshaled(data []byte) (KeyType, []byte, error) {
	if len(data) < marshalHeaderSize {
		return KeyTypeUnspecified, nil, fmt.Errorf("%w: data too short", ErrUnmarshalFailed)
	}
	length := binary.BigEndian.Uint32(data[1:marshalHeaderSize])
	if uint64(len(data)-marshalHeaderSize) != uint64(length) {
		return KeyTypeUnspecified, nil, fmt.Errorf("%w: length %d does not match payload %d",
			ErrUnmarshalFailed, length, len(data)-marshalHeaderSize)
	}
	return KeyType(data[0]), data[marshalHeaderSize:], nil
}
