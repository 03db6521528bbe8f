package types

import (
	"strconv"

	ma "github.com/multiformats/go-multiaddr"
)

// ============================================================================
//                              Address
// ============================================================================

// 传输名称，与 Address.Transport 的返回值一致
const (
	TransportTCP       = "tcp"
	TransportWebSocket = "ws"
	TransportQUIC      = "quic-v1"
)

// Address 自描述的网络端点
//
// 底层是 multiaddr。合法形式：
//   - /{ip4|ip6|dns|dns4|dns6}/<host>/tcp/<port>
//   - /{ip4|ip6|dns|dns4|dns6}/<host>/tcp/<port>/ws
//   - /{ip4|ip6|dns|dns4|dns6}/<host>/udp/<port>/quic-v1
//
// 创建后不可变，零值表示空地址。
type Address struct {
	m         ma.Multiaddr
	transport string
}

// ParseAddress 解析 multiaddr 文本
func ParseAddress(s string) (Address, error) {
	if s == "" {
		return Address{}, formatErr("address", "empty", nil)
	}
	m, err := ma.NewMultiaddr(s)
	if err != nil {
		return Address{}, formatErr("address", "not a multiaddr", err)
	}
	return NewAddress(m)
}

// MustParseAddress 解析地址，失败时 panic（仅用于常量与测试）
func MustParseAddress(s string) Address {
	a, err := ParseAddress(s)
	if err != nil {
		panic(err)
	}
	return a
}

// AddressFromBytes 解析二进制 multiaddr
func AddressFromBytes(b []byte) (Address, error) {
	if len(b) == 0 {
		return Address{}, formatErr("address", "empty", nil)
	}
	m, err := ma.NewMultiaddrBytes(b)
	if err != nil {
		return Address{}, formatErr("address", "not a multiaddr", err)
	}
	return NewAddress(m)
}

// NewAddress 校验并包装 multiaddr
func NewAddress(m ma.Multiaddr) (Address, error) {
	if m == nil {
		return Address{}, formatErr("address", "empty", nil)
	}
	protos := m.Protocols()
	if len(protos) < 2 {
		return Address{}, formatErr("address", "missing host or transport", nil)
	}

	switch protos[0].Code {
	case ma.P_IP4, ma.P_IP6, ma.P_DNS, ma.P_DNS4, ma.P_DNS6:
	default:
		return Address{}, formatErr("address.host", "unsupported protocol "+protos[0].Name, nil)
	}

	var transport string
	switch {
	case len(protos) == 2 && protos[1].Code == ma.P_TCP:
		transport = TransportTCP
	case len(protos) == 3 && protos[1].Code == ma.P_TCP && protos[2].Code == ma.P_WS:
		transport = TransportWebSocket
	case len(protos) == 3 && protos[1].Code == ma.P_UDP && protos[2].Code == ma.P_QUIC_V1:
		transport = TransportQUIC
	default:
		return Address{}, formatErr("address.transport", "unsupported shape "+m.String(), nil)
	}
	return Address{m: m, transport: transport}, nil
}

// Multiaddr 返回底层 multiaddr
func (a Address) Multiaddr() ma.Multiaddr { return a.m }

// Transport 返回传输名称：tcp、ws 或 quic-v1
func (a Address) Transport() string { return a.transport }

// IsEmpty 是否为零值
func (a Address) IsEmpty() bool { return a.m == nil }

// Bytes 返回二进制 multiaddr
func (a Address) Bytes() []byte {
	if a.m == nil {
		return nil
	}
	return a.m.Bytes()
}

// String 返回 multiaddr 文本
func (a Address) String() string {
	if a.m == nil {
		return ""
	}
	return a.m.String()
}

// Equal 比较两个地址
func (a Address) Equal(other Address) bool {
	if a.m == nil || other.m == nil {
		return a.m == nil && other.m == nil
	}
	return a.m.Equal(other.m)
}

// Host 返回主机部分（IP 或域名）
func (a Address) Host() string {
	if a.m == nil {
		return ""
	}
	for _, code := range []int{ma.P_IP4, ma.P_IP6, ma.P_DNS, ma.P_DNS4, ma.P_DNS6} {
		if v, err := a.m.ValueForProtocol(code); err == nil {
			return v
		}
	}
	return ""
}

// Port 返回端口号
func (a Address) Port() int {
	if a.m == nil {
		return 0
	}
	code := ma.P_TCP
	if a.transport == TransportQUIC {
		code = ma.P_UDP
	}
	v, err := a.m.ValueForProtocol(code)
	if err != nil {
		return 0
	}
	port, _ := strconv.Atoi(v) //nolint:errcheck // multiaddr 已校验端口
	return port
}

// MarshalText 实现 encoding.TextMarshaler
func (a Address) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText 实现 encoding.TextUnmarshaler
func (a *Address) UnmarshalText(text []byte) error {
	parsed, err := ParseAddress(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseAddresses 解析一组地址，遇到第一个错误即返回
func ParseAddresses(ss []string) ([]Address, error) {
	out := make([]Address, 0, len(ss))
	for _, s := range ss {
		a, err := ParseAddress(s)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}
