package home

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-home/pkg/types"
)

// FrameKind 帧类型
type FrameKind uint32

const (
	FrameUnknown FrameKind = iota
	FrameRequest
	FrameResponse
	FrameError
	FrameCancel
	FramePing
	FramePong
	FrameClose
)

// String 返回帧类型名称
func (k FrameKind) String() string {
	switch k {
	case FrameRequest:
		return "request"
	case FrameResponse:
		return "response"
	case FrameError:
		return "error"
	case FrameCancel:
		return "cancel"
	case FramePing:
		return "ping"
	case FramePong:
		return "pong"
	case FrameClose:
		return "close"
	default:
		return fmt.Sprintf("frame(%d)", uint32(k))
	}
}

// Frame 多路复用帧
//
// ID 对 Request/Response/Error/Cancel 是请求 ID，对 Ping/Pong 是序号。
// Codes 只出现在 Error 与 Close 帧中。
type Frame struct {
	Kind    FrameKind
	ID      uint64
	Codes   []types.ErrorCode
	Payload []byte
}

// Marshal 编码帧
func (f *Frame) Marshal() []byte {
	b := make([]byte, 0, 16+len(f.Payload))
	b = appendUvarint(b, 1, uint64(f.Kind))
	b = appendUvarint(b, 2, f.ID)
	for _, c := range f.Codes {
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(c))
	}
	b = appendBytes(b, 4, f.Payload)
	return b
}

// UnmarshalFrame 解码帧
func UnmarshalFrame(data []byte) (*Frame, error) {
	f := &Frame{}
	err := decode("frame", data, func(r *reader, num protowire.Number, typ protowire.Type) {
		switch num {
		case 1:
			f.Kind = FrameKind(r.uvarint(typ))
		case 2:
			f.ID = r.uvarint(typ)
		case 3:
			if typ == protowire.BytesType {
				// packed 编码
				packed := r.bytes(typ)
				for len(packed) > 0 {
					v, n := protowire.ConsumeVarint(packed)
					if n < 0 {
						r.fail("bad packed code", n)
						return
					}
					f.Codes = append(f.Codes, types.ErrorCode(v))
					packed = packed[n:]
				}
				return
			}
			f.Codes = append(f.Codes, types.ErrorCode(r.uvarint(typ)))
		case 4:
			f.Payload = r.bytes(typ)
		default:
			r.skip(num, typ)
		}
	})
	if err != nil {
		return nil, err
	}
	if f.Kind == FrameUnknown || f.Kind > FrameClose {
		return nil, &types.FormatError{Field: "frame.kind", Reason: f.Kind.String()}
	}
	return f, nil
}

// Err 将 Error/Close 帧转换为 RemoteError
func (f *Frame) Err() error {
	return &types.RemoteError{Codes: f.Codes, Message: string(f.Payload)}
}

// ErrorFrame 构造携带 err 的 Error 帧
func ErrorFrame(id uint64, err error) *Frame {
	re := types.NewRemoteError(err)
	return &Frame{Kind: FrameError, ID: id, Codes: re.Codes, Payload: []byte(re.Message)}
}
