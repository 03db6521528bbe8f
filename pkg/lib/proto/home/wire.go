// Package home 实现 home 协议的线路消息编解码
//
// 字段编号与 home.proto 一致。编码确定性：字段按编号升序写出，
// 零值标量与空字节省略；解码跳过未知字段。
package home

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/dep2p/go-home/pkg/types"
)

// ====== 编码辅助 ======

func appendBytes(b []byte, num protowire.Number, v []byte) []byte {
	if len(v) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendString(b []byte, num protowire.Number, v string) []byte {
	if v == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, v)
}

func appendUvarint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendSint(b []byte, num protowire.Number, v int64) []byte {
	return appendUvarint(b, num, protowire.EncodeZigZag(v))
}

// appendMessage 写入嵌套消息，空消息也会写出以表达 oneof 分支
func appendMessage(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

// ====== 解码辅助 ======

// reader 顺序读取字段，出错后所有读取变为空操作
type reader struct {
	msg string
	b   []byte
	err error
}

func newReader(msg string, b []byte) *reader {
	return &reader{msg: msg, b: b}
}

func (r *reader) fail(reason string, code int) {
	if r.err != nil {
		return
	}
	var cause error
	if code < 0 {
		cause = protowire.ParseError(code)
	}
	r.err = &types.FormatError{Field: r.msg, Reason: reason, Cause: cause}
	r.b = nil
}

// next 读取下一个字段标签，没有更多字段或已出错时返回 false
func (r *reader) next() (protowire.Number, protowire.Type, bool) {
	if r.err != nil || len(r.b) == 0 {
		return 0, 0, false
	}
	num, typ, n := protowire.ConsumeTag(r.b)
	if n < 0 {
		r.fail("bad tag", n)
		return 0, 0, false
	}
	r.b = r.b[n:]
	return num, typ, true
}

func (r *reader) bytes(typ protowire.Type) []byte {
	if typ != protowire.BytesType {
		r.fail("expected length-delimited field", 0)
		return nil
	}
	v, n := protowire.ConsumeBytes(r.b)
	if n < 0 {
		r.fail("truncated bytes", n)
		return nil
	}
	r.b = r.b[n:]
	return append([]byte(nil), v...)
}

func (r *reader) string(typ protowire.Type) string {
	return string(r.bytes(typ))
}

func (r *reader) uvarint(typ protowire.Type) uint64 {
	if typ != protowire.VarintType {
		r.fail("expected varint field", 0)
		return 0
	}
	v, n := protowire.ConsumeVarint(r.b)
	if n < 0 {
		r.fail("truncated varint", n)
		return 0
	}
	r.b = r.b[n:]
	return v
}

func (r *reader) sint(typ protowire.Type) int64 {
	return protowire.DecodeZigZag(r.uvarint(typ))
}

func (r *reader) skip(num protowire.Number, typ protowire.Type) {
	n := protowire.ConsumeFieldValue(num, typ, r.b)
	if n < 0 {
		r.fail(fmt.Sprintf("bad field %d", num), n)
		return
	}
	r.b = r.b[n:]
}

func (r *reader) done() error {
	return r.err
}

// fieldFunc 处理一个字段；未知字段应调用 r.skip
type fieldFunc func(r *reader, num protowire.Number, typ protowire.Type)

// message 读取一个嵌套消息并逐字段交给 fn
func (r *reader) message(typ protowire.Type, name string, fn fieldFunc) {
	data := r.bytes(typ)
	if r.err != nil {
		return
	}
	if err := decode(name, data, fn); err != nil {
		r.err = err
		r.b = nil
	}
}

// decode 逐字段解码 data
func decode(name string, data []byte, fn fieldFunc) error {
	r := newReader(name, data)
	for num, typ, ok := r.next(); ok; num, typ, ok = r.next() {
		fn(r, num, typ)
	}
	return r.done()
}
