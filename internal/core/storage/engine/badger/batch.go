package badger

import (
	"github.com/dgraph-io/badger/v4"

	"github.com/dep2p/go-home/internal/core/storage/engine"
)

// WriteBatch BadgerDB 批量写入
type WriteBatch struct {
	eng       *Engine
	wb        *badger.WriteBatch
	ops       int
	writes    int64
	deletes   int64
	cancelled bool
	err       error
}

// Put 添加写入操作
func (b *WriteBatch) Put(key, value []byte) {
	if b.cancelled || len(key) == 0 {
		return
	}
	if err := b.wb.Set(key, value); err != nil && b.err == nil {
		b.err = err
	}
	b.ops++
	b.writes++
}

// Delete 添加删除操作
func (b *WriteBatch) Delete(key []byte) {
	if b.cancelled || len(key) == 0 {
		return
	}
	if err := b.wb.Delete(key); err != nil && b.err == nil {
		b.err = err
	}
	b.ops++
	b.deletes++
}

// Write 提交批量写入
func (b *WriteBatch) Write() error {
	if b.cancelled {
		return engine.ErrBatchCancelled
	}
	if b.eng.closed.Load() {
		return engine.ErrClosed
	}
	if b.err != nil {
		err := b.err
		b.reset()
		return convertError(err)
	}
	if err := b.wb.Flush(); err != nil {
		b.reset()
		return convertError(err)
	}
	b.eng.stats.writes.Add(b.writes)
	b.eng.stats.deletes.Add(b.deletes)
	b.reset()
	return nil
}

// reset 提交后 badger.WriteBatch 不能复用，换一个新的
func (b *WriteBatch) reset() {
	b.wb.Cancel()
	b.wb = b.eng.db.NewWriteBatch()
	b.ops, b.writes, b.deletes, b.err = 0, 0, 0, nil
}

// Size 返回未提交的操作数
func (b *WriteBatch) Size() int { return b.ops }

// Cancel 丢弃批量写入
func (b *WriteBatch) Cancel() {
	if b.cancelled {
		return
	}
	b.cancelled = true
	b.wb.Cancel()
}

var _ engine.Batch = (*WriteBatch)(nil)
