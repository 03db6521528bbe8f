package kv

import (
	"encoding/json"
	"fmt"

	"github.com/dep2p/go-home/internal/core/storage/engine"
)

// Store 带前缀隔离的 KV 存储
type Store struct {
	engine engine.Engine
	prefix []byte
}

// New 创建以 prefix 为命名空间的 Store
func New(eng engine.Engine, prefix []byte) *Store {
	return &Store{engine: eng, prefix: append([]byte(nil), prefix...)}
}

func (s *Store) prefixKey(key []byte) []byte {
	k := make([]byte, 0, len(s.prefix)+len(key))
	k = append(k, s.prefix...)
	return append(k, key...)
}

func (s *Store) stripPrefix(key []byte) []byte {
	if len(key) < len(s.prefix) {
		return key
	}
	return key[len(s.prefix):]
}

// ============================================================================
//                              基础操作
// ============================================================================

// Get 获取值，不存在时返回 engine.ErrNotFound
func (s *Store) Get(key []byte) ([]byte, error) {
	return s.engine.Get(s.prefixKey(key))
}

// Put 设置键值对
func (s *Store) Put(key, value []byte) error {
	return s.engine.Put(s.prefixKey(key), value)
}

// Delete 删除键
func (s *Store) Delete(key []byte) error {
	return s.engine.Delete(s.prefixKey(key))
}

// Has 检查键是否存在
func (s *Store) Has(key []byte) (bool, error) {
	return s.engine.Has(s.prefixKey(key))
}

// GetJSON 获取并反序列化 JSON 值
func (s *Store) GetJSON(key []byte, v interface{}) error {
	data, err := s.Get(key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", engine.ErrCorrupted, key, err)
	}
	return nil
}

// PutJSON 序列化并存储 JSON 值
func (s *Store) PutJSON(key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.Put(key, data)
}

// ============================================================================
//                              扫描
// ============================================================================

// PrefixScan 按键序遍历 subPrefix 下的键值对，fn 返回 false 时停止
//
// 传给 fn 的键已去掉 Store 前缀。
func (s *Store) PrefixScan(subPrefix []byte, fn func(key, value []byte) bool) error {
	it := s.engine.NewPrefixIterator(s.prefixKey(subPrefix))
	defer it.Close()
	for it.First(); it.Valid(); it.Next() {
		if !fn(s.stripPrefix(it.Key()), it.Value()) {
			break
		}
	}
	return it.Error()
}

// Keys 返回 subPrefix 下的全部键
func (s *Store) Keys(subPrefix []byte) ([][]byte, error) {
	var keys [][]byte
	err := s.PrefixScan(subPrefix, func(key, _ []byte) bool {
		keys = append(keys, key)
		return true
	})
	return keys, err
}

// Count 返回 subPrefix 下的键数量
func (s *Store) Count(subPrefix []byte) (int, error) {
	n := 0
	err := s.PrefixScan(subPrefix, func(_, _ []byte) bool {
		n++
		return true
	})
	return n, err
}

// DeletePrefix 原子删除 subPrefix 下的全部键
func (s *Store) DeletePrefix(subPrefix []byte) error {
	keys, err := s.Keys(subPrefix)
	if err != nil || len(keys) == 0 {
		return err
	}
	b := s.NewBatch()
	for _, k := range keys {
		b.Delete(k)
	}
	return b.Write()
}

// ============================================================================
//                              批量写入
// ============================================================================

// Batch 带前缀的批量写入
type Batch struct {
	store *Store
	batch engine.Batch
}

// NewBatch 创建批量写入
func (s *Store) NewBatch() *Batch {
	return &Batch{store: s, batch: s.engine.NewBatch()}
}

// Put 添加写入
func (b *Batch) Put(key, value []byte) {
	b.batch.Put(b.store.prefixKey(key), value)
}

// PutJSON 添加 JSON 写入
func (b *Batch) PutJSON(key []byte, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	b.Put(key, data)
	return nil
}

// Delete 添加删除
func (b *Batch) Delete(key []byte) {
	b.batch.Delete(b.store.prefixKey(key))
}

// Write 原子提交
func (b *Batch) Write() error { return b.batch.Write() }

// Size 返回未提交的操作数
func (b *Batch) Size() int { return b.batch.Size() }

// Cancel 丢弃批量写入
func (b *Batch) Cancel() { b.batch.Cancel() }

// ============================================================================
//                              命名空间
// ============================================================================

// Prefix 返回 Store 前缀
func (s *Store) Prefix() []byte { return append([]byte(nil), s.prefix...) }

// SubStore 创建嵌套命名空间
func (s *Store) SubStore(subPrefix []byte) *Store {
	return New(s.engine, s.prefixKey(subPrefix))
}
