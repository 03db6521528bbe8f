package pairing

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dep2p/go-home/internal/core/storage/kv"
	"github.com/dep2p/go-home/internal/util/logger"
	"github.com/dep2p/go-home/pkg/types"
)

var log = logger.Logger("registry.pairing")

// Store 配对记录持久化
type Store interface {
	Put(rec *Record) error
	Delete(persona, homeID types.IdentityID) error
	List() ([]*Record, error)
}

// ============================================================================
//                              MemoryStore
// ============================================================================

// MemoryStore 内存存储，用于测试与不需要持久化的 persona
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]*Record
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

// Put 保存记录
func (s *MemoryStore) Put(rec *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[recordKey(rec.PersonaID(), rec.HomeID())] = rec
	return nil
}

// Delete 删除记录，不存在时不报错
func (s *MemoryStore) Delete(persona, homeID types.IdentityID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, recordKey(persona, homeID))
	return nil
}

// List 返回全部记录
func (s *MemoryStore) List() ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	return out, nil
}

// ============================================================================
//                              KVStore
// ============================================================================

// KVStore 基于 kv.Store 的持久化存储
//
// 键为 <persona>/<home>（base58），值为 JSON，签名原样保存。
type KVStore struct {
	kv *kv.Store
}

// NewKVStore 创建持久化存储
func NewKVStore(store *kv.Store) *KVStore {
	return &KVStore{kv: store}
}

// Put 保存记录
func (s *KVStore) Put(rec *Record) error {
	return s.kv.PutJSON([]byte(recordKey(rec.PersonaID(), rec.HomeID())), rec)
}

// Delete 删除记录
func (s *KVStore) Delete(persona, homeID types.IdentityID) error {
	return s.kv.Delete([]byte(recordKey(persona, homeID)))
}

// List 返回全部可解码的记录
//
// 无法解码的条目被跳过并记录日志，由调用方的重新校验决定是否清理。
func (s *KVStore) List() ([]*Record, error) {
	var (
		out     []*Record
		decodes []error
	)
	err := s.kv.PrefixScan(nil, func(key, value []byte) bool {
		rec := &Record{}
		if err := rec.UnmarshalJSON(value); err != nil {
			decodes = append(decodes, fmt.Errorf("%s: %w", key, err))
			return true
		}
		out = append(out, rec)
		return true
	})
	if err != nil {
		return nil, err
	}
	if len(decodes) > 0 {
		log.Warn("跳过无法解码的配对记录", "count", len(decodes), "err", errors.Join(decodes...))
	}
	return out, nil
}

func recordKey(persona, homeID types.IdentityID) string {
	return persona.String() + "/" + homeID.String()
}
