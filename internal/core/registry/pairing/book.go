package pairing

import (
	"sync"

	"github.com/dep2p/go-home/pkg/types"
)

// Book 配对记录集合
//
// 按 (persona, home) 索引，每个 persona 的记录保持加入顺序。
// 每个有记录的 persona 恰有一个主 home：第一条记录成为主 home，
// 移除主 home 时提升最早的剩余记录。
type Book struct {
	mu      sync.RWMutex
	records map[types.IdentityID][]*Record
	primary map[types.IdentityID]types.IdentityID
}

// NewBook 创建空集合
func NewBook() *Book {
	return &Book{
		records: make(map[types.IdentityID][]*Record),
		primary: make(map[types.IdentityID]types.IdentityID),
	}
}

// Put 加入或替换记录，返回是否为新记录
func (b *Book) Put(rec *Record) bool {
	persona, homeID := rec.PersonaID(), rec.HomeID()

	b.mu.Lock()
	defer b.mu.Unlock()

	recs := b.records[persona]
	for i, r := range recs {
		if r.HomeID() == homeID {
			recs[i] = rec
			return false
		}
	}
	b.records[persona] = append(recs, rec)
	if _, ok := b.primary[persona]; !ok {
		b.primary[persona] = homeID
	}
	return true
}

// Remove 移除记录，返回是否存在
func (b *Book) Remove(persona, homeID types.IdentityID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.removeLocked(persona, homeID)
}

func (b *Book) removeLocked(persona, homeID types.IdentityID) bool {
	recs := b.records[persona]
	for i, r := range recs {
		if r.HomeID() != homeID {
			continue
		}
		recs = append(recs[:i:i], recs[i+1:]...)
		if len(recs) == 0 {
			delete(b.records, persona)
			delete(b.primary, persona)
			return true
		}
		b.records[persona] = recs
		if b.primary[persona] == homeID {
			b.primary[persona] = recs[0].HomeID()
		}
		return true
	}
	return false
}

// RemoveIdentity 移除所有引用 id 的记录（作为 persona 或 home），返回被移除的记录
func (b *Book) RemoveIdentity(id types.IdentityID) []*Record {
	b.mu.Lock()
	defer b.mu.Unlock()

	var removed []*Record
	for persona, recs := range b.records {
		for _, r := range recs {
			if persona == id || r.HomeID() == id {
				removed = append(removed, r)
			}
		}
	}
	for _, r := range removed {
		b.removeLocked(r.PersonaID(), r.HomeID())
	}
	return removed
}

// Get 返回 (persona, home) 的记录
func (b *Book) Get(persona, homeID types.IdentityID) (*Record, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, r := range b.records[persona] {
		if r.HomeID() == homeID {
			return r, true
		}
	}
	return nil, false
}

// ForPersona 返回 persona 的全部记录，主 home 在前
func (b *Book) ForPersona(persona types.IdentityID) []*Record {
	b.mu.RLock()
	defer b.mu.RUnlock()

	recs := b.records[persona]
	out := make([]*Record, 0, len(recs))
	primary := b.primary[persona]
	for _, r := range recs {
		if r.HomeID() == primary {
			out = append(out, r)
		}
	}
	for _, r := range recs {
		if r.HomeID() != primary {
			out = append(out, r)
		}
	}
	return out
}

// Primary 返回 persona 的主 home 记录
func (b *Book) Primary(persona types.IdentityID) (*Record, bool) {
	b.mu.RLock()
	homeID, ok := b.primary[persona]
	b.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return b.Get(persona, homeID)
}

// SetPrimary 设置 persona 的主 home
func (b *Book) SetPrimary(persona, homeID types.IdentityID) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, r := range b.records[persona] {
		if r.HomeID() == homeID {
			b.primary[persona] = homeID
			return nil
		}
	}
	return ErrNotPaired
}

// All 返回全部记录
func (b *Book) All() []*Record {
	b.mu.RLock()
	defer b.mu.RUnlock()
	var out []*Record
	for _, recs := range b.records {
		out = append(out, recs...)
	}
	return out
}

// Len 返回记录总数
func (b *Book) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, recs := range b.records {
		n += len(recs)
	}
	return n
}
