package registry

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"github.com/dep2p/go-home/internal/core/registry/pairing"
	"github.com/dep2p/go-home/internal/core/session"
	"github.com/dep2p/go-home/internal/util/logger"
	"github.com/dep2p/go-home/pkg/types"
)

var log = logger.Logger("registry")

// ============================================================================
//                              在线状态
// ============================================================================

// Presence 身份在线状态
type Presence int

const (
	// Absent 没有活跃会话
	Absent Presence = iota
	// Present 存在活跃会话
	Present
)

func (p Presence) String() string {
	if p == Present {
		return "present"
	}
	return "absent"
}

// entry 单个身份的会话槽位
//
// cur 供无锁读取，mu 串行化同一身份的写操作。
type entry struct {
	mu  sync.Mutex
	cur atomic.Pointer[session.Session]
}

// ============================================================================
//                              Registry
// ============================================================================

// Options Registry 选项
type Options struct {
	// Clock 时钟，用于配对有效期判断
	Clock clock.Clock
}

// Registry 配对与在线状态登记表
type Registry struct {
	local types.Identity
	store pairing.Store
	book  *pairing.Book
	clock clock.Clock

	entries sync.Map // types.IdentityID -> *entry
	revoked sync.Map // types.IdentityID -> struct{}
}

// New 创建 Registry
//
// local 为本 home 的身份；store 为 nil 时使用内存存储。
func New(local types.Identity, store pairing.Store, opts Options) *Registry {
	if store == nil {
		store = pairing.NewMemoryStore()
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	return &Registry{
		local: local,
		store: store,
		book:  pairing.NewBook(),
		clock: opts.Clock,
	}
}

// Local 返回本 home 身份
func (r *Registry) Local() types.Identity { return r.local }

// ============================================================================
//                              配对
// ============================================================================

// Pair 登记已会签的配对记录
//
// 记录必须通过完整校验且声明中的 home 为本 home，否则返回匹配
// types.ErrProofInvalid 的错误。重复登记同一 (persona, home) 会替换旧记录。
func (r *Registry) Pair(rec *pairing.Record) (*pairing.Record, error) {
	if err := rec.Verify(r.clock.Now()); err != nil {
		return nil, err
	}
	if !rec.Statement.Home.Equal(r.local) {
		return nil, fmt.Errorf("%w: %w", types.ErrProofInvalid, ErrForeignHome)
	}
	if r.isRevoked(rec.PersonaID()) {
		return nil, fmt.Errorf("%w: %w", types.ErrUnauthorized, ErrRevoked)
	}
	if err := r.store.Put(rec); err != nil {
		return nil, fmt.Errorf("persist pairing: %w", err)
	}
	if r.book.Put(rec) {
		log.Info("persona 已配对", "persona", rec.PersonaID().ShortString())
	}
	return rec, nil
}

// Unpair 删除配对记录，记录不存在时返回 nil
func (r *Registry) Unpair(persona, homeID types.IdentityID) error {
	r.book.Remove(persona, homeID)
	if err := r.store.Delete(persona, homeID); err != nil {
		return fmt.Errorf("delete pairing: %w", err)
	}
	log.Debug("配对已解除", "persona", persona.ShortString())
	return nil
}

// Revoke 吊销身份
//
// 删除所有引用该身份的配对记录，关闭其会话，并拒绝此后的握手与配对。
func (r *Registry) Revoke(id types.IdentityID) error {
	r.revoked.Store(id, struct{}{})

	var errs error
	for _, rec := range r.book.RemoveIdentity(id) {
		errs = multierr.Append(errs, r.store.Delete(rec.PersonaID(), rec.HomeID()))
	}
	if s := r.current(id); s != nil {
		s.CloseWithError(fmt.Errorf("%w: %w", types.ErrUnauthorized, ErrRevoked))
	}
	log.Info("身份已吊销", "id", id.ShortString())
	return errs
}

func (r *Registry) isRevoked(id types.IdentityID) bool {
	_, ok := r.revoked.Load(id)
	return ok
}

// Authorize 判断身份是否允许建立会话
//
// 可直接用作 session.Options.Authorize。
func (r *Registry) Authorize(remote types.Identity) error {
	if r.isRevoked(remote.ID()) {
		return fmt.Errorf("%w: %w", types.ErrUnauthorized, ErrRevoked)
	}
	return nil
}

// IsPaired 报告 persona 是否与本 home 存在有效配对
func (r *Registry) IsPaired(persona types.IdentityID) bool {
	rec, ok := r.book.Get(persona, r.local.ID())
	return ok && !rec.Statement.Expired(r.clock.Now())
}

// Pairings 返回 persona 的有效配对记录，主 home 在前
func (r *Registry) Pairings(persona types.IdentityID) []*pairing.Record {
	return r.unexpired(r.book.ForPersona(persona))
}

// Records 返回全部有效配对记录
func (r *Registry) Records() []*pairing.Record {
	return r.unexpired(r.book.All())
}

func (r *Registry) unexpired(recs []*pairing.Record) []*pairing.Record {
	now := r.clock.Now()
	out := recs[:0:0]
	for _, rec := range recs {
		if !rec.Statement.Expired(now) {
			out = append(out, rec)
		}
	}
	return out
}

// FindByIdentifier 按可解析标识查找已配对的 persona
func (r *Registry) FindByIdentifier(identifier string) (*pairing.Record, bool) {
	if identifier == "" {
		return nil, false
	}
	for _, rec := range r.Records() {
		if rec.Statement.Persona.Identifier() == identifier {
			return rec, true
		}
	}
	return nil, false
}

// Load 从存储加载配对记录
//
// 每条记录重新校验，无效、过期或不属于本 home 的记录从存储中删除。
// 返回加载与丢弃的记录数。
func (r *Registry) Load() (loaded, dropped int, err error) {
	recs, err := r.store.List()
	if err != nil {
		return 0, 0, fmt.Errorf("list pairings: %w", err)
	}
	now := r.clock.Now()
	for _, rec := range recs {
		verr := rec.Verify(now)
		if verr == nil && !rec.Statement.Home.Equal(r.local) {
			verr = ErrForeignHome
		}
		if verr != nil {
			log.Warn("丢弃无效配对记录", "record", rec.String(), "err", verr)
			err = multierr.Append(err, r.store.Delete(rec.PersonaID(), rec.HomeID()))
			dropped++
			continue
		}
		r.book.Put(rec)
		loaded++
	}
	log.Info("配对记录已加载", "loaded", loaded, "dropped", dropped)
	return loaded, dropped, err
}

// ============================================================================
//                              会话
// ============================================================================

func (r *Registry) entryFor(id types.IdentityID) *entry {
	if e, ok := r.entries.Load(id); ok {
		return e.(*entry)
	}
	e, _ := r.entries.LoadOrStore(id, &entry{})
	return e.(*entry)
}

func (r *Registry) current(id types.IdentityID) *session.Session {
	e, ok := r.entries.Load(id)
	if !ok {
		return nil
	}
	return e.(*entry).cur.Load()
}

// LookupActiveSession 返回身份的活跃会话
func (r *Registry) LookupActiveSession(id types.IdentityID) (*session.Session, error) {
	s := r.current(id)
	if s == nil || s.State() != session.StateActive {
		return nil, fmt.Errorf("%w: %s", ErrNotPresent, id.ShortString())
	}
	return s, nil
}

// Presence 返回身份的在线状态
func (r *Registry) Presence(id types.IdentityID) Presence {
	if _, err := r.LookupActiveSession(id); err != nil {
		return Absent
	}
	return Present
}

// Attach 登记新完成握手的会话
//
// 同一身份的旧会话以 types.ErrSessionSuperseded 关闭。
// 会话关闭时自动调用 MarkOffline。
func (r *Registry) Attach(s *session.Session) error {
	id := s.Remote().ID()
	if r.isRevoked(id) {
		err := fmt.Errorf("%w: %w", types.ErrUnauthorized, ErrRevoked)
		s.CloseWithError(err)
		return err
	}

	e := r.entryFor(id)
	e.mu.Lock()
	prev := e.cur.Swap(s)
	e.mu.Unlock()

	// 旧会话的关闭回调会进入 MarkOffline，不能持锁
	if prev != nil && prev != s {
		log.Debug("会话被取代", "id", id.ShortString(), "old", prev.ID(), "new", s.ID())
		prev.CloseWithError(types.ErrSessionSuperseded)
	}
	s.OnClose(func(error) { r.MarkOffline(s) })
	return nil
}

// MarkOffline 在 s 仍是当前会话时清除登记，配对记录保持不变
func (r *Registry) MarkOffline(s *session.Session) bool {
	id := s.Remote().ID()
	v, ok := r.entries.Load(id)
	if !ok {
		return false
	}
	e := v.(*entry)
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.cur.CompareAndSwap(s, nil) {
		return false
	}
	log.Debug("身份离线", "id", id.ShortString(), "session", s.ID())
	return true
}

// Sessions 返回当前全部活跃会话
func (r *Registry) Sessions() []*session.Session {
	var out []*session.Session
	r.entries.Range(func(_, v any) bool {
		if s := v.(*entry).cur.Load(); s != nil && s.State() == session.StateActive {
			out = append(out, s)
		}
		return true
	})
	return out
}

// CloseAll 以 reason 关闭全部会话
func (r *Registry) CloseAll(reason error) {
	for _, s := range r.Sessions() {
		s.CloseWithError(reason)
	}
}

// ============================================================================
//                              统计
// ============================================================================

// Stats Registry 统计快照
type Stats struct {
	Present  int
	Pairings int
	Revoked  int
}

// Stats 返回统计快照
func (r *Registry) Stats() Stats {
	st := Stats{
		Present:  len(r.Sessions()),
		Pairings: len(r.Records()),
	}
	r.revoked.Range(func(_, _ any) bool {
		st.Revoked++
		return true
	})
	return st
}
