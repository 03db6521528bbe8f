package transport

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"

	"github.com/dep2p/go-home/internal/util/logger"
	"github.com/dep2p/go-home/pkg/types"
)

var log = logger.Logger("transport")

// Set 一组已启用的传输，按地址选择
type Set struct {
	mu         sync.RWMutex
	transports []Transport
	closed     bool
}

// NewSet 创建传输集合
func NewSet(transports ...Transport) *Set {
	return &Set{transports: transports}
}

// Add 添加传输
func (s *Set) Add(t Transport) {
	s.mu.Lock()
	s.transports = append(s.transports, t)
	s.mu.Unlock()
}

// Names 返回已启用传输的名称
func (s *Set) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, len(s.transports))
	for i, t := range s.transports {
		names[i] = t.Name()
	}
	return names
}

// ForAddress 返回能处理 addr 的第一个传输
func (s *Set) ForAddress(addr types.Address) (Transport, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrTransportClosed
	}
	for _, t := range s.transports {
		if t.CanDial(addr) {
			return t, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNoTransport, addr)
}

// Dial 拨号 addr
func (s *Set) Dial(ctx context.Context, addr types.Address) (Channel, error) {
	t, err := s.ForAddress(addr)
	if err != nil {
		return nil, err
	}
	log.Debug("拨号", "transport", t.Name(), "addr", addr)
	return t.Dial(ctx, addr)
}

// Listen 在 addr 上监听
func (s *Set) Listen(addr types.Address) (Listener, error) {
	t, err := s.ForAddress(addr)
	if err != nil {
		return nil, err
	}
	l, err := t.Listen(addr)
	if err != nil {
		return nil, err
	}
	log.Info("开始监听", "transport", t.Name(), "addr", l.Addr())
	return l, nil
}

// Close 关闭全部传输
func (s *Set) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	ts := s.transports
	s.mu.Unlock()

	var err error
	for _, t := range ts {
		err = multierr.Append(err, t.Close())
	}
	return err
}
