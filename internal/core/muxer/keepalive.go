package muxer

import (
	"fmt"

	"github.com/dep2p/go-home/pkg/lib/proto/home"
	"github.com/dep2p/go-home/pkg/types"
)

// keepaliveLoop 周期发送 Ping 并检测失效
//
// 每个间隔结束时检查该间隔内是否收到过任何帧，
// 连续 MaxMissedKeepalives 个间隔没有入站帧则以 ErrTransportLost 关闭。
func (c *Conn) keepaliveLoop() {
	ticker := c.cfg.Clock.Ticker(c.cfg.KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closing:
			return
		case <-ticker.C:
		}

		if c.alive.Swap(false) {
			c.missed.Store(0)
		} else {
			n := int(c.missed.Add(1))
			log.Debug("保活间隔内无入站帧", "remote", c.RemoteAddr(), "missed", n)
			if n >= c.cfg.MaxMissedKeepalives {
				log.Warn("连接保活失败", "remote", c.RemoteAddr(), "maxMissed", c.cfg.MaxMissedKeepalives)
				c.CloseWithError(fmt.Errorf("%w: %d keepalive intervals without response", types.ErrTransportLost, n))
				return
			}
		}

		seq := c.pingSeq.Add(1)
		c.pingSentAt.Store(c.cfg.Clock.Now().UnixNano())
		c.control(&home.Frame{Kind: home.FramePing, ID: seq})
	}
}
