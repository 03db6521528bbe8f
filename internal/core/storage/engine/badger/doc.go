// Package badger 实现基于 BadgerDB 的存储引擎
//
// 支持磁盘与内存两种模式。磁盘模式下后台定期执行值日志垃圾回收。
//
//	eng, err := badger.New(engine.DefaultConfig("/var/lib/home/home.db"))
//	if err != nil {
//	    return err
//	}
//	defer eng.Close()
package badger
