// Package storage 提供 home 的持久化存储服务
//
// 基于 BadgerDB，为配对记录等需要跨重启保留的状态提供键值存储后端。
//
//	┌──────────────────────────────┐
//	│  registry (pairing.KVStore)  │
//	└──────────────┬───────────────┘
//	               ▼
//	┌──────────────────────────────┐
//	│  kv.Store   带前缀的命名空间  │
//	├──────────────────────────────┤
//	│  engine/badger  BadgerDB     │
//	└──────────────────────────────┘
//
// # 键空间
//
//	前缀     | 模块       | 说明
//	---------|------------|----------------------
//	h/p/     | registry   | 配对记录 <persona>/<home>
//
// # 使用示例
//
//	app := fx.New(
//	    config.Module(),
//	    storage.Module(),
//	)
//
// 手动创建：
//
//	eng, err := storage.NewEngine(storage.InMemoryConfig())
//	if err != nil {
//	    return err
//	}
//	defer eng.Close()
//	pairs := storage.NewKVStore(eng, storage.PrefixPairings)
package storage
