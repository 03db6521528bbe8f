package engine

// Engine 键值存储引擎
//
// 所有实现必须可并发使用。批量写入在提交前对其他操作不可见。
type Engine interface {
	// Get 读取 key 的值，不存在时返回 ErrNotFound
	Get(key []byte) ([]byte, error)

	// Put 写入键值对
	Put(key, value []byte) error

	// Delete 删除 key；key 不存在时不报错
	Delete(key []byte) error

	// Has 报告 key 是否存在
	Has(key []byte) (bool, error)

	// NewBatch 创建批量写入
	NewBatch() Batch

	// NewPrefixIterator 创建只遍历 prefix 下键的迭代器，调用方负责 Close
	NewPrefixIterator(prefix []byte) Iterator

	// Sync 把已写入的数据同步到磁盘
	Sync() error

	// Stats 返回统计快照
	Stats() Stats

	// Close 关闭引擎，重复调用无效
	Close() error
}

// Batch 批量写入
//
// Batch 不可并发使用。
type Batch interface {
	Put(key, value []byte)
	Delete(key []byte)

	// Write 原子提交全部操作，之后 Batch 可以继续复用
	Write() error

	// Size 返回未提交的操作数
	Size() int

	// Cancel 丢弃未提交的操作并释放资源
	Cancel()
}

// Iterator 前缀迭代器
//
// 使用模式:
//
//	it := eng.NewPrefixIterator(prefix)
//	defer it.Close()
//	for it.First(); it.Valid(); it.Next() {
//	    key, value := it.Key(), it.Value()
//	}
//	if err := it.Error(); err != nil {
//	    return err
//	}
type Iterator interface {
	First() bool
	Next() bool
	Valid() bool

	// Key 返回当前键的副本
	Key() []byte

	// Value 返回当前值的副本
	Value() []byte

	Close()
	Error() error
}

// Stats 引擎统计
type Stats struct {
	LSMSize    int64 `json:"lsm_size"`
	VlogSize   int64 `json:"vlog_size"`
	NumReads   int64 `json:"num_reads"`
	NumWrites  int64 `json:"num_writes"`
	NumDeletes int64 `json:"num_deletes"`
	NumMisses  int64 `json:"num_misses"`
}
