// Package pairing 定义 persona 与 home 之间的配对记录
//
// 配对采用半证明流程：persona 签署配对声明（关系类型 hosted_on_home），
// home 校验后会签。双方签名覆盖同一份声明字节，两者都有效时配对成立。
//
// Book 是 home 与 persona 共用的记录集合，按 (persona, home) 索引，
// 每个 persona 恰有一个主 home。Store 负责持久化，签名原样保存，
// 加载时重新校验。
package pairing
