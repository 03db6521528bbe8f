// Package crypto 提供 go-home 使用的签名密钥
//
// 支持三种密钥类型：
//   - Ed25519（默认）
//   - Secp256k1
//   - Dilithium3（后量子签名）
//
// 所有密钥通过统一的 PublicKey / PrivateKey 接口使用，序列化格式为
// [Type(1)] [Length(4, 大端序)] [Data(n)]，身份 ID 由序列化后的公钥派生。
//
// 使用示例:
//
//	priv, pub, err := crypto.GenerateKeyPair(crypto.KeyTypeEd25519)
//	if err != nil {
//	    return err
//	}
//	sig, _ := priv.Sign(msg)
//	ok, _ := pub.Verify(msg, sig)
package crypto
