package quic

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"math/big"
	"time"

	"github.com/dep2p/go-home/pkg/lib/crypto"
	"github.com/dep2p/go-home/pkg/types"
)

// ALPN 协议标识
const ALPN = "dep2p-home"

// identityExtensionOID 证书扩展中存放 IdentityID 的 OID（仅用于调试）
var identityExtensionOID = []int{1, 3, 6, 1, 4, 1, 53594, 1, 2}

// certValidity 证书有效期
const certValidity = 180 * 24 * time.Hour

// NewTLSConfig 生成自签名证书的 TLS 配置
//
// key 为 Ed25519 时证书直接使用该密钥；其他类型或 nil 时使用临时 Ed25519 密钥。
// 返回的配置同时用于服务端与客户端。
func NewTLSConfig(key crypto.PrivateKey) (*tls.Config, error) {
	var certKey ed25519.PrivateKey
	if ek, ok := key.(*crypto.Ed25519PrivateKey); ok {
		certKey = ed25519.NewKeyFromSeed(ek.Seed())
	} else {
		_, k, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, fmt.Errorf("生成证书密钥失败: %w", err)
		}
		certKey = k
	}

	template := &x509.Certificate{
		SerialNumber: big.NewInt(time.Now().UnixNano()),
		Subject: pkix.Name{
			Organization: []string{"dep2p-home"},
			CommonName:   "dep2p-home node",
		},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(certValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		BasicConstraintsValid: true,
	}
	if key != nil {
		id, err := types.IdentityIDFromPublicKey(key.GetPublic())
		if err != nil {
			return nil, err
		}
		template.ExtraExtensions = []pkix.Extension{{Id: identityExtensionOID, Value: id.Bytes()}}
	}

	certDER, err := x509.CreateCertificate(rand.Reader, template, template, certKey.Public(), certKey)
	if err != nil {
		return nil, fmt.Errorf("创建证书失败: %w", err)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{{Certificate: [][]byte{certDER}, PrivateKey: certKey}},
		NextProtos:   []string{ALPN},
		// 自签名证书没有 CA，证书只做格式与有效期检查
		InsecureSkipVerify:    true,
		ClientAuth:            tls.RequireAnyClientCert,
		VerifyPeerCertificate: verifyPeerCertificate,
		MinVersion:            tls.VersionTLS13,
	}, nil
}

// verifyPeerCertificate 检查对端证书格式、有效期与身份扩展
func verifyPeerCertificate(rawCerts [][]byte, _ [][]*x509.Certificate) error {
	if len(rawCerts) == 0 {
		return fmt.Errorf("对端未提供证书")
	}
	cert, err := x509.ParseCertificate(rawCerts[0])
	if err != nil {
		return fmt.Errorf("解析证书失败: %w", err)
	}

	for _, ext := range cert.Extensions {
		if ext.Id.Equal(identityExtensionOID) {
			if _, err := types.IdentityIDFromBytes(ext.Value); err != nil {
				return fmt.Errorf("无效的身份扩展: %w", err)
			}
			break
		}
	}

	now := time.Now()
	if now.Before(cert.NotBefore) {
		return fmt.Errorf("证书尚未生效: NotBefore=%v", cert.NotBefore)
	}
	if now.After(cert.NotAfter) {
		return fmt.Errorf("证书已过期: NotAfter=%v", cert.NotAfter)
	}
	return nil
}

// PeerIdentityID 从连接的 TLS 状态中读取对端证书里的 IdentityID
//
// 该值未经认证，只用于日志。
func PeerIdentityID(state tls.ConnectionState) (types.IdentityID, bool) {
	if len(state.PeerCertificates) == 0 {
		return "", false
	}
	for _, ext := range state.PeerCertificates[0].Extensions {
		if ext.Id.Equal(identityExtensionOID) {
			id, err := types.IdentityIDFromBytes(ext.Value)
			return id, err == nil
		}
	}
	return "", false
}
