package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

// 密文前缀，用于区分明文旧数据和加密后的新数据
const cipherTextPrefix = "enc:v1:"

// 密钥派生参数（固定，改动会导致历史密文无法解密）
const (
	kdfIterations = 100000
	kdfSaltLabel  = "tvbridge-credential-store"
)

// Service 负责交易所API密钥的落库加密
// 使用 AES-256-GCM，密钥由 DATA_ENCRYPTION_KEY 通过 PBKDF2 派生
type Service struct {
	aead cipher.AEAD
}

// NewService 创建加密服务
// passphrase 来自 DATA_ENCRYPTION_KEY 环境变量，不能为空
func NewService(passphrase string) (*Service, error) {
	if passphrase == "" {
		return nil, fmt.Errorf("DATA_ENCRYPTION_KEY 未配置")
	}

	key := pbkdf2.Key([]byte(passphrase), []byte(kdfSaltLabel), kdfIterations, 32, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("创建AES加密器失败: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("创建GCM模式失败: %w", err)
	}

	return &Service{aead: aead}, nil
}

// Encrypt 加密明文，返回带前缀的base64密文
func (s *Service) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("生成nonce失败: %w", err)
	}

	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return cipherTextPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt 解密密文
// 没有前缀的值视为历史明文数据，原样返回（兼容加密功能上线前的旧记录）
func (s *Service) Decrypt(value string) (string, error) {
	if !strings.HasPrefix(value, cipherTextPrefix) {
		return value, nil
	}

	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, cipherTextPrefix))
	if err != nil {
		return "", fmt.Errorf("密文base64解码失败: %w", err)
	}
	if len(raw) < s.aead.NonceSize() {
		return "", fmt.Errorf("密文长度不合法")
	}

	nonce, sealed := raw[:s.aead.NonceSize()], raw[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("解密失败（DATA_ENCRYPTION_KEY 是否正确？）: %w", err)
	}
	return string(plaintext), nil
}
