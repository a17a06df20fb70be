package services

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

// BootstrapCredentials 新租户的初始管理员凭证
// 明文密码只在同步响应中返回一次（共享模式），之后只保留哈希
type BootstrapCredentials struct {
	Email        string `json:"email"`
	TempPassword string `json:"temp_password"`
	PasswordHash string `json:"-"`
}

// 临时密码字符集，排除易混淆字符
const passwordCharset = "abcdefghijkmnpqrstuvwxyzABCDEFGHJKLMNPQRSTUVWXYZ23456789!@#$%"

const tempPasswordLength = 16

// GenerateBootstrapCredentials 生成初始管理员凭证
// 统一使用crypto/rand，避免弱随机数生成的临时密码
func GenerateBootstrapCredentials(email string) (*BootstrapCredentials, error) {
	password, err := generateTempPassword(tempPasswordLength)
	if err != nil {
		return nil, fmt.Errorf("生成临时密码失败: %v", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("密码哈希失败: %v", err)
	}

	return &BootstrapCredentials{
		Email:        email,
		TempPassword: password,
		PasswordHash: string(hash),
	}, nil
}

// generateTempPassword 从字符集中随机取length个字符
func generateTempPassword(length int) (string, error) {
	result := make([]byte, length)
	max := big.NewInt(int64(len(passwordCharset)))
	for i := range result {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		result[i] = passwordCharset[n.Int64()]
	}
	return string(result), nil
}
