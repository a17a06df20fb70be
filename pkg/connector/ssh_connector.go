package connector

import (
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"golang.org/x/crypto/ssh"
)

// SSHConnector SSH连接器
type SSHConnector struct {
	Host     string
	Port     int
	Username string
	Password string
	KeyData  string
	Timeout  time.Duration
}

// RunResult 命令执行结果
type RunResult struct {
	Success  bool          `json:"success"`
	Output   string        `json:"output,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// NewSSHConnector 创建SSH连接器
func NewSSHConnector(host string, port int, username, password, keyData string) *SSHConnector {
	return &SSHConnector{
		Host:     host,
		Port:     port,
		Username: username,
		Password: password,
		KeyData:  keyData,
		Timeout:  30 * time.Second,
	}
}

// NewSSHConnectorFromKeyFile 从私钥文件创建SSH连接器
func NewSSHConnectorFromKeyFile(host string, port int, username, keyPath string) (*SSHConnector, error) {
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("读取SSH私钥文件失败: %v", err)
	}
	return NewSSHConnector(host, port, username, "", string(keyData)), nil
}

// clientConfig 构建SSH客户端配置
func (c *SSHConnector) clientConfig() (*ssh.ClientConfig, error) {
	config := &ssh.ClientConfig{
		User:            c.Username,
		Timeout:         c.Timeout,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(), // 注意：生产环境应该验证主机密钥
	}

	// 根据凭证类型设置认证方式
	if c.KeyData != "" {
		signer, err := ssh.ParsePrivateKey([]byte(c.KeyData))
		if err != nil {
			return nil, fmt.Errorf("私钥解析失败: %v", err)
		}
		config.Auth = []ssh.AuthMethod{ssh.PublicKeys(signer)}
	} else if c.Password != "" {
		config.Auth = []ssh.AuthMethod{ssh.Password(c.Password)}
	} else {
		return nil, fmt.Errorf("未提供认证信息，需要密码或私钥")
	}

	return config, nil
}

// Run 在远程主机上执行命令，返回合并后的输出
func (c *SSHConnector) Run(command string) (string, error) {
	config, err := c.clientConfig()
	if err != nil {
		return "", err
	}

	address := net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	client, err := ssh.Dial("tcp", address, config)
	if err != nil {
		return "", fmt.Errorf("SSH连接失败: %v", err)
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("创建SSH会话失败: %v", err)
	}
	defer session.Close()

	output, err := session.CombinedOutput(command)
	if err != nil {
		return string(output), fmt.Errorf("命令执行失败: %v", err)
	}

	return string(output), nil
}

// TestConnection 测试SSH连接
func (c *SSHConnector) TestConnection() *RunResult {
	start := time.Now()

	// 1. 测试网络连通性（TCP连接）
	address := net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
	conn, err := net.DialTimeout("tcp", address, c.Timeout)
	if err != nil {
		return &RunResult{
			Success:  false,
			Error:    fmt.Sprintf("网络连接失败: %v", err),
			Duration: time.Since(start),
		}
	}
	_ = conn.Close()

	// 2. 执行简单测试命令
	output, err := c.Run("echo 'SSH connection test successful'")
	if err != nil {
		return &RunResult{
			Success:  false,
			Output:   output,
			Error:    err.Error(),
			Duration: time.Since(start),
		}
	}

	return &RunResult{
		Success:  true,
		Output:   output,
		Duration: time.Since(start),
	}
}
