// Package machineid 读写 Warp 终端的机器标识 ExperimentId
//
// 标识的落点因系统而异：Windows 在注册表，macOS 在 defaults 域，
// Linux 在 warp-terminal 的 user_preferences.json
package machineid

import (
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/uuid"
)

const (
	windowsKeyPath = `HKCU\Software\Warp.dev\Warp`
	darwinDomain   = "dev.warp.Warp-Networking.WarpNetworking"
	valueName      = "ExperimentId"
)

// Result 一次读写操作的结果
type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Value   string `json:"value,omitempty"`
}

// Manager 机器标识管理器
//
// configPath 仅 Linux 路径使用；goos 可注入以便测试
type Manager struct {
	goos       string
	configPath string
}

// NewManager 按当前系统创建管理器
func NewManager() *Manager {
	return &Manager{goos: runtime.GOOS, configPath: defaultLinuxConfigPath()}
}

func defaultLinuxConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "warp-terminal", "user_preferences.json")
}

// Generate 生成一个新的随机标识
func Generate() string {
	return uuid.NewString()
}

// Get 读取当前的 ExperimentId
func (m *Manager) Get() (*Result, error) {
	switch m.goos {
	case "windows":
		return m.getWindows()
	case "darwin":
		return m.getDarwin()
	case "linux":
		return m.getLinux()
	default:
		return nil, fmt.Errorf("此功能暂不支持当前操作系统")
	}
}

// Set 写入新的 ExperimentId，写入前校验 UUID 格式
func (m *Manager) Set(newID string) (*Result, error) {
	if _, err := uuid.Parse(newID); err != nil {
		return nil, fmt.Errorf("无效的 UUID 格式")
	}

	switch m.goos {
	case "windows":
		return m.setWindows(newID)
	case "darwin":
		return m.setDarwin(newID)
	case "linux":
		return m.setLinux(newID)
	default:
		return nil, fmt.Errorf("此功能暂不支持当前操作系统")
	}
}

// Rotate 生成并写入新标识
func (m *Manager) Rotate() (*Result, error) {
	return m.Set(Generate())
}

func (m *Manager) getWindows() (*Result, error) {
	out, err := exec.Command("reg", "query", windowsKeyPath, "/v", valueName).Output()
	if err != nil {
		return nil, fmt.Errorf("无法打开 Warp 注册表项，请确保已安装 Warp")
	}
	value := parseRegOutput(string(out))
	if value == "" {
		return nil, fmt.Errorf("无法读取 ExperimentId")
	}
	return &Result{Success: true, Message: "获取成功", Value: value}, nil
}

func (m *Manager) setWindows(newID string) (*Result, error) {
	err := exec.Command("reg", "add", windowsKeyPath, "/v", valueName, "/t", "REG_SZ", "/d", newID, "/f").Run()
	if err != nil {
		return nil, fmt.Errorf("无法写入注册表，请以管理员权限运行")
	}
	return &Result{Success: true, Message: "UUID 修改成功", Value: newID}, nil
}

// parseRegOutput 从 reg query 的输出里取 REG_SZ 值
func parseRegOutput(out string) string {
	for _, line := range strings.Split(out, "\n") {
		if !strings.Contains(line, valueName) {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) >= 3 {
			return fields[len(fields)-1]
		}
	}
	return ""
}

func (m *Manager) getDarwin() (*Result, error) {
	out, err := exec.Command("defaults", "read", darwinDomain, valueName).Output()
	if err != nil {
		return nil, fmt.Errorf("无法读取 ExperimentId，请确保已安装并运行过 Warp")
	}
	return &Result{Success: true, Message: "获取成功", Value: strings.TrimSpace(string(out))}, nil
}

func (m *Manager) setDarwin(newID string) (*Result, error) {
	out, err := exec.Command("defaults", "write", darwinDomain, valueName, newID).CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("无法写入配置: %s", strings.TrimSpace(string(out)))
	}
	return &Result{Success: true, Message: "UUID 修改成功", Value: newID}, nil
}

func (m *Manager) getLinux() (*Result, error) {
	config, err := m.readLinuxConfig()
	if err != nil {
		return nil, err
	}

	// ExperimentId 可能嵌套在 prefs 里，也可能直接在根上
	value := lookupID(config)
	if value == "" {
		return nil, fmt.Errorf("配置文件中未找到 ExperimentId")
	}
	return &Result{Success: true, Message: "获取成功", Value: value}, nil
}

func (m *Manager) setLinux(newID string) (*Result, error) {
	config, err := m.readLinuxConfig()
	if err != nil {
		return nil, err
	}

	if prefs, ok := config["prefs"].(map[string]any); ok {
		prefs[valueName] = newID
	} else if _, exists := config["prefs"]; exists {
		return nil, fmt.Errorf("配置文件 prefs 字段格式错误")
	} else {
		config[valueName] = newID
	}

	if err := m.writeLinuxConfig(config); err != nil {
		return nil, err
	}
	return &Result{Success: true, Message: "UUID 修改成功", Value: newID}, nil
}

func lookupID(config map[string]any) string {
	if prefs, ok := config["prefs"].(map[string]any); ok {
		if v, ok := prefs[valueName].(string); ok {
			return v
		}
	}
	if v, ok := config[valueName].(string); ok {
		return v
	}
	return ""
}

func (m *Manager) readLinuxConfig() (map[string]any, error) {
	data, err := os.ReadFile(m.configPath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("Warp 配置文件不存在，请确保已安装并运行过 Warp Terminal")
	}
	if err != nil {
		return nil, fmt.Errorf("无法读取配置文件: %w", err)
	}

	var config map[string]any
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("配置文件格式错误: %w", err)
	}
	return config, nil
}

func (m *Manager) writeLinuxConfig(config map[string]any) error {
	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化配置失败: %w", err)
	}
	if err := os.WriteFile(m.configPath, data, 0o644); err != nil {
		return fmt.Errorf("写入配置文件失败: %w", err)
	}
	return nil
}
