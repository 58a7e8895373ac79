package sdk

import (
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/joho/godotenv"
)

var (
	envLoaded bool
	envLoadMu sync.Mutex
)

func init() {
	// 在包初始化时尝试加载 .env 文件
	_ = loadEnvFile()
}

// loadEnvFile 尝试从项目根目录加载 .env 文件
// 会尝试多个可能的路径，找到第一个存在的 .env 文件
func loadEnvFile() error {
	envLoadMu.Lock()
	defer envLoadMu.Unlock()

	if envLoaded {
		return nil
	}

	// 获取当前工作目录
	wd, err := os.Getwd()
	if err != nil {
		return err
	}

	// 尝试多个可能的 .env 文件路径（按优先级）
	possiblePaths := []string{
		filepath.Join(wd, ".env"),
		filepath.Join(wd, "..", ".env"),
		filepath.Join(wd, "..", "..", ".env"),
	}

	// 查找第一个存在的 .env 文件
	var envPath string
	for _, path := range possiblePaths {
		absPath, err := filepath.Abs(path)
		if err != nil {
			continue
		}
		if _, err := os.Stat(absPath); err == nil {
			envPath = absPath
			break
		}
	}

	// 如果没有找到 .env 文件，返回 nil（允许通过环境变量配置）
	if envPath == "" {
		envLoaded = true
		return nil
	}

	// 加载 .env 文件
	if err := godotenv.Load(envPath); err != nil {
		return err
	}

	log.Printf("[taskflow-sdk] 已加载环境变量文件: %s", envPath)
	envLoaded = true
	return nil
}

// BaseURLFromEnv 从 TASKFLOW_BASE_URL 读取控制面地址，未设置时用默认值。
func BaseURLFromEnv() string {
	if v := os.Getenv("TASKFLOW_BASE_URL"); v != "" {
		return v
	}
	return "http://localhost:28080"
}
