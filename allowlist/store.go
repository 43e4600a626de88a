// Package allowlist 持久化"总是允许"的工具列表
package allowlist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/smallnest/hookrelay/internal/logger"
	"go.uber.org/zap"
)

// data 存储文件格式
type data struct {
	Tools []string `json:"tools"`
}

// Store 基于 JSON 文件的 allow-list
//
// 每次调用都会重新读取文件；同一进程内的写入由 mu 串行化，
// 不同进程之间不加锁，后写者覆盖前写者。
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore 创建 allow-list 存储
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path 返回存储文件路径
func (s *Store) Path() string {
	return s.path
}

// IsAllowed 检查工具是否在 allow-list 中；读取失败按空列表处理
func (s *Store) IsAllowed(toolName string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, t := range s.read().Tools {
		if t == toolName {
			return true
		}
	}
	return false
}

// Add 添加工具，已存在时不做任何事
func (s *Store) Add(toolName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensure(); err != nil {
		return err
	}

	d := s.read()
	for _, t := range d.Tools {
		if t == toolName {
			return nil
		}
	}
	d.Tools = append(d.Tools, toolName)
	return s.write(d)
}

// Remove 移除工具，无论之前是否存在都会写回文件
func (s *Store) Remove(toolName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensure(); err != nil {
		return err
	}

	d := s.read()
	kept := make([]string, 0, len(d.Tools))
	for _, t := range d.Tools {
		if t != toolName {
			kept = append(kept, t)
		}
	}
	d.Tools = kept
	return s.write(d)
}

// List 返回当前所有工具
func (s *Store) List() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.read().Tools
}

// Clear 清空 allow-list
func (s *Store) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensure(); err != nil {
		return err
	}
	return s.write(data{Tools: []string{}})
}

// ensure 确保目录和文件存在，新文件初始化为空列表
func (s *Store) ensure() error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0755); err != nil {
		return fmt.Errorf("failed to create allowlist directory: %w", err)
	}
	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat allowlist: %w", err)
	}
	return s.write(data{Tools: []string{}})
}

// read 读取文件；缺失或损坏都返回空列表
func (s *Store) read() data {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Warn("Failed to read allowlist, treating as empty",
				zap.String("path", s.path),
				zap.Error(err),
			)
		}
		return data{Tools: []string{}}
	}

	var d data
	if err := json.Unmarshal(raw, &d); err != nil {
		logger.Warn("Invalid allowlist JSON, treating as empty",
			zap.String("path", s.path),
			zap.Error(err),
		)
		return data{Tools: []string{}}
	}
	if d.Tools == nil {
		d.Tools = []string{}
	}
	return d
}

// write 先写临时文件再 rename，避免留下半截 JSON
func (s *Store) write(d data) error {
	content, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal allowlist: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".allowlist-*.json")
	if err != nil {
		return fmt.Errorf("failed to create allowlist temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write allowlist: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to write allowlist: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace allowlist: %w", err)
	}
	return nil
}
