package filesystem

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Store 基于本地文件系统的附件存储。
//
// 文件以不透明的存储名（创建时生成的唯一标识）平铺存放在根目录下，
// 存储名与用户可见的原始文件名无关。并发创建不会冲突，因为存储名
// 全局唯一；并发删除同一存储名时，后到者会发现文件已不存在。
type Store struct {
	basePath string
}

// NewStore 创建文件系统附件存储实例。
func NewStore(basePath string) (*Store, error) {
	if basePath == "" {
		return nil, fmt.Errorf("base path must not be empty")
	}

	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}

	return &Store{basePath: basePath}, nil
}

// Save 将附件内容写入存储名对应的文件，返回写入的字节数。
func (s *Store) Save(storedName string, r io.Reader) (int64, error) {
	path, err := s.path(storedName)
	if err != nil {
		return 0, err
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to create attachment file: %w", err)
	}

	n, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		os.Remove(path)
		return 0, fmt.Errorf("failed to write attachment: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(path)
		return 0, fmt.Errorf("failed to close attachment file: %w", err)
	}
	return n, nil
}

// Open 打开存储名对应的附件文件，调用方负责关闭。
func (s *Store) Open(storedName string) (io.ReadCloser, error) {
	path, err := s.path(storedName)
	if err != nil {
		return nil, err
	}
	return os.Open(path)
}

// Exists 检查附件文件是否存在。
func (s *Store) Exists(storedName string) (bool, error) {
	path, err := s.path(storedName)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Delete 删除存储名对应的附件文件。
// 文件不存在不视为错误：并发清理或重复删除都可能先一步移除文件。
func (s *Store) Delete(storedName string) error {
	path, err := s.path(storedName)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete attachment: %w", err)
	}
	return nil
}

// path 将存储名解析为根目录内的绝对路径，拒绝任何带路径成分的名字。
func (s *Store) path(storedName string) (string, error) {
	if storedName == "" {
		return "", fmt.Errorf("stored name must not be empty")
	}
	if storedName != filepath.Base(storedName) || strings.HasPrefix(storedName, ".") {
		return "", fmt.Errorf("invalid stored name: %q", storedName)
	}
	return filepath.Join(s.basePath, storedName), nil
}
