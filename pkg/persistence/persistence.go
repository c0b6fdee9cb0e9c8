package persistence

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"

	"github.com/pkg/errors"

	"github.com/betbot/replicator/pkg/logger"
)

// Service 持久化服务接口
type Service interface {
	NewStore(name string) Store
}

// Store 存储接口：整份文档读写
type Store interface {
	Save(data interface{}) error
	Load(data interface{}) error
	Path() string
}

// ErrNotExists 表示数据不存在
var ErrNotExists = errors.New("persistence data not exists")

// JSONFileService 基于 JSON 文件的持久化服务
type JSONFileService struct {
	baseDir string
}

// NewJSONFileService 创建 JSON 文件持久化服务
func NewJSONFileService(baseDir string) *JSONFileService {
	return &JSONFileService{
		baseDir: baseDir,
	}
}

// BaseDir 返回存储目录
func (s *JSONFileService) BaseDir() string {
	return s.baseDir
}

// NewStore 创建新的存储，文件为 <baseDir>/<name>.json
func (s *JSONFileService) NewStore(name string) Store {
	return &JSONFileStore{
		service: s,
		name:    name,
	}
}

// JSONFileStore JSON 文件存储实现
type JSONFileStore struct {
	service *JSONFileService
	name    string
}

var nameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Path 返回文件路径（文件名安全化）
func (s *JSONFileStore) Path() string {
	safe := nameSanitizer.ReplaceAllString(s.name, "_")
	return filepath.Join(s.service.baseDir, safe+".json")
}

// Save 保存数据：先写临时文件再 rename，读者永远不会看到半截文件
func (s *JSONFileStore) Save(data interface{}) error {
	logger.Debugf("[persistence] Save: name=%s", s.name)
	if err := os.MkdirAll(s.service.baseDir, 0o700); err != nil {
		return err
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return err
	}

	path := s.Path()
	tmp := path + ".tmp"
	// 文件内容包含密文，只允许所有者读写
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// Load 加载数据
func (s *JSONFileStore) Load(data interface{}) error {
	logger.Debugf("[persistence] Load: name=%s", s.name)
	b, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotExists
		}
		return err
	}
	if len(b) == 0 {
		return ErrNotExists
	}
	return errors.Wrapf(json.Unmarshal(b, data), "persistence: decode %s", s.name)
}
