package repository

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"repo-migrator/internal/model"
	pkgErrors "repo-migrator/pkg/errors"
)

// FileBackend 以 YAML 文档保存状态表，文档是按表顺序排列的记录列表
type FileBackend struct {
	path      string
	backupDir string
}

// NewFileBackend 创建文件后端；backupDir 为空时备份写到状态文件同目录的 backups 下
func NewFileBackend(path, backupDir string) *FileBackend {
	if backupDir == "" {
		backupDir = filepath.Join(filepath.Dir(path), "backups")
	}
	return &FileBackend{
		path:      path,
		backupDir: backupDir,
	}
}

// Describe 后端描述
func (b *FileBackend) Describe() string {
	return "file:" + b.path
}

// Load 文件缺失或无法解析时返回 StoreUnavailable
func (b *FileBackend) Load() ([]*model.RepoRecord, error) {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, pkgErrors.Wrap(pkgErrors.CodeStoreUnavailable, fmt.Sprintf("状态文件不存在: %s", b.path), err)
		}
		return nil, pkgErrors.Wrap(pkgErrors.CodeStoreUnavailable, fmt.Sprintf("读取状态文件失败: %s", b.path), err)
	}

	records, err := decodeRecords(data)
	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeStoreUnavailable, fmt.Sprintf("解析状态文件失败: %s", b.path), err)
	}
	return records, nil
}

// Save 先写临时文件再重命名，避免中途崩溃留下半个文件
func (b *FileBackend) Save(records []*model.RepoRecord) error {
	data, err := encodeRecords(records)
	if err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeStoreUnavailable, "序列化状态表失败", err)
	}
	if err := writeFileAtomic(b.path, data); err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeStoreUnavailable, fmt.Sprintf("写入状态文件失败: %s", b.path), err)
	}
	return nil
}

// Snapshot 备份文件名形如 repositories-20240102-150405.yaml
func (b *FileBackend) Snapshot(records []*model.RepoRecord, at time.Time) (string, error) {
	base := strings.TrimSuffix(filepath.Base(b.path), filepath.Ext(b.path))
	return writeSnapshot(b.backupDir, base, records, at)
}

func decodeRecords(data []byte) ([]*model.RepoRecord, error) {
	var records []*model.RepoRecord
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	for i, r := range records {
		if r == nil || r.Name == "" {
			return nil, fmt.Errorf("第 %d 条记录缺少 name", i+1)
		}
	}
	if records == nil {
		records = []*model.RepoRecord{}
	}
	return records, nil
}

func encodeRecords(records []*model.RepoRecord) ([]byte, error) {
	if records == nil {
		records = []*model.RepoRecord{}
	}
	return yaml.Marshal(records)
}

// writeSnapshot 各后端共用的备份写入
func writeSnapshot(dir, base string, records []*model.RepoRecord, at time.Time) (string, error) {
	data, err := encodeRecords(records)
	if err != nil {
		return "", pkgErrors.Wrap(pkgErrors.CodeStoreUnavailable, "序列化备份失败", err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s-%s.yaml", base, at.UTC().Format("20060102-150405")))
	if err := writeFileAtomic(path, data); err != nil {
		return "", pkgErrors.Wrap(pkgErrors.CodeStoreUnavailable, fmt.Sprintf("写入备份失败: %s", path), err)
	}
	return path, nil
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	defer func() {
		_ = os.Remove(tmp.Name())
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}
