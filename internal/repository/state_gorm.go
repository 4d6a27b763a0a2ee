package repository

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"repo-migrator/internal/model"
	pkgErrors "repo-migrator/pkg/errors"
)

// DefaultGormBackupDir 数据库后端未配置备份目录时使用
const DefaultGormBackupDir = "data/backups"

// GormBackend 以数据库表保存状态表，position 列保持表顺序
type GormBackend struct {
	db        *gorm.DB
	backupDir string
}

// NewGormBackend 创建数据库后端，备份仍写为 YAML 文件
func NewGormBackend(db *gorm.DB, backupDir string) *GormBackend {
	if backupDir == "" {
		backupDir = DefaultGormBackupDir
	}
	return &GormBackend{
		db:        db,
		backupDir: backupDir,
	}
}

// AutoMigrate 建表
func (b *GormBackend) AutoMigrate() error {
	if err := b.db.AutoMigrate(&model.RepoRecord{}); err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeDatabaseError, "创建迁移记录表失败", err)
	}
	return nil
}

// Describe 后端描述
func (b *GormBackend) Describe() string {
	return "mysql:" + model.RepoRecordTableName
}

func (b *GormBackend) Load() ([]*model.RepoRecord, error) {
	var records []*model.RepoRecord
	if err := b.db.Order("position ASC").Find(&records).Error; err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeStoreUnavailable, "查询迁移记录失败", err)
	}
	return records, nil
}

// Save 在一个事务里按名称 upsert 整张表；表中多出的记录保持不动（记录从不删除）
func (b *GormBackend) Save(records []*model.RepoRecord) error {
	if len(records) == 0 {
		return nil
	}

	err := b.db.Transaction(func(tx *gorm.DB) error {
		for i, r := range records {
			r.Position = i
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			UpdateAll: true,
		}).CreateInBatches(records, 200).Error
	})
	if err != nil {
		return pkgErrors.Wrap(pkgErrors.CodeStoreUnavailable, "保存迁移记录失败", err)
	}
	return nil
}

func (b *GormBackend) Snapshot(records []*model.RepoRecord, at time.Time) (string, error) {
	return writeSnapshot(b.backupDir, model.RepoRecordTableName, records, at)
}
