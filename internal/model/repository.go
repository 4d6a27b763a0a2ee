package model

import (
	"time"

	"gorm.io/datatypes"

	"repo-migrator/pkg/constants"
)

const RepoRecordTableName = "migration_records"

// RepoRecord 仓库迁移记录
// Name 为主键，跨运行稳定；记录只会被更新，不会被删除
type RepoRecord struct {
	Position    int                         `gorm:"column:position;not null;index" yaml:"-" json:"-"` // 仅数据库后端用于保持表顺序
	Name        string                      `gorm:"primaryKey;size:255" yaml:"name" json:"name"`
	Branch      string                      `gorm:"size:255;not null" yaml:"branch" json:"branch"`
	Transferred bool                        `gorm:"not null;default:false;index" yaml:"transferred" json:"transferred"`
	Processing  bool                        `gorm:"not null;default:false" yaml:"processing" json:"processing"`
	CreatedAt   *time.Time                  `gorm:"column:created_at;autoCreateTime:false" yaml:"created_at" json:"created_at"`
	PushedAt    *time.Time                  `gorm:"column:pushed_at" yaml:"pushed_at" json:"pushed_at"`
	Error       *string                     `gorm:"type:text" yaml:"error" json:"error"`
	RetryCount  int                         `gorm:"not null;default:0" yaml:"retry_count" json:"retry_count"`
	HasLFS      bool                        `gorm:"column:has_lfs;not null;default:false" yaml:"has_lfs" json:"has_lfs"`
	LFSStrategy string                      `gorm:"column:lfs_strategy;size:32" yaml:"lfs_strategy,omitempty" json:"lfs_strategy,omitempty"`
	LFSFiles    datatypes.JSONSlice[string] `gorm:"column:lfs_files;type:json" yaml:"lfs_files,omitempty" json:"lfs_files,omitempty"`
}

func (RepoRecord) TableName() string {
	return RepoRecordTableName
}

// State 由记录字段推导当前状态
func (r *RepoRecord) State() int8 {
	switch {
	case r.Transferred:
		return constants.RecordStateCompleted
	case r.Processing:
		return constants.RecordStateProcessing
	case r.RetryCount >= constants.MaxRetryCount:
		return constants.RecordStateExhausted
	case r.Error != nil:
		return constants.RecordStateFailed
	default:
		return constants.RecordStatePending
	}
}

// Eligible 是否可被本次运行拾取
func (r *RepoRecord) Eligible() bool {
	return !r.Transferred && !r.Processing && r.RetryCount < constants.MaxRetryCount
}

// Clone 深拷贝，避免调用方修改存储内部状态
func (r *RepoRecord) Clone() *RepoRecord {
	c := *r
	if r.CreatedAt != nil {
		t := *r.CreatedAt
		c.CreatedAt = &t
	}
	if r.PushedAt != nil {
		t := *r.PushedAt
		c.PushedAt = &t
	}
	if r.Error != nil {
		e := *r.Error
		c.Error = &e
	}
	if r.LFSFiles != nil {
		c.LFSFiles = append(datatypes.JSONSlice[string]{}, r.LFSFiles...)
	}
	return &c
}

// RecordPatch 记录的局部更新，nil 字段表示不修改
type RecordPatch struct {
	Branch      *string
	Transferred *bool
	Processing  *bool
	CreatedAt   *time.Time
	PushedAt    *time.Time
	Error       **string // 指向 nil 表示清空错误
	RetryCount  *int
	HasLFS      *bool
	LFSStrategy *string
	LFSFiles    []string
}

// Statistics 迁移统计
type Statistics struct {
	Total                     int     `json:"total"`
	Transferred               int     `json:"transferred"`
	Processing                int     `json:"processing"`
	Failed                    int     `json:"failed"`
	Exhausted                 int     `json:"exhausted"`
	Pending                   int     `json:"pending"`
	WithLargeFiles            int     `json:"with_large_files"`
	WithLargeFilesTransferred int     `json:"with_large_files_transferred"`
	PercentComplete           float64 `json:"percent_complete"`
}
