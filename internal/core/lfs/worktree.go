package lfs

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	pkgErrors "repo-migrator/pkg/errors"
)

// gitDirName 版本库元数据目录，扫描时从不进入
const gitDirName = ".git"

// treeFile 工作区中的一个普通文件
type treeFile struct {
	Path string // 以 '/' 分隔的相对路径
	Size int64
}

// ScanWorkingTree 返回工作区中大小严格超过阈值、且未被忽略的文件（相对路径，已排序）
func ScanWorkingTree(logger *zap.Logger, root string, ignore *Matcher, threshold int64) ([]string, error) {
	files, err := listWorkingTree(logger, root)
	if err != nil {
		return nil, err
	}
	return oversizedFiles(files, ignore, threshold), nil
}

func oversizedFiles(files []treeFile, ignore *Matcher, threshold int64) []string {
	var result []string
	for _, f := range files {
		if f.Size <= threshold || ignore.Match(f.Path) {
			continue
		}
		result = append(result, f.Path)
	}
	sort.Strings(result)
	return result
}

// listWorkingTree 列出工作区全部普通文件
// 单个条目读取失败只记录日志并跳过；根目录不可读时返回错误
func listWorkingTree(logger *zap.Logger, root string) ([]treeFile, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeScanFailure, fmt.Sprintf("工作区不可读: %s", root), err)
	}
	if !info.IsDir() {
		return nil, pkgErrors.New(pkgErrors.CodeScanFailure, fmt.Sprintf("工作区不是目录: %s", root))
	}

	var files []treeFile
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			logger.Warn("跳过无法读取的条目", zap.String("path", path), zap.Error(walkErr))
			if d != nil && d.IsDir() && path != root {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Name() == gitDirName && path != root {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !d.Type().IsRegular() {
			return nil
		}

		fi, err := d.Info()
		if err != nil {
			logger.Warn("跳过无法获取大小的文件", zap.String("path", path), zap.Error(err))
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			logger.Warn("跳过无法计算相对路径的文件", zap.String("path", path), zap.Error(err))
			return nil
		}

		files = append(files, treeFile{Path: filepath.ToSlash(rel), Size: fi.Size()})
		return nil
	})
	if err != nil {
		return nil, pkgErrors.Wrap(pkgErrors.CodeScanFailure, "遍历工作区失败", err)
	}

	return files, nil
}
