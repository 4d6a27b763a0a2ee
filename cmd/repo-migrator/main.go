package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

const (
	appVersion = "1.0.0"
	appName    = "repo-migrator"
)

var configFile string

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "批量迁移代码仓库，自动识别并转换大文件为 LFS",
		Long: `在托管平台之间批量迁移仓库。

迁移进度保存在状态表中，可随时中断后继续：
  seed    从源端平台导入仓库列表
  run     按状态表顺序迁移待处理仓库
  stats   查看迁移统计
  retry   清除失败记录重新排队
  serve   启动状态 API 与定时迁移

配置文件优先级: --config > CONFIG_FILE 环境变量 > configs/config.yaml`,
		Version:       appVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "配置文件路径 (例如: --config=configs/config.yaml)")

	root.AddCommand(
		newRunCmd(),
		newSeedCmd(),
		newStatsCmd(),
		newListCmd(),
		newRetryCmd(),
		newDetectCmd(),
		newBackupCmd(),
		newServeCmd(),
		newTokenCmd(),
		newEncryptCmd(),
	)
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "错误: %v\n", err)
		os.Exit(1)
	}
}
