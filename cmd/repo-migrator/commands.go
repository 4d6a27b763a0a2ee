package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"repo-migrator/internal/api/router"
	"repo-migrator/internal/core/lfs"
	"repo-migrator/internal/core/migration"
	"repo-migrator/internal/model"
	"repo-migrator/internal/pkg/jwt"
	"repo-migrator/internal/scheduler"
	"repo-migrator/internal/service"
	"repo-migrator/pkg/constants"
	"repo-migrator/pkg/utils"
)

// signalContext 收到 SIGINT/SIGTERM 时取消
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func newRunCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "执行一轮迁移",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(configFile)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signalContext()
			defer stop()

			o, err := a.orchestrator(ctx)
			if err != nil {
				return err
			}
			report, err := a.migrationService(o).Run(ctx)
			if report != nil {
				printReport(cmd.OutOrStdout(), report)
			}
			if errors.Is(err, context.Canceled) {
				return fmt.Errorf("迁移被中断，已处理的进度保存在状态表中")
			}
			return err
		},
	}
}

func printReport(w io.Writer, r *migration.RunReport) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"run", "pending", "attempted", "completed", "failed", "quota pauses", "duration"})
	table.Append([]string{
		r.RunID,
		strconv.Itoa(r.Pending),
		strconv.Itoa(r.Attempted),
		strconv.Itoa(r.Completed),
		strconv.Itoa(r.Failed),
		strconv.Itoa(r.QuotaPauses),
		r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String(),
	})
	table.Render()
	if r.Snapshot != "" {
		fmt.Fprintf(w, "运行前备份: %s\n", r.Snapshot)
	}
}

func newSeedCmd() *cobra.Command {
	var opts service.SeedOptions
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "从源端平台导入仓库列表，只追加新仓库",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(configFile)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signalContext()
			defer stop()

			source, err := a.remote(&a.cfg.Source)
			if err != nil {
				return err
			}
			result, err := service.NewSeedService(a.store, source, a.logger).Seed(ctx, opts)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "列出 %d 个，新增 %d 个，已存在 %d 个，跳过 %d 个\n",
				result.Listed, len(result.Added), result.Known, len(result.Skipped))
			return nil
		},
	}
	cmd.Flags().BoolVar(&opts.IncludeArchived, "include-archived", false, "包含已归档仓库")
	cmd.Flags().BoolVar(&opts.IncludeForks, "include-forks", false, "包含 fork 仓库")
	cmd.Flags().BoolVar(&opts.IncludeEmpty, "include-empty", false, "包含空仓库")
	cmd.Flags().StringVar(&opts.DefaultBranch, "default-branch", "main", "平台未返回默认分支时使用")
	return cmd
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "迁移统计",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(configFile)
			if err != nil {
				return err
			}
			defer a.close()

			stats, err := a.store.Statistics()
			if err != nil {
				return err
			}
			printStatistics(cmd.OutOrStdout(), stats)
			return nil
		},
	}
}

func printStatistics(w io.Writer, s *model.Statistics) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"item", "count"})
	table.AppendBulk([][]string{
		{"total", strconv.Itoa(s.Total)},
		{"transferred", strconv.Itoa(s.Transferred)},
		{"processing", strconv.Itoa(s.Processing)},
		{"failed", strconv.Itoa(s.Failed)},
		{"exhausted", strconv.Itoa(s.Exhausted)},
		{"pending", strconv.Itoa(s.Pending)},
		{"with large files", fmt.Sprintf("%d (%d transferred)", s.WithLargeFiles, s.WithLargeFilesTransferred)},
		{"complete", fmt.Sprintf("%.1f%%", s.PercentComplete)},
	})
	table.Render()
}

func newListCmd() *cobra.Command {
	var state string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "列出仓库迁移记录",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(configFile)
			if err != nil {
				return err
			}
			defer a.close()

			records, err := a.migrationService(nil).List(state)
			if err != nil {
				return err
			}
			printRecords(cmd.OutOrStdout(), records, time.Now())
			return nil
		},
	}
	cmd.Flags().StringVar(&state, "state", "", "按状态过滤: pending|processing|completed|failed|exhausted")
	return cmd
}

func printRecords(w io.Writer, records []*model.RepoRecord, now time.Time) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"name", "branch", "state", "retries", "lfs", "pushed", "error"})
	table.SetAutoWrapText(false)
	for _, r := range records {
		pushed := "-"
		if r.PushedAt != nil {
			pushed = humanize.RelTime(*r.PushedAt, now, "ago", "from now")
		}
		lfsInfo := "-"
		if r.HasLFS {
			lfsInfo = fmt.Sprintf("%s (%d)", r.LFSStrategy, len(r.LFSFiles))
		}
		errMsg := ""
		if r.Error != nil {
			errMsg = truncate(*r.Error, 60)
		}
		table.Append([]string{
			r.Name,
			r.Branch,
			constants.RecordStateToString(r.State()),
			strconv.Itoa(r.RetryCount),
			lfsInfo,
			pushed,
			errMsg,
		})
	}
	table.Render()
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

func newRetryCmd() *cobra.Command {
	var allFailed bool
	cmd := &cobra.Command{
		Use:   "retry [name]",
		Short: "清除失败记录，下一轮重新迁移",
		Args: func(cmd *cobra.Command, args []string) error {
			if allFailed == (len(args) == 1) {
				return fmt.Errorf("需要指定仓库名或 --all-failed 之一")
			}
			return cobra.MaximumNArgs(1)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configFile)
			if err != nil {
				return err
			}
			defer a.close()

			svc := a.migrationService(nil)
			if allFailed {
				names, err := svc.RetryAllFailed()
				fmt.Fprintf(cmd.OutOrStdout(), "已重新排队 %d 个仓库\n", len(names))
				return err
			}
			if _, err := svc.Retry(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s 已重新排队\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&allFailed, "all-failed", false, "重试全部失败和达到上限的仓库")
	return cmd
}

func newDetectCmd() *cobra.Command {
	var name string
	cmd := &cobra.Command{
		Use:   "detect <path>",
		Short: "对本地克隆执行大文件检测，输出迁移计划（不修改仓库）",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configFile)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signalContext()
			defer stop()

			resolver, err := lfs.NewResolver(a.settings, a.logger)
			if err != nil {
				return err
			}
			table, err := a.configTable()
			if err != nil {
				return err
			}
			if name == "" {
				name = filepath.Base(filepath.Clean(args[0]))
			}

			result, err := resolver.Resolve(ctx, name, args[0], table)
			if err != nil {
				return err
			}
			plan := lfs.SelectStrategy(result, a.settings)

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "仓库: %s  模式: %s  阈值: %s (%s)\n",
				name, result.Mode, a.settings.Threshold, humanize.IBytes(uint64(a.settings.ThresholdBytes)))
			fmt.Fprintf(out, "策略: %s\n", plan.Strategy)
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			if err := enc.Encode(result); err != nil {
				return err
			}
			if plan.RequiresRewrite() {
				fmt.Fprintf(out, "\n.gitattributes:\n%s", plan.GitAttributes())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "状态表中的仓库名，用于匹配 LFS 配置，默认取目录名")
	return cmd
}

func newBackupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "backup",
		Short: "写入一份带时间戳的状态表备份",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(configFile)
			if err != nil {
				return err
			}
			defer a.close()

			path, err := a.store.Snapshot()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	}
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "启动状态 API，按 scheduler.cron 定时迁移",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(configFile)
			if err != nil {
				return err
			}
			defer a.close()

			ctx, stop := signalContext()
			defer stop()

			a.enableMetrics()
			o, err := a.orchestrator(ctx)
			if err != nil {
				return err
			}
			svc := a.migrationService(o)

			var manager *jwt.Manager
			if a.cfg.Auth.JWT.Secret != "" {
				if manager, err = jwt.NewManager(a.cfg.Auth.JWT); err != nil {
					return err
				}
			}

			engine := router.Setup(router.Options{
				Mode:     a.cfg.Server.Mode,
				Service:  svc,
				JWT:      manager,
				Gatherer: a.registry,
				RunCtx:   ctx,
				Logger:   a.logger,
			})
			addr := fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port)
			srv := &http.Server{
				Addr:              addr,
				Handler:           engine,
				ReadHeaderTimeout: 10 * time.Second,
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				a.logger.Info(fmt.Sprintf("%s 服务启动成功", a.cfg.Server.Name),
					zap.String("address", addr),
					zap.String("mode", a.cfg.Server.Mode))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return fmt.Errorf("服务器启动失败: %w", err)
				}
				return nil
			})

			if a.cfg.Scheduler.Enabled {
				sched := scheduler.NewScheduler(svc, a.logger)
				if err := sched.Start(gctx, a.cfg.Scheduler.Cron); err != nil {
					_ = srv.Close()
					return err
				}
				g.Go(func() error {
					<-gctx.Done()
					sched.Stop()
					return nil
				})
			}

			g.Go(func() error {
				<-gctx.Done()
				a.logger.Info("服务正在关闭...")
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				return srv.Shutdown(shutdownCtx)
			})

			err = g.Wait()
			a.logger.Info("服务已关闭")
			return err
		},
	}
}

func newTokenCmd() *cobra.Command {
	var operator string
	cmd := &cobra.Command{
		Use:   "token",
		Short: "签发调用重试/触发接口的访问 Token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(configFile)
			if err != nil {
				return err
			}
			defer a.close()

			manager, err := jwt.NewManager(a.cfg.Auth.JWT)
			if err != nil {
				return err
			}
			token, err := manager.GenerateAccessToken(operator)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&operator, "operator", "ops", "Token 标识的操作人")
	return cmd
}

func newEncryptCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "encrypt <token>",
		Short: "用 crypto.aes_key 加密平台 token，输出可填入 token_enc 的值",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(configFile)
			if err != nil {
				return err
			}
			defer a.close()

			enc, err := utils.EncryptSecret(a.cfg.Crypto.AESKey, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), enc)
			return nil
		},
	}
}
