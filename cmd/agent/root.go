package agent

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/metric-relay/pkg/config"
)

const projectName = "metric-relay"

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   projectName,
	Short: "Scrape server metric groups on the host tick and push them to console, Graphite and Prometheus",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, store, err := config.LoadConfigWithCli(cmd)
		if err != nil {
			// 统一输出错误到 stderr，不返回给 cobra
			_, _ = fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			_, _ = fmt.Fprintf(os.Stderr, "请检查配置文件路径或使用 -c 参数指定\n")
			os.Exit(1)
		}
		if err := runAgent(cmd, cfg, store); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "服务启动失败: %v\n", err)
			os.Exit(1)
		}
		return nil
	},
}

// Execute CLI 入口
func Execute() {
	cobra.CheckErr(rootCmd.Execute())
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "configs/config.yaml", "-> Config file path | 配置文件路径")
	// 注册分组 flag
	initServerFlags(rootCmd)
	initHostFlags(rootCmd)
	initLogFlags(rootCmd)

	rootCmd.AddCommand(newReloadCmd(), newVersionCmd())
}
