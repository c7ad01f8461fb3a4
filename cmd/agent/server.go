package agent

import (
	"github.com/spf13/cobra"

	"github.com/metric-relay/pkg/config"
)

var defaultCfg = config.NewDefaultConfig()

func initServerFlags(root *cobra.Command) {
	f := root.PersistentFlags()

	f.String("server.addr", defaultCfg.Server.Addr, "-> Admin HTTP listening address | 管理HTTP监听地址")
	f.Duration("server.read-timeout", defaultCfg.Server.ReadTimeout, "-> Read timeout duration | 读取超时时间")
	f.Duration("server.write-timeout", defaultCfg.Server.WriteTimeout, "-> Write timeout duration | 写入超时时间")
	f.Duration("server.idle-timeout", defaultCfg.Server.IdleTimeout, "-> Idle connection timeout duration | 空闲连接超时时间")
}

func initHostFlags(root *cobra.Command) {
	f := root.PersistentFlags()

	f.Duration("host.tick-duration", defaultCfg.Host.TickDuration, "-> Duration of one host tick | 单个tick时长")
	f.Bool("watch", defaultCfg.Watch, "-> Reload when the config file changes | 配置文件变更时自动reload")
}
