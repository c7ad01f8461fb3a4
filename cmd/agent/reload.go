package agent

import (
	"bytes"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/metric-relay/pkg/config"
	"github.com/metric-relay/pkg/registers"
)

type reloadResult struct {
	OK       bool                    `json:"ok"`
	Error    string                  `json:"error"`
	Messages []registers.Message     `json:"messages"`
	Report   *registers.ReloadReport `json:"report"`
}

func newReloadCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "reload",
		Short: "Ask a running agent to reload its configuration | 通知运行中的进程重新加载配置",
		RunE: func(cmd *cobra.Command, args []string) error {
			// 配置文件不可读时退回到 --server.addr
			addr, _ := cmd.Flags().GetString("server.addr")
			if cfg, _, err := config.LoadConfigWithCli(cmd); err == nil {
				addr = cfg.Server.Addr
			}
			client := &http.Client{Timeout: timeout}
			return requestReload(client, reloadURL(addr), cmd.OutOrStdout())
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "-> Request timeout | 请求超时时间")
	return cmd
}

// reloadURL 通配监听地址改写为本机回环地址
func reloadURL(addr string) string {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "http://" + addr + "/-/reload"
	}
	switch host {
	case "", "0.0.0.0":
		host = "127.0.0.1"
	case "::":
		host = "::1"
	}
	return "http://" + net.JoinHostPort(host, port) + "/-/reload"
}

// requestReload 调用 POST /-/reload 并逐行输出反馈
func requestReload(client *http.Client, url string, out io.Writer) error {
	resp, err := client.Post(url, "application/json", bytes.NewReader(nil))
	if err != nil {
		return fmt.Errorf("request reload: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read reload response: %w", err)
	}
	var result reloadResult
	if err := jsoniter.Unmarshal(body, &result); err != nil {
		return fmt.Errorf("decode reload response (status %d): %w", resp.StatusCode, err)
	}

	for _, m := range result.Messages {
		_, _ = fmt.Fprintf(out, "[%s] %s\n", m.Level, m.Message)
	}
	if !result.OK {
		return fmt.Errorf("reload failed: %s", result.Error)
	}
	if r := result.Report; r != nil {
		_, _ = fmt.Fprintf(out, "metric groups: %v\nupdaters: %v\n", r.Producers, r.Consumers)
	}
	return nil
}
