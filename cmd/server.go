package cmd

import (
	"VoxDub/server"

	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "启动VoxDub工作节点",
	Long:  `启动VoxDub配音系统的HTTP服务器，接收配音任务并提供状态查询`,
	Run: func(cmd *cobra.Command, args []string) {
		server.Start()
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}
