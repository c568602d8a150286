package cmd

import (
	"fmt"
	"log"

	"VoxDub/config"
	"VoxDub/storage"

	"github.com/spf13/cobra"
)

var (
	minioPrefix    string
	minioStats     bool
	minioRecursive bool
	minioDelete    bool
)

var minioCmd = &cobra.Command{
	Use:   "minio",
	Short: "MinIO存储桶管理",
	Long:  `查看和管理MinIO存储桶中的配音产物，支持列出对象、查看统计信息、按前缀删除等功能。`,
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("开始连接MinIO服务器...")

		cfg := config.Load()
		fmt.Printf("MinIO配置: %s, Bucket: %s\n", cfg.MinioEndpoint, cfg.MinioBucket)

		if err := storage.InitMinio(cfg); err != nil {
			log.Fatalf("无法连接到MinIO: %v", err)
		}

		admin, err := storage.NewAdmin(cfg.MinioBucket)
		if err != nil {
			log.Fatalf("创建MinIO管理器失败: %v", err)
		}

		switch {
		case minioDelete:
			fmt.Printf("\n删除前缀: %s\n", minioPrefix)
			if err := admin.DeletePrefix(minioPrefix); err != nil {
				log.Fatalf("删除失败: %v", err)
			}
		case minioStats:
			fmt.Println("\n获取存储桶统计信息...")
			stats, err := admin.Stats(minioPrefix)
			if err != nil {
				log.Fatalf("获取统计信息失败: %v", err)
			}
			fmt.Printf("对象数量: %d\n", stats.TotalObjects)
			fmt.Printf("总大小: %.2f MB\n", float64(stats.TotalSize)/1024/1024)
			if !stats.LastModified.IsZero() {
				fmt.Printf("最后修改时间: %s\n", stats.LastModified)
			}
		default:
			fmt.Printf("\n列出存储桶中的对象 (前缀: %s)...\n", minioPrefix)
			if err := admin.List(minioPrefix, minioRecursive); err != nil {
				log.Fatalf("列出对象失败: %v", err)
			}
		}

		fmt.Println("\nMinIO操作完成！")
	},
}

func init() {
	rootCmd.AddCommand(minioCmd)

	minioCmd.Flags().StringVarP(&minioPrefix, "prefix", "p", "", "按前缀过滤对象或指定要操作的目录")
	minioCmd.Flags().BoolVarP(&minioStats, "stats", "s", false, "显示存储桶统计信息")
	minioCmd.Flags().BoolVarP(&minioRecursive, "recursive", "r", false, "递归列出对象")
	minioCmd.Flags().BoolVarP(&minioDelete, "delete", "d", false, "删除指定前缀下的所有对象")

	minioCmd.Example = `  # 列出已发布的配音产物
  voxdub minio -p "outputs/"

  # 显示存储桶统计信息
  voxdub minio -s

  # 删除某个前缀下的所有对象
  voxdub minio -d -p "outputs/old/"`
}
