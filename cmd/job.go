package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"VoxDub/config"
	"VoxDub/core/address"
	"VoxDub/core/media"
	"VoxDub/core/pipeline"
	"VoxDub/core/tts"
	"VoxDub/logger"
	"VoxDub/model"
	"VoxDub/repository"
	"VoxDub/storage"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	jobVideo  string
	jobScript string
	jobID     string
	jobTrack  bool
)

var jobCmd = &cobra.Command{
	Use:   "job",
	Short: "在本地跑一个配音任务",
	Long:  `不经过HTTP接口，直接在当前进程中跑完一个配音任务的全部阶段，便于调试。`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := config.Load()
		logger.InitLogger(logger.DefaultConfig())

		data, err := os.ReadFile(jobScript)
		if err != nil {
			log.Fatalf("读取脚本文件失败: %v", err)
		}
		var script []model.ScriptLine
		if err := json.Unmarshal(data, &script); err != nil {
			log.Fatalf("解析脚本文件失败: %v", err)
		}

		kind := model.KindVideo
		if jobTrack {
			kind = model.KindTrack
		}
		if jobID == "" {
			jobID = uuid.NewString()
		}

		var store pipeline.Store
		if cfg.MinioEnabled {
			if err := storage.InitMinio(cfg); err != nil {
				log.Fatalf("无法连接到MinIO: %v", err)
			}
			s, err := storage.NewMinioStore(cfg.MinioBucket)
			if err != nil {
				log.Fatalf("创建MinIO客户端失败: %v", err)
			}
			store = s
		}

		job, err := address.NewJob(jobID, model.JobTemplate{
			Video:  jobVideo,
			Script: script,
			Kind:   kind,
		}, cfg)
		if err != nil {
			log.Fatalf("构造任务失败: %v", err)
		}

		ops := media.NewFFmpeg(cfg.FFmpegPath, cfg.FFprobePath, cfg.BlankSource, cfg.RunDir)
		synth := tts.NewClient(cfg.TTSBaseURL, cfg.TTSAuthToken)
		pipe := pipeline.New(cfg, ops, synth, store, repository.NewFileStatusRepository(), nil)

		if err := pipe.Run(context.Background(), job); err != nil {
			log.Fatalf("任务失败: %v", err)
		}

		fmt.Printf("任务完成！\n输出: %s\nURL: %s\nMD5: %s\n", job.OutputPath, job.OutputURL, job.MD5)
	},
}

func init() {
	rootCmd.AddCommand(jobCmd)

	jobCmd.Flags().StringVarP(&jobVideo, "video", "v", "", "源视频文件名")
	jobCmd.Flags().StringVarP(&jobScript, "script", "f", "", "脚本JSON文件，元素形如 {\"ts\": 2.0, \"line\": \"台词\"}")
	jobCmd.Flags().StringVar(&jobID, "id", "", "任务ID，不传则自动生成")
	jobCmd.Flags().BoolVar(&jobTrack, "track", false, "只做轨道转换，使用独立的命名空间")
	jobCmd.MarkFlagRequired("video")
	jobCmd.MarkFlagRequired("script")
}
