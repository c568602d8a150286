package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
// Most values have simple defaults and can be overridden via environment
// variables (optionally loaded from a .env file).
type Config struct {
	FFmpegPath  string
	FFprobePath string

	// 音频合成参数
	AudioBitrate   string // e.g., "128k"
	AudioFrequency int    // output sample rate, e.g., 44100
	BlankSource    string // 固定的空白音频源文件，用于裁剪任意时长的静音片段

	// Cache directory layout. All job artifacts live under CacheDir.
	CacheDir  string
	RunDir    string // per-run temp files (silence clips, concat scripts)
	LineDir   string // per-line synthesized MP3s + metadata JSON
	BlanksDir string // blank/silence source assets
	ScriptDir string // merged script-audio artifacts
	VideoDir  string // cached source videos
	OutputDir string // final dubbed outputs
	JobsDir   string // job status records

	// MinIO 对象存储配置
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool
	MinioEnabled   bool
	SourcePrefix   string // bucket prefix for source videos
	OutputPrefix   string // bucket prefix for published dub outputs
	TrackPrefix    string // bucket prefix for track-conversion outputs
	OutputType     string // "minio" to publish to the remote store, "local" to keep on disk
	PublicURLBase  string // base URL callers use to fetch published outputs
	OutputACL      string
	OutputMimeType string

	// TTS 语音合成配置
	TTSBaseURL     string
	TTSVoice       string
	TTSEffect      string
	TTSEffectLevel int
	TTSAuthToken   string

	// 服务与状态代理配置
	Host           string // this worker's host, used in 202 responses and proxy decisions
	Port           string
	HeadCheckWait  time.Duration // intake fast-path bound on the remote existence check
	ProxyTimeout   time.Duration // cross-host status query bound
	StatusCacheTTL time.Duration

	// Redis配置
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// MySQL 任务历史配置
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBEnabled  bool
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// getEnvDuration 读取毫秒数形式的时长配置
func getEnvDuration(key string, fallbackMs int) time.Duration {
	return time.Duration(getEnvInt(key, fallbackMs)) * time.Millisecond
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// Attempt to load .env file. godotenv.Load() will not override existing env vars.
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	cacheBase := getEnv("CACHE_DIR", "cache")
	host := getEnv("VOXDUB_HOST", "localhost")

	return &Config{
		FFmpegPath:  getEnv("FFMPEG_PATH", "ffmpeg"),
		FFprobePath: getEnv("FFPROBE_PATH", "ffprobe"),

		AudioBitrate:   getEnv("AUDIO_BITRATE", "128k"),
		AudioFrequency: getEnvInt("AUDIO_FREQUENCY", 44100),
		BlankSource:    getEnv("BLANK_SOURCE", filepath.Join(cacheBase, "blanks", "blank_300s.mp3")),

		CacheDir:  cacheBase,
		RunDir:    filepath.Join(cacheBase, "run"),
		LineDir:   filepath.Join(cacheBase, "line"),
		BlanksDir: filepath.Join(cacheBase, "blanks"),
		ScriptDir: filepath.Join(cacheBase, "script"),
		VideoDir:  filepath.Join(cacheBase, "video"),
		OutputDir: filepath.Join(cacheBase, "output"),
		JobsDir:   filepath.Join(cacheBase, "jobs"),

		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey: os.Getenv("MINIO_SECRET_KEY"),
		MinioBucket:    getEnv("MINIO_BUCKET", "voxdub"),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
		MinioEnabled:   getEnvBool("MINIO_ENABLED", true),
		SourcePrefix:   getEnv("SOURCE_PREFIX", "sources"),
		OutputPrefix:   getEnv("OUTPUT_PREFIX", "outputs"),
		TrackPrefix:    getEnv("TRACK_PREFIX", "tracks"),
		OutputType:     getEnv("OUTPUT_TYPE", "minio"),
		PublicURLBase:  getEnv("PUBLIC_URL_BASE", "http://"+host+":8080"),
		OutputACL:      getEnv("OUTPUT_ACL", "public-read"),
		OutputMimeType: getEnv("OUTPUT_MIME_TYPE", "video/mp4"),

		TTSBaseURL:     getEnv("TTS_BASE_URL", "http://127.0.0.1:3000"),
		TTSVoice:       getEnv("TTS_VOICE", "xiaoyun"),
		TTSEffect:      getEnv("TTS_EFFECT", "robot"),
		TTSEffectLevel: getEnvInt("TTS_EFFECT_LEVEL", 1),
		TTSAuthToken:   os.Getenv("TTS_AUTH_TOKEN"),

		Host:           host,
		Port:           getEnv("VOXDUB_PORT", "8080"),
		HeadCheckWait:  getEnvDuration("HEAD_CHECK_WAIT_MS", 800),
		ProxyTimeout:   getEnvDuration("PROXY_TIMEOUT_MS", 3000),
		StatusCacheTTL: getEnvDuration("STATUS_CACHE_TTL_MS", 600000),

		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""), // 默认无密码
		RedisDB:       getEnvInt("REDIS_DB", 0),

		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"), // For password, better not to have a hardcoded default
		DBName:     getEnv("DB_NAME", "voxdub"),
		DBEnabled:  getEnvBool("DB_ENABLED", false),
	}
}
