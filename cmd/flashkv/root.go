package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/forever-free1/FlashKV/storage/flash"
	"github.com/forever-free1/FlashKV/storage/logstore"
	"github.com/hashicorp/go-hclog"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	// Version 是命令行工具的版本
	Version = "0.1.0"

	// wrap 是帮助文本的换行宽度
	wrap = 50
)

var rootCmd = &cobra.Command{
	Use:   "flashkv",
	Short: "log-structured key-value store on NOR flash images",
	Long: fmt.Sprintf(`flashkv (v%s)

Stores key-value pairs in a flash image file using an append-only,
page-based log with wear-leveled reclamation. Flags can also be set
via environment variables FLASHKV_<FLAG> (e.g. FLASHKV_PAGE_SIZE=4096)
or a .env file.`, Version),
	SilenceUsage:      true,
	PersistentPreRunE: bindFlags,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of flashkv",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "flashkv v%s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.AddCommand(versionCmd, formatCmd, putCmd, getCmd, rmCmd, keysCmd, eraseAllCmd, infoCmd, serveCmd)

	key := "image"
	rootCmd.PersistentFlags().String(key, "flashkv.img", wrapString("Path of the flash image file"))

	key = "page-size"
	rootCmd.PersistentFlags().Int(key, 4096, wrapString("Erase size of the flash in bytes; every page holds one log segment"))

	key = "write-size"
	rootCmd.PersistentFlags().Int(key, 4, wrapString("Write granularity of the flash in bytes; items are padded to it"))

	key = "max-key-len"
	rootCmd.PersistentFlags().Int(key, logstore.DefaultMaxKeyLen, wrapString("Maximum key length in bytes (at most 126)"))

	key = "buffer-size"
	rootCmd.PersistentFlags().Int(key, logstore.DefaultDataBufferSize, wrapString("Size of the item read/write buffer; bounds the largest value"))

	key = "cache"
	rootCmd.PersistentFlags().String(key, "none", wrapString("Key position cache (none, map, art)"))

	key = "max-cached-keys"
	rootCmd.PersistentFlags().Int(key, 1024, wrapString("Upper bound on cached key positions"))

	key = "log-level"
	rootCmd.PersistentFlags().String(key, "warn", wrapString("Level at which logs are written to stderr (trace, debug, info, warn, error)"))
}

// initConfig 读取 .env 文件和环境变量
func initConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("flashkv")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// bindFlags 将命令行参数绑定到 viper，命令行优先于环境变量
func bindFlags(cmd *cobra.Command, _ []string) error {
	return viper.BindPFlags(cmd.Flags())
}

func newLogger() hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:   "flashkv",
		Level:  hclog.LevelFromString(viper.GetString("log-level")),
		Output: os.Stderr,
	})
}

// storeOptions 根据配置生成引擎选项
func storeOptions(logger hclog.Logger, extra ...logstore.Option) ([]logstore.Option, error) {
	opts := []logstore.Option{
		logstore.WithLogger(logger),
		logstore.WithMaxKeyLen(viper.GetInt("max-key-len")),
		logstore.WithDataBufferSize(viper.GetInt("buffer-size")),
	}
	switch cache := viper.GetString("cache"); cache {
	case "", "none":
	case "map":
		opts = append(opts, logstore.WithCache(logstore.IndexTypeMap, viper.GetInt("max-cached-keys")))
	case "art":
		opts = append(opts, logstore.WithCache(logstore.IndexTypeART, viper.GetInt("max-cached-keys")))
	default:
		return nil, fmt.Errorf("未知的缓存类型: %s", cache)
	}
	return append(opts, extra...), nil
}

// openStore 打开镜像文件并创建存储引擎
// 返回的 close 函数释放区间并同步关闭镜像
func openStore(extra ...logstore.Option) (*logstore.Storage, func() error, error) {
	logger := newLogger()
	opts, err := storeOptions(logger, extra...)
	if err != nil {
		return nil, nil, err
	}

	f, err := flash.OpenFile(viper.GetString("image"), viper.GetInt("page-size"),
		flash.WithFileWriteSize(viper.GetInt("write-size")))
	if err != nil {
		return nil, nil, err
	}
	claim, err := flash.DefaultRegistry.Claim(f, flash.Whole(f))
	if err != nil {
		f.Close()
		return nil, nil, fmt.Errorf("占用闪存区间失败: %w", err)
	}
	s, err := logstore.Open(claim, opts...)
	if err != nil {
		claim.Release()
		f.Close()
		return nil, nil, err
	}

	closer := func() error {
		s.Close()
		return f.Close()
	}
	return s, closer, nil
}

// wrapString 将帮助文本按 wrap 个字符换行
func wrapString(text string) string {
	var lines []string
	var line strings.Builder
	width := 0

	for _, word := range strings.Fields(text) {
		if width > 0 && width+1+len(word) > wrap {
			lines = append(lines, line.String())
			line.Reset()
			width = 0
		}
		if width > 0 {
			line.WriteString(" ")
			width++
		}
		line.WriteString(word)
		width += len(word)
	}
	if line.Len() > 0 {
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}
