// Command flashkv 管理闪存镜像文件上的键值存储
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
