package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCLI_Workflow(t *testing.T) {
	image := filepath.Join(t.TempDir(), "kv.img")
	flags := []string{"--image", image, "--page-size", "512"}
	with := func(args ...string) []string {
		return append(args, flags...)
	}

	if out, err := run(t, with("format", "--pages", "4")...); err != nil {
		t.Fatalf("format 失败: %v, %s", err, out)
	}
	if out, err := run(t, with("put", "wifi/ssid", "office")...); err != nil {
		t.Fatalf("put 失败: %v, %s", err, out)
	}
	if out, err := run(t, with("put", "wifi/pass", "secret")...); err != nil {
		t.Fatalf("put 失败: %v, %s", err, out)
	}

	out, err := run(t, with("get", "wifi/ssid")...)
	if err != nil {
		t.Fatalf("get 失败: %v", err)
	}
	if strings.TrimSpace(out) != "office" {
		t.Errorf("get 输出不匹配: %q", out)
	}

	if out, err := run(t, with("rm", "wifi/pass")...); err != nil {
		t.Fatalf("rm 失败: %v, %s", err, out)
	}
	if _, err := run(t, with("get", "wifi/pass")...); err == nil {
		t.Error("删除后 get 应返回错误")
	}

	out, err = run(t, with("keys")...)
	if err != nil {
		t.Fatalf("keys 失败: %v", err)
	}
	if strings.TrimSpace(out) != "wifi/ssid" {
		t.Errorf("keys 输出不匹配: %q", out)
	}

	out, err = run(t, with("info")...)
	if err != nil {
		t.Fatalf("info 失败: %v", err)
	}
	if !strings.Contains(out, "open") {
		t.Errorf("info 输出应包含页状态: %s", out)
	}

	if out, err := run(t, with("erase-all")...); err != nil {
		t.Fatalf("erase-all 失败: %v, %s", err, out)
	}
	if _, err := run(t, with("get", "wifi/ssid")...); err == nil {
		t.Error("擦除后 get 应返回错误")
	}
}

func TestWrapString(t *testing.T) {
	text := strings.Repeat("word ", 30)
	for _, line := range strings.Split(wrapString(text), "\n") {
		if len(line) > wrap {
			t.Errorf("行长度超过 %d: %q", wrap, line)
		}
	}
}
