package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/forever-free1/FlashKV/metrics"
	"github.com/forever-free1/FlashKV/storage/flash"
	"github.com/forever-free1/FlashKV/storage/logstore"
	"github.com/forever-free1/FlashKV/watch"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

func newTestServer(t *testing.T, f flash.NorFlash) (*Server, *watch.Hub) {
	t.Helper()
	reg := prometheus.NewRegistry()
	s, err := logstore.New(f, flash.Whole(f), logstore.WithRecorder(metrics.New(reg)))
	if err != nil {
		t.Fatalf("创建存储失败: %v", err)
	}
	hub := watch.NewHub()
	t.Cleanup(hub.Close)
	return NewServer(":0", logstore.NewShared(s), hub, reg, nil), hub
}

func doRequest(srv http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, req)
	return w
}

func TestHandler_PutGetDelete(t *testing.T) {
	srv, _ := newTestServer(t, flash.NewMultiwriteMem(4, 256))

	w := doRequest(srv, http.MethodPost, "/v1/kv/put", gin.H{"key": "wifi/ssid", "value": "office"})
	if w.Code != http.StatusOK {
		t.Fatalf("put 状态码: %d, body: %s", w.Code, w.Body)
	}

	w = doRequest(srv, http.MethodGet, "/v1/kv/get?key=wifi/ssid", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get 状态码: %d", w.Code)
	}
	var got struct {
		Key   string `json:"key"`
		Value string `json:"value"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if got.Value != "office" {
		t.Errorf("值不匹配: %s", got.Value)
	}

	w = doRequest(srv, http.MethodDelete, "/v1/kv/delete?key=wifi/ssid", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete 状态码: %d, body: %s", w.Code, w.Body)
	}
	w = doRequest(srv, http.MethodGet, "/v1/kv/get?key=wifi/ssid", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("删除后应返回 404, 得到: %d", w.Code)
	}
}

func TestHandler_ErrorStatus(t *testing.T) {
	srv, _ := newTestServer(t, flash.NewMem(2, 128))

	if w := doRequest(srv, http.MethodGet, "/v1/kv/get", nil); w.Code != http.StatusBadRequest {
		t.Errorf("缺少 key 应返回 400, 得到: %d", w.Code)
	}
	w := doRequest(srv, http.MethodPost, "/v1/kv/put", gin.H{"key": strings.Repeat("k", 100), "value": "v"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("键过长应返回 400, 得到: %d", w.Code)
	}
	if w := doRequest(srv, http.MethodDelete, "/v1/kv/delete?key=a", nil); w.Code != http.StatusNotImplemented {
		t.Errorf("不支持删除应返回 501, 得到: %d", w.Code)
	}

	full := false
	for i := 0; i < 50; i++ {
		w := doRequest(srv, http.MethodPost, "/v1/kv/put", gin.H{"key": fmt.Sprintf("key%02d", i), "value": "value"})
		if w.Code == http.StatusInsufficientStorage {
			full = true
			break
		}
		if w.Code != http.StatusOK {
			t.Fatalf("put 状态码: %d, body: %s", w.Code, w.Body)
		}
	}
	if !full {
		t.Error("存储写满后应返回 507")
	}
}

func TestHandler_StatsAndEraseAll(t *testing.T) {
	srv, _ := newTestServer(t, flash.NewMem(3, 256))
	doRequest(srv, http.MethodPost, "/v1/kv/put", gin.H{"key": "a", "value": "1"})

	w := doRequest(srv, http.MethodGet, "/v1/stats", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("stats 状态码: %d", w.Code)
	}
	var st logstore.Stats
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("解析统计失败: %v", err)
	}
	if len(st.Pages) != 3 || st.OpenPage != 0 || st.Pages[0].StateName != "open" {
		t.Errorf("统计不正确: %+v", st)
	}

	if w := doRequest(srv, http.MethodPost, "/v1/admin/erase-all", nil); w.Code != http.StatusOK {
		t.Fatalf("erase-all 状态码: %d", w.Code)
	}
	if w := doRequest(srv, http.MethodGet, "/v1/kv/get?key=a", nil); w.Code != http.StatusNotFound {
		t.Errorf("擦除后应返回 404, 得到: %d", w.Code)
	}

	w = doRequest(srv, http.MethodGet, "/metrics", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "flashkv_operations_total") {
		t.Errorf("metrics 输出不正确: %d", w.Code)
	}
}

func TestHandler_Watch(t *testing.T) {
	srv, _ := newTestServer(t, flash.NewMem(3, 256))
	ts := httptest.NewServer(srv)
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/v1/watch?prefix=wifi/", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("连接 watch 失败: %v", err)
	}
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil || !strings.HasPrefix(line, ": connected") {
		t.Fatalf("期望连接消息, 得到: %q, %v", line, err)
	}

	doRequest(srv, http.MethodPost, "/v1/kv/put", gin.H{"key": "other", "value": "x"})
	doRequest(srv, http.MethodPost, "/v1/kv/put", gin.H{"key": "wifi/ssid", "value": "office"})

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("读取事件失败: %v", err)
		}
		if strings.HasPrefix(line, "data:") {
			var ev watch.Event
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data:")), &ev); err != nil {
				t.Fatalf("解析事件失败: %v", err)
			}
			if ev.Key != "wifi/ssid" || ev.Type != watch.EventInsert || string(ev.Value) != "office" {
				t.Errorf("事件不匹配: %+v", ev)
			}
			return
		}
	}
}
