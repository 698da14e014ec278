package transcript

import "testing"

func TestNewMySQLStoreEmptyDSN(t *testing.T) {
	if _, err := NewMySQLStore("  "); err == nil {
		t.Fatal("空 DSN 应返回错误")
	}
}

// 端口 1 无监听者，连接立即被拒绝，走的是探活失败后释放连接池的路径。
func TestNewMySQLStoreUnreachable(t *testing.T) {
	store, err := NewMySQLStore("launchmcp:launchmcp@tcp(127.0.0.1:1)/launchmcp?timeout=500ms")
	if err == nil {
		store.Close()
		t.Fatal("不可达的 MySQL 应返回错误")
	}
}
