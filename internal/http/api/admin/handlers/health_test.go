package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/storechat/admission/internal/kvstore"
	"gorm.io/gorm"
)

func serveHealth(t *testing.T, handler *HealthHandler) (int, map[string]any) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/healthz", handler.Healthz)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	var body map[string]any
	if errDecode := json.Unmarshal(recorder.Body.Bytes(), &body); errDecode != nil {
		t.Fatalf("decode body: %v", errDecode)
	}
	return recorder.Code, body
}

func TestHealthzReportsRedisState(t *testing.T) {
	dsn := fmt.Sprintf("file:health_%d?mode=memory&cache=shared", time.Now().UnixNano())
	conn, errOpen := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if errOpen != nil {
		t.Fatalf("open db: %v", errOpen)
	}
	mr := miniredis.RunT(t)
	store, err := kvstore.NewRedisStore(kvstore.RedisOptions{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("redis store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	handler := NewHealthHandler(conn, store)

	status, body := serveHealth(t, handler)
	if status != http.StatusOK || body["redis"] != "ok" {
		t.Fatalf("expected healthy redis, got %d %v", status, body)
	}

	mr.Close()
	status, body = serveHealth(t, handler)
	if status != http.StatusOK || body["redis"] != "down" || body["ok"] != true {
		t.Fatalf("redis outage must not fail health, got %d %v", status, body)
	}

	sqlDB, _ := conn.DB()
	_ = sqlDB.Close()
	status, body = serveHealth(t, handler)
	if status != http.StatusServiceUnavailable || body["database"] != "down" {
		t.Fatalf("expected 503 with database down, got %d %v", status, body)
	}
}
