package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bitfantasy/nimo-stock/internal/inventory/entity"
	"github.com/bitfantasy/nimo-stock/internal/inventory/repository"
	"github.com/bitfantasy/nimo-stock/internal/middleware"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	JWTSecret    = "nimo-stock-test-secret"
	ApproverRole = "bom_approver"
	AdminRole    = "inventory_admin"
)

var dbSeq atomic.Int64

// TestEnv holds test environment resources
type TestEnv struct {
	DB     *gorm.DB
	Router *gin.Engine
	T      *testing.T
}

// SetupTestDB 创建独立的内存 sqlite 库并迁移库存表
// 单连接使事务整体串行化，事务内的查询必须走事务句柄。
// 并发用例因此只验证后到者的条件更新被拒绝，不会出现两个事务交叉持锁。
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:stock_test_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                                   logger.Default.LogMode(logger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get database instance: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := entity.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to migrate test tables: %v", err)
	}

	t.Cleanup(func() {
		sqlDB.Close()
	})
	return db
}

// PinConnection 额外占住一个连接，保证内存库在池中连接因取消被丢弃后仍然存在
// 调用后连接池上限变为 2，业务查询仍只使用一个连接。
func PinConnection(t *testing.T, db *gorm.DB) {
	t.Helper()
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("Failed to get database instance: %v", err)
	}
	sqlDB.SetMaxOpenConns(2)
	conn, err := sqlDB.Conn(context.Background())
	if err != nil {
		t.Fatalf("Failed to pin connection: %v", err)
	}
	if err := conn.PingContext(context.Background()); err != nil {
		t.Fatalf("Failed to ping pinned connection: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
	})
}

// SetupRouter creates a gin test router
func SetupRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(gin.Recovery())
	return r
}

// AuthGroup creates an API group with JWT auth middleware for testing
func AuthGroup(r *gin.Engine, path string) *gin.RouterGroup {
	return r.Group(path, middleware.JWTAuth(JWTSecret))
}

// GenerateTestToken creates a valid JWT token for testing
func GenerateTestToken(userID, name string, roles, permissions []string) string {
	if roles == nil {
		roles = []string{}
	}
	if permissions == nil {
		permissions = []string{}
	}

	now := time.Now()
	claims := jwt.MapClaims{
		"sub":   userID,
		"uid":   userID,
		"name":  name,
		"roles": roles,
		"perms": permissions,
		"iss":   "nimo-stock",
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, _ := token.SignedString([]byte(JWTSecret))
	return tokenString
}

// DefaultTestToken returns a token for a user with write permission and approver role
func DefaultTestToken() string {
	return GenerateTestToken("test-user-001", "Test Admin", []string{ApproverRole}, []string{"*"})
}

// ReadOnlyTestToken returns a token without any permission
func ReadOnlyTestToken() string {
	return GenerateTestToken("test-user-002", "Viewer", nil, nil)
}

// DoRequest executes an HTTP request against the test router
func DoRequest(r *gin.Engine, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer
	if body != nil {
		jsonBytes, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBytes)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ParseResponse parses the JSON response body into a map
func ParseResponse(w *httptest.ResponseRecorder) map[string]interface{} {
	var result map[string]interface{}
	json.Unmarshal(w.Body.Bytes(), &result)
	return result
}

// SeedMaterial 直接写入一条物料
func SeedMaterial(t *testing.T, db *gorm.DB, name string, qty, minStock int64, unitPrice string) *entity.Material {
	t.Helper()
	now := time.Now()
	id := uuid.New().String()[:32]
	m := &entity.Material{
		ID:                id,
		SerialCode:        "MAT-TEST-" + id[:8],
		Name:              name,
		Category:          entity.MaterialCategoryElectronic,
		Unit:              entity.MaterialUnitPCS,
		QualityGrade:      entity.QualityGradeA,
		QuantityAvailable: qty,
		MinStockLevel:     minStock,
		MaxStockLevel:     minStock + 1000,
		UnitPrice:         decimal.RequireFromString(unitPrice),
		IsActive:          true,
		CreatedBy:         "seed",
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if err := repository.NewMaterialRepository(db).Create(context.Background(), m); err != nil {
		t.Fatalf("Failed to seed material: %v", err)
	}
	return m
}

// SeedProject 写入一个启用中的项目
func SeedProject(t *testing.T, db *gorm.DB, code string) *entity.Project {
	t.Helper()
	now := time.Now()
	p := &entity.Project{
		ID:        uuid.New().String()[:32],
		Code:      code,
		Name:      "Project " + code,
		Status:    "active",
		IsActive:  true,
		CreatedBy: "seed",
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := repository.NewProjectRepository(db).Create(context.Background(), p); err != nil {
		t.Fatalf("Failed to seed project: %v", err)
	}
	return p
}

// SeedMaintenance 写入一条维修记录
func SeedMaintenance(t *testing.T, db *gorm.DB, code string) *entity.MaintenanceRecord {
	t.Helper()
	now := time.Now()
	m := &entity.MaintenanceRecord{
		ID:            uuid.New().String()[:32],
		Code:          code,
		EquipmentName: "CNC-" + code,
		Status:        "in_progress",
		IsActive:      true,
		CreatedBy:     "seed",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := repository.NewMaintenanceRepository(db).Create(context.Background(), m); err != nil {
		t.Fatalf("Failed to seed maintenance record: %v", err)
	}
	return m
}

// ReloadMaterial 读取物料当前状态
func ReloadMaterial(t *testing.T, db *gorm.DB, id string) *entity.Material {
	t.Helper()
	var m entity.Material
	if err := db.First(&m, "id = ?", id).Error; err != nil {
		t.Fatalf("Failed to reload material %s: %v", id, err)
	}
	return &m
}
