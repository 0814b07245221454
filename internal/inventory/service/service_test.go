package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/bitfantasy/nimo-stock/internal/inventory/entity"
	"github.com/bitfantasy/nimo-stock/internal/inventory/repository"
	"github.com/bitfantasy/nimo-stock/internal/inventory/testutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// recordingPublisher 记录已发布事件
type recordingPublisher struct {
	mu     sync.Mutex
	events []StockEvent
}

func (p *recordingPublisher) Publish(_ context.Context, events ...StockEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, events...)
}

func (p *recordingPublisher) ofType(typ string) []StockEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []StockEvent
	for _, e := range p.events {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

type testEnv struct {
	db        *gorm.DB
	repos     *repository.Repositories
	svc       *Services
	publisher *recordingPublisher
	registry  *prometheus.Registry
}

func setupServices(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	pub := &recordingPublisher{}
	reg := prometheus.NewRegistry()
	svc := NewServices(repos, Options{
		Publisher:      pub,
		Metrics:        NewMetrics(reg),
		ReleaseTimeout: 10 * time.Second,
		StorageTimeout: 5 * time.Second,
		AlertBatchSize: 2,
	})
	return &testEnv{db: db, repos: repos, svc: svc, publisher: pub, registry: reg}
}

var (
	operator = Actor{UserID: "user-op", Name: "Operator"}
	approver = Actor{UserID: "user-approver", Name: "Approver", Roles: []string{"bom_approver"}}
)

// approvedBOM 创建一个含给定行项并已审批的BOM
func approvedBOM(t *testing.T, env *testEnv, project *entity.Project, lines ...BOMLineInput) *entity.BillOfMaterials {
	t.Helper()
	ctx := context.Background()
	bom, err := env.svc.BOM.CreateBOM(ctx, project.ID, &CreateBOMInput{Name: "Main board"}, operator)
	require.NoError(t, err)
	_, err = env.svc.BOM.AddLines(ctx, bom.ID, lines, operator)
	require.NoError(t, err)
	bom, err = env.svc.BOM.ApproveBOM(ctx, bom.ID, approver)
	require.NoError(t, err)
	return bom
}
