package service

import (
	"context"
	"testing"

	"github.com/bitfantasy/nimo-stock/internal/inventory/entity"
	"github.com/bitfantasy/nimo-stock/internal/inventory/repository"
	"github.com/bitfantasy/nimo-stock/internal/inventory/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestAllocateToProject(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	project := testutil.SeedProject(t, env.db, "PRJ-001")
	a := testutil.SeedMaterial(t, env.db, "MCU", 50, 5, "3.20")
	b := testutil.SeedMaterial(t, env.db, "Crystal", 20, 5, "0.40")

	result, err := env.svc.Allocation.AllocateToProject(ctx, project.ID, []AllocationLine{
		{MaterialID: a.ID, Quantity: 10},
		{MaterialID: b.ID, Quantity: 20},
	}, operator)
	require.NoError(t, err)
	require.Len(t, result.RecordIDs, 2)
	require.Len(t, result.Quantities, 2)
	assert.Equal(t, int64(40), result.Quantities[0].QuantityAfter)
	assert.Equal(t, int64(0), result.Quantities[1].QuantityAfter)

	allocations, err := env.repos.Project.ListAllocations(ctx, project.ID)
	require.NoError(t, err)
	assert.Len(t, allocations, 2)

	movements, err := env.repos.Movement.ListByReference(ctx, entity.ReferenceProject, project.ID)
	require.NoError(t, err)
	assert.Len(t, movements, 2)
}

func TestAllocateReportsEveryShortage(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	project := testutil.SeedProject(t, env.db, "PRJ-002")
	a := testutil.SeedMaterial(t, env.db, "Motor", 3, 0, "12.00")
	b := testutil.SeedMaterial(t, env.db, "Bearing", 100, 0, "0.80")
	c := testutil.SeedMaterial(t, env.db, "Belt", 1, 0, "2.00")

	_, err := env.svc.Allocation.AllocateToProject(ctx, project.ID, []AllocationLine{
		{MaterialID: a.ID, Quantity: 4},
		{MaterialID: b.ID, Quantity: 10},
		{MaterialID: c.ID, Quantity: 2},
	}, operator)
	require.ErrorIs(t, err, ErrInsufficientStock)

	var shortage *ShortageError
	require.ErrorAs(t, err, &shortage)
	require.Len(t, shortage.Shortages, 2)
	assert.Equal(t, "Motor", shortage.Shortages[0].MaterialName)
	assert.Equal(t, int64(4), shortage.Shortages[0].Required)
	assert.Equal(t, int64(3), shortage.Shortages[0].Available)
	assert.Equal(t, "Belt", shortage.Shortages[1].MaterialName)

	// 全部不变
	assert.Equal(t, int64(3), testutil.ReloadMaterial(t, env.db, a.ID).QuantityAvailable)
	assert.Equal(t, int64(100), testutil.ReloadMaterial(t, env.db, b.ID).QuantityAvailable)
	allocations, err := env.repos.Project.ListAllocations(ctx, project.ID)
	require.NoError(t, err)
	assert.Empty(t, allocations)
}

func TestAllocateAggregatesRepeatedMaterial(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	project := testutil.SeedProject(t, env.db, "PRJ-003")
	m := testutil.SeedMaterial(t, env.db, "Cable", 10, 0, "1.00")

	_, err := env.svc.Allocation.AllocateToProject(ctx, project.ID, []AllocationLine{
		{MaterialID: m.ID, Quantity: 6},
		{MaterialID: m.ID, Quantity: 6},
	}, operator)
	var shortage *ShortageError
	require.ErrorAs(t, err, &shortage)
	require.Len(t, shortage.Shortages, 1)
	assert.Equal(t, int64(12), shortage.Shortages[0].Required)
	assert.Equal(t, int64(10), testutil.ReloadMaterial(t, env.db, m.ID).QuantityAvailable)
}

func TestAllocateValidation(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	project := testutil.SeedProject(t, env.db, "PRJ-004")
	m := testutil.SeedMaterial(t, env.db, "Nut", 10, 0, "0.01")

	_, err := env.svc.Allocation.AllocateToProject(ctx, project.ID, nil, operator)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.svc.Allocation.AllocateToProject(ctx, project.ID, []AllocationLine{{MaterialID: m.ID, Quantity: 0}}, operator)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.svc.Allocation.AllocateToProject(ctx, "no-such-project", []AllocationLine{{MaterialID: m.ID, Quantity: 1}}, operator)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.svc.Allocation.AllocateToProject(ctx, project.ID, []AllocationLine{{MaterialID: "ghost", Quantity: 1}}, operator)
	assert.ErrorIs(t, err, ErrNotFound)
}

// 两个批次在单连接测试库上依次提交，后提交者在预检或条件更新处被拒绝
func TestConcurrentAllocationsCannotBothSucceed(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	project := testutil.SeedProject(t, env.db, "PRJ-005")
	m := testutil.SeedMaterial(t, env.db, "Sensor", 10, 0, "5.00")

	errs := make([]error, 2)
	var g errgroup.Group
	for i := range errs {
		g.Go(func() error {
			_, errs[i] = env.svc.Allocation.AllocateToProject(ctx, project.ID, []AllocationLine{{MaterialID: m.ID, Quantity: 6}}, operator)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, ErrInsufficientStock)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, int64(4), testutil.ReloadMaterial(t, env.db, m.ID).QuantityAvailable)
}

func TestRecordMaintenanceUsage(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	record := testutil.SeedMaintenance(t, env.db, "MR-001")
	m := testutil.SeedMaterial(t, env.db, "Grease", 8, 2, "2.50")

	result, err := env.svc.Allocation.RecordMaintenanceUsage(ctx, record.ID, []AllocationLine{{MaterialID: m.ID, Quantity: 3}}, operator)
	require.NoError(t, err)
	assert.Equal(t, entity.ReferenceMaintenance, result.TargetType)
	assert.Equal(t, int64(5), testutil.ReloadMaterial(t, env.db, m.ID).QuantityAvailable)

	usages, err := env.repos.Maintenance.ListUsages(ctx, record.ID)
	require.NoError(t, err)
	require.Len(t, usages, 1)
	assert.True(t, decimal.RequireFromString("7.5").Equal(usages[0].Cost), "cost = %s", usages[0].Cost)
}

func TestProjectUsageAndReturn(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	project := testutil.SeedProject(t, env.db, "PRJ-006")
	m := testutil.SeedMaterial(t, env.db, "Spring", 20, 0, "0.30")

	result, err := env.svc.Allocation.AllocateToProject(ctx, project.ID, []AllocationLine{{MaterialID: m.ID, Quantity: 10}}, operator)
	require.NoError(t, err)
	allocID := result.RecordIDs[0]

	alloc, err := env.svc.Allocation.RecordProjectUsage(ctx, project.ID, allocID, 4, operator)
	require.NoError(t, err)
	assert.Equal(t, int64(4), alloc.QuantityUsed)

	alloc, err = env.svc.Allocation.ReturnAllocation(ctx, project.ID, allocID, 5, operator)
	require.NoError(t, err)
	assert.Equal(t, int64(5), alloc.QuantityReturned)
	assert.Equal(t, int64(1), alloc.Outstanding())
	assert.Equal(t, int64(15), testutil.ReloadMaterial(t, env.db, m.ID).QuantityAvailable)

	// 超出未结数量
	_, err = env.svc.Allocation.ReturnAllocation(ctx, project.ID, allocID, 2, operator)
	assert.ErrorIs(t, err, ErrValidation)
	_, err = env.svc.Allocation.RecordProjectUsage(ctx, project.ID, allocID, 2, operator)
	assert.ErrorIs(t, err, ErrValidation)
	assert.ErrorIs(t, env.repos.Project.IncrementReturned(ctx, allocID, 2), repository.ErrExceedsOutstanding)
	assert.ErrorIs(t, env.repos.Project.IncrementUsed(ctx, allocID, 2), repository.ErrExceedsOutstanding)
	assert.Equal(t, int64(15), testutil.ReloadMaterial(t, env.db, m.ID).QuantityAvailable)

	_, err = env.svc.Allocation.ReturnAllocation(ctx, project.ID, "missing", 1, operator)
	assert.ErrorIs(t, err, ErrNotFound)
}
