package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bitfantasy/nimo-stock/internal/inventory/entity"
	"github.com/bitfantasy/nimo-stock/internal/inventory/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestReleaseDeductsStock(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	project := testutil.SeedProject(t, env.db, "PRJ-R01")
	m := testutil.SeedMaterial(t, env.db, "Housing", 100, 20, "9.90")
	bom := approvedBOM(t, env, project, BOMLineInput{MaterialID: m.ID, Quantity: 30})

	result, err := env.svc.Release.Release(ctx, bom.ID, operator)
	require.NoError(t, err)
	assert.Equal(t, entity.BOMStatusReleased, result.BOM.Status)
	require.NotNil(t, result.BOM.ReleasedBy)
	assert.Equal(t, operator.UserID, *result.BOM.ReleasedBy)
	require.Len(t, result.Deductions, 1)
	assert.Equal(t, int64(70), result.Deductions[0].QuantityAfter)
	assert.Equal(t, int64(70), testutil.ReloadMaterial(t, env.db, m.ID).QuantityAvailable)

	low, err := env.svc.Alert.CollectLowStock(ctx)
	require.NoError(t, err)
	assert.Empty(t, low)

	assert.Len(t, env.publisher.ofType(EventBOMReleased), 1)
	movements, err := env.repos.Movement.ListByReference(ctx, entity.ReferenceBOM, bom.ID)
	require.NoError(t, err)
	require.Len(t, movements, 1)
	assert.Equal(t, int64(-30), movements[0].Delta)
}

func TestReleaseRejectsShortageWithoutMutation(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	project := testutil.SeedProject(t, env.db, "PRJ-R02")
	m := testutil.SeedMaterial(t, env.db, "Housing", 25, 20, "9.90")
	other := testutil.SeedMaterial(t, env.db, "Gasket", 50, 0, "0.30")
	bom := approvedBOM(t, env, project,
		BOMLineInput{MaterialID: other.ID, Quantity: 10},
		BOMLineInput{MaterialID: m.ID, Quantity: 30},
	)

	_, err := env.svc.Release.Release(ctx, bom.ID, operator)
	require.ErrorIs(t, err, ErrInsufficientMaterials)
	var shortage *ShortageError
	require.ErrorAs(t, err, &shortage)
	require.Len(t, shortage.Shortages, 1)
	assert.Equal(t, m.ID, shortage.Shortages[0].MaterialID)
	assert.Equal(t, int64(30), shortage.Shortages[0].Required)
	assert.Equal(t, int64(25), shortage.Shortages[0].Available)

	assert.Equal(t, int64(25), testutil.ReloadMaterial(t, env.db, m.ID).QuantityAvailable)
	assert.Equal(t, int64(50), testutil.ReloadMaterial(t, env.db, other.ID).QuantityAvailable)
	got, err := env.svc.BOM.GetBOM(ctx, bom.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.BOMStatusApproved, got.Status)
}

func TestReleaseIsIdempotentlyRejected(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	project := testutil.SeedProject(t, env.db, "PRJ-R03")
	m := testutil.SeedMaterial(t, env.db, "Lens", 40, 0, "15.00")
	bom := approvedBOM(t, env, project, BOMLineInput{MaterialID: m.ID, Quantity: 10})

	_, err := env.svc.Release.Release(ctx, bom.ID, operator)
	require.NoError(t, err)

	_, err = env.svc.Release.Release(ctx, bom.ID, operator)
	assert.ErrorIs(t, err, ErrAlreadyReleased)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
	assert.Equal(t, int64(30), testutil.ReloadMaterial(t, env.db, m.ID).QuantityAvailable)
}

func TestReleaseRequiresApproval(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	project := testutil.SeedProject(t, env.db, "PRJ-R04")
	m := testutil.SeedMaterial(t, env.db, "Knob", 40, 0, "0.50")
	bom, err := env.svc.BOM.CreateBOM(ctx, project.ID, &CreateBOMInput{Name: "Panel"}, operator)
	require.NoError(t, err)
	_, err = env.svc.BOM.AddLine(ctx, bom.ID, BOMLineInput{MaterialID: m.ID, Quantity: 5}, operator)
	require.NoError(t, err)

	_, err = env.svc.Release.Release(ctx, bom.ID, operator)
	assert.ErrorIs(t, err, ErrNotApproved)
	assert.Equal(t, int64(40), testutil.ReloadMaterial(t, env.db, m.ID).QuantityAvailable)

	_, err = env.svc.Release.Release(ctx, "missing", operator)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReleaseRollsBackOnCommitFault(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	project := testutil.SeedProject(t, env.db, "PRJ-R05")
	a := testutil.SeedMaterial(t, env.db, "Cell", 100, 0, "2.00")
	b := testutil.SeedMaterial(t, env.db, "Wire", 100, 0, "0.20")
	bom := approvedBOM(t, env, project,
		BOMLineInput{MaterialID: a.ID, Quantity: 10},
		BOMLineInput{MaterialID: b.ID, Quantity: 20},
	)

	// 扣减完成后切换BOM状态时注入故障
	fault := errors.New("injected storage fault")
	err := env.db.Callback().Update().Before("gorm:update").Register("test:fault", func(tx *gorm.DB) {
		if tx.Statement.Table == "bills_of_materials" {
			tx.AddError(fault)
		}
	})
	require.NoError(t, err)

	_, err = env.svc.Release.Release(ctx, bom.ID, operator)
	require.ErrorIs(t, err, fault)
	require.NoError(t, env.db.Callback().Update().Remove("test:fault"))

	assert.Equal(t, int64(100), testutil.ReloadMaterial(t, env.db, a.ID).QuantityAvailable)
	assert.Equal(t, int64(100), testutil.ReloadMaterial(t, env.db, b.ID).QuantityAvailable)
	got, err := env.svc.BOM.GetBOM(ctx, bom.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.BOMStatusApproved, got.Status)
	movements, err := env.repos.Movement.ListByReference(ctx, entity.ReferenceBOM, bom.ID)
	require.NoError(t, err)
	assert.Empty(t, movements)
	assert.Empty(t, env.publisher.ofType(EventBOMReleased))
}

func TestReleaseTimeoutRollsBack(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	project := testutil.SeedProject(t, env.db, "PRJ-R09")
	m := testutil.SeedMaterial(t, env.db, "Chassis", 100, 0, "12.00")
	bom := approvedBOM(t, env, project, BOMLineInput{MaterialID: m.ID, Quantity: 30})
	testutil.PinConnection(t, env.db)

	release := NewReleaseService(env.repos, env.svc.Ledger, Options{
		Publisher:      env.publisher,
		ReleaseTimeout: 200 * time.Millisecond,
	})

	// 扣减之后切换状态时阻塞到超时
	err := env.db.Callback().Update().Before("gorm:update").Register("test:stall", func(tx *gorm.DB) {
		if tx.Statement.Table != "bills_of_materials" {
			return
		}
		select {
		case <-time.After(400 * time.Millisecond):
		case <-tx.Statement.Context.Done():
		}
	})
	require.NoError(t, err)

	_, err = release.Release(ctx, bom.ID, operator)
	require.NoError(t, env.db.Callback().Update().Remove("test:stall"))
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Contains(t, err.Error(), "timed out")

	assert.Equal(t, int64(100), testutil.ReloadMaterial(t, env.db, m.ID).QuantityAvailable)
	got, err := env.svc.BOM.GetBOM(ctx, bom.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.BOMStatusApproved, got.Status)
	movements, err := env.repos.Movement.ListByReference(ctx, entity.ReferenceBOM, bom.ID)
	require.NoError(t, err)
	assert.Empty(t, movements)
	assert.Empty(t, env.publisher.ofType(EventBOMReleased))
}

func TestReleaseIgnoresCallerCancellation(t *testing.T) {
	env := setupServices(t)
	project := testutil.SeedProject(t, env.db, "PRJ-R06")
	m := testutil.SeedMaterial(t, env.db, "Fan", 10, 0, "4.00")
	bom := approvedBOM(t, env, project, BOMLineInput{MaterialID: m.ID, Quantity: 4})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result, err := env.svc.Release.Release(ctx, bom.ID, operator)
	require.NoError(t, err)
	assert.Equal(t, entity.BOMStatusReleased, result.BOM.Status)
	assert.Equal(t, int64(6), testutil.ReloadMaterial(t, env.db, m.ID).QuantityAvailable)
}

func TestReviseAndSupersede(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	project := testutil.SeedProject(t, env.db, "PRJ-R07")
	m := testutil.SeedMaterial(t, env.db, "Board", 50, 0, "20.00")
	v1 := approvedBOM(t, env, project, BOMLineInput{MaterialID: m.ID, Quantity: 5})
	_, err := env.svc.Release.Release(ctx, v1.ID, operator)
	require.NoError(t, err)

	_, err = env.svc.BOM.ReviseBOM(ctx, v1.ID+"x", operator)
	assert.ErrorIs(t, err, ErrNotFound)

	v2, err := env.svc.BOM.ReviseBOM(ctx, v1.ID, operator)
	require.NoError(t, err)
	assert.Equal(t, "2.0", v2.Version)
	assert.Equal(t, entity.BOMStatusDraft, v2.Status)
	require.NotNil(t, v2.SupersedesID)
	assert.Equal(t, v1.ID, *v2.SupersedesID)
	require.Len(t, v2.Lines, 1)
	assert.True(t, v2.TotalCost.Equal(v1.TotalCost))

	// 草稿不能再修订
	_, err = env.svc.BOM.ReviseBOM(ctx, v2.ID, operator)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)

	// 同一版本已有在途修订
	_, err = env.svc.BOM.ReviseBOM(ctx, v1.ID, operator)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
	boms, err := env.svc.BOM.ListBOMs(ctx, project.ID, entity.BOMStatusDraft)
	require.NoError(t, err)
	assert.Len(t, boms, 1)

	_, err = env.svc.BOM.ApproveBOM(ctx, v2.ID, approver)
	require.NoError(t, err)
	_, err = env.svc.Release.Release(ctx, v2.ID, operator)
	require.NoError(t, err)

	prev, err := env.svc.BOM.GetBOM(ctx, v1.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.BOMStatusObsolete, prev.Status)
	assert.Equal(t, int64(40), testutil.ReloadMaterial(t, env.db, m.ID).QuantityAvailable)
}

func TestReviseAllowedAgainAfterDraftDeleted(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	project := testutil.SeedProject(t, env.db, "PRJ-R08")
	m := testutil.SeedMaterial(t, env.db, "Bracket", 50, 0, "1.00")
	v1 := approvedBOM(t, env, project, BOMLineInput{MaterialID: m.ID, Quantity: 5})
	_, err := env.svc.Release.Release(ctx, v1.ID, operator)
	require.NoError(t, err)

	first, err := env.svc.BOM.ReviseBOM(ctx, v1.ID, operator)
	require.NoError(t, err)
	require.NoError(t, env.svc.BOM.DeleteBOM(ctx, first.ID, operator))

	second, err := env.svc.BOM.ReviseBOM(ctx, v1.ID, operator)
	require.NoError(t, err)
	assert.Equal(t, "2.0", second.Version)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestLockOrderSortsByMaterialKeepingDuplicates(t *testing.T) {
	lines := []AllocationLine{
		{MaterialID: "m-c", Quantity: 1},
		{MaterialID: "m-a", Quantity: 2},
		{MaterialID: "m-c", Quantity: 3},
		{MaterialID: "m-b", Quantity: 4},
	}
	got := lockOrder(lines, func(l AllocationLine) string { return l.MaterialID })
	assert.Equal(t, []int{1, 3, 0, 2}, got)
	assert.Empty(t, lockOrder([]AllocationLine(nil), func(l AllocationLine) string { return l.MaterialID }))
}

func TestReleaseDeductionsFollowLineOrder(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	project := testutil.SeedProject(t, env.db, "PRJ-R10")
	var inputs []BOMLineInput
	for i, name := range []string{"Screw", "Nut", "Bolt", "Rivet"} {
		m := testutil.SeedMaterial(t, env.db, name, 100, 0, "0.10")
		inputs = append(inputs, BOMLineInput{MaterialID: m.ID, Quantity: int64(i + 1)})
	}
	// 重复物料
	inputs = append(inputs, BOMLineInput{MaterialID: inputs[0].MaterialID, Quantity: 5})
	bom := approvedBOM(t, env, project, inputs...)

	result, err := env.svc.Release.Release(ctx, bom.ID, operator)
	require.NoError(t, err)
	require.Len(t, result.Deductions, len(inputs))
	for i, d := range result.Deductions {
		assert.Equal(t, i+1, d.LineNo)
		assert.Equal(t, inputs[i].MaterialID, d.MaterialID)
		assert.Equal(t, inputs[i].Quantity, d.Quantity)
	}
	assert.Equal(t, int64(94), testutil.ReloadMaterial(t, env.db, inputs[0].MaterialID).QuantityAvailable)
	assert.Equal(t, int64(94), result.Deductions[4].QuantityAfter)
	assert.Equal(t, int64(99), result.Deductions[0].QuantityAfter)
}
