package service

import (
	"context"
	"testing"

	"github.com/bitfantasy/nimo-stock/internal/inventory/entity"
	"github.com/bitfantasy/nimo-stock/internal/inventory/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestCreateBOM(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	project := testutil.SeedProject(t, env.db, "PRJ-B01")

	bom, err := env.svc.BOM.CreateBOM(ctx, project.ID, &CreateBOMInput{Name: "Chassis"}, operator)
	require.NoError(t, err)
	assert.Equal(t, entity.BOMStatusDraft, bom.Status)
	assert.Equal(t, "1.0", bom.Version)
	assert.True(t, bom.TotalCost.IsZero())

	_, err = env.svc.BOM.CreateBOM(ctx, "missing", &CreateBOMInput{Name: "Chassis"}, operator)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = env.svc.BOM.CreateBOM(ctx, project.ID, &CreateBOMInput{Name: "  "}, operator)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestBOMLineEditsKeepTotalCost(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	project := testutil.SeedProject(t, env.db, "PRJ-B02")
	a := testutil.SeedMaterial(t, env.db, "Panel", 100, 0, "4.25")
	b := testutil.SeedMaterial(t, env.db, "Bolt", 100, 0, "0.10")

	bom, err := env.svc.BOM.CreateBOM(ctx, project.ID, &CreateBOMInput{Name: "Frame"}, operator)
	require.NoError(t, err)

	// 单价默认取物料单价
	bom, err = env.svc.BOM.AddLine(ctx, bom.ID, BOMLineInput{MaterialID: a.ID, Quantity: 4}, operator)
	require.NoError(t, err)
	assert.Equal(t, "1.1", bom.Version)
	assert.Equal(t, entity.MaterialUnitPCS, bom.Lines[0].Unit)
	assert.True(t, decimal.RequireFromString("17").Equal(bom.TotalCost), "total %s", bom.TotalCost)

	bom, err = env.svc.BOM.AddLine(ctx, bom.ID, BOMLineInput{MaterialID: b.ID, Quantity: 30, UnitCost: dec("0.05")}, operator)
	require.NoError(t, err)
	assert.Equal(t, "1.2", bom.Version)
	assert.True(t, decimal.RequireFromString("18.5").Equal(bom.TotalCost), "total %s", bom.TotalCost)
	require.Len(t, bom.Lines, 2)
	assert.Equal(t, 2, bom.Lines[1].LineNo)

	qty := int64(10)
	bom, err = env.svc.BOM.UpdateLine(ctx, bom.ID, bom.Lines[1].ID, UpdateLineInput{Quantity: &qty}, operator)
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("17.5").Equal(bom.TotalCost), "total %s", bom.TotalCost)

	bom, err = env.svc.BOM.RemoveLine(ctx, bom.ID, bom.Lines[0].ID, operator)
	require.NoError(t, err)
	require.Len(t, bom.Lines, 1)
	assert.Equal(t, 1, bom.Lines[0].LineNo)
	assert.True(t, entity.SumLineCosts(bom.Lines).Equal(bom.TotalCost))
	assert.True(t, decimal.RequireFromString("0.5").Equal(bom.TotalCost), "total %s", bom.TotalCost)

	assert.Equal(t, "1.4", bom.Version)
	assert.Len(t, bom.Revisions, 4)
	assert.Equal(t, entity.BOMStatusDraft, bom.Status)
}

func TestBOMLineValidation(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	project := testutil.SeedProject(t, env.db, "PRJ-B03")
	m := testutil.SeedMaterial(t, env.db, "Plate", 10, 0, "1.00")
	bom, err := env.svc.BOM.CreateBOM(ctx, project.ID, &CreateBOMInput{Name: "Plate kit"}, operator)
	require.NoError(t, err)

	cases := []struct {
		name  string
		input BOMLineInput
		want  error
	}{
		{"zero quantity", BOMLineInput{MaterialID: m.ID, Quantity: 0}, ErrValidation},
		{"negative cost", BOMLineInput{MaterialID: m.ID, Quantity: 1, UnitCost: dec("-1")}, ErrValidation},
		{"bad unit", BOMLineInput{MaterialID: m.ID, Quantity: 1, Unit: "barrel"}, ErrValidation},
		{"negative lead time", BOMLineInput{MaterialID: m.ID, Quantity: 1, LeadTimeDays: -1}, ErrValidation},
		{"unknown material", BOMLineInput{MaterialID: "ghost", Quantity: 1}, ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.svc.BOM.AddLine(ctx, bom.ID, tc.input, operator)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	got, err := env.svc.BOM.GetBOM(ctx, bom.ID)
	require.NoError(t, err)
	assert.Equal(t, "1.0", got.Version)
	assert.Empty(t, got.Lines)
}

func TestApproveBOM(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	project := testutil.SeedProject(t, env.db, "PRJ-B04")
	m := testutil.SeedMaterial(t, env.db, "Gear", 10, 0, "2.00")
	bom, err := env.svc.BOM.CreateBOM(ctx, project.ID, &CreateBOMInput{Name: "Gearbox"}, operator)
	require.NoError(t, err)

	_, err = env.svc.BOM.ApproveBOM(ctx, bom.ID, approver)
	assert.ErrorIs(t, err, ErrValidation, "empty bom cannot be approved")

	_, err = env.svc.BOM.AddLine(ctx, bom.ID, BOMLineInput{MaterialID: m.ID, Quantity: 2}, operator)
	require.NoError(t, err)

	_, err = env.svc.BOM.ApproveBOM(ctx, bom.ID, operator)
	assert.ErrorIs(t, err, ErrForbidden)

	approved, err := env.svc.BOM.ApproveBOM(ctx, bom.ID, approver)
	require.NoError(t, err)
	assert.Equal(t, entity.BOMStatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, approver.UserID, *approved.ApprovedBy)
	assert.NotNil(t, approved.ApprovedAt)

	admin := Actor{UserID: "admin", Roles: []string{"inventory_admin"}}
	_, err = env.svc.BOM.ApproveBOM(ctx, bom.ID, admin)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)

	// 已审批仍可改行，状态不变
	edited, err := env.svc.BOM.AddLine(ctx, bom.ID, BOMLineInput{MaterialID: m.ID, Quantity: 1}, operator)
	require.NoError(t, err)
	assert.Equal(t, entity.BOMStatusApproved, edited.Status)
}

func TestReleasedBOMIsImmutable(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	project := testutil.SeedProject(t, env.db, "PRJ-B05")
	m := testutil.SeedMaterial(t, env.db, "Shaft", 10, 0, "3.00")
	bom := approvedBOM(t, env, project, BOMLineInput{MaterialID: m.ID, Quantity: 2})

	_, err := env.svc.Release.Release(ctx, bom.ID, operator)
	require.NoError(t, err)

	_, err = env.svc.BOM.AddLine(ctx, bom.ID, BOMLineInput{MaterialID: m.ID, Quantity: 1}, operator)
	var stateErr *StateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, entity.BOMStatusReleased, stateErr.Current)
	assert.Equal(t, "edit", stateErr.Requested)

	err = env.svc.BOM.DeleteBOM(ctx, bom.ID, operator)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)

	obsolete, err := env.svc.BOM.ObsoleteBOM(ctx, bom.ID, operator)
	require.NoError(t, err)
	assert.Equal(t, entity.BOMStatusObsolete, obsolete.Status)
	assert.NotNil(t, obsolete.ObsoletedAt)

	_, err = env.svc.BOM.ObsoleteBOM(ctx, bom.ID, operator)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
	_, err = env.svc.BOM.RemoveLine(ctx, bom.ID, obsolete.Lines[0].ID, operator)
	assert.ErrorIs(t, err, ErrInvalidStateTransition)
}

func TestDeleteBOM(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	project := testutil.SeedProject(t, env.db, "PRJ-B06")
	bom, err := env.svc.BOM.CreateBOM(ctx, project.ID, &CreateBOMInput{Name: "Temp"}, operator)
	require.NoError(t, err)

	require.NoError(t, env.svc.BOM.DeleteBOM(ctx, bom.ID, operator))

	_, err = env.svc.BOM.GetBOM(ctx, bom.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	boms, err := env.svc.BOM.ListBOMs(ctx, project.ID, "")
	require.NoError(t, err)
	assert.Empty(t, boms)
}

func TestBOMWriteLosesRaceOnStaleRowVersion(t *testing.T) {
	env := setupServices(t)
	ctx := context.Background()
	project := testutil.SeedProject(t, env.db, "PRJ-B07")
	bom, err := env.svc.BOM.CreateBOM(ctx, project.ID, &CreateBOMInput{Name: "Race"}, operator)
	require.NoError(t, err)

	// 另一写者已提交
	err = env.repos.BOM.UpdateGuarded(ctx, bom.ID, bom.RowVersion, []string{entity.BOMStatusDraft}, map[string]interface{}{"name": "Race (renamed)"})
	require.NoError(t, err)

	err = env.repos.BOM.UpdateGuarded(ctx, bom.ID, bom.RowVersion, []string{entity.BOMStatusDraft}, map[string]interface{}{"name": "Race (mine)"})
	assert.ErrorIs(t, concurrentOr(err, "bom %s", bom.ID), ErrConcurrentModification)

	got, err := env.svc.BOM.GetBOM(ctx, bom.ID)
	require.NoError(t, err)
	assert.Equal(t, "Race (renamed)", got.Name)
	assert.Equal(t, bom.RowVersion+1, got.RowVersion)
}

func TestVersionBumps(t *testing.T) {
	assert.Equal(t, "1.1", bumpMinor("1.0"))
	assert.Equal(t, "2.10", bumpMinor("2.9"))
	assert.Equal(t, "3.0", bumpMajor("2.7"))
	assert.Equal(t, "1.1", bumpMinor("garbage"))
}
