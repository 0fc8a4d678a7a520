package layout

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testWorkspace() WorkspaceArea {
	return WorkspaceArea{
		X: 0, Y: 0,
		Width: 1920, Height: 1000,
		XFixedFrame: 3, YFixedFrame: 3,
		XSizeFrame: 8, YSizeFrame: 8,
		ScaleFactor: 1,
	}
}

func TestWorkspaceReservesDaemonStrip(t *testing.T) {
	m := Metrics{
		MaxWidth: 2559, MaxHeight: 1439,
		XFixedFrame: 3, YFixedFrame: 3,
		XSizeFrame: 8, YSizeFrame: 8,
		ScaleFactor: 1,
	}
	ws := Workspace(m, 200)
	assert.Equal(t, 2559, ws.Width)
	assert.Equal(t, 1239, ws.Height)
	assert.Equal(t, 0, ws.X)
	assert.Equal(t, 0, ws.Y)
}

func TestWorkspaceDefaultsScaleFactor(t *testing.T) {
	ws := Workspace(Metrics{MaxWidth: 100, MaxHeight: 100}, 10)
	assert.Equal(t, 1.0, ws.ScaleFactor)
	assert.Equal(t, 90, ws.Height)
}

func TestGridCoversAllWindows(t *testing.T) {
	ws := testWorkspace()
	for _, alpha := range []float64{-1.0, -0.5, 0, 0.5, 1.0} {
		for total := 1; total <= 40; total++ {
			columns, rows := Grid(total, ws, alpha)
			require.GreaterOrEqual(t, columns, 1)
			require.GreaterOrEqual(t, rows, 1)
			require.GreaterOrEqual(t, columns*rows, total,
				"total=%d alpha=%v", total, alpha)
		}
	}
}

func TestGridExtremeAlphaClampsToOneColumn(t *testing.T) {
	columns, rows := Grid(9, testWorkspace(), -100)
	assert.Equal(t, 1, columns)
	assert.Equal(t, 9, rows)
}

func TestPlanStaysWithinWorkspace(t *testing.T) {
	ws := testWorkspace()
	xFrame := ws.XFixedFrame + ws.XSizeFrame
	yFrame := ws.YFixedFrame + ws.YSizeFrame

	for _, alpha := range []float64{-1.0, 0, 0.5} {
		for total := 1; total <= 40; total++ {
			for index := 0; index < total; index++ {
				r := Plan(index, total, ws, alpha)
				require.Greater(t, r.Width, 0)
				require.Greater(t, r.Height, 0)
				require.LessOrEqual(t, r.X+r.Width, ws.X+ws.Width+xFrame,
					"index=%d total=%d alpha=%v", index, total, alpha)
				require.LessOrEqual(t, r.Y+r.Height, ws.Y+ws.Height+yFrame,
					"index=%d total=%d alpha=%v", index, total, alpha)
				require.GreaterOrEqual(t, r.X, ws.X-xFrame)
				require.GreaterOrEqual(t, r.Y, ws.Y-yFrame)
			}
		}
	}
}

func TestPlanIsDeterministic(t *testing.T) {
	ws := testWorkspace()
	for index := 0; index < 7; index++ {
		assert.Equal(t, Plan(index, 7, ws, -1), Plan(index, 7, ws, -1))
	}
}

func TestPlanAdjacentColumnsAbut(t *testing.T) {
	ws := testWorkspace()
	for total := 2; total <= 20; total++ {
		columns, _ := Grid(total, ws, 0)
		if columns < 2 {
			continue
		}
		first := Plan(0, total, ws, 0)
		second := Plan(1, total, ws, 0)
		// Stepping by the uninset cell size means the second window
		// starts one base width after the first.
		assert.Equal(t, first.X+ws.Width/columns, second.X, fmt.Sprintf("total=%d", total))
	}
}

func TestPlanWidensPartialLastRow(t *testing.T) {
	ws := testWorkspace()
	// Alpha 0 on this workspace gives 5 columns for 8 windows, leaving
	// a partial last row of 3 that gets widened.
	columns, rows := Grid(8, ws, 0)
	require.Equal(t, 5, columns)
	require.Equal(t, 2, rows)

	full := Plan(0, 8, ws, 0)
	widened := Plan(7, 8, ws, 0)
	assert.Greater(t, widened.Width, full.Width)
	assert.Equal(t, ws.Width/3+ws.XFixedFrame+ws.XSizeFrame, widened.Width)
}

func TestPlanSingleWindowPartialRowHasNoInset(t *testing.T) {
	ws := testWorkspace()
	columns, _ := Grid(4, ws, 0)
	require.Equal(t, 3, columns)

	// Window 3 sits alone in the last row and spans the full width
	// without the extra frame inset.
	alone := Plan(3, 4, ws, 0)
	assert.Equal(t, ws.Width, alone.Width)
}

func TestDaemonRect(t *testing.T) {
	ws := testWorkspace()
	r := DaemonRect(ws, 200)
	assert.Equal(t, ws.X-11, r.X)
	assert.Equal(t, ws.Y+ws.Height-11, r.Y)
	assert.Equal(t, ws.Width+11, r.Width)
	assert.Equal(t, 211, r.Height)
}
