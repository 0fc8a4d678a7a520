// Package layout computes screen rectangles for tiling client console
// windows into a near-square grid over the available workspace. All
// functions are pure; the facade supplies the screen metrics.
package layout

import (
	"math"
)

// Metrics is the raw screen geometry read from the OS facade.
type Metrics struct {
	// MaxWidth and MaxHeight span the maximized-window area of the
	// primary monitor.
	MaxWidth  int
	MaxHeight int
	// Frame insets: thickness of the fixed frame and the sizing border
	// around a window's perimeter, per axis.
	XFixedFrame int
	YFixedFrame int
	XSizeFrame  int
	YSizeFrame  int
	// ScaleFactor converts physical pixels to the logical scale the
	// window-management calls expect. 1.0 when the process is DPI
	// aware.
	ScaleFactor float64
}

// WorkspaceArea is the usable screen real estate for client windows:
// the maximized-window area minus the strip occupied by the daemon's
// own console.
type WorkspaceArea struct {
	X           int
	Y           int
	Width       int
	Height      int
	XFixedFrame int
	YFixedFrame int
	XSizeFrame  int
	YSizeFrame  int
	ScaleFactor float64
}

// Rect is a window rectangle in screen coordinates.
type Rect struct {
	X      int
	Y      int
	Width  int
	Height int
}

// Workspace derives the tiling area from screen metrics, reserving
// daemonHeight pixels at the bottom for the daemon console.
func Workspace(m Metrics, daemonHeight int) WorkspaceArea {
	scale := m.ScaleFactor
	if scale <= 0 {
		scale = 1
	}
	return WorkspaceArea{
		X:           0,
		Y:           0,
		Width:       int(float64(m.MaxWidth) * scale),
		Height:      int(float64(m.MaxHeight)*scale) - daemonHeight,
		XFixedFrame: m.XFixedFrame,
		YFixedFrame: m.YFixedFrame,
		XSizeFrame:  m.XSizeFrame,
		YSizeFrame:  m.YSizeFrame,
		ScaleFactor: scale,
	}
}

func (ws WorkspaceArea) xFrame() int { return ws.XFixedFrame + ws.XSizeFrame }
func (ws WorkspaceArea) yFrame() int { return ws.YFixedFrame + ws.YSizeFrame }

// Grid returns the column and row counts for total windows. The column
// count follows the workspace aspect ratio, biased by alpha: positive
// alpha favors tall windows, negative favors wide ones, zero aims for
// squares.
func Grid(total int, ws WorkspaceArea, alpha float64) (columns, rows int) {
	if total < 1 {
		total = 1
	}
	aspect := float64(ws.Width+2*ws.xFrame()) / float64(ws.Height+2*ws.yFrame())
	columns = int(math.Sqrt(float64(total)) * (aspect + alpha))
	if columns < 1 {
		columns = 1
	}
	rows = int(math.Ceil(float64(total) / float64(columns)))
	if rows < 1 {
		rows = 1
	}
	return columns, rows
}

// Plan computes the rectangle for the index-th of total client windows.
// Windows in a partial last row are widened to fill it. Positions step
// by the uninset cell size and back off by one frame inset per axis so
// the borders of adjacent windows overlap instead of leaving gaps.
func Plan(index, total int, ws WorkspaceArea, alpha float64) Rect {
	columns, rows := Grid(total, ws, alpha)

	columnIndex := index % columns
	rowIndex := index / columns

	lastRowCount := total % columns
	isPartialLastRow := rowIndex == rows-1 && lastRowCount != 0

	var base, width int
	if isPartialLastRow {
		base = ws.Width / lastRowCount
		width = base
		if lastRowCount > 1 {
			width += ws.xFrame()
		}
	} else {
		base = ws.Width / columns
		width = base + ws.xFrame()
	}

	height := (ws.Height + ws.yFrame()*rowIndex) / rows

	return Rect{
		X:      ws.X + columnIndex*base - ws.xFrame(),
		Y:      ws.Y + rowIndex*(ws.Height/rows) - ws.yFrame(),
		Width:  width,
		Height: height,
	}
}

// DaemonRect is the strip across the bottom of the workspace reserved
// for the daemon's own console.
func DaemonRect(ws WorkspaceArea, daemonHeight int) Rect {
	return Rect{
		X:      ws.X - ws.xFrame(),
		Y:      ws.Y + ws.Height - ws.yFrame(),
		Width:  ws.Width + ws.xFrame(),
		Height: daemonHeight + ws.yFrame(),
	}
}
