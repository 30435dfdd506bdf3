package discovery

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"memory-lane-backend/models/memory"
	"memory-lane-backend/services/apperr"
	"memory-lane-backend/services/geo"
)

const defaultGridSize = 20

type HeatmapQuery struct {
	BBox     geo.BBox
	GridSize int
}

type HeatCell struct {
	Row       int       `json:"row"`
	Col       int       `json:"col"`
	Center    geo.Point `json:"center"`
	Bounds    geo.BBox  `json:"bounds"`
	Count     int64     `json:"count"`
	Intensity float64   `json:"intensity"`
}

type Heatmap struct {
	Cells    []HeatCell `json:"cells"`
	BBox     geo.BBox   `json:"bounding_box"`
	GridSize int        `json:"grid_size"`
	Total    int64      `json:"total"`
	MaxCount int64      `json:"max_count"`
}

type cellCount struct {
	CellRow int
	CellCol int
	Count   int64
}

// Heatmap делит bbox на grid x grid ячеек и считает публичные воспоминания в каждой.
// Пустые ячейки не возвращаются.
func (s *Service) Heatmap(ctx context.Context, q HeatmapQuery) (Heatmap, error) {
	if err := q.BBox.Validate(); err != nil {
		return Heatmap{}, err
	}
	grid := q.GridSize
	if grid == 0 {
		grid = defaultGridSize
	}
	if grid < 1 || grid > s.cfg.HeatmapMaxGrid {
		return Heatmap{}, apperr.Validation("grid_size", fmt.Sprintf("must be between 1 and %d", s.cfg.HeatmapMaxGrid))
	}

	b := q.BBox
	latStep := (b.North - b.South) / float64(grid)
	lonStep := (b.East - b.West) / float64(grid)

	var counts []cellCount
	err := s.db.WithContext(ctx).
		Model(&memory.Memory{}).
		Scopes(memory.PublicOnly(s.now()), scopeBBox(&b)).
		Select(
			"LEAST(FLOOR((memories.latitude - ?) / ?)::int, ?) AS cell_row, "+
				"LEAST(FLOOR((memories.longitude - ?) / ?)::int, ?) AS cell_col, "+
				"COUNT(*) AS count",
			b.South, latStep, grid-1, b.West, lonStep, grid-1,
		).
		Group("cell_row, cell_col").
		Scan(&counts).Error
	if err != nil {
		return Heatmap{}, apperr.Transient(err)
	}

	return buildHeatmap(b, grid, counts), nil
}

func buildHeatmap(b geo.BBox, grid int, counts []cellCount) Heatmap {
	latStep := (b.North - b.South) / float64(grid)
	lonStep := (b.East - b.West) / float64(grid)

	h := Heatmap{BBox: b, GridSize: grid, Cells: make([]HeatCell, 0, len(counts))}
	for _, c := range counts {
		h.Total += c.Count
		if c.Count > h.MaxCount {
			h.MaxCount = c.Count
		}
	}
	for _, c := range counts {
		if c.Count == 0 || c.CellRow < 0 || c.CellCol < 0 || c.CellRow >= grid || c.CellCol >= grid {
			continue
		}
		south := b.South + float64(c.CellRow)*latStep
		west := b.West + float64(c.CellCol)*lonStep
		cell := HeatCell{
			Row:    c.CellRow,
			Col:    c.CellCol,
			Count:  c.Count,
			Bounds: geo.BBox{South: south, North: south + latStep, West: west, East: west + lonStep},
			Center: geo.Point{Latitude: south + latStep/2, Longitude: west + lonStep/2},
		}
		if h.MaxCount > 0 {
			cell.Intensity = float64(c.Count) / float64(h.MaxCount)
		}
		h.Cells = append(h.Cells, cell)
	}
	return h
}

// scopeBBox ограничивает выборку прямоугольником, границы включительно
func scopeBBox(b *geo.BBox) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if b == nil {
			return db
		}
		return db.Where("memories.latitude BETWEEN ? AND ? AND memories.longitude BETWEEN ? AND ?", b.South, b.North, b.West, b.East)
	}
}
