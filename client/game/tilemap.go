package game

import "math"

const (
	TileSize = 64
	MapCols  = 40
	MapRows  = 30

	MapWidth  = MapCols * TileSize
	MapHeight = MapRows * TileSize

	SpawnX = MapWidth / 2
	SpawnY = MapHeight / 2

	// Pixels per second.
	PlayerSpeed = 200
)

// Tile kinds.
const (
	TileGrass1 = iota
	TileGrass2
	TileGrass3
	TilePath
	TileWater
)

type Decoration struct {
	Kind     string
	X        float64
	Y        float64
	Blocking bool
}

// TileMap is the square's terrain plus its precomputed collision grid.
// Water tiles and blocking decorations are unwalkable.
type TileMap struct {
	Tiles       [][]int
	Decorations []Decoration
	blocked     [][]bool
}

func NewTileMap() *TileMap {
	tiles := generateTiles()
	decorations := generateDecorations()

	m := &TileMap{
		Tiles:       tiles,
		Decorations: decorations,
	}
	m.blocked = buildCollisionGrid(tiles, decorations)

	return m
}

// Walkable reports whether the pixel position lands on a walkable
// tile. Out-of-bounds positions are never walkable.
func (m *TileMap) Walkable(px float64, py float64) bool {
	col := int(math.Floor(px / TileSize))
	row := int(math.Floor(py / TileSize))
	if row < 0 || row >= MapRows || col < 0 || col >= MapCols {
		return false
	}
	return !m.blocked[row][col]
}

func generateTiles() [][]int {
	tiles := make([][]int, MapRows)
	for row := 0; row < MapRows; row++ {
		tiles[row] = make([]int, MapCols)
		for col := 0; col < MapCols; col++ {
			// Water border around the whole map.
			if row == 0 || row == MapRows-1 || col == 0 || col == MapCols-1 {
				tiles[row][col] = TileWater
				continue
			}
			// Cross-shaped paths through the center.
			if (col >= 18 && col <= 21) || (row >= 13 && row <= 16) {
				tiles[row][col] = TilePath
				continue
			}
			// Deterministic grass variety.
			r := math.Mod(math.Abs(math.Sin(float64(row)*37+float64(col)*53)*10000), 10)
			switch {
			case r < 5:
				tiles[row][col] = TileGrass1
			case r < 8:
				tiles[row][col] = TileGrass2
			default:
				tiles[row][col] = TileGrass3
			}
		}
	}
	return tiles
}

var treeCells = [][2]int{
	{3, 3}, {7, 2}, {12, 3}, {15, 2}, {25, 3}, {30, 2}, {35, 3},
	{5, 26}, {10, 27}, {15, 26}, {28, 27}, {33, 26}, {37, 27},
	{2, 7}, {3, 12}, {2, 18}, {3, 23},
	{37, 6}, {36, 11}, {37, 18}, {36, 24},
	{8, 6}, {10, 9}, {6, 20}, {9, 24},
	{30, 7}, {33, 10}, {28, 22}, {34, 20},
}

var flowerCells = [][2]int{
	{6, 10}, {11, 12}, {14, 8}, {8, 17}, {12, 21},
	{26, 9}, {31, 13}, {27, 18}, {35, 16}, {29, 25},
	{17, 19}, {23, 7}, {22, 23}, {13, 5},
}

var rockCells = [][2]int{
	{9, 7}, {31, 9}, {7, 23}, {32, 24}, {16, 5}, {24, 25},
}

func generateDecorations() []Decoration {
	decos := make([]Decoration, 0, len(treeCells)+len(flowerCells)+len(rockCells))

	for i, cell := range treeCells {
		kind := "tree_1"
		if i%2 == 1 {
			kind = "tree_2"
		}
		decos = append(decos, Decoration{
			Kind:     kind,
			X:        float64(cell[0])*TileSize + TileSize/2,
			Y:        float64(cell[1])*TileSize + TileSize/2,
			Blocking: true,
		})
	}

	for i, cell := range flowerCells {
		kind := "flower_1"
		if i%2 == 1 {
			kind = "flower_2"
		}
		decos = append(decos, Decoration{
			Kind:     kind,
			X:        float64(cell[0])*TileSize + TileSize/2,
			Y:        float64(cell[1])*TileSize + TileSize/2,
			Blocking: false,
		})
	}

	for _, cell := range rockCells {
		decos = append(decos, Decoration{
			Kind:     "rock",
			X:        float64(cell[0])*TileSize + TileSize/2,
			Y:        float64(cell[1])*TileSize + TileSize/2,
			Blocking: true,
		})
	}

	return decos
}

func buildCollisionGrid(tiles [][]int, decorations []Decoration) [][]bool {
	grid := make([][]bool, MapRows)
	for row := 0; row < MapRows; row++ {
		grid[row] = make([]bool, MapCols)
		for col := 0; col < MapCols; col++ {
			grid[row][col] = tiles[row][col] == TileWater
		}
	}

	for _, deco := range decorations {
		if !deco.Blocking {
			continue
		}
		col := int(math.Floor(deco.X / TileSize))
		row := int(math.Floor((deco.Y - TileSize/2) / TileSize))
		if row >= 0 && row < MapRows && col >= 0 && col < MapCols {
			grid[row][col] = true
		}
	}

	return grid
}
