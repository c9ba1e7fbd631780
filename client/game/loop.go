package game

import (
	"context"
	"sort"
	"time"
)

const (
	// Largest frame delta fed to the simulation; keeps a backgrounded
	// tab from teleporting the player when frames resume.
	maxFrameDelta = 100 * time.Millisecond

	// Minimum interval between outbound movement emissions, so the
	// network rate is bounded independent of frame rate.
	moveEmitInterval = 50 * time.Millisecond

	cameraLerp  = 0.1
	remoteBlend = 0.15

	tickInterval = 16 * time.Millisecond
)

// Entity is one renderable avatar with its name tag and any live chat
// bubble.
type Entity struct {
	UserID      string
	DisplayName string
	X           float64
	Y           float64
	Local       bool
	Bubble      string
}

// RemoteSource feeds the loop the remote players reconciled by the
// realtime session.
type RemoteSource interface {
	// Interpolate advances every remote's render position toward its
	// last received target by the given blend factor.
	Interpolate(blend float64)
	// Entities returns the remotes as renderables; bubbles expired at
	// now are omitted.
	Entities(now time.Time) []Entity
}

// Frame is everything a renderer needs to paint one frame: the visible
// tile window, decorations, then entities already in painter's order.
type Frame struct {
	Camera   Camera
	ViewW    float64
	ViewH    float64
	MinCol   int
	MaxCol   int
	MinRow   int
	MaxRow   int
	Tiles    [][]int
	Decor    []Decoration
	Entities []Entity
}

type Renderer interface {
	RenderFrame(f Frame)
}

// Loop is the per-frame update of the multiplayer square: sampled
// input moves the local player with tile collision, the camera follows,
// remotes interpolate, and the frame is handed to the renderer.
type Loop struct {
	Map         *TileMap
	Input       *Input
	Remotes     RemoteSource
	Renderer    Renderer
	EmitMove    func(x, y, vx, vy float64)
	DisplayName string
	LocalBubble func(now time.Time) string

	ViewW float64
	ViewH float64

	X float64
	Y float64

	camera   Camera
	lastStep time.Time
	lastEmit time.Time
}

func NewLoop(m *TileMap, input *Input, remotes RemoteSource, renderer Renderer) *Loop {
	return &Loop{
		Map:      m,
		Input:    input,
		Remotes:  remotes,
		Renderer: renderer,
		ViewW:    960,
		ViewH:    640,
		X:        SpawnX,
		Y:        SpawnY,
		camera:   Camera{X: SpawnX, Y: SpawnY},
	}
}

// Step advances the loop by one frame. It never blocks; everything it
// touches is left consistent before it returns.
func (l *Loop) Step(now time.Time) {
	dt := tickInterval
	if !l.lastStep.IsZero() {
		dt = now.Sub(l.lastStep)
		if dt > maxFrameDelta {
			dt = maxFrameDelta
		}
	}
	l.lastStep = now
	seconds := dt.Seconds()

	input := l.Input.Sample()
	moved := false

	if input.VX != 0 || input.VY != 0 {
		// Axis-by-axis so the player slides along obstacles instead of
		// stopping dead.
		newX := l.X + input.VX*PlayerSpeed*seconds
		newY := l.Y + input.VY*PlayerSpeed*seconds

		if l.Map.Walkable(newX, l.Y) {
			l.X = newX
			moved = true
		}
		if l.Map.Walkable(l.X, newY) {
			l.Y = newY
			moved = true
		}
	}

	if moved && l.EmitMove != nil && now.Sub(l.lastEmit) >= moveEmitInterval {
		l.EmitMove(l.X, l.Y, input.VX, input.VY)
		l.lastEmit = now
	}

	l.camera = l.camera.Follow(l.X, l.Y, l.ViewW, l.ViewH, cameraLerp)

	if l.Remotes != nil {
		l.Remotes.Interpolate(remoteBlend)
	}

	if l.Renderer != nil {
		l.Renderer.RenderFrame(l.buildFrame(now))
	}
}

func (l *Loop) Camera() Camera { return l.camera }

func (l *Loop) buildFrame(now time.Time) Frame {
	entities := make([]Entity, 0, 8)

	local := Entity{
		UserID:      "__local__",
		DisplayName: l.DisplayName,
		X:           l.X,
		Y:           l.Y,
		Local:       true,
	}
	if l.LocalBubble != nil {
		local.Bubble = l.LocalBubble(now)
	}
	entities = append(entities, local)

	if l.Remotes != nil {
		entities = append(entities, l.Remotes.Entities(now)...)
	}

	// Painter's algorithm: lower on screen draws later.
	sort.Slice(entities, func(i, j int) bool {
		return entities[i].Y < entities[j].Y
	})

	minCol := clampInt(int((l.camera.X-l.ViewW/2)/TileSize), 0, MapCols-1)
	maxCol := clampInt(int((l.camera.X+l.ViewW/2)/TileSize)+1, 0, MapCols-1)
	minRow := clampInt(int((l.camera.Y-l.ViewH/2)/TileSize), 0, MapRows-1)
	maxRow := clampInt(int((l.camera.Y+l.ViewH/2)/TileSize)+1, 0, MapRows-1)

	return Frame{
		Camera:   l.camera,
		ViewW:    l.ViewW,
		ViewH:    l.ViewH,
		MinCol:   minCol,
		MaxCol:   maxCol,
		MinRow:   minRow,
		MaxRow:   maxRow,
		Tiles:    l.Map.Tiles,
		Decor:    l.Map.Decorations,
		Entities: entities,
	}
}

// Run steps the loop on a fixed tick until the context is cancelled.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case t := <-ticker.C:
			l.Step(t)
		}
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
