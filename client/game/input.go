package game

import (
	"math"
	"sync"
)

// Vector is a movement direction; at most unit length.
type Vector struct {
	VX float64
	VY float64
}

var movementKeys = map[string]bool{
	"arrowup": true, "arrowdown": true, "arrowleft": true, "arrowright": true,
	"w": true, "a": true, "s": true, "d": true,
}

// Input samples keyboard edge state ORed with an analog touch vector.
// Key events arrive from the embedding UI on its own goroutine, so the
// state is locked.
type Input struct {
	mu    sync.Mutex
	keys  map[string]bool
	touch Vector
}

func NewInput() *Input {
	return &Input{keys: make(map[string]bool)}
}

func (in *Input) KeyDown(key string) {
	if !movementKeys[key] {
		return
	}
	in.mu.Lock()
	in.keys[key] = true
	in.mu.Unlock()
}

func (in *Input) KeyUp(key string) {
	in.mu.Lock()
	delete(in.keys, key)
	in.mu.Unlock()
}

// Reset clears all held keys, e.g. when the view loses focus or a chat
// box grabs the keyboard.
func (in *Input) Reset() {
	in.mu.Lock()
	in.keys = make(map[string]bool)
	in.touch = Vector{}
	in.mu.Unlock()
}

func (in *Input) SetTouch(vx, vy float64) {
	in.mu.Lock()
	in.touch = Vector{VX: vx, VY: vy}
	in.mu.Unlock()
}

// Sample returns the current movement vector. Diagonals are normalized
// to unit length; a non-zero touch vector overrides the keyboard.
func (in *Input) Sample() Vector {
	in.mu.Lock()
	defer in.mu.Unlock()

	var vx, vy float64
	if in.keys["arrowleft"] || in.keys["a"] {
		vx--
	}
	if in.keys["arrowright"] || in.keys["d"] {
		vx++
	}
	if in.keys["arrowup"] || in.keys["w"] {
		vy--
	}
	if in.keys["arrowdown"] || in.keys["s"] {
		vy++
	}

	if vx != 0 && vy != 0 {
		length := math.Sqrt(vx*vx + vy*vy)
		vx /= length
		vy /= length
	}

	if in.touch.VX != 0 || in.touch.VY != 0 {
		return in.touch
	}

	return Vector{VX: vx, VY: vy}
}
