package game

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSampleSingleAxis(t *testing.T) {
	in := NewInput()
	in.KeyDown("d")

	v := in.Sample()

	assert.Equal(t, 1.0, v.VX)
	assert.Equal(t, 0.0, v.VY)
}

func TestSampleNormalizesDiagonals(t *testing.T) {
	in := NewInput()
	in.KeyDown("d")
	in.KeyDown("s")

	v := in.Sample()

	assert.InDelta(t, 1.0, math.Hypot(v.VX, v.VY), 0.0001)
	assert.InDelta(t, math.Sqrt2/2, v.VX, 0.0001)
	assert.InDelta(t, math.Sqrt2/2, v.VY, 0.0001)
}

func TestOpposingKeysCancel(t *testing.T) {
	in := NewInput()
	in.KeyDown("a")
	in.KeyDown("d")

	v := in.Sample()

	assert.Equal(t, Vector{}, v)
}

func TestNonMovementKeysIgnored(t *testing.T) {
	in := NewInput()
	in.KeyDown("enter")
	in.KeyDown("x")

	assert.Equal(t, Vector{}, in.Sample())
}

func TestTouchOverridesKeyboard(t *testing.T) {
	in := NewInput()
	in.KeyDown("w")
	in.SetTouch(0.5, 0.25)

	v := in.Sample()

	assert.Equal(t, Vector{VX: 0.5, VY: 0.25}, v)

	in.SetTouch(0, 0)
	v = in.Sample()
	assert.Equal(t, -1.0, v.VY, "keyboard input resumes when touch released")
}

func TestResetClearsEverything(t *testing.T) {
	in := NewInput()
	in.KeyDown("w")
	in.SetTouch(1, 0)

	in.Reset()

	assert.Equal(t, Vector{}, in.Sample())
}

func TestKeyUpReleasesKey(t *testing.T) {
	in := NewInput()
	in.KeyDown("a")
	in.KeyUp("a")

	assert.Equal(t, Vector{}, in.Sample())
}
