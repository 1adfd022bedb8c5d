package main

import "github.com/plus3/navbridge/bridge"

// Camera maps world units to screen pixels. The world origin sits at
// (OffsetX, OffsetY) on screen and Y grows downward in both spaces.
type Camera struct {
	Scale            float64
	OffsetX, OffsetY float64
	ScreenW, ScreenH int
}

func (c *Camera) ToScreen(v bridge.Vec2) (float32, float32) {
	return float32(v.X*c.Scale + c.OffsetX), float32(v.Y*c.Scale + c.OffsetY)
}

func (c *Camera) ToWorld(x, y int) bridge.Vec2 {
	return bridge.Vec2{
		X: (float64(x) - c.OffsetX) / c.Scale,
		Y: (float64(y) - c.OffsetY) / c.Scale,
	}
}

// Pan moves the view by dx, dy pixels.
func (c *Camera) Pan(dx, dy float64) {
	c.OffsetX += dx
	c.OffsetY += dy
}

// Zoom multiplies the scale by factor, keeping the world point under (x, y)
// fixed on screen.
func (c *Camera) Zoom(factor float64, x, y int) {
	anchor := c.ToWorld(x, y)
	c.Scale = min(max(c.Scale*factor, 1), 64)
	c.OffsetX = float64(x) - anchor.X*c.Scale
	c.OffsetY = float64(y) - anchor.Y*c.Scale
}

// Visible returns the world rectangle on screen as min and max corners.
func (c *Camera) Visible() (bridge.Vec2, bridge.Vec2) {
	return c.ToWorld(0, 0), c.ToWorld(c.ScreenW, c.ScreenH)
}
