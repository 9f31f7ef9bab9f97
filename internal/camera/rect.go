package camera

import "github.com/nerrad567/camerad/internal/stats"

// aeRefHeight is the frame height the reference rectangles were drawn on.
const aeRefHeight = 1208

type aeReference struct {
	rect  stats.Rect
	focal float64 // reference focal length in pixels
}

var aeReferences = map[Role]aeReference{
	RoleWideRoad: {rect: stats.Rect{X: 96, Y: 250, W: 1734, H: 524}, focal: 567},
	RoleRoad:     {rect: stats.Rect{X: 96, Y: 160, W: 1734, H: 986}, focal: 2648},
	RoleDriver:   {rect: stats.Rect{X: 96, Y: 242, W: 1736, H: 906}, focal: 567},
}

// aeRect scales the role's reference rectangle to the output frame. The
// rectangle stays centred horizontally and keeps its vertical offset from
// the frame centre.
func aeRect(role Role, flPix float64, width, height int) stats.Rect {
	ref, ok := aeReferences[role]
	if !ok {
		return stats.Rect{X: 0, Y: 0, W: width, H: height}
	}
	f := flPix / ref.focal
	halfW := int(f * float64(ref.rect.W) / 2)
	above := int(f * float64(aeRefHeight/2-ref.rect.Y))

	return stats.Rect{
		X: max(0, width/2-halfW),
		Y: max(0, height/2-above),
		W: min(int(f*float64(ref.rect.W)), width/2+halfW),
		H: min(int(f*float64(ref.rect.H)), height/2+above),
	}
}
