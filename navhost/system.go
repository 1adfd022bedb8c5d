package navhost

import "github.com/plus3/navbridge/ecs"

// System steps the host once per scheduler frame. Register it after the
// bridge system so goals pushed this frame take effect immediately.
type System struct {
	Host *Host

	// Substeps is the number of physics steps the last frame ran.
	Substeps int
}

func (s *System) Execute(frame *ecs.UpdateFrame) {
	s.Substeps = s.Host.Step(frame.DeltaTime)
}
