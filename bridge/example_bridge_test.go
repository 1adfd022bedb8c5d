package bridge_test

import (
	"fmt"

	"github.com/plus3/navbridge/bridge"
)

// Example_lifecycle shows an entity going from first observation to removal
// after its host object disappears.
func Example_lifecycle() {
	world := newFakeWorld()
	host := newFakeHost()
	b := bridge.New(world, host, bridge.Options{})
	world.notify = b
	host.notify = b

	e := world.add(bridge.Vec2{X: 1, Y: 1})
	state := func() string {
		entry, ok := b.Mirror().Entry(e)
		if !ok {
			return "not mirrored"
		}
		return entry.State.String()
	}

	fmt.Println("queued:", state())

	b.Advance(1.0 / 60)
	fmt.Println("tick 1:", state())

	h, _ := b.Mirror().LookupByEntity(e)
	host.despawn(h)
	b.Advance(1.0 / 60)
	fmt.Println("tick 2:", state())

	b.Advance(1.0 / 60)
	fmt.Println("tick 3:", state())

	// Output:
	// queued: not mirrored
	// tick 1: Bound
	// tick 2: PendingDestroy
	// tick 3: not mirrored
}

// ExampleMirror shows the two lookup directions of the mirror.
func ExampleMirror() {
	m := bridge.NewMirror(0)
	m.Track(1, 0)
	m.Bind(1, 100, 1)
	m.Track(2, 1)

	h, _ := m.LookupByEntity(1)
	e, _ := m.LookupByHandle(100)
	fmt.Println(h, e)
	fmt.Println(m.Count(bridge.StateBound), m.Count(bridge.StateTracked))

	_, err := m.Bind(2, 100, 2)
	fmt.Println(err)

	m.Unbind(1)
	m.Unbind(1)
	fmt.Println(m.Len())

	// Output:
	// 100 1
	// 1 1
	// bind [entity=2 handle=100]: already bound: handle held by entity 1
	// 1
}
