package navhost

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTickDebtAccumulates(t *testing.T) {
	d := TickDebt{Interval: 0.25}

	assert.Equal(t, 0, d.Add(0.1))
	assert.Equal(t, 0, d.Add(0.1))
	assert.Equal(t, 1, d.Add(0.1))
	assert.InDelta(t, 0.05, d.Debt, 1e-9)

	assert.Equal(t, 3, d.Add(0.5))
	assert.Equal(t, 3, d.Take(0))
	assert.Equal(t, 0, d.Ticks)
}

func TestTickDebtTakeDropsExcess(t *testing.T) {
	d := TickDebt{Interval: 0.1}
	d.Add(1.0)

	assert.Equal(t, 4, d.Take(4))
	assert.Equal(t, 0, d.Take(4), "excess steps are dropped, not carried")
}

func TestTickDebtIgnoresInvalidInput(t *testing.T) {
	d := TickDebt{}
	assert.Equal(t, 0, d.Add(1))

	d.Interval = 0.1
	assert.Equal(t, 0, d.Add(-1))
	assert.Zero(t, d.Debt)

	d.Add(0.35)
	d.Reset()
	assert.Zero(t, d.Debt)
	assert.Zero(t, d.Ticks)
}
