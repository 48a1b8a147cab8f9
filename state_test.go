package dyplo

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		state    State
		event    event
		expected State
		ok       bool
	}{
		{Empty, create, Configured, true},
		{Empty, send, Empty, false},
		{Empty, notify, Empty, false},
		{Configured, send, Armed, true},
		{Configured, notify, Configured, false},
		{Armed, send, Armed, true},
		{Armed, notify, Configured, true},
		{Armed, release, Empty, true},
		{Configured, release, Empty, true},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%v %v", test.state, test.event), func(t *testing.T) {
			s, ok := test.state.transition(test.event)
			assert.Equal(t, test.expected, s)
			assert.Equal(t, test.ok, ok)
		})
	}
}
