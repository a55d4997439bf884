package ringbuf

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog(t *testing.T) {
	t.Run("AppendBelowCapacity", func(t *testing.T) {
		l := New[int](5)
		l.Append(1)
		l.Append(2)
		l.Append(3)

		assert.Equal(t, 3, l.Len())
		assert.Equal(t, []int{1, 2, 3}, l.Entries())
	})

	t.Run("EvictsOldestAtCapacity", func(t *testing.T) {
		l := New[int](3)
		for i := 1; i <= 5; i++ {
			l.Append(i)
		}

		assert.Equal(t, 3, l.Len())
		assert.Equal(t, []int{3, 4, 5}, l.Entries())
	})

	t.Run("ExactLengthAfterOverflow", func(t *testing.T) {
		// 100-entry cap, 105 messages: first retained entry is #6
		l := New[string](100)
		for i := 1; i <= 105; i++ {
			l.Append(fmt.Sprintf("message %d", i))
		}

		entries := l.Entries()
		require.Len(t, entries, 100)
		assert.Equal(t, "message 6", entries[0])
		assert.Equal(t, "message 105", entries[99])
	})

	t.Run("Tail", func(t *testing.T) {
		l := New[int](10)
		for i := 1; i <= 6; i++ {
			l.Append(i)
		}

		assert.Equal(t, []int{4, 5, 6}, l.Tail(3))
		assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, l.Tail(50))
	})

	t.Run("EntriesIsACopy", func(t *testing.T) {
		l := New[int](3)
		l.Append(1)
		snapshot := l.Entries()
		l.Append(2)

		assert.Equal(t, []int{1}, snapshot)
	})

	t.Run("FromSliceTrims", func(t *testing.T) {
		l := FromSlice(3, []int{1, 2, 3, 4, 5})
		assert.Equal(t, []int{3, 4, 5}, l.Entries())
	})

	t.Run("MarshalJSON", func(t *testing.T) {
		l := New[int](3)
		data, err := json.Marshal(l)
		require.NoError(t, err)
		assert.Equal(t, "[]", string(data))

		l.Append(7)
		l.Append(8)
		data, err = json.Marshal(l)
		require.NoError(t, err)
		assert.JSONEq(t, "[7,8]", string(data))
	})

	t.Run("ZeroCapacityPanics", func(t *testing.T) {
		assert.Panics(t, func() { New[int](0) })
	})
}
