package ring

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuffer_PushAndSnapshot(t *testing.T) {
	b := New[int](3)
	assert.Nil(t, b.Snapshot())

	b.Push(1)
	b.Push(2)
	assert.Equal(t, []int{1, 2}, b.Snapshot())
	assert.Equal(t, 2, b.Len())
	assert.Equal(t, int64(0), b.Dropped())
}

func TestBuffer_DropsOldestWhenFull(t *testing.T) {
	b := New[int](3)
	for i := 1; i <= 5; i++ {
		b.Push(i)
	}

	assert.Equal(t, []int{3, 4, 5}, b.Snapshot())
	assert.Equal(t, 3, b.Len())
	assert.Equal(t, int64(2), b.Dropped())
}

func TestBuffer_Last(t *testing.T) {
	b := New[string](4)
	for _, s := range []string{"a", "b", "c", "d", "e"} {
		b.Push(s)
	}

	assert.Equal(t, []string{"d", "e"}, b.Last(2))
	assert.Equal(t, []string{"b", "c", "d", "e"}, b.Last(10))
	assert.Nil(t, b.Last(0))
}

func TestBuffer_Clear(t *testing.T) {
	b := New[int](2)
	b.Push(1)
	b.Push(2)
	b.Push(3)
	b.Clear()

	assert.Equal(t, 0, b.Len())
	assert.Nil(t, b.Snapshot())
	assert.Equal(t, int64(1), b.Dropped())

	b.Push(9)
	assert.Equal(t, []int{9}, b.Snapshot())
}

func TestBuffer_DefaultCapacity(t *testing.T) {
	assert.Equal(t, 500, New[int](0).Cap())
}

func TestBuffer_ConcurrentPush(t *testing.T) {
	b := New[int](100)
	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				b.Push(i)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, b.Len())
	assert.Equal(t, int64(300), b.Dropped())
}
