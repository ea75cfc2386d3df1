package executor

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestInline_RunsOnCaller(t *testing.T) {
	ran := false
	Inline().Execute(func() { ran = true })
	assert.True(t, ran)
}

func TestGoroutine_RunsAsync(t *testing.T) {
	var wg sync.WaitGroup
	wg.Add(1)
	var ran atomic.Bool
	Goroutine().Execute(func() {
		defer wg.Done()
		ran.Store(true)
	})
	wg.Wait()
	assert.True(t, ran.Load())
}

func TestFunc_Adapter(t *testing.T) {
	calls := 0
	exec := Func(func(task func()) {
		calls++
		task()
	})
	exec.Execute(func() {})
	exec.Execute(func() {})
	assert.Equal(t, 2, calls)
}

func TestSerial_PreservesOrder(t *testing.T) {
	s := NewSerial(16, zerolog.Nop())

	var mu sync.Mutex
	var got []int
	for i := 0; i < 50; i++ {
		i := i
		s.Execute(func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
		})
	}
	s.Close()

	assert.Len(t, got, 50)
	for i, v := range got {
		assert.Equal(t, i, v)
	}
}

func TestSerial_SurvivesPanic(t *testing.T) {
	s := NewSerial(4, zerolog.Nop())

	var ran atomic.Bool
	s.Execute(func() { panic("boom") })
	s.Execute(func() { ran.Store(true) })
	s.Close()

	assert.True(t, ran.Load())
}

func TestSerial_DropsAfterClose(t *testing.T) {
	s := NewSerial(1, zerolog.Nop())
	s.Close()

	var ran atomic.Bool
	s.Execute(func() { ran.Store(true) })

	time.Sleep(10 * time.Millisecond)
	assert.False(t, ran.Load())

	// Close is idempotent.
	s.Close()
}
