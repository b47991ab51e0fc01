package buffer

import (
	"errors"
	"sync"
	"testing"

	cerrors "github.com/mghost99/astron-md/errors"
	"github.com/stretchr/testify/require"
)

func TestCircularBufferBasicOperations(t *testing.T) {
	buf, err := NewCircularBuffer[string](3)
	require.NoError(t, err)
	defer buf.Close()

	require.NoError(t, buf.Write("first"))
	require.Equal(t, 1, buf.Size())

	require.NoError(t, buf.Write("second"))
	require.NoError(t, buf.Write("third"))
	require.True(t, buf.IsFull())
	require.False(t, buf.IsEmpty())

	value, ok := buf.Read()
	require.True(t, ok)
	require.Equal(t, "first", value)
	require.Equal(t, 2, buf.Size())
}

func TestCircularBufferOverflowPolicies(t *testing.T) {
	testCases := []struct {
		name     string
		policy   OverflowPolicy
		expected []int
	}{
		{name: "DropOldest", policy: DropOldest, expected: []int{3, 4, 5}},
		{name: "DropNewest", policy: DropNewest, expected: []int{1, 2, 3}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			buf, err := NewCircularBuffer[int](3, WithOverflowPolicy[int](tc.policy))
			require.NoError(t, err)
			defer buf.Close()

			for i := 1; i <= 5; i++ {
				require.NoError(t, buf.Write(i))
			}

			var result []int
			for !buf.IsEmpty() {
				value, ok := buf.Read()
				require.True(t, ok)
				result = append(result, value)
			}
			require.Equal(t, tc.expected, result)
		})
	}
}

func TestCircularBufferIsFullReflectsOverflowPolicy(t *testing.T) {
	buf, err := NewCircularBuffer[int](2, WithOverflowPolicy[int](DropNewest))
	require.NoError(t, err)
	defer buf.Close()

	require.NoError(t, buf.Write(1))
	require.False(t, buf.IsFull())
	require.NoError(t, buf.Write(2))
	require.True(t, buf.IsFull())

	// A write past capacity under DropNewest is silently discarded by
	// the buffer itself; callers that need overflow to be an error
	// (participant.SendQueue) must check IsFull before writing.
	require.NoError(t, buf.Write(3))
	require.Equal(t, 2, buf.Size())
}

func TestCircularBufferThreadSafety(t *testing.T) {
	buf, err := NewCircularBuffer[int](1000)
	require.NoError(t, err)
	defer buf.Close()

	var wg sync.WaitGroup
	numWorkers := 10
	itemsPerWorker := 100

	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < itemsPerWorker; i++ {
				_ = buf.Write(worker*itemsPerWorker + i)
			}
		}(w)
	}

	wg.Add(numWorkers)
	readCount := 0
	var readMutex sync.Mutex
	for w := 0; w < numWorkers; w++ {
		go func() {
			defer wg.Done()
			for i := 0; i < itemsPerWorker; i++ {
				if _, ok := buf.Read(); ok {
					readMutex.Lock()
					readCount++
					readMutex.Unlock()
				}
			}
		}()
	}

	wg.Wait()

	finalSize := buf.Size()
	totalWritten := numWorkers * itemsPerWorker

	readMutex.Lock()
	totalRead := readCount
	readMutex.Unlock()

	require.Equal(t, totalWritten, totalRead+finalSize)
}

func TestCircularBufferGenericTypes(t *testing.T) {
	type entry struct {
		ID   int
		Name string
	}

	structBuf, err := NewCircularBuffer[entry](2)
	require.NoError(t, err)
	defer structBuf.Close()

	require.NoError(t, structBuf.Write(entry{ID: 1, Name: "first"}))
	require.NoError(t, structBuf.Write(entry{ID: 2, Name: "second"}))

	result, ok := structBuf.Read()
	require.True(t, ok)
	require.Equal(t, entry{ID: 1, Name: "first"}, result)
}

func TestCircularBufferEdgeCases(t *testing.T) {
	buf, err := NewCircularBuffer[int](1)
	require.NoError(t, err)
	defer buf.Close()

	require.NoError(t, buf.Write(1))
	require.True(t, buf.IsFull())

	value, ok := buf.Read()
	require.True(t, ok)
	require.Equal(t, 1, value)

	_, ok = buf.Read()
	require.False(t, ok)
}

func TestErrorFrameworkIntegration(t *testing.T) {
	buf, err := NewCircularBuffer[int](2)
	require.NoError(t, err)

	require.NoError(t, buf.Close())

	err = buf.Write(1)
	require.Error(t, err)

	var classifiedErr *cerrors.ClassifiedError
	require.True(t, errors.As(err, &classifiedErr))
	require.Equal(t, cerrors.ErrorInvalid, classifiedErr.Class)
	require.Equal(t, "Buffer", classifiedErr.Component)
	require.Equal(t, "Write", classifiedErr.Operation)
	require.True(t, errors.Is(err, cerrors.ErrAlreadyStopped))
}
