package cities

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	calls   atomic.Int32
	entries []Entry
	err     error
	gate    chan struct{}
}

func (f *fakeSource) FetchCities(ctx context.Context) ([]Entry, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.entries, nil
}

var sample = []Entry{
	{Name: "mumbai suburbs", ID: "5"},
	{Name: "Mumbai", ID: "2"},
	{Name: "Agra", ID: "1"},
	{Name: "Mysore", ID: "3"},
	{Name: "Meerut", ID: "4"},
	{Name: "Mohali", ID: "6"},
	{Name: "Madurai", ID: "7"},
	{Name: "Mangalore", ID: "8"},
}

func TestDirectoryLoadSortsCaseInsensitively(t *testing.T) {
	dir := NewDirectory(&fakeSource{entries: sample}, nil)
	require.NoError(t, dir.Load(context.Background()))

	names := make([]string, 0, dir.Len())
	for _, e := range dir.Entries() {
		names = append(names, e.Name)
	}
	assert.Equal(t, []string{"Agra", "Madurai", "Mangalore", "Meerut", "Mohali", "Mumbai", "mumbai suburbs", "Mysore"}, names)
}

func TestDirectoryLoadIsIdempotent(t *testing.T) {
	src := &fakeSource{entries: sample}
	dir := NewDirectory(src, nil)
	require.NoError(t, dir.Load(context.Background()))
	require.NoError(t, dir.Load(context.Background()))
	assert.EqualValues(t, 1, src.calls.Load())
}

func TestDirectoryLoadFailureIsRetried(t *testing.T) {
	src := &fakeSource{err: errors.New("timeout")}
	dir := NewDirectory(src, nil)

	err := dir.Load(context.Background())
	require.ErrorIs(t, err, ErrLoadFailed)
	assert.False(t, dir.Loaded())
	assert.Zero(t, dir.Len())
	assert.False(t, dir.Has("Mumbai"))

	src.err = nil
	src.entries = sample
	require.NoError(t, dir.Load(context.Background()))
	assert.True(t, dir.Has("Mumbai"))
	assert.EqualValues(t, 2, src.calls.Load())
}

func TestDirectoryConcurrentLoadSharesRequest(t *testing.T) {
	src := &fakeSource{entries: sample, gate: make(chan struct{})}
	dir := NewDirectory(src, nil)

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, dir.Load(context.Background()))
		}()
	}
	require.Eventually(t, func() bool { return src.calls.Load() > 0 }, time.Second, time.Millisecond)
	close(src.gate)
	wg.Wait()
	assert.EqualValues(t, 1, src.calls.Load())
	assert.True(t, dir.Loaded())
}

func TestDirectoryNoSource(t *testing.T) {
	dir := NewDirectory(nil, nil)
	assert.ErrorIs(t, dir.Load(context.Background()), ErrLoadFailed)
}

func TestDirectoryLookupAndIDs(t *testing.T) {
	dir := NewStaticDirectory(sample)
	e, ok := dir.Lookup("Mumbai")
	require.True(t, ok)
	assert.Equal(t, "2", e.ID)

	_, ok = dir.Lookup("mumbai")
	assert.False(t, ok)
	assert.True(t, dir.HasID("7"))
	assert.False(t, dir.HasID("99"))
	assert.False(t, dir.HasID(""))
}

func TestPrefixSearch(t *testing.T) {
	dir := NewStaticDirectory(sample)

	got := dir.Suggest("m", 0)
	require.Len(t, got, DefaultSuggestionLimit)
	assert.Equal(t, "Madurai", got[0].Name)
	assert.Equal(t, "Mumbai", got[4].Name)

	got = dir.Suggest("MUM", 5)
	require.Len(t, got, 2)
	assert.Equal(t, "Mumbai", got[0].Name)
	assert.Equal(t, "mumbai suburbs", got[1].Name)

	assert.Empty(t, dir.Suggest("", 5))
	assert.Empty(t, dir.Suggest("zz", 5))
	assert.Len(t, dir.Suggest("m", 2), 2)
}

func TestPrefixSearchIsRestartable(t *testing.T) {
	dir := NewStaticDirectory(sample)
	seq := dir.PrefixSearch("a", 5)

	var first, second []Entry
	for e := range seq {
		first = append(first, e)
	}
	for e := range seq {
		second = append(second, e)
	}
	assert.Equal(t, first, second)
	assert.Equal(t, []Entry{{Name: "Agra", ID: "1"}}, first)

	// early break stops the sequence
	count := 0
	for range dir.PrefixSearch("m", 5) {
		count++
		break
	}
	assert.Equal(t, 1, count)
}
