package checkpoint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avollmer/sitegraft/internal/store"
)

var testPhases = []string{
	"probe", "analysis", "training", "mapping",
	"build", "theme", "content", "test", "qa", "review", "publish",
}

func testStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(store.NewMemoryStore(), testPhases, nil)
}

func TestCreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	ok := s.Create(ctx, "https://example.com", "analysis", map[string]any{"pages": 4.0})
	require.True(t, ok)

	cp := s.Get(ctx, "https://example.com", "analysis")
	require.NotNil(t, cp)
	assert.Equal(t, "https://example.com", cp.SourceURL, "record must carry the original source verbatim")
	assert.Equal(t, "analysis", cp.Phase)
	assert.True(t, cp.Completed)
	assert.EqualValues(t, 4, cp.Data["pages"])
	assert.NotEmpty(t, cp.Timestamp)
}

func TestGetMiss(t *testing.T) {
	s := testStore(t)
	assert.Nil(t, s.Get(context.Background(), "https://example.com", "build"))
}

func TestNextPhaseAfterMapping(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	s.Create(ctx, "src", "mapping", nil)

	next, ok := s.NextPhase(ctx, "src")
	require.True(t, ok)
	assert.Equal(t, "build", next, "next phase after mapping is build")
}

func TestNextPhaseFresh(t *testing.T) {
	s := testStore(t)

	next, ok := s.NextPhase(context.Background(), "never-seen")
	require.True(t, ok)
	assert.Equal(t, "probe", next)
}

func TestNextPhaseComplete(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	for _, phase := range testPhases {
		s.Create(ctx, "src", phase, nil)
	}

	_, ok := s.NextPhase(ctx, "src")
	assert.False(t, ok, "all phases completed means nothing left to run")
}

func TestCanResumeTracksAnalysisCheckpoint(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	assert.False(t, s.CanResume(ctx, "src"))
	assert.Equal(t, s.Get(ctx, "src", "analysis") != nil, s.CanResume(ctx, "src"))

	s.Create(ctx, "src", "probe", nil)
	assert.False(t, s.CanResume(ctx, "src"), "probe alone is not a resume point")

	s.Create(ctx, "src", "analysis", nil)
	assert.True(t, s.CanResume(ctx, "src"))
	assert.Equal(t, s.Get(ctx, "src", "analysis") != nil, s.CanResume(ctx, "src"))
}

func TestResumeScenarioThroughTraining(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	for _, phase := range []string{"probe", "analysis", "training"} {
		s.Create(ctx, "https://site.example", phase, nil)
	}

	next, ok := s.NextPhase(ctx, "https://site.example")
	require.True(t, ok)
	assert.Equal(t, "mapping", next)
	assert.True(t, s.CanResume(ctx, "https://site.example"))

	last, found := s.LastCompletedPhase(ctx, "https://site.example")
	require.True(t, found)
	assert.Equal(t, "training", last)
}

func TestGetProgress(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	p := s.GetProgress(ctx, "src")
	assert.Equal(t, 0, p.Percentage)
	assert.Empty(t, p.CompletedPhases)
	assert.Len(t, p.PendingPhases, len(testPhases))

	for _, phase := range []string{"probe", "analysis", "training"} {
		s.Create(ctx, "src", phase, nil)
	}

	p = s.GetProgress(ctx, "src")
	assert.Equal(t, []string{"probe", "analysis", "training"}, p.CompletedPhases)
	assert.Equal(t, "mapping", p.NextPhase)
	assert.Equal(t, "training", p.LastCompletedPhase)
	assert.Equal(t, 3*100/len(testPhases), p.Percentage)
	assert.True(t, p.CanResume)
}

func TestCleanup(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	for _, phase := range testPhases {
		s.Create(ctx, "src", phase, nil)
	}
	s.Cleanup(ctx, "src")

	for _, phase := range testPhases {
		assert.Nil(t, s.Get(ctx, "src", phase))
	}
	_, found := s.LastCompletedPhase(ctx, "src")
	assert.False(t, found)
}

func TestOverwriteReplacesCheckpoint(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	s.Create(ctx, "src", "build", map[string]any{"pages_built": 2.0})
	s.Create(ctx, "src", "build", map[string]any{"pages_built": 5.0})

	cp := s.Get(ctx, "src", "build")
	require.NotNil(t, cp)
	assert.EqualValues(t, 5, cp.Data["pages_built"])
	_, hasOld := cp.Data["stale"]
	assert.False(t, hasOld)
}

func TestListCarriesSourceFromRecord(t *testing.T) {
	ctx := context.Background()
	s := testStore(t)

	// Two sources whose lossy keys are distinct but unrecoverable
	s.Create(ctx, "https://a.example/path", "probe", nil)
	s.Create(ctx, "https://b.example", "analysis", nil)

	list := s.List(ctx)
	require.Len(t, list, 2)

	sources := []string{list[0].SourceURL, list[1].SourceURL}
	assert.ElementsMatch(t, []string{"https://a.example/path", "https://b.example"}, sources)
}
