package cardmatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"card-scan-workers/internal/common/logger"
	"card-scan-workers/internal/models"
)

// catalogStub filters a fixed catalog by exact normalized equality on the
// query's non-empty fields. Levels listed in failures return that error.
type catalogStub struct {
	mu       sync.Mutex
	cards    []models.CandidateRecord
	failures map[models.QueryLevel]error
	block    bool
	calls    []models.CatalogQuery
}

func (s *catalogStub) Search(ctx context.Context, q models.CatalogQuery) ([]models.CandidateRecord, error) {
	s.mu.Lock()
	s.calls = append(s.calls, q)
	s.mu.Unlock()

	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err := s.failures[q.Level]; err != nil {
		return nil, err
	}

	var out []models.CandidateRecord
	for _, c := range s.cards {
		if q.Name != "" && Normalize(q.Name) != Normalize(c.Name) {
			continue
		}
		if q.CardNumber != "" && NormalizeNumber(q.CardNumber) != NormalizeNumber(c.CardNumber) {
			continue
		}
		if q.SetName != "" && Normalize(q.SetName) != Normalize(c.SetName) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *catalogStub) levels() []models.QueryLevel {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.QueryLevel, 0, len(s.calls))
	for _, q := range s.calls {
		out = append(out, q.Level)
	}
	return out
}

type mapCache struct {
	mu      sync.Mutex
	entries map[string][]models.CandidateRecord
}

func newMapCache() *mapCache {
	return &mapCache{entries: map[string][]models.CandidateRecord{}}
}

func (c *mapCache) Get(_ context.Context, key string) ([]models.CandidateRecord, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.entries[key]
	return append([]models.CandidateRecord(nil), v...), ok
}

func (c *mapCache) Set(_ context.Context, key string, records []models.CandidateRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = append([]models.CandidateRecord(nil), records...)
}

func testCatalog() []models.CandidateRecord {
	return []models.CandidateRecord{
		baseSetPikachu(),
		{CardID: "base2-58", Name: "Dodrio", SetName: "Base Set 2", SetCode: "base2", CardNumber: "58", Rarity: "Uncommon"},
		{CardID: "jungle-60", Name: "Pikachu", SetName: "Jungle", SetCode: "jungle", CardNumber: "60", Rarity: "Common"},
		{CardID: "base1-4", Name: "Charizard", SetName: "Base Set", SetCode: "base1", CardNumber: "4", Rarity: "Rare Holo"},
		{CardID: "base2-99", Name: "Mew", SetName: "Base Set 2", SetCode: "base2", CardNumber: "99", Rarity: "Rare"},
	}
}

func createTestRetriever(t *testing.T, searcher CatalogSearcher, cache QueryCache) *Retriever {
	return NewRetriever(searcher, cache, Options{SearchTimeout: time.Second}, logger.NewTestLogger(t))
}

func TestRetrieve_AcceptsAtFullLevel(t *testing.T) {
	stub := &catalogStub{cards: testCatalog()}
	r := createTestRetriever(t, stub, nil)

	res, err := r.Retrieve(context.Background(), models.RawExtraction{
		Name: "Charizard", CardNumber: "4", SetName: "Base Set", Rarity: "Rare Holo",
	})
	require.NoError(t, err)
	require.True(t, res.Verdict.Accepted)
	assert.Equal(t, models.QueryLevelFull, res.Level)
	assert.Equal(t, "base1-4", res.Verdict.Candidate.CardID)
	assert.Equal(t, 90, res.Verdict.TotalScore)
	assert.Len(t, res.Trace, 1)
	assert.Equal(t, []models.QueryLevel{models.QueryLevelFull}, stub.levels())
}

func TestRetrieve_FallsBackToNumberOnly(t *testing.T) {
	stub := &catalogStub{cards: testCatalog()}
	r := createTestRetriever(t, stub, nil)

	res, err := r.Retrieve(context.Background(), models.RawExtraction{
		Name: "Pikachuu", CardNumber: "58", SetName: "Jungel", Rarity: "Common",
	})
	require.NoError(t, err)
	require.True(t, res.Verdict.Accepted)
	assert.Equal(t, models.QueryLevelNumberOnly, res.Level)
	assert.Equal(t, "base1-58", res.Verdict.Candidate.CardID)
	assert.Equal(t, 76, res.Verdict.TotalScore)

	require.Len(t, res.Trace, 3)
	assert.Equal(t, models.QueryLevelFull, res.Trace[0].Level)
	assert.False(t, res.Trace[0].Verdict.Accepted)
	assert.Equal(t, ReasonNoCandidates, res.Trace[0].Verdict.Reason)
	assert.Equal(t, models.QueryLevelNoSet, res.Trace[1].Level)
	assert.False(t, res.Trace[1].Verdict.Accepted)
	assert.True(t, res.Trace[2].Verdict.Accepted)

	out := Assemble(res, models.RawExtraction{Name: "Pikachuu"}, r.Thresholds())
	require.Len(t, out.Candidates, 1)
	assert.Equal(t, models.ConfidenceNeedsReview, out.Candidates[0].Confidence)
	assert.Equal(t, models.QueryLevelNumberOnly, out.Candidates[0].Level)
}

func TestRetrieve_ExhaustionKeepsOneEntryPerLevel(t *testing.T) {
	stub := &catalogStub{
		cards:    testCatalog(),
		failures: map[models.QueryLevel]error{models.QueryLevelFull: errors.New("connection refused")},
	}
	r := createTestRetriever(t, stub, nil)

	ext := models.RawExtraction{Name: "Mewtwo", CardNumber: "99", SetName: "Base Set"}
	res, err := r.Retrieve(context.Background(), ext)
	require.NoError(t, err)
	require.False(t, res.Verdict.Accepted)
	assert.Equal(t, ReasonBelowThreshold, res.Verdict.Reason)
	assert.Equal(t, models.QueryLevelNumberOnly, res.Level)

	require.Len(t, res.Trace, 3)
	assert.Equal(t, ReasonNoCandidates, res.Trace[0].Verdict.Reason)
	assert.Contains(t, res.Trace[0].SearchError, "connection refused")
	assert.Equal(t, ReasonNoCandidates, res.Trace[1].Verdict.Reason)
	assert.Equal(t, ReasonBelowThreshold, res.Trace[2].Verdict.Reason)
	assert.Equal(t, 66, res.Trace[2].Verdict.BestScore())

	out := Assemble(res, ext, r.Thresholds())
	assert.Empty(t, out.Candidates)
	assert.Equal(t, models.ScanErrorNotFound, out.Error)
	require.NotNil(t, out.Debug)
	assert.Equal(t, string(ReasonBelowThreshold), out.Debug.Reason)
	require.Len(t, out.Debug.Levels, 3)
	for i, lr := range out.Debug.Levels {
		assert.Equal(t, res.Trace[i].Level, lr.Level)
		assert.NotEmpty(t, lr.Reason)
	}
	assert.Contains(t, out.Debug.Text, "number_only: below_threshold, best score 66")
	assert.Contains(t, out.Debug.Text, "Rarity: not detected")
}

func TestRetrieve_SkipsLevelsWithMissingFields(t *testing.T) {
	stub := &catalogStub{cards: testCatalog()}
	r := createTestRetriever(t, stub, nil)

	res, err := r.Retrieve(context.Background(), models.RawExtraction{CardNumber: "4"})
	require.NoError(t, err)
	assert.Equal(t, []models.QueryLevel{models.QueryLevelNumberOnly}, stub.levels())

	require.Len(t, res.Trace, 3)
	assert.True(t, res.Trace[0].Skipped)
	assert.True(t, res.Trace[1].Skipped)
	assert.False(t, res.Trace[2].Skipped)
	// without a name the best total cannot reach the minimum
	assert.Equal(t, ReasonBelowThreshold, res.Verdict.Reason)
	assert.Equal(t, models.QueryLevelNumberOnly, res.Level)
}

func TestRetrieve_AllLevelsSkipped(t *testing.T) {
	stub := &catalogStub{cards: testCatalog()}
	r := createTestRetriever(t, stub, nil)

	res, err := r.Retrieve(context.Background(), models.RawExtraction{SetName: "Base Set"})
	require.NoError(t, err)
	assert.Empty(t, stub.levels())
	assert.False(t, res.Verdict.Accepted)
	assert.Equal(t, ReasonNoCandidates, res.Verdict.Reason)
	assert.Equal(t, models.QueryLevel(""), res.Level)
	assert.Len(t, res.Trace, 3)
}

func TestRetrieve_MinNumberOnlyLength(t *testing.T) {
	stub := &catalogStub{cards: testCatalog()}
	r := NewRetriever(stub, nil, Options{MinNumberOnlyLength: 2}, logger.NewTestLogger(t))

	_, err := r.Retrieve(context.Background(), models.RawExtraction{CardNumber: "4"})
	require.NoError(t, err)
	assert.Empty(t, stub.levels())
}

func TestRetrieve_OptionalLevels(t *testing.T) {
	stub := &catalogStub{cards: testCatalog()}
	r := NewRetriever(stub, nil, Options{
		Levels: []models.QueryLevel{models.QueryLevelNameSet, models.QueryLevelNameOnly},
	}, logger.NewTestLogger(t))

	res, err := r.Retrieve(context.Background(), models.RawExtraction{Name: "Charizard", SetName: "Base Set"})
	require.NoError(t, err)
	assert.Equal(t, []models.QueryLevel{models.QueryLevelNameSet, models.QueryLevelNameOnly}, stub.levels())
	// name and set alone total 55, under the minimum
	assert.Equal(t, ReasonBelowThreshold, res.Verdict.Reason)
	assert.Equal(t, models.QueryLevelNameOnly, res.Level)
}

func TestRetrieve_SearchTimeoutDegradesLevel(t *testing.T) {
	stub := &catalogStub{cards: testCatalog(), block: true}
	r := NewRetriever(stub, nil, Options{SearchTimeout: 20 * time.Millisecond}, logger.NewTestLogger(t))

	res, err := r.Retrieve(context.Background(), models.RawExtraction{Name: "Pikachu", CardNumber: "58", SetName: "Base Set"})
	require.NoError(t, err)
	require.Len(t, res.Trace, 3)
	for _, lt := range res.Trace {
		assert.Equal(t, ReasonNoCandidates, lt.Verdict.Reason)
		assert.Contains(t, lt.SearchError, "timed out")
	}
}

func TestRetrieve_CallerCancellation(t *testing.T) {
	stub := &catalogStub{cards: testCatalog(), block: true}
	r := NewRetriever(stub, nil, Options{SearchTimeout: time.Minute}, logger.NewTestLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	res, err := r.Retrieve(ctx, models.RawExtraction{Name: "Pikachu", CardNumber: "58", SetName: "Base Set"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, res.Trace)

	cancelled, stop := context.WithCancel(context.Background())
	stop()
	_, err = r.Retrieve(cancelled, models.RawExtraction{Name: "Pikachu"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetrieve_CacheHitScoresIdentically(t *testing.T) {
	stub := &catalogStub{cards: testCatalog()}
	cache := newMapCache()
	r := createTestRetriever(t, stub, cache)

	ext := models.RawExtraction{Name: "Pikachu", CardNumber: "58", SetName: "Base Set"}
	first, err := r.Retrieve(context.Background(), ext)
	require.NoError(t, err)
	second, err := r.Retrieve(context.Background(), ext)
	require.NoError(t, err)

	assert.Len(t, stub.levels(), 1)
	assert.False(t, first.Trace[0].FromCache)
	assert.True(t, second.Trace[0].FromCache)
	assert.Equal(t, first.Verdict, second.Verdict)

	// different extraction text, same query key: scored against the new extraction
	third, err := r.Retrieve(context.Background(), models.RawExtraction{Name: " pikachu ", CardNumber: "58", SetName: "BASE SET", Rarity: "Common"})
	require.NoError(t, err)
	assert.True(t, third.Trace[0].FromCache)
	assert.Equal(t, 90, third.Verdict.TotalScore)
}

func TestRetrieve_FailedSearchIsNotCached(t *testing.T) {
	stub := &catalogStub{
		cards:    testCatalog(),
		failures: map[models.QueryLevel]error{models.QueryLevelFull: errors.New("unavailable")},
	}
	cache := newMapCache()
	r := NewRetriever(stub, cache, Options{Levels: []models.QueryLevel{models.QueryLevelFull}}, logger.NewTestLogger(t))

	ext := models.RawExtraction{Name: "Pikachu", CardNumber: "58", SetName: "Base Set"}
	_, err := r.Retrieve(context.Background(), ext)
	require.NoError(t, err)
	_, err = r.Retrieve(context.Background(), ext)
	require.NoError(t, err)

	assert.Len(t, stub.levels(), 2)
	assert.Empty(t, cache.entries)
}

func TestRetrieve_CapsCandidates(t *testing.T) {
	var cards []models.CandidateRecord
	for i := 0; i < 400; i++ {
		cards = append(cards, models.CandidateRecord{CardID: string(rune(0x4e00 + i)), Name: "Pikachu", CardNumber: "58"})
	}
	stub := &catalogStub{cards: cards}
	r := NewRetriever(stub, nil, Options{MaxCandidates: 50, Levels: []models.QueryLevel{models.QueryLevelNumberOnly}}, logger.NewTestLogger(t))

	res, err := r.Retrieve(context.Background(), models.RawExtraction{Name: "Pikachu", CardNumber: "58"})
	require.NoError(t, err)
	assert.Equal(t, 50, res.Trace[0].Retrieved)
	assert.Equal(t, ReasonAmbiguous, res.Verdict.Reason)
	assert.Len(t, res.Verdict.Considered, 5)
}

func TestRetrieve_ConcurrentScansShareCache(t *testing.T) {
	stub := &catalogStub{cards: testCatalog()}
	r := createTestRetriever(t, stub, newMapCache())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := r.Retrieve(context.Background(), models.RawExtraction{Name: "Charizard", CardNumber: "4", SetName: "Base Set"})
			assert.NoError(t, err)
			assert.True(t, res.Verdict.Accepted)
		}()
	}
	wg.Wait()
}
