package factory

import (
	"github.com/mcoot/quizwordz/internal/config"
	"github.com/mcoot/quizwordz/internal/dependencies/mocks"
	"github.com/mcoot/quizwordz/internal/metrics"
	"github.com/mcoot/quizwordz/internal/storage/memory"
	"github.com/mcoot/quizwordz/internal/testutil"
)

// TestApp extends App with test-specific helpers
type TestApp struct {
	*App

	// Mocks for test control
	MockClock  *mocks.MockClock
	MockRandom *mocks.MockRandom
	Memory     *memory.Storage
}

// NewTestApp creates an App on the memory store with mocked dependencies
func NewTestApp() *TestApp {
	store := memory.New()
	mockClock := mocks.NewMockClock(testutil.BaseTime)
	mockRandom := mocks.NewMockRandom()

	app := newWithDependencies(config.Default(), store, mockClock, mockRandom, metrics.New(), testutil.NopLogger())

	return &TestApp{
		App:        app,
		MockClock:  mockClock,
		MockRandom: mockRandom,
		Memory:     store,
	}
}
