package app

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dataguard/domain/contract"
	"dataguard/internal/config"
	"dataguard/internal/dataset"
	"dataguard/internal/detector"
	"dataguard/internal/drift"
	"dataguard/internal/registry"
	"dataguard/internal/rules"
	"dataguard/ports"
)

// captureSink records every published report.
type captureSink struct {
	reports []*contract.QualityReport
}

func (s *captureSink) Publish(ctx context.Context, report *contract.QualityReport) error {
	s.reports = append(s.reports, report)
	return nil
}

// captureNotifier records every alert.
type captureNotifier struct {
	alerts []ports.Alert
}

func (n *captureNotifier) Notify(ctx context.Context, alert ports.Alert) error {
	n.alerts = append(n.alerts, alert)
	return nil
}

type fixture struct {
	service  *AssessmentService
	store    *registry.MemoryStore
	engine   *rules.Engine
	sink     *captureSink
	notifier *captureNotifier
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := config.Default()
	store := registry.NewMemoryStore()
	engine := rules.NewEngine(cfg.Scoring, nil)
	anomalies := detector.NewEngine(cfg.Anomaly, detector.MahalanobisScorer{}, nil)
	sink := &captureSink{}
	notifier := &captureNotifier{}
	service := NewAssessmentService(drift.New(store, nil), engine, anomalies, sink, notifier, cfg, nil)
	return &fixture{service: service, store: store, engine: engine, sink: sink, notifier: notifier}
}

func cleanBatch(t *testing.T, rows int) *dataset.Memory {
	t.Helper()
	records := make([]map[string]any, rows)
	for i := range records {
		records[i] = map[string]any{
			"order_id": i,
			"amount":   float64(10 + i%5),
		}
	}
	ds, err := dataset.FromRecords(records, nil)
	require.NoError(t, err)
	return ds
}

func TestAssessBatch_NilDataset(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.AssessBatch(context.Background(), "orders", nil, "")
	assert.Error(t, err)
}

func TestAssessBatch_CleanBatchPasses(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.engine.Register(contract.ValidationRule{
		Name:         "amount_present",
		Dimension:    contract.DimensionCompleteness,
		Severity:     contract.SeverityCritical,
		Predicate:    contract.NotNull{},
		FieldPattern: "amount",
		Enabled:      true,
	}))

	ds := cleanBatch(t, 50)
	report, err := f.service.AssessBatch(context.Background(), "orders", ds, "")
	require.NoError(t, err)

	assert.Equal(t, "orders", report.TableID)
	assert.Equal(t, 50, report.RecordCount)
	assert.Equal(t, contract.ActionInitialRegistration, report.Drift.Action)
	assert.Equal(t, 100.0, report.OverallScore)
	assert.True(t, report.Passed)
	assert.Empty(t, report.Errors)

	// Published once, no alert for a passing batch.
	require.Len(t, f.sink.reports, 1)
	assert.Same(t, report, f.sink.reports[0])
	assert.Empty(t, f.notifier.alerts)
}

func TestAssessBatch_LowScoreFailsGateAndAlerts(t *testing.T) {
	// Weight completeness alone so an all-null column sinks the gate.
	cfg := config.Default()
	cfg.Scoring.DimensionWeights = map[contract.QualityDimension]float64{
		contract.DimensionCompleteness: 1,
	}
	store := registry.NewMemoryStore()
	engine := rules.NewEngine(cfg.Scoring, nil)
	anomalies := detector.NewEngine(cfg.Anomaly, detector.UnavailableScorer{}, nil)
	sink := &captureSink{}
	notifier := &captureNotifier{}
	service := NewAssessmentService(drift.New(store, nil), engine, anomalies, sink, notifier, cfg, nil)
	f := &fixture{service: service, store: store, engine: engine, sink: sink, notifier: notifier}

	require.NoError(t, f.engine.Register(contract.ValidationRule{
		Name:         "amount_present",
		Dimension:    contract.DimensionCompleteness,
		Severity:     contract.SeverityCritical,
		Predicate:    contract.NotNull{},
		FieldPattern: "amount",
		Enabled:      true,
	}))

	// Every amount null: completeness 0 drags the overall score down.
	records := make([]map[string]any, 20)
	for i := range records {
		records[i] = map[string]any{"order_id": i, "amount": nil}
	}
	fields := []contract.FieldDescriptor{
		{Name: "order_id", Type: contract.FieldTypeInt},
		{Name: "amount", Type: contract.FieldTypeFloat, Nullable: true},
	}
	ds, err := dataset.FromRecords(records, fields)
	require.NoError(t, err)

	report, err := f.service.AssessBatch(context.Background(), "orders", ds, "")
	require.NoError(t, err)

	assert.False(t, report.Passed)
	assert.True(t, report.HasCritical())
	require.Len(t, f.notifier.alerts, 1)
	assert.Equal(t, contract.SeverityCritical, f.notifier.alerts[0].Severity)
}

func TestAssessBatch_BreakingDriftFailsGate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Register the baseline schema.
	_, err := f.service.AssessBatch(ctx, "orders", cleanBatch(t, 10), "")
	require.NoError(t, err)

	// Same table, amount becomes a string: breaking drift.
	records := make([]map[string]any, 10)
	for i := range records {
		records[i] = map[string]any{"order_id": i, "amount": "ten"}
	}
	fields := []contract.FieldDescriptor{
		{Name: "order_id", Type: contract.FieldTypeInt},
		{Name: "amount", Type: contract.FieldTypeString},
	}
	ds, err := dataset.FromRecords(records, fields)
	require.NoError(t, err)

	report, err := f.service.AssessBatch(ctx, "orders", ds, "")
	require.NoError(t, err)

	assert.Equal(t, contract.CompatibilityBreaking, report.Drift.Compatibility)
	assert.Equal(t, contract.ActionRequiresManualResolution, report.Drift.Action)
	assert.False(t, report.Passed, "a perfect score cannot pass the gate under breaking drift")
	assert.NotEmpty(t, report.Recommendations)

	// The registry keeps the old version active.
	active, err := f.store.GetActive(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), active.Version)

	// Breaking drift raises a critical alert.
	require.NotEmpty(t, f.notifier.alerts)
	assert.Equal(t, contract.SeverityCritical, f.notifier.alerts[len(f.notifier.alerts)-1].Severity)
}

func TestAssessBatch_DriftFailureDegradesReport(t *testing.T) {
	cfg := config.Default()
	engine := rules.NewEngine(cfg.Scoring, nil)
	anomalies := detector.NewEngine(cfg.Anomaly, detector.UnavailableScorer{}, nil)
	sink := &captureSink{}
	service := NewAssessmentService(drift.New(failingStore{}, nil), engine, anomalies, sink, nil, cfg, nil)

	report, err := service.AssessBatch(context.Background(), "orders", cleanBatch(t, 10), "")
	require.NoError(t, err)

	assert.NotEmpty(t, report.Errors)
	assert.Equal(t, contract.ActionRequiresManualResolution, report.Drift.Action)
	// No diff ran, so the report must not claim full compatibility.
	assert.Equal(t, contract.CompatibilityUnknown, report.Drift.Compatibility)
	// Rules and anomalies still ran.
	assert.Equal(t, 100.0, report.OverallScore)
	require.Len(t, sink.reports, 1)
}

// failingStore simulates an unreachable registry.
type failingStore struct{}

func (failingStore) GetActive(ctx context.Context, tableID string) (*contract.SchemaVersion, error) {
	return nil, context.DeadlineExceeded
}

func (failingStore) Register(ctx context.Context, tableID string, fields []contract.FieldDescriptor, changes []contract.SchemaChange, expectedVersion uint64) (*contract.SchemaVersion, error) {
	return nil, context.DeadlineExceeded
}

func (failingStore) ListVersions(ctx context.Context, tableID string) ([]contract.SchemaVersion, error) {
	return nil, context.DeadlineExceeded
}
