package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordJobRun_SkippedOverlapDoesNotObserveDuration(t *testing.T) {
	before := testutil.CollectAndCount(JobDuration)

	RecordJobRun("price-crawl", "skipped_overlap", 5*time.Second)

	after := testutil.CollectAndCount(JobDuration)
	assert.Equal(t, before, after, "a dropped overlapping firing never ran, so it shouldn't contribute a duration sample")
}

func TestRecordJobRun_SuccessObservesDuration(t *testing.T) {
	RecordJobRun("reddit-collection", "success", 2*time.Second)

	count := testutil.ToFloat64(JobRuns.WithLabelValues("reddit-collection", "success"))
	assert.GreaterOrEqual(t, count, float64(1))
}

func TestRecordRiskIndex_SetsGaugeValue(t *testing.T) {
	RecordRiskIndex("42", 123.4)

	value := testutil.ToFloat64(RiskIndexObserved.WithLabelValues("42"))
	assert.Equal(t, 123.4, value)
}
