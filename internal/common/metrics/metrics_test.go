package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCompilationMode(t *testing.T) {
	assert.Equal(t, "direct", CompilationMode(true, true))
	assert.Equal(t, "school", CompilationMode(false, true))
	assert.Equal(t, "faceted", CompilationMode(false, false))
}

func TestFilterRejections_CountsByField(t *testing.T) {
	before := testutil.ToFloat64(FilterRejections.WithLabelValues("polygon"))
	FilterRejections.WithLabelValues("polygon").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(FilterRejections.WithLabelValues("polygon")))
}
