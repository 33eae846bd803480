package observability

import (
	"context"
	"testing"

	"github.com/yungbote/neurobridge-recommender/internal/platform/logger"
)

func TestParseHeaders(t *testing.T) {
	got := parseHeaders(" api-key = abc ,broken,=x, team=recs")
	if len(got) != 2 || got["api-key"] != "abc" || got["team"] != "recs" {
		t.Fatalf("headers=%v", got)
	}
	if len(parseHeaders("")) != 0 {
		t.Fatalf("empty input should yield no headers")
	}
}

func TestSampleRatioClamps(t *testing.T) {
	t.Setenv("OTEL_SAMPLER_RATIO", "7")
	if sampleRatio() != 1 {
		t.Fatalf("ratio should clamp to 1")
	}
	t.Setenv("OTEL_SAMPLER_RATIO", "-1")
	if sampleRatio() != 0 {
		t.Fatalf("ratio should clamp to 0")
	}
}

func TestInitOTelDisabledReturnsNoopShutdown(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "false")
	shutdown := InitOTel(context.Background(), logger.Nop(), OtelConfig{})
	if shutdown == nil {
		t.Fatalf("shutdown must be non-nil")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}
