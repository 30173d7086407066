package orchestrator

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/goreliks/pdf-hunter-sub000/internal/evidence"
	"github.com/goreliks/pdf-hunter-sub000/internal/gateway"
	"github.com/goreliks/pdf-hunter-sub000/internal/mission"
)

func TestDedupIOCs(t *testing.T) {
	reports := []mission.Report{
		{MissionID: "m-1", IOCs: []string{"http://evil.example/a", "  http://evil.example/b "}},
		{MissionID: "m-2", IOCs: []string{"HTTP://EVIL.EXAMPLE/A", "", "198.51.100.7"}},
		{MissionID: "m-3", IOCs: []string{"http://evil.example/b", "198.51.100.7"}},
	}

	got := DedupIOCs(reports)
	want := []string{"http://evil.example/a", "http://evil.example/b", "198.51.100.7"}
	assert.Equal(t, want, got, "first-seen order, case and whitespace insensitive")
}

func TestFinalizer_PassesDedupedIOCs(t *testing.T) {
	var captured []string
	gw := &scriptedGateway{
		FinalizeFunc: func(ctx context.Context, master *evidence.Graph, reports []mission.Report, iocs []string) (gateway.FinalReport, error) {
			captured = iocs
			return gateway.FinalReport{Verdict: "Malicious", Confidence: 9, IOCs: iocs}, nil
		},
	}
	f := NewFinalizer(gw, time.Second, zap.NewNop())

	reports := []mission.Report{
		{MissionID: "m-1", FinalStatus: mission.StatusResolvedMalicious, IOCs: []string{"http://evil.example", "http://EVIL.example"}},
	}
	report, err := f.Finalize(context.Background(), evidence.NewGraph(), reports)
	require.NoError(t, err)
	assert.Equal(t, []string{"http://evil.example"}, captured)
	assert.Equal(t, "Malicious", report.Verdict)
}

func TestFinalizer_FillsIOCsWhenGatewayOmitsThem(t *testing.T) {
	gw := &scriptedGateway{
		FinalizeFunc: func(ctx context.Context, master *evidence.Graph, reports []mission.Report, iocs []string) (gateway.FinalReport, error) {
			return gateway.FinalReport{Verdict: "Suspicious", Confidence: 6}, nil
		},
	}
	f := NewFinalizer(gw, time.Second, zap.NewNop())

	reports := []mission.Report{
		{MissionID: "m-1", FinalStatus: mission.StatusResolvedMalicious, IOCs: []string{"198.51.100.7"}},
	}
	report, err := f.Finalize(context.Background(), evidence.NewGraph(), reports)
	require.NoError(t, err)
	assert.Equal(t, []string{"198.51.100.7"}, report.IOCs)
}
