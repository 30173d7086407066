package orchestrator

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/goreliks/pdf-hunter-sub000/internal/evidence"
	"github.com/goreliks/pdf-hunter-sub000/internal/gateway"
	"github.com/goreliks/pdf-hunter-sub000/internal/mission"
)

func testInput() Input {
	return Input{ArtifactPath: "/tmp/sample.pdf", OutputDir: "/tmp/out"}
}

func reportsByID(session *Session) map[string]mission.Report {
	out := make(map[string]mission.Report)
	for _, rep := range session.Reports() {
		out[rep.MissionID] = rep
	}
	return out
}

// Two concurrent missions resolve in round one, the reviewer spots a new
// lead in the merged graph and dispatches a follow-up, round two resolves
// it, the session finalizes Malicious.
func TestLoop_FollowUpRoundResolvesNewLead(t *testing.T) {
	reviewCalls := 0
	var mergeFragments []int

	gw := &scriptedGateway{
		ClassifyFunc: func(ctx context.Context, scan gateway.ScanSummary) (gateway.TriageResult, error) {
			assert.Contains(t, scan.ScanOutput, "/OpenAction")
			return gateway.TriageResult{
				Decision:  "suspicious",
				Rationale: "open action plus javascript",
				Missions: []mission.Spec{
					specFor("m-openaction", mission.CategoryAutoExecution, "obj_7"),
					specFor("m-js", mission.CategoryScriptPayload, "obj_9"),
				},
			}, nil
		},
		StepFunc: func(ctx context.Context, m mission.Mission, transcript []gateway.Turn) (gateway.StepResult, error) {
			switch m.ID {
			case "m-openaction":
				return gateway.StepResult{
					Verdict: &gateway.Verdict{Status: mission.StatusResolvedMalicious, Summary: "auto-exec chain"},
					Nodes: []evidence.Node{
						{ID: "obj_7", Kind: evidence.KindArtifactObject, Label: "OpenAction"},
					},
					Edges: []evidence.Edge{
						{SourceID: "obj_7", TargetID: "obj_9", Label: "triggers"},
					},
				}, nil
			case "m-js":
				return gateway.StepResult{
					Verdict: &gateway.Verdict{
						Status:  mission.StatusResolvedMalicious,
						Summary: "downloader script",
						IOCs:    []string{"http://evil.example/payload"},
					},
					Nodes: []evidence.Node{
						{ID: "obj_9", Kind: evidence.KindArtifactObject, Label: "JS stream"},
						{ID: "url_1", Kind: evidence.KindIndicatorOfCompromise, Label: "http://evil.example/payload"},
					},
					Edges: []evidence.Edge{
						{SourceID: "obj_9", TargetID: "url_1", Label: "contacts"},
					},
				}, nil
			case "m-embedded":
				return gateway.StepResult{
					Verdict: &gateway.Verdict{Status: mission.StatusResolvedBenign, Summary: "inert attachment"},
					Nodes: []evidence.Node{
						{ID: "obj_12", Kind: evidence.KindFile, Label: "readme.txt"},
					},
				}, nil
			}
			return gateway.StepResult{}, fmt.Errorf("unexpected mission %s", m.ID)
		},
		MergeFunc: func(ctx context.Context, master *evidence.Graph, fragments []*evidence.Graph) (*evidence.Graph, error) {
			mergeFragments = append(mergeFragments, len(fragments))
			return master.Union(fragments...), nil
		},
		ReviewFunc: func(ctx context.Context, master *evidence.Graph, reports []mission.Report) (gateway.ReviewResult, error) {
			reviewCalls++
			if reviewCalls == 1 {
				require.True(t, master.HasEdge(evidence.Edge{SourceID: "obj_7", TargetID: "obj_9", Label: "triggers"}),
					"reviewer must see the merged round-one evidence")
				return gateway.ReviewResult{
					NewMissions: []mission.Spec{
						specFor("m-embedded", mission.CategoryAttachedFile, "obj_12"),
					},
				}, nil
			}
			return gateway.ReviewResult{Complete: true}, nil
		},
		FinalizeFunc: func(ctx context.Context, master *evidence.Graph, reports []mission.Report, iocs []string) (gateway.FinalReport, error) {
			return gateway.FinalReport{
				Verdict:     "Malicious",
				Confidence:  9,
				Summary:     "auto-executing downloader",
				AttackChain: []string{"obj_7 triggers obj_9", "obj_9 contacts url_1"},
				IOCs:        iocs,
			}, nil
		},
	}

	loop := NewLoop(gw, testToolRegistry(t), testConfig(), zap.NewNop())
	report, session, err := loop.Run(context.Background(), testInput())
	require.NoError(t, err)

	assert.Equal(t, "Malicious", report.Verdict)
	assert.Equal(t, []string{"http://evil.example/payload"}, report.IOCs)
	assert.True(t, session.Complete)
	assert.Equal(t, 2, session.RoundsExecuted)
	assert.Empty(t, session.Errors)
	assert.Equal(t, PhaseDone, loop.Phase())

	// One fragment per dispatched mission, per round.
	assert.Equal(t, []int{2, 1}, mergeFragments)

	for _, id := range []string{"obj_7", "obj_9", "url_1", "obj_12"} {
		assert.True(t, session.Master.HasNode(id), "master graph missing %s", id)
	}

	byID := reportsByID(session)
	require.Len(t, byID, 3)
	assert.Equal(t, mission.StatusResolvedMalicious, byID["m-openaction"].FinalStatus)
	assert.Equal(t, mission.StatusResolvedMalicious, byID["m-js"].FinalStatus)
	assert.Equal(t, mission.StatusResolvedBenign, byID["m-embedded"].FinalStatus)
}

// A mission exhausts its step budget and blocks; its sibling surfaces the
// credential it was missing; the reviewer dispatches a resumption mission
// that resolves in round two.
func TestLoop_BlockedMissionResumedWithSiblingEvidence(t *testing.T) {
	reviewCalls := 0

	gw := &scriptedGateway{
		ClassifyFunc: func(ctx context.Context, scan gateway.ScanSummary) (gateway.TriageResult, error) {
			return gateway.TriageResult{
				Decision: "suspicious",
				Missions: []mission.Spec{
					specFor("m-stuck", mission.CategoryScriptPayload, "obj_5"),
					specFor("m-form", mission.CategoryInteractiveForm, "obj_3"),
				},
			}, nil
		},
		StepFunc: func(ctx context.Context, m mission.Mission, transcript []gateway.Turn) (gateway.StepResult, error) {
			switch m.ID {
			case "m-stuck":
				// Never concludes; burns the step budget on tool calls.
				return gateway.StepResult{
					ToolCall: &gateway.ToolCall{Tool: "pdf-parser", Args: map[string]string{"object": "5"}},
				}, nil
			case "m-form":
				return gateway.StepResult{
					Verdict: &gateway.Verdict{Status: mission.StatusResolvedMalicious, Summary: "form exfiltrates input"},
					Nodes: []evidence.Node{
						{ID: "key_1", Kind: evidence.KindExtractedPayload, Label: "stream decryption key"},
					},
				}, nil
			case "m-stuck-resume":
				return gateway.StepResult{
					Verdict: &gateway.Verdict{Status: mission.StatusResolvedMalicious, Summary: "stream decoded with key_1"},
					Nodes: []evidence.Node{
						{ID: "obj_5", Kind: evidence.KindExtractedPayload, Label: "decoded script"},
					},
					Edges: []evidence.Edge{
						{SourceID: "key_1", TargetID: "obj_5", Label: "decrypts"},
					},
				}, nil
			}
			return gateway.StepResult{}, fmt.Errorf("unexpected mission %s", m.ID)
		},
		ReviewFunc: func(ctx context.Context, master *evidence.Graph, reports []mission.Report) (gateway.ReviewResult, error) {
			reviewCalls++
			if reviewCalls == 1 {
				return gateway.ReviewResult{
					NewMissions: []mission.Spec{{
						ID:         "m-stuck-resume",
						Category:   mission.CategoryScriptPayload,
						EntryPoint: "obj_5",
						SourceRef:  "key_1",
						Rationale:  "retry with the decryption key from the form mission",
					}},
				}, nil
			}
			return gateway.ReviewResult{Complete: true}, nil
		},
	}

	cfg := testConfig()
	cfg.Budgets.StepBudget = 2

	loop := NewLoop(gw, testToolRegistry(t), cfg, zap.NewNop())
	_, session, err := loop.Run(context.Background(), testInput())
	require.NoError(t, err)

	assert.True(t, session.Complete)
	assert.Equal(t, 2, session.RoundsExecuted)

	byID := reportsByID(session)
	require.Len(t, byID, 3)
	assert.Equal(t, mission.StatusBlocked, byID["m-stuck"].FinalStatus)
	assert.Equal(t, mission.StatusResolvedMalicious, byID["m-stuck-resume"].FinalStatus)

	assert.True(t, hasErrorKind(session.Errors, ErrorRecursionExhausted),
		"the blocked mission must be recorded")
	assert.True(t, session.Master.HasEdge(evidence.Edge{SourceID: "key_1", TargetID: "obj_5", Label: "decrypts"}))
}

// A reviewer that emits missions forever cannot hang the session: the
// round budget forces finalization with partial evidence.
func TestLoop_RoundBudgetForcesFinalization(t *testing.T) {
	next := 0
	finalized := false

	gw := &scriptedGateway{
		ClassifyFunc: func(ctx context.Context, scan gateway.ScanSummary) (gateway.TriageResult, error) {
			return gateway.TriageResult{
				Decision: "suspicious",
				Missions: []mission.Spec{specFor("m-seed", mission.CategoryStructuralAnomaly, "xref")},
			}, nil
		},
		ReviewFunc: func(ctx context.Context, master *evidence.Graph, reports []mission.Report) (gateway.ReviewResult, error) {
			next++
			return gateway.ReviewResult{
				NewMissions: []mission.Spec{
					specFor(fmt.Sprintf("m-endless-%d", next), mission.CategoryStructuralAnomaly, "xref"),
				},
			}, nil
		},
		FinalizeFunc: func(ctx context.Context, master *evidence.Graph, reports []mission.Report, iocs []string) (gateway.FinalReport, error) {
			finalized = true
			return gateway.FinalReport{Verdict: "Suspicious", Confidence: 4, Summary: "partial evidence"}, nil
		},
	}

	cfg := testConfig()
	cfg.Budgets.RoundBudget = 2

	loop := NewLoop(gw, testToolRegistry(t), cfg, zap.NewNop())
	report, session, err := loop.Run(context.Background(), testInput())
	require.NoError(t, err)

	assert.True(t, finalized, "the session must finalize despite the endless reviewer")
	assert.Equal(t, "Suspicious", report.Verdict)
	assert.Equal(t, 2, session.RoundsExecuted)
	assert.False(t, session.Complete)
	assert.True(t, hasErrorKind(session.Errors, ErrorRoundBudgetExhausted))
}

func TestLoop_DirectiveAlwaysYieldsMission(t *testing.T) {
	gw := &scriptedGateway{
		ClassifyFunc: func(ctx context.Context, scan gateway.ScanSummary) (gateway.TriageResult, error) {
			assert.Equal(t, "decode the stream in object 12", scan.Directive)
			return gateway.TriageResult{Decision: "innocent"}, nil
		},
	}

	loop := NewLoop(gw, testToolRegistry(t), testConfig(), zap.NewNop())
	in := testInput()
	in.Directive = "decode the stream in object 12"

	_, session, err := loop.Run(context.Background(), in)
	require.NoError(t, err)

	byID := reportsByID(session)
	rep, ok := byID["user-directive"]
	require.True(t, ok, "the operator directive must produce a mission even when triage returns none")
	assert.True(t, rep.FinalStatus.Terminal())
	assert.True(t, session.Complete)
}

func TestLoop_MalformedTriageMissionSkipped(t *testing.T) {
	gw := &scriptedGateway{
		ClassifyFunc: func(ctx context.Context, scan gateway.ScanSummary) (gateway.TriageResult, error) {
			return gateway.TriageResult{
				Decision: "suspicious",
				Missions: []mission.Spec{
					specFor("m-good", mission.CategoryScriptPayload, "obj_9"),
					{ID: "m-bad", Category: "/ransomware", EntryPoint: "obj_2"},
				},
			}, nil
		},
	}

	loop := NewLoop(gw, testToolRegistry(t), testConfig(), zap.NewNop())
	_, session, err := loop.Run(context.Background(), testInput())
	require.NoError(t, err)

	byID := reportsByID(session)
	assert.Contains(t, byID, "m-good")
	assert.NotContains(t, byID, "m-bad")
	assert.True(t, hasErrorKind(session.Errors, ErrorMalformedMission))
	assert.True(t, session.Complete)
}

func TestLoop_CancellationFinalizesWithPartialEvidence(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	finalized := false
	gw := &scriptedGateway{
		ClassifyFunc: func(c context.Context, scan gateway.ScanSummary) (gateway.TriageResult, error) {
			return gateway.TriageResult{
				Decision: "suspicious",
				Missions: []mission.Spec{specFor("m-1", mission.CategoryScriptPayload, "obj_9")},
			}, nil
		},
		StepFunc: func(c context.Context, m mission.Mission, transcript []gateway.Turn) (gateway.StepResult, error) {
			return gateway.StepResult{
				Verdict: &gateway.Verdict{Status: mission.StatusResolvedMalicious, Summary: "downloader"},
				Nodes:   []evidence.Node{{ID: "obj_9", Kind: evidence.KindArtifactObject, Label: "JS stream"}},
			}, nil
		},
		ReviewFunc: func(c context.Context, master *evidence.Graph, reports []mission.Report) (gateway.ReviewResult, error) {
			// The operator aborts mid-session; the next round must not start.
			cancel()
			return gateway.ReviewResult{
				NewMissions: []mission.Spec{specFor("m-never", mission.CategoryScriptPayload, "obj_10")},
			}, nil
		},
		FinalizeFunc: func(c context.Context, master *evidence.Graph, reports []mission.Report, iocs []string) (gateway.FinalReport, error) {
			finalized = true
			require.NoError(t, c.Err(), "finalize must run on an uncancelled context")
			return gateway.FinalReport{Verdict: "Suspicious", Confidence: 5, Summary: "aborted early"}, nil
		},
	}

	loop := NewLoop(gw, testToolRegistry(t), testConfig(), zap.NewNop())
	report, session, err := loop.Run(ctx, testInput())
	require.NoError(t, err)

	assert.True(t, finalized)
	assert.Equal(t, "Suspicious", report.Verdict)
	assert.True(t, hasErrorKind(session.Errors, ErrorCancelled))
	assert.True(t, session.Master.HasNode("obj_9"), "round-one evidence survives the abort")

	byID := reportsByID(session)
	assert.NotContains(t, byID, "m-never", "the post-cancel mission is never dispatched")
}

func TestLoop_MergeDegradationRecordedNotFatal(t *testing.T) {
	gw := &scriptedGateway{
		ClassifyFunc: func(ctx context.Context, scan gateway.ScanSummary) (gateway.TriageResult, error) {
			return gateway.TriageResult{
				Decision: "suspicious",
				Missions: []mission.Spec{specFor("m-1", mission.CategoryScriptPayload, "obj_9")},
			}, nil
		},
		StepFunc: func(ctx context.Context, m mission.Mission, transcript []gateway.Turn) (gateway.StepResult, error) {
			return gateway.StepResult{
				Verdict: &gateway.Verdict{Status: mission.StatusResolvedBenign, Summary: "inert"},
				Nodes:   []evidence.Node{{ID: "obj_9", Kind: evidence.KindArtifactObject, Label: "stream"}},
			}, nil
		},
		MergeFunc: func(ctx context.Context, master *evidence.Graph, fragments []*evidence.Graph) (*evidence.Graph, error) {
			return nil, fmt.Errorf("merge model overloaded")
		},
	}

	loop := NewLoop(gw, testToolRegistry(t), testConfig(), zap.NewNop())
	_, session, err := loop.Run(context.Background(), testInput())
	require.NoError(t, err)

	assert.True(t, hasErrorKind(session.Errors, ErrorMergeDegraded))
	assert.True(t, session.Master.HasNode("obj_9"), "structural union preserves the fragment")
	assert.True(t, session.Complete)
}
