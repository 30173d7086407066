package gateway

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/goreliks/pdf-hunter-sub000/internal/evidence"
	"github.com/goreliks/pdf-hunter-sub000/internal/mission"
)

const classifySystemPrompt = `You are a senior malware analyst triaging a PDF
from a static structural scan. The file is never opened or rendered.

Classify the scan and propose one investigation mission per suspicious entry
point. Threat categories:
  /auto_execution     OpenAction, AA dictionaries
  /external_launch    Launch actions, external programs
  /script_payload     JavaScript, JS streams
  /interactive_form   AcroForm, XFA
  /attached_file      EmbeddedFile, filespecs
  /user_directed      operator-supplied focus
  /structural_anomaly malformed xref, object shadowing, oddities

Mission ids must be short, unique, stable slugs (e.g. "auto-exec-obj7").
Respond with JSON only:
{"decision":"innocent|suspicious|malicious","rationale":"...",
 "missions":[{"id":"...","category":"/script_payload","entry_point":"obj 9",
              "source_ref":"...","rationale":"..."}]}`

const investigateSystemPrompt = `You are running one focused static
investigation of a PDF. You have a fixed mission; do not widen its scope.
If you notice evidence for a different threat category, record it as an
evidence node and move on. Never propose new missions.

Evidence node ids must be canonical per object ("obj_12", "url_3", "js_1")
so independent investigations converge on the same ids. Node kinds:
/artifact_object /extracted_payload /indicator_of_compromise /file.

Each turn respond with JSON only, exactly one of tool_call or verdict set:
{"tool_call":{"tool":"pdf-parser","args":{"object":"9"}},
 "nodes":[...],"edges":[...]}
or
{"verdict":{"status":"/resolved_malicious|/resolved_benign|/blocked",
            "summary":"...","iocs":["..."]},
 "nodes":[...],"edges":[...]}`

const mergeSystemPrompt = `You merge evidence graphs from independent PDF
investigations into one consistent master graph. When two inputs share a node
id, keep the qualitatively more complete version; never invent nodes. Union
all edges, dropping exact duplicates. Respond with the merged graph as JSON:
{"nodes":[...],"edges":[...]}`

const reviewSystemPrompt = `You are the strategic reviewer of a PDF
investigation session. You see only the merged evidence graph and the mission
reports; do not re-derive candidates from the original scan.

Emit a follow-up mission only when:
 (a) a /blocked mission's missing prerequisite now appears in the merged
     findings of another mission: emit a resumption mission carrying that
     context, with a fresh id; or
 (b) a resolved mission's newly merged edges reveal a novel, material
     connection to an entity no mission has investigated.

If nothing qualifies, return no missions and complete=true.
Respond with JSON only:
{"new_missions":[{"id":"...","category":"...","entry_point":"...",
                  "source_ref":"...","rationale":"..."}],"complete":false}`

const finalizeSystemPrompt = `You write the final verdict for a completed
static PDF investigation. Weigh all mission outcomes and the merged evidence
graph. Respond with JSON only:
{"verdict":"Malicious|Suspicious|Benign","confidence":0-10,"summary":"...",
 "attack_chain":["step 1","step 2"],"iocs":["..."]}`

func buildClassifyPrompt(scan ScanSummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Artifact: %s\n\nScan output:\n%s\n", scan.ArtifactPath, scan.ScanOutput)
	if scan.Directive != "" {
		fmt.Fprintf(&b, "\nOperator directive (create one /user_directed mission for it):\n%s\n", scan.Directive)
	}
	return b.String()
}

func buildInvestigatePrompt(m mission.Mission, transcript []Turn) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Mission %s\nCategory: %s\nEntry point: %s\n", m.ID, m.Category, m.EntryPoint)
	if m.SourceRef != "" {
		fmt.Fprintf(&b, "Source ref: %s\n", m.SourceRef)
	}
	fmt.Fprintf(&b, "Rationale: %s\n\nTranscript:\n", m.Rationale)
	for i, t := range transcript {
		fmt.Fprintf(&b, "[%d %s] %s\n", i, t.Role, t.Content)
	}
	b.WriteString("\nNext step:")
	return b.String()
}

func buildMergePrompt(master *evidence.Graph, fragments []*evidence.Graph) (string, error) {
	var b strings.Builder
	masterJSON, err := json.Marshal(master)
	if err != nil {
		return "", err
	}
	fmt.Fprintf(&b, "Master graph:\n%s\n", masterJSON)
	for i, f := range fragments {
		fragJSON, err := json.Marshal(f)
		if err != nil {
			return "", err
		}
		fmt.Fprintf(&b, "\nFragment %d:\n%s\n", i+1, fragJSON)
	}
	return b.String(), nil
}

func buildReviewPrompt(master *evidence.Graph, reports []mission.Report) (string, error) {
	masterJSON, err := json.Marshal(master)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Merged evidence graph:\n%s\n\nMission reports:\n", masterJSON)
	for _, r := range reports {
		fmt.Fprintf(&b, "- %s %s: %s\n", r.MissionID, r.FinalStatus, r.Summary)
	}
	return b.String(), nil
}

func buildFinalizePrompt(master *evidence.Graph, reports []mission.Report, iocs []string) (string, error) {
	masterJSON, err := json.Marshal(master)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Final evidence graph:\n%s\n\nMission outcomes:\n", masterJSON)
	for _, r := range reports {
		fmt.Fprintf(&b, "- %s %s: %s\n", r.MissionID, r.FinalStatus, r.Summary)
	}
	if len(iocs) > 0 {
		fmt.Fprintf(&b, "\nDeduplicated IOCs:\n")
		for _, ioc := range iocs {
			fmt.Fprintf(&b, "- %s\n", ioc)
		}
	}
	return b.String(), nil
}

// cleanJSONResponse strips markdown fences some models wrap around JSON.
func cleanJSONResponse(resp string) string {
	resp = strings.TrimSpace(resp)
	resp = strings.TrimPrefix(resp, "```json")
	resp = strings.TrimPrefix(resp, "```")
	resp = strings.TrimSuffix(resp, "```")
	return strings.TrimSpace(resp)
}
