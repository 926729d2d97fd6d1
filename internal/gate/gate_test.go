package gate

import (
	"testing"

	"github.com/danielpatrickdp/persona-state/internal/state"
	"github.com/danielpatrickdp/persona-state/internal/update"
)

func applyOne(t *testing.T, old state.PersonaState, ev update.FeedbackEvent) (state.PersonaState, []state.UpdateRecord) {
	t.Helper()
	res, err := update.NewEngine(nil, update.DefaultUpdateConfig()).Apply(old, ev)
	if err != nil {
		t.Fatalf("Apply: %v", err)
	}
	return res.NewState, []state.UpdateRecord{*res.Record}
}

func TestGateCommitsEngineOutput(t *testing.T) {
	g := NewGate(nil, DefaultGateConfig())
	old := state.Default("u1")
	proposed, recs := applyOne(t, old, update.FeedbackEvent{
		Kind: state.KindExplicit, TargetField: "topic_affinity.ai", Direction: 1, Confidence: 1,
	})

	decision := g.Evaluate(old, proposed, recs)
	if decision.Action != "commit" {
		t.Fatalf("expected commit, got %s: %s", decision.Action, decision.Reason)
	}
	if decision.Vetoed {
		t.Fatal("should not be vetoed")
	}
	for _, c := range decision.Checks {
		if !c.Pass {
			t.Fatalf("check %s failed", c.Name)
		}
	}
}

func TestGateRejectsOutOfRange(t *testing.T) {
	g := NewGate(nil, DefaultGateConfig())
	old := state.Default("u1")
	proposed, recs := applyOne(t, old, update.FeedbackEvent{
		Kind: state.KindExplicit, TargetField: state.PathHumorFrequency, Direction: 1, Confidence: 1,
	})
	proposed.ToneStyle.HumorFrequency = 1.4

	decision := g.Evaluate(old, proposed, recs)
	if decision.Action != "reject" || !decision.Vetoed {
		t.Fatalf("expected reject, got %s", decision.Action)
	}
	if decision.VetoSignals[0].Type != VetoRange {
		t.Fatalf("expected VetoRange, got %s", decision.VetoSignals[0].Type)
	}
}

func TestGateVetoesUnrelatedUpdateOnInvalidState(t *testing.T) {
	g := NewGate(nil, DefaultGateConfig())
	old := state.Default("u1")
	old.ToneStyle.HumorFrequency = 1.4

	// the engine only re-checks the field it touched, so it commits
	proposed, recs := applyOne(t, old, update.FeedbackEvent{
		Kind: state.KindExplicit, TargetField: "topic_affinity.ai", Direction: 1, Confidence: 1,
	})

	decision := g.Evaluate(old, proposed, recs)
	if !decision.Vetoed || decision.VetoSignals[0].Path != state.PathHumorFrequency {
		t.Fatalf("expected veto on humor frequency, got %+v", decision)
	}
}

func TestGateRejectsDriftBeyondCap(t *testing.T) {
	g := NewGate(nil, DefaultGateConfig())
	old := state.Default("u1")
	proposed, recs := applyOne(t, old, update.FeedbackEvent{
		Kind: state.KindExplicit, TargetField: state.PathHumorFrequency, Direction: 1, Confidence: 1,
	})
	recs[0].Delta = 0.5
	proposed.History[len(proposed.History)-1] = recs[0]

	decision := g.Evaluate(old, proposed, recs)
	if !decision.Vetoed {
		t.Fatal("expected drift veto")
	}
	found := false
	for _, v := range decision.VetoSignals {
		if v.Type == VetoDrift && v.Path == state.PathHumorFrequency {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected VetoDrift, got %+v", decision.VetoSignals)
	}
}

func TestGateRejectsVersionSkip(t *testing.T) {
	g := NewGate(nil, DefaultGateConfig())
	old := state.Default("u1")
	proposed, recs := applyOne(t, old, update.FeedbackEvent{
		Kind: state.KindBehavioral, TargetField: state.PathChallengeOthers, Direction: -1, Confidence: 0.5,
	})
	proposed.Version = 5

	decision := g.Evaluate(old, proposed, recs)
	if !decision.Vetoed || decision.VetoSignals[0].Type != VetoVersion {
		t.Fatalf("expected version veto, got %+v", decision.VetoSignals)
	}
}

func TestGateRejectsRewrittenHistory(t *testing.T) {
	g := NewGate(nil, DefaultGateConfig())
	base := state.Default("u1")
	old, _ := applyOne(t, base, update.FeedbackEvent{
		Kind: state.KindExplicit, TargetField: "topic_affinity.saas", Direction: 1, Confidence: 1,
	})
	proposed, recs := applyOne(t, old, update.FeedbackEvent{
		Kind: state.KindExplicit, TargetField: "topic_affinity.saas", Direction: 1, Confidence: 1,
	})
	proposed.History[0].ID = "forged"

	decision := g.Evaluate(old, proposed, recs)
	if !decision.Vetoed {
		t.Fatal("expected history veto")
	}
	if decision.VetoSignals[0].Type != VetoHistory {
		t.Fatalf("expected VetoHistory, got %s", decision.VetoSignals[0].Type)
	}
}
