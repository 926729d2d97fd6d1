package transport

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/danielpatrickdp/persona-state/internal/activity"
	apperrors "github.com/danielpatrickdp/persona-state/internal/errors"
	"github.com/danielpatrickdp/persona-state/internal/onboarding"
	"github.com/danielpatrickdp/persona-state/internal/priority"
	"github.com/danielpatrickdp/persona-state/internal/signals"
	"github.com/danielpatrickdp/persona-state/internal/state"
	"github.com/danielpatrickdp/persona-state/internal/update"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

// #region codec

// encode renders v as a google.protobuf.Struct via its JSON form.
func encode(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal message: %w", err)
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("encode struct: %w", err)
	}
	return out, nil
}

// decode fills v from a google.protobuf.Struct. Malformed input is an invalid argument.
func decode(s *structpb.Struct, v any) error {
	if s == nil {
		s = &structpb.Struct{}
	}
	data, err := protojson.Marshal(s)
	if err != nil {
		return apperrors.InvalidArgument("unreadable message: " + err.Error())
	}
	if err := json.Unmarshal(data, v); err != nil {
		return apperrors.InvalidArgument("malformed message: " + err.Error())
	}
	return nil
}

// #endregion codec

// #region requests

// UserRequest addresses one user; Limit and At are used by History and Targets.
type UserRequest struct {
	UserID string    `json:"user_id"`
	Limit  int       `json:"limit,omitempty"`
	At     time.Time `json:"at"`
}

// Event is the wire form of update.FeedbackEvent.
type Event struct {
	ID            string    `json:"id,omitempty"`
	Kind          string    `json:"kind"`
	TargetField   string    `json:"target_field"`
	Direction     float64   `json:"direction"`
	Confidence    float64   `json:"confidence"`
	SourceContext string    `json:"source_context,omitempty"`
	Label         string    `json:"label,omitempty"`
	ObservedAt    time.Time `json:"observed_at"`
}

// ApplyFeedbackRequest carries pre-classified events.
type ApplyFeedbackRequest struct {
	UserID string  `json:"user_id"`
	Events []Event `json:"events"`
}

// Observation is the wire form of signals.Observation.
type Observation struct {
	UserID       string    `json:"user_id"`
	Kind         string    `json:"kind"`
	Topics       []string  `json:"topics,omitempty"`
	Original     string    `json:"original,omitempty"`
	Edited       string    `json:"edited,omitempty"`
	PostID       string    `json:"post_id,omitempty"`
	Likes        int       `json:"likes,omitempty"`
	Replies      int       `json:"replies,omitempty"`
	Retweets     int       `json:"retweets,omitempty"`
	RepliesToday int       `json:"replies_today,omitempty"`
	LatencyMS    int64     `json:"latency_ms,omitempty"`
	Hesitated    bool      `json:"hesitated,omitempty"`
	Context      string    `json:"context,omitempty"`
	ObservedAt   time.Time `json:"observed_at"`
}

// ActivityRequest records one completed action.
type ActivityRequest struct {
	UserID    string    `json:"user_id"`
	Kind      string    `json:"kind"`
	Ref       string    `json:"ref,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Action is the wire form of priority.Action.
type Action struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind,omitempty"`
	Class       string    `json:"class"`
	ScheduledAt time.Time `json:"scheduled_at"`
	AgeSeconds  float64   `json:"age_seconds,omitempty"`
	Topics      []string  `json:"topics,omitempty"`
	Angle       string    `json:"angle,omitempty"`
	Affinity    float64   `json:"affinity,omitempty"`
	Rationale   string    `json:"rationale,omitempty"`
}

// RankRequest carries candidates to order.
type RankRequest struct {
	UserID     string   `json:"user_id"`
	Candidates []Action `json:"candidates"`
}

// OnboardRequest carries the history pulled for a new user.
type OnboardRequest struct {
	UserID      string             `json:"user_id"`
	Posts       []string           `json:"posts,omitempty"`
	PostDays    int                `json:"post_days,omitempty"`
	Replies     int                `json:"replies,omitempty"`
	ReplyDays   int                `json:"reply_days,omitempty"`
	Likes       int                `json:"likes,omitempty"`
	TopicWeight map[string]float64 `json:"topic_weight,omitempty"`
}

// ExplainRequest asks for a rendered persona.
type ExplainRequest struct {
	UserID string `json:"user_id"`
	Lang   string `json:"lang,omitempty"`
	Limit  int    `json:"limit,omitempty"`
}

// #endregion requests

// #region responses

// Result reports what happened to one event.
type Result struct {
	EventID  string `json:"event_id,omitempty"`
	Target   string `json:"target_field,omitempty"`
	Action   string `json:"action"`
	Reason   string `json:"reason,omitempty"`
	RecordID string `json:"record_id,omitempty"`
}

// UpdateResponse is returned by ApplyFeedback and Observe.
type UpdateResponse struct {
	State    state.PersonaState `json:"state"`
	Results  []Result           `json:"results"`
	Deferred bool               `json:"deferred,omitempty"`
}

// ActivityResponse echoes the stored action.
type ActivityResponse struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
}

// TargetsResponse carries a day's targets and progress.
type TargetsResponse struct {
	Day            time.Time      `json:"day"`
	Posts          int            `json:"posts"`
	Replies        int            `json:"replies"`
	Likes          int            `json:"likes"`
	Follows        int            `json:"follows"`
	Multiplier     float64        `json:"multiplier"`
	FatigueFactor  float64        `json:"fatigue_factor"`
	FatigueSignals int            `json:"fatigue_signals"`
	Rationale      string         `json:"rationale"`
	Completed      map[string]int `json:"completed"`
	Remaining      map[string]int `json:"remaining"`
	Percentage     float64        `json:"completion_percentage"`
}

// RankResponse is the ordered list.
type RankResponse struct {
	Actions []Action `json:"actions"`
}

// HistoryResponse lists update records, oldest first.
type HistoryResponse struct {
	Records []state.UpdateRecord `json:"records"`
}

// ExplainResponse is the plain-language persona.
type ExplainResponse struct {
	Summary   string `json:"summary"`
	ChangeLog string `json:"change_log"`
}

// #endregion responses

// #region conversions

func (e Event) toDomain() update.FeedbackEvent {
	return update.FeedbackEvent{
		ID:            e.ID,
		Kind:          state.FeedbackKind(e.Kind),
		TargetField:   e.TargetField,
		Direction:     e.Direction,
		Confidence:    e.Confidence,
		SourceContext: e.SourceContext,
		Label:         e.Label,
		ObservedAt:    e.ObservedAt,
	}
}

func (o Observation) toDomain() signals.Observation {
	return signals.Observation{
		UserID:       o.UserID,
		Kind:         signals.ObservationKind(o.Kind),
		Topics:       o.Topics,
		Original:     o.Original,
		Edited:       o.Edited,
		PostID:       o.PostID,
		Likes:        o.Likes,
		Replies:      o.Replies,
		Retweets:     o.Retweets,
		RepliesToday: o.RepliesToday,
		Latency:      time.Duration(o.LatencyMS) * time.Millisecond,
		Hesitated:    o.Hesitated,
		Context:      o.Context,
		ObservedAt:   o.ObservedAt,
	}
}

func (r OnboardRequest) toDomain() onboarding.History {
	return onboarding.History{
		Posts:       r.Posts,
		PostDays:    r.PostDays,
		Replies:     r.Replies,
		ReplyDays:   r.ReplyDays,
		Likes:       r.Likes,
		TopicWeight: r.TopicWeight,
	}
}

func (a Action) toDomain() priority.Action {
	return priority.Action{
		ID:          a.ID,
		Kind:        a.Kind,
		Class:       priority.UrgencyClass(a.Class),
		ScheduledAt: a.ScheduledAt,
		Age:         time.Duration(a.AgeSeconds * float64(time.Second)),
		Topics:      a.Topics,
		Angle:       a.Angle,
		Affinity:    a.Affinity,
		Rationale:   a.Rationale,
	}
}

func actionFromDomain(a priority.Action) Action {
	return Action{
		ID:          a.ID,
		Kind:        a.Kind,
		Class:       string(a.Class),
		ScheduledAt: a.ScheduledAt,
		AgeSeconds:  a.Age.Seconds(),
		Topics:      a.Topics,
		Angle:       a.Angle,
		Affinity:    a.Affinity,
		Rationale:   a.Rationale,
	}
}

func resultsFromDomain(rs []update.UpdateResult) []Result {
	out := make([]Result, len(rs))
	for i, r := range rs {
		out[i] = Result{EventID: r.Event.ID, Target: r.Event.TargetField, Action: r.Decision.Action, Reason: r.Decision.Reason}
		if r.Record != nil {
			out[i].RecordID = r.Record.ID
		}
	}
	return out
}

func countsToWire(c activity.Counts) map[string]int {
	out := make(map[string]int, len(c))
	for k, v := range c {
		out[string(k)] = v
	}
	return out
}

// #endregion conversions
