package history

import (
	"time"

	"github.com/huandu/go-clone"
	"github.com/lithammer/shortuuid/v3"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/figaro/pkg/conversation"
)

var (
	ErrNothingToUndo   = errors.New("nothing to undo")
	ErrNothingToRedo   = errors.New("nothing to redo")
	ErrIndexOutOfRange = errors.New("history index out of range")
)

// ActionTag classifies what a history entry represents, for display.
type ActionTag string

const (
	ActionInitialState     ActionTag = "initial-state"
	ActionNodeEdit         ActionTag = "node-edit"
	ActionNodeDelete       ActionTag = "node-delete"
	ActionToggleEnabled    ActionTag = "toggle-enabled"
	ActionNodeMove         ActionTag = "node-move"
	ActionBranchGraft      ActionTag = "branch-graft"
	ActionBranchCreate     ActionTag = "branch-create"
	ActionActiveNodeSwitch ActionTag = "active-node-switch"
)

// EntryContext is lightweight display information about an entry.
type EntryContext struct {
	AffectedNodes int                 `json:"affectedNodes"`
	TargetID      conversation.NodeID `json:"targetID"`
}

// Entry is one undoable step. Snapshot entries carry full before/after
// clones of the node map (the coarse fallback for composite operations);
// delta entries carry an ordered list of invertible deltas.
type Entry struct {
	ID         string       `json:"id"`
	Tag        ActionTag    `json:"tag"`
	Time       time.Time    `json:"time"`
	IsSnapshot bool         `json:"isSnapshot"`
	Context    EntryContext `json:"context"`

	Before *TreeState `json:"before,omitempty"`
	After  *TreeState `json:"after,omitempty"`

	Deltas []Delta `json:"deltas,omitempty"`
}

// TreeState is a deep-cloned capture of everything undo/redo restores.
type TreeState struct {
	Nodes        map[conversation.NodeID]*conversation.MessageNode `json:"nodes"`
	ActiveLeafID conversation.NodeID                               `json:"activeLeafID"`
}

// CaptureState deep-clones the session's node arena and active leaf.
func CaptureState(s *conversation.Session) *TreeState {
	return &TreeState{
		Nodes:        clone.Clone(s.Nodes).(map[conversation.NodeID]*conversation.MessageNode),
		ActiveLeafID: s.ActiveLeafID,
	}
}

func (ts *TreeState) restore(s *conversation.Session) {
	s.Nodes = clone.Clone(ts.Nodes).(map[conversation.NodeID]*conversation.MessageNode)
	s.ActiveLeafID = ts.ActiveLeafID
	s.RepairActiveLeaf()
	s.Touch()
}

// Manager is the undo/redo engine over (entries, index). Index 0 is always
// an initial-state baseline; has-undo means index > 0, has-redo means
// index < len(entries)-1.
type Manager struct {
	logger  zerolog.Logger
	entries []*Entry
	index   int
}

type ManagerOption func(*Manager)

func WithLogger(logger zerolog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a history manager baselined on the session's current
// state.
func NewManager(s *conversation.Session, options ...ManagerOption) *Manager {
	ret := &Manager{
		logger: log.Logger,
	}
	for _, option := range options {
		option(ret)
	}
	ret.reset(s)
	return ret
}

func (m *Manager) reset(s *conversation.Session) {
	baseline := CaptureState(s)
	m.entries = []*Entry{
		{
			ID:         shortuuid.New(),
			Tag:        ActionInitialState,
			Time:       time.Now(),
			IsSnapshot: true,
			Before:     baseline,
			After:      baseline,
		},
	}
	m.index = 0
}

func (m *Manager) CanUndo() bool { return m.index > 0 }
func (m *Manager) CanRedo() bool { return m.index < len(m.entries)-1 }
func (m *Manager) Index() int    { return m.index }
func (m *Manager) Len() int      { return len(m.entries) }

// Entries returns the recorded entries, oldest first.
func (m *Manager) Entries() []*Entry {
	return m.entries
}

// Record appends an entry, truncating any redo tail beyond the current
// index first. Mutation entry points call this before committing, with
// deltas that already carry old and new values (or with before/after
// snapshots for composite operations).
func (m *Manager) Record(entry *Entry) {
	if entry.ID == "" {
		entry.ID = shortuuid.New()
	}
	if entry.Time.IsZero() {
		entry.Time = time.Now()
	}
	m.entries = append(m.entries[:m.index+1], entry)
	m.index = len(m.entries) - 1

	m.logger.Trace().
		Str("entry_id", entry.ID).
		Str("tag", string(entry.Tag)).
		Bool("snapshot", entry.IsSnapshot).
		Int("delta_count", len(entry.Deltas)).
		Int("index", m.index).
		Msg("recorded history entry")
}

// RecordSnapshot runs mutate between two full state captures and records
// the result as a snapshot entry. Composite operations (subtree deletion,
// grafts) use this rather than enumerating deltas.
func (m *Manager) RecordSnapshot(s *conversation.Session, tag ActionTag, ctx EntryContext, mutate func() error) error {
	before := CaptureState(s)
	if err := mutate(); err != nil {
		return err
	}
	m.Record(&Entry{
		Tag:        tag,
		IsSnapshot: true,
		Context:    ctx,
		Before:     before,
		After:      CaptureState(s),
	})
	return nil
}

// RecordDeltas records a delta entry. Deltas must carry enough data (old
// and new values) to invert deterministically.
func (m *Manager) RecordDeltas(tag ActionTag, ctx EntryContext, deltas ...Delta) {
	m.Record(&Entry{
		Tag:     tag,
		Context: ctx,
		Deltas:  deltas,
	})
}

// Undo applies the inverse of the entry at the current index and decrements
// it. Snapshot entries restore the full before-state; delta entries apply
// each delta's inverse in reverse order. The active leaf is re-validated
// after the apply, since historical states may reference deleted nodes.
func (m *Manager) Undo(s *conversation.Session) error {
	if !m.CanUndo() {
		return ErrNothingToUndo
	}
	entry := m.entries[m.index]
	if err := m.applyInverse(s, entry); err != nil {
		return errors.Wrapf(err, "undo %s", entry.Tag)
	}
	m.index--
	m.logger.Debug().Str("tag", string(entry.Tag)).Int("index", m.index).Msg("undo")
	return nil
}

// Redo re-applies the entry just past the current index and increments it.
// With no forward entries it is a no-op error.
func (m *Manager) Redo(s *conversation.Session) error {
	if !m.CanRedo() {
		return ErrNothingToRedo
	}
	entry := m.entries[m.index+1]
	if err := m.applyForward(s, entry); err != nil {
		return errors.Wrapf(err, "redo %s", entry.Tag)
	}
	m.index++
	m.logger.Debug().Str("tag", string(entry.Tag)).Int("index", m.index).Msg("redo")
	return nil
}

// JumpTo undoes or redoes repeatedly until the index equals target.
func (m *Manager) JumpTo(s *conversation.Session, target int) error {
	if target < 0 || target >= len(m.entries) {
		return errors.Wrapf(ErrIndexOutOfRange, "target %d of %d", target, len(m.entries))
	}
	for m.index > target {
		if err := m.Undo(s); err != nil {
			return err
		}
	}
	for m.index < target {
		if err := m.Redo(s); err != nil {
			return err
		}
	}
	return nil
}

// Clear is the history breakpoint: it drops all entries and re-baselines on
// the session's current state. Called whenever a new generation round
// (send, continue, regenerate) begins. Undo/redo covers manual tree edits
// within a generation epoch, not across model calls.
func (m *Manager) Clear(s *conversation.Session) {
	m.reset(s)
	m.logger.Debug().Msg("history breakpoint")
}

func (m *Manager) applyForward(s *conversation.Session, entry *Entry) error {
	if entry.IsSnapshot {
		if entry.After == nil {
			return errors.New("snapshot entry missing after-state")
		}
		entry.After.restore(s)
		return nil
	}
	for _, delta := range entry.Deltas {
		if err := delta.apply(s); err != nil {
			return err
		}
	}
	s.RepairActiveLeaf()
	s.Touch()
	return nil
}

func (m *Manager) applyInverse(s *conversation.Session, entry *Entry) error {
	if entry.IsSnapshot {
		if entry.Before == nil {
			return errors.New("snapshot entry missing before-state")
		}
		entry.Before.restore(s)
		return nil
	}
	for i := len(entry.Deltas) - 1; i >= 0; i-- {
		if err := entry.Deltas[i].invert(s); err != nil {
			return err
		}
	}
	s.RepairActiveLeaf()
	s.Touch()
	return nil
}
