package organizer

import (
	"errors"
	"fmt"

	"github.com/hashicorp/go-hclog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/mantonx/shoebox/internal/database"
	"github.com/mantonx/shoebox/internal/events"
	"github.com/mantonx/shoebox/internal/logger"
)

// TransitionOption describes one requestable transition and whether its
// guard currently passes. It drives user-facing affordances without
// performing any side effect.
type TransitionOption struct {
	To      database.StorageState `json:"to"`
	Allowed bool                  `json:"allowed"`
	Reason  string                `json:"reason,omitempty"`
}

// associations are the records a target state's path depends on,
// resolved and validated before any side effect.
type associations struct {
	event  *database.Event
	parent *database.Subevent
	sub    *database.Subevent
}

// StateMachine owns the storage-state transitions of media items. Every
// accepted transition resolves the target directory, relocates the
// physical file through the engine, and persists the new state in the
// same transaction: either both filesystem and record reflect the new
// location, or neither does.
type StateMachine struct {
	db     *gorm.DB
	engine *Engine
	bus    events.EventBus
	log    hclog.Logger
}

// NewStateMachine creates a state machine over the given database and
// organization engine.
func NewStateMachine(db *gorm.DB, engine *Engine, bus events.EventBus) *StateMachine {
	return &StateMachine{
		db:     db,
		engine: engine,
		bus:    bus,
		log:    logger.Named("statemachine"),
	}
}

// guardReason evaluates the affordance guard for a target state. An
// empty string means the guard passes. Guards only check that some
// destination exists; whether the specific assigned target is valid is
// a separate, fatal prerequisite check.
func (sm *StateMachine) guardReason(target database.StorageState, item *database.MediaItem) (string, error) {
	switch target {
	case database.StateUnsorted:
		return "", nil
	case database.StateDaily:
		if item.EffectiveTakenAt() == nil {
			return "no datetime available", nil
		}
		return "", nil
	case database.StateEventRoot:
		var count int64
		if err := sm.db.Model(&database.Event{}).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return "no events available", nil
		}
		return "", nil
	case database.StateSubeventL1:
		var count int64
		if err := sm.db.Model(&database.Subevent{}).Where("parent_id IS NULL").Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return "no sub-events available", nil
		}
		return "", nil
	case database.StateSubeventL2:
		var count int64
		if err := sm.db.Model(&database.Subevent{}).Where("parent_id IS NOT NULL").Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return "no nested sub-events available", nil
		}
		return "", nil
	default:
		return "", fmt.Errorf("unknown storage state: %s", target)
	}
}

// AvailableTransitions reports, for every defined target state, whether
// its guard currently passes and the denial reason when it does not.
func (sm *StateMachine) AvailableTransitions(item *database.MediaItem) ([]TransitionOption, error) {
	options := make([]TransitionOption, 0, len(database.AllStates))
	for _, target := range database.AllStates {
		reason, err := sm.guardReason(target, item)
		if err != nil {
			return nil, err
		}
		options = append(options, TransitionOption{
			To:      target,
			Allowed: reason == "",
			Reason:  reason,
		})
	}
	return options, nil
}

// resolveTarget validates the identity prerequisites of a target state
// and loads the records its path depends on. A violation is fatal for
// the transition and happens before any side effect.
func (sm *StateMachine) resolveTarget(target database.StorageState, item *database.MediaItem) (*associations, error) {
	switch target {
	case database.StateUnsorted, database.StateDaily:
		return &associations{}, nil

	case database.StateEventRoot:
		if item.EventID == nil {
			return nil, &PrerequisiteError{To: target, Reason: "no target event assigned"}
		}
		event, err := sm.loadEvent(*item.EventID)
		if err != nil {
			return nil, err
		}
		if event == nil {
			return nil, &PrerequisiteError{To: target, Reason: "assigned event does not exist"}
		}
		return &associations{event: event}, nil

	case database.StateSubeventL1:
		sub, err := sm.requireSubevent(target, item)
		if err != nil {
			return nil, err
		}
		if sub.ParentID != nil {
			return nil, &PrerequisiteError{To: target, Reason: "assigned sub-event is not at depth 1"}
		}
		event, err := sm.loadEvent(sub.EventID)
		if err != nil {
			return nil, err
		}
		if event == nil {
			return nil, &PrerequisiteError{To: target, Reason: "sub-event's owning event does not exist"}
		}
		return &associations{event: event, sub: sub}, nil

	case database.StateSubeventL2:
		sub, err := sm.requireSubevent(target, item)
		if err != nil {
			return nil, err
		}
		if sub.ParentID == nil {
			return nil, &PrerequisiteError{To: target, Reason: "assigned sub-event is not at depth 2"}
		}
		var parent database.Subevent
		if err := sm.db.First(&parent, "id = ?", *sub.ParentID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, &PrerequisiteError{To: target, Reason: "parent sub-event does not exist"}
			}
			return nil, err
		}
		if parent.ParentID != nil {
			return nil, &PrerequisiteError{To: target, Reason: "sub-event exceeds the maximum depth"}
		}
		event, err := sm.loadEvent(sub.EventID)
		if err != nil {
			return nil, err
		}
		if event == nil {
			return nil, &PrerequisiteError{To: target, Reason: "sub-event's owning event does not exist"}
		}
		return &associations{event: event, parent: &parent, sub: sub}, nil

	default:
		return nil, fmt.Errorf("unknown storage state: %s", target)
	}
}

func (sm *StateMachine) requireSubevent(target database.StorageState, item *database.MediaItem) (*database.Subevent, error) {
	if item.SubeventID == nil {
		return nil, &PrerequisiteError{To: target, Reason: "no target sub-event assigned"}
	}
	var sub database.Subevent
	if err := sm.db.First(&sub, "id = ?", *item.SubeventID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &PrerequisiteError{To: target, Reason: "assigned sub-event does not exist"}
		}
		return nil, err
	}
	return &sub, nil
}

func (sm *StateMachine) loadEvent(id string) (*database.Event, error) {
	var event database.Event
	if err := sm.db.First(&event, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

// Transition moves an item into the target state. Protocol: validate
// target identity prerequisites (fatal), evaluate the guard (non-fatal,
// returns GuardDenied with the reason), clear stale associations, then
// relocate the file and persist state and associations in one
// transaction.
func (sm *StateMachine) Transition(item *database.MediaItem, target database.StorageState) error {
	assoc, err := sm.resolveTarget(target, item)
	if err != nil {
		return err
	}

	reason, err := sm.guardReason(target, item)
	if err != nil {
		return err
	}
	if reason != "" {
		sm.publishDenied(item, target, reason)
		return &GuardDenied{To: target, Reason: reason}
	}

	destDir, ok := sm.engine.Roots().ResolveDirectory(target, item, assoc.event, assoc.parent, assoc.sub)
	if !ok {
		sm.publishDenied(item, target, "no datetime available")
		return &GuardDenied{To: target, Reason: "no datetime available"}
	}

	snapshot := *item
	sm.applyAssociations(item, target, assoc)

	err = sm.db.Transaction(func(tx *gorm.DB) error {
		if err := sm.engine.Relocate(tx, item, destDir); err != nil {
			return err
		}
		item.State = target
		return tx.Omit(clause.Associations).Save(item).Error
	})
	if err != nil {
		// The transaction rolled back. If the physical move had
		// already happened, return the file to where the record
		// still says it is.
		if item.Directory != snapshot.Directory || item.Filename != snapshot.Filename {
			sm.engine.MoveBack(item, snapshot.Directory, snapshot.Filename)
		}
		item.State = snapshot.State
		item.EventID = snapshot.EventID
		item.SubeventID = snapshot.SubeventID
		item.Directory = snapshot.Directory
		item.Filename = snapshot.Filename
		item.ThumbnailPath = snapshot.ThumbnailPath
		item.PreviewPath = snapshot.PreviewPath
		return err
	}

	sm.log.Info("media item transitioned", "item_id", item.ID, "from", snapshot.State, "to", target, "dir", destDir)
	return nil
}

// applyAssociations clears associations not relevant to the new state
// and pins the owning event for sub-event states.
func (sm *StateMachine) applyAssociations(item *database.MediaItem, target database.StorageState, assoc *associations) {
	switch target {
	case database.StateUnsorted, database.StateDaily:
		item.EventID = nil
		item.SubeventID = nil
	case database.StateEventRoot:
		item.SubeventID = nil
	case database.StateSubeventL1, database.StateSubeventL2:
		eventID := assoc.sub.EventID
		item.EventID = &eventID
	}
}

// ComputeDirectory resolves the canonical directory for the item's
// current state. This is the outbound "computed directory" contract; it
// performs no filesystem access.
func (sm *StateMachine) ComputeDirectory(item *database.MediaItem) (string, error) {
	assoc, err := sm.resolveTarget(item.State, item)
	if err != nil {
		return "", err
	}
	dir, ok := sm.engine.Roots().ResolveDirectory(item.State, item, assoc.event, assoc.parent, assoc.sub)
	if !ok {
		return "", fmt.Errorf("no directory resolvable for state %s", item.State)
	}
	return dir, nil
}

func (sm *StateMachine) publishDenied(item *database.MediaItem, target database.StorageState, reason string) {
	sm.log.Debug("transition guard denied", "item_id", item.ID, "target", target, "reason", reason)
	if sm.bus == nil {
		return
	}
	event := events.NewEvent(events.EventGuardDenied, "statemachine", reason)
	event.Data = map[string]interface{}{
		"item_id": item.ID,
		"target":  string(target),
		"reason":  reason,
	}
	sm.bus.Publish(event)
}
