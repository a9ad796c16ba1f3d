// Package statemachine holds the pure trigger state transition rules: the
// Blocked check and the group-pause force-state rule. Nothing here touches
// the back-end; callers supply whatever facts the rule needs and apply the
// resulting state themselves.
package statemachine

import "github.com/coreclock/jobstore/internal/model"

// NextStateOnEnterWaiting applies the Blocked check: when a trigger is
// transitioning into Waiting (or Paused), and its job disallows concurrent
// execution and some non-Acquired FiredTrigger row exists for that job,
// the target state is upgraded Waiting->Blocked or Paused->PausedAndBlocked.
// Only those two source states are affected.
func NextStateOnEnterWaiting(requested model.TriggerState, concurrentExecutionDisallowed, hasBlockingFiredTrigger bool) model.TriggerState {
	if !concurrentExecutionDisallowed || !hasBlockingFiredTrigger {
		return requested
	}
	switch requested {
	case model.StateWaiting:
		return model.StateBlocked
	case model.StatePaused:
		return model.StatePausedAndBlocked
	default:
		return requested
	}
}

// ForceStateForGroupPause applies the group-pause force-state rule: storing
// a trigger into a paused group (or when the all-groups sentinel is
// present) forces Waiting|Acquired -> Paused. Blocked/PausedAndBlocked and
// any other requested state pass through unchanged.
func ForceStateForGroupPause(requested model.TriggerState, groupPaused bool) model.TriggerState {
	if !groupPaused {
		return requested
	}
	switch requested {
	case model.StateWaiting, model.StateAcquired:
		return model.StatePaused
	default:
		return requested
	}
}

// ResumeTarget computes the state a Paused or PausedAndBlocked trigger
// enters on resumeTrigger, given the current Blocked check result.
func ResumeTarget(current model.TriggerState, concurrentExecutionDisallowed, hasBlockingFiredTrigger bool) model.TriggerState {
	switch current {
	case model.StatePaused, model.StatePausedAndBlocked:
		return NextStateOnEnterWaiting(model.StateWaiting, concurrentExecutionDisallowed, hasBlockingFiredTrigger)
	default:
		return current
	}
}

// PauseTarget computes the state a trigger enters on pauseTrigger.
func PauseTarget(current model.TriggerState) model.TriggerState {
	switch current {
	case model.StateWaiting, model.StateAcquired:
		return model.StatePaused
	case model.StateBlocked:
		return model.StatePausedAndBlocked
	default:
		return current
	}
}

// BulkPauseTarget maps a pre-pause state to its paused counterpart for
// group/job pause bulk updates. Returns ok=false if the state is not one
// that pausing affects.
func BulkPauseTarget(current model.TriggerState) (model.TriggerState, bool) {
	switch current {
	case model.StateWaiting, model.StateAcquired:
		return model.StatePaused, true
	case model.StateBlocked:
		return model.StatePausedAndBlocked, true
	default:
		return current, false
	}
}

// BulkResumeTarget maps a paused state back to its active counterpart for
// group/job resume bulk updates (the Blocked check is then re-applied by
// the caller per-trigger since it depends on the trigger's job).
func BulkResumeTarget(current model.TriggerState) (model.TriggerState, bool) {
	switch current {
	case model.StatePaused:
		return model.StateWaiting, true
	case model.StatePausedAndBlocked:
		return model.StateBlocked, true
	default:
		return current, false
	}
}

// ToExternal collapses the internal state set to the external view
// getTriggerState exposes.
func ToExternal(s model.TriggerState) model.ExternalTriggerState {
	return s.ToExternal()
}
