// Package key implements the Name/Group identity shared by jobs, triggers
// and calendars, and the store-key scoping used to namespace records by
// scheduler name.
package key

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultGroup is used when a caller does not specify a group.
const DefaultGroup = "DEFAULT"

// Separator is reserved by the back-end bindings to join scoped store keys;
// names and groups may not contain it.
const Separator = "/"

// ErrInvalidName is returned when a name or group contains Separator.
var ErrInvalidName = errors.New("name/group must not contain '/'")

// Key identifies a job, trigger or calendar within a scheduler instance.
type Key struct {
	Name string
	Group string
}

// New builds a Key, defaulting an empty group to DefaultGroup.
func New(name, group string) (Key, error) {
	if group == "" {
		group = DefaultGroup
	}
	if strings.Contains(name, Separator) || strings.Contains(group, Separator) {
		return Key{}, fmt.Errorf("%w: name=%q group=%q", ErrInvalidName, name, group)
	}
	return Key{Name: name, Group: group}, nil
}

// MustNew panics on an invalid name/group; for use with compile-time-known keys.
func MustNew(name, group string) Key {
	k, err := New(name, group)
	if err != nil {
		panic(err)
	}
	return k
}

func (k Key) String() string {
	return k.Group + Separator + k.Name
}

// JobKey and TriggerKey are aliases of Key, not distinct types: they name the
// role a key plays, but the compiler does not tell them apart.
type JobKey = Key
type TriggerKey = Key

// StoreKey scopes a Key by scheduler name, the namespacing unit every
// back-end binding persists under.
func StoreKey(schedulerName string, k Key) string {
	return schedulerName + Separator + k.Group + Separator + k.Name
}

// Operator is a group-matcher comparison, modeled on Quartz's GroupMatcher.
type Operator int

const (
	OpEquals Operator = iota
	OpStartsWith
	OpEndsWith
	OpContains
	OpAnything
)

// GroupMatcher selects a set of groups by comparison against CompareToValue.
type GroupMatcher struct {
	Operator Operator
	CompareToValue string
}

// GroupEquals builds an exact-match matcher, the common case for pausing a
// single named group.
func GroupEquals(group string) GroupMatcher {
	return GroupMatcher{Operator: OpEquals, CompareToValue: group}
}

// AnyGroup builds the "match everything" matcher: the Anything operator
// returns the unfiltered set rather than erroring, and every back-end
// evaluates it that way (see IsMatch and each Delegate's SelectJobKeys and
// SelectTriggerKeys).
func AnyGroup() GroupMatcher {
	return GroupMatcher{Operator: OpAnything}
}

// IsMatch reports whether group satisfies the matcher.
func (m GroupMatcher) IsMatch(group string) bool {
	switch m.Operator {
	case OpAnything:
		return true
	case OpEquals:
		return group == m.CompareToValue
	case OpStartsWith:
		return strings.HasPrefix(group, m.CompareToValue)
	case OpEndsWith:
		return strings.HasSuffix(group, m.CompareToValue)
	case OpContains:
		return strings.Contains(group, m.CompareToValue)
	default:
		return false
	}
}
