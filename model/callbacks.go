/*
 *	Copyright 2025 The scinet Authors
 *
 *	Licensed under the Apache License, Version 2.0 (the "License");
 *	you may not use this file except in compliance with the License.
 *	You may obtain a copy of the License at
 *
 *	http://www.apache.org/licenses/LICENSE-2.0
 *
 *	Unless required by applicable law or agreed to in writing, software
 *	distributed under the License is distributed on an "AS IS" BASIS,
 *	WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 *	See the License for the specific language governing permissions and
 *	limitations under the License.
 */

package model

import (
	"iter"
	"sort"
)

// Priority for hooks, the lowest values are run first. Defaults to 0, but
// negative values are ok.
type Priority int

// HookFn is the type of lifecycle hooks. The state is shared: hooks must
// treat it as read-only.
type HookFn func(state *TrainState)

// Event names the lifecycle points at which hooks fire during a training
// run.
type Event int

const (
	TrainBegin Event = iota
	EpochBegin
	BatchBegin
	BatchEnd
	EpochEnd
	TrainEnd
	numEvents
)

// hookWithName stores a hook name and function.
type hookWithName struct {
	name string
	fn   HookFn
}

// priorityHooks organizes hooks per priority.
type priorityHooks struct {
	hooks map[Priority][]*hookWithName
}

func newPriorityHooks() *priorityHooks {
	return &priorityHooks{hooks: make(map[Priority][]*hookWithName)}
}

// Add hook at the given priority. Same-priority hooks keep registration
// order.
func (h *priorityHooks) Add(priority Priority, hook *hookWithName) {
	h.hooks[priority] = append(h.hooks[priority], hook)
}

// All returns an iterator over all registered hooks in priority order.
func (h *priorityHooks) All() iter.Seq[*hookWithName] {
	return func(yield func(*hookWithName) bool) {
		keys := make([]Priority, 0, len(h.hooks))
		for key := range h.hooks {
			keys = append(keys, key)
		}
		sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
		for _, key := range keys {
			for _, hook := range h.hooks[key] {
				if !yield(hook) {
					return
				}
			}
		}
	}
}

// hookSet holds the hooks of all lifecycle events of a Model.
type hookSet [numEvents]*priorityHooks

func newHookSet() *hookSet {
	var hs hookSet
	for i := range hs {
		hs[i] = newPriorityHooks()
	}
	return &hs
}

func (hs *hookSet) fire(event Event, state *TrainState) {
	for hook := range hs[event].All() {
		hook.fn(state)
	}
}

// OnEvent adds a hook with the given priority and name (for error reporting)
// to the given lifecycle event.
func (m *Model) OnEvent(event Event, name string, priority Priority, fn HookFn) {
	m.hooks[event].Add(priority, &hookWithName{name: name, fn: fn})
}
