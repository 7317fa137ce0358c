/*
 * Copyright 2025 Cyberhaven, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package models

// ServiceState mirrors the SCM current-state values the managers care
// about. Pending states are what a bounded stop wait polls through.
type ServiceState string

const (
	ServiceStateStopped      ServiceState = "stopped"
	ServiceStateStartPending ServiceState = "start_pending"
	ServiceStateStopPending  ServiceState = "stop_pending"
	ServiceStateRunning      ServiceState = "running"
)

// InstallState is the install/uninstall state machine position. Forward
// transitions advance one step at a time; a failed step leaves the system
// at the last completed state.
type InstallState string

const (
	InstallStateAbsent            InstallState = "absent"
	InstallStateBinaryStaged      InstallState = "binary_staged"
	InstallStateServiceRegistered InstallState = "service_registered"
	InstallStateFilterRegistered  InstallState = "filter_registered"
	InstallStateActive            InstallState = "active"
)

// installOrder indexes the forward install path. Uninstall walks it in
// reverse (with the stop step folded into leaving Active).
var installOrder = map[InstallState]int{
	InstallStateAbsent:            0,
	InstallStateBinaryStaged:      1,
	InstallStateServiceRegistered: 2,
	InstallStateFilterRegistered:  3,
	InstallStateActive:            4,
}

// Rank returns the state's position on the forward path, or -1 for an
// unknown state.
func (s InstallState) Rank() int {
	if r, ok := installOrder[s]; ok {
		return r
	}

	return -1
}

// Next returns the state one forward step ahead, or false from Active.
func (s InstallState) Next() (InstallState, bool) {
	switch s {
	case InstallStateAbsent:
		return InstallStateBinaryStaged, true
	case InstallStateBinaryStaged:
		return InstallStateServiceRegistered, true
	case InstallStateServiceRegistered:
		return InstallStateFilterRegistered, true
	case InstallStateFilterRegistered:
		return InstallStateActive, true
	default:
		return s, false
	}
}

// Prev returns the state one backward step behind, or false from Absent.
func (s InstallState) Prev() (InstallState, bool) {
	switch s {
	case InstallStateActive:
		return InstallStateFilterRegistered, true
	case InstallStateFilterRegistered:
		return InstallStateServiceRegistered, true
	case InstallStateServiceRegistered:
		return InstallStateBinaryStaged, true
	case InstallStateBinaryStaged:
		return InstallStateAbsent, true
	default:
		return s, false
	}
}
