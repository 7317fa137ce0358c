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

package installer

import "github.com/cyberhaven/fltsetup/pkg/models"

// S2E guest driver registration contract.
const (
	S2EServiceName      = "s2e"
	S2EInstanceName     = "s2e Instance"
	S2EAltitude         = "265000"
	S2ELoadOrderGroup   = "FSFilter Content Screener"
	s2eFilterManagerSvc = "FltMgr"
)

// S2EPlan is the stock install plan for the s2e guest driver: a
// file-system minifilter in the content-screener group, demand-started
// with normal error control so a start failure never blocks boot, one
// instance at altitude 265000 attaching to all volumes.
func S2EPlan(binaryPath string) *Plan {
	return &Plan{
		Descriptor: models.ServiceDescriptor{
			Name:           S2EServiceName,
			DisplayName:    "S2E Guest Driver",
			Description:    "Collects guest events and relays them to the S2E engine",
			BinaryPath:     binaryPath,
			ServiceType:    models.ServiceTypeFileSystemDriver,
			StartType:      models.StartTypeManual,
			ErrorControl:   models.ErrorControlNormal,
			LoadOrderGroup: S2ELoadOrderGroup,
			Dependencies:   []string{s2eFilterManagerSvc},
		},
		Instances: []models.InstanceSpec{
			{Name: S2EInstanceName, Altitude: S2EAltitude, Flags: 0},
		},
		DefaultInstance: S2EInstanceName,
	}
}
