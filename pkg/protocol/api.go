// Copyright 2025 Alexander Alten (novatechflow), NovaTechflow (novatechflow.com).
// This project is supported and financed by Scalytics, Inc. (www.scalytics.io).
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package protocol

import (
	"fmt"

	"github.com/twmb/franz-go/pkg/kmsg"
)

// API keys the proxy names in code. Traffic for other keys is still
// proxied; the schema gateway decides what can be decoded.
const (
	APIKeyProduce          int16 = 0
	APIKeyFetch            int16 = 1
	APIKeyListOffsets      int16 = 2
	APIKeyMetadata         int16 = 3
	APIKeyOffsetCommit     int16 = 8
	APIKeyOffsetFetch      int16 = 9
	APIKeyFindCoordinator  int16 = 10
	APIKeyJoinGroup        int16 = 11
	APIKeyHeartbeat        int16 = 12
	APIKeyLeaveGroup       int16 = 13
	APIKeySyncGroup        int16 = 14
	APIKeyApiVersions      int16 = 18
	APIKeyCreateTopics     int16 = 19
	APIKeyDeleteTopics     int16 = 20
	APIKeyCreatePartitions int16 = 37
	APIKeyDeleteGroups     int16 = 42
)

// APIKeyName returns a readable name for logs and config errors.
func APIKeyName(key int16) string {
	if key >= 0 && key <= kmsg.MaxKey {
		if name := kmsg.NameForKey(key); name != "Unknown" {
			return name
		}
	}
	return fmt.Sprintf("ApiKey(%d)", key)
}

// ParseAPIKeyName resolves a name as spelled in configuration (for example
// "Produce" or "CreateTopics") back to its api key.
func ParseAPIKeyName(name string) (int16, bool) {
	for key := int16(0); key <= kmsg.MaxKey; key++ {
		if kmsg.NameForKey(key) == name {
			return key, true
		}
	}
	return 0, false
}
