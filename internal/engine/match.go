// Copyright 2015 trivago GmbH
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

package engine

import "strings"

// topicMatches implements MQTT 3.1.1 topic filter matching (spec §8):
// "+" matches exactly one level, "#" matches any number of trailing
// levels and must be the final filter segment.
func topicMatches(filter, topic string) bool {
	if strings.HasPrefix(topic, "$") && !strings.HasPrefix(filter, "$") {
		return false
	}

	filterLevels := strings.Split(filter, "/")
	topicLevels := strings.Split(topic, "/")

	for i, f := range filterLevels {
		if f == "#" {
			return true
		}

		if i >= len(topicLevels) {
			return false
		}

		if f == "+" {
			continue
		}

		if f != topicLevels[i] {
			return false
		}
	}

	return len(filterLevels) == len(topicLevels)
}
