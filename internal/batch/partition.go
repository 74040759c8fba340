// Copyright 2026 fanjia1024
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

package batch

// Partition 同一网络的一组条目
type Partition struct {
	Network string
	Entries []Entry
}

// Split 按网络分组：分组顺序为网络首次出现的顺序，组内保持插入顺序
func Split(entries []Entry) []Partition {
	index := make(map[string]int)
	var parts []Partition
	for _, e := range entries {
		i, ok := index[e.Network]
		if !ok {
			i = len(parts)
			index[e.Network] = i
			parts = append(parts, Partition{Network: e.Network})
		}
		parts[i].Entries = append(parts[i].Entries, e)
	}
	return parts
}
