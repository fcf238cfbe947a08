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

package filter

import "fmt"

// maxCompositeDepth bounds composite nesting. Deeper nesting than this is
// a configuration mistake, not a real chain.
const maxCompositeDepth = 10

// expand flattens a filter into its non-composite leaves, depth-first and
// order-preserving. A composite that reaches itself, directly or through
// descendants, and nesting beyond maxCompositeDepth fail construction.
func expand(f Filter) ([]Filter, error) {
	var leaves []Filter
	if err := expandInto(f, nil, 0, &leaves); err != nil {
		return nil, err
	}
	return leaves, nil
}

func expandInto(f Filter, ancestors []CompositeFilter, depth int, leaves *[]Filter) error {
	composite, isComposite := f.(CompositeFilter)

	_, hasAPIReq := f.(APIRequestFilter)
	_, hasAPIResp := f.(APIResponseFilter)
	_, hasGenReq := f.(RequestFilter)
	_, hasGenResp := f.(ResponseFilter)
	if isComposite && (hasAPIReq || hasAPIResp || hasGenReq || hasGenResp) {
		return &ConfigError{Filter: f.Name(), Reason: "mixes the composite shape with message handling"}
	}

	if !isComposite {
		*leaves = append(*leaves, f)
		return nil
	}

	if depth >= maxCompositeDepth {
		return &ConfigError{Filter: f.Name(), Reason: fmt.Sprintf("composite nesting exceeds depth %d", maxCompositeDepth)}
	}
	for _, ancestor := range ancestors {
		if ancestor == composite {
			return &ConfigError{Filter: f.Name(), Reason: "composite contains itself"}
		}
	}

	ancestors = append(ancestors, composite)
	for _, child := range composite.Filters() {
		if err := expandInto(child, ancestors, depth+1, leaves); err != nil {
			return err
		}
	}
	return nil
}
