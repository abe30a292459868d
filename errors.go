// Copyright 2025 Blink Labs Software
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

package txbuilder

import (
	"fmt"
)

// IntentError records a deferred failure for a single builder intent. The
// mutator that recorded the intent never returns an error; the failure is
// surfaced when Build runs
type IntentError struct {
	Index int
	Op    string
	Err   error
}

func (e IntentError) Error() string {
	return fmt.Sprintf("intent %d (%s): %s", e.Index, e.Op, e.Err)
}

func (e IntentError) Unwrap() error {
	return e.Err
}

// MissingConfigurationError indicates that the builder lacks configuration
// required by the accumulated intents
type MissingConfigurationError struct {
	Field string
}

func (e MissingConfigurationError) Error() string {
	return "missing builder configuration: " + e.Field
}

// FeeCalculationError indicates that fee balancing failed to converge
// within the iteration bound
type FeeCalculationError struct {
	Iterations int
	LastFee    uint64
}

func (e FeeCalculationError) Error() string {
	return fmt.Sprintf(
		"fee calculation failed to converge after %d iterations (last fee %d)",
		e.Iterations,
		e.LastFee,
	)
}

// CollateralNotFoundError indicates that no qualifying pure-ADA UTxOs could
// cover the collateral requirement
type CollateralNotFoundError struct {
	Required  uint64
	MaxInputs uint
}

func (e CollateralNotFoundError) Error() string {
	return fmt.Sprintf(
		"could not find pure-ADA collateral covering %d lovelace within %d inputs",
		e.Required,
		e.MaxInputs,
	)
}

// ScriptEvaluationError wraps a failure reported by the script evaluator
type ScriptEvaluationError struct {
	Err error
}

func (e ScriptEvaluationError) Error() string {
	return fmt.Sprintf("script evaluation failed: %s", e.Err)
}

func (e ScriptEvaluationError) Unwrap() error {
	return e.Err
}

// EncodingError wraps a CBOR serialization failure during assembly
type EncodingError struct {
	What string
	Err  error
}

func (e EncodingError) Error() string {
	return fmt.Sprintf("encoding %s: %s", e.What, e.Err)
}

func (e EncodingError) Unwrap() error {
	return e.Err
}
