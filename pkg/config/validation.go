// Copyright 2026 The Parca Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/thanos-io/objstore/client"

	"github.com/parca-dev/stackgraph/pkg/profile"
	"github.com/parca-dev/stackgraph/pkg/transform"
)

// SourceValid is the SourceValidRule.
var SourceValid = SourceValidRule{}

// SourceValidRule is a validation rule for the Source. It implements the validation.Rule interface.
type SourceValidRule struct{}

func (v SourceValidRule) Validate(value interface{}) error {
	s, ok := value.(Source)
	if !ok {
		return errors.New("source is invalid")
	}
	return validation.ValidateStruct(&s,
		validation.Field(&s.Path, validation.Required),
		validation.Field(&s.Bucket, validation.When(s.Bucket != nil, BucketValid)),
	)
}

var BucketValid = BucketRule{}

type BucketRule struct{}

// Validate the bucket config. Only filesystem buckets are supported.
func (r BucketRule) Validate(value interface{}) error {
	b, ok := value.(*client.BucketConfig)
	if !ok {
		return errors.New("BucketConfig is invalid")
	}

	return validation.ValidateStruct(b,
		validation.Field(&b.Type, validation.Required, validation.In(client.FILESYSTEM)),
		validation.Field(&b.Config, validation.Required),
	)
}

var EngineValid = EngineRule{}

type EngineRule struct{}

func (r EngineRule) Validate(value interface{}) error {
	e, ok := value.(Engine)
	if !ok {
		return errors.New("engine is invalid")
	}
	return validation.ValidateStruct(&e,
		validation.Field(&e.Implementation, validation.In(
			string(profile.ImplementationCombined),
			string(profile.ImplementationJS),
			string(profile.ImplementationCpp),
		)),
		validation.Field(&e.DefaultTransforms, validation.By(func(value interface{}) error {
			_, err := transform.ParsePerThread(value.(string))
			return err
		})),
		validation.Field(&e.Interval, validation.Min(0)),
	)
}
