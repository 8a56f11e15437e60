// Copyright (c) 2019 Andy Pan
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

// Package goroutine wraps ants.Pool for use as the backing substrate of the
// elastic work-executor pool: each active work-executor occupies one ants
// worker for the lifetime of its run loop.
package goroutine

import (
	"time"

	"github.com/panjf2000/ants/v2"
)

const (
	// ExpiryDuration is the interval at which idle ants workers are reaped. An
	// executor's run loop holds its worker until the executor stops, so this expiry
	// does not shrink the work pool.
	ExpiryDuration = 10 * time.Second

	// Nonblocking means Submit returns ants.ErrPoolOverload instead of waiting when the
	// pool is at capacity, matching the elastic pool's own high-watermark refusal.
	Nonblocking = true
)

func init() {
	ants.Release()
}

// Pool is the alias of ants.Pool.
type Pool = ants.Pool

// New builds a non-blocking ants pool with the given capacity, used as the
// substrate for a fixed- or high-watermark-bounded set of executor run loops.
func New(capacity int) (*Pool, error) {
	options := ants.Options{ExpiryDuration: ExpiryDuration, Nonblocking: Nonblocking}
	return ants.NewPool(capacity, ants.WithOptions(options))
}
