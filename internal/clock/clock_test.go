// Copyright 2025 Google LLC
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

package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var epoch = time.Date(2020, time.January, 1, 12, 0, 0, 0, time.UTC)

func expectFires(t *testing.T, ch <-chan time.Time, want time.Time) {
	t.Helper()
	select {
	case got := <-ch:
		assert.True(t, want.Equal(got), "fired with %v, want %v", got, want)
	case <-time.After(50 * time.Millisecond):
		t.Fatalf("timed out waiting for channel to fire with %v", want)
	}
}

func expectSilent(t *testing.T, ch <-chan time.Time) {
	t.Helper()
	select {
	case got := <-ch:
		t.Fatalf("expected no fire, but got %v", got)
	case <-time.After(10 * time.Millisecond):
	}
}

func TestRealClock_AfterMatchesStdlib(t *testing.T) {
	var c RealClock
	before := c.Now()
	<-c.After(time.Millisecond)
	assert.True(t, c.Now().After(before) || c.Now().Equal(before))
}

func TestWallClockWithDelay_IgnoresRequestedDuration(t *testing.T) {
	c := &WallClockWithDelay{Delay: 5 * time.Millisecond}
	start := time.Now()
	<-c.After(time.Hour)
	assert.Less(t, time.Since(start), time.Hour)
}

func TestSteppedClock_NowReflectsLastSetOrAdvance(t *testing.T) {
	c := NewSteppedClock(epoch)
	require.True(t, c.Now().Equal(epoch))

	c.Set(epoch.Add(time.Hour))
	require.True(t, c.Now().Equal(epoch.Add(time.Hour)))

	c.Advance(30 * time.Minute)
	require.True(t, c.Now().Equal(epoch.Add(90*time.Minute)))

	c.Advance(-90 * time.Minute)
	require.True(t, c.Now().Equal(epoch))
}

func TestSteppedClock_AfterFiresImmediatelyForNonPositiveDuration(t *testing.T) {
	c := NewSteppedClock(epoch)

	ch := c.After(0)
	expectFires(t, ch, epoch)

	ch = c.After(-time.Second)
	expectFires(t, ch, epoch)
}

func TestSteppedClock_AfterFiresOnceTargetIsReached(t *testing.T) {
	cases := []struct {
		name    string
		wait    time.Duration
		advance func(c *SteppedClock)
	}{
		{
			name:    "AdvancePastTarget",
			wait:    10 * time.Second,
			advance: func(c *SteppedClock) { c.Advance(15 * time.Second) },
		},
		{
			name:    "SetPastTarget",
			wait:    10 * time.Second,
			advance: func(c *SteppedClock) { c.Set(epoch.Add(15 * time.Second)) },
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := NewSteppedClock(epoch)
			ch := c.After(tc.wait)
			require.NotNil(t, ch)
			tc.advance(c)
			expectFires(t, ch, epoch.Add(tc.wait))
		})
	}
}

func TestSteppedClock_AfterStaysSilentBeforeTarget(t *testing.T) {
	c := NewSteppedClock(epoch)
	ch := c.After(10 * time.Second)

	c.Advance(5 * time.Second)
	expectSilent(t, ch)

	c.Set(epoch.Add(9 * time.Second))
	expectSilent(t, ch)
}

func TestSteppedClock_MultipleWaitersFireIndependently(t *testing.T) {
	c := NewSteppedClock(epoch)
	soon := c.After(5 * time.Second)
	later := c.After(20 * time.Second)

	c.Advance(10 * time.Second)
	expectFires(t, soon, epoch.Add(5*time.Second))
	expectSilent(t, later)

	c.Advance(15 * time.Second)
	expectFires(t, later, epoch.Add(20*time.Second))
}
