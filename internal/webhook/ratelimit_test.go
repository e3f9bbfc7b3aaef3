package webhook

import (
	"testing"
	"time"
)

func TestPhoneLimiterThrottlesBurstThenRefills(t *testing.T) {
	l := newPhoneLimiter(2, 1)
	base := time.Now()

	if !l.Allow("phone1", base) {
		t.Fatal("first message should be allowed")
	}
	if !l.Allow("phone1", base) {
		t.Fatal("second message should be allowed (capacity 2)")
	}
	if l.Allow("phone1", base) {
		t.Fatal("third message in the same instant should be throttled")
	}
	if !l.Allow("phone1", base.Add(time.Second)) {
		t.Fatal("message after one refill interval should be allowed")
	}
}

func TestPhoneLimiterTracksPhonesIndependently(t *testing.T) {
	l := newPhoneLimiter(1, 1)
	base := time.Now()

	if !l.Allow("phone1", base) {
		t.Fatal("phone1 first message should be allowed")
	}
	if !l.Allow("phone2", base) {
		t.Fatal("phone2 should have its own bucket")
	}
}
