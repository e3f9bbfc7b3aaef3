package webhook

import (
	"testing"
	"time"
)

func TestDedupCacheDropsSecondDeliveryWithinWindow(t *testing.T) {
	d := newDedupCache(5 * time.Minute)
	base := time.Now()

	if d.SeenOrRecord("SID1", base) {
		t.Fatal("first delivery should not be seen")
	}
	if !d.SeenOrRecord("SID1", base.Add(2*time.Second)) {
		t.Fatal("second delivery within window should be flagged as seen")
	}
}

func TestDedupCacheForgetsAfterWindowElapses(t *testing.T) {
	d := newDedupCache(5 * time.Minute)
	base := time.Now()

	d.SeenOrRecord("SID1", base)
	if d.SeenOrRecord("SID1", base.Add(10*time.Minute)) {
		t.Fatal("delivery after window elapsed should not be flagged as seen")
	}
}
