package sharding

import (
	"fmt"
	"testing"
)

func TestGetShardID(t *testing.T) {
	tests := []struct {
		entityID string
		want     int
	}{
		{"user-1", 532},
		{"user-2", 942},
		{"resource-abc", 924},
	}

	for _, tt := range tests {
		t.Run(tt.entityID, func(t *testing.T) {
			if got := GetShardID(tt.entityID); got != tt.want {
				t.Errorf("GetShardID(%q) = %v, want %v", tt.entityID, got, tt.want)
			}
		})
	}
}

func TestSubjects(t *testing.T) {
	if got, want := TriggerSubject("resource", "user-1"), "app.trigger.532.resource.user-1"; got != want {
		t.Errorf("TriggerSubject = %v, want %v", got, want)
	}
	if got, want := EventSubject("user-1"), "app.event.532.user.user-1"; got != want {
		t.Errorf("EventSubject = %v, want %v", got, want)
	}
}

func TestStableSharding(t *testing.T) {
	id := "test-stable-id"
	if GetShardID(id) != GetShardID(id) {
		t.Errorf("sharding is not deterministic for %q", id)
	}
}

func TestDistribution(t *testing.T) {
	distribution := make(map[int]int)
	for i := 0; i < 1000; i++ {
		distribution[GetShardID(fmt.Sprintf("key-%d", i))]++
	}
	if len(distribution) < 100 {
		t.Errorf("Sharding distribution is too poor. Only %d unique shards used for 1000 keys", len(distribution))
	}
}
