package sharding

import (
	"fmt"
	"hash/crc32"
)

// ShardCount is the fixed number of partitions for the system.
const ShardCount = 1024

const (
	TriggerPrefix = "app.trigger"
	EventPrefix   = "app.event"
)

// GetShardID calculates the deterministic shard ID for a given entity ID.
func GetShardID(entityID string) int {
	checksum := crc32.ChecksumIEEE([]byte(entityID))
	return int(checksum % ShardCount)
}

// Subject returns a sharded NATS subject.
// Format: {prefix}.{shard_id}.{entity_type}.{entity_id}
func Subject(prefix, entityType, entityID string) string {
	shardID := GetShardID(entityID)
	return fmt.Sprintf("%s.%d.%s.%s", prefix, shardID, entityType, entityID)
}

// TriggerSubject is where external systems publish claim and connection events for a user.
func TriggerSubject(entityType, userID string) string {
	return Subject(TriggerPrefix, entityType, userID)
}

// EventSubject is where pulse lifecycle events for a user are published.
func EventSubject(userID string) string {
	return Subject(EventPrefix, "user", userID)
}
