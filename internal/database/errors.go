package database

import "fmt"

// Sentinel errors returned by Store, named after the condition rather
// than the backend, matching the teacher's channeldb/error.go style.
var (
	ErrKeysNotFound     = fmt.Errorf("no wallet keys have been persisted yet")
	ErrPeerNotFound     = fmt.Errorf("no peer record for that node id")
	ErrChannelNotFound  = fmt.Errorf("no channel monitor for that outpoint")
	ErrManagerNotFound  = fmt.Errorf("no channel manager has been persisted yet")
	ErrGraphNotFound    = fmt.Errorf("no network graph has been persisted yet")
	ErrScorerNotFound   = fmt.Errorf("no scorer has been persisted yet")
	ErrStaleUpdateID    = fmt.Errorf("update_id is not newer than the persisted one")
)
