package api

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kuutamolabs/kld/internal/ldk"
)

// splitPeerURI parses the "pubkey@host:port" form spec 4.H's connect
// route body carries, matching the teacher's own connect-peer URI
// convention (lncli connect's PEER_ID argument).
func splitPeerURI(uri string) (ldk.NodeID, string, error) {
	parts := strings.SplitN(uri, "@", 2)
	if len(parts) != 2 {
		return ldk.NodeID{}, "", fmt.Errorf("malformed peer uri %q, expected pubkey@host:port", uri)
	}
	id, err := ldk.ParseNodeID(parts[0])
	if err != nil {
		return ldk.NodeID{}, "", err
	}
	return id, parts[1], nil
}

func parseShortChannelID(s string) (uint64, error) {
	scid, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("malformed short channel id %q: %w", s, err)
	}
	return scid, nil
}
