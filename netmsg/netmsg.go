// Package netmsg defines the wire types that cross the network model: the
// packets the NoC routes between cores, the per-hop timing record the
// analytical model fills in, and the MCP request/response envelopes every
// server (sync, syscall, magic, clock-skew) speaks.
package netmsg

import "github.com/sarchlab/carbonsim/ids"

// PacketType tags what a Packet carries: user traffic, MCP traffic, or
// shared-memory coherence messages.
type PacketType uint32

const (
	TypeUserTraffic PacketType = iota
	TypeMCPRequest
	TypeMCPResponse
	TypeSharedMemReq
	TypeSharedMemResp
)

// Packet is a single message routed across the NoC: the payload plus its
// logical source/destination core and byte length. TimeFS is the
// simulated arrival time at the sender (i.e. when it was handed to the
// network); data ownership passes to the receiver's callback on delivery.
type Packet struct {
	Sender   ids.CoreID
	Receiver ids.CoreID
	Type     PacketType
	Length   uint64
	TimeFS   int64
	Data     []byte
}

// Hop records one link traversal the analytical NoC model computed while
// routing a Packet toward its destination.
type Hop struct {
	FinalDest ids.CoreID
	NextDest  ids.CoreID
	ArrivalFS int64
}

// MCPRequestKind tags which MCP server a request targets, the leading
// word the MCP dispatches on.
type MCPRequestKind uint32

const (
	MCPSyscall MCPRequestKind = iota
	MCPSync
	MCPMagic
	MCPClockSkew
	MCPUtilization
)

// MCPRequest is the tagged envelope every MCP call travels in: a kind
// discriminant, the requesting core, and an opaque payload the matching
// server interprets (fixed header, typed body).
type MCPRequest struct {
	Kind      MCPRequestKind
	Requester ids.CoreID
	Payload   []byte
}

// MCPResponse is the reply to an MCPRequest. Ok is false when the server
// rejected or could not service the request (e.g. an unrecognized syscall
// number).
type MCPResponse struct {
	Ok      bool
	Payload []byte
}
