package mcp

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/sarchlab/carbonsim/ids"
	"github.com/sarchlab/carbonsim/netmsg"
	"github.com/sarchlab/carbonsim/simtime"
)

// UnknownMessageTypeError reports a request whose Kind the MCP does not
// recognize. An unknown message type on the MCP is fatal.
type UnknownMessageTypeError struct{ Kind netmsg.MCPRequestKind }

func (e UnknownMessageTypeError) Error() string {
	return fmt.Sprintf("mcp: unknown request kind %d", e.Kind)
}

// Server is the single logical MCP endpoint co-located on the
// highest-numbered core (ids.Topology.MCPCore), owning the syscall,
// sync, magic, clock-skew, and utilization sub-servers.
type Server struct {
	Sync        *SyncServer
	Syscall     *SyscallServer
	Magic       *MagicServer
	ClockSkew   *ClockSkewServer
	Utilization *UtilizationAggregator
	Core        ids.CoreID

	// pendingGrants accumulates every GrantFunc firing that happens during
	// Dispatch, including ones that release a waiter enqueued by some
	// earlier, unrelated request (e.g. a MutexUnlock waking a core that
	// called MutexLock several requests ago). Each dispatchSync call drains
	// this into its response payload, so the waking call's response is
	// what eventually tells the woken core its request was granted — the
	// MCP has no channel to push a message the woken core didn't ask for.
	pendingGrants []syncGrant
}

type syncGrant struct {
	requester ids.CoreID
	release   simtime.SimTime
}

func (s *Server) grantFor(requester ids.CoreID) GrantFunc {
	return func(release simtime.SimTime) {
		s.pendingGrants = append(s.pendingGrants, syncGrant{requester: requester, release: release})
	}
}

func (s *Server) drainGrants() []syncGrant {
	g := s.pendingGrants
	s.pendingGrants = nil
	return g
}

// NewServer constructs an MCP server sitting on core, with the given
// clock-skew scheme.
func NewServer(core ids.CoreID, skew ClockSkewScheme) *Server {
	return &Server{
		Sync:        NewSyncServer(),
		Syscall:     NewSyscallServer(),
		Magic:       NewMagicServer(),
		ClockSkew:   NewClockSkewServer(skew),
		Utilization: NewUtilizationAggregator(),
		Core:        core,
	}
}

// Dispatch routes a wire-level MCPRequest to the matching sub-server,
// marshaling its typed request/response onto MCPRequest/MCPResponse's
// generic byte payload. Every MCP RPC travels this one path — syscalls,
// sync primitives, the magic interface, clock-skew reports, and
// utilization gossip alike — as two modeled network messages: the caller
// is expected to have already paid the outbound NoC transit before
// calling Dispatch, and to pay the return transit on the response this
// produces.
func (s *Server) Dispatch(req netmsg.MCPRequest) (netmsg.MCPResponse, error) {
	switch req.Kind {
	case netmsg.MCPSyscall:
		return s.dispatchSyscall(req)
	case netmsg.MCPSync:
		return s.dispatchSync(req)
	case netmsg.MCPMagic:
		return s.dispatchMagic(req)
	case netmsg.MCPClockSkew:
		return s.dispatchClockSkew(req)
	case netmsg.MCPUtilization:
		return s.dispatchUtilization(req)
	default:
		return netmsg.MCPResponse{}, UnknownMessageTypeError{Kind: req.Kind}
	}
}

// syscall request payload: {syscall_num: u64 LE}{args...}.
func (s *Server) dispatchSyscall(req netmsg.MCPRequest) (netmsg.MCPResponse, error) {
	if len(req.Payload) < 8 {
		return netmsg.MCPResponse{}, fmt.Errorf("mcp: syscall request payload too short")
	}

	sreq := SyscallRequest{
		Requester:  req.Requester,
		SyscallNum: int64(binary.LittleEndian.Uint64(req.Payload[:8])),
		Args:       req.Payload[8:],
	}
	resp := s.Syscall.Dispatch(sreq)

	out := make([]byte, 8+len(resp.Result))
	binary.LittleEndian.PutUint64(out[:8], uint64(resp.SyscallNum))
	copy(out[8:], resp.Result)

	return netmsg.MCPResponse{Ok: resp.Intercepted, Payload: out}, nil
}

// utilization request payload: {value: float64 LE}. The response carries
// the freshly aggregated GlobalUtilization broadcast value in the same
// encoding.
func (s *Server) dispatchUtilization(req netmsg.MCPRequest) (netmsg.MCPResponse, error) {
	if len(req.Payload) < 8 {
		return netmsg.MCPResponse{}, fmt.Errorf("mcp: utilization request payload too short")
	}

	value := math.Float64frombits(binary.LittleEndian.Uint64(req.Payload[:8]))
	broadcast := s.Utilization.Apply(UtilizationUpdate{Node: req.Requester, Value: value})

	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, math.Float64bits(broadcast.Value))

	return netmsg.MCPResponse{Ok: true, Payload: out}, nil
}
