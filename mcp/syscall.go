package mcp

import "github.com/sarchlab/carbonsim/ids"

// SyscallRequest is the tagged request a core's syscall-emulation trap
// sends to the MCP: a syscall number plus marshaled argument bytes.
type SyscallRequest struct {
	Requester  ids.CoreID
	SyscallNum int64
	Args       []byte
}

// SyscallResponse mirrors the request's shape: the handler's typed result
// bytes, or the "not intercepted" fallback for an unrecognized number.
type SyscallResponse struct {
	SyscallNum  int64
	Result      []byte
	Errno       int32
	Intercepted bool
}

// SyscallHandler services one syscall number. Handlers that must block on
// the real host OS are expected to do so synchronously from the caller's
// perspective — the requesting core is marked stalled by the caller for
// the duration, not by the handler itself.
type SyscallHandler func(req SyscallRequest) SyscallResponse

// SyscallServer dispatches syscall requests to a closed table of
// handlers; an unrecognized number is never an error, only a "not
// intercepted" response so the caller falls back to native execution.
type SyscallServer struct {
	handlers map[int64]SyscallHandler
}

// NewSyscallServer constructs a syscall server with no handlers
// registered; callers add the closed set of intercepted syscalls with
// Register.
func NewSyscallServer() *SyscallServer {
	return &SyscallServer{handlers: map[int64]SyscallHandler{}}
}

// Register installs the handler for a syscall number. Registering the
// same number twice is a programmer error caught at setup time.
func (s *SyscallServer) Register(num int64, h SyscallHandler) {
	if _, exists := s.handlers[num]; exists {
		panic("mcp: syscall handler already registered for this number")
	}
	s.handlers[num] = h
}

// Dispatch routes req to its handler, or returns the "not intercepted"
// response if no handler is registered for req.SyscallNum.
func (s *SyscallServer) Dispatch(req SyscallRequest) SyscallResponse {
	h, ok := s.handlers[req.SyscallNum]
	if !ok {
		return SyscallResponse{SyscallNum: req.SyscallNum, Intercepted: false}
	}
	resp := h(req)
	resp.Intercepted = true
	resp.SyscallNum = req.SyscallNum
	return resp
}
