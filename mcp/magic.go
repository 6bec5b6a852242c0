package mcp

// InstrumentationMode names the detail level the magic interface can
// switch the simulator into.
type InstrumentationMode int

const (
	ModeFastForward InstrumentationMode = iota
	ModeCacheOnly
	ModeDetailed
)

// MagicServer implements the magic interface: ROI toggles, instrumentation
// mode transitions, and MHz get/set. Like the sync server, it is reached
// only through the MCP's single-threaded request processing, so no
// internal locking is needed here.
type MagicServer struct {
	roi     bool
	mode    InstrumentationMode
	coreMHz map[int]float64
}

// NewMagicServer constructs a magic server outside the ROI, in
// fast-forward mode.
func NewMagicServer() *MagicServer {
	return &MagicServer{mode: ModeFastForward, coreMHz: map[int]float64{}}
}

// SetROI begins or ends the Region of Interest.
func (m *MagicServer) SetROI(in bool) { m.roi = in }

// InROI reports whether the simulator is currently inside the ROI.
func (m *MagicServer) InROI() bool { return m.roi }

// SetMode transitions the instrumentation mode.
func (m *MagicServer) SetMode(mode InstrumentationMode) { m.mode = mode }

// Mode returns the current instrumentation mode.
func (m *MagicServer) Mode() InstrumentationMode { return m.mode }

// SetMHz sets the configured frequency of a core for the DVFS magic call.
func (m *MagicServer) SetMHz(core int, mhz float64) { m.coreMHz[core] = mhz }

// MHz returns a core's configured frequency, or 0 if never set.
func (m *MagicServer) MHz(core int) float64 { return m.coreMHz[core] }
