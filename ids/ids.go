// Package ids defines the dense, non-negative integer identifiers used to
// name cores, threads, and processes, plus the helpers that translate
// between a flat CoreID and its coordinates in a k-ary n-cube.
package ids

import "math"

// CoreID names a logical core.
type CoreID int32

// ThreadID names an application thread.
type ThreadID int32

// ProcID names an OS process hosting a subset of cores.
type ProcID int32

// Invalid is the reserved sentinel for each ID type.
const (
	InvalidCore   CoreID   = -1
	InvalidThread ThreadID = -1
	InvalidProc   ProcID   = -1
)

// Topology describes the application/thread-spawner/MCP core layout and the
// k-ary n-cube geometry used to translate a flat CoreID into coordinates.
//
// Application cores occupy [0, AppCores); thread-spawner cores occupy
// [AppCores, AppCores+NumProcesses); the MCP sits on the single highest
// numbered core.
type Topology struct {
	AppCores     int
	NumProcesses int
	Dimensions   int // n
}

// TotalCores is the number of cores in the topology, including the
// thread-spawners (full mode only) and the MCP core.
func (t Topology) TotalCores(fullMode bool) int {
	n := t.AppCores + 1
	if fullMode {
		n += t.NumProcesses
	}
	return n
}

// MCPCore returns the core number assigned to the MCP: the last core.
func (t Topology) MCPCore(fullMode bool) CoreID {
	return CoreID(t.TotalCores(fullMode) - 1)
}

// ThreadSpawnerCore returns the core number of the thread-spawner for the
// given process, or InvalidCore in lite mode.
func (t Topology) ThreadSpawnerCore(fullMode bool, proc ProcID) CoreID {
	if !fullMode {
		return InvalidCore
	}
	return CoreID(t.TotalCores(fullMode) - 1 - t.NumProcesses + int(proc))
}

// IsApplicationCore reports whether id names one of the [0, AppCores) cores.
func (t Topology) IsApplicationCore(id CoreID) bool {
	return id >= 0 && int(id) < t.AppCores
}

// RadixK returns k = ceil(N^(1/n)), the per-dimension extent of the k-ary
// n-cube that the NoC model routes over for N total cores.
func RadixK(totalCores, n int) int {
	if n <= 0 {
		panic("ids: dimensions must be positive")
	}
	k := math.Ceil(math.Pow(float64(totalCores), 1.0/float64(n)))
	if k < 1 {
		k = 1
	}
	return int(k)
}

// Coordinates decomposes a flat CoreID into n base-k digits, least
// significant first: id = x0 + x1*k + x2*k^2 + ...
func Coordinates(id CoreID, k, n int) []int {
	coords := make([]int, n)
	v := int(id)
	for i := 0; i < n; i++ {
		coords[i] = v % k
		v /= k
	}
	return coords
}

// FromCoordinates re-flattens a coordinate vector produced by Coordinates.
func FromCoordinates(coords []int, k int) CoreID {
	id := 0
	mul := 1
	for _, c := range coords {
		id += c * mul
		mul *= k
	}
	return CoreID(id)
}
