package dramperf

// HMCTopology is the optional HMC-style address decomposition add-on
// (cube capacity, vaults-per-quadrant, banks-per-vault). It is pure
// additive bookkeeping: wiring it into a Constant model tags each access
// with a vault index for stats purposes without changing the returned
// latency.
type HMCTopology struct {
	CubeCapacityGB      int
	NumQuadrants        int
	VaultsPerQuadrant   int
	BanksPerVault       int
	DRAMLayers          int
	BanksPerPartition   int
	BlockSizeBytes      int
	SystemMemCapacityGB int
}

// DefaultHMCTopology holds the HMC 2.0 constants: 32 vaults of 256MB per
// 8GB cube, 16MB banks, 32MB partitions.
func DefaultHMCTopology() *HMCTopology {
	return &HMCTopology{
		CubeCapacityGB:      8,
		NumQuadrants:        4,
		VaultsPerQuadrant:   8,
		BanksPerVault:       16,
		DRAMLayers:          8,
		BanksPerPartition:   2,
		BlockSizeBytes:      64,
		SystemMemCapacityGB: 32,
	}
}

// BanksPerCube returns the total bank count per cube.
func (h *HMCTopology) BanksPerCube() int {
	return h.NumQuadrants * h.VaultsPerQuadrant * h.DRAMLayers * h.BanksPerPartition
}

// NumCubes returns how many cubes make up the whole system.
func (h *HMCTopology) NumCubes() int {
	if h.CubeCapacityGB == 0 {
		return 0
	}
	return h.SystemMemCapacityGB / h.CubeCapacityGB
}

// VaultsPerCube returns the number of vaults in a single cube.
func (h *HMCTopology) VaultsPerCube() int {
	return h.NumQuadrants * h.VaultsPerQuadrant
}

// Vault decomposes address into a vault index within its cube, striping
// cache-block-sized chunks across the vaults.
func (h *HMCTopology) Vault(address uint64) int {
	if h.BlockSizeBytes == 0 || h.VaultsPerCube() == 0 {
		return 0
	}
	block := address / uint64(h.BlockSizeBytes)
	return int(block % uint64(h.VaultsPerCube()))
}

// Bank decomposes address into a bank index within its vault.
func (h *HMCTopology) Bank(address uint64) int {
	if h.BanksPerVault == 0 {
		return 0
	}
	block := address / uint64(h.BlockSizeBytes)
	return int((block / uint64(h.VaultsPerCube())) % uint64(h.BanksPerVault))
}

// Cube decomposes address into a cube index.
func (h *HMCTopology) Cube(address uint64) int {
	if h.NumCubes() == 0 {
		return 0
	}
	perCube := uint64(h.VaultsPerCube() * h.BanksPerVault)
	block := address / uint64(h.BlockSizeBytes)
	return int((block / perCube) % uint64(h.NumCubes()))
}
