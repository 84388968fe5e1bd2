package platform

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/kaptinlin/jsonrepair"
)

// descriptorPE/descriptorCluster/descriptorBus/descriptor mirror the on-disk
// JSON shape of a platform descriptor file; hand-edited descriptors are run
// through jsonrepair before unmarshaling to tolerate trailing commas and
// unquoted keys.
type descriptorPE struct {
	Type    int  `json:"type"`
	Enabled bool `json:"enabled"`
	GRT     bool `json:"grt"`
}

type descriptorCluster struct {
	PEs             []descriptorPE `json:"pes"`
	MemorySize      int64          `json:"memorySize"`
	AllocatorPolicy string         `json:"allocatorPolicy"`
}

type descriptorBus struct {
	Src          int     `json:"src"`
	Dst          int     `json:"dst"`
	ReadSpeed    float64 `json:"readSpeed"`
	WriteSpeed   float64 `json:"writeSpeed"`
	SendKernelID int     `json:"sendKernelId"`
	RecvKernelID int     `json:"recvKernelId"`
}

type descriptor struct {
	Clusters []descriptorCluster `json:"clusters"`
	Buses    []descriptorBus     `json:"buses"`
}

// LoadEnv loads the variables of a .env file at path into the process
// environment; a missing file is not an error. The descriptor path is not
// taken from the environment: Load receives it as an argument.
func LoadEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("platform: loading env file %q: %w", path, err)
	}
	return nil
}

// Load reads and parses a platform descriptor file, repairing common JSON
// authoring mistakes before unmarshaling.
func Load(path string) (*Platform, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("platform: reading descriptor %q: %w", path, err)
	}
	repaired, err := jsonrepair.JSONRepair(string(raw))
	if err != nil {
		return nil, fmt.Errorf("platform: repairing descriptor %q: %w", path, err)
	}

	var d descriptor
	if err := json.Unmarshal([]byte(repaired), &d); err != nil {
		return nil, fmt.Errorf("platform: parsing descriptor %q: %w", path, err)
	}

	p := &Platform{}
	virtualIx := 0
	for ci, dc := range d.Clusters {
		c := Cluster{
			Index: ci,
			MemoryInterface: MemoryInterface{
				Size:            dc.MemorySize,
				AllocatorPolicy: parseAllocatorPolicy(dc.AllocatorPolicy),
			},
		}
		for _, dpe := range dc.PEs {
			c.PEs = append(c.PEs, PE{
				VirtualIndex: virtualIx,
				Type:         PEType(dpe.Type),
				Enabled:      dpe.Enabled,
				IsGRT:        dpe.GRT,
			})
			virtualIx++
		}
		p.Clusters = append(p.Clusters, c)
	}
	for _, db := range d.Buses {
		p.Buses = append(p.Buses, Bus{
			SrcCluster:   db.Src,
			DstCluster:   db.Dst,
			ReadSpeed:    db.ReadSpeed,
			WriteSpeed:   db.WriteSpeed,
			SendKernelID: db.SendKernelID,
			RecvKernelID: db.RecvKernelID,
		})
	}

	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func parseAllocatorPolicy(s string) AllocatorPolicy {
	if s == "fifo" {
		return FIFOPolicy
	}
	return Linear
}
