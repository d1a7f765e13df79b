package felicity_modbus

import (
	"errors"
	"fmt"

	"go.uber.org/zap"
)

const (
	SCAN_DEFAULT_FROM uint16 = 0x1100
	SCAN_DEFAULT_TO   uint16 = 0x112F
)

type ScanResult struct {
	Address uint16
	Value   uint16
	Err     error
}

func (r ScanResult) String() string {
	if r.Err != nil {
		return fmt.Sprintf("0x%04X: error: %v", r.Address, r.Err)
	}
	return fmt.Sprintf("0x%04X: %d 0x%04X", r.Address, r.Value, r.Value)
}

// Scan reads every holding register in [from, to] once, without retry, to help
// mapping undocumented registers.
func (c *RegisterClient) Scan(from, to uint16) ([]ScanResult, error) {
	if to < from {
		return nil, errors.New("felicity: scan range end before start")
	}
	results := make([]ScanResult, 0, int(to-from)+1)
	for addr := uint32(from); addr <= uint32(to); addr++ {
		reg, err := c.ReadRawOnce(uint16(addr))
		res := ScanResult{Address: uint16(addr), Value: reg, Err: err}
		if err != nil {
			c.logger.Error("scan@read error", zap.String("address", fmt.Sprintf("0x%04X", addr)), zap.Error(err))
		} else {
			c.logger.Info("scan@read", zap.String("register", res.String()))
		}
		results = append(results, res)
	}
	return results, nil
}
