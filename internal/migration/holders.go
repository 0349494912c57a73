package migration

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartdevs17/edough-upgrade-check/pkg/utils"
)

// HolderSource reads the holder list: column 0 of every CSV row, no header
type HolderSource struct {
	path string
}

// NewHolderSource creates a source for the CSV file at path
func NewHolderSource(path string) *HolderSource {
	return &HolderSource{path: path}
}

// Path returns the CSV file path
func (h *HolderSource) Path() string {
	return h.path
}

// Load reads every holder address from the file in order
func (h *HolderSource) Load() ([]common.Address, error) {
	f, err := os.Open(h.path)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Failed to open holders file", err.Error())
	}
	defer f.Close()

	return ReadHolders(f)
}

// ReadHolders parses holder addresses from CSV. Rows whose first column is
// not a hex address are rejected with the offending line number.
func ReadHolders(r io.Reader) ([]common.Address, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var holders []common.Address
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, utils.NewAppError(utils.ErrCodeValidation, "Invalid holders file", err.Error())
		}

		line, _ := reader.FieldPos(0)
		value := strings.TrimSpace(record[0])
		if !common.IsHexAddress(value) {
			return nil, utils.NewAppError(utils.ErrCodeValidation, "Invalid holder address",
				fmt.Sprintf("line %d: %q", line, value))
		}
		holders = append(holders, common.HexToAddress(value))
	}

	return holders, nil
}
