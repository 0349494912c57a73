package upgrade

import (
	"bytes"
	"encoding/json"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/smartdevs17/edough-upgrade-check/pkg/utils"
)

// artifact covers hardhat/truffle ("bytecode": "0x...") and foundry
// ("bytecode": {"object": "0x..."}) build outputs.
type artifact struct {
	ContractName string          `json:"contractName"`
	Bytecode     json.RawMessage `json:"bytecode"`
}

// LoadBytecode reads contract creation code from a compiled artifact JSON
// file or from a file holding the raw hex.
func LoadBytecode(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "Failed to read implementation artifact", err.Error())
	}
	return ParseBytecode(raw)
}

// ParseBytecode decodes artifact JSON or raw hex into creation code
func ParseBytecode(raw []byte) ([]byte, error) {
	raw = bytes.TrimSpace(raw)

	code := string(raw)
	if bytes.HasPrefix(raw, []byte("{")) {
		var a artifact
		if err := json.Unmarshal(raw, &a); err != nil {
			return nil, utils.NewAppError(utils.ErrCodeValidation, "Invalid artifact JSON", err.Error())
		}
		field, err := artifactCode(a.Bytecode)
		if err != nil {
			return nil, err
		}
		code = field
	}

	return decodeHex(code)
}

func artifactCode(field json.RawMessage) (string, error) {
	if len(field) == 0 {
		return "", utils.NewAppError(utils.ErrCodeValidation, "Artifact has no bytecode field")
	}

	var code string
	if err := json.Unmarshal(field, &code); err == nil {
		return code, nil
	}

	var nested struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(field, &nested); err != nil {
		return "", utils.NewAppError(utils.ErrCodeValidation, "Unsupported bytecode field", err.Error())
	}
	return nested.Object, nil
}

func decodeHex(code string) ([]byte, error) {
	code = strings.TrimSpace(code)
	if strings.Contains(code, "__") {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Bytecode has unlinked library references")
	}
	if !strings.HasPrefix(strings.ToLower(code), "0x") {
		code = "0x" + code
	}

	out, err := hexutil.Decode(code)
	if err != nil {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Bytecode is not valid hex", err.Error())
	}
	if len(out) == 0 {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "Bytecode is empty")
	}
	return out, nil
}
