package anvil

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// artifact is the subset of a compiler output file used for deployment. Hardhat
// stores the bytecode as a string, forge as an object.
type artifact struct {
	ABI      json.RawMessage `json:"abi"`
	Bytecode json.RawMessage `json:"bytecode"`
}

// LoadABI reads a contract ABI from a JSON file. The file can hold the bare ABI array
// or a compiler artifact with an "abi" field.
func LoadABI(path string) (abi.ABI, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return abi.ABI{}, err
	}
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '{' {
		var a artifact
		if err := json.Unmarshal(data, &a); err != nil {
			return abi.ABI{}, fmt.Errorf("invalid artifact %s: %v", path, err)
		}
		if len(a.ABI) == 0 {
			return abi.ABI{}, fmt.Errorf("artifact %s has no abi", path)
		}
		data = a.ABI
	}
	parsed, err := abi.JSON(bytes.NewReader(data))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("invalid ABI in %s: %v", path, err)
	}
	return parsed, nil
}

// LoadBytecode reads contract creation code from a hex file (with or without 0x
// prefix) or from the "bytecode" field of a compiler artifact.
func LoadBytecode(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(string(data))
	if strings.HasPrefix(text, "{") {
		if text, err = artifactBytecode([]byte(text)); err != nil {
			return nil, fmt.Errorf("invalid artifact %s: %v", path, err)
		}
	}
	code, err := hex.DecodeString(strings.TrimPrefix(text, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid bytecode in %s: %v", path, err)
	}
	if len(code) == 0 {
		return nil, fmt.Errorf("empty bytecode in %s", path)
	}
	return code, nil
}

func artifactBytecode(data []byte) (string, error) {
	var a artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return "", err
	}
	if len(a.Bytecode) == 0 {
		return "", fmt.Errorf("no bytecode field")
	}
	var code string
	if err := json.Unmarshal(a.Bytecode, &code); err == nil {
		return code, nil
	}
	var obj struct {
		Object string `json:"object"`
	}
	if err := json.Unmarshal(a.Bytecode, &obj); err != nil {
		return "", err
	}
	return obj.Object, nil
}
