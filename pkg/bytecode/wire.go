package bytecode

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// File is the on-disk envelope for a compiled unit (.foxc).
type File struct {
	Version uint16    `cbor:"1,keyasint"`
	Module  string    `cbor:"2,keyasint,omitempty"`
	Main    *Function `cbor:"3,keyasint"`
}

// cborEncMode uses canonical mode so that identical code objects encode to
// identical bytes.
var cborEncMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("bytecode: failed to create CBOR enc mode: %v", err))
	}
	cborEncMode = em
}

// Marshal serializes a compiled unit to CBOR bytes.
func Marshal(module string, main *Function) ([]byte, error) {
	if main == nil {
		return nil, fmt.Errorf("bytecode: marshal: nil function")
	}
	return cborEncMode.Marshal(&File{Version: FormatVersion, Module: module, Main: main})
}

// Unmarshal deserializes and validates a compiled unit.
func Unmarshal(data []byte) (*File, error) {
	var f File
	if err := cbor.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("bytecode: unmarshal: %w", err)
	}
	if f.Version != FormatVersion {
		return nil, fmt.Errorf("bytecode: unsupported format version %d (want %d)", f.Version, FormatVersion)
	}
	if err := f.Main.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}
