package dap

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// unmarshalLaunchAttachArgs decodes the arguments of a launch or attach
// request. A missing argument object leaves output unchanged.
func unmarshalLaunchAttachArgs(input json.RawMessage, output interface{}) error {
	if len(input) == 0 {
		return nil
	}
	if err := json.Unmarshal(input, output); err != nil {
		if uerr, ok := err.(*json.UnmarshalTypeError); ok {
			// Format json.UnmarshalTypeError error string in our own way. E.g.,
			//   "json: cannot unmarshal number into Go struct field LaunchArgs.name of type string"
			//   => "cannot unmarshal number into 'name' of type string"
			return fmt.Errorf("cannot unmarshal %v into %q of type %v", uerr.Value, uerr.Field, uerr.Type.String())
		}
		return err
	}
	return nil
}

func unmarshalStrict(data []byte, output interface{}) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(output)
}
