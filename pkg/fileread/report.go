package fileread

import (
	"strings"

	"github.com/gregLibert/smart-card-reader/pkg/iso7816"
)

// Report renders every step of the read, in order, as the command reports of package iso7816.
// Steps that are neither SELECT nor READ BINARY fall back to the raw trace.
func (f *File) Report() string {
	parts := make([]string, 0, len(f.Steps))
	for _, step := range f.Steps {
		parts = append(parts, describeStep(step))
	}
	return strings.Join(parts, "\n\n")
}

func describeStep(t iso7816.Trace) string {
	switch t[0].Command.Instruction.Raw {
	case iso7816.INS_SELECT:
		if res, err := iso7816.NewSelectResult(t); err == nil {
			return res.Describe()
		}
	case iso7816.INS_READ_BINARY:
		if res, err := iso7816.NewReadBinaryResult(t); err == nil {
			return res.Describe()
		}
	}
	return t.String()
}
