package iso7816

import (
	"errors"
	"fmt"

	"github.com/moov-io/bertlv"

	"github.com/gregLibert/smart-card-reader/pkg/bits"
	"github.com/gregLibert/smart-card-reader/pkg/tlv"
)

// The data returned by SELECT depends on bits 4-3 of P2:
//   - 00: FCI, an optional '6F' wrapper holding '62' and/or '64'. Some cards send the
//     FCP tags flat, without any template.
//   - 01: FCP, template '62' is mandatory.
//   - 10: FMD, template '64' is mandatory.
//   - 11: no data.
//
// A first byte in the C0-FF range marks a proprietary answer that is kept raw.

const (
	tagFCI = "6F"
	tagFCP = "62"
	tagFMD = "64"
)

// ErrMissingTemplate is returned when P2 asked for a template the card did not send.
var ErrMissingTemplate = errors.New("iso7816: mandatory template missing")

// FCPTemplate holds the File Control Parameters, tag '62'.
type FCPTemplate struct {
	DataSize                []byte `tlv:"80,int"` // Bytes of data, structural information excluded
	TotalFileSize           []byte `tlv:"81,int"`
	FileDescriptor          []byte `tlv:"82"`
	FileIdentifier          []byte `tlv:"83"`
	DFName                  []byte `tlv:"84,ascii"`
	ProprietaryInfo         []byte `tlv:"85"`
	SecurityAttrProprietary []byte `tlv:"86"`
	ExtFileControlInfoID    []byte `tlv:"87"`
	ShortEFIdentifier       []byte `tlv:"88"`
	LifeCycleStatus         []byte `tlv:"8A"`
	SecAttrRefExpanded      []byte `tlv:"8B"`
	SecurityAttrCompact     []byte `tlv:"8C"`
	SecEnvTemplateID        []byte `tlv:"8D"`
	ChannelSecurityAttr     []byte `tlv:"8E"`
	SecAttrTemplateData     []byte `tlv:"A0"`
	SecAttrTemplateProp     []byte `tlv:"A1"`
	OneOrMorePairs          []byte `tlv:"A2"`
	ProprietaryDataBER      []byte `tlv:"A5"`
	SecurityAttrExpanded    []byte `tlv:"AB"`
	CryptoMechanismID       []byte `tlv:"AC"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// FMDTemplate holds the File Management Data, tag '64'.
type FMDTemplate struct {
	ApplicationIdentifier []byte `tlv:"84,ascii"`
	ApplicationLabel      []byte `tlv:"50,ascii"`
	ProprietaryData53     []byte `tlv:"53"`
	ProprietaryData73     []byte `tlv:"73"`

	Unknown []bertlv.TLV `tlv:",unknown"`
}

// FileControlInfo is the parsed data field of a SELECT response.
type FileControlInfo struct {
	FCP *FCPTemplate
	FMD *FMDTemplate

	// Unknown holds the tags of a flat answer matching neither template.
	Unknown []bertlv.TLV

	ProprietaryRawData []byte
}

// AID returns the application identifier, tag '84' of the FCP or else of the FMD.
func (fci *FileControlInfo) AID() []byte {
	if fci == nil {
		return nil
	}
	if fci.FCP != nil && len(fci.FCP.DFName) > 0 {
		return fci.FCP.DFName
	}
	if fci.FMD != nil {
		return fci.FMD.ApplicationIdentifier
	}
	return nil
}

// Label returns the application label, tag '50' of the FMD.
func (fci *FileControlInfo) Label() []byte {
	if fci == nil || fci.FMD == nil {
		return nil
	}
	return fci.FMD.ApplicationLabel
}

// FileID returns the file identifier, tag '83' of the FCP.
func (fci *FileControlInfo) FileID() (uint16, bool) {
	if fci == nil || fci.FCP == nil || len(fci.FCP.FileIdentifier) != 2 {
		return 0, false
	}
	return bits.Join(fci.FCP.FileIdentifier[0], fci.FCP.FileIdentifier[1]), true
}

// FileSize returns the size of a transparent EF as declared in its FCP.
// Tag '80' (data bytes) is preferred over tag '81' (total size).
func (fci *FileControlInfo) FileSize() (size int, ok bool) {
	if fci == nil || fci.FCP == nil {
		return 0, false
	}

	raw := fci.FCP.DataSize
	if len(raw) == 0 {
		raw = fci.FCP.TotalFileSize
	}
	if len(raw) > 4 {
		return 0, false
	}

	n, ok := tlv.Uint(raw)
	return int(n), ok
}

// IsTransparent reports whether the file descriptor byte announces a working EF with
// transparent structure. ok is false when the FCP carries no descriptor.
func (fci *FileControlInfo) IsTransparent() (transparent, ok bool) {
	if fci == nil || fci.FCP == nil || len(fci.FCP.FileDescriptor) == 0 {
		return false, false
	}
	fdb := fci.FCP.FileDescriptor[0]
	// b8=0 b6-b4=000 (working EF), b3-b1=001 (transparent).
	return fdb&0b1011_1111 == 0b0000_0001, true
}

// ParseSelectData parses the data field of a SELECT response according to P2.
// It returns nil when there is no data or when P2 asked for none.
func ParseSelectData(data []byte, p2 byte) (*FileControlInfo, error) {
	if len(data) == 0 {
		return nil, nil
	}
	if data[0] >= 0xC0 {
		return &FileControlInfo{ProprietaryRawData: data}, nil
	}

	control, _ := SplitP2(p2)
	if control == ReturnNoData {
		return nil, nil
	}

	packets, err := tlv.Decode(data)
	if err != nil {
		return nil, err
	}

	fci := &FileControlInfo{FCP: &FCPTemplate{}, FMD: &FMDTemplate{}}

	switch control {
	case ReturnFCP, ReturnFMD:
		tag, target := tagFCP, any(fci.FCP)
		if control == ReturnFMD {
			tag, target = tagFMD, fci.FMD
		}
		if err := template(packets, tag, target, true); err != nil {
			return nil, err
		}
		return fci, nil
	}

	if wrapper, ok := tlv.Find(packets, tagFCI); ok {
		packets = wrapper.TLVs
	}

	hasFCP := has(packets, tagFCP)
	hasFMD := has(packets, tagFMD)
	if hasFCP || hasFMD {
		if err := template(packets, tagFCP, fci.FCP, false); err != nil {
			return nil, err
		}
		if err := template(packets, tagFMD, fci.FMD, false); err != nil {
			return nil, err
		}
		return fci, nil
	}

	// Flat answer: FCP tags first, what is left goes to the FMD, the rest is unknown.
	if err := tlv.UnmarshalPackets(packets, fci.FCP); err != nil {
		return nil, fmt.Errorf("flat FCP: %w", err)
	}
	rest := fci.FCP.Unknown
	fci.FCP.Unknown = nil

	if err := tlv.UnmarshalPackets(rest, fci.FMD); err != nil {
		return nil, fmt.Errorf("flat FMD: %w", err)
	}
	fci.Unknown = fci.FMD.Unknown
	fci.FMD.Unknown = nil

	return fci, nil
}

func has(packets []bertlv.TLV, tag string) bool {
	_, ok := tlv.Find(packets, tag)
	return ok
}

// template decodes the template tag into target. A missing template is an error only
// when mandatory is set.
func template(packets []bertlv.TLV, tag string, target any, mandatory bool) error {
	p, ok := tlv.Find(packets, tag)
	if !ok {
		if mandatory {
			return fmt.Errorf("%w: '%s'", ErrMissingTemplate, tag)
		}
		return nil
	}
	if err := tlv.UnmarshalPackets(p.TLVs, target); err != nil {
		return fmt.Errorf("template '%s': %w", tag, err)
	}
	return nil
}
