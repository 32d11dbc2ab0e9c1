package packet

import (
	"fmt"

	"github.com/itohio/coreloop/pkg/protocol"
)

// Spectrum is a decoded spectra product.
type Spectrum struct {
	SpectrumHeader
	Data []uint32
}

// Parse decodes a packet by its AppID into one of the layout types.
func Parse(appID uint16, b []byte) (any, error) {
	switch {
	case appID == protocol.AppIDStart:
		return Decode[Hello](b)
	case appID == protocol.AppIDMetaData:
		return Decode[MetaData](b)
	case appID == protocol.AppIDHeartbeat:
		hb, err := Decode[Heartbeat](b)
		if err == nil && hb.Magic != HeartbeatMagic() {
			err = ErrBadMagic
		}
		return hb, err
	case appID == protocol.AppIDSequencerComplete:
		return Decode[EndOfSequence](b)
	case appID == protocol.AppIDHousekeeping:
		if len(b) < Size(Header{})+1 {
			return nil, fmt.Errorf("housekeeping: %w", ErrShortPacket)
		}
		switch hk := b[Size(Header{})]; hk {
		case 0:
			return Decode[Housekeeping0](b)
		case 1:
			return Decode[Housekeeping1](b)
		default:
			return nil, fmt.Errorf("housekeeping type %d: %w", hk, ErrUnknownAppID)
		}
	case protocol.IsSpectra(appID):
		h, data, err := DecodeSpectrum(b)
		return Spectrum{SpectrumHeader: h, Data: data}, err
	}
	return nil, fmt.Errorf("0x%04X: %w", appID, ErrUnknownAppID)
}
