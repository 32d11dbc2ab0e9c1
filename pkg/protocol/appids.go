package protocol

// AppIDs as downlinked. Bases marked "+x" take a channel or product offset.
const (
	AppIDReadResponse      uint16 = 0x0200
	AppIDResetRequest      uint16 = 0x0201
	AppIDRegistersRB       uint16 = 0x0205
	AppIDHousekeeping      uint16 = 0x0206
	AppIDCalibratorDetect  uint16 = 0x0207
	AppIDBootloader        uint16 = 0x0208
	AppIDStart             uint16 = 0x0209
	AppIDHeartbeat         uint16 = 0x020A
	AppIDSequencerComplete uint16 = 0x020B
	AppIDMetaData          uint16 = 0x020F
	AppIDSpectraHigh       uint16 = 0x0210 // +x for 16 correlations
	AppIDSpectraMed        uint16 = 0x0220 // +x
	AppIDSpectraLow        uint16 = 0x0230 // +x
	AppIDSpectraRejectHigh uint16 = 0x0240 // +x
	AppIDSpectraRejectMed  uint16 = 0x0250 // +x
	AppIDSpectraRejectLow  uint16 = 0x0260 // +x
	AppIDZoomSpectra       uint16 = 0x0270
	AppIDTimeZoomSpectra   uint16 = 0x0280
	AppIDCalibratorData    uint16 = 0x0290
	AppIDSpectraVeryLow    uint16 = 0x02D0 // +x
	AppIDDirectSpectrum    uint16 = 0x02E0 // +x for 4 autocorrelations
	AppIDRawADC            uint16 = 0x02F0 // +x for 4 ADC streams
)

// SpectraAppID returns the AppID of product prod within the priority class base.
func SpectraAppID(base uint16, prod int) uint16 {
	return base + uint16(prod&0x0F)
}

// IsSpectra reports whether appID belongs to one of the spectra priority classes.
func IsSpectra(appID uint16) bool {
	switch appID & 0xFFF0 {
	case AppIDSpectraHigh, AppIDSpectraMed, AppIDSpectraLow,
		AppIDSpectraRejectHigh, AppIDSpectraRejectMed, AppIDSpectraRejectLow,
		AppIDSpectraVeryLow:
		return true
	}
	return false
}
