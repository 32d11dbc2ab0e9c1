package protocol

import (
	"fmt"
	"maps"
	"slices"
)

// Opcode is the first byte of an uplinked command.
type Opcode uint8

const (
	OpStop       Opcode = 0x00 // disable data taking
	OpStart      Opcode = 0x01 // start acquisition with the current setup
	OpReset      Opcode = 0x02 // restore the boot configuration
	OpStore      Opcode = 0x03 // store current configuration
	OpRecall     Opcode = 0x04 // recall stored configuration
	OpHKReq      Opcode = 0x05 // housekeeping request, 0 full, 1 ADC statistics
	OpADC        Opcode = 0x06 // 0 ADC disabled, 1 ADC enabled
	OpRangeADC   Opcode = 0x07 // autorange ADC and send an ADC packet
	OpTimeToDie  Opcode = 0x0F // power cut announced
	OpTest       Opcode = 0x10 // test preset by number
	OpScience    Opcode = 0x11 // science preset by number
	OpLoadFlash  Opcode = 0x12 // load sequencer program from flash
	OpStoreFlash Opcode = 0x13 // store sequencer program to flash

	OpGainSet      Opcode = 0x30 // 4x2 bits of L, M, H, A
	OpGainAutoMin  Opcode = 0x31 // low 2 bits channel, rest x16 is min ADC
	OpGainAutoMult Opcode = 0x32 // low 2 bits channel, rest is multiplier
	OpBitsliceLow  Opcode = 0x33 // products 1-8
	OpBitsliceHigh Opcode = 0x34 // products 9-16
	OpBitsliceAuto Opcode = 0x35 // 0 disables, >0 keep bits for smallest product

	OpRoute12 Opcode = 0x40
	OpRoute34 Opcode = 0x41

	OpAvgSet     Opcode = 0x50 // low nibble stage 1 shift, high nibble stage 2 shift
	OpAvgOutlier Opcode = 0x51
	OpAvgFreq    Opcode = 0x52
	OpAvgNotch   Opcode = 0x53
	OpAvgHiFrac  Opcode = 0x54
	OpAvgMidFrac Opcode = 0x55
	OpFormat     Opcode = 0x56

	OpCalFrac    Opcode = 0x60
	OpCalMax     Opcode = 0x61
	OpCalLock    Opcode = 0x62
	OpCalSNR     Opcode = 0x63
	OpCalBinSt   Opcode = 0x64
	OpCalBinEn   Opcode = 0x65
	OpCalAntMask Opcode = 0x66

	OpZoomEn    Opcode = 0x70
	OpZoomSet1  Opcode = 0x71
	OpZoom1Lo   Opcode = 0x72
	OpZoom1Hi   Opcode = 0x73
	OpZoomSet2  Opcode = 0x74
	OpZoom2Lo   Opcode = 0x75
	OpZoom2Hi   Opcode = 0x76

	OpSeqEnable Opcode = 0xA0 // DD>0 enables, DD=0 disables
	OpSeqRepeat Opcode = 0xA1 // cycle repetitions, 0 infinite
	OpSeqCycle  Opcode = 0xA2 // steps in a cycle, restarts the store cursor
	OpSeqStore  Opcode = 0xA3 // store current configuration as the next step
)

var opcodeNames = map[Opcode]string{
	OpStop:         "RFS_SET_STOP",
	OpStart:        "RFS_SET_START",
	OpReset:        "RFS_SET_RESET",
	OpStore:        "RFS_SET_STORE",
	OpRecall:       "RFS_SET_RECALL",
	OpHKReq:        "RFS_SET_HK_REQ",
	OpADC:          "RFS_SET_ADC",
	OpRangeADC:     "RFS_SET_RANGE_ADC",
	OpTimeToDie:    "RFS_SET_TIME_TO_DIE",
	OpTest:         "RFS_SET_TEST",
	OpScience:      "RFS_SET_SCIENCE",
	OpLoadFlash:    "RFS_SET_LOAD_FL",
	OpStoreFlash:   "RFS_SET_STORE_FL",
	OpGainSet:      "RFS_SET_GAIN_ANA_SET",
	OpGainAutoMin:  "RFS_SET_GAIN_ANA_CFG_MIN",
	OpGainAutoMult: "RFS_SET_GAIN_ANA_CFG_MULT",
	OpBitsliceLow:  "RFS_SET_BITSLICE_LOW",
	OpBitsliceHigh: "RFS_SET_BITSLICE_HIGH",
	OpBitsliceAuto: "RFS_SET_BITSLICE_AUTO",
	OpRoute12:      "RFS_SET_ROUTE_SET12",
	OpRoute34:      "RFS_SET_ROUTE_SET34",
	OpAvgSet:       "RFS_SET_AVG_SET",
	OpAvgOutlier:   "RFS_SET_AVG_OUTLIER",
	OpAvgFreq:      "RFS_SET_AVG_FREQ",
	OpAvgNotch:     "RFS_SET_AVG_NOTCH",
	OpAvgHiFrac:    "RFS_SET_AVG_SET_HI",
	OpAvgMidFrac:   "RFS_SET_AVG_SET_MID",
	OpFormat:       "RFS_SET_OUTPUT_FORMAT",
	OpCalFrac:      "RFS_SET_CAL_FRAC_SET",
	OpCalMax:       "RFS_SET_CAL_MAX_SET",
	OpCalLock:      "RFS_SET_CAL_LOCK_SET",
	OpCalSNR:       "RFS_SET_CAL_SNR_SET",
	OpCalBinSt:     "RFS_SET_CAL_BIN_ST",
	OpCalBinEn:     "RFS_SET_CAL_BIN_EN",
	OpCalAntMask:   "RFS_SET_CAL_ANT_MASK",
	OpZoomEn:       "RFS_SET_ZOOM_EN",
	OpZoomSet1:     "RFS_SET_ZOOM_SET1",
	OpZoom1Lo:      "RFS_SET_ZOOM_SET1_LO",
	OpZoom1Hi:      "RFS_SET_ZOOM_SET1_HI",
	OpZoomSet2:     "RFS_SET_ZOOM_SET2",
	OpZoom2Lo:      "RFS_SET_ZOOM_SET2_LO",
	OpZoom2Hi:      "RFS_SET_ZOOM_SET2_HI",
	OpSeqEnable:    "RFS_SET_SEQ_EN",
	OpSeqRepeat:    "RFS_SET_SEQ_REP",
	OpSeqCycle:     "RFS_SET_SEQ_CYC",
	OpSeqStore:     "RFS_SET_SEQ_STO",
}

// Opcodes lists every known opcode in ascending order.
func Opcodes() []Opcode {
	return slices.Sorted(maps.Keys(opcodeNames))
}

// Known reports whether op is part of the opcode table.
func (op Opcode) Known() bool {
	_, ok := opcodeNames[op]
	return ok
}

func (op Opcode) String() string {
	if name, ok := opcodeNames[op]; ok {
		return name
	}
	return fmt.Sprintf("RFS_UNKNOWN(0x%02X)", uint8(op))
}

// Command is one uplinked command as read from the CDI command registers.
type Command struct {
	Opcode Opcode
	ArgHi  uint8
	ArgLo  uint8
}

// Arg returns both argument bytes as one 16-bit value.
func (c Command) Arg() uint16 {
	return uint16(c.ArgHi)<<8 | uint16(c.ArgLo)
}

func (c Command) String() string {
	return fmt.Sprintf("%s %02X%02X", c.Opcode, c.ArgHi, c.ArgLo)
}
