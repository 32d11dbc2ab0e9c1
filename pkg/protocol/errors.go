package protocol

import "strings"

// ErrorMask is the accumulated fault bitmask reported in housekeeping.
type ErrorMask uint32

const (
	CDICommandUnknown ErrorMask = 1 << iota // unknown CDI command received
	CDICommandBad                           // command called at the wrong time
	CDICommandBadArgs                       // command called with wrong arguments
	AnalogAGCTooHigh                        // cannot bring signal down
	AnalogAGCTooLow                         // cannot bring signal up
	AnalogAGCActionCh1
	AnalogAGCActionCh2
	AnalogAGCActionCh3
	AnalogAGCActionCh4
)

// AGCAction returns the action bit of channel ch (0-based).
func AGCAction(ch int) ErrorMask {
	return AnalogAGCActionCh1 << uint(ch)
}

var errorNames = []struct {
	bit  ErrorMask
	name string
}{
	{CDICommandUnknown, "CDI_COMMAND_UNKNOWN"},
	{CDICommandBad, "CDI_COMMAND_BAD"},
	{CDICommandBadArgs, "CDI_COMMAND_BAD_ARGS"},
	{AnalogAGCTooHigh, "ANALOG_AGC_TOO_HIGH"},
	{AnalogAGCTooLow, "ANALOG_AGC_TOO_LOW"},
	{AnalogAGCActionCh1, "ANALOG_AGC_ACTION_CH1"},
	{AnalogAGCActionCh2, "ANALOG_AGC_ACTION_CH2"},
	{AnalogAGCActionCh3, "ANALOG_AGC_ACTION_CH3"},
	{AnalogAGCActionCh4, "ANALOG_AGC_ACTION_CH4"},
}

// Names lists the names of every bit set in m, lowest bit first.
func (m ErrorMask) Names() []string {
	var names []string
	for _, e := range errorNames {
		if m&e.bit != 0 {
			names = append(names, e.name)
		}
	}
	return names
}

// String renders the set bits comma separated; an empty mask is "".
func (m ErrorMask) String() string {
	return strings.Join(m.Names(), ",")
}
