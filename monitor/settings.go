package main

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/coreloop/pkg/cdi"
	"github.com/itohio/coreloop/pkg/protocol"
)

// showCommandDialog lets the operator send one command to the core's UDP command port.
func showCommandDialog(state *appState) {
	ops := protocol.Opcodes()
	options := make([]string, len(ops))
	byName := make(map[string]protocol.Opcode, len(ops))
	for i, op := range ops {
		options[i] = fmt.Sprintf("%02X %s", uint8(op), op)
		byName[options[i]] = op
	}

	opSelect := widget.NewSelect(options, nil)
	opSelect.SetSelected(options[0])
	argEntry := widget.NewEntry()
	argEntry.SetPlaceHolder("0000")

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Target", Widget: widget.NewLabel(state.cfg.CDI.Address)},
			{Text: "Opcode", Widget: opSelect},
			{Text: "Argument (hex)", Widget: argEntry},
		},
		SubmitText: "Send",
		OnSubmit: func() {
			arg, err := parseArg(argEntry.Text)
			if err != nil {
				dialog.ShowError(err, state.window)
				return
			}
			op := byName[opSelect.Selected]
			cmd := protocol.Command{Opcode: op, ArgHi: uint8(arg >> 8), ArgLo: uint8(arg)}
			if err := sendCommand(state.cfg.CDI.Address, cmd); err != nil {
				dialog.ShowError(err, state.window)
				return
			}
			state.status.SetText("Sent " + cmd.String())
		},
	}

	d := dialog.NewCustom("Command", "Close", form, state.window)
	d.Resize(fyne.NewSize(420, 220))
	d.Show()
}

func parseArg(s string) (uint16, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 16, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid argument %q: %w", s, err)
	}
	return uint16(v), nil
}

// sendCommand writes one command frame to addr.
func sendCommand(addr string, cmd protocol.Command) error {
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return err
	}
	defer conn.Close()
	frame := cdi.EncodeCommand(cmd)
	_, err = conn.Write(frame[:])
	return err
}

// showSettingsDialog displays the link and display settings.
func showSettingsDialog(state *appState) {
	tabs := container.NewAppTabs(
		createLinkTab(state),
		createDisplayTab(state),
	)

	d := dialog.NewCustom("Settings", "Close", tabs, state.window)
	d.Resize(fyne.NewSize(500, 360))
	d.Show()
}

// createLinkTab configures where commands go and where telemetry is received.
func createLinkTab(state *appState) *container.TabItem {
	commandEntry := widget.NewEntry()
	commandEntry.SetText(state.cfg.CDI.Address)
	listenEntry := widget.NewEntry()
	listenEntry.SetText(state.cfg.Monitor.Listen)

	ports, err := cdi.Ports()
	portOptions := []string{}
	portMap := make(map[string]string)
	if err == nil {
		for _, port := range ports {
			displayName := port.Name
			if port.Description != "" && port.Description != port.Name {
				displayName = fmt.Sprintf("%s (%s)", port.Name, port.Description)
			}
			portOptions = append(portOptions, displayName)
			portMap[displayName] = port.Name
		}
	}
	if cur := state.cfg.CDI.Serial.Port; cur != "" {
		if _, ok := portMap[cur]; !ok {
			portOptions = append(portOptions, cur)
			portMap[cur] = cur
		}
	}
	portSelect := widget.NewSelect(portOptions, nil)
	for display, name := range portMap {
		if name == state.cfg.CDI.Serial.Port {
			portSelect.SetSelected(display)
		}
	}

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "Command port", Widget: commandEntry},
			{Text: "Telemetry listen", Widget: listenEntry},
			{Text: "Serial port", Widget: portSelect},
		},
		OnSubmit: func() {
			state.cfg.CDI.Address = strings.TrimSpace(commandEntry.Text)
			state.cfg.Monitor.Listen = strings.TrimSpace(listenEntry.Text)
			if portSelect.Selected != "" {
				state.cfg.CDI.Serial.Port = portMap[portSelect.Selected]
			}
			state.saveConfig()
		},
	}
	return container.NewTabItem("Link", form)
}

// createDisplayTab configures how much history the monitor keeps.
func createDisplayTab(state *appState) *container.TabItem {
	historyEntry := widget.NewEntry()
	historyEntry.SetText(strconv.Itoa(state.cfg.Monitor.History))

	form := &widget.Form{
		Items: []*widget.FormItem{
			{Text: "History (packets)", Widget: historyEntry},
		},
		OnSubmit: func() {
			if n, err := strconv.Atoi(historyEntry.Text); err == nil && n > 0 {
				state.cfg.Monitor.History = n
			}
			state.saveConfig()
		},
	}
	return container.NewTabItem("Display", form)
}

func (state *appState) saveConfig() {
	if err := state.cfg.Validate(); err != nil {
		dialog.ShowError(err, state.window)
		return
	}
	if err := state.cfg.Save(state.configPath); err != nil {
		dialog.ShowError(fmt.Errorf("failed to save config: %w", err), state.window)
	}
}
