// Command monitor is the ground display for coreloop telemetry. It listens for
// mirrored packets, or replays an archived session, and plots ADC levels and spectra.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"github.com/itohio/coreloop/pkg/cdi"
	"github.com/itohio/coreloop/pkg/config"
	"github.com/itohio/coreloop/pkg/monitor"
	"github.com/itohio/coreloop/pkg/protocol"
	"github.com/itohio/coreloop/pkg/scope"
)

func main() {
	var (
		configFlag  = flag.String("config", "config.yaml", "Configuration file path")
		listenFlag  = flag.String("l", "", "Telemetry listen address override")
		replayFlag  = flag.String("replay", "", "Archive database to replay instead of listening")
		sessionFlag = flag.String("session", "", "Archive session to replay (default: newest)")
	)
	flag.Parse()

	cfg, err := config.Load(*configFlag)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *listenFlag != "" {
		cfg.Monitor.Listen = *listenFlag
	}

	application := app.NewWithID("com.itohio.coreloop.monitor")
	window := application.NewWindow("Coreloop Monitor")
	window.Resize(fyne.NewSize(1200, 800))
	window.CenterOnScreen()

	state := &appState{
		cfg:        cfg,
		configPath: *configFlag,
		monitor:    monitor.New(&cfg.Monitor),
		window:     window,
		replay:     *replayFlag,
		session:    *sessionFlag,
	}
	state.scopeWidget = scope.New()
	state.status = widget.NewLabel("Idle")

	state.monitor.OnUpdate(state.onUpdate)

	content := container.NewBorder(
		createToolbar(state),
		state.status,
		nil,
		nil,
		state.scopeWidget,
	)
	window.SetContent(content)
	window.SetOnClosed(state.stop)
	window.ShowAndRun()
}

// appState holds the application state.
type appState struct {
	cfg         *config.Config
	configPath  string
	monitor     *monitor.Monitor
	scopeWidget *scope.ScopeWidget
	status      *widget.Label
	window      fyne.Window
	replay      string
	session     string

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	running bool

	// Throttling for scope updates
	lastUpdateTime time.Time
	updateMu       sync.Mutex
}

// createToolbar creates the connect, commander, mode and product controls.
func createToolbar(state *appState) fyne.CanvasObject {
	connectBtn := widget.NewButtonWithIcon("", theme.LoginIcon(), func() {
		handleConnect(state)
	})
	commandBtn := widget.NewButtonWithIcon("", theme.MailSendIcon(), func() {
		showCommandDialog(state)
	})
	settingsBtn := widget.NewButtonWithIcon("", theme.SettingsIcon(), func() {
		showSettingsDialog(state)
	})

	modeSelect := widget.NewSelect([]string{"ADC", "Spectra"}, func(s string) {
		if s == "Spectra" {
			state.scopeWidget.SetMode(scope.ModeSpectra)
		} else {
			state.scopeWidget.SetMode(scope.ModeADC)
		}
		state.scopeWidget.UpdateData(state.monitor.Snapshot())
	})
	modeSelect.SetSelected("ADC")

	products := make([]string, protocol.NSpectra)
	for i := range products {
		products[i] = strconv.Itoa(i)
	}
	productSelect := widget.NewCheckGroup(products, func(selected []string) {
		var ps []int
		for _, s := range selected {
			p, _ := strconv.Atoi(s)
			ps = append(ps, p)
		}
		state.scopeWidget.SetProducts(ps...)
		state.scopeWidget.UpdateData(state.monitor.Snapshot())
	})
	productSelect.Horizontal = true
	productSelect.SetSelected(products[:protocol.NInput])

	return container.NewBorder(
		nil,
		nil,
		container.NewHBox(connectBtn, commandBtn, settingsBtn, modeSelect),
		nil,
		container.NewHScroll(productSelect),
	)
}

// onUpdate pushes monitor snapshots to the scope at most ~30 times a second.
func (state *appState) onUpdate(snap monitor.Snapshot) {
	const updateInterval = 33 * time.Millisecond

	state.updateMu.Lock()
	now := time.Now()
	if now.Sub(state.lastUpdateTime) < updateInterval {
		state.updateMu.Unlock()
		return
	}
	state.lastUpdateTime = now
	state.updateMu.Unlock()

	text := statusText(snap)
	fyne.Do(func() {
		state.scopeWidget.UpdateData(snap)
		state.status.SetText(text)
	})
}

func statusText(snap monitor.Snapshot) string {
	text := fmt.Sprintf("packets %d, rejected %d, sequences %d", snap.Packets, snap.Rejected, snap.Sequences)
	if snap.Meta != nil {
		text += fmt.Sprintf(", last burst #%d", snap.Meta.PacketID)
	}
	if n := len(snap.Events); n > 0 {
		text += ", errors: " + snap.Events[n-1].Errors.String()
	}
	return text
}

// handleConnect starts or stops the telemetry source.
func handleConnect(state *appState) {
	state.mu.Lock()
	running := state.running
	state.mu.Unlock()

	if running {
		state.stop()
		state.status.SetText("Disconnected")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	input := make(chan monitor.Packet, 256)
	done := make(chan struct{})

	var source func(context.Context, chan<- monitor.Packet) error
	if state.replay != "" {
		source = func(ctx context.Context, out chan<- monitor.Packet) error {
			return replaySession(ctx, state.replay, state.session, out)
		}
	} else {
		listener, err := cdi.ListenTelemetry(state.cfg.Monitor.Listen)
		if err != nil {
			cancel()
			dialog.ShowError(err, state.window)
			return
		}
		source = func(ctx context.Context, out chan<- monitor.Packet) error {
			return listener.Serve(ctx, channelSink(ctx, out))
		}
		state.status.SetText("Listening on " + listener.Addr().String())
	}

	state.monitor.ResetShutdown()
	go func() {
		defer close(done)
		state.monitor.ProcessPackets(input)
	}()
	go func() {
		defer close(input)
		if err := source(ctx, input); err != nil {
			log.Printf("Telemetry source stopped: %v", err)
		}
	}()

	state.mu.Lock()
	state.cancel, state.done, state.running = cancel, done, true
	state.mu.Unlock()
}

// stop cancels the source and waits for the monitor to drain.
func (state *appState) stop() {
	state.mu.Lock()
	cancel, done := state.cancel, state.done
	state.cancel, state.done, state.running = nil, nil, false
	state.mu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// channelSink forwards packets into out until ctx is done.
func channelSink(ctx context.Context, out chan<- monitor.Packet) cdi.Sink {
	return cdi.SinkFunc(func(appID uint16, payload []byte) error {
		select {
		case out <- monitor.Packet{AppID: appID, Payload: payload}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}
