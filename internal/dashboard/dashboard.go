package dashboard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/torosent/barrage/internal/metrics"
	"github.com/torosent/barrage/internal/mission"
	"github.com/torosent/barrage/internal/output"
)

const historySize = 100

// Dashboard renders a live terminal UI for a run. It is push-fed through
// ReadyProgress and Update and redraws on its own ticker.
type Dashboard struct {
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	wg           sync.WaitGroup
	mu           sync.Mutex
	stopOnce     sync.Once

	grid         *ui.Grid
	progress     *widgets.Gauge
	rpsSparkline *widgets.SparklineGroup
	summaryPara  *widgets.Paragraph
	totalsPara   *widgets.Paragraph
	ratePara     *widgets.Paragraph
	systemPara   *widgets.Paragraph
	rpsHistory   []float64
	mission      mission.Config
}

// New initializes the terminal and creates a dashboard for m. shutdownFunc is
// invoked when the user presses q or Ctrl-C.
func New(m mission.Config, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}
	d := newDashboard(m, shutdownFunc)
	d.setupGrid()
	return d, nil
}

func newDashboard(m mission.Config, shutdownFunc func()) *Dashboard {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dashboard{
		ctx:          ctx,
		cancel:       cancel,
		shutdownFunc: shutdownFunc,
		rpsHistory:   make([]float64, 0, historySize),
		mission:      m,
	}
	d.initWidgets()
	return d
}

func (d *Dashboard) initWidgets() {
	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "Mission"
	d.summaryPara.Text = missionText(d.mission)
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan

	d.progress = widgets.NewGauge()
	d.progress.Title = "Progress"
	d.progress.Percent = 0
	d.progress.Label = "Waiting for workers"
	d.progress.BarColor = ui.ColorBlue
	d.progress.BorderStyle.Fg = ui.ColorCyan
	d.progress.LabelStyle = ui.NewStyle(ui.ColorWhite)

	sparkline := widgets.NewSparkline()
	sparkline.Title = "Requests/sec"
	sparkline.LineColor = ui.ColorGreen
	sparkline.Data = []float64{0}
	d.rpsSparkline = widgets.NewSparklineGroup(sparkline)
	d.rpsSparkline.Title = "Throughput"
	d.rpsSparkline.BorderStyle.Fg = ui.ColorCyan

	d.totalsPara = widgets.NewParagraph()
	d.totalsPara.Title = "Totals"
	d.totalsPara.Text = "Waiting for data..."
	d.totalsPara.BorderStyle.Fg = ui.ColorCyan

	d.ratePara = widgets.NewParagraph()
	d.ratePara.Title = "Rate"
	d.ratePara.Text = "Waiting for data..."
	d.ratePara.BorderStyle.Fg = ui.ColorCyan

	d.systemPara = widgets.NewParagraph()
	d.systemPara.Title = "Workers"
	d.systemPara.Text = fmt.Sprintf("Ready: 0/%d", d.mission.ActualWorkers)
	d.systemPara.TextStyle = ui.NewStyle(ui.ColorGreen)
	d.systemPara.BorderStyle.Fg = ui.ColorCyan
}

func (d *Dashboard) setupGrid() {
	termWidth, termHeight := ui.TerminalDimensions()

	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, termWidth, termHeight)

	d.grid.Set(
		ui.NewRow(0.2,
			ui.NewCol(1.0, d.summaryPara),
		),
		ui.NewRow(0.15,
			ui.NewCol(1.0, d.progress),
		),
		ui.NewRow(0.35,
			ui.NewCol(1.0, d.rpsSparkline),
		),
		ui.NewRow(0.3,
			ui.NewCol(0.34, d.totalsPara),
			ui.NewCol(0.33, d.ratePara),
			ui.NewCol(0.33, d.systemPara),
		),
	)
}

// Start begins the dashboard render loop.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop stops the render loop and restores the terminal.
func (d *Dashboard) Stop() {
	d.stopOnce.Do(func() {
		d.cancel()
		d.wg.Wait()
		ui.Close()
		// Give terminal time to restore
		time.Sleep(100 * time.Millisecond)
	})
}

// ReadyProgress shows how many workers have reported ready.
func (d *Dashboard) ReadyProgress(ready, total int) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.systemPara.Text = fmt.Sprintf("Ready: %d/%d", ready, total)
	d.progress.Label = fmt.Sprintf("Workers ready %d/%d", ready, total)
}

// Update refreshes all widgets from agg.
func (d *Dashboard) Update(agg metrics.Aggregate) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.rpsHistory = appendHistory(d.rpsHistory, float64(agg.CurrentRPS))
	d.rpsSparkline.Sparklines[0].Data = d.rpsHistory
	d.rpsSparkline.Title = fmt.Sprintf("Throughput | Current: %d RPS | Peak: %d RPS", agg.CurrentRPS, agg.PeakRPS)

	d.progress.Percent = int(agg.Progress() * 100)
	d.progress.Label = fmt.Sprintf("%d/%d (%d%%)", agg.Completed, agg.TotalRequests, d.progress.Percent)

	d.totalsPara.Text = totalsText(agg)
	d.ratePara.Text = rateText(agg)
	d.systemPara.Text = systemText(agg)
}

func (d *Dashboard) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()

	d.render()

	for {
		select {
		case <-d.ctx.Done():
			return
		case e := <-uiEvents:
			switch e.ID {
			case "q", "<C-c>":
				if d.shutdownFunc != nil {
					d.shutdownFunc()
				}
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.mu.Lock()
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				d.mu.Unlock()
				ui.Clear()
				d.render()
			}
		case <-ticker.C:
			d.render()
		}
	}
}

func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	ui.Render(d.grid)
}

func appendHistory(history []float64, v float64) []float64 {
	history = append(history, v)
	if len(history) > historySize {
		history = history[len(history)-historySize:]
	}
	return history
}

func missionText(m mission.Config) string {
	lines := []string{
		fmt.Sprintf("Target: %s", m.TargetURL),
		fmt.Sprintf("Total: %d | Delay: %s | Workers: %d | Requests/Worker: %d", m.TotalRequests, m.Delay, m.ActualWorkers, m.RequestQuota()),
	}
	if u := m.Undelivered(); u > 0 {
		lines = append(lines, fmt.Sprintf("[Undelivered: %d](fg:yellow)", u))
	}
	lines = append(lines, "Press q to stop")
	return strings.Join(lines, "\n")
}

func totalsText(agg metrics.Aggregate) string {
	return fmt.Sprintf("Completed: %d\n[Success:   %d](fg:green)\n[Failed:    %d](fg:red)\nRate:      %.1f%%",
		agg.Completed, agg.TotalSuccess, agg.TotalFailed, agg.SuccessRate())
}

func rateText(agg metrics.Aggregate) string {
	return fmt.Sprintf("Current: %d RPS\nPeak:    %d RPS\nRuntime: %ds\nETA:     %ds",
		agg.CurrentRPS, agg.PeakRPS, agg.RuntimeSeconds, agg.ETASeconds)
}

func systemText(agg metrics.Aggregate) string {
	memory := "n/a"
	if agg.MemoryBytes > 0 {
		memory = output.FormatBytes(agg.MemoryBytes)
	}
	return fmt.Sprintf("Active: %d/%d\nMemory: %s", agg.ActiveWorkers, agg.Workers, memory)
}
