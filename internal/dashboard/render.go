// Package dashboard renders the detection feed as a terminal panel.
package dashboard

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/couchcryptid/pothole-monitor/internal/domain"
	"github.com/couchcryptid/pothole-monitor/internal/feed"
	"github.com/couchcryptid/pothole-monitor/internal/view"
	"golang.org/x/term"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorDim    = "\033[2m"
	clearScreen = "\033[H\033[2J"
)

// sparkBlocks are the bar heights, lowest first.
var sparkBlocks = []rune("▁▂▃▄▅▆▇█")

// timeLayout mirrors a short es-MX date with a 24h clock.
const timeLayout = "02/01/06, 15:04:05"

// IsTerminal reports whether f is attached to a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Renderer draws snapshots to a writer.
type Renderer struct {
	w      io.Writer
	color  bool
	filter view.Filter
	loc    *time.Location
}

// NewRenderer creates a renderer. color enables ANSI colors and clears the
// screen before each frame.
func NewRenderer(w io.Writer, color bool, filter view.Filter, loc *time.Location) *Renderer {
	if loc == nil {
		loc = time.Local
	}
	return &Renderer{w: w, color: color, filter: filter, loc: loc}
}

// SeverityLabel is the badge text for a level.
func SeverityLabel(s domain.Severity) string {
	switch s {
	case domain.SeverityHigh:
		return "Crítico"
	case domain.SeverityMedium:
		return "Moderado"
	default:
		return "Leve"
	}
}

// StatusLabel is the link indicator text.
func StatusLabel(s feed.Status) string {
	switch s {
	case feed.StatusLive:
		return "En vivo"
	case feed.StatusError:
		return "Error de enlace"
	default:
		return "Sincronizando"
	}
}

// Spark draws values as a row of block characters.
func Spark(values []float64) string {
	var b strings.Builder
	for _, level := range view.Sparkline(values, len(sparkBlocks)) {
		b.WriteRune(sparkBlocks[level])
	}
	return b.String()
}

// FormatTime renders an ISO timestamp in loc, or returns it unchanged when
// it cannot be parsed.
func FormatTime(ts string, loc *time.Location) string {
	t, ok := domain.ParseTimestamp(ts)
	if !ok {
		return ts
	}
	return t.In(loc).Format(timeLayout)
}

// Render draws one frame. An empty feed falls back to the demo dataset so
// the panel is never blank.
func (r *Renderer) Render(snap feed.Snapshot) error {
	dataset := snap.Detections
	demo := len(dataset) == 0
	if demo {
		dataset = domain.SeedDetections()
	}
	rows := view.Apply(dataset, r.filter)
	sum := view.Summarize(rows)

	var b strings.Builder
	if r.color {
		b.WriteString(clearScreen)
	}

	b.WriteString("Panel de detección de baches\n")
	lastUpdate := "Sin datos"
	if snap.LastUpdate != "" {
		lastUpdate = FormatTime(snap.LastUpdate, r.loc)
	}
	fmt.Fprintf(&b, "%s · Última actualización: %s\n", r.status(snap.Status), lastUpdate)
	if snap.Err != "" {
		fmt.Fprintf(&b, "%s\n", r.paint(colorRed, snap.Err))
	}
	if demo {
		b.WriteString(r.paint(colorDim, "Sin lecturas del sensor: mostrando datos de demostración") + "\n")
	}
	if !r.filter.IsDefault() {
		fmt.Fprintf(&b, "Filtro: %s\n", describeFilter(r.filter))
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "Detecciones: %d   Graves: %d   Moderadas: %d   Leves: %d\n",
		sum.Count, sum.BySeverity.High, sum.BySeverity.Medium, sum.BySeverity.Low)
	fmt.Fprintf(&b, "Profundidad prom.: %.1f cm   Máx: %.2f cm\n", sum.AverageDepth, sum.MaxDepth)
	fmt.Fprintf(&b, "Tendencia: %s\n", Spark(sum.Trend))
	if sum.Latest != nil {
		fmt.Fprintf(&b, "Última: %s %.2f cm en %s (%s)\n",
			sum.Latest.ID, sum.Latest.Depth, sum.Latest.Location, FormatTime(sum.Latest.Timestamp, r.loc))
	} else {
		b.WriteString("Última: Sin registro\n")
	}
	b.WriteString("\n")

	tw := tabwriter.NewWriter(&b, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSeveridad\tProfundidad\tUbicación\tHora\tFuente")
	for _, d := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%.2f cm\t%s\t%s\t%s\n",
			d.ID, r.badge(d.Severity), d.Depth, d.Location, FormatTime(d.Timestamp, r.loc), d.Source)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	_, err := io.WriteString(r.w, b.String())
	return err
}

func (r *Renderer) badge(s domain.Severity) string {
	label := SeverityLabel(s)
	switch s {
	case domain.SeverityHigh:
		return r.paint(colorRed, label)
	case domain.SeverityMedium:
		return r.paint(colorYellow, label)
	default:
		return r.paint(colorGreen, label)
	}
}

func (r *Renderer) status(s feed.Status) string {
	label := StatusLabel(s)
	switch s {
	case feed.StatusLive:
		return r.paint(colorGreen, label)
	case feed.StatusError:
		return r.paint(colorRed, label)
	default:
		return r.paint(colorYellow, label)
	}
}

func (r *Renderer) paint(color, s string) string {
	if !r.color {
		return s
	}
	return color + s + colorReset
}

func describeFilter(f view.Filter) string {
	var parts []string
	add := func(name, value string) {
		if v := strings.TrimSpace(value); v != "" && !strings.EqualFold(v, view.All) {
			parts = append(parts, name+"="+v)
		}
	}
	add("severidad", f.Severity)
	add("fuente", f.Source)
	add("búsqueda", f.Search)
	add("desde", f.StartDate)
	add("hasta", f.EndDate)
	return strings.Join(parts, " ")
}
