package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/lod61/poly-model-auto-trading/internal/domain"
)

// Console implementa ports.Notifier escribiendo a stdout.
type Console struct {
	out   io.Writer
	table bool
	paper bool

	mu     sync.Mutex
	recent []domain.TradeDecision
}

// maxRecent es el número de decisiones que entran en la tabla resumen.
const maxRecent = 12

// NewConsole crea un notificador. Con table=true cada NotifyStats imprime
// además la tabla de decisiones recientes.
func NewConsole(table, paper bool) *Console {
	return &Console{out: os.Stdout, table: table, paper: paper}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// NotifyDecision imprime el resultado de un ciclo en una línea.
func (c *Console) NotifyDecision(_ context.Context, d domain.TradeDecision) error {
	c.mu.Lock()
	c.recent = append(c.recent, d)
	if len(c.recent) > maxRecent {
		c.recent = c.recent[1:]
	}
	c.mu.Unlock()

	now := time.Now().Format("15:04:05")
	window := d.WindowID.Start().Format("15:04")

	var sb strings.Builder
	fmt.Fprintf(&sb, "[%s]%s w%s", now, c.modeTag(), window)

	if d.Traded() {
		fmt.Fprintf(&sb, " %s $%.2f @%.3f edge=%+.3f conf=%.3f",
			d.Direction, d.SizeUSD, d.MarketPrice, d.Edge, d.Confidence)
		if d.OrderID != "" {
			fmt.Fprintf(&sb, " order=%s", shortID(d.OrderID))
		}
	} else {
		fmt.Fprintf(&sb, " skip: %s", d.Skip)
		if d.Confidence > 0 {
			fmt.Fprintf(&sb, " (conf=%.3f edge=%+.3f)", d.Confidence, d.Edge)
		}
	}

	fmt.Fprintln(c.out, sb.String())
	return nil
}

// NotifyStats imprime los contadores agregados y, en modo tabla, las
// decisiones recientes.
func (c *Console) NotifyStats(_ context.Context, rs domain.RiskState) error {
	now := time.Now().Format("15:04:05")

	fmt.Fprintf(c.out, "[%s]%s stats: %d cycles | U:%d D:%d skip:%d | api_errors=%d\n",
		now, c.modeTag(),
		rs.TotalPredictions, rs.UpCount, rs.DownCount, rs.SkipCount,
		rs.ConsecutiveAPIErrors,
	)

	if !c.table {
		return nil
	}

	c.mu.Lock()
	recent := make([]domain.TradeDecision, len(c.recent))
	copy(recent, c.recent)
	c.mu.Unlock()

	if len(recent) == 0 {
		return nil
	}

	tbl := tablewriter.NewWriter(c.out)
	tbl.Header("Window", "Dir", "Size", "Price", "Edge", "Conf", "Result")

	for _, d := range recent {
		result := string(d.Skip)
		if d.Traded() {
			result = "traded " + shortID(d.OrderID)
		}
		tbl.Append(
			d.WindowID.Start().Format("01-02 15:04"),
			string(d.Direction),
			fmt.Sprintf("$%.2f", d.SizeUSD),
			fmt.Sprintf("%.3f", d.MarketPrice),
			fmt.Sprintf("%+.3f", d.Edge),
			fmt.Sprintf("%.3f", d.Confidence),
			result,
		)
	}
	tbl.Render()
	return nil
}

func (c *Console) modeTag() string {
	if c.paper {
		return "[PAPER]"
	}
	return ""
}

func shortID(id string) string {
	if len(id) > 10 {
		return id[:10] + "..."
	}
	return id
}
