package notify

// console.go — resumen de cada ciclo de scan por stdout.

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"

	"github.com/alejandrodnm/kalshibot/internal/ports"
)

// Console implementa ports.Notifier.
type Console struct {
	out   io.Writer
	table bool
}

// NewConsole crea un notificador que escribe a stdout.
func NewConsole(table bool) *Console {
	return &Console{out: os.Stdout, table: table}
}

// NewConsoleWriter crea un notificador para tests.
func NewConsoleWriter(w io.Writer, table bool) *Console {
	return &Console{out: w, table: table}
}

// Notify imprime el resumen del ciclo en el modo configurado.
func (c *Console) Notify(_ context.Context, report ports.CycleReport) error {
	now := time.Now().Format("15:04:05")

	if len(report.Selected) == 0 {
		fmt.Fprintf(c.out, "[%s] no tradeable signals (raw:%d approved:%d)\n",
			now, report.Raw, report.Approved)
		return nil
	}

	fmt.Fprintf(c.out, "[%s] signals raw:%d approved:%d selected:%d executed:%d\n",
		now, report.Raw, report.Approved, len(report.Selected), report.Executed)

	if !c.table {
		return nil
	}

	table := tablewriter.NewWriter(c.out)
	table.Header("#", "Ticker", "Strategy", "Side", "Size", "Entry", "Edge", "Conf", "Score")
	for i, sig := range report.Selected {
		table.Append(
			fmt.Sprintf("%d", i+1),
			sig.Ticker,
			sig.Strategy,
			string(sig.Side),
			fmt.Sprintf("%d", sig.ProposedSize),
			fmt.Sprintf("%.2f", sig.EntryPrice),
			fmt.Sprintf("%.3f", sig.Edge),
			fmt.Sprintf("%.2f", sig.Confidence),
			fmt.Sprintf("%.3f", sig.Score),
		)
	}
	table.Render()
	return nil
}
