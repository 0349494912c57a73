package report

import (
	"fmt"
	"io"
	"math/big"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/shopspring/decimal"

	"github.com/smartdevs17/edough-upgrade-check/internal/models"
)

// Printer renders the console report of a run
type Printer struct {
	out      io.Writer
	decimals int32
	yellow   *color.Color
	green    *color.Color
	red      *color.Color
}

// NewPrinter creates a printer writing to out. Token amounts are scaled down
// by 10^decimals.
func NewPrinter(out io.Writer, useColor bool, decimals int32) *Printer {
	p := &Printer{
		out:      out,
		decimals: decimals,
		yellow:   color.New(color.FgYellow),
		green:    color.New(color.FgGreen),
		red:      color.New(color.FgRed),
	}
	for _, c := range []*color.Color{p.yellow, p.green, p.red} {
		if useColor {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return p
}

// Print writes the full report: both snapshots, the added state, the
// migration totals and every discrepancy.
func (p *Printer) Print(run *models.Run) {
	if run.Previous != nil && run.Upgraded != nil {
		p.PrintSnapshots(run.Previous, run.Upgraded, run.AddedKeys)
	}
	p.PrintE2EHeader(run.DryRun)
	p.PrintResults(run.TotalStaked, run.Discrepancies)
	p.PrintFailures(run.FailedHolders())
}

// PrintSnapshots writes the previous and upgraded state trees and the keys
// the upgrade added.
func (p *Printer) PrintSnapshots(previous, upgraded *models.StateSnapshot, added []string) {
	p.printTree("Previous state:", previous)
	p.printTree("Upgraded state:", upgraded)

	fmt.Fprintln(p.out, "State Changes")
	for _, key := range added {
		value, _ := upgraded.Get(key)
		p.green.Fprintf(p.out, "   + state[%s] = %s\n", key, value)
	}
	fmt.Fprintln(p.out)
}

// PrintSnapshot writes a single state tree
func (p *Printer) PrintSnapshot(title string, snap *models.StateSnapshot) {
	p.printTree(title, snap)
}

// PrintE2EHeader announces the migration stage
func (p *Printer) PrintE2EHeader(dryRun bool) {
	p.yellow.Fprintln(p.out, "E2E Testing...")
	if dryRun {
		p.yellow.Fprintln(p.out, "Dry run: eligibility only, no migrations sent")
	}
}

// PrintResults writes the staked total and the inaccuracy list
func (p *Printer) PrintResults(total *big.Int, discrepancies []models.Discrepancy) {
	fmt.Fprintf(p.out, "Total staked veDOUGH after bridging every possible vesting entry: %s\n",
		FormatAmount(total, p.decimals))
	fmt.Fprintf(p.out, "Found %d inaccuracies:\n", len(discrepancies))

	for _, d := range discrepancies {
		diff := d.Diff()
		diffColor := p.red
		if diff.Sign() > 0 {
			diffColor = p.green
		}
		fmt.Fprintf(p.out, "Something is off with %s: expected %s got %s (%s)\n",
			d.Address.Hex(),
			p.green.Sprint(d.Expected.String()),
			p.red.Sprint(d.Delta.String()),
			diffColor.Sprint(diff.String()))
	}
}

// PrintFailures lists holders that errored when the batch continued past them
func (p *Printer) PrintFailures(failed []models.HolderRecord) {
	if len(failed) == 0 {
		return
	}
	p.red.Fprintf(p.out, "Failed holders: %d\n", len(failed))
	for _, h := range failed {
		p.red.Fprintf(p.out, "   ✗ %s: %s\n", h.Address.Hex(), h.Error)
	}
}

// PrintEligibility lists each holder's maturable amount without migrating
func (p *Printer) PrintEligibility(records []models.HolderRecord, total *big.Int) {
	p.yellow.Fprintln(p.out, "Eligibility")
	for _, h := range records {
		switch h.Outcome {
		case models.HolderFailed:
			p.red.Fprintf(p.out, "   ✗ %s: %s\n", h.Address.Hex(), h.Error)
		case models.HolderSkipped:
			fmt.Fprintf(p.out, "   - %s: %d entries, nothing eligible\n", h.Address.Hex(), h.Entries)
		default:
			fmt.Fprintf(p.out, "   %s %s: %d entries, %s eligible\n",
				p.green.Sprint("+"), h.Address.Hex(), h.Entries, FormatAmount(h.Eligible, p.decimals))
		}
	}
	fmt.Fprintf(p.out, "Total eligible veDOUGH: %s\n", FormatAmount(total, p.decimals))
}

func (p *Printer) printTree(title string, snap *models.StateSnapshot) {
	p.yellow.Fprintln(p.out, title)
	for i, f := range snap.Fields {
		branch := "├"
		if i == len(snap.Fields)-1 {
			branch = "┕"
		}
		fmt.Fprintf(p.out, "   %s %s: %s\n", branch, f.Name, f.Value)
	}
	fmt.Fprintln(p.out)
}

// FormatAmount scales v down by 10^decimals and renders it with two decimals
// and thousands separators, e.g. 1234567890000000000000 -> "1,234.57".
func FormatAmount(v *big.Int, decimals int32) string {
	if v == nil {
		v = new(big.Int)
	}
	fixed := decimal.NewFromBigInt(v, -decimals).StringFixed(2)

	whole, frac, _ := strings.Cut(fixed, ".")
	negative := strings.HasPrefix(whole, "-")
	whole = strings.TrimPrefix(whole, "-")

	n, ok := new(big.Int).SetString(whole, 10)
	if !ok {
		return fixed
	}
	out := humanize.BigComma(n) + "." + frac
	if negative {
		out = "-" + out
	}
	return out
}
