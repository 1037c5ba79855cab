package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/pterm/pterm"
	"gopkg.in/yaml.v3"

	"github.com/shinji-kodama/portsweep/internal/config"
	"github.com/shinji-kodama/portsweep/internal/model"
)

// Document is the structured (JSON/YAML) form of a ScanResult.
type Document struct {
	ID        string    `json:"id" yaml:"id"`
	Address   string    `json:"address" yaml:"address"`
	Workers   int       `json:"workers" yaml:"workers"`
	Timeout   string    `json:"timeout" yaml:"timeout"`
	StartedAt time.Time `json:"startedAt" yaml:"startedAt"`
	Duration  string    `json:"duration" yaml:"duration"`
	OpenPorts []int     `json:"openPorts" yaml:"openPorts"`
	Summary   Summary   `json:"summary" yaml:"summary"`
}

// Summary counts probe outcomes by state.
type Summary struct {
	Probed   int `json:"probed" yaml:"probed"`
	Open     int `json:"open" yaml:"open"`
	Closed   int `json:"closed" yaml:"closed"`
	Filtered int `json:"filtered" yaml:"filtered"`
}

// NewDocument converts a ScanResult into its structured form.
func NewDocument(r *model.ScanResult) Document {
	// An empty slice renders as [] instead of null.
	ports := make([]int, 0, len(r.OpenPorts))
	for _, p := range r.OpenPorts {
		ports = append(ports, int(p))
	}

	return Document{
		ID:        r.ID,
		Address:   r.Target.Address.String(),
		Workers:   r.Target.Workers,
		Timeout:   r.Timeout.String(),
		StartedAt: r.StartedAt.UTC(),
		Duration:  r.Duration().Round(time.Millisecond).String(),
		OpenPorts: ports,
		Summary: Summary{
			Probed:   r.Probed,
			Open:     len(r.OpenPorts),
			Closed:   r.Closed,
			Filtered: r.Filtered,
		},
	}
}

// Render writes r to w in the given format.
func Render(w io.Writer, format string, r *model.ScanResult) error {
	switch format {
	case config.FormatText, "":
		return renderText(w, r)
	case config.FormatTable:
		return renderTable(w, r)
	case config.FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(NewDocument(r))
	case config.FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(NewDocument(r)); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

// renderText prints one line per open port in ascending order.
func renderText(w io.Writer, r *model.ScanResult) error {
	for _, p := range r.OpenPorts {
		if _, err := fmt.Fprintf(w, "Port %d is open\n", p); err != nil {
			return err
		}
	}
	return nil
}

// renderTable prints the open ports as a table followed by a summary line.
//
//	PORT  PROTO  STATE
//	22    tcp    open
//	8080  tcp    open
func renderTable(w io.Writer, r *model.ScanResult) error {
	if len(r.OpenPorts) == 0 {
		_, err := fmt.Fprintf(w, "No open ports found on %s.\n", r.Target.Address)
		return err
	}

	data := pterm.TableData{{"PORT", "PROTO", "STATE"}}
	for _, p := range r.OpenPorts {
		data = append(data, []string{strconv.Itoa(int(p)), "tcp", model.StateOpen.String()})
	}

	table, err := pterm.DefaultTable.
		WithHasHeader(true).
		WithBoxed(false).
		WithData(data).
		Srender()
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "%s\n\n%d open, %d closed, %d filtered of %d probed in %s\n",
		table, len(r.OpenPorts), r.Closed, r.Filtered, r.Probed,
		r.Duration().Round(time.Millisecond))
	return err
}
