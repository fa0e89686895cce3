package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"sort"
	"time"

	"collab-hub/transport"

	"github.com/gookit/color"
	"github.com/kelseyhightower/envconfig"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

type Config struct {
	HubURL  string        `envconfig:"HUB_URL" default:"http://localhost:8080"`
	Timeout time.Duration `envconfig:"HUBSTAT_TIMEOUT" default:"5s"`
	// HUBSTAT_COLOURS toggles colorized headers
	Colours bool `envconfig:"HUBSTAT_COLOURS" default:"true"`
}

func main() {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		log.Fatal("config error: ", err)
	}
	stats, err := fetch(cfg)
	if err != nil {
		log.Fatal(err)
	}
	render(os.Stdout, cfg, stats)
}

func fetch(cfg Config) (transport.StatsResponse, error) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cfg.HubURL+"/stats", nil)
	if err != nil {
		return transport.StatsResponse{}, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return transport.StatsResponse{}, fmt.Errorf("unable to reach hub: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return transport.StatsResponse{}, fmt.Errorf("hub answered %s", resp.Status)
	}
	var stats transport.StatsResponse
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return transport.StatsResponse{}, fmt.Errorf("invalid stats body: %w", err)
	}
	return stats, nil
}

func header(cfg Config, title string) string {
	title = fmt.Sprintf("  ====== %s ======", title)
	if cfg.Colours {
		return color.New(color.BgBlack, color.FgGreen).Render(title)
	}
	return title
}

func newTable(w io.Writer, columns ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(columns)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetHeaderLine(false)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetTablePadding("\t")
	return table
}

func render(w io.Writer, cfg Config, stats transport.StatsResponse) {
	m := stats.Monitoring

	fmt.Fprintln(w, header(cfg, "Hub"))
	counters := newTable(w, "Metric", "Value")
	counters.AppendBulk([][]string{
		{"rooms", fmt.Sprint(stats.Hub.Rooms)},
		{"connections", fmt.Sprint(stats.Hub.Connections)},
		{"rooms created / destroyed", fmt.Sprintf("%d / %d", m.RoomsCreated, m.RoomsDestroyed)},
		{"connections opened / closed", fmt.Sprintf("%d / %d", m.ConnectionsOpened, m.ConnectionsClosed)},
		{"auth failures", fmt.Sprint(m.AuthFailures)},
		{"broadcasts", fmt.Sprint(m.Broadcasts)},
		{"frames queued", fmt.Sprint(m.FramesQueued)},
		{"rejected", fmt.Sprint(m.Rejected)},
		{"backpressure drops", fmt.Sprint(m.BackpressureDrops)},
		{"relay dropped / failed", fmt.Sprintf("%d / %d", m.RelayDropped, m.RelayFailures)},
		{"censored", fmt.Sprint(m.Censored)},
		{"goroutines", fmt.Sprint(m.Goroutines)},
		{"alloc (MB)", fmt.Sprint(m.AllocMemMb)},
		{"cpu %", fmt.Sprintf("%.1f", m.Process.CPUPercent)},
		{"rss (MB)", fmt.Sprint(m.Process.RSSBytes / 1024 / 1024)},
	})
	counters.Render()

	if len(stats.Hub.Members) > 0 {
		fmt.Fprintln(w, header(cfg, "Rooms"))
		rooms := newTable(w, "Event", "Members")
		events := lo.Keys(stats.Hub.Members)
		sort.Strings(events)
		for _, event := range events {
			rooms.Append([]string{event, fmt.Sprint(stats.Hub.Members[event])})
		}
		rooms.Render()
	}

	if len(m.Queues) > 0 {
		fmt.Fprintln(w, header(cfg, "Queues"))
		queues := newTable(w, "Queue", "Length", "Capacity")
		names := lo.Keys(m.Queues)
		sort.Strings(names)
		for _, name := range names {
			q := m.Queues[name]
			queues.Append([]string{name, fmt.Sprint(q.Length), fmt.Sprint(q.Capacity)})
		}
		queues.Render()
	}
}
