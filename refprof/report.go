package refprof

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Report formatters are pure, read-only functions over recorder snapshots.
// They never mutate recorder state and hold no locks of their own.

const reportWidth = 80

var (
	rule     = strings.Repeat("=", reportWidth)
	thinRule = strings.Repeat("-", reportWidth)
)

func formatDuration(d time.Duration) string {
	switch {
	case d <= 0:
		return "0µs"
	case d < time.Millisecond:
		return fmt.Sprintf("%dµs", d.Microseconds())
	case d < time.Second:
		return fmt.Sprintf("%.2fms", float64(d)/float64(time.Millisecond))
	default:
		return fmt.Sprintf("%.2fs", d.Seconds())
	}
}

func kindLabel(k CallKind) string {
	return strings.ToUpper(string(k))
}

// TreeOptions control call-tree rendering.
type TreeOptions struct {
	// MaxDepth cuts the tree off below this depth. 0 means unlimited.
	MaxDepth int

	// MinDuration excludes calls shorter than this before the tree is
	// built. Excluding a call removes its entire subtree, not just its
	// own line.
	MinDuration time.Duration
}

// FormatCallTree renders the recorder's finished calls as a parent/child
// tree reconstructed from parent call ids.
func FormatCallTree(r *Recorder, opts TreeOptions) string {
	var b strings.Builder
	b.WriteString(rule + "\n")
	b.WriteString("REMOTE CALL TREE\n")
	b.WriteString(rule + "\n")

	// Pre-filter into the adjacency map: a call below the duration floor
	// never appears as a parent key, so its subtree is unreachable.
	children := make(map[int64][]CallRecord)
	for _, c := range r.History() {
		if c.Duration < opts.MinDuration {
			continue
		}
		children[c.ParentID] = append(children[c.ParentID], c)
	}

	var render func(parent int64, depth int, prefix string)
	render = func(parent int64, depth int, prefix string) {
		if opts.MaxDepth > 0 && depth >= opts.MaxDepth {
			return
		}
		calls := children[parent]
		for i, c := range calls {
			last := i == len(calls)-1
			connector, extension := "├── ", "│   "
			if last {
				connector, extension = "└── ", "    "
			}

			proxy := ""
			if c.OnProxy {
				proxy = fmt.Sprintf(" [Proxy #%d]", c.ProxyID)
				if c.ResultIsProxy {
					proxy += fmt.Sprintf(" → [Proxy #%d]", c.ResultProxyID)
				}
			}
			errStr := ""
			if c.Err != "" {
				errStr = " ⚠ " + truncate(c.Err, 30)
			}

			fmt.Fprintf(&b, "%s%s%s (%s)%s [%s]%s\n",
				prefix, connector, c.Method, kindLabel(c.Kind), proxy, formatDuration(c.Duration), errStr)

			render(c.ID, depth+1, prefix+extension)
		}
	}
	render(0, 0, "")

	b.WriteString(rule)
	return b.String()
}

// TimelineOptions control timeline rendering.
type TimelineOptions struct {
	// Width is the bar-chart width in characters. 0 means 80.
	Width int

	// MinDuration excludes calls shorter than this.
	MinDuration time.Duration
}

// FormatTimeline renders finished calls as bars on a shared time axis
// spanning the filtered history.
func FormatTimeline(r *Recorder, opts TimelineOptions) string {
	width := opts.Width
	if width <= 0 {
		width = reportWidth
	}

	var b strings.Builder
	b.WriteString(rule + "\n")
	b.WriteString("REMOTE CALL TIMELINE\n")
	b.WriteString(rule + "\n")

	var history []CallRecord
	for _, c := range r.History() {
		if c.Duration >= opts.MinDuration {
			history = append(history, c)
		}
	}
	if len(history) == 0 {
		b.WriteString("(no calls recorded)\n")
		b.WriteString(rule)
		return b.String()
	}

	start := history[0].Start
	end := history[0].Start.Add(history[0].Duration)
	for _, c := range history[1:] {
		if c.Start.Before(start) {
			start = c.Start
		}
		if e := c.Start.Add(c.Duration); e.After(end) {
			end = e
		}
	}
	total := end.Sub(start)
	if total <= 0 {
		// degenerate range: clamp so positions stay defined
		total = time.Millisecond
	}

	for _, c := range history {
		pos := int(float64(c.Start.Sub(start)) / float64(total) * float64(width))
		barWidth := int(float64(c.Duration) / float64(total) * float64(width))
		if barWidth < 1 {
			barWidth = 1
		}

		bar := make([]rune, width)
		for i := range bar {
			bar[i] = ' '
		}
		for i := pos; i < pos+barWidth && i < width; i++ {
			if i >= 0 {
				bar[i] = '█'
			}
		}

		indent := strings.Repeat("  ", c.Depth)
		fmt.Fprintf(&b, "%s %s%s (%s)\n", string(bar), indent, c.Method, formatDuration(c.Duration))
	}

	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "Total time: %s\n", formatDuration(total))
	b.WriteString(rule)
	return b.String()
}

// FormatProxyReport renders a table of live proxies sorted by total access
// count, most used first.
func FormatProxyReport(r *Recorder) string {
	var b strings.Builder
	b.WriteString(rule + "\n")
	b.WriteString("PROXY REPORT\n")
	b.WriteString(rule + "\n")

	proxies := r.Proxies()
	if len(proxies) == 0 {
		b.WriteString("(no active proxies)\n")
		b.WriteString(rule)
		return b.String()
	}

	sort.Slice(proxies, func(i, j int) bool {
		if proxies[i].Accesses != proxies[j].Accesses {
			return proxies[i].Accesses > proxies[j].Accesses
		}
		return proxies[i].ID < proxies[j].ID
	})

	fmt.Fprintf(&b, "%-8s %-25s %-10s %-8s %-8s %-8s\n", "ID", "Class", "Age", "Calls", "Attrs", "Total")
	b.WriteString(thinRule + "\n")
	now := time.Now()
	for _, p := range proxies {
		fmt.Fprintf(&b, "%-8d %-25s %-10s %-8d %-8d %-8d\n",
			p.ID, truncate(p.Class, 25), formatDuration(now.Sub(p.Created)),
			p.MethodCalls, p.AttrAccesses, p.Accesses)
	}

	stats := r.Stats()
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "Active Proxies: %d\n", len(proxies))
	fmt.Fprintf(&b, "Total Created:  %d\n", stats.ProxiesCreated)
	b.WriteString(rule)
	return b.String()
}

// FormatSlowCalls renders the top-N slowest entries from the slow-call list,
// longest first. topN <= 0 means 20.
func FormatSlowCalls(r *Recorder, topN int) string {
	if topN <= 0 {
		topN = 20
	}

	var b strings.Builder
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "SLOW CALLS REPORT (threshold: %s)\n", formatDuration(r.Config().SlowCallThreshold))
	b.WriteString(rule + "\n")

	slow := r.SlowCalls()
	if len(slow) == 0 {
		b.WriteString("(no slow calls detected)\n")
		b.WriteString(rule)
		return b.String()
	}

	sort.Slice(slow, func(i, j int) bool { return slow[i].Duration > slow[j].Duration })
	shown := slow
	if len(shown) > topN {
		shown = shown[:topN]
	}

	fmt.Fprintf(&b, "%-40s %-12s %-10s %-8s\n", "Method", "Duration", "Kind", "Depth")
	b.WriteString(thinRule + "\n")
	for _, c := range shown {
		fmt.Fprintf(&b, "%-40s %-12s %-10s %-8d\n",
			truncate(c.Method, 40), formatDuration(c.Duration), c.Kind, c.Depth)
	}

	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "Total Slow Calls: %d (showing top %d)\n", len(slow), len(shown))
	b.WriteString(rule)
	return b.String()
}

// FormatActiveStack renders the scope's in-flight call stack with elapsed
// times, outermost first.
func FormatActiveStack(r *Recorder, s *Scope) string {
	var b strings.Builder

	stack := r.ActiveStack(s)
	if len(stack) == 0 {
		return "(empty stack)"
	}

	now := time.Now()
	for i, c := range stack {
		arrow := "├─> "
		if i == len(stack)-1 {
			arrow = "└─> "
		}
		proxy := ""
		if c.OnProxy {
			proxy = fmt.Sprintf(" [Proxy #%d]", c.ProxyID)
		}
		fmt.Fprintf(&b, "%s%s%s (%s)%s [%s]\n",
			strings.Repeat("  ", i), arrow, c.Method, string(c.Kind), proxy, formatDuration(now.Sub(c.Start)))
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatMarkers renders all closed section markers in creation order, with
// nested sections indented under their parents.
func FormatMarkers(mk *Markers) string {
	markers := mk.Closed()
	if len(markers) == 0 {
		return "(no markers recorded)"
	}

	var b strings.Builder
	b.WriteString(rule + "\n")
	b.WriteString("PROFILING MARKERS - CRITICAL SECTIONS\n")
	b.WriteString(rule + "\n")

	for _, m := range markers {
		indent := strings.Repeat("  ", m.Depth)
		fmt.Fprintf(&b, "%s%s\n", indent, m.Name)
		fmt.Fprintf(&b, "%s  Duration:        %s\n", indent, formatDuration(m.Duration()))
		fmt.Fprintf(&b, "%s  Round Trips:     %d\n", indent, m.RoundTrips())
		fmt.Fprintf(&b, "%s  Proxies Created: %d\n", indent, m.ProxiesCreated())
		if m.Parent != "" {
			fmt.Fprintf(&b, "%s  Parent:          %s\n", indent, m.Parent)
		}
		b.WriteString("\n")
	}

	b.WriteString(rule)
	return b.String()
}

// FormatSummary renders the recorder's statistics plus its slow-call,
// deep-stack, and most-used-proxy highlights.
func FormatSummary(r *Recorder) string {
	stats := r.Stats()
	cfg := r.Config()

	var b strings.Builder
	b.WriteString(rule + "\n")
	b.WriteString("TELEMETRY SUMMARY\n")
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "Total Calls:          %d\n", stats.TotalCalls)
	fmt.Fprintf(&b, "Network Round Trips:  %d\n", stats.TotalRoundTrips)
	fmt.Fprintf(&b, "Proxies Created:      %d\n", stats.ProxiesCreated)
	fmt.Fprintf(&b, "Active Proxies:       %d\n", stats.ActiveProxies)
	fmt.Fprintf(&b, "Current Stack Depth:  %d\n", stats.CurrentDepth)
	fmt.Fprintf(&b, "Max Stack Depth:      %d\n", stats.MaxDepth)
	fmt.Fprintf(&b, "Slow Calls (>=%s): %d\n", formatDuration(cfg.SlowCallThreshold), stats.SlowCalls)
	fmt.Fprintf(&b, "Avg Call Duration:    %s\n", formatDuration(stats.AvgCallDuration))

	byID := make(map[int64]CallRecord)
	for _, c := range r.History() {
		byID[c.ID] = c
	}

	if slow := r.SlowCalls(); len(slow) > 0 {
		b.WriteString("\n" + thinRule + "\n")
		fmt.Fprintf(&b, "SLOW CALLS (>=%s):\n", formatDuration(cfg.SlowCallThreshold))
		b.WriteString(thinRule + "\n")

		if len(slow) > 10 {
			slow = slow[len(slow)-10:]
		}
		for _, c := range slow {
			fmt.Fprintf(&b, "\n  %s (%s)\n", c.Method, c.Kind)
			fmt.Fprintf(&b, "    Duration:    %s\n", formatDuration(c.Duration))
			fmt.Fprintf(&b, "    Stack Depth: %d\n", c.Depth)
			if c.CallSite != "" {
				fmt.Fprintf(&b, "    Called from: %s\n", c.CallSite)
			}
			if c.ParentID != 0 {
				b.WriteString("    Call Chain:\n")
				chain := callChain(byID, c.ID)
				for i, link := range chain {
					arrow := "├─>"
					if i == len(chain)-1 {
						arrow = "└─>"
					}
					fmt.Fprintf(&b, "      %s%s %s (%s) [%s]\n",
						strings.Repeat("  ", i), arrow, link.Method, link.Kind, formatDuration(link.Duration))
				}
			}
		}
	}

	if deep := r.DeepStacks(); len(deep) > 0 {
		b.WriteString("\n" + thinRule + "\n")
		fmt.Fprintf(&b, "DEEP CALL STACKS (>=%d levels):\n", cfg.DeepStackThreshold)
		b.WriteString(thinRule + "\n")

		if len(deep) > 5 {
			deep = deep[len(deep)-5:]
		}
		seen := make(map[string]bool)
		for _, stack := range deep {
			key := fmt.Sprint(stack)
			if seen[key] {
				continue
			}
			seen[key] = true
			fmt.Fprintf(&b, "  Depth: %d\n", len(stack))
			for _, id := range stack {
				if c, ok := byID[id]; ok {
					fmt.Fprintf(&b, "    → %s (%s)\n", c.Method, c.Kind)
				}
			}
			b.WriteString("\n")
		}
	}

	if proxies := r.Proxies(); len(proxies) > 0 {
		b.WriteString("\n" + thinRule + "\n")
		b.WriteString("ACTIVE PROXIES:\n")
		b.WriteString(thinRule + "\n")
		sort.Slice(proxies, func(i, j int) bool { return proxies[i].Accesses > proxies[j].Accesses })
		if len(proxies) > 10 {
			proxies = proxies[:10]
		}
		for _, p := range proxies {
			fmt.Fprintf(&b, "  %s\n", p)
		}
	}

	b.WriteString(rule)
	return b.String()
}

// ReportOptions select the sections of a full report.
type ReportOptions struct {
	Tree      bool
	Timeline  bool
	Proxies   bool
	SlowCalls bool
}

// DefaultReportOptions enables every section except the timeline.
func DefaultReportOptions() ReportOptions {
	return ReportOptions{Tree: true, Proxies: true, SlowCalls: true}
}

// FormatFullReport renders the summary followed by the selected sections.
func FormatFullReport(r *Recorder, opts ReportOptions) string {
	sections := []string{FormatSummary(r)}

	if opts.Tree {
		sections = append(sections, FormatCallTree(r, TreeOptions{}))
	}
	if opts.Timeline {
		sections = append(sections, FormatTimeline(r, TimelineOptions{}))
	}
	if opts.Proxies {
		sections = append(sections, FormatProxyReport(r))
	}
	if opts.SlowCalls {
		sections = append(sections, FormatSlowCalls(r, 0))
	}
	return strings.Join(sections, "\n\n")
}

// callChain walks parent links from the root down to id, using only the
// immutable history snapshot.
func callChain(byID map[int64]CallRecord, id int64) []CallRecord {
	var chain []CallRecord
	for {
		c, ok := byID[id]
		if !ok {
			break
		}
		chain = append([]CallRecord{c}, chain...)
		if c.ParentID == 0 {
			break
		}
		id = c.ParentID
	}
	return chain
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
