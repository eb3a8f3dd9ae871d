package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const Clear = "\033[2K\r"

// ProgressBar renders a single-line progress indicator for multi-contract
// audits. All methods are safe for concurrent use.
type ProgressBar struct {
	total       int
	current     int
	flagged     int
	startTime   time.Time
	description string
	mu          sync.Mutex
	width       int
}

func NewProgressBar(total int, description string) *ProgressBar {
	return &ProgressBar{
		total:       total,
		startTime:   time.Now(),
		description: description,
		width:       40,
	}
}

func (pb *ProgressBar) Increment() {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.current++
	pb.render()
}

// AddVuln counts a contract flagged as exploitable; shown on the next render.
func (pb *ProgressBar) AddVuln() {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.flagged++
}

func (pb *ProgressBar) Finish() {
	pb.mu.Lock()
	defer pb.mu.Unlock()
	pb.current = pb.total
	fmt.Print(Clear)
	pb.render()
	fmt.Println()
}

func (pb *ProgressBar) render() {
	percent := 1.0
	if pb.total > 0 {
		percent = float64(pb.current) / float64(pb.total)
	}
	if percent > 1.0 {
		percent = 1.0
	}

	filled := int(float64(pb.width) * percent)
	bar := strings.Repeat("=", pb.width)
	if filled < pb.width {
		bar = strings.Repeat("=", filled) + ">" + strings.Repeat(".", pb.width-filled-1)
	}

	elapsed := time.Since(pb.startTime)
	rate := float64(pb.current) / elapsed.Seconds()
	remaining := time.Duration(0)
	if rate > 0 {
		remaining = time.Duration(float64(pb.total-pb.current)/rate) * time.Second
	}
	eta := fmt.Sprintf("%02dm%02ds", int(remaining.Minutes()), int(remaining.Seconds())%60)

	barColor := Cyan
	if percent >= 1.0 {
		barColor = Green
	}
	flaggedColor := Green
	if pb.flagged > 0 {
		flaggedColor = Red
	}

	fmt.Printf("%s%s %s [%s]%s %.0f%% | %d/%d | ETA: %s | Exploitable: %s%d%s \n",
		Clear,
		pb.description,
		barColor, bar, Reset,
		percent*100,
		pb.current, pb.total,
		eta,
		flaggedColor, pb.flagged, Reset,
	)
}

// FormatVulnMsg formats the one-line summary of a contract's finding types.
func FormatVulnMsg(contract string, types []string) string {
	return fmt.Sprintf(" %s🔴 %d finding types in %s%s: %s",
		Red, len(types), Bold, contract, Reset+strings.Join(types, ", "))
}
