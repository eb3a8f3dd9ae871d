package ui

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

const (
	Reset  = "\033[0m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Blue   = "\033[34m"
	Purple = "\033[35m"
	Cyan   = "\033[36m"
	Gray   = "\033[37m"
	Bold   = "\033[1m"
)

// Version is printed in the banner.
const Version = "v0.3.0"

var mu sync.Mutex

func PrintBanner() {
	banner := `
                                         _ _ _
  ___  ___ ___  _ __   __ _ _   _  __| (_) |_
 / _ \/ __/ _ \| '_ \ / _` + "`" + ` | | | |/ _` + "`" + ` | | __|
|  __/ (_| (_) | | | | (_| | |_| | (_| | | |_
 \___|\___\___/|_| |_|\__,_|\__,_|\__,_|_|\__|
`
	fmt.Println(Cyan + banner + Reset)
	fmt.Println(Gray + "  " + Version + " - Economic Exploit Detection & Risk Aggregation" + Reset)
	fmt.Println()
}

func clearLine() {
	fmt.Print("\r\033[K")
}

func LogSuccess(format string, a ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	clearLine()
	fmt.Printf(Green+"[SUCCESS] "+Reset+format+"\n", a...)
}

func LogInfo(format string, a ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	clearLine()
	fmt.Printf(Blue+"[INFO] "+Reset+format+"\n", a...)
}

func LogWarn(format string, a ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	clearLine()
	fmt.Printf(Yellow+"[WARN] "+Reset+format+"\n", a...)
}

func LogError(format string, a ...interface{}) {
	mu.Lock()
	defer mu.Unlock()
	clearLine()
	fmt.Printf(Red+"[ERROR] "+Reset+format+"\n", a...)
}

// StartSpinner animates msg until the returned channel is closed or sent to.
func StartSpinner(msg string) chan bool {
	stop := make(chan bool)
	go func() {
		frames := []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}
		i := 0
		for {
			select {
			case <-stop:
				mu.Lock()
				clearLine()
				mu.Unlock()
				return
			default:
				mu.Lock()
				clearLine()
				fmt.Printf(Cyan+"%s %s"+Reset, frames[i%len(frames)], msg)
				mu.Unlock()
				time.Sleep(100 * time.Millisecond)
				i++
			}
		}
	}()
	return stop
}

// PrintStats prints the end-of-run summary block.
func PrintStats(total, success, failed, flagged int, duration time.Duration) {
	fmt.Println()
	fmt.Println(Gray + strings.Repeat("─", 50) + Reset)
	fmt.Printf("🏁 Audit completed in %s\n", duration.Round(time.Millisecond))
	fmt.Printf("📊 Contracts: %d | ✅ Audited: %d | ❌ Failed: %d | 💸 Exploitable: %d\n", total, success, failed, flagged)
	fmt.Println(Gray + strings.Repeat("─", 50) + Reset)
}
