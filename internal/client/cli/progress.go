package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
)

// newByteBar returns a bar counting up to total bytes, or nil when stdout is
// not a terminal.
func (a *App) newByteBar(total int64, desc string) *progressbar.ProgressBar {
	if !isTerminal(int(os.Stdout.Fd())) {
		return nil
	}
	return progressbar.NewOptions64(
		total,
		progressbar.OptionSetWriter(a.out),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowBytes(true),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(a.out) }),
	)
}

// newPercentBar is a 0..100 bar for transfers whose size is not known up
// front.
func (a *App) newPercentBar(desc string) *progressbar.ProgressBar {
	if !isTerminal(int(os.Stdout.Fd())) {
		return nil
	}
	return progressbar.NewOptions(
		100,
		progressbar.OptionSetWriter(a.out),
		progressbar.OptionSetDescription(desc),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionOnCompletion(func() { fmt.Fprintln(a.out) }),
	)
}
