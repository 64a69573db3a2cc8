package host

import (
	"fmt"
	"log/slog"
	"os/exec"
)

// Launcher shows a URL to the user.
type Launcher interface {
	Launch(url string) error
}

// NewLauncher returns the launcher registered under name: "browser" opens the
// system browser, "none" only logs the URL.
func NewLauncher(name string, logger *slog.Logger) (Launcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch name {
	case "", "none":
		return logLauncher{logger: logger}, nil
	case "browser":
		return browserLauncher{logger: logger}, nil
	default:
		return nil, fmt.Errorf("unknown launcher %q (want browser or none)", name)
	}
}

type logLauncher struct {
	logger *slog.Logger
}

func (l logLauncher) Launch(url string) error {
	l.logger.Info("configuration page ready", "url", url)
	return nil
}

type browserLauncher struct {
	logger *slog.Logger
}

func (b browserLauncher) Launch(url string) error {
	name, args := browserCommand(url)
	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", name, err)
	}
	go func() {
		if err := cmd.Wait(); err != nil {
			b.logger.Warn("browser exited with error", "command", name, "error", err)
		}
	}()
	return nil
}
