//go:build !darwin

package host

func browserCommand(url string) (string, []string) {
	return "xdg-open", []string{url}
}
