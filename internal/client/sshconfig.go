package client

import (
	"os"

	"github.com/kevinburke/ssh_config"
)

// UsernameFromSSHConfig resolves the User directive that an OpenSSH
// client config applies to host. A missing or unreadable file, a parse
// failure, or a host with no User directive all report false.
func UsernameFromSSHConfig(path, host string) (string, bool) {
	f, err := os.Open(path)
	if err != nil {
		return "", false
	}
	defer f.Close()

	cfg, err := ssh_config.Decode(f)
	if err != nil {
		return "", false
	}

	user, err := cfg.Get(host, "User")
	if err != nil || user == "" {
		return "", false
	}
	return user, true
}
