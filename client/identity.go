package client

import (
	"bufio"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/google/uuid"
)

const identityKey = "client_uuid"

// identityPath returns the platform-specific persisted-identity path
// named in §6: "$HOME/.config/nettest.conf" on macOS, "/etc/nettest.conf"
// elsewhere.
func identityPath() (string, error) {
	if runtime.GOOS != "darwin" {
		return "/etc/nettest.conf", nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return home + "/.config/nettest.conf", nil
}

// LoadOrCreateClientUUID reads client_uuid="<uuid>" from the identity
// file, creating the file and the line on first run while preserving any
// other lines already present (§6). path overrides the platform default
// when non-empty, for tests.
func LoadOrCreateClientUUID(path string) (string, error) {
	if path == "" {
		p, err := identityPath()
		if err != nil {
			return "", err
		}
		path = p
	}

	lines, existing, err := readIdentityLines(path)
	if err != nil {
		return "", err
	}
	if existing != "" {
		return existing, nil
	}

	id := uuid.NewString()
	lines = append(lines, fmt.Sprintf("%s=%q", identityKey, id))
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		return "", err
	}
	return id, nil
}

// readIdentityLines returns every line of the file (for round-tripping
// unrelated content) and the parsed client_uuid value, if present. A
// missing file is not an error: it returns an empty slice.
func readIdentityLines(path string) ([]string, string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", nil
		}
		return nil, "", err
	}
	defer f.Close()

	var lines []string
	var found string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		lines = append(lines, line)
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, identityKey+"=") {
			found = strings.Trim(strings.TrimPrefix(trimmed, identityKey+"="), `"`)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, "", err
	}
	return lines, found, nil
}
