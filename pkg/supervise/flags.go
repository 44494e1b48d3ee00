package supervise

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// Some dev servers ignore the PORT environment variable and only honor an
// explicit CLI flag. portFlagRules is a static marker→flags table; the marker
// is matched against the command text (and the resolved package script when
// the command is a script alias) and the flags are appended only when not
// already present. Plain data on purpose: extending it is adding a row.
type portFlagRule struct {
	Marker string
	Flags  []string
}

var portFlagRules = []portFlagRule{
	{"next dev", []string{"-p"}},
	{"vite", []string{"--port"}},
	{"astro dev", []string{"--port"}},
	{"ng serve", []string{"--port"}},
	{"gatsby develop", []string{"-p"}},
	{"uvicorn", []string{"--port"}},
	{"flask run", []string{"--port"}},
}

var scriptAliasRe = regexp.MustCompile(`^(?:npm|pnpm|yarn|bun)\s+(?:run\s+)?(\S+)`)

// InjectPortFlag appends the framework's port flag to command when the
// command (or the package script it aliases) matches a known rule. Commands
// already carrying the flag are returned unchanged.
func InjectPortFlag(dir, command string, port int) string {
	matchText := command
	if script := resolveScriptAlias(dir, command); script != "" {
		matchText = command + " " + script
	}

	for _, rule := range portFlagRules {
		if !strings.Contains(matchText, rule.Marker) {
			continue
		}
		out := command
		for _, flag := range rule.Flags {
			if hasFlag(matchText, flag) {
				continue
			}
			sep := " "
			// npm needs "--" before flags destined for the script.
			if strings.HasPrefix(command, "npm ") && !strings.Contains(command, " -- ") {
				sep = " -- "
			}
			out = out + sep + fmt.Sprintf("%s %d", flag, port)
		}
		return out
	}
	return command
}

// resolveScriptAlias returns the underlying package.json script body when
// command is a package-manager script invocation, or "".
func resolveScriptAlias(dir, command string) string {
	m := scriptAliasRe.FindStringSubmatch(strings.TrimSpace(command))
	if m == nil {
		return ""
	}
	scriptName := m[1]
	switch scriptName {
	case "install", "exec", "test":
		return ""
	}

	b, err := os.ReadFile(filepath.Join(dir, "package.json"))
	if err != nil {
		return ""
	}
	var pkg struct {
		Scripts map[string]string `json:"scripts"`
	}
	if err := json.Unmarshal(b, &pkg); err != nil {
		return ""
	}
	return pkg.Scripts[scriptName]
}

func hasFlag(text, flag string) bool {
	for _, f := range strings.Fields(text) {
		if f == flag || strings.HasPrefix(f, flag+"=") {
			return true
		}
	}
	return false
}
