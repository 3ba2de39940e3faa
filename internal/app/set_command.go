package app

import (
	"fmt"
	"strings"

	"github.com/m96-chan/chatly/internal/config"
)

// RuntimeOption is a boolean setting that can be overridden for a single run
// with --set, without editing the config file.
type RuntimeOption struct {
	Name string
	Get  func(*config.Config) bool
	Set  func(*config.Config, bool)
}

// runtimeOptions is the registry of all runtime-settable boolean options.
var runtimeOptions = []RuntimeOption{
	{
		Name: "notifications",
		Get:  func(c *config.Config) bool { return c.Notifications.Enabled },
		Set:  func(c *config.Config, v bool) { c.Notifications.Enabled = v },
	},
	{
		Name: "hide_archived",
		Get:  func(c *config.Config) bool { return c.Backend.HideArchived },
		Set:  func(c *config.Config, v bool) { c.Backend.HideArchived = v },
	},
}

// findOption looks up a runtime option by name.
func findOption(name string) (*RuntimeOption, bool) {
	for i := range runtimeOptions {
		if runtimeOptions[i].Name == name {
			return &runtimeOptions[i], true
		}
	}
	return nil, false
}

// boolString returns "on" or "off" for a boolean value.
func boolString(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

// ParseBoolValue parses a boolean value string.
// Accepted values: on/off, true/false, yes/no (case-insensitive).
func ParseBoolValue(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "true", "yes":
		return true, nil
	case "off", "false", "no":
		return false, nil
	default:
		return false, fmt.Errorf("invalid value %q: use on/off, true/false, or yes/no", s)
	}
}

// ParseSetCommand parses one --set argument.
//
// Supported forms:
//   - "option=value"  assigns
//   - "option?"       queries
//   - "option"        toggles
//
// The value is validated as a boolean (on/off, true/false, yes/no).
func ParseSetCommand(arg string) (option, value string, query bool, err error) {
	arg = strings.TrimSpace(arg)
	if arg == "" {
		return "", "", false, fmt.Errorf("no option specified")
	}

	if strings.HasSuffix(arg, "?") {
		return strings.TrimSpace(strings.TrimSuffix(arg, "?")), "", true, nil
	}

	option, value, hasValue := strings.Cut(arg, "=")
	option = strings.TrimSpace(option)
	value = strings.TrimSpace(value)
	if strings.ContainsAny(option, " \t") {
		return "", "", false, fmt.Errorf("invalid syntax: %q", arg)
	}
	if hasValue {
		if _, err := ParseBoolValue(value); err != nil {
			return "", "", false, err
		}
	}
	return option, value, false, nil
}

// ApplySetCommand applies a parsed --set argument to cfg. An empty value
// toggles the option. It returns a human-readable description of the result.
func ApplySetCommand(cfg *config.Config, option, value string) (string, error) {
	opt, ok := findOption(option)
	if !ok {
		return "", unknownOption(option)
	}

	var newVal bool
	if value == "" {
		newVal = !opt.Get(cfg)
	} else {
		var err error
		newVal, err = ParseBoolValue(value)
		if err != nil {
			return "", err
		}
	}

	opt.Set(cfg, newVal)
	return fmt.Sprintf("%s = %s", option, boolString(newVal)), nil
}

// QueryOption returns the current value of a runtime option.
func QueryOption(cfg *config.Config, option string) (string, error) {
	opt, ok := findOption(option)
	if !ok {
		return "", unknownOption(option)
	}
	return fmt.Sprintf("%s = %s", option, boolString(opt.Get(cfg))), nil
}

// ApplyOverrides applies every --set argument in order. Query arguments are
// answered in the returned lines.
func ApplyOverrides(cfg *config.Config, args []string) ([]string, error) {
	var out []string
	for _, arg := range args {
		option, value, query, err := ParseSetCommand(arg)
		if err != nil {
			return nil, err
		}
		var line string
		if query {
			line, err = QueryOption(cfg, option)
		} else {
			line, err = ApplySetCommand(cfg, option, value)
		}
		if err != nil {
			return nil, err
		}
		out = append(out, line)
	}
	return out, nil
}

// ListRuntimeOptions returns every settable option with its current value,
// one per line.
func ListRuntimeOptions(cfg *config.Config) string {
	var b strings.Builder
	for _, opt := range runtimeOptions {
		fmt.Fprintf(&b, "%s = %s\n", opt.Name, boolString(opt.Get(cfg)))
	}
	return b.String()
}

// RuntimeOptionNames returns the names of all runtime-settable options.
func RuntimeOptionNames() []string {
	names := make([]string, len(runtimeOptions))
	for i, opt := range runtimeOptions {
		names[i] = opt.Name
	}
	return names
}

func unknownOption(name string) error {
	return fmt.Errorf("unknown option %q (available: %s)", name, strings.Join(RuntimeOptionNames(), ", "))
}
