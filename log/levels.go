package log

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// parseLevels returns the logrus levels at or above the named severity.
func parseLevels(level string) ([]logrus.Level, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("level %s is unknown", level)
	}
	index := int(lvl) + 1
	return logrus.AllLevels[:index], nil
}

type configToken struct {
	key   string
	value string
}

// tokenize splits a `key=value,key=value` config line.
func tokenize(line string) ([]configToken, error) {
	var tokens []configToken
	for _, kv := range strings.Split(line, ",") {
		if kv == "" {
			return nil, fmt.Errorf("empty config entry")
		}
		parts := strings.SplitN(kv, "=", 2)
		if len(parts) == 1 {
			return nil, fmt.Errorf("%s configuration entry is missing `=`", kv)
		}
		tokens = append(tokens, configToken{key: parts[0], value: parts[1]})
	}
	return tokens, nil
}
