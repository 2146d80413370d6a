// Package proctitle names the running process so diary binaries are easy to
// tell apart in ps and top.
package proctitle

import (
	"errors"
	"os"
	"strings"
)

// Process titles of the shipped binaries.
const (
	Server = "diary-server"
	CLI    = "diaryctl"
)

var errEmptyTitle = errors.New("empty process title")

// setArgv0 trims title and stores it as os.Args[0], which is all that
// platforms without a native hook get.
func setArgv0(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return "", errEmptyTitle
	}
	if len(os.Args) > 0 {
		os.Args[0] = title
	}
	return title, nil
}
