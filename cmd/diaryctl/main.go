// Command diaryctl runs maintenance tasks against the diary store.
package main

import (
	"fmt"
	"os"

	"github.com/mx-space/diary/internal/pkg/proctitle"
)

func main() {
	_ = proctitle.Set(proctitle.CLI)
	if err := newRootCmd(newEnv(os.Stdout)).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
