// Package main provides the healthwatch binary entry point.
// Healthwatch is a service health review platform: it combines structural
// code analysis, LLM-verified observability gap detection, and telemetry
// from third-party observability backends into scored weekly reviews.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/c360studio/healthwatch/commands"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := commands.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
