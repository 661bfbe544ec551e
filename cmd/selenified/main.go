// Command selenified runs browser test scenarios and follows queued runs.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
