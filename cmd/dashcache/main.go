// Package main is the entry point for the dashcache CLI.
package main

import "github.com/littleredflower/dashcache/internal/cli"

func main() {
	cli.Execute()
}
