package main

import "github.com/lab5e/flowfunk/pkg/dataplane"

func main() {
	dataplane.Run()
}
