package main

import "github.com/edgeflare/quakebridge/cmd/quakebridge"

func main() {
	quakebridge.Main()
}
